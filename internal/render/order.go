package render

import (
	"sort"

	"tensorc/internal/rewrite"
	"tensorc/internal/uop"
)

// expandMatcher lowers any EXPAND/CONTRACT markers internal/rewrite's
// default pass left in place (spec.md §4.8 step 1). It is intentionally
// separate from rewrite.DefaultPatternMatcher: these two rules are the
// renderer's own prerequisite step, not general algebraic rewrites.
func expandMatcher() *rewrite.PatternMatcher {
	m := rewrite.NewPatternMatcher()
	m.Add(rewrite.Rule{
		Name:    "render-expand-to-vectorize",
		Pattern: rewrite.Op(uop.EXPAND),
		Builder: func(g *uop.Graph, u *uop.UOp, b rewrite.Bindings) (*uop.UOp, bool) {
			if len(u.Src) == 1 {
				return u.Src[0], true
			}
			return g.Vectorize(u.DType, u.Src...), true
		},
	})
	m.Add(rewrite.Rule{
		Name:    "render-contract-of-vectorize",
		Pattern: rewrite.Op(uop.CONTRACT),
		Builder: func(g *uop.Graph, u *uop.UOp, b rewrite.Bindings) (*uop.UOp, bool) {
			src := u.Src[0]
			if src.Op != uop.VECTORIZE || len(src.Src) == 0 {
				return src, true
			}
			acc := src.Src[0]
			for _, lane := range src.Src[1:] {
				acc = g.Alu(uop.Add, u.DType, acc, lane)
			}
			return acc, true
		},
	})
	return m
}

// lowerVectors runs the renderer's own expand/contract pass to a fixed
// point, reusing internal/rewrite's memoised post-order walker.
func lowerVectors(g *uop.Graph, root *uop.UOp) *uop.UOp {
	return rewrite.GraphRewrite(g, root, expandMatcher())
}

// order computes the renderer's linear statement list: a topological
// order of every value-producing UOp (RANGE/IF included, ENDRANGE/
// ENDIF excluded), plus, for each RANGE/IF, the position after which
// its close marker belongs — the last statement structurally inside
// its scope (spec.md §4.8 steps 2-3).
func order(g *uop.Graph, sink *uop.UOp) (stmts []*uop.UOp, closesAfter map[int][]*uop.UOp) {
	all := reachable(sink)

	// ENDRANGE/ENDIF are control markers, not dataflow children of
	// anything: nothing holds one as a Src, so they're never
	// backward-reachable from sink (mirrors uop.Verify checking them
	// against g.All() rather than sink's reachable set). Pull them in
	// separately, keeping only the ones whose RANGE/IF is actually
	// part of this kernel.
	inKernel := map[*uop.UOp]bool{}
	for _, u := range all {
		inKernel[u] = true
	}
	for _, u := range g.All() {
		if (u.Op == uop.ENDRANGE || u.Op == uop.ENDIF) && inKernel[u.Src[0]] {
			all = append(all, u)
		}
	}

	// Creation order, local to this call: g.All() already lists nodes
	// in the order the hash-consing Graph interned them, so a node's
	// index there is a stable deterministic tie-breaker. Kept as a
	// plain local map rather than process-wide state, per the "no
	// implicit global state" rule this package follows throughout.
	seq := map[*uop.UOp]int{}
	for i, u := range g.All() {
		seq[u] = i
	}
	seqOf := func(u *uop.UOp) int { return seq[u] }

	isEnd := func(u *uop.UOp) bool { return u.Op == uop.ENDRANGE || u.Op == uop.ENDIF }

	// Kahn's algorithm over the value-dataflow subgraph (every node
	// that isn't an End-marker), ties broken by ascending creation
	// order for determinism (spec.md "Renderer determinism").
	indeg := map[*uop.UOp]int{}
	users := map[*uop.UOp][]*uop.UOp{}
	var nodes []*uop.UOp
	for _, u := range all {
		if isEnd(u) {
			continue
		}
		nodes = append(nodes, u)
		deg := 0
		for _, s := range u.Src {
			if isEnd(s) {
				continue
			}
			deg++
			users[s] = append(users[s], u)
		}
		indeg[u] = deg
	}
	sort.SliceStable(nodes, func(i, j int) bool { return seqOf(nodes[i]) < seqOf(nodes[j]) })

	var ready []*uop.UOp
	seen := map[*uop.UOp]bool{}
	enqueueReady := func() {
		ready = ready[:0]
		for _, n := range nodes {
			if !seen[n] && indeg[n] == 0 {
				ready = append(ready, n)
			}
		}
	}
	for len(stmts) < len(nodes) {
		enqueueReady()
		if len(ready) == 0 {
			break // should not happen for a well-formed DAG
		}
		sort.SliceStable(ready, func(i, j int) bool { return seqOf(ready[i]) < seqOf(ready[j]) })
		n := ready[0]
		seen[n] = true
		stmts = append(stmts, n)
		for _, u := range users[n] {
			indeg[u]--
		}
	}

	// DEFINE_ACC hoist: move each DEFINE_ACC to immediately after the
	// latest of the RANGEs it depends on (spec.md §4.8 step 2). Our
	// Kahn order already respects dependency order, so this only ever
	// moves a DEFINE_ACC later, never earlier.
	pos := map[*uop.UOp]int{}
	for i, u := range stmts {
		pos[u] = i
	}
	for _, u := range stmts {
		if u.Op != uop.DEFINE_ACC {
			continue
		}
		hoistAfter := pos[u]
		for _, r := range u.Src[1:] {
			if p := pos[r]; p > hoistAfter {
				hoistAfter = p
			}
		}
		if hoistAfter != pos[u] {
			moveAfter(stmts, pos[u], hoistAfter)
			for i, n := range stmts {
				pos[n] = i
			}
		}
	}

	// Scope-close placement: for every RANGE/IF, find the last
	// statement structurally inside its scope and schedule its
	// ENDRANGE/ENDIF right after that position. "Inside its scope"
	// stops propagating through PHI: a reduction's combining
	// expression is inside the loop, but PHI's own result is the
	// loop's final value, so anything consuming it (the STORE that
	// writes the reduced value out) sits after ENDRANGE even though it
	// transitively depends on the RANGE in the dataflow sense.
	inside := scopeMembership(stmts)
	closesAfter = map[int][]*uop.UOp{}
	for _, end := range all {
		if !isEnd(end) {
			continue
		}
		open := end.Src[0]
		openPos, ok := pos[open]
		if !ok {
			continue
		}
		last := openPos
		for i, s := range stmts {
			if i <= openPos {
				continue
			}
			// SINK/NOOP emit no text of their own (see emit.go), so
			// they must never be the statement a scope close is
			// anchored to — SINK in particular transitively reaches
			// every STORE and would otherwise push every ENDRANGE to
			// the very end of the kernel.
			if s.Op == uop.SINK || s.Op == uop.NOOP {
				continue
			}
			if inside[s][open] {
				last = i
			}
		}
		closesAfter[last] = append(closesAfter[last], end)
	}
	for at := range closesAfter {
		list := closesAfter[at]
		sort.SliceStable(list, func(i, j int) bool {
			return seqOf(list[i].Src[0]) > seqOf(list[j].Src[0]) // innermost (opened later) closes first
		})
		closesAfter[at] = list
	}
	return stmts, closesAfter
}

func moveAfter(stmts []*uop.UOp, from, toAfter int) {
	u := stmts[from]
	copy(stmts[from:], stmts[from+1:toAfter+1])
	stmts[toAfter] = u
}

// scopeMembership returns, per statement, the set of RANGE/IF nodes
// whose loop/branch body that statement structurally belongs inside.
// Unlike plain dataflow reachability, this does not propagate a RANGE
// past a PHI that consumes it: PHI's own combining step is inside the
// loop, but the reduced value PHI produces has left it, so anything
// that only reaches the RANGE through a PHI sits outside the loop.
func scopeMembership(stmts []*uop.UOp) map[*uop.UOp]map[*uop.UOp]bool {
	memo := map[*uop.UOp]map[*uop.UOp]bool{}
	var visit func(u *uop.UOp) map[*uop.UOp]bool
	visit = func(u *uop.UOp) map[*uop.UOp]bool {
		if m, ok := memo[u]; ok {
			return m
		}
		set := map[*uop.UOp]bool{}
		memo[u] = set // break cycles defensively; UOp graphs are acyclic
		for _, s := range u.Src {
			if s.Op == uop.RANGE || s.Op == uop.IF {
				set[s] = true
			}
			if s.Op == uop.PHI {
				continue // barrier: don't inherit the reduction's inner scope
			}
			for d := range visit(s) {
				set[d] = true
			}
		}
		return set
	}
	out := map[*uop.UOp]map[*uop.UOp]bool{}
	for _, s := range stmts {
		out[s] = visit(s)
	}
	return out
}

func reachable(sink *uop.UOp) []*uop.UOp {
	seen := map[*uop.UOp]bool{}
	var out []*uop.UOp
	var visit func(u *uop.UOp)
	visit = func(u *uop.UOp) {
		if seen[u] {
			return
		}
		seen[u] = true
		for _, s := range u.Src {
			visit(s)
		}
		out = append(out, u)
	}
	visit(sink)
	return out
}
