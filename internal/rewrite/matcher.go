package rewrite

import "tensorc/internal/uop"

// Builder receives the matched node and the bindings its Rule's
// Pattern captured, and either returns a replacement UOp, or (nil,
// false) to signal "doesn't apply" — spec.md §4.7's Option<UOp>, never
// an error (see internal/errors's doc comment on Pattern builder
// failure).
type Builder func(g *uop.Graph, u *uop.UOp, b Bindings) (*uop.UOp, bool)

// Rule pairs a Pattern with the Builder invoked on a match.
type Rule struct {
	Name    string
	Pattern *Pattern
	Builder Builder
}

// PatternMatcher holds an ordered rule list; rewriting a node tries
// rules in declared order and applies the first whose builder
// succeeds (spec.md §4.7).
type PatternMatcher struct {
	rules []Rule
}

// NewPatternMatcher builds an empty matcher.
func NewPatternMatcher() *PatternMatcher {
	return &PatternMatcher{}
}

// Add appends a rule, preserving declared order.
func (m *PatternMatcher) Add(r Rule) {
	m.rules = append(m.rules, r)
}

// rewriteOnce tries every rule against u in order, returning the
// first successful replacement.
func (m *PatternMatcher) rewriteOnce(g *uop.Graph, u *uop.UOp) (*uop.UOp, bool) {
	for _, r := range m.rules {
		b, ok := Match(r.Pattern, u, Bindings{})
		if !ok {
			continue
		}
		if out, ok := r.Builder(g, u, b); ok {
			return out, true
		}
	}
	return u, false
}

// GraphRewrite performs the memoised post-order rewrite spec.md §4.7
// describes: for each node, recursively rewrite its children, rebuild
// the node over the rewritten children, then try the matcher; a
// successful rewrite is itself recursively re-rewritten before being
// returned. Memoising by original-node identity keeps the walk linear
// in the number of distinct UOps and, because every other node's Src
// slice is rebuilt from the SAME memo lookup, a single pass already
// propagates one node's rewrite to every one of its uses — this is
// why no separate outer "apply rules until nothing changes" loop is
// needed on top of the builder-level convergence, matching the
// confluence spec.md §8 requires (graph_rewrite(graph_rewrite(g)) =
// graph_rewrite(g)).
func GraphRewrite(g *uop.Graph, root *uop.UOp, m *PatternMatcher) *uop.UOp {
	memo := make(map[*uop.UOp]*uop.UOp)
	var walk func(u *uop.UOp) *uop.UOp
	walk = func(u *uop.UOp) *uop.UOp {
		if cached, ok := memo[u]; ok {
			return cached
		}
		// Guard recursion on self-referential rebuilds (a rule could, in
		// principle, return a node built from its own pre-rewrite Src);
		// seed the memo with the original so a cycle resolves to it.
		memo[u] = u

		newSrc := make([]*uop.UOp, len(u.Src))
		changed := false
		for i, s := range u.Src {
			ns := walk(s)
			newSrc[i] = ns
			if ns != s {
				changed = true
			}
		}
		cur := u
		if changed {
			cur = rebuild(g, u, newSrc)
		}
		if out, ok := m.rewriteOnce(g, cur); ok && out != cur {
			out = walk(out)
			memo[u] = out
			return out
		}
		memo[u] = cur
		return cur
	}
	return walk(root)
}

// rebuild reconstructs u over newSrc, hash-consing through g so that
// two rewrites producing the same node converge on one pointer.
func rebuild(g *uop.Graph, u *uop.UOp, newSrc []*uop.UOp) *uop.UOp {
	return g.New(u.Op, u.DType, newSrc, u.Arg)
}
