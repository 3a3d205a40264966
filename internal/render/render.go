package render

import (
	"fmt"
	"strings"

	cerrors "tensorc/internal/errors"
	"tensorc/internal/symbolic"
	"tensorc/internal/uop"
)

// NameCache disambiguates kernel names across a whole compile job. It
// is an explicit, caller-owned value rather than package state: two
// independent compiles (e.g. concurrent Realize calls) never share one,
// so kernel names never depend on call order across jobs.
type NameCache struct {
	seen map[string]bool
}

// NewNameCache returns an empty cache, good for one compile job.
func NewNameCache() *NameCache { return &NameCache{seen: map[string]bool{}} }

// Name returns a "<prefix><shape>" name. The first kernel to ask for a
// given prefix+shape in one job gets that bare name; every later one is
// disambiguated by appending its scheduler-assigned kernelID rather than
// a counter, so which kernel gets the bare name depends on call order.
func (nc *NameCache) Name(prefix string, shape []*symbolic.Node, kernelID string) string {
	base := prefix + shapeTag(shape)
	if !nc.seen[base] {
		nc.seen[base] = true
		return base
	}
	return fmt.Sprintf("%s_%s", base, kernelID)
}

func shapeTag(shape []*symbolic.Node) string {
	if len(shape) == 0 {
		return "scalar"
	}
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = d.String()
	}
	return strings.Join(parts, "x")
}

// KernelPrefix picks the "ew_" (elementwise) or "re_" (reduce) naming
// prefix spec.md §4.8 names, based on whether the kernel's AST contains
// a reduction RANGE.
func KernelPrefix(g *uop.Graph) string {
	for _, u := range g.All() {
		if u.Op == uop.RANGE {
			if _, _, _, isReduce := uop.RangeArg(u); isReduce {
				return "re_"
			}
		}
	}
	return "ew_"
}

// Render lowers one scheduled kernel's UOp AST to a named, dialect-
// specific kernel string: it lowers EXPAND/CONTRACT markers, topo-orders
// the result with scope closes inserted at last use, re-verifies the
// final graph, then emits C-family text (spec.md §4.8 steps 1-5).
func Render(nc *NameCache, kernelID string, g *uop.Graph, sink *uop.UOp, outputShape []*symbolic.Node, d Dialect) (source, name string, err error) {
	lowered := lowerVectors(g, sink)
	if errs := uop.Verify(g, lowered); len(errs) != 0 {
		return "", "", cerrors.NewIRInvariant("render", "kernel failed verification after vector lowering", errs)
	}
	for _, u := range reachable(lowered) {
		if u.Op == uop.EXPAND || u.Op == uop.CONTRACT || u.Op == uop.REDUCE {
			return "", "", cerrors.NewIRInvariant("render", "kernel still contains a pre-render marker op after lowering", u.Op)
		}
	}

	stmts, closesAfter := order(g, lowered)

	var params []*uop.UOp
	for _, u := range stmts {
		if u.Op == uop.DEFINE_GLOBAL {
			params = append(params, u)
		}
	}
	sortByBufferIndex(params)

	name = nc.Name(KernelPrefix(g), outputShape, kernelID)
	source = emit(d, name, params, stmts, closesAfter)
	return source, name, nil
}

func sortByBufferIndex(params []*uop.UOp) {
	for i := 1; i < len(params); i++ {
		for j := i; j > 0 && params[j-1].Arg.(int) > params[j].Arg.(int); j-- {
			params[j-1], params[j] = params[j], params[j-1]
		}
	}
}
