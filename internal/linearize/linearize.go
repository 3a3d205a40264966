// Package linearize lowers one scheduled kernel (internal/schedule) into
// a fully indexed internal/uop graph: it classifies the output shape's
// axes, opens real loops over them, materialises per-tensor indices via
// each operand's own shape.Tracker, and lowers reductions to the
// DEFINE_ACC/RANGE/PHI discipline spec.md §4.6 describes. Grounded on
// the teacher's register allocator and loop-stack machinery
// (internal/compregister/compiler.go's RegisterAllocator, Scope,
// LoopInfo), generalized from "allocate registers for locals, track
// break/continue jump targets" to "classify axes, allocate loop/upcast
// dimensions, track RANGE/ENDRANGE nesting".
package linearize

import (
	"fmt"

	cerrors "tensorc/internal/errors"
	"tensorc/internal/lazy"
	"tensorc/internal/schedule"
	"tensorc/internal/shape"
	"tensorc/internal/symbolic"
	"tensorc/internal/uop"
)

// AxisKind classifies one axis of a kernel's output shape (spec.md
// §4.6's "global / local / upcast" partition). Group-for-reduce is not
// an output-axis classification: it splits an axis of a *reduce's
// input* shape, decided per reduce node by groupForReduceSplit and
// lowered by lowerGroupedReduce in lower.go.
type AxisKind int

const (
	AxisGlobal AxisKind = iota
	AxisLocal
	AxisUpcast
)

func (k AxisKind) String() string {
	switch k {
	case AxisLocal:
		return "local"
	case AxisUpcast:
		return "upcast"
	default:
		return "global"
	}
}

// TargetDesc names the hardware knobs the linearizer's shape analysis
// consults (spec.md §4.6 "a target descriptor (has-local-memory,
// vector widths, TC availability, max local/global sizes)").
type TargetDesc struct {
	HasLocalMemory bool
	MaxLocalSize   [3]int64
	MaxGlobalSize  [3]int64

	// LocalAxes is how many of the leading non-upcast output axes are
	// classified AxisLocal rather than AxisGlobal (0 disables the
	// local-memory path even when HasLocalMemory is set).
	LocalAxes int
	// UpcastAxes is how many trailing output axes are fully unrolled
	// via EXPAND instead of opened as loops.
	UpcastAxes int
	// GroupForReduceAxes enables splitting each reduce's leading axis
	// across the workgroup using a DEFINE_LOCAL staging buffer: 0
	// disables it, >0 enables it wherever the axis extent divides
	// evenly by MaxLocalSize[0] (see lower.go's groupForReduceSplit).
	GroupForReduceAxes int

	TCAvailable bool
}

// Linearize lowers k into a populated UOp graph rooted at a SINK.
func Linearize(k schedule.ScheduledKernel, target TargetDesc) (*uop.Graph, error) {
	g := uop.NewGraph()
	outShape := k.LazyRoot.View.Shape()
	kinds := classifyAxes(outShape, target)

	loopVars, loopSyms, ranges, err := openAxisLoops(g, outShape, kinds)
	if err != nil {
		return nil, err
	}

	lw := &lowerer{
		g:          g,
		boundaries: k.Boundaries,
		rootID:     k.LazyRoot.ID,
		target:     target,
		inputIdx:   map[uint64]int{},
	}
	ax := axisCtx{syms: loopSyms, vars: loopVars}
	val, err := lw.lower(k.LazyRoot, ax)
	if err != nil {
		return nil, err
	}

	outDType := lowerDType(k.LazyRoot.DType)
	// the output buffer is a fresh row-major buffer of outShape, so the
	// store index comes from a contiguous view of it, not LazyRoot's view
	outIdx, outValid := shape.NewFromDims(outShape...).ExprIdxs(loopSyms)
	outIdxU := lowerSymbolic(g, outIdx, loopVars)
	outValidU := lowerSymbolic(g, outValid, loopVars)
	outGlobal := g.DefineGlobal(len(lw.inputOrder), outDType)
	store := g.Store(outGlobal, outIdxU, val, outValidU)

	for i := len(ranges) - 1; i >= 0; i-- {
		if ranges[i] != nil {
			g.EndRange(ranges[i])
		}
	}
	sink := g.Sink(store)
	if errs := uop.Verify(g, sink); len(errs) > 0 {
		return nil, cerrors.NewIRInvariant("linearize", "linearized AST failed verification", errs)
	}
	return g, nil
}

// classifyAxes partitions output axes per spec.md §4.6: trailing
// UpcastAxes become AxisUpcast; of the remaining leading axes, the
// last LocalAxes become AxisLocal when the target has local memory;
// the rest are AxisGlobal. Merge-adjacent is left for a future
// optimisation pass — every axis is still lowered correctly, just
// without that extra tiling.
func classifyAxes(shapeDims []*symbolic.Node, target TargetDesc) []AxisKind {
	n := len(shapeDims)
	kinds := make([]AxisKind, n)
	upcast := target.UpcastAxes
	if upcast > n {
		upcast = n
	}
	for i := n - upcast; i < n; i++ {
		kinds[i] = AxisUpcast
	}
	if target.HasLocalMemory && target.LocalAxes > 0 {
		remaining := n - upcast
		localCount := target.LocalAxes
		if localCount > remaining {
			localCount = remaining
		}
		for i := remaining - localCount; i < remaining; i++ {
			kinds[i] = AxisLocal
		}
	}
	return kinds
}

// openAxisLoops opens one RANGE per non-unit output axis (spec.md
// §4.6's simplify-ones: unit axes in every view never need a loop, so
// they are bound to the constant 0 instead). Upcast axes are unrolled
// with EXPAND rather than opened as a sequential RANGE. loopVars maps
// each bound symbolic.Var's name to the UOp it evaluates to; lowerer
// stages (lowerReduce, lowerContract, lowerGroupedReduce) extend a copy
// of this map with their own fresh names instead of indexing by axis
// position, so names never need to double as array indices.
func openAxisLoops(g *uop.Graph, shapeDims []*symbolic.Node, kinds []AxisKind) (loopVars map[string]*uop.UOp, loopSyms []*symbolic.Node, ranges []*uop.UOp, err error) {
	loopVars = map[string]*uop.UOp{}
	loopSyms = make([]*symbolic.Node, len(shapeDims))
	ranges = make([]*uop.UOp, len(shapeDims))

	for i, d := range shapeDims {
		if d.Kind == symbolic.KindConst && d.Value <= 1 {
			loopSyms[i] = symbolic.Const(0)
			continue
		}
		size, ok := constSize(d)
		if !ok {
			return nil, nil, nil, cerrors.NewUnsupportedOp("linearize", "non-constant axis extent not yet supported", d)
		}
		name := fmt.Sprintf("i%d", i)
		if kinds[i] == AxisUpcast {
			lanes := make([]*uop.UOp, size)
			for lane := int64(0); lane < size; lane++ {
				lanes[lane] = g.Const(uop.Int32, float64(lane))
			}
			loopVars[name] = g.Expand(uop.Int32, lanes...)
			loopSyms[i] = symbolic.Var(name, 0, size-1)
			continue
		}
		r := g.Range(0, size, name, false)
		ranges[i] = r
		loopVars[name] = r
		loopSyms[i] = symbolic.Var(name, 0, size-1)
	}
	return loopVars, loopSyms, ranges, nil
}

func constSize(d *symbolic.Node) (int64, bool) {
	if d.Kind == symbolic.KindConst {
		return d.Value, true
	}
	if d.Max == d.Min {
		return d.Max, true
	}
	return 0, false
}

func lowerDType(d lazy.DType) uop.DType {
	switch d {
	case lazy.Float32:
		return uop.Float32
	case lazy.Int32:
		return uop.Int32
	case lazy.Bool:
		return uop.Bool
	default:
		return uop.Float32
	}
}

// lowerSymbolic converts a symbolic integer/boolean expression into a
// UOp ALU tree, substituting each named Var for the loop UOp bound to
// it in vars (a RANGE UOp's value IS its induction variable, per
// internal/uop's convention).
func lowerSymbolic(g *uop.Graph, n *symbolic.Node, vars map[string]*uop.UOp) *uop.UOp {
	switch n.Kind {
	case symbolic.KindConst:
		return g.Const(uop.Int32, float64(n.Value))
	case symbolic.KindVar:
		return vars[n.Name]
	case symbolic.KindSum:
		acc := lowerSymbolic(g, n.Children[0], vars)
		for _, c := range n.Children[1:] {
			acc = g.Alu(uop.Add, uop.Int32, acc, lowerSymbolic(g, c, vars))
		}
		return acc
	case symbolic.KindMul:
		return g.Alu(uop.Mul, uop.Int32, lowerSymbolic(g, n.Operand, vars), g.Const(uop.Int32, float64(n.Const)))
	case symbolic.KindDiv:
		return g.Alu(uop.Div, uop.Int32, lowerSymbolic(g, n.Operand, vars), g.Const(uop.Int32, float64(n.Const)))
	case symbolic.KindMod:
		return g.Alu(uop.Mod, uop.Int32, lowerSymbolic(g, n.Operand, vars), g.Const(uop.Int32, float64(n.Const)))
	case symbolic.KindLt:
		return g.Alu(uop.Lt, uop.Bool, lowerSymbolic(g, n.Operand, vars), g.Const(uop.Int32, float64(n.Const)))
	case symbolic.KindGe:
		return g.Alu(uop.Ge, uop.Bool, lowerSymbolic(g, n.Operand, vars), g.Const(uop.Int32, float64(n.Const)))
	case symbolic.KindAnd:
		acc := lowerSymbolic(g, n.Children[0], vars)
		for _, c := range n.Children[1:] {
			acc = g.Alu(uop.And, uop.Bool, acc, lowerSymbolic(g, c, vars))
		}
		return acc
	default:
		return g.Const(uop.Int32, 0)
	}
}

// cloneVars copies a loop-var binding map so a nested lowering stage
// (a reduce's own axes, a contraction's K axis) can extend it with
// fresh names without mutating the caller's.
func cloneVars(vars map[string]*uop.UOp) map[string]*uop.UOp {
	out := make(map[string]*uop.UOp, len(vars)+2)
	for k, v := range vars {
		out[k] = v
	}
	return out
}
