package linearize

import (
	"fmt"

	cerrors "tensorc/internal/errors"
	"tensorc/internal/lazy"
	"tensorc/internal/shape"
	"tensorc/internal/symbolic"
	"tensorc/internal/uop"
)

// axisCtx pairs the symbolic loop-induction variables (fed to
// shape.Tracker.ExprIdxs) with the UOp each one actually evaluates to
// in the graph under construction (a RANGE, an EXPAND lane, or Const(0)
// for a unit axis), the latter keyed by the symbolic.Var's own name
// rather than by axis position so a lowering stage can hand out fresh
// names (a contraction's "k<nodeID>", a grouped reduce's "gfr<nodeID>_
// <axis>") without colliding with or having to index into the output
// axes. Reduce lowering extends a copy of both with its own inner
// reduction axes via cloneVars.
type axisCtx struct {
	syms []*symbolic.Node
	vars map[string]*uop.UOp
}

// lowerer walks one kernel's fused lazy subgraph, materialising real
// per-tensor indices via each node's own ShapeTracker (spec.md §4.6).
type lowerer struct {
	g          *uop.Graph
	boundaries map[uint64]*lazy.Buffer
	rootID     uint64
	target     TargetDesc

	inputIdx   map[uint64]int
	inputOrder []*lazy.Buffer
}

func (lw *lowerer) lower(n *lazy.Node, ax axisCtx) (*uop.UOp, error) {
	if n.ID != lw.rootID {
		if buf, ok := lw.boundaries[n.ID]; ok {
			tr := shape.NewFromDims(n.View.Shape()...)
			return lw.loadBufferView(buf, tr, ax)
		}
	}
	switch n.Kind {
	case lazy.KindBuffer:
		return lw.loadBufferView(n.Buf, n.View, ax)

	case lazy.KindUnary:
		op := n.Arg.(lazy.UnaryOp)
		alu, ok := unaryALU[op]
		if !ok {
			return nil, cerrors.NewUnsupportedOp("linearize", "unsupported unary op", op)
		}
		src, err := lw.lower(n.Srcs[0], ax)
		if err != nil {
			return nil, err
		}
		return lw.g.Alu(alu, lowerDType(n.DType), src), nil

	case lazy.KindBinary:
		op := n.Arg.(lazy.BinaryOp)
		alu, ok := binaryALU[op]
		if !ok {
			return nil, cerrors.NewUnsupportedOp("linearize", "unsupported binary op", op)
		}
		a, err := lw.lower(n.Srcs[0], ax)
		if err != nil {
			return nil, err
		}
		b, err := lw.lower(n.Srcs[1], ax)
		if err != nil {
			return nil, err
		}
		return lw.g.Alu(alu, lowerDType(n.DType), a, b), nil

	case lazy.KindTernary:
		cond, err := lw.lower(n.Srcs[0], ax)
		if err != nil {
			return nil, err
		}
		a, err := lw.lower(n.Srcs[1], ax)
		if err != nil {
			return nil, err
		}
		b, err := lw.lower(n.Srcs[2], ax)
		if err != nil {
			return nil, err
		}
		return lw.g.Alu(uop.Where, lowerDType(n.DType), cond, a, b), nil

	case lazy.KindReduce:
		return lw.lowerReduce(n, ax)

	case lazy.KindContract:
		return lw.lowerContract(n, ax)

	case lazy.KindMovement, lazy.KindContiguous:
		base := n.Srcs[0]
		for base.Kind == lazy.KindMovement || base.Kind == lazy.KindContiguous {
			base = base.Srcs[0]
		}
		if base.Kind == lazy.KindBuffer {
			return lw.loadBufferView(base.Buf, n.View, ax)
		}
		if buf, ok := lw.boundaries[base.ID]; ok {
			return lw.loadBufferView(buf, n.View, ax)
		}
		// A movement node directly wrapping live compute should not
		// normally survive fusion (internal/lazy pushes movement past
		// elementwise ops); fall back to transparent passthrough.
		return lw.lower(n.Srcs[0], ax)

	default:
		return nil, cerrors.NewUnsupportedOp("linearize", "unsupported lazy kind", n.Kind)
	}
}

func (lw *lowerer) loadBufferView(buf *lazy.Buffer, view *shape.Tracker, ax axisCtx) (*uop.UOp, error) {
	dt := lowerDType(buf.DType)
	idx, ok := lw.inputIdx[buf.ID]
	if !ok {
		idx = len(lw.inputOrder)
		lw.inputIdx[buf.ID] = idx
		lw.inputOrder = append(lw.inputOrder, buf)
	}
	global := lw.g.DefineGlobal(idx, dt)
	idxSym, validSym := view.ExprIdxs(ax.syms)
	idxU := lowerSymbolic(lw.g, idxSym, ax.vars)
	validU := lowerSymbolic(lw.g, validSym, ax.vars)
	return lw.g.Load(global, idxU, validU, dt), nil
}

// lowerReduce implements spec.md §4.6's reduction lowering steps 1-5:
// DEFINE_ACC with the op's identity, RANGE(s) over the reduced axes,
// the ALU tree over the reduction input, PHI joining accumulator and
// reduced value, then ENDRANGE. Step 6 (group-for-reduce's second
// local-buffer pass) is driven by TargetDesc.GroupForReduceAxes via
// groupForReduceSplit/lowerGroupedReduce below.
func (lw *lowerer) lowerReduce(n *lazy.Node, ax axisCtx) (*uop.UOp, error) {
	op, axes := lazy.ReduceArg(n)
	srcShape := n.Srcs[0].View.Shape()
	dt := lowerDType(n.DType)

	if gs, ok := lw.groupForReduceSplit(axes, srcShape); ok {
		return lw.lowerGroupedReduce(n, ax, op, axes, srcShape, gs, dt)
	}

	innerSyms := append([]*symbolic.Node{}, ax.syms...)
	innerVars := cloneVars(ax.vars)
	var reduceRanges []*uop.UOp
	for _, a := range axes {
		size, ok := constSize(srcShape[a])
		if !ok {
			return nil, cerrors.NewUnsupportedOp("linearize", "non-constant reduce axis extent not yet supported", srcShape[a])
		}
		name := fmt.Sprintf("i%d", a)
		r := lw.g.Range(0, size, name, true)
		reduceRanges = append(reduceRanges, r)
		innerVars[name] = r
		innerSyms[a] = symbolic.Var(name, 0, size-1)
	}

	init := reduceIdentity(lw.g, op, dt)
	acc := lw.g.DefineAcc(init, dt, reduceRanges...)

	input, err := lw.lower(n.Srcs[0], axisCtx{syms: innerSyms, vars: innerVars})
	if err != nil {
		return nil, err
	}
	aluOp := reduceALU[op]
	combined := lw.g.Alu(aluOp, dt, acc, input)
	phi := lw.g.Phi(acc, combined)

	for i := len(reduceRanges) - 1; i >= 0; i-- {
		lw.g.EndRange(reduceRanges[i])
	}
	return phi, nil
}

// groupSplit describes how a reduce's leading axis is split across the
// workgroup: numGroups outer iterations of groupSize inner iterations
// each, the inner ones reduced locally before the outer loop stages its
// partial into shared memory.
type groupSplit struct {
	axis      int
	groupSize int64
	numGroups int64
}

// groupForReduceSplit decides whether n's leading reduce axis qualifies
// for the group-for-reduce split (spec.md §4.6 step 6): the target
// needs local memory and GroupForReduceAxes enabled, and the axis
// extent must divide evenly by the target's local-size limit with more
// than one group resulting. Only axes[0] is ever split — spec.md's
// group-for-reduce concerns the primary reduction axis. (classifyAxes,
// by contrast, makes the trailing non-upcast output axes local.)
func (lw *lowerer) groupForReduceSplit(axes []int, srcShape []*symbolic.Node) (groupSplit, bool) {
	if !lw.target.HasLocalMemory || lw.target.GroupForReduceAxes <= 0 {
		return groupSplit{}, false
	}
	if len(axes) == 0 {
		return groupSplit{}, false
	}
	groupSize := lw.target.MaxLocalSize[0]
	if groupSize <= 1 {
		return groupSplit{}, false
	}
	axis := axes[0]
	size, ok := constSize(srcShape[axis])
	if !ok || groupSize >= size || size%groupSize != 0 {
		return groupSplit{}, false
	}
	return groupSplit{axis: axis, groupSize: groupSize, numGroups: size / groupSize}, true
}

// lowerGroupedReduce implements spec.md §4.6 step 6: the split axis
// becomes an outer RANGE of numGroups groups times an inner reduce
// RANGE of groupSize, reducing each group's share into a DEFINE_LOCAL
// staging buffer sized numGroups; a BARRIER separates that write pass
// from a short combine pass that RANGEs over the numGroups partials and
// folds them into the final accumulator. Fresh loop-var names are
// scoped by n.ID so nested or sibling grouped reduces never collide,
// mirroring lowerContract's "k<nodeID>" convention.
func (lw *lowerer) lowerGroupedReduce(n *lazy.Node, ax axisCtx, op lazy.ReduceOp, axes []int, srcShape []*symbolic.Node, gs groupSplit, dt uop.DType) (*uop.UOp, error) {
	groupName := fmt.Sprintf("gfr%d_%d", n.ID, gs.axis)
	localName := fmt.Sprintf("gfl%d_%d", n.ID, gs.axis)
	combineName := fmt.Sprintf("gfrc%d_%d", n.ID, gs.axis)

	gRange := lw.g.Range(0, gs.numGroups, groupName, false)
	lRange := lw.g.Range(0, gs.groupSize, localName, true)
	groupedIdx := symbolic.Add(
		symbolic.Mul(symbolic.Var(groupName, 0, gs.numGroups-1), gs.groupSize),
		symbolic.Var(localName, 0, gs.groupSize-1),
	)

	innerSyms := append([]*symbolic.Node{}, ax.syms...)
	innerVars := cloneVars(ax.vars)
	innerVars[groupName] = gRange
	innerVars[localName] = lRange
	innerSyms[gs.axis] = groupedIdx

	var extraRanges []*uop.UOp
	for _, a := range axes[1:] {
		size, ok := constSize(srcShape[a])
		if !ok {
			return nil, cerrors.NewUnsupportedOp("linearize", "non-constant reduce axis extent not yet supported", srcShape[a])
		}
		name := fmt.Sprintf("i%d", a)
		r := lw.g.Range(0, size, name, true)
		extraRanges = append(extraRanges, r)
		innerVars[name] = r
		innerSyms[a] = symbolic.Var(name, 0, size-1)
	}

	init := reduceIdentity(lw.g, op, dt)
	aluOp := reduceALU[op]

	localAcc := lw.g.DefineAcc(init, dt, append([]*uop.UOp{lRange}, extraRanges...)...)
	input, err := lw.lower(n.Srcs[0], axisCtx{syms: innerSyms, vars: innerVars})
	if err != nil {
		return nil, err
	}
	localCombined := lw.g.Alu(aluOp, dt, localAcc, input)
	localPhi := lw.g.Phi(localAcc, localCombined)

	for i := len(extraRanges) - 1; i >= 0; i-- {
		lw.g.EndRange(extraRanges[i])
	}

	local := lw.g.DefineLocal(fmt.Sprintf("gfrbuf%d_%d", n.ID, gs.axis), int(gs.numGroups), dt)
	validTrue := lw.g.Const(uop.Bool, 1)
	lw.g.Store(local, gRange, localPhi, validTrue)
	lw.g.EndRange(lRange)
	lw.g.EndRange(gRange)
	lw.g.Barrier()

	cRange := lw.g.Range(0, gs.numGroups, combineName, true)
	partial := lw.g.Load(local, cRange, validTrue, dt)
	outerAcc := lw.g.DefineAcc(init, dt, cRange)
	combined := lw.g.Alu(aluOp, dt, outerAcc, partial)
	phi := lw.g.Phi(outerAcc, combined)
	lw.g.EndRange(cRange)
	return phi, nil
}

// lowerContract lowers a matmul-like reduce-of-mul. When the target
// has tensor cores available and the contracted dimension matches a
// built-in config, it emits a WMMA intrinsic instead of a scalar
// reduction loop (spec.md §4.6's tensor-core path).
func (lw *lowerer) lowerContract(n *lazy.Node, ax axisCtx) (*uop.UOp, error) {
	arg := n.Arg.(lazy.ContractArg)
	dt := lowerDType(n.DType)

	if lw.target.TCAvailable {
		if cfg, ok := uop.MatchTensorCore(arg.ContractK, dt); ok {
			a, err := lw.lower(n.Srcs[0], ax)
			if err != nil {
				return nil, err
			}
			b, err := lw.lower(n.Srcs[1], ax)
			if err != nil {
				return nil, err
			}
			acc := lw.g.DefineAcc(lw.g.Const(dt, 0), dt)
			return lw.g.Wmma(dt, cfg, a, b, acc), nil
		}
	}

	name := fmt.Sprintf("k%d", n.ID)
	r := lw.g.Range(0, arg.ContractK, name, true)
	sym := symbolic.Var(name, 0, arg.ContractK-1)
	innerSyms := append(append([]*symbolic.Node{}, ax.syms...), sym)
	innerVars := cloneVars(ax.vars)
	innerVars[name] = r
	innerAx := axisCtx{syms: innerSyms, vars: innerVars}

	a, err := lw.lower(n.Srcs[0], innerAx)
	if err != nil {
		return nil, err
	}
	b, err := lw.lower(n.Srcs[1], innerAx)
	if err != nil {
		return nil, err
	}
	prod := lw.g.Alu(uop.Mul, dt, a, b)
	acc := lw.g.DefineAcc(lw.g.Const(dt, 0), dt, r)
	combined := lw.g.Alu(uop.Add, dt, acc, prod)
	phi := lw.g.Phi(acc, combined)
	lw.g.EndRange(r)
	return phi, nil
}

func reduceIdentity(g *uop.Graph, op lazy.ReduceOp, dt uop.DType) *uop.UOp {
	switch op {
	case lazy.ReduceMax:
		return g.Const(dt, negInf)
	default:
		return g.Const(dt, 0)
	}
}

const negInf = -1e38

var reduceALU = map[lazy.ReduceOp]uop.ALUOp{
	lazy.ReduceSum: uop.Add,
	lazy.ReduceMax: uop.Max,
}

var unaryALU = map[lazy.UnaryOp]uop.ALUOp{
	lazy.OpNeg:   uop.Neg,
	lazy.OpExp:   uop.Exp,
	lazy.OpLog:   uop.Log,
	lazy.OpSqrt:  uop.Sqrt,
	lazy.OpRecip: uop.Recip,
}

var binaryALU = map[lazy.BinaryOp]uop.ALUOp{
	lazy.OpAdd:   uop.Add,
	lazy.OpSub:   uop.Sub,
	lazy.OpMul:   uop.Mul,
	lazy.OpDiv:   uop.Div,
	lazy.OpMax:   uop.Max,
	lazy.OpCmpLt: uop.Lt,
}
