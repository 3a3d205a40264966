// Package tensor is tensorc's front end: a NumPy-like array built on
// top of the deferred internal/lazy graph instead of eager internal/
// dataframe.NDArray arithmetic. Every arithmetic/movement method
// returns a new Tensor immediately, same call shape as NDArray's
// Add/Reshape/Sum, but nothing actually runs until Realize drives the
// compile pipeline (internal/schedule -> internal/linearize ->
// internal/rewrite -> internal/render -> internal/driver) end to end.
package tensor

import (
	"context"
	"fmt"

	cerrors "tensorc/internal/errors"
	"tensorc/internal/lazy"
	"tensorc/internal/linearize"
	"tensorc/internal/render"
	"tensorc/internal/rewrite"
	"tensorc/internal/schedule"
	"tensorc/internal/symbolic"
	"tensorc/internal/uop"

	"tensorc/internal/driver"
)

// Tensor wraps one internal/lazy.Node. Shape is cached for callers
// that only need dimensions, so every Reshape/Permute/Expand doesn't
// force a walk of the lazy graph.
type Tensor struct {
	node  *lazy.Node
	shape []int64
}

const defaultDevice = "cpu"

func wrap(n *lazy.Node) *Tensor {
	return &Tensor{node: n, shape: dimsOf(n.View.Shape())}
}

func dimsOf(nodes []*symbolic.Node) []int64 {
	out := make([]int64, len(nodes))
	for i, d := range nodes {
		out[i] = constDim(d)
	}
	return out
}

// constDim reads a fully concrete symbolic dimension. Tensor never
// builds a shape with a free variable in it — symbolic.Var dims are
// internal/linearize's concern (loop trip counts), not the front
// end's.
func constDim(n *symbolic.Node) int64 {
	if n.Kind != symbolic.KindConst {
		panic(fmt.Sprintf("tensor: non-constant shape dimension %s", n))
	}
	return n.Value
}

func symDims(dims []int64) []*symbolic.Node {
	out := make([]*symbolic.Node, len(dims))
	for i, d := range dims {
		out[i] = symbolic.Const(d)
	}
	return out
}

func numel(dims []int64) int64 {
	n := int64(1)
	for _, d := range dims {
		n *= d
	}
	return n
}

// FromSlice builds a Tensor directly from concrete data, already
// realised — no kernel ever runs to produce it, mirroring
// dataframe.NewArrayWithShape's eager construction.
func FromSlice(data []float32, dims ...int64) *Tensor {
	if int64(len(data)) != numel(dims) {
		panic(fmt.Sprintf("tensor: data length %d doesn't match shape size %d", len(data), numel(dims)))
	}
	buf := lazy.NewBuffer(defaultDevice, lazy.Float32, symDims(dims)...)
	buf.Data = data
	return wrap(lazy.FromBuffer(buf))
}

func filled(v float32, dims ...int64) *Tensor {
	data := make([]float32, numel(dims))
	for i := range data {
		data[i] = v
	}
	return FromSlice(data, dims...)
}

// Zeros builds a Tensor of the given shape filled with 0.
func Zeros(dims ...int64) *Tensor { return filled(0, dims...) }

// Ones builds a Tensor of the given shape filled with 1.
func Ones(dims ...int64) *Tensor { return filled(1, dims...) }

// Arange builds a 1-D Tensor counting from start up to (not including)
// stop.
func Arange(start, stop int64) *Tensor {
	if stop < start {
		stop = start
	}
	data := make([]float32, stop-start)
	for i := range data {
		data[i] = float32(start + int64(i))
	}
	return FromSlice(data, stop-start)
}

// Shape returns the Tensor's current concrete dimensions.
func (t *Tensor) Shape() []int64 {
	out := make([]int64, len(t.shape))
	copy(out, t.shape)
	return out
}

// Node exposes the underlying lazy graph node for callers that need to
// drive the compile pipeline themselves instead of through Realize
// (cmd/tensorc's dump-ir/dump-uops/compile subcommands, which want the
// scheduled kernels and rendered source without actually running them).
func (t *Tensor) Node() *lazy.Node { return t.node }

func (t *Tensor) binary(op lazy.BinaryOp, other *Tensor) *Tensor {
	a, b := t, other
	if !sameDims(a.shape, b.shape) {
		a, b = broadcastPair(a, b)
	}
	return wrap(lazy.Binary(op, a.node, b.node))
}

func sameDims(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// broadcastPair expands both operands to their common shape following
// NumPy's trailing-dimension rule, same semantics as dataframe's
// binary ops, implemented here via internal/shape.Tracker.Expand
// instead of a data copy.
func broadcastPair(a, b *Tensor) (*Tensor, *Tensor) {
	out := broadcastShape(a.shape, b.shape)
	return a.expandTo(out), b.expandTo(out)
}

func broadcastShape(a, b []int64) []int64 {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]int64, n)
	for i := 0; i < n; i++ {
		da, db := int64(1), int64(1)
		if i < len(a) {
			da = a[len(a)-1-i]
		}
		if i < len(b) {
			db = b[len(b)-1-i]
		}
		switch {
		case da == db:
			out[n-1-i] = da
		case da == 1:
			out[n-1-i] = db
		case db == 1:
			out[n-1-i] = da
		default:
			panic(fmt.Sprintf("tensor: shapes %v and %v are not broadcastable", a, b))
		}
	}
	return out
}

func (t *Tensor) expandTo(dims []int64) *Tensor {
	if sameDims(t.shape, dims) {
		return t
	}
	leading := len(dims) - len(t.shape)
	padded := t
	if leading > 0 {
		newShape := make([]int64, len(dims))
		copy(newShape, t.shape)
		// pushed left by `leading` ones, matching NumPy's implicit
		// leading-1 broadcast rule
		reshaped := make([]int64, len(dims))
		for i := 0; i < leading; i++ {
			reshaped[i] = 1
		}
		copy(reshaped[leading:], t.shape)
		padded = t.reshape(reshaped)
	}
	return padded.expandSameRank(dims)
}

func (t *Tensor) reshape(dims []int64) *Tensor {
	tr, err := t.node.View.Reshape(symDims(dims)...)
	if err != nil {
		panic(fmt.Sprintf("tensor: reshape: %v", err))
	}
	return wrap(lazy.Movement(lazy.MoveReshape, t.node, tr))
}

func (t *Tensor) expandSameRank(dims []int64) *Tensor {
	tr, err := t.node.View.Expand(symDims(dims)...)
	if err != nil {
		panic(fmt.Sprintf("tensor: expand: %v", err))
	}
	return wrap(lazy.Movement(lazy.MoveExpand, t.node, tr))
}

// Add computes an elementwise sum, broadcasting mismatched shapes.
func (t *Tensor) Add(other *Tensor) *Tensor { return t.binary(lazy.OpAdd, other) }

// Sub computes an elementwise difference, broadcasting mismatched shapes.
func (t *Tensor) Sub(other *Tensor) *Tensor { return t.binary(lazy.OpSub, other) }

// Mul computes an elementwise product, broadcasting mismatched shapes.
func (t *Tensor) Mul(other *Tensor) *Tensor { return t.binary(lazy.OpMul, other) }

// Div computes an elementwise quotient, broadcasting mismatched shapes.
func (t *Tensor) Div(other *Tensor) *Tensor { return t.binary(lazy.OpDiv, other) }

// Maximum computes an elementwise maximum, broadcasting mismatched shapes.
func (t *Tensor) Maximum(other *Tensor) *Tensor { return t.binary(lazy.OpMax, other) }

// Lt computes an elementwise less-than, yielding a bool Tensor.
func (t *Tensor) Lt(other *Tensor) *Tensor { return t.binary(lazy.OpCmpLt, other) }

func (t *Tensor) scalar(v float32) *Tensor {
	return filled(v, 1).expandTo(t.shape)
}

// AddScalar adds a constant to every element.
func (t *Tensor) AddScalar(v float32) *Tensor { return t.Add(t.scalar(v)) }

// MulScalar multiplies every element by a constant.
func (t *Tensor) MulScalar(v float32) *Tensor { return t.Mul(t.scalar(v)) }

// LtScalar computes an elementwise less-than against a constant.
func (t *Tensor) LtScalar(v float32) *Tensor { return t.Lt(t.scalar(v)) }

func (t *Tensor) unary(op lazy.UnaryOp) *Tensor { return wrap(lazy.Unary(op, t.node)) }

// Neg negates every element.
func (t *Tensor) Neg() *Tensor { return t.unary(lazy.OpNeg) }

// Exp applies e^x elementwise.
func (t *Tensor) Exp() *Tensor { return t.unary(lazy.OpExp) }

// Log applies the natural log elementwise.
func (t *Tensor) Log() *Tensor { return t.unary(lazy.OpLog) }

// Sqrt applies the square root elementwise.
func (t *Tensor) Sqrt() *Tensor { return t.unary(lazy.OpSqrt) }

// Recip computes 1/x elementwise.
func (t *Tensor) Recip() *Tensor { return t.unary(lazy.OpRecip) }

func (t *Tensor) reduce(op lazy.ReduceOp, axes ...int) *Tensor {
	if len(axes) == 0 {
		axes = allAxes(len(t.shape))
	}
	return wrap(lazy.Reduce(op, t.node, axes))
}

// Sum reduces the given axes (every axis, if none given) with +.
func (t *Tensor) Sum(axes ...int) *Tensor { return t.reduce(lazy.ReduceSum, axes...) }

// Max reduces the given axes (every axis, if none given) with max.
func (t *Tensor) Max(axes ...int) *Tensor { return t.reduce(lazy.ReduceMax, axes...) }

func allAxes(rank int) []int {
	axes := make([]int, rank)
	for i := range axes {
		axes[i] = i
	}
	return axes
}

// Reshape returns a view over the same data with a new shape; no
// kernel realises anything as long as the new shape is movement-legal
// (spec.md §4.3).
func (t *Tensor) Reshape(dims ...int64) *Tensor { return t.reshape(dims) }

// Permute reorders axes.
func (t *Tensor) Permute(perm ...int) *Tensor {
	tr, err := t.node.View.Permute(perm)
	if err != nil {
		panic(fmt.Sprintf("tensor: permute: %v", err))
	}
	return wrap(lazy.Movement(lazy.MovePermute, t.node, tr))
}

// Expand broadcasts size-1 axes up to dims; no data is copied, every
// expanded axis reads through a stride-0 view.
func (t *Tensor) Expand(dims ...int64) *Tensor { return t.expandSameRank(dims) }

// Pad widens every axis by (before, after), reading 0 outside the
// original bounds via a ShapeTracker mask rather than a reallocation.
func (t *Tensor) Pad(widths ...[2]int64) *Tensor {
	tr, err := t.node.View.Pad(widths...)
	if err != nil {
		panic(fmt.Sprintf("tensor: pad: %v", err))
	}
	return wrap(lazy.Movement(lazy.MovePad, t.node, tr))
}

// Shrink narrows every axis to [start, end), the inverse of Pad.
func (t *Tensor) Shrink(bounds ...[2]int64) *Tensor {
	tr, err := t.node.View.Shrink(bounds...)
	if err != nil {
		panic(fmt.Sprintf("tensor: shrink: %v", err))
	}
	return wrap(lazy.Movement(lazy.MoveShrink, t.node, tr))
}

// Stride subsamples every axis by the given step, the view-only
// building block behind pooling/dilation front ends.
func (t *Tensor) Stride(steps ...int64) *Tensor {
	tr, err := t.node.View.Stride(steps...)
	if err != nil {
		panic(fmt.Sprintf("tensor: stride: %v", err))
	}
	return wrap(lazy.Movement(lazy.MoveStride, t.node, tr))
}

// Contiguous forces a realisation boundary ahead of t (spec.md §10):
// useful before an op that can't legally read through a non-trivial
// view (e.g. a reduce over a padded/masked source).
func (t *Tensor) Contiguous() *Tensor { return wrap(lazy.Contiguous(t.node)) }

// Matmul contracts a (M, K) against a (K, N), producing (M, N).
// internal/linearize's lowerContract reads both operands through a
// shared (M, N, K)-shaped axis context — the M axis broadcast away for
// b, the N axis broadcast away for a — so both sides are reshaped into
// that common view here before the contraction itself is built,
// mirroring the matmul-via-broadcast trick original_source/ uses for
// the same reason (the contraction has no dedicated elementwise
// lowering of its own, it always reads both operands through one
// three-axis context).
func (t *Tensor) Matmul(other *Tensor) *Tensor {
	ta, tb := t.shape, other.shape
	if len(ta) != 2 || len(tb) != 2 || ta[1] != tb[0] {
		panic(fmt.Sprintf("tensor: matmul: incompatible shapes %v x %v", ta, tb))
	}
	m, k, n := ta[0], ta[1], tb[1]

	// b's unit M-axis is inserted before the transpose, while its view
	// is still a single contiguous view and the insertion point is free
	// regardless of position; permuting afterwards only ever reorders
	// that one view's existing strides. Transposing first and inserting
	// the unit axis after would instead push a second view onto the
	// tracker's stack; this order keeps each operand a single-view
	// tracker.
	aShaped := t.reshape([]int64{m, 1, k}).expandSameRank([]int64{m, n, k})
	bShaped := other.reshape([]int64{k, 1, n}).Permute(1, 2, 0).expandSameRank([]int64{m, n, k})

	arg := lazy.ContractArg{OutShape: symDims([]int64{m, n}), ContractK: k}
	return wrap(lazy.Contract(aShaped.node, bShaped.node, arg))
}

// Realize drives the full compile pipeline for this Tensor and every
// unrealised dependency it needs, returning the flat row-major result.
// Kernels already realised (by an earlier Realize call sharing a
// sub-expression) are not recomputed: internal/schedule.walk skips any
// node whose Realized buffer is already set.
func (t *Tensor) Realize(ctx context.Context) ([]float32, error) {
	if t.node.IsRealized() {
		return realizedData(t.node), nil
	}
	kernels, err := schedule.Schedule(ctx, []*lazy.Node{t.node})
	if err != nil {
		return nil, err
	}
	for _, k := range kernels {
		if err := runKernel(ctx, k); err != nil {
			return nil, err
		}
	}
	if !t.node.IsRealized() {
		return nil, cerrors.NewIRInvariant("tensor", "Realize: target still unrealised after running its schedule", t.node)
	}
	return realizedData(t.node), nil
}

func realizedData(n *lazy.Node) []float32 {
	if n.Realized != nil {
		return n.Realized.Data
	}
	return n.Buf.Data
}

// runKernel linearizes, rewrites, renders and executes one scheduled
// kernel against its already-realised input buffers, then marks its
// LazyRoot realised so later Schedule calls treat it as a leaf
// (spec.md §3's realised-node invariant).
func runKernel(ctx context.Context, k schedule.ScheduledKernel) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g, err := linearize.Linearize(k, linearize.TargetDesc{})
	if err != nil {
		return err
	}
	sink := findSinkNode(g)
	if sink == nil {
		return cerrors.NewIRInvariant("tensor", "linearized kernel has no SINK", k.KernelID)
	}
	sink = rewrite.GraphRewrite(g, sink, rewrite.DefaultPatternMatcher())

	nc := render.NewNameCache()
	outShape := k.Outputs[0].Shape
	source, _, err := render.Render(nc, k.KernelID, g, sink, outShape, render.CDialect)
	if err != nil {
		return err
	}

	outBuf := k.Outputs[0]
	if outBuf.Data == nil {
		outBuf.Data = make([]float32, numel(dimsOf(outBuf.Shape)))
	}

	buffers := make([]driver.Buffer, 0, len(k.Inputs)+1)
	for _, in := range k.Inputs {
		if in.Data == nil {
			return cerrors.NewIRInvariant("tensor", "kernel input buffer has no data at run time", k.KernelID)
		}
		buffers = append(buffers, driver.SliceBuffer(in.Data))
	}
	buffers = append(buffers, driver.SliceBuffer(outBuf.Data))

	drv := driver.NewCPUDriver()
	drv.Bind(source, g)
	prog, err := drv.Compile(source, [3]int{1, 1, 1}, [3]int{1, 1, 1})
	if err != nil {
		return err
	}
	if err := prog.Run(ctx, buffers, nil); err != nil {
		return err
	}

	k.LazyRoot.Realized = outBuf
	return nil
}

func findSinkNode(g *uop.Graph) *uop.UOp {
	var sink *uop.UOp
	for _, u := range g.All() {
		if u.Op == uop.SINK {
			sink = u
		}
	}
	return sink
}
