// Package lazy builds and fuses the deferred tensor op graph. Every
// high-level op constructor returns a new Node; nothing is computed
// until the scheduler (internal/schedule) realises a node.
package lazy

import (
	"tensorc/internal/shape"
	"tensorc/internal/symbolic"
)

// Kind tags the closed set of lazy node shapes.
type Kind int

const (
	KindBuffer Kind = iota
	KindUnary
	KindBinary
	KindTernary
	KindReduce
	KindMovement
	KindLoad
	KindContract
	KindContiguous // forces realisation boundary; see SPEC_FULL §10
)

func (k Kind) String() string {
	switch k {
	case KindBuffer:
		return "Buffer"
	case KindUnary:
		return "Unary"
	case KindBinary:
		return "Binary"
	case KindTernary:
		return "Ternary"
	case KindReduce:
		return "Reduce"
	case KindMovement:
		return "Movement"
	case KindLoad:
		return "Load"
	case KindContract:
		return "Contract"
	case KindContiguous:
		return "Contiguous"
	default:
		return "Unknown"
	}
}

// DType is the element type carried by every lazy node.
type DType int

const (
	Float32 DType = iota
	Int32
	Bool
)

// Buffer is a realised or to-be-realised tensor: a device placeholder
// with an optional backing slice once realisation has happened.
type Buffer struct {
	ID     uint64
	Device string
	Shape  []*symbolic.Node
	DType  DType
	Data   []float32 // set only once realised
}

// nextBufferID mints the monotonic creation-order id used to break
// fusion-comparator ties deterministically (resolves the Open Question
// in spec §9 "Fusion comparator ties": ties break on ascending id).
var nextBufferID uint64

func newBufferID() uint64 {
	nextBufferID++
	return nextBufferID
}

// NewBuffer allocates a fresh, unrealised buffer placeholder.
func NewBuffer(device string, dtype DType, dims ...*symbolic.Node) *Buffer {
	return &Buffer{ID: newBufferID(), Device: device, Shape: dims, DType: dtype}
}

// Node is one entry in the lazy op graph: either a Buffer reference or
// a LazyOp over child nodes. Once Realized is set (monotonically, never
// unset) the op graph behind the node is dead and must not be
// inspected — per spec §3's realised-node invariant.
type Node struct {
	ID      uint64
	Kind    Kind
	Srcs    []*Node
	Arg     any
	View    *shape.Tracker
	DType   DType
	Device  string
	Buf     *Buffer // set when Kind == KindBuffer
	Realized *Buffer // set once a scheduler run produces this node's data
	RefCount int    // number of other nodes that reference this one as a source
}

func newNode(kind Kind, srcs []*Node, arg any, view *shape.Tracker, dtype DType, device string) *Node {
	n := &Node{ID: newBufferID(), Kind: kind, Srcs: srcs, Arg: arg, View: view, DType: dtype, Device: device}
	for _, s := range srcs {
		s.RefCount++
	}
	return n
}

// FromBuffer wraps an existing Buffer as a leaf lazy node.
func FromBuffer(buf *Buffer) *Node {
	n := newNode(KindBuffer, nil, nil, shape.NewFromDims(buf.Shape...), buf.DType, buf.Device)
	n.Buf = buf
	if buf.Data != nil {
		n.Realized = buf
	}
	return n
}

// IsRealized reports whether n already has concrete backing data.
func (n *Node) IsRealized() bool {
	return n.Realized != nil || (n.Kind == KindBuffer && n.Buf != nil && n.Buf.Data != nil)
}

// UnaryOp enumerates the elementwise unary ops.
type UnaryOp int

const (
	OpNeg UnaryOp = iota
	OpExp
	OpLog
	OpSqrt
	OpRecip
)

// BinaryOp enumerates the elementwise binary ops.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMax
	OpCmpLt
)

// Commutative reports whether op's two operands may be reordered without
// changing the result, mirroring internal/uop.ALUOp.Commutative.
func (op BinaryOp) Commutative() bool {
	switch op {
	case OpAdd, OpMul, OpMax:
		return true
	default:
		return false
	}
}

// ReduceOp enumerates the supported reductions.
type ReduceOp int

const (
	ReduceSum ReduceOp = iota
	ReduceMax
)

// MovementOp enumerates the movement-op kinds a Kind==KindMovement node
// may carry in its Arg, used by the fusion rules to decide legality.
type MovementOp int

const (
	MoveReshape MovementOp = iota
	MovePermute
	MoveExpand
	MovePad
	MoveShrink
	MoveStride
)

// Unary constructs an elementwise unary op node.
func Unary(op UnaryOp, src *Node) *Node {
	return newNode(KindUnary, []*Node{src}, op, src.View, src.DType, src.Device)
}

// Binary constructs an elementwise binary op node over two same-shaped
// sources (callers are responsible for expanding to a common shape
// first, exactly as the original Tensor front-end does). Commutative
// ops canonicalize their operand order through Earlier — the
// asymmetric-fusion comparator of spec §4.3 — so a+b and b+a always
// build with the same node as Srcs[0], the same way internal/uop.Graph
// sorts commutative ALU operands and internal/symbolic sorts Sum/And
// children.
func Binary(op BinaryOp, a, b *Node) *Node {
	if op.Commutative() && Earlier(b, a) == b {
		a, b = b, a
	}
	dtype := a.DType
	if op == OpCmpLt {
		dtype = Bool
	}
	return newNode(KindBinary, []*Node{a, b}, op, a.View, dtype, a.Device)
}

// Ternary constructs a where(cond, a, b) style select.
func Ternary(cond, a, b *Node) *Node {
	return newNode(KindTernary, []*Node{cond, a, b}, nil, a.View, a.DType, a.Device)
}

// Reduce constructs a reduction over axes of src.
func Reduce(op ReduceOp, src *Node, axes []int) *Node {
	newShape := reducedShape(src.View.Shape(), axes)
	tr := shape.NewFromDims(newShape...)
	return newNode(KindReduce, []*Node{src}, reduceArg{op: op, axes: axes}, tr, src.DType, src.Device)
}

type reduceArg struct {
	op   ReduceOp
	axes []int
}

// ReduceArg exposes a KindReduce node's reduced operator and axis list,
// used by internal/schedule (to tag the pre-linearized REDUCE marker)
// and internal/linearize (to drive DEFINE_ACC/RANGE/PHI lowering).
func ReduceArg(n *Node) (op ReduceOp, axes []int) {
	a := n.Arg.(reduceArg)
	return a.op, a.axes
}

func reducedShape(shapeDims []*symbolic.Node, axes []int) []*symbolic.Node {
	reduced := make(map[int]bool, len(axes))
	for _, a := range axes {
		reduced[a] = true
	}
	out := make([]*symbolic.Node, len(shapeDims))
	for i, d := range shapeDims {
		if reduced[i] {
			out[i] = symbolic.Const(1)
		} else {
			out[i] = d
		}
	}
	return out
}

// Contract builds a convolution-like contraction node (matmul and its
// generalisations): a reduce-of-mul over the contracted axes.
func Contract(a, b *Node, arg ContractArg) *Node {
	tr := shape.NewFromDims(arg.OutShape...)
	return newNode(KindContract, []*Node{a, b}, arg, tr, a.DType, a.Device)
}

// ContractArg names the contracted axes and resulting output shape; the
// scheduler/linearizer derive loop structure from it (spec §4.6 "reduce
// of mul matches the TC shape constraints").
type ContractArg struct {
	OutShape   []*symbolic.Node
	ContractK  int64 // contracted (reduced) dimension size
}

// Movement applies a movement op to src's view and returns the result,
// honoring the fusion rules of spec §4.3.
func Movement(op MovementOp, src *Node, newView *shape.Tracker) *Node {
	n := newNode(KindMovement, []*Node{src}, op, newView, src.DType, src.Device)
	return FuseMovement(n)
}

// Contiguous forces a realisation boundary ahead of src: spec §10's
// supplemented CONTIGUOUS op, used before ops that require a
// non-viewed, row-major input (e.g. a Reduce over a masked source).
func Contiguous(src *Node) *Node {
	tr := shape.NewFromDims(src.View.Shape()...)
	return newNode(KindContiguous, []*Node{src}, nil, tr, src.DType, src.Device)
}
