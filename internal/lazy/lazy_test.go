package lazy

import (
	"testing"

	"tensorc/internal/symbolic"
)

func constBuf(vals []float32, dims ...int64) *Node {
	dimNodes := make([]*symbolic.Node, len(dims))
	for i, d := range dims {
		dimNodes[i] = symbolic.Const(d)
	}
	b := NewBuffer("cpu", Float32, dimNodes...)
	b.Data = vals
	return FromBuffer(b)
}

func TestElementwiseSharesSourceWhenMultiUsed(t *testing.T) {
	a := constBuf([]float32{1, 2, 3, 4}, 4)
	b := Unary(OpExp, a)
	c := Unary(OpLog, a)
	if b.Srcs[0] != a || c.Srcs[0] != a {
		t.Fatalf("elementwise ops over the same buffer should share the source node")
	}
	if a.RefCount != 2 {
		t.Errorf("expected refcount 2 on shared source, got %d", a.RefCount)
	}
}

func TestMovementBecomesIdentity(t *testing.T) {
	a := constBuf([]float32{1, 2, 3, 4}, 4)
	tr, err := a.View.Reshape(a.View.Shape()...)
	if err != nil {
		t.Fatal(err)
	}
	got := Movement(MoveReshape, a, tr)
	if got != a {
		t.Errorf("reshape to the same contiguous shape should collapse to identity, got a distinct node")
	}
}

func TestMovementPushesIntoElementwiseChildren(t *testing.T) {
	a := constBuf([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	b := constBuf([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	sum := Binary(OpAdd, a, b)
	permTracker, err := sum.View.Permute([]int{1, 0})
	if err != nil {
		t.Fatal(err)
	}
	moved := Movement(MovePermute, sum, permTracker)
	if moved.Kind != KindBinary {
		t.Errorf("movement over an unrealised elementwise op should push into its children, got kind %s", moved.Kind)
	}
	for _, src := range moved.Srcs {
		if src.Kind != KindMovement {
			t.Errorf("expected pushed-down Movement children, got %s", src.Kind)
		}
	}
}

func TestMovementDoesNotPushIntoRealized(t *testing.T) {
	a := constBuf([]float32{1, 2, 3, 4}, 4)
	reshaped, err := a.View.Reshape(symbolic.Const(2), symbolic.Const(2))
	if err != nil {
		t.Fatal(err)
	}
	moved := Movement(MoveReshape, a, reshaped)
	if moved.Kind != KindMovement {
		t.Errorf("movement over a realised buffer must not be pushed further, got %s", moved.Kind)
	}
}

func TestBinaryCanonicalizesCommutativeOperandOrder(t *testing.T) {
	a := constBuf([]float32{1, 2, 3, 4}, 4)
	fa := Unary(OpExp, a)

	forward := Binary(OpAdd, a, fa)
	backward := Binary(OpAdd, fa, a)

	if forward.Srcs[0] != a || forward.Srcs[1] != fa {
		t.Errorf("expected ancestor a as Srcs[0], got %v, %v", forward.Srcs[0], forward.Srcs[1])
	}
	if backward.Srcs[0] != a || backward.Srcs[1] != fa {
		t.Errorf("a+f(a) and f(a)+a should canonicalize to the same operand order, got %v, %v", backward.Srcs[0], backward.Srcs[1])
	}
}

func TestBinaryNonCommutativeOrderIsPreserved(t *testing.T) {
	a := constBuf([]float32{1, 2, 3, 4}, 4)
	b := constBuf([]float32{5, 6, 7, 8}, 4)
	sub := Binary(OpSub, a, b)
	if sub.Srcs[0] != a || sub.Srcs[1] != b {
		t.Errorf("non-commutative op must preserve operand order, got %v, %v", sub.Srcs[0], sub.Srcs[1])
	}
}

func TestEarlierIsDeterministic(t *testing.T) {
	a := constBuf([]float32{1}, 1)
	b := constBuf([]float32{2}, 1)
	first := Earlier(a, b)
	second := Earlier(a, b)
	if first != second {
		t.Errorf("Earlier must be deterministic across repeated calls")
	}
}

func TestReduceShapeCollapsesAxis(t *testing.T) {
	a := constBuf([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	r := Reduce(ReduceSum, a, []int{1})
	shapeDims := r.View.Shape()
	if len(shapeDims) != 2 {
		t.Fatalf("expected rank-2 reduced shape, got %d", len(shapeDims))
	}
	if shapeDims[1].Value != 1 {
		t.Errorf("reduced axis should collapse to size 1, got %d", shapeDims[1].Value)
	}
}
