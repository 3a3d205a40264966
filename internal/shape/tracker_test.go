package shape

import (
	"testing"

	"tensorc/internal/symbolic"
)

func TestNewFromShapeIsContiguous(t *testing.T) {
	tr := NewFromShape(2, 3, 4)
	if !tr.IsContiguous() {
		t.Fatalf("freshly created tracker should be contiguous")
	}
	strides := tr.top().Strides
	want := []int64{12, 4, 1}
	for i, w := range want {
		if constOf(strides[i]) != w {
			t.Errorf("stride[%d] = %d, want %d", i, constOf(strides[i]), w)
		}
	}
}

func TestPermuteInverseIsIdentity(t *testing.T) {
	tr := NewFromShape(2, 3, 4)
	perm := []int{2, 0, 1}
	inv := []int{1, 2, 0}
	permuted, err := tr.Permute(perm)
	if err != nil {
		t.Fatal(err)
	}
	back, err := permuted.Permute(inv)
	if err != nil {
		t.Fatal(err)
	}
	for i := range tr.Shape() {
		if !symbolic.Equal(tr.Shape()[i], back.Shape()[i]) {
			t.Errorf("permute(perm).permute(inv) != id at axis %d", i)
		}
		if !symbolic.Equal(tr.top().Strides[i], back.top().Strides[i]) {
			t.Errorf("permute(perm).permute(inv) stride mismatch at axis %d", i)
		}
	}
}

func TestReshapeIsIdempotentWhenSame(t *testing.T) {
	tr := NewFromShape(4, 4)
	a, err := tr.Reshape(constDims([]int64{16})...)
	if err != nil {
		t.Fatal(err)
	}
	b, err := a.Reshape(constDims([]int64{4, 4})...)
	if err != nil {
		t.Fatal(err)
	}
	if !sizeEqual(tr.Shape(), b.Shape()) {
		t.Errorf("round-trip reshape changed element count")
	}
}

func TestExpandDoesNotChangeFootprint(t *testing.T) {
	tr := NewFromShape(1, 4)
	expanded, err := tr.Expand(constDims([]int64{8, 4})...)
	if err != nil {
		t.Fatal(err)
	}
	if constOf(expanded.top().Strides[0]) != 0 {
		t.Errorf("expand of a size-1 axis must set its stride to 0, got %s", expanded.top().Strides[0])
	}
	if _, err := tr.Expand(constDims([]int64{3, 5})...); err == nil {
		t.Errorf("expanding a non-1 axis to a different size must fail")
	}
}

func TestPadThenShrinkIsIdentity(t *testing.T) {
	tr := NewFromShape(3, 3)
	padded, err := tr.Pad([2]int64{1, 1}, [2]int64{1, 1})
	if err != nil {
		t.Fatal(err)
	}
	shrunk, err := padded.Shrink([2]int64{1, 4}, [2]int64{1, 4})
	if err != nil {
		t.Fatal(err)
	}
	for i := range tr.Shape() {
		if !symbolic.Equal(tr.Shape()[i], shrunk.Shape()[i]) {
			t.Errorf("pad+shrink round trip changed shape at axis %d", i)
		}
	}
}

func TestPadMasksCornersAsInvalid(t *testing.T) {
	tr := NewFromShape(2, 2)
	padded, err := tr.Pad([2]int64{1, 1}, [2]int64{1, 1})
	if err != nil {
		t.Fatal(err)
	}
	idxs := []*symbolic.Node{symbolic.Const(0), symbolic.Const(0)}
	_, valid := padded.ExprIdxs(idxs)
	if valid.Kind != symbolic.KindConst || valid.Value != 0 {
		t.Errorf("corner of padded tracker should be invalid, got %s", valid)
	}
	idxs = []*symbolic.Node{symbolic.Const(1), symbolic.Const(1)}
	_, valid = padded.ExprIdxs(idxs)
	if valid.Kind != symbolic.KindConst || valid.Value != 1 {
		t.Errorf("interior of padded tracker should be valid, got %s", valid)
	}
}

func TestExprIdxsRoundTripMatchesDirectOffset(t *testing.T) {
	tr := NewFromShape(4, 5)
	idxs := []*symbolic.Node{symbolic.Const(2), symbolic.Const(3)}
	idx, valid := tr.ExprIdxs(idxs)
	if valid.Value != 1 {
		t.Fatalf("expected valid index, got %s", valid)
	}
	want := int64(2*5 + 3)
	if idx.Value != want {
		t.Errorf("flat index = %d, want %d", idx.Value, want)
	}
}

func TestExprIdxsThroughPushedViewOverRankTwoLower(t *testing.T) {
	tr := NewFromShape(2, 3)
	permuted, err := tr.Permute([]int{1, 0})
	if err != nil {
		t.Fatal(err)
	}
	flat, err := permuted.Reshape(constDims([]int64{6})...)
	if err != nil {
		t.Fatal(err)
	}
	if len(flat.Views) != 2 {
		t.Fatalf("expected reshape of a non-contiguous top to push a second view, got %d views", len(flat.Views))
	}
	idx, valid := flat.ExprIdxs([]*symbolic.Node{symbolic.Const(4)})
	if valid.Value != 1 {
		t.Fatalf("expected valid index, got %s", valid)
	}
	if idx.Value != 2 {
		t.Errorf("flat index at position 4 of transpose-then-flatten = %d, want 2", idx.Value)
	}
}

func TestBroadcastStrideZeroNoDataMotion(t *testing.T) {
	a := NewFromShape(4, 1)
	expanded, err := a.Expand(constDims([]int64{4, 8})...)
	if err != nil {
		t.Fatal(err)
	}
	idx1, _ := expanded.ExprIdxs([]*symbolic.Node{symbolic.Const(2), symbolic.Const(0)})
	idx2, _ := expanded.ExprIdxs([]*symbolic.Node{symbolic.Const(2), symbolic.Const(7)})
	if idx1.Value != idx2.Value {
		t.Errorf("broadcast axis should read the same address regardless of its index: %d != %d", idx1.Value, idx2.Value)
	}
}
