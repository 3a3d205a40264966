// Package shape implements the ShapeTracker view algebra: a cheap,
// composable description of how a logical tensor maps onto a flat
// buffer. Shapes and strides are symbolic integers (internal/symbolic)
// so a tracker can describe buffers whose extent depends on a runtime
// variable, not just compile-time constants.
package shape

import (
	"fmt"
	"strings"

	"tensorc/internal/symbolic"
)

// MaskBound is one axis's [lo, hi) validity window.
type MaskBound struct {
	Lo, Hi *symbolic.Node
}

// View is one layer of a ShapeTracker: a shape/stride/offset/mask tuple
// describing an affine map from multi-dim indices to a flat buffer.
// shape_k=1 implies strides_k=0 by convention (see NewContiguous/Expand).
type View struct {
	Shape   []*symbolic.Node
	Strides []*symbolic.Node
	Offset  *symbolic.Node
	Mask    []MaskBound // nil when unmasked
}

func constDims(dims []int64) []*symbolic.Node {
	out := make([]*symbolic.Node, len(dims))
	for i, d := range dims {
		out[i] = symbolic.Const(d)
	}
	return out
}

// RowMajorStrides computes the contiguous (row-major) strides for shape.
func RowMajorStrides(dims []*symbolic.Node) []*symbolic.Node {
	strides := make([]*symbolic.Node, len(dims))
	acc := symbolic.Const(1)
	for i := len(dims) - 1; i >= 0; i-- {
		if isOne(dims[i]) {
			strides[i] = symbolic.Const(0)
		} else {
			strides[i] = acc
		}
		acc = symbolic.Mul(acc, constOf(dims[i]))
	}
	return strides
}

func isOne(n *symbolic.Node) bool {
	return n.Kind == symbolic.KindConst && n.Value == 1
}

// constOf extracts the constant factor of a dimension for stride
// accumulation; dims here are always compile-time constants or fully
// bounded symbolic extents whose Max equals their Min (a fixed size
// known at trace time), which is the only case RowMajorStrides is
// called with.
func constOf(n *symbolic.Node) int64 {
	if n.Kind == symbolic.KindConst {
		return n.Value
	}
	return n.Max
}

// NewContiguousView builds the single row-major view for shape.
func NewContiguousView(dims []*symbolic.Node) *View {
	return &View{
		Shape:   dims,
		Strides: RowMajorStrides(dims),
		Offset:  symbolic.Const(0),
		Mask:    nil,
	}
}

// IsContiguous reports whether v has row-major strides, zero offset,
// and no mask.
func (v *View) IsContiguous() bool {
	if v.Offset.Kind != symbolic.KindConst || v.Offset.Value != 0 {
		return false
	}
	if v.Mask != nil {
		return false
	}
	want := RowMajorStrides(v.Shape)
	for i := range v.Shape {
		if !symbolic.Equal(v.Strides[i], want[i]) {
			return false
		}
	}
	return true
}

func (v *View) String() string {
	shapeParts := make([]string, len(v.Shape))
	for i, s := range v.Shape {
		shapeParts[i] = s.String()
	}
	strideParts := make([]string, len(v.Strides))
	for i, s := range v.Strides {
		strideParts[i] = s.String()
	}
	return fmt.Sprintf("View(shape=(%s), strides=(%s), offset=%s, mask=%v)",
		strings.Join(shapeParts, ","), strings.Join(strideParts, ","), v.Offset, v.Mask != nil)
}
