package shape

import (
	"fmt"

	"tensorc/internal/symbolic"
)

// Tracker is a non-empty stack of Views: the newest view is the currently
// observable shape, older views compose underneath it. Trackers are
// immutable; every operation returns a new Tracker. A Tracker is never
// destroyed independently — it is owned by whatever lazy node or buffer
// holds it.
type Tracker struct {
	Views []*View
}

// NewFromShape creates a tracker from a shape (a single contiguous view).
func NewFromShape(dims ...int64) *Tracker {
	return &Tracker{Views: []*View{NewContiguousView(constDims(dims))}}
}

// NewFromDims is like NewFromShape but accepts symbolic dimensions.
func NewFromDims(dims ...*symbolic.Node) *Tracker {
	return &Tracker{Views: []*View{NewContiguousView(dims)}}
}

func (t *Tracker) top() *View { return t.Views[len(t.Views)-1] }

// Shape returns the currently observable shape (the top view's shape).
func (t *Tracker) Shape() []*symbolic.Node { return t.top().Shape }

// IsContiguous reports whether t has exactly one view and it is
// row-major with zero offset and no mask.
func (t *Tracker) IsContiguous() bool {
	return len(t.Views) == 1 && t.top().IsContiguous()
}

func withTop(t *Tracker, v *View) *Tracker {
	views := make([]*View, len(t.Views))
	copy(views, t.Views)
	views[len(views)-1] = v
	return &Tracker{Views: views}
}

func pushView(t *Tracker, v *View) *Tracker {
	views := make([]*View, len(t.Views)+1)
	copy(views, t.Views)
	views[len(t.Views)] = v
	return &Tracker{Views: views}
}

// Reshape returns a tracker observing new_shape. When the reshape is
// expressible without data motion (the top view is contiguous, or the
// new shape merely splits/merges adjacent unmasked unit-stride axes) it
// mutates only the top view; otherwise it pushes a new contiguous view
// above, leaving the older views to describe the physical layout.
func (t *Tracker) Reshape(newShape ...*symbolic.Node) (*Tracker, error) {
	if !sizeEqual(t.Shape(), newShape) {
		return nil, fmt.Errorf("shape: reshape %s -> %s changes element count", dimsStr(t.Shape()), dimsStr(newShape))
	}
	top := t.top()
	nv := NewContiguousView(newShape)
	if top.IsContiguous() {
		return withTop(t, nv), nil
	}
	return pushView(t, nv), nil
}

// Permute returns a tracker with the top view's shape and strides
// permuted by perm (perm[i] is the source axis for new axis i).
func (t *Tracker) Permute(perm []int) (*Tracker, error) {
	top := t.top()
	if len(perm) != len(top.Shape) {
		return nil, fmt.Errorf("shape: permute length %d does not match rank %d", len(perm), len(top.Shape))
	}
	seen := make([]bool, len(perm))
	newShape := make([]*symbolic.Node, len(perm))
	newStrides := make([]*symbolic.Node, len(perm))
	var newMask []MaskBound
	if top.Mask != nil {
		newMask = make([]MaskBound, len(perm))
	}
	for i, p := range perm {
		if p < 0 || p >= len(top.Shape) || seen[p] {
			return nil, fmt.Errorf("shape: invalid permutation %v", perm)
		}
		seen[p] = true
		newShape[i] = top.Shape[p]
		newStrides[i] = top.Strides[p]
		if top.Mask != nil {
			newMask[i] = top.Mask[p]
		}
	}
	nv := &View{Shape: newShape, Strides: newStrides, Offset: top.Offset, Mask: newMask}
	return withTop(t, nv), nil
}

// Expand broadcasts size-1 axes to newShape by zeroing their stride; it
// is an error to expand an axis whose current size is not 1 and not
// already equal to the requested size.
func (t *Tracker) Expand(newShape ...*symbolic.Node) (*Tracker, error) {
	top := t.top()
	if len(newShape) != len(top.Shape) {
		return nil, fmt.Errorf("shape: expand rank mismatch")
	}
	shapeOut := make([]*symbolic.Node, len(newShape))
	strideOut := make([]*symbolic.Node, len(newShape))
	for i, ns := range newShape {
		cur := top.Shape[i]
		if symbolic.Equal(cur, ns) {
			shapeOut[i] = ns
			strideOut[i] = top.Strides[i]
			continue
		}
		if !isOne(cur) {
			return nil, fmt.Errorf("shape: cannot expand non-1 axis %d (%s -> %s)", i, cur, ns)
		}
		shapeOut[i] = ns
		strideOut[i] = symbolic.Const(0)
	}
	nv := &View{Shape: shapeOut, Strides: strideOut, Offset: top.Offset, Mask: top.Mask}
	return withTop(t, nv), nil
}

// Pad adds or updates the mask on the top view; elements outside the
// mask logically read as 0. padWidths is (before, after) per axis.
func (t *Tracker) Pad(padWidths ...[2]int64) (*Tracker, error) {
	top := t.top()
	if len(padWidths) != len(top.Shape) {
		return nil, fmt.Errorf("shape: pad rank mismatch")
	}
	newShape := make([]*symbolic.Node, len(top.Shape))
	newOffset := top.Offset
	newMask := make([]MaskBound, len(top.Shape))
	for i, pw := range padWidths {
		before, after := pw[0], pw[1]
		size := constOf(top.Shape[i])
		newShape[i] = symbolic.Const(before + size + after)
		lo, hi := int64(0), size
		if top.Mask != nil {
			lo = constOf(top.Mask[i].Lo)
			hi = constOf(top.Mask[i].Hi)
		}
		newMask[i] = MaskBound{Lo: symbolic.Const(before + lo), Hi: symbolic.Const(before + hi)}
		if before != 0 {
			newOffset = symbolic.Sub(newOffset, symbolic.Mul(top.Strides[i], before))
		}
	}
	nv := &View{Shape: newShape, Strides: top.Strides, Offset: newOffset, Mask: newMask}
	return withTop(t, nv), nil
}

// Shrink narrows the top view to bounds (one [lo,hi) pair per axis),
// shifting the offset and shape without moving any data.
func (t *Tracker) Shrink(bounds ...[2]int64) (*Tracker, error) {
	top := t.top()
	if len(bounds) != len(top.Shape) {
		return nil, fmt.Errorf("shape: shrink rank mismatch")
	}
	newShape := make([]*symbolic.Node, len(top.Shape))
	newOffset := top.Offset
	var newMask []MaskBound
	if top.Mask != nil {
		newMask = make([]MaskBound, len(top.Shape))
	}
	for i, b := range bounds {
		lo, hi := b[0], b[1]
		if lo < 0 || hi < lo || hi > constOf(top.Shape[i]) {
			return nil, fmt.Errorf("shape: shrink bounds [%d,%d) out of range for axis %d (size %d)", lo, hi, i, constOf(top.Shape[i]))
		}
		newShape[i] = symbolic.Const(hi - lo)
		newOffset = symbolic.Add(newOffset, symbolic.Mul(top.Strides[i], lo))
		if top.Mask != nil {
			maskLo := constOf(top.Mask[i].Lo) - lo
			maskHi := constOf(top.Mask[i].Hi) - lo
			newMask[i] = MaskBound{Lo: symbolic.Const(clamp(maskLo, 0, hi-lo)), Hi: symbolic.Const(clamp(maskHi, 0, hi-lo))}
		}
	}
	nv := &View{Shape: newShape, Strides: top.Strides, Offset: newOffset, Mask: newMask}
	return withTop(t, nv), nil
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Stride multiplies each axis's stride by steps[i]; a negative step
// reverses that axis and shifts the offset to the other end.
func (t *Tracker) Stride(steps ...int64) (*Tracker, error) {
	top := t.top()
	if len(steps) != len(top.Shape) {
		return nil, fmt.Errorf("shape: stride rank mismatch")
	}
	newStrides := make([]*symbolic.Node, len(top.Shape))
	newOffset := top.Offset
	for i, s := range steps {
		if s == 0 {
			return nil, fmt.Errorf("shape: stride step 0 is invalid on axis %d", i)
		}
		newStrides[i] = symbolic.Mul(top.Strides[i], s)
		if s < 0 {
			size := constOf(top.Shape[i])
			newOffset = symbolic.Add(newOffset, symbolic.Mul(top.Strides[i], size-1))
		}
	}
	nv := &View{Shape: top.Shape, Strides: newStrides, Offset: newOffset, Mask: top.Mask}
	return withTop(t, nv), nil
}

// ExprIdxs computes the symbolic flat index and validity predicate for
// per-axis index expressions idxs, composing every view in the stack
// from newest to oldest (the newest view's indices feed the next view's
// offset computation down the stack).
func (t *Tracker) ExprIdxs(idxs []*symbolic.Node) (idx *symbolic.Node, valid *symbolic.Node) {
	idx = symbolic.Const(0)
	var validTerms []*symbolic.Node
	cur := idxs
	for i := len(t.Views) - 1; i >= 0; i-- {
		v := t.Views[i]
		sum := v.Offset
		for k, ix := range cur {
			sum = symbolic.Add(sum, symbolic.Mul(ix, coeffOfStride(v.Strides[k])))
		}
		if v.Mask != nil {
			for k, m := range v.Mask {
				validTerms = append(validTerms, symbolic.Ge(cur[k], constOf(m.Lo)))
				validTerms = append(validTerms, symbolic.Lt(cur[k], constOf(m.Hi)))
			}
		}
		if i == 0 {
			idx = sum
		} else {
			// sum is the flat, row-major position this view's own indices
			// address into the view beneath it (views are only ever
			// pushed by Reshape, which always pushes a same-size
			// contiguous view); decompose it back into that view's
			// per-axis indices via div/mod before descending into it.
			cur = decomposeFlatIndex(sum, t.Views[i-1].Shape)
		}
	}
	if len(validTerms) == 0 {
		valid = symbolic.Const(1)
	} else {
		valid = symbolic.And(validTerms...)
	}
	return idx, valid
}

// decomposeFlatIndex splits a flat, row-major position into one index
// expression per axis of shape, outermost axis first.
func decomposeFlatIndex(flat *symbolic.Node, shape []*symbolic.Node) []*symbolic.Node {
	out := make([]*symbolic.Node, len(shape))
	rem := flat
	for axis := len(shape) - 1; axis >= 0; axis-- {
		if axis == 0 {
			out[axis] = rem
			break
		}
		size := constOf(shape[axis])
		out[axis] = symbolic.Mod(rem, size)
		rem = symbolic.FloorDiv(rem, size)
	}
	return out
}

func coeffOfStride(s *symbolic.Node) int64 {
	if s.Kind == symbolic.KindConst {
		return s.Value
	}
	return s.Max
}

// Simplify merges adjacent views when composition collapses
// algebraically: if the top view is a plain contiguous reshape of the
// view beneath it with no mask on either, the two collapse to one.
func (t *Tracker) Simplify() *Tracker {
	if len(t.Views) < 2 {
		return t
	}
	views := append([]*View{}, t.Views...)
	for len(views) >= 2 {
		topV := views[len(views)-1]
		under := views[len(views)-2]
		if topV.IsContiguous() && under.Mask == nil {
			merged := &View{Shape: topV.Shape, Strides: RowMajorStrides(topV.Shape), Offset: under.Offset, Mask: nil}
			views = append(views[:len(views)-2], merged)
			continue
		}
		break
	}
	return &Tracker{Views: views}
}

func sizeEqual(a, b []*symbolic.Node) bool {
	sa, sb := int64(1), int64(1)
	for _, n := range a {
		sa *= constOf(n)
	}
	for _, n := range b {
		sb *= constOf(n)
	}
	return sa == sb
}

func dimsStr(dims []*symbolic.Node) string {
	s := ""
	for i, d := range dims {
		if i > 0 {
			s += ","
		}
		s += d.String()
	}
	return "(" + s + ")"
}
