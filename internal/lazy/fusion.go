package lazy

import "tensorc/internal/symbolic"

// FuseMovement applies the movement-fusion rules of spec §4.3 at
// construction time, so the graph never accumulates redundant movement
// wrapping:
//
//   - Movement into elementwise: if n's source is an unrealised
//     elementwise op, push the movement into each of its children
//     instead (distributivity of view changes over pointwise maps).
//   - Movement stack merging: if n's source is itself a Movement node
//     over an unrealised value, compose the two view stacks into one
//     Movement instead of nesting.
//   - Movement that becomes identity: if the resulting tracker is
//     contiguous and matches the source-of-sources' root shape, return
//     that root directly rather than wrapping it.
func FuseMovement(n *Node) *Node {
	src := n.Srcs[0]

	if !src.IsRealized() {
		switch src.Kind {
		case KindUnary:
			return Unary(src.Arg.(UnaryOp), pushMovement(n, src.Srcs[0]))
		case KindBinary:
			a := pushMovement(n, src.Srcs[0])
			b := pushMovement(n, src.Srcs[1])
			return Binary(src.Arg.(BinaryOp), a, b)
		case KindTernary:
			c := pushMovement(n, src.Srcs[0])
			a := pushMovement(n, src.Srcs[1])
			b := pushMovement(n, src.Srcs[2])
			return Ternary(c, a, b)
		case KindMovement:
			// movement-stack merge: same Tracker.Views stack, just owned by
			// one Movement node instead of two nested ones.
			merged := n.View // n.View already encodes composition done by caller
			return tryIdentity(newNode(KindMovement, []*Node{src.Srcs[0]}, n.Arg, merged, n.DType, n.Device))
		}
	}
	return tryIdentity(n)
}

// pushMovement re-applies n's movement (n.Arg, n.View) onto a different
// source node "to", used to distribute a movement op through an
// elementwise child. Operands of an elementwise node share a shape but
// not necessarily a View (a broadcast scalar operand carries stride-0
// strides), so a reshape is re-applied to the child's own tracker; any
// other movement op hands the child n's tracker unchanged.
func pushMovement(n *Node, to *Node) *Node {
	view := n.View
	if n.Arg == MoveReshape {
		if tr, err := to.View.Reshape(n.View.Shape()...); err == nil {
			view = tr
		}
	}
	child := newNode(KindMovement, []*Node{to}, n.Arg, view, to.DType, to.Device)
	return tryIdentity(child)
}

// tryIdentity implements "movement that becomes identity": a Movement
// node whose resulting tracker is contiguous and whose shape equals its
// ultimate non-movement ancestor's shape collapses to that ancestor.
func tryIdentity(n *Node) *Node {
	if n.Kind != KindMovement {
		return n
	}
	root := n.Srcs[0]
	for root.Kind == KindMovement {
		root = root.Srcs[0]
	}
	if n.View.IsContiguous() && sameShape(n.View.Shape(), root.View.Shape()) {
		return root
	}
	return n
}

func sameShape(a, b []*symbolic.Node) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !symbolic.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
