// Package symbolic implements a small expression language over bounded
// integer variables. Every node carries derivable [min, max] bounds and
// every constructor canonicalises before returning, so two algebraically
// equal expressions simplify to structurally equal nodes.
package symbolic

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
)

// Kind tags the closed set of node shapes in the expression language.
type Kind int

const (
	KindConst Kind = iota
	KindVar
	KindSum
	KindMul
	KindDiv
	KindMod
	KindLt
	KindGe
	KindAnd
)

func (k Kind) String() string {
	switch k {
	case KindConst:
		return "Const"
	case KindVar:
		return "Var"
	case KindSum:
		return "Sum"
	case KindMul:
		return "Mul"
	case KindDiv:
		return "Div"
	case KindMod:
		return "Mod"
	case KindLt:
		return "Lt"
	case KindGe:
		return "Ge"
	case KindAnd:
		return "And"
	default:
		return "Unknown"
	}
}

// Node is a canonicalised symbolic integer expression. It is immutable
// once constructed; every operation returns a new node.
type Node struct {
	Kind Kind

	// Const
	Value int64

	// Var
	Name string

	// Sum / And: flat child list (Sum never nests Sum; And never nests And)
	Children []*Node

	// Mul / Div / Mod / Lt / Ge: single operand plus an integer constant
	Operand *Node
	Const   int64

	Min, Max int64
}

func (n *Node) String() string {
	switch n.Kind {
	case KindConst:
		return fmt.Sprintf("%d", n.Value)
	case KindVar:
		return n.Name
	case KindSum:
		parts := make([]string, len(n.Children))
		for i, c := range n.Children {
			parts[i] = c.String()
		}
		return "(" + strings.Join(parts, "+") + ")"
	case KindMul:
		return fmt.Sprintf("(%s*%d)", n.Operand.String(), n.Const)
	case KindDiv:
		return fmt.Sprintf("(%s//%d)", n.Operand.String(), n.Const)
	case KindMod:
		return fmt.Sprintf("(%s%%%d)", n.Operand.String(), n.Const)
	case KindLt:
		return fmt.Sprintf("(%s<%d)", n.Operand.String(), n.Const)
	case KindGe:
		return fmt.Sprintf("(%s>=%d)", n.Operand.String(), n.Const)
	case KindAnd:
		parts := make([]string, len(n.Children))
		for i, c := range n.Children {
			parts[i] = c.String()
		}
		return "(" + strings.Join(parts, " and ") + ")"
	default:
		return "?"
	}
}

// Equal reports structural equality; canonicalisation guarantees this
// coincides with algebraic equality for the documented rewrite set.
func Equal(a, b *Node) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindConst:
		return a.Value == b.Value
	case KindVar:
		return a.Name == b.Name && a.Min == b.Min && a.Max == b.Max
	case KindSum, KindAnd:
		if len(a.Children) != len(b.Children) {
			return false
		}
		for i := range a.Children {
			if !Equal(a.Children[i], b.Children[i]) {
				return false
			}
		}
		return true
	case KindMul, KindDiv, KindMod, KindLt, KindGe:
		return a.Const == b.Const && Equal(a.Operand, b.Operand)
	default:
		return false
	}
}

// Const constructs an integer literal.
func Const(v int64) *Node {
	return &Node{Kind: KindConst, Value: v, Min: v, Max: v}
}

// Var constructs a bounded variable; min and max are both inclusive.
func Var(name string, min, max int64) *Node {
	if max < min {
		panic(fmt.Sprintf("symbolic: Var %q has max %d < min %d", name, max, min))
	}
	return &Node{Kind: KindVar, Name: name, Min: min, Max: max}
}

func isConst(n *Node) bool { return n.Kind == KindConst }

func sortChildren(children []*Node) {
	slices.SortFunc(children, func(a, b *Node) int {
		return strings.Compare(a.String(), b.String())
	})
}
