// Package rewrite implements the algebraic pattern rewriter (spec.md
// §4.7): a small tree-matching interpreter over internal/uop graphs,
// plus a library of rule categories applied to a fixed point. Grounded
// on the teacher's visitor-dispatch idiom (parser.Expr.Accept(visitor))
// for the tree walker, and on the wider pack's
// ir.OptimizationPipeline/OptimizationPass shape (kanso's IR
// optimization passes) for "ordered list of named transforms applied
// until no change", generalized here from basic-block instruction
// lists to a hash-consed DAG.
package rewrite

import "tensorc/internal/uop"

// Pattern is one node of a match tree. A zero-value field means "don't
// constrain on this dimension" except where a wildcard name is set:
//
//   - Var binds the matched node (any op) under that name.
//   - CVar binds the matched node under that name, but only matches a
//     CONST UOp (spec.md §4.7's "CVar(name) matches a CONST").
//   - Neither set: Any() if Src/Op/Alu are also unconstrained, or a
//     structural constraint (Op/Alu/Src) otherwise.
type Pattern struct {
	Var  string
	CVar string

	Op      uop.Kind
	MatchOp bool

	Alu      uop.ALUOp
	MatchAlu bool

	Src []*Pattern
}

// Var builds a wildcard that matches anything and binds it.
func Var(name string) *Pattern { return &Pattern{Var: name} }

// CVar builds a wildcard that matches only a CONST node and binds it.
func CVar(name string) *Pattern { return &Pattern{CVar: name} }

// Any builds a wildcard that matches anything without binding.
func Any() *Pattern { return &Pattern{} }

// Op builds a structural pattern constraining a node's Kind and,
// positionally, its sources.
func Op(op uop.Kind, src ...*Pattern) *Pattern {
	return &Pattern{Op: op, MatchOp: true, Src: src}
}

// AluOp builds a structural pattern constraining a node to be an ALU
// UOp carrying the given operator, matched positionally by default
// (spec.md §4.7); the matcher separately tries the swapped operand
// order whenever op is commutative.
func AluOp(op uop.ALUOp, src ...*Pattern) *Pattern {
	return &Pattern{Op: uop.ALU, MatchOp: true, Alu: op, MatchAlu: true, Src: src}
}

// Bindings maps wildcard names to the UOp each one bound to.
type Bindings map[string]*uop.UOp

func (b Bindings) clone() Bindings {
	out := make(Bindings, len(b)+1)
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Match attempts to match p against u, returning the extended binding
// set on success. A name reused within one pattern (non-linear
// pattern) must bind to the identical UOp both times — hash-consing
// makes that an ordinary pointer comparison.
func Match(p *Pattern, u *uop.UOp, b Bindings) (Bindings, bool) {
	if p.CVar != "" {
		if u.Op != uop.CONST {
			return nil, false
		}
		if existing, ok := b[p.CVar]; ok {
			return b, existing == u
		}
		out := b.clone()
		out[p.CVar] = u
		return out, true
	}
	if p.Var != "" {
		if existing, ok := b[p.Var]; ok {
			return b, existing == u
		}
		out := b.clone()
		out[p.Var] = u
		return out, true
	}
	if p.MatchOp && p.Op != u.Op {
		return nil, false
	}
	if p.MatchAlu {
		op, ok := u.Arg.(uop.ALUOp)
		if !ok || op != p.Alu {
			return nil, false
		}
	}
	if p.Src == nil {
		return b, true
	}
	if len(p.Src) != len(u.Src) {
		return nil, false
	}
	if p.MatchAlu && p.Alu.Commutative() && len(p.Src) == 2 {
		if out, ok := matchList(p.Src, u.Src, b); ok {
			return out, true
		}
		return matchList(p.Src, []*uop.UOp{u.Src[1], u.Src[0]}, b)
	}
	return matchList(p.Src, u.Src, b)
}

func matchList(pats []*Pattern, nodes []*uop.UOp, b Bindings) (Bindings, bool) {
	cur := b
	for i, p := range pats {
		out, ok := Match(p, nodes[i], cur)
		if !ok {
			return nil, false
		}
		cur = out
	}
	return cur, true
}
