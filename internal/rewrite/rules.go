package rewrite

import (
	"math"

	"tensorc/internal/uop"
)

// constVal reads the float64 literal a CONST UOp carries.
func constVal(u *uop.UOp) float64 { return u.Arg.(float64) }

// evalALU computes op's result over already-constant operand values,
// mirroring the semantics internal/render's target dialect will emit
// for the same operator.
func evalALU(op uop.ALUOp, v []float64) (float64, bool) {
	switch op {
	case uop.Add:
		return v[0] + v[1], true
	case uop.Sub:
		return v[0] - v[1], true
	case uop.Mul:
		return v[0] * v[1], true
	case uop.Div:
		if v[1] == 0 {
			return 0, false
		}
		return v[0] / v[1], true
	case uop.Max:
		if v[0] > v[1] {
			return v[0], true
		}
		return v[1], true
	case uop.Neg:
		return -v[0], true
	default:
		return 0, false
	}
}

func isConstValue(u *uop.UOp, want float64) bool {
	return u.Op == uop.CONST && constVal(u) == want
}

// affineOverRange decomposes idx as k*r + m (integer k, m), the shape
// the loop-collapse arange rule needs for the "idx ⊕ k·loop" term: idx
// is either r itself (k=1, m=0), or an ALU Add/Mul tree combining r
// with CONST operands. Anything else (a Load, a different RANGE, a
// non-affine combination) reports ok=false rather than guessing.
func affineOverRange(idx, r *uop.UOp) (k, m int64, ok bool) {
	if idx == r {
		return 1, 0, true
	}
	if idx.Op != uop.ALU {
		return 0, 0, false
	}
	switch idx.Arg.(uop.ALUOp) {
	case uop.Add:
		if ik, im, iok := affineOverRange(idx.Src[0], r); iok && idx.Src[1].Op == uop.CONST {
			return ik, im + int64(constVal(idx.Src[1])), true
		}
		if ik, im, iok := affineOverRange(idx.Src[1], r); iok && idx.Src[0].Op == uop.CONST {
			return ik, im + int64(constVal(idx.Src[0])), true
		}
	case uop.Mul:
		if idx.Src[0] == r && idx.Src[1].Op == uop.CONST {
			return int64(constVal(idx.Src[1])), 0, true
		}
		if idx.Src[1] == r && idx.Src[0].Op == uop.CONST {
			return int64(constVal(idx.Src[0])), 0, true
		}
	}
	return 0, 0, false
}

// DefaultRuleOrder names, in the order they are appended to
// DefaultPatternMatcher, every rule the linearizer's rewrite stage
// applies. The non-confluent-rule-ordering Open Question spec.md §9
// raises is resolved by this single normative list: later rules only
// ever see output already closed under every earlier rule.
var DefaultRuleOrder = []string{
	"const-fold-binary",
	"add-zero",
	"sub-self",
	"sub-zero",
	"mul-zero",
	"mul-one",
	"div-one",
	"mod-one",
	"neg-neg",
	"where-const-cond",
	"div-self-cancel",
	"masked-load-zero",
	"masked-store-elide",
	"gep-of-vectorize",
	"expand-single-lane",
	"trivial-range-const",
	"loop-collapse-arange-lt",
	"contract-of-expand-sum",
}

// DefaultPatternMatcher builds the PatternMatcher tensorc's rewrite
// stage uses, with rules appended in DefaultRuleOrder.
func DefaultPatternMatcher() *PatternMatcher {
	m := NewPatternMatcher()
	for _, name := range DefaultRuleOrder {
		m.Add(rule(name))
	}
	return m
}

func rule(name string) Rule {
	switch name {

	// --- algebraic folding ---

	case "const-fold-binary":
		return Rule{Name: name, Pattern: &Pattern{Op: uop.ALU, MatchOp: true, Src: []*Pattern{CVar("a"), CVar("b")}},
			Builder: func(g *uop.Graph, u *uop.UOp, b Bindings) (*uop.UOp, bool) {
				op := u.Arg.(uop.ALUOp)
				v, ok := evalALU(op, []float64{constVal(b["a"]), constVal(b["b"])})
				if !ok {
					return nil, false
				}
				return g.Const(u.DType, v), true
			}}

	case "add-zero":
		return Rule{Name: name, Pattern: AluOp(uop.Add, Var("x"), CVar("c")),
			Builder: func(g *uop.Graph, u *uop.UOp, b Bindings) (*uop.UOp, bool) {
				if !isConstValue(b["c"], 0) {
					return nil, false
				}
				return b["x"], true
			}}

	case "sub-self":
		return Rule{Name: name, Pattern: Op(uop.ALU, Var("x"), Var("x")),
			Builder: func(g *uop.Graph, u *uop.UOp, b Bindings) (*uop.UOp, bool) {
				if u.Arg.(uop.ALUOp) != uop.Sub {
					return nil, false
				}
				return g.Const(u.DType, 0), true
			}}

	case "sub-zero":
		return Rule{Name: name, Pattern: AluOp(uop.Sub, Var("x"), CVar("c")),
			Builder: func(g *uop.Graph, u *uop.UOp, b Bindings) (*uop.UOp, bool) {
				if !isConstValue(b["c"], 0) {
					return nil, false
				}
				return b["x"], true
			}}

	case "mul-zero":
		return Rule{Name: name, Pattern: AluOp(uop.Mul, Var("x"), CVar("c")),
			Builder: func(g *uop.Graph, u *uop.UOp, b Bindings) (*uop.UOp, bool) {
				if !isConstValue(b["c"], 0) {
					return nil, false
				}
				return g.Const(u.DType, 0), true
			}}

	case "mul-one":
		return Rule{Name: name, Pattern: AluOp(uop.Mul, Var("x"), CVar("c")),
			Builder: func(g *uop.Graph, u *uop.UOp, b Bindings) (*uop.UOp, bool) {
				if !isConstValue(b["c"], 1) {
					return nil, false
				}
				return b["x"], true
			}}

	// --- strength reduction ---

	case "div-one":
		return Rule{Name: name, Pattern: AluOp(uop.Div, Var("x"), CVar("c")),
			Builder: func(g *uop.Graph, u *uop.UOp, b Bindings) (*uop.UOp, bool) {
				if !isConstValue(b["c"], 1) {
					return nil, false
				}
				return b["x"], true
			}}

	case "mod-one":
		return Rule{Name: name, Pattern: AluOp(uop.Mod, Any(), CVar("c")),
			Builder: func(g *uop.Graph, u *uop.UOp, b Bindings) (*uop.UOp, bool) {
				if !isConstValue(b["c"], 1) {
					return nil, false
				}
				return g.Const(u.DType, 0), true
			}}

	case "neg-neg":
		return Rule{Name: name, Pattern: Op(uop.ALU, Op(uop.ALU, Var("x"))),
			Builder: func(g *uop.Graph, u *uop.UOp, b Bindings) (*uop.UOp, bool) {
				if u.Arg.(uop.ALUOp) != uop.Neg || u.Src[0].Arg.(uop.ALUOp) != uop.Neg {
					return nil, false
				}
				return b["x"], true
			}}

	case "where-const-cond":
		return Rule{Name: name, Pattern: AluOp(uop.Where, CVar("cond"), Var("t"), Var("f")),
			Builder: func(g *uop.Graph, u *uop.UOp, b Bindings) (*uop.UOp, bool) {
				if constVal(b["cond"]) != 0 {
					return b["t"], true
				}
				return b["f"], true
			}}

	case "div-self-cancel":
		return Rule{Name: name, Pattern: Op(uop.ALU, Var("x"), Var("x")),
			Builder: func(g *uop.Graph, u *uop.UOp, b Bindings) (*uop.UOp, bool) {
				if u.Arg.(uop.ALUOp) != uop.Div {
					return nil, false
				}
				return g.Const(u.DType, 1), true
			}}

	// --- load/store folding ---

	case "masked-load-zero":
		return Rule{Name: name, Pattern: Op(uop.LOAD, Any(), Any(), CVar("valid")),
			Builder: func(g *uop.Graph, u *uop.UOp, b Bindings) (*uop.UOp, bool) {
				if !isConstValue(b["valid"], 0) {
					return nil, false
				}
				return g.Const(u.DType, 0), true
			}}

	case "masked-store-elide":
		return Rule{Name: name, Pattern: Op(uop.STORE, Any(), Any(), Any(), CVar("valid")),
			Builder: func(g *uop.Graph, u *uop.UOp, b Bindings) (*uop.UOp, bool) {
				if !isConstValue(b["valid"], 0) {
					return nil, false
				}
				return g.Noop(), true
			}}

	// --- vector folding ---

	case "gep-of-vectorize":
		return Rule{Name: name, Pattern: Op(uop.GEP, Op(uop.VECTORIZE)),
			Builder: func(g *uop.Graph, u *uop.UOp, b Bindings) (*uop.UOp, bool) {
				vec := u.Src[0]
				i := u.Arg.(int)
				if i < 0 || i >= len(vec.Src) {
					return nil, false
				}
				return vec.Src[i], true
			}}

	case "expand-single-lane":
		return Rule{Name: name, Pattern: Op(uop.EXPAND),
			Builder: func(g *uop.Graph, u *uop.UOp, b Bindings) (*uop.UOp, bool) {
				if len(u.Src) != 1 {
					return nil, false
				}
				return u.Src[0], true
			}}

	// --- trivial loop bounds ---

	case "trivial-range-const":
		return Rule{Name: name, Pattern: Op(uop.RANGE),
			Builder: func(g *uop.Graph, u *uop.UOp, b Bindings) (*uop.UOp, bool) {
				min, max, _, _ := uop.RangeArg(u)
				if max-min != 1 {
					return nil, false
				}
				return g.Const(uop.Int32, float64(min)), true
			}}

	// --- loop-collapse (arange pattern) ---

	// loop-collapse-arange-lt implements spec.md §4.7's "a reduce whose
	// body compares idx ⊕ k·loop < c against a constant" rule for the
	// sum-of-booleans shape: PHI(acc, acc + (k*loop+m < c)) over a
	// single-axis sum reduction collapses to the closed-form count of
	// loop values in [min,max) satisfying the inequality, eliminating
	// the reduce loop entirely. The non-linear "acc" binding (reused in
	// both PHI operand positions) requires the matcher to find the
	// identical DEFINE_ACC node feeding both the PHI and the ALU, which
	// is exactly the shape internal/linearize's lowerReduce builds for
	// ReduceSum. Only a positive integer stride k is handled; anything
	// else (k<=0, idx not affine in the loop, more than one reduce
	// axis) declines instead of guessing.
	case "loop-collapse-arange-lt":
		return Rule{Name: name, Pattern: Op(uop.PHI, Var("acc"), AluOp(uop.Add, Var("acc"), AluOp(uop.Lt, Var("idx"), CVar("c")))),
			Builder: func(g *uop.Graph, u *uop.UOp, b Bindings) (*uop.UOp, bool) {
				acc := b["acc"]
				if acc.Op != uop.DEFINE_ACC || len(acc.Src) != 2 {
					return nil, false
				}
				init := acc.Src[0]
				if init.Op != uop.CONST || constVal(init) != 0 {
					return nil, false
				}
				r := acc.Src[1]
				if r.Op != uop.RANGE {
					return nil, false
				}
				min, max, _, isReduce := uop.RangeArg(r)
				if !isReduce {
					return nil, false
				}
				k, m, ok := affineOverRange(b["idx"], r)
				if !ok || k <= 0 {
					return nil, false
				}
				c := int64(constVal(b["c"]))
				bound := float64(c-m) / float64(k)
				upper := int64(math.Ceil(bound))
				if upper > max {
					upper = max
				}
				if upper < min {
					upper = min
				}
				return g.Const(u.DType, float64(upper-min)), true
			}}

	// --- reduce/expand re-association ---

	case "contract-of-expand-sum":
		return Rule{Name: name, Pattern: Op(uop.CONTRACT, Op(uop.EXPAND)),
			Builder: func(g *uop.Graph, u *uop.UOp, b Bindings) (*uop.UOp, bool) {
				lanes := u.Src[0].Src
				if len(lanes) == 0 {
					return nil, false
				}
				acc := lanes[0]
				for _, l := range lanes[1:] {
					acc = g.Alu(uop.Add, u.DType, acc, l)
				}
				return acc, true
			}}

	default:
		panic("rewrite: unknown rule name " + name)
	}
}
