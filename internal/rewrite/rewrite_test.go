package rewrite

import (
	"testing"

	"tensorc/internal/uop"
)

func TestConstFoldBinaryCollapsesArithmetic(t *testing.T) {
	g := uop.NewGraph()
	a := g.Const(uop.Float32, 2)
	b := g.Const(uop.Float32, 3)
	sum := g.Alu(uop.Add, uop.Float32, a, b)

	out := GraphRewrite(g, sum, DefaultPatternMatcher())
	if out.Op != uop.CONST || constVal(out) != 5 {
		t.Fatalf("expected constant-folded 5, got %v", out)
	}
}

func TestAddZeroAndMulOneCollapseToOperand(t *testing.T) {
	g := uop.NewGraph()
	x := g.DefineGlobal(0, uop.Float32)
	zero := g.Const(uop.Float32, 0)
	one := g.Const(uop.Float32, 1)

	addZero := g.Alu(uop.Add, uop.Float32, x, zero)
	mulOne := g.Alu(uop.Mul, uop.Float32, addZero, one)

	out := GraphRewrite(g, mulOne, DefaultPatternMatcher())
	if out != x {
		t.Fatalf("expected x+0*1 to collapse to x itself, got %v", out)
	}
}

func TestSubSelfUsesHashConsingIdentity(t *testing.T) {
	g := uop.NewGraph()
	x := g.DefineGlobal(0, uop.Float32)
	diff := g.Alu(uop.Sub, uop.Float32, x, x)

	out := GraphRewrite(g, diff, DefaultPatternMatcher())
	if out.Op != uop.CONST || constVal(out) != 0 {
		t.Fatalf("expected x-x to fold to constant 0, got %v", out)
	}
}

func TestMaskedStoreWithFalseValidBecomesNoop(t *testing.T) {
	g := uop.NewGraph()
	buf := g.DefineGlobal(0, uop.Float32)
	idx := g.Const(uop.Int32, 0)
	val := g.Const(uop.Float32, 1)
	invalid := g.Const(uop.Bool, 0)
	store := g.Store(buf, idx, val, invalid)

	out := GraphRewrite(g, store, DefaultPatternMatcher())
	if out.Op != uop.NOOP {
		t.Fatalf("expected masked-off store to elide to NOOP, got %v", out)
	}
}

func TestMaskedLoadWithFalseValidBecomesZero(t *testing.T) {
	g := uop.NewGraph()
	buf := g.DefineGlobal(0, uop.Float32)
	idx := g.Const(uop.Int32, 0)
	invalid := g.Const(uop.Bool, 0)
	load := g.Load(buf, idx, invalid, uop.Float32)

	out := GraphRewrite(g, load, DefaultPatternMatcher())
	if out.Op != uop.CONST || constVal(out) != 0 {
		t.Fatalf("expected masked-off load to fold to 0, got %v", out)
	}
}

func TestGepOfVectorizeSelectsLane(t *testing.T) {
	g := uop.NewGraph()
	a := g.Const(uop.Float32, 1)
	b := g.Const(uop.Float32, 2)
	vec := g.Vectorize(uop.Float32, a, b)
	gep := g.Gep(vec, 1)

	out := GraphRewrite(g, gep, DefaultPatternMatcher())
	if out != b {
		t.Fatalf("expected GEP(VECTORIZE(a,b),1) to select b, got %v", out)
	}
}

func TestTrivialRangeCollapsesToConst(t *testing.T) {
	g := uop.NewGraph()
	r := g.Range(0, 1, "i0", false)

	out := GraphRewrite(g, r, DefaultPatternMatcher())
	if out.Op != uop.CONST || constVal(out) != 0 {
		t.Fatalf("expected a single-iteration RANGE to collapse to Const(0), got %v", out)
	}
}

func TestLoopCollapseArangeLtEliminatesReduceLoop(t *testing.T) {
	g := uop.NewGraph()
	r := g.Range(0, 10, "i0", true)
	acc := g.DefineAcc(g.Const(uop.Bool, 0), uop.Bool, r)
	cmp := g.Alu(uop.Lt, uop.Bool, r, g.Const(uop.Int32, 4))
	combined := g.Alu(uop.Add, uop.Bool, acc, cmp)
	phi := g.Phi(acc, combined)

	out := GraphRewrite(g, phi, DefaultPatternMatcher())
	if out.Op != uop.CONST || constVal(out) != 4 {
		t.Fatalf("expected (i<4).sum() over i in [0,10) to collapse to Const(4), got %v", out)
	}
}

func TestLoopCollapseArangeLtClampsToRangeBounds(t *testing.T) {
	g := uop.NewGraph()
	r := g.Range(0, 10, "i0", true)
	acc := g.DefineAcc(g.Const(uop.Bool, 0), uop.Bool, r)
	cmp := g.Alu(uop.Lt, uop.Bool, r, g.Const(uop.Int32, 40))
	combined := g.Alu(uop.Add, uop.Bool, acc, cmp)
	phi := g.Phi(acc, combined)

	out := GraphRewrite(g, phi, DefaultPatternMatcher())
	if out.Op != uop.CONST || constVal(out) != 10 {
		t.Fatalf("expected count to clamp at the range's own extent (10), got %v", out)
	}
}

func TestLoopCollapseArangeLtHandlesAffineIndex(t *testing.T) {
	g := uop.NewGraph()
	r := g.Range(0, 5, "i0", true)
	acc := g.DefineAcc(g.Const(uop.Bool, 0), uop.Bool, r)
	// idx = 2*i + 1; count of i in [0,5) with 2*i+1 < 6 -> i in {0,1,2} -> 3
	scaled := g.Alu(uop.Mul, uop.Int32, r, g.Const(uop.Int32, 2))
	idx := g.Alu(uop.Add, uop.Int32, scaled, g.Const(uop.Int32, 1))
	cmp := g.Alu(uop.Lt, uop.Bool, idx, g.Const(uop.Int32, 6))
	combined := g.Alu(uop.Add, uop.Bool, acc, cmp)
	phi := g.Phi(acc, combined)

	out := GraphRewrite(g, phi, DefaultPatternMatcher())
	if out.Op != uop.CONST || constVal(out) != 3 {
		t.Fatalf("expected affine-index count 3, got %v", out)
	}
}

func TestGraphRewriteIsIdempotent(t *testing.T) {
	g := uop.NewGraph()
	a := g.Const(uop.Float32, 2)
	b := g.Const(uop.Float32, 3)
	sum := g.Alu(uop.Add, uop.Float32, a, b)
	mulOne := g.Alu(uop.Mul, uop.Float32, sum, g.Const(uop.Float32, 1))

	once := GraphRewrite(g, mulOne, DefaultPatternMatcher())
	twice := GraphRewrite(g, once, DefaultPatternMatcher())
	if once != twice {
		t.Fatalf("expected a second rewrite pass to be a no-op, got %v then %v", once, twice)
	}
}

func TestDefaultRuleOrderMatchesRegisteredRules(t *testing.T) {
	m := DefaultPatternMatcher()
	if len(m.rules) != len(DefaultRuleOrder) {
		t.Fatalf("expected %d rules registered, got %d", len(DefaultRuleOrder), len(m.rules))
	}
	for i, name := range DefaultRuleOrder {
		if m.rules[i].Name != name {
			t.Errorf("rule %d: expected %q, got %q", i, name, m.rules[i].Name)
		}
	}
}
