package uop

import "testing"

func TestHashConsingCollapsesStructuralDuplicates(t *testing.T) {
	g := NewGraph()
	a := g.Const(Float32, 1)
	b := g.Const(Float32, 1)
	if a != b {
		t.Errorf("two identical CONST UOps should hash-cons to the same pointer")
	}
	c := g.Const(Float32, 2)
	if a == c {
		t.Errorf("distinct CONST values must not collapse")
	}
}

func TestAluCommutativeOperandsCanonicalize(t *testing.T) {
	g := NewGraph()
	x := g.DefineGlobal(0, Float32)
	y := g.DefineGlobal(1, Float32)
	ab := g.Alu(Add, Float32, x, y)
	ba := g.Alu(Add, Float32, y, x)
	if ab != ba {
		t.Errorf("commutative ALU ops should hash-cons regardless of argument order")
	}
}

func TestAluNonCommutativeOrderMatters(t *testing.T) {
	g := NewGraph()
	x := g.DefineGlobal(0, Float32)
	y := g.DefineGlobal(1, Float32)
	xy := g.Alu(Sub, Float32, x, y)
	yx := g.Alu(Sub, Float32, y, x)
	if xy == yx {
		t.Errorf("non-commutative ALU ops must respect operand order")
	}
}

func TestVerifyCatchesUnclosedRange(t *testing.T) {
	g := NewGraph()
	buf := g.DefineGlobal(0, Float32)
	r := g.Range(0, 10, "i", false)
	idx := r
	val := g.Const(Float32, 0)
	valid := g.Const(Bool, 1)
	store := g.Store(buf, idx, val, valid)
	sink := g.Sink(store) // missing ENDRANGE for r
	if errs := Verify(g, sink); len(errs) == 0 {
		t.Errorf("expected a dangling RANGE to be reported")
	}
}

func TestVerifyAcceptsWellFormedGraph(t *testing.T) {
	g := NewGraph()
	buf := g.DefineGlobal(0, Float32)
	r := g.Range(0, 10, "i", true)
	zero := g.Const(Float32, 0)
	acc := g.DefineAcc(zero, Float32, r)
	added := g.Alu(Add, Float32, acc, g.Const(Float32, 1))
	phi := g.Phi(acc, added)
	end := g.EndRange(r)
	_ = end
	valid := g.Const(Bool, 1)
	store := g.Store(buf, r, phi, valid)
	sink := g.Sink(store)
	if errs := Verify(g, sink); len(errs) != 0 {
		t.Errorf("well-formed graph reported spurious errors: %v", errs)
	}
}

func TestMatchTensorCoreRespectsDivisibility(t *testing.T) {
	if _, ok := MatchTensorCore(15, Float32); ok {
		t.Errorf("k=15 should not match any built-in TC config (all require dimK | k)")
	}
	if _, ok := MatchTensorCore(16, Float32); !ok {
		t.Errorf("k=16 should match the 8x8x16 config")
	}
}
