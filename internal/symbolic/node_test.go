package symbolic

import "testing"

func TestConstFolding(t *testing.T) {
	tests := []struct {
		name string
		node *Node
		want int64
	}{
		{"add consts", Add(Const(2), Const(3)), 5},
		{"mul const by zero", Mul(Var("x", 0, 10), 0), 0},
		{"mul const by one", Mul(Const(7), 1), 7},
		{"mod one is zero", Mod(Var("x", 0, 10), 1), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !isConst(tt.node) {
				t.Fatalf("%s: expected constant node, got %s", tt.name, tt.node)
			}
			if tt.node.Value != tt.want {
				t.Errorf("%s: got %d want %d", tt.name, tt.node.Value, tt.want)
			}
		})
	}
}

func TestMulOneAndZero(t *testing.T) {
	x := Var("x", 0, 10)
	if Mul(x, 1) != x {
		t.Errorf("Mul(x,1) should unwrap to x itself")
	}
	if got := Mul(x, 0); got.Value != 0 {
		t.Errorf("Mul(x,0) should fold to 0, got %v", got)
	}
}

func TestSumFlattensAndFolds(t *testing.T) {
	x := Var("x", 0, 4)
	y := Var("y", 0, 4)
	s := Add(Add(x, Const(2)), Add(y, Const(3)))
	if s.Kind != KindSum {
		t.Fatalf("expected Sum, got %s", s.Kind)
	}
	// constants must be merged into a single term
	constCount := 0
	for _, c := range s.Children {
		if isConst(c) {
			constCount++
			if c.Value != 5 {
				t.Errorf("expected merged constant 5, got %d", c.Value)
			}
		}
	}
	if constCount != 1 {
		t.Errorf("expected exactly one folded constant child, found %d", constCount)
	}
}

func TestModRangeIdentity(t *testing.T) {
	x := Var("x", 0, 9)
	got := Mod(x, 16)
	if got != x {
		t.Errorf("Mod(x,16) with x in [0,9] should be identity, got %s", got)
	}
}

func TestModDropsMultipleOfC(t *testing.T) {
	x := Var("x", 0, 3)
	y := Var("y", 0, 100)
	// (x + 16*y) % 16 should drop the 16*y term
	expr := Add(x, Mul(y, 16))
	got := Mod(expr, 16)
	if !Equal(got, x) {
		t.Errorf("Mod should drop term divisible by modulus: got %s want %s", got, x)
	}
}

func TestFloorDivDistributesOverSum(t *testing.T) {
	x := Var("x", 0, 3)
	y := Var("y", 0, 100)
	// (x + 16*y) // 16 == y  when x < 16
	expr := Add(x, Mul(y, 16))
	got := FloorDiv(expr, 16)
	if !Equal(got, y) {
		t.Errorf("FloorDiv should collapse to y, got %s", got)
	}
}

func TestLtFoldsOnRange(t *testing.T) {
	x := Var("x", 0, 9)
	if got := Lt(x, 10); got.Value != 1 {
		t.Errorf("Lt should fold true when x.max < c, got %v", got)
	}
	if got := Lt(x, 0); got.Value != 0 {
		t.Errorf("Lt should fold false when x.min >= c, got %v", got)
	}
}

func TestBoundsPropagation(t *testing.T) {
	x := Var("x", 2, 5)
	y := Var("y", 1, 3)
	s := Add(x, y)
	if s.Min != 3 || s.Max != 8 {
		t.Errorf("Sum bounds wrong: got [%d,%d] want [3,8]", s.Min, s.Max)
	}
	m := Mul(x, 3)
	if m.Min != 6 || m.Max != 15 {
		t.Errorf("Mul bounds wrong: got [%d,%d] want [6,15]", m.Min, m.Max)
	}
	neg := Mul(x, -2)
	if neg.Min != -10 || neg.Max != -4 {
		t.Errorf("Mul negative bounds wrong: got [%d,%d] want [-10,-4]", neg.Min, neg.Max)
	}
}

func TestAndShortCircuitsFalse(t *testing.T) {
	x := Var("x", 0, 10)
	got := And(Lt(x, 5), Const(0))
	if got.Value != 0 {
		t.Errorf("And with a false constant should collapse to false")
	}
}

func TestAndDropsTrueConstants(t *testing.T) {
	x := Var("x", 0, 10)
	got := And(Const(1), Lt(x, 20))
	want := Lt(x, 20)
	if !Equal(got, want) {
		t.Errorf("And should drop constant-true children: got %s want %s", got, want)
	}
}

func TestConfluence(t *testing.T) {
	// Two algebraically equal expressions must simplify to the same
	// structural form, per the symbolic soundness property.
	x := Var("x", 0, 100)
	a := Add(Add(x, Const(1)), Const(2))
	b := Add(x, Const(3))
	if !Equal(a, b) {
		t.Errorf("confluence failed: %s != %s", a, b)
	}
}

func TestSampledSoundness(t *testing.T) {
	x := Var("x", -3, 7)
	y := Var("y", 1, 4)
	expr := Mod(Add(Mul(x, 2), y), 5)
	for xv := x.Min; xv <= x.Max; xv++ {
		for yv := y.Min; yv <= y.Max; yv++ {
			want := modInt(xv*2+yv, 5)
			if want < expr.Min || want > expr.Max {
				t.Errorf("sampled value %d outside reported bounds [%d,%d]", want, expr.Min, expr.Max)
			}
		}
	}
}
