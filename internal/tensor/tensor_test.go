package tensor

import (
	"context"
	"math"
	"testing"
)

func approxEqual(t *testing.T, got, want []float32) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d (%v vs %v)", len(got), len(want), got, want)
	}
	for i := range got {
		if math.Abs(float64(got[i]-want[i])) > 1e-3 {
			t.Fatalf("index %d: got %v, want %v\nfull got=%v want=%v", i, got[i], want[i], got, want)
		}
	}
}

func TestSumOfIncrementedVector(t *testing.T) {
	a := FromSlice([]float32{1, 2, 3, 4}, 4)
	b := a.AddScalar(1)
	sum := b.Sum()

	out, err := sum.Realize(context.Background())
	if err != nil {
		t.Fatalf("Realize: %v", err)
	}
	approxEqual(t, out, []float32{14})
}

func TestReshapeThenScalarAddThenReshapeBack(t *testing.T) {
	a := Zeros(4, 4)
	b := a.Reshape(16).AddScalar(2)
	c := b.Reshape(4, 4)

	if !a.node.IsRealized() {
		t.Fatalf("zeros leaf should already report realized (it is backed by concrete data)")
	}
	if c.node.IsRealized() {
		t.Fatalf("c should not be realized before Realize is called")
	}

	out, err := c.Realize(context.Background())
	if err != nil {
		t.Fatalf("Realize: %v", err)
	}
	want := make([]float32, 16)
	for i := range want {
		want[i] = 2
	}
	approxEqual(t, out, want)
}

func TestPadReadsZeroOutsideOriginalBounds(t *testing.T) {
	a := Ones(3, 3)
	padded := a.Pad([2]int64{1, 1}, [2]int64{1, 1})

	if got := padded.Shape(); len(got) != 2 || got[0] != 5 || got[1] != 5 {
		t.Fatalf("padded shape = %v, want [5 5]", got)
	}

	out, err := padded.Realize(context.Background())
	if err != nil {
		t.Fatalf("Realize: %v", err)
	}
	if len(out) != 25 {
		t.Fatalf("len(out) = %d, want 25", len(out))
	}
	at := func(r, c int) float32 { return out[r*5+c] }
	corners := []struct{ r, c int }{{0, 0}, {0, 4}, {4, 0}, {4, 4}}
	for _, p := range corners {
		if at(p.r, p.c) != 0 {
			t.Errorf("corner (%d,%d) = %v, want 0", p.r, p.c, at(p.r, p.c))
		}
	}
	for r := 1; r <= 3; r++ {
		for c := 1; c <= 3; c++ {
			if at(r, c) != 1 {
				t.Errorf("interior (%d,%d) = %v, want 1", r, c, at(r, c))
			}
		}
	}
}

func TestLoopCollapseOnArangeLessThan(t *testing.T) {
	const n, k = 10, 4
	a := Arange(0, n)
	mask := a.Lt(a.scalar(float32(k)))
	count := mask.Sum()

	out, err := count.Realize(context.Background())
	if err != nil {
		t.Fatalf("Realize: %v", err)
	}
	want := float32(k)
	if n < k {
		want = n
	}
	approxEqual(t, out, []float32{want})
}

func TestMatmul2D(t *testing.T) {
	a := FromSlice([]float32{1, 2, 3, 4, 5, 6}, 2, 3) // (2,3)
	b := FromSlice([]float32{7, 8, 9, 10, 11, 12}, 3, 2) // (3,2)
	c := a.Matmul(b)

	if got := c.Shape(); len(got) != 2 || got[0] != 2 || got[1] != 2 {
		t.Fatalf("matmul shape = %v, want [2 2]", got)
	}

	out, err := c.Realize(context.Background())
	if err != nil {
		t.Fatalf("Realize: %v", err)
	}
	// row0: [1,2,3].[7,9,11]=58, [1,2,3].[8,10,12]=64
	// row1: [4,5,6].[7,9,11]=139, [4,5,6].[8,10,12]=154
	approxEqual(t, out, []float32{58, 64, 139, 154})
}

func TestBroadcastAddNoDataMotion(t *testing.T) {
	col := FromSlice([]float32{1, 2, 3}, 3, 1)
	row := FromSlice([]float32{10, 20, 30}, 1, 3)
	sum := col.Add(row)

	if got := sum.Shape(); len(got) != 2 || got[0] != 3 || got[1] != 3 {
		t.Fatalf("broadcast shape = %v, want [3 3]", got)
	}

	out, err := sum.Realize(context.Background())
	if err != nil {
		t.Fatalf("Realize: %v", err)
	}
	want := []float32{
		11, 21, 31,
		12, 22, 32,
		13, 23, 33,
	}
	approxEqual(t, out, want)
}
