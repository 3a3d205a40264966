package driver

import (
	"context"
	"testing"

	"tensorc/internal/uop"
)

func TestCPUDriverRunsElementwiseKernel(t *testing.T) {
	g := uop.NewGraph()
	a := g.DefineGlobal(0, uop.Float32)
	out := g.DefineGlobal(1, uop.Float32)
	one := g.Const(uop.Float32, 1)
	trueC := g.Const(uop.Bool, 1)
	r := g.Range(0, 4, "i0", false)

	loaded := g.Load(a, r, trueC, uop.Float32)
	sum := g.Alu(uop.Add, uop.Float32, loaded, one)
	store := g.Store(out, r, sum, trueC)
	g.EndRange(r)
	sink := g.Sink(store)

	if errs := uop.Verify(g, sink); len(errs) != 0 {
		t.Fatalf("test graph failed verification: %v", errs)
	}

	d := NewCPUDriver()
	d.Bind("kernel", g)
	prog, err := d.Compile("kernel", [3]int{1, 1, 1}, [3]int{1, 1, 1})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	input := SliceBuffer{1, 2, 3, 4}
	output := make(SliceBuffer, 4)
	if err := prog.Run(context.Background(), []Buffer{input, output}, nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	want := []float32{2, 3, 4, 5}
	for i, w := range want {
		if output[i] != w {
			t.Errorf("output[%d] = %v, want %v", i, output[i], w)
		}
	}
}

func TestCPUDriverRunsReduceSumKernel(t *testing.T) {
	g := uop.NewGraph()
	a := g.DefineGlobal(0, uop.Float32)
	out := g.DefineGlobal(1, uop.Float32)
	trueC := g.Const(uop.Bool, 1)
	zeroIdx := g.Const(uop.Int32, 0)
	zero := g.Const(uop.Float32, 0)

	reduceRange := g.Range(0, 4, "i0", true)
	loaded := g.Load(a, reduceRange, trueC, uop.Float32)
	acc := g.DefineAcc(zero, uop.Float32, reduceRange)
	combined := g.Alu(uop.Add, uop.Float32, acc, loaded)
	phi := g.Phi(acc, combined)
	g.EndRange(reduceRange)

	store := g.Store(out, zeroIdx, phi, trueC)
	sink := g.Sink(store)

	if errs := uop.Verify(g, sink); len(errs) != 0 {
		t.Fatalf("test graph failed verification: %v", errs)
	}

	d := NewCPUDriver()
	d.Bind("kernel", g)
	prog, err := d.Compile("kernel", [3]int{1, 1, 1}, [3]int{1, 1, 1})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	input := SliceBuffer{1, 2, 3, 4}
	output := make(SliceBuffer, 1)
	if err := prog.Run(context.Background(), []Buffer{input, output}, nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if output[0] != 10 {
		t.Errorf("sum = %v, want 10", output[0])
	}
}

func TestCPUDriverCompileWithoutBindFails(t *testing.T) {
	d := NewCPUDriver()
	if _, err := d.Compile("missing", [3]int{1, 1, 1}, [3]int{1, 1, 1}); err == nil {
		t.Fatal("expected Compile to fail for an unbound source")
	}
}
