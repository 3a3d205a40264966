package linearize

import (
	"context"
	"testing"

	"tensorc/internal/lazy"
	"tensorc/internal/schedule"
	"tensorc/internal/symbolic"
	"tensorc/internal/uop"
)

func constBuf(vals []float32, dims ...int64) *lazy.Node {
	dimNodes := make([]*symbolic.Node, len(dims))
	for i, d := range dims {
		dimNodes[i] = symbolic.Const(d)
	}
	b := lazy.NewBuffer("cpu", lazy.Float32, dimNodes...)
	b.Data = vals
	return lazy.FromBuffer(b)
}

func scheduleOne(t *testing.T, target *lazy.Node) schedule.ScheduledKernel {
	t.Helper()
	kernels, err := schedule.Schedule(context.Background(), []*lazy.Node{target})
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if len(kernels) != 1 {
		t.Fatalf("expected a single kernel, got %d", len(kernels))
	}
	return kernels[0]
}

func TestLinearizeElementwiseOpensOneLoopPerAxis(t *testing.T) {
	a := constBuf([]float32{1, 2, 3, 4}, 2, 2)
	b := lazy.Unary(lazy.OpExp, a)
	k := scheduleOne(t, b)

	g, err := Linearize(k, TargetDesc{})
	if err != nil {
		t.Fatalf("Linearize failed: %v", err)
	}
	ranges, stores, sinks := 0, 0, 0
	for _, u := range g.All() {
		switch u.Op {
		case uop.RANGE:
			ranges++
		case uop.STORE:
			stores++
		case uop.SINK:
			sinks++
		}
	}
	if ranges != 2 {
		t.Errorf("expected 2 RANGE loops for a 2x2 output, got %d", ranges)
	}
	if stores != 1 || sinks != 1 {
		t.Errorf("expected exactly one STORE and one SINK, got stores=%d sinks=%d", stores, sinks)
	}
	if errs := uop.Verify(g, findSink(g)); len(errs) != 0 {
		t.Errorf("linearized graph failed verification: %v", errs)
	}
}

func TestLinearizeSkipsLoopsForUnitAxes(t *testing.T) {
	a := constBuf([]float32{1, 2, 3, 4}, 4, 1)
	b := lazy.Unary(lazy.OpNeg, a)
	k := scheduleOne(t, b)

	g, err := Linearize(k, TargetDesc{})
	if err != nil {
		t.Fatalf("Linearize failed: %v", err)
	}
	ranges := 0
	for _, u := range g.All() {
		if u.Op == uop.RANGE {
			ranges++
		}
	}
	if ranges != 1 {
		t.Errorf("expected exactly 1 RANGE (the unit axis should not open a loop), got %d", ranges)
	}
}

func TestLinearizeReduceEmitsAccAndPhi(t *testing.T) {
	a := constBuf([]float32{1, 2, 3, 4}, 4)
	r := lazy.Reduce(lazy.ReduceSum, a, []int{0})
	k := scheduleOne(t, r)

	g, err := Linearize(k, TargetDesc{})
	if err != nil {
		t.Fatalf("Linearize failed: %v", err)
	}
	accs, phis, reduceRanges := 0, 0, 0
	for _, u := range g.All() {
		switch u.Op {
		case uop.DEFINE_ACC:
			accs++
		case uop.PHI:
			phis++
		case uop.RANGE:
			if _, _, _, isReduce := uop.RangeArg(u); isReduce {
				reduceRanges++
			}
		}
	}
	if accs != 1 {
		t.Errorf("expected exactly one DEFINE_ACC, got %d", accs)
	}
	if phis != 1 {
		t.Errorf("expected exactly one PHI, got %d", phis)
	}
	if reduceRanges != 1 {
		t.Errorf("expected exactly one reduce RANGE over the single reduced axis, got %d", reduceRanges)
	}
	if errs := uop.Verify(g, findSink(g)); len(errs) != 0 {
		t.Errorf("linearized reduce graph failed verification: %v", errs)
	}
}

func TestLinearizeGroupForReduceStagesThroughLocalBuffer(t *testing.T) {
	vals := make([]float32, 8)
	for i := range vals {
		vals[i] = float32(i + 1)
	}
	a := constBuf(vals, 8)
	r := lazy.Reduce(lazy.ReduceSum, a, []int{0})
	k := scheduleOne(t, r)

	target := TargetDesc{
		HasLocalMemory:     true,
		GroupForReduceAxes: 1,
		MaxLocalSize:       [3]int64{4, 1, 1},
	}
	g, err := Linearize(k, target)
	if err != nil {
		t.Fatalf("Linearize failed: %v", err)
	}

	accs, phis, locals, barriers := 0, 0, 0, 0
	var reduceRanges, nonReduceRanges int
	for _, u := range g.All() {
		switch u.Op {
		case uop.DEFINE_ACC:
			accs++
		case uop.PHI:
			phis++
		case uop.DEFINE_LOCAL:
			locals++
		case uop.BARRIER:
			barriers++
		case uop.RANGE:
			if _, _, _, isReduce := uop.RangeArg(u); isReduce {
				reduceRanges++
			} else {
				nonReduceRanges++
			}
		}
	}
	if locals != 1 {
		t.Errorf("expected exactly one DEFINE_LOCAL staging buffer, got %d", locals)
	}
	if barriers != 1 {
		t.Errorf("expected exactly one BARRIER, got %d", barriers)
	}
	if accs != 2 {
		t.Errorf("expected two DEFINE_ACC (per-group and combine), got %d", accs)
	}
	if phis != 2 {
		t.Errorf("expected two PHI (per-group and combine), got %d", phis)
	}
	// the local loop (size 4) and the combine loop (size 2) are both
	// reduce ranges; the group loop (size 2) is not.
	if reduceRanges != 2 {
		t.Errorf("expected two reduce RANGEs (local + combine), got %d", reduceRanges)
	}
	if nonReduceRanges != 1 {
		t.Errorf("expected one non-reduce RANGE (the group loop), got %d", nonReduceRanges)
	}
	if errs := uop.Verify(g, findSink(g)); len(errs) != 0 {
		t.Errorf("grouped-reduce graph failed verification: %v", errs)
	}
}

func findSink(g *uop.Graph) *uop.UOp {
	for _, u := range g.All() {
		if u.Op == uop.SINK {
			return u
		}
	}
	return nil
}
