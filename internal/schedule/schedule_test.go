package schedule

import (
	"context"
	"testing"

	"tensorc/internal/lazy"
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

func TestScheduleSingleElementwiseKernelFusesFully(t *testing.T) {
	a := constBuf([]float32{1, 2, 3, 4}, 4)
	b := lazy.Unary(lazy.OpExp, a)
	c := lazy.Unary(lazy.OpLog, b)

	kernels, err := Schedule(context.Background(), []*lazy.Node{c})
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if len(kernels) != 1 {
		t.Fatalf("expected a single fused kernel, got %d", len(kernels))
	}
	k := kernels[0]
	if k.AST.Op != uop.SINK {
		t.Errorf("kernel AST root must be SINK, got %s", k.AST.Op)
	}
	if len(k.Inputs) != 1 || k.Inputs[0].Data == nil {
		t.Fatalf("expected exactly one realised input buffer, got %v", k.Inputs)
	}
	if errs := uop.Verify(k.Graph, k.AST); len(errs) != 0 {
		t.Errorf("scheduled AST failed verification: %v", errs)
	}
}

func TestScheduleCutsAtMultiUseNode(t *testing.T) {
	a := constBuf([]float32{1, 2, 3, 4}, 4)
	e := lazy.Unary(lazy.OpExp, a) // referenced twice below -> forced cut
	f := lazy.Unary(lazy.OpLog, e)
	g := lazy.Unary(lazy.OpSqrt, e)
	h := lazy.Binary(lazy.OpAdd, f, g)

	kernels, err := Schedule(context.Background(), []*lazy.Node{h})
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if len(kernels) != 2 {
		t.Fatalf("expected a cut at the multiply-used node, got %d kernels", len(kernels))
	}

	consumerIdx := -1
	for i, k := range kernels {
		for _, in := range k.Inputs {
			if in.ID == kernels[0].Outputs[0].ID {
				consumerIdx = i
			}
		}
	}
	if consumerIdx <= 0 {
		t.Fatalf("expected a later kernel to consume the first kernel's output buffer, got consumerIdx=%d", consumerIdx)
	}
}

func TestScheduleContiguousForcesCut(t *testing.T) {
	a := constBuf([]float32{1, 2, 3, 4}, 4)
	cont := lazy.Contiguous(lazy.Unary(lazy.OpExp, a))
	final := lazy.Unary(lazy.OpLog, cont)

	kernels, err := Schedule(context.Background(), []*lazy.Node{final})
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if len(kernels) != 2 {
		t.Fatalf("expected CONTIGUOUS to force a kernel boundary, got %d kernels", len(kernels))
	}
}

func TestScheduleRejectsCancelledContext(t *testing.T) {
	a := constBuf([]float32{1}, 1)
	target := lazy.Unary(lazy.OpExp, a)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Schedule(ctx, []*lazy.Node{target}); err == nil {
		t.Errorf("expected Schedule to reject an already-cancelled context")
	}
}
