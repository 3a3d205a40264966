package commands

import (
	"context"
	"fmt"

	pkgerrors "github.com/pkg/errors"

	"tensorc/internal/lazy"
	"tensorc/internal/linearize"
	"tensorc/internal/render"
	"tensorc/internal/rewrite"
	"tensorc/internal/schedule"
	"tensorc/internal/uop"
)

// RunCommand realizes a seed scenario end to end and prints its flat
// result, mirroring "sentra run" driving a script to completion.
func RunCommand(args []string) error {
	name, err := seedArg(args)
	if err != nil {
		return err
	}
	s, err := FindSeed(name)
	if err != nil {
		return err
	}
	t := s.Build()
	out, err := t.Realize(context.Background())
	if err != nil {
		return pkgerrors.Wrap(err, "realize")
	}
	fmt.Printf("%s -> %v\n", s.Description, out)
	return nil
}

// CompileCommand renders every kernel a seed scenario schedules to C
// source without executing any of them, mirroring "sentra check"/
// "sentra fmt" style source-only subcommands.
func CompileCommand(args []string) error {
	name, err := seedArg(args)
	if err != nil {
		return err
	}
	s, err := FindSeed(name)
	if err != nil {
		return err
	}
	kernels, graphs, sinks, err := kernelsFor(s)
	if err != nil {
		return err
	}
	nc := render.NewNameCache()
	for i, k := range kernels {
		src, kname, err := render.Render(nc, k.KernelID, graphs[i], sinks[i], k.Outputs[0].Shape, render.CDialect)
		if err != nil {
			return pkgerrors.Wrapf(err, "render kernel %s", k.KernelID)
		}
		fmt.Printf("// kernel %s\n%s\n", kname, src)
	}
	return nil
}

// DumpIRCommand prints the linearized, rewritten UOp graph for every
// kernel a seed scenario schedules into, one graph per kernel.
func DumpIRCommand(args []string) error {
	name, err := seedArg(args)
	if err != nil {
		return err
	}
	s, err := FindSeed(name)
	if err != nil {
		return err
	}
	kernels, graphs, sinks, err := kernelsFor(s)
	if err != nil {
		return err
	}
	for i, k := range kernels {
		fmt.Printf("=== kernel %s ===\n", k.KernelID)
		for _, u := range graphs[i].All() {
			fmt.Println(u.String())
		}
		_ = sinks[i]
	}
	return nil
}

// DumpUopsCommand is an alias of dump-ir kept distinct because
// spec.md's two debug surfaces (scheduled AST vs. fully linearized
// UOp graph) are conceptually different stops on the pipeline, even
// though internal/tensor currently only keeps the post-linearize form
// around long enough to render it.
func DumpUopsCommand(args []string) error {
	return DumpIRCommand(args)
}

func kernelsFor(s Seed) ([]schedule.ScheduledKernel, []*uop.Graph, []*uop.UOp, error) {
	target := s.Build()
	kernels, err := schedule.Schedule(context.Background(), []*lazy.Node{target.Node()})
	if err != nil {
		return nil, nil, nil, pkgerrors.Wrap(err, "schedule")
	}
	graphs := make([]*uop.Graph, len(kernels))
	sinks := make([]*uop.UOp, len(kernels))
	for i, k := range kernels {
		g, err := linearize.Linearize(k, linearize.TargetDesc{})
		if err != nil {
			return nil, nil, nil, pkgerrors.Wrapf(err, "linearize kernel %s", k.KernelID)
		}
		sink := lastSink(g)
		if sink == nil {
			return nil, nil, nil, fmt.Errorf("kernel %s: linearized graph has no SINK", k.KernelID)
		}
		graphs[i] = g
		sinks[i] = rewrite.GraphRewrite(g, sink, rewrite.DefaultPatternMatcher())
	}
	return kernels, graphs, sinks, nil
}

// lastSink mirrors internal/driver.findSink: the latest-interned SINK
// is the one that actually corresponds to this kernel's own cut.
func lastSink(g *uop.Graph) *uop.UOp {
	var sink *uop.UOp
	for _, u := range g.All() {
		if u.Op == uop.SINK {
			sink = u
		}
	}
	return sink
}

func seedArg(args []string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("missing seed scenario name (run 'tensorc list' to see available scenarios)")
	}
	return args[0], nil
}
