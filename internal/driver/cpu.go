package driver

import (
	"context"
	"math"

	cerrors "tensorc/internal/errors"
	"tensorc/internal/uop"
)

// CPUDriver is tensorc's reference Driver: instead of farming the
// rendered C text out to a real compiler, it directly interprets the
// uop.Graph the renderer was built from, bound ahead of time via Bind.
// This mirrors the teacher's own approach of never shelling out to
// another toolchain for execution — the EnhancedVM interprets its own
// bytecode chunk directly, and CPUDriver interprets its own IR graph
// directly, both skipping a "load foreign machine code" step entirely.
type CPUDriver struct {
	bound map[string]*uop.Graph
}

// NewCPUDriver constructs an empty reference driver.
func NewCPUDriver() *CPUDriver {
	return &CPUDriver{bound: map[string]*uop.Graph{}}
}

// Bind associates rendered source text with the graph it was rendered
// from, so a later Compile(source, ...) call can find something to
// interpret. internal/tensor calls this immediately after rendering,
// before invoking Compile — the same "register what you just built"
// shape as the teacher's ModuleLoader caching a loaded module by path.
func (d *CPUDriver) Bind(source string, g *uop.Graph) {
	d.bound[source] = g
}

func (d *CPUDriver) Compile(source string, global, local [3]int) (Program, error) {
	g, ok := d.bound[source]
	if !ok {
		return nil, cerrors.NewDriverFailure("render", "CPUDriver: no graph bound for this rendered source", nil)
	}
	return &cpuProgram{graph: g}, nil
}

type cpuProgram struct {
	graph *uop.Graph
}

func (p *cpuProgram) Run(ctx context.Context, buffers []Buffer, vars map[string]int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	in := &interp{buffers: buffers, vars: vars, env: map[*uop.UOp]float64{}}
	sink := findSink(p.graph)
	if sink == nil {
		return cerrors.NewIRInvariant("render", "CPUDriver: graph has no SINK", nil)
	}
	return in.runKernel(sink)
}

// findSink returns the most recently interned SINK in g. A graph that
// passed through more than one rewrite stage before binding can carry
// an earlier stage's now-dead SINK alongside the final one; since
// hash-consing only ever appends newly-distinct nodes, the latest
// SINK in creation order is always the one the bound source was
// actually rendered from.
func findSink(g *uop.Graph) *uop.UOp {
	var sink *uop.UOp
	for _, u := range g.All() {
		if u.Op == uop.SINK {
			sink = u
		}
	}
	return sink
}

// interp walks a linearized, rewritten UOp graph and evaluates it
// directly against concrete buffers — the CPU reference semantics
// every other Driver is expected to reproduce bit-for-bit for the
// ALU ops it supports.
type interp struct {
	buffers []Buffer
	vars    map[string]int64
	env     map[*uop.UOp]float64
}

// runKernel drives the kernel's output-axis RANGE loops (its non-reduce
// RANGEs, nested in the depth-first order allNodes reaches them from the
// SINK; the nesting order does not change the result) and executes every
// STORE once per full index combination.
func (in *interp) runKernel(sink *uop.UOp) error {
	var outer []*uop.UOp
	for _, u := range in.allNodes(sink) {
		if u.Op == uop.RANGE {
			if _, _, _, isReduce := uop.RangeArg(u); !isReduce {
				outer = append(outer, u)
			}
		}
	}
	return in.loopOuter(outer, 0, sink.Src)
}

func (in *interp) loopOuter(outer []*uop.UOp, i int, stores []*uop.UOp) error {
	if i == len(outer) {
		for _, st := range stores {
			if err := in.execStore(st); err != nil {
				return err
			}
		}
		return nil
	}
	r := outer[i]
	min, max, _, _ := uop.RangeArg(r)
	for v := min; v < max; v++ {
		in.env[r] = float64(v)
		if err := in.loopOuter(outer, i+1, stores); err != nil {
			return err
		}
	}
	delete(in.env, r)
	return nil
}

func (in *interp) execStore(st *uop.UOp) error {
	if st.Op != uop.STORE {
		return cerrors.NewUnsupportedOp("render", "CPUDriver: SINK source is not a STORE", st.Op)
	}
	bufU, idxU, valU, validU := st.Src[0], st.Src[1], st.Src[2], st.Src[3]
	valid, err := in.eval(validU)
	if err != nil {
		return err
	}
	if valid == 0 {
		return nil
	}
	idx, err := in.eval(idxU)
	if err != nil {
		return err
	}
	val, err := in.eval(valU)
	if err != nil {
		return err
	}
	bufIdx, ok := bufU.Arg.(int)
	if !ok {
		return cerrors.NewIRInvariant("render", "CPUDriver: STORE target is not DEFINE_GLOBAL", bufU)
	}
	if bufIdx < 0 || bufIdx >= len(in.buffers) {
		return cerrors.NewDriverFailure("render", "CPUDriver: buffer index out of range", nil)
	}
	in.buffers[bufIdx].Data()[int(idx)] = float32(val)
	return nil
}

// allNodes returns every UOp reachable from sink via Src edges, in
// depth-first post-order. This can be a subset of g.All(): nodes that
// rewriting left behind (such as an earlier stage's SINK) are not
// reached.
func (in *interp) allNodes(sink *uop.UOp) []*uop.UOp {
	seen := map[*uop.UOp]bool{}
	var order []*uop.UOp
	var visit func(u *uop.UOp)
	visit = func(u *uop.UOp) {
		if seen[u] {
			return
		}
		seen[u] = true
		for _, s := range u.Src {
			visit(s)
		}
		order = append(order, u)
	}
	visit(sink)
	return order
}

func (in *interp) eval(u *uop.UOp) (float64, error) {
	switch u.Op {
	case uop.CONST:
		return u.Arg.(float64), nil

	case uop.RANGE:
		v, ok := in.env[u]
		if !ok {
			return 0, cerrors.NewIRInvariant("render", "CPUDriver: RANGE read outside its loop body", u)
		}
		return v, nil

	case uop.DEFINE_ACC:
		v, ok := in.env[u]
		if !ok {
			return 0, cerrors.NewIRInvariant("render", "CPUDriver: DEFINE_ACC read before its PHI ran", u)
		}
		return v, nil

	case uop.LOAD:
		bufU, idxU, validU := u.Src[0], u.Src[1], u.Src[2]
		valid, err := in.eval(validU)
		if err != nil {
			return 0, err
		}
		if valid == 0 {
			return 0, nil
		}
		idx, err := in.eval(idxU)
		if err != nil {
			return 0, err
		}
		bufIdx, ok := bufU.Arg.(int)
		if !ok {
			return 0, cerrors.NewIRInvariant("render", "CPUDriver: LOAD source is not DEFINE_GLOBAL", bufU)
		}
		if bufIdx < 0 || bufIdx >= len(in.buffers) {
			return 0, cerrors.NewDriverFailure("render", "CPUDriver: buffer index out of range", nil)
		}
		data := in.buffers[bufIdx].Data()
		i := int(idx)
		if i < 0 || i >= len(data) {
			return 0, cerrors.NewDriverFailure("render", "CPUDriver: index out of range", nil)
		}
		return float64(data[i]), nil

	case uop.CAST, uop.BITCAST:
		return in.eval(u.Src[0])

	case uop.ALU:
		return in.evalALU(u)

	case uop.PHI:
		return in.evalPhi(u)

	case uop.NOOP:
		return 0, nil

	default:
		return 0, cerrors.NewUnsupportedOp("render", "CPUDriver: unsupported UOp in scalar evaluation", u.Op)
	}
}

func (in *interp) evalALU(u *uop.UOp) (float64, error) {
	op := u.Arg.(uop.ALUOp)
	args := make([]float64, len(u.Src))
	for i, s := range u.Src {
		v, err := in.eval(s)
		if err != nil {
			return 0, err
		}
		args[i] = v
	}
	switch op {
	case uop.Add:
		return args[0] + args[1], nil
	case uop.Sub:
		return args[0] - args[1], nil
	case uop.Mul:
		return args[0] * args[1], nil
	case uop.Div:
		if args[1] == 0 {
			return 0, cerrors.NewDriverFailure("render", "CPUDriver: division by zero", nil)
		}
		if u.DType == uop.Int32 {
			return math.Floor(args[0] / args[1]), nil
		}
		return args[0] / args[1], nil
	case uop.Mod:
		if args[1] == 0 {
			return 0, cerrors.NewDriverFailure("render", "CPUDriver: modulo by zero", nil)
		}
		return math.Mod(args[0], args[1]), nil
	case uop.Max:
		return math.Max(args[0], args[1]), nil
	case uop.Lt:
		return boolF(args[0] < args[1]), nil
	case uop.Ge:
		return boolF(args[0] >= args[1]), nil
	case uop.And:
		return boolF(args[0] != 0 && args[1] != 0), nil
	case uop.Or:
		return boolF(args[0] != 0 || args[1] != 0), nil
	case uop.Neg:
		return -args[0], nil
	case uop.Exp:
		return math.Exp(args[0]), nil
	case uop.Log:
		return math.Log(args[0]), nil
	case uop.Sqrt:
		return math.Sqrt(args[0]), nil
	case uop.Recip:
		if args[0] == 0 {
			return 0, cerrors.NewDriverFailure("render", "CPUDriver: reciprocal of zero", nil)
		}
		return 1 / args[0], nil
	case uop.Where:
		if args[0] != 0 {
			return args[1], nil
		}
		return args[2], nil
	default:
		return 0, cerrors.NewUnsupportedOp("render", "CPUDriver: unsupported ALU op", op)
	}
}

func boolF(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// evalPhi drives a reduction's RANGE loop(s) to completion: it seeds
// the accumulator from its initial CONST, then for every combination
// of the reduction ranges it owns evaluates the combining expression
// (src[1]) and rebinds the accumulator, exactly matching
// DEFINE_ACC/RANGE/ALU/PHI/ENDRANGE's intended semantics (spec.md
// §4.6 steps 1-5) without needing ENDRANGE's position in program
// order — the nesting is fully determined by which RANGEs a given
// DEFINE_ACC was built with.
func (in *interp) evalPhi(u *uop.UOp) (float64, error) {
	acc := u.Src[0]
	combined := u.Src[1]
	ranges := acc.Src[1:]

	init, err := in.eval(acc.Src[0])
	if err != nil {
		return 0, err
	}
	in.env[acc] = init

	var loop func(i int) error
	loop = func(i int) error {
		if i == len(ranges) {
			v, err := in.eval(combined)
			if err != nil {
				return err
			}
			in.env[acc] = v
			return nil
		}
		r := ranges[i]
		min, max, _, _ := uop.RangeArg(r)
		for v := min; v < max; v++ {
			in.env[r] = float64(v)
			if err := loop(i + 1); err != nil {
				return err
			}
		}
		delete(in.env, r)
		return nil
	}
	if err := loop(0); err != nil {
		return 0, err
	}
	result := in.env[acc]
	delete(in.env, acc)
	return result, nil
}
