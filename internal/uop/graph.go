package uop

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
)

// Graph owns a per-job hash-consing intern table: every UOp constructed
// through it is deduplicated by structural key, so two calls describing
// the same node return the identical pointer (spec §3). Graphs are
// never shared across compilation jobs (spec §5).
type Graph struct {
	intern map[string]*UOp
	all    []*UOp
}

// NewGraph creates an empty, job-scoped UOp graph.
func NewGraph() *Graph {
	return &Graph{intern: make(map[string]*UOp)}
}

// All returns every distinct UOp interned so far, in construction order.
func (g *Graph) All() []*UOp { return g.all }

func (g *Graph) intern1(op Kind, dtype DType, src []*UOp, arg any) *UOp {
	key := structuralKey(op, dtype, src, arg)
	if existing, ok := g.intern[key]; ok {
		return existing
	}
	u := &UOp{Op: op, DType: dtype, Src: src, Arg: arg, key: key, seq: len(g.all)}
	g.intern[key] = u
	g.all = append(g.all, u)
	return u
}

func structuralKey(op Kind, dtype DType, src []*UOp, arg any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d|%d|%v|", op, dtype, arg)
	for _, s := range src {
		fmt.Fprintf(&b, "%p,", s)
	}
	return b.String()
}

// New constructs (or reuses) a raw UOp. Most callers should prefer the
// typed helpers below (Const, Alu, Range, ...); New exists for op kinds
// without a dedicated helper.
func (g *Graph) New(op Kind, dtype DType, src []*UOp, arg any) *UOp {
	return g.intern1(op, dtype, src, arg)
}

// Const interns a numeric literal (spec §4.5 "const(dtype, value) interns
// numeric literals").
func (g *Graph) Const(dtype DType, value float64) *UOp {
	return g.intern1(CONST, dtype, nil, value)
}

// Alu constructs or reuses a canonicalised ALU node (spec §4.5
// "alu(op, children)"), sorting commutative operands so that a+b and
// b+a hash-cons to the same node.
func (g *Graph) Alu(op ALUOp, dtype DType, children ...*UOp) *UOp {
	src := children
	if op.Commutative() {
		src = append([]*UOp{}, children...)
		slices.SortFunc(src, func(a, b *UOp) int { return a.seq - b.seq })
	}
	return g.intern1(ALU, dtype, src, op)
}

// Gep projects lane i of a vector UOp (spec §4.5 "gep(i)").
func (g *Graph) Gep(vec *UOp, i int) *UOp {
	return g.intern1(GEP, elementDType(vec.DType), []*UOp{vec}, i)
}

func elementDType(d DType) DType { return d } // vectors share the scalar DType tag in this IR

// DefineGlobal declares kernel argument buffer index i.
func (g *Graph) DefineGlobal(i int, dtype DType) *UOp {
	return g.intern1(DEFINE_GLOBAL, dtype, nil, i)
}

// DefineLocal declares a workgroup-local buffer of the given element
// count.
func (g *Graph) DefineLocal(name string, size int, dtype DType) *UOp {
	return g.intern1(DEFINE_LOCAL, dtype, nil, localArg{name, size})
}

type localArg struct {
	Name string
	Size int
}

// LocalArg exposes a DEFINE_LOCAL UOp's argument fields.
func LocalArg(u *UOp) (name string, size int) {
	a := u.Arg.(localArg)
	return a.Name, a.Size
}

// Special declares a hardware-parallel axis (global/local id).
func (g *Graph) Special(axisName string, size int) *UOp {
	return g.intern1(SPECIAL, Int32, nil, specialArg{axisName, size})
}

type specialArg struct {
	AxisName string
	Size     int
}

// Range opens a sequential loop over [min,max) identified by loopID;
// isReduce marks a reduction loop for DEFINE_ACC ordering checks.
func (g *Graph) Range(min, max int64, loopID string, isReduce bool) *UOp {
	return g.intern1(RANGE, Int32, nil, rangeArg{min, max, loopID, isReduce})
}

type rangeArg struct {
	Min, Max int64
	LoopID   string
	IsReduce bool
}

// RangeArg exposes a RANGE UOp's argument fields.
func RangeArg(u *UOp) (min, max int64, loopID string, isReduce bool) {
	a := u.Arg.(rangeArg)
	return a.Min, a.Max, a.LoopID, a.IsReduce
}

// EndRange closes the RANGE it is given; the two are linked by sharing
// that RANGE UOp as EndRange's sole source.
func (g *Graph) EndRange(r *UOp) *UOp {
	return g.intern1(ENDRANGE, Void, []*UOp{r}, nil)
}

// DefineAcc declares a loop accumulator: exactly one CONST initial-value
// source plus the RANGE UOps of the reduction(s) it depends on, per
// spec §3's DEFINE_ACC invariant.
func (g *Graph) DefineAcc(init *UOp, dtype DType, ranges ...*UOp) *UOp {
	src := append([]*UOp{init}, ranges...)
	return g.intern1(DEFINE_ACC, dtype, src, nil)
}

// Load reads buf[idx], gated by valid.
func (g *Graph) Load(buf, idx, valid *UOp, dtype DType) *UOp {
	return g.intern1(LOAD, dtype, []*UOp{buf, idx, valid}, nil)
}

// Store writes val to buf[idx], gated by valid.
func (g *Graph) Store(buf, idx, val, valid *UOp) *UOp {
	return g.intern1(STORE, Void, []*UOp{buf, idx, val, valid}, nil)
}

// Phi joins an accumulator's initial value with its reduced value at
// loop end (spec §4.5 "PHI joins an accumulator...").
func (g *Graph) Phi(acc, val *UOp) *UOp {
	return g.intern1(PHI, acc.DType, []*UOp{acc, val}, nil)
}

// If opens a predicated section.
func (g *Graph) If(cond *UOp) *UOp {
	return g.intern1(IF, Void, []*UOp{cond}, nil)
}

// EndIf closes the matching IF.
func (g *Graph) EndIf(ifUOp *UOp) *UOp {
	return g.intern1(ENDIF, Void, []*UOp{ifUOp}, nil)
}

// Barrier synchronises local-memory writes before downstream reads.
func (g *Graph) Barrier() *UOp {
	return g.intern1(BARRIER, Void, nil, nil)
}

// Vectorize packs scalar UOps into one vector value.
func (g *Graph) Vectorize(dtype DType, lanes ...*UOp) *UOp {
	return g.intern1(VECTORIZE, dtype, lanes, nil)
}

// Cast converts src to dtype.
func (g *Graph) Cast(src *UOp, dtype DType) *UOp {
	return g.intern1(CAST, dtype, []*UOp{src}, nil)
}

// Sink builds the unique DAG root over the kernel's STOREs.
func (g *Graph) Sink(stores ...*UOp) *UOp {
	return g.intern1(SINK, Void, stores, nil)
}

// Noop constructs the elided-operation marker.
func (g *Graph) Noop() *UOp {
	return g.intern1(NOOP, Void, nil, nil)
}

// Expand marks an upcast/unroll axis: one UOp per iteration, collapsed
// by CONTRACT or turned into VECTORIZE/GEP by the rewriter.
func (g *Graph) Expand(dtype DType, lanes ...*UOp) *UOp {
	return g.intern1(EXPAND, dtype, lanes, nil)
}

// Contract merges EXPAND lanes of a reduction back into scalar form.
func (g *Graph) Contract(dtype DType, src *UOp) *UOp {
	return g.intern1(CONTRACT, dtype, []*UOp{src}, nil)
}

// Wmma emits a tensor-core matmul-accumulate intrinsic carrying cfg.
func (g *Graph) Wmma(dtype DType, cfg TensorCoreConfig, a, b, acc *UOp) *UOp {
	return g.intern1(WMMA, dtype, []*UOp{a, b, acc}, cfg)
}
