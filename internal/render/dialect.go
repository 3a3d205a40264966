// Package render implements the C8 renderer: it lowers any remaining
// EXPAND/CONTRACT markers, orders a UOp graph for linear emission,
// inserts scope-closing markers at their last use, verifies the
// result, and walks it emitting dialect-specific textual source.
// Grounded on the teacher's internal/formatter.Formatter ("walk a
// structured representation and emit textual source with pluggable
// formatting rules"), generalized from pretty-printing Sentra source
// to emitting C-style kernel text from a UOp list.
package render

import "tensorc/internal/uop"

// Template renders one ALU operator's textual form, receiving each
// operand's already-rendered expression text in source order.
type Template func(args ...string) string

// Dialect is the configuration record spec.md §6 names: every textual
// fragment and flag a renderer needs to target one device family.
type Dialect struct {
	Name string

	KernelPrefix string
	BufferPrefix string
	SmemPrefix   string
	Barrier      string

	GlobalIndexExprs [4]string
	LocalIndexExprs  [4]string

	Float4Ctor string

	CodeForOp map[uop.ALUOp]Template

	HasImageSupport bool
	HasHalfVload    bool
}

func binOp(sym string) Template {
	return func(args ...string) string { return "(" + args[0] + " " + sym + " " + args[1] + ")" }
}

func call1(name string) Template {
	return func(args ...string) string { return name + "(" + args[0] + ")" }
}

func call2(name string) Template {
	return func(args ...string) string { return name + "(" + args[0] + ", " + args[1] + ")" }
}

func defaultCodeForOp() map[uop.ALUOp]Template {
	return map[uop.ALUOp]Template{
		uop.Add:   binOp("+"),
		uop.Sub:   binOp("-"),
		uop.Mul:   binOp("*"),
		uop.Div:   binOp("/"),
		uop.Mod:   binOp("%"),
		uop.Lt:    binOp("<"),
		uop.Ge:    binOp(">="),
		uop.And:   binOp("&&"),
		uop.Or:    binOp("||"),
		uop.Max:   call2("max"),
		uop.Neg:   call1("-"),
		uop.Exp:   call1("exp"),
		uop.Log:   call1("log"),
		uop.Sqrt:  call1("sqrt"),
		uop.Recip: func(args ...string) string { return "(1.0f / " + args[0] + ")" },
		uop.Where: func(args ...string) string { return "(" + args[0] + " ? " + args[1] + " : " + args[2] + ")" },
	}
}

// CDialect targets plain, single-threaded C: no local memory, no
// hardware parallel axes (internal/linearize's default TargetDesc
// never emits SPECIAL/BARRIER for it, so GlobalIndexExprs/
// LocalIndexExprs/Barrier go unused but are still declared for
// structural completeness with the Dialect contract).
var CDialect = Dialect{
	Name:         "c",
	KernelPrefix: "void",
	BufferPrefix: "",
	SmemPrefix:   "static",
	Barrier:      "/* no-op: single-threaded */",
	GlobalIndexExprs: [4]string{
		"0", "0", "0", "0",
	},
	LocalIndexExprs: [4]string{
		"0", "0", "0", "0",
	},
	Float4Ctor: "(float4)",
	CodeForOp:  defaultCodeForOp(),
}

// OpenCLDialect targets an OpenCL-family device; field values are
// grounded on original_source/accel/opencl/ops_opencl.py and
// tinygrad/renderer/cstyle.py (barrier spelling, get_global_id/
// get_local_id index forms).
var OpenCLDialect = Dialect{
	Name:         "opencl",
	KernelPrefix: "__kernel void",
	BufferPrefix: "__global",
	SmemPrefix:   "__local",
	Barrier:      "barrier(CLK_LOCAL_MEM_FENCE);",
	GlobalIndexExprs: [4]string{
		"get_global_id(0)", "get_global_id(1)", "get_global_id(2)", "0",
	},
	LocalIndexExprs: [4]string{
		"get_local_id(0)", "get_local_id(1)", "get_local_id(2)", "0",
	},
	Float4Ctor: "(float4)",
	CodeForOp:  defaultCodeForOp(),
	HasImageSupport: true,
	HasHalfVload:    true,
}
