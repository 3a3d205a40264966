// Package uop implements the typed micro-op IR (spec §3 "UOp", §4.5):
// a hash-consed DAG of loops, loads, stores, ALU ops, reductions, and
// special dims that every scheduled kernel AST is lowered into by the
// linearizer (internal/linearize) before rewriting (internal/rewrite)
// and rendering (internal/render).
package uop

import "fmt"

// Kind is the closed tag set of UOp node shapes, mirroring the
// teacher's register-bytecode OpCode enum style (one doc-comment line
// per op, grouped by concern) generalized from "VM instruction" to "IR
// graph node".
type Kind int

const (
	DEFINE_GLOBAL Kind = iota // DEFINE_GLOBAL(i)       declares kernel argument buffer i
	DEFINE_LOCAL              // DEFINE_LOCAL(name,sz)  declares a workgroup-local buffer
	DEFINE_ACC                // DEFINE_ACC             declares a loop accumulator, src[0] = initial CONST
	CONST                     // CONST(v)               a literal value
	SPECIAL                   // SPECIAL(axis,size)     a hardware-parallel axis (global/local id)
	RANGE                     // RANGE(min,max,id,isReduce) opens a sequential loop
	ENDRANGE                  // ENDRANGE               closes the matching RANGE
	LOAD                      // LOAD(buf,idx,valid)    reads buf[idx], gated by valid
	STORE                     // STORE(buf,idx,val,valid) writes val to buf[idx]
	ALU                       // ALU(op)                an arithmetic/logical operator over src
	REDUCE                    // REDUCE(op)              pre-linearized reduction marker
	GEP                       // GEP(i)                 projects lane i of a vector
	VECTORIZE                 // VECTORIZE              packs scalar src into one vector
	CAST                      // CAST(dtype)             numeric conversion
	BITCAST                   // BITCAST(dtype)          reinterpret bits
	WMMA                      // WMMA(cfg)               tensor-core matmul-accumulate intrinsic
	IF                        // IF(cond)                opens a predicated section
	ENDIF                     // ENDIF                   closes the matching IF
	BARRIER                   // BARRIER                synchronises local-memory writes/reads
	PHI                       // PHI(acc,val)            joins accumulator with its loop-end value
	NOOP                      // NOOP                   a no-op, e.g. an elided redundant store
	SINK                      // SINK                   the unique DAG root
	EXPAND                    // EXPAND                 unrolled-iteration marker, pre-render
	CONTRACT                  // CONTRACT               merges EXPAND lanes back, pre-render
)

func (k Kind) String() string {
	names := [...]string{
		"DEFINE_GLOBAL", "DEFINE_LOCAL", "DEFINE_ACC", "CONST", "SPECIAL",
		"RANGE", "ENDRANGE", "LOAD", "STORE", "ALU", "REDUCE", "GEP",
		"VECTORIZE", "CAST", "BITCAST", "WMMA", "IF", "ENDIF", "BARRIER",
		"PHI", "NOOP", "SINK", "EXPAND", "CONTRACT",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "UNKNOWN"
}

// DType is the element type a UOp computes or a buffer holds.
type DType int

const (
	Float32 DType = iota
	Int32
	Bool
	Void // ENDRANGE/STORE/BARRIER/SINK/IF/ENDIF carry no value
)

func (d DType) String() string {
	switch d {
	case Float32:
		return "float"
	case Int32:
		return "int"
	case Bool:
		return "bool"
	default:
		return "void"
	}
}

// ALUOp enumerates the operators an ALU UOp's Arg carries.
type ALUOp int

const (
	Add ALUOp = iota
	Sub
	Mul
	Div
	Mod
	Max
	Lt
	Ge
	And
	Or
	Neg
	Exp
	Log
	Sqrt
	Recip
	Where
)

func (op ALUOp) String() string {
	names := [...]string{"ADD", "SUB", "MUL", "DIV", "MOD", "MAX", "LT", "GE", "AND", "OR", "NEG", "EXP", "LOG", "SQRT", "RECIP", "WHERE"}
	if int(op) < len(names) {
		return names[op]
	}
	return "?"
}

// Commutative reports whether op's operands may be matched unordered by
// the pattern rewriter (spec §4.7 "commutative ALU ops accept an
// unordered match").
func (op ALUOp) Commutative() bool {
	switch op {
	case Add, Mul, Max, And, Or:
		return true
	default:
		return false
	}
}

// UOp is a node in the typed micro-op DAG. Structural equality collapses
// to pointer equality because every UOp is constructed through New,
// which hash-conses against the owning Graph's intern table (spec §3
// "hash-consed: structural equality collapses to pointer identity").
type UOp struct {
	Op    Kind
	DType DType
	Src   []*UOp
	Arg   any

	key string // memoised structural key used by the intern table
	seq  int   // creation order within its Graph, used for deterministic sorts
}

func (u *UOp) String() string {
	return fmt.Sprintf("%s<%s>(%v)#%p", u.Op, u.DType, u.Arg, u)
}
