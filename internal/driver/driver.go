// Package driver declares the external collaborator boundary spec.md
// §6 names: something that compiles rendered kernel source for a
// target and later runs it against concrete buffers. internal/tensor
// depends only on the Driver/Program/Buffer interfaces; CPUDriver in
// this package is the one reference implementation tensorc ships,
// grounded on the teacher's bytecode interpreter loop
// (internal/vm/vm.go's EnhancedVM.Run switch-over-OpCode), generalized
// from "evaluate a flat bytecode chunk against a value stack" to
// "evaluate a UOp graph against device buffers".
package driver

import "context"

// Buffer is a driver-visible block of device memory. internal/tensor
// wraps each realised internal/lazy.Buffer in one of these before
// handing it to a Program.
type Buffer interface {
	Data() []float32
}

// Driver compiles rendered kernel source into a runnable Program.
type Driver interface {
	Compile(source string, global, local [3]int) (Program, error)
}

// Program runs one compiled kernel against concrete buffers and
// dynamic symbolic-variable bindings.
type Program interface {
	Run(ctx context.Context, buffers []Buffer, vars map[string]int64) error
}

// SliceBuffer is the simplest Buffer: a plain Go slice.
type SliceBuffer []float32

func (b SliceBuffer) Data() []float32 { return b }
