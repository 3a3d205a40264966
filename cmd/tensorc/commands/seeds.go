// Package commands implements cmd/tensorc's subcommands. There is no
// textual source language in front of internal/tensor yet — the
// embedder surface is the Go API itself (spec.md §8) — so every
// subcommand here operates on one of the named seed scenarios spec.md
// §8 defines, the same fixed set internal/tensor's end-to-end test
// exercises.
package commands

import (
	"fmt"

	"tensorc/internal/tensor"
)

// Seed builds one spec.md §8 scenario and returns its un-realized
// result Tensor, ready for Realize/Compile/dump-ir/dump-uops.
type Seed struct {
	Name        string
	Description string
	Build       func() *tensor.Tensor
}

// Seeds is the fixed named-scenario table cmd/tensorc dispatches
// against, in the order spec.md §8 lists them.
var Seeds = []Seed{
	{
		Name:        "sum",
		Description: "a=[1,2,3,4]; b=a+1; b.sum()",
		Build: func() *tensor.Tensor {
			a := tensor.FromSlice([]float32{1, 2, 3, 4}, 4)
			return a.AddScalar(1).Sum()
		},
	},
	{
		Name:        "reshape",
		Description: "a=zeros((4,4)); b=a.reshape(16)+2; c=b.reshape(4,4)",
		Build: func() *tensor.Tensor {
			a := tensor.Zeros(4, 4)
			b := a.Reshape(16).AddScalar(2)
			return b.Reshape(4, 4)
		},
	},
	{
		Name:        "pad",
		Description: "a=ones((3,3)).pad((1,1,1,1))",
		Build: func() *tensor.Tensor {
			a := tensor.Ones(3, 3)
			return a.Pad([2]int64{1, 1}, [2]int64{1, 1})
		},
	},
	{
		Name:        "loopcollapse",
		Description: "a=arange(0,10); (a<4).sum()",
		Build: func() *tensor.Tensor {
			a := tensor.Arange(0, 10)
			mask := a.LtScalar(4)
			return mask.Sum()
		},
	},
	{
		Name:        "matmul",
		Description: "a=(2,3); b=(3,2); a.matmul(b)",
		Build: func() *tensor.Tensor {
			a := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
			b := tensor.FromSlice([]float32{7, 8, 9, 10, 11, 12}, 3, 2)
			return a.Matmul(b)
		},
	},
	{
		Name:        "broadcast",
		Description: "col=(3,1); row=(1,3); col+row",
		Build: func() *tensor.Tensor {
			col := tensor.FromSlice([]float32{1, 2, 3}, 3, 1)
			row := tensor.FromSlice([]float32{10, 20, 30}, 1, 3)
			return col.Add(row)
		},
	},
}

// FindSeed looks up a scenario by name.
func FindSeed(name string) (Seed, error) {
	for _, s := range Seeds {
		if s.Name == name {
			return s, nil
		}
	}
	return Seed{}, fmt.Errorf("unknown seed scenario %q (run 'tensorc list' to see available scenarios)", name)
}
