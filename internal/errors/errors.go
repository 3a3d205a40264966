// Package errors defines the compiler's error taxonomy: the kinds
// spec.md §7 names as fatal (shape mismatch, unsupported op, IR
// invariant violation, driver failure), carried as a single
// CompileError struct in the same Type/Message/Location shape the
// teacher's SentraError uses, generalized from "source file position"
// to "compiler pipeline stage". Pattern builder failure is
// deliberately absent: spec.md §7 requires it never be represented as
// an error (see internal/rewrite's (*UOp, bool) builder signature).
package errors

import (
	"fmt"
	"strings"
)

// Kind is the closed set of compiler error kinds.
type Kind string

const (
	ShapeMismatch Kind = "ShapeMismatch"
	UnsupportedOp Kind = "UnsupportedOp"
	IRInvariant   Kind = "IRInvariant"
	DriverFailure Kind = "DriverFailure"
)

// CompileError is the error type every pipeline stage returns.
type CompileError struct {
	Kind    Kind
	Message string
	Stage   string // "shape", "schedule", "linearize", "rewrite", "render"
	Detail  any    // e.g. the offending *uop.UOp set for IRInvariant
	Cause   error  // wrapped underlying error, if any
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s: %s", e.Kind, e.Message))
	if e.Stage != "" {
		sb.WriteString(fmt.Sprintf(" (stage=%s)", e.Stage))
	}
	if e.Detail != nil {
		sb.WriteString(fmt.Sprintf("\n  detail: %v", e.Detail))
	}
	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf("\n  caused by: %v", e.Cause))
	}
	return sb.String()
}

// Unwrap exposes Cause to errors.Is/errors.As.
func (e *CompileError) Unwrap() error { return e.Cause }

// NewShapeMismatch builds a ShapeMismatch error at the given stage.
func NewShapeMismatch(stage, message string) *CompileError {
	return &CompileError{Kind: ShapeMismatch, Message: message, Stage: stage}
}

// NewUnsupportedOp builds an UnsupportedOp error naming the offending kind.
func NewUnsupportedOp(stage, message string, detail any) *CompileError {
	return &CompileError{Kind: UnsupportedOp, Message: message, Stage: stage, Detail: detail}
}

// NewIRInvariant builds an IRInvariant error carrying the offending UOp set.
func NewIRInvariant(stage, message string, detail any) *CompileError {
	return &CompileError{Kind: IRInvariant, Message: message, Stage: stage, Detail: detail}
}

// NewDriverFailure wraps a driver-reported compilation/launch failure.
func NewDriverFailure(stage, message string, cause error) *CompileError {
	return &CompileError{Kind: DriverFailure, Message: message, Stage: stage, Cause: cause}
}

// WithDetail attaches additional diagnostic detail (e.g. the offending
// UOp set) to an already-built error.
func (e *CompileError) WithDetail(detail any) *CompileError {
	e.Detail = detail
	return e
}
