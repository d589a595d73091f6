// Package kcerr defines the error taxonomy shared by the cache, planner and solver layers.
package kcerr

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrBadParameter        = errors.New("bad parameter")
	ErrDimension           = errors.New("unsupported tensor dimension")
	ErrNoApplicableSolver  = errors.New("no applicable solver")
	ErrNoSupportedInstance = errors.New("no supported backend instance")
	ErrNotFound            = errors.New("not found")
	ErrReadOnly            = errors.New("store is read-only")
)

// Error provides detailed information about a failed operation.
type Error struct {
	Kind   error  // One of the sentinel errors above
	Op     string // Operation that failed (e.g. "OpTensor")
	Detail string // Additional details
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Unwrap returns the sentinel so errors.Is matches on the kind.
func (e *Error) Unwrap() error {
	return e.Kind
}

// BadParameter reports an invalid argument detected before any device work.
func BadParameter(op, format string, args ...any) error {
	return &Error{Kind: ErrBadParameter, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// Dimension reports a tensor rank outside the supported range.
func Dimension(op string, rank int) error {
	return &Error{Kind: ErrDimension, Op: op, Detail: fmt.Sprintf("tensor dimension larger than 5: %d", rank)}
}

// NoApplicableSolver reports that no registered solver accepted a problem.
func NoApplicableSolver(problem string) error {
	return &Error{Kind: ErrNoApplicableSolver, Detail: problem}
}
