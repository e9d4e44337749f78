package lex

import (
	"errors"
	"fmt"
)

// ErrRegistryFrozen is returned when a callback is registered after Freeze.
var ErrRegistryFrozen = errors.New("lex: callback registry is frozen")

// StructuralError reports unbalanced markup: a closing tag without an open
// block, or a conditional chain that is not opened or closed correctly.
// It is fatal for the Parse call that hit it.
type StructuralError struct {
	Tag string
	Msg string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("lex: %s: %s", e.Msg, e.Tag)
}

// ExpressionError reports a conditional expression that could not be parsed.
// The branch is treated as false and rendering continues.
type ExpressionError struct {
	Expr string
	Pos  int
	Msg  string
}

func (e *ExpressionError) Error() string {
	return fmt.Sprintf("lex: invalid expression %q at %d: %s", e.Expr, e.Pos, e.Msg)
}

// RecursionLimitError is returned when loop or callback nesting exceeds
// Config.MaxDepth. It is fatal for the Parse call that hit it.
type RecursionLimitError struct {
	Limit int
	Near  string
}

func (e *RecursionLimitError) Error() string {
	if e.Near == "" {
		return fmt.Sprintf("lex: recursion limit of %d exceeded", e.Limit)
	}
	return fmt.Sprintf("lex: recursion limit of %d exceeded near %q", e.Limit, e.Near)
}

// CallbackError wraps an error returned by a callback. The tag renders empty
// and rendering continues.
type CallbackError struct {
	Name string
	Err  error
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("lex: callback %q failed: %v", e.Name, e.Err)
}

func (e *CallbackError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err, or any error joined into it, stopped a render.
// Errors that are not fatal come with complete output.
func IsFatal(err error) bool {
	var structural *StructuralError
	var recursion *RecursionLimitError
	return errors.As(err, &structural) || errors.As(err, &recursion)
}
