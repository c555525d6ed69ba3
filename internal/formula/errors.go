package formula

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes compile errors.
type ErrorCode string

const (
	// ErrCodeEmptyExpression indicates a blank formula.
	ErrCodeEmptyExpression ErrorCode = "EMPTY_EXPRESSION"

	// ErrCodeDisallowedToken indicates a character or identifier outside the whitelist.
	ErrCodeDisallowedToken ErrorCode = "DISALLOWED_TOKEN"

	// ErrCodeInvalidReturnArity indicates a result that is not a 3- or 4-element array.
	ErrCodeInvalidReturnArity ErrorCode = "INVALID_RETURN_ARITY"

	// ErrCodeSyntax indicates whitelisted tokens in an order the grammar rejects.
	ErrCodeSyntax ErrorCode = "SYNTAX_ERROR"
)

// CompileError is returned by Compile and Expand.
type CompileError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Pos is the byte offset into the formula text, or -1 when the error
	// concerns the formula as a whole.
	Pos int

	// Token is the offending token text, if any.
	Token string
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	if e.Pos >= 0 && e.Token != "" {
		return fmt.Sprintf("%s: %s (at %d: %q)", e.Code, e.Message, e.Pos, e.Token)
	}
	if e.Pos >= 0 {
		return fmt.Sprintf("%s: %s (at %d)", e.Code, e.Message, e.Pos)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CodeOf returns the ErrorCode carried by err, or "" if err is not a CompileError.
func CodeOf(err error) ErrorCode {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsEmptyExpression reports whether err is an EMPTY_EXPRESSION compile error.
func IsEmptyExpression(err error) bool { return CodeOf(err) == ErrCodeEmptyExpression }

// IsDisallowedToken reports whether err is a DISALLOWED_TOKEN compile error.
func IsDisallowedToken(err error) bool { return CodeOf(err) == ErrCodeDisallowedToken }

// IsInvalidReturnArity reports whether err is an INVALID_RETURN_ARITY compile error.
func IsInvalidReturnArity(err error) bool { return CodeOf(err) == ErrCodeInvalidReturnArity }

// IsSyntaxError reports whether err is a SYNTAX_ERROR compile error.
func IsSyntaxError(err error) bool { return CodeOf(err) == ErrCodeSyntax }

func newEmptyError() *CompileError {
	return &CompileError{Code: ErrCodeEmptyExpression, Message: "formula is empty", Pos: -1}
}

func newDisallowedError(pos int, tok string) *CompileError {
	return &CompileError{
		Code:    ErrCodeDisallowedToken,
		Message: "symbol or identifier is not allowed",
		Pos:     pos,
		Token:   tok,
	}
}

func newSyntaxError(pos int, tok, format string, args ...any) *CompileError {
	return &CompileError{
		Code:    ErrCodeSyntax,
		Message: fmt.Sprintf(format, args...),
		Pos:     pos,
		Token:   tok,
	}
}

func newArityError(pos, n int) *CompileError {
	return &CompileError{
		Code:    ErrCodeInvalidReturnArity,
		Message: fmt.Sprintf("formula must return an array of 3 or 4 values [r,g,b,(a)], got %s", describeArity(n)),
		Pos:     pos,
	}
}

func describeArity(n int) string {
	if n < 0 {
		return "a scalar"
	}
	return fmt.Sprintf("%d value(s)", n)
}
