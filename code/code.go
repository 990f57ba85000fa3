// Package code defines the error code space used on the wire. The code
// assignments are compatible with the JSON-RPC 2.0 specification, with
// implementation-defined codes in the -32000..-32099 range for conditions
// the base protocol does not name.
package code

import (
	"context"
	"errors"
	"fmt"
)

// A Code is a machine-readable identifier for an error condition. Codes
// travel in the "code" field of error messages and are echoed back to
// callers inside the concrete error type of this module.
type Code int32

func (c Code) String() string {
	if s, ok := stdError[c]; ok {
		return s
	}
	return fmt.Sprintf("error code %d", c)
}

// Err converts c to an error value, which is nil for code 0 and otherwise a
// codeError whose value is c.
func (c Code) Err() error {
	if c == 0 {
		return nil
	}
	return codeError(c)
}

// Registered code values. The five codes from -32700 to -32603 are assigned
// by the JSON-RPC 2.0 specification; the -320xx codes are this protocol's own.
const (
	ParseError       Code = -32700 // Invalid wire frame received
	InvalidRequest   Code = -32600 // The request is not a valid message
	MethodNotFound   Code = -32601 // The method does not exist
	InvalidParams    Code = -32602 // Invalid method parameters
	InternalError    Code = -32603 // Internal error while handling the call
	Timeout          Code = -32000 // The call deadline elapsed
	ConnectionClosed Code = -32001 // The endpoint or transport is closed
	ValidationError  Code = -32002 // A value was rejected by its schema
)

var stdError = map[Code]string{
	ParseError:       "parse error",
	InvalidRequest:   "invalid request",
	MethodNotFound:   "method not found",
	InvalidParams:    "invalid parameters",
	InternalError:    "internal error",
	Timeout:          "request timed out",
	ConnectionClosed: "connection closed",
	ValidationError:  "validation failed",
}

// A codeError wraps a Code to satisfy the standard error interface.  This
// indirection prevents a code from being confused for a normal error value
// when used outside the package.
type codeError Code

func (c codeError) Error() string { return Code(c).String() }

// Is reports whether err has code c. An error reporting ErrCode c matches,
// as does a bare codeError with the same value.
func (c codeError) Is(err error) bool {
	v, ok := err.(ErrCoder)
	return ok && Code(c) == v.ErrCode()
}

// An ErrCoder is a value that can report an error code.
type ErrCoder interface {
	ErrCode() Code
}

// FromError returns the most specific code for err: the code reported by an
// ErrCoder in its chain if there is one, Timeout for a context deadline,
// ConnectionClosed for a context cancellation, and InternalError otherwise.
// A nil error maps to code 0.
func FromError(err error) Code {
	if err == nil {
		return 0
	}
	var ec ErrCoder
	if errors.As(err, &ec) {
		return ec.ErrCode()
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Timeout
	case errors.Is(err, context.Canceled):
		return ConnectionClosed
	}
	return InternalError
}
