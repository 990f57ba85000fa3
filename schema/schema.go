// Package schema describes the callable surface of an endpoint: the methods
// it accepts together with their input and output validators, and the events
// it understands. Validators are opaque to the protocol; any schema system
// that can implement Validate can be plugged in.
package schema

import (
	"fmt"
	"strings"
)

// A Validator checks a decoded value and returns its normalized form.  The
// returned value replaces the input for all downstream use, which permits a
// validator to apply defaults or coercions. A failed validation returns a
// non-nil error; use Issues to carry structured findings.
type Validator interface {
	Validate(v any) (any, error)
}

// Func adapts a plain function to the Validator interface.
type Func func(v any) (any, error)

// Validate implements the Validator interface by calling f.
func (f Func) Validate(v any) (any, error) { return f(v) }

// Any returns a validator that accepts every value unchanged.
func Any() Validator {
	return Func(func(v any) (any, error) { return v, nil })
}

// Issues is the error type carrying individual validation findings. Each
// entry names the offending path and the reason it was rejected.
type Issues []Issue

// An Issue is a single validation finding.
type Issue struct {
	Path    string `json:"path,omitempty" msgpack:"path,omitempty" cbor:"path,omitempty"`
	Message string `json:"message" msgpack:"message" cbor:"message"`
}

func (is Issues) Error() string {
	if len(is) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(is))
	for i, issue := range is {
		if issue.Path == "" {
			parts[i] = issue.Message
		} else {
			parts[i] = issue.Path + ": " + issue.Message
		}
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Issuef constructs an Issues error with a single finding at path.
func Issuef(path, msg string, args ...any) Issues {
	return Issues{{Path: path, Message: fmt.Sprintf(msg, args...)}}
}

// A Method pairs the input and output validators for one method. A nil
// validator accepts anything.
type Method struct {
	Input  Validator
	Output Validator
}

func (m Method) input() Validator {
	if m.Input == nil {
		return Any()
	}
	return m.Input
}

func (m Method) output() Validator {
	if m.Output == nil {
		return Any()
	}
	return m.Output
}

// A Schema declares the methods and events one side of a connection
// understands. A Peer consults its local schema for inbound requests and
// emitted events, and its remote schema for outbound calls and inbound
// events. A nil *Schema declares nothing.
type Schema struct {
	Methods map[string]Method
	Events  map[string]Validator
}

// Method reports the named method and whether it is declared.
func (s *Schema) Method(name string) (Method, bool) {
	if s == nil {
		return Method{}, false
	}
	m, ok := s.Methods[name]
	return m, ok
}

// Event reports the validator for the named event and whether the event is
// declared. A declared event with a nil validator accepts any data.
func (s *Schema) Event(name string) (Validator, bool) {
	if s == nil {
		return nil, false
	}
	v, ok := s.Events[name]
	if ok && v == nil {
		v = Any()
	}
	return v, ok
}

// ValidateInput validates v against the named method's input validator.
func (s *Schema) ValidateInput(method string, v any) (any, error) {
	m, ok := s.Method(method)
	if !ok {
		return nil, fmt.Errorf("method %q not declared", method)
	}
	return m.input().Validate(v)
}

// ValidateOutput validates v against the named method's output validator.
func (s *Schema) ValidateOutput(method string, v any) (any, error) {
	m, ok := s.Method(method)
	if !ok {
		return nil, fmt.Errorf("method %q not declared", method)
	}
	return m.output().Validate(v)
}
