package code_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/igoforth/ws-rpc/code"
)

func TestRegisteredValues(t *testing.T) {
	tests := []struct {
		code code.Code
		want int32
	}{
		{code.ParseError, -32700},
		{code.InvalidRequest, -32600},
		{code.MethodNotFound, -32601},
		{code.InvalidParams, -32602},
		{code.InternalError, -32603},
		{code.Timeout, -32000},
		{code.ConnectionClosed, -32001},
		{code.ValidationError, -32002},
	}
	for _, test := range tests {
		if got := int32(test.code); got != test.want {
			t.Errorf("Code %s: got %d, want %d", test.code, got, test.want)
		}
	}
}

func TestString(t *testing.T) {
	if got, want := code.MethodNotFound.String(), "method not found"; got != want {
		t.Errorf("String: got %q, want %q", got, want)
	}
	if got, want := code.Code(-99).String(), "error code -99"; got != want {
		t.Errorf("String (unregistered): got %q, want %q", got, want)
	}
}

func TestErr(t *testing.T) {
	if err := code.Code(0).Err(); err != nil {
		t.Errorf("Err(0): got %v, want nil", err)
	}
	err := code.Timeout.Err()
	if err == nil {
		t.Fatal("Err(Timeout): got nil, want error")
	}
	if got, want := err.Error(), code.Timeout.String(); got != want {
		t.Errorf("Err(Timeout).Error(): got %q, want %q", got, want)
	}
}

type coded struct{ c code.Code }

func (c coded) Error() string      { return "coded error" }
func (c coded) ErrCode() code.Code { return c.c }

func TestFromError(t *testing.T) {
	tests := []struct {
		err  error
		want code.Code
	}{
		{nil, 0},
		{coded{code.ValidationError}, code.ValidationError},
		{fmt.Errorf("wrapped: %w", coded{code.MethodNotFound}), code.MethodNotFound},
		{context.DeadlineExceeded, code.Timeout},
		{context.Canceled, code.ConnectionClosed},
		{errors.New("plain"), code.InternalError},
	}
	for _, test := range tests {
		if got := code.FromError(test.err); got != test.want {
			t.Errorf("FromError(%v): got %v, want %v", test.err, got, test.want)
		}
	}
}
