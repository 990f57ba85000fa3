package handler_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wsrpc "github.com/igoforth/ws-rpc"
	"github.com/igoforth/ws-rpc/handler"
)

func TestNewNoArgs(t *testing.T) {
	h := handler.New(func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	got, err := h.Handle(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestNewErrorOnly(t *testing.T) {
	boom := errors.New("boom")
	h := handler.New(func(ctx context.Context) error { return boom })
	_, err := h.Handle(context.Background(), nil)
	assert.Equal(t, boom, err)
}

func TestNewAnyArg(t *testing.T) {
	h := handler.New(func(ctx context.Context, params any) (any, error) {
		return params, nil
	})
	got, err := h.Handle(context.Background(), map[string]any{"x": "y"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": "y"}, got)

	got, err = h.Handle(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestNewStructArg(t *testing.T) {
	type args struct {
		ID string `json:"id"`
	}
	h := handler.New(func(ctx context.Context, a args) (string, error) {
		return "user:" + a.ID, nil
	})
	got, err := h.Handle(context.Background(), map[string]any{"id": "123"})
	require.NoError(t, err)
	assert.Equal(t, "user:123", got)
}

func TestNewStructArgConversionFailure(t *testing.T) {
	type args struct {
		Count int `json:"count"`
	}
	h := handler.New(func(ctx context.Context, a args) (int, error) {
		return a.Count, nil
	})
	_, err := h.Handle(context.Background(), map[string]any{"count": "not a number"})
	require.Error(t, err)
	var e *wsrpc.Error
	require.ErrorAs(t, err, &e)
	assert.Contains(t, e.Message, "invalid parameters")
}

func TestNewPanicsOnBadSignature(t *testing.T) {
	bad := []any{
		nil,
		"not a function",
		func() {},                      // no context
		func(int) error { return nil }, // wrong first arg
		func(context.Context) {},       // no results
		func(context.Context) (int, int) { return 0, 0 }, // no error result
	}
	for _, fn := range bad {
		assert.Panics(t, func() { handler.New(fn) }, "fn %T", fn)
	}
}

func TestMap(t *testing.T) {
	m := handler.Map{
		"b": handler.New(func(ctx context.Context) error { return nil }),
		"a": handler.New(func(ctx context.Context) error { return nil }),
	}
	assert.NotNil(t, m.Assign("a"))
	assert.Nil(t, m.Assign("missing"))
	assert.Equal(t, []string{"a", "b"}, m.Names())
}

type fakeHost struct{ last string }

func (h *fakeHost) OnDone(payload any, cctx wsrpc.CallbackContext)  { h.last = "OnDone" }
func (h *fakeHost) OnOther(payload any, cctx wsrpc.CallbackContext) { h.last = "OnOther" }

// NotACallback has the wrong shape and must be skipped.
func (h *fakeHost) NotACallback(s string) string { return s }

func TestRegistryFromHost(t *testing.T) {
	h := &fakeHost{}
	reg, err := handler.RegistryFromHost(h)
	require.NoError(t, err)
	assert.Equal(t, []string{"OnDone", "OnOther"}, reg.Names())

	cb, ok := reg.Callback("OnDone")
	require.True(t, ok)
	cb(nil, wsrpc.CallbackContext{})
	assert.Equal(t, "OnDone", h.last)

	_, ok = reg.Callback("NotACallback")
	assert.False(t, ok)
}

func TestRegistryFromHostRejectsEmpty(t *testing.T) {
	_, err := handler.RegistryFromHost(struct{}{})
	assert.Error(t, err)
	_, err = handler.RegistryFromHost(nil)
	assert.Error(t, err)
}

func TestStaticRegistry(t *testing.T) {
	var called bool
	reg := handler.Registry{
		"onDone": func(payload any, cctx wsrpc.CallbackContext) { called = true },
	}
	cb, ok := reg.Callback("onDone")
	require.True(t, ok)
	cb("x", wsrpc.CallbackContext{})
	assert.True(t, called)
}
