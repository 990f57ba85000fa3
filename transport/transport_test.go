package transport_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igoforth/ws-rpc/transport"
)

func collect(t *testing.T, tr transport.Transport) <-chan transport.Frame {
	t.Helper()
	ch := make(chan transport.Frame, 16)
	tr.Subscribe(func(f transport.Frame) { ch <- f })
	return ch
}

func next(t *testing.T, ch <-chan transport.Frame) transport.Frame {
	t.Helper()
	select {
	case f := <-ch:
		return f
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
		return nil
	}
}

func TestPipeDeliversInOrder(t *testing.T) {
	a, b := transport.Pipe()
	defer a.Close(1000, "done")

	got := collect(t, b)

	require.NoError(t, a.Send(transport.Text("one")))
	require.NoError(t, a.Send(transport.Binary{0x01, 0x02}))
	require.NoError(t, a.Send(transport.Chunked{{0x03}, {0x04}}))

	assert.Equal(t, transport.Text("one"), next(t, got))
	assert.Equal(t, transport.Binary{0x01, 0x02}, next(t, got))
	assert.Equal(t, transport.Chunked{{0x03}, {0x04}}, next(t, got))
}

func TestPipeIsBidirectional(t *testing.T) {
	a, b := transport.Pipe()
	defer a.Close(1000, "done")

	fromB := collect(t, a)
	require.NoError(t, b.Send(transport.Text("hi")))
	assert.Equal(t, transport.Text("hi"), next(t, fromB))
}

func TestPipeClose(t *testing.T) {
	a, b := transport.Pipe()
	assert.Equal(t, transport.Open, a.ReadyState())
	assert.Equal(t, transport.Open, b.ReadyState())

	require.NoError(t, a.Close(1000, "done"))
	assert.Equal(t, transport.Closed, a.ReadyState())
	assert.Equal(t, transport.Closed, b.ReadyState())

	assert.ErrorIs(t, a.Send(transport.Text("late")), transport.ErrClosed)
	assert.ErrorIs(t, b.Send(transport.Text("late")), transport.ErrClosed)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "connecting", transport.Connecting.String())
	assert.Equal(t, "open", transport.Open.String())
	assert.Equal(t, "closing", transport.Closing.String())
	assert.Equal(t, "closed", transport.Closed.String())
}
