// Package wstransport adapts a gorilla/websocket connection to the
// transport.Transport interface.
package wstransport

import (
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/igoforth/ws-rpc/transport"
)

// Transport wraps a *websocket.Conn. gorilla permits at most one concurrent
// reader and one concurrent writer, so all writes serialize on writeMu and
// the single reader pump owns the read side.
type Transport struct {
	conn *websocket.Conn

	writeMu sync.Mutex // guards writes to conn

	mu     sync.Mutex
	state  transport.State
	recv   func(transport.Frame)
	closed chan struct{}
}

// New wraps an established websocket connection and starts its reader pump.
// The caller keeps ownership of dialing; see Dial for the common case.
func New(conn *websocket.Conn) *Transport {
	t := &Transport{
		conn:   conn,
		state:  transport.Open,
		closed: make(chan struct{}),
	}
	go t.readPump()
	return t
}

// Dial connects to the websocket endpoint at url and wraps the result.
func Dial(url string) (*Transport, error) {
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if resp != nil && resp.Body != nil {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return New(conn), nil
}

// Send implements part of the transport.Transport interface. Text frames
// are written as websocket text messages, binary and chunked frames as
// binary messages; chunked frames are written through a message writer so
// the fragments stay a single websocket message.
func (t *Transport) Send(f transport.Frame) error {
	if t.ReadyState() != transport.Open {
		return transport.ErrClosed
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	switch f := f.(type) {
	case transport.Text:
		return t.conn.WriteMessage(websocket.TextMessage, []byte(f))
	case transport.Binary:
		return t.conn.WriteMessage(websocket.BinaryMessage, f)
	case transport.Chunked:
		w, err := t.conn.NextWriter(websocket.BinaryMessage)
		if err != nil {
			return err
		}
		for _, chunk := range f {
			if _, err := w.Write(chunk); err != nil {
				w.Close()
				return err
			}
		}
		return w.Close()
	}
	return transport.ErrClosed
}

// Close implements part of the transport.Transport interface. A close
// message with the given status is sent best-effort before the socket is
// torn down.
func (t *Transport) Close(statusCode int, reason string) error {
	t.mu.Lock()
	if t.state == transport.Closed || t.state == transport.Closing {
		t.mu.Unlock()
		return nil
	}
	t.state = transport.Closing
	t.mu.Unlock()

	msg := websocket.FormatCloseMessage(statusCode, reason)
	t.writeMu.Lock()
	t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	t.writeMu.Unlock()

	err := t.conn.Close()
	t.setState(transport.Closed)
	return err
}

// ReadyState implements part of the transport.Transport interface.
func (t *Transport) ReadyState() transport.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Subscribe implements part of the transport.Transport interface.
func (t *Transport) Subscribe(recv func(transport.Frame)) {
	t.mu.Lock()
	t.recv = recv
	t.mu.Unlock()
}

// Done is closed once the reader pump has exited, i.e. the connection is
// finished for good.
func (t *Transport) Done() <-chan struct{} { return t.closed }

func (t *Transport) setState(s transport.State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

func (t *Transport) readPump() {
	defer close(t.closed)
	for {
		kind, data, err := t.conn.ReadMessage()
		if err != nil {
			t.setState(transport.Closed)
			return
		}
		var frame transport.Frame
		if kind == websocket.TextMessage {
			frame = transport.Text(data)
		} else {
			frame = transport.Binary(data)
		}
		t.mu.Lock()
		recv := t.recv
		t.mu.Unlock()
		if recv != nil {
			recv(frame)
		}
	}
}
