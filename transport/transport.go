// Package transport defines the message-duplex interface a peer speaks
// over. The package does not dial or accept connections; adapters wrap a
// concrete socket (see wstransport) and test code can use an in-memory Pipe.
package transport

import "errors"

// State describes the readiness of a transport, mirroring the WebSocket
// readyState values.
type State int

const (
	Connecting State = iota
	Open
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	}
	return "invalid"
}

// ErrClosed is reported by Send when the transport is not open.
var ErrClosed = errors.New("transport is closed")

// A Frame is one inbound or outbound transport message. It is a closed sum:
// the concrete types are Text, Binary and Chunked.
type Frame interface {
	frame()
}

// Text is a frame carrying UTF-8 text.
type Text string

// Binary is a frame carrying a single binary buffer.
type Binary []byte

// Chunked is a fragmented binary frame delivered as an ordered sequence of
// chunks. Consumers must treat it as the concatenation of its parts.
type Chunked [][]byte

func (Text) frame()    {}
func (Binary) frame()  {}
func (Chunked) frame() {}

// A Transport is an abstract bidirectional message stream. Implementations
// must allow Send and Close to be called from any goroutine; inbound frames
// are delivered sequentially to the subscribed receiver.
//
// Reconnection and backoff are the adapter's business: an adapter that
// reconnects must keep delivering inbound frames to the same subscriber and
// report Open again once the new socket is up. The peer layer only observes
// ReadyState and never initiates reconnects.
type Transport interface {
	// Send transmits one frame. It reports ErrClosed if the transport is
	// not open.
	Send(Frame) error

	// Close tears the transport down with the given status code and reason.
	// Closing an already-closed transport is a no-op.
	Close(statusCode int, reason string) error

	// ReadyState reports the current connection state.
	ReadyState() State

	// Subscribe registers the receiver for inbound frames. At most one
	// receiver is supported; registering again replaces it.
	Subscribe(func(Frame))
}
