package wsrpc

import (
	"bytes"
	"fmt"

	"github.com/igoforth/ws-rpc/codec"
	"github.com/igoforth/ws-rpc/transport"
)

// Wire discriminator values, carried in the "type" field of every frame.
const (
	typeRequest  = "rpc:request"
	typeResponse = "rpc:response"
	typeError    = "rpc:error"
	typeEvent    = "rpc:event"
)

// A Message is one protocol frame. The concrete types are *Request,
// *Response, *ErrorMessage and *Event.
type Message interface {
	wireType() string
}

// A Request asks the remote peer to invoke a method. The id is an opaque
// correlation token chosen by the sender; the receiver echoes it verbatim.
type Request struct {
	ID     string
	Method string
	Params any
}

// A Response carries the successful result of a request.
type Response struct {
	ID     string
	Result any
}

// An ErrorMessage carries the failure of a request.
type ErrorMessage struct {
	ID      string
	Code    int32
	Message string
	Data    any
}

// An Event is a fire-and-forget notification. It has no id and is never
// acknowledged.
type Event struct {
	Event string
	Data  any
}

func (*Request) wireType() string      { return typeRequest }
func (*Response) wireType() string     { return typeResponse }
func (*ErrorMessage) wireType() string { return typeError }
func (*Event) wireType() string        { return typeEvent }

// Per-variant wire shapes. Params and Result are always present on the wire
// (encoded as null when nil) so every codec produces the same logical object.
type wireRequest struct {
	Type   string `json:"type" msgpack:"type" cbor:"type"`
	ID     string `json:"id" msgpack:"id" cbor:"id"`
	Method string `json:"method" msgpack:"method" cbor:"method"`
	Params any    `json:"params" msgpack:"params" cbor:"params"`
}

type wireResponse struct {
	Type   string `json:"type" msgpack:"type" cbor:"type"`
	ID     string `json:"id" msgpack:"id" cbor:"id"`
	Result any    `json:"result" msgpack:"result" cbor:"result"`
}

type wireError struct {
	Type    string  `json:"type" msgpack:"type" cbor:"type"`
	ID      string  `json:"id" msgpack:"id" cbor:"id"`
	Code    *int32  `json:"code" msgpack:"code" cbor:"code"`
	Message *string `json:"message" msgpack:"message" cbor:"message"`
	Data    any     `json:"data,omitempty" msgpack:"data,omitempty" cbor:"data,omitempty"`
}

type wireEvent struct {
	Type  string `json:"type" msgpack:"type" cbor:"type"`
	Event string `json:"event" msgpack:"event" cbor:"event"`
	Data  any    `json:"data" msgpack:"data" cbor:"data"`
}

// probe reads just enough of a frame to select the variant.
type probe struct {
	Type string `json:"type" msgpack:"type" cbor:"type"`
}

// A Protocol converts messages to and from transport frames using a single
// codec. The semantic surface is identical for every codec; only the frame
// encoding differs. A Protocol is stateless and safe for concurrent use.
type Protocol struct {
	codec codec.Codec
}

// NewProtocol returns a Protocol over the given codec.
func NewProtocol(c codec.Codec) *Protocol { return &Protocol{codec: c} }

// NewJSONProtocol returns a Protocol over the canonical JSON codec.
func NewJSONProtocol() *Protocol { return NewProtocol(codec.JSON{}) }

// Codec reports the codec the protocol encodes with.
func (p *Protocol) Codec() codec.Codec { return p.codec }

// EncodeRequest encodes a request frame.
func (p *Protocol) EncodeRequest(id, method string, params any) (transport.Frame, error) {
	return p.encode(wireRequest{Type: typeRequest, ID: id, Method: method, Params: params})
}

// EncodeResponse encodes a response frame.
func (p *Protocol) EncodeResponse(id string, result any) (transport.Frame, error) {
	return p.encode(wireResponse{Type: typeResponse, ID: id, Result: result})
}

// EncodeError encodes an error frame.
func (p *Protocol) EncodeError(id string, ecode int32, message string, data any) (transport.Frame, error) {
	return p.encode(wireError{Type: typeError, ID: id, Code: &ecode, Message: &message, Data: data})
}

// EncodeEvent encodes an event frame.
func (p *Protocol) EncodeEvent(event string, data any) (transport.Frame, error) {
	return p.encode(wireEvent{Type: typeEvent, Event: event, Data: data})
}

// EncodeMessage encodes any of the four message variants.
func (p *Protocol) EncodeMessage(m Message) (transport.Frame, error) {
	switch m := m.(type) {
	case *Request:
		return p.EncodeRequest(m.ID, m.Method, m.Params)
	case *Response:
		return p.EncodeResponse(m.ID, m.Result)
	case *ErrorMessage:
		return p.EncodeError(m.ID, m.Code, m.Message, m.Data)
	case *Event:
		return p.EncodeEvent(m.Event, m.Data)
	}
	return nil, fmt.Errorf("unknown message type %T", m)
}

func (p *Protocol) encode(v any) (transport.Frame, error) {
	data, err := p.codec.Marshal(v)
	if err != nil {
		return nil, err
	}
	if p.codec.Binary() {
		return transport.Binary(data), nil
	}
	return transport.Text(string(data)), nil
}

// DecodeMessage normalizes and decodes one inbound frame. Fragmented frames
// are concatenated in order; a binary frame for a text codec is read as
// UTF-8, and a text frame for a binary codec is UTF-8-encoded to bytes.
// Frames that do not decode to a structurally valid message variant report
// an error.
func (p *Protocol) DecodeMessage(f transport.Frame) (Message, error) {
	data := normalize(f)
	var head probe
	if err := p.codec.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}
	switch head.Type {
	case typeRequest:
		var w wireRequest
		if err := p.codec.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decoding request: %w", err)
		}
		if w.ID == "" || w.Method == "" {
			return nil, fmt.Errorf("invalid request: missing id or method")
		}
		return &Request{ID: w.ID, Method: w.Method, Params: w.Params}, nil

	case typeResponse:
		var w wireResponse
		if err := p.codec.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decoding response: %w", err)
		}
		if w.ID == "" {
			return nil, fmt.Errorf("invalid response: missing id")
		}
		return &Response{ID: w.ID, Result: w.Result}, nil

	case typeError:
		var w wireError
		if err := p.codec.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decoding error message: %w", err)
		}
		if w.ID == "" || w.Code == nil || w.Message == nil {
			return nil, fmt.Errorf("invalid error message: missing id, code or message")
		}
		return &ErrorMessage{ID: w.ID, Code: *w.Code, Message: *w.Message, Data: w.Data}, nil

	case typeEvent:
		var w wireEvent
		if err := p.codec.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decoding event: %w", err)
		}
		if w.Event == "" {
			return nil, fmt.Errorf("invalid event: missing event name")
		}
		return &Event{Event: w.Event, Data: w.Data}, nil
	}
	return nil, fmt.Errorf("unknown message type %q", head.Type)
}

// SafeDecodeMessage is DecodeMessage with the error reduced to a boolean,
// for dispatch paths where malformed frames are dropped rather than
// surfaced.
func (p *Protocol) SafeDecodeMessage(f transport.Frame) (Message, bool) {
	m, err := p.DecodeMessage(f)
	return m, err == nil
}

// normalize flattens any frame shape into a contiguous byte slice.
func normalize(f transport.Frame) []byte {
	switch f := f.(type) {
	case transport.Text:
		return []byte(f)
	case transport.Binary:
		return f
	case transport.Chunked:
		return bytes.Join(f, nil)
	}
	return nil
}
