// Package wsrpc implements a bidirectional, schema-validated RPC protocol
// over a message-framed transport. Each endpoint is symmetric: a Peer both
// exposes local methods and events and invokes remote ones. Four message
// variants travel on the wire (request, response, error and event) over a
// pluggable text or binary codec with identical semantics.
package wsrpc

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/igoforth/ws-rpc/code"
	"github.com/igoforth/ws-rpc/metrics"
	"github.com/igoforth/ws-rpc/schema"
	"github.com/igoforth/ws-rpc/transport"
)

// A Handler answers one inbound method call. Params arrive already decoded
// and validated against the method's input schema; the returned value is
// validated against the output schema before it is sent.
type Handler interface {
	Handle(ctx context.Context, params any) (any, error)
}

// An Assigner maps method names to handlers. A nil result means the method
// is not implemented. See the handler package for implementations.
type Assigner interface {
	Assign(method string) Handler
}

// An Endpoint is the call surface shared by Peer and DurablePeer, and the
// unit a MultiPeer supervises.
type Endpoint interface {
	ID() string
	IsOpen() bool
	PendingCount() int
	Call(ctx context.Context, method string, input any, opts ...CallOption) (any, error)
	Emit(event string, data any)
	HandleMessage(ctx context.Context, frame transport.Frame)
	Transport() transport.Transport
	Close() error
}

// A Peer is one endpoint of a symmetric RPC connection. It validates and
// sends outbound calls and events against the remote schema, and dispatches
// inbound traffic against the local schema and provider.
//
// Inbound frames are dispatched one at a time, in arrival order, by the
// transport's receiver. The pending set, id counter and closed flag are
// guarded by the peer's mutex, which timer callbacks, sends and close take;
// handler invocation runs without it. Peers are safe for concurrent use;
// distinct peers share nothing.
type Peer struct {
	id       string
	tr       transport.Transport
	proto    *Protocol
	local    *schema.Schema
	remote   *schema.Schema
	provider Assigner
	onEvent  func(string, any)
	timeout  time.Duration
	log      zerolog.Logger
	metrics  *metrics.M

	mu      sync.Mutex // protects the fields below
	pending map[string]*pendingRequest
	nextID  int64
	closed  bool
}

// A pendingRequest is an outbound call awaiting its correlated completion.
// Exactly one terminal event settles it: a response, an error frame, the
// timeout firing, or the peer closing. The delivery channel is buffered so
// the dispatcher never waits for the caller.
type pendingRequest struct {
	id       string
	method   string
	ch       chan pendingOutcome
	timer    *time.Timer
	deadline time.Time
}

type pendingOutcome struct {
	result any
	err    error
}

// NewPeer returns a peer speaking over tr. The local schema describes what
// this endpoint serves (methods dispatched to provider, events it may emit);
// the remote schema describes what may be called and which inbound events
// are understood. Either schema may be nil to declare nothing. The peer
// subscribes itself to the transport's inbound frames.
func NewPeer(tr transport.Transport, local, remote *schema.Schema, provider Assigner, opts *PeerOptions) *Peer {
	p := &Peer{
		id:       opts.id(),
		tr:       tr,
		proto:    opts.protocol(),
		local:    local,
		remote:   remote,
		provider: provider,
		onEvent:  opts.onEvent(),
		timeout:  opts.timeout(),
		metrics:  opts.metrics(),

		// Lock-protected fields. The ID counter starts at 1 so no request
		// ever carries a zero-ish id a lax peer could conflate with null.
		pending: make(map[string]*pendingRequest),
		nextID:  1,
	}
	p.log = opts.logger().With().Str("peer", p.id).Logger()
	tr.Subscribe(func(f transport.Frame) { p.HandleMessage(context.Background(), f) })
	return p
}

// ID reports the peer's identity.
func (p *Peer) ID() string { return p.id }

// Transport reports the transport the peer speaks over. The peer does not
// own it.
func (p *Peer) Transport() transport.Transport { return p.tr }

// IsOpen reports whether the peer can currently issue calls: it has not been
// closed and its transport is open.
func (p *Peer) IsOpen() bool {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	return !closed && p.tr.ReadyState() == transport.Open
}

// PendingCount reports the number of outbound calls awaiting completion.
func (p *Peer) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Metrics reports the peer's metrics collector.
func (p *Peer) Metrics() *metrics.M { return p.metrics }

// Call invokes the named remote method and blocks until the call settles.
// The input is validated against the remote schema before anything is sent;
// a validation failure rejects locally and nothing reaches the wire. The
// result is delivered exactly as decoded from the wire: the caller trusts
// the remote endpoint's declared output schema and performs no validation of
// its own.
//
// Failures have concrete type *Error: ConnectionClosed if the peer or
// transport is closed, MethodNotFound for an undeclared method,
// ValidationError for rejected input, Timeout when the deadline elapses
// first, and the remote peer's own code for error completions.
func (p *Peer) Call(ctx context.Context, method string, input any, opts ...CallOption) (any, error) {
	if !p.IsOpen() {
		return nil, errClosed()
	}
	if _, ok := p.remote.Method(method); !ok {
		return nil, errMethodNotFound(method)
	}
	validated, err := p.remote.ValidateInput(method, input)
	if err != nil {
		return nil, errValidation(method, err)
	}

	co := resolveCallOptions(p.timeout, opts)
	frameFor := func(id string) (transport.Frame, error) {
		return p.proto.EncodeRequest(id, method, validated)
	}
	pend, err := p.sendCall(method, co.timeout, frameFor)
	if err != nil {
		return nil, err
	}

	select {
	case out := <-pend.ch:
		return out.result, out.err
	case <-ctx.Done():
		p.forget(pend.id)
		return nil, Errorf(code.FromError(ctx.Err()), "call to '%s' aborted: %v", method, ctx.Err())
	}
}

// sendCall registers a pending entry and transmits the request frame. The
// registration and the send happen under the lock with no suspension in
// between, closing the race where a response could arrive before the entry
// exists. Holding the lock across Send also keeps outbound frames in the
// order of their originating operations.
func (p *Peer) sendCall(method string, timeout time.Duration, frameFor func(id string) (transport.Frame, error)) (*pendingRequest, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errClosed()
	}

	id := strconv.FormatInt(p.nextID, 10)
	p.nextID++

	frame, err := frameFor(id)
	if err != nil {
		return nil, Errorf(code.InternalError, "encoding request: %v", err)
	}

	pend := &pendingRequest{
		id:       id,
		method:   method,
		ch:       make(chan pendingOutcome, 1),
		deadline: time.Now().Add(timeout),
	}
	pend.timer = time.AfterFunc(timeout, func() { p.expire(id, method, timeout) })
	p.pending[id] = pend
	p.metrics.SetMaxValue(metrics.PendingMax, int64(len(p.pending)))

	if err := p.tr.Send(frame); err != nil {
		pend.timer.Stop()
		delete(p.pending, id)
		if errors.Is(err, transport.ErrClosed) {
			return nil, errClosed()
		}
		return nil, Errorf(code.InternalError, "sending request: %v", err)
	}
	p.metrics.Count(metrics.CallsOut, 1)
	return pend, nil
}

// expire is the timer callback for a pending call. A completion that raced
// the timer wins: once the entry is gone, expiry is a no-op.
func (p *Peer) expire(id, method string, timeout time.Duration) {
	p.mu.Lock()
	pend, ok := p.pending[id]
	if ok {
		delete(p.pending, id)
	}
	p.mu.Unlock()
	if !ok {
		return
	}
	p.metrics.Count(metrics.Timeouts, 1)
	p.log.Warn().Str("method", method).Str("id", id).Dur("timeout", timeout).
		Msg("call timed out")
	pend.ch <- pendingOutcome{err: errTimeout(method, timeout)}
}

// forget removes a pending entry without settling it, for callers that have
// stopped waiting.
func (p *Peer) forget(id string) {
	p.mu.Lock()
	if pend, ok := p.pending[id]; ok {
		pend.timer.Stop()
		delete(p.pending, id)
	}
	p.mu.Unlock()
}

// Emit sends a fire-and-forget event: no id, no acknowledgement, no timer.
// Events that fail locally (unknown name, invalid data, closed transport)
// are logged and dropped; Emit never fails.
func (p *Peer) Emit(event string, data any) {
	if !p.IsOpen() {
		p.log.Warn().Str("event", event).Msg("emit dropped: connection closed")
		return
	}
	validator, ok := p.local.Event(event)
	if !ok {
		p.log.Warn().Str("event", event).Msg("emit dropped: event not declared")
		return
	}
	validated, err := validator.Validate(data)
	if err != nil {
		p.log.Warn().Str("event", event).Err(err).Msg("emit dropped: invalid data")
		return
	}
	frame, err := p.proto.EncodeEvent(event, validated)
	if err != nil {
		p.log.Warn().Str("event", event).Err(err).Msg("emit dropped: encoding failed")
		return
	}
	p.mu.Lock()
	err = p.tr.Send(frame)
	p.mu.Unlock()
	if err != nil {
		p.log.Warn().Str("event", event).Err(err).Msg("emit dropped: send failed")
		return
	}
	p.metrics.Count(metrics.EventsOut, 1)
}

// HandleMessage decodes and dispatches one inbound frame. Malformed frames
// are logged and dropped; they never close the transport. Frames are
// processed in arrival order.
func (p *Peer) HandleMessage(ctx context.Context, frame transport.Frame) {
	msg, ok := p.proto.SafeDecodeMessage(frame)
	if !ok {
		p.metrics.Count(metrics.DroppedFrames, 1)
		p.log.Warn().Msg("dropping undecodable frame")
		return
	}
	p.dispatch(ctx, msg)
}

// dispatch routes one decoded message.
func (p *Peer) dispatch(ctx context.Context, msg Message) {
	switch m := msg.(type) {
	case *Request:
		p.dispatchRequest(ctx, m)
	case *Response:
		p.settle(m.ID, pendingOutcome{result: m.Result}, nil)
	case *ErrorMessage:
		p.settle(m.ID, pendingOutcome{}, m)
	case *Event:
		p.dispatchEvent(m)
	}
}

// settle completes the pending call correlated with id. Unknown ids are
// logged and dropped with no state change; the usual cause is a response
// arriving after its timeout already rejected the caller.
func (p *Peer) settle(id string, out pendingOutcome, errMsg *ErrorMessage) {
	p.mu.Lock()
	pend, ok := p.pending[id]
	if ok {
		pend.timer.Stop()
		delete(p.pending, id)
	}
	p.mu.Unlock()
	if !ok {
		p.metrics.Count(metrics.DroppedFrames, 1)
		p.log.Warn().Str("id", id).Msg("dropping completion for unknown id")
		return
	}
	if errMsg != nil {
		p.metrics.Count(metrics.RemoteErrors, 1)
		out.err = remoteError(pend.method, errMsg)
	}
	pend.ch <- out
}

// dispatchRequest serves one inbound call. Handler failures are transformed
// into error frames for the remote side; they never propagate locally.
func (p *Peer) dispatchRequest(ctx context.Context, req *Request) {
	p.metrics.Count(metrics.CallsIn, 1)

	spec, ok := p.local.Method(req.Method)
	if !ok {
		p.replyError(req.ID, errMethodNotFound(req.Method))
		return
	}
	in := schema.Validator(schema.Any())
	if spec.Input != nil {
		in = spec.Input
	}
	params, err := in.Validate(req.Params)
	if err != nil {
		p.replyError(req.ID, &Error{
			Code:    code.InvalidParams,
			Message: err.Error(),
			Data:    issueData(err),
		})
		return
	}

	var h Handler
	if p.provider != nil {
		h = p.provider.Assign(req.Method)
	}
	if h == nil {
		p.replyError(req.ID, Errorf(code.MethodNotFound, "Method '%s' not implemented", req.Method))
		return
	}

	result, err := h.Handle(ctx, params)
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			p.replyError(req.ID, e)
			return
		}
		msg := err.Error()
		if msg == "" {
			msg = "Unknown error"
		}
		p.replyError(req.ID, Errorf(code.InternalError, "%s", msg))
		return
	}

	out := schema.Validator(schema.Any())
	if spec.Output != nil {
		out = spec.Output
	}
	validated, err := out.Validate(result)
	if err != nil {
		p.replyError(req.ID, &Error{
			Code:    code.InternalError,
			Message: "Invalid output from '" + req.Method + "'",
			Data:    issueData(err),
		})
		return
	}

	frame, err := p.proto.EncodeResponse(req.ID, validated)
	if err != nil {
		p.replyError(req.ID, Errorf(code.InternalError, "encoding response: %v", err))
		return
	}
	p.send(frame)
}

// dispatchEvent delivers one inbound event to the user handler. Events are
// best-effort: undeclared names and invalid data are logged and dropped.
func (p *Peer) dispatchEvent(ev *Event) {
	if p.onEvent == nil {
		return
	}
	validator, ok := p.remote.Event(ev.Event)
	if !ok {
		p.log.Warn().Str("event", ev.Event).Msg("dropping undeclared inbound event")
		return
	}
	data, err := validator.Validate(ev.Data)
	if err != nil {
		p.log.Warn().Str("event", ev.Event).Err(err).Msg("dropping invalid inbound event")
		return
	}
	p.metrics.Count(metrics.EventsIn, 1)
	p.onEvent(ev.Event, data)
}

// replyError sends an error frame for an inbound request.
func (p *Peer) replyError(id string, e *Error) {
	frame, err := p.proto.EncodeError(id, int32(e.Code), e.Message, e.Data)
	if err != nil {
		p.log.Error().Err(err).Msg("encoding error reply failed")
		return
	}
	p.send(frame)
}

func (p *Peer) send(frame transport.Frame) {
	p.mu.Lock()
	err := p.tr.Send(frame)
	p.mu.Unlock()
	if err != nil {
		p.log.Warn().Err(err).Msg("send failed")
	}
}

// Close shuts the peer down: every pending call rejects with
// ConnectionClosed, the pending set empties, and the transport is closed.
// Close is idempotent.
func (p *Peer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	abandoned := make([]*pendingRequest, 0, len(p.pending))
	for _, pend := range p.pending {
		pend.timer.Stop()
		abandoned = append(abandoned, pend)
	}
	p.pending = make(map[string]*pendingRequest)
	p.mu.Unlock()

	for _, pend := range abandoned {
		pend.ch <- pendingOutcome{err: errClosed()}
	}
	return p.tr.Close(1000, "peer closed")
}

// CallAs is the typed facade over Peer.Call: it re-encodes the raw result
// with the peer's codec and decodes it into T.
func CallAs[T any](ctx context.Context, p *Peer, method string, input any, opts ...CallOption) (T, error) {
	var out T
	raw, err := p.Call(ctx, method, input, opts...)
	if err != nil {
		return out, err
	}
	c := p.proto.Codec()
	data, err := c.Marshal(raw)
	if err != nil {
		return out, Errorf(code.InternalError, "re-encoding result: %v", err)
	}
	if err := c.Unmarshal(data, &out); err != nil {
		return out, Errorf(code.InternalError, "decoding result: %v", err)
	}
	return out, nil
}

// issueData extracts schema issues from err for transport as error data.
func issueData(err error) any {
	var issues schema.Issues
	if errors.As(err, &issues) {
		return issues
	}
	return nil
}
