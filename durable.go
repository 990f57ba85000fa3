package wsrpc

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/igoforth/ws-rpc/callstore"
	"github.com/igoforth/ws-rpc/schema"
	"github.com/igoforth/ws-rpc/transport"
)

// A CallbackFunc is a continuation invoked with the eventual outcome of a
// durable call. On success the payload is the raw decoded result; if the
// remote peer reported a failure the payload is an *Error built from the
// error frame. The one entrypoint handles both so the persisted callback
// name stays the whole contract.
type CallbackFunc func(payload any, cctx CallbackContext)

// A CallbackContext accompanies a durable completion.
type CallbackContext struct {
	Call    callstore.Call // the stored call being completed
	Latency time.Duration  // time between send and completion
}

// A CallbackRegistry resolves persisted callback names to continuations.
// See handler.Registry and handler.RegistryFromHost for implementations.
type CallbackRegistry interface {
	Callback(name string) (CallbackFunc, bool)
}

const durableIDPrefix = "durable-"

// A DurablePeer is a Peer whose continuation-passing calls survive process
// suspension. The pending state of every CallWithCallback lives in external
// synchronous storage from before the request frame is sent until its
// completion, so a process may hibernate with the transport open and a
// recreated peer sharing the same store and registry still routes the
// response to its continuation.
type DurablePeer struct {
	*Peer
	store    callstore.Store
	registry CallbackRegistry
	clock    func() int64
	timeout  time.Duration

	mu   sync.Mutex
	next int64 // next durable id suffix
}

// NewDurablePeer returns a durable peer over tr. The store holds pending
// continuation calls; the registry resolves their persisted callback names.
// The durable id counter resumes past the highest suffix already present in
// the store, so a recreated peer never reissues a live id.
func NewDurablePeer(tr transport.Transport, local, remote *schema.Schema, provider Assigner, store callstore.Store, registry CallbackRegistry, opts *DurablePeerOptions) (*DurablePeer, error) {
	if store == nil {
		return nil, fmt.Errorf("nil call store")
	}
	if registry == nil {
		return nil, fmt.Errorf("nil callback registry")
	}
	d := &DurablePeer{
		Peer:     NewPeer(tr, local, remote, provider, opts.peerOptions()),
		store:    store,
		registry: registry,
		clock:    opts.clock(),
		timeout:  opts.durableTimeout(),
		next:     1,
	}
	existing, err := store.ListAll()
	if err != nil {
		return nil, fmt.Errorf("listing stored calls: %w", err)
	}
	for _, call := range existing {
		if n, ok := durableSuffix(call.ID); ok && n >= d.next {
			d.next = n + 1
		}
	}
	// Take over inbound routing from the embedded peer: durable completions
	// are intercepted before standard dispatch.
	tr.Subscribe(func(f transport.Frame) { d.HandleMessage(context.Background(), f) })
	return d, nil
}

func durableSuffix(id string) (int64, bool) {
	rest, ok := strings.CutPrefix(id, durableIDPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// CallWithCallback issues a continuation-passing call to the named remote
// method. The pending call is persisted before the request frame is sent:
// a crash or hibernation between the two is recoverable, whereas the
// reverse order would lose the continuation. If the transport is not open
// the call stays persisted and nothing is sent; the caller may retry after
// reconnecting. The stored call id is returned.
//
// The callback name is resolved against the registry before anything is
// persisted; an unknown name fails immediately.
func (d *DurablePeer) CallWithCallback(method string, params any, callbackName string, opts ...CallOption) (string, error) {
	if _, ok := d.registry.Callback(callbackName); !ok {
		return "", fmt.Errorf("callback %q is not registered", callbackName)
	}

	co := resolveCallOptions(d.timeout, opts)
	now := d.clock()

	encoded, err := d.encodeParams(params)
	if err != nil {
		return "", fmt.Errorf("encoding params: %w", err)
	}

	d.mu.Lock()
	id := durableIDPrefix + strconv.FormatInt(d.next, 10)
	d.next++
	d.mu.Unlock()

	call := callstore.Call{
		ID:        id,
		Method:    method,
		Params:    encoded,
		Callback:  callbackName,
		SentAt:    now,
		TimeoutAt: now + co.timeout.Milliseconds(),
	}
	if err := d.store.Save(call); err != nil {
		return "", fmt.Errorf("persisting call: %w", err)
	}

	if d.tr.ReadyState() != transport.Open {
		d.log.Warn().Str("id", id).Str("method", method).
			Msg("transport not open; durable call persisted but not sent")
		return id, nil
	}
	frame, err := d.proto.EncodeRequest(id, method, params)
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}
	d.send(frame)
	return id, nil
}

// encodeParams serializes params for storage with the peer's codec. Binary
// codecs are base64-wrapped so the stored column stays textual.
func (d *DurablePeer) encodeParams(params any) (string, error) {
	c := d.proto.Codec()
	data, err := c.Marshal(params)
	if err != nil {
		return "", err
	}
	if c.Binary() {
		return base64.StdEncoding.EncodeToString(data), nil
	}
	return string(data), nil
}

// HandleMessage routes one inbound frame. Responses and error frames whose
// id matches a stored durable call complete that call: the row is deleted
// and the persisted callback runs with the payload and a completion
// context. Everything else follows the standard peer dispatch.
func (d *DurablePeer) HandleMessage(ctx context.Context, frame transport.Frame) {
	msg, ok := d.proto.SafeDecodeMessage(frame)
	if !ok {
		d.log.Warn().Msg("dropping undecodable frame")
		return
	}
	switch m := msg.(type) {
	case *Response:
		if d.completeDurable(m.ID, m.Result, nil) {
			return
		}
	case *ErrorMessage:
		if d.completeDurable(m.ID, nil, m) {
			return
		}
	}
	d.dispatch(ctx, msg)
}

// completeDurable finishes the stored call with the given id, reporting
// whether one existed.
func (d *DurablePeer) completeDurable(id string, result any, errMsg *ErrorMessage) bool {
	call, ok, err := d.store.Get(id)
	if err != nil {
		d.log.Error().Err(err).Str("id", id).Msg("durable lookup failed")
		return false
	}
	if !ok {
		return false
	}
	if _, err := d.store.Delete(id); err != nil {
		d.log.Error().Err(err).Str("id", id).Msg("deleting completed durable call failed")
	}

	cctx := CallbackContext{
		Call:    call,
		Latency: time.Duration(d.clock()-call.SentAt) * time.Millisecond,
	}
	payload := result
	if errMsg != nil {
		payload = remoteError(call.Method, errMsg)
	}

	cb, ok := d.registry.Callback(call.Callback)
	if !ok {
		d.log.Error().Str("id", id).Str("callback", call.Callback).
			Msg("durable completion dropped: callback not registered")
		return true
	}
	cb(payload, cctx)
	return true
}

// PendingCalls reports every stored durable call, oldest first.
func (d *DurablePeer) PendingCalls() ([]callstore.Call, error) {
	return d.store.ListAll()
}

// ExpiredCalls reports the stored calls whose deadline has passed, most
// overdue first.
func (d *DurablePeer) ExpiredCalls() ([]callstore.Call, error) {
	return d.store.ListExpired(d.clock())
}

// CleanupExpired removes expired calls from storage and returns them. The
// caller decides whether to synthesize timeout callbacks for the removals.
func (d *DurablePeer) CleanupExpired() ([]callstore.Call, error) {
	expired, err := d.store.ListExpired(d.clock())
	if err != nil {
		return nil, err
	}
	for _, call := range expired {
		if _, err := d.store.Delete(call.ID); err != nil {
			return nil, err
		}
	}
	return expired, nil
}

// ClearPendingCalls removes every stored durable call.
func (d *DurablePeer) ClearPendingCalls() error { return d.store.Clear() }

// Close closes the in-memory peer. Durable storage is left untouched: the
// stored calls belong to a future peer sharing the same store.
func (d *DurablePeer) Close() error { return d.Peer.Close() }
