package wsrpc

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/igoforth/ws-rpc/metrics"
	"github.com/igoforth/ws-rpc/schema"
	"github.com/igoforth/ws-rpc/transport"
)

// A FanResult is one peer's outcome in a fan-out call. Exactly one of Value
// and Err is meaningful: Err is nil on success.
type FanResult struct {
	ID    string
	Value any
	Err   error
}

// A MultiPeer fronts a fleet of peers behind a single call surface. Calls
// scatter to the targeted open peers in parallel and gather one result per
// peer; events broadcast with optional addressing. Connections are keyed by
// an opaque connection id.
//
// A MultiPeer is safe for concurrent use. Individual peers still serialize
// their own dispatch; the fleet adds no cross-peer ordering.
type MultiPeer struct {
	local    *schema.Schema
	remote   *schema.Schema
	provider Assigner
	proto    *Protocol
	timeout  time.Duration
	hooks    Hooks
	factory  func(string, transport.Transport) Endpoint
	log      zerolog.Logger
	metrics  *metrics.M

	mu     sync.Mutex
	peers  map[string]Endpoint
	order  []string // connection ids in arrival order
	closed bool
}

// NewMultiPeer returns an empty fleet. Peers created through AddPeer share
// the fleet's schemas, provider and protocol; supply a PeerFactory in opts
// to front durable peers instead.
func NewMultiPeer(local, remote *schema.Schema, provider Assigner, opts *MultiPeerOptions) *MultiPeer {
	m := &MultiPeer{
		local:    local,
		remote:   remote,
		provider: provider,
		proto:    opts.protocol(),
		timeout:  opts.timeout(),
		hooks:    opts.hooks(),
		factory:  opts.factory(),
		log:      opts.logger(),
		metrics:  opts.metrics(),
		peers:    make(map[string]Endpoint),
	}
	return m
}

// AddPeer registers a new connection under connID and returns its endpoint.
// An empty connID gets a generated time-ordered UUID. Adding a connID that
// is already present closes and replaces the previous endpoint.
func (m *MultiPeer) AddPeer(connID string, tr transport.Transport) Endpoint {
	if connID == "" {
		connID = uuid.Must(uuid.NewV7()).String()
	}
	ep := m.newEndpoint(connID, tr)

	m.mu.Lock()
	old, existed := m.peers[connID]
	m.peers[connID] = ep
	if !existed {
		m.order = append(m.order, connID)
	}
	m.mu.Unlock()

	if existed {
		old.Close()
	}
	if m.hooks.OnConnect != nil {
		m.hooks.OnConnect(ep)
	}
	return ep
}

func (m *MultiPeer) newEndpoint(connID string, tr transport.Transport) Endpoint {
	if m.factory != nil {
		return m.factory(connID, tr)
	}
	var ep Endpoint
	opts := &PeerOptions{
		ID:             connID,
		Protocol:       m.proto,
		DefaultTimeout: m.timeout,
		Logger:         &m.log,
		Metrics:        m.metrics,
		OnEvent: func(event string, data any) {
			if m.hooks.OnEvent != nil {
				m.hooks.OnEvent(ep, event, data)
			}
		},
	}
	ep = NewPeer(tr, m.local, m.remote, m.provider, opts)
	return ep
}

// GetPeer reports the endpoint registered under connID.
func (m *MultiPeer) GetPeer(connID string) (Endpoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ep, ok := m.peers[connID]
	return ep, ok
}

// ClosePeer closes and removes the endpoint registered under connID,
// reporting whether it existed.
func (m *MultiPeer) ClosePeer(connID string) bool {
	m.mu.Lock()
	ep, ok := m.peers[connID]
	if ok {
		delete(m.peers, connID)
		m.removeOrder(connID)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	if err := ep.Close(); err != nil {
		m.reportError(ep, fmt.Errorf("closing peer %q: %w", connID, err))
	}
	if m.hooks.OnDisconnect != nil {
		m.hooks.OnDisconnect(ep)
	}
	return true
}

// removeOrder drops connID from the arrival-order list. Caller holds m.mu.
func (m *MultiPeer) removeOrder(connID string) {
	for i, id := range m.order {
		if id == connID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}

// ConnectionCount reports the number of registered connections.
func (m *MultiPeer) ConnectionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.peers)
}

// ConnectionIDs reports the registered connection ids in sorted order.
func (m *MultiPeer) ConnectionIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.peers))
	for id := range m.peers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Call invokes the named method on every targeted open peer in parallel and
// gathers one result per peer. Without FanTargets the target set is every
// open peer in arrival order; with it, the open peers among the named ids in
// the given order; closed and unknown ids are omitted, so the result
// length equals the number of open targeted peers at call time. Each
// per-peer call races its own deadline; a deadline firing first yields a
// Timeout error for that entry without disturbing the others.
func (m *MultiPeer) Call(ctx context.Context, method string, input any, opts ...FanOption) []FanResult {
	fo := resolveFanOptions(m.timeout, opts)
	targets := m.resolveTargets(fo)

	results := make([]FanResult, len(targets))
	g, ctx := errgroup.WithContext(ctx)
	for i, target := range targets {
		i, target := i, target
		g.Go(func() error {
			value, err := target.ep.Call(ctx, method, input, WithTimeout(fo.timeout))
			results[i] = FanResult{ID: target.id, Value: value, Err: err}
			return nil
		})
	}
	g.Wait()
	return results
}

type fanTarget struct {
	id string
	ep Endpoint
}

// resolveTargets fixes the ordered set of open peers a fan-out reaches.
func (m *MultiPeer) resolveTargets(fo fanOptions) []fanTarget {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	if fo.all {
		ids = append(ids, m.order...)
	} else {
		ids = fo.targets
	}
	var targets []fanTarget
	for _, id := range ids {
		if ep, ok := m.peers[id]; ok && ep.IsOpen() {
			targets = append(targets, fanTarget{id: id, ep: ep})
		}
	}
	return targets
}

// Emit broadcasts an event. The data is validated once against the fleet's
// local schema, encoded once, and sent to each targeted open peer. With no
// ids the event reaches every open peer. Per-peer send failures are routed
// to the OnError hook; Emit itself never fails.
func (m *MultiPeer) Emit(event string, data any, ids ...string) {
	validator, ok := m.local.Event(event)
	if !ok {
		m.log.Warn().Str("event", event).Msg("emit dropped: event not declared")
		return
	}
	validated, err := validator.Validate(data)
	if err != nil {
		m.log.Warn().Str("event", event).Err(err).Msg("emit dropped: invalid data")
		return
	}
	frame, err := m.proto.EncodeEvent(event, validated)
	if err != nil {
		m.log.Warn().Str("event", event).Err(err).Msg("emit dropped: encoding failed")
		return
	}

	fo := fanOptions{all: len(ids) == 0, targets: ids}
	for _, target := range m.resolveTargets(fo) {
		if err := target.ep.Transport().Send(frame); err != nil {
			m.reportError(target.ep, fmt.Errorf("emitting %q to %q: %w", event, target.id, err))
		}
	}
}

// HandleMessage dispatches an inbound frame for the named connection. A
// frame for a connection the fleet does not know creates a fresh endpoint
// over tr first. This is how durable continuations find a peer again after
// the process was suspended and its in-memory fleet discarded.
func (m *MultiPeer) HandleMessage(ctx context.Context, connID string, tr transport.Transport, frame transport.Frame) {
	m.mu.Lock()
	ep, known := m.peers[connID]
	closed := m.closed
	m.mu.Unlock()
	if closed {
		m.log.Warn().Str("conn", connID).Msg("dropping frame for closed fleet")
		return
	}
	if !known {
		if tr == nil {
			m.reportError(nil, fmt.Errorf("frame for unknown connection %q with no transport", connID))
			return
		}
		ep = m.recreatePeer(connID, tr)
	}
	ep.HandleMessage(ctx, frame)
}

func (m *MultiPeer) recreatePeer(connID string, tr transport.Transport) Endpoint {
	ep := m.newEndpoint(connID, tr)
	m.mu.Lock()
	m.peers[connID] = ep
	m.order = append(m.order, connID)
	m.mu.Unlock()

	m.log.Info().Str("conn", connID).Msg("recreated peer for unknown connection")
	if m.hooks.OnPeerRecreated != nil {
		m.hooks.OnPeerRecreated(ep, tr)
	}
	return ep
}

func (m *MultiPeer) reportError(ep Endpoint, err error) {
	m.log.Warn().Err(err).Msg("fleet error")
	if m.hooks.OnError != nil {
		m.hooks.OnError(ep, err)
	}
}

// Close closes every peer in the fleet, empties it, and fires OnClose.
// Close is idempotent.
func (m *MultiPeer) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	peers := make([]Endpoint, 0, len(m.peers))
	for _, ep := range m.peers {
		peers = append(peers, ep)
	}
	m.peers = make(map[string]Endpoint)
	m.order = nil
	m.mu.Unlock()

	for _, ep := range peers {
		if err := ep.Close(); err != nil {
			m.reportError(ep, err)
		}
	}
	if m.hooks.OnClose != nil {
		m.hooks.OnClose()
	}
	return nil
}
