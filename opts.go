package wsrpc

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/igoforth/ws-rpc/metrics"
	"github.com/igoforth/ws-rpc/transport"
)

// DefaultTimeout is the deadline applied to outbound calls when neither the
// peer options nor the individual call specify one.
const DefaultTimeout = 30 * time.Second

// PeerOptions control the behaviour of a peer created by NewPeer.
// A nil *PeerOptions provides sensible defaults.
type PeerOptions struct {
	// Identity of the peer. If empty, a time-ordered UUID is generated.
	ID string

	// Protocol used to encode and decode frames. Defaults to JSON.
	Protocol *Protocol

	// Deadline for outbound calls that do not set their own.
	// Defaults to DefaultTimeout.
	DefaultTimeout time.Duration

	// If set, inbound events that pass validation are delivered here.
	// If unset, inbound events are dropped.
	OnEvent func(event string, data any)

	// If not nil, structured logs are written here.
	Logger *zerolog.Logger

	// If set, use this value to record peer metrics. Peers created from the
	// same options share the collector. If none is set, each peer gets its
	// own.
	Metrics *metrics.M
}

func (o *PeerOptions) id() string {
	if o == nil || o.ID == "" {
		return uuid.Must(uuid.NewV7()).String()
	}
	return o.ID
}

func (o *PeerOptions) protocol() *Protocol {
	if o == nil || o.Protocol == nil {
		return NewJSONProtocol()
	}
	return o.Protocol
}

func (o *PeerOptions) timeout() time.Duration {
	if o == nil || o.DefaultTimeout <= 0 {
		return DefaultTimeout
	}
	return o.DefaultTimeout
}

func (o *PeerOptions) onEvent() func(string, any) {
	if o == nil {
		return nil
	}
	return o.OnEvent
}

func (o *PeerOptions) logger() zerolog.Logger {
	if o == nil || o.Logger == nil {
		return zerolog.Nop()
	}
	return *o.Logger
}

func (o *PeerOptions) metrics() *metrics.M {
	if o == nil || o.Metrics == nil {
		return metrics.New()
	}
	return o.Metrics
}

// DurablePeerOptions control the behaviour of a peer created by
// NewDurablePeer. The embedded PeerOptions apply to the in-memory side.
type DurablePeerOptions struct {
	PeerOptions

	// Deadline recorded for durable calls that do not set their own.
	// Defaults to the peer's default timeout.
	DurableTimeout time.Duration

	// Clock reports the current wall time in milliseconds. Durable call
	// deadlines are computed and compared against it. Defaults to the
	// system clock.
	Clock func() int64
}

func (o *DurablePeerOptions) peerOptions() *PeerOptions {
	if o == nil {
		return nil
	}
	return &o.PeerOptions
}

func (o *DurablePeerOptions) durableTimeout() time.Duration {
	if o == nil || o.DurableTimeout <= 0 {
		return o.peerOptions().timeout()
	}
	return o.DurableTimeout
}

func (o *DurablePeerOptions) clock() func() int64 {
	if o == nil || o.Clock == nil {
		return func() int64 { return time.Now().UnixMilli() }
	}
	return o.Clock
}

// MultiPeerOptions control the behaviour of a fleet created by NewMultiPeer.
// A nil *MultiPeerOptions provides sensible defaults.
type MultiPeerOptions struct {
	// Protocol used by peers the fleet creates. Defaults to JSON.
	Protocol *Protocol

	// Deadline for fan-out calls that do not set their own.
	// Defaults to DefaultTimeout.
	DefaultTimeout time.Duration

	// Lifecycle hooks. Hooks are invoked synchronously on the goroutine
	// that triggered them.
	Hooks Hooks

	// If set, the fleet creates endpoints with this factory instead of
	// plain peers; use it to front DurablePeer endpoints.
	PeerFactory func(connID string, tr transport.Transport) Endpoint

	// If not nil, structured logs are written here.
	Logger *zerolog.Logger

	// If set, peers created by the fleet record metrics on this shared
	// collector.
	Metrics *metrics.M
}

func (o *MultiPeerOptions) protocol() *Protocol {
	if o == nil || o.Protocol == nil {
		return NewJSONProtocol()
	}
	return o.Protocol
}

func (o *MultiPeerOptions) timeout() time.Duration {
	if o == nil || o.DefaultTimeout <= 0 {
		return DefaultTimeout
	}
	return o.DefaultTimeout
}

func (o *MultiPeerOptions) hooks() Hooks {
	if o == nil {
		return Hooks{}
	}
	return o.Hooks
}

func (o *MultiPeerOptions) factory() func(string, transport.Transport) Endpoint {
	if o == nil {
		return nil
	}
	return o.PeerFactory
}

func (o *MultiPeerOptions) logger() zerolog.Logger {
	if o == nil || o.Logger == nil {
		return zerolog.Nop()
	}
	return *o.Logger
}

func (o *MultiPeerOptions) metrics() *metrics.M {
	if o == nil {
		return nil
	}
	return o.Metrics
}

// A CallOption adjusts a single outbound call.
type CallOption func(*callOptions)

type callOptions struct {
	timeout time.Duration
}

// WithTimeout sets the deadline for this call, overriding the peer default.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) { o.timeout = d }
}

func resolveCallOptions(fallback time.Duration, opts []CallOption) callOptions {
	o := callOptions{timeout: fallback}
	for _, opt := range opts {
		opt(&o)
	}
	if o.timeout <= 0 {
		o.timeout = fallback
	}
	return o
}

// A FanOption adjusts one fan-out call across a fleet.
type FanOption func(*fanOptions)

type fanOptions struct {
	timeout time.Duration
	targets []string
	all     bool
}

// FanTimeout sets the per-peer deadline for this fan-out call.
func FanTimeout(d time.Duration) FanOption {
	return func(o *fanOptions) { o.timeout = d }
}

// FanTargets restricts the fan-out to the named connections. Closed or
// unknown connections are omitted from the result. Without this option the
// call reaches every open peer.
func FanTargets(ids ...string) FanOption {
	return func(o *fanOptions) {
		o.targets = ids
		o.all = false
	}
}

func resolveFanOptions(fallback time.Duration, opts []FanOption) fanOptions {
	o := fanOptions{timeout: fallback, all: true}
	for _, opt := range opts {
		opt(&o)
	}
	if o.timeout <= 0 {
		o.timeout = fallback
	}
	return o
}

// Hooks are the fleet lifecycle callbacks. Any hook may be nil.
type Hooks struct {
	// OnConnect fires after a peer is added to the fleet.
	OnConnect func(Endpoint)

	// OnDisconnect fires after ClosePeer closes and removes a peer. Closing
	// the whole fleet fires OnClose only, not OnDisconnect for each peer.
	OnDisconnect func(Endpoint)

	// OnEvent fires for every validated inbound event on a peer the fleet
	// created itself. Endpoints built by a PeerFactory do not report to it.
	OnEvent func(Endpoint, string, any)

	// OnError fires for failures that have no caller to reject: emit send
	// failures, failures closing a peer, and frames for an unknown
	// connection that arrive without a transport. The endpoint is nil when
	// the failure is not attributable to one peer.
	OnError func(Endpoint, error)

	// OnClose fires once when the fleet itself is closed.
	OnClose func()

	// OnPeerRecreated fires when an inbound frame arrives for a connection
	// the fleet does not know and a fresh endpoint is created for it.
	OnPeerRecreated func(Endpoint, transport.Transport)
}
