// Package frame implements the cross-window channel between a host page and
// the wallet frame: the host side Channel and the frame side Responder.
package frame

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github/chapool/embedded-wallet/internal/bus"
	"github/chapool/embedded-wallet/internal/metrics"
	"github/chapool/embedded-wallet/internal/pending"
	"github/chapool/embedded-wallet/internal/protocol"
	"github/chapool/embedded-wallet/internal/pubsub"
)

const (
	DefaultReadinessTimeout = 10 * time.Second
	DefaultRequestTimeout   = 30 * time.Second
)

// AllEvents subscribes a listener to every event name.
const AllEvents protocol.EventName = "*"

// Config configures a host side Channel.
type Config struct {
	// URL of the wallet frame. Its origin is the only origin messages are
	// accepted from.
	URL string

	// Origin of the host, stamped on outgoing requests.
	Origin string

	Launcher bus.Launcher
	Clock    clock.Clock

	ReadinessTimeout time.Duration
	RequestTimeout   time.Duration

	Metrics *metrics.Service
}

// readiness is the shared outcome of one open attempt.
type readiness struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newReadiness() *readiness {
	return &readiness{done: make(chan struct{})}
}

func (r *readiness) settle(err error) bool {
	settled := false
	r.once.Do(func() {
		r.err = err
		close(r.done)
		settled = true
	})

	return settled
}

// attachment is one launched frame: its port, its readiness and the signal
// stopping its read loop.
type attachment struct {
	port  bus.Port
	ready *readiness

	stopOnce sync.Once
	stop     chan struct{}
}

func (a *attachment) close() error {
	var err error
	a.stopOnce.Do(func() {
		close(a.stop)
		err = a.port.Close()
	})

	return err
}

// Channel is the host end of the cross-window channel. Requests are
// correlated by id through a pending table; unsolicited events are fanned
// out to listeners.
type Channel struct {
	cfg        Config
	peerOrigin string
	log        zerolog.Logger

	table     *pending.Table[*protocol.Response]
	listeners *pubsub.Registry[protocol.EventName, *protocol.Event]

	mu     sync.Mutex
	att    *attachment
	closed bool
}

// NewChannel creates a channel toward cfg.URL. Nothing is launched until
// Open is called.
func NewChannel(cfg Config) (*Channel, error) {
	if cfg.Launcher == nil {
		return nil, errors.New("frame channel requires a launcher")
	}

	peerOrigin, err := bus.OriginOf(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid frame url")
	}

	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}
	if cfg.ReadinessTimeout <= 0 {
		cfg.ReadinessTimeout = DefaultReadinessTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	c := &Channel{
		cfg:        cfg,
		peerOrigin: peerOrigin,
		log:        log.With().Str("component", "frame_channel").Str("peer_origin", peerOrigin).Logger(),
		listeners:  pubsub.New[protocol.EventName, *protocol.Event](),
	}

	c.table = pending.New[*protocol.Response](pending.Config{
		Clock:   cfg.Clock,
		Timeout: cfg.RequestTimeout,
		OnTimeout: func(id string) {
			c.log.Warn().Str("request_id", id).Dur("timeout", cfg.RequestTimeout).Msg("Frame request timed out")
			cfg.Metrics.ObserveTimeout(metrics.ChannelFrame)
			cfg.Metrics.SetPending(metrics.ChannelFrame, c.table.Len())
		},
	})

	return c, nil
}

// PeerOrigin returns the origin messages are accepted from.
func (c *Channel) PeerOrigin() string {
	return c.peerOrigin
}

// Open launches the frame and waits for its readiness handshake. Concurrent
// and repeated calls share the same attempt. A failed attempt is forgotten
// so a later Open starts a new one.
func (c *Channel) Open(ctx context.Context) error {
	r, err := c.start(ctx)
	if err != nil {
		return err
	}

	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Channel) start(ctx context.Context) (*readiness, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errors.WithStack(protocol.ErrChannelClosed)
	}
	if c.att != nil {
		return c.att.ready, nil
	}

	port, err := c.cfg.Launcher.Launch(ctx, c.cfg.URL)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to launch frame %s", c.cfg.URL)
	}

	a := &attachment{
		port:  port,
		ready: newReadiness(),
		stop:  make(chan struct{}),
	}
	c.att = a

	deadline := c.cfg.Clock.TickAfter(c.cfg.ReadinessTimeout)
	go c.readLoop(a)
	go c.awaitReadiness(a, deadline)

	return a.ready, nil
}

func (c *Channel) awaitReadiness(a *attachment, deadline <-chan time.Time) {
	select {
	case <-deadline:
		err := errors.Wrapf(protocol.ErrReadinessTimeout, "no handshake from %s within %s", c.peerOrigin, c.cfg.ReadinessTimeout)
		if a.ready.settle(err) {
			c.log.Warn().Dur("timeout", c.cfg.ReadinessTimeout).Msg("Frame readiness timed out")
			c.detach(a)
			_ = a.close()
		}
	case <-a.ready.done:
	}
}

// detach forgets a if it is still the current attachment.
func (c *Channel) detach(a *attachment) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.att == a {
		c.att = nil
	}
}

func (c *Channel) current() *attachment {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.att
}

func (c *Channel) readLoop(a *attachment) {
	for {
		select {
		case ev, ok := <-a.port.Messages():
			if !ok {
				c.lost(a)
				return
			}
			c.route(ev, a.ready)
		case <-a.stop:
			return
		}
	}
}

// lost handles a port that went away underneath the channel.
func (c *Channel) lost(a *attachment) {
	c.detach(a)
	_ = a.close()

	a.ready.settle(errors.Wrap(protocol.ErrChannelClosed, "frame closed before readiness"))
	if n := c.table.RejectAll(errors.Wrap(protocol.ErrChannelClosed, "frame port closed")); n > 0 {
		c.log.Warn().Int("rejected", n).Msg("Frame port closed with pending requests")
	}
	c.cfg.Metrics.SetPending(metrics.ChannelFrame, c.table.Len())
}

func (c *Channel) route(ev bus.MessageEvent, r *readiness) {
	if ev.Origin != c.peerOrigin {
		c.log.Debug().Str("origin", ev.Origin).Msg("Dropping message from unexpected origin")
		c.cfg.Metrics.ObserveDropped(metrics.ChannelFrame, "origin")
		return
	}

	env, err := protocol.DecodeEnvelope(ev.Data)
	if err != nil {
		c.log.Debug().Err(err).Msg("Dropping malformed message")
		c.cfg.Metrics.ObserveDropped(metrics.ChannelFrame, "malformed")
		return
	}

	switch {
	case env.IsReady():
		if r.settle(nil) {
			c.log.Debug().Msg("Frame is ready")
		}
	case env.IsEvent():
		e := env.AsEvent()
		c.listeners.Emit(e.Event, e)
		c.listeners.Emit(AllEvents, e)
	case env.ID != "" && !env.IsRequest():
		if !c.table.Resolve(env.ID, env.Response()) {
			c.log.Debug().Str("request_id", env.ID).Msg("Dropping response for unknown request")
			c.cfg.Metrics.ObserveDropped(metrics.ChannelFrame, "unknown_id")
			return
		}
		c.cfg.Metrics.SetPending(metrics.ChannelFrame, c.table.Len())
	default:
		c.cfg.Metrics.ObserveDropped(metrics.ChannelFrame, "unroutable")
	}
}

// Send posts req to the frame and waits for the correlated response. A
// response carrying an error is returned together with that error.
func (c *Channel) Send(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	if err := c.Open(ctx); err != nil {
		return nil, err
	}

	a := c.current()
	if a == nil {
		return nil, errors.WithStack(protocol.ErrChannelClosed)
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode %s request", req.Type)
	}

	ch, err := c.table.Add(req.ID)
	if err != nil {
		return nil, err
	}
	c.cfg.Metrics.SetPending(metrics.ChannelFrame, c.table.Len())

	if err := a.port.PostMessage(data, c.peerOrigin); err != nil {
		c.table.Reject(req.ID, errors.Wrap(protocol.ErrChannelClosed, err.Error()))
	}

	resp, err := pending.Await(ctx, ch)
	if err != nil {
		return nil, err
	}

	return resp, resp.Err()
}

// Call builds a request of typ with payload, sends it and decodes the
// result into out. out may be nil.
func (c *Channel) Call(ctx context.Context, typ protocol.RequestType, payload any, out any) error {
	req, err := protocol.NewRequest(c.cfg.Origin, typ, payload)
	if err != nil {
		return err
	}

	resp, err := c.Send(ctx, req)
	if err != nil {
		return err
	}

	return resp.DecodeResult(out)
}

// On subscribes handler to events named name, or to every event with
// AllEvents. The returned function unsubscribes.
func (c *Channel) On(name protocol.EventName, handler func(*protocol.Event)) func() {
	return c.listeners.Subscribe(name, handler)
}

// Pending returns the number of requests awaiting a response.
func (c *Channel) Pending() int {
	return c.table.Len()
}

// Show reveals the frame surface, if the port has one.
func (c *Channel) Show() {
	if s := c.surface(); s != nil {
		s.Show()
	}
}

// Hide conceals the frame surface, if the port has one.
func (c *Channel) Hide() {
	if s := c.surface(); s != nil {
		s.Hide()
	}
}

// Visible reports whether the frame surface is shown.
func (c *Channel) Visible() bool {
	s := c.surface()
	return s != nil && s.Visible()
}

func (c *Channel) surface() bus.Surface {
	a := c.current()
	if a == nil {
		return nil
	}

	s, _ := a.port.(bus.Surface)
	return s
}

// Teardown rejects every pending request with ErrChannelClosed and releases
// the port. The channel cannot be reopened.
func (c *Channel) Teardown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	a := c.att
	c.att = nil
	c.mu.Unlock()

	if n := c.table.Close(errors.Wrap(protocol.ErrChannelClosed, "channel torn down")); n > 0 {
		c.log.Debug().Int("rejected", n).Msg("Rejected pending requests on teardown")
	}
	c.cfg.Metrics.SetPending(metrics.ChannelFrame, 0)

	if a == nil {
		return
	}

	a.ready.settle(errors.WithStack(protocol.ErrChannelClosed))
	if err := a.close(); err != nil {
		c.log.Debug().Err(err).Msg("Failed to close frame port")
	}
}
