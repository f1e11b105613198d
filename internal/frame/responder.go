package frame

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github/chapool/embedded-wallet/internal/bus"
	"github/chapool/embedded-wallet/internal/metrics"
	"github/chapool/embedded-wallet/internal/protocol"
	"github/chapool/embedded-wallet/internal/util"
)

// Handler answers host requests inside the frame. The request origin has
// already been validated and replaced by the transport stamped origin.
type Handler interface {
	HandleRequest(ctx context.Context, req *protocol.Request) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req *protocol.Request) (any, error)

func (f HandlerFunc) HandleRequest(ctx context.Context, req *protocol.Request) (any, error) {
	return f(ctx, req)
}

// ResponderConfig configures a Responder.
type ResponderConfig struct {
	// ParentOrigin is the host origin requests are accepted from. When
	// empty it is taken from the port, which must then implement bus.Peer.
	ParentOrigin string

	Metrics *metrics.Service
}

// Responder is the frame end of the cross-window channel. It announces
// readiness, answers each valid request exactly once and broadcasts events
// to the parent.
type Responder struct {
	port         bus.Port
	parentOrigin string
	handler      Handler
	metrics      *metrics.Service
	log          zerolog.Logger

	wg sync.WaitGroup
}

// NewResponder binds handler to port.
func NewResponder(port bus.Port, handler Handler, cfg ResponderConfig) (*Responder, error) {
	parent := cfg.ParentOrigin
	if parent == "" {
		peer, ok := port.(bus.Peer)
		if !ok {
			return nil, errors.New("parent origin unknown: configure it or use a port that reports its peer")
		}
		parent = peer.PeerOrigin()
	}
	if parent == "" || parent == bus.AnyOrigin {
		return nil, errors.Errorf("invalid parent origin %q", parent)
	}

	return &Responder{
		port:         port,
		parentOrigin: parent,
		handler:      handler,
		metrics:      cfg.Metrics,
		log:          log.With().Str("component", "frame_responder").Str("parent_origin", parent).Logger(),
	}, nil
}

// ParentOrigin returns the origin requests are accepted from.
func (r *Responder) ParentOrigin() string {
	return r.parentOrigin
}

// Serve posts the readiness handshake and answers requests until ctx is done
// or the port closes. Requests are handled concurrently; Serve waits for
// in-flight handlers before returning.
func (r *Responder) Serve(ctx context.Context) error {
	defer r.wg.Wait()

	if err := r.port.PostMessage(protocol.ReadyMessage(), r.parentOrigin); err != nil {
		return errors.Wrap(err, "failed to post readiness handshake")
	}

	for {
		select {
		case ev, ok := <-r.port.Messages():
			if !ok {
				return nil
			}
			r.dispatch(ctx, ev)
		case <-ctx.Done():
			return nil
		}
	}
}

func (r *Responder) dispatch(ctx context.Context, ev bus.MessageEvent) {
	if ev.Origin != r.parentOrigin {
		r.log.Debug().Str("origin", ev.Origin).Msg("Dropping request from unexpected origin")
		r.metrics.ObserveDropped(metrics.ChannelFrame, "origin")
		return
	}

	env, err := protocol.DecodeEnvelope(ev.Data)
	if err != nil || !env.IsRequest() {
		r.log.Debug().Err(err).Msg("Dropping message that is not a request")
		r.metrics.ObserveDropped(metrics.ChannelFrame, "malformed")
		return
	}

	req := env.Request()
	req.Origin = ev.Origin

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.handle(ctx, req)
	}()
}

func (r *Responder) handle(ctx context.Context, req *protocol.Request) {
	l := r.log.With().Str("request_id", req.ID).Str("request_type", string(req.Type)).Logger()
	ctx = util.WithLogger(ctx, l)

	result, err := r.call(ctx, req)
	r.metrics.ObserveRequest(metrics.ChannelFrame, string(req.Type), err)
	if err != nil {
		l.Debug().Err(err).Msg("Request failed")
	}

	if err := r.post(protocol.NewResponse(req.ID, result, err)); err != nil {
		l.Warn().Err(err).Msg("Failed to post response")
	}
}

func (r *Responder) call(ctx context.Context, req *protocol.Request) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			util.LogFromContext(ctx).Error().Interface("panic", rec).Msg("Request handler panicked")
			err = errors.Wrapf(protocol.ErrInternal, "handler panicked: %v", rec)
		}
	}()

	return r.handler.HandleRequest(ctx, req)
}

// Broadcast posts an unsolicited event to the parent.
func (r *Responder) Broadcast(name protocol.EventName, data any) error {
	ev, err := protocol.NewEvent(name, data)
	if err != nil {
		return err
	}

	return r.post(ev)
}

func (r *Responder) post(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "failed to encode message")
	}

	return r.port.PostMessage(data, r.parentOrigin)
}
