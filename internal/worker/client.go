package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github/chapool/embedded-wallet/internal/metrics"
	"github/chapool/embedded-wallet/internal/pending"
	"github/chapool/embedded-wallet/internal/protocol"
)

// DefaultRequestTimeout bounds every worker call.
const DefaultRequestTimeout = 30 * time.Second

type state int

const (
	stateIdle state = iota
	stateRunning
	stateCrashed
	stateTerminated
)

// Config configures a Client.
type Config struct {
	Spawner        Spawner
	Clock          clock.Clock
	RequestTimeout time.Duration
	Metrics        *metrics.Service
}

// Client talks to the custody worker. A client owns at most one worker in
// its lifetime: it is spawned once and never restarted after a crash.
type Client struct {
	cfg   Config
	log   zerolog.Logger
	table *pending.Table[*protocol.Response]
	feed  event.FeedOf[protocol.WorkerEvent]

	mu    sync.Mutex
	state state
	port  Port
}

// NewClient creates a client. The worker is spawned by Initialize.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Spawner == nil {
		return nil, errors.New("worker client requires a spawner")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	c := &Client{
		cfg: cfg,
		log: log.With().Str("component", "worker_client").Logger(),
	}

	c.table = pending.New[*protocol.Response](pending.Config{
		Clock:   cfg.Clock,
		Timeout: cfg.RequestTimeout,
		OnTimeout: func(id string) {
			c.log.Warn().Str("request_id", id).Dur("timeout", cfg.RequestTimeout).Msg("Worker request timed out")
			cfg.Metrics.ObserveTimeout(metrics.ChannelWorker)
			cfg.Metrics.SetPending(metrics.ChannelWorker, c.table.Len())
		},
	})

	return c, nil
}

// Initialize spawns the worker. Calling it again is a logged no-op.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateIdle {
		c.log.Warn().Msg("Worker already initialized")
		return nil
	}

	port, err := c.cfg.Spawner.Spawn(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to spawn worker")
	}

	c.port = port
	c.state = stateRunning
	go c.readLoop(port)

	c.log.Debug().Msg("Worker spawned")

	return nil
}

func (c *Client) readLoop(port Port) {
	for data := range port.Messages() {
		var msg protocol.WorkerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Debug().Err(err).Msg("Dropping malformed worker message")
			c.cfg.Metrics.ObserveDropped(metrics.ChannelWorker, "malformed")
			continue
		}

		switch msg.Kind {
		case protocol.WorkerKindResponse:
			if !c.table.Resolve(msg.ID, msg.Response()) {
				c.log.Debug().Str("request_id", msg.ID).Msg("Dropping worker response for unknown request")
				c.cfg.Metrics.ObserveDropped(metrics.ChannelWorker, "unknown_id")
				continue
			}
			c.cfg.Metrics.SetPending(metrics.ChannelWorker, c.table.Len())
		case protocol.WorkerKindEvent:
			c.feed.Send(protocol.WorkerEvent{Name: msg.Event, Data: msg.Data})
		case protocol.WorkerKindError:
			reason := "uncaught worker error"
			if msg.Error != nil {
				reason = msg.Error.Message
			}
			c.crash(reason)
		default:
			c.cfg.Metrics.ObserveDropped(metrics.ChannelWorker, "unroutable")
		}
	}

	c.crash("worker exited")
}

// crash rejects every pending call. The worker is not restarted.
func (c *Client) crash(reason string) {
	c.mu.Lock()
	if c.state != stateRunning {
		c.mu.Unlock()
		return
	}
	c.state = stateCrashed
	port := c.port
	c.mu.Unlock()

	n := c.table.Close(errors.Wrap(protocol.ErrWorkerCrashed, reason))
	c.cfg.Metrics.SetPending(metrics.ChannelWorker, 0)
	c.log.Error().Str("reason", reason).Int("rejected", n).Msg("Worker crashed")

	_ = port.Close()
}

// Terminate stops the worker and rejects every pending call.
func (c *Client) Terminate() {
	c.mu.Lock()
	if c.state == stateTerminated {
		c.mu.Unlock()
		return
	}
	c.state = stateTerminated
	port := c.port
	c.mu.Unlock()

	n := c.table.Close(errors.Wrap(protocol.ErrChannelClosed, "worker terminated"))
	c.cfg.Metrics.SetPending(metrics.ChannelWorker, 0)
	c.log.Debug().Int("rejected", n).Msg("Worker terminated")

	if port != nil {
		_ = port.Close()
	}
}

// SubscribeEvents delivers unsolicited worker events to ch. Delivery blocks
// the client's read loop until ch accepts, so ch must be drained.
func (c *Client) SubscribeEvents(ch chan<- protocol.WorkerEvent) event.Subscription {
	return c.feed.Subscribe(ch)
}

// Running reports whether the worker was spawned and has neither crashed
// nor been terminated.
func (c *Client) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state == stateRunning
}

// Pending returns the number of calls awaiting a response.
func (c *Client) Pending() int {
	return c.table.Len()
}

// Call sends a request of typ and decodes the result into out, which may be
// nil.
func (c *Client) Call(ctx context.Context, typ protocol.WorkerRequestType, payload any, out any) (err error) {
	defer func() {
		c.cfg.Metrics.ObserveRequest(metrics.ChannelWorker, string(typ), err)
	}()

	c.mu.Lock()
	st, port := c.state, c.port
	c.mu.Unlock()

	switch st {
	case stateIdle:
		return errors.Wrap(protocol.ErrChannelClosed, "worker not initialized")
	case stateCrashed:
		return errors.Wrap(protocol.ErrWorkerCrashed, "worker is not running")
	case stateTerminated:
		return errors.Wrap(protocol.ErrChannelClosed, "worker terminated")
	case stateRunning:
	}

	req := protocol.WorkerRequest{ID: protocol.NewRequestID(), Type: typ}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return errors.Wrapf(err, "failed to encode %s payload", typ)
		}
		req.Payload = raw
	}

	data, err := json.Marshal(req)
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s request", typ)
	}

	ch, err := c.table.Add(req.ID)
	if err != nil {
		return err
	}
	c.cfg.Metrics.SetPending(metrics.ChannelWorker, c.table.Len())

	if err := port.PostMessage(data); err != nil {
		c.table.Reject(req.ID, errors.Wrap(protocol.ErrWorkerCrashed, err.Error()))
	}

	resp, err := pending.Await(ctx, ch)
	if err != nil {
		return err
	}

	return resp.DecodeResult(out)
}

// Unlock decrypts the seed inside the worker.
func (c *Client) Unlock(ctx context.Context, encrypted json.RawMessage, password string) error {
	return c.Call(ctx, protocol.WorkerUnlock, protocol.UnlockPayload{Encrypted: encrypted, Password: password}, nil)
}

// Lock scrubs the seed inside the worker.
func (c *Client) Lock(ctx context.Context) error {
	return c.Call(ctx, protocol.WorkerLock, nil, nil)
}

// IsUnlocked reports whether the worker holds a seed.
func (c *Client) IsUnlocked(ctx context.Context) (bool, error) {
	var res protocol.UnlockedResult
	if err := c.Call(ctx, protocol.WorkerIsUnlocked, nil, &res); err != nil {
		return false, err
	}

	return res.Unlocked, nil
}

// DeriveAccount derives the account at index.
func (c *Client) DeriveAccount(ctx context.Context, index uint32) (*protocol.DerivedAccount, error) {
	var res protocol.DerivedAccount
	if err := c.Call(ctx, protocol.WorkerDeriveAccount, protocol.IndexPayload{Index: index}, &res); err != nil {
		return nil, err
	}

	return &res, nil
}

// GetPublicKey returns the public key of the account at index.
func (c *Client) GetPublicKey(ctx context.Context, index uint32) (*protocol.PublicKeyResult, error) {
	var res protocol.PublicKeyResult
	if err := c.Call(ctx, protocol.WorkerGetPublicKey, protocol.IndexPayload{Index: index}, &res); err != nil {
		return nil, err
	}

	return &res, nil
}

// SignSerializedTransaction signs a base64 serialized transaction with the
// account at index and returns the base64 signature-prefixed transaction.
func (c *Client) SignSerializedTransaction(ctx context.Context, index uint32, serialized string) (string, error) {
	var res protocol.SignedTransaction
	payload := protocol.SignSerializedTransactionPayload{Index: index, SerializedTransaction: serialized}
	if err := c.Call(ctx, protocol.WorkerSignSerializedTransaction, payload, &res); err != nil {
		return "", err
	}

	return res.SignedTransaction, nil
}
