package custody

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github/chapool/embedded-wallet/internal/metrics"
	"github/chapool/embedded-wallet/internal/protocol"
	"github/chapool/embedded-wallet/internal/util"
	"github/chapool/embedded-wallet/internal/worker"
)

// Run is the worker entry point. It serves custody requests from port one
// at a time until the port closes or ctx is done, then scrubs the seed and
// closes the port. A panic while handling a request is reported to the
// client as a worker error and ends the worker.
func Run(ctx context.Context, port worker.Port, cfg Config) (err error) {
	onAutoLock := cfg.OnAutoLock
	cfg.OnAutoLock = func() {
		postEvent(port, protocol.WorkerEventAutoLock)
		if onAutoLock != nil {
			onAutoLock()
		}
	}

	m, err := New(cfg)
	if err != nil {
		return err
	}

	defer func() {
		m.Lock(ctx)
		_ = port.Close()
	}()

	defer func() {
		if rec := recover(); rec != nil {
			m.log.Error().Interface("panic", rec).Msg("Custody worker panicked")
			postError(port, fmt.Sprintf("custody worker panicked: %v", rec))
			err = errors.Errorf("custody worker panicked: %v", rec)
		}
	}()

	for {
		select {
		case data, ok := <-port.Messages():
			if !ok {
				return nil
			}
			m.serve(ctx, port, data)
		case <-ctx.Done():
			return nil
		}
	}
}

// Spawner returns a spawner running a custody worker behind an in-process
// pipe. The worker outlives the spawn context and stops when the client
// closes its port.
func Spawner(cfg Config) worker.Spawner {
	return worker.SpawnFunc(func(ctx context.Context) (worker.Port, error) {
		client, server := worker.Pipe()

		go func() {
			if err := Run(context.WithoutCancel(ctx), server, cfg); err != nil {
				util.LogFromContext(ctx).Error().Err(err).Msg("Custody worker stopped")
			}
		}()

		return client, nil
	})
}

func (m *Module) serve(ctx context.Context, port worker.Port, data []byte) {
	var req protocol.WorkerRequest
	if err := json.Unmarshal(data, &req); err != nil || req.ID == "" {
		m.log.Debug().Msg("Dropping malformed custody request")
		m.cfg.Metrics.ObserveDropped(metrics.ChannelWorker, "malformed")
		return
	}

	result, err := m.handle(ctx, &req)
	if err != nil {
		m.log.Debug().Str("request_type", string(req.Type)).Err(err).Msg("Custody request failed")
	}

	post(port, protocol.NewWorkerResponse(req.ID, result, err))
}

func (m *Module) handle(ctx context.Context, req *protocol.WorkerRequest) (any, error) {
	switch req.Type {
	case protocol.WorkerUnlock:
		var p protocol.UnlockPayload
		if err := req.DecodePayload(&p); err != nil {
			return nil, err
		}
		if err := m.Unlock(ctx, p.Encrypted, p.Password); err != nil {
			return nil, err
		}
		return protocol.UnlockedResult{Unlocked: true}, nil

	case protocol.WorkerLock:
		m.Lock(ctx)
		return protocol.UnlockedResult{Unlocked: false}, nil

	case protocol.WorkerIsUnlocked:
		return protocol.UnlockedResult{Unlocked: m.IsUnlocked()}, nil

	case protocol.WorkerDeriveAccount:
		var p protocol.IndexPayload
		if err := req.DecodePayload(&p); err != nil {
			return nil, err
		}
		return m.DeriveAccount(ctx, p.Index)

	case protocol.WorkerGetPublicKey:
		var p protocol.IndexPayload
		if err := req.DecodePayload(&p); err != nil {
			return nil, err
		}
		return m.GetPublicKey(ctx, p.Index)

	case protocol.WorkerSignSerializedTransaction:
		var p protocol.SignSerializedTransactionPayload
		if err := req.DecodePayload(&p); err != nil {
			return nil, err
		}
		signed, err := m.SignSerializedTransaction(ctx, p.Index, p.SerializedTransaction)
		if err != nil {
			return nil, err
		}
		return protocol.SignedTransaction{SignedTransaction: signed}, nil

	default:
		return nil, errors.Wrapf(protocol.ErrInvalidPayload, "unknown request type %q", req.Type)
	}
}

func postEvent(port worker.Port, name protocol.WorkerEventName) {
	post(port, &protocol.WorkerMessage{Kind: protocol.WorkerKindEvent, Event: name})
}

func postError(port worker.Port, message string) {
	post(port, &protocol.WorkerMessage{
		Kind:  protocol.WorkerKindError,
		Error: &protocol.Error{Code: protocol.CodeInternal, Message: message},
	})
}

func post(port worker.Port, msg *protocol.WorkerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	// The client may already be gone; there is nobody left to tell.
	_ = port.PostMessage(data)
}
