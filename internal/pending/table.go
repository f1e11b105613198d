// Package pending implements the table of in-flight requests awaiting a
// correlated response. Each side of every channel keeps its own table.
package pending

import (
	"context"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/pkg/errors"
	"github/chapool/embedded-wallet/internal/protocol"
)

// Config configures a Table.
type Config struct {
	// Clock drives request timeouts. Defaults to the wall clock.
	Clock clock.Clock

	// Timeout bounds how long an entry may wait for its response.
	Timeout time.Duration

	// OnTimeout, when set, is called after an entry expired.
	OnTimeout func(id string)
}

type entry[T any] struct {
	result chan fn.Result[T]
	done   chan struct{}
}

// Table maps correlation ids to the continuation awaiting their response.
// An entry is removed exactly once: on response, on timeout or when the
// table is closed.
type Table[T any] struct {
	cfg Config

	mu      sync.Mutex
	entries map[string]*entry[T]
	closed  error
}

// New creates an empty table.
func New[T any](cfg Config) *Table[T] {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}

	return &Table[T]{
		cfg:     cfg,
		entries: make(map[string]*entry[T]),
	}
}

// Add registers id and returns the channel its outcome will be delivered on.
// The channel receives exactly one value.
func (t *Table[T]) Add(id string) (<-chan fn.Result[T], error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed != nil {
		return nil, t.closed
	}
	if _, ok := t.entries[id]; ok {
		return nil, errors.Errorf("duplicate request id %s", id)
	}

	e := &entry[T]{
		result: make(chan fn.Result[T], 1),
		done:   make(chan struct{}),
	}
	t.entries[id] = e

	// Register the deadline before returning so that a test clock advanced
	// right after Add always observes it.
	deadline := t.cfg.Clock.TickAfter(t.cfg.Timeout)
	go t.expire(id, e, deadline)

	return e.result, nil
}

func (t *Table[T]) expire(id string, e *entry[T], deadline <-chan time.Time) {
	select {
	case <-deadline:
		err := errors.Wrapf(protocol.ErrRequestTimeout, "request %s timed out after %s", id, t.cfg.Timeout)
		if t.settle(id, fn.Err[T](err)) && t.cfg.OnTimeout != nil {
			t.cfg.OnTimeout(id)
		}
	case <-e.done:
	}
}

func (t *Table[T]) settle(id string, res fn.Result[T]) bool {
	t.mu.Lock()
	e, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}

	e.result <- res
	close(e.done)

	return true
}

// Resolve completes id with val. It reports false for unknown ids.
func (t *Table[T]) Resolve(id string, val T) bool {
	return t.settle(id, fn.Ok(val))
}

// Reject fails id with err. It reports false for unknown ids.
func (t *Table[T]) Reject(id string, err error) bool {
	return t.settle(id, fn.Err[T](err))
}

// Has reports whether id is still pending.
func (t *Table[T]) Has(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.entries[id]
	return ok
}

// Len returns the number of pending entries.
func (t *Table[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.entries)
}

// RejectAll fails every pending entry with err and returns how many were
// rejected. New entries are still accepted.
func (t *Table[T]) RejectAll(err error) int {
	t.mu.Lock()
	ids := make([]string, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	n := 0
	for _, id := range ids {
		if t.Reject(id, err) {
			n++
		}
	}

	return n
}

// Close rejects every pending entry with err and refuses new ones.
func (t *Table[T]) Close(err error) int {
	t.mu.Lock()
	if t.closed == nil {
		t.closed = err
	}
	t.mu.Unlock()

	return t.RejectAll(err)
}

// Await blocks until the outcome arrives or ctx is done. Abandoning the
// wait does not remove the entry; it still resolves or times out.
func Await[T any](ctx context.Context, ch <-chan fn.Result[T]) (T, error) {
	select {
	case res := <-ch:
		return res.Unpack()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
