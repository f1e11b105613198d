// Package worker implements the frame side client of the custody worker:
// a correlated request/response channel over a trusted message pipe.
package worker

import (
	"context"
	"sync"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/pkg/errors"
)

const pipeBuffer = 32

// ErrPortClosed is returned when posting on a closed port.
var ErrPortClosed = errors.New("worker port closed")

// Port is one end of the frame to worker message pipe. Messages are copied
// across; the two sides share no memory.
type Port interface {
	PostMessage(data []byte) error
	// Messages is closed once the other end has closed and every message
	// it posted was delivered.
	Messages() <-chan []byte
	Close() error
}

// Spawner starts a worker and returns the frame's port toward it.
type Spawner interface {
	Spawn(ctx context.Context) (Port, error)
}

// SpawnFunc adapts a function to Spawner.
type SpawnFunc func(ctx context.Context) (Port, error)

func (f SpawnFunc) Spawn(ctx context.Context) (Port, error) {
	return f(ctx)
}

type pipeEnd struct {
	in  *fn.ConcurrentQueue[[]byte]
	out *fn.ConcurrentQueue[[]byte]

	mu     sync.RWMutex
	closed bool
}

// Pipe returns two connected ports.
func Pipe() (Port, Port) {
	ab := fn.NewConcurrentQueue[[]byte](pipeBuffer)
	ba := fn.NewConcurrentQueue[[]byte](pipeBuffer)
	ab.Start()
	ba.Start()

	return &pipeEnd{in: ba, out: ab}, &pipeEnd{in: ab, out: ba}
}

func (p *pipeEnd) PostMessage(data []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPortClosed
	}

	msg := make([]byte, len(data))
	copy(msg, data)
	p.out.ChanIn() <- msg

	return nil
}

func (p *pipeEnd) Messages() <-chan []byte {
	return p.in.ChanOut()
}

// Close stops sending. The peer's Messages channel closes once drained.
func (p *pipeEnd) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	close(p.out.ChanIn())

	return nil
}
