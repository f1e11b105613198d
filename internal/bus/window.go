package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const inboxSize = 64

// Window is an in-process browsing context with an origin and an inbox.
// Delivery never blocks the sender.
type Window struct {
	origin string
	inbox  *fn.ConcurrentQueue[MessageEvent]

	closeOnce sync.Once
	quit      chan struct{}
}

// NewWindow creates a window for origin.
func NewWindow(origin string) *Window {
	inbox := fn.NewConcurrentQueue[MessageEvent](inboxSize)
	inbox.Start()

	return &Window{
		origin: origin,
		inbox:  inbox,
		quit:   make(chan struct{}),
	}
}

// Origin returns the window's origin.
func (w *Window) Origin() string {
	return w.origin
}

// Deliver enqueues ev in the window's inbox. It is how any context, peer
// or not, posts to this window.
func (w *Window) Deliver(ev MessageEvent) {
	select {
	case w.inbox.ChanIn() <- MessageEvent{Origin: ev.Origin, Data: clone(ev.Data)}:
	case <-w.quit:
	}
}

// Messages returns the window's inbox.
func (w *Window) Messages() <-chan MessageEvent {
	return w.inbox.ChanOut()
}

// Done is closed once the window is closed.
func (w *Window) Done() <-chan struct{} {
	return w.quit
}

// Close stops the window's inbox.
func (w *Window) Close() {
	w.closeOnce.Do(func() {
		close(w.quit)
		w.inbox.Stop()
	})
}

// Post sends data from one window to another, honouring targetOrigin.
func Post(from, to *Window, data []byte, targetOrigin string) error {
	select {
	case <-from.quit:
		return errors.New("sending window is closed")
	default:
	}

	if !MatchesTarget(targetOrigin, to.origin) {
		log.Debug().
			Str("target_origin", targetOrigin).
			Str("receiver_origin", to.origin).
			Msg("Dropping message for mismatched target origin")
		return nil
	}

	to.Deliver(MessageEvent{Origin: from.origin, Data: data})
	return nil
}

// linkPort is one end of a pair of windows.
type linkPort struct {
	self    *Window
	peer    *Window
	onClose func()
	visible *atomic.Bool
}

func (p *linkPort) PostMessage(data []byte, targetOrigin string) error {
	return Post(p.self, p.peer, data, targetOrigin)
}

func (p *linkPort) Messages() <-chan MessageEvent {
	return p.self.Messages()
}

func (p *linkPort) Close() error {
	if p.onClose != nil {
		p.onClose()
	}
	return nil
}

func (p *linkPort) PeerOrigin() string {
	return p.peer.origin
}

func (p *linkPort) Show()         { p.visible.Store(true) }
func (p *linkPort) Hide()         { p.visible.Store(false) }
func (p *linkPort) Visible() bool { return p.visible.Load() }

// Link connects two windows and returns a port for each side. Closing
// either port closes the frame window.
func Link(host, frame *Window) (hostPort, framePort Port) {
	visible := &atomic.Bool{}
	closeFrame := func() { frame.Close() }

	hostPort = &linkPort{self: host, peer: frame, onClose: closeFrame, visible: visible}
	framePort = &linkPort{self: frame, peer: host, onClose: closeFrame, visible: visible}

	return hostPort, framePort
}

// MountFunc runs a frame application on its port until ctx is done.
type MountFunc func(ctx context.Context, port Port)

// Bus hosts frame applications by origin and launches them on demand.
type Bus struct {
	mu   sync.RWMutex
	apps map[string]MountFunc
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{apps: make(map[string]MountFunc)}
}

// Register makes mount available at the origin of appURL.
func (b *Bus) Register(appURL string, mount MountFunc) error {
	origin, err := OriginOf(appURL)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.apps[origin] = mount
	return nil
}

// Launcher returns a launcher that opens frames as children of host.
func (b *Bus) Launcher(host *Window) Launcher {
	return &windowLauncher{bus: b, host: host}
}

type windowLauncher struct {
	bus  *Bus
	host *Window
}

func (l *windowLauncher) Launch(_ context.Context, targetURL string) (Port, error) {
	origin, err := OriginOf(targetURL)
	if err != nil {
		return nil, err
	}

	l.bus.mu.RLock()
	mount, ok := l.bus.apps[origin]
	l.bus.mu.RUnlock()
	if !ok {
		return nil, errors.Errorf("no frame application registered for %s", origin)
	}

	frame := NewWindow(origin)
	hostPort, framePort := Link(l.host, frame)

	// The frame lives until its port is closed, independent of the launch
	// context.
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-frame.Done()
		cancel()
	}()
	go mount(ctx, framePort)

	return hostPort, nil
}
