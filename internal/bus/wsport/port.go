// Package wsport carries the cross-window link over a WebSocket, so that the
// host and the wallet frame can live in different processes.
package wsport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github/chapool/embedded-wallet/internal/bus"
)

const (
	writeWait      = 10 * time.Second
	messageBuffer  = 64
	maxMessageSize = 1 << 20
)

// Port is a bus.Port backed by a WebSocket connection. Every inbound
// message is stamped with the peer origin established at handshake time.
type Port struct {
	conn       *websocket.Conn
	peerOrigin string

	messages chan bus.MessageEvent
	writeMu  sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

var _ bus.Port = (*Port)(nil)

func newPort(conn *websocket.Conn, peerOrigin string) *Port {
	conn.SetReadLimit(maxMessageSize)

	p := &Port{
		conn:       conn,
		peerOrigin: peerOrigin,
		messages:   make(chan bus.MessageEvent, messageBuffer),
		done:       make(chan struct{}),
	}
	go p.readLoop()

	return p
}

func (p *Port) readLoop() {
	defer close(p.messages)

	for {
		typ, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Str("peer_origin", p.peerOrigin).Msg("WebSocket read failed")
			}
			return
		}
		if typ != websocket.TextMessage && typ != websocket.BinaryMessage {
			continue
		}

		select {
		case p.messages <- bus.MessageEvent{Origin: p.peerOrigin, Data: data}:
		case <-p.done:
			return
		}
	}
}

// PeerOrigin returns the origin of the remote side.
func (p *Port) PeerOrigin() string {
	return p.peerOrigin
}

// PostMessage writes data to the peer unless targetOrigin excludes it.
func (p *Port) PostMessage(data []byte, targetOrigin string) error {
	if !bus.MatchesTarget(targetOrigin, p.peerOrigin) {
		log.Debug().
			Str("target_origin", targetOrigin).
			Str("peer_origin", p.peerOrigin).
			Msg("Dropping message for mismatched target origin")
		return nil
	}

	select {
	case <-p.done:
		return errors.New("port is closed")
	default:
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if err := p.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return errors.Wrap(err, "failed to set write deadline")
	}
	if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.Wrap(err, "failed to write message")
	}

	return nil
}

// Messages returns inbound messages. The channel is closed when the
// connection ends.
func (p *Port) Messages() <-chan bus.MessageEvent {
	return p.messages
}

// Close sends a close frame and releases the connection.
func (p *Port) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)

		p.writeMu.Lock()
		_ = p.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		p.writeMu.Unlock()

		err = p.conn.Close()
	})

	return err
}

// Upgrader accepts frame connections from allowed host origins.
type Upgrader struct {
	allowed  map[string]struct{}
	upgrader websocket.Upgrader
}

// NewUpgrader creates an upgrader accepting the given origins. An entry of
// bus.AnyOrigin accepts every origin.
func NewUpgrader(allowedOrigins []string) *Upgrader {
	u := &Upgrader{allowed: make(map[string]struct{}, len(allowedOrigins))}
	for _, o := range allowedOrigins {
		u.allowed[o] = struct{}{}
	}

	u.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return u.Allowed(r.Header.Get("Origin"))
		},
	}

	return u
}

// Allowed reports whether origin may open a frame.
func (u *Upgrader) Allowed(origin string) bool {
	if origin == "" {
		return false
	}
	if _, ok := u.allowed[bus.AnyOrigin]; ok {
		return true
	}
	_, ok := u.allowed[origin]

	return ok
}

// Upgrade upgrades the HTTP request and returns the frame side port.
func (u *Upgrader) Upgrade(w http.ResponseWriter, r *http.Request) (*Port, error) {
	conn, err := u.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upgrade connection")
	}

	return newPort(conn, r.Header.Get("Origin")), nil
}

// Launcher dials frames over WebSocket on behalf of a host origin.
type Launcher struct {
	// Origin is sent as the Origin header of the handshake.
	Origin string
	Dialer *websocket.Dialer
}

var _ bus.Launcher = (*Launcher)(nil)

// Launch dials targetURL and returns the host side port.
func (l *Launcher) Launch(ctx context.Context, targetURL string) (bus.Port, error) {
	peerOrigin, err := bus.OriginOf(targetURL)
	if err != nil {
		return nil, err
	}

	dialer := l.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	header := http.Header{}
	header.Set("Origin", l.Origin)

	conn, resp, err := dialer.DialContext(ctx, targetURL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial frame %s", targetURL)
	}

	return newPort(conn, peerOrigin), nil
}
