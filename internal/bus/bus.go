// Package bus models the postMessage style link between a host page and the
// wallet frame: asynchronous, unordered, at-most-once delivery of byte
// messages stamped with the sender's origin.
package bus

import (
	"context"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// AnyOrigin may be passed as targetOrigin to deliver regardless of the
// receiver's origin.
const AnyOrigin = "*"

// MessageEvent is a message as observed by its receiver.
type MessageEvent struct {
	// Origin is the origin of the sending context, stamped by the transport
	// and never taken from the message body.
	Origin string
	Data   []byte
}

// Port is one end of a cross-window link.
type Port interface {
	// PostMessage sends data to the peer. The message is silently dropped
	// when targetOrigin is neither AnyOrigin nor the peer's origin.
	PostMessage(data []byte, targetOrigin string) error

	// Messages delivers inbound messages. Messages may come from any
	// sender, so receivers must validate MessageEvent.Origin.
	Messages() <-chan MessageEvent

	// Close releases the link.
	Close() error
}

// Launcher creates or attaches the receiving context for a URL and returns
// the host's port toward it.
type Launcher interface {
	Launch(ctx context.Context, targetURL string) (Port, error)
}

// Peer is implemented by ports that know the origin of the other side.
type Peer interface {
	PeerOrigin() string
}

// Surface is implemented by ports whose receiving context has a visible
// surface, such as an iframe overlay.
type Surface interface {
	Show()
	Hide()
	Visible() bool
}

// OriginOf returns scheme://host[:port] of rawURL.
func OriginOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.Wrapf(err, "invalid url %q", rawURL)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", errors.Errorf("url %q has no origin", rawURL)
	}

	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), nil
}

// MatchesTarget reports whether a message addressed to targetOrigin may be
// delivered to a receiver at receiverOrigin.
func MatchesTarget(targetOrigin, receiverOrigin string) bool {
	return targetOrigin == AnyOrigin || targetOrigin == receiverOrigin
}

func clone(data []byte) []byte {
	out := make([]byte, len(data))
	copy(out, data)
	return out
}
