package session

import (
	"context"
	"errors"
	"log/slog"
	"net"
)

// MaxFrame is the largest inbound frame a transport accepts.
const MaxFrame = 16 << 10

// ErrTransport wraps failures reported by a Transport.
var ErrTransport = errors.New("session: transport failure")

// Frame is one message on the wire.
type Frame struct {
	Binary bool
	Data   []byte
}

// EventKind says what a transport Event carries.
type EventKind uint8

const (
	EventFrame EventKind = iota
	EventDisconnected
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventFrame:
		return "frame"
	case EventDisconnected:
		return "disconnected"
	default:
		return "error"
	}
}

// Event is something that happened on a transport since the last Poll.
type Event struct {
	Kind  EventKind
	Frame Frame
	Err   error
}

// Transport is a message-oriented connection that is polled rather than
// calling back into its owner. Implementations may read on a goroutine but
// must only hand results over through Poll.
type Transport interface {
	// Name is shown on status screens, e.g. "WebSocket".
	Name() string
	// Dial connects to ep, giving up when ctx is done.
	Dial(ctx context.Context, ep Endpoint) error
	Send(f Frame) error
	// Ping sends a transport-level keep-alive.
	Ping() error
	// Poll returns the next pending event without blocking.
	Poll() (Event, bool)
	Close() error
}

// queueEvent hands ev to the owner, dropping frames when the queue is
// full. Terminal events wait for room or for done.
func queueEvent(events chan<- Event, done <-chan struct{}, ev Event) bool {
	if ev.Kind == EventFrame {
		select {
		case events <- ev:
			return true
		default:
			return false
		}
	}
	select {
	case events <- ev:
		return true
	case <-done:
		return false
	}
}

func pollEvent(events <-chan Event) (Event, bool) {
	if events == nil {
		return Event{}, false
	}
	select {
	case ev := <-events:
		return ev, true
	default:
		return Event{}, false
	}
}

// ForEndpoint returns the transport matching ep's scheme. id names the
// client to brokers that need one.
func ForEndpoint(ep Endpoint, id string, netDial func(ctx context.Context, network, addr string) (net.Conn, error), logger *slog.Logger) Transport {
	if ep.Scheme == SchemeMQTT {
		return NewMQTT(id, netDial, logger)
	}
	return NewWebSocket(netDial, logger)
}
