package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait         = 5 * time.Second
	defaultQueueDepth = 8
)

// WebSocket is a Transport over a gorilla/websocket client connection.
type WebSocket struct {
	dialer websocket.Dialer
	logger *slog.Logger

	// QueueDepth bounds the frames buffered between Polls. Frames that
	// arrive while the queue is full are dropped.
	QueueDepth int

	conn   *websocket.Conn
	events chan Event
	done   chan struct{}
}

// NewWebSocket returns a WebSocket transport. netDial, when not nil,
// replaces the default TCP dialer, which is how the firmware dials through
// its own network stack.
func NewWebSocket(netDial func(ctx context.Context, network, addr string) (net.Conn, error), logger *slog.Logger) *WebSocket {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &WebSocket{
		dialer: websocket.Dialer{
			NetDialContext:  netDial,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:     logger,
		QueueDepth: defaultQueueDepth,
	}
}

func (w *WebSocket) Name() string { return "WebSocket" }

// Dial opens the connection and starts the reader.
func (w *WebSocket) Dial(ctx context.Context, ep Endpoint) error {
	if w.conn != nil {
		w.Close()
	}
	conn, _, err := w.dialer.DialContext(ctx, ep.URL(), nil)
	if err != nil {
		return err
	}
	conn.SetReadLimit(MaxFrame)

	depth := w.QueueDepth
	if depth < 1 {
		depth = 1
	}
	w.conn = conn
	w.events = make(chan Event, depth)
	w.done = make(chan struct{})
	go w.readLoop(conn, w.events, w.done)

	w.logger.Info("ws:connected", slog.String("url", ep.URL()))
	return nil
}

func (w *WebSocket) readLoop(conn *websocket.Conn, events chan<- Event, done <-chan struct{}) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			kind := EventDisconnected
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!errors.Is(err, net.ErrClosed) && !errors.Is(err, io.EOF) {
				kind = EventError
			}
			queueEvent(events, done, Event{Kind: kind, Err: err})
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		ev := Event{Kind: EventFrame, Frame: Frame{Binary: mt == websocket.BinaryMessage, Data: data}}
		if !queueEvent(events, done, ev) {
			w.logger.Warn("ws:queue-full, dropping frame", slog.Int("len", len(data)))
		}
	}
}

func (w *WebSocket) Send(f Frame) error {
	if w.conn == nil {
		return net.ErrClosed
	}
	mt := websocket.TextMessage
	if f.Binary {
		mt = websocket.BinaryMessage
	}
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteMessage(mt, f.Data)
}

func (w *WebSocket) Ping() error {
	if w.conn == nil {
		return net.ErrClosed
	}
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (w *WebSocket) Poll() (Event, bool) { return pollEvent(w.events) }

// Close tears down the connection. Events not yet polled are discarded.
func (w *WebSocket) Close() error {
	if w.conn == nil {
		return nil
	}
	close(w.done)
	err := w.conn.Close()
	w.conn, w.events, w.done = nil, nil, nil
	return err
}
