// Package session holds the one persistent message session to the upstream
// peer on top of the WiFi link.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/davide97g/nami/nami/link"
)

var (
	// ErrLinkDown is returned by Begin when the link is not up.
	ErrLinkDown = link.ErrLinkDown
	// ErrHandshakeTimeout is returned when the peer is not reached within
	// the connect timeout.
	ErrHandshakeTimeout = errors.New("session: handshake timed out")
)

// State is the session state.
type State uint8

const (
	Disconnected State = iota
	Connecting
	Identifying
	Active
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Identifying:
		return "identifying"
	case Active:
		return "active"
	default:
		return "disconnected"
	}
}

// LinkChecker reports whether the link is up, kicking a reconnect when not.
type LinkChecker interface {
	EnsureConnected() bool
}

// Handler receives the payload of every inbound frame.
type Handler func(data []byte)

// Config tunes the session manager.
type Config struct {
	// Role is sent in the identify frame.
	Role string
	// ConnectTimeout bounds a single dial.
	ConnectTimeout time.Duration
	// ReconnectInterval is the wait after a failure before dialing again.
	ReconnectInterval time.Duration
	// KeepAlive is the ping interval while active. Zero disables pings.
	KeepAlive time.Duration
	// MaxEvents bounds how many transport events one Pump handles.
	MaxEvents int
}

// DefaultConfig returns the settings the device ships with.
func DefaultConfig() Config {
	return Config{
		Role:              "ESP32",
		ConnectTimeout:    10 * time.Second,
		ReconnectInterval: 5 * time.Second,
		KeepAlive:         20 * time.Second,
		MaxEvents:         4,
	}
}

type identifyFrame struct {
	Type   string `json:"type"`
	Client string `json:"client"`
}

// Manager owns the session state and is the only thing that changes it.
type Manager struct {
	transport Transport
	link      LinkChecker
	handler   Handler
	notify    link.Notifier
	logger    *slog.Logger
	cfg       Config

	state    State
	endpoint Endpoint
	started  bool
	retryAt  time.Time
	lastPing time.Time

	// dialing carries the result of a background dial while Connecting.
	dialing    chan error
	dialCancel context.CancelFunc
}

// NewManager returns a Manager speaking over t once lc reports the link up.
// Inbound payloads go to h.
func NewManager(t Transport, lc LinkChecker, h Handler, notify link.Notifier, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if notify == nil {
		notify = nopNotifier{}
	}
	if h == nil {
		h = func([]byte) {}
	}
	if cfg.MaxEvents < 1 {
		cfg.MaxEvents = 1
	}
	if cfg.Role == "" {
		cfg.Role = DefaultConfig().Role
	}
	return &Manager{
		transport: t,
		link:      lc,
		handler:   h,
		notify:    notify,
		logger:    logger,
		cfg:       cfg,
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(...string) {}

// State returns the current session state.
func (m *Manager) State() State { return m.state }

// Begin connects to ep and identifies, waiting at most ConnectTimeout for
// the dial. The session is active as soon as the identify frame is sent; no
// reply is awaited. On failure the session is left disconnected with a
// reconnect scheduled, and Pump retries it without blocking.
func (m *Manager) Begin(ctx context.Context, ep Endpoint) error {
	return m.begin(ctx, ep, time.Now())
}

func (m *Manager) begin(ctx context.Context, ep Endpoint, now time.Time) error {
	m.abortDial()
	m.endpoint, m.started = ep, true
	if !m.prepare(now) {
		return ErrLinkDown
	}

	dialCtx, cancel := m.dialContext(ctx)
	defer cancel()
	if err := dialError(ctx, dialCtx, m.transport.Dial(dialCtx, ep)); err != nil {
		return m.fail(now, "session:dial-failed", err)
	}
	return m.identify(now)
}

// prepare drops any current connection and moves to Connecting if the link
// is up. A down link schedules the next attempt.
func (m *Manager) prepare(now time.Time) bool {
	if m.state != Disconnected {
		m.transport.Close()
		m.state = Disconnected
	}
	if !m.link.EnsureConnected() {
		m.retryAt = now.Add(m.cfg.ReconnectInterval)
		return false
	}
	m.state = Connecting
	m.logger.Info("session:connecting", slog.String("endpoint", m.endpoint.String()))
	m.notify.Notify("Connecting " + m.transport.Name() + "...")
	return true
}

func (m *Manager) dialContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.cfg.ConnectTimeout > 0 {
		return context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	}
	return context.WithCancel(ctx)
}

// dialError classifies the result of a dial bounded by dialCtx.
func dialError(ctx, dialCtx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || (dialCtx.Err() != nil && ctx.Err() == nil) {
		return fmt.Errorf("%w: %w", ErrHandshakeTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}

// redial starts a dial on its own goroutine. Pump picks up the result.
func (m *Manager) redial(ctx context.Context, now time.Time) {
	if !m.prepare(now) {
		m.logger.Warn("session:reconnect-deferred", slog.String("err", ErrLinkDown.Error()))
		return
	}
	dialCtx, cancel := m.dialContext(ctx)
	result := make(chan error, 1)
	t, ep := m.transport, m.endpoint
	go func() {
		result <- dialError(ctx, dialCtx, t.Dial(dialCtx, ep))
	}()
	m.dialing, m.dialCancel = result, cancel
}

// dialResult reports the outcome of a background dial, if it is in.
func (m *Manager) dialResult() (done bool, err error) {
	select {
	case err = <-m.dialing:
		m.dialCancel()
		m.dialing, m.dialCancel = nil, nil
		return true, err
	default:
		return false, nil
	}
}

// abortDial cancels a background dial and waits for the transport to give
// up on it.
func (m *Manager) abortDial() {
	if m.dialing == nil {
		return
	}
	m.dialCancel()
	err := <-m.dialing
	m.dialing, m.dialCancel = nil, nil
	if err == nil {
		m.transport.Close()
	}
	m.state = Disconnected
}

func (m *Manager) identify(now time.Time) error {
	m.state = Identifying
	frame, err := json.Marshal(identifyFrame{Type: "identify", Client: m.cfg.Role})
	if err != nil {
		m.transport.Close()
		return m.fail(now, "session:identify-failed", err)
	}
	if err := m.transport.Send(Frame{Data: frame}); err != nil {
		m.transport.Close()
		return m.fail(now, "session:identify-failed", fmt.Errorf("%w: %w", ErrTransport, err))
	}

	m.state = Active
	m.lastPing = now
	m.logger.Info("session:active", slog.String("role", m.cfg.Role))
	m.notify.Notify(m.transport.Name() + " Connected!")
	return nil
}

func (m *Manager) fail(now time.Time, msg string, err error) error {
	m.state = Disconnected
	m.retryAt = now.Add(m.cfg.ReconnectInterval)
	m.logger.Error(msg, slog.String("err", err.Error()))
	m.notify.Notify(m.transport.Name() + " Failed!")
	return err
}

// Pump does one round of session work without blocking on the network:
// it hands up to MaxEvents pending frames to the handler, notices
// disconnects, keeps the session alive, starts a background dial once a
// scheduled reconnect is due and completes it when the dial is done.
func (m *Manager) Pump(ctx context.Context, now time.Time) {
	switch m.state {
	case Active:
		m.drain(now)
		if m.state == Active && m.cfg.KeepAlive > 0 && now.Sub(m.lastPing) >= m.cfg.KeepAlive {
			m.lastPing = now
			if err := m.transport.Ping(); err != nil {
				m.disconnected(now, fmt.Errorf("%w: ping: %w", ErrTransport, err))
			}
		}
	case Connecting:
		if m.dialing == nil {
			return
		}
		done, err := m.dialResult()
		if !done {
			return
		}
		if err != nil {
			m.fail(now, "session:reconnect-failed", err)
			return
		}
		m.identify(now)
	case Disconnected:
		if !m.started || now.Before(m.retryAt) {
			return
		}
		m.redial(ctx, now)
	}
}

func (m *Manager) drain(now time.Time) {
	for i := 0; i < m.cfg.MaxEvents; i++ {
		ev, ok := m.transport.Poll()
		if !ok {
			return
		}
		switch ev.Kind {
		case EventFrame:
			if len(ev.Frame.Data) > MaxFrame {
				m.logger.Warn("session:frame-too-large", slog.Int("len", len(ev.Frame.Data)))
				continue
			}
			m.handler(ev.Frame.Data)
		default:
			err := ev.Err
			if err == nil {
				err = errors.New(ev.Kind.String())
			}
			m.disconnected(now, err)
			return
		}
	}
}

func (m *Manager) disconnected(now time.Time, err error) {
	m.transport.Close()
	m.state = Disconnected
	m.retryAt = now.Add(m.cfg.ReconnectInterval)
	m.logger.Warn("session:disconnected", slog.String("err", err.Error()))
	m.notify.Notify(m.transport.Name() + " Disconnected")
}
