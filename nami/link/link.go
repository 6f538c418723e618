// Package link keeps the station-mode WiFi link up.
//
// The Manager owns the link state and is the only thing that changes it. It
// talks to the hardware through the Radio interface, so the same state
// machine runs against the CYW43439 on a Pico W and against a fake radio on
// the host.
package link

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/netip"
	"strconv"
	"time"
)

// ErrLinkDown is returned by callers that need the link and find it down.
var ErrLinkDown = errors.New("link: down")

// State is the link state as last observed.
type State uint8

const (
	Down State = iota
	Associating
	Up
)

func (s State) String() string {
	switch s {
	case Associating:
		return "associating"
	case Up:
		return "up"
	default:
		return "down"
	}
}

// RadioStatus is what the radio reports about its association.
type RadioStatus uint8

const (
	StatusIdle RadioStatus = iota
	StatusJoining
	StatusConnected
	StatusFailed
)

// Radio is a station-mode WiFi radio. BeginJoin must not block until
// association completes; progress is observed through Status.
type Radio interface {
	Disconnect() error
	SetStationMode() error
	BeginJoin(ssid, pass string) error
	Status() RadioStatus
	Addr() netip.Addr
}

// Notifier shows short status lines to the user.
type Notifier interface {
	Notify(lines ...string)
}

type nopNotifier struct{}

func (nopNotifier) Notify(...string) {}

// Manager drives a Radio through association and reconnection.
type Manager struct {
	radio  Radio
	ssid   string
	pass   string
	notify Notifier
	logger *slog.Logger
	state  State

	// Dwell is how long the success notice stays up after Connect.
	Dwell time.Duration
}

// NewManager returns a Manager for radio joining ssid. A nil notifier or
// logger disables notices or logging.
func NewManager(radio Radio, ssid, pass string, notify Notifier, logger *slog.Logger) *Manager {
	if notify == nil {
		notify = nopNotifier{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		radio:  radio,
		ssid:   ssid,
		pass:   pass,
		notify: notify,
		logger: logger,
		Dwell:  2 * time.Second,
	}
}

// State returns the last observed link state.
func (m *Manager) State() State { return m.state }

// Addr returns the address assigned to the radio, if any.
func (m *Manager) Addr() netip.Addr { return m.radio.Addr() }

// Connect resets the radio and joins the network, polling its status every
// attemptDelay for at most maxAttempts polls. It reports whether the link
// came up. Connect never fails fatally; the caller retries later.
func (m *Manager) Connect(ctx context.Context, maxAttempts int, attemptDelay time.Duration) bool {
	m.logger.Info("link:connecting", slog.String("ssid", m.ssid), slog.Int("passlen", len(m.pass)))
	m.notify.Notify("Connecting to WiFi", m.ssid)

	if err := m.radio.Disconnect(); err != nil {
		m.logger.Warn("link:disconnect-failed", slog.String("err", err.Error()))
	}
	if err := m.radio.SetStationMode(); err != nil {
		m.logger.Error("link:station-mode-failed", slog.String("err", err.Error()))
	}
	if err := m.radio.BeginJoin(m.ssid, m.pass); err != nil {
		m.logger.Error("link:join-failed", slog.String("err", err.Error()))
	}
	m.state = Associating

	total := strconv.Itoa(maxAttempts)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if m.radio.Status() == StatusConnected {
			break
		}
		m.notify.Notify("Connecting to WiFi", "Attempt "+strconv.Itoa(attempt)+"/"+total)
		if !sleep(ctx, attemptDelay) {
			break
		}
	}

	if m.radio.Status() != StatusConnected {
		m.state = Down
		m.logger.Error("link:connect-failed", slog.Int("attempts", maxAttempts))
		m.notify.Notify("Connection Failed!", "Retrying...")
		return false
	}

	m.state = Up
	addr := m.radio.Addr()
	m.logger.Info("link:up", slog.String("addr", addr.String()))
	m.notify.Notify("WiFi Connected!", addr.String())
	sleep(ctx, m.Dwell)
	return true
}

// EnsureConnected reports whether the link is up. When it is not, it shows
// a reconnect notice and issues a single join request without waiting for
// its outcome.
func (m *Manager) EnsureConnected() bool {
	m.Poll()
	if m.state == Up {
		return true
	}

	m.logger.Warn("link:reconnecting", slog.String("state", m.state.String()))
	m.notify.Notify("WiFi Disconnected", "Reconnecting...")
	if err := m.radio.BeginJoin(m.ssid, m.pass); err != nil {
		m.logger.Error("link:join-failed", slog.String("err", err.Error()))
		return false
	}
	m.state = Associating
	return false
}

// Poll refreshes the link state from the radio status.
func (m *Manager) Poll() State {
	prev := m.state
	switch m.radio.Status() {
	case StatusConnected:
		m.state = Up
	case StatusJoining:
		m.state = Associating
	default:
		m.state = Down
	}
	if prev != m.state {
		m.logger.Info("link:state", slog.String("from", prev.String()), slog.String("to", m.state.String()))
	}
	return m.state
}

// sleep waits d or until ctx is done, reporting whether the full wait
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
