package session

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

type fakeLink struct {
	up     bool
	checks int
}

func (l *fakeLink) EnsureConnected() bool {
	l.checks++
	return l.up
}

type fakeTransport struct {
	dialErr  error
	sendErr  error
	dials    int
	closes   int
	pings    int
	sent     []Frame
	pending  []Event
	endpoint Endpoint
	// block holds Dial until it is closed or the dial context ends.
	block chan struct{}
}

func (f *fakeTransport) Name() string { return "WebSocket" }

func (f *fakeTransport) Dial(ctx context.Context, ep Endpoint) error {
	f.dials++
	f.endpoint = ep
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.dialErr
}

func (f *fakeTransport) Send(fr Frame) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, fr)
	return nil
}

func (f *fakeTransport) Ping() error { f.pings++; return nil }

func (f *fakeTransport) Poll() (Event, bool) {
	if len(f.pending) == 0 {
		return Event{}, false
	}
	ev := f.pending[0]
	f.pending = f.pending[1:]
	return ev, true
}

func (f *fakeTransport) Close() error { f.closes++; return nil }

type notices []string

func (n *notices) Notify(lines ...string) {
	if len(lines) > 0 {
		*n = append(*n, lines[0])
	}
}

var testEndpoint = Endpoint{Scheme: SchemeWS, Host: "raspberrypi.local", Port: 3000, Path: "/"}

func newTestManager(tr *fakeTransport, l *fakeLink, h Handler) (*Manager, *notices) {
	n := &notices{}
	cfg := DefaultConfig()
	return NewManager(tr, l, h, n, cfg, nil), n
}

// pumpUntil pumps m at now until it reaches want, failing after a second.
func pumpUntil(t *testing.T, m *Manager, now time.Time, want State) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for m.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %s, stuck in %s", want, m.State())
		}
		m.Pump(context.Background(), now)
		time.Sleep(time.Millisecond)
	}
}

func TestBeginLinkDown(t *testing.T) {
	tr := &fakeTransport{}
	m, _ := newTestManager(tr, &fakeLink{up: false}, nil)

	err := m.Begin(context.Background(), testEndpoint)
	if !errors.Is(err, ErrLinkDown) {
		t.Fatalf("Expected ErrLinkDown, got %v", err)
	}
	if tr.dials != 0 {
		t.Errorf("Expected no dial attempt, got %d", tr.dials)
	}
	if m.State() != Disconnected {
		t.Errorf("Expected disconnected, got %s", m.State())
	}
}

func TestBeginIdentifiesOnce(t *testing.T) {
	tr := &fakeTransport{}
	m, n := newTestManager(tr, &fakeLink{up: true}, nil)

	if err := m.Begin(context.Background(), testEndpoint); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if m.State() != Active {
		t.Errorf("Expected active, got %s", m.State())
	}
	if len(tr.sent) != 1 {
		t.Fatalf("Expected exactly 1 identify frame, got %d", len(tr.sent))
	}
	if got := string(tr.sent[0].Data); got != `{"type":"identify","client":"ESP32"}` {
		t.Errorf("Unexpected identify frame %s", got)
	}
	want := []string{"Connecting WebSocket...", "WebSocket Connected!"}
	if len(*n) != 2 || (*n)[0] != want[0] || (*n)[1] != want[1] {
		t.Errorf("Expected notices %q, got %q", want, *n)
	}

	m.Pump(context.Background(), time.Now())
	if len(tr.sent) != 1 {
		t.Errorf("Expected no further identify frames, got %d", len(tr.sent))
	}
}

func TestBeginDialFailure(t *testing.T) {
	tr := &fakeTransport{dialErr: errors.New("connection refused")}
	m, n := newTestManager(tr, &fakeLink{up: true}, nil)

	err := m.Begin(context.Background(), testEndpoint)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("Expected ErrTransport, got %v", err)
	}
	if m.State() != Disconnected {
		t.Errorf("Expected disconnected, got %s", m.State())
	}
	if last := (*n)[len(*n)-1]; last != "WebSocket Failed!" {
		t.Errorf("Expected failure notice, got %q", last)
	}
}

func TestBeginDialTimeout(t *testing.T) {
	tr := &fakeTransport{dialErr: context.DeadlineExceeded}
	m, _ := newTestManager(tr, &fakeLink{up: true}, nil)

	if err := m.Begin(context.Background(), testEndpoint); !errors.Is(err, ErrHandshakeTimeout) {
		t.Fatalf("Expected ErrHandshakeTimeout, got %v", err)
	}
}

func TestBeginSendFailure(t *testing.T) {
	tr := &fakeTransport{sendErr: io.ErrClosedPipe}
	m, _ := newTestManager(tr, &fakeLink{up: true}, nil)

	if err := m.Begin(context.Background(), testEndpoint); !errors.Is(err, ErrTransport) {
		t.Fatalf("Expected ErrTransport, got %v", err)
	}
	if tr.closes == 0 {
		t.Error("Expected the transport to be closed")
	}
	if m.State() != Disconnected {
		t.Errorf("Expected disconnected, got %s", m.State())
	}
}

func TestPumpDeliversFrames(t *testing.T) {
	tr := &fakeTransport{}
	var got []string
	m, _ := newTestManager(tr, &fakeLink{up: true}, func(data []byte) { got = append(got, string(data)) })
	if err := m.Begin(context.Background(), testEndpoint); err != nil {
		t.Fatal(err)
	}

	tr.pending = []Event{
		{Kind: EventFrame, Frame: Frame{Data: []byte("Hello")}},
		{Kind: EventFrame, Frame: Frame{Binary: true, Data: []byte("World")}},
	}
	m.Pump(context.Background(), time.Now())
	if len(got) != 2 || got[0] != "Hello" || got[1] != "World" {
		t.Errorf("Expected both frames delivered in order, got %q", got)
	}
}

func TestPumpBoundsEvents(t *testing.T) {
	tr := &fakeTransport{}
	count := 0
	m, _ := newTestManager(tr, &fakeLink{up: true}, func([]byte) { count++ })
	if err := m.Begin(context.Background(), testEndpoint); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		tr.pending = append(tr.pending, Event{Kind: EventFrame, Frame: Frame{Data: []byte("x")}})
	}
	m.Pump(context.Background(), time.Now())
	if count != DefaultConfig().MaxEvents {
		t.Errorf("Expected %d frames handled in one pump, got %d", DefaultConfig().MaxEvents, count)
	}
}

func TestPumpDropsOversizeFrame(t *testing.T) {
	tr := &fakeTransport{}
	count := 0
	m, _ := newTestManager(tr, &fakeLink{up: true}, func([]byte) { count++ })
	if err := m.Begin(context.Background(), testEndpoint); err != nil {
		t.Fatal(err)
	}
	tr.pending = []Event{{Kind: EventFrame, Frame: Frame{Data: make([]byte, MaxFrame+1)}}}
	m.Pump(context.Background(), time.Now())
	if count != 0 {
		t.Errorf("Expected oversize frame dropped, got %d handled", count)
	}
	if m.State() != Active {
		t.Errorf("Expected session to stay active, got %s", m.State())
	}
}

func TestPumpReconnectsAfterInterval(t *testing.T) {
	tr := &fakeTransport{}
	m, n := newTestManager(tr, &fakeLink{up: true}, nil)
	if err := m.Begin(context.Background(), testEndpoint); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	tr.pending = []Event{{Kind: EventDisconnected, Err: io.EOF}}
	m.Pump(context.Background(), start)
	if m.State() != Disconnected {
		t.Fatalf("Expected disconnected, got %s", m.State())
	}
	if last := (*n)[len(*n)-1]; last != "WebSocket Disconnected" {
		t.Errorf("Expected disconnect notice, got %q", last)
	}

	m.Pump(context.Background(), start.Add(4*time.Second))
	if tr.dials != 1 {
		t.Errorf("Expected no redial before the interval, got %d dials", tr.dials)
	}

	m.Pump(context.Background(), start.Add(5*time.Second))
	if m.State() != Connecting {
		t.Fatalf("Expected connecting once the interval passed, got %s", m.State())
	}
	pumpUntil(t, m, start.Add(5*time.Second), Active)
	if tr.dials != 2 {
		t.Errorf("Expected a redial once the interval passed, got %d dials", tr.dials)
	}
	if len(tr.sent) != 2 {
		t.Errorf("Expected one identify per connection, got %d", len(tr.sent))
	}
}

func TestPumpKeepAlive(t *testing.T) {
	tr := &fakeTransport{}
	m, _ := newTestManager(tr, &fakeLink{up: true}, nil)
	now := time.Now()
	if err := m.begin(context.Background(), testEndpoint, now); err != nil {
		t.Fatal(err)
	}

	m.Pump(context.Background(), now.Add(time.Second))
	if tr.pings != 0 {
		t.Errorf("Expected no ping yet, got %d", tr.pings)
	}
	m.Pump(context.Background(), now.Add(DefaultConfig().KeepAlive))
	if tr.pings != 1 {
		t.Errorf("Expected 1 ping, got %d", tr.pings)
	}
}

func TestPumpIdleBeforeBegin(t *testing.T) {
	tr := &fakeTransport{}
	l := &fakeLink{up: true}
	m, _ := newTestManager(tr, l, nil)

	m.Pump(context.Background(), time.Now())
	if tr.dials != 0 || l.checks != 0 {
		t.Error("Expected Pump to do nothing before Begin")
	}
}

func TestPumpRedialDoesNotBlock(t *testing.T) {
	tr := &fakeTransport{dialErr: errors.New("connection refused")}
	n := &notices{}
	cfg := DefaultConfig()
	cfg.ConnectTimeout = 50 * time.Millisecond
	m := NewManager(tr, &fakeLink{up: true}, nil, n, cfg, nil)

	now := time.Now()
	if err := m.begin(context.Background(), testEndpoint, now); err == nil {
		t.Fatal("Expected the first dial to fail")
	}
	tr.dialErr = nil
	tr.block = make(chan struct{})

	later := now.Add(time.Minute)
	start := time.Now()
	m.Pump(context.Background(), later)
	if took := time.Since(start); took > 20*time.Millisecond {
		t.Errorf("Expected Pump to return at once, it took %s", took)
	}
	if m.State() != Connecting {
		t.Fatalf("Expected connecting, got %s", m.State())
	}

	start = time.Now()
	m.Pump(context.Background(), later)
	if took := time.Since(start); took > 20*time.Millisecond {
		t.Errorf("Expected Pump not to wait for the dial, it took %s", took)
	}

	pumpUntil(t, m, later, Disconnected)
	if last := (*n)[len(*n)-1]; last != "WebSocket Failed!" {
		t.Errorf("Expected failure notice after the connect timeout, got %q", last)
	}
	if len(tr.sent) != 0 {
		t.Errorf("Expected no identify without a connection, got %d", len(tr.sent))
	}
}

func TestBeginCancelsBackgroundDial(t *testing.T) {
	tr := &fakeTransport{dialErr: errors.New("connection refused")}
	cfg := DefaultConfig()
	cfg.ConnectTimeout = 50 * time.Millisecond
	m := NewManager(tr, &fakeLink{up: true}, nil, nil, cfg, nil)

	now := time.Now()
	m.begin(context.Background(), testEndpoint, now)
	tr.dialErr = nil
	tr.block = make(chan struct{})
	m.Pump(context.Background(), now.Add(time.Minute))
	if m.State() != Connecting {
		t.Fatalf("Expected connecting, got %s", m.State())
	}

	err := m.Begin(context.Background(), testEndpoint)
	if !errors.Is(err, ErrHandshakeTimeout) {
		t.Fatalf("Expected ErrHandshakeTimeout, got %v", err)
	}
	if tr.dials != 3 {
		t.Errorf("Expected the background dial replaced, got %d dials", tr.dials)
	}
	if m.State() != Disconnected {
		t.Errorf("Expected disconnected, got %s", m.State())
	}
}
