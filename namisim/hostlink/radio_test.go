package hostlink

import (
	"context"
	"testing"
	"time"

	"github.com/davide97g/nami/nami/link"
)

func TestJoinDelay(t *testing.T) {
	now := time.Unix(0, 0)
	r := New(time.Second)
	r.now = func() time.Time { return now }

	if err := r.BeginJoin("sim", ""); err != nil {
		t.Fatal(err)
	}
	if got := r.Status(); got != link.StatusJoining {
		t.Fatalf("Expected joining, got %d", got)
	}
	if r.Addr().IsValid() {
		t.Error("Expected no address while joining")
	}

	now = now.Add(time.Second)
	if got := r.Status(); got != link.StatusConnected {
		t.Fatalf("Expected connected after the delay, got %d", got)
	}
	if !r.Addr().IsValid() {
		t.Error("Expected an address once connected")
	}
}

func TestOfflineFailsJoin(t *testing.T) {
	r := New(0)
	r.BeginJoin("sim", "")
	if r.Status() != link.StatusConnected {
		t.Fatal("Expected an immediate join")
	}

	r.SetOffline(true)
	if !r.Offline() || r.Status() != link.StatusIdle {
		t.Fatal("Expected the link dropped")
	}
	r.BeginJoin("sim", "")
	if got := r.Status(); got != link.StatusFailed {
		t.Errorf("Expected a failed join while offline, got %d", got)
	}

	r.SetOffline(false)
	r.BeginJoin("sim", "")
	if got := r.Status(); got != link.StatusConnected {
		t.Errorf("Expected the join to succeed again, got %d", got)
	}
}

func TestDrivesLinkManager(t *testing.T) {
	r := New(0)
	m := link.NewManager(r, "sim", "", nil, nil)
	m.Dwell = 0
	if !m.Connect(context.Background(), 3, time.Millisecond) {
		t.Fatal("Expected the link up")
	}

	r.SetOffline(true)
	if m.EnsureConnected() {
		t.Fatal("Expected the link reported down")
	}
	if m.Poll() != link.Down {
		t.Errorf("Expected down after a failed rejoin, got %s", m.State())
	}
}
