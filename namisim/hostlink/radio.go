// Package hostlink is a link.Radio for the desktop simulator. The host is
// assumed to be online; the radio only simulates association delay and can
// be switched offline to exercise the reconnect path.
package hostlink

import (
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/davide97g/nami/nami/link"
)

// Radio simulates a station-mode radio. It is safe for concurrent use.
type Radio struct {
	mu        sync.Mutex
	status    link.RadioStatus
	offline   bool
	joinDelay time.Duration
	joinStart time.Time
	now       func() time.Time
}

// New returns an idle Radio that takes joinDelay to associate.
func New(joinDelay time.Duration) *Radio {
	return &Radio{joinDelay: joinDelay, now: time.Now}
}

func (r *Radio) Disconnect() error {
	r.mu.Lock()
	r.status = link.StatusIdle
	r.mu.Unlock()
	return nil
}

func (r *Radio) SetStationMode() error { return nil }

// BeginJoin starts a simulated association. While offline the join fails
// straight away.
func (r *Radio) BeginJoin(ssid, pass string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.offline {
		r.status = link.StatusFailed
		return nil
	}
	r.status = link.StatusJoining
	r.joinStart = r.now()
	return nil
}

func (r *Radio) Status() link.RadioStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == link.StatusJoining && r.now().Sub(r.joinStart) >= r.joinDelay {
		r.status = link.StatusConnected
	}
	return r.status
}

// SetOffline drops the simulated link, or allows it to be joined again.
func (r *Radio) SetOffline(offline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offline = offline
	if offline {
		r.status = link.StatusIdle
	}
}

// Offline reports whether the link is switched off.
func (r *Radio) Offline() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.offline
}

// Addr returns the first non-loopback IPv4 address of the host while
// associated.
func (r *Radio) Addr() netip.Addr {
	if r.Status() != link.StatusConnected {
		return netip.Addr{}
	}
	return hostAddr()
}

func hostAddr() netip.Addr {
	addrs, err := net.InterfaceAddrs()
	if err == nil {
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip, ok := netip.AddrFromSlice(ipnet.IP)
			if !ok {
				continue
			}
			ip = ip.Unmap()
			if ip.Is4() && !ip.IsLoopback() {
				return ip
			}
		}
	}
	return netip.AddrFrom4([4]byte{127, 0, 0, 1})
}
