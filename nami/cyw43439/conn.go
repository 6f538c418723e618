//go:build tinygo

package cyw43439

import (
	"errors"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/soypat/lneto/tcp"
)

// dialTCP opens a TCP connection to addr using the retrying stack, which
// handles the handshake with retries.
func (s *Stack) dialTCP(addr netip.AddrPort, timeout time.Duration) (net.Conn, error) {
	c := &conn{remote: addr}
	err := c.tc.Configure(tcp.ConnConfig{
		RxBuf:             make([]byte, s.cfg.TCPBufSize),
		TxBuf:             make([]byte, s.cfg.TCPBufSize),
		TxPacketQueueSize: 3,
	})
	if err != nil {
		return nil, errors.New("tcp configure:" + err.Error())
	}

	// Use stack's PRNG for random port
	localPort := uint16(s.s.Prand32()>>17) + 1024
	s.log.Info("socket:dialing", slog.String("addr", addr.String()), slog.Uint64("localPort", uint64(localPort)))

	rstack := s.s.StackRetrying(pollTime)
	if err := rstack.DoDialTCP(&c.tc, localPort, addr, timeout, 3); err != nil {
		s.log.Error("socket:dial-failed", slog.String("err", err.Error()))
		c.Close()
		return nil, err
	}
	c.local = netip.AddrPortFrom(s.s.Addr(), localPort)
	s.log.Info("tcp:connected", slog.String("state", c.tc.State().String()))
	return c, nil
}

// closeWaitPolls bounds how long a closed connection waits for the peer.
const closeWaitPolls = 50

// conn adapts a lneto TCP connection to net.Conn. lneto keeps one deadline
// for both directions, so SetReadDeadline sets it and SetWriteDeadline is
// ignored.
type conn struct {
	tc     tcp.Conn
	local  netip.AddrPort
	remote netip.AddrPort
}

func (c *conn) Read(b []byte) (int, error)  { return c.tc.Read(b) }
func (c *conn) Write(b []byte) (int, error) { return c.tc.Write(b) }

// Close starts the TCP close and returns. The FIN exchange is waited out on
// a goroutine, which aborts the connection if the peer never finishes it.
func (c *conn) Close() error {
	c.tc.Close()
	go c.linger()
	return nil
}

func (c *conn) linger() {
	for i := 0; i < closeWaitPolls && !c.tc.State().IsClosed(); i++ {
		time.Sleep(100 * time.Millisecond)
	}
	c.tc.Abort()
}

func (c *conn) LocalAddr() net.Addr  { return net.TCPAddrFromAddrPort(c.local) }
func (c *conn) RemoteAddr() net.Addr { return net.TCPAddrFromAddrPort(c.remote) }

func (c *conn) SetDeadline(t time.Time) error      { return c.tc.SetDeadline(t) }
func (c *conn) SetReadDeadline(t time.Time) error  { return c.tc.SetDeadline(t) }
func (c *conn) SetWriteDeadline(t time.Time) error { return nil }
