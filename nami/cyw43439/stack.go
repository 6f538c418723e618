//go:build tinygo

// Package cyw43439 runs the Pico W radio and the lneto network stack behind
// the link.Radio interface, and dials TCP connections through that stack.
//
// Joining is done on a goroutine so the device loop never blocks on it:
// BeginJoin starts the join and DHCP exchange, Status reports progress.
//
// The setup is adapted from the examples in the soypat/cyw43439 repository:
// https://github.com/soypat/cyw43439/tree/main/examples/common
package cyw43439

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/davide97g/nami/nami/link"
	"github.com/soypat/cyw43439"
	"github.com/soypat/lneto/x/xnet"
)

const (
	mtu      = cyw43439.MTU
	pollTime = 5 * time.Millisecond
)

var errJoinInProgress = errors.New("join already in progress")

// StackConfig configures the lneto stack.
type StackConfig struct {
	// Hostname is used for DHCP requests.
	Hostname string
	// MaxTCPPorts is the number of TCP ports to open for the stack.
	MaxTCPPorts int
	// TCPBufSize sizes the receive and transmit buffer of each connection.
	TCPBufSize int
	// RequestedAddr is the preferred IP address to request via DHCP.
	// If DHCP fails and this is set, it will be used as a static IP.
	RequestedAddr netip.Addr
	// Logger for stack operations.
	Logger *slog.Logger
	// RandSeed is an optional random seed for the stack's PRNG.
	RandSeed int64
}

// Stack wraps the lneto StackAsync and CYW43439 device for network operations.
type Stack struct {
	s       xnet.StackAsync
	dev     *cyw43439.Device
	cfg     StackConfig
	log     *slog.Logger
	sendbuf []byte
	start   time.Time

	status  atomic.Uint32 // link.RadioStatus
	joining atomic.Bool
	reset   bool
}

// NewStack initializes the CYW43439 device. The radio is idle until
// BeginJoin is called.
func NewStack(wificfg cyw43439.Config, cfg StackConfig) (*Stack, error) {
	if cfg.Hostname == "" {
		return nil, errors.New("empty hostname")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
			Level: slog.Level(127), // Make temporary logger that does no logging.
		}))
	}
	if cfg.MaxTCPPorts < 1 {
		cfg.MaxTCPPorts = 1
	}
	if cfg.TCPBufSize < 1 {
		cfg.TCPBufSize = 2030 // MTU - ethhdr - iphdr - tcphdr
	}

	start := time.Now()
	dev := cyw43439.NewPicoWDevice()
	dev.SetLogger(logger)

	logger.Info("initializing pico W device...")
	if err := dev.Init(wificfg); err != nil {
		return nil, errors.New("wifi init failed:" + err.Error())
	}
	logger.Info("cyw43439:Init", slog.Duration("duration", time.Since(start)))

	return &Stack{
		dev:     dev,
		cfg:     cfg,
		log:     logger,
		sendbuf: make([]byte, mtu),
		start:   start,
	}, nil
}

// DefaultWifiConfig returns the default WiFi configuration for the CYW43439 device.
func DefaultWifiConfig() cyw43439.Config {
	return cyw43439.DefaultWifiConfig()
}

// Disconnect forgets the current association state.
func (s *Stack) Disconnect() error {
	if s.joining.Load() {
		return errJoinInProgress
	}
	s.status.Store(uint32(link.StatusIdle))
	return nil
}

// SetStationMode is a no-op: the CYW43439 driver only runs as a station.
func (s *Stack) SetStationMode() error { return nil }

// BeginJoin starts joining ssid and running DHCP in the background.
func (s *Stack) BeginJoin(ssid, pass string) error {
	if !s.joining.CompareAndSwap(false, true) {
		return errJoinInProgress
	}
	s.status.Store(uint32(link.StatusJoining))
	go func() {
		defer s.joining.Store(false)
		if err := s.join(ssid, pass); err != nil {
			s.log.Error("wifi join failed", slog.String("err", err.Error()))
			s.status.Store(uint32(link.StatusFailed))
			return
		}
		s.status.Store(uint32(link.StatusConnected))
	}()
	return nil
}

// Status reports the join progress.
func (s *Stack) Status() link.RadioStatus {
	return link.RadioStatus(s.status.Load())
}

func (s *Stack) join(ssid, pass string) error {
	if len(pass) == 0 {
		s.log.Info("joining open network:", slog.String("ssid", ssid))
	} else {
		s.log.Info("joining WPA secure network", slog.String("ssid", ssid), slog.Int("passlen", len(pass)))
	}
	if err := s.dev.JoinWPA2(ssid, pass); err != nil {
		return err
	}

	mac, err := s.dev.HardwareAddr6()
	if err != nil {
		return errors.New("get hardware address:" + err.Error())
	}
	s.log.Info("wifi join success!", slog.String("mac", net.HardwareAddr(mac[:]).String()))

	if !s.reset {
		err = s.s.Reset(xnet.StackConfig{
			Hostname:        s.cfg.Hostname,
			MaxTCPConns:     s.cfg.MaxTCPPorts,
			RandSeed:        time.Since(s.start).Nanoseconds() ^ s.cfg.RandSeed,
			HardwareAddress: mac,
			MTU:             mtu,
		})
		if err != nil {
			return errors.New("stack reset:" + err.Error())
		}
		s.dev.RecvEthHandle(func(pkt []byte) error {
			return s.s.Demux(pkt, 0)
		})
		go s.loop()
		s.reset = true
	}

	_, err = s.setupWithDHCP()
	return err
}

// loop moves packets between the radio and the stack for the life of the
// program.
func (s *Stack) loop() {
	for {
		send, recv, _ := s.recvAndSend()
		if send == 0 && recv == 0 {
			time.Sleep(pollTime)
		}
	}
}

// setupWithDHCP performs DHCP configuration and returns the results.
func (s *Stack) setupWithDHCP() (*xnet.DHCPResults, error) {
	requested := s.cfg.RequestedAddr
	if !requested.IsValid() {
		requested = netip.AddrFrom4([4]byte{0, 0, 0, 0})
	} else if !requested.Is4() {
		return nil, errors.New("only dhcpv4 supported")
	}

	rstack := s.s.StackRetrying(pollTime)
	s.log.Info("DHCP:starting")

	results, err := rstack.DoDHCPv4(requested.As4(), 3*time.Second, 3)
	if err != nil {
		// If DHCP fails but we have a requested address, use it as static IP
		if !requested.IsUnspecified() {
			s.log.Info("DHCP did not complete, assigning static IP", slog.String("ip", requested.String()))
			s.s.SetIPAddr(requested)
			return &xnet.DHCPResults{AssignedAddr: requested}, nil
		}
		return nil, errors.New("dhcp failed:" + err.Error())
	}

	if err := s.s.AssimilateDHCPResults(results); err != nil {
		return nil, errors.New("assimilate dhcp:" + err.Error())
	}

	// Resolve and set the router hardware address as the gateway
	gatewayHW, err := rstack.DoResolveHardwareAddress6(results.Router, 500*time.Millisecond, 4)
	if err != nil {
		return nil, errors.New("resolve gateway:" + err.Error())
	}
	s.s.SetGateway6(gatewayHW)

	s.log.Info("DHCP complete",
		slog.String("ourIP", results.AssignedAddr.String()),
		slog.String("gateway", results.Gateway.String()),
		slog.String("router", results.Router.String()),
		slog.Uint64("lease_sec", uint64(results.TLease)),
	)
	return results, nil
}

// recvAndSend processes incoming and outgoing packets.
func (s *Stack) recvAndSend() (send, recv int, err error) {
	gotPacket, errRecv := s.dev.PollOne()
	if gotPacket {
		recv = 1
	}
	if errRecv != nil {
		s.log.Error("RecvAndSend:PollOne", slog.String("err", errRecv.Error()))
	}

	send, err = s.s.Encapsulate(s.sendbuf, -1, 0)
	if err != nil {
		s.log.Error("RecvAndSend:Encapsulate", slog.Int("plen", send), slog.String("err", err.Error()))
	} else {
		err = errRecv
	}
	if send == 0 {
		return send, recv, err
	}

	err = s.dev.SendEth(s.sendbuf[:send])
	if err != nil {
		s.log.Error("RecvAndSend:SendEth", slog.Int("plen", send), slog.String("err", err.Error()))
	}
	return send, recv, err
}

// Addr returns the current IP address of the stack.
func (s *Stack) Addr() netip.Addr {
	if link.RadioStatus(s.status.Load()) != link.StatusConnected {
		return netip.Addr{}
	}
	return s.s.Addr()
}

// LED drives the Pico W on-board LED, which hangs off the radio.
func (s *Stack) LED(on bool) error {
	return s.dev.GPIOSet(0, on)
}

// DialContext resolves the host of addr and opens a TCP connection to it
// through the lneto stack. It matches net.Dialer.DialContext so transports
// can use it directly.
func (s *Stack) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if network != "tcp" && network != "tcp4" {
		return nil, errors.New("unsupported network " + network)
	}
	if s.Status() != link.StatusConnected {
		return nil, errors.New("link not up")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	port, err := parsePort(portStr)
	if err != nil {
		return nil, err
	}

	timeout := 10 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	rstack := s.s.StackRetrying(pollTime)
	ip, err := netip.ParseAddr(host)
	if err != nil {
		s.log.Info("dns:resolving " + host)
		addrs, err := rstack.DoLookupIP(host, min(timeout, 5*time.Second), 3)
		if err != nil {
			return nil, errors.New("dns lookup for " + host + ": " + err.Error())
		}
		if len(addrs) == 0 {
			return nil, errors.New("dns lookup for " + host + ": no addresses returned")
		}
		ip = addrs[0]
	}

	return s.dialTCP(netip.AddrPortFrom(ip, port), timeout)
}

func parsePort(portStr string) (uint16, error) {
	var port uint32
	for i := 0; i < len(portStr); i++ {
		if portStr[i] < '0' || portStr[i] > '9' {
			return 0, errors.New("invalid port " + portStr)
		}
		port = port*10 + uint32(portStr[i]-'0')
		if port > 0xFFFF {
			return 0, errors.New("invalid port " + portStr)
		}
	}
	if port == 0 {
		return 0, errors.New("invalid port " + portStr)
	}
	return uint16(port), nil
}
