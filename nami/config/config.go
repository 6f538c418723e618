// Package config holds the device settings. Defaults match a Raspberry Pi
// peer reachable as raspberrypi.local; WiFi credentials are set at build time
// with linker flags:
//
//	tinygo flash -target=pico-w -ldflags="-X 'github.com/davide97g/nami/nami/config.ssid=MyNet' -X 'github.com/davide97g/nami/nami/config.pass=secret'" ./nami
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	ssid string
	pass string
)

// SSID returns the WiFi SSID set via linker flags.
func SSID() string { return ssid }

// Password returns the WiFi password set via linker flags.
func Password() string { return pass }

// Config is everything the device context needs to run.
type Config struct {
	SSID     string
	Password string
	Hostname string // DHCP hostname

	// Endpoint is the session peer, ws://, wss:// or mqtt://.
	Endpoint string
	// Role is announced in the identify frame.
	Role string

	WiFiAttempts     int
	WiFiAttemptDelay time.Duration
	// Dwell keeps the WiFi success notice on screen.
	Dwell time.Duration
	// HealthCheckInterval is how often the link is checked while idle.
	HealthCheckInterval time.Duration

	ConnectTimeout    time.Duration
	ReconnectInterval time.Duration
	KeepAlive         time.Duration

	// InfoURL is polled for the system panel. Empty disables the panel.
	InfoURL       string
	InfoInterval  time.Duration
	InfoInterface string

	// Persist replays the last rendered payload after boot.
	Persist bool
}

// Default returns the configuration the device ships with, credentials
// taken from the linker flags.
func Default() Config {
	return Config{
		SSID:                SSID(),
		Password:            Password(),
		Hostname:            "nami",
		Endpoint:            "ws://raspberrypi.local:3000/",
		Role:                "ESP32",
		WiFiAttempts:        20,
		WiFiAttemptDelay:    500 * time.Millisecond,
		Dwell:               2 * time.Second,
		HealthCheckInterval: 5 * time.Second,
		ConnectTimeout:      10 * time.Second,
		ReconnectInterval:   5 * time.Second,
		KeepAlive:           20 * time.Second,
		InfoURL:             "http://raspberrypi.local:3000/info",
		InfoInterval:        30 * time.Second,
		InfoInterface:       "en0",
		Persist:             true,
	}
}

var (
	ErrNoSSID       = errors.New("config: empty SSID")
	ErrBadEndpoint  = errors.New("config: invalid endpoint")
	ErrBadInfoURL   = errors.New("config: invalid info URL")
	ErrBadAttempts  = errors.New("config: WiFi attempts must be positive")
	ErrBadIntervals = errors.New("config: intervals must be positive")
)

// Validate reports the first problem with c.
func (c Config) Validate() error {
	if c.SSID == "" {
		return ErrNoSSID
	}
	if err := checkEndpoint(c.Endpoint); err != nil {
		return err
	}
	if c.InfoURL != "" {
		u, err := url.Parse(c.InfoURL)
		if err != nil || u.Scheme != "http" || u.Hostname() == "" {
			return fmt.Errorf("%w: %s", ErrBadInfoURL, c.InfoURL)
		}
	}
	if c.WiFiAttempts < 1 {
		return ErrBadAttempts
	}
	if c.WiFiAttemptDelay <= 0 || c.ConnectTimeout <= 0 || c.ReconnectInterval <= 0 || c.HealthCheckInterval <= 0 {
		return ErrBadIntervals
	}
	return nil
}

func checkEndpoint(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadEndpoint, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "ws", "wss", "mqtt":
	default:
		return fmt.Errorf("%w: unsupported scheme %q", ErrBadEndpoint, u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("%w: empty host", ErrBadEndpoint)
	}
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 || n > 65535 {
			return fmt.Errorf("%w: bad port %s", ErrBadEndpoint, p)
		}
	}
	return nil
}
