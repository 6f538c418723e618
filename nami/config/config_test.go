package config

import (
	"errors"
	"testing"
	"time"
)

func valid() Config {
	c := Default()
	c.SSID = "home"
	return c
}

func TestDefaults(t *testing.T) {
	c := Default()
	if c.Endpoint != "ws://raspberrypi.local:3000/" {
		t.Errorf("Unexpected default endpoint %q", c.Endpoint)
	}
	if c.WiFiAttempts != 20 || c.WiFiAttemptDelay != 500*time.Millisecond {
		t.Errorf("Expected 20 attempts every 500ms, got %d every %s", c.WiFiAttempts, c.WiFiAttemptDelay)
	}
	if c.ReconnectInterval != 5*time.Second || c.ConnectTimeout != 10*time.Second {
		t.Errorf("Unexpected session timing %s/%s", c.ReconnectInterval, c.ConnectTimeout)
	}
	if c.Role != "ESP32" {
		t.Errorf("Expected role ESP32, got %q", c.Role)
	}
	if err := valid().Validate(); err != nil {
		t.Errorf("Expected defaults with an SSID to validate, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"no ssid", func(c *Config) { c.SSID = "" }, ErrNoSSID},
		{"http endpoint", func(c *Config) { c.Endpoint = "http://pi:3000/" }, ErrBadEndpoint},
		{"no host", func(c *Config) { c.Endpoint = "ws://:3000/" }, ErrBadEndpoint},
		{"bad port", func(c *Config) { c.Endpoint = "ws://pi:70000/" }, ErrBadEndpoint},
		{"mqtt ok", func(c *Config) { c.Endpoint = "mqtt://10.0.0.9:1883/nami/content" }, nil},
		{"wss ok", func(c *Config) { c.Endpoint = "wss://example.com/" }, nil},
		{"https info", func(c *Config) { c.InfoURL = "https://pi/info" }, ErrBadInfoURL},
		{"no info", func(c *Config) { c.InfoURL = "" }, nil},
		{"zero attempts", func(c *Config) { c.WiFiAttempts = 0 }, ErrBadAttempts},
		{"zero reconnect", func(c *Config) { c.ReconnectInterval = 0 }, ErrBadIntervals},
	}
	for _, tt := range tests {
		c := valid()
		tt.mutate(&c)
		err := c.Validate()
		if tt.want == nil && err != nil {
			t.Errorf("%s: expected no error, got %v", tt.name, err)
		}
		if tt.want != nil && !errors.Is(err, tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, err)
		}
	}
}

func TestLinkerCredentials(t *testing.T) {
	old := ssid
	ssid = "linked"
	defer func() { ssid = old }()

	if Default().SSID != "linked" {
		t.Errorf("Expected SSID from the linker variable, got %q", Default().SSID)
	}
}
