package session

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
)

// Supported endpoint schemes.
const (
	SchemeWS   = "ws"
	SchemeWSS  = "wss"
	SchemeMQTT = "mqtt"
)

// Endpoint is the upstream peer a session connects to.
type Endpoint struct {
	Scheme string
	Host   string
	Port   uint16
	Path   string
}

// ParseEndpoint parses a URL such as "ws://raspberrypi.local:3000/" or
// "mqtt://10.0.0.9:1883/nami/content". A missing port takes the scheme
// default and a missing path becomes "/".
func ParseEndpoint(raw string) (Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, errors.New("parsing endpoint " + raw + ": " + err.Error())
	}

	ep := Endpoint{Scheme: strings.ToLower(u.Scheme), Path: u.Path}
	def := defaultPort(ep.Scheme)
	if def == 0 {
		return Endpoint{}, errors.New("unsupported endpoint scheme " + strconv.Quote(u.Scheme))
	}
	if ep.Path == "" {
		ep.Path = "/"
	}

	if u.Port() == "" {
		ep.Host, ep.Port = u.Hostname(), def
	} else {
		host, portStr, err := splitHostPort(u.Host)
		if err != nil {
			return Endpoint{}, errors.New("parsing host:port from " + u.Host + ": " + err.Error())
		}
		ep.Host = strings.Trim(host, "[]")
		ep.Port = parsePort(portStr)
	}
	if ep.Host == "" {
		return Endpoint{}, errors.New("empty host in endpoint " + raw)
	}
	if ep.Port == 0 {
		return Endpoint{}, errors.New("invalid port in endpoint " + raw)
	}
	return ep, nil
}

// Addr returns "host:port".
func (e Endpoint) Addr() string {
	host := e.Host
	if strings.IndexByte(host, ':') >= 0 {
		host = "[" + host + "]"
	}
	return host + ":" + strconv.Itoa(int(e.Port))
}

// URL returns the endpoint in URL form.
func (e Endpoint) URL() string {
	path := e.Path
	if path == "" {
		path = "/"
	}
	return e.Scheme + "://" + e.Addr() + path
}

// Topic returns the path without its leading slash, used as the MQTT
// content topic.
func (e Endpoint) Topic() string {
	return strings.TrimPrefix(e.Path, "/")
}

func (e Endpoint) String() string { return e.URL() }

func defaultPort(scheme string) uint16 {
	switch scheme {
	case SchemeWS:
		return 80
	case SchemeWSS:
		return 443
	case SchemeMQTT:
		return 1883
	}
	return 0
}

// splitHostPort splits a host:port string into separate host and port components.
// Returns an error if the format is invalid.
func splitHostPort(addr string) (host, port string, err error) {
	// Last colon, so bracketed IPv6 hosts keep theirs.
	colonIdx := strings.LastIndexByte(addr, ':')
	if colonIdx == -1 {
		return "", "", errors.New("missing port in address")
	}

	host = addr[:colonIdx]
	port = addr[colonIdx+1:]

	if host == "" {
		return "", "", errors.New("empty host")
	}
	if port == "" {
		return "", "", errors.New("empty port")
	}
	return host, port, nil
}

// parsePort converts a port string to uint16.
// Returns 0 if parsing fails (caller should validate).
func parsePort(portStr string) uint16 {
	var port uint32
	for i := 0; i < len(portStr); i++ {
		if portStr[i] < '0' || portStr[i] > '9' {
			return 0
		}
		port = port*10 + uint32(portStr[i]-'0')
		if port > 0xFFFF {
			return 0
		}
	}
	return uint16(port)
}
