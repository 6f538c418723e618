package sysinfo

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// maxBody bounds the /info document read into memory.
const maxBody = 8 << 10

// Getter fetches the body of an HTTP GET.
type Getter interface {
	Get(ctx context.Context, rawURL string) ([]byte, error)
}

// HTTPGetter is a Getter over net/http, used where a full HTTP client is
// available.
type HTTPGetter struct {
	Client *http.Client
}

func (g HTTPGetter) Get(ctx context.Context, rawURL string) ([]byte, error) {
	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode}
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBody))
}

// ConnGetter issues a minimal HTTP/1.0 GET over a dialed connection. It is
// the Getter used on the device, where only a TCP dialer is available.
type ConnGetter struct {
	Dial    func(ctx context.Context, network, addr string) (net.Conn, error)
	Timeout time.Duration
}

func (g ConnGetter) Get(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" {
		return nil, errors.New("sysinfo: unsupported scheme " + strconv.Quote(u.Scheme))
	}
	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), "80")
	}
	path := u.RequestURI()

	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}
	conn, err := g.Dial(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	req := "GET " + path + " HTTP/1.0\r\nHost: " + u.Host + "\r\nAccept: application/json\r\nConnection: close\r\n\r\n"
	if _, err := io.WriteString(conn, req); err != nil {
		return nil, err
	}

	r := bufio.NewReader(io.LimitReader(conn, maxBody))
	status, err := r.ReadString('\n')
	if err != nil {
		return nil, errors.New("sysinfo: reading status: " + err.Error())
	}
	fields := bytes.Fields([]byte(status))
	if len(fields) < 2 {
		return nil, errors.New("sysinfo: malformed status line " + strconv.Quote(status))
	}
	code, err := strconv.Atoi(string(fields[1]))
	if err != nil {
		return nil, errors.New("sysinfo: malformed status line " + strconv.Quote(status))
	}
	if code != http.StatusOK {
		return nil, &StatusError{Code: code}
	}
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, errors.New("sysinfo: reading headers: " + err.Error())
		}
		if line == "\r\n" || line == "\n" {
			break
		}
	}
	return io.ReadAll(r)
}

// Poller fetches Info with throttling and caching: the endpoint is queried
// at most once per interval and the last good Info is kept for failures in
// between.
type Poller struct {
	getter          Getter
	url             string
	cached          Info          // Last successfully fetched info.
	lastReadTime    time.Time     // Time of the last successful fetch.
	minReadInterval time.Duration // Cached info is returned for calls within the interval.
	hasValidCache   bool
}

// NewPoller returns a Poller for rawURL fetching at most every interval.
func NewPoller(g Getter, rawURL string, interval time.Duration) *Poller {
	return &Poller{getter: g, url: rawURL, minReadInterval: interval}
}

// Fetch returns the system info, whether it came from the cache and any
// error. On failure the cached info is returned along with the error when
// there is one.
func (p *Poller) Fetch(ctx context.Context, now time.Time) (info Info, isCached bool, err error) {
	if p.hasValidCache && now.Sub(p.lastReadTime) < p.minReadInterval {
		return p.cached, true, nil
	}

	body, err := p.getter.Get(ctx, p.url)
	if err == nil {
		info, err = Parse(body)
	}
	if err != nil {
		if p.hasValidCache {
			return p.cached, true, err
		}
		return Info{}, false, err
	}

	p.cached = info
	p.lastReadTime = now
	p.hasValidCache = true
	return info, false, nil
}
