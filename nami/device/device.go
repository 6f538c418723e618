// Package device wires the link, session, router and display together and
// drives them from a single cooperative loop.
package device

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"runtime"
	"time"

	"github.com/davide97g/nami/nami/config"
	"github.com/davide97g/nami/nami/link"
	"github.com/davide97g/nami/nami/router"
	"github.com/davide97g/nami/nami/session"
	"github.com/davide97g/nami/nami/status"
	"github.com/davide97g/nami/nami/sysinfo"
)

// stepInterval is the idle time between loop iterations in Run.
const stepInterval = 10 * time.Millisecond

// Persister keeps the last rendered payload across reboots.
type Persister interface {
	SaveLast(raw []byte) error
	LoadLast() ([]byte, error)
}

// Deps are the collaborators a Context is built from. Store and Info are
// optional.
type Deps struct {
	Config    config.Config
	Canvas    router.Canvas
	Radio     link.Radio
	Transport session.Transport
	Store     Persister
	Info      sysinfo.Getter
	Logger    *slog.Logger
}

// Context owns every piece of runtime state on the device.
type Context struct {
	cfg      config.Config
	endpoint session.Endpoint
	canvas   router.Canvas
	screen   *status.Screen
	link     *link.Manager
	session  *session.Manager
	router   *router.Router
	store    Persister
	poller   *sysinfo.Poller
	logger   *slog.Logger

	lastHealth time.Time
	lastInfo   time.Time
}

// New builds a Context from d.
func New(d Deps) (*Context, error) {
	if d.Canvas == nil || d.Radio == nil || d.Transport == nil {
		return nil, errors.New("device: canvas, radio and transport are required")
	}
	ep, err := session.ParseEndpoint(d.Config.Endpoint)
	if err != nil {
		return nil, err
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Context{
		cfg:      d.Config,
		endpoint: ep,
		canvas:   d.Canvas,
		store:    d.Store,
		logger:   logger,
	}
	c.screen = status.New(d.Canvas, logger)
	c.link = link.NewManager(d.Radio, d.Config.SSID, d.Config.Password, c.screen, logger)
	c.link.Dwell = d.Config.Dwell

	c.router = router.New(d.Canvas, logger)
	if c.store != nil {
		c.router.OnRendered = c.persist
	}

	c.session = session.NewManager(d.Transport, c.link, c.route, c.screen, session.Config{
		Role:              d.Config.Role,
		ConnectTimeout:    d.Config.ConnectTimeout,
		ReconnectInterval: d.Config.ReconnectInterval,
		KeepAlive:         d.Config.KeepAlive,
		MaxEvents:         session.DefaultConfig().MaxEvents,
	}, logger)

	if d.Info != nil && d.Config.InfoURL != "" {
		c.poller = sysinfo.NewPoller(d.Info, d.Config.InfoURL, d.Config.InfoInterval)
	}
	return c, nil
}

func (c *Context) Link() *link.Manager       { return c.link }
func (c *Context) Session() *session.Manager { return c.session }
func (c *Context) Screen() *status.Screen    { return c.screen }

// Boot brings the link up, opens the session and puts the last saved
// payload back on the display. Failures are logged and left to Step to
// retry.
func (c *Context) Boot(ctx context.Context) {
	c.logger.Info("device:boot", slog.String("endpoint", c.endpoint.String()))
	c.screen.Notify("nami", "Starting...")

	if !c.link.Connect(ctx, c.cfg.WiFiAttempts, c.cfg.WiFiAttemptDelay) {
		c.logger.Warn("device:link-down-at-boot")
	}
	// A failed Begin still records the endpoint, so Step keeps retrying.
	if err := c.session.Begin(ctx, c.endpoint); err != nil {
		c.logger.Warn("device:session-failed", slog.String("err", err.Error()))
	}

	c.lastHealth = time.Now()
	c.replay()
}

func (c *Context) replay() {
	if c.store == nil || !c.cfg.Persist {
		return
	}
	raw, err := c.store.LoadLast()
	if err != nil {
		c.logger.Debug("device:nothing-to-replay", slog.String("err", err.Error()))
		return
	}
	out := c.router.Route(raw)
	c.logger.Info("device:replayed", slog.String("kind", out.Kind.String()), slog.Bool("rendered", out.Rendered()))
}

// Step does one bounded round of work: a throttled link health check,
// one session pump and, while no session is active, the system panel.
func (c *Context) Step(ctx context.Context, now time.Time) {
	if now.Sub(c.lastHealth) >= c.cfg.HealthCheckInterval {
		c.lastHealth = now
		// Without an active session, the session's own reconnect schedule
		// requests the join.
		if c.link.Poll() != link.Up && c.session.State() == session.Active {
			c.link.EnsureConnected()
		}
	}

	c.session.Pump(ctx, now)

	if c.poller != nil && c.session.State() != session.Active && c.link.State() == link.Up &&
		now.Sub(c.lastInfo) >= c.cfg.InfoInterval {
		c.lastInfo = now
		c.showInfo(ctx, now)
	}
}

func (c *Context) showInfo(ctx context.Context, now time.Time) {
	info, cached, err := c.poller.Fetch(ctx, now)
	if err != nil && !cached {
		c.logger.Warn("device:info-failed", slog.String("err", err.Error()))
		c.screen.Notify(sysinfo.Notice(err)...)
		return
	}
	if err := sysinfo.Render(c.canvas, info, c.cfg.InfoInterface); err != nil {
		c.logger.Error("device:info-render-failed", slog.String("err", err.Error()))
	}
}

// Run boots the device and steps it until ctx is done.
func (c *Context) Run(ctx context.Context) error {
	c.Boot(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		c.Step(ctx, time.Now())
		// TinyGo runs on a single core; give the transport goroutines a turn.
		runtime.Gosched()
		time.Sleep(stepInterval)
	}
}

func (c *Context) route(data []byte) {
	c.router.Route(data)
}

func (c *Context) persist(raw []byte) {
	if !c.cfg.Persist {
		return
	}
	if err := c.store.SaveLast(raw); err != nil {
		c.logger.Warn("device:persist-failed", slog.String("err", err.Error()))
	}
}
