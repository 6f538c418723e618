// Package status shows short connection notices on the display.
//
// Example usage:
//
//	screen := status.New(surface, logger)
//	screen.Notify("WiFi Connected!", addr.String())
package status

import (
	"io"
	"log/slog"
	"strings"

	"github.com/davide97g/nami/nami/layout"
)

// Message is one notice, a few short lines.
type Message struct {
	Lines []string
}

func (m Message) String() string { return strings.Join(m.Lines, " / ") }

// Screen renders notices centered on a canvas.
type Screen struct {
	canvas layout.Canvas
	logger *slog.Logger
	last   Message
}

// New returns a Screen drawing to c.
func New(c layout.Canvas, logger *slog.Logger) *Screen {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Screen{canvas: c, logger: logger}
}

// Notify replaces whatever is on the display with lines. Lines longer than
// the display are truncated.
func (s *Screen) Notify(lines ...string) {
	s.last = Message{Lines: append([]string(nil), lines...)}
	s.logger.Debug("status:notify", slog.String("msg", s.last.String()))
	if err := layout.RenderCentered(s.canvas, lines...); err != nil {
		s.logger.Error("status:flush-failed", slog.String("err", err.Error()))
	}
}

// Last returns the most recent notice.
func (s *Screen) Last() Message { return s.last }
