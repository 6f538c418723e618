// Package bitmap validates and draws pre-rasterized 1 bit per pixel images.
//
// A raster is packed MSB-first, row-major, with every row starting on a
// byte boundary: bit 7-b of byte y*bytesPerRow+x is pixel (x*8+b, y).
package bitmap

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/davide97g/nami/nami/layout"
)

const (
	// MaxRaster is the largest raster accepted, one full 128x64 frame.
	MaxRaster = 128 * 64 / 8

	// HeaderHeight is the text band reserved above the bitmap.
	HeaderHeight = 8

	// maxDimension keeps width*height far from int overflow on 32-bit targets.
	maxDimension = 4096

	headerMaxLen = 21
	headerCutLen = 18

	errorIndicatorY = 20
	errorIndicator  = "Bitmap Error"
)

var (
	ErrInvalidSize  = errors.New("bitmap: invalid dimensions")
	ErrSizeMismatch = errors.New("bitmap: raster shorter than width*height")
	ErrTooLarge     = errors.New("bitmap: raster exceeds maximum size")
)

// Payload is a single image to show with its header.
type Payload struct {
	ID     int
	Label  string
	Width  int
	Height int
	Raster []byte
}

// BytesPerRow is ceil(Width/8).
func (p Payload) BytesPerRow() int {
	return (p.Width + 7) / 8
}

// ExpectedSize is the number of raster bytes the dimensions require.
func (p Payload) ExpectedSize() int {
	return p.BytesPerRow() * p.Height
}

// Validate checks the dimensions and raster length without drawing.
func (p Payload) Validate() error {
	if p.Width <= 0 || p.Height <= 0 || p.Width > maxDimension || p.Height > maxDimension {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, p.Width, p.Height)
	}
	if len(p.Raster) > MaxRaster {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, len(p.Raster))
	}
	if len(p.Raster) < p.ExpectedSize() {
		return fmt.Errorf("%w: expected %d, got %d", ErrSizeMismatch, p.ExpectedSize(), len(p.Raster))
	}
	return nil
}

// Header returns "#<id> <label>" lower-cased and cut to fit one line.
func Header(id int, label string) string {
	h := strings.ToLower("#" + strconv.Itoa(id) + " " + label)
	if utf8.RuneCountInString(h) > headerMaxLen {
		h = layout.Prefix(h, headerCutLen) + layout.Ellipsis
	}
	return h
}

// Place returns the top-left corner for a w x h bitmap centered in the area
// below the header. The result is shifted so the bitmap ends inside the
// surface; a bitmap larger than the surface is pinned to the origin and
// clipped by the surface itself.
func Place(surfaceW, surfaceH, w, h int) (x, y int) {
	x = (surfaceW - w) / 2
	y = HeaderHeight + (surfaceH-HeaderHeight-h)/2
	if x < 0 {
		x = 0
	}
	if y < HeaderHeight {
		y = HeaderHeight
	}
	if x+w > surfaceW {
		x = surfaceW - w
	}
	if y+h > surfaceH {
		y = surfaceH - h
	}
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	return x, y
}

// Canvas is the drawing surface the engine needs.
type Canvas interface {
	layout.Canvas
	Blit(x, y, w, h int, raster []byte)
}

// Engine draws bitmap payloads onto a Canvas.
type Engine struct {
	canvas Canvas
	logger *slog.Logger
}

// NewEngine returns an Engine drawing to c.
func NewEngine(c Canvas, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{canvas: c, logger: logger}
}

// Draw validates p and renders it with its header. A raster that is too
// short for its dimensions shows a small error indicator and nothing else is
// touched; other validation failures leave the canvas as it was.
func (e *Engine) Draw(p Payload) error {
	if err := p.Validate(); err != nil {
		e.logger.Warn("bitmap:rejected",
			slog.Int("id", p.ID),
			slog.Int("width", p.Width),
			slog.Int("height", p.Height),
			slog.Int("size", len(p.Raster)),
			slog.String("err", err.Error()),
		)
		if errors.Is(err, ErrSizeMismatch) {
			e.drawErrorIndicator()
		}
		return err
	}

	c := e.canvas
	m := layout.MetricsOf(c)
	c.Clear()

	header := Header(p.ID, p.Label)
	c.DrawText(m.CenterX(header), 0, header)

	x, y := Place(m.Width, m.Height, p.Width, p.Height)
	c.Blit(x, y, p.Width, p.Height, p.Raster)

	if err := c.Flush(); err != nil {
		return err
	}
	e.logger.Info("bitmap:displayed",
		slog.Int("id", p.ID),
		slog.String("label", p.Label),
		slog.Int("width", p.Width),
		slog.Int("height", p.Height),
		slog.Int("size", len(p.Raster)),
	)
	return nil
}

// drawErrorIndicator overwrites one text row with the error notice.
func (e *Engine) drawErrorIndicator() {
	c := e.canvas
	h := c.LineHeight()
	c.FillRect(0, errorIndicatorY, c.Width(), h, false)
	c.DrawText(0, errorIndicatorY, errorIndicator)
	if err := c.Flush(); err != nil {
		e.logger.Error("bitmap:flush-failed", slog.String("err", err.Error()))
	}
}

// IndicatorBounds returns the rows touched by the size-mismatch indicator.
func IndicatorBounds(lineHeight int) (y0, y1 int) {
	return errorIndicatorY, errorIndicatorY + lineHeight
}
