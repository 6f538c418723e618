// Package router classifies inbound payloads and hands them to the text
// layout or bitmap engines.
package router

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/davide97g/nami/nami/bitmap"
	"github.com/davide97g/nami/nami/layout"
)

const (
	// AsciiArtThreshold is the length above which text is laid out as
	// ASCII art even without a line break.
	AsciiArtThreshold = 50

	// BitmapType is the discriminator of a bitmap message.
	BitmapType = "pokemon_bitmap"

	// defaultLabel is used when a bitmap message has no name.
	defaultLabel = "unknown"
)

var (
	ErrDecode       = errors.New("router: decode failed")
	ErrValidation   = errors.New("router: validation failed")
	ErrUnrecognized = errors.New("router: unrecognized message")
)

// Kind is the shape of an inbound message.
type Kind uint8

const (
	KindUnrecognized Kind = iota
	KindPlainText
	KindAsciiArt
	KindBitmap
)

func (k Kind) String() string {
	switch k {
	case KindPlainText:
		return "plain-text"
	case KindAsciiArt:
		return "ascii-art"
	case KindBitmap:
		return "bitmap"
	default:
		return "unrecognized"
	}
}

// Classify decides how a text payload is laid out.
func Classify(text string) Kind {
	if len(text) > AsciiArtThreshold || bytes.IndexByte([]byte(text), '\n') >= 0 {
		return KindAsciiArt
	}
	return KindPlainText
}

// Message is a decoded inbound payload.
type Message struct {
	Kind   Kind
	Text   string
	Bitmap bitmap.Payload
}

// Outcome is the result of routing one payload.
type Outcome struct {
	Kind Kind
	Err  error
}

// Rendered reports whether the payload reached the display.
func (o Outcome) Rendered() bool { return o.Err == nil && o.Kind != KindUnrecognized }

// Canvas is everything the router draws through.
type Canvas = bitmap.Canvas

// Router owns the decode scratch buffer and both render engines.
type Router struct {
	canvas  Canvas
	bitmaps *bitmap.Engine
	dec     Decoder
	logger  *slog.Logger

	// OnRendered, when set, is called with the raw payload after it has
	// been displayed.
	OnRendered func(raw []byte)
}

// New returns a Router drawing to c.
func New(c Canvas, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Router{
		canvas:  c,
		bitmaps: bitmap.NewEngine(c, logger),
		logger:  logger,
	}
}

// Route decodes raw and renders it. Rejected payloads leave the display as
// it was, apart from the bitmap size-mismatch indicator.
func (r *Router) Route(raw []byte) Outcome {
	msg, err := r.dec.Decode(raw)
	if err != nil {
		r.logger.Warn("router:dropped", slog.Int("len", len(raw)), slog.String("err", err.Error()))
		return Outcome{Kind: KindUnrecognized, Err: err}
	}

	switch msg.Kind {
	case KindBitmap:
		err = r.bitmaps.Draw(msg.Bitmap)
		if err != nil && !isFlushErr(err) {
			err = fmt.Errorf("%w: %w", ErrValidation, err)
		}
	case KindAsciiArt:
		err = layout.RenderFlow(r.canvas, msg.Text)
	default:
		err = layout.RenderMessage(r.canvas, msg.Text)
	}
	if err != nil {
		r.logger.Warn("router:render-failed", slog.String("kind", msg.Kind.String()), slog.String("err", err.Error()))
		return Outcome{Kind: msg.Kind, Err: err}
	}

	r.logger.Debug("router:rendered", slog.String("kind", msg.Kind.String()), slog.Int("len", len(raw)))
	if r.OnRendered != nil {
		r.OnRendered(raw)
	}
	return Outcome{Kind: msg.Kind}
}

func isFlushErr(err error) bool {
	return !errors.Is(err, bitmap.ErrInvalidSize) &&
		!errors.Is(err, bitmap.ErrSizeMismatch) &&
		!errors.Is(err, bitmap.ErrTooLarge)
}

// Decoder turns raw payloads into Messages. Bitmap rasters are decoded into
// a fixed buffer of bitmap.MaxRaster bytes owned by the Decoder, so a
// decoded Message is only valid until the next call.
type Decoder struct {
	raster [bitmap.MaxRaster]byte
}

type envelope struct {
	Type *string         `json:"type"`
	Data json.RawMessage `json:"data"`
}

type bitmapData struct {
	PokemonID   int             `json:"pokemonId"`
	PokemonName *string         `json:"pokemonName"`
	Width       int             `json:"width"`
	Height      int             `json:"height"`
	BitmapData  json.RawMessage `json:"bitmapData"`
}

// Decode classifies raw. Text that is not a JSON object carrying a "type"
// field is a text message. A tagged object is a bitmap only with the bitmap
// discriminator and valid fields; any other tag is ErrUnrecognized.
func (d *Decoder) Decode(raw []byte) (Message, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return textMessage(raw), nil
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil || env.Type == nil {
		return textMessage(raw), nil
	}
	if *env.Type != BitmapType {
		return Message{}, fmt.Errorf("%w: type %q", ErrUnrecognized, *env.Type)
	}
	if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return Message{}, fmt.Errorf("%w: missing data", ErrValidation)
	}

	var data bitmapData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if data.PokemonID == 0 || data.Width <= 0 || data.Height <= 0 {
		return Message{}, fmt.Errorf("%w: id=%d size=%dx%d", ErrValidation, data.PokemonID, data.Width, data.Height)
	}

	n, err := d.decodeRaster(data.BitmapData)
	if err != nil {
		return Message{}, err
	}
	if n == 0 {
		return Message{}, fmt.Errorf("%w: empty bitmapData", ErrValidation)
	}

	label := defaultLabel
	if data.PokemonName != nil {
		label = *data.PokemonName
	}
	return Message{
		Kind: KindBitmap,
		Bitmap: bitmap.Payload{
			ID:     data.PokemonID,
			Label:  label,
			Width:  data.Width,
			Height: data.Height,
			Raster: d.raster[:n],
		},
	}, nil
}

// decodeRaster reads a JSON array of bytes into the fixed raster buffer,
// refusing arrays longer than the buffer before storing anything past it.
func (d *Decoder) decodeRaster(raw json.RawMessage) (int, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("%w: missing bitmapData", ErrValidation)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return 0, fmt.Errorf("%w: bitmapData: %w", ErrDecode, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return 0, fmt.Errorf("%w: bitmapData is not an array", ErrValidation)
	}

	n := 0
	for dec.More() {
		if n == len(d.raster) {
			return 0, fmt.Errorf("%w: %w", ErrValidation, bitmap.ErrTooLarge)
		}
		var v int
		if err := dec.Decode(&v); err != nil {
			return 0, fmt.Errorf("%w: bitmapData[%d]: %w", ErrDecode, n, err)
		}
		if v < 0 || v > 0xFF {
			return 0, fmt.Errorf("%w: bitmapData[%d]=%d out of byte range", ErrDecode, n, v)
		}
		d.raster[n] = byte(v)
		n++
	}
	return n, nil
}

func textMessage(raw []byte) Message {
	text := string(raw)
	return Message{Kind: Classify(text), Text: text}
}
