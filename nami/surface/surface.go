// Package surface owns the 128x64 monochrome pixel buffer.
//
// Every renderer draws into the off-screen buffer held by Surface; nothing
// reaches the panel until Flush pushes the whole buffer in one pass. A render
// that fails validation therefore never shows up half drawn.
//
// Surface implements drivers.Displayer so tinyfont can draw straight into it,
// and it pushes to any drivers.Displayer panel (the SSD1306 on the device, a
// terminal or text dump in the simulator).
package surface

import (
	"image/color"

	"github.com/davide97g/nami/nami/font"
	"tinygo.org/x/drivers"
	"tinygo.org/x/tinyfont"
)

const (
	// Width of the panel in pixels.
	Width = 128
	// Height of the panel in pixels.
	Height = 64

	stride  = Width / 8
	bufSize = stride * Height
)

var (
	black = color.RGBA{0, 0, 0, 255}
	white = color.RGBA{255, 255, 255, 255}
)

// Surface is a packed 1 bit per pixel buffer, row-major, MSB-first.
type Surface struct {
	buf   [bufSize]byte
	panel drivers.Displayer
	font  tinyfont.Fonter
}

// New returns a cleared surface that flushes to panel. A nil panel makes
// Flush a no-op, which is what tests want.
func New(panel drivers.Displayer) *Surface {
	return &Surface{
		panel: panel,
		font:  font.Font,
	}
}

// Size implements drivers.Displayer.
func (s *Surface) Size() (x, y int16) { return Width, Height }

// SetPixel implements drivers.Displayer. Any non-black color is "on".
func (s *Surface) SetPixel(x, y int16, c color.RGBA) {
	s.Set(int(x), int(y), c.R|c.G|c.B != 0)
}

// Display implements drivers.Displayer by flushing to the panel.
func (s *Surface) Display() error { return s.Flush() }

// Width returns the surface width in pixels.
func (s *Surface) Width() int { return Width }

// Height returns the surface height in pixels.
func (s *Surface) Height() int { return Height }

// Set turns a pixel on or off. Coordinates outside the surface are ignored.
func (s *Surface) Set(x, y int, on bool) {
	if x < 0 || x >= Width || y < 0 || y >= Height {
		return
	}
	idx := y*stride + x/8
	mask := byte(0x80) >> uint(x%8)
	if on {
		s.buf[idx] |= mask
	} else {
		s.buf[idx] &^= mask
	}
}

// Pixel reports whether the pixel at (x, y) is on.
func (s *Surface) Pixel(x, y int) bool {
	if x < 0 || x >= Width || y < 0 || y >= Height {
		return false
	}
	return s.buf[y*stride+x/8]&(byte(0x80)>>uint(x%8)) != 0
}

// Clear turns every pixel off.
func (s *Surface) Clear() {
	s.buf = [bufSize]byte{}
}

// FillRect sets every pixel of the clipped rectangle to on.
func (s *Surface) FillRect(x, y, w, h int, on bool) {
	x0, y0 := max(x, 0), max(y, 0)
	x1, y1 := min(x+w, Width), min(y+h, Height)
	for py := y0; py < y1; py++ {
		for px := x0; px < x1; px++ {
			s.Set(px, py, on)
		}
	}
}

// Blit draws a packed raster (rows of ceil(w/8) bytes, MSB-first) with its
// top-left corner at (x, y). On bits light pixels; off bits leave the
// destination untouched. Pixels outside the surface are clipped and a short
// raster simply stops drawing where the bytes run out.
func (s *Surface) Blit(x, y, w, h int, raster []byte) {
	if w <= 0 || h <= 0 {
		return
	}
	bpr := (w + 7) / 8
	for row := 0; row < h; row++ {
		for xb := 0; xb < bpr; xb++ {
			i := row*bpr + xb
			if i >= len(raster) {
				return
			}
			b := raster[i]
			if b == 0 {
				continue
			}
			for bit := 0; bit < 8; bit++ {
				px := xb*8 + bit
				if px >= w {
					break
				}
				if b&(0x80>>uint(bit)) != 0 {
					s.Set(x+px, y+row, true)
				}
			}
		}
	}
}

// DrawText writes a single line of text with the top of its cell at y.
func (s *Surface) DrawText(x, y int, text string) {
	if text == "" {
		return
	}
	info := s.font.GetGlyph('0').Info()
	tinyfont.WriteLine(s, s.font, int16(x), int16(y-int(info.YOffset)), text, white)
}

// TextWidth measures text with the surface font.
func (s *Surface) TextWidth(text string) int {
	if text == "" {
		return 0
	}
	_, outbox := tinyfont.LineWidth(s.font, text)
	return int(outbox)
}

// CharWidth is the advance of one character cell.
func (s *Surface) CharWidth() int { return font.Width }

// LineHeight is the vertical pitch of one text line.
func (s *Surface) LineHeight() int { return int(s.font.GetYAdvance()) }

// Bytes returns a copy of the packed buffer.
func (s *Surface) Bytes() []byte {
	out := make([]byte, bufSize)
	copy(out, s.buf[:])
	return out
}

// Flush pushes the whole buffer to the panel and displays it.
func (s *Surface) Flush() error {
	if s.panel == nil {
		return nil
	}
	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			c := black
			if s.Pixel(x, y) {
				c = white
			}
			s.panel.SetPixel(int16(x), int16(y), c)
		}
	}
	return s.panel.Display()
}
