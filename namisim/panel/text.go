package panel

import (
	"bufio"
	"image/color"
	"io"

	"github.com/davide97g/nami/nami/surface"
)

// Text dumps each displayed frame to w as surface.Height lines of
// surface.Width characters, '#' for lit pixels and '.' for dark ones.
type Text struct {
	w  io.Writer
	px [surface.Height][surface.Width]bool
}

// NewText returns a Text panel writing to w.
func NewText(w io.Writer) *Text {
	return &Text{w: w}
}

func (t *Text) Size() (x, y int16) { return surface.Width, surface.Height }

func (t *Text) SetPixel(x, y int16, c color.RGBA) {
	if x < 0 || y < 0 || int(x) >= surface.Width || int(y) >= surface.Height {
		return
	}
	t.px[y][x] = c.R|c.G|c.B != 0
}

func (t *Text) Display() error {
	bw := bufio.NewWriter(t.w)
	var row [surface.Width + 1]byte
	row[surface.Width] = '\n'
	for y := range t.px {
		for x, on := range t.px[y] {
			row[x] = '.'
			if on {
				row[x] = '#'
			}
		}
		if _, err := bw.Write(row[:]); err != nil {
			return err
		}
	}
	return bw.Flush()
}
