// Package layout turns strings into positioned lines for the fixed-width font.
//
// Line computation is a pure function of the text and the Metrics, so the
// same input always lands on the same pixels. Drawing is a separate step
// that writes the computed lines through a Canvas.
package layout

import (
	"strings"
	"unicode/utf8"
)

// Ellipsis replaces the last visible line when content does not fit.
const Ellipsis = "..."

// Line is one positioned row of text. X and Y are the top-left of the cell.
type Line struct {
	Text string
	X    int
	Y    int
}

// Measurer reports the geometry layout needs from a drawing surface.
type Measurer interface {
	Width() int
	Height() int
	CharWidth() int
	LineHeight() int
	TextWidth(text string) int
}

// Canvas is a Measurer that can also draw and present text.
type Canvas interface {
	Measurer
	Clear()
	FillRect(x, y, w, h int, on bool)
	DrawText(x, y int, text string)
	Flush() error
}

// Metrics is a snapshot of the surface and font geometry.
type Metrics struct {
	Width      int
	Height     int
	CharWidth  int
	LineHeight int
	// Measure returns the pixel width of text. When nil, every character
	// is CharWidth wide.
	Measure func(text string) int
}

// MetricsOf captures the geometry of m.
func MetricsOf(m Measurer) Metrics {
	return Metrics{
		Width:      m.Width(),
		Height:     m.Height(),
		CharWidth:  m.CharWidth(),
		LineHeight: m.LineHeight(),
		Measure:    m.TextWidth,
	}
}

// Cols is the number of characters that fit on one line.
func (m Metrics) Cols() int {
	if m.CharWidth <= 0 {
		return 0
	}
	return m.Width / m.CharWidth
}

// Rows is the number of whole lines that fit below top.
func (m Metrics) Rows(top int) int {
	if m.LineHeight <= 0 || top >= m.Height {
		return 0
	}
	return (m.Height - max(top, 0)) / m.LineHeight
}

// TextWidth measures text.
func (m Metrics) TextWidth(text string) int {
	if m.Measure != nil {
		return m.Measure(text)
	}
	return utf8.RuneCountInString(text) * m.CharWidth
}

// CenterX returns the x origin that centers text, never negative.
func (m Metrics) CenterX(text string) int {
	x := (m.Width - m.TextWidth(text)) / 2
	if x < 0 {
		return 0
	}
	return x
}

// Wrap splits text into at most maxLines segments of at most cols
// characters, breaking at the last space at or before the column limit. One
// space after a break is consumed. A word longer than cols is split hard,
// always between characters. rest reports whether input remained after
// maxLines segments.
func Wrap(text string, cols, maxLines int) (segments []string, rest bool) {
	if cols <= 0 || maxLines <= 0 {
		return nil, text != ""
	}
	start := 0
	for start < len(text) && len(segments) < maxLines {
		remaining := text[start:]
		end := prefixLen(remaining, cols)
		if end < len(remaining) {
			// Search includes the character at the limit so a space right
			// there still breaks.
			if sp := strings.LastIndexByte(remaining[:end+1], ' '); sp > 0 {
				end = sp
			}
		}
		segments = append(segments, remaining[:end])
		start += end
		if start < len(text) && text[start] == ' ' {
			start++
		}
	}
	return segments, start < len(text)
}

// Centered lays text out as horizontally centered lines starting at top,
// stacked with the metrics line pitch. Explicit line breaks start a new
// line; long lines are word-wrapped. At most maxLines lines are produced and
// never more than fit below top. When content remains, the last line becomes
// a centered Ellipsis.
func Centered(m Metrics, text string, top, maxLines int) []Line {
	limit := min(maxLines, m.Rows(top))
	cols := m.Cols()
	if limit <= 0 || cols <= 0 {
		return nil
	}

	var rows []string
	truncated := false
	paragraphs := splitLines(text)
	for i, p := range paragraphs {
		if len(rows) == limit {
			truncated = true
			break
		}
		if p == "" {
			rows = append(rows, "")
			continue
		}
		segs, rest := Wrap(p, cols, limit-len(rows))
		rows = append(rows, segs...)
		if rest || (len(rows) == limit && i < len(paragraphs)-1) {
			truncated = true
			break
		}
	}
	if truncated {
		rows[len(rows)-1] = Ellipsis
	}

	lines := make([]Line, len(rows))
	for i, r := range rows {
		lines[i] = Line{Text: r, X: m.CenterX(r), Y: top + i*m.LineHeight}
	}
	return lines
}

// Flow lays text out left-aligned from the top edge. Explicit line breaks
// split first and any segment longer than the line is split hard at the
// column limit. Output is clipped to maxLines (and to the surface height);
// when input remains, the final line is replaced with Ellipsis.
func Flow(m Metrics, text string, maxLines int) []Line {
	limit := min(maxLines, m.Rows(0))
	cols := m.Cols()
	if limit <= 0 || cols <= 0 {
		return nil
	}

	var rows []string
	truncated := false
	segments := splitLines(text)
	for i, seg := range segments {
		for len(rows) < limit {
			n := prefixLen(seg, cols)
			rows = append(rows, seg[:n])
			seg = seg[n:]
			if seg == "" {
				break
			}
		}
		if seg != "" || (len(rows) == limit && i < len(segments)-1) {
			truncated = true
			break
		}
	}
	if truncated {
		rows[len(rows)-1] = Ellipsis
	}

	lines := make([]Line, len(rows))
	for i, r := range rows {
		lines[i] = Line{Text: r, X: 0, Y: i * m.LineHeight}
	}
	return lines
}

// Truncate limits text to cols characters, ending in ".." when cut.
func Truncate(text string, cols int) string {
	if cols <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= cols {
		return text
	}
	if cols <= 2 {
		return Prefix(text, cols)
	}
	return Prefix(text, cols-2) + ".."
}

// Prefix returns the first n characters of text.
func Prefix(text string, n int) string {
	return text[:prefixLen(text, n)]
}

// prefixLen is the byte length of the first n characters of text.
func prefixLen(text string, n int) int {
	i := 0
	for ; n > 0 && i < len(text); n-- {
		_, size := utf8.DecodeRuneInString(text[i:])
		i += size
	}
	return i
}

// Draw writes lines to c, skipping any line that would cross the bottom edge.
func Draw(c Canvas, lines []Line) {
	h := c.LineHeight()
	for _, l := range lines {
		if l.Y < 0 || l.Y+h > c.Height() {
			continue
		}
		c.DrawText(l.X, l.Y, l.Text)
	}
}

// splitLines splits on '\n', drops a trailing '\r' per line and ignores the
// empty segment after a final line break.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	parts := strings.Split(text, "\n")
	if len(parts) > 1 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	for i, p := range parts {
		parts[i] = strings.TrimSuffix(p, "\r")
	}
	return parts
}
