package layout

const (
	// MessageHeader is drawn above short plain-text messages.
	MessageHeader = "Message:"

	messageHeaderY = 5
	messageBodyY   = 18
	messageLines   = 6
)

// RenderMessage draws a short plain-text message: a centered header and the
// word-wrapped, centered body below it.
func RenderMessage(c Canvas, text string) error {
	m := MetricsOf(c)
	c.Clear()
	c.DrawText(m.CenterX(MessageHeader), messageHeaderY, MessageHeader)
	Draw(c, Centered(m, text, messageBodyY, messageLines))
	return c.Flush()
}

// RenderFlow draws long or multi-line text left-aligned from the top edge,
// one full-screen page.
func RenderFlow(c Canvas, text string) error {
	m := MetricsOf(c)
	c.Clear()
	Draw(c, Flow(m, text, m.Rows(0)))
	return c.Flush()
}

// RenderCentered clears the canvas and draws each given line centered,
// the block vertically centered. Lines longer than the panel are truncated.
func RenderCentered(c Canvas, lines ...string) error {
	m := MetricsOf(c)
	c.Clear()
	n := min(len(lines), m.Rows(0))
	pitch := m.LineHeight + m.LineHeight/2
	if n*pitch > m.Height {
		pitch = m.LineHeight
	}
	top := max((m.Height-n*pitch)/2, 0)
	for i := 0; i < n; i++ {
		text := Truncate(lines[i], m.Cols())
		Draw(c, []Line{{Text: text, X: m.CenterX(text), Y: top + i*pitch}})
	}
	return c.Flush()
}
