// Package panel provides drivers.Displayer sinks for running the device
// code on a desktop: a tcell terminal panel and a plain text dump.
package panel

import (
	"fmt"
	"image/color"
	"sync"

	"github.com/davide97g/nami/nami/surface"
	"github.com/gdamore/tcell/v2"
)

// Keys that the terminal panel forwards to its owner.
const (
	KeyQuit   = 'q'
	KeyToggle = 'd'
)

// Terminal draws the panel into a tcell screen, two pixel rows per text
// cell using half blocks, inside a one cell border.
type Terminal struct {
	screen tcell.Screen
	mu     sync.Mutex
	px     [surface.Height][surface.Width]bool
	keys   chan rune
	done   chan struct{}
	closed bool
}

// OpenTerminal takes over the controlling terminal.
func OpenTerminal() (*Terminal, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("failed to create screen: %w", err)
	}
	return NewTerminal(screen)
}

// NewTerminal initializes screen and starts forwarding key presses.
func NewTerminal(screen tcell.Screen) (*Terminal, error) {
	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize screen: %w", err)
	}
	screen.SetStyle(tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorWhite))
	screen.HideCursor()
	screen.Clear()

	t := &Terminal{
		screen: screen,
		keys:   make(chan rune, 8),
		done:   make(chan struct{}),
	}
	go t.handleEvents()
	return t, nil
}

// Keys delivers KeyQuit and KeyToggle presses. Escape and Ctrl-C arrive as
// KeyQuit.
func (t *Terminal) Keys() <-chan rune { return t.keys }

// Size implements drivers.Displayer.
func (t *Terminal) Size() (x, y int16) { return surface.Width, surface.Height }

// SetPixel implements drivers.Displayer.
func (t *Terminal) SetPixel(x, y int16, c color.RGBA) {
	if x < 0 || y < 0 || int(x) >= surface.Width || int(y) >= surface.Height {
		return
	}
	t.mu.Lock()
	t.px[y][x] = c.R|c.G|c.B != 0
	t.mu.Unlock()
}

// Display implements drivers.Displayer.
func (t *Terminal) Display() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}

	t.drawBorder()
	lit := tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorWhite)
	for cy := 0; cy < surface.Height/2; cy++ {
		for x := 0; x < surface.Width; x++ {
			t.screen.SetContent(x+1, cy+1, halfBlock(t.px[2*cy][x], t.px[2*cy+1][x]), nil, lit)
		}
	}
	t.screen.Show()
	return nil
}

func halfBlock(top, bottom bool) rune {
	switch {
	case top && bottom:
		return '█'
	case top:
		return '▀'
	case bottom:
		return '▄'
	default:
		return ' '
	}
}

func (t *Terminal) drawBorder() {
	style := tcell.StyleDefault.Foreground(tcell.ColorGray)
	w, h := surface.Width+1, surface.Height/2+1
	for x := 1; x < w; x++ {
		t.screen.SetContent(x, 0, tcell.RuneHLine, nil, style)
		t.screen.SetContent(x, h, tcell.RuneHLine, nil, style)
	}
	for y := 1; y < h; y++ {
		t.screen.SetContent(0, y, tcell.RuneVLine, nil, style)
		t.screen.SetContent(w, y, tcell.RuneVLine, nil, style)
	}
	t.screen.SetContent(0, 0, tcell.RuneULCorner, nil, style)
	t.screen.SetContent(w, 0, tcell.RuneURCorner, nil, style)
	t.screen.SetContent(0, h, tcell.RuneLLCorner, nil, style)
	t.screen.SetContent(w, h, tcell.RuneLRCorner, nil, style)

	help := " q quit  d toggle WiFi "
	for i, r := range help {
		t.screen.SetContent(2+i, h, r, nil, style)
	}
}

func (t *Terminal) handleEvents() {
	for {
		ev := t.screen.PollEvent()
		if ev == nil {
			// Screen finalized.
			return
		}
		key, ok := ev.(*tcell.EventKey)
		if !ok {
			if _, resized := ev.(*tcell.EventResize); resized {
				t.screen.Sync()
			}
			continue
		}
		var r rune
		switch {
		case key.Key() == tcell.KeyEscape || key.Key() == tcell.KeyCtrlC:
			r = KeyQuit
		case key.Key() == tcell.KeyRune && (key.Rune() == KeyQuit || key.Rune() == KeyToggle):
			r = key.Rune()
		default:
			continue
		}
		select {
		case t.keys <- r:
		case <-t.done:
			return
		default:
			// Owner is not keeping up, drop the key.
		}
	}
}

// Close restores the terminal.
func (t *Terminal) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.done)
	t.screen.Fini()
	return nil
}
