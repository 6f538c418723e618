package layout

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/davide97g/nami/nami/surface"
)

var oled = Metrics{Width: 128, Height: 64, CharWidth: 6, LineHeight: 8}

func texts(lines []Line) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.Text
	}
	return out
}

func TestCenterX(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"Hello", (128 - 30) / 2},
		{"", 64},
		{strings.Repeat("x", 21), 1},
		{strings.Repeat("x", 30), 0},
	}
	for _, tt := range tests {
		if got := oled.CenterX(tt.text); got != tt.want {
			t.Errorf("CenterX(%q): expected %d, got %d", tt.text, tt.want, got)
		}
	}
}

func TestColsZeroCharWidth(t *testing.T) {
	m := Metrics{Width: 128, Height: 64, CharWidth: 0, LineHeight: 8}
	if m.Cols() != 0 {
		t.Errorf("Expected 0 cols, got %d", m.Cols())
	}
	if lines := Flow(m, "abc", 8); lines != nil {
		t.Errorf("Expected no lines, got %v", lines)
	}
	if lines := Centered(m, "abc", 0, 8); lines != nil {
		t.Errorf("Expected no lines, got %v", lines)
	}
}

func TestWrapBreaksAtSpace(t *testing.T) {
	segs, rest := Wrap("the quick brown fox jumps over the lazy dog", 10, 10)
	want := []string{"the quick", "brown fox", "jumps over", "the lazy", "dog"}
	if !reflect.DeepEqual(segs, want) {
		t.Errorf("Expected %q, got %q", want, segs)
	}
	if rest {
		t.Error("Expected no remaining input")
	}
}

func TestWrapHardSplitsLongWord(t *testing.T) {
	segs, _ := Wrap(strings.Repeat("a", 25), 10, 10)
	want := []string{"aaaaaaaaaa", "aaaaaaaaaa", "aaaaa"}
	if !reflect.DeepEqual(segs, want) {
		t.Errorf("Expected %q, got %q", want, segs)
	}
}

func TestWrapReportsRest(t *testing.T) {
	segs, rest := Wrap("one two three four", 4, 2)
	if len(segs) != 2 || !rest {
		t.Errorf("Expected 2 segments with rest, got %q rest=%v", segs, rest)
	}
}

func TestCenteredSingleLine(t *testing.T) {
	lines := Centered(oled, "Hello", 18, 6)
	if len(lines) != 1 {
		t.Fatalf("Expected 1 line, got %d", len(lines))
	}
	want := Line{Text: "Hello", X: 49, Y: 18}
	if lines[0] != want {
		t.Errorf("Expected %+v, got %+v", want, lines[0])
	}
}

func TestCenteredOverflowEllipsis(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("word ", 40))
	lines := Centered(oled, text, 18, 6)

	// (64-18)/8 = 5 lines fit below the header.
	if len(lines) != 5 {
		t.Fatalf("Expected 5 lines, got %d", len(lines))
	}
	last := lines[len(lines)-1]
	if last.Text != Ellipsis {
		t.Errorf("Expected last line %q, got %q", Ellipsis, last.Text)
	}
	if last.X != oled.CenterX(Ellipsis) {
		t.Errorf("Expected centered ellipsis at %d, got %d", oled.CenterX(Ellipsis), last.X)
	}
	for _, l := range lines {
		if l.Y+oled.LineHeight > oled.Height {
			t.Errorf("Line %q crosses the bottom edge at y=%d", l.Text, l.Y)
		}
	}
}

func TestFlowHardSplit(t *testing.T) {
	lines := Flow(oled, strings.Repeat("a", 60), 8)
	want := []string{strings.Repeat("a", 21), strings.Repeat("a", 21), strings.Repeat("a", 18)}
	if !reflect.DeepEqual(texts(lines), want) {
		t.Errorf("Expected %q, got %q", want, texts(lines))
	}
	for i, l := range lines {
		if l.X != 0 || l.Y != i*8 {
			t.Errorf("Line %d: expected origin (0,%d), got (%d,%d)", i, i*8, l.X, l.Y)
		}
	}
}

func TestFlowExplicitBreaks(t *testing.T) {
	lines := Flow(oled, " /\\_/\\\n( o.o )\n\n > ^ <\n", 8)
	want := []string{" /\\_/\\", "( o.o )", "", " > ^ <"}
	if !reflect.DeepEqual(texts(lines), want) {
		t.Errorf("Expected %q, got %q", want, texts(lines))
	}
}

func TestFlowOverflowEllipsis(t *testing.T) {
	lines := Flow(oled, strings.Repeat("a", 200), 8)
	if len(lines) != 8 {
		t.Fatalf("Expected 8 lines, got %d", len(lines))
	}
	if lines[7].Text != Ellipsis {
		t.Errorf("Expected final line %q, got %q", Ellipsis, lines[7].Text)
	}
}

func TestFlowOverflowAcrossSegments(t *testing.T) {
	text := strings.Repeat("line\n", 9)
	lines := Flow(oled, text, 8)
	if len(lines) != 8 || lines[7].Text != Ellipsis {
		t.Errorf("Expected 8 lines ending in ellipsis, got %q", texts(lines))
	}

	exact := strings.Repeat("line\n", 8)
	lines = Flow(oled, exact, 8)
	if len(lines) != 8 || lines[7].Text != "line" {
		t.Errorf("Expected 8 full lines without ellipsis, got %q", texts(lines))
	}
}

func TestFlowDeterministic(t *testing.T) {
	text := "some ascii art\nwith a very very long second line that wraps around"
	a := Flow(oled, text, 8)
	b := Flow(oled, text, 8)
	if !reflect.DeepEqual(a, b) {
		t.Error("Expected identical layouts for identical input")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		cols int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is .."},
		{"abc", 2, "ab"},
		{"abc", 0, ""},
		{"ééééé", 4, "éé.."},
		{"ééééé", 5, "ééééé"},
		{"日本語", 2, "日本"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.cols); got != tt.want {
			t.Errorf("Truncate(%q, %d): expected %q, got %q", tt.in, tt.cols, tt.want, got)
		}
	}
}

func TestRenderMessageDrawsHeaderAndBody(t *testing.T) {
	s := surface.New(nil)
	if err := RenderMessage(s, "Hello"); err != nil {
		t.Fatalf("RenderMessage failed: %v", err)
	}

	if !bandLit(s, 5, 13) {
		t.Error("Expected header pixels in rows 5-12")
	}
	if !bandLit(s, 18, 26) {
		t.Error("Expected body pixels in rows 18-25")
	}
	if bandLit(s, 26, 64) {
		t.Error("Expected nothing below the single body line")
	}
}

func TestRenderFlowIdempotent(t *testing.T) {
	a := surface.New(nil)
	b := surface.New(nil)
	text := strings.Repeat("ab\n", 12)

	if err := RenderFlow(a, text); err != nil {
		t.Fatal(err)
	}
	if err := RenderFlow(b, text); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a.Bytes(), b.Bytes()) {
		t.Error("Expected identical pixels for identical input")
	}
}

func TestRenderCenteredFits(t *testing.T) {
	s := surface.New(nil)
	if err := RenderCentered(s, "WebSocket", "Connected!"); err != nil {
		t.Fatal(err)
	}
	if !bandLit(s, 0, 64) {
		t.Error("Expected some pixels lit")
	}
}

func bandLit(s *surface.Surface, y0, y1 int) bool {
	for y := y0; y < y1; y++ {
		for x := 0; x < s.Width(); x++ {
			if s.Pixel(x, y) {
				return true
			}
		}
	}
	return false
}

func allValid(t *testing.T, rows []string) {
	t.Helper()
	for i, r := range rows {
		if !utf8.ValidString(r) {
			t.Errorf("row %d: %q is not valid UTF-8", i, r)
		}
	}
}

func TestWrapMultibyteFitsOneLine(t *testing.T) {
	text := strings.Repeat("ü", 15)
	segs, rest := Wrap(text, 21, 6)
	if len(segs) != 1 || segs[0] != text || rest {
		t.Errorf("Expected 15 characters on one line, got %q rest=%v", segs, rest)
	}
}

func TestWrapMultibyteSplitsOnCharacters(t *testing.T) {
	segs, _ := Wrap("grüße aus köln und überall", 10, 10)
	want := []string{"grüße aus", "köln und", "überall"}
	if !reflect.DeepEqual(segs, want) {
		t.Errorf("Expected %q, got %q", want, segs)
	}

	segs, _ = Wrap(strings.Repeat("é", 25), 10, 10)
	want = []string{strings.Repeat("é", 10), strings.Repeat("é", 10), strings.Repeat("é", 5)}
	if !reflect.DeepEqual(segs, want) {
		t.Errorf("Expected %q, got %q", want, segs)
	}
	allValid(t, segs)
}

func TestFlowMultibyte(t *testing.T) {
	got := texts(Flow(oled, strings.Repeat("é", 30), 8))
	want := []string{strings.Repeat("é", 21), strings.Repeat("é", 9)}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %q, got %q", want, got)
	}
	allValid(t, got)
}

func TestCenteredMultibyte(t *testing.T) {
	lines := Centered(oled, "café", 0, 6)
	if len(lines) != 1 || lines[0].Text != "café" {
		t.Fatalf("Expected one line, got %v", lines)
	}
	if want := (128 - 4*6) / 2; lines[0].X != want {
		t.Errorf("Expected x %d for 4 characters, got %d", want, lines[0].X)
	}
}

func TestPrefix(t *testing.T) {
	if got := Prefix("añb", 2); got != "añ" {
		t.Errorf("Expected %q, got %q", "añ", got)
	}
	if got := Prefix("ab", 5); got != "ab" {
		t.Errorf("Expected %q, got %q", "ab", got)
	}
}

func TestSurfaceWidthCountsCharacters(t *testing.T) {
	m := MetricsOf(surface.New(nil))
	if got, want := m.TextWidth("über"), 4*m.CharWidth; got != want {
		t.Errorf("Expected width %d, got %d", want, got)
	}
}
