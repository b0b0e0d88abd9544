package ui

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"enginewatch/viewer"
)

// Console is a line-oriented surface for pipes and dumb terminals: every
// frame is written as a block of text, system lines are prefixed.
type Console struct {
	mu     sync.Mutex
	out    io.Writer
	locale viewer.Locale
	width  int
	writer *lineWriter
}

// NewConsole writes frames to out with sparklines bounded to width bars.
func NewConsole(out io.Writer, locale viewer.Locale, width int) *Console {
	c := &Console{out: out, locale: locale, width: width}
	c.writer = newLineWriter(c.AppendSystem)
	return c
}

func (c *Console) WaitReady()            {}
func (c *Console) Stop()                 {}
func (c *Console) Done() <-chan struct{} { return nil }

// SetConnection prints the connection status line.
func (c *Console) SetConnection(connected bool) {
	c.writeLines("* " + c.locale.ConnectionText(connected))
}

// Render prints one frame followed by a blank separator line.
func (c *Console) Render(frame viewer.Frame) {
	lines := viewer.FormatFrame(frame, c.locale, c.width)
	c.writeLines(append(lines, "")...)
}

// AppendSystem prints a log line.
func (c *Console) AppendSystem(line string) {
	c.writeLines("# " + line)
}

// SystemWriter adapts log output to AppendSystem.
func (c *Console) SystemWriter() io.Writer { return c.writer }

func (c *Console) writeLines(lines ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.out == nil {
		return
	}
	_, _ = io.WriteString(c.out, strings.Join(lines, "\n")+"\n")
}

// Headless logs a one-line summary per frame. It suits service managers
// where nothing reads the terminal.
type Headless struct {
	locale viewer.Locale
	mu     sync.Mutex
	frames uint64
	last   time.Time
}

// NewHeadless returns a headless surface.
func NewHeadless(locale viewer.Locale) *Headless {
	return &Headless{locale: locale}
}

func (h *Headless) WaitReady()            {}
func (h *Headless) Stop()                 {}
func (h *Headless) Done() <-chan struct{} { return nil }

func (h *Headless) SetConnection(connected bool) {
	log.Printf("Viewer: %s", h.locale.ConnectionText(connected))
}

func (h *Headless) Render(frame viewer.Frame) {
	h.mu.Lock()
	h.frames++
	h.last = frame.At
	n := h.frames
	h.mu.Unlock()
	log.Printf("Viewer: frame %d %s", n, viewer.FormatKPI(frame.Counts, h.locale))
}

// AppendSystem is a no-op; log output already goes to the process log.
func (h *Headless) AppendSystem(string) {}

// SystemWriter returns nil so callers keep the default log output.
func (h *Headless) SystemWriter() io.Writer { return nil }

// Frames returns how many frames were rendered and when the last was.
func (h *Headless) Frames() (uint64, time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.frames, h.last
}

var (
	_ Surface = (*Console)(nil)
	_ Surface = (*Headless)(nil)
)

func formatLatency(s LatencySnapshot) string {
	if s.N == 0 {
		return "draw: n/a"
	}
	return fmt.Sprintf("draw p50 %s p99 %s (n=%d)", s.P50.Round(time.Microsecond), s.P99.Round(time.Microsecond), s.N)
}
