package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"enginewatch/sensor"
	"enginewatch/viewer"

	"github.com/dustin/go-humanize"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

const (
	accentTag   = "[#ff69b4]"
	accentReset = "[-]"

	logPaneEvents   = 500
	logPaneBytes    = 256 * 1024
	logPaneMaxLine  = 512
	headerTickEvery = time.Second
)

var (
	uiBorderColor = tcell.ColorGray
	uiTitleColor  = tcell.ColorHotPink
)

// DashboardOptions configures the tview surface.
type DashboardOptions struct {
	Title      string
	Locale     viewer.Locale
	TargetFPS  int
	SparkWidth int
	// Screen overrides the terminal; tests pass a simulation screen.
	Screen tcell.Screen
}

// Dashboard is the full-screen viewer: header with connection state, KPI
// strip, status grid, sparklines and a log pane.
type Dashboard struct {
	app       *tview.Application
	scheduler *frameScheduler
	opts      DashboardOptions

	ready    chan struct{}
	done     chan struct{}
	quit     chan struct{}
	stopOnce sync.Once

	header *tview.TextView
	kpi    *tview.TextView
	grid   *tview.Table
	charts *tview.TextView
	logs   *tview.TextView
	footer *tview.TextView

	stateMu    sync.Mutex
	connected  bool
	lastUpdate time.Time
	updates    uint64

	events  *EventBuffer
	latency *LatencyTracker
	writer  *lineWriter
}

// NewDashboard builds the tview application and starts it.
func NewDashboard(opts DashboardOptions) *Dashboard {
	if opts.Title == "" {
		opts.Title = "Engine Watch"
	}
	if opts.Locale.Labels == nil {
		opts.Locale = viewer.LocaleRU
	}
	if opts.SparkWidth <= 0 {
		opts.SparkWidth = 60
	}
	app := tview.NewApplication()
	if opts.Screen != nil {
		app.SetScreen(opts.Screen)
	}
	d := &Dashboard{
		app:     app,
		opts:    opts,
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
		quit:    make(chan struct{}),
		events:  NewEventBuffer(logPaneEvents, logPaneBytes, logPaneMaxLine),
		latency: NewLatencyTracker(256),
	}
	d.writer = newLineWriter(d.AppendSystem)
	d.scheduler = newFrameScheduler(app, opts.TargetFPS, 0, d.latency.Observe)

	var once sync.Once
	app.SetBeforeDrawFunc(func(tcell.Screen) bool {
		once.Do(func() { close(d.ready) })
		return false
	})

	d.header = newBoxedTextView("")
	d.kpi = newBoxedTextView("")
	d.grid = tview.NewTable().SetBorders(false).SetFixed(1, 0).SetSelectable(false, false)
	d.grid.SetBorder(true).SetTitle(accentText(opts.Locale.StatusCaption)).SetTitleAlign(tview.AlignLeft)
	d.grid.SetBorderColor(uiBorderColor)
	d.charts = newBoxedTextView("Trends")
	d.logs = newBoxedTextView("Log")
	d.logs.SetScrollable(true)
	d.footer = tview.NewTextView().SetDynamicColors(true)

	d.renderHeader()
	d.renderGridHeader()
	d.renderFooter()

	body := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(d.grid, 0, 3, false).
		AddItem(d.charts, 0, 2, false)
	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(d.header, 3, 0, false).
		AddItem(d.kpi, 3, 0, false).
		AddItem(body, 0, 3, false).
		AddItem(d.logs, 8, 0, false).
		AddItem(d.footer, 1, 0, false)
	app.SetRoot(root, true)
	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyCtrlC || event.Key() == tcell.KeyEsc || event.Rune() == 'q' || event.Rune() == 'Q' {
			d.Stop()
			return nil
		}
		return event
	})

	d.scheduler.Start()
	go func() {
		defer close(d.done)
		if err := app.Run(); err != nil {
			d.AppendSystem(fmt.Sprintf("UI: application error: %v", err))
		}
	}()
	go d.headerTicker()
	return d
}

// WaitReady blocks until the first draw.
func (d *Dashboard) WaitReady() {
	if d == nil {
		return
	}
	select {
	case <-d.ready:
	case <-d.done:
	}
}

// Done is closed when the application exits.
func (d *Dashboard) Done() <-chan struct{} {
	if d == nil {
		return nil
	}
	return d.done
}

// Stop flushes pending updates and stops the application. Safe to call more
// than once and from the input handler.
func (d *Dashboard) Stop() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() {
		close(d.quit)
		d.scheduler.Stop()
		d.app.Stop()
	})
}

// SetConnection updates the header dot and logs the transition.
func (d *Dashboard) SetConnection(connected bool) {
	if d == nil {
		return
	}
	d.stateMu.Lock()
	changed := d.connected != connected
	d.connected = connected
	d.stateMu.Unlock()
	if changed {
		d.appendEvent(EventConnection, d.opts.Locale.ConnectionText(connected))
	}
	d.scheduler.Schedule("header", d.renderHeader)
}

// Render schedules one frame. Only the newest frame per draw is kept.
func (d *Dashboard) Render(frame viewer.Frame) {
	if d == nil {
		return
	}
	d.stateMu.Lock()
	d.lastUpdate = frame.At
	d.updates++
	d.stateMu.Unlock()
	d.scheduler.Schedule("header", d.renderHeader)
	d.scheduler.Schedule("frame", func() { d.renderFrame(frame) })
}

// AppendSystem adds a line to the log pane.
func (d *Dashboard) AppendSystem(line string) {
	if d == nil {
		return
	}
	d.appendEvent(EventSystem, line)
}

// SystemWriter routes log output to the log pane.
func (d *Dashboard) SystemWriter() io.Writer {
	if d == nil {
		return nil
	}
	return d.writer
}

func (d *Dashboard) appendEvent(kind EventKind, line string) {
	d.events.Append(Event{Timestamp: time.Now(), Kind: kind, Message: line})
	d.scheduler.Schedule("logs", d.renderLogs)
}

func (d *Dashboard) headerTicker() {
	ticker := time.NewTicker(headerTickEvery)
	defer ticker.Stop()
	for {
		select {
		case <-d.quit:
			return
		case <-d.done:
			return
		case <-ticker.C:
			d.scheduler.Schedule("header", d.renderHeader)
			d.scheduler.Schedule("footer", d.renderFooter)
		}
	}
}

func (d *Dashboard) renderHeader() {
	d.stateMu.Lock()
	connected, last, updates := d.connected, d.lastUpdate, d.updates
	d.stateMu.Unlock()
	dot := "[red]●[-]"
	if connected {
		dot = "[green]●[-]"
	}
	updated := "—"
	if !last.IsZero() {
		updated = humanize.Time(last)
	}
	setBoxText(d.header, fmt.Sprintf("%s%s%s   %s %s   %s (%s updates)",
		accentTag, tview.Escape(d.opts.Title), accentReset,
		dot, tview.Escape(d.opts.Locale.ConnectionText(connected)),
		tview.Escape(updated), humanize.Comma(int64(updates))))
}

func (d *Dashboard) renderFrame(frame viewer.Frame) {
	setBoxText(d.kpi, kpiMarkup(frame.Counts, d.opts.Locale))
	d.grid.Clear()
	d.renderGridHeader()
	for i, row := range frame.Rows {
		color := severityColor(row.Severity)
		value := row.Value
		if row.Unit != "" {
			value += " " + row.Unit
		}
		cells := []string{row.Label, value, row.Range, row.Risk, row.StatusText}
		for col, text := range cells {
			cell := tview.NewTableCell(tview.Escape(text)).SetExpansion(1)
			if col == len(cells)-1 {
				cell.SetTextColor(color).SetAttributes(tcell.AttrBold)
			}
			d.grid.SetCell(i+1, col, cell)
		}
	}
	lines := make([]string, 0, len(frame.Charts))
	for _, chart := range frame.Charts {
		lines = append(lines, fmt.Sprintf("%-20s %s", tview.Escape(chart.Key), sparklineMarkup(chart, d.opts.SparkWidth)))
	}
	setBoxText(d.charts, strings.Join(lines, "\n"))
}

func (d *Dashboard) renderGridHeader() {
	loc := d.opts.Locale
	for col, title := range []string{"", loc.ValueCaption, loc.RangeCaption, loc.RiskCaption, loc.StatusCaption} {
		d.grid.SetCell(0, col, tview.NewTableCell(accentText(title)).SetSelectable(false).SetExpansion(1))
	}
}

func (d *Dashboard) renderLogs() {
	events, _ := d.events.Snapshot()
	var b strings.Builder
	for i, e := range events {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(tview.Escape(e.String()))
	}
	d.logs.SetText(b.String())
	d.logs.ScrollToEnd()
}

func (d *Dashboard) renderFooter() {
	d.footer.SetText(fmt.Sprintf(" q/Esc: quit   %s   log evicted %d", formatLatency(d.latency.Snapshot()), d.events.Evicted()))
}

func newBoxedTextView(title string) *tview.TextView {
	tv := tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	tv.SetBorder(true)
	if title != "" {
		tv.SetTitle(accentText(title)).SetTitleAlign(tview.AlignLeft)
	}
	tv.SetBorderColor(uiBorderColor)
	tv.SetTitleColor(uiTitleColor)
	return tv
}

func setBoxText(tv *tview.TextView, text string) {
	if tv == nil {
		return
	}
	tv.SetText(text)
}

func accentText(text string) string {
	if text == "" {
		return ""
	}
	return accentTag + tview.Escape(text) + accentReset
}

func severityColor(sev sensor.Severity) tcell.Color {
	switch sev {
	case sensor.SeverityCritical:
		return tcell.ColorRed
	case sensor.SeverityWarning:
		return tcell.ColorYellow
	case sensor.SeverityNormal:
		return tcell.ColorGreen
	default:
		return tcell.ColorGray
	}
}

func severityTag(sev sensor.Severity) string {
	switch sev {
	case sensor.SeverityCritical:
		return "[red]"
	case sensor.SeverityWarning:
		return "[yellow]"
	case sensor.SeverityNormal:
		return "[green]"
	default:
		return "[gray]"
	}
}

// kpiMarkup colors each KPI count by its severity.
func kpiMarkup(c viewer.Counts, loc viewer.Locale) string {
	return fmt.Sprintf("[red]%s: %d[-]   [yellow]%s: %d[-]   [green]%s: %d[-]   %s: %d",
		tview.Escape(loc.KPICritical), c.Critical,
		tview.Escape(loc.KPIWarning), c.Warning,
		tview.Escape(loc.KPINormal), c.Normal,
		tview.Escape(loc.KPITotal), c.Total)
}

// sparklineMarkup draws the history in gray with the newest bar colored by
// its severity marker.
func sparklineMarkup(chart viewer.Chart, width int) string {
	plain := []rune(viewer.Sparkline(chart, width))
	if len(plain) < 2 {
		return string(plain)
	}
	n := len(plain)
	marker := chart.Bars[len(chart.Bars)-1].Marker
	tag := severityTag(marker)
	return "[gray]" + string(plain[:n-2]) + "[-]" + tag + string(plain[n-2:]) + "[-]"
}

var _ Surface = (*Dashboard)(nil)
