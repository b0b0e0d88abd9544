// Package viewer turns broadcast snapshots into display frames: KPI counts,
// the status grid and per-sensor sparkline history. It also provides the
// WebSocket client that feeds a Renderer from the broadcast channel.
package viewer

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"enginewatch/sensor"
)

// ErrRenderFault reports that an update was skipped because rendering failed.
var ErrRenderFault = errors.New("viewer: render fault")

// Row is one status grid entry.
type Row struct {
	Key        string
	Label      string
	Value      string
	Unit       string
	Range      string
	Risk       string
	Severity   sensor.Severity
	StatusText string
}

// Bar is one sparkline column.
type Bar struct {
	Norm   float64
	Height int             // pixel height, 2..58
	Level  int             // terminal block index, 0..7
	Marker sensor.Severity // set only on the most recent bar
}

// Chart is the sparkline for one sensor.
type Chart struct {
	Key      string
	Unit     string
	Bars     []Bar
	Severity sensor.Severity
}

// Frame is everything a surface needs to draw one update.
type Frame struct {
	At     time.Time
	Counts Counts
	Rows   []Row
	Charts []Chart
}

// Renderer applies snapshots in order. It owns its history and is not safe
// for concurrent use; give each viewer session its own Renderer.
type Renderer struct {
	locale  Locale
	history *HistoryRegistry
	now     func() time.Time
	applied uint64
}

// NewRenderer returns a Renderer with empty history.
func NewRenderer(locale Locale) *Renderer {
	return &Renderer{
		locale:  locale,
		history: NewHistoryRegistry(HistoryCapacity),
		now:     time.Now,
	}
}

// Locale returns the renderer's catalogue.
func (r *Renderer) Locale() Locale { return r.locale }

// Applied returns how many snapshots rendered successfully.
func (r *Renderer) Applied() uint64 { return r.applied }

// History exposes the per-sensor buffers.
func (r *Renderer) History() *HistoryRegistry { return r.history }

// Purpose: Render one snapshot: aggregate, rebuild the grid, extend history.
// Key aspects: A panic is recovered and reported as ErrRenderFault so one bad
// update never stops the session; later snapshots render normally.
// Upstream: viewer client handler, telnet sessions.
// Downstream: Aggregate, HistoryRegistry.Observe.
func (r *Renderer) Apply(snap sensor.Snapshot) (frame Frame, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			frame = Frame{}
			err = fmt.Errorf("%w: %v", ErrRenderFault, rec)
		}
	}()

	frame.At = r.now()
	frame.Counts = Aggregate(snap)
	frame.Rows = make([]Row, 0, len(snap))
	for _, reading := range snap {
		frame.Rows = append(frame.Rows, r.row(reading))
	}
	for _, reading := range snap {
		r.history.Observe(reading)
	}
	frame.Charts = r.charts()
	r.applied++
	return frame, nil
}

func (r *Renderer) row(reading sensor.Reading) Row {
	sev := reading.EffectiveSeverity()
	return Row{
		Key:        reading.Key(),
		Label:      r.locale.Label(reading),
		Value:      reading.Value.String(),
		Unit:       reading.Unit,
		Range:      formatOptional(reading.Min) + " .. " + formatOptional(reading.Max),
		Risk:       formatRisk(reading.RiskProbability),
		Severity:   sev,
		StatusText: r.locale.StatusText(sev),
	}
}

func (r *Renderer) charts() []Chart {
	all := r.history.All()
	charts := make([]Chart, 0, len(all))
	for _, h := range all {
		samples := h.Samples()
		bars := make([]Bar, len(samples))
		for i, s := range samples {
			bars[i] = Bar{Norm: s.Norm, Height: BarHeight(s.Norm), Level: BlockLevel(s.Norm)}
		}
		if n := len(bars); n > 0 {
			bars[n-1].Marker = h.Severity
		}
		charts = append(charts, Chart{Key: h.Key, Unit: h.Unit, Bars: bars, Severity: h.Severity})
	}
	return charts
}

func formatOptional(v *float64) string {
	if v == nil {
		return "—"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatRisk(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
