package viewer

import (
	"fmt"
	"strings"

	"enginewatch/sensor"
)

var blockGlyphs = []rune("▁▂▃▄▅▆▇█")

// SeverityGlyph is the marker drawn after the most recent bar.
func SeverityGlyph(sev sensor.Severity) string {
	switch sev {
	case sensor.SeverityCritical:
		return "!"
	case sensor.SeverityWarning:
		return "~"
	default:
		return "·"
	}
}

// Sparkline renders the last width bars as block glyphs followed by the
// severity marker of the newest bar.
func Sparkline(chart Chart, width int) string {
	bars := chart.Bars
	if width > 0 && len(bars) > width {
		bars = bars[len(bars)-width:]
	}
	var b strings.Builder
	for _, bar := range bars {
		b.WriteRune(blockGlyphs[bar.Level])
	}
	if n := len(bars); n > 0 {
		b.WriteString(SeverityGlyph(bars[n-1].Marker))
	}
	return b.String()
}

// FormatKPI renders the KPI strip as one line.
func FormatKPI(c Counts, loc Locale) string {
	return fmt.Sprintf("%s: %d  %s: %d  %s: %d  %s: %d",
		loc.KPICritical, c.Critical,
		loc.KPIWarning, c.Warning,
		loc.KPINormal, c.Normal,
		loc.KPITotal, c.Total)
}

// FormatRow renders one grid row as a fixed-layout line.
func FormatRow(row Row, loc Locale) string {
	value := row.Value
	if row.Unit != "" {
		value += " " + row.Unit
	}
	line := fmt.Sprintf("%-28s %-16s [%s]  %s: %s", row.Label, value, row.StatusText, loc.RangeCaption, row.Range)
	if row.Risk != "" {
		line += fmt.Sprintf("  %s: %s", loc.RiskCaption, row.Risk)
	}
	return line
}

// FormatFrame renders a whole frame as text lines for line-oriented
// surfaces. width bounds each sparkline.
func FormatFrame(frame Frame, loc Locale, width int) []string {
	lines := make([]string, 0, 2+len(frame.Rows)+len(frame.Charts))
	lines = append(lines, fmt.Sprintf("[%s] %s", frame.At.Format("15:04:05"), FormatKPI(frame.Counts, loc)))
	for _, row := range frame.Rows {
		lines = append(lines, FormatRow(row, loc))
	}
	for _, chart := range frame.Charts {
		lines = append(lines, fmt.Sprintf("%-20s %s", chart.Key, Sparkline(chart, width)))
	}
	return lines
}
