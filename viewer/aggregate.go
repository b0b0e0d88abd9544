package viewer

import "enginewatch/sensor"

// Counts are the KPI totals for one snapshot. Critical+Warning+Normal always
// equals Total.
type Counts struct {
	Critical int
	Warning  int
	Normal   int
	Total    int
}

// Aggregate classifies each reading by effective severity in one pass.
func Aggregate(snap sensor.Snapshot) Counts {
	var c Counts
	for _, r := range snap {
		switch r.EffectiveSeverity() {
		case sensor.SeverityCritical:
			c.Critical++
		case sensor.SeverityWarning:
			c.Warning++
		default:
			c.Normal++
		}
	}
	c.Total = len(snap)
	return c
}
