package viewer

import (
	"enginewatch/buffer"
	"enginewatch/sensor"
)

// HistoryCapacity is the number of samples retained per sensor.
const HistoryCapacity = 120

// Sample is one history point: the raw reading and its normalized height.
type Sample struct {
	Raw  float64
	Norm float64
}

// History is the bounded per-sensor sample buffer behind one sparkline.
type History struct {
	Key      string
	Unit     string
	Severity sensor.Severity // of the most recent sample; marks the last bar
	samples  *buffer.Ring[Sample]
}

// Samples returns the retained samples, oldest first.
func (h *History) Samples() []Sample {
	return h.samples.Values()
}

// Len returns the number of retained samples.
func (h *History) Len() int {
	return h.samples.Len()
}

func (h *History) raws() []float64 {
	out := make([]float64, 0, h.samples.Len())
	h.samples.Each(func(s Sample) { out = append(out, s.Raw) })
	return out
}

// HistoryRegistry holds one History per key in creation order. Entries are
// never removed, so it grows with the number of distinct sensor keys seen in
// a session.
type HistoryRegistry struct {
	capacity int
	order    []*History
	byKey    map[string]*History
}

// NewHistoryRegistry returns an empty registry whose buffers hold capacity
// samples each.
func NewHistoryRegistry(capacity int) *HistoryRegistry {
	if capacity <= 0 {
		capacity = HistoryCapacity
	}
	return &HistoryRegistry{capacity: capacity, byKey: make(map[string]*History)}
}

// Observe appends a numeric reading to its sensor's history, creating the
// history on first sight. Non-numeric readings and readings with neither id
// nor type are ignored and report false.
func (g *HistoryRegistry) Observe(r sensor.Reading) (*History, bool) {
	v, ok := r.Value.Numeric()
	if !ok {
		return nil, false
	}
	key := r.Key()
	if key == "" {
		return nil, false
	}
	h, exists := g.byKey[key]
	if !exists {
		h = &History{Key: key, Unit: r.Unit, samples: buffer.NewRing[Sample](g.capacity)}
		g.byKey[key] = h
		g.order = append(g.order, h)
	}
	lo, hi := Domain(r.Min, r.Max, h.raws(), v)
	h.samples.Push(Sample{Raw: v, Norm: Normalize(v, lo, hi)})
	h.Severity = r.EffectiveSeverity()
	return h, true
}

// Get returns the history for key.
func (g *HistoryRegistry) Get(key string) (*History, bool) {
	h, ok := g.byKey[key]
	return h, ok
}

// All returns every history in creation order.
func (g *HistoryRegistry) All() []*History {
	return g.order
}

// Len returns the number of tracked sensors.
func (g *HistoryRegistry) Len() int {
	return len(g.order)
}
