package viewer

import "math"

const (
	// minSpan keeps a zero-width domain from dividing by zero.
	minSpan = 1e-6
	// maxBarHeight is the pixel height of a full sparkline bar.
	maxBarHeight = 58
	// minBarHeight keeps zero values visible.
	minBarHeight = 2
	// blockLevels is the number of distinct terminal block glyphs.
	blockLevels = 8
)

// Domain picks the normalization range for v: declared min and max when both
// are present, else the range of raw values already in the history, else a
// unit band around v.
func Domain(min, max *float64, history []float64, v float64) (lo, hi float64) {
	if min != nil && max != nil {
		return *min, *max
	}
	if len(history) > 0 {
		lo, hi = history[0], history[0]
		for _, h := range history[1:] {
			if h < lo {
				lo = h
			}
			if h > hi {
				hi = h
			}
		}
		return lo, hi
	}
	return v - 1, v + 1
}

// Normalize maps v into [0,1] relative to [lo,hi].
func Normalize(v, lo, hi float64) float64 {
	span := math.Max(minSpan, hi-lo)
	n := (v - lo) / span
	if math.IsNaN(n) {
		return 0
	}
	return math.Max(0, math.Min(1, n))
}

// BarHeight converts a normalized value to a bar height in pixels.
func BarHeight(norm float64) int {
	h := int(math.Round(maxBarHeight * norm))
	if h < minBarHeight {
		return minBarHeight
	}
	return h
}

// BlockLevel converts a normalized value to a 0..7 glyph index.
func BlockLevel(norm float64) int {
	level := int(math.Round(norm * (blockLevels - 1)))
	if level < 0 {
		return 0
	}
	if level > blockLevels-1 {
		return blockLevels - 1
	}
	return level
}
