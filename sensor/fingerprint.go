package sensor

import (
	"encoding/binary"
	"math"

	"github.com/zeebo/xxh3"
)

// Fingerprint returns a stable 64-bit hash of a snapshot's content, in order.
// Two snapshots with equal readings hash equal; it is used to skip duplicate
// recorder rows and to tag log lines.
func Fingerprint(snap Snapshot) uint64 {
	h := xxh3.New()
	var buf [8]byte
	writeFloat := func(v float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		_, _ = h.Write(buf[:])
	}
	writeOptional := func(v *float64) {
		if v == nil {
			_, _ = h.Write([]byte{0})
			return
		}
		_, _ = h.Write([]byte{1})
		writeFloat(*v)
	}
	for _, r := range snap {
		_, _ = h.WriteString(r.ID)
		_, _ = h.Write([]byte{0})
		_, _ = h.WriteString(r.Type)
		_, _ = h.Write([]byte{0, byte(r.Value.Kind), byte(r.Severity)})
		switch r.Value.Kind {
		case KindNumeric:
			writeFloat(r.Value.Num)
		case KindBoolean:
			if r.Value.Bool {
				_, _ = h.Write([]byte{1})
			} else {
				_, _ = h.Write([]byte{0})
			}
		case KindText:
			_, _ = h.WriteString(r.Value.Text)
			_, _ = h.Write([]byte{0})
		}
		writeOptional(r.Min)
		writeOptional(r.Max)
		writeOptional(r.RiskProbability)
		_, _ = h.WriteString(r.Unit)
		_, _ = h.Write([]byte{0xff})
	}
	return h.Sum64()
}
