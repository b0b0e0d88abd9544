package sensor

import (
	"enginewatch/strutil"

	lev "github.com/agnivade/levenshtein"
)

// KnownIDs lists the sensor ids produced by the analysis collaborator, in its
// emission order.
var KnownIDs = []string{
	"rpm",
	"engine_temp_coolant",
	"oil_temp",
	"oil_pressure",
	"fuel_pressure",
	"fuel_level",
	"fuel_consumption",
	"voltage",
	"current",
	"ecu_errors",
	"fuel_leak",
	"coolant_pressure",
	"overheat",
	"vibration",
	"emergency_stop",
}

var knownSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(KnownIDs))
	for _, id := range KnownIDs {
		m[id] = struct{}{}
	}
	return m
}()

// maxSuggestDistance bounds how far a typo may be from a known id.
const maxSuggestDistance = 3

// IsKnown reports whether id is in the collaborator catalogue.
func IsKnown(id string) bool {
	_, ok := knownSet[id]
	return ok
}

// Suggest returns the closest known id for an unknown one, used only to make
// ingestion logs more helpful. ok is false when nothing is close enough or id
// is already known.
func Suggest(id string) (string, bool) {
	norm := strutil.NormalizeLower(id)
	if norm == "" || IsKnown(norm) {
		return "", false
	}
	best := ""
	bestDist := maxSuggestDistance + 1
	for _, candidate := range KnownIDs {
		d := lev.ComputeDistance(norm, candidate)
		if d < bestDist {
			best = candidate
			bestDist = d
		}
	}
	if best == "" {
		return "", false
	}
	return best, true
}
