package catalog

import (
	"math"

	"github.com/NERVsystems/poimap/pkg/core"
	"github.com/NERVsystems/poimap/pkg/geo"
)

// ErrEmptyCatalog is returned by Nearest when there is nothing to search.
var ErrEmptyCatalog = core.NewError(core.ErrEmptyCatalog, "no locations loaded").
	WithGuidance("Reload the location list and try again.")

// Nearest returns the record closest to fix by great-circle distance, and
// that distance in meters. On equal distances the earlier record wins.
// Records whose distance is not finite are skipped; ErrEmptyCatalog is
// returned when no record is left.
func Nearest(fix geo.Location, records []LocationRecord) (LocationRecord, float64, error) {
	best := -1
	bestDist := 0.0
	for i, r := range records {
		d := geo.Distance(fix, r.Location)
		if !finite(d) {
			continue
		}
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return LocationRecord{}, 0, ErrEmptyCatalog
	}
	return records[best], bestDist, nil
}

func finite(d float64) bool {
	return !math.IsNaN(d) && !math.IsInf(d, 0)
}

// Ranked is a record paired with its distance from a query point.
type Ranked struct {
	Record   LocationRecord `json:"record"`
	Distance float64        `json:"distanceMeters"`
}

// NearestN returns up to n records ordered by distance from fix. Equal
// distances keep catalog order and non-finite distances are skipped.
func NearestN(fix geo.Location, records []LocationRecord, n int) []Ranked {
	if n <= 0 || len(records) == 0 {
		return []Ranked{}
	}
	out := make([]Ranked, 0, n+1)
	for _, r := range records {
		d := geo.Distance(fix, r.Location)
		if !finite(d) {
			continue
		}
		if len(out) == n && d >= out[n-1].Distance {
			continue
		}
		// insertion after every entry with distance <= d keeps ties stable
		pos := len(out)
		for pos > 0 && out[pos-1].Distance > d {
			pos--
		}
		out = append(out, Ranked{})
		copy(out[pos+1:], out[pos:])
		out[pos] = Ranked{Record: r, Distance: d}
		if len(out) > n {
			out = out[:n]
		}
	}
	return out
}
