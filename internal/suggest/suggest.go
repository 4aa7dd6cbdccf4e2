// Package suggest finds opportunistic maintenance stops: devices that are
// not on the planned trip but sit close enough to its path to be worth
// adding while the technician is already out.
package suggest

import (
	"math"
	"sort"

	"airgrid/planner-go/internal/fleet"
	"airgrid/planner-go/internal/geomath"
	"airgrid/planner-go/internal/health"
)

// Suggestion is a candidate extra stop near an already-computed route.
type Suggestion struct {
	Device              fleet.Device
	CriticalityGain     float64
	DistanceFromRouteKm float64
}

// FindAlongRoute scans the inventory for devices within bufferKm of any
// segment of the route polyline, excluding ids already in the trip. The
// reported distance is the minimum over all segments, so a device near two
// legs still appears exactly once. Results are ordered most-urgent-first,
// nearer-first on ties.
//
// Candidates with malformed coordinates are skipped rather than failing the
// whole scan; the route itself must be valid.
func FindAlongRoute(route []fleet.Coordinate, allDevices []fleet.Device, excludeIDs map[string]struct{}, bufferKm float64) ([]Suggestion, error) {
	if len(route) < 2 || bufferKm <= 0 {
		return []Suggestion{}, nil
	}

	out := make([]Suggestion, 0)
	for _, d := range allDevices {
		if _, excluded := excludeIDs[d.ID]; excluded {
			continue
		}
		if !d.HasCoordinates() {
			continue
		}

		minDist := math.Inf(1)
		for i := 0; i+1 < len(route); i++ {
			dist, err := geomath.DistancePointToSegmentKm(d.Position(), route[i], route[i+1])
			if err != nil {
				return nil, err
			}
			if dist < minDist {
				minDist = dist
			}
		}

		if minDist <= bufferKm {
			out = append(out, Suggestion{
				Device:              d,
				CriticalityGain:     health.CriticalityScore(d),
				DistanceFromRouteKm: minDist,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CriticalityGain == out[j].CriticalityGain {
			return out[i].DistanceFromRouteKm < out[j].DistanceFromRouteKm
		}
		return out[i].CriticalityGain > out[j].CriticalityGain
	})

	return out, nil
}
