package planner

import (
	"errors"
	"fmt"
	"sort"

	"airgrid/planner-go/internal/fleet"
	"airgrid/planner-go/internal/geomath"
	"airgrid/planner-go/internal/health"
)

var (
	// ErrEmptyRouteRequest marks an optimize call with zero devices. Callers
	// are expected to disable routing while the selection is empty rather
	// than lean on this as control flow.
	ErrEmptyRouteRequest = errors.New("route request has no devices")

	// ErrDuplicateDeviceID marks a request carrying the same device twice.
	// Surfaced rather than deduplicated so upstream selection bugs stay visible.
	ErrDuplicateDeviceID = errors.New("duplicate device id in route request")

	// ErrNegativeWeight marks a weight below zero.
	ErrNegativeWeight = errors.New("route weights must be >= 0")
)

// Weights tunes the trade-off between travel distance, stop urgency, and
// administrative zone crossings. Only relative magnitudes matter; they are
// normalized internally and need not sum to 1.
type Weights struct {
	Distance    float64
	Criticality float64
	Zone        float64
}

// DefaultWeights matches observed operator usage: distance and criticality
// weighted equally, zone crossings free.
func DefaultWeights() Weights {
	return Weights{Distance: 1, Criticality: 1, Zone: 0}
}

func (w Weights) validate() error {
	if w.Distance < 0 || w.Criticality < 0 || w.Zone < 0 {
		return fmt.Errorf("%w: got %+v", ErrNegativeWeight, w)
	}
	return nil
}

func (w Weights) normalized() Weights {
	sum := w.Distance + w.Criticality + w.Zone
	if sum <= 0 {
		return w
	}
	return Weights{
		Distance:    w.Distance / sum,
		Criticality: w.Criticality / sum,
		Zone:        w.Zone / sum,
	}
}

// Home is an optional fixed depot the trip starts and ends at.
type Home struct {
	Latitude  float64
	Longitude float64
	Name      string
}

func (h Home) position() fleet.Coordinate {
	return fleet.Coordinate{Latitude: h.Latitude, Longitude: h.Longitude}
}

// Request describes one optimize call: the selected devices, an optional
// home location, and the scoring weights.
type Request struct {
	Devices []fleet.Device
	Home    *Home
	Weights Weights
}

// Result is a computed visiting order with summary figures. OrderedDevices
// is always a permutation of the request's devices; home is never in it.
// Distance figures include the home round-trip legs only when home is set.
type Result struct {
	OrderedDevices     []fleet.Device
	TotalDistanceKm    float64
	StopCount          int
	AverageCriticality float64
	Home               *Home
}

// Path returns the route polyline the tour follows, including the home
// legs when a home is set. This is the shape opportunistic-stop search
// runs against.
func (r *Result) Path() []fleet.Coordinate {
	if r == nil {
		return nil
	}
	points := make([]fleet.Coordinate, 0, len(r.OrderedDevices)+2)
	if r.Home != nil {
		points = append(points, r.Home.position())
	}
	for _, d := range r.OrderedDevices {
		points = append(points, d.Position())
	}
	if r.Home != nil {
		points = append(points, r.Home.position())
	}
	return points
}

// Crossing into a different administrative zone costs this many distance-
// equivalent kilometers before the zone weight is applied.
const zoneCrossingPenaltyKm = 25.0

// Optimize orders the requested devices into a single visiting sequence.
//
// Greedy construction: start from home when supplied, otherwise from the
// most critical device (lowest id on ties); then repeatedly take the
// unvisited device minimizing
//
//	w.Distance*haversine(cur, cand) - w.Criticality*criticality(cand) + w.Zone*zonePenalty(cur, cand)
//
// O(n^2) in device count, which is fine for operator-curated selections of
// tens of stops. No claim of global optimality.
func Optimize(req Request) (*Result, error) {
	if len(req.Devices) == 0 {
		return nil, ErrEmptyRouteRequest
	}
	if err := req.Weights.validate(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(req.Devices))
	for _, d := range req.Devices {
		if _, dup := seen[d.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateDeviceID, d.ID)
		}
		seen[d.ID] = struct{}{}
		// Checked up front: a single-stop tour computes no leg distances,
		// so the distance layer alone would never see the coordinates.
		if !d.HasCoordinates() {
			return nil, fmt.Errorf("device %s: %w: lat=%v lon=%v", d.ID, geomath.ErrInvalidCoordinate, d.Latitude, d.Longitude)
		}
	}

	devices := append([]fleet.Device(nil), req.Devices...)
	weights := req.Weights.normalized()

	// Criticality is computed once per device per optimize call.
	scores := make([]float64, len(devices))
	for i, d := range devices {
		scores[i] = health.CriticalityScore(d)
	}

	visited := make([]bool, len(devices))
	tour := make([]fleet.Device, 0, len(devices))

	var current fleet.Coordinate
	var currentZone string

	if req.Home != nil {
		current = req.Home.position()
		currentZone = ""
	} else {
		start := startIndex(devices, scores)
		visited[start] = true
		tour = append(tour, devices[start])
		current = devices[start].Position()
		currentZone = devices[start].Zone
	}

	for len(tour) < len(devices) {
		next := -1
		var nextCost float64
		for i, d := range devices {
			if visited[i] {
				continue
			}
			dist, err := geomath.HaversineKm(current, d.Position())
			if err != nil {
				return nil, fmt.Errorf("device %s: %w", d.ID, err)
			}
			cost := weights.Distance*dist - weights.Criticality*scores[i] + weights.Zone*zonePenalty(currentZone, d.Zone)
			if next == -1 || cost < nextCost || (cost == nextCost && d.ID < devices[next].ID) {
				next = i
				nextCost = cost
			}
		}
		visited[next] = true
		tour = append(tour, devices[next])
		current = devices[next].Position()
		currentZone = devices[next].Zone
	}

	result := &Result{
		OrderedDevices: tour,
		StopCount:      len(tour),
		Home:           req.Home,
	}

	total, err := geomath.PathDistanceKm(result.Path())
	if err != nil {
		return nil, err
	}
	result.TotalDistanceKm = total

	var sum float64
	for _, s := range scores {
		sum += s
	}
	result.AverageCriticality = sum / float64(len(scores))

	return result, nil
}

// startIndex picks the most critical device, breaking ties by lowest id so
// construction stays deterministic.
func startIndex(devices []fleet.Device, scores []float64) int {
	best := 0
	for i := 1; i < len(devices); i++ {
		if scores[i] > scores[best] || (scores[i] == scores[best] && devices[i].ID < devices[best].ID) {
			best = i
		}
	}
	return best
}

func zonePenalty(from, to string) float64 {
	if from == "" || to == "" || from == to {
		return 0
	}
	return zoneCrossingPenaltyKm
}

// SortDevicesByCriticality returns the devices ordered most-urgent-first,
// ties broken by id. Used by list views; does not affect tour construction.
func SortDevicesByCriticality(devices []fleet.Device) []fleet.Device {
	out := append([]fleet.Device(nil), devices...)
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := health.CriticalityScore(out[i]), health.CriticalityScore(out[j])
		if si == sj {
			return out[i].ID < out[j].ID
		}
		return si > sj
	})
	return out
}
