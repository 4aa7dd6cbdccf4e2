package geomath

import (
	"errors"
	"fmt"
	"math"

	"airgrid/planner-go/internal/fleet"
)

// EarthRadiusKm is the mean Earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0

// ErrInvalidCoordinate marks a distance computation that received a
// non-finite or out-of-range latitude or longitude. Callers must not
// substitute a default location; a wrong default corrupts routes silently.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// HaversineKm returns the great-circle distance between two points in
// kilometers. Symmetric in its arguments; zero for identical points.
func HaversineKm(a, b fleet.Coordinate) (float64, error) {
	if err := validate(a); err != nil {
		return 0, err
	}
	if err := validate(b); err != nil {
		return 0, err
	}

	dLat := radians(b.Latitude - a.Latitude)
	dLon := radians(b.Longitude - a.Longitude)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)

	h := sinLat*sinLat +
		math.Cos(radians(a.Latitude))*math.Cos(radians(b.Latitude))*sinLon*sinLon

	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h)), nil
}

// DistancePointToSegmentKm returns the minimum distance from a point to the
// segment [segStart, segEnd]. The projection uses an equirectangular local
// approximation, acceptable at the tens-of-kilometers scale routes operate
// at; the projection parameter is clamped to [0,1]. A zero-length segment
// falls back to the haversine distance against the endpoint.
func DistancePointToSegmentKm(point, segStart, segEnd fleet.Coordinate) (float64, error) {
	for _, c := range []fleet.Coordinate{point, segStart, segEnd} {
		if err := validate(c); err != nil {
			return 0, err
		}
	}

	// Local planar frame centered on segStart; longitude is scaled by the
	// cosine of the latitude so east-west kilometers are not overcounted.
	latScale := EarthRadiusKm * math.Pi / 180
	lonScale := latScale * math.Cos(radians(segStart.Latitude))

	px := (point.Longitude - segStart.Longitude) * lonScale
	py := (point.Latitude - segStart.Latitude) * latScale
	ex := (segEnd.Longitude - segStart.Longitude) * lonScale
	ey := (segEnd.Latitude - segStart.Latitude) * latScale

	segLenSq := ex*ex + ey*ey
	if segLenSq == 0 {
		return HaversineKm(point, segStart)
	}

	t := (px*ex + py*ey) / segLenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}

	nearest := fleet.Coordinate{
		Latitude:  segStart.Latitude + t*(segEnd.Latitude-segStart.Latitude),
		Longitude: segStart.Longitude + t*(segEnd.Longitude-segStart.Longitude),
	}
	return HaversineKm(point, nearest)
}

// PathDistanceKm sums haversine legs over consecutive points.
func PathDistanceKm(points []fleet.Coordinate) (float64, error) {
	var total float64
	for i := 0; i+1 < len(points); i++ {
		d, err := HaversineKm(points[i], points[i+1])
		if err != nil {
			return 0, err
		}
		total += d
	}
	return total, nil
}

func validate(c fleet.Coordinate) error {
	if !inRange(c.Latitude, 90) || !inRange(c.Longitude, 180) {
		return fmt.Errorf("%w: lat=%v lon=%v", ErrInvalidCoordinate, c.Latitude, c.Longitude)
	}
	return nil
}

func inRange(v, bound float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= -bound && v <= bound
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
