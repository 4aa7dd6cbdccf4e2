package fleet

import (
	"math"
	"strings"
)

// Device is a monitor in the field as the planner core sees it: identity,
// position, and the telemetry rollups that drive maintenance criticality.
// Instances are treated as read-only; the inventory layer owns refresh.
type Device struct {
	ID                string
	Name              string
	Latitude          float64
	Longitude         float64
	AvgUptimeHours    float64
	AvgErrorMarginPct float64
	SiteName          string
	Zone              string
}

// HasCoordinates reports whether both coordinates are present and finite.
// Devices failing this are not routable and are excluded upstream.
func (d Device) HasCoordinates() bool {
	return isFiniteCoord(d.Latitude, 90) && isFiniteCoord(d.Longitude, 180)
}

func isFiniteCoord(v, bound float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= -bound && v <= bound
}

// DisplayName returns the device name, falling back to the id.
func (d Device) DisplayName() string {
	if name := strings.TrimSpace(d.Name); name != "" {
		return name
	}
	return d.ID
}

// Coordinate is a bare WGS84 position, used for route polylines and the
// optional home/depot location.
type Coordinate struct {
	Latitude  float64
	Longitude float64
}

// Position returns the device location as a Coordinate.
func (d Device) Position() Coordinate {
	return Coordinate{Latitude: d.Latitude, Longitude: d.Longitude}
}
