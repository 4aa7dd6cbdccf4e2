package health

import "airgrid/planner-go/internal/fleet"

// Status buckets a telemetry reading for display and filtering.
type Status string

const (
	StatusGood     Status = "good"
	StatusModerate Status = "moderate"
	StatusCritical Status = "critical"
)

// Thresholds, in percent. Uptime is judged against the share of a 24h day
// the device reported data; error margin against fixed accuracy bands.
const (
	uptimeGoodPct     = 85.0
	uptimeModeratePct = 50.0
	errorGoodPct      = 10.0
	errorModeratePct  = 20.0
)

// Assessment is the derived health view of a device. It is recomputed on
// demand and never persisted; telemetry rollups can change between calls.
type Assessment struct {
	UptimeStatus Status
	ErrorStatus  Status
	Criticality  float64
}

// UptimeStatus buckets mean daily reporting hours.
func UptimeStatus(avgUptimeHours float64) Status {
	pct := uptimePct(avgUptimeHours)
	switch {
	case pct >= uptimeGoodPct:
		return StatusGood
	case pct >= uptimeModeratePct:
		return StatusModerate
	default:
		return StatusCritical
	}
}

// ErrorMarginStatus buckets mean measurement error margin.
func ErrorMarginStatus(avgErrorMarginPct float64) Status {
	switch {
	case avgErrorMarginPct <= errorGoodPct:
		return StatusGood
	case avgErrorMarginPct <= errorModeratePct:
		return StatusModerate
	default:
		return StatusCritical
	}
}

// CriticalityScore composes availability and accuracy risk into a single
// 0-100 urgency figure: equal weight to lost uptime and to error margin,
// with the margin capped at 100 so a wild sensor cannot dominate alone.
func CriticalityScore(d fleet.Device) float64 {
	score := (100-uptimePct(d.AvgUptimeHours))*0.5 + min(d.AvgErrorMarginPct, 100)*0.5
	return clamp(score, 0, 100)
}

// Assess derives the full health view of a device.
func Assess(d fleet.Device) Assessment {
	return Assessment{
		UptimeStatus: UptimeStatus(d.AvgUptimeHours),
		ErrorStatus:  ErrorMarginStatus(d.AvgErrorMarginPct),
		Criticality:  CriticalityScore(d),
	}
}

func uptimePct(avgUptimeHours float64) float64 {
	return clamp(avgUptimeHours/24*100, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
