package sqlcgen

import "time"

type Device struct {
	ID                string
	Name              *string
	Latitude          *float64
	Longitude         *float64
	SiteName          *string
	AvgUptimeHours    *float64
	AvgErrorMarginPct *float64
	UpdatedAt         time.Time
}

type TelemetryReport struct {
	DeviceID       string
	UptimeHours    float64
	ErrorMarginPct float64
	ReportedAt     time.Time
}
