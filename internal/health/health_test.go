package health

import (
	"testing"

	"airgrid/planner-go/internal/fleet"
)

func TestUptimeStatus_Buckets(t *testing.T) {
	cases := []struct {
		hours float64
		want  Status
	}{
		{24, StatusGood},
		{20.4, StatusGood}, // exactly 85% of 24h
		{12, StatusModerate},
		{6, StatusCritical},
		{0, StatusCritical},
	}
	for _, c := range cases {
		if got := UptimeStatus(c.hours); got != c.want {
			t.Fatalf("UptimeStatus(%v): expected %s, got %s", c.hours, c.want, got)
		}
	}
}

func TestErrorMarginStatus_Buckets(t *testing.T) {
	cases := []struct {
		pct  float64
		want Status
	}{
		{0, StatusGood},
		{10, StatusGood},
		{10.01, StatusModerate},
		{20, StatusModerate},
		{20.5, StatusCritical},
		{250, StatusCritical},
	}
	for _, c := range cases {
		if got := ErrorMarginStatus(c.pct); got != c.want {
			t.Fatalf("ErrorMarginStatus(%v): expected %s, got %s", c.pct, c.want, got)
		}
	}
}

func TestCriticalityScore_Bounds(t *testing.T) {
	healthy := fleet.Device{AvgUptimeHours: 24, AvgErrorMarginPct: 0}
	if got := CriticalityScore(healthy); got != 0 {
		t.Fatalf("expected 0 for a healthy device, got %v", got)
	}

	dead := fleet.Device{AvgUptimeHours: 0, AvgErrorMarginPct: 100}
	if got := CriticalityScore(dead); got != 100 {
		t.Fatalf("expected 100 for a dead device, got %v", got)
	}

	// Error margin beyond 100 is capped; score must stay in [0,100].
	wild := fleet.Device{AvgUptimeHours: 0, AvgErrorMarginPct: 400}
	if got := CriticalityScore(wild); got != 100 {
		t.Fatalf("expected clamp to 100, got %v", got)
	}
}

func TestCriticalityScore_MonotonicInUptime(t *testing.T) {
	prev := -1.0
	for hours := 24.0; hours >= 0; hours -= 0.5 {
		got := CriticalityScore(fleet.Device{AvgUptimeHours: hours, AvgErrorMarginPct: 15})
		if got < prev {
			t.Fatalf("score decreased from %v to %v as uptime dropped to %v", prev, got, hours)
		}
		prev = got
	}
}

func TestCriticalityScore_MonotonicInErrorMargin(t *testing.T) {
	prev := -1.0
	for pct := 0.0; pct <= 150; pct += 5 {
		got := CriticalityScore(fleet.Device{AvgUptimeHours: 18, AvgErrorMarginPct: pct})
		if got < prev {
			t.Fatalf("score decreased from %v to %v as error margin rose to %v", prev, got, pct)
		}
		prev = got
	}
}

func TestAssess_Composite(t *testing.T) {
	a := Assess(fleet.Device{AvgUptimeHours: 12, AvgErrorMarginPct: 30})
	if a.UptimeStatus != StatusModerate {
		t.Fatalf("expected moderate uptime, got %s", a.UptimeStatus)
	}
	if a.ErrorStatus != StatusCritical {
		t.Fatalf("expected critical error status, got %s", a.ErrorStatus)
	}
	// (100-50)*0.5 + 30*0.5 = 40
	if a.Criticality != 40 {
		t.Fatalf("expected criticality 40, got %v", a.Criticality)
	}
}
