package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"airgrid/planner-go/internal/fleet"
	"airgrid/planner-go/internal/sqlcgen"
)

type fakeQueries struct {
	listFn func(ctx context.Context) ([]sqlcgen.Device, error)
}

func (f fakeQueries) ListRoutableDevices(ctx context.Context) ([]sqlcgen.Device, error) {
	return f.listFn(ctx)
}

func ptr[T any](v T) *T { return &v }

func TestRefreshOnce_SwapsSnapshot(t *testing.T) {
	rows := []sqlcgen.Device{
		{
			ID:                "aq-1",
			Name:              ptr("Kololo Primary"),
			Latitude:          ptr(0.34),
			Longitude:         ptr(32.59),
			SiteName:          ptr("Kololo"),
			AvgUptimeHours:    ptr(21.0),
			AvgErrorMarginPct: ptr(8.0),
		},
		{ID: "aq-2", Latitude: ptr(0.31), Longitude: ptr(32.57)},
	}
	s := New(zerolog.Nop(), fakeQueries{listFn: func(context.Context) ([]sqlcgen.Device, error) {
		return rows, nil
	}}, Options{}, nil)

	if got := s.Devices(); len(got) != 0 {
		t.Fatalf("expected empty snapshot before refresh, got %d", len(got))
	}

	if err := s.RefreshOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	devices := s.Devices()
	if len(devices) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(devices))
	}
	if devices[0].Name != "Kololo Primary" || devices[0].AvgUptimeHours != 21 {
		t.Fatalf("expected row fields carried over, got %+v", devices[0])
	}
	if devices[1].Name != "" || devices[1].AvgUptimeHours != 0 {
		t.Fatalf("expected nil row fields to stay zero, got %+v", devices[1])
	}
}

func TestRefreshOnce_SkipsRowsWithoutCoordinates(t *testing.T) {
	rows := []sqlcgen.Device{
		{ID: "ok", Latitude: ptr(0.3), Longitude: ptr(32.5)},
		{ID: "no-lat", Longitude: ptr(32.5)},
		{ID: "no-lon", Latitude: ptr(0.3)},
	}
	s := New(zerolog.Nop(), fakeQueries{listFn: func(context.Context) ([]sqlcgen.Device, error) {
		return rows, nil
	}}, Options{}, nil)

	if err := s.RefreshOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	devices := s.Devices()
	if len(devices) != 1 || devices[0].ID != "ok" {
		t.Fatalf("expected only the complete row, got %+v", devices)
	}
}

func TestRefreshOnce_AnnotatesZones(t *testing.T) {
	zones, err := fleet.ParseZoneRegistry([]byte(`
zones:
  - name: central
    sites: [Kololo]
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows := []sqlcgen.Device{
		{ID: "aq-1", Latitude: ptr(0.3), Longitude: ptr(32.5), SiteName: ptr("Kololo")},
		{ID: "aq-2", Latitude: ptr(0.4), Longitude: ptr(32.6), SiteName: ptr("Ntinda")},
	}
	s := New(zerolog.Nop(), fakeQueries{listFn: func(context.Context) ([]sqlcgen.Device, error) {
		return rows, nil
	}}, Options{Zones: zones}, nil)

	if err := s.RefreshOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	devices := s.Devices()
	if devices[0].Zone != "central" {
		t.Fatalf("expected zone annotation, got %q", devices[0].Zone)
	}
	if devices[1].Zone != "" {
		t.Fatalf("expected unknown site to stay zoneless, got %q", devices[1].Zone)
	}
}

func TestRefreshOnce_KeepsOldSnapshotOnError(t *testing.T) {
	calls := 0
	s := New(zerolog.Nop(), fakeQueries{listFn: func(context.Context) ([]sqlcgen.Device, error) {
		calls++
		if calls == 1 {
			return []sqlcgen.Device{{ID: "aq-1", Latitude: ptr(0.3), Longitude: ptr(32.5)}}, nil
		}
		return nil, errors.New("db down")
	}}, Options{}, nil)

	if err := s.RefreshOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.RefreshOnce(context.Background()); err == nil {
		t.Fatalf("expected error on second refresh")
	}
	if devices := s.Devices(); len(devices) != 1 {
		t.Fatalf("expected old snapshot preserved after failure, got %d devices", len(devices))
	}
}

func TestBackoffDuration(t *testing.T) {
	base := 30 * time.Second
	if got := backoffDuration(base, 0); got != base {
		t.Fatalf("expected base on no failures, got %v", got)
	}
	if got := backoffDuration(base, 1); got != 2*base {
		t.Fatalf("expected doubled interval, got %v", got)
	}
	if got := backoffDuration(base, 10); got != 5*time.Minute {
		t.Fatalf("expected cap at 5m, got %v", got)
	}
}
