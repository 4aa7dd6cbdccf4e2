// Package inventory keeps an in-memory snapshot of the routable device
// fleet, refreshed from Postgres on an interval. The planner core only
// ever reads complete snapshots; a refresh swaps the whole slice at once.
package inventory

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"airgrid/planner-go/internal/fleet"
	"airgrid/planner-go/internal/metrics"
	"airgrid/planner-go/internal/sqlcgen"
)

// Queries is the minimal DB interface the inventory needs.
//
// NOTE: planner-go uses sqlc-style queries for DB access. *sqlcgen.Queries
// satisfies this.
type Queries interface {
	ListRoutableDevices(ctx context.Context) ([]sqlcgen.Device, error)
}

type Service struct {
	log          zerolog.Logger
	q            Queries
	pollInterval time.Duration
	queryTimeout time.Duration
	zones        *fleet.ZoneRegistry
	metrics      *metrics.Metrics

	snapshot atomic.Pointer[[]fleet.Device]
}

type Options struct {
	PollInterval time.Duration
	QueryTimeout time.Duration
	Zones        *fleet.ZoneRegistry
}

func New(log zerolog.Logger, q Queries, opts Options, m *metrics.Metrics) *Service {
	pi := opts.PollInterval
	if pi <= 0 {
		pi = 30 * time.Second
	}
	qt := opts.QueryTimeout
	if qt <= 0 {
		qt = 5 * time.Second
	}

	s := &Service{
		log:          log,
		q:            q,
		pollInterval: pi,
		queryTimeout: qt,
		zones:        opts.Zones,
		metrics:      m,
	}
	empty := []fleet.Device{}
	s.snapshot.Store(&empty)
	return s
}

// Devices returns the current inventory snapshot. Callers must treat the
// slice as read-only; it is shared until the next refresh swaps it out.
func (s *Service) Devices() []fleet.Device {
	if s == nil {
		return nil
	}
	return *s.snapshot.Load()
}

// Run refreshes the snapshot until the context is canceled. Failures back
// off exponentially so a flapping database is not hammered.
func (s *Service) Run(ctx context.Context) {
	if s == nil || s.q == nil {
		return
	}

	// Prime the snapshot before settling into the poll loop.
	if err := s.RefreshOnce(ctx); err != nil {
		s.log.Warn().Err(err).Msg("initial inventory refresh failed")
	}

	timer := time.NewTimer(s.pollInterval)
	defer timer.Stop()

	var consecutiveFailures int
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if err := s.RefreshOnce(ctx); err != nil {
			consecutiveFailures++
			s.log.Error().Err(err).Int("consecutive_failures", consecutiveFailures).Msg("inventory refresh failed")
		} else {
			consecutiveFailures = 0
		}

		timer.Reset(backoffDuration(s.pollInterval, consecutiveFailures))
	}
}

func backoffDuration(base time.Duration, failures int) time.Duration {
	if base <= 0 {
		base = 30 * time.Second
	}
	if failures <= 0 {
		return base
	}

	// Exponential-ish backoff: base * 2^failures, capped.
	if failures > 4 {
		failures = 4
	}
	d := base * time.Duration(1<<failures)
	if d > 5*time.Minute {
		return 5 * time.Minute
	}
	return d
}

// RefreshOnce loads the routable fleet from the store and swaps it in.
func (s *Service) RefreshOnce(ctx context.Context) error {
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	rows, err := s.q.ListRoutableDevices(queryCtx)
	if err != nil {
		return err
	}

	devices := make([]fleet.Device, 0, len(rows))
	for _, row := range rows {
		d, ok := rowToDevice(row)
		if !ok {
			s.log.Warn().Str("device_id", row.ID).Msg("device row missing coordinates, skipping")
			continue
		}
		devices = append(devices, d)
	}
	devices = s.zones.Annotate(devices)

	s.snapshot.Store(&devices)
	s.metrics.IncInventoryRefresh()
	s.metrics.SetInventoryDevices(len(devices))
	s.log.Debug().Int("devices", len(devices)).Msg("inventory refreshed")
	return nil
}

func rowToDevice(row sqlcgen.Device) (fleet.Device, bool) {
	if row.Latitude == nil || row.Longitude == nil {
		return fleet.Device{}, false
	}

	d := fleet.Device{
		ID:        row.ID,
		Latitude:  *row.Latitude,
		Longitude: *row.Longitude,
	}
	if row.Name != nil {
		d.Name = *row.Name
	}
	if row.SiteName != nil {
		d.SiteName = *row.SiteName
	}
	if row.AvgUptimeHours != nil {
		d.AvgUptimeHours = *row.AvgUptimeHours
	}
	if row.AvgErrorMarginPct != nil {
		d.AvgErrorMarginPct = *row.AvgErrorMarginPct
	}
	if !d.HasCoordinates() {
		return fleet.Device{}, false
	}
	return d, true
}
