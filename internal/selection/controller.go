// Package selection owns the mutable state a maintenance map view binds
// to: which devices are picked, whether route mode is on, and the derived
// route and opportunistic-stop suggestions. Everything else in the planner
// core is pure; this is the one place with state.
package selection

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"airgrid/planner-go/internal/fleet"
	"airgrid/planner-go/internal/metrics"
	"airgrid/planner-go/internal/planner"
	"airgrid/planner-go/internal/suggest"
)

// State names the controller's position in its lifecycle.
type State string

const (
	StateIdle      State = "idle"
	StateSelecting State = "selecting"
	StateRouting   State = "routing"
)

// InventoryFunc supplies the current device inventory. It is called under
// the controller lock during recompute, so it must be cheap; the inventory
// layer serves an in-memory snapshot.
type InventoryFunc func() []fleet.Device

// Options tunes a controller. Zero values fall back to observed defaults.
type Options struct {
	Weights          planner.Weights
	Home             *planner.Home
	SuggestionBuffer float64
}

// Controller serializes all mutations behind a mutex so concurrent UI
// events cannot interleave; each mutation plus its recompute is atomic as
// a unit, and readers only ever see a complete snapshot.
type Controller struct {
	mu sync.Mutex

	log       zerolog.Logger
	inventory InventoryFunc
	weights   planner.Weights
	home      *planner.Home
	bufferKm  float64
	metrics   *metrics.Metrics

	selected    map[string]struct{}
	routeMode   bool
	lastRoute   *planner.Result
	suggestions []suggest.Suggestion
}

// New creates an idle controller with an empty selection.
func New(log zerolog.Logger, inventory InventoryFunc, opts Options, m *metrics.Metrics) *Controller {
	weights := opts.Weights
	if weights == (planner.Weights{}) {
		weights = planner.DefaultWeights()
	}
	buffer := opts.SuggestionBuffer
	if buffer <= 0 {
		buffer = 10
	}

	return &Controller{
		log:       log,
		inventory: inventory,
		weights:   weights,
		home:      opts.Home,
		bufferKm:  buffer,
		metrics:   m,
		selected:  make(map[string]struct{}),
	}
}

// Snapshot is an immutable view of the controller published to readers.
type Snapshot struct {
	SelectedIDs      []string
	RouteModeEnabled bool
	State            State
	Route            *planner.Result
	Suggestions      []suggest.Suggestion
}

// Snapshot returns the current derived state. Never stale: every mutation
// recomputes synchronously before releasing the lock.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	ids := make([]string, 0, len(c.selected))
	for id := range c.selected {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	suggestions := append([]suggest.Suggestion(nil), c.suggestions...)

	return Snapshot{
		SelectedIDs:      ids,
		RouteModeEnabled: c.routeMode,
		State:            c.stateLocked(),
		Route:            c.lastRoute,
		Suggestions:      suggestions,
	}
}

func (c *Controller) stateLocked() State {
	switch {
	case c.routeMode && c.lastRoute != nil:
		return StateRouting
	case len(c.selected) > 0:
		return StateSelecting
	default:
		return StateIdle
	}
}

// ToggleDevice adds or removes a device from the selection. With route
// mode on, the route and suggestions are recomputed before returning.
func (c *Controller) ToggleDevice(id string) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.selected[id]; ok {
		delete(c.selected, id)
	} else {
		c.selected[id] = struct{}{}
	}
	c.recomputeLocked()
	return c.snapshotLocked()
}

// SetRouteMode switches routing on or off. Turning it off clears the
// computed route and suggestions but keeps the selection.
func (c *Controller) SetRouteMode(enabled bool) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.routeMode = enabled
	c.recomputeLocked()
	return c.snapshotLocked()
}

// SelectAllVisible replaces the selection with the given device ids and
// forces route mode on. Gating large selections behind a confirmation is
// the caller's job; the controller does no I/O.
func (c *Controller) SelectAllVisible(ids []string) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.selected = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		c.selected[id] = struct{}{}
	}
	c.routeMode = true
	c.recomputeLocked()
	return c.snapshotLocked()
}

// AcceptSuggestion moves a suggested device into the selection. By
// construction it disappears from future suggestion lists: selected ids
// are excluded from the search.
func (c *Controller) AcceptSuggestion(id string) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.selected[id] = struct{}{}
	c.recomputeLocked()
	return c.snapshotLocked()
}

// Clear empties the selection, turns route mode off, and drops all derived
// state. The controller returns to idle.
func (c *Controller) Clear() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.selected = make(map[string]struct{})
	c.routeMode = false
	c.lastRoute = nil
	c.suggestions = nil
	return c.snapshotLocked()
}

// recomputeLocked rebuilds the route and suggestions from the current
// selection. Fewer than two routable devices while route mode is on is a
// normal mid-selection condition, not an error: it simply produces no
// route and no suggestions.
func (c *Controller) recomputeLocked() {
	c.lastRoute = nil
	c.suggestions = nil

	if !c.routeMode || len(c.selected) < 2 {
		return
	}

	inventory := c.inventory()

	devices := make([]fleet.Device, 0, len(c.selected))
	for _, d := range inventory {
		if _, ok := c.selected[d.ID]; !ok {
			continue
		}
		if !d.HasCoordinates() {
			// A malformed record upstream; drop the device from the tour
			// rather than aborting the whole route.
			c.log.Warn().Str("device_id", d.ID).Msg("selected device has invalid coordinates, excluding from route")
			continue
		}
		devices = append(devices, d)
	}

	if len(devices) < 2 {
		return
	}

	result, err := planner.Optimize(planner.Request{
		Devices: devices,
		Home:    c.home,
		Weights: c.weights,
	})
	if err != nil {
		// Preconditions are validated above, so this is a data-integrity
		// bug; degrade to no route instead of surfacing it to the view.
		c.log.Error().Err(err).Msg("route recompute failed")
		return
	}
	c.lastRoute = result
	c.metrics.IncRouteComputation()

	exclude := make(map[string]struct{}, len(c.selected))
	for id := range c.selected {
		exclude[id] = struct{}{}
	}
	suggestions, err := suggest.FindAlongRoute(result.Path(), inventory, exclude, c.bufferKm)
	if err != nil {
		c.log.Error().Err(err).Msg("suggestion scan failed")
		suggestions = nil
	}
	c.suggestions = suggestions
	c.metrics.ObserveSuggestionCount(len(suggestions))
}
