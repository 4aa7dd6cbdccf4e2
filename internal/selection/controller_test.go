package selection

import (
	"testing"

	"github.com/rs/zerolog"

	"airgrid/planner-go/internal/fleet"
	"airgrid/planner-go/internal/planner"
)

func testInventory() []fleet.Device {
	return []fleet.Device{
		{ID: "aq-1", Latitude: 0, Longitude: 0, AvgUptimeHours: 24},
		{ID: "aq-2", Latitude: 0, Longitude: 0.1, AvgUptimeHours: 24},
		{ID: "aq-3", Latitude: 0, Longitude: 0.2, AvgUptimeHours: 0, AvgErrorMarginPct: 100},
		// Near the aq-1..aq-2 leg, never selected by default.
		{ID: "aq-4", Latitude: 0.01, Longitude: 0.05, AvgUptimeHours: 6, AvgErrorMarginPct: 30},
	}
}

func newTestController(inventory []fleet.Device) *Controller {
	return New(zerolog.Nop(), func() []fleet.Device { return inventory }, Options{}, nil)
}

func TestController_StartsIdle(t *testing.T) {
	c := newTestController(testInventory())

	snap := c.Snapshot()
	if snap.State != StateIdle {
		t.Fatalf("expected idle, got %s", snap.State)
	}
	if len(snap.SelectedIDs) != 0 || snap.Route != nil || len(snap.Suggestions) != 0 {
		t.Fatalf("expected empty initial state, got %+v", snap)
	}
}

func TestController_ToggleMovesThroughStates(t *testing.T) {
	c := newTestController(testInventory())

	snap := c.ToggleDevice("aq-1")
	if snap.State != StateSelecting {
		t.Fatalf("expected selecting after first toggle, got %s", snap.State)
	}

	snap = c.SetRouteMode(true)
	// One device in route mode is a normal mid-selection condition: no
	// route, no error.
	if snap.Route != nil {
		t.Fatalf("expected no route with a single device, got %+v", snap.Route)
	}
	if snap.State != StateSelecting {
		t.Fatalf("expected selecting, got %s", snap.State)
	}

	snap = c.ToggleDevice("aq-2")
	if snap.State != StateRouting {
		t.Fatalf("expected routing with two devices, got %s", snap.State)
	}
	if snap.Route == nil || snap.Route.StopCount != 2 {
		t.Fatalf("expected a 2-stop route, got %+v", snap.Route)
	}

	snap = c.ToggleDevice("aq-2")
	if snap.Route != nil {
		t.Fatalf("expected route dropped after deselect, got %+v", snap.Route)
	}
}

func TestController_SetRouteModeOffKeepsSelection(t *testing.T) {
	c := newTestController(testInventory())
	c.ToggleDevice("aq-1")
	c.ToggleDevice("aq-2")
	c.SetRouteMode(true)

	snap := c.SetRouteMode(false)
	if snap.Route != nil || len(snap.Suggestions) != 0 {
		t.Fatalf("expected derived state cleared, got %+v", snap)
	}
	if len(snap.SelectedIDs) != 2 {
		t.Fatalf("expected selection preserved, got %v", snap.SelectedIDs)
	}
}

func TestController_SuggestionsExcludeSelection(t *testing.T) {
	c := newTestController(testInventory())
	c.ToggleDevice("aq-1")
	c.ToggleDevice("aq-2")
	snap := c.SetRouteMode(true)

	if snap.Route == nil {
		t.Fatalf("expected a route")
	}
	if len(snap.Suggestions) == 0 {
		t.Fatalf("expected aq-4 suggested near the leg")
	}
	selected := make(map[string]struct{})
	for _, id := range snap.SelectedIDs {
		selected[id] = struct{}{}
	}
	for _, s := range snap.Suggestions {
		if _, ok := selected[s.Device.ID]; ok {
			t.Fatalf("device %s in both selection and suggestions", s.Device.ID)
		}
	}
}

func TestController_AcceptSuggestionMovesDeviceIntoSelection(t *testing.T) {
	c := newTestController(testInventory())
	c.ToggleDevice("aq-1")
	c.ToggleDevice("aq-2")
	snap := c.SetRouteMode(true)

	var suggested string
	for _, s := range snap.Suggestions {
		if s.Device.ID == "aq-4" {
			suggested = s.Device.ID
		}
	}
	if suggested == "" {
		t.Fatalf("expected aq-4 in suggestions, got %+v", snap.Suggestions)
	}

	snap = c.AcceptSuggestion(suggested)
	if snap.Route == nil || snap.Route.StopCount != 3 {
		t.Fatalf("expected 3-stop route after accept, got %+v", snap.Route)
	}
	for _, s := range snap.Suggestions {
		if s.Device.ID == suggested {
			t.Fatalf("accepted device still suggested")
		}
	}
}

func TestController_SelectAllVisibleForcesRouteMode(t *testing.T) {
	c := newTestController(testInventory())

	snap := c.SelectAllVisible([]string{"aq-1", "aq-2", "aq-3"})
	if !snap.RouteModeEnabled {
		t.Fatalf("expected route mode forced on")
	}
	if snap.State != StateRouting {
		t.Fatalf("expected routing, got %s", snap.State)
	}
	if snap.Route == nil || snap.Route.StopCount != 3 {
		t.Fatalf("expected 3-stop route, got %+v", snap.Route)
	}
}

func TestController_ClearReturnsToIdle(t *testing.T) {
	c := newTestController(testInventory())
	c.SelectAllVisible([]string{"aq-1", "aq-2"})

	snap := c.Clear()
	if snap.State != StateIdle {
		t.Fatalf("expected idle after clear, got %s", snap.State)
	}
	if len(snap.SelectedIDs) != 0 || snap.RouteModeEnabled || snap.Route != nil || len(snap.Suggestions) != 0 {
		t.Fatalf("expected everything cleared, got %+v", snap)
	}
}

func TestController_ExcludesMalformedDevicesFromRoute(t *testing.T) {
	inventory := append(testInventory(), fleet.Device{ID: "broken", Latitude: 400, Longitude: 0})
	c := newTestController(inventory)

	snap := c.SelectAllVisible([]string{"aq-1", "aq-2", "broken"})
	if snap.Route == nil {
		t.Fatalf("expected a route despite the malformed record")
	}
	if snap.Route.StopCount != 2 {
		t.Fatalf("expected malformed device excluded, got %d stops", snap.Route.StopCount)
	}
}

func TestController_MostCriticalVisitedEarly(t *testing.T) {
	c := New(zerolog.Nop(), func() []fleet.Device { return testInventory() }, Options{
		Weights: planner.Weights{Criticality: 1},
	}, nil)

	snap := c.SelectAllVisible([]string{"aq-1", "aq-2", "aq-3"})
	if snap.Route.OrderedDevices[0].ID != "aq-3" {
		t.Fatalf("expected dead device first, got %s", snap.Route.OrderedDevices[0].ID)
	}
}

func TestController_UnknownSelectedIDDegrades(t *testing.T) {
	c := newTestController(testInventory())

	snap := c.SelectAllVisible([]string{"aq-1", "ghost"})
	// Only one routable device resolves from the inventory; degrade, don't error.
	if snap.Route != nil {
		t.Fatalf("expected no route, got %+v", snap.Route)
	}
}
