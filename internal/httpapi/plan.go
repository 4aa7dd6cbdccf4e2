package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"airgrid/planner-go/internal/fleet"
	"airgrid/planner-go/internal/geomath"
	"airgrid/planner-go/internal/health"
	"airgrid/planner-go/internal/planner"
	"airgrid/planner-go/internal/suggest"
)

const (
	planDefaultSuggestions   = 20
	planMaxSuggestions       = 50
	planDefaultBufferKm      = 10.0
	planMaxBufferKm          = 100.0
	planMaxDevicesPerRequest = 500
)

type planWeights struct {
	Distance    *float64 `json:"distance,omitempty"`
	Criticality *float64 `json:"criticality,omitempty"`
	Zone        *float64 `json:"zone,omitempty"`
}

type planHome struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
}

type planDevice struct {
	ID                string  `json:"id"`
	Name              string  `json:"name,omitempty"`
	Latitude          float64 `json:"latitude"`
	Longitude         float64 `json:"longitude"`
	SiteName          string  `json:"site_name,omitempty"`
	Zone              string  `json:"zone,omitempty"`
	AvgUptimeHours    float64 `json:"avg_uptime_hours"`
	AvgErrorMarginPct float64 `json:"avg_error_margin_pct"`
}

type planRequest struct {
	DeviceIDs          []string     `json:"device_ids,omitempty"`
	Devices            []planDevice `json:"devices,omitempty"`
	Home               *planHome    `json:"home,omitempty"`
	Weights            *planWeights `json:"weights,omitempty"`
	SuggestionBufferKm *float64     `json:"suggestion_buffer_km,omitempty"`
	MaxSuggestions     *int         `json:"max_suggestions,omitempty"`
}

type routeStop struct {
	ID          string  `json:"id"`
	Name        string  `json:"name,omitempty"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	SiteName    string  `json:"site_name,omitempty"`
	Zone        string  `json:"zone,omitempty"`
	Criticality float64 `json:"criticality"`
}

type routeJSON struct {
	OrderedDevices     []routeStop `json:"ordered_devices"`
	TotalDistanceKm    float64     `json:"total_distance_km"`
	StopCount          int         `json:"stop_count"`
	AverageCriticality float64     `json:"average_criticality"`
	Home               *planHome   `json:"home,omitempty"`
}

type suggestionJSON struct {
	Device              routeStop `json:"device"`
	CriticalityGain     float64   `json:"criticality_gain"`
	DistanceFromRouteKm float64   `json:"distance_from_route_km"`
}

type truncationMetric struct {
	Returned  int     `json:"returned"`
	Limit     int     `json:"limit"`
	Truncated bool    `json:"truncated"`
	Total     *int    `json:"total,omitempty"`
	Warning   *string `json:"warning,omitempty"`
}

type planResponse struct {
	Route       routeJSON        `json:"route"`
	Suggestions []suggestionJSON `json:"suggestions"`
	Truncation  struct {
		Suggestions truncationMetric `json:"suggestions"`
	} `json:"truncation"`
}

func toRouteStop(d fleet.Device) routeStop {
	return routeStop{
		ID:          d.ID,
		Name:        d.DisplayName(),
		Latitude:    d.Latitude,
		Longitude:   d.Longitude,
		SiteName:    d.SiteName,
		Zone:        d.Zone,
		Criticality: health.CriticalityScore(d),
	}
}

func toRouteJSON(res *planner.Result) routeJSON {
	out := routeJSON{
		OrderedDevices:     make([]routeStop, 0, len(res.OrderedDevices)),
		TotalDistanceKm:    res.TotalDistanceKm,
		StopCount:          res.StopCount,
		AverageCriticality: res.AverageCriticality,
	}
	for _, d := range res.OrderedDevices {
		out.OrderedDevices = append(out.OrderedDevices, toRouteStop(d))
	}
	if res.Home != nil {
		out.Home = &planHome{Latitude: res.Home.Latitude, Longitude: res.Home.Longitude, Name: res.Home.Name}
	}
	return out
}

func toSuggestionJSON(items []suggest.Suggestion) []suggestionJSON {
	out := make([]suggestionJSON, 0, len(items))
	for _, s := range items {
		out = append(out, suggestionJSON{
			Device:              toRouteStop(s.Device),
			CriticalityGain:     s.CriticalityGain,
			DistanceFromRouteKm: s.DistanceFromRouteKm,
		})
	}
	return out
}

func (w planWeights) resolve() planner.Weights {
	out := planner.DefaultWeights()
	if w.Distance != nil {
		out.Distance = *w.Distance
	}
	if w.Criticality != nil {
		out.Criticality = *w.Criticality
	}
	if w.Zone != nil {
		out.Zone = *w.Zone
	}
	return out
}

func (h *Handler) handlePlanRoute(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}

	if len(req.DeviceIDs) > 0 && len(req.Devices) > 0 {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "provide device_ids or devices, not both", nil)
		return
	}
	if len(req.DeviceIDs) == 0 && len(req.Devices) == 0 {
		h.writeError(w, http.StatusBadRequest, "empty_route_request", "no devices to route", nil)
		return
	}
	if len(req.DeviceIDs) > planMaxDevicesPerRequest || len(req.Devices) > planMaxDevicesPerRequest {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "too many devices in one request",
			map[string]any{"limit": planMaxDevicesPerRequest})
		return
	}

	bufferKm := planDefaultBufferKm
	if req.SuggestionBufferKm != nil {
		bufferKm = *req.SuggestionBufferKm
		if bufferKm < 0 || bufferKm > planMaxBufferKm {
			h.writeError(w, http.StatusBadRequest, "validation_failed", "suggestion_buffer_km out of range",
				map[string]any{"max": planMaxBufferKm})
			return
		}
	}

	suggestionLimit := planDefaultSuggestions
	if req.MaxSuggestions != nil {
		suggestionLimit = *req.MaxSuggestions
		if suggestionLimit < 0 {
			h.writeError(w, http.StatusBadRequest, "validation_failed", "max_suggestions must be >= 0", nil)
			return
		}
		if suggestionLimit > planMaxSuggestions {
			suggestionLimit = planMaxSuggestions
		}
	}

	var devices []fleet.Device
	var pool []fleet.Device
	if len(req.DeviceIDs) > 0 {
		pool = h.inventory.Devices()
		byID := make(map[string]fleet.Device, len(pool))
		for _, d := range pool {
			byID[d.ID] = d
		}
		devices = make([]fleet.Device, 0, len(req.DeviceIDs))
		for _, id := range req.DeviceIDs {
			id = strings.TrimSpace(id)
			d, ok := byID[id]
			if !ok {
				h.writeError(w, http.StatusNotFound, "not_found", "device not in inventory", map[string]any{"id": id})
				return
			}
			devices = append(devices, d)
		}
	} else {
		devices = make([]fleet.Device, 0, len(req.Devices))
		for _, d := range req.Devices {
			if strings.TrimSpace(d.ID) == "" {
				h.writeError(w, http.StatusBadRequest, "validation_failed", "every device needs an id", nil)
				return
			}
			devices = append(devices, fleet.Device{
				ID:                strings.TrimSpace(d.ID),
				Name:              d.Name,
				Latitude:          d.Latitude,
				Longitude:         d.Longitude,
				SiteName:          d.SiteName,
				Zone:              d.Zone,
				AvgUptimeHours:    d.AvgUptimeHours,
				AvgErrorMarginPct: d.AvgErrorMarginPct,
			})
		}
		pool = devices
	}

	planReq := planner.Request{Devices: devices}
	if req.Home != nil {
		planReq.Home = &planner.Home{Latitude: req.Home.Latitude, Longitude: req.Home.Longitude, Name: req.Home.Name}
	}
	if req.Weights != nil {
		planReq.Weights = req.Weights.resolve()
	} else {
		planReq.Weights = planner.DefaultWeights()
	}

	start := time.Now()
	result, err := planner.Optimize(planReq)
	if err != nil {
		switch {
		case errors.Is(err, planner.ErrEmptyRouteRequest):
			h.writeError(w, http.StatusBadRequest, "empty_route_request", "no devices to route", nil)
		case errors.Is(err, planner.ErrDuplicateDeviceID):
			h.writeError(w, http.StatusBadRequest, "duplicate_device", err.Error(), nil)
		case errors.Is(err, planner.ErrNegativeWeight):
			h.writeError(w, http.StatusBadRequest, "validation_failed", err.Error(), nil)
		case errors.Is(err, geomath.ErrInvalidCoordinate):
			h.writeError(w, http.StatusBadRequest, "invalid_coordinate", err.Error(), nil)
		default:
			h.log.Error().Err(err).Msg("route optimization failed")
			h.writeError(w, http.StatusInternalServerError, "internal_error", "failed to compute route", nil)
		}
		return
	}
	h.metrics.IncRouteComputation()
	h.metrics.ObserveRouteComputationDuration(time.Since(start))

	excluded := make(map[string]struct{}, len(devices))
	for _, d := range devices {
		excluded[d.ID] = struct{}{}
	}

	// Suggestions come from the inventory snapshot even when the route was
	// built from inline devices, so there has to be a live inventory pool.
	candidates := pool
	if len(req.Devices) > 0 && h.inventory != nil {
		if inv := h.inventory.Devices(); len(inv) > 0 {
			candidates = inv
		}
	}

	suggestions, err := suggest.FindAlongRoute(result.Path(), candidates, excluded, bufferKm)
	if err != nil {
		h.log.Error().Err(err).Msg("suggestion scan failed")
		suggestions = nil
	}

	resp := planResponse{Route: toRouteJSON(result)}

	total := len(suggestions)
	truncated := total > suggestionLimit
	if truncated {
		suggestions = suggestions[:suggestionLimit]
	}
	resp.Suggestions = toSuggestionJSON(suggestions)
	resp.Truncation.Suggestions = truncationMetric{
		Returned:  len(resp.Suggestions),
		Limit:     suggestionLimit,
		Truncated: truncated,
		Total:     &total,
	}
	if truncated {
		warning := fmt.Sprintf("Suggestion cap hit: showing %d of %d.", len(resp.Suggestions), total)
		resp.Truncation.Suggestions.Warning = &warning
	}
	h.metrics.ObserveSuggestionCount(len(resp.Suggestions))

	h.writeJSON(w, http.StatusOK, resp)
}

func parseLimitParam(value string, fallback, max int) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.New("invalid value")
	}
	if parsed < 0 {
		return 0, errors.New("must be non-negative")
	}
	if parsed > max {
		parsed = max
	}
	return parsed, nil
}
