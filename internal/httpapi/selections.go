package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"airgrid/planner-go/internal/planner"
	"airgrid/planner-go/internal/selection"
)

const (
	// Selecting more than this many devices at once needs an explicit
	// confirm flag from the client.
	selectAllConfirmThreshold = 50

	sessionMaxCount = 256
)

type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

type sessionEntry struct {
	controller *selection.Controller
	createdAt  time.Time
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*sessionEntry)}
}

func (r *sessionRegistry) add(c *selection.Controller) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sessions) >= sessionMaxCount {
		return "", false
	}
	id := newSessionID()
	r.sessions[id] = &sessionEntry{controller: c, createdAt: time.Now()}
	return id, true
}

func (r *sessionRegistry) get(id string) (*selection.Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return entry.controller, true
}

func (r *sessionRegistry) remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

func newSessionID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the OS entropy source is broken.
		panic(err)
	}
	return hex.EncodeToString(buf)
}

type selectionCreate struct {
	Weights            *planWeights `json:"weights,omitempty"`
	Home               *planHome    `json:"home,omitempty"`
	SuggestionBufferKm *float64     `json:"suggestion_buffer_km,omitempty"`
}

type selectionSnapshot struct {
	ID               string           `json:"id"`
	State            string           `json:"state"`
	RouteModeEnabled bool             `json:"route_mode_enabled"`
	SelectedIDs      []string         `json:"selected_ids"`
	Route            *routeJSON       `json:"route,omitempty"`
	Suggestions      []suggestionJSON `json:"suggestions"`
	Truncation       struct {
		Suggestions truncationMetric `json:"suggestions"`
	} `json:"truncation"`
}

func toSelectionSnapshot(id string, snap selection.Snapshot, suggestionLimit int) selectionSnapshot {
	out := selectionSnapshot{
		ID:               id,
		State:            string(snap.State),
		RouteModeEnabled: snap.RouteModeEnabled,
		SelectedIDs:      snap.SelectedIDs,
	}
	if out.SelectedIDs == nil {
		out.SelectedIDs = []string{}
	}
	if snap.Route != nil {
		route := toRouteJSON(snap.Route)
		out.Route = &route
	}

	suggestions := snap.Suggestions
	total := len(suggestions)
	truncated := total > suggestionLimit
	if truncated {
		suggestions = suggestions[:suggestionLimit]
	}
	out.Suggestions = toSuggestionJSON(suggestions)
	out.Truncation.Suggestions = truncationMetric{
		Returned:  len(out.Suggestions),
		Limit:     suggestionLimit,
		Truncated: truncated,
		Total:     &total,
	}
	return out
}

func (h *Handler) handleCreateSelection(w http.ResponseWriter, r *http.Request) {
	var req selectionCreate
	if r.ContentLength != 0 {
		if err := decodeJSONStrict(r, &req); err != nil {
			h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
			return
		}
	}

	opts := selection.Options{}
	if req.Weights != nil {
		opts.Weights = req.Weights.resolve()
	}
	if req.Home != nil {
		opts.Home = &planner.Home{Latitude: req.Home.Latitude, Longitude: req.Home.Longitude, Name: req.Home.Name}
	}
	if req.SuggestionBufferKm != nil {
		if *req.SuggestionBufferKm < 0 || *req.SuggestionBufferKm > planMaxBufferKm {
			h.writeError(w, http.StatusBadRequest, "validation_failed", "suggestion_buffer_km out of range",
				map[string]any{"max": planMaxBufferKm})
			return
		}
		opts.SuggestionBuffer = *req.SuggestionBufferKm
	}

	controller := selection.New(h.log, h.inventory.Devices, opts, h.metrics)
	id, ok := h.sessions.add(controller)
	if !ok {
		h.writeError(w, http.StatusServiceUnavailable, "too_many_sessions", "selection session limit reached", nil)
		return
	}

	h.log.Info().Str("session_id", id).Msg("selection session created")
	h.writeJSON(w, http.StatusCreated, toSelectionSnapshot(id, controller.Snapshot(), planDefaultSuggestions))
}

func (h *Handler) sessionFromRequest(w http.ResponseWriter, r *http.Request) (string, *selection.Controller, bool) {
	id := chi.URLParam(r, "sessionId")
	controller, ok := h.sessions.get(id)
	if !ok {
		h.writeError(w, http.StatusNotFound, "not_found", "selection session not found", map[string]any{"id": id})
		return "", nil, false
	}
	return id, controller, true
}

func (h *Handler) suggestionLimitFromRequest(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit, err := parseLimitParam(r.URL.Query().Get("limit"), planDefaultSuggestions, planMaxSuggestions)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid limit", map[string]any{"error": err.Error()})
		return 0, false
	}
	return limit, true
}

func (h *Handler) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	id, controller, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}
	limit, ok := h.suggestionLimitFromRequest(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, toSelectionSnapshot(id, controller.Snapshot(), limit))
}

func (h *Handler) handleDeleteSelection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionId")
	if !h.sessions.remove(id) {
		h.writeError(w, http.StatusNotFound, "not_found", "selection session not found", map[string]any{"id": id})
		return
	}
	h.log.Info().Str("session_id", id).Msg("selection session removed")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleToggleDevice(w http.ResponseWriter, r *http.Request) {
	id, controller, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}
	limit, ok := h.suggestionLimitFromRequest(w, r)
	if !ok {
		return
	}
	deviceID := strings.TrimSpace(chi.URLParam(r, "deviceId"))
	if deviceID == "" {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "device id is required", nil)
		return
	}
	h.writeJSON(w, http.StatusOK, toSelectionSnapshot(id, controller.ToggleDevice(deviceID), limit))
}

type routeModeRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *Handler) handleRouteMode(w http.ResponseWriter, r *http.Request) {
	id, controller, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}
	limit, ok := h.suggestionLimitFromRequest(w, r)
	if !ok {
		return
	}
	var req routeModeRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, toSelectionSnapshot(id, controller.SetRouteMode(req.Enabled), limit))
}

type selectAllRequest struct {
	DeviceIDs []string `json:"device_ids"`
	Confirm   bool     `json:"confirm,omitempty"`
}

func (h *Handler) handleSelectAll(w http.ResponseWriter, r *http.Request) {
	id, controller, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}
	limit, ok := h.suggestionLimitFromRequest(w, r)
	if !ok {
		return
	}
	var req selectAllRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}
	if len(req.DeviceIDs) == 0 {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "device_ids is required", nil)
		return
	}
	if len(req.DeviceIDs) > selectAllConfirmThreshold && !req.Confirm {
		h.writeError(w, http.StatusBadRequest, "confirmation_required", "selecting this many devices needs confirm=true",
			map[string]any{"count": len(req.DeviceIDs), "threshold": selectAllConfirmThreshold})
		return
	}
	h.writeJSON(w, http.StatusOK, toSelectionSnapshot(id, controller.SelectAllVisible(req.DeviceIDs), limit))
}

func (h *Handler) handleAcceptSuggestion(w http.ResponseWriter, r *http.Request) {
	id, controller, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}
	limit, ok := h.suggestionLimitFromRequest(w, r)
	if !ok {
		return
	}
	deviceID := strings.TrimSpace(chi.URLParam(r, "deviceId"))
	if deviceID == "" {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "device id is required", nil)
		return
	}

	suggested := false
	for _, s := range controller.Snapshot().Suggestions {
		if s.Device.ID == deviceID {
			suggested = true
			break
		}
	}
	if !suggested {
		h.writeError(w, http.StatusNotFound, "not_found", "device is not currently suggested", map[string]any{"id": deviceID})
		return
	}

	h.writeJSON(w, http.StatusOK, toSelectionSnapshot(id, controller.AcceptSuggestion(deviceID), limit))
}

func (h *Handler) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	id, controller, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}
	limit, ok := h.suggestionLimitFromRequest(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, toSelectionSnapshot(id, controller.Clear(), limit))
}
