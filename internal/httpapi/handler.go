package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"airgrid/planner-go/internal/db"
	"airgrid/planner-go/internal/fleet"
	"airgrid/planner-go/internal/health"
	"airgrid/planner-go/internal/metrics"
	"airgrid/planner-go/internal/planner"
	"airgrid/planner-go/internal/sqlcgen"
)

// Inventory is the read side of the device snapshot the planner works from.
type Inventory interface {
	Devices() []fleet.Device
}

type deviceQueries interface {
	ListDevices(ctx context.Context) ([]sqlcgen.Device, error)
	ListDevicesBySite(ctx context.Context, siteName string) ([]sqlcgen.Device, error)
	GetDevice(ctx context.Context, id string) (sqlcgen.Device, error)
	CreateDevice(ctx context.Context, arg sqlcgen.CreateDeviceParams) (sqlcgen.Device, error)
	UpdateDevice(ctx context.Context, arg sqlcgen.UpdateDeviceParams) (sqlcgen.Device, error)
}

type Handler struct {
	log       zerolog.Logger
	pool      *db.Pool
	devices   deviceQueries
	inventory Inventory
	metrics   *metrics.Metrics
	sessions  *sessionRegistry
}

func NewHandler(log zerolog.Logger, pool *db.Pool, inv Inventory, m *metrics.Metrics) *Handler {
	h := &Handler{
		log:       log,
		pool:      pool,
		inventory: inv,
		metrics:   m,
		sessions:  newSessionRegistry(),
	}
	if pool != nil {
		h.devices = pool.Queries()
	}
	return h
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(h.accessLog)

	// Health
	r.Get("/healthz", h.handleHealthz)
	r.Get("/readyz", h.handleReadyZ)
	r.Get("/metrics", h.metrics.Handler().ServeHTTP)

	// API
	r.Route("/api", func(r chi.Router) {
		r.Route("/v1", func(r chi.Router) {
			r.Route("/devices", func(r chi.Router) {
				r.Get("/", h.handleListDevices)
				r.Post("/", h.handleCreateDevice)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.handleGetDevice)
					r.Put("/", h.handleUpdateDevice)
				})
			})

			r.Route("/routes", func(r chi.Router) {
				r.Post("/plan", h.handlePlanRoute)
			})

			r.Route("/selections", func(r chi.Router) {
				r.Post("/", h.handleCreateSelection)
				r.Route("/{sessionId}", func(r chi.Router) {
					r.Get("/", h.handleGetSelection)
					r.Delete("/", h.handleDeleteSelection)
					r.Post("/toggle/{deviceId}", h.handleToggleDevice)
					r.Post("/route-mode", h.handleRouteMode)
					r.Post("/select-all", h.handleSelectAll)
					r.Post("/accept/{deviceId}", h.handleAcceptSuggestion)
					r.Post("/clear", h.handleClearSelection)
				})
			})
		})
	})

	return r
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		h.metrics.ObserveHTTPRequest(r.Method, route, ww.Status(), duration)

		h.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Int64("duration_ms", duration.Milliseconds()).
			Msg("http_request")
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	resp := map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
		},
	}
	if details != nil {
		resp["error"].(map[string]any)["details"] = details
	}
	h.writeJSON(w, status, resp)
}

func decodeJSONStrict(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return errors.New("unexpected extra data after JSON body")
		}
		return err
	}
	return nil
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleReadyZ(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.pool == nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not configured", nil)
		return
	}

	if err := h.pool.Ping(ctx); err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not ready", map[string]any{"error": err.Error()})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}

type deviceHealth struct {
	UptimeStatus string  `json:"uptime_status"`
	ErrorStatus  string  `json:"error_status"`
	Criticality  float64 `json:"criticality"`
}

type device struct {
	ID                string        `json:"id"`
	Name              *string       `json:"name,omitempty"`
	Latitude          *float64      `json:"latitude,omitempty"`
	Longitude         *float64      `json:"longitude,omitempty"`
	SiteName          *string       `json:"site_name,omitempty"`
	AvgUptimeHours    *float64      `json:"avg_uptime_hours,omitempty"`
	AvgErrorMarginPct *float64      `json:"avg_error_margin_pct,omitempty"`
	Health            *deviceHealth `json:"health,omitempty"`
}

type deviceCreate struct {
	ID        string   `json:"id"`
	Name      *string  `json:"name,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	SiteName  *string  `json:"site_name,omitempty"`
}

type deviceUpdate struct {
	Name      *string  `json:"name,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	SiteName  *string  `json:"site_name,omitempty"`
}

func (h *Handler) ensureQueries(w http.ResponseWriter) bool {
	if h.devices == nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not configured", nil)
		return false
	}
	return true
}

func toDevice(d sqlcgen.Device) device {
	out := device{
		ID:                d.ID,
		Name:              d.Name,
		Latitude:          d.Latitude,
		Longitude:         d.Longitude,
		SiteName:          d.SiteName,
		AvgUptimeHours:    d.AvgUptimeHours,
		AvgErrorMarginPct: d.AvgErrorMarginPct,
	}

	if d.AvgUptimeHours != nil || d.AvgErrorMarginPct != nil {
		a := health.Assess(rowToFleet(d))
		out.Health = &deviceHealth{
			UptimeStatus: string(a.UptimeStatus),
			ErrorStatus:  string(a.ErrorStatus),
			Criticality:  a.Criticality,
		}
	}

	return out
}

func rowToFleet(d sqlcgen.Device) fleet.Device {
	fd := fleet.Device{ID: d.ID}
	if d.AvgUptimeHours != nil {
		fd.AvgUptimeHours = *d.AvgUptimeHours
	}
	if d.AvgErrorMarginPct != nil {
		fd.AvgErrorMarginPct = *d.AvgErrorMarginPct
	}
	return fd
}

func sortRowsByCriticality(rows []sqlcgen.Device) []sqlcgen.Device {
	byID := make(map[string]sqlcgen.Device, len(rows))
	devices := make([]fleet.Device, 0, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
		devices = append(devices, rowToFleet(row))
	}
	sorted := planner.SortDevicesByCriticality(devices)
	out := make([]sqlcgen.Device, 0, len(sorted))
	for _, d := range sorted {
		out = append(out, byID[d.ID])
	}
	return out
}

func isInvalidInput(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "22P02"
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func validCoordinatePair(lat, lon *float64) bool {
	if lat == nil && lon == nil {
		return true
	}
	if lat == nil || lon == nil {
		return false
	}
	return *lat >= -90 && *lat <= 90 && *lon >= -180 && *lon <= 180
}

func (h *Handler) handleListDevices(w http.ResponseWriter, r *http.Request) {
	if !h.ensureQueries(w) {
		return
	}

	q := r.URL.Query()
	site := strings.TrimSpace(q.Get("site"))
	order := strings.ToLower(strings.TrimSpace(q.Get("order")))
	if order != "" && order != "criticality" {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid order", map[string]any{"order": order})
		return
	}

	var rows []sqlcgen.Device
	var err error
	if site != "" {
		rows, err = h.devices.ListDevicesBySite(r.Context(), site)
	} else {
		rows, err = h.devices.ListDevices(r.Context())
	}
	if err != nil {
		h.log.Error().Err(err).Msg("list devices failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to list devices", nil)
		return
	}

	if order == "criticality" {
		rows = sortRowsByCriticality(rows)
	}

	resp := make([]device, 0, len(rows))
	for _, d := range rows {
		resp = append(resp, toDevice(d))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req deviceCreate
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}

	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "device id is required", nil)
		return
	}
	if !validCoordinatePair(req.Latitude, req.Longitude) {
		h.writeError(w, http.StatusBadRequest, "invalid_coordinate", "latitude and longitude must be provided together and in range", nil)
		return
	}

	if !h.ensureQueries(w) {
		return
	}

	row, err := h.devices.CreateDevice(r.Context(), sqlcgen.CreateDeviceParams{
		ID:        req.ID,
		Name:      req.Name,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		SiteName:  req.SiteName,
	})
	if err != nil {
		if isUniqueViolation(err) {
			h.writeError(w, http.StatusConflict, "duplicate_device", "device already exists", map[string]any{"id": req.ID})
			return
		}
		h.log.Error().Err(err).Msg("create device failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to create device", nil)
		return
	}

	h.writeJSON(w, http.StatusCreated, toDevice(row))
}

func (h *Handler) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.ensureQueries(w) {
		return
	}

	row, err := h.devices.GetDevice(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			h.writeError(w, http.StatusNotFound, "not_found", "device not found", map[string]any{"id": id})
		case isInvalidInput(err):
			h.writeError(w, http.StatusBadRequest, "invalid_id", "device id is malformed", map[string]any{"id": id})
		default:
			h.log.Error().Err(err).Str("id", id).Msg("get device failed")
			h.writeError(w, http.StatusInternalServerError, "db_error", "failed to fetch device", nil)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, toDevice(row))
}

func (h *Handler) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req deviceUpdate
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}

	if req.Latitude != nil || req.Longitude != nil {
		if !validCoordinatePair(req.Latitude, req.Longitude) {
			h.writeError(w, http.StatusBadRequest, "invalid_coordinate", "latitude and longitude must be provided together and in range", nil)
			return
		}
	}

	if !h.ensureQueries(w) {
		return
	}

	row, err := h.devices.UpdateDevice(r.Context(), sqlcgen.UpdateDeviceParams{
		ID:        id,
		Name:      req.Name,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		SiteName:  req.SiteName,
	})
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			h.writeError(w, http.StatusNotFound, "not_found", "device not found", map[string]any{"id": id})
		case isInvalidInput(err):
			h.writeError(w, http.StatusBadRequest, "invalid_id", "device id is malformed", map[string]any{"id": id})
		default:
			h.log.Error().Err(err).Str("id", id).Msg("update device failed")
			h.writeError(w, http.StatusInternalServerError, "db_error", "failed to update device", nil)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, toDevice(row))
}
