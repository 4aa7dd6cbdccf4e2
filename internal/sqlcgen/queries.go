package sqlcgen

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX matches the minimal interface needed from pgxpool.Pool or pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgx.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

const deviceColumns = `d.id,
       d.name,
       d.latitude,
       d.longitude,
       d.site_name,
       t.avg_uptime_hours,
       t.avg_error_margin_pct,
       d.updated_at`

const listDevices = `-- name: ListDevices :many
SELECT ` + deviceColumns + `
FROM devices d
LEFT JOIN device_telemetry_rollups t ON t.device_id = d.id
ORDER BY d.created_at DESC
`

func (q *Queries) ListDevices(ctx context.Context) ([]Device, error) {
	rows, err := q.db.Query(ctx, listDevices)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDevices(rows)
}

const listRoutableDevices = `-- name: ListRoutableDevices :many
SELECT ` + deviceColumns + `
FROM devices d
LEFT JOIN device_telemetry_rollups t ON t.device_id = d.id
WHERE d.latitude IS NOT NULL
  AND d.longitude IS NOT NULL
ORDER BY d.id
`

func (q *Queries) ListRoutableDevices(ctx context.Context) ([]Device, error) {
	rows, err := q.db.Query(ctx, listRoutableDevices)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDevices(rows)
}

const listDevicesBySite = `-- name: ListDevicesBySite :many
SELECT ` + deviceColumns + `
FROM devices d
LEFT JOIN device_telemetry_rollups t ON t.device_id = d.id
WHERE d.site_name = $1
ORDER BY d.id
`

func (q *Queries) ListDevicesBySite(ctx context.Context, siteName string) ([]Device, error) {
	rows, err := q.db.Query(ctx, listDevicesBySite, siteName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDevices(rows)
}

const getDevice = `-- name: GetDevice :one
SELECT ` + deviceColumns + `
FROM devices d
LEFT JOIN device_telemetry_rollups t ON t.device_id = d.id
WHERE d.id = $1
`

func (q *Queries) GetDevice(ctx context.Context, id string) (Device, error) {
	row := q.db.QueryRow(ctx, getDevice, id)
	return scanDevice(row)
}

const createDevice = `-- name: CreateDevice :one
WITH inserted AS (
  INSERT INTO devices (id, name, latitude, longitude, site_name)
  VALUES ($1, $2, $3, $4, $5)
  RETURNING id, name, latitude, longitude, site_name, updated_at
)
SELECT i.id,
       i.name,
       i.latitude,
       i.longitude,
       i.site_name,
       NULL::double precision AS avg_uptime_hours,
       NULL::double precision AS avg_error_margin_pct,
       i.updated_at
FROM inserted i
`

type CreateDeviceParams struct {
	ID        string
	Name      *string
	Latitude  *float64
	Longitude *float64
	SiteName  *string
}

func (q *Queries) CreateDevice(ctx context.Context, arg CreateDeviceParams) (Device, error) {
	row := q.db.QueryRow(ctx, createDevice, arg.ID, arg.Name, arg.Latitude, arg.Longitude, arg.SiteName)
	return scanDevice(row)
}

const updateDevice = `-- name: UpdateDevice :one
WITH updated AS (
  UPDATE devices
  SET name       = COALESCE($2, name),
      latitude   = COALESCE($3, latitude),
      longitude  = COALESCE($4, longitude),
      site_name  = COALESCE($5, site_name),
      updated_at = now()
  WHERE id = $1
  RETURNING id, name, latitude, longitude, site_name, updated_at
)
SELECT u.id,
       u.name,
       u.latitude,
       u.longitude,
       u.site_name,
       t.avg_uptime_hours,
       t.avg_error_margin_pct,
       u.updated_at
FROM updated u
LEFT JOIN device_telemetry_rollups t ON t.device_id = u.id
`

type UpdateDeviceParams struct {
	ID        string
	Name      *string
	Latitude  *float64
	Longitude *float64
	SiteName  *string
}

func (q *Queries) UpdateDevice(ctx context.Context, arg UpdateDeviceParams) (Device, error) {
	row := q.db.QueryRow(ctx, updateDevice, arg.ID, arg.Name, arg.Latitude, arg.Longitude, arg.SiteName)
	return scanDevice(row)
}

const upsertDeviceTelemetry = `-- name: UpsertDeviceTelemetry :exec
INSERT INTO device_telemetry_rollups (device_id, avg_uptime_hours, avg_error_margin_pct, sample_count, updated_at)
VALUES ($1, $2, $3, 1, now())
ON CONFLICT (device_id) DO UPDATE
SET avg_uptime_hours     = (device_telemetry_rollups.avg_uptime_hours * device_telemetry_rollups.sample_count + EXCLUDED.avg_uptime_hours)
                           / (device_telemetry_rollups.sample_count + 1),
    avg_error_margin_pct = (device_telemetry_rollups.avg_error_margin_pct * device_telemetry_rollups.sample_count + EXCLUDED.avg_error_margin_pct)
                           / (device_telemetry_rollups.sample_count + 1),
    sample_count         = device_telemetry_rollups.sample_count + 1,
    updated_at           = now()
`

type UpsertDeviceTelemetryParams struct {
	DeviceID       string
	UptimeHours    float64
	ErrorMarginPct float64
}

func (q *Queries) UpsertDeviceTelemetry(ctx context.Context, arg UpsertDeviceTelemetryParams) error {
	_, err := q.db.Exec(ctx, upsertDeviceTelemetry, arg.DeviceID, arg.UptimeHours, arg.ErrorMarginPct)
	return err
}

func scanDevice(row pgx.Row) (Device, error) {
	var i Device
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Latitude,
		&i.Longitude,
		&i.SiteName,
		&i.AvgUptimeHours,
		&i.AvgErrorMarginPct,
		&i.UpdatedAt,
	)
	return i, err
}

func scanDevices(rows pgx.Rows) ([]Device, error) {
	var items []Device
	for rows.Next() {
		var i Device
		if err := rows.Scan(
			&i.ID,
			&i.Name,
			&i.Latitude,
			&i.Longitude,
			&i.SiteName,
			&i.AvgUptimeHours,
			&i.AvgErrorMarginPct,
			&i.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
