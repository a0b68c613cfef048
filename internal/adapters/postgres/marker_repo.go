package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/mapcore/internal/core/domain"
)

const (
	geocodeOK      = "ok"
	geocodePending = "pending"
	geocodeFailed  = "failed"
)

const upsertMarkerSQL = `
	INSERT INTO map_markers (id, location, title, description, icon_kind, address, geocode_status, updated_at)
	VALUES ($1, ST_SetSRID(ST_MakePoint($2, $3), 4326), $4, $5, $6, $7, $8, now())
	ON CONFLICT (id) DO UPDATE
	SET location = EXCLUDED.location,
	    title = EXCLUDED.title,
	    description = EXCLUDED.description,
	    icon_kind = EXCLUDED.icon_kind,
	    address = EXCLUDED.address,
	    geocode_status = EXCLUDED.geocode_status,
	    geocode_error = NULL,
	    updated_at = now()
`

const selectMarkerSQL = `
	SELECT id,
	       COALESCE(ST_Y(location), 0) AS lat,
	       COALESCE(ST_X(location), 0) AS lon,
	       title, COALESCE(description, ''), COALESCE(icon_kind, ''), COALESCE(address, ''),
	       updated_at
	FROM map_markers
`

// MarkerRepo implements ports.MarkerRepository with pgx.
type MarkerRepo struct {
	db *DB
}

// NewMarkerRepo creates a new MarkerRepo.
func NewMarkerRepo(db *DB) *MarkerRepo {
	return &MarkerRepo{db: db}
}

// upsertArgs returns the positional arguments of upsertMarkerSQL. Markers
// waiting for geocoding are stored without a location.
func upsertArgs(m *domain.Marker) []any {
	var lon, lat *float64
	status := geocodeOK
	if m.NeedsGeocode() {
		status = geocodePending
	} else {
		lon, lat = &m.Longitude, &m.Latitude
	}
	return []any{m.ID, lon, lat, m.Title, m.Description, m.IconKind, m.Address, status}
}

// Upsert inserts or updates a single marker.
func (r *MarkerRepo) Upsert(ctx context.Context, m *domain.Marker) error {
	_, err := r.db.Pool.Exec(ctx, upsertMarkerSQL, upsertArgs(m)...)
	return err
}

// UpsertBatch inserts many markers using pgx.Batch.
func (r *MarkerRepo) UpsertBatch(ctx context.Context, ms []domain.Marker) error {
	batch := &pgx.Batch{}
	for i := range ms {
		batch.Queue(upsertMarkerSQL, upsertArgs(&ms[i])...)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range ms {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch exec: %w", err)
		}
	}
	return nil
}

// Delete removes a marker.
func (r *MarkerRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM map_markers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrMarkerNotFound, id)
	}
	return nil
}

// GetByID returns a marker by ID.
func (r *MarkerRepo) GetByID(ctx context.Context, id string) (*domain.Marker, error) {
	m, err := scanMarker(r.db.Pool.QueryRow(ctx, selectMarkerSQL+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrMarkerNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListInBounds returns placed markers inside b using the GiST index on location.
func (r *MarkerRepo) ListInBounds(ctx context.Context, b domain.Bounds, limit int) ([]domain.Marker, error) {
	rows, err := r.db.Pool.Query(ctx, selectMarkerSQL+`
		WHERE location && ST_MakeEnvelope($1, $2, $3, $4, 4326)
		ORDER BY updated_at DESC
		LIMIT $5
	`, b.MinLon, b.MinLat, b.MaxLon, b.MaxLat, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMarkers(rows)
}

// ListPendingGeocode returns markers with an address but no location, oldest first.
func (r *MarkerRepo) ListPendingGeocode(ctx context.Context, limit int) ([]domain.Marker, error) {
	rows, err := r.db.Pool.Query(ctx, selectMarkerSQL+`
		WHERE geocode_status = $1
		ORDER BY created_at
		LIMIT $2
	`, geocodePending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMarkers(rows)
}

// SaveCoordinates places a marker and marks it geocoded.
func (r *MarkerRepo) SaveCoordinates(ctx context.Context, id string, p domain.GeoPoint) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE map_markers
		SET location = ST_SetSRID(ST_MakePoint($2, $3), 4326),
		    geocode_status = $4, geocode_error = NULL, updated_at = now()
		WHERE id = $1
	`, id, p.Lon, p.Lat, geocodeOK)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrMarkerNotFound, id)
	}
	return nil
}

// MarkGeocodeFailed records why a marker could not be placed so it is not retried.
func (r *MarkerRepo) MarkGeocodeFailed(ctx context.Context, id string, reason string) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE map_markers
		SET geocode_status = $2, geocode_error = $3, updated_at = now()
		WHERE id = $1
	`, id, geocodeFailed, reason)
	return err
}

func scanMarker(row pgx.Row) (domain.Marker, error) {
	var m domain.Marker
	err := row.Scan(
		&m.ID, &m.Latitude, &m.Longitude,
		&m.Title, &m.Description, &m.IconKind, &m.Address,
		&m.UpdatedAt,
	)
	return m, err
}

func collectMarkers(rows pgx.Rows) ([]domain.Marker, error) {
	markers := []domain.Marker{}
	for rows.Next() {
		m, err := scanMarker(rows)
		if err != nil {
			return nil, err
		}
		markers = append(markers, m)
	}
	return markers, rows.Err()
}
