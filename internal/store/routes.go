/*
Copyright © 2025 the AERIS authors.
This file is part of AERIS.

AERIS is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

AERIS is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with AERIS.  If not, see <http://www.gnu.org/licenses/>.
*/

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const routeColumns = `id, user_id, name, start_lat, start_lon, end_lat, end_lon,
	activity_type, last_upes_score, last_upes_updated_at, created_at`

func scanRoute(row pgx.Row) (*SavedRoute, error) {
	var r SavedRoute
	err := row.Scan(&r.ID, &r.UserID, &r.Name, &r.StartLat, &r.StartLon,
		&r.EndLat, &r.EndLon, &r.ActivityType, &r.LastUPESScore,
		&r.LastUPESUpdatedAt, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scanning saved route: %w", err)
	}
	return &r, nil
}

// CreateSavedRoute inserts a route for the user.
func (s *Store) CreateSavedRoute(ctx context.Context, r *SavedRoute) (*SavedRoute, error) {
	return scanRoute(s.pool.QueryRow(ctx, `
		INSERT INTO saved_routes
			(user_id, name, start_lat, start_lon, end_lat, end_lon, activity_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+routeColumns,
		r.UserID, r.Name, r.StartLat, r.StartLon, r.EndLat, r.EndLon, r.ActivityType))
}

// SavedRoutesByUser lists the user's routes, newest first.
func (s *Store) SavedRoutesByUser(ctx context.Context, userID int64) ([]*SavedRoute, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+routeColumns+` FROM saved_routes
		WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: listing saved routes: %w", err)
	}
	defer rows.Close()
	return collectRoutes(rows)
}

// AllSavedRoutes lists every route; the scheduled tasks iterate these.
func (s *Store) AllSavedRoutes(ctx context.Context) ([]*SavedRoute, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+routeColumns+` FROM saved_routes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: listing all saved routes: %w", err)
	}
	defer rows.Close()
	return collectRoutes(rows)
}

func collectRoutes(rows pgx.Rows) ([]*SavedRoute, error) {
	var routes []*SavedRoute
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		routes = append(routes, r)
	}
	return routes, rows.Err()
}

// SavedRouteForUser fetches one route, returning ErrNotFound when it
// does not exist or belongs to another user. Ownership failures are
// indistinguishable from absence on purpose.
func (s *Store) SavedRouteForUser(ctx context.Context, id, userID int64) (*SavedRoute, error) {
	return scanRoute(s.pool.QueryRow(ctx, `
		SELECT `+routeColumns+` FROM saved_routes
		WHERE id = $1 AND user_id = $2`, id, userID))
}

// DeleteSavedRoute removes the route when owned by userID.
func (s *Store) DeleteSavedRoute(ctx context.Context, id, userID int64) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM saved_routes WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("store: deleting saved route: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordExposure appends a history row and denormalizes the mean into
// the route, in one transaction so the §3 consistency invariant holds.
func (s *Store) RecordExposure(ctx context.Context, rec *ExposureRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: beginning exposure tx: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO route_exposure_history
			(route_id, timestamp, upes_score, max_upes_along_route, score_source)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		rec.RouteID, rec.Timestamp, rec.UPESScore, rec.MaxUPESAlongRoute,
		rec.ScoreSource).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("store: inserting exposure row: %w", err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE saved_routes
		SET last_upes_score = $2, last_upes_updated_at = $3
		WHERE id = $1`,
		rec.RouteID, rec.UPESScore, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("store: denormalizing exposure: %w", err)
	}
	return tx.Commit(ctx)
}

// ExposureHistory returns the route's history rows within the window,
// newest first.
func (s *Store) ExposureHistory(ctx context.Context, routeID int64, since time.Time) ([]*ExposureRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, route_id, timestamp, upes_score, max_upes_along_route, score_source
		FROM route_exposure_history
		WHERE route_id = $1 AND timestamp >= $2
		ORDER BY timestamp DESC`, routeID, since)
	if err != nil {
		return nil, fmt.Errorf("store: fetching exposure history: %w", err)
	}
	defer rows.Close()
	var recs []*ExposureRecord
	for rows.Next() {
		var r ExposureRecord
		if err := rows.Scan(&r.ID, &r.RouteID, &r.Timestamp, &r.UPESScore,
			&r.MaxUPESAlongRoute, &r.ScoreSource); err != nil {
			return nil, fmt.Errorf("store: scanning exposure row: %w", err)
		}
		recs = append(recs, &r)
	}
	return recs, rows.Err()
}
