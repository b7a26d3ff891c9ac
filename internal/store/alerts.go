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
	"fmt"
	"time"
)

// InsertAlert appends an alert_log row and fills in ID/CreatedAt.
func (s *Store) InsertAlert(ctx context.Context, a *AlertRecord) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO alert_log
			(user_id, route_id, alert_type, score_before, score_after,
			 threshold, metadata, notified_channels)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		a.UserID, a.RouteID, a.AlertType, a.ScoreBefore, a.ScoreAfter,
		a.Threshold, a.Metadata, a.NotifiedChannels).
		Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: inserting alert: %w", err)
	}
	return nil
}

// AlertFilter narrows AlertsByUser. Zero values mean "no filter".
type AlertFilter struct {
	RouteID   int64
	AlertType string
	Since     time.Time
}

// AlertsByUser lists the user's alerts, newest first.
func (s *Store) AlertsByUser(ctx context.Context, userID int64, f AlertFilter) ([]*AlertRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, route_id, alert_type, score_before, score_after,
			threshold, metadata, notified_channels, created_at
		FROM alert_log
		WHERE user_id = $1
			AND ($2 = 0 OR route_id = $2)
			AND ($3 = '' OR alert_type = $3)
			AND created_at >= $4
		ORDER BY created_at DESC`,
		userID, f.RouteID, f.AlertType, f.Since)
	if err != nil {
		return nil, fmt.Errorf("store: listing alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*AlertRecord
	for rows.Next() {
		var a AlertRecord
		if err := rows.Scan(&a.ID, &a.UserID, &a.RouteID, &a.AlertType,
			&a.ScoreBefore, &a.ScoreAfter, &a.Threshold, &a.Metadata,
			&a.NotifiedChannels, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scanning alert: %w", err)
		}
		alerts = append(alerts, &a)
	}
	return alerts, rows.Err()
}

// HasAlertSince reports whether the route already has an alert of the
// given type at or after t. The pipeline uses it to suppress duplicate
// deterioration alerts within the same hour.
func (s *Store) HasAlertSince(ctx context.Context, routeID int64, alertType string, t time.Time) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM alert_log
			WHERE route_id = $1 AND alert_type = $2 AND created_at >= $3
		)`, routeID, alertType, t).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("store: checking recent alerts: %w", err)
	}
	return exists, nil
}
