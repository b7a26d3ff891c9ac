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

	"github.com/jackc/pgx/v5"

	"github.com/aerisnav/aeris/pollution"
)

// InsertGridCells bulk-inserts one chunk of pollution_grid rows inside
// a single transaction. A failure aborts only this chunk.
func (s *Store) InsertGridCells(ctx context.Context, cells []GridCell) (int64, error) {
	if len(cells) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, c := range cells {
		batch.Queue(`
			INSERT INTO pollution_grid
				(timestamp, gas_type, geom, pollution_value, severity_level)
			VALUES ($1, $2, ST_GeomFromText($3, 4326), $4, $5)`,
			c.Timestamp, c.GasType, c.GeomWKT, c.PollutionValue, c.SeverityLevel)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("store: beginning grid insert: %w", err)
	}
	defer tx.Rollback(ctx)

	br := tx.SendBatch(ctx, batch)
	for range cells {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return 0, fmt.Errorf("store: inserting grid cells: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("store: closing grid batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("store: committing grid insert: %w", err)
	}
	return int64(len(cells)), nil
}

// AggregateLatestWindow buckets the most recent one-hour window of
// pollution_grid per gas onto a regular grid anchored at (north, west)
// with square cells of res degrees. The window per gas is
// [max(timestamp)−1h, max(timestamp)], so an in-progress ingestion of
// another gas cannot skew the snapshot. The per-cell value is the mean
// of the centroids that fall in the cell.
func (s *Store) AggregateLatestWindow(ctx context.Context, west, north, res float64) ([]CellValue, time.Time, error) {
	rows, err := s.pool.Query(ctx, `
		WITH latest AS (
			SELECT gas_type, MAX(timestamp) AS max_ts
			FROM pollution_grid
			GROUP BY gas_type
		)
		SELECT p.gas_type,
			FLOOR(($2 - ST_Y(ST_Centroid(p.geom))) / $3)::int AS grid_row,
			FLOOR((ST_X(ST_Centroid(p.geom)) - $1) / $3)::int AS grid_col,
			AVG(p.pollution_value) AS value,
			MAX(l.max_ts) AS max_ts
		FROM pollution_grid p
		JOIN latest l ON l.gas_type = p.gas_type
		WHERE p.timestamp > l.max_ts - interval '1 hour'
			AND p.timestamp <= l.max_ts
		GROUP BY 1, 2, 3`,
		west, north, res)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("store: aggregating pollution grid: %w", err)
	}
	defer rows.Close()

	var cells []CellValue
	var newest time.Time
	for rows.Next() {
		var c CellValue
		var ts time.Time
		if err := rows.Scan(&c.Gas, &c.Row, &c.Col, &c.Value, &ts); err != nil {
			return nil, time.Time{}, fmt.Errorf("store: scanning aggregate row: %w", err)
		}
		if ts.After(newest) {
			newest = ts
		}
		cells = append(cells, c)
	}
	return cells, newest, rows.Err()
}

// SevereCells returns recent cells at or above minSeverity inside the
// bbox, most severe first.
func (s *Store) SevereCells(ctx context.Context, west, south, east, north float64,
	minSeverity pollution.Severity, since time.Time, limit int) ([]SevereCell, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT gas_type,
			ST_Y(ST_Centroid(geom)), ST_X(ST_Centroid(geom)),
			pollution_value, severity_level, timestamp
		FROM pollution_grid
		WHERE severity_level >= $5
			AND timestamp >= $6
			AND geom && ST_MakeEnvelope($1, $2, $3, $4, 4326)
		ORDER BY severity_level DESC, pollution_value DESC
		LIMIT $7`,
		west, south, east, north, minSeverity, since, limit)
	if err != nil {
		return nil, fmt.Errorf("store: fetching severe cells: %w", err)
	}
	defer rows.Close()

	var cells []SevereCell
	for rows.Next() {
		var c SevereCell
		if err := rows.Scan(&c.Gas, &c.Lat, &c.Lon, &c.Value, &c.Severity, &c.Timestamp); err != nil {
			return nil, fmt.Errorf("store: scanning severe cell: %w", err)
		}
		cells = append(cells, c)
	}
	return cells, rows.Err()
}

// CellsNear returns recent cells of the given gases whose geometry
// intersects the radius (in km) around a point. Used by the analyze
// and hotspot endpoints.
func (s *Store) CellsNear(ctx context.Context, lat, lon, radiusKM float64,
	gases []pollution.Gas, since time.Time, limit int) ([]SevereCell, error) {
	names := make([]string, len(gases))
	for i, g := range gases {
		names[i] = string(g)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT gas_type,
			ST_Y(ST_Centroid(geom)), ST_X(ST_Centroid(geom)),
			pollution_value, severity_level, timestamp
		FROM pollution_grid
		WHERE gas_type = ANY($4)
			AND timestamp >= $5
			AND ST_DWithin(geom::geography, ST_SetSRID(ST_MakePoint($2, $1), 4326)::geography, $3)
		ORDER BY severity_level DESC, pollution_value DESC
		LIMIT $6`,
		lat, lon, radiusKM*1000, names, since, limit)
	if err != nil {
		return nil, fmt.Errorf("store: fetching cells near point: %w", err)
	}
	defer rows.Close()

	var cells []SevereCell
	for rows.Next() {
		var c SevereCell
		if err := rows.Scan(&c.Gas, &c.Lat, &c.Lon, &c.Value, &c.Severity, &c.Timestamp); err != nil {
			return nil, fmt.Errorf("store: scanning nearby cell: %w", err)
		}
		cells = append(cells, c)
	}
	return cells, rows.Err()
}
