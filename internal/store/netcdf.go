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

	"github.com/jackc/pgx/v5"

	"github.com/aerisnav/aeris/pollution"
)

// InsertNetCDFFile records an uploaded raster blob.
func (s *Store) InsertNetCDFFile(ctx context.Context, f *NetCDFFile) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO netcdf_files (file_name, bucket_path, timestamp, gas_type)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		f.FileName, f.BucketPath, f.Timestamp, f.GasType).Scan(&f.ID)
	if err != nil {
		return fmt.Errorf("store: inserting netcdf file: %w", err)
	}
	return nil
}

// LatestNetCDFFile returns the newest blob row for a gas.
func (s *Store) LatestNetCDFFile(ctx context.Context, gas pollution.Gas) (*NetCDFFile, error) {
	var f NetCDFFile
	err := s.pool.QueryRow(ctx, `
		SELECT id, file_name, bucket_path, timestamp, gas_type
		FROM netcdf_files
		WHERE gas_type = $1
		ORDER BY timestamp DESC
		LIMIT 1`, gas).
		Scan(&f.ID, &f.FileName, &f.BucketPath, &f.Timestamp, &f.GasType)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: fetching latest netcdf file: %w", err)
	}
	return &f, nil
}
