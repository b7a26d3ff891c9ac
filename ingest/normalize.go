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

// Package ingest pulls hourly satellite coverages, normalizes them into
// pollution grid rows, and archives the raw rasters.
package ingest

import (
	"fmt"
	"math"
	"time"

	"github.com/aerisnav/aeris/internal/store"
	"github.com/aerisnav/aeris/pollution"
	"github.com/aerisnav/aeris/raster"
)

// CellPolygonWKT is the closed WGS84 pixel polygon centered on
// (lat, lon) with the given half-width in degrees.
func CellPolygonWKT(lat, lon, half float64) string {
	w, e := lon-half, lon+half
	s, n := lat-half, lat+half
	return fmt.Sprintf("POLYGON((%.6f %.6f, %.6f %.6f, %.6f %.6f, %.6f %.6f, %.6f %.6f))",
		w, s, e, s, e, n, w, n, w, s)
}

// strideFor picks the smallest uniform subsampling stride that keeps
// the cell count at or under maxCells.
func strideFor(width, height, maxCells int) int {
	if maxCells <= 0 || width*height <= maxCells {
		return 1
	}
	stride := int(math.Ceil(math.Sqrt(float64(width*height) / float64(maxCells))))
	if stride < 1 {
		stride = 1
	}
	return stride
}

// Normalize converts a raw gas raster into pollution_grid rows stamped
// with ts. NaN pixels are skipped; when the raster holds more than
// maxCells pixels it is subsampled on a uniform stride so the insert
// stays bounded.
func Normalize(r *raster.Raster, gas pollution.Gas, ts time.Time, maxCells int) []store.GridCell {
	if r == nil {
		return nil
	}
	stride := strideFor(r.Width, r.Height, maxCells)
	half := r.Transform[1] * float64(stride) / 2
	cells := make([]store.GridCell, 0, maxCells)
	for row := 0; row < r.Height; row += stride {
		for col := 0; col < r.Width; col += stride {
			v := r.At(row, col)
			if math.IsNaN(v) {
				continue
			}
			center := r.CellCenter(row, col)
			_, severity := pollution.Classify(v, gas)
			cells = append(cells, store.GridCell{
				Timestamp:      ts,
				GasType:        gas,
				GeomWKT:        CellPolygonWKT(center.Y, center.X, half),
				PollutionValue: v,
				SeverityLevel:  severity,
			})
		}
	}
	return cells
}
