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

// Package upes computes the Unified Pollution Exposure Score: it
// buckets the latest pollution_grid window onto a regular grid,
// normalizes each gas, combines them under the gas weights, applies
// the weather and traffic modifiers, smooths over the previous hour,
// and writes the hourly raster artifacts.
package upes

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/aerisnav/aeris/internal/store"
	"github.com/aerisnav/aeris/pollution"
	"github.com/aerisnav/aeris/raster"
)

// GridSpec fixes the regular scoring grid. Cells are square, scanned
// row-major from the (north, west) corner; row 0 is the northernmost.
type GridSpec struct {
	West, North   float64
	Res           float64
	Width, Height int
}

// NewGridSpec covers the bbox with cells of res degrees. Partial cells
// at the east/south edges are included.
func NewGridSpec(west, south, east, north, res float64) GridSpec {
	return GridSpec{
		West:   west,
		North:  north,
		Res:    res,
		Width:  int(math.Ceil((east - west) / res)),
		Height: int(math.Ceil((north - south) / res)),
	}
}

// NewRaster returns an all-missing raster on this grid.
func (g GridSpec) NewRaster() *raster.Raster {
	return raster.New(g.Width, g.Height, g.West, g.North, g.Res)
}

// Center returns the grid's geographic center, where the engine
// samples weather.
func (g GridSpec) Center() (lat, lon float64) {
	lat = g.North - float64(g.Height)*g.Res/2
	lon = g.West + float64(g.Width)*g.Res/2
	return lat, lon
}

// GasGrids distributes aggregated cell values onto one raster per gas.
// Out-of-range rows and columns are dropped.
func GasGrids(spec GridSpec, cells []store.CellValue) map[pollution.Gas]*raster.Raster {
	grids := make(map[pollution.Gas]*raster.Raster)
	for _, c := range cells {
		if c.Row < 0 || c.Row >= spec.Height || c.Col < 0 || c.Col >= spec.Width {
			continue
		}
		if !pollution.Valid(c.Gas) {
			continue
		}
		r, ok := grids[c.Gas]
		if !ok {
			r = spec.NewRaster()
			grids[c.Gas] = r
		}
		r.Set(c.Row, c.Col, c.Value)
	}
	return grids
}

// normBounds are the raw-value endpoints mapped to 0 and 1.
type normBounds struct {
	low, high float64
}

// boundsFor derives the normalization bounds for one gas: the 5th and
// 99th percentiles of the present values, clamped to the gas's
// threshold endpoints so a uniformly clean (or uniformly filthy) hour
// cannot stretch to fill [0, 1].
func boundsFor(gas pollution.Gas, r *raster.Raster) normBounds {
	t := pollution.ThresholdTable[gas]
	var values []float64
	for _, v := range r.Data {
		if !math.IsNaN(v) {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return normBounds{low: 0, high: t.Hazardous}
	}
	sort.Float64s(values)
	low := stat.Quantile(0.05, stat.Empirical, values, nil)
	high := stat.Quantile(0.99, stat.Empirical, values, nil)

	low = math.Max(0, math.Min(low, t.Moderate))
	high = math.Max(t.Moderate, math.Min(high, t.Hazardous))
	if high <= low {
		low, high = 0, t.Hazardous
	}
	return normBounds{low: low, high: high}
}

// Normalize maps a gas raster to [0, 1] in place: values at or below
// the low bound become 0, at or above the high bound 1, linear in
// between. Missing cells stay missing.
func Normalize(gas pollution.Gas, r *raster.Raster) {
	b := boundsFor(gas, r)
	span := b.high - b.low
	for i, v := range r.Data {
		if math.IsNaN(v) {
			continue
		}
		switch {
		case v <= b.low:
			r.Data[i] = 0
		case v >= b.high:
			r.Data[i] = 1
		default:
			r.Data[i] = (v - b.low) / span
		}
	}
}
