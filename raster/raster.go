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

// Package raster provides the single-band geographic raster used
// throughout AERIS: the UPES score grids and the satellite GeoTIFFs
// both load into a Raster, and the route and alert engines sample it
// along lines. Coordinates are WGS84 lon/lat degrees.
package raster

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
)

const earthRadiusM = 6.371e6

// Raster is a single-band grid of float64 samples. Data is stored
// row-major starting at the north-west corner, matching the on-disk
// raster contract. Missing cells are NaN.
type Raster struct {
	Width, Height int

	// Transform is the GDAL-order affine geotransform:
	//   lon = Transform[0] + col*Transform[1] + row*Transform[2]
	//   lat = Transform[3] + col*Transform[4] + row*Transform[5]
	// AERIS rasters are axis-aligned, so Transform[2] and Transform[4]
	// are zero and Transform[5] is negative.
	Transform [6]float64

	Data []float64
}

// New returns a Raster covering the given extent with square cells of
// resolution res degrees, all cells initialized to NaN.
func New(width, height int, west, north, res float64) *Raster {
	r := &Raster{
		Width:     width,
		Height:    height,
		Transform: [6]float64{west, res, 0, north, 0, -res},
		Data:      make([]float64, width*height),
	}
	for i := range r.Data {
		r.Data[i] = math.NaN()
	}
	return r
}

// At returns the value at (row, col) without bounds checking.
func (r *Raster) At(row, col int) float64 { return r.Data[row*r.Width+col] }

// Set assigns the value at (row, col).
func (r *Raster) Set(row, col int, v float64) { r.Data[row*r.Width+col] = v }

// CellCenter returns the lon/lat of the center of cell (row, col).
func (r *Raster) CellCenter(row, col int) geom.Point {
	t := r.Transform
	return geom.Point{
		X: t[0] + (float64(col)+0.5)*t[1] + (float64(row)+0.5)*t[2],
		Y: t[3] + (float64(col)+0.5)*t[4] + (float64(row)+0.5)*t[5],
	}
}

// CellIndex returns the (row, col) containing the given point and
// whether it lies inside the raster.
func (r *Raster) CellIndex(lon, lat float64) (row, col int, ok bool) {
	t := r.Transform
	if t[1] == 0 || t[5] == 0 {
		return 0, 0, false
	}
	col = int(math.Floor((lon - t[0]) / t[1]))
	row = int(math.Floor((lat - t[3]) / t[5]))
	if row < 0 || row >= r.Height || col < 0 || col >= r.Width {
		return 0, 0, false
	}
	return row, col, true
}

// Sample returns the raster value at the given point, reporting
// whether the point is inside the raster and holds a non-NaN value.
func (r *Raster) Sample(lon, lat float64) (float64, bool) {
	row, col, ok := r.CellIndex(lon, lat)
	if !ok {
		return 0, false
	}
	v := r.At(row, col)
	if math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// Bounds returns the geographic extent of the raster.
func (r *Raster) Bounds() *geom.Bounds {
	t := r.Transform
	b := geom.NewBounds()
	b.Extend(geom.NewBoundsPoint(geom.Point{X: t[0], Y: t[3]}))
	b.Extend(geom.NewBoundsPoint(geom.Point{
		X: t[0] + float64(r.Width)*t[1],
		Y: t[3] + float64(r.Height)*t[5],
	}))
	return b
}

// Copy returns a deep copy of the raster.
func (r *Raster) Copy() *Raster {
	out := &Raster{
		Width:     r.Width,
		Height:    r.Height,
		Transform: r.Transform,
		Data:      make([]float64, len(r.Data)),
	}
	copy(out.Data, r.Data)
	return out
}

// Mean returns the mean of all non-NaN cells, or NaN when every cell
// is missing.
func (r *Raster) Mean() float64 {
	var sum float64
	var n int
	for _, v := range r.Data {
		if !math.IsNaN(v) {
			sum += v
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// HaversineM returns the great-circle distance in meters between two
// WGS84 points.
func HaversineM(a, b geom.Point) float64 {
	phi1 := a.Y * math.Pi / 180
	phi2 := b.Y * math.Pi / 180
	dphi := (b.Y - a.Y) * math.Pi / 180
	dlam := (b.X - a.X) * math.Pi / 180
	s := math.Sin(dphi/2)*math.Sin(dphi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dlam/2)*math.Sin(dlam/2)
	return earthRadiusM * 2 * math.Atan2(math.Sqrt(s), math.Sqrt(1-s))
}

// LineLengthM returns the geodesic length of a polyline in meters.
func LineLengthM(line geom.LineString) float64 {
	var total float64
	for i := 1; i < len(line); i++ {
		total += HaversineM(line[i-1], line[i])
	}
	return total
}

// ResampleLine returns points stepped along the polyline at stepM
// meter intervals, always including the first and last vertices.
func ResampleLine(line geom.LineString, stepM float64) []geom.Point {
	if len(line) == 0 {
		return nil
	}
	if stepM <= 0 || len(line) == 1 {
		return append([]geom.Point(nil), line...)
	}
	out := []geom.Point{line[0]}
	carry := 0.0
	for i := 1; i < len(line); i++ {
		p0, p1 := line[i-1], line[i]
		seg := HaversineM(p0, p1)
		if seg <= 0 {
			continue
		}
		pos := carry
		for pos+stepM <= seg {
			pos += stepM
			t := pos / seg
			out = append(out, geom.Point{
				X: p0.X + t*(p1.X-p0.X),
				Y: p0.Y + t*(p1.Y-p0.Y),
			})
		}
		// Negative: the distance already walked toward the next sample.
		// The first sample on the next segment lands at carry+stepM, so
		// spacing stays stepM across the vertex.
		carry = pos - seg
	}
	last := line[len(line)-1]
	if !out[len(out)-1].Equals(last) {
		out = append(out, last)
	}
	return out
}

// SampleStats holds the aggregate of raster samples along a line.
type SampleStats struct {
	Mean, Max float64
	// Valid is the number of samples that fell on non-missing cells.
	Valid int
}

// SampleAlongLine steps the polyline at stepM intervals, samples the
// raster at each point, and returns the mean and max of the valid
// samples clamped to [0, 1]. When the raster is nil or no sample is
// valid, both statistics equal fallback and Valid is zero. Results are
// deterministic for identical inputs.
func SampleAlongLine(r *Raster, line geom.LineString, stepM, fallback float64) SampleStats {
	if r == nil || len(line) == 0 {
		return SampleStats{Mean: fallback, Max: fallback}
	}
	points := ResampleLine(line, stepM)
	var sum, max float64
	var n int
	for _, p := range points {
		v, ok := r.Sample(p.X, p.Y)
		if !ok {
			continue
		}
		v = math.Max(0, math.Min(1, v))
		sum += v
		if n == 0 || v > max {
			max = v
		}
		n++
	}
	if n == 0 {
		return SampleStats{Mean: fallback, Max: fallback}
	}
	return SampleStats{Mean: sum / float64(n), Max: max, Valid: n}
}

func (r *Raster) String() string {
	return fmt.Sprintf("raster %dx%d origin (%g, %g) res %g",
		r.Width, r.Height, r.Transform[0], r.Transform[3], r.Transform[1])
}
