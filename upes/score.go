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

package upes

import (
	"math"

	"github.com/aerisnav/aeris/pollution"
	"github.com/aerisnav/aeris/raster"
)

// SatelliteScore combines the normalized gas rasters into one score
// raster under the default gas weights. Gases missing in a cell are
// dropped and the remaining weights renormalized for that cell; a cell
// where every gas is missing stays missing.
func SatelliteScore(spec GridSpec, grids map[pollution.Gas]*raster.Raster) *raster.Raster {
	out := spec.NewRaster()
	for i := range out.Data {
		var weighted, weightSum float64
		for gas, w := range pollution.UPESWeights {
			r, ok := grids[gas]
			if !ok {
				continue
			}
			v := r.Data[i]
			if math.IsNaN(v) {
				continue
			}
			weighted += w * v
			weightSum += w
		}
		if weightSum > 0 {
			out.Data[i] = weighted / weightSum
		}
	}
	return out
}

// HumidityFactor is the humidity dispersion factor: humid air holds
// particulates near the surface, raising exposure.
func HumidityFactor(humidityPct float64) float64 {
	f := 1 + 0.3*(humidityPct/100-0.5)
	return math.Max(0.85, math.Min(1.15, f))
}

// WindFactor lowers the score as wind disperses pollutants.
func WindFactor(windKPH float64) float64 {
	f := 1 - 0.02*windKPH
	return math.Max(0.7, math.Min(1.0, f))
}

// TrafficFactor raises the score with observed traffic density. With
// no traffic source the density is 0 and the factor 1.
func TrafficFactor(alpha, density float64) float64 {
	return 1 + alpha*density
}

// ApplyFactors multiplies every present cell by the combined scalar
// factor, clamping to [0, 1].
func ApplyFactors(r *raster.Raster, factors ...float64) {
	combined := 1.0
	for _, f := range factors {
		combined *= f
	}
	for i, v := range r.Data {
		if math.IsNaN(v) {
			continue
		}
		r.Data[i] = math.Max(0, math.Min(1, v*combined))
	}
}

// Smooth blends the raw score with the previous hour's final score,
// cell-wise: lambda*raw + (1-lambda)*previous. Cells missing from
// previous keep the raw value; cells missing from raw stay missing.
// previous may be nil or differently shaped, in which case raw is
// returned unchanged.
func Smooth(raw, previous *raster.Raster, lambda float64) *raster.Raster {
	if previous == nil || len(previous.Data) != len(raw.Data) {
		return raw
	}
	for i, v := range raw.Data {
		if math.IsNaN(v) {
			continue
		}
		p := previous.Data[i]
		if math.IsNaN(p) {
			continue
		}
		raw.Data[i] = lambda*v + (1-lambda)*p
	}
	return raw
}
