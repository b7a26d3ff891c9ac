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

// Package alerts scores saved routes against the current UPES raster
// and raises deterioration, hazard, wind-shift, and time-based alerts,
// scaled by each user's exposure sensitivity.
package alerts

// SensitivityScale maps the 1..5 exposure sensitivity level to the
// multiplier applied to the deterioration threshold. More sensitive
// users get a lower threshold. Out-of-range levels behave like 1.
func SensitivityScale(level int) float64 {
	switch {
	case level >= 5:
		return 0.5
	case level >= 3:
		return 0.7
	default:
		return 1.0
	}
}

// SensitivityLabel is the user-facing name of a sensitivity level.
func SensitivityLabel(level int) string {
	switch {
	case level >= 5:
		return "Asthmatic"
	case level >= 3:
		return "Sensitive"
	default:
		return "Normal"
	}
}
