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

package alerts

import (
	"fmt"
	"math"

	"github.com/aerisnav/aeris/internal/store"
)

// Alert type names as stored in alert_log.
const (
	TypeDeterioration = "route_deterioration"
	TypeHazard        = "hazard"
	TypeWindShift     = "wind_shift"
	TypeTimeBased     = "time_based"
)

const deteriorationEps = 1e-6

// timeBasedDelta is how far above the 24h minimum the current score
// must rise.
const timeBasedDelta = 0.15

// Detection holds one triggered check ready to persist.
type Detection struct {
	Type        string
	ScoreBefore float64
	ScoreAfter  float64
	Threshold   float64
	Message     string
	Metadata    map[string]interface{}
}

// CheckDeterioration compares the two newest history rows under the
// user's scaled threshold.
func CheckDeterioration(current, previous *store.ExposureRecord, basePct float64, level int) (Detection, bool) {
	if current == nil || previous == nil {
		return Detection{}, false
	}
	threshold := basePct * SensitivityScale(level)
	ratio := (current.UPESScore - previous.UPESScore) / math.Max(previous.UPESScore, deteriorationEps)
	if ratio < threshold {
		return Detection{}, false
	}
	return Detection{
		Type:        TypeDeterioration,
		ScoreBefore: previous.UPESScore,
		ScoreAfter:  current.UPESScore,
		Threshold:   threshold,
		Message: fmt.Sprintf("Route exposure rose %.0f%% (%.2f to %.2f)",
			ratio*100, previous.UPESScore, current.UPESScore),
		Metadata: map[string]interface{}{"ratio": ratio},
	}, true
}

// CheckHazard triggers when the route's peak sample crosses the hazard
// threshold.
func CheckHazard(current *store.ExposureRecord, threshold float64) (Detection, bool) {
	if current == nil || current.MaxUPESAlongRoute < threshold {
		return Detection{}, false
	}
	return Detection{
		Type:        TypeHazard,
		ScoreBefore: current.UPESScore,
		ScoreAfter:  current.MaxUPESAlongRoute,
		Threshold:   threshold,
		Message: fmt.Sprintf("Hazardous air on route: peak UPES %.2f",
			current.MaxUPESAlongRoute),
		Metadata: map[string]interface{}{"max_upes": current.MaxUPESAlongRoute},
	}, true
}

// CheckWindShift triggers when the wind blows from a pollution source
// toward the route midpoint: the wind must be at or above minKPH and
// the angle between the wind's direction of travel and the
// source-to-midpoint bearing within maxAngleDeg.
func CheckWindShift(sourceLat, sourceLon, midLat, midLon, windKPH, windDegree, minKPH, maxAngleDeg float64) (Detection, bool) {
	if windKPH < minKPH {
		return Detection{}, false
	}
	bearing := BearingDeg(sourceLat, sourceLon, midLat, midLon)
	diff := angleDiff(windDegree, bearing)
	if diff > maxAngleDeg {
		return Detection{}, false
	}
	return Detection{
		Type:      TypeWindShift,
		Threshold: maxAngleDeg,
		Message: fmt.Sprintf("Wind (%.0f kph at %.0f°) is carrying pollution toward the route",
			windKPH, windDegree),
		Metadata: map[string]interface{}{
			"wind_kph":    windKPH,
			"wind_degree": windDegree,
			"bearing":     bearing,
			"source_lat":  sourceLat,
			"source_lon":  sourceLon,
		},
	}, true
}

// CheckTimeBased triggers when the current score exceeds the 24h
// minimum by timeBasedDelta. history must include current and be
// newest-first.
func CheckTimeBased(history []*store.ExposureRecord) (Detection, bool) {
	if len(history) < 2 {
		return Detection{}, false
	}
	current := history[0]
	min := math.Inf(1)
	for _, h := range history {
		if h.UPESScore < min {
			min = h.UPESScore
		}
	}
	if current.UPESScore < min+timeBasedDelta {
		return Detection{}, false
	}
	return Detection{
		Type:        TypeTimeBased,
		ScoreBefore: min,
		ScoreAfter:  current.UPESScore,
		Threshold:   min + timeBasedDelta,
		Message: fmt.Sprintf("Exposure %.2f is well above today's low of %.2f",
			current.UPESScore, min),
		Metadata: map[string]interface{}{"min_24h": min},
	}, true
}

// BearingDeg is the initial great-circle bearing from (lat1, lon1) to
// (lat2, lon2), degrees clockwise from north in [0, 360).
func BearingDeg(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dLam := (lon2 - lon1) * math.Pi / 180
	y := math.Sin(dLam) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLam)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// angleDiff is the absolute angular difference in [0, 180].
func angleDiff(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}

// Channels filters the user's notification preferences to the enabled
// channel names, in a stable order.
func Channels(prefs map[string]bool) []string {
	var out []string
	for _, name := range []string{"email", "push", "in_app"} {
		if prefs[name] {
			out = append(out, name)
		}
	}
	return out
}
