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

// Package routing builds a pollution-weighted road graph and finds
// shortest and k-shortest paths over it. Edge cost blends exposure,
// distance, and travel time under mode-dependent coefficients.
package routing

import (
	"math"
	"strings"

	"github.com/spf13/cast"

	"github.com/aerisnav/aeris/internal/store"
)

// Mode is a travel profile.
type Mode string

const (
	ModeCommute Mode = "commute"
	ModeJogger  Mode = "jogger"
	ModeCyclist Mode = "cyclist"
)

// Coefficients weight exposure (alpha), distance (beta), and time
// (gamma) in the edge cost. They sum to 1 for every mode.
type Coefficients struct {
	Alpha, Beta, Gamma float64
}

var modeWeights = map[Mode]Coefficients{
	ModeCommute: {Alpha: 0.2, Beta: 0.4, Gamma: 0.4},
	ModeJogger:  {Alpha: 0.7, Beta: 0.15, Gamma: 0.15},
	ModeCyclist: {Alpha: 0.4, Beta: 0.3, Gamma: 0.3},
}

var modeAliases = map[string]Mode{
	"commuter": ModeCommute,
	"jog":      ModeJogger,
	"cycle":    ModeCyclist,
}

// CanonicalMode lowercases, trims, and resolves aliases. Unknown modes
// fall back to commute.
func CanonicalMode(s string) Mode {
	name := strings.ToLower(strings.TrimSpace(s))
	if m, ok := modeAliases[name]; ok {
		return m
	}
	m := Mode(name)
	if _, ok := modeWeights[m]; ok {
		return m
	}
	return ModeCommute
}

// WeightsFor returns the cost coefficients for a mode.
func WeightsFor(m Mode) Coefficients { return modeWeights[m] }

// Modifier limits.
const (
	modifierMin = 0.1
	modifierMax = 5.0
)

// Modifier scales an edge's cost for a mode from its road-class tags.
// The result is clamped to [0.1, 5.0].
func Modifier(e store.RoadEdge, mode Mode) float64 {
	highway := primaryTag(e.Highway)
	m := 1.0
	switch mode {
	case ModeJogger:
		switch highway {
		case "motorway", "trunk", "motorway_link", "trunk_link":
			m *= 2.0
		case "path", "footway", "pedestrian":
			m *= 0.5
		}
		if e.Leisure == "park" {
			m *= 0.5
		}
	case ModeCyclist:
		switch highway {
		case "motorway", "trunk":
			m *= 1.5
		}
		if e.Cycleway != "" {
			m *= 0.7
		}
	default: // commute
		switch highway {
		case "footway", "path", "pedestrian":
			if !footAccessible(e.Foot) {
				m *= 1.2
			}
		}
	}
	return math.Max(modifierMin, math.Min(modifierMax, m))
}

// footAccessible reports whether the way's foot tag explicitly allows
// pedestrians, which exempts it from the commute walkway penalty.
func footAccessible(foot string) bool {
	switch primaryTag(foot) {
	case "yes", "designated", "permissive":
		return true
	}
	return false
}

// primaryTag returns the governing value of a possibly list-valued OSM
// tag ("residential;service" -> "residential").
func primaryTag(v string) string {
	if i := strings.IndexByte(v, ';'); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}

// Highway-type default speeds in kph.
var defaultSpeeds = map[string]float64{
	"motorway":      100,
	"motorway_link": 100,
	"trunk":         80,
	"trunk_link":    80,
	"primary":       60,
	"secondary":     50,
	"tertiary":      40,
	"residential":   30,
	"unclassified":  30,
	"service":       20,
	"path":          5,
	"footway":       5,
	"pedestrian":    5,
}

// SpeedKPH resolves the edge speed: an explicit maxspeed tag wins,
// else the highway-type default, else the residential default.
func SpeedKPH(e store.RoadEdge) float64 {
	if e.MaxSpeed != "" {
		fields := strings.Fields(e.MaxSpeed)
		if v := cast.ToFloat64(fields[0]); v > 0 {
			if len(fields) > 1 && strings.EqualFold(fields[1], "mph") {
				v *= 1.609344
			}
			return v
		}
	}
	if v, ok := defaultSpeeds[primaryTag(e.Highway)]; ok {
		return v
	}
	return 30
}
