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

package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/aerisnav/aeris/internal/cache"
	"github.com/aerisnav/aeris/pollution"
)

const (
	defaultRadiusKM  = 10.0
	cellSearchWindow = 24 * time.Hour
	cellSearchLimit  = 500
)

func parseCoord(raw string, min, max float64) (float64, error) {
	v := cast.ToFloat64(raw)
	if raw == "" || v < min || v > max {
		return 0, fmt.Errorf("coordinate %q out of range [%g, %g]", raw, min, max)
	}
	return v, nil
}

func parseLatLon(latRaw, lonRaw string) (lat, lon float64, err error) {
	if lat, err = parseCoord(latRaw, -90, 90); err != nil {
		return 0, 0, err
	}
	if lon, err = parseCoord(lonRaw, -180, 180); err != nil {
		return 0, 0, err
	}
	return lat, lon, nil
}

// parseGases splits a comma list, defaulting to all gases. Unknown
// names are rejected.
func parseGases(raw string) ([]pollution.Gas, error) {
	if strings.TrimSpace(raw) == "" {
		return pollution.Gases, nil
	}
	var out []pollution.Gas
	for _, part := range strings.Split(raw, ",") {
		g := pollution.Gas(strings.ToUpper(strings.TrimSpace(part)))
		if !pollution.Valid(g) {
			return nil, fmt.Errorf("unknown gas %q", part)
		}
		out = append(out, g)
	}
	return out, nil
}

// hotspot is one high-pollution cell in an analysis response.
type hotspot struct {
	Gas           pollution.Gas `json:"gas"`
	Lat           float64       `json:"lat"`
	Lon           float64       `json:"lon"`
	Value         float64       `json:"value"`
	Severity      int           `json:"severity"`
	SeverityLabel string        `json:"severity_label"`
	Unit          string        `json:"unit"`
	Timestamp     time.Time     `json:"timestamp"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	var lat, lon float64
	var place string
	if loc := strings.TrimSpace(r.FormValue("location")); loc != "" {
		if s.Geocoder == nil {
			writeError(w, http.StatusServiceUnavailable, "geocoding not configured")
			return
		}
		p, err := s.Geocoder.Forward(r.Context(), loc)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		lat, lon, place = p.Lat, p.Lon, p.DisplayName
	} else {
		var err error
		lat, lon, err = parseLatLon(r.FormValue("latitude"), r.FormValue("longitude"))
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
	}

	radius := cast.ToFloat64(r.FormValue("radius"))
	if radius <= 0 {
		radius = defaultRadiusKM
	}
	gases, err := parseGases(r.FormValue("gases"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	cells, err := s.Store.CellsNear(r.Context(), lat, lon, radius, gases,
		time.Now().UTC().Add(-cellSearchWindow), cellSearchLimit)
	if err != nil {
		s.writeMapped(w, err)
		return
	}

	hotspots := make([]hotspot, 0, len(cells))
	var messages []string
	units := map[pollution.Gas]string{}
	for _, g := range gases {
		units[g] = pollution.ThresholdTable[g].Unit
	}
	for _, c := range cells {
		hotspots = append(hotspots, hotspot{
			Gas: c.Gas, Lat: c.Lat, Lon: c.Lon, Value: c.Value,
			Severity: int(c.Severity), SeverityLabel: c.Severity.Label(),
			Unit: pollution.ThresholdTable[c.Gas].Unit, Timestamp: c.Timestamp,
		})
		if c.Severity >= pollution.SeverityUnhealthy {
			messages = append(messages, fmt.Sprintf("%s is %s near (%.3f, %.3f)",
				c.Gas, c.Severity.Label(), c.Lat, c.Lon))
		}
	}

	resp := map[string]interface{}{
		"location":  map[string]interface{}{"lat": lat, "lon": lon, "display_name": place},
		"radius_km": radius,
		"hotspots":  hotspots,
		"alerts":    messages,
		"units":     units,
		"image_url": nil,
	}
	if cast.ToBool(r.FormValue("include_weather")) && s.Weather != nil {
		if obs, err := s.Weather.Current(r.Context(), lat, lon); err == nil {
			resp["weather"] = obs
		}
	}
	if cast.ToBool(r.FormValue("include_pollutant_prediction")) && s.Weather != nil {
		if mv, err := s.Weather.PredictMovement(r.Context(), lat, lon); err == nil {
			resp["pollutant_prediction"] = mv
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// geoFeature is one GeoJSON feature in the hotspots collection.
type geoFeature struct {
	Type       string                 `json:"type"`
	Geometry   map[string]interface{} `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

func (s *Server) handleHotspots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, lon, err := parseLatLon(q.Get("lat"), q.Get("lon"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	radius := cast.ToFloat64(q.Get("radius"))
	if radius <= 0 {
		radius = defaultRadiusKM
	}
	cells, err := s.Store.CellsNear(r.Context(), lat, lon, radius, pollution.Gases,
		time.Now().UTC().Add(-cellSearchWindow), cellSearchLimit)
	if err != nil {
		s.writeMapped(w, err)
		return
	}

	features := make([]geoFeature, 0, len(cells))
	for _, c := range cells {
		if c.Severity < pollution.SeverityModerate {
			continue
		}
		features = append(features, geoFeature{
			Type: "Feature",
			Geometry: map[string]interface{}{
				"type":        "Point",
				"coordinates": []float64{c.Lon, c.Lat},
			},
			Properties: map[string]interface{}{
				"gas":            c.Gas,
				"value":          c.Value,
				"severity":       int(c.Severity),
				"severity_label": c.Severity.Label(),
				"timestamp":      c.Timestamp,
			},
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"type":     "FeatureCollection",
		"features": features,
	})
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, lon, err := parseLatLon(q.Get("lat"), q.Get("lon"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	days := cast.ToInt(q.Get("days"))
	if days < 1 {
		days = 1
	}
	if s.Weather == nil {
		writeError(w, http.StatusServiceUnavailable, "weather provider not configured")
		return
	}

	key := cache.WeatherKey(lat, lon, days)
	if s.Cache != nil {
		if body, ok := s.Cache.Get(r.Context(), key); ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(body))
			return
		}
	}
	fc, err := s.Weather.HourlyForecast(r.Context(), lat, lon, days)
	if err != nil {
		s.writeMapped(w, err)
		return
	}
	body, err := json.Marshal(fc)
	if err != nil {
		s.writeMapped(w, err)
		return
	}
	if s.Cache != nil {
		s.Cache.Set(r.Context(), key, string(body), cache.TTLWeather)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

func (s *Server) handlePollutantMovement(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, lon, err := parseLatLon(q.Get("lat"), q.Get("lon"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if s.Weather == nil {
		writeError(w, http.StatusServiceUnavailable, "weather provider not configured")
		return
	}

	key := cache.PollutantMovementKey(lat, lon)
	if s.Cache != nil {
		if body, ok := s.Cache.Get(r.Context(), key); ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(body))
			return
		}
	}
	mv, err := s.Weather.PredictMovement(r.Context(), lat, lon)
	if err != nil {
		s.writeMapped(w, err)
		return
	}
	body, err := json.Marshal(mv)
	if err != nil {
		s.writeMapped(w, err)
		return
	}
	if s.Cache != nil {
		s.Cache.Set(r.Context(), key, string(body), cache.TTLPollutantMovement)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

func (s *Server) handleCombinedAnalysis(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, lon, err := parseLatLon(q.Get("lat"), q.Get("lon"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	radius := cast.ToFloat64(q.Get("radius"))
	if radius <= 0 {
		radius = defaultRadiusKM
	}

	cells, err := s.Store.CellsNear(r.Context(), lat, lon, radius, pollution.Gases,
		time.Now().UTC().Add(-cellSearchWindow), cellSearchLimit)
	if err != nil {
		s.writeMapped(w, err)
		return
	}
	worst := pollution.SeverityGood
	perGas := map[pollution.Gas]hotspot{}
	for _, c := range cells {
		if c.Severity > worst {
			worst = c.Severity
		}
		if existing, ok := perGas[c.Gas]; !ok || c.Value > existing.Value {
			perGas[c.Gas] = hotspot{
				Gas: c.Gas, Lat: c.Lat, Lon: c.Lon, Value: c.Value,
				Severity: int(c.Severity), SeverityLabel: c.Severity.Label(),
				Unit: pollution.ThresholdTable[c.Gas].Unit, Timestamp: c.Timestamp,
			}
		}
	}

	resp := map[string]interface{}{
		"location":       map[string]float64{"lat": lat, "lon": lon},
		"overall_status": worst.Label(),
		"satellite":      perGas,
	}
	if s.Weather != nil {
		if obs, err := s.Weather.Current(r.Context(), lat, lon); err == nil {
			resp["weather"] = obs
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
