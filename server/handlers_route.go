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
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cast"

	"github.com/aerisnav/aeris/internal/store"
	"github.com/aerisnav/aeris/raster"
	"github.com/aerisnav/aeris/routing"
)

const routeSampleStepM = 50

func (s *Server) finalScoreDir() string {
	return filepath.Join(s.UPESBase, "hourly_scores", "final_score")
}

// routeParams pulls start/end/mode from either form or query values.
func routeParams(r *http.Request) (routing.Request, error) {
	get := r.URL.Query().Get
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err == nil {
			get = r.FormValue
		}
	}
	startLat, startLon, err := parseLatLon(get("start_lat"), get("start_lon"))
	if err != nil {
		return routing.Request{}, err
	}
	endLat, endLon, err := parseLatLon(get("end_lat"), get("end_lon"))
	if err != nil {
		return routing.Request{}, err
	}
	return routing.Request{
		StartLat: startLat, StartLon: startLon,
		EndLat: endLat, EndLon: endLon,
		Mode:         get("mode"),
		Alternatives: cast.ToInt(get("alternatives")),
	}, nil
}

func (s *Server) handleRouteOptimized(w http.ResponseWriter, r *http.Request) {
	if s.Optimizer == nil {
		writeError(w, http.StatusServiceUnavailable, "route optimization is disabled")
		return
	}
	req, err := routeParams(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	res, err := s.Optimizer.Optimize(r.Context(), req)
	if err != nil {
		s.writeMapped(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleRouteAnalyze samples the straight start-to-end line against the
// latest UPES raster, or delegates to the optimizer when asked.
func (s *Server) handleRouteAnalyze(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	if cast.ToBool(r.FormValue("use_optimized")) {
		s.handleRouteOptimized(w, r)
		return
	}
	req, err := routeParams(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	line := routing.StraightLine(req.StartLat, req.StartLon, req.EndLat, req.EndLon)
	distanceKM := raster.LineLengthM(line) / 1000

	var upes *raster.Raster
	var source string
	if r2, path, err := raster.LatestFinalScore(s.finalScoreDir()); err == nil {
		upes, source = r2, filepath.Base(path)
	}
	stats := raster.SampleAlongLine(upes, line, routeSampleStepM, 0.5)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"start":       map[string]float64{"lat": req.StartLat, "lon": req.StartLon},
		"end":         map[string]float64{"lat": req.EndLat, "lon": req.EndLon},
		"distance_km": distanceKM,
		"mean_upes":   stats.Mean,
		"max_upes":    stats.Max,
		"exposure":    stats.Mean * distanceKM,
		"score_source": func() interface{} {
			if source == "" {
				return nil
			}
			return source
		}(),
	})
}

type savedRouteBody struct {
	Name         string  `json:"name"`
	StartLat     float64 `json:"start_lat"`
	StartLon     float64 `json:"start_lon"`
	EndLat       float64 `json:"end_lat"`
	EndLon       float64 `json:"end_lon"`
	ActivityType string  `json:"activity_type"`
}

func (s *Server) handleCreateSavedRoute(w http.ResponseWriter, r *http.Request) {
	var body savedRouteBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Name == "" {
		writeError(w, http.StatusUnprocessableEntity, "name is required")
		return
	}
	if body.StartLat < -90 || body.StartLat > 90 || body.EndLat < -90 || body.EndLat > 90 ||
		body.StartLon < -180 || body.StartLon > 180 || body.EndLon < -180 || body.EndLon > 180 {
		writeError(w, http.StatusUnprocessableEntity, "coordinates out of range")
		return
	}
	route, err := s.Store.CreateSavedRoute(r.Context(), &store.SavedRoute{
		UserID:       currentUser(r).ID,
		Name:         body.Name,
		StartLat:     body.StartLat,
		StartLon:     body.StartLon,
		EndLat:       body.EndLat,
		EndLon:       body.EndLon,
		ActivityType: string(routing.CanonicalMode(body.ActivityType)),
	})
	if err != nil {
		s.writeMapped(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, route)
}

func (s *Server) handleListSavedRoutes(w http.ResponseWriter, r *http.Request) {
	routes, err := s.Store.SavedRoutesByUser(r.Context(), currentUser(r).ID)
	if err != nil {
		s.writeMapped(w, err)
		return
	}
	if routes == nil {
		routes = []*store.SavedRoute{}
	}
	writeJSON(w, http.StatusOK, routes)
}

func routeID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (s *Server) handleGetSavedRoute(w http.ResponseWriter, r *http.Request) {
	id, err := routeID(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid route id")
		return
	}
	route, err := s.Store.SavedRouteForUser(r.Context(), id, currentUser(r).ID)
	if err != nil {
		s.writeMapped(w, err)
		return
	}
	writeJSON(w, http.StatusOK, route)
}

func (s *Server) handleDeleteSavedRoute(w http.ResponseWriter, r *http.Request) {
	id, err := routeID(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid route id")
		return
	}
	if err := s.Store.DeleteSavedRoute(r.Context(), id, currentUser(r).ID); err != nil {
		s.writeMapped(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	days := 7
	if raw := q.Get("days"); raw != "" {
		days = cast.ToInt(raw)
		if days < 1 || days > 90 {
			writeError(w, http.StatusUnprocessableEntity, "days must be 1..90")
			return
		}
	}
	f := store.AlertFilter{
		AlertType: q.Get("alert_type"),
		Since:     time.Now().UTC().AddDate(0, 0, -days),
	}
	if raw := q.Get("route_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid route_id")
			return
		}
		f.RouteID = id
	}
	alerts, err := s.Store.AlertsByUser(r.Context(), currentUser(r).ID, f)
	if err != nil {
		s.writeMapped(w, err)
		return
	}
	if alerts == nil {
		alerts = []*store.AlertRecord{}
	}
	writeJSON(w, http.StatusOK, alerts)
}
