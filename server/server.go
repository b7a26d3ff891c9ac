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

// Package server is the AERIS HTTP surface: auth, air-quality queries,
// route optimization, saved routes, alerts, and the UPES artifacts.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/aerisnav/aeris/geocode"
	"github.com/aerisnav/aeris/internal/cache"
	"github.com/aerisnav/aeris/internal/metrics"
	"github.com/aerisnav/aeris/internal/store"
	"github.com/aerisnav/aeris/pollution"
	"github.com/aerisnav/aeris/routing"
	"github.com/aerisnav/aeris/weather"
)

// DataStore is the slice of the data layer the handlers use. Satisfied
// by *store.Store; tests supply fakes.
type DataStore interface {
	CreateUser(ctx context.Context, email, hashedPassword string) (*store.User, error)
	UserByEmail(ctx context.Context, email string) (*store.User, error)
	UserByID(ctx context.Context, id int64) (*store.User, error)
	UpdateUserPrefs(ctx context.Context, id int64, sensitivity *int, prefs map[string]bool) (*store.User, error)

	CreateSavedRoute(ctx context.Context, r *store.SavedRoute) (*store.SavedRoute, error)
	SavedRoutesByUser(ctx context.Context, userID int64) ([]*store.SavedRoute, error)
	SavedRouteForUser(ctx context.Context, id, userID int64) (*store.SavedRoute, error)
	DeleteSavedRoute(ctx context.Context, id, userID int64) error

	AlertsByUser(ctx context.Context, userID int64, f store.AlertFilter) ([]*store.AlertRecord, error)

	SevereCells(ctx context.Context, west, south, east, north float64,
		minSeverity pollution.Severity, since time.Time, limit int) ([]store.SevereCell, error)
	CellsNear(ctx context.Context, lat, lon, radiusKM float64,
		gases []pollution.Gas, since time.Time, limit int) ([]store.SevereCell, error)
}

// WeatherClient is the weather provider surface the handlers consume.
type WeatherClient interface {
	Current(ctx context.Context, lat, lon float64) (weather.Observation, error)
	HourlyForecast(ctx context.Context, lat, lon float64, days int) (*weather.Forecast, error)
	PredictMovement(ctx context.Context, lat, lon float64) (*weather.Movement, error)
}

// Geocoder resolves place names.
type Geocoder interface {
	Forward(ctx context.Context, query string) (geocode.Place, error)
	Reverse(ctx context.Context, lat, lon float64) (geocode.Place, error)
}

// Optimizer answers route optimization requests.
type Optimizer interface {
	Optimize(ctx context.Context, req routing.Request) (*routing.Result, error)
}

// RasterResolver locates the newest raw satellite raster for a gas.
type RasterResolver interface {
	Resolve(ctx context.Context, gas pollution.Gas) (path string, ts time.Time, err error)
}

// Server holds the handler dependencies.
type Server struct {
	Store     DataStore
	Cache     cache.Cache
	Weather   WeatherClient
	Geocoder  Geocoder
	Optimizer Optimizer
	Rasters   RasterResolver

	// UPESBase is the scoring output directory; FinalScoreDir derives
	// from it.
	UPESBase string

	JWTSecret string
	TokenTTL  time.Duration

	Log logrus.FieldLogger
}

func (s *Server) logger() logrus.FieldLogger {
	if s.Log != nil {
		return s.Log
	}
	return logrus.StandardLogger()
}

// Router assembles the chi mux.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(s.observe)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Post("/auth/register", s.handleRegister)
	r.Post("/auth/login", s.handleLogin)
	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/auth/me", s.handleMe)
		r.Patch("/auth/me", s.handleUpdateMe)

		r.Route("/api/saved-routes", func(r chi.Router) {
			r.Post("/", s.handleCreateSavedRoute)
			r.Get("/", s.handleListSavedRoutes)
			r.Get("/{id}", s.handleGetSavedRoute)
			r.Delete("/{id}", s.handleDeleteSavedRoute)
		})
		r.Get("/api/alerts", s.handleAlerts)
	})

	r.Post("/api/analyze", s.handleAnalyze)
	r.Get("/api/hotspots", s.handleHotspots)
	r.Get("/api/weather", s.handleWeather)
	r.Get("/api/pollutant_movement", s.handlePollutantMovement)
	r.Get("/api/combined_analysis", s.handleCombinedAnalysis)
	r.Post("/api/route/analyze", s.handleRouteAnalyze)
	r.Get("/api/route/optimized", s.handleRouteOptimized)
	r.Post("/api/route/optimized", s.handleRouteOptimized)
	r.Get("/api/raster/latest", s.handleRasterLatest)
	r.Get("/api/upes/latest", s.handleUPESLatest)
	r.Get("/api/upes/grid", s.handleUPESGrid)
	r.Get("/api/upes/heatmap", s.handleUPESHeatmap)

	return r
}

// requestID tags every response so client reports can be matched to
// server logs.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

// observe records request latency per route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		metrics.RequestDuration.WithLabelValues(route, strconv.Itoa(ww.Status()/100*100)).
			Observe(time.Since(start).Seconds())
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
