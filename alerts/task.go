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
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aerisnav/aeris/internal/store"
	"github.com/aerisnav/aeris/pollution"
	"github.com/aerisnav/aeris/raster"
	"github.com/aerisnav/aeris/routing"
	"github.com/aerisnav/aeris/weather"
)

// sampleStepM matches the route engine's sampler.
const sampleStepM = 50

// fallbackUPES is unused for scoring (the task skips without a
// raster) but keeps the sampler contract explicit.
const fallbackUPES = 0.5

// sourceSearchDeg expands the route bbox when looking for a wind-shift
// source cell.
const sourceSearchDeg = 0.1

// Store is the slice of the data layer the alert tasks need.
type Store interface {
	AllSavedRoutes(ctx context.Context) ([]*store.SavedRoute, error)
	UserByID(ctx context.Context, id int64) (*store.User, error)
	ExposureHistory(ctx context.Context, routeID int64, since time.Time) ([]*store.ExposureRecord, error)
	RecordExposure(ctx context.Context, rec *store.ExposureRecord) error
	InsertAlert(ctx context.Context, a *store.AlertRecord) error
	HasAlertSince(ctx context.Context, routeID int64, alertType string, t time.Time) (bool, error)
	SevereCells(ctx context.Context, west, south, east, north float64,
		minSeverity pollution.Severity, since time.Time, limit int) ([]store.SevereCell, error)
}

// WeatherSource supplies conditions at route midpoints.
type WeatherSource interface {
	Current(ctx context.Context, lat, lon float64) (weather.Observation, error)
}

// Dispatcher delivers triggered alert batches.
type Dispatcher interface {
	Dispatch(ctx context.Context, batch []WebhookAlert) error
}

// Config holds the detection thresholds.
type Config struct {
	DeteriorationBasePct float64
	HazardThreshold      float64
	WindSpeedMinKPH      float64
	WindAngleDeg         float64
}

// Engine runs the two scheduled alert tasks.
type Engine struct {
	Store         Store
	Weather       WeatherSource
	Webhook       Dispatcher
	FinalScoreDir string
	Config        Config
	Log           logrus.FieldLogger

	// now is swapped in tests.
	now func() time.Time
}

func (e *Engine) logger() logrus.FieldLogger {
	if e.Log != nil {
		return e.Log
	}
	return logrus.StandardLogger()
}

func (e *Engine) clock() time.Time {
	if e.now != nil {
		return e.now()
	}
	return time.Now().UTC()
}

// ExposureResult summarizes one scoring run.
type ExposureResult struct {
	Status string `json:"status"` // "ok" or "skipped"
	Scored int    `json:"scored"`
	Failed int    `json:"failed"`
}

// ScoreSavedRoutes samples the current UPES raster along every saved
// route's straight origin-to-destination line and appends history
// rows. When no raster exists the run reports skipped and writes
// nothing.
func (e *Engine) ScoreSavedRoutes(ctx context.Context) (*ExposureResult, error) {
	log := e.logger()
	upes, path, err := raster.LatestFinalScore(e.FinalScoreDir)
	if err != nil {
		log.Info("alerts: no UPES raster, skipping exposure scoring")
		return &ExposureResult{Status: "skipped"}, nil
	}
	return e.scoreWithRaster(ctx, upes, path)
}

func (e *Engine) scoreWithRaster(ctx context.Context, upes *raster.Raster, source string) (*ExposureResult, error) {
	log := e.logger()
	routes, err := e.Store.AllSavedRoutes(ctx)
	if err != nil {
		return nil, err
	}
	res := &ExposureResult{Status: "ok"}
	now := e.clock()
	for _, r := range routes {
		line := routing.StraightLine(r.StartLat, r.StartLon, r.EndLat, r.EndLon)
		stats := raster.SampleAlongLine(upes, line, sampleStepM, fallbackUPES)
		rec := &store.ExposureRecord{
			RouteID:           r.ID,
			Timestamp:         now,
			UPESScore:         stats.Mean,
			MaxUPESAlongRoute: stats.Max,
			ScoreSource:       "upes_raster",
		}
		if err := e.Store.RecordExposure(ctx, rec); err != nil {
			log.WithError(err).WithField("route", r.ID).Warn("alerts: exposure write failed")
			res.Failed++
			continue
		}
		res.Scored++
	}
	log.WithFields(logrus.Fields{"scored": res.Scored, "raster": source}).
		Info("alerts: exposure scoring complete")
	return res, nil
}

// PipelineResult summarizes one alert pipeline run.
type PipelineResult struct {
	Evaluated int `json:"evaluated"`
	Triggered int `json:"triggered"`
}

// RunPipeline evaluates the four checks for every saved route,
// persists triggered alerts, and dispatches the batch. Per-route
// failures are absorbed.
func (e *Engine) RunPipeline(ctx context.Context) (*PipelineResult, error) {
	log := e.logger()
	routes, err := e.Store.AllSavedRoutes(ctx)
	if err != nil {
		return nil, err
	}
	res := &PipelineResult{}
	var batch []WebhookAlert
	for _, r := range routes {
		res.Evaluated++
		alerts, err := e.evaluateRoute(ctx, r)
		if err != nil {
			log.WithError(err).WithField("route", r.ID).Warn("alerts: route evaluation failed")
			continue
		}
		batch = append(batch, alerts...)
		res.Triggered += len(alerts)
	}
	if e.Webhook != nil {
		// Best-effort: DB writes stand even when delivery fails.
		if err := e.Webhook.Dispatch(ctx, batch); err != nil {
			log.WithError(err).Warn("alerts: batch dispatch failed")
		}
	}
	log.WithFields(logrus.Fields{"evaluated": res.Evaluated, "triggered": res.Triggered}).
		Info("alerts: pipeline complete")
	return res, nil
}

func (e *Engine) evaluateRoute(ctx context.Context, r *store.SavedRoute) ([]WebhookAlert, error) {
	now := e.clock()
	user, err := e.Store.UserByID(ctx, r.UserID)
	if err != nil {
		return nil, err
	}
	history, err := e.Store.ExposureHistory(ctx, r.ID, now.Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, nil
	}
	current := history[0]
	var previous *store.ExposureRecord
	if len(history) > 1 {
		previous = history[1]
	}

	var detections []Detection
	if d, ok := CheckDeterioration(current, previous,
		e.Config.DeteriorationBasePct, user.ExposureSensitivityLevel); ok {
		dup, err := e.Store.HasAlertSince(ctx, r.ID, TypeDeterioration, now.Truncate(time.Hour))
		if err != nil {
			return nil, err
		}
		if !dup {
			detections = append(detections, d)
		}
	}
	if d, ok := CheckHazard(current, e.Config.HazardThreshold); ok {
		detections = append(detections, d)
	}
	if d, ok := e.checkWindShift(ctx, r, now); ok {
		detections = append(detections, d)
	}
	if d, ok := CheckTimeBased(history); ok {
		detections = append(detections, d)
	}

	channels := Channels(user.NotificationPreferences)
	var out []WebhookAlert
	for _, d := range detections {
		rec := &store.AlertRecord{
			UserID:           user.ID,
			RouteID:          r.ID,
			AlertType:        d.Type,
			ScoreBefore:      d.ScoreBefore,
			ScoreAfter:       d.ScoreAfter,
			Threshold:        d.Threshold,
			Metadata:         d.Metadata,
			NotifiedChannels: channels,
		}
		if err := e.Store.InsertAlert(ctx, rec); err != nil {
			return nil, err
		}
		out = append(out, WebhookAlert{
			AlertID:     rec.ID,
			UserID:      user.ID,
			RouteID:     r.ID,
			AlertType:   d.Type,
			Message:     d.Message,
			ScoreBefore: d.ScoreBefore,
			ScoreAfter:  d.ScoreAfter,
			Channels:    channels,
		})
	}
	return out, nil
}

// checkWindShift finds a recent high-severity cell near the route to
// act as the pollution source; with no source or no weather the check
// is skipped.
func (e *Engine) checkWindShift(ctx context.Context, r *store.SavedRoute, now time.Time) (Detection, bool) {
	if e.Weather == nil {
		return Detection{}, false
	}
	west := minF(r.StartLon, r.EndLon) - sourceSearchDeg
	east := maxF(r.StartLon, r.EndLon) + sourceSearchDeg
	south := minF(r.StartLat, r.EndLat) - sourceSearchDeg
	north := maxF(r.StartLat, r.EndLat) + sourceSearchDeg

	cells, err := e.Store.SevereCells(ctx, west, south, east, north,
		pollution.SeverityVeryUnhealthy, now.Add(-3*time.Hour), 1)
	if err != nil || len(cells) == 0 {
		return Detection{}, false
	}
	src := cells[0]

	midLat := (r.StartLat + r.EndLat) / 2
	midLon := (r.StartLon + r.EndLon) / 2
	obs, err := e.Weather.Current(ctx, midLat, midLon)
	if err != nil {
		return Detection{}, false
	}
	return CheckWindShift(src.Lat, src.Lon, midLat, midLon,
		obs.WindKPH, obs.WindDegree, e.Config.WindSpeedMinKPH, e.Config.WindAngleDeg)
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
