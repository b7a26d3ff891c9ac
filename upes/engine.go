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
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/aerisnav/aeris/internal/cache"
	"github.com/aerisnav/aeris/internal/metrics"
	"github.com/aerisnav/aeris/internal/store"
	"github.com/aerisnav/aeris/pollution"
	"github.com/aerisnav/aeris/raster"
	"github.com/aerisnav/aeris/weather"
)

// GridSource supplies the aggregated pollution window.
type GridSource interface {
	AggregateLatestWindow(ctx context.Context, west, north, res float64) ([]store.CellValue, time.Time, error)
}

// WeatherSource supplies current conditions at the grid center.
type WeatherSource interface {
	Current(ctx context.Context, lat, lon float64) (weather.Observation, error)
}

// ErrNoData is returned when the pollution grid holds nothing to
// score.
var ErrNoData = fmt.Errorf("upes: no pollution data in window")

// RunLog is the JSON artifact written next to the rasters.
type RunLog struct {
	Timestamp      time.Time             `json:"timestamp"`
	HourSlot       string                `json:"hour_slot"`
	Humidity       float64               `json:"humidity"`
	WindKPH        float64               `json:"wind_kph"`
	HDF            float64               `json:"hdf"`
	WTF            float64               `json:"wtf"`
	TF             float64               `json:"tf"`
	EMALambda      float64               `json:"ema_lambda"`
	Smoothed       bool                  `json:"smoothed"`
	CellsScored    int                   `json:"cells_scored"`
	GasCellCounts  map[pollution.Gas]int `json:"gas_cell_counts"`
	MeanFinalScore float64               `json:"mean_final_score"`
	SatellitePath  string                `json:"satellite_path"`
	FinalPath      string                `json:"final_path"`
}

// Engine runs the hourly scoring step.
type Engine struct {
	Spec         GridSpec
	Grid         GridSource
	Weather      WeatherSource
	Cache        cache.Cache
	OutputBase   string
	EMALambda    float64
	TrafficAlpha float64
	// TrafficDensity is 0 until a traffic source exists.
	TrafficDensity float64
	Log            logrus.FieldLogger
}

func (e *Engine) logger() logrus.FieldLogger {
	if e.Log != nil {
		return e.Log
	}
	return logrus.StandardLogger()
}

// Directory layout under OutputBase.
func (e *Engine) satelliteDir() string {
	return filepath.Join(e.OutputBase, "hourly_scores", "satellite_score")
}
func (e *Engine) finalDir() string {
	return filepath.Join(e.OutputBase, "hourly_scores", "final_score")
}
func (e *Engine) logDir() string { return filepath.Join(e.OutputBase, "logs") }

// FinalDir exposes the final-score directory to the route and alert
// engines.
func (e *Engine) FinalDir() string { return e.finalDir() }

// Run executes one scoring pass and returns the run log. It returns
// ErrNoData (and writes nothing) when the pollution grid is empty.
func (e *Engine) Run(ctx context.Context) (*RunLog, error) {
	log := e.logger()
	timer := prometheus.NewTimer(metrics.UPESRunSeconds)
	defer timer.ObserveDuration()

	cells, newest, err := e.Grid.AggregateLatestWindow(ctx, e.Spec.West, e.Spec.North, e.Spec.Res)
	if err != nil {
		return nil, fmt.Errorf("upes: aggregating window: %w", err)
	}
	if len(cells) == 0 {
		return nil, ErrNoData
	}
	slot := newest.UTC().Truncate(time.Hour)

	grids := GasGrids(e.Spec, cells)
	counts := make(map[pollution.Gas]int, len(grids))
	for gas, r := range grids {
		n := 0
		for _, v := range r.Data {
			if !math.IsNaN(v) {
				n++
			}
		}
		counts[gas] = n
		Normalize(gas, r)
	}

	sat := SatelliteScore(e.Spec, grids)

	// Weather is advisory: on failure score with neutral factors.
	var obs weather.Observation
	lat, lon := e.Spec.Center()
	if e.Weather != nil {
		if obs, err = e.Weather.Current(ctx, lat, lon); err != nil {
			log.WithError(err).Warn("upes: weather unavailable, using neutral factors")
			obs = weather.Observation{Humidity: 50}
		}
	} else {
		obs = weather.Observation{Humidity: 50}
	}
	hdf := HumidityFactor(obs.Humidity)
	wtf := WindFactor(obs.WindKPH)
	tf := TrafficFactor(e.TrafficAlpha, e.TrafficDensity)

	final := sat.Copy()
	ApplyFactors(final, hdf, wtf, tf)

	smoothed := false
	if e.EMALambda > 0 {
		if prev, _, err := raster.LatestFinalScore(e.finalDir()); err == nil {
			final = Smooth(final, prev, e.EMALambda)
			smoothed = true
		}
	}

	satPath := raster.SatelliteScorePath(e.satelliteDir(), slot)
	finalPath := raster.FinalScorePath(e.finalDir(), slot)
	if err := raster.WriteGeoTIFF(satPath, sat); err != nil {
		return nil, fmt.Errorf("upes: writing satellite score: %w", err)
	}
	if err := raster.WriteGeoTIFF(finalPath, final); err != nil {
		return nil, fmt.Errorf("upes: writing final score: %w", err)
	}

	scored := 0
	for _, v := range final.Data {
		if !math.IsNaN(v) {
			scored++
		}
	}
	rl := &RunLog{
		Timestamp:      time.Now().UTC(),
		HourSlot:       slot.Format("20060102_15"),
		Humidity:       obs.Humidity,
		WindKPH:        obs.WindKPH,
		HDF:            hdf,
		WTF:            wtf,
		TF:             tf,
		EMALambda:      e.EMALambda,
		Smoothed:       smoothed,
		CellsScored:    scored,
		GasCellCounts:  counts,
		MeanFinalScore: final.Mean(),
		SatellitePath:  satPath,
		FinalPath:      finalPath,
	}
	if err := e.writeRunLog(slot, rl); err != nil {
		return nil, err
	}
	if e.Cache != nil {
		e.Cache.Set(ctx, cache.KeyUPESLastUpdate, rl.Timestamp.Format(time.RFC3339), cache.TTLLastUpdate)
	}
	log.WithFields(logrus.Fields{
		"slot": rl.HourSlot, "cells": scored, "hdf": hdf, "wtf": wtf,
	}).Info("upes: run complete")
	return rl, nil
}

func (e *Engine) writeRunLog(slot time.Time, rl *RunLog) error {
	path := raster.RunLogPath(e.logDir(), slot)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("upes: creating log dir: %w", err)
	}
	data, err := json.MarshalIndent(rl, "", "  ")
	if err != nil {
		return fmt.Errorf("upes: encoding run log: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("upes: writing run log: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("upes: renaming run log: %w", err)
	}
	return nil
}

// LatestRunLog loads the newest run log under the output base.
func LatestRunLog(outputBase string) (*RunLog, error) {
	path, _, err := raster.Latest(filepath.Join(outputBase, "logs"), "upes_*.json")
	if err != nil {
		return nil, err
	}
	return readRunLog(path)
}

// RunLogForSlot loads the run log for a specific hour.
func RunLogForSlot(outputBase string, slot time.Time) (*RunLog, error) {
	return readRunLog(raster.RunLogPath(filepath.Join(outputBase, "logs"), slot))
}

func readRunLog(path string) (*RunLog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("upes: reading run log: %w", err)
	}
	var rl RunLog
	if err := json.Unmarshal(data, &rl); err != nil {
		return nil, fmt.Errorf("upes: decoding run log %s: %w", path, err)
	}
	return &rl, nil
}
