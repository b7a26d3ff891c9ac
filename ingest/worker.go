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

package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aerisnav/aeris/harmony"
	"github.com/aerisnav/aeris/internal/blob"
	"github.com/aerisnav/aeris/internal/cache"
	"github.com/aerisnav/aeris/internal/metrics"
	"github.com/aerisnav/aeris/internal/store"
	"github.com/aerisnav/aeris/pollution"
	"github.com/aerisnav/aeris/raster"
)

// readRaster is swapped in tests to avoid a GDAL dependency.
var readRaster = raster.ReadGeoTIFF

// Fetcher is the coverage service the worker pulls rasters from.
type Fetcher interface {
	HasGranules(ctx context.Context, gas pollution.Gas, bbox harmony.BBox, start, end time.Time) (bool, error)
	Fetch(ctx context.Context, gas pollution.Gas, bbox harmony.BBox, start, end time.Time, dir string) (string, error)
}

// GridStore is the slice of the data layer the worker writes to.
type GridStore interface {
	InsertGridCells(ctx context.Context, cells []store.GridCell) (int64, error)
	InsertNetCDFFile(ctx context.Context, f *store.NetCDFFile) error
}

// Archiver keeps audit copies of the raw rasters.
type Archiver interface {
	Configured() bool
	Upload(ctx context.Context, key, path string) error
}

// Worker runs the hourly multi-gas ingestion cycle.
type Worker struct {
	Fetcher  Fetcher
	Store    GridStore
	Archiver Archiver
	Cache    cache.Cache
	BBox     harmony.BBox
	MaxCells int
	Chunk    int
	WorkDir  string
	Log      logrus.FieldLogger

	// OnNewData fires after a cycle that inserted rows, so scoring can
	// follow immediately instead of waiting for the next beat.
	OnNewData func(ctx context.Context)
}

// GasResult is the per-gas outcome of one cycle.
type GasResult struct {
	Gas      pollution.Gas `json:"gas"`
	Status   string        `json:"status"` // "ok", "no_data", "error"
	Inserted int64         `json:"inserted"`
	Error    string        `json:"error,omitempty"`
}

// CycleResult summarizes one hourly run.
type CycleResult struct {
	HourSlot time.Time   `json:"hour_slot"`
	Inserted int64       `json:"inserted"`
	Gases    []GasResult `json:"gases"`
}

func (w *Worker) logger() logrus.FieldLogger {
	if w.Log != nil {
		return w.Log
	}
	return logrus.StandardLogger()
}

func (w *Worker) chunkSize() int {
	if w.Chunk > 0 {
		return w.Chunk
	}
	return 2000
}

// RunCycle ingests the previous full hour for every gas. A failure on
// one gas is recorded and the cycle moves on; only a total failure
// returns an error.
func (w *Worker) RunCycle(ctx context.Context) (*CycleResult, error) {
	end := time.Now().UTC().Truncate(time.Hour)
	return w.runWindow(ctx, end.Add(-time.Hour), end)
}

// RunWindow ingests an explicit [start, end) window, used by backfill.
func (w *Worker) RunWindow(ctx context.Context, start, end time.Time) (*CycleResult, error) {
	return w.runWindow(ctx, start.UTC(), end.UTC())
}

func (w *Worker) runWindow(ctx context.Context, start, end time.Time) (*CycleResult, error) {
	log := w.logger()
	res := &CycleResult{HourSlot: start}

	dir := w.WorkDir
	if dir == "" {
		var err error
		dir, err = os.MkdirTemp("", "aeris-ingest-*")
		if err != nil {
			return nil, err
		}
		defer os.RemoveAll(dir)
	}

	for _, gas := range pollution.Gases {
		gr := w.ingestGas(ctx, gas, start, end, dir)
		res.Gases = append(res.Gases, gr)
		res.Inserted += gr.Inserted
		metrics.GridRowsIngested.WithLabelValues(string(gas)).Add(float64(gr.Inserted))
		if gr.Status == "error" {
			log.WithField("gas", gas).Warn("ingest: " + gr.Error)
		}
	}

	if res.Inserted > 0 {
		if w.Cache != nil {
			w.Cache.Set(ctx, cache.KeyTempoLastUpdate, start.Format(time.RFC3339), cache.TTLLastUpdate)
		}
		if w.OnNewData != nil {
			w.OnNewData(ctx)
		}
	}
	log.WithFields(logrus.Fields{"hour": start.Format("2006-01-02T15"), "rows": res.Inserted}).
		Info("ingest: cycle complete")
	return res, nil
}

func (w *Worker) ingestGas(ctx context.Context, gas pollution.Gas, start, end time.Time, dir string) GasResult {
	gr := GasResult{Gas: gas, Status: "ok"}

	// The granule probe fails open: a broken catalog should not stop
	// the coverage request itself.
	if ok, err := w.Fetcher.HasGranules(ctx, gas, w.BBox, start, end); err == nil && !ok {
		gr.Status = "no_data"
		return gr
	}

	path, err := w.Fetcher.Fetch(ctx, gas, w.BBox, start, end, dir)
	if err != nil {
		if errors.Is(err, harmony.ErrNoGranules) {
			gr.Status = "no_data"
			return gr
		}
		gr.Status = "error"
		gr.Error = err.Error()
		return gr
	}

	r, err := readRaster(path)
	if err != nil {
		gr.Status = "error"
		gr.Error = err.Error()
		return gr
	}

	cells := Normalize(r, gas, start, w.MaxCells)
	if len(cells) == 0 {
		gr.Status = "no_data"
		return gr
	}
	for len(cells) > 0 {
		n := w.chunkSize()
		if n > len(cells) {
			n = len(cells)
		}
		inserted, err := w.Store.InsertGridCells(ctx, cells[:n])
		if err != nil {
			gr.Status = "error"
			gr.Error = err.Error()
			return gr
		}
		gr.Inserted += inserted
		cells = cells[n:]
	}

	w.archive(ctx, gas, start, path)
	return gr
}

// archive uploads the raw raster for audit and indexes it. Best-effort:
// grid rows are already committed.
func (w *Worker) archive(ctx context.Context, gas pollution.Gas, slot time.Time, path string) {
	if w.Archiver == nil || !w.Archiver.Configured() {
		return
	}
	log := w.logger()
	key := blob.AuditKey(gas, slot)
	if err := w.Archiver.Upload(ctx, key, path); err != nil {
		log.WithError(err).WithField("gas", gas).Warn("ingest: audit upload failed")
		return
	}
	err := w.Store.InsertNetCDFFile(ctx, &store.NetCDFFile{
		FileName:   filepath.Base(path),
		BucketPath: key,
		Timestamp:  slot,
		GasType:    gas,
	})
	if err != nil {
		log.WithError(err).WithField("gas", gas).Warn("ingest: audit index failed")
	}
}
