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
	"image"
	"image/color"
	"image/png"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/aerisnav/aeris/pollution"
	"github.com/aerisnav/aeris/raster"
	"github.com/aerisnav/aeris/upes"
)

func (s *Server) handleUPESLatest(w http.ResponseWriter, r *http.Request) {
	rl, err := upes.LatestRunLog(s.UPESBase)
	if err != nil {
		writeError(w, http.StatusNotFound, "no scoring run available")
		return
	}
	writeJSON(w, http.StatusOK, rl)
}

func (s *Server) handleUPESGrid(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("timestamp")
	if raw == "" {
		writeError(w, http.StatusUnprocessableEntity, "timestamp is required")
		return
	}
	slot, err := time.Parse("20060102_15", raw)
	if err != nil {
		if slot, err = time.Parse(time.RFC3339, raw); err != nil {
			writeError(w, http.StatusUnprocessableEntity,
				"timestamp must be YYYYMMDD_HH or RFC3339")
			return
		}
	}
	rl, err := upes.RunLogForSlot(s.UPESBase, slot.UTC().Truncate(time.Hour))
	if err != nil {
		writeError(w, http.StatusNotFound, "no scoring run for that hour")
		return
	}
	writeJSON(w, http.StatusOK, rl)
}

// handleRasterLatest streams the newest raw satellite GeoTIFF for a
// gas, resolved from the audit archive or the worker's local downloads.
func (s *Server) handleRasterLatest(w http.ResponseWriter, r *http.Request) {
	if s.Rasters == nil {
		writeError(w, http.StatusNotFound, "no raster available")
		return
	}
	gas := pollution.Gas(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("gas"))))
	if !pollution.Valid(gas) {
		writeError(w, http.StatusUnprocessableEntity, "gas must be one of NO2, O3, CH2O, AI, PM")
		return
	}
	path, ts, err := s.Rasters.Resolve(r.Context(), gas)
	if err != nil {
		s.writeMapped(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/tiff")
	w.Header().Set("X-Raster-Timestamp", ts.UTC().Format(time.RFC3339))
	http.ServeFile(w, r, path)
}

// heatmapColor maps a final score in [0, 1] onto a green-to-red ramp.
func heatmapColor(v float64) color.NRGBA {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	var r, g uint8
	if v < 0.5 {
		r = uint8(255 * v * 2)
		g = 255
	} else {
		r = 255
		g = uint8(255 * (1 - v) * 2)
	}
	return color.NRGBA{R: r, G: g, A: 200}
}

func (s *Server) handleUPESHeatmap(w http.ResponseWriter, r *http.Request) {
	score, _, err := raster.LatestFinalScore(s.finalScoreDir())
	if err != nil {
		writeError(w, http.StatusNotFound, "no scoring run available")
		return
	}

	img := image.NewNRGBA(image.Rect(0, 0, score.Width, score.Height))
	for row := 0; row < score.Height; row++ {
		for col := 0; col < score.Width; col++ {
			v := score.At(row, col)
			if math.IsNaN(v) {
				continue // transparent
			}
			img.SetNRGBA(col, row, heatmapColor(v))
		}
	}

	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, img); err != nil {
		s.logger().WithError(err).Error("encoding heatmap")
	}
}
