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

package raster

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Output file naming for one hour slot. All pipeline outputs for the
// hour share the YYYYMMDD_HH stamp in UTC.
const hourStamp = "20060102_15"

// SatelliteScorePath returns the satellite-score GeoTIFF path for an
// hour slot under dir.
func SatelliteScorePath(dir string, t time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("satellite_score_%s.tif", t.UTC().Format(hourStamp)))
}

// FinalScorePath returns the final UPES GeoTIFF path for an hour slot
// under dir.
func FinalScorePath(dir string, t time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("final_score_%s.tif", t.UTC().Format(hourStamp)))
}

// RunLogPath returns the JSON run-log path for an hour slot under dir.
func RunLogPath(dir string, t time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("upes_%s.json", t.UTC().Format(hourStamp)))
}

// ErrNoRaster is returned by Latest when no matching file exists yet.
var ErrNoRaster = fmt.Errorf("raster: no score raster available")

// Latest returns the path and modification time of the newest file in
// dir matching pattern (a filepath.Match glob such as
// "final_score_*.tif"). Returns ErrNoRaster when nothing matches.
func Latest(dir, pattern string) (string, time.Time, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("raster: globbing %s: %w", pattern, err)
	}
	var best string
	var bestTime time.Time
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		if best == "" || info.ModTime().After(bestTime) {
			best = m
			bestTime = info.ModTime()
		}
	}
	if best == "" {
		return "", time.Time{}, ErrNoRaster
	}
	return best, bestTime, nil
}

// LatestFinalScore loads the newest final UPES raster under dir.
func LatestFinalScore(dir string) (*Raster, string, error) {
	path, _, err := Latest(dir, "final_score_*.tif")
	if err != nil {
		return nil, "", err
	}
	r, err := ReadGeoTIFF(path)
	if err != nil {
		return nil, "", err
	}
	return r, path, nil
}
