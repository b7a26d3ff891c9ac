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

package store

import (
	"time"

	"github.com/ctessum/geom"

	"github.com/aerisnav/aeris/pollution"
)

// User is a registered account.
type User struct {
	ID                       int64           `json:"id"`
	Email                    string          `json:"email"`
	HashedPassword           string          `json:"-"`
	ExposureSensitivityLevel int             `json:"exposure_sensitivity_level"`
	NotificationPreferences  map[string]bool `json:"notification_preferences"`
	CreatedAt                time.Time       `json:"created_at"`
}

// SavedRoute is a user-owned origin/destination pair.
type SavedRoute struct {
	ID                int64      `json:"id"`
	UserID            int64      `json:"user_id"`
	Name              string     `json:"name"`
	StartLat          float64    `json:"start_lat"`
	StartLon          float64    `json:"start_lon"`
	EndLat            float64    `json:"end_lat"`
	EndLon            float64    `json:"end_lon"`
	ActivityType      string     `json:"activity_type"`
	LastUPESScore     *float64   `json:"last_upes_score,omitempty"`
	LastUPESUpdatedAt *time.Time `json:"last_upes_updated_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// ExposureRecord is one route_exposure_history event.
type ExposureRecord struct {
	ID                int64     `json:"id"`
	RouteID           int64     `json:"route_id"`
	Timestamp         time.Time `json:"timestamp"`
	UPESScore         float64   `json:"upes_score"`
	MaxUPESAlongRoute float64   `json:"max_upes_along_route"`
	ScoreSource       string    `json:"score_source"`
}

// AlertRecord is one alert_log row. The JSON field name alert_metadata
// maps onto the DB column metadata.
type AlertRecord struct {
	ID               int64                  `json:"alert_id"`
	UserID           int64                  `json:"user_id"`
	RouteID          int64                  `json:"route_id"`
	AlertType        string                 `json:"alert_type"`
	ScoreBefore      float64                `json:"score_before"`
	ScoreAfter       float64                `json:"score_after"`
	Threshold        float64                `json:"threshold"`
	Metadata         map[string]interface{} `json:"alert_metadata"`
	NotifiedChannels []string               `json:"notified_channels"`
	CreatedAt        time.Time              `json:"created_at"`
}

// NetCDFFile indexes a raster blob held in object storage.
type NetCDFFile struct {
	ID         int64         `json:"id"`
	FileName   string        `json:"file_name"`
	BucketPath string        `json:"bucket_path"`
	Timestamp  time.Time     `json:"timestamp"`
	GasType    pollution.Gas `json:"gas_type"`
}

// GridCell is one pollution_grid row ready for insertion. GeomWKT is
// the closed pixel polygon in WGS84.
type GridCell struct {
	Timestamp      time.Time
	GasType        pollution.Gas
	GeomWKT        string
	PollutionValue float64
	SeverityLevel  pollution.Severity
}

// CellValue is an aggregated (gas, cell) mean used by the UPES engine.
type CellValue struct {
	Gas      pollution.Gas
	Row, Col int
	Value    float64
}

// SevereCell is a recent high-severity cell centroid, used by hotspot
// detection and the wind-shift source-point search.
type SevereCell struct {
	Gas       pollution.Gas
	Lat, Lon  float64
	Value     float64
	Severity  pollution.Severity
	Timestamp time.Time
}

// RoadEdge is one road segment from the OSM import. Geom runs in draw
// order; traversal in both directions is decided by the caller from
// Oneway.
type RoadEdge struct {
	ID       int64
	Highway  string
	Oneway   string
	Cycleway string
	Foot     string
	Leisure  string
	MaxSpeed string
	Geom     geom.LineString
}
