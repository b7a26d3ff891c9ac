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

// Package config loads the process configuration from the environment.
// No other package reads environment variables; components receive a
// Config (or the slice of it they need) at construction.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// BBox is a geographic window in WGS84 degrees.
type BBox struct {
	West, South, East, North float64
}

// Config is an immutable snapshot of the environment.
type Config struct {
	ListenAddr string

	DatabaseURL string
	RedisURL    string

	SecretKey         string
	AccessTokenExpire time.Duration

	ObjectStorageProvider  string
	ObjectStorageEndpoint  string
	ObjectStorageBucket    string
	ObjectStorageAccessKey string
	ObjectStorageSecretKey string
	AWSRegion              string

	PersistPollutionGrid bool

	// IngestWorkDir keeps raw downloads between cycles when set; empty
	// means a throwaway temp dir per cycle.
	IngestWorkDir string

	HarmonyBaseURL    string
	BearerToken       string
	EarthdataUsername string
	EarthdataPassword string

	TempoBBox BBox

	IngestMaxCells  int
	IngestChunkSize int

	UPESOutputBase     string
	UPESGridResolution float64
	UPESEMALambda      float64
	UPESTrafficAlpha   float64

	RouteOptimizationEnabled bool
	RouteOSMBufferKM         float64
	RouteResultCacheTTL      time.Duration

	AlertsDeteriorationBasePct float64
	AlertsHazardThreshold      float64
	AlertsWindSpeedMinKPH      float64
	AlertsWindAngleDeg         float64
	AlertsWebhookURL           string

	WeatherAPIKey  string
	WeatherBaseURL string
	GeocodeBaseURL string
	GroqAPIKey     string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LISTEN_ADDR", ":8000")
	v.SetDefault("ACCESS_TOKEN_EXPIRE_MINUTES", 60)
	v.SetDefault("PERSIST_POLLUTION_GRID", true)
	v.SetDefault("AWS_REGION", "us-east-1")

	// Continental US window.
	v.SetDefault("TEMPO_BBOX_WEST", -125.0)
	v.SetDefault("TEMPO_BBOX_SOUTH", 24.0)
	v.SetDefault("TEMPO_BBOX_EAST", -66.0)
	v.SetDefault("TEMPO_BBOX_NORTH", 50.0)

	v.SetDefault("INGEST_MAX_CELLS", 5000)
	v.SetDefault("INGEST_CHUNK_SIZE", 2000)

	v.SetDefault("UPES_OUTPUT_BASE", "upes_output")
	v.SetDefault("UPES_GRID_RESOLUTION_DEG", 0.05)
	v.SetDefault("UPES_EMA_LAMBDA", 0.6)
	v.SetDefault("UPES_TRAFFIC_ALPHA", 0.0)

	v.SetDefault("ROUTE_OPTIMIZATION_ENABLED", true)
	v.SetDefault("ROUTE_OSM_BUFFER_KM", 3.0)
	v.SetDefault("ROUTE_RESULT_CACHE_TTL", 300)

	v.SetDefault("ALERTS_DETERIORATION_BASE_PCT", 0.15)
	v.SetDefault("ALERTS_HAZARD_THRESHOLD", 0.85)
	v.SetDefault("ALERTS_WIND_SPEED_MIN_KPH", 5.0)
	v.SetDefault("ALERTS_WIND_ANGLE_DEG", 45.0)
}

// Load reads the environment into a Config.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	c := &Config{
		ListenAddr: v.GetString("LISTEN_ADDR"),

		DatabaseURL: v.GetString("DATABASE_URL"),
		RedisURL:    v.GetString("REDIS_URL"),

		SecretKey:         v.GetString("SECRET_KEY"),
		AccessTokenExpire: time.Duration(v.GetInt("ACCESS_TOKEN_EXPIRE_MINUTES")) * time.Minute,

		ObjectStorageProvider:  v.GetString("OBJECT_STORAGE_PROVIDER"),
		ObjectStorageEndpoint:  v.GetString("OBJECT_STORAGE_ENDPOINT_URL"),
		ObjectStorageBucket:    v.GetString("OBJECT_STORAGE_BUCKET"),
		ObjectStorageAccessKey: v.GetString("AWS_ACCESS_KEY_ID"),
		ObjectStorageSecretKey: v.GetString("AWS_SECRET_ACCESS_KEY"),
		AWSRegion:              v.GetString("AWS_REGION"),

		PersistPollutionGrid: v.GetBool("PERSIST_POLLUTION_GRID"),

		IngestWorkDir: v.GetString("INGEST_WORK_DIR"),

		HarmonyBaseURL:    v.GetString("HARMONY_BASE_URL"),
		BearerToken:       v.GetString("BEARER_TOKEN"),
		EarthdataUsername: v.GetString("EARTHDATA_USERNAME"),
		EarthdataPassword: v.GetString("EARTHDATA_PASSWORD"),

		TempoBBox: BBox{
			West:  v.GetFloat64("TEMPO_BBOX_WEST"),
			South: v.GetFloat64("TEMPO_BBOX_SOUTH"),
			East:  v.GetFloat64("TEMPO_BBOX_EAST"),
			North: v.GetFloat64("TEMPO_BBOX_NORTH"),
		},

		IngestMaxCells:  v.GetInt("INGEST_MAX_CELLS"),
		IngestChunkSize: v.GetInt("INGEST_CHUNK_SIZE"),

		UPESOutputBase:     v.GetString("UPES_OUTPUT_BASE"),
		UPESGridResolution: v.GetFloat64("UPES_GRID_RESOLUTION_DEG"),
		UPESEMALambda:      v.GetFloat64("UPES_EMA_LAMBDA"),
		UPESTrafficAlpha:   v.GetFloat64("UPES_TRAFFIC_ALPHA"),

		RouteOptimizationEnabled: v.GetBool("ROUTE_OPTIMIZATION_ENABLED"),
		RouteOSMBufferKM:         v.GetFloat64("ROUTE_OSM_BUFFER_KM"),
		RouteResultCacheTTL:      time.Duration(v.GetInt("ROUTE_RESULT_CACHE_TTL")) * time.Second,

		AlertsDeteriorationBasePct: v.GetFloat64("ALERTS_DETERIORATION_BASE_PCT"),
		AlertsHazardThreshold:      v.GetFloat64("ALERTS_HAZARD_THRESHOLD"),
		AlertsWindSpeedMinKPH:      v.GetFloat64("ALERTS_WIND_SPEED_MIN_KPH"),
		AlertsWindAngleDeg:         v.GetFloat64("ALERTS_WIND_ANGLE_DEG"),
		AlertsWebhookURL:           v.GetString("ALERTS_N8N_WEBHOOK_URL"),

		WeatherAPIKey:  v.GetString("WEATHER_API_KEY"),
		WeatherBaseURL: v.GetString("WEATHER_BASE_URL"),
		GeocodeBaseURL: v.GetString("GEOCODE_BASE_URL"),
		GroqAPIKey:     v.GetString("GROQ_API_KEY"),
	}
	return c, c.validate()
}

func (c *Config) validate() error {
	var problems []string
	b := c.TempoBBox
	if b.West >= b.East || b.South >= b.North {
		problems = append(problems, "TEMPO_BBOX does not describe a window")
	}
	if c.UPESGridResolution <= 0 {
		problems = append(problems, "UPES_GRID_RESOLUTION_DEG must be positive")
	}
	if c.UPESEMALambda < 0 || c.UPESEMALambda > 1 {
		problems = append(problems, "UPES_EMA_LAMBDA must be in [0, 1]")
	}
	if c.IngestMaxCells < 1 || c.IngestChunkSize < 1 {
		problems = append(problems, "ingest limits must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ObjectStorageConfigured reports whether the audit/blob store can be
// used.
func (c *Config) ObjectStorageConfigured() bool {
	return c.ObjectStorageBucket != ""
}
