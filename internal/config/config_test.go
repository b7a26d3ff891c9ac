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

package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func TestDefaults(t *testing.T) {
	c, err := fromViper(newTestViper())
	require.NoError(t, err)

	assert.Equal(t, ":8000", c.ListenAddr)
	assert.Equal(t, time.Hour, c.AccessTokenExpire)
	assert.Equal(t, -125.0, c.TempoBBox.West)
	assert.Equal(t, 0.05, c.UPESGridResolution)
	assert.Equal(t, 0.6, c.UPESEMALambda)
	assert.Equal(t, 5000, c.IngestMaxCells)
	assert.Equal(t, 2000, c.IngestChunkSize)
	assert.True(t, c.RouteOptimizationEnabled)
	assert.Equal(t, 3.0, c.RouteOSMBufferKM)
	assert.Equal(t, 5*time.Minute, c.RouteResultCacheTTL)
	assert.Equal(t, 0.15, c.AlertsDeteriorationBasePct)
	assert.Equal(t, 0.85, c.AlertsHazardThreshold)
	assert.True(t, c.PersistPollutionGrid)
	assert.False(t, c.ObjectStorageConfigured())
}

func TestOverrides(t *testing.T) {
	v := newTestViper()
	v.Set("DATABASE_URL", "postgres://localhost/aeris")
	v.Set("TEMPO_BBOX_WEST", -98.5)
	v.Set("TEMPO_BBOX_EAST", -97.0)
	v.Set("TEMPO_BBOX_SOUTH", 29.5)
	v.Set("TEMPO_BBOX_NORTH", 31.0)
	v.Set("OBJECT_STORAGE_BUCKET", "aeris-audit")
	v.Set("ROUTE_OPTIMIZATION_ENABLED", false)

	c, err := fromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/aeris", c.DatabaseURL)
	assert.Equal(t, -98.5, c.TempoBBox.West)
	assert.True(t, c.ObjectStorageConfigured())
	assert.False(t, c.RouteOptimizationEnabled)
}

func TestValidation(t *testing.T) {
	v := newTestViper()
	v.Set("TEMPO_BBOX_WEST", 10.0)
	v.Set("TEMPO_BBOX_EAST", -10.0)
	_, err := fromViper(v)
	assert.ErrorContains(t, err, "TEMPO_BBOX")

	v = newTestViper()
	v.Set("UPES_EMA_LAMBDA", 1.5)
	_, err = fromViper(v)
	assert.ErrorContains(t, err, "UPES_EMA_LAMBDA")
}
