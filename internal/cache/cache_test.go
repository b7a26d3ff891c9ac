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

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoop(t *testing.T) {
	c, err := New("", nil)
	require.NoError(t, err)

	ctx := context.Background()
	c.Set(ctx, "k", "v", time.Minute)
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok, "no-op cache must always miss")
}

func TestNewInvalidURL(t *testing.T) {
	c, err := New("not-a-redis-url", nil)
	assert.Error(t, err, "callers must get a handleable error, not a panic")
	assert.Nil(t, c)
}

func TestRedisRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := New("redis://"+mr.Addr(), nil)
	require.NoError(t, err)

	ctx := context.Background()
	c.Set(ctx, "tempo:last_update", "2025-06-03T14:00:00Z", TTLLastUpdate)
	v, ok := c.Get(ctx, "tempo:last_update")
	require.True(t, ok)
	assert.Equal(t, "2025-06-03T14:00:00Z", v)

	_, ok = c.Get(ctx, "missing")
	assert.False(t, ok)
}

func TestRedisTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := New("redis://"+mr.Addr(), nil)
	require.NoError(t, err)

	ctx := context.Background()
	c.Set(ctx, "k", "v", TTLRouteResult)
	mr.FastForward(TTLRouteResult + time.Second)
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok, "entry must expire")
}

func TestRedisDownDegradesToMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	c, err := New("redis://"+addr, nil)
	require.NoError(t, err)
	mr.Close()

	ctx := context.Background()
	c.Set(ctx, "k", "v", time.Minute) // must not panic
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestRouteKeyAliasing(t *testing.T) {
	a := RouteKey(34.0, -118.2, 34.1, -118.2, "commute")
	b := RouteKey(34.0, -118.2, 34.1, -118.2, "  Commute ")
	assert.Equal(t, a, b)
	assert.Equal(t, "route_opt:34:-118.2:34.1:-118.2:commute", a)
}

func TestKeyBuilders(t *testing.T) {
	assert.Equal(t, "weather:30.27:-97.74:3", WeatherKey(30.27, -97.74, 3))
	assert.Equal(t, "pollutant_movement:30.27:-97.74", PollutantMovementKey(30.27, -97.74))
}
