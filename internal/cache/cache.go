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

// Package cache is the optional key/value layer. When no cache backend
// is configured every read is a miss and every write a no-op, so
// callers never branch on availability.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// TTLs for the well-known keys.
const (
	TTLWeather           = 600 * time.Second
	TTLPollutantMovement = 600 * time.Second
	TTLLastUpdate        = 3600 * time.Second
	TTLRouteResult       = 300 * time.Second
)

// Cache is a set-with-TTL / get-if-present store. Implementations
// swallow backend failures: Get reports a miss and Set drops the
// write.
type Cache interface {
	Get(ctx context.Context, key string) (value string, ok bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
}

// New returns a redis-backed Cache, or the no-op cache when redisURL
// is empty.
func New(redisURL string, log logrus.FieldLogger) (Cache, error) {
	if redisURL == "" {
		return Noop{}, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("cache: parsing REDIS_URL: %w", err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &redisCache{client: redis.NewClient(opts), log: log}, nil
}

// Noop is the cache used when no backend is configured.
type Noop struct{}

func (Noop) Get(context.Context, string) (string, bool)         { return "", false }
func (Noop) Set(context.Context, string, string, time.Duration) {}

type redisCache struct {
	client *redis.Client
	log    logrus.FieldLogger
}

func (c *redisCache) Get(ctx context.Context, key string) (string, bool) {
	v, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache: get failed")
		return "", false
	}
	return v, true
}

func (c *redisCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache: set failed")
	}
}

// Well-known key builders. Coordinates keep their request formatting;
// only the mode is canonicalized.

func WeatherKey(lat, lon float64, days int) string {
	return fmt.Sprintf("weather:%g:%g:%d", lat, lon, days)
}

func PollutantMovementKey(lat, lon float64) string {
	return fmt.Sprintf("pollutant_movement:%g:%g", lat, lon)
}

const (
	KeyTempoLastUpdate = "tempo:last_update"
	KeyUPESLastUpdate  = "upes:last_update"
)

// RouteKey builds the optimized-route result key. The mode is
// lowercased and trimmed so that alias spellings share an entry; the
// caller passes the canonical mode name.
func RouteKey(startLat, startLon, endLat, endLon float64, mode string) string {
	mode = strings.ToLower(strings.TrimSpace(mode))
	return fmt.Sprintf("route_opt:%g:%g:%g:%g:%s", startLat, startLon, endLat, endLon, mode)
}
