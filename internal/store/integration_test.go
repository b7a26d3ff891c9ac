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
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerisnav/aeris/internal/postgis"
	"github.com/aerisnav/aeris/pollution"
)

// newTestStore spins up a PostGIS container and migrates it. Gated on
// AERIS_TEST_DB because it needs a Docker daemon.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("AERIS_TEST_DB") == "" {
		t.Skip("set AERIS_TEST_DB=1 to run database integration tests")
	}
	ctx := context.Background()
	url, container := postgis.SetupTestDB(ctx, t)
	t.Cleanup(func() { container.Terminate(ctx) })

	require.NoError(t, Migrate(url))
	s, err := New(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestIntegrationUsersAndRoutes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "it@example.com", "hash")
	require.NoError(t, err)
	assert.Equal(t, 1, u.ExposureSensitivityLevel)

	_, err = s.CreateUser(ctx, "it@example.com", "hash")
	assert.True(t, errors.Is(err, ErrEmailTaken))

	lvl := 4
	u, err = s.UpdateUserPrefs(ctx, u.ID, &lvl, map[string]bool{"email": true, "push": false})
	require.NoError(t, err)
	assert.Equal(t, 4, u.ExposureSensitivityLevel)
	assert.True(t, u.NotificationPreferences["email"])

	route, err := s.CreateSavedRoute(ctx, &SavedRoute{
		UserID: u.ID, Name: "commute",
		StartLat: 34.0, StartLon: -118.2, EndLat: 34.1, EndLon: -118.2,
		ActivityType: "commute",
	})
	require.NoError(t, err)

	// Opaque ownership: another user id sees not-found.
	_, err = s.SavedRouteForUser(ctx, route.ID, u.ID+1)
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, s.RecordExposure(ctx, &ExposureRecord{
		RouteID: route.ID, Timestamp: time.Now().UTC(),
		UPESScore: 0.4, MaxUPESAlongRoute: 0.9, ScoreSource: "upes_raster",
	}))
	history, err := s.ExposureHistory(ctx, route.ID, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, history, 1)

	// RecordExposure denormalizes onto the route row.
	got, err := s.SavedRouteForUser(ctx, route.ID, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastUPESScore)
	assert.InDelta(t, 0.4, *got.LastUPESScore, 1e-9)
}

func TestIntegrationGridAggregation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ts := time.Now().UTC().Truncate(time.Hour)
	cells := []GridCell{
		{Timestamp: ts, GasType: pollution.NO2,
			GeomWKT:        "POLYGON((-118.225 33.975, -118.175 33.975, -118.175 34.025, -118.225 34.025, -118.225 33.975))",
			PollutionValue: 3.5e16, SeverityLevel: pollution.SeverityHazardous},
		{Timestamp: ts, GasType: pollution.NO2,
			GeomWKT:        "POLYGON((-118.225 34.075, -118.175 34.075, -118.175 34.125, -118.225 34.125, -118.225 34.075))",
			PollutionValue: 1.0e15, SeverityLevel: pollution.SeverityGood},
	}
	n, err := s.InsertGridCells(ctx, cells)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	agg, newest, err := s.AggregateLatestWindow(ctx, -118.25, 34.15, 0.05)
	require.NoError(t, err)
	assert.WithinDuration(t, ts, newest, time.Second)
	require.Len(t, agg, 2)

	severe, err := s.SevereCells(ctx, -119, 33, -118, 35,
		pollution.SeverityVeryUnhealthy, ts.Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, severe, 1)
	assert.Equal(t, pollution.SeverityHazardous, severe[0].Severity)
}

func TestIntegrationAlertLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "alerts@example.com", "hash")
	require.NoError(t, err)
	route, err := s.CreateSavedRoute(ctx, &SavedRoute{
		UserID: u.ID, Name: "r", StartLat: 34, StartLon: -118.2,
		EndLat: 34.1, EndLon: -118.2, ActivityType: "commute",
	})
	require.NoError(t, err)

	rec := &AlertRecord{
		UserID: u.ID, RouteID: route.ID, AlertType: "hazard",
		ScoreBefore: 0.4, ScoreAfter: 0.9, Threshold: 0.85,
		Metadata:         map[string]interface{}{"max_upes": 0.9},
		NotifiedChannels: []string{"email", "in_app"},
	}
	require.NoError(t, s.InsertAlert(ctx, rec))
	assert.NotZero(t, rec.ID)

	dup, err := s.HasAlertSince(ctx, route.ID, "hazard", time.Now().UTC().Truncate(time.Hour))
	require.NoError(t, err)
	assert.True(t, dup)

	got, err := s.AlertsByUser(ctx, u.ID, AlertFilter{AlertType: "hazard"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"email", "in_app"}, got[0].NotifiedChannels)
	assert.EqualValues(t, 0.9, got[0].Metadata["max_upes"])
}

func TestIntegrationRoadEdges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO planet_osm_line (osm_id, highway, oneway, tags, way)
		VALUES (1, 'residential', '', 'maxspeed=>40, foot=>designated',
			ST_Transform(ST_SetSRID('LINESTRING(-118.20 34.00, -118.20 34.01)'::geometry, 4326), 3857))`)
	require.NoError(t, err)

	edges, err := s.RoadEdges(ctx, -118.3, 33.9, -118.1, 34.1)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "residential", edges[0].Highway)
	assert.Equal(t, "40", edges[0].MaxSpeed)
	assert.Equal(t, "designated", edges[0].Foot)
	require.Len(t, edges[0].Geom, 2)
	assert.InDelta(t, -118.20, edges[0].Geom[0].X, 1e-6)
}
