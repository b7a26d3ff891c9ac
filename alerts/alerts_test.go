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

package alerts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerisnav/aeris/internal/store"
	"github.com/aerisnav/aeris/pollution"
	"github.com/aerisnav/aeris/raster"
	"github.com/aerisnav/aeris/weather"
)

func TestSensitivityScale(t *testing.T) {
	tests := []struct {
		level int
		scale float64
		label string
	}{
		{1, 1.0, "Normal"},
		{2, 1.0, "Normal"},
		{3, 0.7, "Sensitive"},
		{4, 0.7, "Sensitive"},
		{5, 0.5, "Asthmatic"},
		{0, 1.0, "Normal"},
		{9, 0.5, "Asthmatic"},
	}
	for _, tt := range tests {
		if got := SensitivityScale(tt.level); got != tt.scale {
			t.Errorf("SensitivityScale(%d) = %v, want %v", tt.level, got, tt.scale)
		}
		if got := SensitivityLabel(tt.level); got != tt.label {
			t.Errorf("SensitivityLabel(%d) = %q, want %q", tt.level, got, tt.label)
		}
	}
}

func rec(score, max float64) *store.ExposureRecord {
	return &store.ExposureRecord{UPESScore: score, MaxUPESAlongRoute: max}
}

func TestCheckDeterioration(t *testing.T) {
	// 0.30 to 0.40 is a 33% rise: trips the base 15% threshold even at
	// the least sensitive level.
	d, ok := CheckDeterioration(rec(0.40, 0), rec(0.30, 0), 0.15, 1)
	require.True(t, ok)
	assert.Equal(t, TypeDeterioration, d.Type)
	assert.InDelta(t, 0.15, d.Threshold, 1e-9)
	assert.InDelta(t, 0.30, d.ScoreBefore, 1e-9)
	assert.InDelta(t, 0.40, d.ScoreAfter, 1e-9)

	// A 5% rise only reaches the asthmatic threshold (0.15*0.5).
	_, ok = CheckDeterioration(rec(0.315, 0), rec(0.30, 0), 0.15, 1)
	assert.False(t, ok)
	_, ok = CheckDeterioration(rec(0.315, 0), rec(0.30, 0), 0.15, 5)
	assert.False(t, ok, "5%% rise is still below the 7.5%% asthmatic threshold")
	_, ok = CheckDeterioration(rec(0.33, 0), rec(0.30, 0), 0.15, 5)
	assert.True(t, ok, "10%% rise crosses the asthmatic threshold")

	// No previous row means nothing to compare against.
	_, ok = CheckDeterioration(rec(0.40, 0), nil, 0.15, 1)
	assert.False(t, ok)

	// An improving route never triggers.
	_, ok = CheckDeterioration(rec(0.20, 0), rec(0.30, 0), 0.15, 5)
	assert.False(t, ok)
}

func TestCheckHazard(t *testing.T) {
	d, ok := CheckHazard(rec(0.5, 0.90), 0.85)
	require.True(t, ok)
	assert.Equal(t, TypeHazard, d.Type)
	assert.InDelta(t, 0.90, d.ScoreAfter, 1e-9)

	_, ok = CheckHazard(rec(0.5, 0.80), 0.85)
	assert.False(t, ok)
	_, ok = CheckHazard(nil, 0.85)
	assert.False(t, ok)
}

func TestBearingDeg(t *testing.T) {
	tests := []struct {
		lat1, lon1, lat2, lon2, want float64
	}{
		{34.0, -118.2, 34.1, -118.2, 0},   // due north
		{34.1, -118.2, 34.0, -118.2, 180}, // due south
		{34.0, -118.2, 34.0, -118.1, 90},  // due east
		{34.0, -118.1, 34.0, -118.2, 270}, // due west
	}
	for _, tt := range tests {
		got := BearingDeg(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
		assert.InDelta(t, tt.want, got, 0.1)
	}
}

func TestCheckWindShift(t *testing.T) {
	// Source due south of the route midpoint; wind blowing north
	// carries its plume onto the route.
	src := [2]float64{33.9, -118.2}
	mid := [2]float64{34.05, -118.2}

	d, ok := CheckWindShift(src[0], src[1], mid[0], mid[1], 10, 0, 5, 45)
	require.True(t, ok)
	assert.Equal(t, TypeWindShift, d.Type)

	// Calm air never triggers, even aligned.
	_, ok = CheckWindShift(src[0], src[1], mid[0], mid[1], 4.9, 0, 5, 45)
	assert.False(t, ok)

	// Wind blowing the plume away from the route.
	_, ok = CheckWindShift(src[0], src[1], mid[0], mid[1], 10, 180, 5, 45)
	assert.False(t, ok)

	// Just inside and just outside the angular window.
	_, ok = CheckWindShift(src[0], src[1], mid[0], mid[1], 10, 44, 5, 45)
	assert.True(t, ok)
	_, ok = CheckWindShift(src[0], src[1], mid[0], mid[1], 10, 46, 5, 45)
	assert.False(t, ok)
}

func TestCheckTimeBased(t *testing.T) {
	// Newest-first history; 24h minimum is 0.20.
	history := []*store.ExposureRecord{rec(0.36, 0), rec(0.20, 0), rec(0.25, 0)}
	d, ok := CheckTimeBased(history)
	require.True(t, ok)
	assert.Equal(t, TypeTimeBased, d.Type)
	assert.InDelta(t, 0.20, d.ScoreBefore, 1e-9)
	assert.InDelta(t, 0.36, d.ScoreAfter, 1e-9)

	// 0.30 is below min+0.15.
	_, ok = CheckTimeBased([]*store.ExposureRecord{rec(0.30, 0), rec(0.20, 0)})
	assert.False(t, ok)

	// A single row has no baseline.
	_, ok = CheckTimeBased([]*store.ExposureRecord{rec(0.90, 0)})
	assert.False(t, ok)
}

func TestChannels(t *testing.T) {
	got := Channels(map[string]bool{"in_app": true, "email": true, "sms": true, "push": false})
	assert.Equal(t, []string{"email", "in_app"}, got)
	assert.Nil(t, Channels(nil))
	assert.Nil(t, Channels(map[string]bool{"push": false}))
}

// fakeStore is an in-memory Store for pipeline tests.
type fakeStore struct {
	routes    []*store.SavedRoute
	users     map[int64]*store.User
	history   map[int64][]*store.ExposureRecord
	severe    []store.SevereCell
	dup       map[string]bool
	exposures []*store.ExposureRecord
	alerts    []*store.AlertRecord
	nextID    int64
}

func (f *fakeStore) AllSavedRoutes(ctx context.Context) ([]*store.SavedRoute, error) {
	return f.routes, nil
}

func (f *fakeStore) UserByID(ctx context.Context, id int64) (*store.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}

func (f *fakeStore) ExposureHistory(ctx context.Context, routeID int64, since time.Time) ([]*store.ExposureRecord, error) {
	return f.history[routeID], nil
}

func (f *fakeStore) RecordExposure(ctx context.Context, rec *store.ExposureRecord) error {
	f.nextID++
	rec.ID = f.nextID
	f.exposures = append(f.exposures, rec)
	return nil
}

func (f *fakeStore) InsertAlert(ctx context.Context, a *store.AlertRecord) error {
	f.nextID++
	a.ID = f.nextID
	a.CreatedAt = time.Now().UTC()
	f.alerts = append(f.alerts, a)
	return nil
}

func (f *fakeStore) HasAlertSince(ctx context.Context, routeID int64, alertType string, t time.Time) (bool, error) {
	return f.dup[alertType], nil
}

func (f *fakeStore) SevereCells(ctx context.Context, west, south, east, north float64,
	minSeverity pollution.Severity, since time.Time, limit int) ([]store.SevereCell, error) {
	return f.severe, nil
}

// fakeWeather returns a fixed observation.
type fakeWeather struct {
	obs weather.Observation
	err error
}

func (f *fakeWeather) Current(ctx context.Context, lat, lon float64) (weather.Observation, error) {
	return f.obs, f.err
}

func testRoute() *store.SavedRoute {
	return &store.SavedRoute{
		ID: 7, UserID: 3, Name: "commute",
		StartLat: 34.0, StartLon: -118.2,
		EndLat: 34.1, EndLon: -118.2,
		ActivityType: "commute",
	}
}

func testUser() *store.User {
	return &store.User{
		ID: 3, Email: "rider@example.com", ExposureSensitivityLevel: 1,
		NotificationPreferences: map[string]bool{"email": true, "in_app": true},
	}
}

func TestScoreSavedRoutesUniformRaster(t *testing.T) {
	// Uniform 0.6 raster covering the whole route.
	upes := raster.New(6, 8, -118.35, 34.2, 0.05)
	for i := range upes.Data {
		upes.Data[i] = 0.6
	}
	fs := &fakeStore{routes: []*store.SavedRoute{testRoute()}}
	e := &Engine{Store: fs}

	res, err := e.scoreWithRaster(context.Background(), upes, "test")
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Status)
	assert.Equal(t, 1, res.Scored)
	require.Len(t, fs.exposures, 1)
	got := fs.exposures[0]
	assert.Equal(t, int64(7), got.RouteID)
	assert.InDelta(t, 0.6, got.UPESScore, 1e-9)
	assert.InDelta(t, 0.6, got.MaxUPESAlongRoute, 1e-9)
	assert.Equal(t, "upes_raster", got.ScoreSource)
}

func TestScoreSavedRoutesSkipsWithoutRaster(t *testing.T) {
	fs := &fakeStore{routes: []*store.SavedRoute{testRoute()}}
	e := &Engine{Store: fs, FinalScoreDir: t.TempDir()}

	res, err := e.ScoreSavedRoutes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "skipped", res.Status)
	assert.Empty(t, fs.exposures)
}

func TestPipelineDeteriorationAndHazard(t *testing.T) {
	var body struct {
		Alerts    []WebhookAlert `json:"alerts"`
		Timestamp time.Time      `json:"timestamp"`
	}
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	}))
	defer srv.Close()

	fs := &fakeStore{
		routes: []*store.SavedRoute{testRoute()},
		users:  map[int64]*store.User{3: testUser()},
		history: map[int64][]*store.ExposureRecord{
			7: {rec(0.40, 0.90), rec(0.30, 0.40)},
		},
	}
	e := &Engine{
		Store:   fs,
		Webhook: NewWebhook(srv.URL, nil),
		Config: Config{
			DeteriorationBasePct: 0.15,
			HazardThreshold:      0.85,
			WindSpeedMinKPH:      5,
			WindAngleDeg:         45,
		},
	}

	res, err := e.RunPipeline(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Evaluated)
	assert.Equal(t, 2, res.Triggered)
	require.Len(t, fs.alerts, 2)
	assert.Equal(t, TypeDeterioration, fs.alerts[0].AlertType)
	assert.Equal(t, TypeHazard, fs.alerts[1].AlertType)
	assert.Equal(t, []string{"email", "in_app"}, fs.alerts[0].NotifiedChannels)

	assert.Equal(t, 1, hits)
	require.Len(t, body.Alerts, 2)
	assert.False(t, body.Timestamp.IsZero())
	assert.Equal(t, int64(3), body.Alerts[0].UserID)
	assert.Equal(t, int64(7), body.Alerts[0].RouteID)
	assert.NotZero(t, body.Alerts[0].AlertID)
	assert.Equal(t, []string{"email", "in_app"}, body.Alerts[1].Channels)
}

func TestPipelineSuppressesDuplicateDeterioration(t *testing.T) {
	fs := &fakeStore{
		routes: []*store.SavedRoute{testRoute()},
		users:  map[int64]*store.User{3: testUser()},
		history: map[int64][]*store.ExposureRecord{
			7: {rec(0.40, 0.10), rec(0.30, 0.10)},
		},
		dup: map[string]bool{TypeDeterioration: true},
	}
	e := &Engine{Store: fs, Config: Config{DeteriorationBasePct: 0.15, HazardThreshold: 0.85}}

	res, err := e.RunPipeline(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Triggered)
	assert.Empty(t, fs.alerts)
}

func TestPipelineWindShift(t *testing.T) {
	fs := &fakeStore{
		routes: []*store.SavedRoute{testRoute()},
		users:  map[int64]*store.User{3: testUser()},
		history: map[int64][]*store.ExposureRecord{
			7: {rec(0.10, 0.10), rec(0.10, 0.10)},
		},
		severe: []store.SevereCell{{
			Gas: pollution.NO2, Lat: 33.9, Lon: -118.2,
			Severity: pollution.SeverityVeryUnhealthy,
		}},
	}
	e := &Engine{
		Store:   fs,
		Weather: &fakeWeather{obs: weather.Observation{WindKPH: 12, WindDegree: 5}},
		Config: Config{
			DeteriorationBasePct: 0.15,
			HazardThreshold:      0.85,
			WindSpeedMinKPH:      5,
			WindAngleDeg:         45,
		},
	}

	res, err := e.RunPipeline(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Triggered)
	assert.Equal(t, TypeWindShift, fs.alerts[0].AlertType)
	assert.Equal(t, 12.0, fs.alerts[0].Metadata["wind_kph"])
}

func TestPipelineNoHistoryNoAlerts(t *testing.T) {
	fs := &fakeStore{
		routes: []*store.SavedRoute{testRoute()},
		users:  map[int64]*store.User{3: testUser()},
	}
	e := &Engine{Store: fs, Config: Config{DeteriorationBasePct: 0.15, HazardThreshold: 0.85}}

	res, err := e.RunPipeline(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Evaluated)
	assert.Equal(t, 0, res.Triggered)
}
