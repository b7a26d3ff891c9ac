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

package weather

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/current.json", r.URL.Path)
		assert.Equal(t, "testkey", r.URL.Query().Get("key"))
		assert.Equal(t, "30.2700,-97.7400", r.URL.Query().Get("q"))
		fmt.Fprint(w, `{"current":{"last_updated_epoch":1749000000,"temp_c":31.5,
			"humidity":44,"wind_kph":13.0,"wind_degree":170,"precip_mm":0,
			"pressure_mb":1012,"condition":{"text":"Sunny"}}}`)
	}))
	defer srv.Close()

	c := New(srv.URL, "testkey", nil)
	obs, err := c.Current(context.Background(), 30.27, -97.74)
	require.NoError(t, err)
	assert.Equal(t, 31.5, obs.TempC)
	assert.Equal(t, 13.0, obs.WindKPH)
	assert.Equal(t, 170.0, obs.WindDegree)
	assert.Equal(t, "Sunny", obs.Condition)
	assert.Equal(t, time.Unix(1749000000, 0).UTC(), obs.Time)
}

func TestCurrentNotConfigured(t *testing.T) {
	c := New("", "", nil)
	_, err := c.Current(context.Background(), 30, -97)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestCurrentUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()
	_, err := New(srv.URL, "k", nil).Current(context.Background(), 30, -97)
	assert.ErrorContains(t, err, "status 403")
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestHourlyForecastSkipsPastHours(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Hour)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forecast.json", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("days"))
		fmt.Fprintf(w, `{"current":{"last_updated_epoch":%d,"wind_kph":5},
			"forecast":{"forecastday":[{"hour":[
				{"time_epoch":%d,"wind_kph":1},
				{"time_epoch":%d,"wind_kph":2},
				{"time_epoch":%d,"wind_kph":3}
			]}]}}`,
			now.Unix(), now.Add(-2*time.Hour).Unix(), now.Unix(), now.Add(time.Hour).Unix())
	}))
	defer srv.Close()

	f, err := New(srv.URL, "k", nil).HourlyForecast(context.Background(), 30, -97, 2)
	require.NoError(t, err)
	require.Len(t, f.Hourly, 2)
	assert.Equal(t, 2.0, f.Hourly[0].WindKPH)
	assert.Equal(t, 3.0, f.Hourly[1].WindKPH)
}

func TestPredictZeroWind(t *testing.T) {
	hours := []Observation{
		{WindKPH: 0, WindDegree: 90, Humidity: 50},
		{WindKPH: 0, WindDegree: 90, Humidity: 50},
		{WindKPH: 0, WindDegree: 90, Humidity: 50},
	}
	m := predict(30.27, -97.74, hours)
	require.Len(t, m.Steps, 3)
	for _, s := range m.Steps {
		assert.Equal(t, 30.27, s.Lat)
		assert.Equal(t, -97.74, s.Lon)
		assert.Equal(t, 0.0, s.DistanceKM)
	}
}

func TestPredictDisplacement(t *testing.T) {
	// 10 kph wind blowing due east for two hours.
	hours := []Observation{
		{WindKPH: 10, WindDegree: 90, Humidity: 0},
		{WindKPH: 10, WindDegree: 90, Humidity: 0},
	}
	m := predict(0, 0, hours)
	require.Len(t, m.Steps, 2)
	assert.InDelta(t, 0, m.Steps[1].Lat, 1e-9)
	assert.InDelta(t, 20/kmPerDegreeLat, m.Steps[1].Lon, 1e-6)
	assert.Equal(t, 20.0, m.Steps[1].DistanceKM)
}

func TestPredictHumidityLowersConcentration(t *testing.T) {
	dry := predict(0, 0, []Observation{{WindKPH: 5, Humidity: 10}})
	wet := predict(0, 0, []Observation{{WindKPH: 5, Humidity: 90}})
	assert.Greater(t, dry.Steps[0].ConcentrationFactor, wet.Steps[0].ConcentrationFactor)
	assert.LessOrEqual(t, wet.Steps[0].ConcentrationFactor, 1.0)
	assert.GreaterOrEqual(t, wet.Steps[0].ConcentrationFactor, minHourlyFactor)
}

func TestPredictConcentrationMonotoneInTime(t *testing.T) {
	hours := []Observation{
		{WindKPH: 8, Humidity: 40},
		{WindKPH: 8, Humidity: 40},
		{WindKPH: 8, Humidity: 40},
	}
	m := predict(0, 0, hours)
	for i := 1; i < len(m.Steps); i++ {
		if m.Steps[i].ConcentrationFactor > m.Steps[i-1].ConcentrationFactor {
			t.Fatalf("concentration rose at hour %d", i+1)
		}
	}
	last := m.Steps[len(m.Steps)-1].ConcentrationFactor
	if math.IsNaN(last) || last <= 0 {
		t.Fatalf("bad final factor %g", last)
	}
}
