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

// Package weather fetches current conditions and hourly forecasts from
// a WeatherAPI-compatible provider. The wind fields feed the UPES wind
// transport factor, the alert wind-shift check, and the pollutant
// movement predictor.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/sirupsen/logrus"
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = fmt.Errorf("weather: no API key configured")

// ErrUpstream marks provider-side failures: network errors and non-2xx
// responses.
var ErrUpstream = fmt.Errorf("weather: provider error")

const requestTimeout = 10 * time.Second

// Observation is one hour of weather at a point. WindDegree is the
// compass direction the wind blows toward, degrees clockwise from
// north.
type Observation struct {
	Time       time.Time `json:"time"`
	TempC      float64   `json:"temp_c"`
	Humidity   float64   `json:"humidity"`
	WindKPH    float64   `json:"wind_kph"`
	WindDegree float64   `json:"wind_degree"`
	PrecipMM   float64   `json:"precip_mm"`
	PressureMB float64   `json:"pressure_mb"`
	Condition  string    `json:"condition"`
}

// Forecast is the current observation plus upcoming hourly
// observations in time order.
type Forecast struct {
	Current Observation   `json:"current"`
	Hourly  []Observation `json:"hourly"`
}

// Client talks to the weather provider.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     logrus.FieldLogger
}

// New returns a Client. baseURL defaults to the hosted provider when
// empty. An empty apiKey yields a client whose calls return
// ErrNotConfigured.
func New(baseURL, apiKey string, log logrus.FieldLogger) *Client {
	if baseURL == "" {
		baseURL = "https://api.weatherapi.com/v1"
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	c := cleanhttp.DefaultPooledClient()
	c.Timeout = requestTimeout
	return &Client{baseURL: baseURL, apiKey: apiKey, http: c, log: log}
}

// Current fetches current conditions at the given point.
func (c *Client) Current(ctx context.Context, lat, lon float64) (Observation, error) {
	var resp apiResponse
	if err := c.get(ctx, "/current.json", lat, lon, 0, &resp); err != nil {
		return Observation{}, err
	}
	return resp.Current.observation(), nil
}

// HourlyForecast fetches current conditions and the hourly forecast
// for the given number of days (1..3).
func (c *Client) HourlyForecast(ctx context.Context, lat, lon float64, days int) (*Forecast, error) {
	if days < 1 {
		days = 1
	}
	var resp apiResponse
	if err := c.get(ctx, "/forecast.json", lat, lon, days, &resp); err != nil {
		return nil, err
	}
	f := &Forecast{Current: resp.Current.observation()}
	now := time.Now().UTC()
	for _, day := range resp.Forecast.ForecastDay {
		for _, h := range day.Hour {
			obs := h.observation()
			if obs.Time.Before(now.Truncate(time.Hour)) {
				continue
			}
			f.Hourly = append(f.Hourly, obs)
		}
	}
	return f, nil
}

func (c *Client) get(ctx context.Context, endpoint string, lat, lon float64, days int, out interface{}) error {
	if c.apiKey == "" {
		return ErrNotConfigured
	}
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("q", fmt.Sprintf("%.4f,%.4f", lat, lon))
	q.Set("aqi", "yes")
	if days > 0 {
		q.Set("days", fmt.Sprintf("%d", days))
	}
	u := c.baseURL + endpoint + "?" + q.Encode()

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("weather: building request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: fetching %s: %w", ErrUpstream, endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned status %d", ErrUpstream, endpoint, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("weather: decoding %s response: %w", endpoint, err)
	}
	return nil
}

// Provider wire types.

type apiResponse struct {
	Current  apiObservation `json:"current"`
	Forecast struct {
		ForecastDay []struct {
			Hour []apiObservation `json:"hour"`
		} `json:"forecastday"`
	} `json:"forecast"`
}

type apiObservation struct {
	TimeEpoch  int64   `json:"time_epoch"`
	LastEpoch  int64   `json:"last_updated_epoch"`
	TempC      float64 `json:"temp_c"`
	Humidity   float64 `json:"humidity"`
	WindKPH    float64 `json:"wind_kph"`
	WindDegree float64 `json:"wind_degree"`
	PrecipMM   float64 `json:"precip_mm"`
	PressureMB float64 `json:"pressure_mb"`
	Condition  struct {
		Text string `json:"text"`
	} `json:"condition"`
}

func (a apiObservation) observation() Observation {
	epoch := a.TimeEpoch
	if epoch == 0 {
		epoch = a.LastEpoch
	}
	return Observation{
		Time:       time.Unix(epoch, 0).UTC(),
		TempC:      a.TempC,
		Humidity:   a.Humidity,
		WindKPH:    a.WindKPH,
		WindDegree: a.WindDegree,
		PrecipMM:   a.PrecipMM,
		PressureMB: a.PressureMB,
		Condition:  a.Condition.Text,
	}
}
