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

// Package geocode is a thin client for a Nominatim-style geocoder. The
// analyze endpoints accept either coordinates or a place name; this
// package resolves the latter.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/spf13/cast"
)

// ErrNotFound is returned when the provider has no result for a query.
var ErrNotFound = fmt.Errorf("geocode: no result")

// ErrUpstream marks provider-side failures: network errors and non-2xx
// responses.
var ErrUpstream = fmt.Errorf("geocode: provider error")

const requestTimeout = 10 * time.Second

// Place is a resolved location.
type Place struct {
	Lat, Lon    float64
	DisplayName string
}

// Client resolves place names against one provider endpoint.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

// New returns a Client. baseURL defaults to the public Nominatim
// instance when empty.
func New(baseURL, userAgent string) *Client {
	if baseURL == "" {
		baseURL = "https://nominatim.openstreetmap.org"
	}
	if userAgent == "" {
		userAgent = "aeris/1.0"
	}
	c := cleanhttp.DefaultPooledClient()
	c.Timeout = requestTimeout
	return &Client{baseURL: baseURL, userAgent: userAgent, http: c}
}

// Forward resolves a free-text place name to coordinates, returning
// the provider's best match.
func (c *Client) Forward(ctx context.Context, query string) (Place, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("limit", "1")

	var results []struct {
		Lat         string `json:"lat"`
		Lon         string `json:"lon"`
		DisplayName string `json:"display_name"`
	}
	if err := c.get(ctx, "/search", q, &results); err != nil {
		return Place{}, err
	}
	if len(results) == 0 {
		return Place{}, ErrNotFound
	}
	return Place{
		Lat:         cast.ToFloat64(results[0].Lat),
		Lon:         cast.ToFloat64(results[0].Lon),
		DisplayName: results[0].DisplayName,
	}, nil
}

// Reverse resolves coordinates to a display name.
func (c *Client) Reverse(ctx context.Context, lat, lon float64) (Place, error) {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%.6f", lat))
	q.Set("lon", fmt.Sprintf("%.6f", lon))
	q.Set("format", "json")

	var result struct {
		DisplayName string `json:"display_name"`
		Error       string `json:"error"`
	}
	if err := c.get(ctx, "/reverse", q, &result); err != nil {
		return Place{}, err
	}
	if result.Error != "" || result.DisplayName == "" {
		return Place{}, ErrNotFound
	}
	return Place{Lat: lat, Lon: lon, DisplayName: result.DisplayName}, nil
}

func (c *Client) get(ctx context.Context, endpoint string, q url.Values, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("geocode: building request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: fetching %s: %w", ErrUpstream, endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned status %d", ErrUpstream, endpoint, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("geocode: decoding %s response: %w", endpoint, err)
	}
	return nil
}
