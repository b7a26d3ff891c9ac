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

// Package harmony downloads hourly satellite gas coverages through the
// Harmony subsetting service. A request for one gas-hour either
// completes synchronously with a GeoTIFF body, resolves asynchronously
// through a job that must be polled, or comes back empty when the
// provider has no granules for the window.
package harmony

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/sirupsen/logrus"

	"github.com/aerisnav/aeris/pollution"
)

// Per-call deadlines.
const (
	tokenTimeout    = 30 * time.Second
	submitTimeout   = 60 * time.Second
	pollTimeout     = 600 * time.Second
	downloadTimeout = 300 * time.Second
)

// Retry policy for 429 and 5xx responses.
const (
	retryBase     = time.Second
	retryCap      = 30 * time.Second
	retryAttempts = 5
)

// ErrNoGranules is returned when the provider holds no data for the
// requested gas-hour. Callers treat it as an empty result, not a
// failure.
var ErrNoGranules = fmt.Errorf("harmony: no matching granules")

// BBox is the request window in WGS84 degrees.
type BBox struct {
	West, South, East, North float64
}

// Credentials selects token acquisition: a static bearer token when
// Token is set, otherwise a token minted from the Earthdata login
// account and cached for the process lifetime.
type Credentials struct {
	Token    string
	Username string
	Password string
}

// Client fetches gas coverages. Safe for concurrent use.
type Client struct {
	baseURL string
	ursURL  string
	cmr     string
	creds   Credentials
	http    *http.Client
	log     logrus.FieldLogger

	pollInterval time.Duration

	mu     sync.Mutex
	cached string
}

// New returns a Client against the given Harmony root (default hosted
// endpoint when empty).
func New(baseURL string, creds Credentials, log logrus.FieldLogger) *Client {
	if baseURL == "" {
		baseURL = "https://harmony.earthdata.nasa.gov"
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		ursURL:       "https://urs.earthdata.nasa.gov",
		creds:        creds,
		http:         cleanhttp.DefaultPooledClient(),
		log:          log,
		pollInterval: 5 * time.Second,
	}
}

// token returns the bearer token, minting and caching one from the
// Earthdata account when no static token is configured.
func (c *Client) token(ctx context.Context) (string, error) {
	if c.creds.Token != "" {
		return c.creds.Token, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cached != "" {
		return c.cached, nil
	}
	if c.creds.Username == "" || c.creds.Password == "" {
		return "", fmt.Errorf("harmony: no token or Earthdata credentials configured")
	}

	ctx, cancel := context.WithTimeout(ctx, tokenTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ursURL+"/api/users/token", nil)
	if err != nil {
		return "", fmt.Errorf("harmony: building token request: %w", err)
	}
	req.SetBasicAuth(c.creds.Username, c.creds.Password)
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("harmony: minting token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("harmony: token endpoint returned status %d", resp.StatusCode)
	}
	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("harmony: decoding token response: %w", err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("harmony: token endpoint returned empty token")
	}
	c.cached = body.AccessToken
	return c.cached, nil
}

// RangesetURL builds the coverage request URL for one gas-hour.
func (c *Client) RangesetURL(gas pollution.Gas, bbox BBox, start, end time.Time) string {
	collection := pollution.CollectionIDs[gas]
	variable := url.PathEscape(pollution.VariablePaths[gas])
	q := url.Values{}
	q.Set("format", "image/tiff")
	q.Add("subset", fmt.Sprintf("lon(%g:%g)", bbox.West, bbox.East))
	q.Add("subset", fmt.Sprintf("lat(%g:%g)", bbox.South, bbox.North))
	q.Add("subset", fmt.Sprintf("time(%q:%q)",
		start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339)))
	return fmt.Sprintf("%s/%s/ogc-api-coverages/1.0.0/collections/%s/coverage/rangeset?%s",
		c.baseURL, collection, variable, q.Encode())
}

// Fetch downloads the coverage for one gas-hour into a new file under
// dir and returns its path. It returns ErrNoGranules when the window
// is empty.
func (c *Client) Fetch(ctx context.Context, gas pollution.Gas, bbox BBox, start, end time.Time, dir string) (string, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return "", err
	}
	u := c.RangesetURL(gas, bbox, start, end)
	log := c.log.WithFields(logrus.Fields{"gas": gas, "hour": start.UTC().Format("2006-01-02T15")})

	dest := tempPath(dir, gas, start)
	sync, job, err := c.submit(ctx, u, tok, dest)
	if err != nil {
		return "", err
	}
	if sync {
		log.Info("harmony: synchronous coverage complete")
		return dest, nil
	}
	log.WithField("job", job).Info("harmony: waiting on asynchronous job")
	dataURL, err := c.poll(ctx, job, tok)
	if err != nil {
		return "", err
	}
	if err := c.download(ctx, dataURL, tok, dest); err != nil {
		return "", err
	}
	return dest, nil
}

func tempPath(dir string, gas pollution.Gas, start time.Time) string {
	return fmt.Sprintf("%s/%s_%s.tif", strings.TrimRight(dir, "/"),
		strings.ToLower(string(gas)), start.UTC().Format("20060102_15"))
}

// submit issues the coverage request. On a synchronous 200 it streams
// the body to dest and returns sync=true; on an async response it
// returns the job ID; a 400 naming no matching granules maps to
// ErrNoGranules.
func (c *Client) submit(ctx context.Context, u, tok, dest string) (sync bool, jobID string, err error) {
	ctx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()

	err = c.retry(ctx, "submit", func() (int, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return 0, fmt.Errorf("harmony: building coverage request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
		resp, err := c.http.Do(req)
		if err != nil {
			return 0, fmt.Errorf("harmony: submitting coverage request: %w", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK && !isJSON(resp):
			if err := writeFile(dest, resp.Body); err != nil {
				return resp.StatusCode, err
			}
			sync = true
			return resp.StatusCode, nil
		case resp.StatusCode == http.StatusOK || resp.StatusCode/100 == 3:
			var body struct {
				JobID string `json:"jobID"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return resp.StatusCode, fmt.Errorf("harmony: decoding job response: %w", err)
			}
			if body.JobID == "" {
				return resp.StatusCode, fmt.Errorf("harmony: async response without jobID")
			}
			jobID = body.JobID
			return resp.StatusCode, nil
		case resp.StatusCode == http.StatusBadRequest:
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			if strings.Contains(strings.ToLower(string(msg)), "no matching granules") {
				return resp.StatusCode, backoff.Permanent(ErrNoGranules)
			}
			return resp.StatusCode, fmt.Errorf("harmony: coverage request rejected: %s", msg)
		default:
			return resp.StatusCode, fmt.Errorf("harmony: coverage request returned status %d", resp.StatusCode)
		}
	})
	return sync, jobID, err
}

// poll waits for an asynchronous job to finish and returns the first
// data link.
func (c *Client) poll(ctx context.Context, jobID, tok string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		status, dataURL, err := c.jobStatus(ctx, jobID, tok)
		if err != nil {
			return "", err
		}
		switch status {
		case "successful":
			if dataURL == "" {
				return "", fmt.Errorf("harmony: job %s finished without data links", jobID)
			}
			return dataURL, nil
		case "failed", "canceled":
			return "", fmt.Errorf("harmony: job %s ended with status %q", jobID, status)
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("harmony: polling job %s: %w", jobID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) jobStatus(ctx context.Context, jobID, tok string) (status, dataURL string, err error) {
	err = c.retry(ctx, "poll", func() (int, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/jobs/"+jobID, nil)
		if err != nil {
			return 0, fmt.Errorf("harmony: building job request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
		resp, err := c.http.Do(req)
		if err != nil {
			return 0, fmt.Errorf("harmony: fetching job status: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return resp.StatusCode, fmt.Errorf("harmony: job status returned %d", resp.StatusCode)
		}
		var body struct {
			Status string `json:"status"`
			Links  []struct {
				Href string `json:"href"`
				Rel  string `json:"rel"`
			} `json:"links"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return resp.StatusCode, fmt.Errorf("harmony: decoding job status: %w", err)
		}
		status = body.Status
		for _, l := range body.Links {
			if l.Rel == "data" {
				dataURL = l.Href
				break
			}
		}
		return resp.StatusCode, nil
	})
	return status, dataURL, err
}

func (c *Client) download(ctx context.Context, u, tok, dest string) error {
	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()
	return c.retry(ctx, "download", func() (int, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return 0, fmt.Errorf("harmony: building download request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
		resp, err := c.http.Do(req)
		if err != nil {
			return 0, fmt.Errorf("harmony: downloading result: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return resp.StatusCode, fmt.Errorf("harmony: download returned status %d", resp.StatusCode)
		}
		return resp.StatusCode, writeFile(dest, resp.Body)
	})
}

// retry runs op under the provider retry policy: 429 and 5xx statuses
// back off exponentially from retryBase up to retryCap for at most
// retryAttempts tries; other failures are permanent.
func (c *Client) retry(ctx context.Context, name string, op func() (int, error)) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryBase
	policy.MaxInterval = retryCap
	policy.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(policy, retryAttempts-1), ctx)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		status, err := op()
		if err == nil {
			return nil
		}
		if status == http.StatusTooManyRequests || status/100 == 5 {
			c.log.WithFields(logrus.Fields{"op": name, "status": status, "attempt": attempt}).
				Warn("harmony: retryable provider error")
			return err
		}
		return backoff.Permanent(err)
	}, b)
}

func isJSON(resp *http.Response) bool {
	return strings.Contains(resp.Header.Get("Content-Type"), "json")
}

func writeFile(dest string, r io.Reader) error {
	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("harmony: creating %s: %w", tmp, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("harmony: writing %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("harmony: closing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("harmony: renaming %s: %w", tmp, err)
	}
	return nil
}
