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

package harmony

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/aerisnav/aeris/pollution"
)

// cmrURL is the unauthenticated granule search endpoint used to probe
// whether a gas-hour has data before paying for a Harmony job.
var cmrURL = "https://cmr.earthdata.nasa.gov/search/granules.json"

// SetCMRURL overrides the granule search endpoint. Tests use it.
func (c *Client) SetCMRURL(u string) { c.cmr = u }

// HasGranules reports whether the provider lists at least one granule
// for the gas in the time window over the bounding box. Errors are
// reported as (true, err) so that callers fail open and still attempt
// the coverage request.
func (c *Client) HasGranules(ctx context.Context, gas pollution.Gas, bbox BBox, start, end time.Time) (bool, error) {
	endpoint := c.cmr
	if endpoint == "" {
		endpoint = cmrURL
	}
	q := url.Values{}
	q.Set("collection_concept_id", pollution.CollectionIDs[gas])
	q.Set("temporal", fmt.Sprintf("%s,%s",
		start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339)))
	q.Set("bounding_box", fmt.Sprintf("%g,%g,%g,%g", bbox.West, bbox.South, bbox.East, bbox.North))
	q.Set("page_size", "1")

	ctx, cancel := context.WithTimeout(ctx, tokenTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return true, fmt.Errorf("harmony: building granule search: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return true, fmt.Errorf("harmony: searching granules: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return true, fmt.Errorf("harmony: granule search returned status %d", resp.StatusCode)
	}
	var body struct {
		Feed struct {
			Entry []json.RawMessage `json:"entry"`
		} `json:"feed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return true, fmt.Errorf("harmony: decoding granule search: %w", err)
	}
	return len(body.Feed.Entry) > 0, nil
}
