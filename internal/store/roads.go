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
	"fmt"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"
)

// RoadEdges fetches road segments from the osm2pgsql import whose
// geometry intersects the bbox (WGS84 degrees). The stored geometry is
// Web Mercator; it comes back transformed to WGS84 as GeoJSON.
func (s *Store) RoadEdges(ctx context.Context, west, south, east, north float64) ([]RoadEdge, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT osm_id,
			COALESCE(highway, ''),
			COALESCE(oneway, ''),
			COALESCE(tags->'cycleway', ''),
			COALESCE(tags->'foot', ''),
			COALESCE(leisure, ''),
			COALESCE(tags->'maxspeed', ''),
			ST_AsGeoJSON(ST_Transform(way, 4326))
		FROM planet_osm_line
		WHERE highway IS NOT NULL
			AND way && ST_Transform(ST_MakeEnvelope($1, $2, $3, $4, 4326), 3857)`,
		west, south, east, north)
	if err != nil {
		return nil, fmt.Errorf("store: querying road edges: %w", err)
	}
	defer rows.Close()

	var edges []RoadEdge
	for rows.Next() {
		var e RoadEdge
		var gj string
		if err := rows.Scan(&e.ID, &e.Highway, &e.Oneway, &e.Cycleway,
			&e.Foot, &e.Leisure, &e.MaxSpeed, &gj); err != nil {
			return nil, fmt.Errorf("store: scanning road edge: %w", err)
		}
		g, err := geojson.Decode([]byte(gj))
		if err != nil {
			s.log.WithError(err).WithField("osm_id", e.ID).Warn("store: undecodable road geometry")
			continue
		}
		line, ok := g.(geom.LineString)
		if !ok || len(line) < 2 {
			continue
		}
		e.Geom = line
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
