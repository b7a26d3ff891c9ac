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

package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/ctessum/geom"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/aerisnav/aeris/internal/cache"
	"github.com/aerisnav/aeris/internal/store"
	"github.com/aerisnav/aeris/raster"
)

// ErrDisabled is returned when route optimization is switched off.
var ErrDisabled = fmt.Errorf("routing: optimization disabled")

// maxAlternatives caps the k-shortest request.
const maxAlternatives = 10

// RoadSource supplies road edges for a bbox.
type RoadSource interface {
	RoadEdges(ctx context.Context, west, south, east, north float64) ([]store.RoadEdge, error)
}

// Request is one optimization query.
type Request struct {
	StartLat, StartLon float64
	EndLat, EndLon     float64
	Mode               string
	Alternatives       int
}

// LineGeometry is a GeoJSON LineString.
type LineGeometry struct {
	Type        string       `json:"type"`
	Coordinates [][2]float64 `json:"coordinates"`
}

// Route is one result path.
type Route struct {
	Nodes      []int64      `json:"nodes"`
	Geometry   LineGeometry `json:"geometry"`
	Exposure   float64      `json:"exposure"`
	DistanceKM float64      `json:"distance_km"`
	TimeMin    float64      `json:"time_min"`
	Cost       float64      `json:"cost"`
}

// Result is the optimization response. Routes is empty (never nil)
// when no path exists.
type Result struct {
	Routes []Route `json:"routes"`
	Mode   Mode    `json:"mode"`
	Cached bool    `json:"-"`
}

// Engine answers optimization requests.
type Engine struct {
	Roads         RoadSource
	Cache         cache.Cache
	FinalScoreDir string
	Enabled       bool
	BufferKM      float64
	CacheTTL      time.Duration
	Log           logrus.FieldLogger
}

func (e *Engine) logger() logrus.FieldLogger {
	if e.Log != nil {
		return e.Log
	}
	return logrus.StandardLogger()
}

// Optimize runs the request end to end: cache probe, graph build,
// pathfinding, aggregation, cache fill.
func (e *Engine) Optimize(ctx context.Context, req Request) (*Result, error) {
	if !e.Enabled {
		return nil, ErrDisabled
	}
	mode := CanonicalMode(req.Mode)
	alternatives := req.Alternatives
	if alternatives < 0 {
		alternatives = 0
	}
	if alternatives > maxAlternatives {
		alternatives = maxAlternatives
	}

	key := cache.RouteKey(req.StartLat, req.StartLon, req.EndLat, req.EndLon, string(mode))
	if e.Cache != nil {
		if body, ok := e.Cache.Get(ctx, key); ok {
			var res Result
			if err := json.Unmarshal([]byte(body), &res); err == nil {
				res.Cached = true
				return &res, nil
			}
		}
	}

	var upes *raster.Raster
	if e.FinalScoreDir != "" {
		if r, _, err := raster.LatestFinalScore(e.FinalScoreDir); err == nil {
			upes = r
		} else {
			e.logger().WithError(err).Debug("routing: no UPES raster, using fallback exposure")
		}
	}
	res, err := e.compute(ctx, req, mode, alternatives, upes)
	if err != nil {
		return nil, err
	}
	if e.Cache != nil {
		if body, err := json.Marshal(res); err == nil {
			ttl := e.CacheTTL
			if ttl == 0 {
				ttl = cache.TTLRouteResult
			}
			e.Cache.Set(ctx, key, string(body), ttl)
		}
	}
	return res, nil
}

// optimizeWithRaster runs the request against an explicit UPES raster,
// bypassing the cache and the on-disk raster lookup.
func (e *Engine) optimizeWithRaster(ctx context.Context, req Request, upes *raster.Raster) (*Result, error) {
	if !e.Enabled {
		return nil, ErrDisabled
	}
	alternatives := req.Alternatives
	if alternatives < 0 {
		alternatives = 0
	}
	if alternatives > maxAlternatives {
		alternatives = maxAlternatives
	}
	return e.compute(ctx, req, CanonicalMode(req.Mode), alternatives, upes)
}

func (e *Engine) compute(ctx context.Context, req Request, mode Mode, alternatives int, upes *raster.Raster) (*Result, error) {
	west, south, east, north := bboxWithBuffer(
		req.StartLat, req.StartLon, req.EndLat, req.EndLon, e.BufferKM)

	edges, err := e.Roads.RoadEdges(ctx, west, south, east, north)
	if err != nil {
		return nil, fmt.Errorf("routing: fetching road network: %w", err)
	}
	empty := &Result{Routes: []Route{}, Mode: mode}
	if len(edges) == 0 {
		return empty, nil
	}

	gr := BuildGraph(edges, upes, mode)
	s, err := gr.Nearest(req.StartLat, req.StartLon)
	if err != nil {
		return empty, nil
	}
	t, _ := gr.Nearest(req.EndLat, req.EndLon)
	if s == t {
		p := gr.coords[s]
		return &Result{Mode: mode, Routes: []Route{{
			Nodes:    []int64{s},
			Geometry: LineGeometry{Type: "LineString", Coordinates: [][2]float64{{p.X, p.Y}}},
		}}}, nil
	}

	var paths [][]graph.Node
	if alternatives == 0 {
		shortest := path.DijkstraFrom(simple.Node(s), gr.g)
		nodes, _ := shortest.To(t)
		if len(nodes) > 0 {
			paths = [][]graph.Node{nodes}
		}
	} else {
		paths = path.YenKShortestPaths(gr.g, alternatives+1, math.Inf(1),
			simple.Node(s), simple.Node(t))
	}

	res := &Result{Routes: []Route{}, Mode: mode}
	for _, nodes := range paths {
		if r, ok := gr.aggregate(nodes); ok {
			res.Routes = append(res.Routes, r)
		}
	}
	return res, nil
}

// aggregate reconstructs geometry and metrics for a node path from
// the surviving (minimum-weight) edges.
func (gr *Graph) aggregate(nodes []graph.Node) (Route, bool) {
	if len(nodes) < 2 {
		return Route{}, false
	}
	r := Route{Geometry: LineGeometry{Type: "LineString"}}
	for i, n := range nodes {
		r.Nodes = append(r.Nodes, n.ID())
		if i == 0 {
			continue
		}
		e, ok := gr.edge(nodes[i-1].ID(), n.ID())
		if !ok {
			return Route{}, false
		}
		line := e.Geom
		if i > 1 {
			// Drop the duplicated junction point.
			line = line[1:]
		}
		for _, p := range line {
			r.Geometry.Coordinates = append(r.Geometry.Coordinates, [2]float64{p.X, p.Y})
		}
		r.DistanceKM += e.LengthM / 1000
		r.TimeMin += 60 * e.TimeH
		r.Exposure += e.MeanUPES * e.LengthM / 1000
		r.Cost += e.Weight
	}
	return r, true
}

// bboxWithBuffer expands the start/end envelope by bufferKM in all
// directions.
func bboxWithBuffer(lat1, lon1, lat2, lon2, bufferKM float64) (west, south, east, north float64) {
	south = math.Min(lat1, lat2)
	north = math.Max(lat1, lat2)
	west = math.Min(lon1, lon2)
	east = math.Max(lon1, lon2)

	dLat := bufferKM / 111.195
	midLat := (south + north) / 2
	dLon := bufferKM / (111.195 * math.Cos(midLat*math.Pi/180))
	return west - dLon, south - dLat, east + dLon, north + dLat
}

// StraightLine returns the origin->destination polyline used by the
// exposure scorer and the analyze endpoint.
func StraightLine(startLat, startLon, endLat, endLon float64) geom.LineString {
	return geom.LineString{
		{X: startLon, Y: startLat},
		{X: endLon, Y: endLat},
	}
}
