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
	"math"
	"sync"
	"testing"
	"time"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerisnav/aeris/internal/store"
	"github.com/aerisnav/aeris/raster"
)

func TestCanonicalMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"commute", ModeCommute},
		{"Commute", ModeCommute},
		{"  commuter ", ModeCommute},
		{"jogger", ModeJogger},
		{"jog", ModeJogger},
		{"cyclist", ModeCyclist},
		{"cycle", ModeCyclist},
		{"hoverboard", ModeCommute},
		{"", ModeCommute},
	}
	for _, test := range tests {
		if got := CanonicalMode(test.in); got != test.want {
			t.Errorf("CanonicalMode(%q) = %q, want %q", test.in, got, test.want)
		}
	}
}

func TestCoefficientsSumToOne(t *testing.T) {
	for mode, c := range modeWeights {
		if math.Abs(c.Alpha+c.Beta+c.Gamma-1.0) > 1e-9 {
			t.Errorf("%s coefficients sum to %g", mode, c.Alpha+c.Beta+c.Gamma)
		}
	}
}

func TestModifier(t *testing.T) {
	tests := []struct {
		edge store.RoadEdge
		mode Mode
		want float64
	}{
		{store.RoadEdge{Highway: "residential"}, ModeCommute, 1.0},
		{store.RoadEdge{Highway: "footway"}, ModeCommute, 1.2},
		{store.RoadEdge{Highway: "motorway"}, ModeJogger, 2.0},
		{store.RoadEdge{Highway: "trunk_link"}, ModeJogger, 2.0},
		{store.RoadEdge{Highway: "path"}, ModeJogger, 0.5},
		{store.RoadEdge{Highway: "footway", Leisure: "park"}, ModeJogger, 0.25},
		{store.RoadEdge{Highway: "motorway"}, ModeCyclist, 1.5},
		{store.RoadEdge{Highway: "residential", Cycleway: "lane"}, ModeCyclist, 0.7},
		{store.RoadEdge{Highway: "footway;path"}, ModeCommute, 1.2},
		// An explicitly accessible walkway carries no commute penalty.
		{store.RoadEdge{Highway: "footway", Foot: "yes"}, ModeCommute, 1.0},
		{store.RoadEdge{Highway: "path", Foot: "designated"}, ModeCommute, 1.0},
		{store.RoadEdge{Highway: "pedestrian", Foot: "permissive"}, ModeCommute, 1.0},
		{store.RoadEdge{Highway: "footway", Foot: "no"}, ModeCommute, 1.2},
		{store.RoadEdge{Highway: "footway", Foot: "private"}, ModeCommute, 1.2},
	}
	for _, test := range tests {
		got := Modifier(test.edge, test.mode)
		if math.Abs(got-test.want) > 1e-9 {
			t.Errorf("Modifier(%q, %s) = %g, want %g", test.edge.Highway, test.mode, got, test.want)
		}
		if got < modifierMin || got > modifierMax {
			t.Errorf("modifier %g outside [%g, %g]", got, modifierMin, modifierMax)
		}
	}
}

func TestSpeedKPH(t *testing.T) {
	tests := []struct {
		edge store.RoadEdge
		want float64
	}{
		{store.RoadEdge{Highway: "motorway"}, 100},
		{store.RoadEdge{Highway: "trunk"}, 80},
		{store.RoadEdge{Highway: "primary"}, 60},
		{store.RoadEdge{Highway: "secondary"}, 50},
		{store.RoadEdge{Highway: "tertiary"}, 40},
		{store.RoadEdge{Highway: "residential"}, 30},
		{store.RoadEdge{Highway: "unclassified"}, 30},
		{store.RoadEdge{Highway: "service"}, 20},
		{store.RoadEdge{Highway: "footway"}, 5},
		{store.RoadEdge{Highway: "mystery"}, 30},
		{store.RoadEdge{Highway: "residential", MaxSpeed: "50"}, 50},
		{store.RoadEdge{Highway: "residential", MaxSpeed: "30 mph"}, 30 * 1.609344},
	}
	for _, test := range tests {
		if got := SpeedKPH(test.edge); math.Abs(got-test.want) > 1e-9 {
			t.Errorf("SpeedKPH(%q/%q) = %g, want %g", test.edge.Highway, test.edge.MaxSpeed, got, test.want)
		}
	}
}

// Test network around (34.0..34.1, -118.2): a straight segment through
// a polluted corridor and a two-segment detour through clean air.
//
//	A(-118.20, 34.00) ── direct ──> B(-118.20, 34.10)
//	A ──> C(-118.17, 34.05) ──> B
func testEdges() []store.RoadEdge {
	return []store.RoadEdge{
		{ID: 1, Highway: "residential", Geom: geom.LineString{
			{X: -118.20, Y: 34.00}, {X: -118.20, Y: 34.10}}},
		{ID: 2, Highway: "residential", Geom: geom.LineString{
			{X: -118.20, Y: 34.00}, {X: -118.17, Y: 34.05}}},
		{ID: 3, Highway: "residential", Geom: geom.LineString{
			{X: -118.17, Y: 34.05}, {X: -118.20, Y: 34.10}}},
	}
}

// testUPES marks the direct edge's corridor (the cell column holding
// lon -118.20) hazardous and everything else clean.
func testUPES() *raster.Raster {
	r := raster.New(7, 14, -118.225, 34.13, 0.01)
	for i := range r.Data {
		r.Data[i] = 0.05
	}
	for row := 0; row < 14; row++ {
		r.Set(row, 2, 0.95)
	}
	return r
}

type fakeRoads struct {
	mu    sync.Mutex
	calls int
	edges []store.RoadEdge
}

func (f *fakeRoads) RoadEdges(_ context.Context, west, south, east, north float64) ([]store.RoadEdge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.edges, nil
}

type mapCache struct {
	mu sync.Mutex
	m  map[string]string
}

func newMapCache() *mapCache { return &mapCache{m: make(map[string]string)} }

func (c *mapCache) Get(_ context.Context, key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok
}

func (c *mapCache) Set(_ context.Context, key, value string, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = value
}

func TestBuildGraphParallelEdgesCollapse(t *testing.T) {
	edges := []store.RoadEdge{
		{ID: 1, Highway: "residential", Geom: geom.LineString{
			{X: 0, Y: 0}, {X: 0.01, Y: 0}}},
		{ID: 2, Highway: "motorway", Geom: geom.LineString{
			{X: 0, Y: 0}, {X: 0.01, Y: 0}}},
	}
	gr := BuildGraph(edges, nil, ModeCommute)
	require.Equal(t, 2, gr.NumNodes())

	e, ok := gr.edge(0, 1)
	require.True(t, ok)
	// The motorway is faster, so for commute its weight is lower and
	// it must survive; at 100 kph the ~1.1 km segment takes ~0.011 h.
	assert.Less(t, e.TimeH, 0.02)
}

func TestBuildGraphOneway(t *testing.T) {
	edges := []store.RoadEdge{
		{ID: 1, Highway: "residential", Oneway: "yes", Geom: geom.LineString{
			{X: 0, Y: 0}, {X: 0.01, Y: 0}}},
	}
	gr := BuildGraph(edges, nil, ModeCommute)
	_, forward := gr.edge(0, 1)
	_, backward := gr.edge(1, 0)
	assert.True(t, forward)
	assert.False(t, backward, "oneway=yes must not add the reverse edge")
}

func TestOptimizePrefersCleanDetour(t *testing.T) {
	e := &Engine{
		Roads:   &fakeRoads{edges: testEdges()},
		Enabled: true, BufferKM: 3,
	}
	upes := testUPES()

	gr := BuildGraph(testEdges(), upes, ModeCommute)
	require.Equal(t, 3, gr.NumNodes())

	res, err := e.optimizeWithRaster(context.Background(), Request{
		StartLat: 34.00, StartLon: -118.20,
		EndLat: 34.10, EndLon: -118.20,
		Mode: "jogger",
	}, upes)
	require.NoError(t, err)
	require.Len(t, res.Routes, 1)
	r := res.Routes[0]
	assert.Len(t, r.Nodes, 3, "jogger weighting must take the clean detour")
	assert.Greater(t, r.DistanceKM, 12.0)
	assert.Less(t, r.Exposure, 4.0)
}

// A jogger weights exposure heavier than a commuter, so for the same
// endpoints the chosen route's exposure cannot be worse.
func TestModeSwapLowersExposure(t *testing.T) {
	e := &Engine{Roads: &fakeRoads{edges: testEdges()}, Enabled: true, BufferKM: 3}
	upes := testUPES()

	req := Request{
		StartLat: 34.00, StartLon: -118.20,
		EndLat: 34.10, EndLon: -118.20,
	}
	req.Mode = "commute"
	commute, err := e.optimizeWithRaster(context.Background(), req, upes)
	require.NoError(t, err)
	require.Len(t, commute.Routes, 1)

	req.Mode = "jogger"
	jogger, err := e.optimizeWithRaster(context.Background(), req, upes)
	require.NoError(t, err)
	require.Len(t, jogger.Routes, 1)

	assert.LessOrEqual(t, jogger.Routes[0].Exposure, commute.Routes[0].Exposure)
}

func TestOptimizeAlternatives(t *testing.T) {
	e := &Engine{Roads: &fakeRoads{edges: testEdges()}, Enabled: true, BufferKM: 3}
	res, err := e.optimizeWithRaster(context.Background(), Request{
		StartLat: 34.00, StartLon: -118.20,
		EndLat: 34.10, EndLon: -118.20,
		Mode: "commute", Alternatives: 2,
	}, nil)
	require.NoError(t, err)
	require.Len(t, res.Routes, 2, "only two simple paths exist")
	assert.LessOrEqual(t, res.Routes[0].Cost, res.Routes[1].Cost)
}

func TestOptimizeIdenticalEndpoints(t *testing.T) {
	e := &Engine{Roads: &fakeRoads{edges: testEdges()}, Enabled: true, BufferKM: 3}
	res, err := e.optimizeWithRaster(context.Background(), Request{
		StartLat: 34.00, StartLon: -118.20,
		EndLat: 34.00, EndLon: -118.20,
		Mode: "commute",
	}, nil)
	require.NoError(t, err)
	require.Len(t, res.Routes, 1)
	r := res.Routes[0]
	assert.Zero(t, r.DistanceKM)
	assert.Zero(t, r.TimeMin)
	assert.Zero(t, r.Exposure)
}

func TestOptimizeEmptyNetwork(t *testing.T) {
	e := &Engine{Roads: &fakeRoads{}, Enabled: true, BufferKM: 3}
	res, err := e.Optimize(context.Background(), Request{Mode: "commute"})
	require.NoError(t, err)
	assert.NotNil(t, res.Routes)
	assert.Empty(t, res.Routes)
}

func TestOptimizeDisabled(t *testing.T) {
	e := &Engine{Roads: &fakeRoads{edges: testEdges()}, Enabled: false}
	_, err := e.Optimize(context.Background(), Request{Mode: "commute"})
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestOptimizeCacheHit(t *testing.T) {
	roads := &fakeRoads{edges: testEdges()}
	e := &Engine{Roads: roads, Cache: newMapCache(), Enabled: true, BufferKM: 3}
	req := Request{
		StartLat: 34.00, StartLon: -118.20,
		EndLat: 34.10, EndLon: -118.20,
		Mode: "commute",
	}
	first, err := e.Optimize(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 1, roads.calls)

	second, err := e.Optimize(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, roads.calls, "cache hit must not rebuild the graph")
	assert.True(t, second.Cached)
	assert.Equal(t, first.Routes, second.Routes)

	// Alias spelling hits the same entry.
	req.Mode = "  Commuter "
	_, err = e.Optimize(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, roads.calls)
}

func TestFallbackExposureWithoutRaster(t *testing.T) {
	e := &Engine{Roads: &fakeRoads{edges: testEdges()}, Enabled: true, BufferKM: 3}
	res, err := e.optimizeWithRaster(context.Background(), Request{
		StartLat: 34.00, StartLon: -118.20,
		EndLat: 34.10, EndLon: -118.20,
		Mode: "commute",
	}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, res.Routes)
	r := res.Routes[0]
	assert.InDelta(t, 0.5*r.DistanceKM, r.Exposure, 1e-9,
		"without a raster every edge samples the 0.5 fallback")
}

func TestBBoxWithBuffer(t *testing.T) {
	w, s, e, n := bboxWithBuffer(34.0, -118.2, 34.1, -118.1, 3)
	assert.Less(t, w, -118.2)
	assert.Greater(t, e, -118.1)
	assert.Less(t, s, 34.0)
	assert.Greater(t, n, 34.1)
	assert.InDelta(t, 3.0/111.195, 34.0-s, 1e-9)
}
