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
	"fmt"
	"math"

	"github.com/ctessum/geom"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/aerisnav/aeris/internal/store"
	"github.com/aerisnav/aeris/raster"
)

// sampleStepM is the UPES sampling interval along edge polylines.
const sampleStepM = 50

// fallbackUPES is assumed when no score raster exists.
const fallbackUPES = 0.5

// minSpeedKPH floors the travel-time divisor.
const minSpeedKPH = 5

// edgeInfo is the weighted directed edge between two junction nodes.
// Where parallel road segments connect the same nodes, the one with
// minimum weight survives.
type edgeInfo struct {
	From, To int64
	Geom     geom.LineString
	LengthM  float64
	TimeH    float64
	MeanUPES float64
	Weight   float64
}

// Graph is the bounded road graph ready for pathfinding.
type Graph struct {
	g      *simple.WeightedDirectedGraph
	coords []geom.Point
	edges  map[[2]int64]edgeInfo
}

// nodeKey dedupes junction endpoints. Road endpoints snap onto a
// ~0.1 m lattice so floating-point noise in shared junctions does not
// split nodes.
type nodeKey struct{ x, y int64 }

func keyOf(p geom.Point) nodeKey {
	return nodeKey{x: int64(math.Round(p.X * 1e6)), y: int64(math.Round(p.Y * 1e6))}
}

// BuildGraph assembles the weighted digraph from road edges. Each
// segment contributes an edge from its first to its last vertex, and
// the reverse edge unless oneway=yes. upes may be nil; edges then cost
// the fallback exposure.
func BuildGraph(edges []store.RoadEdge, upes *raster.Raster, mode Mode) *Graph {
	gr := &Graph{
		g:     simple.NewWeightedDirectedGraph(0, math.Inf(1)),
		edges: make(map[[2]int64]edgeInfo),
	}
	nodes := make(map[nodeKey]int64)
	coef := WeightsFor(mode)

	nodeID := func(p geom.Point) int64 {
		k := keyOf(p)
		if id, ok := nodes[k]; ok {
			return id
		}
		id := int64(len(gr.coords))
		nodes[k] = id
		gr.coords = append(gr.coords, p)
		gr.g.AddNode(simple.Node(id))
		return id
	}

	for _, e := range edges {
		if len(e.Geom) < 2 {
			continue
		}
		lengthM := raster.LineLengthM(e.Geom)
		if lengthM <= 0 {
			continue
		}
		speed := math.Max(SpeedKPH(e), minSpeedKPH)
		timeH := lengthM / 1000 / speed
		stats := raster.SampleAlongLine(upes, e.Geom, sampleStepM, fallbackUPES)
		modifier := Modifier(e, mode)
		weight := modifier * (coef.Alpha*stats.Mean + coef.Beta*lengthM/1000 + coef.Gamma*timeH)

		from := nodeID(e.Geom[0])
		to := nodeID(e.Geom[len(e.Geom)-1])
		if from == to {
			continue
		}
		gr.addEdge(edgeInfo{
			From: from, To: to, Geom: e.Geom,
			LengthM: lengthM, TimeH: timeH, MeanUPES: stats.Mean, Weight: weight,
		})
		if e.Oneway != "yes" {
			gr.addEdge(edgeInfo{
				From: to, To: from, Geom: reverse(e.Geom),
				LengthM: lengthM, TimeH: timeH, MeanUPES: stats.Mean, Weight: weight,
			})
		}
	}
	return gr
}

// addEdge keeps the minimum-weight edge between a node pair.
func (gr *Graph) addEdge(e edgeInfo) {
	key := [2]int64{e.From, e.To}
	if prev, ok := gr.edges[key]; ok && prev.Weight <= e.Weight {
		return
	}
	gr.edges[key] = e
	gr.g.SetWeightedEdge(simple.WeightedEdge{
		F: simple.Node(e.From), T: simple.Node(e.To), W: e.Weight,
	})
}

func reverse(line geom.LineString) geom.LineString {
	out := make(geom.LineString, len(line))
	for i, p := range line {
		out[len(line)-1-i] = p
	}
	return out
}

// NumNodes reports the junction count.
func (gr *Graph) NumNodes() int { return len(gr.coords) }

// Nearest snaps a point to the closest junction by Euclidean distance
// in degree space. Returns an error on an empty graph.
func (gr *Graph) Nearest(lat, lon float64) (int64, error) {
	if len(gr.coords) == 0 {
		return 0, fmt.Errorf("routing: empty road graph")
	}
	best := int64(0)
	bestD := math.Inf(1)
	for id, p := range gr.coords {
		dx, dy := p.X-lon, p.Y-lat
		if d := dx*dx + dy*dy; d < bestD {
			bestD = d
			best = int64(id)
		}
	}
	return best, nil
}

// edge returns the surviving edge between two adjacent nodes.
func (gr *Graph) edge(from, to int64) (edgeInfo, bool) {
	e, ok := gr.edges[[2]int64{from, to}]
	return e, ok
}
