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

// Package pollution holds the gas constants, per-gas thresholds, and
// severity classification shared by the ingestion pipeline, the UPES
// engine, and the HTTP surface. It has no dependencies on the rest of
// AERIS so that both sides of the pipeline can import it.
package pollution

import "math"

// Gas identifies one of the trace gases AERIS ingests.
type Gas string

const (
	NO2  Gas = "NO2"
	CH2O Gas = "CH2O"
	AI   Gas = "AI"
	PM   Gas = "PM"
	O3   Gas = "O3"
)

// Gases lists all gases in ingestion order.
var Gases = []Gas{NO2, CH2O, AI, PM, O3}

// Severity is the 0..4 pollution band for a measured value.
type Severity int

const (
	SeverityGood Severity = iota
	SeverityModerate
	SeverityUnhealthy
	SeverityVeryUnhealthy
	SeverityHazardous
)

// Thresholds gives the minimum value of each severity band for one gas.
// Values below Moderate classify as good.
type Thresholds struct {
	Moderate      float64
	Unhealthy     float64
	VeryUnhealthy float64
	Hazardous     float64

	// Unit is the physical unit of the raw measurement.
	Unit string
}

// ThresholdTable holds the per-gas severity bands.
var ThresholdTable = map[Gas]Thresholds{
	NO2:  {Moderate: 5.0e15, Unhealthy: 1.0e16, VeryUnhealthy: 2.0e16, Hazardous: 3.0e16, Unit: "molecules/cm²"},
	CH2O: {Moderate: 8.0e15, Unhealthy: 1.6e16, VeryUnhealthy: 3.2e16, Hazardous: 6.4e16, Unit: "molecules/cm²"},
	AI:   {Moderate: 1.0, Unhealthy: 2.0, VeryUnhealthy: 4.0, Hazardous: 7.0, Unit: "index"},
	PM:   {Moderate: 0.2, Unhealthy: 0.5, VeryUnhealthy: 1.0, Hazardous: 2.0, Unit: "dimensionless"},
	O3:   {Moderate: 220, Unhealthy: 280, VeryUnhealthy: 400, Hazardous: 500, Unit: "Dobson Units"},
}

// CollectionIDs maps each gas to its satellite provider collection.
var CollectionIDs = map[Gas]string{
	NO2:  "C2930763263-LARC_CLOUD",
	CH2O: "C2930763264-LARC_CLOUD",
	AI:   "C2930763265-LARC_CLOUD",
	PM:   "C2930763266-LARC_CLOUD",
	O3:   "C2930763267-LARC_CLOUD",
}

// VariablePaths maps each gas to its coverage variable path.
var VariablePaths = map[Gas]string{
	NO2:  "product/vertical_column_troposphere",
	CH2O: "product/vertical_column_troposphere",
	AI:   "product/aerosol_index_354_388",
	PM:   "product/aerosol_optical_depth_550",
	O3:   "product/ozone_total_column",
}

// UPESWeights are the default gas weights for the satellite score.
// They sum to 1.0; missing gases are renormalized cell-wise.
var UPESWeights = map[Gas]float64{
	NO2:  0.30,
	PM:   0.25,
	O3:   0.20,
	CH2O: 0.15,
	AI:   0.10,
}

var severityLabels = [...]string{"good", "moderate", "unhealthy", "very_unhealthy", "hazardous"}

// Label returns the band name for a severity.
func (s Severity) Label() string {
	if s < 0 || int(s) >= len(severityLabels) {
		return "no_data"
	}
	return severityLabels[s]
}

// Valid reports whether g is a recognized gas.
func Valid(g Gas) bool {
	_, ok := ThresholdTable[g]
	return ok
}

// Classify maps a raw measured value to its severity band for the given
// gas. NaN values and unknown gases classify as (no_data, SeverityGood);
// a value exactly equal to a band's minimum belongs to that band.
func Classify(value float64, gas Gas) (label string, severity Severity) {
	t, ok := ThresholdTable[gas]
	if !ok || math.IsNaN(value) {
		return "no_data", SeverityGood
	}
	switch {
	case value >= t.Hazardous:
		severity = SeverityHazardous
	case value >= t.VeryUnhealthy:
		severity = SeverityVeryUnhealthy
	case value >= t.Unhealthy:
		severity = SeverityUnhealthy
	case value >= t.Moderate:
		severity = SeverityModerate
	default:
		severity = SeverityGood
	}
	return severityLabels[severity], severity
}
