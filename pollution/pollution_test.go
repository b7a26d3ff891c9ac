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

package pollution

import (
	"math"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		gas      Gas
		value    float64
		label    string
		severity Severity
	}{
		{NO2, 1.0e15, "good", SeverityGood},
		{NO2, 5.0e15, "moderate", SeverityModerate}, // exactly on the band minimum
		{NO2, 1.5e16, "unhealthy", SeverityUnhealthy},
		{NO2, 2.0e16, "very_unhealthy", SeverityVeryUnhealthy},
		{NO2, 3.0e16, "hazardous", SeverityHazardous},
		{NO2, 9.9e16, "hazardous", SeverityHazardous},
		{CH2O, 8.0e15, "moderate", SeverityModerate},
		{AI, 0.5, "good", SeverityGood},
		{AI, 7.0, "hazardous", SeverityHazardous},
		{PM, 0.5, "unhealthy", SeverityUnhealthy},
		{O3, 219.99, "good", SeverityGood},
		{O3, 500, "hazardous", SeverityHazardous},
	}
	for _, test := range tests {
		label, severity := Classify(test.value, test.gas)
		if label != test.label || severity != test.severity {
			t.Errorf("Classify(%g, %s): have (%s, %d), want (%s, %d)",
				test.value, test.gas, label, severity, test.label, test.severity)
		}
	}
}

func TestClassifyNoData(t *testing.T) {
	if label, severity := Classify(math.NaN(), NO2); label != "no_data" || severity != SeverityGood {
		t.Errorf("NaN: have (%s, %d)", label, severity)
	}
	if label, _ := Classify(1.0, Gas("XX")); label != "no_data" {
		t.Errorf("unknown gas: have %s", label)
	}
}

func TestUPESWeightsSum(t *testing.T) {
	var sum float64
	for _, g := range Gases {
		w, ok := UPESWeights[g]
		if !ok {
			t.Fatalf("no UPES weight for %s", g)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("UPES weights sum to %g, want 1.0", sum)
	}
}

func TestEveryGasHasProviderConstants(t *testing.T) {
	for _, g := range Gases {
		if CollectionIDs[g] == "" {
			t.Errorf("missing collection ID for %s", g)
		}
		if VariablePaths[g] == "" {
			t.Errorf("missing variable path for %s", g)
		}
	}
}
