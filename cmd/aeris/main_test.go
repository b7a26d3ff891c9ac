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

package main

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestRunFollowUpsOrder(t *testing.T) {
	var order []string
	run := runFollowUps(logrus.New(), []followUp{
		{"compute_upes_hourly", func(ctx context.Context) error {
			order = append(order, "upes")
			return nil
		}},
		{"recompute_saved_route_exposure", func(ctx context.Context) error {
			order = append(order, "exposure")
			return nil
		}},
	})
	run(context.Background())
	assert.Equal(t, []string{"upes", "exposure"}, order,
		"exposure recompute must see the freshly scored raster")
}

func TestRunFollowUpsContinuesPastFailure(t *testing.T) {
	var ran bool
	log := logrus.New()
	run := runFollowUps(log, []followUp{
		{"first", func(ctx context.Context) error { return errors.New("scoring exploded") }},
		{"second", func(ctx context.Context) error { ran = true; return nil }},
	})
	run(context.Background())
	assert.True(t, ran, "a failing step must not stop later steps")
}
