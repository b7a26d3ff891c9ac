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

package server

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/aerisnav/aeris/geocode"
	"github.com/aerisnav/aeris/internal/store"
	"github.com/aerisnav/aeris/raster"
	"github.com/aerisnav/aeris/routing"
	"github.com/aerisnav/aeris/weather"
)

type apiError struct {
	Detail string `json:"detail"`
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, apiError{Detail: detail})
}

// writeMapped translates domain errors to status codes. Unexpected
// errors become an opaque 500.
func (s *Server) writeMapped(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, raster.ErrNoRaster),
		errors.Is(err, geocode.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email already registered")
	case errors.Is(err, routing.ErrDisabled):
		writeError(w, http.StatusServiceUnavailable, "route optimization is disabled")
	case errors.Is(err, weather.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "weather provider not configured")
	// Timeouts before the general upstream case: a timed-out provider
	// call matches both.
	case errors.Is(err, context.DeadlineExceeded), os.IsTimeout(err):
		s.logger().WithError(err).Warn("upstream timeout")
		writeError(w, http.StatusGatewayTimeout, "upstream provider timed out")
	case errors.Is(err, weather.ErrUpstream), errors.Is(err, geocode.ErrUpstream):
		s.logger().WithError(err).Warn("upstream failure")
		writeError(w, http.StatusBadGateway, "upstream provider error")
	default:
		s.logger().WithError(err).Error("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
