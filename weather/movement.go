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

package weather

import (
	"context"
	"fmt"
	"math"
	"time"
)

// MovementStep is the predicted pollutant plume state h hours out.
type MovementStep struct {
	Hour int `json:"hour"`
	// Lat/Lon is the predicted plume center after cumulative wind
	// transport from the origin.
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	// DistanceKM is the cumulative transport distance.
	DistanceKM float64 `json:"distance_km"`
	// BearingDeg is the transport direction for this hour, degrees
	// clockwise from north.
	BearingDeg float64 `json:"bearing_deg"`
	// ConcentrationFactor scales the origin concentration; dispersion
	// and humidity scavenging only reduce it, so it is in (0, 1].
	ConcentrationFactor float64 `json:"concentration_factor"`
	WindKPH             float64 `json:"wind_kph"`
	Humidity            float64 `json:"humidity"`
}

// Movement is a pollutant transport prediction for the hours after an
// observation at the origin point.
type Movement struct {
	OriginLat   float64        `json:"origin_lat"`
	OriginLon   float64        `json:"origin_lon"`
	GeneratedAt time.Time      `json:"generated_at"`
	Steps       []MovementStep `json:"steps"`
}

// movementHours is how far ahead PredictMovement looks.
const movementHours = 3

const (
	kmPerDegreeLat = 111.195
	// Dispersion halves concentration roughly every 35 kph-hours of
	// wind; humidity scavenging removes up to 30% per hour at
	// saturation.
	windDecayPerKPH     = 0.02
	humidityDecayAtFull = 0.30
	minHourlyFactor     = 0.05
)

// PredictMovement fetches the hourly forecast at the origin and
// predicts where pollution at that point moves over the next three
// hours. Each hour's wind vector displaces the plume toward the wind
// direction; concentration decays multiplicatively with wind speed and
// humidity. Calm hours contribute no displacement.
func (c *Client) PredictMovement(ctx context.Context, lat, lon float64) (*Movement, error) {
	f, err := c.HourlyForecast(ctx, lat, lon, 1)
	if err != nil {
		return nil, fmt.Errorf("weather: predicting movement: %w", err)
	}
	hours := f.Hourly
	if len(hours) > movementHours {
		hours = hours[:movementHours]
	}
	if len(hours) == 0 {
		// Forecast exhausted near midnight; extrapolate from current.
		for h := 0; h < movementHours; h++ {
			hours = append(hours, f.Current)
		}
	}
	return predict(lat, lon, hours), nil
}

func predict(lat, lon float64, hours []Observation) *Movement {
	m := &Movement{OriginLat: lat, OriginLon: lon, GeneratedAt: time.Now().UTC()}
	curLat, curLon := lat, lon
	distance := 0.0
	factor := 1.0
	for i, obs := range hours {
		stepKM := obs.WindKPH // km traveled in one hour
		bearing := obs.WindDegree
		if stepKM > 0 {
			rad := bearing * math.Pi / 180
			dLat := stepKM * math.Cos(rad) / kmPerDegreeLat
			dLon := stepKM * math.Sin(rad) / (kmPerDegreeLat * math.Cos(curLat*math.Pi/180))
			curLat += dLat
			curLon += dLon
			distance += stepKM
		}
		hourly := 1 - windDecayPerKPH*obs.WindKPH - humidityDecayAtFull*obs.Humidity/100
		if hourly < minHourlyFactor {
			hourly = minHourlyFactor
		}
		factor *= hourly
		m.Steps = append(m.Steps, MovementStep{
			Hour:                i + 1,
			Lat:                 curLat,
			Lon:                 curLon,
			DistanceKM:          distance,
			BearingDeg:          bearing,
			ConcentrationFactor: factor,
			WindKPH:             obs.WindKPH,
			Humidity:            obs.Humidity,
		})
	}
	return m
}
