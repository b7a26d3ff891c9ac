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

package raster

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/airbusgeo/godal"
)

var registerOnce sync.Once

func register() { registerOnce.Do(godal.RegisterAll) }

// ReadGeoTIFF loads band 1 of a GeoTIFF into memory. NoData cells
// become NaN.
func ReadGeoTIFF(path string) (*Raster, error) {
	register()
	ds, err := godal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("raster: opening %s: %w", path, err)
	}
	defer ds.Close()

	st := ds.Structure()
	if st.NBands < 1 {
		return nil, fmt.Errorf("raster: %s has no bands", path)
	}
	gt, err := ds.GeoTransform()
	if err != nil {
		return nil, fmt.Errorf("raster: reading geotransform of %s: %w", path, err)
	}
	r := &Raster{
		Width:     st.SizeX,
		Height:    st.SizeY,
		Transform: gt,
		Data:      make([]float64, st.SizeX*st.SizeY),
	}
	band := ds.Bands()[0]
	if err := band.Read(0, 0, r.Data, st.SizeX, st.SizeY); err != nil {
		return nil, fmt.Errorf("raster: reading band of %s: %w", path, err)
	}
	if nodata, ok := band.NoData(); ok {
		for i, v := range r.Data {
			if v == nodata {
				r.Data[i] = math.NaN()
			}
		}
	}
	return r, nil
}

// WriteGeoTIFF writes the raster as a single-band float64 GeoTIFF in
// EPSG:4326. The file is written to a temporary path in the same
// directory and renamed into place so that readers never observe a
// partial file. NaN cells are stored as the band NoData value.
func WriteGeoTIFF(path string, r *Raster) error {
	register()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("raster: creating output dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := writeDataset(tmp, r); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("raster: renaming %s: %w", tmp, err)
	}
	return nil
}

const noDataValue = -9999.0

func writeDataset(path string, r *Raster) error {
	ds, err := godal.Create(godal.GTiff, path, 1, godal.Float64, r.Width, r.Height)
	if err != nil {
		return fmt.Errorf("raster: creating %s: %w", path, err)
	}
	defer ds.Close()

	if err := ds.SetGeoTransform(r.Transform); err != nil {
		return fmt.Errorf("raster: setting geotransform: %w", err)
	}
	srs, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return fmt.Errorf("raster: creating SRS: %w", err)
	}
	defer srs.Close()
	if err := ds.SetSpatialRef(srs); err != nil {
		return fmt.Errorf("raster: setting SRS: %w", err)
	}

	band := ds.Bands()[0]
	if err := band.SetNoData(noDataValue); err != nil {
		return fmt.Errorf("raster: setting nodata: %w", err)
	}
	data := make([]float64, len(r.Data))
	for i, v := range r.Data {
		if math.IsNaN(v) {
			data[i] = noDataValue
		} else {
			data[i] = v
		}
	}
	if err := band.Write(0, 0, data, r.Width, r.Height); err != nil {
		return fmt.Errorf("raster: writing band: %w", err)
	}
	return nil
}
