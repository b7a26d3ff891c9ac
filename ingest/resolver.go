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

package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aerisnav/aeris/internal/store"
	"github.com/aerisnav/aeris/pollution"
	"github.com/aerisnav/aeris/raster"
)

// BlobIndex is the slice of the data layer the resolver reads.
type BlobIndex interface {
	LatestNetCDFFile(ctx context.Context, gas pollution.Gas) (*store.NetCDFFile, error)
}

// Downloader fetches archived rasters from object storage.
type Downloader interface {
	Configured() bool
	Download(ctx context.Context, key, destDir string) (string, error)
}

// Resolver locates the newest raw raster for a gas: the indexed
// object-store copy when one exists, otherwise the newest file the
// worker left in LocalDir.
type Resolver struct {
	Index BlobIndex
	Blob  Downloader

	// LocalDir is the worker's download directory, scanned as the
	// fallback when object storage is absent or the download fails.
	LocalDir string

	// DownloadDir receives object-store downloads; defaults to
	// LocalDir.
	DownloadDir string

	Log logrus.FieldLogger
}

func (r *Resolver) logger() logrus.FieldLogger {
	if r.Log != nil {
		return r.Log
	}
	return logrus.StandardLogger()
}

// Resolve returns a local path to the newest raster for gas along with
// its timestamp. Returns raster.ErrNoRaster when neither the index nor
// the local directory has one.
func (r *Resolver) Resolve(ctx context.Context, gas pollution.Gas) (string, time.Time, error) {
	if r.Index != nil && r.Blob != nil && r.Blob.Configured() {
		f, err := r.Index.LatestNetCDFFile(ctx, gas)
		switch {
		case err == nil:
			dir := r.DownloadDir
			if dir == "" {
				dir = r.LocalDir
			}
			path, derr := r.Blob.Download(ctx, f.BucketPath, dir)
			if derr == nil {
				return path, f.Timestamp, nil
			}
			r.logger().WithError(derr).WithField("key", f.BucketPath).
				Warn("ingest: raster download failed, falling back to local scan")
		case !errors.Is(err, store.ErrNotFound):
			r.logger().WithError(err).Warn("ingest: raster index lookup failed")
		}
	}
	return r.latestLocal(gas)
}

// latestLocal picks the newest worker download for gas by mtime. File
// names follow the worker's {gas}_{YYYYMMDD_HH}.tif convention.
func (r *Resolver) latestLocal(gas pollution.Gas) (string, time.Time, error) {
	if r.LocalDir == "" {
		return "", time.Time{}, raster.ErrNoRaster
	}
	pattern := fmt.Sprintf("%s_*.tif", strings.ToLower(string(gas)))
	return raster.Latest(r.LocalDir, pattern)
}
