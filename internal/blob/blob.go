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

// Package blob wraps the optional S3-compatible object store used for
// ingestion audit uploads and raster blob retrieval. Consumers check
// ErrNotConfigured and fall back (skip the audit upload, scan the
// local directory) instead of failing.
package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/aerisnav/aeris/pollution"
)

// ErrNotConfigured is returned by every Store method when no bucket is
// configured.
var ErrNotConfigured = fmt.Errorf("blob: object storage not configured")

// Store is the object-store handle. The zero value is the
// not-configured store.
type Store struct {
	client *s3.Client
	bucket string
}

// Config selects the bucket and, for S3-compatible services, the
// endpoint and static keys. An empty Bucket means not configured.
type Config struct {
	Bucket   string
	Endpoint string
	Region   string

	// Static keys for S3-compatible endpoints. Left empty, the default
	// AWS credential chain applies.
	AccessKeyID     string
	SecretAccessKey string
}

// New builds a Store. An empty bucket yields the not-configured store
// with no error.
func New(ctx context.Context, c Config) (*Store, error) {
	if c.Bucket == "" {
		return &Store{}, nil
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(c.Region)}
	if c.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("blob: loading AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &Store{client: client, bucket: c.Bucket}, nil
}

// Configured reports whether uploads and downloads will work.
func (s *Store) Configured() bool { return s != nil && s.client != nil }

// AuditKey is the object key for an hourly raw-raster audit copy.
func AuditKey(gas pollution.Gas, t time.Time) string {
	u := t.UTC()
	return fmt.Sprintf("audit/geotiff/%s/%s_%02d.tif",
		u.Format("2006-01-02"), strings.ToLower(string(gas)), u.Hour())
}

// Upload stores the file at path under key.
func (s *Store) Upload(ctx context.Context, key, path string) error {
	if !s.Configured() {
		return ErrNotConfigured
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("blob: opening %s: %w", path, err)
	}
	defer f.Close()
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("blob: uploading %s: %w", key, err)
	}
	return nil
}

// Download fetches key into destDir and returns the local path.
func (s *Store) Download(ctx context.Context, key, destDir string) (string, error) {
	if !s.Configured() {
		return "", ErrNotConfigured
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("blob: fetching %s: %w", key, err)
	}
	defer out.Body.Close()

	dest := filepath.Join(destDir, filepath.Base(key))
	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("blob: creating %s: %w", dest, err)
	}
	if _, err := io.Copy(f, out.Body); err != nil {
		f.Close()
		os.Remove(dest)
		return "", fmt.Errorf("blob: writing %s: %w", dest, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("blob: closing %s: %w", dest, err)
	}
	return dest, nil
}
