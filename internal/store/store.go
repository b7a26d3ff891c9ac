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

// Package store is the PostGIS data layer: connection pooling,
// embedded migrations, and the repositories for users, saved routes,
// the pollution grid, exposure history, alerts, raster file metadata,
// and the road network.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = fmt.Errorf("store: not found")

// Store wraps the connection pool. All repositories hang off it.
type Store struct {
	pool *pgxpool.Pool
	log  logrus.FieldLogger
}

// New connects to the database and verifies the connection.
func New(ctx context.Context, databaseURL string, log logrus.FieldLogger) (*Store, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: parsing DATABASE_URL: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: connecting: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: pinging database: %w", err)
	}
	s := &Store{pool: pool, log: log}
	s.initSpatial(ctx)
	return s, nil
}

// initSpatial enables PostGIS. Best-effort: a managed database may
// have it preinstalled and deny the statement.
func (s *Store) initSpatial(ctx context.Context) {
	if _, err := s.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS postgis`); err != nil {
		s.log.WithError(err).Warn("store: could not ensure postgis extension")
	}
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// prefixColumns qualifies each name in a comma-separated column list
// with a table alias.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// Migrate applies all pending migrations.
func Migrate(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("store: opening migration connection: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrationFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("store: setting migration dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("store: applying migrations: %w", err)
	}
	return nil
}
