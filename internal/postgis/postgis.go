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

// Package postgis starts throwaway PostGIS databases for integration
// tests.
package postgis

import (
	"context"
	"fmt"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const image = "postgis/postgis:16-3.4"

// roadSchema is the slice of the osm2pgsql layout the route engine
// reads. Tests insert their own edges.
const roadSchema = `
CREATE TABLE IF NOT EXISTS planet_osm_line (
	osm_id bigint,
	highway text,
	oneway text,
	leisure text,
	tags hstore,
	way geometry(LineString, 3857)
);
CREATE INDEX IF NOT EXISTS planet_osm_line_way_idx ON planet_osm_line USING GIST (way);`

// SetupTestDB starts a PostGIS container, prepares the OSM road table,
// and returns a connection URL plus the running container. The caller
// terminates the container.
func SetupTestDB(ctx context.Context, t *testing.T) (string, testcontainers.Container) {
	t.Helper()
	const (
		dbname = "aeris_test"
		dbuser = "postgres"
	)

	req := testcontainers.ContainerRequest{
		Image:        image,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":               dbname,
			"POSTGRES_HOST_AUTH_METHOD": "trust",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatal(err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatal(err)
	}
	url := fmt.Sprintf("postgres://%s@%s:%s/%s", dbuser, host, port.Port(), dbname)

	var conn *pgx.Conn
	err = backoff.Retry(func() error {
		conn, err = pgx.Connect(ctx, url)
		return err
	}, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 10))
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close(ctx)

	for _, stmt := range []string{
		"CREATE EXTENSION IF NOT EXISTS postgis",
		"CREATE EXTENSION IF NOT EXISTS hstore",
		roadSchema,
	} {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			t.Fatal(err)
		}
	}
	return url, container
}
