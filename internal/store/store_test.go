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

package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrefixColumns(t *testing.T) {
	assert.Equal(t, "u.id, u.email", prefixColumns("u", "id, email"))
	assert.Equal(t, "u.id, u.email, u.created_at",
		prefixColumns("u", "id, email,\n\tcreated_at"))
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationFS.ReadDir("migrations")
	assert.NoError(t, err)
	assert.NotEmpty(t, entries)
}
