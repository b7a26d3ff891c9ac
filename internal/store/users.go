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
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrEmailTaken is returned by CreateUser for a duplicate email.
var ErrEmailTaken = fmt.Errorf("store: email already registered")

const userColumns = `id, email, hashed_password, exposure_sensitivity_level,
	notification_preferences, created_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.HashedPassword, &u.ExposureSensitivityLevel,
		&u.NotificationPreferences, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scanning user: %w", err)
	}
	return &u, nil
}

// CreateUser inserts a user with the default preferences.
func (s *Store) CreateUser(ctx context.Context, email, hashedPassword string) (*User, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (email, hashed_password)
		VALUES ($1, $2)
		RETURNING `+userColumns,
		email, hashedPassword)
	u, err := scanUser(row)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return nil, ErrEmailTaken
	}
	return u, err
}

// UserByEmail fetches a user for login.
func (s *Store) UserByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// UserByID fetches a user by primary key.
func (s *Store) UserByID(ctx context.Context, id int64) (*User, error) {
	return scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// UpdateUserPrefs patches sensitivity and/or notification preferences.
// Nil arguments leave the field unchanged.
func (s *Store) UpdateUserPrefs(ctx context.Context, id int64, sensitivity *int, prefs map[string]bool) (*User, error) {
	var prefsArg interface{}
	if prefs != nil {
		prefsArg = prefs
	}
	return scanUser(s.pool.QueryRow(ctx, `
		UPDATE users SET
			exposure_sensitivity_level = COALESCE($2, exposure_sensitivity_level),
			notification_preferences = COALESCE($3, notification_preferences)
		WHERE id = $1
		RETURNING `+userColumns,
		id, sensitivity, prefsArg))
}

// UsersWithSavedRoutes returns every user owning at least one saved
// route; the alert pipeline iterates these.
func (s *Store) UsersWithSavedRoutes(ctx context.Context) ([]*User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT `+prefixColumns("u", userColumns)+`
		FROM users u
		JOIN saved_routes r ON r.user_id = u.id
		ORDER BY u.id`)
	if err != nil {
		return nil, fmt.Errorf("store: listing users with routes: %w", err)
	}
	defer rows.Close()
	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
