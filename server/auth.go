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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/aerisnav/aeris/alerts"
	"github.com/aerisnav/aeris/internal/store"
)

type ctxKey int

const userKey ctxKey = 0

const minPasswordLen = 8

// issueToken mints an HS256 JWT whose subject is the user id.
func (s *Server) issueToken(u *store.User) (string, error) {
	ttl := s.TokenTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	now := time.Now().UTC()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(u.ID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return tok.SignedString([]byte(s.JWTSecret))
}

// parseToken validates the signature and expiry and returns the user id.
func (s *Server) parseToken(raw string) (int64, error) {
	tok, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.JWTSecret), nil
	})
	if err != nil || !tok.Valid {
		return 0, errors.New("invalid token")
	}
	claims, ok := tok.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return 0, errors.New("invalid claims")
	}
	return strconv.ParseInt(claims.Subject, 10, 64)
}

// requireAuth loads the bearer token's user into the request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		id, err := s.parseToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		u, err := s.Store.UserByID(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unknown user")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, u)))
	})
}

func currentUser(r *http.Request) *store.User {
	u, _ := r.Context().Value(userKey).(*store.User)
	return u
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// userView is the user payload with the derived sensitivity label.
type userView struct {
	*store.User
	SensitivityLabel string `json:"sensitivity_label"`
}

func viewUser(u *store.User) userView {
	return userView{User: u, SensitivityLabel: alerts.SensitivityLabel(u.ExposureSensitivityLevel)}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	c.Email = strings.TrimSpace(strings.ToLower(c.Email))
	if c.Email == "" || !strings.Contains(c.Email, "@") {
		writeError(w, http.StatusUnprocessableEntity, "a valid email is required")
		return
	}
	if len(c.Password) < minPasswordLen {
		writeError(w, http.StatusUnprocessableEntity,
			fmt.Sprintf("password must be at least %d characters", minPasswordLen))
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(c.Password), bcrypt.DefaultCost)
	if err != nil {
		s.writeMapped(w, err)
		return
	}
	u, err := s.Store.CreateUser(r.Context(), c.Email, string(hash))
	if err != nil {
		s.writeMapped(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewUser(u))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	u, err := s.Store.UserByEmail(r.Context(), strings.TrimSpace(strings.ToLower(c.Email)))
	if err != nil {
		// Same answer for unknown email and bad password.
		writeError(w, http.StatusUnauthorized, "incorrect email or password")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(u.HashedPassword), []byte(c.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "incorrect email or password")
		return
	}
	token, err := s.issueToken(u)
	if err != nil {
		s.writeMapped(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token": token,
		"token_type":   "bearer",
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, viewUser(currentUser(r)))
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var body struct {
		NotificationPreferences  map[string]bool `json:"notification_preferences"`
		ExposureSensitivityLevel *int            `json:"exposure_sensitivity_level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if lvl := body.ExposureSensitivityLevel; lvl != nil && (*lvl < 1 || *lvl > 5) {
		writeError(w, http.StatusUnprocessableEntity, "exposure_sensitivity_level must be 1..5")
		return
	}
	u, err := s.Store.UpdateUserPrefs(r.Context(), currentUser(r).ID,
		body.ExposureSensitivityLevel, body.NotificationPreferences)
	if err != nil {
		s.writeMapped(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewUser(u))
}
