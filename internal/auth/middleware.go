// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/tomtom215/sentinel/internal/logging"
)

type contextKey string

// ClaimsContextKey holds the validated *Claims of a request.
const ClaimsContextKey contextKey = "claims"

// TokenQueryParam carries the token for clients that cannot set headers.
const TokenQueryParam = "access_token"

var (
	errMissingToken  = errors.New("unauthorized: missing token")
	errInvalidHeader = errors.New("unauthorized: invalid authorization header")
)

// Middleware enforces bearer-token authentication. A nil manager disables it.
type Middleware struct {
	jwtManager *JWTManager
}

// NewMiddleware creates the authentication middleware.
func NewMiddleware(jwtManager *JWTManager) *Middleware {
	return &Middleware{jwtManager: jwtManager}
}

// Enabled reports whether requests are checked.
func (m *Middleware) Enabled() bool {
	return m != nil && m.jwtManager != nil
}

// Authenticate is chi-compatible middleware that rejects requests without a
// valid token with 401.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	if !m.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractToken(r)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="sentinel"`)
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		claims, err := m.jwtManager.ValidateToken(token)
		if err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Str("path", r.URL.Path).Msg("Token validation failed")
			w.Header().Set("WWW-Authenticate", `Bearer realm="sentinel", error="invalid_token"`)
			http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClaimsFromContext returns the claims stored by Authenticate.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(*Claims)
	return claims, ok
}

func extractToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if token := r.URL.Query().Get(TokenQueryParam); token != "" {
			return token, nil
		}
		return "", errMissingToken
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errInvalidHeader
	}
	return strings.TrimSpace(token), nil
}
