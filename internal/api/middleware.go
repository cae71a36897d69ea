// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/metrics"
)

// MiddlewareConfig holds configuration for the Chi middleware factories.
type MiddlewareConfig struct {
	CORSAllowedOrigins []string

	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateLimitDisabled bool
}

// DefaultMiddlewareConfig returns conservative defaults: no CORS origins and
// 60 requests per minute and IP.
func DefaultMiddlewareConfig() *MiddlewareConfig {
	return &MiddlewareConfig{
		CORSAllowedOrigins: []string{},
		RateLimitRequests:  60,
		RateLimitWindow:    time.Minute,
	}
}

// Middleware provides Chi-compatible middleware factories.
type Middleware struct {
	config *MiddlewareConfig
	cors   func(http.Handler) http.Handler
}

// NewMiddleware creates the middleware factory. A nil config uses the defaults.
func NewMiddleware(config *MiddlewareConfig) *Middleware {
	if config == nil {
		config = DefaultMiddlewareConfig()
	}
	return &Middleware{
		config: config,
		cors: cors.Handler(cors.Options{
			AllowedOrigins:   config.CORSAllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}),
	}
}

// CORS returns the go-chi/cors middleware for the configured origins.
func (m *Middleware) CORS() func(http.Handler) http.Handler {
	return m.cors
}

// RateLimit returns an IP-keyed go-chi/httprate limiter, or a no-op when disabled.
func (m *Middleware) RateLimit() func(http.Handler) http.Handler {
	if m.config.RateLimitDisabled || m.config.RateLimitRequests <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return httprate.Limit(
		m.config.RateLimitRequests,
		m.config.RateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			respondError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests", nil)
		}),
	)
}

// RequestIDWithLogging wraps chi's RequestID and attaches a fresh correlation
// id to the request context, echoing the request id in X-Request-ID.
func RequestIDWithLogging() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		withLogging := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := chimiddleware.GetReqID(r.Context())
			w.Header().Set(chimiddleware.RequestIDHeader, id)
			ctx := logging.ContextWithNewCorrelationID(r.Context())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
		return chimiddleware.RequestID(withLogging)
	}
}

// PrometheusMetrics counts requests by method, route pattern and status.
func PrometheusMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordAPIRequest(r.Method, route, status)
	})
}

func requestID(r *http.Request) string {
	if r == nil {
		return ""
	}
	return chimiddleware.GetReqID(r.Context())
}
