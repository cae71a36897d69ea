// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/sentinel/internal/auth"
)

// Router wires handlers and middleware into a Chi mux.
type Router struct {
	handler    *Handler
	middleware *Middleware
	auth       *auth.Middleware
}

// NewRouter creates a router. A nil auth middleware leaves every route open.
func NewRouter(handler *Handler, mw *Middleware, authMW *auth.Middleware) *Router {
	if mw == nil {
		mw = NewMiddleware(nil)
	}
	return &Router{handler: handler, middleware: mw, auth: authMW}
}

// SetupChi builds the route tree.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(PrometheusMetrics)
	r.Use(router.middleware.RateLimit())

	r.Get("/healthz", router.handler.HealthLive)
	r.Get("/readyz", router.handler.HealthReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(router.middleware.CORS())
		r.Use(router.auth.Authenticate)
		r.Get("/status", router.handler.Status)
		r.Options("/status", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(router.auth.Authenticate)
		r.Get("/ws", router.handler.WebSocket)
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		respondError(w, req, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		respondError(w, req, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	return r
}
