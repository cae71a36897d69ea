// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const correlationIDKey contextKey = "correlation_id"

// GenerateCorrelationID creates a short correlation ID (first 8 characters of a UUID).
func GenerateCorrelationID() string {
	return uuid.New().String()[:8]
}

// ContextWithCorrelationID returns a context carrying id.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// ContextWithNewCorrelationID returns a context with a freshly generated correlation ID.
// The engine calls this once per change event so every line logged while the
// event is processed can be grouped.
func ContextWithNewCorrelationID(ctx context.Context) context.Context {
	return ContextWithCorrelationID(ctx, GenerateCorrelationID())
}

// CorrelationIDFromContext returns the correlation ID, or "" if absent.
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// Ctx returns the global logger with the context's correlation ID attached.
//
//	logging.Ctx(ctx).Info().Msg("Processing change")
//	// {"level":"info","correlation_id":"abc12345","message":"Processing change"}
func Ctx(ctx context.Context) *zerolog.Logger {
	l := Logger()
	if id := CorrelationIDFromContext(ctx); id != "" {
		l = l.With().Str("correlation_id", id).Logger()
	}
	return &l
}
