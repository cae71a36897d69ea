// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package detection

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/metrics"
)

// Reporter stamps reports and hands them to the sink synchronously.
// One Reporter is shared by all detectors of an engine.
type Reporter struct {
	sink    Sink
	now     func() time.Time
	emitted atomic.Int64
}

// NewReporter creates a reporter. A nil sink only counts reports.
func NewReporter(sink Sink) *Reporter {
	return &Reporter{sink: sink, now: time.Now}
}

// Emit assigns the report id, detection time and correlation id, then sends
// it. Sink failures are logged, never returned.
func (r *Reporter) Emit(ctx context.Context, rep *Report) {
	rep.ID = uuid.NewString()
	rep.DetectedAt = r.now().UTC()
	rep.CorrelationID = logging.CorrelationIDFromContext(ctx)

	r.emitted.Add(1)
	metrics.RecordReport(string(rep.Reason))

	if r.sink == nil {
		return
	}
	if err := r.sink.Send(ctx, rep); err != nil {
		logging.Ctx(ctx).Error().Err(err).
			Str("sink", r.sink.Name()).
			Str("reason", string(rep.Reason)).
			Str("actor", rep.Actor).
			Msg("Report delivery failed")
	}
}

// Emitted returns the number of reports emitted so far.
func (r *Reporter) Emitted() int64 {
	return r.emitted.Load()
}
