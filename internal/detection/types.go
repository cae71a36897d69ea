// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package detection

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/sentinel/internal/dnsbl"
	"github.com/tomtom215/sentinel/internal/mediawiki"
	"github.com/tomtom215/sentinel/internal/reputation"
)

// Reason identifies the detector that produced a report.
type Reason string

const (
	// ReasonVMPageReport is emitted for every address newly reported on the VM page.
	ReasonVMPageReport Reason = "vm_page_report_added"

	// ReasonRollbackProxy is emitted when a reverted IP editor is a proxy.
	ReasonRollbackProxy Reason = "rollback_target_is_proxy"

	// ReasonBlockedProxy is emitted when a newly blocked IP is a proxy.
	ReasonBlockedProxy Reason = "newly_blocked_ip_is_proxy"
)

// Report is one finding handed to the sinks.
type Report struct {
	ID            string           `json:"id"`
	Reason        Reason           `json:"reason"`
	Actor         string           `json:"actor"`
	Allocation    dnsbl.Allocation `json:"allocation"`
	VPN           bool             `json:"vpn"`
	Score         int              `json:"score"`
	Backend       string           `json:"backend,omitempty"`
	DetectedAt    time.Time        `json:"detected_at"`
	CorrelationID string           `json:"correlation_id,omitempty"`

	// PreviousBlocks is -1 when not computed, and also for an actor under an
	// active range block with no block entry of its own.
	PreviousBlocks int `json:"previous_blocks"`
}

// Line renders the report as the operator-facing text line.
func (r *Report) Line() string {
	switch r.Reason {
	case ReasonVMPageReport:
		return fmt.Sprintf("VM - Added IP: %s Static: %t VPN: %t Previous blocks: %d",
			r.Actor, r.Allocation.IsStatic(), r.VPN, r.PreviousBlocks)
	case ReasonRollbackProxy:
		return fmt.Sprintf("IP found after rollback: %s is a PROXY", r.Actor)
	case ReasonBlockedProxy:
		return fmt.Sprintf("Blocked IP %s is a PROXY.", r.Actor)
	default:
		return fmt.Sprintf("%s: %s", r.Reason, r.Actor)
	}
}

// Site is the read-only subset of the wiki API the detectors use.
type Site interface {
	RevisionText(ctx context.Context, revID int64) (string, error)
	BlockLog(ctx context.Context, q mediawiki.LogQuery) ([]mediawiki.LogEvent, error)
	BlockStatus(ctx context.Context, actor string) (blocked bool, expiry time.Time, err error)
}

// Reputation runs the two-stage reputation cascade.
type Reputation interface {
	CheckCheap(ctx context.Context, ip string) (reputation.Result, error)
	CheckStrong(ctx context.Context, ip string) (reputation.Result, error)
}

// Classifier decides whether an address is dynamically allocated.
type Classifier interface {
	Classify(ctx context.Context, ip string) (dnsbl.Allocation, error)
}

// Sink receives reports. Send must not retain r after returning.
type Sink interface {
	Name() string
	Send(ctx context.Context, r *Report) error
}
