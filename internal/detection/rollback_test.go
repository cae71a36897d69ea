// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package detection

import (
	"context"
	"errors"
	"testing"
)

func TestExtractRevertedActor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		comment   string
		wantActor string
		wantOK    bool
	}{
		{
			name:      "rollback with Spezial:Beiträge",
			comment:   "Änderungen von [[Spezial:Beiträge/192.0.2.5|192.0.2.5]] ([[Benutzer Diskussion:192.0.2.5|Diskussion]]) auf die letzte Version von [[Benutzer:Beispiel|Beispiel]] zurückgesetzt",
			wantActor: "192.0.2.5",
			wantOK:    true,
		},
		{
			name:      "rollback with Special:Contributions",
			comment:   "Änderungen von [[Special:Contributions/2001:db8::5|2001:db8::5]] rückgängig gemacht",
			wantActor: "2001:db8::5",
			wantOK:    true,
		},
		{
			name:      "undo",
			comment:   "Änderung 123456789 von [[Special:Contribs/198.51.100.3|198.51.100.3]] rückgängig gemacht; Vandalismus",
			wantActor: "198.51.100.3",
			wantOK:    true,
		},
		{
			name: "both patterns match, undo wins",
			comment: "Änderungen von [[Spezial:Beiträge/192.0.2.1|a]] " +
				"Änderung 42 von [[Special:Contribs/192.0.2.2|b]]",
			wantActor: "192.0.2.2",
			wantOK:    true,
		},
		{
			name:      "registered account is still extracted",
			comment:   "Änderungen von [[Spezial:Beiträge/Beispiel|Beispiel]] zurückgesetzt",
			wantActor: "Beispiel",
			wantOK:    true,
		},
		{
			name:    "ordinary summary",
			comment: "Tippfehler korrigiert",
		},
		{
			name:    "link without label does not match",
			comment: "Änderungen von [[Spezial:Beiträge/192.0.2.5]]",
		},
		{
			name:    "empty",
			comment: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			actor, ok := ExtractRevertedActor(tt.comment)
			if actor != tt.wantActor || ok != tt.wantOK {
				t.Errorf("ExtractRevertedActor() = %q, %v; want %q, %v", actor, ok, tt.wantActor, tt.wantOK)
			}
		})
	}
}

func TestNewRevertPatterns(t *testing.T) {
	t.Parallel()

	p, err := NewRevertPatterns(`Reverted edits by \[\[Special:Contributions/([^|]+)\|`, `Undo revision [0-9]+ by \[\[Special:Contributions/([^|]+)\|`)
	if err != nil {
		t.Fatalf("NewRevertPatterns() error = %v", err)
	}
	if actor, ok := p.Extract("Reverted edits by [[Special:Contributions/192.0.2.8|192.0.2.8]] (talk)"); !ok || actor != "192.0.2.8" {
		t.Errorf("Extract() = %q, %v", actor, ok)
	}

	if _, err := NewRevertPatterns("([", "x"); err == nil {
		t.Error("expected error for invalid rollback pattern")
	}
	if _, err := NewRevertPatterns("x", "(["); err == nil {
		t.Error("expected error for invalid undo pattern")
	}
}

func rollbackComment(actor string) string {
	return "Änderungen von [[Spezial:Beiträge/" + actor + "|" + actor + "]] zurückgesetzt"
}

func TestRollbackDetector_Inspect(t *testing.T) {
	t.Parallel()

	const ip = "203.0.113.50"

	tests := []struct {
		name       string
		comment    string
		rep        *fakeReputation
		wantReport bool
		wantCheap  int
		wantStrong int
	}{
		{
			name:      "cheap check clean, no strong check",
			comment:   rollbackComment(ip),
			rep:       &fakeReputation{cheap: map[string]int{ip: 1}},
			wantCheap: 1,
		},
		{
			name:       "cheap and strong flag proxy",
			comment:    rollbackComment(ip),
			rep:        &fakeReputation{cheap: map[string]int{ip: 2}, strong: map[string]int{ip: 4}},
			wantReport: true,
			wantCheap:  1,
			wantStrong: 1,
		},
		{
			name:       "strong check overrides cheap verdict",
			comment:    rollbackComment(ip),
			rep:        &fakeReputation{cheap: map[string]int{ip: 3}, strong: map[string]int{ip: 1}},
			wantCheap:  1,
			wantStrong: 1,
		},
		{
			name:      "cheap check failure is swallowed",
			comment:   rollbackComment(ip),
			rep:       &fakeReputation{cheapErr: errors.New("503")},
			wantCheap: 1,
		},
		{
			name:       "strong check failure is swallowed",
			comment:    rollbackComment(ip),
			rep:        &fakeReputation{cheap: map[string]int{ip: 2}, strongErr: errors.New("timeout")},
			wantCheap:  1,
			wantStrong: 1,
		},
		{
			name:    "registered account is not checked",
			comment: rollbackComment("Beispiel"),
			rep:     &fakeReputation{},
		},
		{
			name:    "no revert",
			comment: "Quelle ergänzt",
			rep:     &fakeReputation{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sink := &recordingSink{}
			d := NewRollbackDetector(nil, tt.rep, NewReporter(sink))

			got := d.Inspect(context.Background(), tt.comment)
			if (got != nil) != tt.wantReport {
				t.Fatalf("Inspect() = %+v, want report %v", got, tt.wantReport)
			}
			if got != nil {
				if got.Reason != ReasonRollbackProxy || got.Actor != ip || !got.VPN || got.PreviousBlocks != -1 {
					t.Errorf("report = %+v", got)
				}
				if want := "IP found after rollback: " + ip + " is a PROXY"; got.Line() != want {
					t.Errorf("Line() = %q, want %q", got.Line(), want)
				}
			}

			cheap, strong := tt.rep.calls()
			if len(cheap) != tt.wantCheap || len(strong) != tt.wantStrong {
				t.Errorf("calls cheap=%v strong=%v, want %d/%d", cheap, strong, tt.wantCheap, tt.wantStrong)
			}
			if n := len(sink.received()); (n == 1) != tt.wantReport {
				t.Errorf("sink received %d reports", n)
			}
		})
	}
}
