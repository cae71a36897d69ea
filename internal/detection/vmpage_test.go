// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package detection

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"testing"

	"github.com/tomtom215/sentinel/internal/dnsbl"
	"github.com/tomtom215/sentinel/internal/mediawiki"
	"github.com/tomtom215/sentinel/internal/reputation"
)

func setKeys(s TemplateReportSet) []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func TestExtractReported(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"empty page", "", []string{}},
		{"single report", "== 1.2.3.4 ==\n{{Benutzer|1.2.3.4}} vandalisiert", []string{"1.2.3.4"}},
		{"duplicates collapse", "{{Benutzer|1.2.3.4}} {{Benutzer|1.2.3.4}}", []string{"1.2.3.4"}},
		{"whitespace trimmed before collapsing", "{{Benutzer| 1.2.3.4 }} {{Benutzer|1.2.3.4}}", []string{"1.2.3.4"}},
		{"accounts and addresses", "{{Benutzer|Beispiel}} {{Benutzer|2001:db8::1}}", []string{"2001:db8::1", "Beispiel"}},
		{"other templates ignored", "{{IP-Benutzer|1.2.3.4}} {{Benutzerin|5.6.7.8}}", []string{}},
		{"empty capture ignored", "{{Benutzer| }}", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := setKeys(ExtractReported(tt.text)); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractReported() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewReportTemplate(t *testing.T) {
	t.Parallel()

	tmpl, err := NewReportTemplate("IPvandal")
	if err != nil {
		t.Fatalf("NewReportTemplate() error = %v", err)
	}
	if tmpl.Name() != "IPvandal" {
		t.Errorf("Name() = %q", tmpl.Name())
	}
	got := setKeys(tmpl.Extract("{{IPvandal|192.0.2.1}} {{Benutzer|192.0.2.2}}"))
	if !reflect.DeepEqual(got, []string{"192.0.2.1"}) {
		t.Errorf("Extract() = %v", got)
	}

	// Regex metacharacters in the name are literal.
	dotted, err := NewReportTemplate("a.b")
	if err != nil {
		t.Fatal(err)
	}
	if n := len(dotted.Extract("{{axb|192.0.2.1}}")); n != 0 {
		t.Errorf("metacharacter matched, got %d actors", n)
	}

	if _, err := NewReportTemplate("  "); err == nil {
		t.Error("expected error for empty name")
	}
}

func TestNewlyReported(t *testing.T) {
	t.Parallel()

	prev := TemplateReportSet{"1.1.1.1": {}, "2.2.2.2": {}}
	next := TemplateReportSet{"2.2.2.2": {}, "9.9.9.9": {}, "3.3.3.3": {}}

	got := NewlyReported(prev, next)
	if want := []string{"3.3.3.3", "9.9.9.9"}; !reflect.DeepEqual(got, want) {
		t.Errorf("NewlyReported() = %v, want %v", got, want)
	}
	if got := NewlyReported(next, next); len(got) != 0 {
		t.Errorf("NewlyReported(same) = %v, want empty", got)
	}
}

func TestNewlyReported_WhitespaceVariantIsNotNew(t *testing.T) {
	t.Parallel()

	// Captures are trimmed before the difference, so re-adding an already
	// reported address with padding does not report it again.
	prev := ExtractReported("{{Benutzer|1.2.3.4}}")
	next := ExtractReported("{{Benutzer|1.2.3.4}}\n{{Benutzer| 1.2.3.4 }}")
	if got := NewlyReported(prev, next); len(got) != 0 {
		t.Errorf("NewlyReported() = %v, want empty", got)
	}

	next = ExtractReported("{{Benutzer|1.2.3.4}}\n{{Benutzer| 5.6.7.8 }}")
	if got := NewlyReported(prev, next); !reflect.DeepEqual(got, []string{"5.6.7.8"}) {
		t.Errorf("NewlyReported() = %v, want [5.6.7.8]", got)
	}
}

func newTestAnalyzer(site *fakeSite, rep *fakeReputation, cls *fakeClassifier, sink Sink) *VMPageAnalyzer {
	return NewVMPageAnalyzer(site, rep, cls, NewBlockCounter(site), nil, NewReporter(sink))
}

func TestVMPageAnalyzer_Analyze(t *testing.T) {
	t.Parallel()

	site := &fakeSite{
		revisions: map[int64]string{
			100: "{{Benutzer|198.51.100.1}} alt",
			101: "{{Benutzer|198.51.100.1}} alt\n" +
				"{{Benutzer| 203.0.113.7 }} neu\n" +
				"{{Benutzer|Beispielkonto}} neu\n" +
				"{{Benutzer|192.0.2.44}} neu",
		},
		userLogs: map[string][]mediawiki.LogEvent{
			"User:192.0.2.44": {
				{Action: "block"}, {Action: "unblock"}, {Action: "block"}, {Action: "reblock"},
			},
		},
		blocked: map[string]bool{"192.0.2.44": true},
	}
	rep := &fakeReputation{strong: map[string]int{"203.0.113.7": 3, "192.0.2.44": 1}}
	cls := &fakeClassifier{dynamic: map[string]bool{"192.0.2.44": true}}
	sink := &recordingSink{}

	reports, err := newTestAnalyzer(site, rep, cls, sink).Analyze(context.Background(), 100, 101)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("got %d reports, want 2", len(reports))
	}

	// Sorted order: 192.0.2.44 before 203.0.113.7.
	first, second := reports[0], reports[1]
	if first.Actor != "192.0.2.44" || first.VPN || first.Allocation != dnsbl.AllocationDynamic || first.PreviousBlocks != 1 {
		t.Errorf("first report = %+v", first)
	}
	if second.Actor != "203.0.113.7" || !second.VPN || second.Allocation != dnsbl.AllocationStatic || second.PreviousBlocks != 0 {
		t.Errorf("second report = %+v", second)
	}
	for _, r := range reports {
		if r.Reason != ReasonVMPageReport || r.ID == "" || r.DetectedAt.IsZero() {
			t.Errorf("report not stamped: %+v", r)
		}
	}

	if got := len(sink.received()); got != 2 {
		t.Errorf("sink received %d reports, want 2", got)
	}
	_, strong := rep.calls()
	if !reflect.DeepEqual(strong, []string{"192.0.2.44", "203.0.113.7"}) {
		t.Errorf("strong checks = %v (registered accounts must not be checked)", strong)
	}

	wantLine := "VM - Added IP: 203.0.113.7 Static: true VPN: true Previous blocks: 0"
	if got := second.Line(); got != wantLine {
		t.Errorf("Line() = %q, want %q", got, wantLine)
	}
}

func TestVMPageAnalyzer_PageCreation(t *testing.T) {
	t.Parallel()

	site := &fakeSite{revisions: map[int64]string{7: "{{Benutzer|192.0.2.9}}"}}
	reports, err := newTestAnalyzer(site, &fakeReputation{}, &fakeClassifier{}, nil).Analyze(context.Background(), 0, 7)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(reports) != 1 || reports[0].Actor != "192.0.2.9" {
		t.Errorf("reports = %+v", reports)
	}
}

func TestVMPageAnalyzer_Errors(t *testing.T) {
	t.Parallel()

	texts := map[int64]string{1: "", 2: "{{Benutzer|192.0.2.1}}"}
	dnsErr := errors.New("servfail")
	apiErr := &mediawiki.APIError{Code: "internal_api_error", Info: "boom"}

	tests := []struct {
		name   string
		site   *fakeSite
		rep    *fakeReputation
		cls    *fakeClassifier
		wantIs error
	}{
		{
			name:   "revision unavailable",
			site:   &fakeSite{revisions: map[int64]string{1: ""}},
			rep:    &fakeReputation{},
			cls:    &fakeClassifier{},
			wantIs: mediawiki.ErrRevisionNotFound,
		},
		{
			name:   "strong check fails",
			site:   &fakeSite{revisions: texts},
			rep:    &fakeReputation{strongErr: errors.New("timeout")},
			cls:    &fakeClassifier{},
			wantIs: reputation.ErrCheckUnavailable,
		},
		{
			name:   "dnsbl fails",
			site:   &fakeSite{revisions: texts},
			rep:    &fakeReputation{},
			cls:    &fakeClassifier{err: dnsErr},
			wantIs: dnsErr,
		},
		{
			name:   "block status fails",
			site:   &fakeSite{revisions: texts, statusErr: apiErr},
			rep:    &fakeReputation{},
			cls:    &fakeClassifier{},
			wantIs: mediawiki.ErrAPI,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sink := &recordingSink{}
			_, err := newTestAnalyzer(tt.site, tt.rep, tt.cls, sink).Analyze(context.Background(), 1, 2)
			if !errors.Is(err, tt.wantIs) {
				t.Fatalf("Analyze() error = %v, want %v", err, tt.wantIs)
			}
			if n := len(sink.received()); n != 0 {
				t.Errorf("sink received %d reports after failure", n)
			}
		})
	}
}
