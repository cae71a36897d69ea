// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package dnsbl

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/sentinel/internal/metrics"
)

// fakeResolver answers from a table and records queried names.
type fakeResolver struct {
	mu      sync.Mutex
	answers map[string][]string
	err     error
	queries []string
}

func (f *fakeResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, host)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	if addrs, ok := f.answers[host]; ok {
		return addrs, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{answers: map[string][]string{
		"4.3.2.1.dul.dnsbl.sorbs.net": {"127.0.0.10"},
	}}
	c := New(resolver, "", time.Second)

	tests := []struct {
		name string
		ip   string
		want Allocation
	}{
		{"listed address is dynamic", "1.2.3.4", AllocationDynamic},
		{"nxdomain is static", "5.6.7.8", AllocationStatic},
		{"ipv6 is static without lookup", "2001:db8::1", AllocationStatic},
		{"surrounding whitespace", " 1.2.3.4 ", AllocationDynamic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := c.Classify(context.Background(), tt.ip)
			if err != nil {
				t.Fatalf("Classify(%q) error = %v", tt.ip, err)
			}
			if got != tt.want {
				t.Errorf("Classify(%q) = %s, want %s", tt.ip, got, tt.want)
			}
		})
	}
}

func TestClassify_IPv6NeverQueries(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{}
	c := New(resolver, "", 0)

	before := testutil.ToFloat64(metrics.DNSBLLookups.WithLabelValues("ipv6"))
	if _, err := c.Classify(context.Background(), "::1"); err != nil {
		t.Fatal(err)
	}
	if len(resolver.queries) != 0 {
		t.Errorf("queries = %v, want none", resolver.queries)
	}
	if got := testutil.ToFloat64(metrics.DNSBLLookups.WithLabelValues("ipv6")); got < before+1 {
		t.Errorf("ipv6 counter = %v, want > %v", got, before)
	}
}

func TestClassify_ResolverFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
	}{
		{"servfail", &net.DNSError{Err: "server misbehaving", Name: "x", IsTemporary: true}},
		{"timeout", &net.DNSError{Err: "i/o timeout", Name: "x", IsTimeout: true}},
		{"non-dns error", errors.New("socket closed")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := New(&fakeResolver{err: tt.err}, "", 0)

			got, err := c.Classify(context.Background(), "192.0.2.1")
			if !errors.Is(err, ErrLookupFailed) {
				t.Fatalf("error = %v, want ErrLookupFailed", err)
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("error = %v, want wrapped %v", err, tt.err)
			}
			if got != AllocationUnknown {
				t.Errorf("allocation = %s, want unknown", got)
			}
		})
	}
}

func TestClassify_InvalidAddress(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{}
	c := New(resolver, "", 0)

	for _, ip := range []string{"", "300.1.1.1", "1.2.3", "example.org"} {
		if _, err := c.Classify(context.Background(), ip); !errors.Is(err, ErrInvalidAddress) {
			t.Errorf("Classify(%q) error = %v, want ErrInvalidAddress", ip, err)
		}
	}
	if len(resolver.queries) != 0 {
		t.Errorf("queries = %v, want none", resolver.queries)
	}
}

func TestClassify_CancelledContext(t *testing.T) {
	t.Parallel()

	c := New(&fakeResolver{}, "", time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Classify(ctx, "192.0.2.1"); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestQueryName(t *testing.T) {
	t.Parallel()

	c := New(nil, "dnsbl.example.org.", 0)
	if c.Zone() != "dnsbl.example.org" {
		t.Errorf("Zone() = %q", c.Zone())
	}

	got, err := c.QueryName("192.0.2.1")
	if err != nil {
		t.Fatal(err)
	}
	if want := "1.2.0.192.dnsbl.example.org"; got != want {
		t.Errorf("QueryName() = %q, want %q", got, want)
	}
}
