// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package mediawiki

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New(Config{
		APIURL:            srv.URL + "/w/api.php",
		UserAgent:         "sentinel-test",
		Timeout:           5 * time.Second,
		RequestsPerSecond: 1000,
		MaxRetries:        3,
		MaxLag:            5,
	}, srv.Client())
	c.initialInterval = time.Millisecond
	return c
}

func TestClient_SetsCommonParameters(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		for key, want := range map[string]string{"action": "query", "format": "json", "formatversion": "2", "maxlag": "5"} {
			if got := q.Get(key); got != want {
				t.Errorf("%s = %q, want %q", key, got, want)
			}
		}
		if got := r.Header.Get("User-Agent"); got != "sentinel-test" {
			t.Errorf("User-Agent = %q", got)
		}
		fmt.Fprint(w, `{"query":{"blocks":[]}}`)
	})

	if _, _, err := c.BlockStatus(context.Background(), "192.0.2.1"); err != nil {
		t.Fatalf("BlockStatus() error = %v", err)
	}
}

func TestClient_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		first func(w http.ResponseWriter)
	}{
		{"server error", func(w http.ResponseWriter) { w.WriteHeader(http.StatusServiceUnavailable) }},
		{"too many requests", func(w http.ResponseWriter) { w.WriteHeader(http.StatusTooManyRequests) }},
		{"maxlag", func(w http.ResponseWriter) {
			fmt.Fprint(w, `{"error":{"code":"maxlag","info":"Waiting for a database server: 7 seconds lagged."}}`)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) == 1 {
					tt.first(w)
					return
				}
				fmt.Fprint(w, `{"query":{"blocks":[]}}`)
			})

			blocked, _, err := c.BlockStatus(context.Background(), "192.0.2.1")
			if err != nil {
				t.Fatalf("BlockStatus() error = %v", err)
			}
			if blocked {
				t.Error("blocked = true")
			}
			if calls.Load() != 2 {
				t.Errorf("calls = %d, want 2", calls.Load())
			}
		})
	}
}

func TestClient_APIErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"error":{"code":"badvalue","info":"Unrecognized value for parameter \"letype\"."}}`)
	})

	_, err := c.BlockLog(context.Background(), LogQuery{})
	if !errors.Is(err, ErrAPI) {
		t.Fatalf("error = %v, want ErrAPI", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "badvalue" {
		t.Errorf("APIError = %+v", apiErr)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestClient_GivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	if _, err := c.RevisionText(context.Background(), 1); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 4 {
		t.Errorf("calls = %d, want 4 (1 + 3 retries)", calls.Load())
	}
}

func TestIsAnonymous(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want bool
	}{
		{"192.0.2.1", true},
		{" 192.0.2.1 ", true},
		{"2001:DB8::1", true},
		{"2001:db8:0:0:0:0:0:1", true},
		{"Count Count", false},
		{"192.0.2", false},
		{"192.0.2.0/24", false},
		{"~2024-12345", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsAnonymous(tt.name); got != tt.want {
			t.Errorf("IsAnonymous(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
