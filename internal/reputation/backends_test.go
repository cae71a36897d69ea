// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package reputation

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestTeohBackend_Check(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		body      string
		wantScore int
	}{
		{"clean residential", `{"ip":"192.0.2.1","vpn_or_proxy":"no","type":"residential","risk":"low"}`, 0},
		{"vpn", `{"vpn_or_proxy":"yes","type":"hosting","risk":"medium"}`, 2},
		{"vpn high risk", `{"vpn_or_proxy":"yes","type":"hosting","risk":"high"}`, 3},
		{"high risk only", `{"vpn_or_proxy":"no","risk":"high"}`, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/vpn/192.0.2.1" {
					t.Errorf("path = %q", r.URL.Path)
				}
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			b := NewTeohBackend(srv.URL+"/", "sentinel-test", time.Second, nil)
			res, err := b.Check(context.Background(), "192.0.2.1")
			if err != nil {
				t.Fatalf("Check() error = %v", err)
			}
			if res.Score != tt.wantScore || res.Backend != BackendTeoh {
				t.Errorf("Check() = %+v, want score %d", res, tt.wantScore)
			}
		})
	}
}

func TestTeohBackend_HTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewTeohBackend(srv.URL, "", time.Second, nil).Check(context.Background(), "192.0.2.1")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("Check() error = %v, want 429", err)
	}
}

func TestIPCheckBackend_Check(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		body      string
		wantScore int
		wantErr   string
	}{
		{
			name: "two of three providers flag",
			body: `{"proxycheck":{"result":{"proxy":true,"vpn":false,"tor":false,"hosting":true}},
				"ipQualityScore":{"result":{"proxy":false,"vpn":true,"tor":false,"hosting":false}},
				"getIPIntel":{"result":{"proxy":false,"vpn":false,"tor":false,"hosting":true}}}`,
			wantScore: 2,
		},
		{
			name: "hosting alone does not count",
			body: `{"a":{"result":{"proxy":false,"vpn":false,"tor":false,"hosting":true}}}`,
		},
		{
			name: "errored providers are skipped",
			body: `{"a":{"result":{"proxy":false,"vpn":false,"tor":true,"hosting":false}},
				"b":{"error":"quota exceeded"}}`,
			wantScore: 1,
		},
		{
			name:    "all providers failed",
			body:    `{"a":{"error":"timeout"},"b":{"error":"quota exceeded"}}`,
			wantErr: "all providers failed (a, b)",
		},
		{
			name:    "top-level error",
			body:    `{"error":"Invalid IP"}`,
			wantErr: "Invalid IP",
		},
		{
			name:    "empty object",
			body:    `{}`,
			wantErr: "no provider verdicts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				q := r.URL.Query()
				if r.URL.Path != "/index.php" || q.Get("ip") != "198.51.100.7" || q.Get("api") != "true" {
					t.Errorf("unexpected request %s", r.URL)
				}
				if q.Get("key") != "secret" {
					t.Errorf("key = %q", q.Get("key"))
				}
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			b := NewIPCheckBackend(srv.URL, "secret", "sentinel-test", time.Second, nil)
			res, err := b.Check(context.Background(), "198.51.100.7")
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Check() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Check() error = %v", err)
			}
			if res.Score != tt.wantScore || res.Backend != BackendIPCheck {
				t.Errorf("Check() = %+v, want score %d", res, tt.wantScore)
			}
		})
	}
}

func TestResult_IsProxy(t *testing.T) {
	t.Parallel()

	for score, want := range map[int]bool{0: false, 1: false, 2: true, 3: true} {
		if got := (Result{Score: score}).IsProxy(); got != want {
			t.Errorf("Result{Score: %d}.IsProxy() = %v, want %v", score, got, want)
		}
	}
}
