// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package reputation

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TeohBackend queries the Teoh VPN/proxy API.
//
//	GET <base>/api/vpn/<ip>
//	{"ip":"192.0.2.1","vpn_or_proxy":"yes","type":"hosting","risk":"high"}
type TeohBackend struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

// NewTeohBackend creates the backend. A nil client gets one bounded by timeout.
func NewTeohBackend(baseURL, userAgent string, timeout time.Duration, client *http.Client) *TeohBackend {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &TeohBackend{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		http:      client,
	}
}

// Name implements Backend.
func (b *TeohBackend) Name() BackendName {
	return BackendTeoh
}

type teohResponse struct {
	VPNOrProxy string `json:"vpn_or_proxy"`
	Type       string `json:"type"`
	Risk       string `json:"risk"`
	Message    string `json:"message"`
}

// Check scores 2 for a VPN or proxy and one more for a high risk rating.
func (b *TeohBackend) Check(ctx context.Context, ip string) (Result, error) {
	var resp teohResponse
	if err := getJSON(ctx, b.http, b.baseURL+"/api/vpn/"+url.PathEscape(ip), b.userAgent, &resp); err != nil {
		return Result{}, err
	}

	res := Result{Backend: BackendTeoh}
	if strings.EqualFold(resp.VPNOrProxy, "yes") {
		res.Score += 2
	}
	if strings.EqualFold(resp.Risk, "high") {
		res.Score++
	}
	return res, nil
}
