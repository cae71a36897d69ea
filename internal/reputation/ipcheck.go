// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package reputation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// IPCheckBackend queries the IPCheck aggregator, which fans out to several
// proxy-detection providers and reports each provider's verdict:
//
//	GET <base>/index.php?ip=<ip>&api=true[&key=<key>]
//	{"proxycheck":{"result":{"proxy":true,"vpn":false,"tor":false,"hosting":true}},
//	 "ipQualityScore":{"error":"quota exceeded"}}
type IPCheckBackend struct {
	baseURL   string
	apiKey    string
	userAgent string
	http      *http.Client
}

// NewIPCheckBackend creates the backend. A nil client gets one bounded by timeout.
func NewIPCheckBackend(baseURL, apiKey, userAgent string, timeout time.Duration, client *http.Client) *IPCheckBackend {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &IPCheckBackend{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		userAgent: userAgent,
		http:      client,
	}
}

// Name implements Backend.
func (b *IPCheckBackend) Name() BackendName {
	return BackendIPCheck
}

type providerVerdict struct {
	Result *struct {
		Proxy   bool `json:"proxy"`
		VPN     bool `json:"vpn"`
		Tor     bool `json:"tor"`
		Hosting bool `json:"hosting"`
	} `json:"result"`
	Error string `json:"error"`
}

// Check counts providers that flag the address as proxy, VPN or tor.
// It fails when no provider produced a verdict.
func (b *IPCheckBackend) Check(ctx context.Context, ip string) (Result, error) {
	q := url.Values{"ip": {ip}, "api": {"true"}}
	if b.apiKey != "" {
		q.Set("key", b.apiKey)
	}

	var raw map[string]json.RawMessage
	if err := getJSON(ctx, b.http, b.baseURL+"/index.php?"+q.Encode(), b.userAgent, &raw); err != nil {
		return Result{}, err
	}

	if msg, ok := raw["error"]; ok {
		var text string
		_ = json.Unmarshal(msg, &text)
		return Result{}, fmt.Errorf("ipcheck: %s", text)
	}

	res := Result{Backend: BackendIPCheck}
	var (
		answered int
		failed   []string
	)
	for provider, body := range raw {
		var v providerVerdict
		if err := json.Unmarshal(body, &v); err != nil {
			// Not a provider object (e.g. metadata); ignore.
			continue
		}
		switch {
		case v.Result != nil:
			answered++
			if v.Result.Proxy || v.Result.VPN || v.Result.Tor {
				res.Score++
			}
		case v.Error != "":
			failed = append(failed, provider)
		}
	}

	if answered == 0 {
		sort.Strings(failed)
		if len(failed) == 0 {
			return Result{}, errors.New("ipcheck: response contained no provider verdicts")
		}
		return Result{}, fmt.Errorf("ipcheck: all providers failed (%s)", strings.Join(failed, ", "))
	}
	return res, nil
}
