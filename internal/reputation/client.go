// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package reputation

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/sentinel/internal/breaker"
	"github.com/tomtom215/sentinel/internal/cache"
	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/metrics"
)

// Quota limits calls to one backend.
type Quota struct {
	RequestsPerMinute float64
	Burst             int
}

// Options configures a Client.
type Options struct {
	Cheap  Quota
	Strong Quota

	// CacheTTL is how long results are reused; 0 disables caching.
	CacheTTL time.Duration

	// Store replaces the in-memory result cache, e.g. with a
	// cache.PersistentCache that survives restarts. CacheTTL is then unused.
	Store cache.Store[Result]

	BreakerFailures uint32
	BreakerTimeout  time.Duration

	// VPNList, when set, is consulted before the cheap backend.
	VPNList *VPNList
}

// Client runs the two-stage check cascade.
type Client struct {
	cheap  *guardedBackend
	strong *guardedBackend
	list   *VPNList
	logger zerolog.Logger
}

// NewClient wraps the cheap and strong backends.
func NewClient(cheap, strong Backend, opts Options) *Client {
	var results cache.Store[Result] = cache.New[Result](opts.CacheTTL)
	if opts.Store != nil {
		results = opts.Store
	}
	return &Client{
		cheap:  newGuardedBackend(cheap, opts.Cheap, opts, results),
		strong: newGuardedBackend(strong, opts.Strong, opts, results),
		list:   opts.VPNList,
		logger: logging.WithComponent("reputation"),
	}
}

// CheckCheap runs the pre-screening check. Addresses on the local VPN list
// are answered without a remote call.
func (c *Client) CheckCheap(ctx context.Context, ip string) (Result, error) {
	if c.list != nil {
		if provider, ok := c.list.Lookup(ip); ok {
			c.logger.Debug().Str("ip", ip).Str("provider", provider).Msg("Address found on local VPN list")
			metrics.RecordReputationCheck(string(BackendVPNList), "proxy", 0)
			return Result{Score: ProxyThreshold, Backend: BackendVPNList}, nil
		}
	}
	return c.cheap.check(ctx, ip)
}

// CheckStrong runs the authoritative check.
func (c *Client) CheckStrong(ctx context.Context, ip string) (Result, error) {
	return c.strong.check(ctx, ip)
}

// guardedBackend is cache -> rate limiter -> circuit breaker -> backend.
type guardedBackend struct {
	backend Backend
	name    string
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[Result]
	cache   cache.Store[Result]
}

func newGuardedBackend(b Backend, q Quota, opts Options, results cache.Store[Result]) *guardedBackend {
	limit := rate.Inf
	if q.RequestsPerMinute > 0 {
		limit = rate.Limit(q.RequestsPerMinute / 60)
	}
	burst := q.Burst
	if burst < 1 {
		burst = 1
	}

	name := string(b.Name())
	return &guardedBackend{
		backend: b,
		name:    name,
		limiter: rate.NewLimiter(limit, burst),
		cb: breaker.New[Result](breaker.Settings{
			Name:                "reputation-" + name,
			ConsecutiveFailures: opts.BreakerFailures,
			Timeout:             opts.BreakerTimeout,
		}),
		cache: results,
	}
}

func (g *guardedBackend) check(ctx context.Context, ip string) (Result, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return Result{}, &CheckError{Backend: g.backend.Name(), IP: ip, Err: fmt.Errorf("invalid address: %w", err)}
	}
	key := g.name + "|" + addr.String()

	if res, ok := g.cache.Get(key); ok {
		metrics.RecordCacheLookup(g.name, true)
		return res, nil
	}
	metrics.RecordCacheLookup(g.name, false)

	if err := g.limiter.Wait(ctx); err != nil {
		metrics.RecordReputationCheck(g.name, "rejected", 0)
		return Result{}, &CheckError{Backend: g.backend.Name(), IP: ip, Err: fmt.Errorf("rate limit: %w", err)}
	}

	start := time.Now()
	res, err := g.cb.Execute(func() (Result, error) {
		return g.backend.Check(ctx, addr.String())
	})
	elapsed := time.Since(start)

	if err != nil {
		result := "error"
		if breaker.IsRejection(err) {
			result = "rejected"
		}
		metrics.RecordReputationCheck(g.name, result, elapsed)
		return Result{}, &CheckError{Backend: g.backend.Name(), IP: ip, Err: err}
	}

	if res.IsProxy() {
		metrics.RecordReputationCheck(g.name, "proxy", elapsed)
	} else {
		metrics.RecordReputationCheck(g.name, "clean", elapsed)
	}
	g.cache.Set(key, res)
	return res, nil
}
