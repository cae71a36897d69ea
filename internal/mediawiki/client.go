// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

// Package mediawiki is a small read-only client for the MediaWiki action API.
//
// It covers what the monitor needs: revision texts, the block log and the
// current block status of an actor. Requests are anonymous, rate limited,
// retried with exponential backoff on transient failures (5xx, 429, maxlag)
// and guarded by a circuit breaker.
package mediawiki

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/sentinel/internal/breaker"
	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/metrics"
)

// ErrAPI is matched by every error the API itself reported.
var ErrAPI = errors.New("mediawiki api error")

// APIError is an error object returned in an API response body.
type APIError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mediawiki api error %s: %s", e.Code, e.Info)
}

// Is makes errors.Is(err, ErrAPI) true for every APIError.
func (e *APIError) Is(target error) bool {
	return target == ErrAPI
}

// retryable reports whether the API asks the client to come back later.
func (e *APIError) retryable() bool {
	return e.Code == "maxlag" || e.Code == "ratelimited" || e.Code == "readonly"
}

// Config configures a Client.
type Config struct {
	APIURL            string
	UserAgent         string
	Timeout           time.Duration
	RequestsPerSecond float64
	MaxRetries        int
	MaxLag            int

	// BreakerFailures and BreakerTimeout tune the circuit breaker.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// Client talks to one wiki's api.php.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[[]byte]
	logger  zerolog.Logger

	// initialInterval is the first backoff delay; tests shorten it.
	initialInterval time.Duration
}

// New creates a client. A nil httpClient gets one bounded by cfg.Timeout.
func New(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}

	return &Client{
		cfg:     cfg,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		cb: breaker.New[[]byte](breaker.Settings{
			Name:                "site-api",
			ConsecutiveFailures: cfg.BreakerFailures,
			Timeout:             cfg.BreakerTimeout,
			IsSuccessful: func(err error) bool {
				// Well-formed API refusals prove the server is up.
				var apiErr *APIError
				return err == nil || (errors.As(err, &apiErr) && !apiErr.retryable())
			},
		}),
		logger:          logging.WithComponent("site-api"),
		initialInterval: 500 * time.Millisecond,
	}
}

// apiResponse is the envelope shared by all actions.
type apiResponse struct {
	Error    *APIError         `json:"error,omitempty"`
	Continue map[string]string `json:"continue,omitempty"`
}

// statusError is a non-200 HTTP response.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.code)
}

func (e *statusError) temporary() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

// get performs one GET request for action and returns the raw body.
// The body has already been checked for an API error.
func (c *Client) get(ctx context.Context, action string, params url.Values) ([]byte, error) {
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("action", action)
	q.Set("format", "json")
	q.Set("formatversion", "2")
	if c.cfg.MaxLag > 0 {
		q.Set("maxlag", strconv.Itoa(c.cfg.MaxLag))
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initialInterval
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0
	retries := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.cfg.MaxRetries)), ctx)

	var body []byte
	operation := func() error {
		start := time.Now()
		b, err := c.cb.Execute(func() ([]byte, error) {
			return c.fetch(ctx, q)
		})

		switch {
		case err == nil:
			metrics.RecordSiteRequest(action, "success", time.Since(start))
			body = b
			return nil
		case ctx.Err() != nil:
			return backoff.Permanent(context.Cause(ctx))
		case breaker.IsRejection(err):
			metrics.RecordSiteRequest(action, "rejected", time.Since(start))
			return backoff.Permanent(fmt.Errorf("site api %s: %w", action, err))
		case isTemporary(err):
			metrics.RecordSiteRequest(action, "retry", time.Since(start))
			return err
		default:
			metrics.RecordSiteRequest(action, "error", time.Since(start))
			return backoff.Permanent(err)
		}
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Warn().Err(err).Str("action", action).Dur("retry_in", wait).Msg("Site API request failed, retrying")
	}

	if err := backoff.RetryNotify(operation, retries, notify); err != nil {
		return nil, fmt.Errorf("site api %s: %w", action, err)
	}
	return body, nil
}

// fetch does a single HTTP round trip.
func (c *Client) fetch(ctx context.Context, q url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIURL+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{code: resp.StatusCode}
	}

	var buf json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&buf); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	var env apiResponse
	if err := json.Unmarshal(buf, &env); err != nil {
		return nil, fmt.Errorf("decode response envelope: %w", err)
	}
	if env.Error != nil {
		return nil, env.Error
	}
	return buf, nil
}

func isTemporary(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.temporary()
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.retryable()
	}
	// Transport failures (connection refused, reset, timeout) are worth retrying.
	return true
}
