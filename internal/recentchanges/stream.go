// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package recentchanges

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/metrics"
)

const (
	// maxEventSize bounds one line and the data of one event. Larger events
	// are skipped.
	maxEventSize = 4 << 20

	// maxEmptyConnections bounds back-to-back connections that close before
	// delivering a single event.
	maxEmptyConnections = 5
)

// StreamConfig configures a StreamFeed.
type StreamConfig struct {
	URL                 string
	UserAgent           string
	ConnectTimeout      time.Duration
	ReconnectMaxElapsed time.Duration

	// LastEventID resumes a previous stream when non-empty.
	LastEventID string
}

// StreamFeed reads an EventStreams endpoint over server-sent events.
//
// The connection is bound to the context of the Next call that opened it;
// cancelling that context unblocks a pending read. Dropped connections are
// reopened with Last-Event-ID so no entry is skipped.
type StreamFeed struct {
	cfg    StreamConfig
	client *http.Client
	logger zerolog.Logger

	mu          sync.Mutex
	lastEventID string

	body   io.ReadCloser
	reader *bufio.Reader
	line   []byte
	empty  int
	got    bool
}

// NewStreamFeed creates a feed. A nil client gets a transport whose dial,
// TLS and response-header phases are bounded by ConnectTimeout; the body read
// itself has no deadline since the stream is long-lived.
func NewStreamFeed(cfg StreamConfig, client *http.Client) *StreamFeed {
	if client == nil {
		client = &http.Client{Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
			TLSHandshakeTimeout:   cfg.ConnectTimeout,
			ResponseHeaderTimeout: cfg.ConnectTimeout,
		}}
	}
	if cfg.ReconnectMaxElapsed <= 0 {
		cfg.ReconnectMaxElapsed = 5 * time.Minute
	}
	return &StreamFeed{
		cfg:         cfg,
		client:      client,
		logger:      logging.WithComponent("stream"),
		lastEventID: cfg.LastEventID,
	}
}

// LastEventID returns the id of the last event read.
func (f *StreamFeed) LastEventID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastEventID
}

// Close releases the current connection.
func (f *StreamFeed) Close() error {
	return f.closeBody()
}

// Next returns the next entry, reconnecting when the server closes the stream.
func (f *StreamFeed) Next(ctx context.Context) (RawEntry, error) {
	for {
		if err := ctx.Err(); err != nil {
			_ = f.closeBody()
			return RawEntry{}, context.Cause(ctx)
		}

		if f.body == nil {
			if err := f.connect(ctx); err != nil {
				return RawEntry{}, err
			}
		}

		entry, err := f.readEvent()
		if err == nil {
			f.got = true
			f.empty = 0
			return entry, nil
		}

		_ = f.closeBody()
		if ctx.Err() != nil {
			return RawEntry{}, context.Cause(ctx)
		}

		if !f.got {
			f.empty++
			if f.empty >= maxEmptyConnections {
				return RawEntry{}, fmt.Errorf("change stream closed %d times without delivering events: %w", f.empty, err)
			}
		}

		f.logger.Warn().Err(err).Str("last_event_id", f.LastEventID()).Msg("Change stream interrupted, reconnecting")
		metrics.StreamReconnects.Inc()
	}
}

// connect opens the stream, retrying transient failures with exponential backoff.
func (f *StreamFeed) connect(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = f.cfg.ReconnectMaxElapsed

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.URL, http.NoBody)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build stream request: %w", err))
		}
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("User-Agent", f.cfg.UserAgent)
		if id := f.LastEventID(); id != "" {
			req.Header.Set("Last-Event-ID", id)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(context.Cause(ctx))
			}
			return fmt.Errorf("connect change stream: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			err := fmt.Errorf("connect change stream: unexpected status %d", resp.StatusCode)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return backoff.Permanent(err)
			}
			return err
		}

		f.body = resp.Body
		f.reader = bufio.NewReaderSize(resp.Body, 64*1024)
		return nil
	}

	notify := func(err error, wait time.Duration) {
		f.logger.Warn().Err(err).Dur("retry_in", wait).Msg("Change stream connection failed")
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(bo, ctx), notify); err != nil {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		return err
	}

	f.got = false
	f.logger.Info().Str("url", f.cfg.URL).Str("last_event_id", f.LastEventID()).Msg("Connected to change stream")
	return nil
}

// readEvent reads lines until a complete event with data has been seen.
// Comment lines and events without data are skipped. An event larger than
// maxEventSize is skipped and counted as dropped. An event cut off by the end
// of the stream is discarded.
func (f *StreamFeed) readEvent() (RawEntry, error) {
	var (
		data      bytes.Buffer
		id        string
		hasData   bool
		oversized bool
	)

	for {
		line, tooLong, err := f.readLine()
		if err != nil {
			return RawEntry{}, err
		}
		if tooLong {
			oversized = true
			continue
		}

		if len(line) == 0 {
			if oversized {
				f.skipOversized(id)
				data.Reset()
				id, hasData, oversized = "", false, false
				continue
			}
			if !hasData {
				continue
			}
			if id != "" {
				f.mu.Lock()
				f.lastEventID = id
				f.mu.Unlock()
			}
			return RawEntry{ID: id, Data: append([]byte(nil), data.Bytes()...)}, nil
		}

		if line[0] == ':' {
			continue
		}

		field, value := splitField(line)
		switch field {
		case "data":
			if oversized {
				continue
			}
			if hasData {
				data.WriteByte('\n')
			}
			data.Write(value)
			hasData = true
			if data.Len() > maxEventSize {
				oversized = true
				data.Reset()
			}
		case "id":
			id = string(value)
		}
	}
}

// readLine returns the next line without its terminator. A line longer than
// maxEventSize is consumed up to its end and reported with tooLong set, so
// the stream stays usable.
func (f *StreamFeed) readLine() (line []byte, tooLong bool, err error) {
	f.line = f.line[:0]
	for {
		chunk, err := f.reader.ReadSlice('\n')
		if !tooLong {
			if len(f.line)+len(chunk) > maxEventSize {
				tooLong = true
				f.line = f.line[:0]
			} else {
				f.line = append(f.line, chunk...)
			}
		}

		switch {
		case err == nil:
			if tooLong {
				return nil, true, nil
			}
			line = bytes.TrimSuffix(f.line, []byte("\n"))
			return bytes.TrimSuffix(line, []byte("\r")), false, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			return nil, false, err
		}
	}
}

// skipOversized drops an event that exceeded maxEventSize. Its id still
// becomes the resume point so a reconnect does not replay it.
func (f *StreamFeed) skipOversized(id string) {
	if id != "" {
		f.mu.Lock()
		f.lastEventID = id
		f.mu.Unlock()
	}
	f.logger.Warn().Str("event_id", id).Int("limit_bytes", maxEventSize).Msg("Skipping oversized change entry")
	metrics.RecordDrop(DropOversized)
}

// splitField splits "field: value" and strips one leading space from the value.
func splitField(line []byte) (string, []byte) {
	field, value, found := bytes.Cut(line, []byte(":"))
	if !found {
		return string(line), nil
	}
	value = bytes.TrimPrefix(value, []byte(" "))
	return string(field), value
}

func (f *StreamFeed) closeBody() error {
	if f.body == nil {
		return nil
	}
	err := f.body.Close()
	f.body = nil
	f.reader = nil
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
