// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package mediawiki

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// NamespaceUser is the user namespace id.
const NamespaceUser = 2

// maxLogPages bounds block-log paging so a bad continuation cannot loop forever.
const maxLogPages = 50

var (
	// ErrRevisionNotFound is returned for unknown revision ids.
	ErrRevisionNotFound = errors.New("revision not found")

	// ErrRevisionHidden is returned when the revision text was deleted or suppressed.
	ErrRevisionHidden = errors.New("revision text hidden")
)

// IsAnonymous reports whether name is an IP address, i.e. a logged-out editor.
func IsAnonymous(name string) bool {
	_, err := netip.ParseAddr(strings.TrimSpace(name))
	return err == nil
}

// RevisionText returns the wikitext of the main slot of revision revID.
func (c *Client) RevisionText(ctx context.Context, revID int64) (string, error) {
	params := url.Values{
		"prop":    {"revisions"},
		"revids":  {strconv.FormatInt(revID, 10)},
		"rvprop":  {"content|ids"},
		"rvslots": {"main"},
	}

	body, err := c.get(ctx, "query", params)
	if err != nil {
		return "", err
	}

	var resp struct {
		Query struct {
			BadRevIDs json.RawMessage `json:"badrevids"`
			Pages     []struct {
				Missing   bool `json:"missing"`
				Revisions []struct {
					RevID      int64 `json:"revid"`
					TextHidden bool  `json:"texthidden"`
					Slots      struct {
						Main struct {
							Content *string `json:"content"`
							Hidden  bool    `json:"texthidden"`
						} `json:"main"`
					} `json:"slots"`
				} `json:"revisions"`
			} `json:"pages"`
		} `json:"query"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode revision %d: %w", revID, err)
	}

	for _, page := range resp.Query.Pages {
		for _, rev := range page.Revisions {
			if rev.RevID != revID {
				continue
			}
			if rev.TextHidden || rev.Slots.Main.Hidden || rev.Slots.Main.Content == nil {
				return "", fmt.Errorf("revision %d: %w", revID, ErrRevisionHidden)
			}
			return *rev.Slots.Main.Content, nil
		}
	}
	return "", fmt.Errorf("revision %d: %w", revID, ErrRevisionNotFound)
}

// LogQuery selects block-log entries.
type LogQuery struct {
	// Title restricts entries to one target page, e.g. "User:192.0.2.1".
	Title string

	// Since is the start timestamp; zero means the beginning (or end) of the log.
	Since time.Time

	// Newer lists oldest first starting at Since; otherwise newest first.
	Newer bool
}

// LogEvent is one block-log entry.
type LogEvent struct {
	ID        int64
	Type      string
	Action    string
	Title     string
	Namespace int
	Timestamp time.Time

	// Expiry is zero for indefinite blocks (Infinite is then true).
	Expiry   time.Time
	Infinite bool
}

// Target returns the blocked actor: the title without its namespace prefix
// for user pages, the plain title otherwise.
func (e *LogEvent) Target() string {
	if e.Namespace == NamespaceUser {
		if _, name, ok := strings.Cut(e.Title, ":"); ok {
			return name
		}
	}
	return e.Title
}

// ExpiresBefore reports whether the block ends before t. Indefinite blocks never do.
func (e *LogEvent) ExpiresBefore(t time.Time) bool {
	if e.Infinite {
		return false
	}
	return e.Expiry.Before(t)
}

type logEventJSON struct {
	LogID     int64  `json:"logid"`
	NS        int    `json:"ns"`
	Title     string `json:"title"`
	Type      string `json:"type"`
	Action    string `json:"action"`
	Timestamp string `json:"timestamp"`
	Params    struct {
		Duration string `json:"duration"`
		Expiry   string `json:"expiry"`
	} `json:"params"`
}

// BlockLog returns all block-log entries matching q, following continuations.
func (c *Client) BlockLog(ctx context.Context, q LogQuery) ([]LogEvent, error) {
	params := url.Values{
		"list":    {"logevents"},
		"letype":  {"block"},
		"leprop":  {"ids|title|type|timestamp|details"},
		"lelimit": {"500"},
	}
	if q.Title != "" {
		params.Set("letitle", q.Title)
	}
	if !q.Since.IsZero() {
		params.Set("lestart", q.Since.UTC().Format(time.RFC3339))
	}
	if q.Newer {
		params.Set("ledir", "newer")
	}

	var events []LogEvent
	for page := 0; page < maxLogPages; page++ {
		body, err := c.get(ctx, "query", params)
		if err != nil {
			return nil, err
		}

		var resp struct {
			Continue map[string]string `json:"continue"`
			Query    struct {
				LogEvents []logEventJSON `json:"logevents"`
			} `json:"query"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("decode block log: %w", err)
		}

		for i := range resp.Query.LogEvents {
			ev, err := resp.Query.LogEvents[i].toLogEvent()
			if err != nil {
				return nil, err
			}
			events = append(events, ev)
		}

		if len(resp.Continue) == 0 {
			return events, nil
		}
		for k, v := range resp.Continue {
			params.Set(k, v)
		}
	}
	return nil, fmt.Errorf("block log: more than %d pages", maxLogPages)
}

func (j *logEventJSON) toLogEvent() (LogEvent, error) {
	ev := LogEvent{
		ID:        j.LogID,
		Type:      j.Type,
		Action:    j.Action,
		Title:     j.Title,
		Namespace: j.NS,
	}

	ts, err := time.Parse(time.RFC3339, j.Timestamp)
	if err != nil {
		return LogEvent{}, fmt.Errorf("log entry %d: timestamp: %w", j.LogID, err)
	}
	ev.Timestamp = ts

	expiry, infinite, err := parseExpiry(j.Params.Expiry, j.Params.Duration)
	if err != nil {
		return LogEvent{}, fmt.Errorf("log entry %d: %w", j.LogID, err)
	}
	ev.Expiry, ev.Infinite = expiry, infinite
	return ev, nil
}

// parseExpiry interprets the expiry of a block. Unblock entries carry neither
// field; they are reported as indefinite so they never count as short blocks.
func parseExpiry(expiry, duration string) (time.Time, bool, error) {
	if expiry == "" || isInfinity(expiry) {
		return time.Time{}, true, nil
	}
	if isInfinity(duration) {
		return time.Time{}, true, nil
	}
	t, err := time.Parse(time.RFC3339, expiry)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("expiry %q: %w", expiry, err)
	}
	return t, false, nil
}

func isInfinity(s string) bool {
	switch strings.ToLower(s) {
	case "infinity", "infinite", "indefinite", "never":
		return true
	}
	return false
}

// BlockStatus reports whether actor is currently blocked and until when.
// IP actors are looked up with bkip so range blocks covering the address count.
func (c *Client) BlockStatus(ctx context.Context, actor string) (blocked bool, expiry time.Time, err error) {
	params := url.Values{
		"list":    {"blocks"},
		"bkprop":  {"id|user|expiry"},
		"bklimit": {"1"},
	}
	if IsAnonymous(actor) {
		params.Set("bkip", strings.TrimSpace(actor))
	} else {
		params.Set("bkusers", actor)
	}

	body, err := c.get(ctx, "query", params)
	if err != nil {
		return false, time.Time{}, err
	}

	var resp struct {
		Query struct {
			Blocks []struct {
				ID     int64  `json:"id"`
				User   string `json:"user"`
				Expiry string `json:"expiry"`
			} `json:"blocks"`
		} `json:"query"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, time.Time{}, fmt.Errorf("decode blocks: %w", err)
	}
	if len(resp.Query.Blocks) == 0 {
		return false, time.Time{}, nil
	}

	exp, infinite, err := parseExpiry(resp.Query.Blocks[0].Expiry, "")
	if err != nil {
		return false, time.Time{}, fmt.Errorf("block %d: %w", resp.Query.Blocks[0].ID, err)
	}
	if infinite {
		return true, time.Time{}, nil
	}
	return true, exp, nil
}
