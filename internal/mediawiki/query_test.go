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
	"testing"
	"time"
)

func TestRevisionText(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("prop") != "revisions" || q.Get("rvslots") != "main" {
			t.Errorf("unexpected query %v", q)
		}
		switch q.Get("revids") {
		case "100":
			fmt.Fprint(w, `{"query":{"pages":[{"pageid":1,"ns":4,"title":"Wikipedia:Vandalismusmeldung",
				"revisions":[{"revid":100,"slots":{"main":{"contentmodel":"wikitext","content":"== {{Benutzer|192.0.2.1}} =="}}}]}]}}`)
		case "200":
			fmt.Fprint(w, `{"query":{"pages":[{"pageid":1,"revisions":[{"revid":200,"slots":{"main":{"texthidden":true}}}]}]}}`)
		default:
			fmt.Fprint(w, `{"query":{"badrevids":{"300":{"revid":300,"missing":true}}}}`)
		}
	})

	ctx := context.Background()
	text, err := c.RevisionText(ctx, 100)
	if err != nil {
		t.Fatalf("RevisionText(100) error = %v", err)
	}
	if text != "== {{Benutzer|192.0.2.1}} ==" {
		t.Errorf("text = %q", text)
	}

	if _, err := c.RevisionText(ctx, 200); !errors.Is(err, ErrRevisionHidden) {
		t.Errorf("RevisionText(200) error = %v, want ErrRevisionHidden", err)
	}
	if _, err := c.RevisionText(ctx, 300); !errors.Is(err, ErrRevisionNotFound) {
		t.Errorf("RevisionText(300) error = %v, want ErrRevisionNotFound", err)
	}
}

func TestBlockLog_FollowsContinuation(t *testing.T) {
	t.Parallel()

	since := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("list") != "logevents" || q.Get("letype") != "block" {
			t.Errorf("unexpected query %v", q)
		}
		if q.Get("ledir") != "newer" || q.Get("lestart") != "2026-03-01T12:00:00Z" {
			t.Errorf("ledir/lestart = %q/%q", q.Get("ledir"), q.Get("lestart"))
		}
		if q.Get("lecontinue") == "" {
			fmt.Fprint(w, `{"continue":{"lecontinue":"20260301120100|2","continue":"-||"},"query":{"logevents":[
				{"logid":1,"ns":2,"title":"Benutzer:192.0.2.1","type":"block","action":"block","timestamp":"2026-03-01T12:00:30Z",
				 "params":{"duration":"1 day","expiry":"2026-03-02T12:00:30Z","flags":["anononly"]}}]}}`)
			return
		}
		fmt.Fprint(w, `{"query":{"logevents":[
			{"logid":2,"ns":2,"title":"Benutzer:Vandal","type":"block","action":"block","timestamp":"2026-03-01T12:01:00Z",
			 "params":{"duration":"infinity","flags":[]}},
			{"logid":3,"ns":2,"title":"Benutzer:198.51.100.7","type":"block","action":"unblock","timestamp":"2026-03-01T12:02:00Z","params":{}}]}}`)
	})

	events, err := c.BlockLog(context.Background(), LogQuery{Since: since, Newer: true})
	if err != nil {
		t.Fatalf("BlockLog() error = %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}

	first := events[0]
	if first.Target() != "192.0.2.1" || first.Action != "block" {
		t.Errorf("first = %+v target %q", first, first.Target())
	}
	if first.Infinite || !first.Expiry.Equal(time.Date(2026, 3, 2, 12, 0, 30, 0, time.UTC)) {
		t.Errorf("first expiry = %v infinite=%v", first.Expiry, first.Infinite)
	}
	if !first.ExpiresBefore(since.Add(7 * 24 * time.Hour)) {
		t.Error("one-day block should expire within a week")
	}

	if !events[1].Infinite || events[1].ExpiresBefore(since.Add(100*365*24*time.Hour)) {
		t.Errorf("indefinite block = %+v", events[1])
	}
	if events[2].Action != "unblock" {
		t.Errorf("third action = %q", events[2].Action)
	}
}

func TestBlockLog_TitleFilter(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("letitle"); got != "User:192.0.2.1" {
			t.Errorf("letitle = %q", got)
		}
		if r.URL.Query().Get("ledir") != "" {
			t.Error("ledir set for a title query")
		}
		fmt.Fprint(w, `{"query":{"logevents":[]}}`)
	})

	events, err := c.BlockLog(context.Background(), LogQuery{Title: "User:192.0.2.1"})
	if err != nil || len(events) != 0 {
		t.Fatalf("BlockLog() = %v, %v", events, err)
	}
}

func TestBlockStatus(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("bkip") == "192.0.2.1":
			fmt.Fprint(w, `{"query":{"blocks":[{"id":9,"user":"192.0.2.0/24","expiry":"2026-04-01T00:00:00Z"}]}}`)
		case q.Get("bkip") == "2001:db8::1":
			fmt.Fprint(w, `{"query":{"blocks":[{"id":10,"user":"2001:db8::/64","expiry":"infinity"}]}}`)
		case q.Get("bkusers") == "Example":
			fmt.Fprint(w, `{"query":{"blocks":[]}}`)
		default:
			t.Errorf("unexpected query %v", q)
			fmt.Fprint(w, `{"query":{"blocks":[]}}`)
		}
	})

	ctx := context.Background()

	blocked, expiry, err := c.BlockStatus(ctx, "192.0.2.1")
	if err != nil || !blocked || !expiry.Equal(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("BlockStatus(ipv4) = %v, %v, %v", blocked, expiry, err)
	}

	blocked, expiry, err = c.BlockStatus(ctx, "2001:db8::1")
	if err != nil || !blocked || !expiry.IsZero() {
		t.Errorf("BlockStatus(ipv6) = %v, %v, %v", blocked, expiry, err)
	}

	blocked, _, err = c.BlockStatus(ctx, "Example")
	if err != nil || blocked {
		t.Errorf("BlockStatus(user) = %v, %v", blocked, err)
	}
}

func TestLogEvent_Target(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ev   LogEvent
		want string
	}{
		{LogEvent{Namespace: 2, Title: "Benutzer:192.0.2.1"}, "192.0.2.1"},
		{LogEvent{Namespace: 2, Title: "User:2001:db8::1"}, "2001:db8::1"},
		{LogEvent{Namespace: 0, Title: "Berlin"}, "Berlin"},
	}
	for _, tt := range tests {
		if got := tt.ev.Target(); got != tt.want {
			t.Errorf("Target(%q) = %q, want %q", tt.ev.Title, got, tt.want)
		}
	}
}
