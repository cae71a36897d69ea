// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

//go:build nats

package detection

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
)

// NATSSink publishes reports as JSON to a NATS subject.
type NATSSink struct {
	nc      *nats.Conn
	subject string
}

// NewNATSSink connects to the NATS server at url.
func NewNATSSink(url, subject string) (*NATSSink, error) {
	nc, err := nats.Connect(url,
		nats.Name("sentinel"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSSink{nc: nc, subject: subject}, nil
}

// Name implements Sink.
func (s *NATSSink) Name() string {
	return "nats"
}

// Send implements Sink. The report id doubles as the message id so a
// JetStream stream on the subject de-duplicates redeliveries.
func (s *NATSSink) Send(_ context.Context, r *Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	msg := nats.NewMsg(s.subject)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, r.ID)
	msg.Header.Set("Sentinel-Reason", string(r.Reason))

	if err := s.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish report: %w", err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (s *NATSSink) Close() error {
	return s.nc.Drain()
}
