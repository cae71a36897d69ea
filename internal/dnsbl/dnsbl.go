// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

// Package dnsbl classifies IPv4 addresses as dynamically or statically
// allocated using a DNS blocklist of dial-up and dynamic ranges.
//
// An address is looked up as <reversed octets>.<zone>. Any A record means the
// zone lists the address as dynamic; NXDOMAIN means it does not. IPv6
// addresses are not looked up and count as static.
package dnsbl

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/metrics"
)

// DefaultZone lists dynamically allocated address space.
const DefaultZone = "dul.dnsbl.sorbs.net"

// Allocation is the classification of an address.
type Allocation string

const (
	AllocationStatic  Allocation = "static"
	AllocationDynamic Allocation = "dynamic"

	// AllocationUnknown is used by callers that could not classify at all.
	AllocationUnknown Allocation = "unknown"
)

// IsStatic reports whether the allocation is static.
func (a Allocation) IsStatic() bool {
	return a == AllocationStatic
}

var (
	// ErrLookupFailed wraps resolver failures other than "not found".
	ErrLookupFailed = errors.New("dnsbl lookup failed")

	// ErrInvalidAddress is returned for input that is not an IP address.
	ErrInvalidAddress = errors.New("invalid IPv4 address")
)

// Resolver is the subset of *net.Resolver the classifier uses.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Classifier performs DNSBL lookups.
type Classifier struct {
	resolver Resolver
	zone     string
	timeout  time.Duration
	logger   zerolog.Logger
}

// New creates a classifier. A nil resolver uses net.DefaultResolver, an empty
// zone uses DefaultZone and a non-positive timeout leaves lookups bounded only
// by the caller's context.
func New(resolver Resolver, zone string, timeout time.Duration) *Classifier {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if zone == "" {
		zone = DefaultZone
	}
	return &Classifier{
		resolver: resolver,
		zone:     strings.TrimSuffix(zone, "."),
		timeout:  timeout,
		logger:   logging.WithComponent("dnsbl"),
	}
}

// Zone returns the configured zone.
func (c *Classifier) Zone() string {
	return c.zone
}

// Classify returns the allocation of ip.
func (c *Classifier) Classify(ctx context.Context, ip string) (Allocation, error) {
	ip = strings.TrimSpace(ip)
	if strings.Contains(ip, ":") {
		metrics.DNSBLLookups.WithLabelValues("ipv6").Inc()
		return AllocationStatic, nil
	}

	name, err := c.QueryName(ip)
	if err != nil {
		return AllocationUnknown, err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	addrs, err := c.resolver.LookupHost(ctx, name)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			metrics.DNSBLLookups.WithLabelValues(string(AllocationStatic)).Inc()
			return AllocationStatic, nil
		}
		metrics.DNSBLLookups.WithLabelValues("error").Inc()
		return AllocationUnknown, fmt.Errorf("%w: %s: %w", ErrLookupFailed, name, err)
	}

	c.logger.Debug().Str("ip", ip).Strs("answers", addrs).Msg("Address listed as dynamic")
	metrics.DNSBLLookups.WithLabelValues(string(AllocationDynamic)).Inc()
	return AllocationDynamic, nil
}

// QueryName builds the DNSBL query name for an IPv4 address,
// e.g. 192.0.2.1 -> 1.2.0.192.dul.dnsbl.sorbs.net.
func (c *Classifier) QueryName(ip string) (string, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil || !addr.Is4() {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, ip)
	}
	o := addr.As4()
	return fmt.Sprintf("%d.%d.%d.%d.%s", o[3], o[2], o[1], o[0], c.zone), nil
}
