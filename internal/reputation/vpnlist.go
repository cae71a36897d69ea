// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package reputation

import (
	"context"
	"fmt"
	"io"
	"net/netip"
	"os"
	"sync"

	"github.com/goccy/go-json"
)

// VPNList is a local set of known VPN server addresses imported from
// gluetun's servers.json (https://github.com/qdm12/gluetun).
//
// It implements Backend: a listed address scores ProxyThreshold, anything
// else scores 0. It never fails for a well-formed address.
type VPNList struct {
	mu        sync.RWMutex
	addrs     map[netip.Addr]string // address -> provider
	providers int
}

// gluetunProvider is one provider entry of servers.json.
type gluetunProvider struct {
	Version   int   `json:"version"`
	Timestamp int64 `json:"timestamp"`
	Servers   []struct {
		Hostname string   `json:"hostname,omitempty"`
		IPs      []string `json:"ips"`
	} `json:"servers"`
}

// NewVPNList returns an empty list.
func NewVPNList() *VPNList {
	return &VPNList{addrs: make(map[netip.Addr]string)}
}

// LoadVPNListFile reads a gluetun servers.json file.
func LoadVPNListFile(path string) (*VPNList, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("open vpn list: %w", err)
	}
	defer f.Close()

	l := NewVPNList()
	if err := l.Import(f); err != nil {
		return nil, fmt.Errorf("import vpn list %s: %w", path, err)
	}
	return l, nil
}

// Import replaces the list with the contents of a servers.json document.
// Entries that are not provider objects (the root "version") and
// unparseable addresses are skipped.
func (l *VPNList) Import(r io.Reader) error {
	var root map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&root); err != nil {
		return fmt.Errorf("parse servers.json: %w", err)
	}

	addrs := make(map[netip.Addr]string)
	providers := 0
	for name, raw := range root {
		if name == "version" {
			continue
		}
		var p gluetunProvider
		if err := json.Unmarshal(raw, &p); err != nil {
			continue
		}
		providers++
		for _, server := range p.Servers {
			for _, ip := range server.IPs {
				addr, err := netip.ParseAddr(ip)
				if err != nil {
					continue
				}
				addrs[addr.Unmap()] = name
			}
		}
	}

	l.mu.Lock()
	l.addrs = addrs
	l.providers = providers
	l.mu.Unlock()
	return nil
}

// Lookup returns the provider operating ip, if listed.
func (l *VPNList) Lookup(ip string) (provider string, ok bool) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "", false
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	provider, ok = l.addrs[addr.Unmap()]
	return provider, ok
}

// Len returns the number of listed addresses.
func (l *VPNList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.addrs)
}

// Providers returns the number of imported providers.
func (l *VPNList) Providers() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.providers
}

// Name implements Backend.
func (l *VPNList) Name() BackendName {
	return BackendVPNList
}

// Check implements Backend.
func (l *VPNList) Check(_ context.Context, ip string) (Result, error) {
	if _, err := netip.ParseAddr(ip); err != nil {
		return Result{}, fmt.Errorf("invalid address %q", ip)
	}
	if _, ok := l.Lookup(ip); ok {
		return Result{Score: ProxyThreshold, Backend: BackendVPNList}, nil
	}
	return Result{Backend: BackendVPNList}, nil
}
