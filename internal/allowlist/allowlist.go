// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package allowlist implements the IP Allowlist Resolver (C4): it
// periodically resolves a configured set of target domains to IPv4
// addresses and pushes the resulting set to the Firewall Controller,
// so that domains served from rotating CDN addresses stay reachable
// under lockdown (§4.5).
package allowlist

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/hacketthadwin/ExamProctor/internal/logging"
)

// Resolver is a DNS resolver abstraction, satisfied by *net.Resolver
// in production and swappable in tests.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// FirewallUpdater receives the reconciled IP set. internal/firewall.Controller
// satisfies this.
type FirewallUpdater interface {
	UpdateAllowedIPs(set map[string]bool) error
}

// Manager is the IP Allowlist Resolver (C4).
type Manager struct {
	domains  []string
	interval time.Duration
	resolver Resolver
	firewall FirewallUpdater
	logger   *logging.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	current map[string]bool
}

// New builds a Manager over domains, refreshed every interval, pushing
// reconciled sets to firewall via resolver.
func New(domains []string, interval time.Duration, resolver Resolver, firewall FirewallUpdater, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &Manager{
		domains:  domains,
		interval: interval,
		resolver: resolver,
		firewall: firewall,
		logger:   logger.WithComponent("allowlist"),
		current:  make(map[string]bool),
	}
}

// Start performs an immediate synchronous refresh (so lockdown enters
// with a populated allow set) and then begins the periodic background
// refresh loop (§4.5). Calling Start again while a loop is running
// replaces that loop rather than adding a second one.
func (m *Manager) Start(ctx context.Context) error {
	m.Stop()

	if err := m.refresh(ctx); err != nil {
		m.logger.Warn("initial allowlist refresh failed", "error", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	m.wg.Add(1)
	go m.loop(loopCtx)

	return nil
}

// Stop halts the background refresh loop.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

func (m *Manager) loop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.refresh(ctx); err != nil {
				m.logger.Warn("allowlist refresh failed", "error", err)
			}
		}
	}
}

// refresh resolves every configured domain, merges their addresses
// into one set, and pushes the full set to the firewall when it differs
// from the current one. A single domain's resolution failure does not
// abort the others (§7).
func (m *Manager) refresh(ctx context.Context) error {
	resolveCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	next := make(map[string]bool)
	var lastErr error

	for _, domain := range m.domains {
		addrs, err := m.resolver.LookupHost(resolveCtx, domain)
		if err != nil {
			m.logger.Warn("resolution failed", "domain", domain, "error", err)
			lastErr = err
			continue
		}
		for _, a := range addrs {
			ip := net.ParseIP(a)
			if ip == nil || ip.To4() == nil {
				continue // C3's rule model is IPv4; skip AAAA results
			}
			next[ip.String()] = true
		}
	}

	if len(next) == 0 {
		// Nothing resolved to an IPv4 address: keep the previous set
		// rather than collapsing the firewall down to nothing reachable.
		if lastErr == nil {
			lastErr = fmt.Errorf("allowlist: no IPv4 addresses resolved for %d domain(s)", len(m.domains))
		}
		return lastErr
	}

	m.mu.Lock()
	unchanged := setsEqual(m.current, next)
	m.current = next
	m.mu.Unlock()

	if unchanged {
		// §4.5 step 4: nothing to reconcile when the resolved set hasn't moved.
		return lastErr
	}

	if err := m.firewall.UpdateAllowedIPs(next); err != nil {
		return err
	}
	return lastErr
}

func setsEqual(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for ip := range a {
		if !b[ip] {
			return false
		}
	}
	return true
}

// CurrentSet returns the most recently resolved IP set.
func (m *Manager) CurrentSet() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool, len(m.current))
	for ip := range m.current {
		out[ip] = true
	}
	return out
}
