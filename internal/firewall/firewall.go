// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package firewall implements the Firewall Controller (C3): a
// deny-by-default outbound policy with a narrow, tag-prefixed set of
// allow rules, reconciled against a dynamic per-IP allowlist by
// diffing old and new sets rather than flushing and reinstalling
// (avoiding the connectivity gap a flush-then-reload would create).
package firewall

import (
	"fmt"
	"strings"
	"sync"

	"github.com/hacketthadwin/ExamProctor/internal/logging"
	"github.com/hacketthadwin/ExamProctor/internal/platform"
)

// Controller is the Firewall Controller (C3).
type Controller struct {
	tag            string
	essentialHosts []string
	agentProgram   string

	adapter platform.Adapter
	logger  *logging.Logger

	mu         sync.Mutex
	allowedIPs map[string]bool // current per-IP allow rule set, IP -> present
}

// New returns a Controller tagging every rule it creates with tag
// (e.g. "Proctor"), additionally allowing essentialHosts (OS
// connectivity-check endpoints) and agentProgram (the service binary's
// own path, so its own traffic on allowed IPs remains possible).
func New(tag string, essentialHosts []string, agentProgram string, adapter platform.Adapter, logger *logging.Logger) *Controller {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	return &Controller{
		tag:            tag,
		essentialHosts: essentialHosts,
		agentProgram:   agentProgram,
		adapter:        adapter,
		logger:         logger.WithComponent("firewall"),
		allowedIPs:     make(map[string]bool),
	}
}

func (c *Controller) ruleName(suffix string) string {
	return c.tag + "_" + suffix
}

func (c *Controller) markerRuleName() string {
	return c.tag + "_BlockHTTPS"
}

func ipRuleName(tag, ip, proto string) string {
	return fmt.Sprintf("%s_CF_%s_%s", tag, strings.ReplaceAll(ip, ".", "_"), proto)
}

// EnableLockdown installs the static allow rules and sets the default
// outbound policy to block (§4.4).
func (c *Controller) EnableLockdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Idempotent recovery from a prior crash: clear any stale tagged
	// rules before laying down a fresh set.
	if err := c.deleteAllTaggedLocked(); err != nil {
		c.logger.Warn("failed clearing stale rules before enable", "error", err)
	}
	c.allowedIPs = make(map[string]bool)

	if err := c.adapter.SetDefaultOutboundPolicy(true); err != nil {
		return fmt.Errorf("firewall: set outbound block policy: %w", err)
	}

	rules := []platform.FirewallRule{
		{Name: c.ruleName("AllowLoopback"), Direction: "out", Action: "allow", RemoteAddress: "127.0.0.0/8"},
		{Name: c.ruleName("AllowDNS_UDP"), Direction: "out", Action: "allow", Protocol: "UDP", RemotePort: "53"},
		{Name: c.ruleName("AllowDNS_TCP"), Direction: "out", Action: "allow", Protocol: "TCP", RemotePort: "53"},
	}
	if c.agentProgram != "" {
		rules = append(rules, platform.FirewallRule{Name: c.ruleName("AllowSelf"), Direction: "out", Action: "allow", Program: c.agentProgram})
	}
	for _, host := range c.essentialHosts {
		rules = append(rules, platform.FirewallRule{
			Name: c.ruleName("AllowEssential_" + sanitize(host)), Direction: "out", Action: "allow", RemoteAddress: host,
		})
	}
	// Belt-and-braces blanket blocks; per-IP allows from
	// UpdateAllowedIPs are narrower in remote-address scope and take
	// effect regardless of equal-specificity evaluation order (§4.4).
	rules = append(rules,
		platform.FirewallRule{Name: c.ruleName("BlockHTTP"), Direction: "out", Action: "block", Protocol: "TCP", RemotePort: "80"},
		platform.FirewallRule{Name: c.markerRuleName(), Direction: "out", Action: "block", Protocol: "TCP", RemotePort: "443"},
	)

	for _, rule := range rules {
		if err := c.adapter.AddFirewallRule(rule); err != nil {
			return fmt.Errorf("firewall: add rule %s: %w", rule.Name, err)
		}
	}

	return nil
}

// UpdateAllowedIPs diffs newSet against the currently installed per-IP
// allow rules and applies only the delta (I3, P3, P4).
func (c *Controller) UpdateAllowedIPs(newSet map[string]bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var toDelete, toAdd []string
	for ip := range c.allowedIPs {
		if !newSet[ip] {
			toDelete = append(toDelete, ip)
		}
	}
	for ip := range newSet {
		if !c.allowedIPs[ip] {
			toAdd = append(toAdd, ip)
		}
	}

	var errs []string
	for _, ip := range toDelete {
		for _, proto := range []string{"HTTP", "HTTPS"} {
			if err := c.adapter.DeleteFirewallRule(ipRuleName(c.tag, ip, proto)); err != nil {
				errs = append(errs, err.Error())
			}
		}
		delete(c.allowedIPs, ip)
	}

	for _, ip := range toAdd {
		httpRule := platform.FirewallRule{Name: ipRuleName(c.tag, ip, "HTTP"), Direction: "out", Action: "allow", Protocol: "TCP", RemotePort: "80", RemoteAddress: ip}
		httpsRule := platform.FirewallRule{Name: ipRuleName(c.tag, ip, "HTTPS"), Direction: "out", Action: "allow", Protocol: "TCP", RemotePort: "443", RemoteAddress: ip}
		if err := c.adapter.AddFirewallRule(httpRule); err != nil {
			errs = append(errs, err.Error())
			continue
		}
		if err := c.adapter.AddFirewallRule(httpsRule); err != nil {
			errs = append(errs, err.Error())
			continue
		}
		c.allowedIPs[ip] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("firewall: update allowed IPs: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DisableLockdown deletes every tagged rule and restores the default
// outbound policy to allow. Best-effort: it logs and continues past
// any single rule deletion failure rather than aborting (§4.4, §7).
func (c *Controller) DisableLockdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.deleteAllTaggedLocked()
	c.allowedIPs = make(map[string]bool)

	if policyErr := c.adapter.SetDefaultOutboundPolicy(false); policyErr != nil {
		c.logger.Warn("failed restoring outbound policy", "error", policyErr)
		if err == nil {
			err = policyErr
		}
	}
	return err
}

func (c *Controller) deleteAllTaggedLocked() error {
	names, err := c.adapter.ListFirewallRuleNames(c.tag + "_")
	if err != nil {
		return fmt.Errorf("firewall: list tagged rules: %w", err)
	}

	var failed []string
	for _, name := range names {
		if delErr := c.adapter.DeleteFirewallRule(name); delErr != nil {
			c.logger.Warn("failed deleting tagged rule", "rule", name, "error", delErr)
			failed = append(failed, name)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("firewall: failed deleting rules: %s", strings.Join(failed, ", "))
	}
	return nil
}

// IsLockdownActive reports whether the canonical marker rule is present.
func (c *Controller) IsLockdownActive() bool {
	active, err := c.adapter.RuleExists(c.markerRuleName())
	if err != nil {
		c.logger.Warn("failed checking lockdown marker", "error", err)
		return false
	}
	return active
}

func sanitize(s string) string {
	return strings.NewReplacer(".", "_", ":", "_", "/", "_").Replace(s)
}
