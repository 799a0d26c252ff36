// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config loads the agent's deployment configuration from an
// HCL2 file: the tag prefix, the allow-domain sets, upstream DNS,
// refresh cadences, the process whitelist (including the configurable
// exam-browser list), and VPN signatures.
package config

import (
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/hacketthadwin/ExamProctor/internal/errors"
)

// Config is the root of the HCL configuration file.
type Config struct {
	Tag string `hcl:"tag"`

	DNS       DNSBlock       `hcl:"dns,block"`
	Firewall  FirewallBlock  `hcl:"firewall,block"`
	Allowlist AllowlistBlock `hcl:"allowlist,block"`
	Watchdog  WatchdogBlock  `hcl:"watchdog,block"`
	Sentry    SentryBlock    `hcl:"sentry,block"`
}

// DNSBlock configures the DNS Filter (C2).
type DNSBlock struct {
	AllowDomains []string `hcl:"allow_domains"`
	Upstream     string   `hcl:"upstream"`
}

// FirewallBlock configures the Firewall Controller's static allows (C3).
type FirewallBlock struct {
	EssentialHosts []string `hcl:"essential_hosts,optional"`
}

// AllowlistBlock configures the IP Allowlist Resolver (C4).
type AllowlistBlock struct {
	TargetDomains  []string `hcl:"target_domains"`
	RefreshSeconds int      `hcl:"refresh_seconds,optional"`
}

// RefreshInterval returns the configured cadence, defaulting to 3 minutes.
func (a AllowlistBlock) RefreshInterval() time.Duration {
	if a.RefreshSeconds <= 0 {
		return 3 * time.Minute
	}
	return time.Duration(a.RefreshSeconds) * time.Second
}

// WatchdogBlock configures the Process Watchdog (C5).
type WatchdogBlock struct {
	AllowedBrowsers []string `hcl:"allowed_browsers"`
}

// SentryBlock configures the VPN Sentry (C6).
type SentryBlock struct {
	InterfaceKeywords []string `hcl:"interface_keywords,optional"`
	ServiceNames      []string `hcl:"service_names,optional"`
	ProcessNames      []string `hcl:"process_names,optional"`
}

// defaultInterfaceKeywords, defaultServiceNames, and defaultProcessNames
// back SentryBlock's optional fields when the deployment config omits
// them, per the vectors enumerated in §4.7.
var (
	defaultInterfaceKeywords = []string{"tap", "tun", "vpn", "wireguard", "openvpn", "wintun"}
	defaultServiceNames      = []string{"openvpnservice", "wireguardmanager", "nordvpnservice", "tap0901"}
	defaultProcessNames      = []string{"openvpn.exe", "nordvpn.exe", "expressvpn.exe", "wireguard.exe", "protonvpn.exe"}
)

// defaultWhitelist is the fixed OS/runtime portion of the process
// whitelist (§4.6); the configurable exam-browser list is appended to
// this at load time.
var defaultWhitelist = []string{
	"system", "smss.exe", "csrss.exe", "wininit.exe", "services.exe", "lsass.exe", "winlogon.exe",
	"explorer.exe", "taskmgr.exe",
	"spoolsv.exe",
	"audiodg.exe",
	"msmpeng.exe", "securityhealthservice.exe", "nissrv.exe",
	"trustedinstaller.exe", "wuauclt.exe",
	"rtkauduservice64.exe", "igfxem.exe", "nvcontainer.exe",
	"svchost.exe", "conhost.exe", "dwm.exe", "ctfmon.exe", "sihost.exe", "fontdrvhost.exe",
}

// Load reads and decodes the HCL configuration file at path, then fills
// in the default VPN signature lists for any sentry field left unset.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := hclsimple.DecodeFile(path, nil, &cfg); err != nil {
		return nil, errors.Wrapf(err, errors.KindValidation, "config: decode %s", path)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if len(cfg.Sentry.InterfaceKeywords) == 0 {
		cfg.Sentry.InterfaceKeywords = defaultInterfaceKeywords
	}
	if len(cfg.Sentry.ServiceNames) == 0 {
		cfg.Sentry.ServiceNames = defaultServiceNames
	}
	if len(cfg.Sentry.ProcessNames) == 0 {
		cfg.Sentry.ProcessNames = defaultProcessNames
	}
}

// ProcessWhitelist returns the full process whitelist, keyed by
// lower-cased base name: the fixed OS/runtime set plus the configured
// exam-browser list. The agent's own reserved-prefix rule is applied
// separately by the caller (I5 exempts any name with the tag prefix
// regardless of this set).
func (c *Config) ProcessWhitelist() map[string]bool {
	out := make(map[string]bool, len(defaultWhitelist)+len(c.Watchdog.AllowedBrowsers))
	for _, name := range defaultWhitelist {
		out[strings.ToLower(name)] = true
	}
	for _, name := range c.Watchdog.AllowedBrowsers {
		out[strings.ToLower(name)] = true
	}
	return out
}
