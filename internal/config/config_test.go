// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleHCL = `
tag = "Proctor"

dns {
  allow_domains = ["codeforces.com", "cdn.codeforces.com"]
  upstream      = "8.8.8.8:53"
}

firewall {
  essential_hosts = ["time.windows.com"]
}

allowlist {
  target_domains  = ["codeforces.com", "cf-edge.example.com"]
  refresh_seconds = 120
}

watchdog {
  allowed_browsers = ["chrome.exe", "firefox.exe"]
}

sentry {
}
`

func writeSample(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.hcl")
	require.NoError(t, os.WriteFile(path, []byte(sampleHCL), 0644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeSample(t))
	require.NoError(t, err)

	assert.Equal(t, "Proctor", cfg.Tag)
	assert.Equal(t, []string{"codeforces.com", "cdn.codeforces.com"}, cfg.DNS.AllowDomains)
	assert.Equal(t, "8.8.8.8:53", cfg.DNS.Upstream)
	assert.Equal(t, 120, cfg.Allowlist.RefreshSeconds)
}

func TestAllowlistBlock_RefreshInterval_Default(t *testing.T) {
	var a AllowlistBlock
	assert.Equal(t, 3*60, int(a.RefreshInterval().Seconds()))
}

func TestConfig_ProcessWhitelist(t *testing.T) {
	cfg, err := Load(writeSample(t))
	require.NoError(t, err)

	wl := cfg.ProcessWhitelist()
	assert.True(t, wl["explorer.exe"])
	assert.True(t, wl["chrome.exe"])
	assert.False(t, wl["openvpn.exe"])
}

func TestConfig_SentryDefaults(t *testing.T) {
	cfg, err := Load(writeSample(t))
	require.NoError(t, err)

	assert.Contains(t, cfg.Sentry.InterfaceKeywords, "wireguard")
	assert.Contains(t, cfg.Sentry.ServiceNames, "nordvpnservice")
	assert.Contains(t, cfg.Sentry.ProcessNames, "openvpn.exe")
}
