// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package firewall

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hacketthadwin/ExamProctor/internal/platform"
)

func newTestController(fake *platform.Fake) *Controller {
	return New("Proctor", []string{"time.windows.com"}, `C:\agent\agent.exe`, fake, nil)
}

func TestEnableLockdown_InstallsStaticRulesAndBlockPolicy(t *testing.T) {
	fake := platform.NewFake()
	c := newTestController(fake)

	require.NoError(t, c.EnableLockdown())

	assert.True(t, fake.OutboundBlocked())
	exists, err := fake.RuleExists("Proctor_BlockHTTPS")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = fake.RuleExists("Proctor_AllowEssential_time_windows_com")
	require.NoError(t, err)
	assert.True(t, exists)

	assert.True(t, c.IsLockdownActive())
}

func TestEnableLockdown_ClearsStaleRulesFirst(t *testing.T) {
	fake := platform.NewFake()
	c := newTestController(fake)

	require.NoError(t, c.EnableLockdown())
	require.NoError(t, c.UpdateAllowedIPs(map[string]bool{"1.2.3.4": true}))
	require.NoError(t, c.EnableLockdown())

	names, err := fake.ListFirewallRuleNames("Proctor_")
	require.NoError(t, err)
	for _, n := range names {
		assert.NotContains(t, n, "1_2_3_4")
	}
}

func TestUpdateAllowedIPs_DiffOnlyTouchesDelta(t *testing.T) {
	fake := platform.NewFake()
	c := newTestController(fake)
	require.NoError(t, c.EnableLockdown())

	require.NoError(t, c.UpdateAllowedIPs(map[string]bool{"1.1.1.1": true, "2.2.2.2": true}))

	for _, ip := range []string{"Proctor_CF_1_1_1_1_HTTP", "Proctor_CF_1_1_1_1_HTTPS", "Proctor_CF_2_2_2_2_HTTP", "Proctor_CF_2_2_2_2_HTTPS"} {
		exists, err := fake.RuleExists(ip)
		require.NoError(t, err)
		assert.True(t, exists, ip)
	}

	require.NoError(t, c.UpdateAllowedIPs(map[string]bool{"2.2.2.2": true, "3.3.3.3": true}))

	exists, _ := fake.RuleExists("Proctor_CF_1_1_1_1_HTTP")
	assert.False(t, exists, "1.1.1.1 should have been removed")
	exists, _ = fake.RuleExists("Proctor_CF_2_2_2_2_HTTP")
	assert.True(t, exists, "2.2.2.2 should remain untouched")
	exists, _ = fake.RuleExists("Proctor_CF_3_3_3_3_HTTP")
	assert.True(t, exists, "3.3.3.3 should have been added")
}

func TestDisableLockdown_RemovesAllTaggedRulesAndRestoresPolicy(t *testing.T) {
	fake := platform.NewFake()
	c := newTestController(fake)
	require.NoError(t, c.EnableLockdown())
	require.NoError(t, c.UpdateAllowedIPs(map[string]bool{"1.1.1.1": true}))

	require.NoError(t, c.DisableLockdown())

	assert.False(t, fake.OutboundBlocked())
	assert.False(t, c.IsLockdownActive())

	names, err := fake.ListFirewallRuleNames("Proctor_")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestIsLockdownActive_FalseBeforeEnable(t *testing.T) {
	fake := platform.NewFake()
	c := newTestController(fake)
	assert.False(t, c.IsLockdownActive())
}
