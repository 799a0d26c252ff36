// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package platform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFake_ServiceLifecycle(t *testing.T) {
	f := NewFake()
	f.SetServiceInstalled("Dnscache", true)
	f.SetServiceRunning("Dnscache", true)

	running, err := f.IsServiceRunning("Dnscache")
	require.NoError(t, err)
	assert.True(t, running)

	require.NoError(t, f.StopService("Dnscache"))
	running, err = f.IsServiceRunning("Dnscache")
	require.NoError(t, err)
	assert.False(t, running)

	require.NoError(t, f.StartService("Dnscache"))
	running, err = f.IsServiceRunning("Dnscache")
	require.NoError(t, err)
	assert.True(t, running)
}

func TestFake_AdapterDNS(t *testing.T) {
	f := NewFake()

	servers, err := f.GetAdapterDNS("Ethernet")
	require.NoError(t, err)
	assert.Nil(t, servers, "no override captured yet means DHCP")

	require.NoError(t, f.SetAdapterDNS("Ethernet", []string{"8.8.8.8", "8.8.4.4"}))
	servers, err = f.GetAdapterDNS("Ethernet")
	require.NoError(t, err)
	assert.Equal(t, []string{"8.8.8.8", "8.8.4.4"}, servers)

	assert.Equal(t, 0, f.FlushCount())
	require.NoError(t, f.FlushDNSCache())
	assert.Equal(t, 1, f.FlushCount())
}

func TestFake_FirewallRules(t *testing.T) {
	f := NewFake()

	require.NoError(t, f.AddFirewallRule(FirewallRule{Name: "Proctor_BlockHTTPS", Action: "block"}))
	require.NoError(t, f.AddFirewallRule(FirewallRule{Name: "Proctor_CF_1_1_1_1_HTTP", Action: "allow"}))
	require.NoError(t, f.AddFirewallRule(FirewallRule{Name: "SomeOtherRule", Action: "allow"}))

	names, err := f.ListFirewallRuleNames("Proctor_")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Proctor_BlockHTTPS", "Proctor_CF_1_1_1_1_HTTP"}, names)

	exists, err := f.RuleExists("Proctor_BlockHTTPS")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, f.DeleteFirewallRule("Proctor_BlockHTTPS"))
	exists, err = f.RuleExists("Proctor_BlockHTTPS")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, f.SetDefaultOutboundPolicy(true))
	assert.True(t, f.OutboundBlocked())
}

func TestFake_ProcessTermination(t *testing.T) {
	f := NewFake()
	f.SetProcesses([]ProcessInfo{
		{PID: 100, Name: "notepad.exe"},
		{PID: 200, Name: "explorer.exe"},
	})

	require.NoError(t, f.TerminateProcess(100, time.Second))

	procs, err := f.ListProcesses()
	require.NoError(t, err)
	assert.Len(t, procs, 1)
	assert.Equal(t, "explorer.exe", procs[0].Name)
	assert.Equal(t, []int{100}, f.Terminated())
}

func TestFake_SystemIdentity(t *testing.T) {
	f := NewFake()
	f.SetBIOSInfo(BIOSInfo{Manufacturer: "innotek GmbH", Version: "VirtualBox"})
	f.SetComputerSystemInfo(ComputerSystemInfo{Manufacturer: "innotek GmbH", Model: "VirtualBox", HypervisorPresent: true})
	f.SetRegistryKeyExists(`SOFTWARE\Oracle\VirtualBox Guest Additions`, true)
	f.SetCPUName("Virtual CPU")

	bios, err := f.BIOSInfo()
	require.NoError(t, err)
	assert.Equal(t, "innotek GmbH", bios.Manufacturer)

	cs, err := f.ComputerSystemInfo()
	require.NoError(t, err)
	assert.True(t, cs.HypervisorPresent)

	exists, err := f.RegistryKeyExists(`SOFTWARE\Oracle\VirtualBox Guest Additions`)
	require.NoError(t, err)
	assert.True(t, exists)

	cpu, err := f.CPUName()
	require.NoError(t, err)
	assert.Equal(t, "Virtual CPU", cpu)
}
