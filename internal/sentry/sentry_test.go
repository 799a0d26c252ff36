// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package sentry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hacketthadwin/ExamProctor/internal/platform"
)

func newTestSentry(fake *platform.Fake) *Sentry {
	return New(
		[]string{"tap", "tun", "vpn", "wireguard", "openvpn", "wintun"},
		[]string{"openvpnservice", "wireguardmanager", "nordvpnservice", "tap0901"},
		[]string{"openvpn.exe", "nordvpn.exe", "expressvpn.exe", "wireguard.exe", "protonvpn.exe"},
		fake, nil,
	)
}

func TestScanInterfaces_DisablesMatchingVPNAdapter(t *testing.T) {
	fake := platform.NewFake()
	fake.SetInterfaces([]platform.NetworkInterfaceInfo{
		{Name: "Ethernet", Description: "Intel(R) Ethernet Connection", Up: true},
		{Name: "Wintun", Description: "WireGuard Tunnel", Up: true},
	})

	s := newTestSentry(fake)
	s.scanInterfaces()

	ifaces, err := fake.ListActiveInterfaces()
	require.NoError(t, err)
	var wintun platform.NetworkInterfaceInfo
	for _, i := range ifaces {
		if i.Name == "Wintun" {
			wintun = i
		}
	}
	assert.False(t, wintun.Up)
}

func TestScanServices_StopsKnownBadRunningService(t *testing.T) {
	fake := platform.NewFake()
	fake.SetServiceInstalled("nordvpnservice", true)
	fake.SetServiceRunning("nordvpnservice", true)

	s := newTestSentry(fake)
	s.scanServices()

	running, err := fake.IsServiceRunning("nordvpnservice")
	require.NoError(t, err)
	assert.False(t, running)
}

func TestScanServices_IgnoresServiceNotInstalled(t *testing.T) {
	fake := platform.NewFake()
	s := newTestSentry(fake)
	s.scanServices() // must not panic or call Stop on a non-installed service
}

func TestScanProcesses_TerminatesKnownBadProcess(t *testing.T) {
	fake := platform.NewFake()
	fake.SetProcesses([]platform.ProcessInfo{
		{PID: 10, PPID: 1, Name: "notepad.exe"},
		{PID: 20, PPID: 1, Name: "openvpn.exe"},
	})

	s := newTestSentry(fake)
	s.scanProcesses()

	assert.Equal(t, []int{20}, fake.Terminated())
}

func TestScanRoutes_ReadOnly(t *testing.T) {
	fake := platform.NewFake()
	fake.SetDefaultRouteDevices([]string{"Wintun Userspace Tunnel"})

	s := newTestSentry(fake)
	s.scanRoutes() // should only log, never mutate state

	ifaces, err := fake.ListActiveInterfaces()
	require.NoError(t, err)
	assert.Empty(t, ifaces)
}
