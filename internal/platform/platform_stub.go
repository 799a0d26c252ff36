// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !windows
// +build !windows

package platform

import (
	"fmt"
	"time"
)

// Windows is a build-time stand-in for non-Windows hosts. The agent's
// real target is always Windows (§1); this only exists so the module
// compiles for tooling (vet, lint, cross-compilation checks) run from a
// non-Windows machine. Every method fails loudly rather than simulating
// success.
type Windows struct{}

// New returns the non-functional stand-in adapter.
func New() *Windows {
	return &Windows{}
}

var errUnsupported = fmt.Errorf("platform: not supported on this OS, use the Fake adapter for tests")

func (w *Windows) StopService(name string) error                  { return errUnsupported }
func (w *Windows) StartService(name string) error                 { return errUnsupported }
func (w *Windows) IsServiceRunning(name string) (bool, error)      { return false, errUnsupported }
func (w *Windows) IsServiceInstalled(name string) (bool, error)    { return false, errUnsupported }
func (w *Windows) ListActiveInterfaces() ([]NetworkInterfaceInfo, error) {
	return nil, errUnsupported
}
func (w *Windows) GetAdapterDNS(adapterName string) ([]string, error) { return nil, errUnsupported }
func (w *Windows) SetAdapterDNS(adapterName string, servers []string) error {
	return errUnsupported
}
func (w *Windows) FlushDNSCache() error            { return errUnsupported }
func (w *Windows) DisableInterface(name string) error { return errUnsupported }
func (w *Windows) AddFirewallRule(rule FirewallRule) error { return errUnsupported }
func (w *Windows) DeleteFirewallRule(name string) error    { return errUnsupported }
func (w *Windows) ListFirewallRuleNames(prefix string) ([]string, error) {
	return nil, errUnsupported
}
func (w *Windows) RuleExists(name string) (bool, error)                { return false, errUnsupported }
func (w *Windows) SetDefaultOutboundPolicy(blockOutbound bool) error   { return errUnsupported }
func (w *Windows) ListProcesses() ([]ProcessInfo, error)               { return nil, errUnsupported }
func (w *Windows) TerminateProcess(pid int, wait time.Duration) error  { return errUnsupported }
func (w *Windows) BIOSInfo() (BIOSInfo, error)                         { return BIOSInfo{}, errUnsupported }
func (w *Windows) ComputerSystemInfo() (ComputerSystemInfo, error) {
	return ComputerSystemInfo{}, errUnsupported
}
func (w *Windows) RegistryKeyExists(path string) (bool, error) { return false, errUnsupported }
func (w *Windows) CPUName() (string, error)                    { return "", errUnsupported }
func (w *Windows) RoutingTableDefaultDeviceNames() ([]string, error) {
	return nil, errUnsupported
}

var _ Adapter = (*Windows)(nil)
