// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package platform

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Fake is an in-memory Adapter used by every other package's tests. It
// keeps state in plain Go maps/slices and never touches the real OS.
type Fake struct {
	mu sync.Mutex

	services         map[string]bool // name -> running
	installedSvcs    map[string]bool
	interfaces       []NetworkInterfaceInfo
	adapterDNS       map[string][]string
	flushCount       int
	firewallRules    map[string]FirewallRule
	outboundBlocked  bool
	processes        []ProcessInfo
	terminated       []int
	bios             BIOSInfo
	computerSystem   ComputerSystemInfo
	registryKeys     map[string]bool
	cpuName          string
	defaultRouteDevs []string

	// Err* fields, when non-nil, are returned by the matching method
	// instead of succeeding -- used to exercise error paths.
	ErrAddFirewallRule error
	ErrTerminate       map[int]error
}

// NewFake returns a Fake with empty state and a benign bare-metal
// system identity (not a VM).
func NewFake() *Fake {
	return &Fake{
		services:      make(map[string]bool),
		installedSvcs: make(map[string]bool),
		adapterDNS:    make(map[string][]string),
		firewallRules: make(map[string]FirewallRule),
		registryKeys:  make(map[string]bool),
		cpuName:       "Intel(R) Core(TM) i7-12700K",
	}
}

func (f *Fake) StopService(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.services[strings.ToLower(name)] = false
	return nil
}

func (f *Fake) StartService(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.services[strings.ToLower(name)] = true
	return nil
}

func (f *Fake) IsServiceRunning(name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.services[strings.ToLower(name)], nil
}

// SetServiceRunning lets a test seed the initial state of a service.
func (f *Fake) SetServiceRunning(name string, running bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.services[strings.ToLower(name)] = running
}

func (f *Fake) IsServiceInstalled(name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.installedSvcs[strings.ToLower(name)], nil
}

// SetServiceInstalled lets a test seed which services exist on the host.
func (f *Fake) SetServiceInstalled(name string, installed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.installedSvcs[strings.ToLower(name)] = installed
}

func (f *Fake) ListActiveInterfaces() ([]NetworkInterfaceInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]NetworkInterfaceInfo, len(f.interfaces))
	copy(out, f.interfaces)
	return out, nil
}

// SetInterfaces lets a test seed the host's network adapters.
func (f *Fake) SetInterfaces(ifaces []NetworkInterfaceInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interfaces = ifaces
}

func (f *Fake) GetAdapterDNS(adapterName string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	servers, ok := f.adapterDNS[adapterName]
	if !ok {
		return nil, nil // DHCP, no override captured
	}
	out := make([]string, len(servers))
	copy(out, servers)
	return out, nil
}

func (f *Fake) SetAdapterDNS(adapterName string, servers []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adapterDNS[adapterName] = append([]string(nil), servers...)
	return nil
}

func (f *Fake) FlushDNSCache() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushCount++
	return nil
}

// FlushCount reports how many times FlushDNSCache was called.
func (f *Fake) FlushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flushCount
}

func (f *Fake) DisableInterface(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.interfaces {
		if f.interfaces[i].Name == name {
			f.interfaces[i].Up = false
		}
	}
	return nil
}

func (f *Fake) AddFirewallRule(rule FirewallRule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ErrAddFirewallRule != nil {
		return f.ErrAddFirewallRule
	}
	f.firewallRules[rule.Name] = rule
	return nil
}

func (f *Fake) DeleteFirewallRule(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.firewallRules, name)
	return nil
}

func (f *Fake) ListFirewallRuleNames(prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for name := range f.firewallRules {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (f *Fake) RuleExists(name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.firewallRules[name]
	return ok, nil
}

func (f *Fake) SetDefaultOutboundPolicy(blockOutbound bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outboundBlocked = blockOutbound
	return nil
}

// OutboundBlocked reports the last policy set via SetDefaultOutboundPolicy.
func (f *Fake) OutboundBlocked() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outboundBlocked
}

func (f *Fake) ListProcesses() ([]ProcessInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ProcessInfo, len(f.processes))
	copy(out, f.processes)
	return out, nil
}

// SetProcesses lets a test seed the running process table.
func (f *Fake) SetProcesses(procs []ProcessInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processes = procs
}

func (f *Fake) TerminateProcess(pid int, wait time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.ErrTerminate[pid]; ok {
		return err
	}
	f.terminated = append(f.terminated, pid)
	kept := f.processes[:0]
	for _, p := range f.processes {
		if p.PID != pid {
			kept = append(kept, p)
		}
	}
	f.processes = kept
	return nil
}

// Terminated returns the PIDs passed to TerminateProcess, in call order.
func (f *Fake) Terminated() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.terminated))
	copy(out, f.terminated)
	return out
}

func (f *Fake) BIOSInfo() (BIOSInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bios, nil
}

// SetBIOSInfo lets a test seed the reported BIOS identity.
func (f *Fake) SetBIOSInfo(info BIOSInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bios = info
}

func (f *Fake) ComputerSystemInfo() (ComputerSystemInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.computerSystem, nil
}

// SetComputerSystemInfo lets a test seed the reported chassis identity.
func (f *Fake) SetComputerSystemInfo(info ComputerSystemInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.computerSystem = info
}

func (f *Fake) RegistryKeyExists(path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registryKeys[path], nil
}

// SetRegistryKeyExists lets a test seed which registry keys are present.
func (f *Fake) SetRegistryKeyExists(path string, exists bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registryKeys[path] = exists
}

func (f *Fake) RoutingTableDefaultDeviceNames() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.defaultRouteDevs))
	copy(out, f.defaultRouteDevs)
	return out, nil
}

// SetDefaultRouteDevices lets a test seed which devices carry a default route.
func (f *Fake) SetDefaultRouteDevices(devices []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.defaultRouteDevs = devices
}

func (f *Fake) CPUName() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cpuName, nil
}

// SetCPUName lets a test seed the reported CPU brand string.
func (f *Fake) SetCPUName(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cpuName = name
}

var _ Adapter = (*Fake)(nil)
