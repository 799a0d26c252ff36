// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build windows

// Package platform's Windows implementation drives the Service Control
// Manager, netsh advfirewall, per-adapter DNS configuration, WMI, the
// registry, and process enumeration/termination.
package platform

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"time"

	"github.com/mitchellh/go-ps"
	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"
	"golang.org/x/sys/windows/svc/mgr"
)

// netshTimeout bounds every netsh/ipconfig subprocess invocation.
const netshTimeout = 10 * time.Second

// Windows is the real Adapter backing the agent on a Windows host.
type Windows struct{}

// New returns the real Windows Adapter.
func New() *Windows {
	return &Windows{}
}

func runNetsh(args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), netshTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "netsh", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("platform: netsh %s: %w: %s", strings.Join(args, " "), err, string(out))
	}
	return string(out), nil
}

func (w *Windows) StopService(name string) error {
	m, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("platform: connect SCM: %w", err)
	}
	defer m.Disconnect()

	svc, err := m.OpenService(name)
	if err != nil {
		return fmt.Errorf("platform: open service %s: %w", name, err)
	}
	defer svc.Close()

	if _, err := svc.Control(windows.SERVICE_CONTROL_STOP); err != nil {
		return fmt.Errorf("platform: stop service %s: %w", name, err)
	}
	return nil
}

func (w *Windows) StartService(name string) error {
	m, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("platform: connect SCM: %w", err)
	}
	defer m.Disconnect()

	svc, err := m.OpenService(name)
	if err != nil {
		return fmt.Errorf("platform: open service %s: %w", name, err)
	}
	defer svc.Close()

	if err := svc.Start(); err != nil {
		return fmt.Errorf("platform: start service %s: %w", name, err)
	}
	return nil
}

func (w *Windows) IsServiceRunning(name string) (bool, error) {
	m, err := mgr.Connect()
	if err != nil {
		return false, fmt.Errorf("platform: connect SCM: %w", err)
	}
	defer m.Disconnect()

	svc, err := m.OpenService(name)
	if err != nil {
		return false, fmt.Errorf("platform: open service %s: %w", name, err)
	}
	defer svc.Close()

	status, err := svc.Query()
	if err != nil {
		return false, fmt.Errorf("platform: query service %s: %w", name, err)
	}
	return status.State == windows.SERVICE_RUNNING, nil
}

func (w *Windows) IsServiceInstalled(name string) (bool, error) {
	m, err := mgr.Connect()
	if err != nil {
		return false, fmt.Errorf("platform: connect SCM: %w", err)
	}
	defer m.Disconnect()

	svc, err := m.OpenService(name)
	if err != nil {
		return false, nil
	}
	svc.Close()
	return true, nil
}

// ListActiveInterfaces enumerates adapters via netsh, since the adapter
// "friendly name" netsh expects for DNS reconfiguration doesn't map
// cleanly onto the stdlib net package's interface names, then fills in
// Description and MAC from Win32_NetworkAdapter so the VPN Sentry's
// interface-description vector (§4.7 vector i) and the VM Detector's
// MAC-OUI vector (§4.8) have real data to match against.
func (w *Windows) ListActiveInterfaces() ([]NetworkInterfaceInfo, error) {
	out, err := runNetsh("interface", "show", "interface")
	if err != nil {
		return nil, err
	}

	var ifaces []NetworkInterfaceInfo
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "Admin State") || strings.HasPrefix(line, "---") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		adminState, state := fields[0], fields[1]
		name := strings.Join(fields[3:], " ")
		ifaces = append(ifaces, NetworkInterfaceInfo{
			Name: name,
			Up:   strings.EqualFold(adminState, "Enabled") && strings.EqualFold(state, "Connected"),
		})
	}

	descByName, macByName, err := networkAdapterDetails()
	if err != nil {
		// Description/MAC are best-effort enrichment; a WMI failure
		// shouldn't take down DNS/firewall adapter enumeration.
		return ifaces, nil
	}
	for i := range ifaces {
		ifaces[i].Description = descByName[ifaces[i].Name]
		ifaces[i].MAC = macByName[ifaces[i].Name]
	}
	return ifaces, nil
}

// networkAdapterDetails queries Win32_NetworkAdapter for each adapter's
// driver description and MAC address, keyed by NetConnectionID (the
// same "friendly name" netsh reports, e.g. "Ethernet", "Wi-Fi").
func networkAdapterDetails() (map[string]string, map[string][]byte, error) {
	rows, err := wmiQuery(`root\cimv2`, "SELECT NetConnectionID, Description, MACAddress FROM Win32_NetworkAdapter WHERE NetConnectionID IS NOT NULL")
	if err != nil {
		return nil, nil, err
	}

	desc := make(map[string]string, len(rows))
	mac := make(map[string][]byte, len(rows))
	for _, row := range rows {
		name := wmiString(row, "NetConnectionID")
		if name == "" {
			continue
		}
		desc[name] = wmiString(row, "Description")
		if macStr := wmiString(row, "MACAddress"); macStr != "" {
			if hw, err := net.ParseMAC(macStr); err == nil {
				mac[name] = hw
			}
		}
	}
	return desc, mac, nil
}

func (w *Windows) GetAdapterDNS(adapterName string) ([]string, error) {
	out, err := runNetsh("interface", "ip", "show", "dns", "name="+adapterName)
	if err != nil {
		return nil, err
	}

	var servers []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if strings.Contains(strings.ToLower(line), "dhcp") {
			return nil, nil // DHCP, no static override to capture
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		last := fields[len(fields)-1]
		if strings.Count(last, ".") == 3 {
			servers = append(servers, last)
		}
	}
	return servers, nil
}

func (w *Windows) SetAdapterDNS(adapterName string, servers []string) error {
	if len(servers) == 0 {
		_, err := runNetsh("interface", "ip", "set", "dns", "name="+adapterName, "source=dhcp")
		return err
	}

	if _, err := runNetsh("interface", "ip", "set", "dns", "name="+adapterName, "source=static", "addr="+servers[0], "register=none"); err != nil {
		return err
	}
	for _, s := range servers[1:] {
		if _, err := runNetsh("interface", "ip", "add", "dns", "name="+adapterName, "addr="+s); err != nil {
			return err
		}
	}
	return nil
}

func (w *Windows) FlushDNSCache() error {
	ctx, cancel := context.WithTimeout(context.Background(), netshTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "ipconfig", "/flushdns")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("platform: ipconfig /flushdns: %w: %s", err, string(out))
	}
	return nil
}

func (w *Windows) DisableInterface(name string) error {
	_, err := runNetsh("interface", "set", "interface", "name="+name, "admin=disabled")
	return err
}

func (w *Windows) AddFirewallRule(rule FirewallRule) error {
	args := []string{"advfirewall", "firewall", "add", "rule",
		"name=" + rule.Name,
		"dir=" + rule.Direction,
		"action=" + rule.Action,
	}
	if rule.Protocol != "" && !strings.EqualFold(rule.Protocol, "any") {
		args = append(args, "protocol="+rule.Protocol)
	}
	if rule.LocalPort != "" {
		args = append(args, "localport="+rule.LocalPort)
	}
	if rule.RemotePort != "" {
		args = append(args, "remoteport="+rule.RemotePort)
	}
	if rule.RemoteAddress != "" {
		args = append(args, "remoteip="+rule.RemoteAddress)
	}
	if rule.Program != "" {
		args = append(args, "program="+rule.Program)
	}
	_, err := runNetsh(args...)
	return err
}

func (w *Windows) DeleteFirewallRule(name string) error {
	_, err := runNetsh("advfirewall", "firewall", "delete", "rule", "name="+name)
	return err
}

func (w *Windows) ListFirewallRuleNames(prefix string) ([]string, error) {
	out, err := runNetsh("advfirewall", "firewall", "show", "rule", "name=all")
	if err != nil {
		return nil, err
	}

	var names []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "Rule Name:") {
			continue
		}
		name := strings.TrimSpace(strings.TrimPrefix(line, "Rule Name:"))
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	return names, nil
}

func (w *Windows) RuleExists(name string) (bool, error) {
	_, err := runNetsh("advfirewall", "firewall", "show", "rule", "name="+name)
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (w *Windows) SetDefaultOutboundPolicy(blockOutbound bool) error {
	policy := "allowoutbound"
	if blockOutbound {
		policy = "blockoutbound"
	}
	_, err := runNetsh("advfirewall", "set", "allprofiles", "firewallpolicy", "blockinbound,"+policy)
	return err
}

func (w *Windows) ListProcesses() ([]ProcessInfo, error) {
	procs, err := ps.Processes()
	if err != nil {
		return nil, fmt.Errorf("platform: enumerate processes: %w", err)
	}

	out := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		out = append(out, ProcessInfo{
			PID:  p.Pid(),
			PPID: p.PPid(),
			Name: p.Executable(),
		})
	}
	return out, nil
}

// TerminateProcess opens the process with PROCESS_TERMINATE, terminates
// it, and waits up to `wait` for the handle to signal. Errors, including
// access-denied on an OS-protected process, are wrapped with %w so the
// underlying Windows error stays inspectable via errors.Is (I5, §4.6).
func (w *Windows) TerminateProcess(pid int, wait time.Duration) error {
	h, err := windows.OpenProcess(windows.PROCESS_TERMINATE|windows.SYNCHRONIZE, false, uint32(pid))
	if err != nil {
		return fmt.Errorf("platform: open process %d: %w", pid, err)
	}
	defer windows.CloseHandle(h)

	if err := windows.TerminateProcess(h, 1); err != nil {
		return fmt.Errorf("platform: terminate process %d: %w", pid, err)
	}

	waitMs := uint32(wait.Milliseconds())
	windows.WaitForSingleObject(h, waitMs)
	return nil
}

// RoutingTableDefaultDeviceNames parses `route print` for the
// interface index(es) carrying a 0.0.0.0/0.0.0.0 default route, then
// resolves those indexes to adapter names via netsh. Read-only (§4.7).
func (w *Windows) RoutingTableDefaultDeviceNames() ([]string, error) {
	out, err := exec.Command("route", "print", "-4").CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("platform: route print: %w: %s", err, string(out))
	}

	indexes := map[string]bool{}
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) < 5 || fields[0] != "0.0.0.0" || fields[1] != "0.0.0.0" {
			continue
		}
		indexes[fields[len(fields)-1]] = true
	}
	if len(indexes) == 0 {
		return nil, nil
	}

	ifaceOut, err := runNetsh("interface", "ipv4", "show", "interfaces")
	if err != nil {
		return nil, err
	}

	var names []string
	for _, line := range strings.Split(ifaceOut, "\n") {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) < 5 {
			continue
		}
		if indexes[fields[0]] {
			names = append(names, strings.Join(fields[4:], " "))
		}
	}
	return names, nil
}

func (w *Windows) BIOSInfo() (BIOSInfo, error) {
	rows, err := wmiQuery(`root\cimv2`, "SELECT Manufacturer, Version FROM Win32_BIOS")
	if err != nil {
		return BIOSInfo{}, err
	}
	if len(rows) == 0 {
		return BIOSInfo{}, nil
	}
	return BIOSInfo{
		Manufacturer: wmiString(rows[0], "Manufacturer"),
		Version:      wmiString(rows[0], "Version"),
	}, nil
}

func (w *Windows) ComputerSystemInfo() (ComputerSystemInfo, error) {
	rows, err := wmiQuery(`root\cimv2`, "SELECT Manufacturer, Model, HypervisorPresent FROM Win32_ComputerSystem")
	if err != nil {
		return ComputerSystemInfo{}, err
	}
	if len(rows) == 0 {
		return ComputerSystemInfo{}, nil
	}
	return ComputerSystemInfo{
		Manufacturer:      wmiString(rows[0], "Manufacturer"),
		Model:             wmiString(rows[0], "Model"),
		HypervisorPresent: wmiBool(rows[0], "HypervisorPresent"),
	}, nil
}

func (w *Windows) RegistryKeyExists(path string) (bool, error) {
	k, err := registry.OpenKey(registry.LOCAL_MACHINE, path, registry.QUERY_VALUE)
	if err == nil {
		k.Close()
		return true, nil
	}
	// Fall back to the WMI StdRegProv path, which works from contexts
	// (e.g. a locked-down service token) where a direct handle open
	// can be denied even though the key exists.
	return registryKeyExistsWMI(hkeyLocalMachine, path)
}

func (w *Windows) CPUName() (string, error) {
	k, err := registry.OpenKey(registry.LOCAL_MACHINE, `HARDWARE\DESCRIPTION\System\CentralProcessor\0`, registry.QUERY_VALUE)
	if err != nil {
		return "", fmt.Errorf("platform: open CPU registry key: %w", err)
	}
	defer k.Close()

	name, _, err := k.GetStringValue("ProcessorNameString")
	if err != nil {
		return "", fmt.Errorf("platform: read ProcessorNameString: %w", err)
	}
	return strings.TrimSpace(name), nil
}

var _ Adapter = (*Windows)(nil)
