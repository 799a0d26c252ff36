// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package vmdetect implements the VM Detector (C7): a one-shot
// heuristic combining BIOS/chassis identity, hypervisor presence,
// known VM-tool processes, vendor registry keys, MAC OUI prefixes, and
// CPU name substrings. Pure observation -- it never terminates
// anything (§4.8).
package vmdetect

import (
	"strings"

	"github.com/hacketthadwin/ExamProctor/internal/logging"
	"github.com/hacketthadwin/ExamProctor/internal/netutil"
	"github.com/hacketthadwin/ExamProctor/internal/platform"
)

var biosSubstrings = []string{"vmware", "virtualbox", "qemu", "virtual machine", "kvm", "xen", "parallels", "innotek"}

var vmToolProcesses = []string{"vboxservice.exe", "vmtoolsd.exe", "qemu-ga.exe"}

var vendorRegistryKeys = []string{
	`SOFTWARE\Oracle\VirtualBox Guest Additions`,
	`SOFTWARE\VMware, Inc.\VMware Tools`,
}

// vmMACPrefixes maps well-known VM NIC OUI prefixes to the hypervisor
// that issues them.
var vmMACPrefixes = map[string]string{
	"08:00:27": "VirtualBox",
	"00:05:69": "VMware",
	"00:0c:29": "VMware",
	"00:1c:14": "VMware",
	"00:50:56": "VMware",
	"00:15:5d": "Hyper-V",
	"52:54:00": "QEMU/KVM",
}

var cpuSubstrings = []string{"virtual cpu", "hypervisor"}

// Result records which vectors fired, so a caller that only needs the
// boolean can still log why.
type Result struct {
	IsVM             bool
	BIOSMatch        bool
	ComputerSysMatch bool
	HypervisorFlag   bool
	VMToolProcess    bool
	VendorRegistry   bool
	MACPrefix        bool
	CPUNameMatch     bool
}

// Detect runs every vector once against adapter and returns the
// combined result.
func Detect(adapter platform.Adapter, logger *logging.Logger) Result {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	logger = logger.WithComponent("vmdetect")

	var r Result

	if bios, err := adapter.BIOSInfo(); err != nil {
		logger.Debug("BIOS query failed", "error", err)
	} else {
		r.BIOSMatch = containsAny(bios.Manufacturer, biosSubstrings) || containsAny(bios.Version, biosSubstrings)
	}

	if sys, err := adapter.ComputerSystemInfo(); err != nil {
		logger.Debug("computer-system query failed", "error", err)
	} else {
		r.ComputerSysMatch = containsAny(sys.Manufacturer, biosSubstrings) || containsAny(sys.Model, biosSubstrings)
		r.HypervisorFlag = sys.HypervisorPresent
	}

	if procs, err := adapter.ListProcesses(); err != nil {
		logger.Debug("process enumeration failed", "error", err)
	} else {
		known := make(map[string]bool, len(vmToolProcesses))
		for _, p := range vmToolProcesses {
			known[p] = true
		}
		for _, p := range procs {
			if known[strings.ToLower(p.Name)] {
				r.VMToolProcess = true
				break
			}
		}
	}

	for _, key := range vendorRegistryKeys {
		exists, err := adapter.RegistryKeyExists(key)
		if err != nil {
			logger.Debug("registry query failed", "key", key, "error", err)
			continue
		}
		if exists {
			r.VendorRegistry = true
			break
		}
	}

	if ifaces, err := adapter.ListActiveInterfaces(); err != nil {
		logger.Debug("interface enumeration failed", "error", err)
	} else {
		for _, iface := range ifaces {
			if macMatchesVMVendor(iface.MAC) {
				r.MACPrefix = true
				break
			}
		}
	}

	if cpu, err := adapter.CPUName(); err != nil {
		logger.Debug("CPU name query failed", "error", err)
	} else {
		r.CPUNameMatch = containsAny(cpu, cpuSubstrings)
	}

	r.IsVM = r.BIOSMatch || r.ComputerSysMatch || r.HypervisorFlag || r.VMToolProcess || r.VendorRegistry || r.MACPrefix || r.CPUNameMatch

	logger.Info("VM detection complete", "is_vm", r.IsVM)
	return r
}

func containsAny(s string, substrings []string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrings {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

func macMatchesVMVendor(mac []byte) bool {
	oui := netutil.OUI(mac)
	if oui == "" {
		return false
	}
	_, ok := vmMACPrefixes[oui]
	return ok
}
