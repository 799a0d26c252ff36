// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package vmdetect

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hacketthadwin/ExamProctor/internal/platform"
)

func TestDetect_BareMetalReturnsFalse(t *testing.T) {
	fake := platform.NewFake()
	fake.SetBIOSInfo(platform.BIOSInfo{Manufacturer: "American Megatrends Inc.", Version: "F31"})
	fake.SetComputerSystemInfo(platform.ComputerSystemInfo{Manufacturer: "ASUSTeK COMPUTER INC.", Model: "ROG STRIX B550-F"})

	r := Detect(fake, nil)
	assert.False(t, r.IsVM)
}

func TestDetect_BIOSManufacturerMatch(t *testing.T) {
	fake := platform.NewFake()
	fake.SetBIOSInfo(platform.BIOSInfo{Manufacturer: "innotek GmbH", Version: "VirtualBox"})

	r := Detect(fake, nil)
	assert.True(t, r.IsVM)
	assert.True(t, r.BIOSMatch)
}

func TestDetect_HypervisorPresentFlag(t *testing.T) {
	fake := platform.NewFake()
	fake.SetComputerSystemInfo(platform.ComputerSystemInfo{HypervisorPresent: true})

	r := Detect(fake, nil)
	assert.True(t, r.IsVM)
	assert.True(t, r.HypervisorFlag)
}

func TestDetect_VMToolProcess(t *testing.T) {
	fake := platform.NewFake()
	fake.SetProcesses([]platform.ProcessInfo{{PID: 1, Name: "vmtoolsd.exe"}})

	r := Detect(fake, nil)
	assert.True(t, r.IsVM)
	assert.True(t, r.VMToolProcess)
}

func TestDetect_VendorRegistryKey(t *testing.T) {
	fake := platform.NewFake()
	fake.SetRegistryKeyExists(`SOFTWARE\VMware, Inc.\VMware Tools`, true)

	r := Detect(fake, nil)
	assert.True(t, r.IsVM)
	assert.True(t, r.VendorRegistry)
}

func TestDetect_MACPrefixMatch(t *testing.T) {
	fake := platform.NewFake()
	fake.SetInterfaces([]platform.NetworkInterfaceInfo{
		{Name: "eth0", MAC: []byte{0x08, 0x00, 0x27, 0x11, 0x22, 0x33}},
	})

	r := Detect(fake, nil)
	assert.True(t, r.IsVM)
	assert.True(t, r.MACPrefix)
}

func TestDetect_CPUNameMatch(t *testing.T) {
	fake := platform.NewFake()
	fake.SetCPUName("Common KVM processor")
	fake.SetCPUName("QEMU Virtual CPU version 2.5+")

	r := Detect(fake, nil)
	assert.True(t, r.IsVM)
	assert.True(t, r.CPUNameMatch)
}
