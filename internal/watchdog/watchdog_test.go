// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package watchdog

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hacketthadwin/ExamProctor/internal/platform"
)

func TestSweep_TerminatesUnknownProcesses(t *testing.T) {
	fake := platform.NewFake()
	self := os.Getpid()
	fake.SetProcesses([]platform.ProcessInfo{
		{PID: self, PPID: 1, Name: "agent.exe"},
		{PID: 100, PPID: 1, Name: "explorer.exe"},
		{PID: 200, PPID: 1, Name: "openvpn.exe"},
	})

	w := New(map[string]bool{"explorer.exe": true}, "Proctor_", fake, nil)
	w.sweep()

	assert.Equal(t, []int{200}, fake.Terminated())
}

func TestSweep_NeverTerminatesSelfOrDescendants(t *testing.T) {
	fake := platform.NewFake()
	self := os.Getpid()
	fake.SetProcesses([]platform.ProcessInfo{
		{PID: self, PPID: 1, Name: "agent.exe"},
		{PID: 50, PPID: self, Name: "helper.exe"},
		{PID: 60, PPID: 50, Name: "grandchild.exe"},
	})

	w := New(map[string]bool{}, "Proctor_", fake, nil)
	w.sweep()

	assert.Empty(t, fake.Terminated())
}

func TestSweep_ExemptsReservedPrefixRegardlessOfWhitelist(t *testing.T) {
	fake := platform.NewFake()
	fake.SetProcesses([]platform.ProcessInfo{
		{PID: os.Getpid(), PPID: 1, Name: "agent.exe"},
		{PID: 1000, PPID: 1, Name: "Proctor_helper.exe"},
	})

	w := New(map[string]bool{}, "proctor_", fake, nil)
	w.sweep()

	assert.Empty(t, fake.Terminated())
}

func TestSweep_WhitelistIsCaseInsensitive(t *testing.T) {
	fake := platform.NewFake()
	fake.SetProcesses([]platform.ProcessInfo{
		{PID: 1, PPID: 0, Name: "EXPLORER.EXE"},
	})

	w := New(map[string]bool{"explorer.exe": true}, "Proctor_", fake, nil)
	w.sweep()

	assert.Empty(t, fake.Terminated())
}
