// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !windows
// +build !windows

package service

import (
	"context"
	"fmt"

	"github.com/hacketthadwin/ExamProctor/internal/logging"
)

// Name is the Windows service name the agent registers under.
const Name = "ExamProctorAgent"

// AgentService mirrors the Windows type so cmd/examproctor compiles on
// every platform; the agent's real target is always Windows (§1).
type AgentService struct {
	RunFunc func(ctx context.Context) error
	Logger  *logging.Logger
}

// IsWindowsService always returns false outside Windows.
func IsWindowsService() bool { return false }

// Run is unsupported outside Windows; callers should use RunFunc
// directly (e.g. for interactive/console operation) instead.
func Run(handler *AgentService) error {
	return fmt.Errorf("service: Windows Service Control Manager integration is not available on this OS")
}
