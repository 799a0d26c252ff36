// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build windows

// Package service integrates the agent with the Windows Service
// Control Manager: it runs RunFunc under svc.Run, translating SCM stop
// and shutdown requests into context cancellation and waiting for a
// graceful exit before reporting back to the SCM.
package service

import (
	"context"
	"time"

	"golang.org/x/sys/windows/svc"

	"github.com/hacketthadwin/ExamProctor/internal/logging"
)

// Name is the Windows service name the agent registers under.
const Name = "ExamProctorAgent"

// StopTimeout bounds how long Execute waits for RunFunc to return after
// a stop/shutdown request before reporting back to the SCM anyway (§5).
const StopTimeout = 10 * time.Second

// AgentService implements svc.Handler, driving RunFunc's lifecycle from
// SCM change requests.
type AgentService struct {
	RunFunc func(ctx context.Context) error
	Logger  *logging.Logger
}

// Execute is invoked by the SCM once the service starts.
func (s *AgentService) Execute(args []string, r <-chan svc.ChangeRequest, changes chan<- svc.Status) (ssec bool, errno uint32) {
	const cmdsAccepted = svc.AcceptStop | svc.AcceptShutdown

	logger := s.Logger
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	logger = logger.WithComponent("service")

	changes <- svc.Status{State: svc.StartPending}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.RunFunc(ctx)
	}()

	changes <- svc.Status{State: svc.Running, Accepts: cmdsAccepted}
	logger.Info("service running")

	for {
		select {
		case c := <-r:
			switch c.Cmd {
			case svc.Interrogate:
				changes <- c.CurrentStatus
			case svc.Stop, svc.Shutdown:
				logger.Info("SCM requested stop", "cmd", c.Cmd)
				changes <- svc.Status{State: svc.StopPending}
				cancel()
				select {
				case <-errCh:
				case <-time.After(StopTimeout):
					logger.Warn("graceful shutdown timed out", "timeout", StopTimeout)
				}
				return false, 0
			}
		case err := <-errCh:
			if err != nil {
				logger.Error("agent exited with error", "error", err)
				return false, 1
			}
			return false, 0
		}
	}
}

// IsWindowsService reports whether the process was launched by the SCM.
func IsWindowsService() bool {
	inService, err := svc.IsWindowsService()
	if err != nil {
		return false
	}
	return inService
}

// Run starts handler under SCM control, blocking until the SCM stops it.
func Run(handler *AgentService) error {
	return svc.Run(Name, handler)
}
