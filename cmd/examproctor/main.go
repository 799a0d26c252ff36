// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command examproctor is the lockdown agent's Windows service binary.
// Launched by the Service Control Manager with no positional arguments
// beyond what svc.Run requires (§6); it wires the Platform Adapter,
// every subsystem, and the Lockdown Coordinator, then serves the IPC
// Command Endpoint for the life of the process.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/hacketthadwin/ExamProctor/internal/allowlist"
	"github.com/hacketthadwin/ExamProctor/internal/config"
	"github.com/hacketthadwin/ExamProctor/internal/coordinator"
	"github.com/hacketthadwin/ExamProctor/internal/dnsfilter"
	"github.com/hacketthadwin/ExamProctor/internal/firewall"
	"github.com/hacketthadwin/ExamProctor/internal/ipc"
	"github.com/hacketthadwin/ExamProctor/internal/logging"
	"github.com/hacketthadwin/ExamProctor/internal/platform"
	"github.com/hacketthadwin/ExamProctor/internal/sentry"
	"github.com/hacketthadwin/ExamProctor/internal/service"
	"github.com/hacketthadwin/ExamProctor/internal/supervisor"
	"github.com/hacketthadwin/ExamProctor/internal/watchdog"
)

// defaultConfigPath is where the surrounding installer places the
// deployment configuration (§6: install/start/stop/uninstall are the
// installer's responsibility, out of scope here).
const defaultConfigPath = `C:\ProgramData\ExamProctor\agent.hcl`

// defaultStateDir holds the supervisor's crash-counter state (§6, §10).
const defaultStateDir = `C:\ProgramData\ExamProctor\state`

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to the agent's HCL configuration file")
	flag.Parse()

	logger := logging.New(logging.DefaultConfig())

	exitCode := run(*configPath, logger)
	os.Exit(exitCode)
}

// run wires the agent and blocks for the life of the process. It
// returns the process exit code: 0 for a clean stop, non-zero for a
// fatal initialization failure (§6).
func run(configPath string, logger *logging.Logger) int {
	sup := supervisor.New(defaultStateDir, supervisor.DefaultConfig())
	skipCrashDetection := supervisor.ShouldSkipDetection()

	if !skipCrashDetection && sup.ShouldEnterSafeMode() {
		logger.Error("too many recent crashes, entering safe mode and refusing to start")
		return 1
	}

	agent, err := buildAgent(configPath, logger)
	if err != nil {
		logger.Error("agent initialization failed", "error", err)
		if !skipCrashDetection {
			_ = sup.RecordExit(1, false, false)
		}
		return 1
	}

	var requested bool
	runFunc := func(ctx context.Context) error {
		return agent.run(ctx, &requested)
	}

	var runErr error
	if service.IsWindowsService() {
		handler := &service.AgentService{RunFunc: runFunc, Logger: logger}
		runErr = service.Run(handler)
	} else {
		// Interactive console session: run directly until Ctrl-C
		// cancels ctx, standing in for the SCM stop request.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		runErr = runFunc(ctx)
		stop()
	}

	if !skipCrashDetection {
		exitCode := 0
		if runErr != nil {
			exitCode = 1
		}
		if recErr := sup.RecordExit(exitCode, requested, false); recErr != nil {
			logger.Warn("failed persisting supervisor state", "error", recErr)
		} else {
			sup.StartStabilityTimer()
		}
	}

	if runErr != nil {
		logger.Error("agent exited with error", "error", runErr)
		return 1
	}
	return 0
}

// agent bundles every subsystem the Coordinator composes.
type agent struct {
	coordinator *coordinator.Coordinator
	endpoint    *ipc.Endpoint
	tag         string
	logger      *logging.Logger
}

// buildAgent loads configuration and constructs every subsystem
// against the real Platform Adapter.
func buildAgent(configPath string, logger *logging.Logger) (*agent, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	adapter := platform.New()

	selfPath, err := os.Executable()
	if err != nil {
		selfPath = ""
	} else {
		selfPath = filepath.Clean(selfPath)
	}

	dnsFilter := dnsfilter.New(cfg.DNS.AllowDomains, cfg.DNS.Upstream, logger)
	fw := firewall.New(cfg.Tag, cfg.Firewall.EssentialHosts, selfPath, adapter, logger)
	al := allowlist.New(cfg.Allowlist.TargetDomains, cfg.Allowlist.RefreshInterval(), nil, fw, logger)
	wd := watchdog.New(cfg.ProcessWhitelist(), cfg.Tag+"_", adapter, logger)
	sn := sentry.New(cfg.Sentry.InterfaceKeywords, cfg.Sentry.ServiceNames, cfg.Sentry.ProcessNames, adapter, logger)

	coord := coordinator.New(adapter, dnsFilter, fw, al, wd, sn, logger)
	endpoint := ipc.New(coord, logger)

	return &agent{coordinator: coord, endpoint: endpoint, tag: cfg.Tag, logger: logger.WithComponent("agent")}, nil
}

// run performs startup crash-recovery cleanup, starts the IPC
// endpoint, and blocks until ctx is cancelled (by the SCM or an
// interactive interrupt), then gracefully stops.
func (a *agent) run(ctx context.Context, requestedOut *bool) error {
	a.coordinator.StartupCleanup(ctx)

	if err := a.endpoint.Start(a.tag); err != nil {
		return fmt.Errorf("start IPC endpoint: %w", err)
	}

	<-ctx.Done()
	*requestedOut = true

	if a.coordinator.State() != coordinator.StateInactive {
		a.logger.Info("shutdown requested while lockdown active, running exit sequence")
		a.coordinator.Dispatch(context.Background(), ipc.CmdExit)
	}

	return a.endpoint.Stop()
}
