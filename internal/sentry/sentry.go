// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package sentry implements the VPN Sentry (C6): a fixed-cadence scan
// across four vectors -- network interfaces, services, processes, and
// the routing table -- that disrupts VPN tooling during a lockdown
// session (§4.7).
package sentry

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hacketthadwin/ExamProctor/internal/logging"
	"github.com/hacketthadwin/ExamProctor/internal/platform"
)

// Interval is the fixed scan cadence (§4.7, §5).
const Interval = 2 * time.Second

// Sentry is the VPN Sentry (C6).
type Sentry struct {
	interfaceKeywords []string
	serviceNames      []string // lower-cased
	processNames      []string // lower-cased

	adapter platform.Adapter
	logger  *logging.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Sentry over the given keyword/name lists.
func New(interfaceKeywords, serviceNames, processNames []string, adapter platform.Adapter, logger *logging.Logger) *Sentry {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	return &Sentry{
		interfaceKeywords: lowerAll(interfaceKeywords),
		serviceNames:      lowerAll(serviceNames),
		processNames:      lowerAll(processNames),
		adapter:           adapter,
		logger:            logger.WithComponent("sentry"),
	}
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

// Start begins the fixed-cadence scan in the background.
func (s *Sentry) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop halts the scan and waits for the in-flight tick to finish.
func (s *Sentry) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Sentry) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scan()
		}
	}
}

// scan runs all four vectors. Each is independently best-effort: a
// failure in one never prevents the others from running (§4.7).
func (s *Sentry) scan() {
	s.scanInterfaces()
	s.scanServices()
	s.scanProcesses()
	s.scanRoutes()
}

func (s *Sentry) scanInterfaces() {
	ifaces, err := s.adapter.ListActiveInterfaces()
	if err != nil {
		s.logger.Warn("interface enumeration failed", "error", err)
		return
	}
	for _, iface := range ifaces {
		if !iface.Up {
			continue
		}
		desc := strings.ToLower(iface.Description)
		for _, kw := range s.interfaceKeywords {
			if strings.Contains(desc, kw) {
				if err := s.adapter.DisableInterface(iface.Name); err != nil {
					s.logger.Warn("failed disabling VPN interface", "interface", iface.Name, "error", err)
				} else {
					s.logger.Info("disabled VPN interface", "interface", iface.Name, "matched", kw)
				}
				break
			}
		}
	}
}

func (s *Sentry) scanServices() {
	for _, name := range s.serviceNames {
		installed, err := s.adapter.IsServiceInstalled(name)
		if err != nil || !installed {
			continue
		}
		running, err := s.adapter.IsServiceRunning(name)
		if err != nil || !running {
			continue
		}
		if err := s.adapter.StopService(name); err != nil {
			s.logger.Warn("failed stopping VPN service", "service", name, "error", err)
		} else {
			s.logger.Info("stopped VPN service", "service", name)
		}
	}
}

func (s *Sentry) scanProcesses() {
	procs, err := s.adapter.ListProcesses()
	if err != nil {
		s.logger.Warn("process enumeration failed", "error", err)
		return
	}
	bad := make(map[string]bool, len(s.processNames))
	for _, n := range s.processNames {
		bad[n] = true
	}
	for _, p := range procs {
		if !bad[strings.ToLower(p.Name)] {
			continue
		}
		if err := s.adapter.TerminateProcess(p.PID, time.Second); err != nil {
			s.logger.Debug("failed terminating VPN process", "pid", p.PID, "name", p.Name, "error", err)
		} else {
			s.logger.Info("terminated VPN process", "pid", p.PID, "name", p.Name)
		}
	}
}

// scanRoutes is read-only: it logs any default route riding a tap/tun
// device but takes no corrective action (§4.7 vector iv).
func (s *Sentry) scanRoutes() {
	devices, err := s.adapter.RoutingTableDefaultDeviceNames()
	if err != nil {
		s.logger.Debug("routing table scan failed", "error", err)
		return
	}
	for _, dev := range devices {
		lower := strings.ToLower(dev)
		for _, kw := range s.interfaceKeywords {
			if strings.Contains(lower, kw) {
				s.logger.Warn("default route through VPN-like device", "device", dev)
				break
			}
		}
	}
}
