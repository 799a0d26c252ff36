// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package watchdog implements the Process Watchdog (C5): a
// fixed-cadence sweep that terminates every running process except
// the agent itself, its own descendants, and a configured whitelist
// (§4.6).
package watchdog

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hacketthadwin/ExamProctor/internal/logging"
	"github.com/hacketthadwin/ExamProctor/internal/platform"
)

// Interval is the fixed enumeration cadence (§4.6, §5).
const Interval = 2 * time.Second

// KillWait bounds how long a single termination waits for exit (§5).
const KillWait = 1 * time.Second

// Watchdog is the Process Watchdog (C5).
type Watchdog struct {
	adapter         platform.Adapter
	logger          *logging.Logger
	whitelist       map[string]bool // lower-cased base names
	reservedPrefix  string
	selfPID         int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Watchdog. whitelist is consulted case-insensitively by
// exact base name; reservedPrefix exempts any process whose base name
// starts with it, regardless of whitelist membership (I5).
func New(whitelist map[string]bool, reservedPrefix string, adapter platform.Adapter, logger *logging.Logger) *Watchdog {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	return &Watchdog{
		adapter:        adapter,
		logger:         logger.WithComponent("watchdog"),
		whitelist:      whitelist,
		reservedPrefix: strings.ToLower(reservedPrefix),
		selfPID:        os.Getpid(),
	}
}

// Start begins the fixed-cadence sweep in the background.
func (w *Watchdog) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	w.wg.Add(1)
	go w.loop(ctx)
}

// Stop halts the sweep and waits for the in-flight tick to finish.
func (w *Watchdog) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *Watchdog) loop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep()
		}
	}
}

// sweep enumerates all processes and terminates every one that is not
// self, not a descendant of self, and not whitelisted (P5, I5).
func (w *Watchdog) sweep() {
	procs, err := w.adapter.ListProcesses()
	if err != nil {
		w.logger.Warn("process enumeration failed", "error", err)
		return
	}

	descendants := descendantsOf(w.selfPID, procs)

	for _, p := range procs {
		if p.PID == w.selfPID || descendants[p.PID] {
			continue
		}
		base := strings.ToLower(p.Name)
		if strings.HasPrefix(base, w.reservedPrefix) && w.reservedPrefix != "" {
			continue
		}
		if w.whitelist[base] {
			continue
		}

		if err := w.adapter.TerminateProcess(p.PID, KillWait); err != nil {
			w.logger.Debug("terminate failed, likely access-denied on a protected process", "pid", p.PID, "name", p.Name, "error", err)
		}
	}
}

// descendantsOf returns the set of PIDs transitively parented by root;
// sweep uses it to exempt the agent's own descendants.
func descendantsOf(root int, procs []platform.ProcessInfo) map[int]bool {
	childrenOf := make(map[int][]int, len(procs))
	for _, p := range procs {
		childrenOf[p.PPID] = append(childrenOf[p.PPID], p.PID)
	}

	out := make(map[int]bool)
	queue := append([]int(nil), childrenOf[root]...)
	for len(queue) > 0 {
		pid := queue[0]
		queue = queue[1:]
		if out[pid] {
			continue
		}
		out[pid] = true
		queue = append(queue, childrenOf[pid]...)
	}
	return out
}
