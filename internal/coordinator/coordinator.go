// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package coordinator implements the Lockdown Coordinator (C9): the
// state machine driving the enter/exit sequence across every other
// subsystem (§4.2). It is the sole mutator of lockdown state and the
// single point where C1-C8 are composed.
package coordinator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hacketthadwin/ExamProctor/internal/ipc"
	"github.com/hacketthadwin/ExamProctor/internal/logging"
	"github.com/hacketthadwin/ExamProctor/internal/platform"
	"github.com/hacketthadwin/ExamProctor/internal/vmdetect"
)

// DNSFilter is the C2 surface the Coordinator drives. *dnsfilter.Filter
// satisfies this.
type DNSFilter interface {
	Start() error
	Stop() error
}

// FirewallController is the C3 surface the Coordinator drives.
// *firewall.Controller satisfies this.
type FirewallController interface {
	EnableLockdown() error
	DisableLockdown() error
	IsLockdownActive() bool
}

// AllowlistManager is the C4 surface the Coordinator drives.
// *allowlist.Manager satisfies this.
type AllowlistManager interface {
	Start(ctx context.Context) error
	Stop()
}

// Worker is the shared start/stop surface of C5 (Process Watchdog) and
// C6 (VPN Sentry); both *watchdog.Watchdog and *sentry.Sentry satisfy it.
type Worker interface {
	Start()
	Stop()
}

// State is one of the four Lockdown Coordinator states.
type State int

const (
	StateInactive State = iota
	StateEntering
	StateActive
	StateExiting
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateEntering:
		return "entering"
	case StateActive:
		return "active"
	case StateExiting:
		return "exiting"
	default:
		return "unknown"
	}
}

// dnsServiceName is the Windows DNS Client service, stopped around the
// UDP/53 bind when it is already holding the port (§4.2 step 1, §7).
const dnsServiceName = "Dnscache"

// Coordinator owns every other subsystem by composition and is the
// only component that mutates lockdown state.
type Coordinator struct {
	adapter   platform.Adapter
	dnsFilter DNSFilter
	firewall  FirewallController
	allowlist AllowlistManager
	watchdog  Worker
	sentry    Worker
	logger    *logging.Logger

	mu                    sync.Mutex
	state                 State
	originalDNS           map[string][]string // adapter name -> captured servers, nil means DHCP
	dnsServiceStoppedByUs bool
}

// New builds a Coordinator composing every subsystem. adapter is held
// directly for the enter/exit sequence's adapter-DNS and service
// steps; the subsystem values are expected to already be wired to the
// same adapter.
func New(adapter platform.Adapter, dnsFilter DNSFilter, fw FirewallController, al AllowlistManager, wd, sn Worker, logger *logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	return &Coordinator{
		adapter:   adapter,
		dnsFilter: dnsFilter,
		firewall:  fw,
		allowlist: al,
		watchdog:  wd,
		sentry:    sn,
		logger:    logger.WithComponent("coordinator"),
		state:     StateInactive,
	}
}

// State returns the coordinator's current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

var _ ipc.Dispatcher = (*Coordinator)(nil)

// Dispatch executes one command to completion and returns the reply
// the IPC endpoint should send (§4.1, §4.2).
func (c *Coordinator) Dispatch(ctx context.Context, cmd ipc.Command) ipc.Response {
	c.mu.Lock()

	switch c.state {
	case StateEntering, StateExiting:
		c.mu.Unlock()
		c.logger.Warn("rejecting command during transition", "command", string(cmd), "state", c.state.String())
		return ipc.RespError

	case StateInactive:
		switch cmd {
		case ipc.CmdEnter:
			c.state = StateEntering
			c.mu.Unlock()
			return c.runEnter(ctx)
		case ipc.CmdExit:
			c.mu.Unlock()
			return ipc.RespOK // already inactive, idempotent no-op
		case ipc.CmdStatus, ipc.CmdRefresh:
			c.mu.Unlock()
			return ipc.RespOK
		}

	case StateActive:
		switch cmd {
		case ipc.CmdExit:
			c.state = StateExiting
			c.mu.Unlock()
			return c.runExit(ctx)
		case ipc.CmdEnter:
			c.mu.Unlock()
			return ipc.RespOK // already active, idempotent no-op (§8 scenario 6)
		case ipc.CmdRefresh:
			c.mu.Unlock()
			if err := c.allowlist.Start(ctx); err != nil {
				c.logger.Warn("refresh failed", "error", err)
			}
			return ipc.RespOK
		case ipc.CmdStatus:
			c.mu.Unlock()
			return ipc.RespOK
		}
	}

	c.mu.Unlock()
	return ipc.RespError
}

// runEnter executes the enter sequence (§4.2). On any step's failure
// it runs the full exit sequence to leave no partial lockdown state,
// then replies ERROR.
func (c *Coordinator) runEnter(ctx context.Context) ipc.Response {
	if err := c.enter(ctx); err != nil {
		c.logger.Error("enter sequence failed, rolling back", "error", err)
		c.teardown(ctx)
		c.mu.Lock()
		c.state = StateInactive
		c.mu.Unlock()
		return ipc.RespError
	}

	c.mu.Lock()
	c.state = StateActive
	c.mu.Unlock()
	return ipc.RespOK
}

// runExit executes the exit sequence. Every step is best-effort; the
// state machine always reaches Inactive and the reply is always OK
// (§4.2, §7).
func (c *Coordinator) runExit(ctx context.Context) ipc.Response {
	c.teardown(ctx)
	c.mu.Lock()
	c.state = StateInactive
	c.mu.Unlock()
	return ipc.RespOK
}

// enter runs the six-step enter sequence in strict order, each step
// logged, aborting on the first failure. VM detection (C7) runs first,
// for reporting only: it never blocks or fails the sequence (§4.8).
func (c *Coordinator) enter(ctx context.Context) error {
	c.reportVMDetection()

	c.logger.Info("enter: starting DNS filter")
	if err := c.startDNSFilterWithRetry(); err != nil {
		return fmt.Errorf("coordinator: start DNS filter: %w", err)
	}

	c.logger.Info("enter: pinning adapter DNS to loopback")
	if err := c.pinAdapterDNS(); err != nil {
		return fmt.Errorf("coordinator: pin adapter DNS: %w", err)
	}

	c.logger.Info("enter: flushing DNS cache")
	if err := c.adapter.FlushDNSCache(); err != nil {
		return fmt.Errorf("coordinator: flush DNS cache: %w", err)
	}

	c.logger.Info("enter: enabling firewall lockdown")
	if err := c.firewall.EnableLockdown(); err != nil {
		return fmt.Errorf("coordinator: enable lockdown: %w", err)
	}

	c.logger.Info("enter: starting IP allowlist resolver")
	if err := c.allowlist.Start(ctx); err != nil {
		return fmt.Errorf("coordinator: start allowlist resolver: %w", err)
	}

	c.logger.Info("enter: starting process watchdog and VPN sentry")
	c.watchdog.Start()
	c.sentry.Start()

	return nil
}

// reportVMDetection runs the VM Detector once and logs its result. Pure
// observation: the outcome is never used to block entry or terminate
// anything (§4.8).
func (c *Coordinator) reportVMDetection() {
	result := vmdetect.Detect(c.adapter, c.logger)
	if result.IsVM {
		c.logger.Warn("exam host appears to be a virtual machine",
			"bios_match", result.BIOSMatch,
			"computer_system_match", result.ComputerSysMatch,
			"hypervisor_flag", result.HypervisorFlag,
			"vm_tool_process", result.VMToolProcess,
			"vendor_registry", result.VendorRegistry,
			"mac_prefix", result.MACPrefix,
			"cpu_name_match", result.CPUNameMatch,
		)
	}
}

// startDNSFilterWithRetry binds UDP/53, first stopping the Windows DNS
// Client service if it already holds the port (§4.2 step 1, §7).
func (c *Coordinator) startDNSFilterWithRetry() error {
	err := c.dnsFilter.Start()
	if err == nil {
		return nil
	}

	running, svcErr := c.adapter.IsServiceRunning(dnsServiceName)
	if svcErr != nil || !running {
		return err
	}

	c.logger.Warn("port 53 contention, stopping Windows DNS Client service and retrying", "error", err)
	if stopErr := c.adapter.StopService(dnsServiceName); stopErr != nil {
		return fmt.Errorf("%w (stop %s also failed: %v)", err, dnsServiceName, stopErr)
	}
	c.dnsServiceStoppedByUs = true

	return c.dnsFilter.Start()
}

// pinAdapterDNS captures every active adapter's current DNS servers
// and repoints them at the loopback filter. An adapter is pinned even
// when its original servers can't be read, so I2 (DNS coherence) holds
// regardless of a read failure on any one adapter; such an adapter is
// recorded with a nil (DHCP) entry instead of its true prior servers,
// so exit still restores it to a usable state rather than leaving it
// pinned to loopback forever.
func (c *Coordinator) pinAdapterDNS() error {
	ifaces, err := c.adapter.ListActiveInterfaces()
	if err != nil {
		return err
	}

	c.originalDNS = make(map[string][]string, len(ifaces))
	for _, iface := range ifaces {
		servers, err := c.adapter.GetAdapterDNS(iface.Name)
		if err != nil {
			c.logger.Warn("failed capturing adapter DNS, pinning with DHCP fallback on restore", "adapter", iface.Name, "error", err)
			servers = nil
		}
		c.originalDNS[iface.Name] = servers

		if err := c.adapter.SetAdapterDNS(iface.Name, []string{"127.0.0.1"}); err != nil {
			return fmt.Errorf("adapter %s: %w", iface.Name, err)
		}
	}
	return nil
}

// teardown runs the five-step exit sequence (reverse of enter),
// aggregating but never aborting on a step's failure.
func (c *Coordinator) teardown(ctx context.Context) {
	var failures []string

	c.logger.Info("exit: stopping VPN sentry, process watchdog, allowlist resolver")
	c.sentry.Stop()
	c.watchdog.Stop()
	c.allowlist.Stop()

	c.logger.Info("exit: disabling firewall lockdown")
	if err := c.firewall.DisableLockdown(); err != nil {
		failures = append(failures, err.Error())
	}

	c.logger.Info("exit: restoring adapter DNS")
	for name, servers := range c.originalDNS {
		if err := c.adapter.SetAdapterDNS(name, servers); err != nil {
			failures = append(failures, fmt.Sprintf("restore DNS for %s: %v", name, err))
		}
	}
	c.originalDNS = nil

	c.logger.Info("exit: flushing DNS cache")
	if err := c.adapter.FlushDNSCache(); err != nil {
		failures = append(failures, err.Error())
	}

	c.logger.Info("exit: stopping DNS filter")
	if err := c.dnsFilter.Stop(); err != nil {
		failures = append(failures, err.Error())
	}

	if c.dnsServiceStoppedByUs {
		if err := c.adapter.StartService(dnsServiceName); err != nil {
			failures = append(failures, err.Error())
		}
		c.dnsServiceStoppedByUs = false
	}

	if len(failures) > 0 {
		c.logger.Warn("exit sequence completed with partial failures", "failures", strings.Join(failures, "; "))
	}
}

// IsLockdownActive reports the firewall's view of lockdown state,
// independent of the coordinator's in-memory state machine. It is the
// same marker-rule check StartupCleanup uses to detect a
// crash-then-restart (§4.2/I4/P7).
func (c *Coordinator) IsLockdownActive() bool {
	return c.firewall.IsLockdownActive()
}

// StartupCleanup performs idempotent recovery after a crash that left
// lockdown state installed without a graceful EXIT: it tears down
// everything a prior lockdown might have left behind before the
// Coordinator accepts its first command (P7).
func (c *Coordinator) StartupCleanup(ctx context.Context) {
	if !c.firewall.IsLockdownActive() {
		return
	}
	c.logger.Warn("lockdown marker rule present at startup, running recovery teardown")
	c.teardown(ctx)
}
