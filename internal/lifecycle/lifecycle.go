// Package lifecycle owns the daemon's startup handshake bookkeeping and
// its bounded shutdown: a shared termination flag, an ordered list of
// cleanup hooks, and the watchdog subprocess that guarantees the process
// exits within a fixed wall-clock bound even if a cleanup hook hangs.
package lifecycle

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/logger"
)

// WatchdogDelay is how long Shutdown waits for a clean exit before the
// watchdog subprocess sends SIGKILL.
const WatchdogDelay = 5 * time.Second

// ExitClean and ExitStartupFailure are the daemon's only two exit codes.
const (
	ExitClean          = 0
	ExitStartupFailure = 1
)

// Manager tracks whether the daemon is terminating and runs the ordered
// shutdown sequence exactly once.
type Manager struct {
	mu          sync.Mutex
	terminating bool
	hooks       []func()
}

// New returns a Manager in the running state.
func New() *Manager {
	return &Manager{}
}

// Terminating reports whether Shutdown has been called. The serve
// command's scheduled frame-copy callback checks this so that no new frame
// copy starts once termination has begun.
func (m *Manager) Terminating() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.terminating
}

// OnShutdown registers a cleanup function to run, in registration order,
// when Shutdown is first called. Typical registration order is portal,
// then session manager, then reactor, then compositor/media connections,
// mirroring teardown in the reverse of startup order.
func (m *Manager) OnShutdown(fn func()) {
	m.mu.Lock()
	m.hooks = append(m.hooks, fn)
	m.mu.Unlock()
}

// Shutdown flips the termination flag, arms the watchdog subprocess, and
// runs every registered hook in order. It is idempotent: a second call
// while the first is still running or has already finished is a no-op.
func (m *Manager) Shutdown(reason string) {
	m.mu.Lock()
	if m.terminating {
		m.mu.Unlock()
		return
	}
	m.terminating = true
	hooks := append([]func(){}, m.hooks...)
	m.mu.Unlock()

	log := logger.WithComponent("lifecycle")
	log.Warn().Str("reason", reason).Msg("shutting down")

	stopWatchdog := armWatchdog()
	defer stopWatchdog()

	for _, hook := range hooks {
		hook()
	}

	log.Info().Msg("shutdown complete")
}

// armWatchdog spawns a detached "sleep 5 && kill -9 $PID" subprocess so
// the daemon exits within WatchdogDelay regardless of what a cleanup
// hook, a cgo call, or a wedged library does afterward. The returned
// function cancels the watchdog if shutdown finished cleanly in time.
func armWatchdog() func() {
	log := logger.WithComponent("lifecycle")

	pid := os.Getpid()
	cmd := exec.Command("/bin/sh", "-c", fmt.Sprintf("sleep %d && kill -9 %d", int(WatchdogDelay.Seconds()), pid))
	if err := cmd.Start(); err != nil {
		log.Error().Err(err).Msg("failed to arm watchdog subprocess, shutdown is unbounded")
		return func() {}
	}

	watchdogPID := cmd.Process.Pid
	go cmd.Wait() // reap; SIGKILL from the watchdog itself means this never returns

	return func() {
		if p, err := os.FindProcess(watchdogPID); err == nil {
			_ = p.Kill()
		}
	}
}
