package reactor

import (
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/compositor"
	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/logger"
	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/media"
	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/timer"
)

// pollTimeoutMs bounds how long the poll thread can block without
// re-checking for shutdown; it does not gate normal event delivery.
const pollTimeoutMs = 5000

const (
	fdDisplay = iota
	fdMedia
	fdWake
	fdCount
)

// EventLoop is the daemon's poll thread, timer thread and dispatching
// main loop. The compositor connection and the PipeWire loop are only
// ever touched from the goroutine that calls Run, so no other package
// may call Display.DispatchPending or Manager.Iterate directly once a
// loop is running. Code on another goroutine that needs to touch that
// state (a D-Bus method handler, most often) must go through Submit or
// Call instead of calling in directly.
type EventLoop struct {
	display *compositor.Display
	m       *media.Manager
	timers  *timer.Wheel

	// Tick, if set, is called once per main-loop pass after dispatch, on
	// the same goroutine as DispatchPending/Iterate. It lets other
	// packages (the frame-copy driver) drain state that must not be
	// touched off the main loop without adding a dependency here.
	Tick func()

	wakeR *os.File
	wakeW *os.File

	process    chan struct{}
	done       chan struct{}
	terminated chan struct{}
	onFatal    func(error)

	jobsMu sync.Mutex
	jobs   []func()

	mu      sync.Mutex
	stopped bool
}

// New builds an EventLoop over an already-connected display and media
// manager and the daemon's shared timer wheel. onFatal is invoked at
// most once, from whichever goroutine first observes a fatal poll error
// or a hung-up descriptor; the loop stops itself immediately after.
func New(display *compositor.Display, mgr *media.Manager, timers *timer.Wheel, onFatal func(error)) (*EventLoop, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("reactor: create wake pipe: %w", err)
	}
	return &EventLoop{
		display:    display,
		m:          mgr,
		timers:     timers,
		wakeR:      r,
		wakeW:      w,
		process:    make(chan struct{}, 1),
		done:       make(chan struct{}),
		terminated: make(chan struct{}),
		onFatal:    onFatal,
	}, nil
}

func (e *EventLoop) requestProcess() {
	select {
	case e.process <- struct{}{}:
	default:
	}
}

// Submit queues fn to run on the main-loop goroutine at the start of its
// next pass and wakes the loop. fn must not block; it runs alongside
// dispatch on the same goroutine that owns the compositor and media state.
func (e *EventLoop) Submit(fn func()) {
	e.jobsMu.Lock()
	e.jobs = append(e.jobs, fn)
	e.jobsMu.Unlock()
	e.requestProcess()
}

// Call submits fn to the main loop and blocks the calling goroutine until
// it has run there, returning its error. Callers outside the main-loop
// goroutine (the D-Bus dispatch goroutine, in particular) must use Call
// rather than invoking driver/media/compositor methods directly.
func (e *EventLoop) Call(fn func() error) error {
	done := make(chan error, 1)
	e.Submit(func() {
		done <- fn()
	})
	return <-done
}

func (e *EventLoop) runJobs() {
	e.jobsMu.Lock()
	jobs := e.jobs
	e.jobs = nil
	e.jobsMu.Unlock()

	for _, fn := range jobs {
		fn()
	}
}

// Run starts the poll and timer goroutines and runs the dispatching main
// loop on the calling goroutine until Stop is called or a fatal error is
// observed. It returns once the loop has fully shut down.
func (e *EventLoop) Run() {
	go e.pollThread()
	go e.timerThread()
	e.mainLoop()
}

// pollThread blocks in unix.Poll on the Wayland fd, the PipeWire fd and
// the wake pipe, and wakes the main loop whenever any of them has
// activity. It performs the Wayland prepare-read/read-events dance
// itself so no events are lost between polling and dispatching.
func (e *EventLoop) pollThread() {
	log := logger.WithComponent("reactor")

	fds := make([]unix.PollFd, fdCount)
	fds[fdDisplay] = unix.PollFd{Fd: int32(e.display.Fd()), Events: unix.POLLIN}
	fds[fdMedia] = unix.PollFd{Fd: int32(e.m.Fd()), Events: unix.POLLIN}
	fds[fdWake] = unix.PollFd{Fd: int32(e.wakeR.Fd()), Events: unix.POLLIN}

	buf := make([]byte, 64)

	for {
		select {
		case <-e.done:
			return
		default:
		}

		armed := e.display.PrepareRead()
		if err := e.display.Flush(); err != nil {
			log.Warn().Err(err).Msg("wl_display_flush failed")
		}

		fds[fdDisplay].Revents = 0
		fds[fdMedia].Revents = 0
		fds[fdWake].Revents = 0

		n, err := unix.Poll(fds, pollTimeoutMs)
		if err != nil {
			if armed {
				e.display.CancelRead()
			}
			if err == unix.EINTR {
				continue
			}
			log.Error().Err(err).Msg("poll failed")
			e.fatal(fmt.Errorf("reactor: poll: %w", err))
			return
		}

		hangup := false
		for i := range fds {
			if fds[i].Revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
				log.Error().Int("fd_index", i).Msg("polled descriptor hung up")
				hangup = true
			}
		}
		if hangup {
			if armed {
				e.display.CancelRead()
			}
			e.fatal(fmt.Errorf("reactor: polled descriptor hung up"))
			return
		}

		if armed {
			if fds[fdDisplay].Revents&unix.POLLIN != 0 {
				if err := e.display.ReadEvents(); err != nil {
					log.Warn().Err(err).Msg("wl_display_read_events failed")
				}
			} else {
				e.display.CancelRead()
			}
		}

		if fds[fdWake].Revents&unix.POLLIN != 0 {
			unix.Read(int(e.wakeR.Fd()), buf)
		}

		select {
		case <-e.done:
			return
		default:
		}

		if n != 0 {
			log.Trace().Msg("poll event")
			e.requestProcess()
		}
	}
}

// timerThread sleeps until the wheel's nearest deadline, or until
// Schedule inserts one that could be sooner, and wakes the main loop
// either way so it can call Wheel.FireDue.
func (e *EventLoop) timerThread() {
	for {
		wait := e.timers.NearestDeadline()
		t := time.NewTimer(wait)
		select {
		case <-e.timers.WakeChannel():
			t.Stop()
		case <-t.C:
			e.requestProcess()
		case <-e.done:
			t.Stop()
			return
		}
	}
}

// mainLoop is the single goroutine allowed to touch the compositor and
// media state. It wakes on process, drains one pass of Wayland and
// PipeWire dispatch, then fires any due timers.
func (e *EventLoop) mainLoop() {
	log := logger.WithComponent("reactor")
	for {
		select {
		case <-e.process:
		case <-e.done:
			close(e.terminated)
			return
		}

		select {
		case <-e.done:
			close(e.terminated)
			return
		default:
		}

		e.runJobs()

		e.display.DispatchPending()
		if err := e.display.Flush(); err != nil {
			log.Warn().Err(err).Msg("wl_display_flush failed")
		}

		e.m.Iterate(0)

		if e.Tick != nil {
			e.Tick()
		}

		e.timers.FireDue()
	}
}

func (e *EventLoop) fatal(err error) {
	if e.onFatal != nil {
		e.onFatal(err)
	}
	e.Stop()
}

// Stop signals every reactor goroutine to exit and blocks until the main
// loop has observed the shutdown and returned. Safe to call more than
// once (later calls return at once) and from any goroutine other than the
// one running the main loop, including from within onFatal; a first call
// made on the main loop itself blocks forever.
func (e *EventLoop) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	close(e.done)
	e.mu.Unlock()

	e.wakeW.Write([]byte{0})
	<-e.terminated
	e.wakeR.Close()
	e.wakeW.Close()
}
