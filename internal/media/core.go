package media

/*
#cgo pkg-config: libpipewire-0.3
#include <pipewire/pipewire.h>
*/
import "C"

import (
	"errors"
	"sync"

	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/logger"
)

// ErrNotConnected is returned by operations that require a connected
// core.
var ErrNotConnected = errors.New("media: pipewire core not connected")

var pwInitOnce sync.Once

// Manager owns the process-global PipeWire loop, context and core
// connection. One Manager is created at daemon startup; every session's
// Stream is created against it.
type Manager struct {
	mu      sync.Mutex
	loop    *C.struct_pw_loop
	context *C.struct_pw_context
	core    *C.struct_pw_core
}

// New initializes libpipewire (once per process) and opens a loop,
// context and core connection.
func New() (*Manager, error) {
	pwInitOnce.Do(func() {
		C.pw_init(nil, nil)
	})

	loop := C.pw_loop_new(nil)
	if loop == nil {
		return nil, errors.New("media: pw_loop_new failed")
	}

	ctx := C.pw_context_new(loop, nil, 0)
	if ctx == nil {
		C.pw_loop_destroy(loop)
		return nil, errors.New("media: pw_context_new failed")
	}

	core := C.pw_context_connect(ctx, nil, 0)
	if core == nil {
		C.pw_context_destroy(ctx)
		C.pw_loop_destroy(loop)
		return nil, ErrNotConnected
	}

	logger.WithComponent("media").Info().Msg("connected to pipewire")

	return &Manager{loop: loop, context: ctx, core: core}, nil
}

// Close disconnects the core and tears down the context and loop.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.core != nil {
		C.pw_core_disconnect(m.core)
		m.core = nil
	}
	if m.context != nil {
		C.pw_context_destroy(m.context)
		m.context = nil
	}
	if m.loop != nil {
		C.pw_loop_destroy(m.loop)
		m.loop = nil
	}
}

// Fd returns the loop's pollable file descriptor, one of the three the
// event reactor polls concurrently.
func (m *Manager) Fd() int {
	return int(C.pw_loop_get_fd(m.loop))
}

// Iterate runs one non-blocking pass of the loop, dispatching any
// pending events (stream state changes, param changes, buffer
// add/remove). timeoutMs of 0 never blocks.
func (m *Manager) Iterate(timeoutMs int) {
	C.pw_loop_iterate(m.loop, C.int(timeoutMs))
}

