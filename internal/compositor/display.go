package compositor

/*
#cgo pkg-config: wayland-client
#include <stdlib.h>
#include <wayland-client.h>
#include "protocol/wlr-screencopy-unstable-v1-client-protocol.h"
#include "protocol/hyprland-toplevel-export-v1-client-protocol.h"
#include "protocol/wlr-foreign-toplevel-management-unstable-v1-client-protocol.h"
#include "protocol/linux-dmabuf-v1-client-protocol.h"

extern const struct wl_registry_listener xdpw_registry_listener;
*/
import "C"

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/mattn/go-pointer"

	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/logger"
)

// Display owns the wl_display connection and the single wl_registry
// enumeration that discovers outputs, the screencopy manager, the
// toplevel-export manager and the foreign-toplevel manager.
type Display struct {
	mu sync.Mutex

	hnd *C.struct_wl_display
	reg *C.struct_wl_registry

	screencopyManager *C.struct_zwlr_screencopy_manager_v1
	toplevelExport    *C.struct_hyprland_toplevel_export_manager_v1
	toplevelManager   *C.struct_zwlr_foreign_toplevel_manager_v1
	shm               *C.struct_wl_shm
	linuxDmabuf       *C.struct_zwp_linux_dmabuf_v1

	outputs   *OutputRegistry
	toplevels *ToplevelRegistry

	token unsafe.Pointer
}

// Connect opens a connection to the Wayland compositor named by
// WAYLAND_DISPLAY (or the compositor default socket if unset) and performs
// the global-enumeration roundtrip described in the daemon's lifecycle
// handshake.
func Connect() (*Display, error) {
	hnd, err := C.wl_display_connect(nil)
	if hnd == nil {
		return nil, fmt.Errorf("connect to wayland compositor: %w", err)
	}

	d := &Display{
		hnd:       hnd,
		outputs:   newOutputRegistry(),
		toplevels: newToplevelRegistry(),
	}
	d.token = pointer.Save(d)

	d.reg = C.wl_display_get_registry(hnd)
	C.wl_registry_add_listener(d.reg, &C.xdpw_registry_listener, d.token)

	if _, err := d.Roundtrip(); err != nil {
		d.Close()
		return nil, fmt.Errorf("initial global enumeration: %w", err)
	}
	// Second roundtrip lets wl_output.geometry/mode/done and toplevel
	// manager's initial toplevel batch land before Start() is ever called.
	if _, err := d.Roundtrip(); err != nil {
		d.Close()
		return nil, fmt.Errorf("second global enumeration: %w", err)
	}

	return d, nil
}

// Close releases the display connection. Safe to call once.
func (d *Display) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.hnd == nil {
		return
	}
	if d.token != nil {
		pointer.Unref(d.token)
		d.token = nil
	}
	C.wl_display_disconnect(d.hnd)
	d.hnd = nil
}

// Fd returns the wl_display's poll-able file descriptor for the event
// reactor's poll set.
func (d *Display) Fd() int {
	return int(C.wl_display_get_fd(d.hnd))
}

// Roundtrip blocks until all requests issued so far have been processed by
// the compositor and their events dispatched.
func (d *Display) Roundtrip() (int, error) {
	n, err := C.wl_display_roundtrip(d.hnd)
	if n < 0 {
		return int(n), fmt.Errorf("wl_display_roundtrip: %w", err)
	}
	return int(n), nil
}

// PrepareRead, ReadEvents and DispatchPending implement the
// prepare-read/read-events/dispatch-pending dance the event reactor uses to
// avoid losing wakeups between polling the fd and draining the queue.
func (d *Display) PrepareRead() bool {
	return C.wl_display_prepare_read(d.hnd) == 0
}

func (d *Display) ReadEvents() error {
	if C.wl_display_read_events(d.hnd) != 0 {
		return errors.New("wl_display_read_events failed")
	}
	return nil
}

func (d *Display) CancelRead() {
	C.wl_display_cancel_read(d.hnd)
}

func (d *Display) DispatchPending() int {
	return int(C.wl_display_dispatch_pending(d.hnd))
}

// Flush writes any queued requests to the compositor socket.
func (d *Display) Flush() error {
	if C.wl_display_flush(d.hnd) < 0 {
		return errors.New("wl_display_flush failed")
	}
	return nil
}

// Outputs returns the display's output registry.
func (d *Display) Outputs() *OutputRegistry { return d.outputs }

// Toplevels returns the display's toplevel registry.
func (d *Display) Toplevels() *ToplevelRegistry { return d.toplevels }

// HasToplevelCapabilities reports whether the compositor advertised both the
// foreign-toplevel-management global and the toplevel-export global.
// SelectSources uses this to reject a
// window selection immediately instead of failing later at capture time.
func (d *Display) HasToplevelCapabilities() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.toplevelManager != nil && d.toplevelExport != nil
}

//export xdpwHandleGlobal
func xdpwHandleGlobal(data unsafe.Pointer, registry *C.struct_wl_registry, name C.uint32_t, iface *C.char, version C.uint32_t) {
	d, ok := pointer.Restore(data).(*Display)
	if !ok {
		return
	}
	ifaceName := C.GoString(iface)
	log := logger.WithComponent("compositor")

	switch ifaceName {
	case "wl_output":
		d.outputs.bind(d, registry, uint32(name), uint32(version))
	case "zwlr_screencopy_manager_v1":
		d.mu.Lock()
		d.screencopyManager = (*C.struct_zwlr_screencopy_manager_v1)(
			C.wl_registry_bind(registry, name, &C.zwlr_screencopy_manager_v1_interface, version))
		d.mu.Unlock()
	case "hyprland_toplevel_export_manager_v1":
		d.mu.Lock()
		d.toplevelExport = (*C.struct_hyprland_toplevel_export_manager_v1)(
			C.wl_registry_bind(registry, name, &C.hyprland_toplevel_export_manager_v1_interface, version))
		d.mu.Unlock()
	case "zwlr_foreign_toplevel_manager_v1":
		d.mu.Lock()
		d.toplevelManager = (*C.struct_zwlr_foreign_toplevel_manager_v1)(
			C.wl_registry_bind(registry, name, &C.zwlr_foreign_toplevel_manager_v1_interface, version))
		d.mu.Unlock()
		d.toplevels.bindManager(d, d.toplevelManager)
	case "wl_shm":
		d.mu.Lock()
		d.shm = (*C.struct_wl_shm)(
			C.wl_registry_bind(registry, name, &C.wl_shm_interface, version))
		d.mu.Unlock()
	case "zwp_linux_dmabuf_v1":
		bindVersion := version
		if bindVersion > 3 {
			bindVersion = 3
		}
		d.mu.Lock()
		d.linuxDmabuf = (*C.struct_zwp_linux_dmabuf_v1)(
			C.wl_registry_bind(registry, name, &C.zwp_linux_dmabuf_v1_interface, bindVersion))
		d.mu.Unlock()
	default:
		log.Debug().Str("interface", ifaceName).Msg("ignoring unhandled global")
	}
}

//export xdpwHandleGlobalRemove
func xdpwHandleGlobalRemove(data unsafe.Pointer, registry *C.struct_wl_registry, name C.uint32_t) {
	d, ok := pointer.Restore(data).(*Display)
	if !ok {
		return
	}
	d.outputs.remove(uint32(name))
}
