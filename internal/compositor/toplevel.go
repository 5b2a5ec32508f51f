package compositor

/*
#include <wayland-client.h>
#include "protocol/wlr-foreign-toplevel-management-unstable-v1-client-protocol.h"

extern const struct zwlr_foreign_toplevel_manager_v1_listener xdpw_toplevel_manager_listener;
extern const struct zwlr_foreign_toplevel_handle_v1_listener xdpw_toplevel_handle_listener;
*/
import "C"

import (
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"github.com/mattn/go-pointer"
)

// ToplevelHandle mirrors a compositor window exportable for capture: an
// opaque handle token, title, class and mapped-window address.
type ToplevelHandle struct {
	Handle  uint32
	Title   string
	AppID   string
	Address string

	hnd      *C.struct_zwlr_foreign_toplevel_handle_v1
	token    unsafe.Pointer
	registry *ToplevelRegistry
}

// ToplevelEvent is delivered to registry subscribers.
type ToplevelEvent struct {
	Kind    ToplevelEventKind
	Handle  *ToplevelHandle
}

type ToplevelEventKind int

const (
	ToplevelAdded ToplevelEventKind = iota
	ToplevelUpdated
	ToplevelClosed
)

// ToplevelRegistry tracks compositor toplevels. Bookkeeping is activated
// only while at least one session needs window selection; when the
// reference count drops to zero the table is cleared to stop listening for
// toplevel churn nobody cares about.
type ToplevelRegistry struct {
	mu        sync.Mutex
	refs      int
	byHandle  map[uint32]*ToplevelHandle
	nextID    uint32
	manager   *C.struct_zwlr_foreign_toplevel_manager_v1
	listeners map[chan ToplevelEvent]struct{}
	token     unsafe.Pointer
}

func newToplevelRegistry() *ToplevelRegistry {
	return &ToplevelRegistry{
		byHandle:  make(map[uint32]*ToplevelHandle),
		listeners: make(map[chan ToplevelEvent]struct{}),
	}
}

func (r *ToplevelRegistry) bindManager(d *Display, mgr *C.struct_zwlr_foreign_toplevel_manager_v1) {
	r.mu.Lock()
	r.manager = mgr
	r.token = pointer.Save(r)
	r.mu.Unlock()
	C.zwlr_foreign_toplevel_manager_v1_add_listener(mgr, &C.xdpw_toplevel_manager_listener, r.token)
}

// Activate increments the session reference count. The first Activate call
// begins tracking toplevel events; it is idempotent while refs > 0.
func (r *ToplevelRegistry) Activate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refs++
}

// Deactivate decrements the reference count; at zero, clears the table.
func (r *ToplevelRegistry) Deactivate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refs > 0 {
		r.refs--
	}
	if r.refs == 0 {
		for handle, h := range r.byHandle {
			if h.token != nil {
				pointer.Unref(h.token)
			}
			delete(r.byHandle, handle)
		}
	}
}

// ByClass performs a linear scan for the first toplevel whose AppID matches
// class; N is small (the number of open windows).
func (r *ToplevelRegistry) ByClass(class string) *ToplevelHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range r.byHandle {
		if strings.EqualFold(h.AppID, class) {
			return h
		}
	}
	return nil
}

// ByHandle looks up a toplevel by its opaque 32-bit handle token.
func (r *ToplevelRegistry) ByHandle(handle uint32) *ToplevelHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byHandle[handle]
}

// List returns a snapshot of all tracked toplevels.
func (r *ToplevelRegistry) List() []*ToplevelHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*ToplevelHandle, 0, len(r.byHandle))
	for _, h := range r.byHandle {
		out = append(out, h)
	}
	return out
}

// Subscribe registers a channel to receive toplevel events; only
// ToplevelClosed is broadcast, and new or retitled toplevels are visible
// only through List.
func (r *ToplevelRegistry) Subscribe() chan ToplevelEvent {
	ch := make(chan ToplevelEvent, 16)
	r.mu.Lock()
	r.listeners[ch] = struct{}{}
	r.mu.Unlock()
	return ch
}

// Unsubscribe removes a previously subscribed channel.
func (r *ToplevelRegistry) Unsubscribe(ch chan ToplevelEvent) {
	r.mu.Lock()
	delete(r.listeners, ch)
	r.mu.Unlock()
}

func (r *ToplevelRegistry) broadcast(ev ToplevelEvent) {
	for ch := range r.listeners {
		select {
		case ch <- ev:
		default:
		}
	}
}

//export xdpwHandleToplevelManagerToplevel
func xdpwHandleToplevelManagerToplevel(data unsafe.Pointer, mgr *C.struct_zwlr_foreign_toplevel_manager_v1, handle *C.struct_zwlr_foreign_toplevel_handle_v1) {
	r, ok := pointer.Restore(data).(*ToplevelRegistry)
	if !ok {
		return
	}

	r.mu.Lock()
	if r.refs == 0 {
		r.mu.Unlock()
		return
	}
	r.nextID++
	id := r.nextID
	th := &ToplevelHandle{Handle: id, Address: fmt.Sprintf("0x%x", uintptr(unsafe.Pointer(handle)))}
	th.hnd = handle
	th.registry = r
	th.token = pointer.Save(th)
	r.byHandle[id] = th
	r.mu.Unlock()

	C.zwlr_foreign_toplevel_handle_v1_add_listener(handle, &C.xdpw_toplevel_handle_listener, th.token)
}

//export xdpwHandleToplevelManagerFinished
func xdpwHandleToplevelManagerFinished(data unsafe.Pointer, mgr *C.struct_zwlr_foreign_toplevel_manager_v1) {
}

//export xdpwHandleToplevelTitle
func xdpwHandleToplevelTitle(data unsafe.Pointer, handle *C.struct_zwlr_foreign_toplevel_handle_v1, title *C.char) {
	if h, ok := pointer.Restore(data).(*ToplevelHandle); ok {
		h.Title = C.GoString(title)
	}
}

//export xdpwHandleToplevelAppId
func xdpwHandleToplevelAppId(data unsafe.Pointer, handle *C.struct_zwlr_foreign_toplevel_handle_v1, appID *C.char) {
	if h, ok := pointer.Restore(data).(*ToplevelHandle); ok {
		h.AppID = C.GoString(appID)
	}
}

//export xdpwHandleToplevelOutputEnter
func xdpwHandleToplevelOutputEnter(data unsafe.Pointer, handle *C.struct_zwlr_foreign_toplevel_handle_v1, output *C.struct_wl_output) {
}

//export xdpwHandleToplevelOutputLeave
func xdpwHandleToplevelOutputLeave(data unsafe.Pointer, handle *C.struct_zwlr_foreign_toplevel_handle_v1, output *C.struct_wl_output) {
}

//export xdpwHandleToplevelState
func xdpwHandleToplevelState(data unsafe.Pointer, handle *C.struct_zwlr_foreign_toplevel_handle_v1, state *C.struct_wl_array) {
}

//export xdpwHandleToplevelDone
func xdpwHandleToplevelDone(data unsafe.Pointer, handle *C.struct_zwlr_foreign_toplevel_handle_v1) {
}

//export xdpwHandleToplevelClosed
func xdpwHandleToplevelClosed(data unsafe.Pointer, handle *C.struct_zwlr_foreign_toplevel_handle_v1) {
	h, ok := pointer.Restore(data).(*ToplevelHandle)
	if !ok {
		return
	}

	if r := h.registry; r != nil {
		r.mu.Lock()
		delete(r.byHandle, h.Handle)
		r.mu.Unlock()
		r.broadcast(ToplevelEvent{Kind: ToplevelClosed, Handle: h})
	}

	C.zwlr_foreign_toplevel_handle_v1_destroy(handle)
	if h.token != nil {
		pointer.Unref(h.token)
		h.token = nil
	}
}

//export xdpwHandleToplevelParent
func xdpwHandleToplevelParent(data unsafe.Pointer, handle *C.struct_zwlr_foreign_toplevel_handle_v1, parent *C.struct_zwlr_foreign_toplevel_handle_v1) {
}
