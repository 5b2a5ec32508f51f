package compositor

/*
#include <wayland-client.h>
#include "protocol/wlr-screencopy-unstable-v1-client-protocol.h"
#include "protocol/hyprland-toplevel-export-v1-client-protocol.h"
#include "protocol/wlr-foreign-toplevel-management-unstable-v1-client-protocol.h"

extern const struct wl_output_listener xdpw_output_listener;
*/
import "C"

import (
	"sync"
	"unsafe"

	"github.com/mattn/go-pointer"
)

// Transform is one of the eight compositional output transforms: identity,
// the three 90-degree rotations, a horizontal flip, and the flip combined
// with each rotation.
type Transform int

const (
	TransformNormal Transform = iota
	Transform90
	Transform180
	Transform270
	TransformFlipped
	TransformFlipped90
	TransformFlipped180
	TransformFlipped270
)

// Rotated90Or270 reports whether this transform swaps the physical width
// and height axes relative to the logical ones.
func (t Transform) Rotated90Or270() bool {
	switch t {
	case Transform90, Transform270, TransformFlipped90, TransformFlipped270:
		return true
	default:
		return false
	}
}

// Output mirrors a compositor display: name, integer registry id, refresh
// rate in Hz, and its current transform.
type Output struct {
	RegistryName uint32
	Name         string
	Width        int32
	Height       int32
	RefreshMHz   int32
	Transform    Transform

	hnd   *C.struct_wl_output
	token unsafe.Pointer
}

// RefreshHz returns the output's refresh rate rounded to the nearest whole
// hertz, as reported in milli-hertz by wl_output.mode.
func (o *Output) RefreshHz() int {
	return int((o.RefreshMHz + 500) / 1000)
}

// OutputRegistry is the passive table of compositor outputs, mirroring
// wl_registry global/global_remove events for the wl_output interface.
type OutputRegistry struct {
	mu        sync.RWMutex
	byName    map[uint32]*Output
	listeners map[chan OutputEvent]struct{}
}

// OutputEvent is delivered to registry subscribers. The registry broadcasts
// only OutputRemoved; added outputs and geometry/mode/scale changes are not
// broadcast and are visible only through List.
type OutputEvent struct {
	Kind   OutputEventKind
	Output *Output
}

type OutputEventKind int

const (
	OutputAdded OutputEventKind = iota
	OutputUpdated
	OutputRemoved
)

func newOutputRegistry() *OutputRegistry {
	return &OutputRegistry{
		byName:    make(map[uint32]*Output),
		listeners: make(map[chan OutputEvent]struct{}),
	}
}

func (r *OutputRegistry) bind(d *Display, registry *C.struct_wl_registry, name, version uint32) {
	o := &Output{RegistryName: name}
	o.hnd = (*C.struct_wl_output)(C.wl_registry_bind(registry, C.uint32_t(name), &C.wl_output_interface, C.uint32_t(version)))
	o.token = pointer.Save(o)
	C.wl_output_add_listener(o.hnd, &C.xdpw_output_listener, o.token)

	r.mu.Lock()
	r.byName[name] = o
	r.mu.Unlock()
}

func (r *OutputRegistry) remove(name uint32) {
	r.mu.Lock()
	o, ok := r.byName[name]
	if ok {
		delete(r.byName, name)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	if o.token != nil {
		pointer.Unref(o.token)
	}
	C.wl_output_destroy(o.hnd)
	r.broadcast(OutputEvent{Kind: OutputRemoved, Output: o})
}

// ByName performs the linear scan a small table warrants; N is always the
// number of physical displays.
func (r *OutputRegistry) ByName(name string) *Output {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.byName {
		if o.Name == name {
			return o
		}
	}
	return nil
}

// List returns a snapshot of all known outputs.
func (r *OutputRegistry) List() []*Output {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Output, 0, len(r.byName))
	for _, o := range r.byName {
		out = append(out, o)
	}
	return out
}

// Subscribe registers a channel to receive output events; only removals are
// broadcast.
func (r *OutputRegistry) Subscribe() chan OutputEvent {
	ch := make(chan OutputEvent, 16)
	r.mu.Lock()
	r.listeners[ch] = struct{}{}
	r.mu.Unlock()
	return ch
}

// Unsubscribe removes a previously subscribed channel.
func (r *OutputRegistry) Unsubscribe(ch chan OutputEvent) {
	r.mu.Lock()
	delete(r.listeners, ch)
	r.mu.Unlock()
}

func (r *OutputRegistry) broadcast(ev OutputEvent) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for ch := range r.listeners {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (r *OutputRegistry) findByRegistryName(name uint32) *Output {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[name]
}

//export xdpwHandleOutputGeometry
func xdpwHandleOutputGeometry(data unsafe.Pointer, output *C.struct_wl_output, x, y, physW, physH, subpixel C.int32_t, make_, model *C.char, transform C.int32_t) {
	o, ok := pointer.Restore(data).(*Output)
	if !ok {
		return
	}
	o.Transform = Transform(transform)
	if o.Name == "" {
		o.Name = C.GoString(model)
	}
}

//export xdpwHandleOutputMode
func xdpwHandleOutputMode(data unsafe.Pointer, output *C.struct_wl_output, flags C.uint32_t, width, height, refresh C.int32_t) {
	o, ok := pointer.Restore(data).(*Output)
	if !ok {
		return
	}
	o.Width = int32(width)
	o.Height = int32(height)
	o.RefreshMHz = int32(refresh)
}

//export xdpwHandleOutputDone
func xdpwHandleOutputDone(data unsafe.Pointer, output *C.struct_wl_output) {
	// Geometry/mode/scale events are settled; nothing is broadcast here.
	// The settled state is visible through a later List() call; Subscribe
	// consumers receive only OutputRemoved events.
}

//export xdpwHandleOutputScale
func xdpwHandleOutputScale(data unsafe.Pointer, output *C.struct_wl_output, scale C.int32_t) {
}
