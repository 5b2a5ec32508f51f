package compositor

/*
#include <wayland-client.h>
#include "protocol/wlr-screencopy-unstable-v1-client-protocol.h"
#include "protocol/hyprland-toplevel-export-v1-client-protocol.h"

extern const struct zwlr_screencopy_frame_v1_listener xdpw_screencopy_frame_listener;
*/
import "C"

import (
	"errors"
	"unsafe"

	"github.com/mattn/go-pointer"
)

// ShmBufferInfo describes the SHM buffer geometry the compositor wants us
// to allocate, delivered by the frame's "buffer" event.
type ShmBufferInfo struct {
	Format Fourcc
	Width  uint32
	Height uint32
	Stride uint32
}

// DMABufInfo describes the DMA-BUF geometry the compositor wants, delivered
// by the frame's "linux_dmabuf" event.
type DMABufInfo struct {
	Format Fourcc
	Width  uint32
	Height uint32
}

// Fourcc is a DRM four-character-code pixel format.
type Fourcc uint32

// DamageRect is a single damaged sub-rectangle of a captured frame.
type DamageRect struct {
	X, Y, Width, Height uint32
}

// FrameEventKind tags the variant carried by a FrameEvent.
type FrameEventKind int

const (
	FrameShmInfo FrameEventKind = iota
	FrameDMABufInfo
	FrameDamage
	FrameBufferDone
	FrameFlags
	FrameReady
	FrameFailed
)

// FrameEvent is one event from a single screencopy/toplevel-export frame
// request, in the order the compositor promises to deliver them:
// buffer/linux_dmabuf/damage (any order, any count) -> buffer_done ->
// ready | failed.
type FrameEvent struct {
	Kind      FrameEventKind
	Shm       *ShmBufferInfo
	DMABuf    *DMABufInfo
	Damage    DamageRect
	Transform Transform
	TvSec     uint64
	TvNsec    uint32
}

// FrameCapture is one in-flight capture request against either an output
// or a toplevel. Events arrive on Events until it is closed after
// FrameReady or FrameFailed.
type FrameCapture struct {
	Events chan FrameEvent

	frame *C.struct_zwlr_screencopy_frame_v1
	token unsafe.Pointer
	attachedBuffer *C.struct_wl_buffer
}

// CaptureOutput requests a full-output frame. overlayCursor embeds the
// cursor into the captured pixels when true.
func (d *Display) CaptureOutput(o *Output, overlayCursor bool) (*FrameCapture, error) {
	d.mu.Lock()
	mgr := d.screencopyManager
	d.mu.Unlock()
	if mgr == nil {
		return nil, errors.New("compositor did not advertise zwlr_screencopy_manager_v1")
	}

	var cursorFlag C.int32_t
	if overlayCursor {
		cursorFlag = 1
	}
	frame := C.zwlr_screencopy_manager_v1_capture_output(mgr, cursorFlag, o.hnd)
	return newFrameCapture(frame), nil
}

// CaptureRegion requests a capture of a sub-rectangle of an output, in the
// output's physical coordinate space (already inverse-transformed by the
// caller when needed).
func (d *Display) CaptureRegion(o *Output, x, y, w, h int32, overlayCursor bool) (*FrameCapture, error) {
	d.mu.Lock()
	mgr := d.screencopyManager
	d.mu.Unlock()
	if mgr == nil {
		return nil, errors.New("compositor did not advertise zwlr_screencopy_manager_v1")
	}

	var cursorFlag C.int32_t
	if overlayCursor {
		cursorFlag = 1
	}
	frame := C.zwlr_screencopy_manager_v1_capture_output_region(mgr, cursorFlag, o.hnd, C.int32_t(x), C.int32_t(y), C.int32_t(w), C.int32_t(h))
	return newFrameCapture(frame), nil
}

// CaptureToplevel requests a frame of a single window via the
// hyprland-toplevel-export protocol. Returns UnsupportedSelection-shaped
// error if the compositor never advertised the toplevel-export global.
func (d *Display) CaptureToplevel(h *ToplevelHandle, overlayCursor bool) (*FrameCapture, error) {
	d.mu.Lock()
	mgr := d.toplevelExport
	d.mu.Unlock()
	if mgr == nil {
		return nil, errors.New("compositor did not advertise hyprland_toplevel_export_manager_v1")
	}

	var cursorFlag C.int32_t
	if overlayCursor {
		cursorFlag = 1
	}
	frame := (*C.struct_zwlr_screencopy_frame_v1)(unsafe.Pointer(
		C.hyprland_toplevel_export_manager_v1_capture_toplevel(mgr, cursorFlag, C.uint32_t(h.Handle))))
	return newFrameCapture(frame), nil
}

func newFrameCapture(frame *C.struct_zwlr_screencopy_frame_v1) *FrameCapture {
	fc := &FrameCapture{
		Events: make(chan FrameEvent, 8),
		frame:  frame,
	}
	fc.token = pointer.Save(fc)
	C.zwlr_screencopy_frame_v1_add_listener(frame, &C.xdpw_screencopy_frame_listener, fc.token)
	return fc
}

// AttachAndCopy attaches a compositor-visible wl_buffer and requests the
// copy. buf is the opaque wl_buffer handle returned by Display.ImportSHM or
// Display.ImportDMABuf, passed as unsafe.Pointer so callers outside this
// package never see the C type.
func (fc *FrameCapture) AttachAndCopy(buf unsafe.Pointer) {
	fc.attachedBuffer = (*C.struct_wl_buffer)(buf)
	C.zwlr_screencopy_frame_v1_copy(fc.frame, fc.attachedBuffer)
}

// Destroy releases the frame object. Safe to call after Ready or Failed.
func (fc *FrameCapture) Destroy() {
	if fc.frame != nil {
		C.zwlr_screencopy_frame_v1_destroy(fc.frame)
		fc.frame = nil
	}
	if fc.token != nil {
		pointer.Unref(fc.token)
		fc.token = nil
	}
	close(fc.Events)
}

func (fc *FrameCapture) emit(ev FrameEvent) {
	select {
	case fc.Events <- ev:
	default:
		// The session's frame-copy tick reads events promptly; a full
		// channel means the session already gave up on this frame.
	}
}

//export xdpwHandleFrameBuffer
func xdpwHandleFrameBuffer(data unsafe.Pointer, frame *C.struct_zwlr_screencopy_frame_v1, format C.uint32_t, width, height, stride C.uint32_t) {
	fc, ok := pointer.Restore(data).(*FrameCapture)
	if !ok {
		return
	}
	fc.emit(FrameEvent{Kind: FrameShmInfo, Shm: &ShmBufferInfo{
		Format: Fourcc(format), Width: uint32(width), Height: uint32(height), Stride: uint32(stride),
	}})
}

//export xdpwHandleFrameLinuxDmabuf
func xdpwHandleFrameLinuxDmabuf(data unsafe.Pointer, frame *C.struct_zwlr_screencopy_frame_v1, format C.uint32_t, width, height C.uint32_t) {
	fc, ok := pointer.Restore(data).(*FrameCapture)
	if !ok {
		return
	}
	fc.emit(FrameEvent{Kind: FrameDMABufInfo, DMABuf: &DMABufInfo{
		Format: Fourcc(format), Width: uint32(width), Height: uint32(height),
	}})
}

//export xdpwHandleFrameBufferDone
func xdpwHandleFrameBufferDone(data unsafe.Pointer, frame *C.struct_zwlr_screencopy_frame_v1) {
	fc, ok := pointer.Restore(data).(*FrameCapture)
	if !ok {
		return
	}
	fc.emit(FrameEvent{Kind: FrameBufferDone})
}

//export xdpwHandleFrameFlags
func xdpwHandleFrameFlags(data unsafe.Pointer, frame *C.struct_zwlr_screencopy_frame_v1, flags C.uint32_t) {
	fc, ok := pointer.Restore(data).(*FrameCapture)
	if !ok {
		return
	}
	transform := TransformNormal
	if flags&C.ZWLR_SCREENCOPY_FRAME_V1_FLAGS_Y_INVERT != 0 {
		transform = TransformFlipped
	}
	fc.emit(FrameEvent{Kind: FrameFlags, Transform: transform})
}

//export xdpwHandleFrameReady
func xdpwHandleFrameReady(data unsafe.Pointer, frame *C.struct_zwlr_screencopy_frame_v1, tvSecHi, tvSecLo, tvNsec C.uint32_t) {
	fc, ok := pointer.Restore(data).(*FrameCapture)
	if !ok {
		return
	}
	sec := (uint64(tvSecHi) << 32) | uint64(tvSecLo)
	fc.emit(FrameEvent{Kind: FrameReady, TvSec: sec, TvNsec: uint32(tvNsec)})
}

//export xdpwHandleFrameFailed
func xdpwHandleFrameFailed(data unsafe.Pointer, frame *C.struct_zwlr_screencopy_frame_v1) {
	fc, ok := pointer.Restore(data).(*FrameCapture)
	if !ok {
		return
	}
	fc.emit(FrameEvent{Kind: FrameFailed})
}

//export xdpwHandleFrameDamage
func xdpwHandleFrameDamage(data unsafe.Pointer, frame *C.struct_zwlr_screencopy_frame_v1, x, y, width, height C.uint32_t) {
	fc, ok := pointer.Restore(data).(*FrameCapture)
	if !ok {
		return
	}
	fc.emit(FrameEvent{Kind: FrameDamage, Damage: DamageRect{
		X: uint32(x), Y: uint32(y), Width: uint32(width), Height: uint32(height),
	}})
}
