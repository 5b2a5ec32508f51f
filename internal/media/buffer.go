package media

/*
#cgo pkg-config: libpipewire-0.3
#include <pipewire/pipewire.h>
#include <spa/buffer/buffer.h>
#include <spa/param/video/format-utils.h>

void xdpw_stream_fill_metadata(struct spa_buffer *buf, uint64_t ptsNs, uint32_t seq, int corrupted, uint32_t transform);
void xdpw_stream_write_damage(struct spa_buffer *buf, uint32_t index, uint32_t x, uint32_t y, uint32_t w, uint32_t h);
void xdpw_stream_terminate_damage(struct spa_buffer *buf, uint32_t count);
void xdpw_stream_write_full_damage(struct spa_buffer *buf, uint32_t w, uint32_t h);
*/
import "C"

import (
	"errors"
	"unsafe"

	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/gpu"
	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/logger"
)

// BufferSlot is one PipeWire buffer's backing storage: a gpu.Buffer
// plus the compositor-visible handle it was imported as. The session
// state machine allocates it in response to OnAddBuffer and hands it
// back to Remove/Enqueue via the pointer returned there.
type BufferSlot struct {
	GPU              *gpu.Buffer
	CompositorHandle unsafe.Pointer // opaque *C.struct_wl_buffer, owned by internal/compositor

	pw *C.struct_pw_buffer
}

// ErrOutOfBuffers is returned by Dequeue when PipeWire has no writable
// buffer available; the session must retry on a later tick.
var ErrOutOfBuffers = errors.New("media: stream out of buffers")

// Dequeue pulls the next writable buffer slot from the stream.
func (s *Stream) Dequeue() (*BufferSlot, error) {
	pwBuf := C.pw_stream_dequeue_buffer(s.stream)
	if pwBuf == nil {
		s.mu.Lock()
		s.current = nil
		s.mu.Unlock()
		return nil, ErrOutOfBuffers
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	slot := s.slots[pwBuf]
	s.current = slot
	return slot, nil
}

// CurrentBuffer returns the gpu.Buffer backing the currently dequeued
// slot, or nil if nothing is dequeued. The session's transform renderer
// uses this as its render target.
func (s *Stream) CurrentBuffer() *gpu.Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	return s.current.GPU
}

// EnqueueOpts carries the per-frame metadata Enqueue writes into the
// buffer before handing it back to PipeWire.
type EnqueueOpts struct {
	TimestampNs  uint64
	Corrupted    bool
	Transform    uint32
	Damage       []DamageRect
	FullFrameW   uint32
	FullFrameH   uint32
}

// DamageRect is one damaged region, in the coordinate space of the
// negotiated stream.
type DamageRect struct {
	X, Y, W, H uint32
}

// Enqueue writes header/transform/damage metadata into the currently
// dequeued buffer's SPA data, then hands it back to the stream.
func (s *Stream) Enqueue(opts EnqueueOpts) error {
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()
	if current == nil {
		return errors.New("media: no buffer dequeued")
	}

	spaBuf := current.pw.buffer
	corrupted := C.int(0)
	if opts.Corrupted {
		corrupted = 1
	}

	C.xdpw_stream_fill_metadata(spaBuf, C.uint64_t(opts.TimestampNs), C.uint32_t(s.seq), corrupted, C.uint32_t(opts.Transform))
	s.seq++

	if len(opts.Damage) > 4 {
		logger.WithComponent("media").Trace().Int("count", len(opts.Damage)).Msg("damage overflow, writing full-frame rectangle")
		C.xdpw_stream_write_full_damage(spaBuf, C.uint32_t(opts.FullFrameW), C.uint32_t(opts.FullFrameH))
	} else {
		for i, d := range opts.Damage {
			C.xdpw_stream_write_damage(spaBuf, C.uint32_t(i), C.uint32_t(d.X), C.uint32_t(d.Y), C.uint32_t(d.W), C.uint32_t(d.H))
		}
		C.xdpw_stream_terminate_damage(spaBuf, C.uint32_t(len(opts.Damage)))
	}

	C.pw_stream_queue_buffer(s.stream, current.pw)

	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
	return nil
}
