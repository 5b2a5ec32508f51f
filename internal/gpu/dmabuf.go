package gpu

/*
#cgo pkg-config: gbm
#include <gbm.h>
*/
import "C"

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/logger"
)

// ErrAllocationFailed is returned when no modifier in the requested set
// (nor the plain non-modifier path) could allocate a buffer.
var ErrAllocationFailed = errors.New("gpu: allocation failed for all modifiers")

// ErrShmOpenFailed is returned when an anonymous SHM backing could not be
// created.
var ErrShmOpenFailed = errors.New("gpu: shm backing creation failed")

// Plane is one DMA-BUF plane: an owned file descriptor plus its layout.
type Plane struct {
	Fd     int
	Offset uint32
	Stride uint32
	Size   uint32
}

// Buffer is a single allocated buffer, DMA-BUF or SHM-backed. Every
// descriptor in Planes is owned by the Buffer until Close is called.
type Buffer struct {
	IsDMABuf bool
	Width    uint32
	Height   uint32
	Fourcc   uint32
	Modifier uint64
	Planes   []Plane

	bo *C.struct_gbm_bo // nil for SHM buffers
}

// Close closes every plane fd exactly once and releases the GBM buffer
// object, if any.
func (b *Buffer) Close() error {
	var firstErr error
	for i := range b.Planes {
		if b.Planes[i].Fd < 0 {
			continue
		}
		if err := unix.Close(b.Planes[i].Fd); err != nil && firstErr == nil {
			firstErr = err
		}
		b.Planes[i].Fd = -1
	}
	if b.bo != nil {
		C.gbm_bo_destroy(b.bo)
		b.bo = nil
	}
	return firstErr
}

// AllocateDMABuf tries modifier-aware allocation against every modifier in
// modifiers, falling back to per-modifier retry (mapping INVALID/LINEAR to
// the plain non-modifier gbm_bo_create path) before giving up.
func (d *Device) AllocateDMABuf(fourcc uint32, width, height uint32, modifiers []uint64, gbmUsage uint32) (*Buffer, error) {
	log := logger.WithComponent("gpu-allocator")

	if len(modifiers) > 0 {
		buf, err := d.allocateWithModifiers(fourcc, width, height, modifiers)
		if err == nil {
			return buf, nil
		}
		log.Debug().Err(err).Msg("modifier-aware allocation failed, retrying per modifier")
	}

	for _, mod := range modifiers {
		buf, err := d.allocateSingleModifier(fourcc, width, height, mod, gbmUsage)
		if err == nil {
			return buf, nil
		}
		log.Debug().Uint64("modifier", mod).Err(err).Msg("modifier allocation attempt failed")
	}

	// Exhausted the list (or none was given): try the plain path.
	buf, err := d.allocateSingleModifier(fourcc, width, height, ModifierInvalid, gbmUsage)
	if err == nil {
		return buf, nil
	}

	return nil, fmt.Errorf("%w: %v", ErrAllocationFailed, err)
}

func (d *Device) allocateWithModifiers(fourcc uint32, width, height uint32, modifiers []uint64) (*Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cMods := make([]C.uint64_t, len(modifiers))
	for i, m := range modifiers {
		cMods[i] = C.uint64_t(m)
	}

	bo := C.gbm_bo_create_with_modifiers2(
		d.gbm,
		C.uint32_t(width), C.uint32_t(height),
		C.uint32_t(fourcc),
		(*C.uint64_t)(unsafe.Pointer(&cMods[0])), C.uint(len(cMods)),
		C.uint32_t(0),
	)
	if bo == nil {
		return nil, errors.New("gbm_bo_create_with_modifiers2 returned NULL")
	}
	return boToBuffer(bo, fourcc, width, height)
}

func (d *Device) allocateSingleModifier(fourcc uint32, width, height uint32, modifier uint64, gbmUsage uint32) (*Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var bo *C.struct_gbm_bo
	if modifier == ModifierInvalid || modifier == 0 /* LINEAR */ {
		bo = C.gbm_bo_create(d.gbm, C.uint32_t(width), C.uint32_t(height), C.uint32_t(fourcc), C.uint32_t(gbmUsage))
	} else {
		mods := [1]C.uint64_t{C.uint64_t(modifier)}
		bo = C.gbm_bo_create_with_modifiers2(d.gbm, C.uint32_t(width), C.uint32_t(height), C.uint32_t(fourcc), &mods[0], 1, 0)
	}
	if bo == nil {
		return nil, fmt.Errorf("gbm_bo_create failed for modifier 0x%x", modifier)
	}
	return boToBuffer(bo, fourcc, width, height)
}

func boToBuffer(bo *C.struct_gbm_bo, fourcc uint32, width, height uint32) (*Buffer, error) {
	planeCount := int(C.gbm_bo_get_plane_count(bo))
	if planeCount <= 0 || planeCount > 4 {
		C.gbm_bo_destroy(bo)
		return nil, fmt.Errorf("implausible plane count %d", planeCount)
	}

	buf := &Buffer{
		IsDMABuf: true,
		Width:    width,
		Height:   height,
		Fourcc:   fourcc,
		Modifier: uint64(C.gbm_bo_get_modifier(bo)),
		Planes:   make([]Plane, planeCount),
		bo:       bo,
	}

	for i := 0; i < planeCount; i++ {
		fd := int(C.gbm_bo_get_fd_for_plane(bo, C.int(i)))
		if fd < 0 {
			buf.Close()
			return nil, fmt.Errorf("gbm_bo_get_fd_for_plane(%d) failed", i)
		}
		buf.Planes[i] = Plane{
			Fd:     fd,
			Offset: uint32(C.gbm_bo_get_offset(bo, C.int(i))),
			Stride: uint32(C.gbm_bo_get_stride_for_plane(bo, C.int(i))),
			Size:   width * height * 4 / uint32(planeCount),
		}
	}
	return buf, nil
}
