package gpu

/*
#cgo pkg-config: gbm libdrm
#include <stdlib.h>
#include <fcntl.h>
#include <xf86drm.h>
#include <gbm.h>
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ModifierInvalid is DRM_FORMAT_MOD_INVALID: the sentinel meaning "let the
// allocator pick, no explicit tiling/compression requested".
const ModifierInvalid uint64 = 0x00ffffffffffffff

// Device is the process-global GBM device. It is opened once at daemon
// startup and shared by every session's buffer allocations.
type Device struct {
	mu   sync.Mutex
	fd   int
	gbm  *C.struct_gbm_device
	path string
}

var (
	globalOnce sync.Once
	global     *Device
	globalErr  error
)

// Open opens (once per process) the render node at path, defaulting to
// /dev/dri/renderD128 when path is empty.
func Open(path string) (*Device, error) {
	globalOnce.Do(func() {
		if path == "" {
			path = "/dev/dri/renderD128"
		}
		fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
		if err != nil {
			globalErr = fmt.Errorf("open drm render node %s: %w", path, err)
			return
		}
		gbmDev := C.gbm_create_device(C.int(fd))
		if gbmDev == nil {
			unix.Close(fd)
			globalErr = fmt.Errorf("gbm_create_device(%s) failed", path)
			return
		}
		global = &Device{fd: fd, gbm: gbmDev, path: path}
	})
	return global, globalErr
}

// Close releases the GBM device and the underlying DRM fd. Should only be
// called during daemon shutdown.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gbm != nil {
		C.gbm_device_destroy(d.gbm)
		d.gbm = nil
	}
	if d.fd >= 0 {
		unix.Close(d.fd)
		d.fd = -1
	}
}

// NativeHandle returns the underlying struct gbm_device* as an
// unsafe.Pointer, for packages (render) that need to open an EGL
// platform display against the same GBM device without linking gbm.h
// themselves.
func (d *Device) NativeHandle() unsafe.Pointer {
	return unsafe.Pointer(d.gbm)
}

// SupportedModifiers returns the modifier list offered for fourcc. It does
// not query the device and does no plane-count filtering: the list is
// always the single entry ModifierInvalid, whatever fourcc is.
func (d *Device) SupportedModifiers(fourcc uint32) []uint64 {
	return []uint64{ModifierInvalid}
}
