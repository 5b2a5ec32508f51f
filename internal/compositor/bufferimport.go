package compositor

/*
#cgo pkg-config: wayland-client
#include <stdlib.h>
#include <sys/mman.h>
#include <wayland-client.h>
#include "protocol/linux-dmabuf-v1-client-protocol.h"

extern const struct zwp_linux_buffer_params_v1_listener xdpw_dmabuf_params_listener;

static struct wl_buffer *xdpw_shm_pool_create_buffer(struct wl_shm *shm, int fd, int32_t size, int32_t width,
                                                      int32_t height, int32_t stride, uint32_t format) {
    struct wl_shm_pool *pool = wl_shm_create_pool(shm, fd, size);
    if (!pool)
        return NULL;
    struct wl_buffer *buf = wl_shm_pool_create_buffer(pool, 0, width, height, stride, format);
    wl_shm_pool_destroy(pool);
    return buf;
}
*/
import "C"

import (
	"errors"
	"sync"
	"unsafe"

	"github.com/mattn/go-pointer"

	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/gpu"
)

// ErrNoShm is returned by ImportSHM when the compositor never advertised
// wl_shm (which would be unusual, but the daemon does not assume it).
var ErrNoShm = errors.New("compositor: wl_shm global not bound")

// ErrNoLinuxDmabuf is returned by ImportDMABuf when the compositor never
// advertised zwp_linux_dmabuf_v1.
var ErrNoLinuxDmabuf = errors.New("compositor: zwp_linux_dmabuf_v1 global not bound")

// DestroyBuffer releases a wl_buffer handle previously returned by ImportSHM
// or ImportDMABuf.
func (d *Display) DestroyBuffer(handle unsafe.Pointer) {
	if handle == nil {
		return
	}
	C.wl_buffer_destroy((*C.struct_wl_buffer)(handle))
}

// ImportSHM wraps a shared-memory Buffer's single plane fd in a wl_shm_pool
// and returns the resulting wl_buffer as an opaque handle suitable for
// FrameCapture.AttachAndCopy.
func (d *Display) ImportSHM(buf *gpu.Buffer, fourcc Fourcc) (unsafe.Pointer, error) {
	d.mu.Lock()
	shm := d.shm
	d.mu.Unlock()
	if shm == nil {
		return nil, ErrNoShm
	}
	if len(buf.Planes) != 1 {
		return nil, errors.New("compositor: shm buffer must have exactly one plane")
	}
	plane := buf.Planes[0]

	wlBuf := C.xdpw_shm_pool_create_buffer(shm, C.int(plane.Fd), C.int32_t(plane.Size),
		C.int32_t(buf.Width), C.int32_t(buf.Height), C.int32_t(plane.Stride), C.uint32_t(fourcc))
	if wlBuf == nil {
		return nil, errors.New("compositor: wl_shm_pool_create_buffer failed")
	}
	return unsafe.Pointer(wlBuf), nil
}

type dmabufImport struct {
	done   chan struct{}
	buffer *C.struct_wl_buffer
	failed bool
}

var (
	dmabufImportsMu sync.Mutex
	dmabufImports   = map[unsafe.Pointer]*dmabufImport{}
)

// ImportDMABuf wraps a DMA-BUF Buffer's planes in a zwp_linux_buffer_params_v1
// request and blocks (via a synchronous compositor roundtrip) until the
// compositor replies with `created` or `failed`.
func (d *Display) ImportDMABuf(buf *gpu.Buffer) (unsafe.Pointer, error) {
	d.mu.Lock()
	dmabuf := d.linuxDmabuf
	d.mu.Unlock()
	if dmabuf == nil {
		return nil, ErrNoLinuxDmabuf
	}

	params := C.zwp_linux_dmabuf_v1_create_params(dmabuf)
	if params == nil {
		return nil, errors.New("compositor: zwp_linux_dmabuf_v1_create_params failed")
	}
	for i, p := range buf.Planes {
		modHi := C.uint32_t(buf.Modifier >> 32)
		modLo := C.uint32_t(buf.Modifier & 0xffffffff)
		C.zwp_linux_buffer_params_v1_add(params, C.int32_t(p.Fd), C.uint32_t(i),
			C.uint32_t(p.Offset), C.uint32_t(p.Stride), modHi, modLo)
	}

	imp := &dmabufImport{done: make(chan struct{})}
	token := pointer.Save(imp)
	defer pointer.Unref(token)

	dmabufImportsMu.Lock()
	dmabufImports[unsafe.Pointer(params)] = imp
	dmabufImportsMu.Unlock()
	defer func() {
		dmabufImportsMu.Lock()
		delete(dmabufImports, unsafe.Pointer(params))
		dmabufImportsMu.Unlock()
	}()

	C.zwp_linux_buffer_params_v1_add_listener(params, &C.xdpw_dmabuf_params_listener, token)
	C.zwp_linux_buffer_params_v1_create(params, C.int32_t(buf.Width), C.int32_t(buf.Height), C.uint32_t(buf.Fourcc), 0)

	for {
		select {
		case <-imp.done:
			C.zwp_linux_buffer_params_v1_destroy(params)
			if imp.failed || imp.buffer == nil {
				return nil, errors.New("compositor: zwp_linux_buffer_params_v1 import failed")
			}
			return unsafe.Pointer(imp.buffer), nil
		default:
			if _, err := d.Roundtrip(); err != nil {
				C.zwp_linux_buffer_params_v1_destroy(params)
				return nil, err
			}
		}
	}
}

//export xdpwHandleDmabufParamsCreated
func xdpwHandleDmabufParamsCreated(data unsafe.Pointer, params *C.struct_zwp_linux_buffer_params_v1, buffer *C.struct_wl_buffer) {
	imp, ok := pointer.Restore(data).(*dmabufImport)
	if !ok {
		return
	}
	imp.buffer = buffer
	close(imp.done)
}

//export xdpwHandleDmabufParamsFailed
func xdpwHandleDmabufParamsFailed(data unsafe.Pointer, params *C.struct_zwp_linux_buffer_params_v1) {
	imp, ok := pointer.Restore(data).(*dmabufImport)
	if !ok {
		return
	}
	imp.failed = true
	close(imp.done)
}
