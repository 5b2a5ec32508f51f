package gpu

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// AllocateSHM opens an anonymous tmpfs-backed fd via memfd_create, sizes it
// with ftruncate, and returns a single-plane Buffer wrapping it. The
// compositor package imports this into a wl_shm_pool-backed wl_buffer.
func AllocateSHM(width, height, stride uint32) (*Buffer, error) {
	size := int64(stride) * int64(height)

	fd, err := unix.MemfdCreate("xdg-portal-wayfar-shm", unix.MFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("%w: memfd_create: %v", ErrShmOpenFailed, err)
	}

	if err := unix.Ftruncate(fd, size); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: ftruncate: %v", ErrShmOpenFailed, err)
	}

	return &Buffer{
		IsDMABuf: false,
		Width:    width,
		Height:   height,
		Planes: []Plane{{
			Fd:     fd,
			Offset: 0,
			Stride: stride,
			Size:   uint32(size),
		}},
	}, nil
}

// Map returns a read-only mmap'd view of the SHM buffer's single plane for
// CPU-side reads outside the compositor's own copy path. The capture path
// never calls it.
func (b *Buffer) Map() ([]byte, error) {
	if b.IsDMABuf || len(b.Planes) != 1 {
		return nil, fmt.Errorf("gpu: Map only supported for single-plane SHM buffers")
	}
	p := b.Planes[0]
	return unix.Mmap(p.Fd, 0, int(p.Size), unix.PROT_READ, unix.MAP_SHARED)
}
