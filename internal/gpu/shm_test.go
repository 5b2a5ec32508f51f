package gpu_test

import (
	"testing"

	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/gpu"
)

func TestAllocateSHMSizesBufferCorrectly(t *testing.T) {
	buf, err := gpu.AllocateSHM(640, 480, 640*4)
	if err != nil {
		t.Fatalf("AllocateSHM() failed: %v", err)
	}
	defer buf.Close()

	if len(buf.Planes) != 1 {
		t.Fatalf("Planes = %d, want 1", len(buf.Planes))
	}
	want := uint32(640 * 4 * 480)
	if buf.Planes[0].Size != want {
		t.Errorf("Planes[0].Size = %d, want %d", buf.Planes[0].Size, want)
	}
	if buf.Planes[0].Fd < 0 {
		t.Errorf("Planes[0].Fd = %d, want a valid fd", buf.Planes[0].Fd)
	}
}

func TestAllocateSHMCloseIsIdempotentSafe(t *testing.T) {
	buf, err := gpu.AllocateSHM(64, 64, 64*4)
	if err != nil {
		t.Fatalf("AllocateSHM() failed: %v", err)
	}
	if err := buf.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if buf.Planes[0].Fd != -1 {
		t.Errorf("Planes[0].Fd = %d after Close, want -1", buf.Planes[0].Fd)
	}
	if err := buf.Close(); err != nil {
		t.Errorf("second Close() failed: %v", err)
	}
}

func TestMapRejectsDMABuf(t *testing.T) {
	buf := &gpu.Buffer{IsDMABuf: true}
	if _, err := buf.Map(); err == nil {
		t.Error("Map() on a DMA-BUF buffer should fail")
	}
}
