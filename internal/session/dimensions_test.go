package session

import (
	"testing"

	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/compositor"
)

func TestLogicalDimensionsSwapsFor90And270(t *testing.T) {
	s := New("app", "/req", "/sess")
	s.Sharing.FrameInfoDMA.W = 1920
	s.Sharing.FrameInfoDMA.H = 1080

	s.Sharing.Transform = compositor.Transform90
	w, h := s.LogicalDimensions()
	if w != 1080 || h != 1920 {
		t.Errorf("90deg: got %dx%d, want 1080x1920", w, h)
	}

	s.Sharing.Transform = compositor.TransformNormal
	w, h = s.LogicalDimensions()
	if w != 1920 || h != 1080 {
		t.Errorf("normal: got %dx%d, want 1920x1080", w, h)
	}
}

func TestPhysicalCropIdentity(t *testing.T) {
	x, y, w, h := PhysicalCrop(compositor.TransformNormal, 100, 200, 640, 480, 1920, 1080)
	if x != 100 || y != 200 || w != 640 || h != 480 {
		t.Errorf("got %d,%d,%d,%d", x, y, w, h)
	}
}

// forwardTransform is an independent reference implementation of the
// output-transform math PhysicalCrop inverts: it rotates/flips a physical
// rectangle into logical coordinates using the same forward matrices as
// internal/render/matrix.go's transformTable (Transform90 and Transform270
// share one matrix there, so they share one forward case here too).
// physicalW/physicalH are always the untransformed output dimensions,
// never swapped for rotation, matching PhysicalCrop's own parameters.
func forwardTransform(t compositor.Transform, x, y, w, h, physicalW, physicalH int32) (lx, ly, lw, lh int32) {
	switch t {
	case compositor.TransformNormal:
		return x, y, w, h
	case compositor.Transform90, compositor.Transform270:
		return y, physicalW - x - w, h, w
	case compositor.Transform180:
		return physicalW - x - w, physicalH - y - h, w, h
	case compositor.TransformFlipped:
		return physicalW - x - w, y, w, h
	case compositor.TransformFlipped90:
		return physicalH - y - h, physicalW - x - w, h, w
	case compositor.TransformFlipped180:
		return x, physicalH - y - h, w, h
	case compositor.TransformFlipped270:
		return y, x, h, w
	default:
		return x, y, w, h
	}
}

func TestPhysicalCropRoundTrips(t *testing.T) {
	physW, physH := int32(1920), int32(1080)
	x, y, w, h := int32(100), int32(200), int32(300), int32(150)

	transforms := []compositor.Transform{
		compositor.TransformNormal, compositor.Transform90, compositor.Transform180, compositor.Transform270,
		compositor.TransformFlipped, compositor.TransformFlipped90, compositor.TransformFlipped180, compositor.TransformFlipped270,
	}
	for _, tr := range transforms {
		lx, ly, lw, lh := forwardTransform(tr, x, y, w, h, physW, physH)
		gotX, gotY, gotW, gotH := PhysicalCrop(tr, lx, ly, lw, lh, physW, physH)
		if gotX != x || gotY != y || gotW != w || gotH != h {
			t.Errorf("transform %v: round trip got %d,%d,%d,%d, want %d,%d,%d,%d", tr, gotX, gotY, gotW, gotH, x, y, w, h)
		}
	}
}

func TestPhysicalCropStaysWithinPhysicalSurface(t *testing.T) {
	physW, physH := int32(1920), int32(1080)
	transforms := []compositor.Transform{
		compositor.TransformNormal, compositor.Transform90, compositor.Transform180, compositor.Transform270,
		compositor.TransformFlipped, compositor.TransformFlipped90, compositor.TransformFlipped180, compositor.TransformFlipped270,
	}
	for _, tr := range transforms {
		logW, logH := physW, physH
		if tr.Rotated90Or270() {
			logW, logH = physH, physW
		}
		x, y, w, h := PhysicalCrop(tr, 10, 20, 100, 50, physW, physH)
		if x < 0 || y < 0 || x+w > physW || y+h > physH {
			t.Errorf("transform %v: crop %d,%d,%d,%d escapes physical surface %dx%d (logical was %dx%d)", tr, x, y, w, h, physW, physH, logW, logH)
		}
	}
}
