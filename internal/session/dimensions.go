package session

import "github.com/bryanchriswhite/xdg-portal-wayfar/internal/compositor"

// TargetDimensions returns the physical (pre-transform) frame size the
// compositor reports for this session's capture, as delivered by the
// buffer/linux_dmabuf events.
func (s *Session) TargetDimensions() (width, height uint32) {
	return s.Sharing.FrameInfoDMA.W, s.Sharing.FrameInfoDMA.H
}

// LogicalDimensions returns the size the client sees on the media stream:
// the physical dimensions with width/height swapped for a 90 or 270
// degree rotation (including their flipped variants), matching the
// original screencopy implementation's behavior.
func (s *Session) LogicalDimensions() (width, height uint32) {
	w, h := s.TargetDimensions()
	if s.Sharing.Transform.Rotated90Or270() {
		return h, w
	}
	return w, h
}

// PhysicalCrop derives the physical-coordinate crop rectangle from a
// GEOMETRY selection given in logical (post-transform) coordinates, per
// the inverse of the output transform. physicalW/physicalH are the
// output's untransformed pixel dimensions.
func PhysicalCrop(t compositor.Transform, logicalX, logicalY, logicalW, logicalH int32, physicalW, physicalH int32) (x, y, w, h int32) {
	switch t {
	case compositor.TransformNormal:
		return logicalX, logicalY, logicalW, logicalH
	case compositor.Transform90, compositor.Transform270:
		// transformTable gives these two the same forward matrix (see
		// internal/render/matrix.go), so they share the same inverse.
		return physicalW - logicalY - logicalH, logicalX, logicalH, logicalW
	case compositor.Transform180:
		return physicalW - logicalX - logicalW, physicalH - logicalY - logicalH, logicalW, logicalH
	case compositor.TransformFlipped:
		return physicalW - logicalX - logicalW, logicalY, logicalW, logicalH
	case compositor.TransformFlipped90:
		return physicalW - logicalY - logicalH, physicalH - logicalX - logicalW, logicalH, logicalW
	case compositor.TransformFlipped180:
		return logicalX, physicalH - logicalY - logicalH, logicalW, logicalH
	case compositor.TransformFlipped270:
		return logicalY, logicalX, logicalH, logicalW
	default:
		return logicalX, logicalY, logicalW, logicalH
	}
}
