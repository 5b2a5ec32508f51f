package render

// CropBox is a pixel-space rectangle within the source buffer. A nil
// *CropBox means "use the whole source".
type CropBox struct {
	X, Y, W, H float32
}

// uvWindow derives the normalized texture-coordinate window for crop
// within a sourceW x sourceH source buffer. With no crop, the window is
// the full [0,1] range.
func uvWindow(crop *CropBox, sourceW, sourceH float32) (uStart, vStart, uEnd, vEnd float32) {
	if crop == nil {
		return 0, 0, 1, 1
	}
	uStart = crop.X / sourceW
	vStart = crop.Y / sourceH
	uEnd = (crop.X + crop.W) / sourceW
	vEnd = (crop.Y + crop.H) / sourceH
	return
}

// quadVerts is the fixed clip-space vertex position for the single
// textured quad, wound as a triangle fan: top-left, top-right,
// bottom-right, bottom-left.
var quadVerts = [8]float32{
	0, 1,
	1, 1,
	1, 0,
	0, 0,
}

// quadTexCoords builds the per-vertex texture coordinates for the same
// winding as quadVerts. The V axis is inverted relative to the UV
// window because texture (0,0) is the bottom-left of the source image.
func quadTexCoords(uStart, vStart, uEnd, vEnd float32) [8]float32 {
	return [8]float32{
		uStart, vEnd,
		uEnd, vEnd,
		uEnd, vStart,
		uStart, vStart,
	}
}
