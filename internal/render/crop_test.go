package render

import "testing"

func TestUVWindowNilCropIsFullRange(t *testing.T) {
	uStart, vStart, uEnd, vEnd := uvWindow(nil, 1920, 1080)
	if uStart != 0 || vStart != 0 || uEnd != 1 || vEnd != 1 {
		t.Errorf("uvWindow(nil) = %v,%v,%v,%v, want 0,0,1,1", uStart, vStart, uEnd, vEnd)
	}
}

func TestUVWindowDerivesFromCropBox(t *testing.T) {
	crop := &CropBox{X: 100, Y: 50, W: 200, H: 100}
	uStart, vStart, uEnd, vEnd := uvWindow(crop, 1000, 500)
	if uStart != 0.1 {
		t.Errorf("uStart = %v, want 0.1", uStart)
	}
	if vStart != 0.1 {
		t.Errorf("vStart = %v, want 0.1", vStart)
	}
	if uEnd != 0.3 {
		t.Errorf("uEnd = %v, want 0.3", uEnd)
	}
	if vEnd != 0.3 {
		t.Errorf("vEnd = %v, want 0.3", vEnd)
	}
}

func TestQuadTexCoordsInvertsVAxis(t *testing.T) {
	tc := quadTexCoords(0.1, 0.2, 0.9, 0.8)
	// Top-left vertex samples (uStart, vEnd) per the V-axis inversion.
	if tc[0] != 0.1 || tc[1] != 0.8 {
		t.Errorf("top-left texcoord = %v,%v, want 0.1,0.8", tc[0], tc[1])
	}
	// Bottom-left vertex samples (uStart, vStart).
	if tc[6] != 0.1 || tc[7] != 0.2 {
		t.Errorf("bottom-left texcoord = %v,%v, want 0.1,0.2", tc[6], tc[7])
	}
}
