package media

import "testing"

func TestSPAFormatFromDRMFourccDefaultsToBGRx(t *testing.T) {
	if got := SPAFormatFromDRMFourcc(drmFourccXRGB8888); got != SPAFormatBGRx {
		t.Errorf("SPAFormatFromDRMFourcc(XRGB8888) = %v, want BGRx", got)
	}
}

func TestSPAFormatFromDRMFourccMapsARGB(t *testing.T) {
	if got := SPAFormatFromDRMFourcc(drmFourccARGB8888); got != SPAFormatBGRA {
		t.Errorf("SPAFormatFromDRMFourcc(ARGB8888) = %v, want BGRA", got)
	}
}
