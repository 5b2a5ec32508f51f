package media

/*
#include <spa/param/video/format-utils.h>
*/
import "C"

// SPA video format ids for the two DRM fourccs the compositor
// realistically offers for screencopy: XRGB8888 and ARGB8888 (both
// little-endian byte order, matching wl_shm's ARGB8888/XRGB8888).
const (
	SPAFormatBGRx = uint32(C.SPA_VIDEO_FORMAT_BGRx)
	SPAFormatBGRA = uint32(C.SPA_VIDEO_FORMAT_BGRA)
)

// drmFourccXRGB8888 / drmFourccARGB8888 mirror libdrm's DRM_FORMAT_*
// constants without depending on libdrm's header from this package.
const (
	drmFourccXRGB8888 = 0x34325258 // 'XR24'
	drmFourccARGB8888 = 0x34325241 // 'AR24'
)

// SPAFormatFromDRMFourcc maps a DRM fourcc (as reported by the
// compositor's screencopy buffer event) to the matching SPA video
// format id.
func SPAFormatFromDRMFourcc(fourcc uint32) uint32 {
	switch fourcc {
	case drmFourccARGB8888:
		return SPAFormatBGRA
	default:
		return SPAFormatBGRx
	}
}
