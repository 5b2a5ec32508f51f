package render

/*
#cgo pkg-config: egl glesv2
#define EGL_EGLEXT_PROTOTYPES
#include <EGL/egl.h>
#include <EGL/eglext.h>
#include <stdlib.h>

static EGLBoolean xdpw_query_dmabuf_modifiers(EGLDisplay dpy, EGLint fourcc, EGLint maxModifiers, EGLuint64KHR *modifiers, EGLBoolean *externalOnly, EGLint *numModifiers) {
	PFNEGLQUERYDMABUFMODIFIERSEXTPROC queryModifiers =
		(PFNEGLQUERYDMABUFMODIFIERSEXTPROC)eglGetProcAddress("eglQueryDmaBufModifiersEXT");
	if (!queryModifiers) {
		return EGL_FALSE;
	}
	return queryModifiers(dpy, fourcc, maxModifiers, modifiers, externalOnly, numModifiers);
}
*/
import "C"

// QueryModifiers asks the EGL implementation which DRM format modifiers
// it supports for fourcc, via EGL_EXT_image_dma_buf_import_modifiers.
// It returns nil if the extension is unavailable or the format is
// unsupported; callers should fall back to the allocator's own default
// modifier set in that case.
func (r *Renderer) QueryModifiers(fourcc uint32) []uint64 {
	const maxModifiers = 64
	cMods := make([]C.EGLuint64KHR, maxModifiers)
	externalOnly := make([]C.EGLBoolean, maxModifiers)
	var numModifiers C.EGLint

	ok := C.xdpw_query_dmabuf_modifiers(
		r.display,
		C.EGLint(fourcc),
		C.EGLint(maxModifiers),
		&cMods[0],
		&externalOnly[0],
		&numModifiers,
	)
	if ok == C.EGL_FALSE || numModifiers <= 0 {
		return nil
	}

	mods := make([]uint64, int(numModifiers))
	for i := range mods {
		mods[i] = uint64(cMods[i])
	}
	return mods
}
