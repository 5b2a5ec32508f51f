package render

/*
#cgo pkg-config: egl glesv2
#define EGL_EGLEXT_PROTOTYPES
#define GL_GLEXT_PROTOTYPES
#include <EGL/egl.h>
#include <EGL/eglext.h>
#include <GLES2/gl2.h>
#include <GLES2/gl2ext.h>
*/
import "C"

import (
	"fmt"
	"unsafe"

	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/compositor"
	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/gpu"
	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/logger"
)

// Render blits source into target through the single textured quad,
// applying transform and, if crop is non-nil, sampling only the crop
// rectangle. Both buffers must be DMA-BUF backed. On any failure the
// EGL images, GL objects and plane fds opened during this call are
// released before returning.
func (r *Renderer) Render(target, source *gpu.Buffer, transform compositor.Transform, crop *CropBox) error {
	log := logger.WithComponent("render")

	if !target.IsDMABuf || !source.IsDMABuf {
		return fmt.Errorf("render: both buffers must be DMA-BUF backed")
	}
	if len(source.Planes) == 0 || len(target.Planes) == 0 {
		return fmt.Errorf("render: buffer has no planes")
	}

	sourceImage, err := r.importDMABufImage(source.Planes[0].Fd, source.Width, source.Height, source.Fourcc, source.Planes[0].Offset, source.Planes[0].Stride)
	if err != nil {
		return fmt.Errorf("import source image: %w", err)
	}
	defer C.eglDestroyImageKHR(r.display, sourceImage)

	targetImage, err := r.importDMABufImage(target.Planes[0].Fd, target.Width, target.Height, target.Fourcc, target.Planes[0].Offset, target.Planes[0].Stride)
	if err != nil {
		return fmt.Errorf("import target image: %w", err)
	}
	defer C.eglDestroyImageKHR(r.display, targetImage)

	sourceTex := genTextureFromImage(sourceImage)
	defer C.glDeleteTextures(1, &sourceTex)

	targetTex := genTextureFromImage(targetImage)
	defer C.glDeleteTextures(1, &targetTex)
	C.glBindTexture(C.GL_TEXTURE_2D, 0)

	var fbo C.GLuint
	C.glGenFramebuffers(1, &fbo)
	defer C.glDeleteFramebuffers(1, &fbo)
	C.glBindFramebuffer(C.GL_FRAMEBUFFER, fbo)
	defer C.glBindFramebuffer(C.GL_FRAMEBUFFER, 0)
	C.glFramebufferTexture2D(C.GL_FRAMEBUFFER, C.GL_COLOR_ATTACHMENT0, C.GL_TEXTURE_2D, targetTex, 0)

	if status := C.glCheckFramebufferStatus(C.GL_FRAMEBUFFER); status != C.GL_FRAMEBUFFER_COMPLETE {
		return fmt.Errorf("render: FBO incomplete: 0x%x", uint32(status))
	}

	C.glViewport(0, 0, C.GLsizei(target.Width), C.GLsizei(target.Height))

	proj := ProjectionMatrix(transform)
	if crop != nil {
		log.Trace().Float32("x", crop.X).Float32("y", crop.Y).Float32("w", crop.W).Float32("h", crop.H).Msg("using crop box")
	}
	uStart, vStart, uEnd, vEnd := uvWindow(crop, float32(source.Width), float32(source.Height))
	tex := quadTexCoords(uStart, vStart, uEnd, vEnd)
	verts := quadVerts

	C.glUseProgram(r.program)

	C.glVertexAttribPointer(C.GLuint(r.attrPos), 2, C.GL_FLOAT, C.GL_FALSE, 0, unsafe.Pointer(&verts[0]))
	C.glVertexAttribPointer(C.GLuint(r.attrTex), 2, C.GL_FLOAT, C.GL_FALSE, 0, unsafe.Pointer(&tex[0]))
	C.glEnableVertexAttribArray(C.GLuint(r.attrPos))
	defer C.glDisableVertexAttribArray(C.GLuint(r.attrPos))
	C.glEnableVertexAttribArray(C.GLuint(r.attrTex))
	defer C.glDisableVertexAttribArray(C.GLuint(r.attrTex))

	C.glUniformMatrix3fv(r.uniProj, 1, C.GL_FALSE, (*C.GLfloat)(unsafe.Pointer(&proj[0])))
	C.glUniform1i(r.uniTex, 0)
	C.glUniform1f(r.uniAlpha, 1.0)

	C.glActiveTexture(C.GL_TEXTURE0)
	C.glBindTexture(C.GL_TEXTURE_2D, sourceTex)

	C.glDrawArrays(C.GL_TRIANGLE_FAN, 0, 4)
	C.glFinish()

	if glErr := C.glGetError(); glErr != C.GL_NO_ERROR {
		return fmt.Errorf("render: GL error after draw: 0x%x", uint32(glErr))
	}
	return nil
}

func (r *Renderer) importDMABufImage(fd int, width, height, fourcc, offset, stride uint32) (C.EGLImageKHR, error) {
	attribs := []C.EGLint{
		C.EGL_WIDTH, C.EGLint(width),
		C.EGL_HEIGHT, C.EGLint(height),
		C.EGL_LINUX_DRM_FOURCC_EXT, C.EGLint(fourcc),
		C.EGL_DMA_BUF_PLANE0_FD_EXT, C.EGLint(fd),
		C.EGL_DMA_BUF_PLANE0_OFFSET_EXT, C.EGLint(offset),
		C.EGL_DMA_BUF_PLANE0_PITCH_EXT, C.EGLint(stride),
		C.EGL_NONE,
	}
	image := C.eglCreateImageKHR(r.display, C.EGL_NO_CONTEXT, C.EGL_LINUX_DMA_BUF_EXT, nil, &attribs[0])
	if image == C.EGL_NO_IMAGE_KHR {
		return nil, fmt.Errorf("%w: eglCreateImageKHR failed", ErrRendererUnavailable)
	}
	return image, nil
}

func genTextureFromImage(image C.EGLImageKHR) C.GLuint {
	var tex C.GLuint
	C.glGenTextures(1, &tex)
	C.glBindTexture(C.GL_TEXTURE_2D, tex)
	C.glTexParameteri(C.GL_TEXTURE_2D, C.GL_TEXTURE_WRAP_S, C.GL_CLAMP_TO_EDGE)
	C.glTexParameteri(C.GL_TEXTURE_2D, C.GL_TEXTURE_WRAP_T, C.GL_CLAMP_TO_EDGE)
	C.glTexParameteri(C.GL_TEXTURE_2D, C.GL_TEXTURE_MAG_FILTER, C.GL_LINEAR)
	C.glTexParameteri(C.GL_TEXTURE_2D, C.GL_TEXTURE_MIN_FILTER, C.GL_LINEAR)
	C.glEGLImageTargetTexture2DOES(C.GL_TEXTURE_2D, C.GLeglImageOES(image))
	return tex
}
