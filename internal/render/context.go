package render

/*
#cgo pkg-config: egl glesv2
#define EGL_EGLEXT_PROTOTYPES
#define GL_GLEXT_PROTOTYPES
#include <EGL/egl.h>
#include <EGL/eglext.h>
#include <GLES2/gl2.h>
#include <GLES2/gl2ext.h>
#include <stdlib.h>

static EGLDisplay xdpw_get_platform_display(void *gbmDevice) {
	PFNEGLGETPLATFORMDISPLAYEXTPROC getPlatformDisplay =
		(PFNEGLGETPLATFORMDISPLAYEXTPROC)eglGetProcAddress("eglGetPlatformDisplayEXT");
	if (!getPlatformDisplay) {
		return EGL_NO_DISPLAY;
	}
	return getPlatformDisplay(EGL_PLATFORM_GBM_KHR, gbmDevice, NULL);
}
*/
import "C"

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/gpu"
)

// ErrRendererUnavailable is returned when the EGL/GLES2 context could
// not be created, e.g. no matching config or extension support.
var ErrRendererUnavailable = errors.New("render: EGL context unavailable")

// Renderer owns a headless EGL context bound to a GBM device, and a
// single compiled shader program used for every blit.
type Renderer struct {
	display C.EGLDisplay
	context C.EGLContext

	program  C.GLuint
	attrPos  C.GLint
	attrTex  C.GLint
	uniProj  C.GLint
	uniTex   C.GLint
	uniAlpha C.GLint
}

// New creates a headless EGL/GLES2 context against dev's GBM device and
// compiles the blit shader program.
func New(dev *gpu.Device) (*Renderer, error) {
	display := C.xdpw_get_platform_display(dev.NativeHandle())
	if display == C.EGL_NO_DISPLAY {
		return nil, fmt.Errorf("%w: eglGetPlatformDisplayEXT failed", ErrRendererUnavailable)
	}

	var major, minor C.EGLint
	if C.eglInitialize(display, &major, &minor) == C.EGL_FALSE {
		return nil, fmt.Errorf("%w: eglInitialize failed", ErrRendererUnavailable)
	}

	if C.eglBindAPI(C.EGL_OPENGL_ES_API) == C.EGL_FALSE {
		return nil, fmt.Errorf("%w: eglBindAPI(GLES) failed", ErrRendererUnavailable)
	}

	configAttribs := []C.EGLint{
		C.EGL_SURFACE_TYPE, C.EGL_PBUFFER_BIT,
		C.EGL_RENDERABLE_TYPE, C.EGL_OPENGL_ES2_BIT,
		C.EGL_NONE,
	}
	var config C.EGLConfig
	var numConfigs C.EGLint
	if C.eglChooseConfig(display, &configAttribs[0], &config, 1, &numConfigs) == C.EGL_FALSE || numConfigs == 0 {
		return nil, fmt.Errorf("%w: eglChooseConfig found no usable config", ErrRendererUnavailable)
	}

	ctxAttribs := []C.EGLint{
		C.EGL_CONTEXT_CLIENT_VERSION, 2,
		C.EGL_NONE,
	}
	ctx := C.eglCreateContext(display, config, C.EGL_NO_CONTEXT, &ctxAttribs[0])
	if ctx == C.EGL_NO_CONTEXT {
		return nil, fmt.Errorf("%w: eglCreateContext failed", ErrRendererUnavailable)
	}

	if C.eglMakeCurrent(display, C.EGL_NO_SURFACE, C.EGL_NO_SURFACE, ctx) == C.EGL_FALSE {
		C.eglDestroyContext(display, ctx)
		return nil, fmt.Errorf("%w: eglMakeCurrent failed", ErrRendererUnavailable)
	}

	program, attrs, unis, err := compileProgram()
	if err != nil {
		C.eglDestroyContext(display, ctx)
		return nil, err
	}

	return &Renderer{
		display:  display,
		context:  ctx,
		program:  program,
		attrPos:  attrs.pos,
		attrTex:  attrs.texcoord,
		uniProj:  unis.proj,
		uniTex:   unis.tex,
		uniAlpha: unis.alpha,
	}, nil
}

// Close releases the GL program and EGL context.
func (r *Renderer) Close() {
	if r.program != 0 {
		C.glDeleteProgram(r.program)
		r.program = 0
	}
	if r.display != C.EGL_NO_DISPLAY {
		C.eglMakeCurrent(r.display, C.EGL_NO_SURFACE, C.EGL_NO_SURFACE, C.EGL_NO_CONTEXT)
		if r.context != C.EGL_NO_CONTEXT {
			C.eglDestroyContext(r.display, r.context)
			r.context = C.EGL_NO_CONTEXT
		}
		C.eglTerminate(r.display)
		r.display = C.EGL_NO_DISPLAY
	}
}

type attribLocations struct {
	pos, texcoord C.GLint
}

type uniformLocations struct {
	proj, tex, alpha C.GLint
}

func compileProgram() (C.GLuint, attribLocations, uniformLocations, error) {
	vs, err := compileShader(C.GL_VERTEX_SHADER, vertexShaderSource)
	if err != nil {
		return 0, attribLocations{}, uniformLocations{}, err
	}
	defer C.glDeleteShader(vs)

	fs, err := compileShader(C.GL_FRAGMENT_SHADER, fragmentShaderSource)
	if err != nil {
		return 0, attribLocations{}, uniformLocations{}, err
	}
	defer C.glDeleteShader(fs)

	program := C.glCreateProgram()
	C.glAttachShader(program, vs)
	C.glAttachShader(program, fs)
	C.glLinkProgram(program)

	var status C.GLint
	C.glGetProgramiv(program, C.GL_LINK_STATUS, &status)
	if status == C.GL_FALSE {
		C.glDeleteProgram(program)
		return 0, attribLocations{}, uniformLocations{}, fmt.Errorf("%w: shader program link failed", ErrRendererUnavailable)
	}

	posName := C.CString("pos")
	defer C.free(unsafe.Pointer(posName))
	texName := C.CString("texcoord")
	defer C.free(unsafe.Pointer(texName))
	projName := C.CString("proj")
	defer C.free(unsafe.Pointer(projName))
	texUniName := C.CString("tex")
	defer C.free(unsafe.Pointer(texUniName))
	alphaName := C.CString("alpha")
	defer C.free(unsafe.Pointer(alphaName))

	attrs := attribLocations{
		pos:      C.glGetAttribLocation(program, posName),
		texcoord: C.glGetAttribLocation(program, texName),
	}
	unis := uniformLocations{
		proj:  C.glGetUniformLocation(program, projName),
		tex:   C.glGetUniformLocation(program, texUniName),
		alpha: C.glGetUniformLocation(program, alphaName),
	}
	return program, attrs, unis, nil
}

func compileShader(kind C.GLenum, source string) (C.GLuint, error) {
	shader := C.glCreateShader(kind)
	csrc := C.CString(source)
	defer C.free(unsafe.Pointer(csrc))
	C.glShaderSource(shader, 1, &csrc, nil)
	C.glCompileShader(shader)

	var status C.GLint
	C.glGetShaderiv(shader, C.GL_COMPILE_STATUS, &status)
	if status == C.GL_FALSE {
		var logLen C.GLint
		C.glGetShaderiv(shader, C.GL_INFO_LOG_LENGTH, &logLen)
		buf := make([]byte, int(logLen)+1)
		C.glGetShaderInfoLog(shader, logLen, nil, (*C.GLchar)(unsafe.Pointer(&buf[0])))
		C.glDeleteShader(shader)
		return 0, fmt.Errorf("%w: shader compile failed: %s", ErrRendererUnavailable, string(buf))
	}
	return shader, nil
}
