// Package render is the Transform Renderer: it blits a captured source
// buffer into a destination buffer through a single textured quad,
// applying the compositor's output transform and an optional crop
// rectangle. It is the only package that touches EGL/GLES2, bound via
// cgo against a GBM-backed DMA-BUF pair from package gpu.
package render
