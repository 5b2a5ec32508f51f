// Package gpu is the buffer allocator: it produces DMA-BUF buffers backed
// by GBM or, as a fallback, anonymous SHM buffers backed by memfd, for a
// requested geometry/format/modifier. GBM/EGL/GLESv2 are bound via cgo;
// nothing above this package ever touches a raw device handle.
package gpu
