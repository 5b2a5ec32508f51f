// Package protocol holds the wayland-scanner-generated client headers this
// module's cgo code compiles against. Nothing here is Go; generate.go only
// carries the go:generate directives that produce
// wlr-screencopy-unstable-v1-client-protocol.{c,h},
// hyprland-toplevel-export-v1-client-protocol.{c,h},
// wlr-foreign-toplevel-management-unstable-v1-client-protocol.{c,h} and
// linux-dmabuf-v1-client-protocol.{c,h} from their upstream XML
// descriptions, matching the way every other Go project in this
// codebase's ecosystem that binds Wayland client protocols generates
// its headers rather than hand-transcribing them.
package protocol

//go:generate wayland-scanner client-header wlr-screencopy-unstable-v1.xml wlr-screencopy-unstable-v1-client-protocol.h
//go:generate wayland-scanner private-code wlr-screencopy-unstable-v1.xml wlr-screencopy-unstable-v1-client-protocol.c
//go:generate wayland-scanner client-header hyprland-toplevel-export-v1.xml hyprland-toplevel-export-v1-client-protocol.h
//go:generate wayland-scanner private-code hyprland-toplevel-export-v1.xml hyprland-toplevel-export-v1-client-protocol.c
//go:generate wayland-scanner client-header wlr-foreign-toplevel-management-unstable-v1.xml wlr-foreign-toplevel-management-unstable-v1-client-protocol.h
//go:generate wayland-scanner private-code wlr-foreign-toplevel-management-unstable-v1.xml wlr-foreign-toplevel-management-unstable-v1-client-protocol.c
//go:generate wayland-scanner client-header linux-dmabuf-v1.xml linux-dmabuf-v1-client-protocol.h
//go:generate wayland-scanner private-code linux-dmabuf-v1.xml linux-dmabuf-v1-client-protocol.c
