// Package compositor is the daemon's only point of contact with the
// Wayland compositor. It owns the wl_display connection, the output and
// toplevel registries, and the screencopy/toplevel-export frame-capture
// protocols.
//
// Every wire detail lives behind cgo bindings to libwayland-client and the
// generated client headers for wlr-screencopy-unstable-v1,
// hyprland-toplevel-export-v1 and wlr-foreign-toplevel-management-unstable-v1
// (see protocol/generate.go). Callers outside this package never see a
// wl_proxy; they see typed Go values delivered over channels.
package compositor
