// Package session is the Session State Machine: one instance per
// client capture contract. It owns the selection, drives the
// compositor frame-capture request/reply cycle, and hands finished
// frames to the media adapter, with retry and renegotiation built
// into the per-tick frame-copy logic.
package session
