// Package debugserver exposes a read-only HTTP introspection surface for
// live sessions, outputs and toplevels. It is off by default and, once
// started, never touches compositor or session state directly: callers
// push an immutable Snapshot in through Update, and every handler reads
// only from the most recently published one.
package debugserver
