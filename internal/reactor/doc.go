// Package reactor drives the daemon's single-threaded main loop: a poll
// thread blocks on the Wayland and PipeWire file descriptors plus a wake
// pipe, a timer thread sleeps until the nearest scheduled deadline, and
// the main loop itself does all actual dispatch work so no two
// goroutines ever touch the compositor or media state concurrently.
package reactor
