// Package media is the Media Stream Adapter: it wraps one PipeWire
// stream node per session, drives its state machine, negotiates pixel
// format and modifier with the consumer, and moves buffers through
// add/remove/dequeue/enqueue. PipeWire and its SPA POD parameter
// encoding are bound via cgo; nothing above this package touches a
// spa_pod directly.
package media
