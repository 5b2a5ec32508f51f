// Package portal is the Portal Façade: it publishes the ScreenCast
// backend-implementation interface on the session bus and translates its
// three methods into calls against the session state machine and
// selection provider. It owns no capture logic of its own.
package portal
