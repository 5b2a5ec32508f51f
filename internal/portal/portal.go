package portal

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"

	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/compositor"
	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/config"
	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/logger"
	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/selection"
	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/session"
)

const (
	busName    = "org.freedesktop.impl.portal.desktop.xdg-portal-wayfar"
	objectPath = dbus.ObjectPath("/org/freedesktop/portal/desktop")
	ifaceName  = "org.freedesktop.impl.portal.ScreenCast"
)

// MainLoopCaller runs fn on the daemon's single dispatch goroutine and
// blocks until it returns, yielding its error. Every ScreenCast method
// here is invoked on godbus's own dispatch goroutine, so anything that
// touches the compositor connection or the PipeWire loop must be routed
// through it rather than called inline.
type MainLoopCaller func(fn func() error) error

// Portal owns the session-bus connection and every collaborator the
// three ScreenCast methods need: the session table, the frame-copy
// driver, the selection provider, and the compositor's registries (for
// toplevel activation and output lookup).
type Portal struct {
	conn       *dbus.Conn
	sessions   *session.Manager
	driver     *session.Driver
	provider   *selection.Provider
	toplevels  *compositor.ToplevelRegistry
	outputs    *compositor.OutputRegistry
	callOnLoop MainLoopCaller
	cfg        *config.Config

	hasToplevelExport bool

	mu       sync.Mutex
	handlers map[dbus.ObjectPath]*sessionHandler
}

// New wires a Portal to its collaborators. It does not touch the bus
// until Serve is called. callOnLoop is the bridge onto the event
// reactor's main-loop goroutine (see MainLoopCaller).
func New(conn *dbus.Conn, sessions *session.Manager, driver *session.Driver, provider *selection.Provider, toplevels *compositor.ToplevelRegistry, outputs *compositor.OutputRegistry, callOnLoop MainLoopCaller, cfg *config.Config, hasToplevelExport bool) *Portal {
	return &Portal{
		conn:              conn,
		sessions:          sessions,
		driver:            driver,
		provider:          provider,
		toplevels:         toplevels,
		outputs:           outputs,
		callOnLoop:        callOnLoop,
		cfg:               cfg,
		hasToplevelExport: hasToplevelExport,
		handlers:          make(map[dbus.ObjectPath]*sessionHandler),
	}
}

// Serve exports the ScreenCast interface and its properties, then
// requests the well-known bus name backends are activated on. Returns
// an error if the name is already owned by another process.
func (p *Portal) Serve() error {
	log := logger.WithComponent("portal")

	if err := p.conn.Export(p, objectPath, ifaceName); err != nil {
		return fmt.Errorf("portal: export %s: %w", ifaceName, err)
	}

	propsSpec := map[string]map[string]*prop.Prop{
		ifaceName: {
			"AvailableSourceTypes": {
				Value:    uint32(session.SourceMonitor | session.SourceWindow | session.SourceVirtual),
				Writable: false,
				Emit:     prop.EmitFalse,
			},
			"AvailableCursorModes": {
				Value:    uint32(session.CursorHidden | session.CursorEmbedded),
				Writable: false,
				Emit:     prop.EmitFalse,
			},
			"version": {
				Value:    uint32(3),
				Writable: false,
				Emit:     prop.EmitFalse,
			},
		},
	}
	props, err := prop.Export(p.conn, objectPath, propsSpec)
	if err != nil {
		return fmt.Errorf("portal: export properties: %w", err)
	}

	node := &introspect.Node{
		Name: string(objectPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{
				Name: ifaceName,
				Methods: []introspect.Method{
					{Name: "CreateSession", Args: []introspect.Arg{
						{Name: "request", Type: "o", Direction: "in"},
						{Name: "session", Type: "o", Direction: "in"},
						{Name: "app_id", Type: "s", Direction: "in"},
						{Name: "options", Type: "a{sv}", Direction: "in"},
						{Name: "response", Type: "u", Direction: "out"},
						{Name: "results", Type: "a{sv}", Direction: "out"},
					}},
					{Name: "SelectSources", Args: []introspect.Arg{
						{Name: "request", Type: "o", Direction: "in"},
						{Name: "session", Type: "o", Direction: "in"},
						{Name: "app_id", Type: "s", Direction: "in"},
						{Name: "options", Type: "a{sv}", Direction: "in"},
						{Name: "response", Type: "u", Direction: "out"},
						{Name: "results", Type: "a{sv}", Direction: "out"},
					}},
					{Name: "Start", Args: []introspect.Arg{
						{Name: "request", Type: "o", Direction: "in"},
						{Name: "session", Type: "o", Direction: "in"},
						{Name: "app_id", Type: "s", Direction: "in"},
						{Name: "parent_window", Type: "s", Direction: "in"},
						{Name: "options", Type: "a{sv}", Direction: "in"},
						{Name: "response", Type: "u", Direction: "out"},
						{Name: "results", Type: "a{sv}", Direction: "out"},
					}},
				},
				Properties: props.Introspection(ifaceName),
			},
		},
	}
	if err := p.conn.Export(introspect.NewIntrospectable(node), objectPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		log.Warn().Err(err).Msg("failed to export introspection data")
	}

	reply, err := p.conn.RequestName(busName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("portal: request name %s: %w", busName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("portal: bus name %s already owned", busName)
	}

	log.Info().Str("name", busName).Msg("portal ready")
	return nil
}

// Close destroys every live session and releases the bus name.
func (p *Portal) Close() {
	for _, s := range p.sessions.All() {
		p.sessions.Remove(s.SessionPath)
	}
	p.conn.ReleaseName(busName)
}

func newBusError(name, msg string) *dbus.Error {
	return dbus.NewError(name, []interface{}{msg})
}

func clampFramerate(refresh, maxFPS int) int {
	if refresh <= 0 {
		refresh = 60
	}
	if maxFPS <= 0 {
		return refresh
	}
	if refresh > maxFPS {
		return maxFPS
	}
	return refresh
}

// ctxOrBackground is used by SelectSources's picker prompt; the daemon
// has no per-call cancellation source of its own, so a bare background
// context is correct here.
func ctxOrBackground() context.Context {
	return context.Background()
}
