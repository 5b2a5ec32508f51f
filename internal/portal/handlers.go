package portal

import (
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/logger"
	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/selection"
	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/session"
)

const (
	sessionIfaceName = "org.freedesktop.impl.portal.Session"
	requestIfaceName = "org.freedesktop.impl.portal.Request"
)

// requestHandler answers Close on the ephemeral request object the
// frontend creates per method call. All three ScreenCast methods here
// reply synchronously, so Close only matters if the frontend cancels
// before the reply lands; it is otherwise a no-op.
type requestHandler struct{}

func (h *requestHandler) Close() *dbus.Error { return nil }

// sessionHandler answers Close on the session object created at
// CreateSession, tearing down the stream and any dedicated compositor
// buffer and releasing the toplevel registry reference this session
// held, if any.
type sessionHandler struct {
	portal            *Portal
	session           *session.Session
	toplevelActivated bool
}

func (h *sessionHandler) Close() *dbus.Error {
	h.portal.sessions.Remove(h.session.SessionPath)
	if h.toplevelActivated {
		h.portal.toplevels.Deactivate()
	}
	h.portal.forgetHandler(dbus.ObjectPath(h.session.SessionPath))
	logger.WithComponent("portal").Info().Str("session", h.session.SessionPath).Msg("session closed")
	return nil
}

func (p *Portal) rememberHandler(path dbus.ObjectPath, h *sessionHandler) {
	p.mu.Lock()
	p.handlers[path] = h
	p.mu.Unlock()
}

func (p *Portal) forgetHandler(path dbus.ObjectPath) {
	p.mu.Lock()
	delete(p.handlers, path)
	p.mu.Unlock()
}

func (p *Portal) handlerFor(path dbus.ObjectPath) (*sessionHandler, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.handlers[path]
	return h, ok
}

// CreateSession registers the session and its bus object, and
// pre-emptively activates the toplevel registry unless the daemon is
// configured for dynamic binding.
func (p *Portal) CreateSession(request, sessionPath dbus.ObjectPath, appID string, options map[string]dbus.Variant) (uint32, map[string]dbus.Variant, *dbus.Error) {
	log := logger.WithComponent("portal")
	log.Info().Str("request", string(request)).Str("session", string(sessionPath)).Str("app_id", appID).Msg("CreateSession")

	s := p.sessions.Create(appID, string(request), string(sessionPath))

	h := &sessionHandler{portal: p, session: s}
	if !p.cfg.General.ToplevelDynamicBind {
		p.toplevels.Activate()
		h.toplevelActivated = true
	}
	p.rememberHandler(sessionPath, h)

	if err := p.conn.Export(h, sessionPath, sessionIfaceName); err != nil {
		log.Warn().Err(err).Msg("failed to export session object")
	}
	if err := p.conn.Export(&requestHandler{}, request, requestIfaceName); err != nil {
		log.Warn().Err(err).Msg("failed to export request object")
	}

	return 0, map[string]dbus.Variant{}, nil
}

// SelectSources resolves this session's Selection, either from a valid
// restore token or by prompting via the external picker, and stores
// the negotiated framerate.
func (p *Portal) SelectSources(request, sessionPath dbus.ObjectPath, appID string, options map[string]dbus.Variant) (uint32, map[string]dbus.Variant, *dbus.Error) {
	log := logger.WithComponent("portal")
	log.Info().Str("session", string(sessionPath)).Str("app_id", appID).Msg("SelectSources")

	s, ok := p.sessions.Get(string(sessionPath))
	if !ok {
		return 1, nil, newBusError("org.freedesktop.impl.portal.Error.NoSession", "no such session")
	}

	var restoreVariant *dbus.Variant
	for key, v := range options {
		switch key {
		case "cursor_mode":
			s.SetCursorMode(session.CursorMode(toUint32(v.Value())))
		case "persist_mode":
			s.SetPersistMode(toUint32(v.Value()))
		case "restore_data":
			vv := v
			restoreVariant = &vv
		default:
			log.Debug().Str("key", key).Msg("unused SelectSources option")
		}
	}

	var sel selection.Selection
	resolved := false
	if restoreVariant != nil {
		if rt, valid := decodeRestoreData(*restoreVariant); valid {
			if candidate, ok := selection.FromRestoreToken(rt, p.toplevels); ok {
				if candidate.Type == selection.TypeOutput && p.outputs.ByName(candidate.Output) == nil {
					log.Debug().Str("output", candidate.Output).Msg("restore token output no longer exists, prompting")
				} else {
					sel, resolved = candidate, true
					log.Debug().Msg("restore token valid, not prompting")
				}
			}
		}
	}

	if !resolved {
		activatedHere := false
		if p.cfg.General.ToplevelDynamicBind {
			p.toplevels.Activate()
			activatedHere = true
		}
		sel = p.provider.Prompt(ctxOrBackground())
		if activatedHere {
			if sel.Type == selection.TypeWindow {
				if h, ok := p.handlerFor(sessionPath); ok {
					h.toplevelActivated = true
				}
			} else {
				p.toplevels.Deactivate()
			}
		}
	}

	sel, err := selection.ValidateSelectionType(sel, p.hasToplevelExport)
	if err != nil || sel.Empty() {
		log.Warn().Err(err).Msg("selection invalid or unsupported")
		return 1, map[string]dbus.Variant{}, nil
	}

	if sel.Type == selection.TypeOutput || sel.Type == selection.TypeGeometry {
		if out := p.outputs.ByName(sel.Output); out != nil {
			s.SetFramerate(clampFramerate(out.RefreshHz(), p.cfg.Screencopy.MaxFPS))
		}
	}

	s.SetSelection(sel)
	return 0, map[string]dbus.Variant{}, nil
}

// Start activates the session's frame-copy tick and blocks until the
// resulting stream has a PipeWire node id, then assembles the streams
// result and, if allowed, a fresh restore token.
func (p *Portal) Start(request, sessionPath dbus.ObjectPath, appID, parentWindow string, options map[string]dbus.Variant) (uint32, map[string]dbus.Variant, *dbus.Error) {
	log := logger.WithComponent("portal")
	log.Info().Str("session", string(sessionPath)).Str("app_id", appID).Msg("Start")

	s, ok := p.sessions.Get(string(sessionPath))
	if !ok {
		return 1, nil, newBusError("org.freedesktop.impl.portal.Error.NoSession", "no such session")
	}

	s.Activate()
	if err := p.callOnLoop(func() error { return p.driver.StartFrameCopy(s) }); err != nil {
		log.Warn().Err(err).Msg("failed to start frame copy")
		return 1, map[string]dbus.Variant{}, nil
	}

	if !waitForNodeID(s, 5*time.Millisecond, 400) {
		log.Warn().Msg("timed out waiting for stream node id")
		return 1, map[string]dbus.Variant{}, nil
	}

	sel := s.SelectionSnapshot()
	w, h := s.FrameSize()

	streamData := map[string]dbus.Variant{
		"position":    dbus.MakeVariant(point{0, 0}),
		"size":        dbus.MakeVariant(point{int32(w), int32(h)}),
		"source_type": dbus.MakeVariant(uint32(s.SourceTypeMask())),
	}
	streams := []streamEntry{{NodeID: s.NodeID(), Data: streamData}}

	results := map[string]dbus.Variant{
		"source_type": dbus.MakeVariant(uint32(s.SourceTypeMask())),
		"streams":     dbus.MakeVariant(streams),
	}
	if sel.AllowToken {
		withCursor := s.CursorModeSnapshot()&session.CursorEmbedded != 0
		results["restore_data"] = buildRestoreVariant(sel, withCursor, uint64(time.Now().Unix()))
		results["persist_mode"] = dbus.MakeVariant(uint32(2))
		log.Debug().Str("session", string(sessionPath)).Msg("sent restore token")
	}

	return 0, results, nil
}

// waitForNodeID polls the session's negotiated PipeWire node id from the
// calling (D-Bus dispatch) goroutine. It never touches the compositor or
// media loop itself: Session.NodeID is guarded by the session's own lock
// and is set by the reactor's main-loop goroutine once the frame-copy tick
// reaches its first buffer_done, so polling it here is safe without
// crossing into main-loop-only state.
func waitForNodeID(s *session.Session, interval time.Duration, maxIterations int) bool {
	for i := 0; i < maxIterations; i++ {
		if s.NodeID() != 0 {
			return true
		}
		time.Sleep(interval)
	}
	return s.NodeID() != 0
}
