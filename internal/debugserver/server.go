package debugserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/logger"
)

// Server is the optional read-only introspection HTTP surface. It is
// only ever constructed and started when config.Debug.HTTPAddr is set.
type Server struct {
	addr   string
	router *mux.Router
	srv    *http.Server

	snapshot atomic.Value // holds *Snapshot

	upgrader websocket.Upgrader

	previewsMu sync.Mutex
	previews   map[string]*previewHub

	events *eventHub
}

// New builds a Server bound to addr (host:port, e.g. "127.0.0.1:7890").
// It does not start listening until Start is called.
func New(addr string) *Server {
	s := &Server{
		addr:     addr,
		router:   mux.NewRouter(),
		previews: make(map[string]*previewHub),
		events:   newEventHub(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.snapshot.Store(emptySnapshot())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	debug := s.router.PathPrefix("/debug").Subrouter()
	debug.HandleFunc("/sessions", s.handleSessions).Methods(http.MethodGet)
	debug.HandleFunc("/outputs", s.handleOutputs).Methods(http.MethodGet)
	debug.HandleFunc("/toplevels", s.handleToplevels).Methods(http.MethodGet)
	debug.HandleFunc("/sessions/{id}/preview.mjpeg", s.handlePreview).Methods(http.MethodGet)
	debug.HandleFunc("/events", s.handleEvents)
}

// Start begins listening in a background goroutine. Errors after
// ListenAndServe returns (other than a clean Shutdown) are logged, not
// returned, since Start is fire-and-forget from the daemon's startup
// sequence.
func (s *Server) Start() {
	s.srv = &http.Server{Addr: s.addr, Handler: s.router}
	log := logger.WithComponent("debugserver")
	go func() {
		log.Info().Str("addr", s.addr).Msg("debug server listening")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("debug server stopped")
		}
	}()
}

// Stop gracefully shuts the HTTP server down, closing every websocket
// and mjpeg client connection.
func (s *Server) Stop() {
	if s.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.srv.Shutdown(ctx)
	s.events.closeAll()

	s.previewsMu.Lock()
	for _, h := range s.previews {
		h.closeAll()
	}
	s.previewsMu.Unlock()
}

// Update publishes a fresh Snapshot for every handler to read, and feeds
// any attached per-session frame previews to their mjpeg hubs. Called
// from the main loop only.
func (s *Server) Update(snap *Snapshot) {
	if snap == nil {
		snap = emptySnapshot()
	}
	s.snapshot.Store(snap)

	for _, sess := range snap.Sessions {
		if sess.Frame == nil {
			continue
		}
		if hub := s.previewHubIfActive(sess.Path); hub != nil {
			hub.publish(sess.Frame)
		}
	}
}

// PublishEvent forwards a debug event to every connected /debug/events
// client. Called from the main loop only, typically right after a
// session state transition.
func (s *Server) PublishEvent(kind, sessionPath, detail string) {
	s.events.publish(Event{Kind: kind, SessionPath: sessionPath, Detail: detail, At: time.Now().UnixMilli()})
}

func (s *Server) current() *Snapshot {
	return s.snapshot.Load().(*Snapshot)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.current().Sessions)
}

func (s *Server) handleOutputs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.current().Outputs)
}

func (s *Server) handleToplevels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.current().Toplevels)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sess := s.findSession(id)
	if sess == nil {
		http.NotFound(w, r)
		return
	}
	hub := s.previewHub(sess.Path)
	hub.serveHTTP(w, r)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithComponent("debugserver").Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	s.events.serve(conn)
}

func (s *Server) findSession(id string) *SessionSnapshot {
	snap := s.current()
	for i := range snap.Sessions {
		if strings.HasSuffix(snap.Sessions[i].Path, "/"+id) || snap.Sessions[i].Path == id {
			return &snap.Sessions[i]
		}
	}
	return nil
}

func (s *Server) previewHub(sessionPath string) *previewHub {
	s.previewsMu.Lock()
	defer s.previewsMu.Unlock()
	h, ok := s.previews[sessionPath]
	if !ok {
		h = newPreviewHub()
		s.previews[sessionPath] = h
	}
	return h
}

func (s *Server) previewHubIfActive(sessionPath string) *previewHub {
	s.previewsMu.Lock()
	defer s.previewsMu.Unlock()
	return s.previews[sessionPath]
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, fmt.Sprintf("encode: %v", err), http.StatusInternalServerError)
	}
}
