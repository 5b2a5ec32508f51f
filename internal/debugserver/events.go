package debugserver

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/logger"
)

// Event is one row of the /debug/events feed: a session lifecycle or
// state-machine transition, timestamped at publication.
type Event struct {
	Kind        string `json:"kind"`
	SessionPath string `json:"session_path,omitempty"`
	Detail      string `json:"detail,omitempty"`
	At          int64  `json:"at_ms"`
}

// eventHub fans published events out to every connected /debug/events
// websocket client.
type eventHub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan Event
}

func newEventHub() *eventHub {
	return &eventHub{clients: make(map[*websocket.Conn]chan Event)}
}

func (h *eventHub) publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *eventHub) serve(conn *websocket.Conn) {
	log := logger.WithComponent("debugserver")
	ch := make(chan Event, 16)

	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	for ev := range ch {
		if err := conn.WriteJSON(ev); err != nil {
			log.Debug().Err(err).Msg("debug event client disconnected")
			return
		}
	}
}

func (h *eventHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.clients {
		close(ch)
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]chan Event)
}
