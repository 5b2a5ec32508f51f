package session

import (
	"sync"
	"time"
	"unsafe"

	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/compositor"
	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/gpu"
	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/media"
	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/render"
	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/selection"
)

// State is where a Session sits in Created -> SourcesSelected -> Started ->
// (Streaming <-> Reneg) -> Ended.
type State int

const (
	StateCreated State = iota
	StateSourcesSelected
	StateStarted
	StateStreaming
	StateReneg
	StateEnded
)

// FrameStatus mirrors the compositor's per-frame progress for the current
// in-flight capture.
type FrameStatus int

const (
	FrameNone FrameStatus = iota
	FrameQueued
	FrameReady
	FrameFailed
	FrameReneg
)

// CursorMode maps directly onto the ScreenCast bus's cursor_mode bitmask.
type CursorMode uint32

const (
	CursorHidden   CursorMode = 1
	CursorEmbedded CursorMode = 2
	CursorMetadata CursorMode = 4
)

// SourceType maps onto the ScreenCast bus's source_type bitmask.
type SourceType uint32

const (
	SourceMonitor SourceType = 1 << 0
	SourceWindow  SourceType = 1 << 1
	SourceVirtual SourceType = 1 << 2
)

// MaxRetries bounds the out-of-buffers / dequeue-failure retry loop for a
// single frame before the session gives up and waits for the next tick.
const MaxRetries = 10

// DamageRect is a rectangle of a captured frame that changed since the
// prior frame, in the compositor's physical coordinate space.
type DamageRect struct {
	X, Y, W, H uint32
}

// SharingData is the per-session streaming state: current frame status,
// negotiated geometry, retry bookkeeping, and the dedicated compositor
// buffer used only when a GPU transform is required.
type SharingData struct {
	Active bool
	Status FrameStatus

	FrameInfoSHM struct {
		W, H, Stride, Size uint32
		Fourcc             uint32
	}
	FrameInfoDMA struct {
		W, H   uint32
		Fourcc uint32
	}

	TvSec         uint64
	TvNsec        uint32
	TvTimestampNs uint64

	NodeID    uint32
	Framerate int
	Transform compositor.Transform

	Negotiated    media.NegotiatedFormat
	HasNegotiated bool

	BegunFrame  time.Time
	CopyRetries int

	Damage           [4]DamageRect
	DamageCount      int
	DamageOverflowed bool

	// CompositorBuffer is the dedicated GPU buffer the compositor
	// copies into when the selection needs a transform; distinct from
	// any buffer handed to the media stream.
	CompositorBuffer *gpu.Buffer
	CompositorHandle unsafe.Pointer // opaque wl_buffer handle from compositor.Import*

	frame *compositor.FrameCapture
}

// Session is one client's capture contract, from CreateSession through bus
// release.
type Session struct {
	mu sync.Mutex

	AppID       string
	RequestPath string
	SessionPath string
	CursorMode  CursorMode
	PersistMode uint32
	Selection   selection.Selection
	NeedsCrop   *render.CropBox
	State       State
	Sharing     SharingData

	stream *media.Stream
}

// New creates a Session in state Created for the given bus request/session
// object paths and app id.
func New(appID, requestPath, sessionPath string) *Session {
	return &Session{
		AppID:       appID,
		RequestPath: requestPath,
		SessionPath: sessionPath,
		CursorMode:  CursorHidden,
		State:       StateCreated,
		Sharing: SharingData{
			Framerate: 60,
		},
	}
}

// SourceTypeMask derives the bus source_type bitmask from the session's
// selection type.
func (s *Session) SourceTypeMask() SourceType {
	switch s.Selection.Type {
	case selection.TypeOutput:
		return SourceMonitor
	case selection.TypeWindow:
		return SourceWindow
	case selection.TypeGeometry, selection.TypeWorkspace:
		return SourceVirtual
	default:
		return 0
	}
}

// SetSelection stores the resolved Selection and advances the session to
// SourcesSelected.
func (s *Session) SetSelection(sel selection.Selection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Selection = sel
	s.State = StateSourcesSelected
}

// SetCursorMode stores the bus's cursor_mode option.
func (s *Session) SetCursorMode(m CursorMode) {
	s.mu.Lock()
	s.CursorMode = m
	s.mu.Unlock()
}

// SetPersistMode stores the bus's persist_mode option.
func (s *Session) SetPersistMode(m uint32) {
	s.mu.Lock()
	s.PersistMode = m
	s.mu.Unlock()
}

// SetFramerate stores the clamped target framerate computed at
// SelectSources.
func (s *Session) SetFramerate(fps int) {
	s.mu.Lock()
	s.Sharing.Framerate = fps
	s.mu.Unlock()
}

// Activate marks the session as actively sharing and advances it to
// Started; called at the top of Start before the first frame-copy tick
// is issued.
func (s *Session) Activate() {
	s.mu.Lock()
	s.Sharing.Active = true
	s.State = StateStarted
	s.mu.Unlock()
}

// MarkStreaming advances Started/Reneg sessions to Streaming once a
// frame has been successfully enqueued. A no-op once the session has
// ended.
func (s *Session) MarkStreaming() {
	s.mu.Lock()
	if s.State == StateStarted || s.State == StateReneg {
		s.State = StateStreaming
	}
	s.mu.Unlock()
}

// NodeID returns the stream's negotiated PipeWire node id, or 0 before
// a stream exists.
func (s *Session) NodeID() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Sharing.NodeID
}

// FrameSize returns the compositor-reported frame geometry, preferring
// the DMA-BUF info and falling back to SHM.
func (s *Session) FrameSize() (uint32, uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Sharing.FrameInfoDMA.W != 0 {
		return s.Sharing.FrameInfoDMA.W, s.Sharing.FrameInfoDMA.H
	}
	return s.Sharing.FrameInfoSHM.W, s.Sharing.FrameInfoSHM.H
}

// SelectionSnapshot returns a copy of the session's current Selection.
func (s *Session) SelectionSnapshot() selection.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Selection
}

// CursorModeSnapshot returns the session's current cursor mode.
func (s *Session) CursorModeSnapshot() CursorMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CursorMode
}

// Stream returns the session's media stream, or nil if it hasn't been
// created yet (lazily created on the first buffer_done event).
func (s *Session) Stream() *media.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}

func (s *Session) setStream(st *media.Stream) {
	s.mu.Lock()
	s.stream = st
	s.mu.Unlock()
}

// End tears down the stream and dedicated compositor buffer and marks the
// session Ended. Idempotent.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State == StateEnded {
		return
	}
	s.Sharing.Active = false
	if s.stream != nil {
		s.stream.Disconnect()
		s.stream = nil
	}
	if s.Sharing.CompositorBuffer != nil {
		s.Sharing.CompositorBuffer.Close()
		s.Sharing.CompositorBuffer = nil
	}
	if s.Sharing.frame != nil {
		s.Sharing.frame.Destroy()
		s.Sharing.frame = nil
	}
	s.State = StateEnded
}

// Manager owns the set of live sessions, keyed by their bus session object
// path.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates an empty session table.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Create registers a new Session and returns it.
func (m *Manager) Create(appID, requestPath, sessionPath string) *Session {
	s := New(appID, requestPath, sessionPath)
	m.mu.Lock()
	m.sessions[sessionPath] = s
	m.mu.Unlock()
	return s
}

// Get looks up a Session by its bus session object path.
func (m *Manager) Get(sessionPath string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionPath]
	return s, ok
}

// Remove ends and forgets a Session.
func (m *Manager) Remove(sessionPath string) {
	m.mu.Lock()
	s, ok := m.sessions[sessionPath]
	delete(m.sessions, sessionPath)
	m.mu.Unlock()
	if ok {
		s.End()
	}
}

// All returns a snapshot of every live session, for the termination sweep
// in Portal.Close.
func (m *Manager) All() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}
