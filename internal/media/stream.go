package media

/*
#cgo pkg-config: libpipewire-0.3
#include <pipewire/pipewire.h>
#include <spa/pod/builder.h>

extern const struct pw_stream_events xdpw_stream_events;

struct spa_pod *xdpw_build_format(struct spa_pod_builder *b, uint32_t format, int32_t width, int32_t height, int32_t framerate, uint64_t *modifiers, uint32_t n_modifiers);
struct spa_pod *xdpw_fixate_format(struct spa_pod_builder *b, uint32_t format, int32_t width, int32_t height, int32_t framerate, uint64_t modifier);
struct spa_pod *xdpw_build_buffers_param(struct spa_pod_builder *b, uint32_t blocks, uint32_t size, uint32_t stride, uint32_t data_type);
struct spa_pod *xdpw_build_meta_header_param(struct spa_pod_builder *b);
struct spa_pod *xdpw_build_meta_videotransform_param(struct spa_pod_builder *b);
struct spa_pod *xdpw_build_meta_videodamage_param(struct spa_pod_builder *b);
int xdpw_parse_video_format(const struct spa_pod *param, uint32_t *format, int32_t *width, int32_t *height, int32_t *framerateNum, int32_t *framerateDenom, uint64_t *modifier, int *hasModifier, int *dontFixate);
*/
import "C"

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	pointer "github.com/mattn/go-pointer"

	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/logger"
)

// State mirrors the subset of pw_stream_state the session state
// machine cares about.
type State int

const (
	StateError State = iota
	StateUnconnected
	StatePaused
	StateStreaming
)

func stateFromPW(v C.int) State {
	switch v {
	case C.PW_STREAM_STATE_STREAMING:
		return StateStreaming
	case C.PW_STREAM_STATE_PAUSED:
		return StatePaused
	case C.PW_STREAM_STATE_UNCONNECTED:
		return StateUnconnected
	default:
		return StateError
	}
}

// DataType is the SPA buffer data type a stream's buffers are exposed
// as.
type DataType int

const (
	DataTypeMemFd DataType = iota
	DataTypeDmaBuf
)

// Callbacks are the session-supplied hooks a Stream invokes as
// PipeWire events arrive. All calls happen on the main-loop thread
// during Manager.Iterate, never concurrently.
type Callbacks struct {
	OnStateChange  func(State)
	OnFormatChange func(NegotiatedFormat)
	OnAddBuffer    func(dataType DataType) (*BufferSlot, error)
	OnRemoveBuffer func(*BufferSlot)
}

// Stream is one PipeWire stream node, created lazily once the first
// compositor buffer-info event is known.
type Stream struct {
	manager *Manager
	stream  *C.struct_pw_stream
	token   unsafe.Pointer

	mu      sync.Mutex
	cb      Callbacks
	seq     uint32
	current *BufferSlot
	slots   map[*C.struct_pw_buffer]*BufferSlot

	NodeID uint32
}

// NewStream creates a stream with the given name, offering
// initialFormats as its enumerable formats, and connects it as an
// output/video source.
func NewStream(m *Manager, name string, cb Callbacks, initialFormats []VideoFormatOffer) (*Stream, error) {
	cName := C.CString(name)
	defer C.free(unsafe.Pointer(cName))
	classKey := C.CString("media.class")
	defer C.free(unsafe.Pointer(classKey))
	classVal := C.CString("Video/Source")
	defer C.free(unsafe.Pointer(classVal))

	props := C.pw_properties_new(classKey, classVal, nil)
	pwStream := C.pw_stream_new(m.core, cName, props)
	if pwStream == nil {
		return nil, errors.New("media: pw_stream_new failed")
	}

	s := &Stream{
		manager: m,
		stream:  pwStream,
		slots:   make(map[*C.struct_pw_buffer]*BufferSlot),
		cb:      cb,
	}
	s.token = pointer.Save(s)

	if C.pw_stream_add_listener(pwStream, (*C.struct_spa_hook)(C.malloc(C.sizeof_struct_spa_hook)), &C.xdpw_stream_events, s.token) != 0 {
		pointer.Unref(s.token)
		C.pw_stream_destroy(pwStream)
		return nil, errors.New("media: pw_stream_add_listener failed")
	}

	buf := make([]byte, 4096)
	builder := (*C.struct_spa_pod_builder)(C.malloc(C.sizeof_struct_spa_pod_builder))
	defer C.free(unsafe.Pointer(builder))
	C.spa_pod_builder_init(builder, unsafe.Pointer(&buf[0]), C.uint32_t(len(buf)))

	params := make([]*C.struct_spa_pod, 0, len(initialFormats))
	for _, f := range initialFormats {
		var mods *C.uint64_t
		if len(f.Modifiers) > 0 {
			cMods := make([]C.uint64_t, len(f.Modifiers))
			for i, mod := range f.Modifiers {
				cMods[i] = C.uint64_t(mod)
			}
			mods = &cMods[0]
		}
		pod := C.xdpw_build_format(builder, C.uint32_t(f.SPAFormat), C.int32_t(f.Width), C.int32_t(f.Height), C.int32_t(f.Framerate), mods, C.uint32_t(len(f.Modifiers)))
		if pod == nil {
			return nil, fmt.Errorf("media: failed to build format params")
		}
		params = append(params, pod)
	}
	if len(params) == 0 {
		return nil, errors.New("media: no formats to offer")
	}

	flags := C.enum_pw_stream_flags(C.PW_STREAM_FLAG_DRIVER | C.PW_STREAM_FLAG_ALLOC_BUFFERS)
	if C.pw_stream_connect(pwStream, C.PW_DIRECTION_OUTPUT, C.PW_ID_ANY, flags, &params[0], C.uint32_t(len(params))) != 0 {
		pointer.Unref(s.token)
		C.pw_stream_destroy(pwStream)
		return nil, errors.New("media: pw_stream_connect failed")
	}

	s.NodeID = uint32(C.pw_stream_get_node_id(pwStream))
	return s, nil
}

// VideoFormatOffer is one alternative offered during initial format
// enumeration.
type VideoFormatOffer struct {
	SPAFormat uint32
	Width     int32
	Height    int32
	Framerate int32
	Modifiers []uint64
}

// NegotiatedFormat is what the consumer settled on.
type NegotiatedFormat struct {
	SPAFormat        uint32
	Width, Height    int32
	Framerate        int32
	Modifier         uint64
	WantsDMABuf      bool
	ModifierNotFixed bool
}

// UpdateParams re-offers the current format set, used after a
// renegotiation cycle.
func (s *Stream) UpdateParams(offers []VideoFormatOffer) error {
	buf := make([]byte, 4096)
	builder := (*C.struct_spa_pod_builder)(C.malloc(C.sizeof_struct_spa_pod_builder))
	defer C.free(unsafe.Pointer(builder))
	C.spa_pod_builder_init(builder, unsafe.Pointer(&buf[0]), C.uint32_t(len(buf)))

	params := make([]*C.struct_spa_pod, 0, len(offers))
	for _, f := range offers {
		var mods *C.uint64_t
		if len(f.Modifiers) > 0 {
			cMods := make([]C.uint64_t, len(f.Modifiers))
			for i, mod := range f.Modifiers {
				cMods[i] = C.uint64_t(mod)
			}
			mods = &cMods[0]
		}
		pod := C.xdpw_build_format(builder, C.uint32_t(f.SPAFormat), C.int32_t(f.Width), C.int32_t(f.Height), C.int32_t(f.Framerate), mods, C.uint32_t(len(f.Modifiers)))
		if pod == nil {
			return fmt.Errorf("media: failed to rebuild format params")
		}
		params = append(params, pod)
	}
	if C.pw_stream_update_params(s.stream, &params[0], C.uint32_t(len(params))) != 0 {
		return errors.New("media: pw_stream_update_params failed")
	}
	return nil
}

// Disconnect flushes, disconnects and destroys the underlying stream.
func (s *Stream) Disconnect() {
	logger.WithComponent("media").Trace().Msg("destroying stream")
	C.pw_stream_flush(s.stream, C.bool(false))
	C.pw_stream_disconnect(s.stream)
	C.pw_stream_destroy(s.stream)
	pointer.Unref(s.token)
}
