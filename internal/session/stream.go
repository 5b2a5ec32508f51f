package session

import (
	"fmt"
	"strings"

	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/compositor"
	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/gpu"
	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/logger"
	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/media"
)

// createStream builds the media stream's initial format offer from the
// geometry the compositor reported on this session's first buffer_done and
// connects it. Called at most once per session.
func (d *Driver) createStream(s *Session) error {
	s.mu.Lock()
	w, h := s.Sharing.FrameInfoDMA.W, s.Sharing.FrameInfoDMA.H
	fourcc := s.Sharing.FrameInfoDMA.Fourcc
	if w == 0 || h == 0 {
		w, h, fourcc = s.Sharing.FrameInfoSHM.W, s.Sharing.FrameInfoSHM.H, s.Sharing.FrameInfoSHM.Fourcc
	}
	framerate := s.Sharing.Framerate
	sessionPath := s.SessionPath
	s.mu.Unlock()

	if w == 0 || h == 0 {
		return fmt.Errorf("session: no buffer geometry known yet")
	}

	spaFormat := media.SPAFormatFromDRMFourcc(fourcc)
	var modifiers []uint64
	if d.GPU != nil {
		modifiers = d.GPU.SupportedModifiers(fourcc)
	}
	offers := []media.VideoFormatOffer{
		{SPAFormat: spaFormat, Width: int32(w), Height: int32(h), Framerate: int32(framerate), Modifiers: modifiers},
	}

	name := "xdpw-streaming-" + strings.Trim(strings.ReplaceAll(sessionPath, "/", "-"), "-")

	cb := media.Callbacks{
		OnStateChange: func(st media.State) {
			logger.WithComponent("session").Trace().Str("session", sessionPath).Int("state", int(st)).Msg("stream state changed")
		},
		OnFormatChange: func(nf media.NegotiatedFormat) {
			s.mu.Lock()
			s.Sharing.Negotiated = nf
			s.Sharing.HasNegotiated = true
			s.mu.Unlock()
		},
		OnAddBuffer:    func(dt media.DataType) (*media.BufferSlot, error) { return d.allocateStreamBuffer(s, dt) },
		OnRemoveBuffer: func(slot *media.BufferSlot) { d.releaseStreamBuffer(slot) },
	}

	st, err := media.NewStream(d.Media, name, cb, offers)
	if err != nil {
		return err
	}

	s.setStream(st)
	s.mu.Lock()
	s.Sharing.NodeID = st.NodeID
	s.mu.Unlock()
	return nil
}

// allocateStreamBuffer backs one PipeWire buffer with a freshly allocated
// gpu.Buffer, imported into the compositor as a wl_buffer so the frame-copy
// tick can attach it directly.
func (d *Driver) allocateStreamBuffer(s *Session, dataType media.DataType) (*media.BufferSlot, error) {
	s.mu.Lock()
	w, h, fourcc := s.Sharing.FrameInfoDMA.W, s.Sharing.FrameInfoDMA.H, s.Sharing.FrameInfoDMA.Fourcc
	if s.Sharing.HasNegotiated {
		w, h = uint32(s.Sharing.Negotiated.Width), uint32(s.Sharing.Negotiated.Height)
	}
	if w == 0 || h == 0 {
		w, h, fourcc = s.Sharing.FrameInfoSHM.W, s.Sharing.FrameInfoSHM.H, s.Sharing.FrameInfoSHM.Fourcc
	}
	s.mu.Unlock()

	if dataType == media.DataTypeDmaBuf && d.GPU != nil {
		modifiers := d.GPU.SupportedModifiers(fourcc)
		buf, err := d.GPU.AllocateDMABuf(fourcc, w, h, modifiers, 0)
		if err != nil {
			return nil, err
		}
		handle, err := d.Display.ImportDMABuf(buf)
		if err != nil {
			buf.Close()
			return nil, err
		}
		return &media.BufferSlot{GPU: buf, CompositorHandle: handle}, nil
	}

	stride := w * 4
	buf, err := gpu.AllocateSHM(w, h, stride)
	if err != nil {
		return nil, err
	}
	handle, err := d.Display.ImportSHM(buf, compositor.Fourcc(fourcc))
	if err != nil {
		buf.Close()
		return nil, err
	}
	return &media.BufferSlot{GPU: buf, CompositorHandle: handle}, nil
}

func (d *Driver) releaseStreamBuffer(slot *media.BufferSlot) {
	if slot == nil {
		return
	}
	d.Display.DestroyBuffer(slot.CompositorHandle)
	if slot.GPU != nil {
		slot.GPU.Close()
	}
}

// ensureCompositorBuffer lazily allocates the dedicated GPU buffer a
// needs_transform session copies into, at the compositor's native geometry,
// and imports it into the compositor as a wl_buffer.
func (d *Driver) ensureCompositorBuffer(s *Session) error {
	s.mu.Lock()
	if s.Sharing.CompositorBuffer != nil {
		s.mu.Unlock()
		return nil
	}
	w, h, fourcc := s.Sharing.FrameInfoDMA.W, s.Sharing.FrameInfoDMA.H, s.Sharing.FrameInfoDMA.Fourcc
	s.mu.Unlock()

	if w == 0 || h == 0 {
		return fmt.Errorf("session: no compositor geometry known yet")
	}
	if d.GPU == nil {
		return fmt.Errorf("session: needs_transform requires a GPU device")
	}

	modifiers := d.GPU.SupportedModifiers(fourcc)
	buf, err := d.GPU.AllocateDMABuf(fourcc, w, h, modifiers, 0)
	if err != nil {
		return err
	}
	handle, err := d.Display.ImportDMABuf(buf)
	if err != nil {
		buf.Close()
		return err
	}

	s.mu.Lock()
	s.Sharing.CompositorBuffer = buf
	s.Sharing.CompositorHandle = handle
	s.mu.Unlock()
	return nil
}
