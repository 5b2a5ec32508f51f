package session

import (
	"errors"
	"sync"
	"time"

	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/compositor"
	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/gpu"
	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/logger"
	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/media"
	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/render"
	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/selection"
)

// ErrAlreadyScheduled is returned by StartFrameCopy when a capture is
// already in flight for this session.
var ErrAlreadyScheduled = errors.New("session: frame copy already scheduled")

// ErrNoOutput is returned when the session's selection names an output the
// registry no longer has.
var ErrNoOutput = errors.New("session: selection output not found")

// Driver bundles the collaborators a Session needs to run its frame-copy
// tick: the compositor connection, the GPU allocator, the optional
// transform renderer, and a place to hand finished frames to the media
// stream. One Driver is shared by every session.
type Driver struct {
	Display  *compositor.Display
	GPU      *gpu.Device
	Renderer *render.Renderer
	Media    *media.Manager

	// ScheduleNext is called with the pacing delay computed at the end of
	// a successful or failed tick; the caller (event reactor) is
	// responsible for invoking StartFrameCopy again once it elapses.
	ScheduleNext func(s *Session, delay time.Duration)

	// UpdateStreamParams is invoked on FormatMismatch to trigger
	// renegotiation on the session's existing stream.
	UpdateStreamParams func(s *Session, offers []media.VideoFormatOffer)

	mu       sync.Mutex
	inflight map[*Session]*compositor.FrameCapture
}

func (d *Driver) trackFrame(s *Session, fc *compositor.FrameCapture) {
	d.mu.Lock()
	if d.inflight == nil {
		d.inflight = make(map[*Session]*compositor.FrameCapture)
	}
	d.inflight[s] = fc
	d.mu.Unlock()
}

func (d *Driver) untrackFrame(s *Session) {
	d.mu.Lock()
	delete(d.inflight, s)
	d.mu.Unlock()
}

// PumpPending drains whatever frame-capture events are currently buffered
// for every session with a capture in flight. It must only be called from
// the event reactor's main-loop goroutine: it attaches compositor buffers
// and touches the media stream, the same state DispatchPending/Iterate
// touch.
func (d *Driver) PumpPending() {
	d.mu.Lock()
	frames := make(map[*Session]*compositor.FrameCapture, len(d.inflight))
	for s, fc := range d.inflight {
		frames[s] = fc
	}
	d.mu.Unlock()

	for s, fc := range frames {
		d.drainFrame(s, fc)
	}
}

// StartFrameCopy issues one compositor frame-capture request for the
// session's current selection, marks the frame queued and registers it
// for PumpPending. It returns without waiting for the capture's events;
// PumpPending drains them on later main-loop passes, driving the state
// machine and scheduling the next tick via Driver.ScheduleNext.
func (d *Driver) StartFrameCopy(s *Session) error {
	s.mu.Lock()
	if !s.Sharing.Active {
		s.mu.Unlock()
		return nil
	}
	if s.Sharing.frame != nil {
		s.mu.Unlock()
		return ErrAlreadyScheduled
	}
	s.mu.Unlock()

	fc, transform, err := d.requestCapture(s)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.Sharing.frame = fc
	s.Sharing.Transform = transform
	s.Sharing.Status = FrameQueued
	s.Sharing.BegunFrame = time.Now()
	s.mu.Unlock()

	d.trackFrame(s, fc)
	return nil
}

func (d *Driver) requestCapture(s *Session) (*compositor.FrameCapture, compositor.Transform, error) {
	overlayCursor := s.CursorMode&CursorEmbedded != 0

	switch s.Selection.Type {
	case selection.TypeOutput:
		out := d.Display.Outputs().ByName(s.Selection.Output)
		if out == nil {
			return nil, compositor.TransformNormal, ErrNoOutput
		}
		fc, err := d.Display.CaptureOutput(out, overlayCursor)
		return fc, out.Transform, err
	case selection.TypeGeometry:
		out := d.Display.Outputs().ByName(s.Selection.Output)
		if out == nil {
			return nil, compositor.TransformNormal, ErrNoOutput
		}
		if !s.Selection.NeedsTransform {
			fc, err := d.Display.CaptureRegion(out, s.Selection.X, s.Selection.Y, s.Selection.W, s.Selection.H, overlayCursor)
			return fc, out.Transform, err
		}
		// needs_transform: capture the full output; the renderer crops
		// after the physical-coordinate rectangle has been computed.
		x, y, w, h := PhysicalCrop(out.Transform, s.Selection.X, s.Selection.Y, s.Selection.W, s.Selection.H, out.Width, out.Height)
		s.mu.Lock()
		s.NeedsCrop = &render.CropBox{X: float32(x), Y: float32(y), W: float32(w), H: float32(h)}
		s.mu.Unlock()
		fc, err := d.Display.CaptureOutput(out, overlayCursor)
		return fc, out.Transform, err
	case selection.TypeWindow:
		h := findToplevel(d.Display, s.Selection.WindowHandle)
		if h == nil {
			return nil, compositor.TransformNormal, errors.New("session: window handle no longer exists")
		}
		fc, err := d.Display.CaptureToplevel(h, overlayCursor)
		return fc, compositor.TransformNormal, err
	default:
		return nil, compositor.TransformNormal, errors.New("session: unsupported selection type")
	}
}

func findToplevel(d *compositor.Display, handle uint32) *compositor.ToplevelHandle {
	return d.Toplevels().ByHandle(handle)
}

// drainFrame processes whatever FrameCapture events are already buffered,
// mutating the session's SharingData under lock as events arrive, matching
// the fixed per-frame event order buffer/dmabuf/damage -> buffer_done ->
// ready|failed. It never blocks: events not yet delivered are picked up on
// the reactor's next call to PumpPending once DispatchPending delivers them.
func (d *Driver) drainFrame(s *Session, fc *compositor.FrameCapture) {
	log := logger.WithComponent("session")

	for {
		var ev compositor.FrameEvent
		select {
		case v, ok := <-fc.Events:
			if !ok {
				return
			}
			ev = v
		default:
			return
		}
		switch ev.Kind {
		case compositor.FrameShmInfo:
			s.mu.Lock()
			s.Sharing.FrameInfoSHM.W = ev.Shm.Width
			s.Sharing.FrameInfoSHM.H = ev.Shm.Height
			s.Sharing.FrameInfoSHM.Stride = ev.Shm.Stride
			s.Sharing.FrameInfoSHM.Size = ev.Shm.Stride * ev.Shm.Height
			s.Sharing.FrameInfoSHM.Fourcc = uint32(ev.Shm.Format)
			s.mu.Unlock()

		case compositor.FrameDMABufInfo:
			s.mu.Lock()
			s.Sharing.FrameInfoDMA.W = ev.DMABuf.Width
			s.Sharing.FrameInfoDMA.H = ev.DMABuf.Height
			s.Sharing.FrameInfoDMA.Fourcc = uint32(ev.DMABuf.Format)
			s.mu.Unlock()

		case compositor.FrameDamage:
			s.mu.Lock()
			if s.Sharing.DamageCount >= len(s.Sharing.Damage) {
				s.Sharing.DamageOverflowed = true
			} else {
				s.Sharing.Damage[s.Sharing.DamageCount] = DamageRect{ev.Damage.X, ev.Damage.Y, ev.Damage.Width, ev.Damage.Height}
				s.Sharing.DamageCount++
			}
			s.mu.Unlock()

		case compositor.FrameBufferDone:
			d.onBufferDone(s, fc)

		case compositor.FrameReady:
			s.mu.Lock()
			s.Sharing.Status = FrameReady
			s.Sharing.TvSec = ev.TvSec
			s.Sharing.TvNsec = ev.TvNsec
			s.Sharing.TvTimestampNs = ev.TvSec*1_000_000_000 + uint64(ev.TvNsec)
			s.mu.Unlock()
			d.untrackFrame(s)
			d.onReady(s)
			fc.Destroy()
			s.mu.Lock()
			s.Sharing.frame = nil
			s.mu.Unlock()
			d.scheduleNext(s)
			return

		case compositor.FrameFailed:
			log.Warn().Str("session", s.SessionPath).Msg("frame capture failed")
			s.mu.Lock()
			s.Sharing.Status = FrameFailed
			s.Sharing.frame = nil
			s.mu.Unlock()
			d.untrackFrame(s)
			fc.Destroy()
			d.scheduleNext(s)
			return
		}
	}
}

// onBufferDone lazily constructs the media stream (and, if needed, the
// dedicated compositor buffer) on the first buffer_done for this session,
// then attaches a buffer for the compositor's copy: the dedicated
// compositor buffer for needs_transform sessions (the renderer copies from
// it into a stream buffer once the copy lands), or a dequeued stream
// buffer directly otherwise.
func (d *Driver) onBufferDone(s *Session, fc *compositor.FrameCapture) {
	log := logger.WithComponent("session")

	stream := s.Stream()
	if stream == nil {
		if err := d.createStream(s); err != nil {
			log.Debug().Err(err).Msg("buffer_done with no stream yet; nothing to attach")
			d.giveUpFrame(s, fc)
			return
		}
		stream = s.Stream()
	}

	s.mu.Lock()
	needsTransform := s.Selection.NeedsTransform
	negotiated := s.Sharing.Negotiated
	hasNegotiated := s.Sharing.HasNegotiated
	frameW, frameH := s.Sharing.FrameInfoDMA.W, s.Sharing.FrameInfoDMA.H
	s.mu.Unlock()

	if !needsTransform && hasNegotiated && frameW != 0 && (uint32(negotiated.Width) != frameW || uint32(negotiated.Height) != frameH) {
		log.Debug().Msg("negotiated format no longer matches compositor geometry, renegotiating")
		d.renegotiate(s, frameW, frameH)
		d.giveUpFrame(s, fc)
		return
	}

	if needsTransform {
		if err := d.ensureCompositorBuffer(s); err != nil {
			log.Warn().Err(err).Msg("failed to allocate dedicated compositor buffer")
			d.retryOrGiveUp(s, fc)
			return
		}
		s.mu.Lock()
		handle := s.Sharing.CompositorHandle
		s.mu.Unlock()
		fc.AttachAndCopy(handle)
		s.mu.Lock()
		s.Sharing.CopyRetries = 0
		s.mu.Unlock()
		return
	}

	if slot, err := stream.Dequeue(); err == nil && slot != nil && slot.CompositorHandle != nil {
		fc.AttachAndCopy(slot.CompositorHandle)
		s.mu.Lock()
		s.Sharing.CopyRetries = 0
		s.mu.Unlock()
		return
	}

	d.retryOrGiveUp(s, fc)
}

func (d *Driver) giveUpFrame(s *Session, fc *compositor.FrameCapture) {
	s.mu.Lock()
	s.Sharing.Status = FrameNone
	s.mu.Unlock()
	d.untrackFrame(s)
	fc.Destroy()
	s.mu.Lock()
	s.Sharing.frame = nil
	s.mu.Unlock()
}

func (d *Driver) retryOrGiveUp(s *Session, fc *compositor.FrameCapture) {
	log := logger.WithComponent("session")

	s.mu.Lock()
	s.Sharing.Status = FrameNone
	retries := s.Sharing.CopyRetries
	s.Sharing.CopyRetries++
	s.mu.Unlock()

	d.untrackFrame(s)
	fc.Destroy()
	s.mu.Lock()
	s.Sharing.frame = nil
	s.mu.Unlock()

	if retries < MaxRetries {
		log.Debug().Int("retry", retries+1).Int("max", MaxRetries).Msg("out of buffers, retrying")
		d.scheduleNext(s)
	} else {
		log.Warn().Msg("out of buffers after max retries, dropping frame")
		s.mu.Lock()
		s.Sharing.CopyRetries = 0
		s.mu.Unlock()
		d.scheduleNext(s)
	}
}

// renegotiate switches the session into Reneg, tears down the negotiated
// state and re-offers formats matching the compositor's new geometry.
func (d *Driver) renegotiate(s *Session, w, h uint32) {
	s.mu.Lock()
	s.Sharing.Status = FrameReneg
	fourcc := s.Sharing.FrameInfoDMA.Fourcc
	framerate := s.Sharing.Framerate
	stream := s.stream
	s.Sharing.HasNegotiated = false
	s.mu.Unlock()

	if stream == nil || d.UpdateStreamParams == nil {
		return
	}
	offers := []media.VideoFormatOffer{{
		SPAFormat: media.SPAFormatFromDRMFourcc(fourcc),
		Width:     int32(w), Height: int32(h), Framerate: int32(framerate),
	}}
	d.UpdateStreamParams(s, offers)
}

// onReady runs the transform renderer when needed, then hands the frame to
// the media stream's Enqueue.
func (d *Driver) onReady(s *Session) {
	s.mu.Lock()
	needsTransform := s.Selection.NeedsTransform
	crop := s.NeedsCrop
	transform := s.Sharing.Transform
	compositorBuf := s.Sharing.CompositorBuffer
	stream := s.stream
	tsNs := s.Sharing.TvTimestampNs
	damageCount := s.Sharing.DamageCount
	damage := s.Sharing.Damage
	damageOverflowed := s.Sharing.DamageOverflowed
	frameW, frameH := s.Sharing.FrameInfoDMA.W, s.Sharing.FrameInfoDMA.H
	s.mu.Unlock()

	if stream == nil {
		return
	}

	renderTransform := transform
	if needsTransform && d.Renderer != nil && compositorBuf != nil {
		if stream.CurrentBuffer() == nil {
			if _, err := stream.Dequeue(); err != nil {
				logger.WithComponent("session").Warn().Err(err).Msg("no stream buffer available for render target, retrying in 100ms")
				d.ScheduleNext(s, 100*time.Millisecond)
				return
			}
		}
		target := stream.CurrentBuffer()
		if target == nil {
			logger.WithComponent("session").Warn().Msg("render target buffer unavailable, retrying in 100ms")
			d.ScheduleNext(s, 100*time.Millisecond)
			return
		}
		if err := d.Renderer.Render(target, compositorBuf, transform, crop); err != nil {
			logger.WithComponent("session").Warn().Err(err).Msg("render failed, retrying in 100ms")
			d.ScheduleNext(s, 100*time.Millisecond)
			return
		}
		renderTransform = compositor.TransformNormal
	}

	opts := media.EnqueueOpts{
		TimestampNs: tsNs,
		Corrupted:   false,
		Transform:   uint32(renderTransform),
		FullFrameW:  frameW,
		FullFrameH:  frameH,
	}
	if damageOverflowed {
		opts.Damage = []media.DamageRect{{X: 0, Y: 0, W: frameW, H: frameH}}
	} else {
		for i := 0; i < damageCount; i++ {
			opts.Damage = append(opts.Damage, media.DamageRect{X: damage[i].X, Y: damage[i].Y, W: damage[i].W, H: damage[i].H})
		}
	}
	if err := stream.Enqueue(opts); err != nil {
		logger.WithComponent("session").Warn().Err(err).Msg("enqueue failed")
	} else {
		s.MarkStreaming()
	}

	s.mu.Lock()
	s.Sharing.DamageCount = 0
	s.Sharing.DamageOverflowed = false
	s.mu.Unlock()
}

func (d *Driver) scheduleNext(s *Session) {
	s.mu.Lock()
	framerate := s.Sharing.Framerate
	begun := s.Sharing.BegunFrame
	s.mu.Unlock()

	delay := pacingDelay(framerate, time.Since(begun))
	if d.ScheduleNext != nil {
		d.ScheduleNext(s, delay)
	}
}

// pacingDelay implements the next-frame pacing formula:
// 1000/framerate - elapsed - 1ms safety margin, clamped to [6ms, 1000ms].
func pacingDelay(framerate int, elapsed time.Duration) time.Duration {
	if framerate <= 0 {
		framerate = 30
	}
	target := time.Duration(1000/framerate) * time.Millisecond
	delay := target - elapsed - time.Millisecond
	if delay < 6*time.Millisecond {
		delay = 6 * time.Millisecond
	}
	if delay > 1000*time.Millisecond {
		delay = 1000 * time.Millisecond
	}
	return delay
}
