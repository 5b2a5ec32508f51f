package debugserver

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"sync"

	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/logger"
)

// previewHub fans a session's decoded RGBA frames out to every connected
// /preview.mjpeg client as Motion JPEG, one goroutine-free channel per
// client so a slow browser tab never blocks frame publication.
type previewHub struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
}

func newPreviewHub() *previewHub {
	return &previewHub{clients: make(map[chan []byte]struct{})}
}

// publish JPEG-encodes one frame and drops it on every connected
// client's channel, skipping clients that haven't drained the last one.
func (h *previewHub) publish(frame *FramePreview) {
	img := &image.RGBA{
		Pix:    frame.RGBA,
		Stride: int(frame.Width) * 4,
		Rect:   image.Rect(0, 0, int(frame.Width), int(frame.Height)),
	}
	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: 80}); err != nil {
		logger.WithComponent("debugserver").Warn().Err(err).Msg("preview jpeg encode failed")
		return
	}
	data := buf.Bytes()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.clients {
		select {
		case ch <- data:
		default:
		}
	}
}

func (h *previewHub) serveHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Connection", "close")

	ch := make(chan []byte, 2)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, ch)
		h.mu.Unlock()
	}()

	for jpegData := range ch {
		if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpegData)); err != nil {
			return
		}
		if _, err := w.Write(jpegData); err != nil {
			return
		}
		if _, err := fmt.Fprint(w, "\r\n"); err != nil {
			return
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}

func (h *previewHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		close(ch)
	}
	h.clients = make(map[chan []byte]struct{})
}
