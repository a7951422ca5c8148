package preview

import (
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server exposes the preview over HTTP: an MJPEG stream of composited
// frames, the audio file for the browser to play, and transport controls.
// The render core stays network-free; this surface only observes it.
type Server struct {
	clock     *PlaybackClock
	loop      *Loop
	audioPath string
	logger    *slog.Logger

	mu     sync.RWMutex
	latest *image.RGBA
	stamp  int64
}

func NewServer(clock *PlaybackClock, audioPath string, logger *slog.Logger) *Server {
	return &Server{
		clock:     clock,
		audioPath: audioPath,
		logger:    logger,
	}
}

// AttachLoop connects the render loop after construction: the loop's observer
// is a server method, so the two reference each other.
func (s *Server) AttachLoop(loop *Loop) { s.loop = loop }

// ObserveFrame is the loop's FrameObserver: it snapshots the reused surface
// so stream handlers never race the compositor.
func (s *Server) ObserveFrame(frame *image.RGBA, timeMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil || s.latest.Bounds() != frame.Bounds() {
		s.latest = image.NewRGBA(frame.Bounds())
	}
	copy(s.latest.Pix, frame.Pix)
	s.stamp = timeMs
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/state", s.handleState)
	r.Get("/preview", s.handlePreview)
	r.Get("/audio", s.handleAudio)
	r.Post("/play", s.handlePlay)
	r.Post("/pause", s.handlePause)
	r.Post("/seek", s.handleSeek)
	return r
}

// ListenAndServe blocks serving the preview UI endpoints.
func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("preview server listening", "addr", addr)
	return http.ListenAndServe(addr, s.Router())
}

type stateResponse struct {
	TimeMs     int64 `json:"timeMs"`
	DurationMs int64 `json:"durationMs"`
	Playing    bool  `json:"playing"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	resp := stateResponse{
		TimeMs:     s.clock.Now(),
		DurationMs: s.clock.DurationMs(),
		Playing:    s.clock.Playing(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	s.clock.Play()
	s.loop.Start()
	s.logger.Info("playback started", "time_ms", s.clock.Now())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.clock.Pause()
	s.logger.Info("playback paused", "time_ms", s.clock.Now())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	t, err := strconv.ParseInt(r.URL.Query().Get("t"), 10, 64)
	if err != nil || t < 0 {
		http.Error(w, "invalid t parameter", http.StatusBadRequest)
		return
	}
	s.clock.SeekMs(t)
	if !s.clock.Playing() {
		// Paused seek: refresh the displayed frame once.
		s.loop.RenderOnce()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	// http.ServeFile handles Range requests, which the browser audio
	// element needs for seeking.
	http.ServeFile(w, r, s.audioPath)
}

const streamBoundary = "lyricframe"

// handlePreview streams the composited frames as multipart MJPEG at a fixed
// rate, independent of the render loop's own cadence.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+streamBoundary)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ticker := time.NewTicker(time.Second / 15)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			s.mu.RLock()
			frame := s.latest
			s.mu.RUnlock()
			if frame == nil {
				continue
			}

			fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\n\r\n", streamBoundary)
			if err := jpeg.Encode(w, frame, &jpeg.Options{Quality: 80}); err != nil {
				s.logger.Debug("preview stream closed", "err", err)
				return
			}
			fmt.Fprint(w, "\r\n")
			flusher.Flush()
		}
	}
}
