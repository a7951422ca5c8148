package preview

import (
	"image"
	"sync"
	"time"

	"github.com/ivlev/lyric2video/internal/compositor"
)

// FrameObserver receives every composited frame plus the media time it was
// drawn for. The frame buffer is reused between ticks; observers must copy
// anything they keep.
type FrameObserver func(frame *image.RGBA, timeMs int64)

// Loop renders once per display frame while the clock is playing. When the
// clock reports paused or ended it draws one final frame and self-terminates
// instead of rescheduling; Start may be called again after that without
// leaking a second loop.
type Loop struct {
	clock    Clock
	comp     *compositor.Compositor
	surface  *image.RGBA
	interval time.Duration
	observer FrameObserver

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}

	// renderMu serializes frame draws: the loop goroutine and a paused-seek
	// RenderOnce share one compositor and surface.
	renderMu sync.Mutex
}

func NewLoop(clock Clock, comp *compositor.Compositor, width, height, displayFPS int, observer FrameObserver) *Loop {
	if displayFPS <= 0 {
		displayFPS = 30
	}
	return &Loop{
		clock:    clock,
		comp:     comp,
		surface:  image.NewRGBA(image.Rect(0, 0, width, height)),
		interval: time.Second / time.Duration(displayFPS),
		observer: observer,
	}
}

// Start launches the render loop. A second Start while running is a no-op,
// which is what makes repeated play events safe.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return
	}
	l.running = true
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	go l.run(l.stop, l.done)
}

// Stop terminates the loop and waits for the final frame to finish.
// Idempotent, including concurrent calls: only the caller that takes the
// stop channel closes it, everyone else just waits.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	stop, done := l.stop, l.done
	l.stop = nil
	l.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	<-done
}

// Running reports whether a loop goroutine is live.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// RenderOnce draws the current clock position immediately, outside the loop.
// Used for paused seeks so the displayed frame tracks the seek bar.
func (l *Loop) RenderOnce() {
	l.tick()
}

func (l *Loop) run(stop, done chan struct{}) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			l.mu.Lock()
			l.running = false
			l.mu.Unlock()
			close(done)
			return
		case <-ticker.C:
			l.tick()
			if l.clock.Playing() {
				continue
			}
			// Pause or end of media: wind down instead of rescheduling. The
			// exit decision and the running flag change under one lock, and
			// the clock is re-read there: a play event that lands after the
			// tick sees running == true and no-ops its Start, so the loop
			// must keep going in that case rather than strand the clock.
			l.mu.Lock()
			if l.clock.Playing() {
				l.mu.Unlock()
				continue
			}
			l.running = false
			l.mu.Unlock()
			close(done)
			return
		}
	}
}

func (l *Loop) tick() {
	l.renderMu.Lock()
	defer l.renderMu.Unlock()

	// One clock read per frame; the compositor recomputes all state from it.
	t := l.clock.Now()
	l.comp.DrawFrame(l.surface, t)
	if l.observer != nil {
		l.observer(l.surface, t)
	}
}
