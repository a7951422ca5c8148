package export

import (
	"errors"
	"fmt"
	"image"
	"log"
	"sync"

	"github.com/ivlev/lyric2video/internal/compositor"
	"github.com/ivlev/lyric2video/internal/config"
	"github.com/ivlev/lyric2video/internal/endcard"
	"github.com/ivlev/lyric2video/internal/source"
	"github.com/ivlev/lyric2video/internal/system"
	"github.com/ivlev/lyric2video/internal/timeline"
)

// ErrExportBusy rejects a second export while one is recording: two
// concurrent capture sessions must never run.
var ErrExportBusy = errors.New("export: задание уже выполняется")

// progressIntervalMs throttles OnProgress to once per second of media time.
const progressIntervalMs = 1000

// Pipeline owns the single-job invariant. The decoded image cache is shared
// with the preview — read-only after decode, so no locking is needed — but
// every other resource (surface, clock, compositor, wrap cache, sink) is
// allocated per job and torn down with it.
type Pipeline struct {
	images  *source.ImageCache
	newSink func() CaptureSink

	mu     sync.Mutex
	active *Job
}

func NewPipeline(images *source.ImageCache) *Pipeline {
	return &Pipeline{
		images:  images,
		newSink: func() CaptureSink { return NewFFmpegSink() },
	}
}

// Start begins an export and returns immediately; outcomes arrive through
// the callbacks. The returned Job is the cancel handle.
func (p *Pipeline) Start(tl *timeline.Timeline, style *config.Style, params config.ExportParams, card *endcard.Card, cb Callbacks) (*Job, error) {
	p.mu.Lock()
	if p.active != nil && !p.active.Status().Terminal() {
		p.mu.Unlock()
		return nil, ErrExportBusy
	}

	// Own compositor, own cursor, own wrap cache: nothing per-frame is
	// shared with the preview clock.
	comp, err := compositor.New(tl, p.images, style)
	if err != nil {
		p.mu.Unlock()
		return nil, fmt.Errorf("export: %w", err)
	}
	if card != nil {
		comp.SetEndCard(card)
	}

	job := newJob()
	p.active = job
	p.mu.Unlock()

	go p.run(job, comp, params, cb)
	return job, nil
}

// Active returns the current job, terminal or not.
func (p *Pipeline) Active() *Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

func (p *Pipeline) run(job *Job, comp *compositor.Compositor, params config.ExportParams, cb Callbacks) {
	defer close(job.done)

	surface := system.GetImage(image.Rect(0, 0, params.Width, params.Height))
	sink := p.newSink()
	clock := NewMediaClock(params.FPS)
	totalMs := comp.TotalMs()
	if totalMs <= 0 {
		totalMs = params.DurationMs
	}

	// finish is the single terminal gate: resource teardown and the one
	// outcome callback, guarded so no path can run it twice.
	finish := func(st Status, err error) {
		job.teardown.Do(func() {
			if st != StatusDone {
				sink.Abort()
			}
			system.PutImage(surface)
			job.status.Store(int32(st))

			switch st {
			case StatusDone:
				log.Printf("[*] Экспорт %s завершён: %s", job.ID, params.OutputPath)
				if cb.OnComplete != nil {
					cb.OnComplete(params.OutputPath)
				}
			case StatusCancelled:
				log.Printf("[*] Экспорт %s отменён", job.ID)
				if cb.OnCancel != nil {
					cb.OnCancel()
				} else if cb.OnError != nil {
					cb.OnError(errors.New("export: задание отменено"))
				}
			case StatusFailed:
				log.Printf("[!] Экспорт %s завершился ошибкой: %v", job.ID, err)
				if cb.OnError != nil {
					cb.OnError(err)
				}
			}
		})
	}

	job.status.Store(int32(StatusRecording))
	if err := sink.Start(params); err != nil {
		finish(StatusFailed, err)
		return
	}

	lastReport := int64(-progressIntervalMs)
	for {
		// Cancellation is observed at the top of each frame; after that the
		// loop schedules nothing further and goes straight to teardown.
		if job.cancelled.Load() {
			finish(StatusCancelled, nil)
			return
		}

		t := clock.NowMs()
		if t >= totalMs {
			break
		}

		comp.DrawFrame(surface, t)
		if err := sink.WriteFrame(surface); err != nil {
			finish(StatusFailed, err)
			return
		}

		if t-lastReport >= progressIntervalMs {
			if cb.OnProgress != nil {
				cb.OnProgress(float64(t)/float64(totalMs), t)
			}
			lastReport = t
		}
		clock.Advance()
	}

	job.status.Store(int32(StatusFinalizing))
	if err := sink.Finish(); err != nil {
		finish(StatusFailed, err)
		return
	}
	if cb.OnProgress != nil {
		cb.OnProgress(1, totalMs)
	}
	finish(StatusDone, nil)
}
