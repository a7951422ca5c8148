package export

import (
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/ivlev/lyric2video/internal/config"
	"github.com/ivlev/lyric2video/internal/source"
	"github.com/ivlev/lyric2video/internal/timeline"
)

// fakeSink records the pipeline's interactions so the state machine can be
// exercised without ffmpeg.
type fakeSink struct {
	mu       sync.Mutex
	started  bool
	frames   int
	finished int
	aborted  int

	writeErr error
	onFrame  func(n int)
}

func (f *fakeSink) Start(config.ExportParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	return nil
}

func (f *fakeSink) WriteFrame(*image.RGBA) error {
	f.mu.Lock()
	f.frames++
	n := f.frames
	err := f.writeErr
	hook := f.onFrame
	f.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return err
}

func (f *fakeSink) Finish() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished++
	return nil
}

func (f *fakeSink) Abort() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted++
}

func (f *fakeSink) snapshot() (frames, finished, aborted int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frames, f.finished, f.aborted
}

// outcome counts terminal callbacks; exactly one must fire per job.
type outcome struct {
	mu        sync.Mutex
	completed int
	cancelled int
	failed    int
	lastErr   error
	maxP      float64
}

func (o *outcome) callbacks() Callbacks {
	return Callbacks{
		OnProgress: func(p float64, _ int64) {
			o.mu.Lock()
			if p > o.maxP {
				o.maxP = p
			}
			o.mu.Unlock()
		},
		OnComplete: func(string) {
			o.mu.Lock()
			o.completed++
			o.mu.Unlock()
		},
		OnCancel: func() {
			o.mu.Lock()
			o.cancelled++
			o.mu.Unlock()
		},
		OnError: func(err error) {
			o.mu.Lock()
			o.failed++
			o.lastErr = err
			o.mu.Unlock()
		},
	}
}

func (o *outcome) counts() (completed, cancelled, failed int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.completed, o.cancelled, o.failed
}

func testTimeline(t *testing.T, durationMs int64) *timeline.Timeline {
	t.Helper()
	tl, err := timeline.New(
		[]timeline.Scene{{StartTime: 0, Image: "bg"}},
		[]timeline.LyricLine{{Text: "привет мир", StartTime: 0}},
		durationMs,
	)
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	return tl
}

func testPipeline(sink *fakeSink) *Pipeline {
	p := NewPipeline(source.NewImageCache())
	p.newSink = func() CaptureSink { return sink }
	return p
}

func testParams() config.ExportParams {
	return config.ExportParams{
		Width:      96,
		Height:     54,
		FPS:        10,
		OutputPath: "out.mp4",
	}
}

func TestPipelineHappyPath(t *testing.T) {
	sink := &fakeSink{}
	p := testPipeline(sink)
	var out outcome

	job, err := p.Start(testTimeline(t, 500), nil, testParams(), nil, out.callbacks())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	job.Wait()

	if st := job.Status(); st != StatusDone {
		t.Fatalf("status = %v, want done", st)
	}
	completed, cancelled, failed := out.counts()
	if completed != 1 || cancelled != 0 || failed != 0 {
		t.Errorf("callbacks = (%d complete, %d cancel, %d error), want exactly one complete",
			completed, cancelled, failed)
	}
	if out.maxP != 1 {
		t.Errorf("progress peaked at %v, want 1", out.maxP)
	}

	// 500ms at 10fps is 5 frames; Finish once, never Abort.
	frames, finished, aborted := sink.snapshot()
	if frames != 5 {
		t.Errorf("frames = %d, want 5", frames)
	}
	if finished != 1 || aborted != 0 {
		t.Errorf("finish/abort = %d/%d, want 1/0", finished, aborted)
	}
}

func TestPipelineCancelMidRecording(t *testing.T) {
	firstFrame := make(chan struct{})
	sink := &fakeSink{}
	sink.onFrame = func(n int) {
		if n == 1 {
			close(firstFrame)
		}
		time.Sleep(time.Millisecond)
	}
	p := testPipeline(sink)
	var out outcome

	job, err := p.Start(testTimeline(t, 60000), nil, testParams(), nil, out.callbacks())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	<-firstFrame
	job.Cancel()
	job.Wait()

	if st := job.Status(); st != StatusCancelled {
		t.Fatalf("status = %v, want cancelled", st)
	}
	completed, cancelled, failed := out.counts()
	if completed != 0 || cancelled != 1 || failed != 0 {
		t.Errorf("callbacks = (%d complete, %d cancel, %d error), want exactly one cancel",
			completed, cancelled, failed)
	}
	_, finished, aborted := sink.snapshot()
	if finished != 0 || aborted != 1 {
		t.Errorf("finish/abort = %d/%d, want 0/1", finished, aborted)
	}
}

func TestPipelineRejectsConcurrentStart(t *testing.T) {
	firstFrame := make(chan struct{})
	var once sync.Once
	sink := &fakeSink{}
	sink.onFrame = func(int) {
		once.Do(func() { close(firstFrame) })
		time.Sleep(time.Millisecond)
	}
	p := testPipeline(sink)
	var out outcome

	job, err := p.Start(testTimeline(t, 60000), nil, testParams(), nil, out.callbacks())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-firstFrame

	if _, err := p.Start(testTimeline(t, 500), nil, testParams(), nil, Callbacks{}); !errors.Is(err, ErrExportBusy) {
		t.Fatalf("second Start err = %v, want ErrExportBusy", err)
	}

	job.Cancel()
	job.Wait()

	// Once the job is terminal a new export may begin.
	sink2 := &fakeSink{}
	p.newSink = func() CaptureSink { return sink2 }
	var out2 outcome
	job2, err := p.Start(testTimeline(t, 500), nil, testParams(), nil, out2.callbacks())
	if err != nil {
		t.Fatalf("Start after terminal job: %v", err)
	}
	job2.Wait()
	if st := job2.Status(); st != StatusDone {
		t.Errorf("second job status = %v, want done", st)
	}
}

func TestPipelineWriteFailure(t *testing.T) {
	sink := &fakeSink{writeErr: errors.New("broken pipe")}
	p := testPipeline(sink)
	var out outcome

	job, err := p.Start(testTimeline(t, 500), nil, testParams(), nil, out.callbacks())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	job.Wait()

	if st := job.Status(); st != StatusFailed {
		t.Fatalf("status = %v, want failed", st)
	}
	completed, cancelled, failed := out.counts()
	if completed != 0 || cancelled != 0 || failed != 1 {
		t.Errorf("callbacks = (%d complete, %d cancel, %d error), want exactly one error",
			completed, cancelled, failed)
	}
	if out.lastErr == nil {
		t.Error("OnError got nil error")
	}
	_, finished, aborted := sink.snapshot()
	if finished != 0 || aborted != 1 {
		t.Errorf("finish/abort = %d/%d, want 0/1", finished, aborted)
	}
}

func TestPipelineProgressThrottled(t *testing.T) {
	sink := &fakeSink{}
	p := testPipeline(sink)

	var mu sync.Mutex
	var stamps []int64
	cb := Callbacks{
		OnProgress: func(_ float64, mediaMs int64) {
			mu.Lock()
			stamps = append(stamps, mediaMs)
			mu.Unlock()
		},
	}

	// 5s at 10fps: reports at 0..4000ms plus the final 100% one, never more
	// often than once per second of media time.
	job, err := p.Start(testTimeline(t, 5000), nil, testParams(), nil, cb)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	job.Wait()

	mu.Lock()
	defer mu.Unlock()
	want := []int64{0, 1000, 2000, 3000, 4000, 5000}
	if len(stamps) != len(want) {
		t.Fatalf("OnProgress fired %d times (%v), want %d", len(stamps), stamps, len(want))
	}
	for i, ms := range want {
		if stamps[i] != ms {
			t.Errorf("report %d at %dms, want %dms", i, stamps[i], ms)
		}
	}
}

func TestMediaClockFrameTimes(t *testing.T) {
	c := NewMediaClock(30)
	want := []int64{0, 33, 66, 100}
	for i, w := range want {
		if got := c.NowMs(); got != w {
			t.Errorf("frame %d: NowMs = %d, want %d", i, got, w)
		}
		c.Advance()
	}
	if c.Frame() != 4 {
		t.Errorf("Frame = %d, want 4", c.Frame())
	}
}
