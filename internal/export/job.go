// Package export renders a timeline offline into a video file. It re-runs
// the exact compositor the preview uses, but against its own frame-indexed
// media clock and its own offscreen surface, so an export can never disturb
// ongoing playback and vice versa.
package export

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

type Status int32

const (
	StatusIdle Status = iota
	StatusRecording
	StatusFinalizing
	StatusDone
	StatusCancelled
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRecording:
		return "recording"
	case StatusFinalizing:
		return "finalizing"
	case StatusDone:
		return "done"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether the job has reached a final state.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusCancelled || s == StatusFailed
}

// Callbacks surface every terminal outcome explicitly; the pipeline never
// swallows one. Exactly one of OnComplete, OnCancel, OnError fires per job.
type Callbacks struct {
	// OnProgress receives media-time progress in [0, 1]. Never wall-clock
	// based: export may run faster or slower than real time.
	OnProgress func(p float64, mediaMs int64)
	OnComplete func(outputPath string)
	OnCancel   func()
	OnError    func(err error)
}

// Job is one export run. All native resources it allocates are released on
// every terminal path; teardown is guarded to run exactly once.
type Job struct {
	ID string

	status    atomic.Int32
	cancelled atomic.Bool
	teardown  sync.Once
	done      chan struct{}
}

func newJob() *Job {
	return &Job{
		ID:   uuid.NewString(),
		done: make(chan struct{}),
	}
}

// Cancel requests cooperative cancellation. The frame loop observes the flag
// at the top of the next frame and proceeds straight to teardown.
func (j *Job) Cancel() {
	j.cancelled.Store(true)
}

func (j *Job) Status() Status {
	return Status(j.status.Load())
}

// Wait blocks until the job reaches a terminal state.
func (j *Job) Wait() {
	<-j.done
}
