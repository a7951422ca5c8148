// Package preview drives the interactive render loop: a play/pause/seek
// clock standing in for the audio element, a per-display-frame loop calling
// the compositor, and an HTTP surface streaming the result.
package preview

import (
	"sync"
	"time"
)

// Clock is a read-only media position source. The loop reads it exactly once
// per tick and never caches the value across frames.
type Clock interface {
	// Now returns the current media position in milliseconds.
	Now() int64
	Playing() bool
	DurationMs() int64
}

// PlaybackClock is the preview's audio clock: wall-clock backed while
// playing, frozen while paused, directly settable by seeks. The export
// pipeline never touches it; export owns a separate clock entirely.
type PlaybackClock struct {
	mu       sync.Mutex
	duration int64
	playing  bool
	baseMs   int64     // media position at anchor
	anchor   time.Time // wall time the position was anchored
}

func NewPlaybackClock(durationMs int64) *PlaybackClock {
	if durationMs < 0 {
		durationMs = 0
	}
	return &PlaybackClock{duration: durationMs}
}

func (c *PlaybackClock) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playing {
		return
	}
	if c.baseMs >= c.duration {
		c.baseMs = 0 // replay from the top after the track ended
	}
	c.anchor = time.Now()
	c.playing = true
}

func (c *PlaybackClock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.playing {
		return
	}
	c.baseMs = c.nowLocked()
	c.playing = false
}

// SeekMs sets the position directly; the next tick recomputes everything
// from the new time, no interpolation needed.
func (c *PlaybackClock) SeekMs(t int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t < 0 {
		t = 0
	}
	if t > c.duration {
		t = c.duration
	}
	c.baseMs = t
	c.anchor = time.Now()
}

func (c *PlaybackClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nowLocked()
}

func (c *PlaybackClock) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	// The clock stops itself at end of media.
	if c.playing && c.nowLocked() >= c.duration {
		c.baseMs = c.duration
		c.playing = false
	}
	return c.playing
}

func (c *PlaybackClock) DurationMs() int64 {
	return c.duration
}

func (c *PlaybackClock) nowLocked() int64 {
	pos := c.baseMs
	if c.playing {
		pos += time.Since(c.anchor).Milliseconds()
	}
	if pos > c.duration {
		pos = c.duration
	}
	return pos
}
