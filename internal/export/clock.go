package export

// MediaClock is the export's own time source: media position is a pure
// function of how many frames have been emitted, fully decoupled from wall
// time and from the preview clock. Driving the compositor from it at a fixed
// rate is what makes repeated exports byte-exact.
type MediaClock struct {
	fps   int
	frame int64
}

func NewMediaClock(fps int) *MediaClock {
	if fps <= 0 {
		fps = 30
	}
	return &MediaClock{fps: fps}
}

// NowMs returns the media position of the current frame in milliseconds.
func (c *MediaClock) NowMs() int64 {
	return c.frame * 1000 / int64(c.fps)
}

// Advance moves to the next frame.
func (c *MediaClock) Advance() {
	c.frame++
}

// Frame returns the current frame index.
func (c *MediaClock) Frame() int64 {
	return c.frame
}
