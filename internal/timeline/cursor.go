package timeline

// Cursor answers "what is active at time t" with amortized O(1) cost for the
// monotonically increasing queries both clocks produce. A backward jump
// (seek) resets the scan; correctness never depends on query order.
//
// A Cursor is owned by exactly one clock loop. Preview and export each hold
// their own so neither can desynchronize the other.
type Cursor struct {
	tl        *Timeline
	lastScene int
	lastLyric int
	lastTime  int64
}

func NewCursor(tl *Timeline) *Cursor {
	return &Cursor{tl: tl, lastScene: 0, lastLyric: 0, lastTime: -1}
}

// ActiveSceneAt returns the index of the last scene whose start <= t, and
// the index of the following scene or -1. Times before the first scene
// resolve to index 0 (scenes are assumed to start at or near zero); whether
// that scene is drawable is the compositor's concern.
func (c *Cursor) ActiveSceneAt(t int64) (active, next int) {
	if len(c.tl.Scenes) == 0 {
		return -1, -1
	}
	if t < 0 {
		t = 0
	}
	if t < c.lastTime {
		c.lastScene = 0
		c.lastLyric = 0
	}
	c.lastTime = t

	i := c.lastScene
	for i+1 < len(c.tl.Scenes) && c.tl.Scenes[i+1].StartTime <= t {
		i++
	}
	c.lastScene = i

	next = -1
	if i+1 < len(c.tl.Scenes) {
		next = i + 1
	}
	return i, next
}

// ActiveLyricAt returns the index of the line whose [start, effectiveEnd)
// window contains t, or -1 when no lyric is visible.
func (c *Cursor) ActiveLyricAt(t int64) int {
	if len(c.tl.Lyrics) == 0 {
		return -1
	}
	if t < 0 {
		t = 0
	}
	if t < c.lastTime {
		c.lastScene = 0
		c.lastLyric = 0
	}
	c.lastTime = t

	i := c.lastLyric
	for i+1 < len(c.tl.Lyrics) && c.tl.Lyrics[i+1].StartTime <= t {
		i++
	}
	c.lastLyric = i

	if t < c.tl.Lyrics[i].StartTime || t >= c.tl.EffectiveEnd(i) {
		return -1
	}
	return i
}

// ActiveWordAt returns the index of the highlighted word of line li at t, or
// -1 if none. A word holds the highlight from its own start until the next
// word's start; the final word keeps it for the derived floor.
func (c *Cursor) ActiveWordAt(li int, t int64) int {
	words := c.tl.Lyrics[li].Words
	active := -1
	for wi := range words {
		if words[wi].StartTime > t {
			break
		}
		active = wi
	}
	if active >= 0 && t >= c.tl.WordEnd(li, active) {
		return -1
	}
	return active
}
