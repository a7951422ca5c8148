package timeline

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

const (
	// DefaultLineMs caps how long a line without word timings stays on screen.
	DefaultLineMs = 3000
	// MinWordMs is the floor for the last word of a line, so it does not flash.
	MinWordMs = 600
	// WordPerCharMs estimates spoken duration from character count.
	WordPerCharMs = 75
)

// Scene is one timed background image. The image handle is resolved lazily
// through the source cache and may still be undecoded when first queried.
type Scene struct {
	StartTime int64  `json:"startTime" yaml:"start"`
	Image     string `json:"imageUri" yaml:"image"`
}

// Word is a single timed token inside a lyric line.
type Word struct {
	Text      string `json:"text" yaml:"text"`
	StartTime int64  `json:"startTime" yaml:"start"`
}

// LyricLine is one displayed line. Words may be empty, in which case the
// line is shown as a single block for at most DefaultLineMs.
type LyricLine struct {
	Text      string `json:"line" yaml:"line"`
	StartTime int64  `json:"startTime" yaml:"start"`
	Words     []Word `json:"words" yaml:"words,omitempty"`
}

// Timeline is the immutable snapshot handed to the render core. It is never
// mutated after New; both preview and export read it concurrently.
type Timeline struct {
	Scenes     []Scene
	Lyrics     []LyricLine
	DurationMs int64
}

// New normalizes both input lists: negative starts clamp to zero, ordering is
// made ascending (stable, so duplicate starts keep input order) and lines
// with neither text nor words are dropped.
func New(scenes []Scene, lyrics []LyricLine, durationMs int64) (*Timeline, error) {
	if durationMs < 0 {
		return nil, fmt.Errorf("timeline: отрицательная длительность %dms", durationMs)
	}

	sc := make([]Scene, 0, len(scenes))
	for _, s := range scenes {
		if s.StartTime < 0 {
			s.StartTime = 0
		}
		sc = append(sc, s)
	}
	sort.SliceStable(sc, func(i, j int) bool { return sc[i].StartTime < sc[j].StartTime })

	ly := make([]LyricLine, 0, len(lyrics))
	for _, l := range lyrics {
		if strings.TrimSpace(l.Text) == "" && len(l.Words) == 0 {
			continue
		}
		if l.StartTime < 0 {
			l.StartTime = 0
		}
		words := make([]Word, 0, len(l.Words))
		for _, w := range l.Words {
			if w.StartTime < l.StartTime {
				w.StartTime = l.StartTime
			}
			words = append(words, w)
		}
		sort.SliceStable(words, func(i, j int) bool { return words[i].StartTime < words[j].StartTime })
		l.Words = words
		ly = append(ly, l)
	}
	sort.SliceStable(ly, func(i, j int) bool { return ly[i].StartTime < ly[j].StartTime })

	return &Timeline{Scenes: sc, Lyrics: ly, DurationMs: durationMs}, nil
}

// payload mirrors the collaborator output contract: two ordered JSON arrays.
type payload struct {
	Scenes []Scene     `json:"scenes"`
	Lyrics []LyricLine `json:"lyrics"`
}

// Parse reads the AI collaborator payload. Duration is not part of the
// payload; it comes from the audio and is attached here.
func Parse(data []byte, durationMs int64) (*Timeline, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("timeline: некорректный JSON: %w", err)
	}
	return New(p.Scenes, p.Lyrics, durationMs)
}

// Load reads a collaborator payload from disk.
func Load(path string, durationMs int64) (*Timeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, durationMs)
}

// SceneEnd returns the exclusive end of scene i: the next scene's start, or
// the audio duration for the last scene.
func (t *Timeline) SceneEnd(i int) int64 {
	if i+1 < len(t.Scenes) {
		return t.Scenes[i+1].StartTime
	}
	return t.DurationMs
}

// EffectiveEnd derives when line i stops being displayed. It is the earlier
// of the next line's start and the line's own estimated end, so adjacent
// lines can never overlap.
func (t *Timeline) EffectiveEnd(i int) int64 {
	l := t.Lyrics[i]

	var own int64
	if len(l.Words) == 0 {
		own = l.StartTime + DefaultLineMs
	} else {
		last := l.Words[len(l.Words)-1]
		own = last.StartTime + estimateWordMs(last.Text)
	}

	if i+1 < len(t.Lyrics) {
		next := t.Lyrics[i+1].StartTime
		if next < own {
			return next
		}
	}
	return own
}

// WordEnd returns when word wi of line li stops being the highlighted word:
// the next word's start, or for the final word the derived floor bounded by
// the line's effective end.
func (t *Timeline) WordEnd(li, wi int) int64 {
	l := t.Lyrics[li]
	if wi+1 < len(l.Words) {
		return l.Words[wi+1].StartTime
	}
	end := l.Words[wi].StartTime + estimateWordMs(l.Words[wi].Text)
	if eff := t.EffectiveEnd(li); eff < end {
		return eff
	}
	return end
}

// estimateWordMs gives a duration floor proportional to character count.
func estimateWordMs(text string) int64 {
	est := int64(len([]rune(text))) * WordPerCharMs
	if est < MinWordMs {
		return MinWordMs
	}
	return est
}

// ImageURIs lists every distinct scene image in first-use order, for preload.
func (t *Timeline) ImageURIs() []string {
	seen := make(map[string]bool, len(t.Scenes))
	uris := make([]string, 0, len(t.Scenes))
	for _, s := range t.Scenes {
		if s.Image == "" || seen[s.Image] {
			continue
		}
		seen[s.Image] = true
		uris = append(uris, s.Image)
	}
	return uris
}
