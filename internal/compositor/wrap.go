package compositor

import (
	"strings"

	"golang.org/x/image/font"

	"github.com/ivlev/lyric2video/internal/timeline"
)

// token is one display word. wordIdx points into the line's timed Words, or
// -1 when the line carries no word timings and degrades to line-only display.
type token struct {
	text    string
	wordIdx int
	width   int // pixel advance, excluding trailing space
}

type wrappedLine struct {
	tokens []token
	width  int // pixel advance of the whole line including inter-word spaces
}

// wrapCache memoizes word-wrapping per lyric line and surface width, since
// re-measuring text every frame is the dominant compositing cost. It is
// owned by exactly one Compositor and therefore by exactly one clock.
type wrapCache struct {
	width int
	lines map[int][]wrappedLine
}

func newWrapCache() *wrapCache {
	return &wrapCache{lines: make(map[int][]wrappedLine)}
}

func (w *wrapCache) get(li, width int) ([]wrappedLine, bool) {
	if width != w.width {
		// Surface width changed: every measurement is stale.
		w.lines = make(map[int][]wrappedLine)
		w.width = width
		return nil, false
	}
	lines, ok := w.lines[li]
	return lines, ok
}

func (w *wrapCache) put(li int, lines []wrappedLine) {
	w.lines[li] = lines
}

// tokenize prefers the timed word list; a malformed line without words falls
// back to whitespace-split display tokens.
func tokenize(l timeline.LyricLine) []token {
	if len(l.Words) > 0 {
		toks := make([]token, 0, len(l.Words))
		for i, w := range l.Words {
			text := strings.TrimSpace(w.Text)
			if text == "" {
				continue
			}
			toks = append(toks, token{text: text, wordIdx: i})
		}
		if len(toks) > 0 {
			return toks
		}
	}
	fields := strings.Fields(l.Text)
	toks := make([]token, 0, len(fields))
	for _, f := range fields {
		toks = append(toks, token{text: f, wordIdx: -1})
	}
	return toks
}

// wrapTokens performs greedy word wrap against maxWidth pixels. A single
// token wider than maxWidth gets its own line rather than being dropped.
func wrapTokens(face font.Face, toks []token, maxWidth int) []wrappedLine {
	spaceW := font.MeasureString(face, " ").Ceil()

	var out []wrappedLine
	var cur wrappedLine
	for _, t := range toks {
		t.width = font.MeasureString(face, t.text).Ceil()

		candidate := t.width
		if len(cur.tokens) > 0 {
			candidate += cur.width + spaceW
		}
		if len(cur.tokens) > 0 && candidate > maxWidth {
			out = append(out, cur)
			cur = wrappedLine{}
			candidate = t.width
		}
		cur.tokens = append(cur.tokens, t)
		cur.width = candidate
	}
	if len(cur.tokens) > 0 {
		out = append(out, cur)
	}
	return out
}
