// Package compositor turns a timeline plus a playback time into pixels.
//
// DrawFrame is deterministic: identical inputs produce identical output, so
// the preview loop and the export pipeline can run the same code against
// their own clocks and agree frame for frame. The only mutable collaborator
// is the word-wrap cache, and each Compositor owns its own.
package compositor

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/ivlev/lyric2video/internal/config"
	"github.com/ivlev/lyric2video/internal/endcard"
	"github.com/ivlev/lyric2video/internal/source"
	"github.com/ivlev/lyric2video/internal/system"
	"github.com/ivlev/lyric2video/internal/timeline"
)

type Compositor struct {
	tl     *timeline.Timeline
	cursor *timeline.Cursor
	images *source.ImageCache
	style  *config.Style

	face   font.Face
	lineH  int
	ascent int
	spaceW int

	textCol   color.RGBA
	hlCol     color.RGBA
	shadowCol color.RGBA
	panelCol  color.RGBA

	wrap *wrapCache
	card *endcard.Card
}

// New builds a compositor over an immutable timeline. Each clock (preview,
// export) must construct its own so no per-frame state is ever shared.
func New(tl *timeline.Timeline, images *source.ImageCache, style *config.Style) (*Compositor, error) {
	if style == nil {
		style = config.DefaultStyle()
	}
	face, err := loadFace(style)
	if err != nil {
		return nil, err
	}

	c := &Compositor{
		tl:     tl,
		cursor: timeline.NewCursor(tl),
		images: images,
		style:  style,
		face:   face,
		wrap:   newWrapCache(),
	}

	m := face.Metrics()
	c.ascent = m.Ascent.Ceil()
	c.lineH = int(float64(m.Height.Ceil()) * style.LineSpacing)
	if c.lineH <= 0 {
		c.lineH = m.Height.Ceil()
	}
	c.spaceW = font.MeasureString(face, " ").Ceil()

	if c.textCol, err = config.ParseHexColor(style.TextColor); err != nil {
		return nil, err
	}
	if c.hlCol, err = config.ParseHexColor(style.HighlightColor); err != nil {
		return nil, err
	}
	if c.shadowCol, err = config.ParseHexColor(style.ShadowColor); err != nil {
		return nil, err
	}
	panel, err := config.ParseHexColor(style.PanelColor)
	if err != nil {
		return nil, err
	}
	c.panelCol = premultiply(panel, style.PanelAlpha)

	return c, nil
}

func loadFace(style *config.Style) (font.Face, error) {
	if style.FontPath == "" {
		return basicfont.Face7x13, nil
	}
	data, err := os.ReadFile(style.FontPath)
	if err != nil {
		return nil, err
	}
	fnt, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("compositor: не удалось разобрать шрифт %s: %w", style.FontPath, err)
	}
	size := style.FontSize
	if size <= 0 {
		size = 48
	}
	return opentype.NewFace(fnt, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

// SetEndCard attaches the optional outro card drawn past the audio duration.
func (c *Compositor) SetEndCard(card *endcard.Card) { c.card = card }

// TotalMs is the full render length including the end-card tail.
func (c *Compositor) TotalMs() int64 {
	total := c.tl.DurationMs
	if c.card != nil {
		total += c.card.TailMs
	}
	return total
}

// DrawFrame composites the frame for timeMs into dst. It never fails for
// data reasons: an undecoded image skips its layer, a missing lyric draws
// nothing, and negative times clamp to zero.
func (c *Compositor) DrawFrame(dst *image.RGBA, timeMs int64) {
	if timeMs < 0 {
		timeMs = 0
	}

	if c.card != nil && timeMs >= c.tl.DurationMs {
		p := clamp01(float64(timeMs-c.tl.DurationMs) / 1000.0)
		c.card.Draw(dst, c.face, p)
		return
	}

	draw.Draw(dst, dst.Bounds(), image.Black, image.Point{}, draw.Src)

	active, next := c.cursor.ActiveSceneAt(timeMs)
	if active >= 0 {
		c.drawScene(dst, active, timeMs, 1.0)
	}
	if next >= 0 {
		if a := CrossfadeAlpha(timeMs, c.tl.Scenes[next].StartTime, c.style.FadeMs); a > 0 {
			c.drawScene(dst, next, timeMs, a)
		}
	}

	if li := c.cursor.ActiveLyricAt(timeMs); li >= 0 {
		c.drawLyric(dst, li, timeMs)
	}
}

// drawScene paints one Ken Burns background layer at the given opacity.
func (c *Compositor) drawScene(dst *image.RGBA, idx int, timeMs int64, alpha float64) {
	scene := c.tl.Scenes[idx]
	img := c.images.Get(scene.Image)
	if img == nil {
		// Not decoded yet: skip the layer, retry next frame.
		return
	}

	start := scene.StartTime
	end := c.tl.SceneEnd(idx)
	p := 1.0
	if end > start {
		p = clamp01(float64(timeMs-start) / float64(end-start))
	}

	cam := kenBurnsCamera(c.style.ZoomMode, idx, easeInOutCubic(p), c.style.ZoomMax)
	src := cropRect(img.Bounds().Dx(), img.Bounds().Dy(), dst.Bounds().Dx(), dst.Bounds().Dy(), cam)
	if src.Empty() {
		return
	}

	if alpha >= 1.0 {
		xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, src, xdraw.Src, nil)
		return
	}

	tmp := system.GetImage(dst.Bounds())
	defer system.PutImage(tmp)
	xdraw.ApproxBiLinear.Scale(tmp, tmp.Bounds(), img, src, xdraw.Src, nil)

	mask := image.NewUniform(color.Alpha{A: uint8(alpha*255 + 0.5)})
	draw.DrawMask(dst, dst.Bounds(), tmp, tmp.Bounds().Min, mask, image.Point{}, draw.Over)
}

// drawLyric paints the active line: backing panel, wrapped centered text and
// the per-word highlight when enabled.
func (c *Compositor) drawLyric(dst *image.RGBA, li int, timeMs int64) {
	maxW := int(float64(dst.Bounds().Dx()) * c.style.MaxTextWidth)
	lines, ok := c.wrap.get(li, maxW)
	if !ok {
		lines = wrapTokens(c.face, tokenize(c.tl.Lyrics[li]), maxW)
		c.wrap.put(li, lines)
	}
	if len(lines) == 0 {
		return
	}

	w := dst.Bounds().Dx()
	h := dst.Bounds().Dy()
	pad := c.style.Padding

	blockW := 0
	for _, wl := range lines {
		if wl.width > blockW {
			blockW = wl.width
		}
	}
	blockH := c.lineH * len(lines)

	panelBottom := h - h/8
	panelTop := panelBottom - blockH - 2*pad
	panelLeft := (w-blockW)/2 - pad
	panel := image.Rect(panelLeft, panelTop, panelLeft+blockW+2*pad, panelBottom)
	draw.Draw(dst, panel.Intersect(dst.Bounds()), image.NewUniform(c.panelCol), image.Point{}, draw.Over)

	activeWord := -1
	if c.style.WordHighlight {
		activeWord = c.cursor.ActiveWordAt(li, timeMs)
	}

	y := panelTop + pad + c.ascent
	for _, wl := range lines {
		x := (w - wl.width) / 2
		for _, tok := range wl.tokens {
			col := c.textCol
			if tok.wordIdx >= 0 && tok.wordIdx == activeWord {
				col = c.hlCol
			}
			c.drawString(dst, tok.text, x+2, y+2, c.shadowCol)
			c.drawString(dst, tok.text, x, y, col)
			x += tok.width + c.spaceW
		}
		y += c.lineH
	}
}

func (c *Compositor) drawString(dst *image.RGBA, s string, x, y int, col color.RGBA) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: c.face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// premultiply scales a color into Go's alpha-premultiplied RGBA space.
func premultiply(c color.RGBA, alpha float64) color.RGBA {
	a := clamp01(alpha)
	return color.RGBA{
		R: uint8(float64(c.R)*a + 0.5),
		G: uint8(float64(c.G)*a + 0.5),
		B: uint8(float64(c.B)*a + 0.5),
		A: uint8(255*a + 0.5),
	}
}
