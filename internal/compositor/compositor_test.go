package compositor

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/ivlev/lyric2video/internal/config"
	"github.com/ivlev/lyric2video/internal/endcard"
	"github.com/ivlev/lyric2video/internal/source"
	"github.com/ivlev/lyric2video/internal/timeline"
)

func testGradient(w, h int, seed uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x) + seed, G: uint8(y), B: seed, A: 255})
		}
	}
	return img
}

func testSetup(t *testing.T) (*timeline.Timeline, *source.ImageCache) {
	t.Helper()
	tl, err := timeline.New(
		[]timeline.Scene{
			{StartTime: 0, Image: "img1"},
			{StartTime: 30000, Image: "img2"},
		},
		[]timeline.LyricLine{
			{Text: "Hello world", StartTime: 1000, Words: []timeline.Word{
				{Text: "Hello", StartTime: 1000},
				{Text: "world", StartTime: 1400},
			}},
		},
		60000,
	)
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}

	cache := source.NewImageCache()
	cache.Put("img1", testGradient(320, 200, 0))
	cache.Put("img2", testGradient(200, 320, 90))
	return tl, cache
}

func newTestCompositor(t *testing.T, tl *timeline.Timeline, cache *source.ImageCache) *Compositor {
	t.Helper()
	c, err := New(tl, cache, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestCrossfadeAlphaEndpoints(t *testing.T) {
	const nextStart, fade = 30000, 1000

	if a := CrossfadeAlpha(nextStart-fade, nextStart, fade); a != 0 {
		t.Errorf("alpha at window start = %f, want 0", a)
	}
	if a := CrossfadeAlpha(nextStart, nextStart, fade); a != 1 {
		t.Errorf("alpha at window end = %f, want 1", a)
	}
	if a := CrossfadeAlpha(nextStart-5000, nextStart, fade); a != 0 {
		t.Errorf("alpha before window = %f, want 0", a)
	}
	if a := CrossfadeAlpha(nextStart+5000, nextStart, fade); a != 1 {
		t.Errorf("alpha after window = %f, want 1", a)
	}

	// Monotonically non-decreasing across the window.
	prev := -1.0
	for ts := int64(nextStart - fade); ts <= nextStart; ts += 10 {
		a := CrossfadeAlpha(ts, nextStart, fade)
		if a < prev {
			t.Fatalf("alpha decreased at t=%d: %f -> %f", ts, prev, a)
		}
		prev = a
	}
}

func TestCropRectStaysInsideSource(t *testing.T) {
	for _, mode := range []string{"center", "top-left", "bottom-right", "random"} {
		for p := 0.0; p <= 1.0; p += 0.125 {
			cam := kenBurnsCamera(mode, 3, p, 1.15)
			r := cropRect(1000, 400, 1280, 720, cam)
			if r.Empty() {
				t.Fatalf("%s p=%.2f: empty crop", mode, p)
			}
			if r.Min.X < 0 || r.Min.Y < 0 || r.Max.X > 1000 || r.Max.Y > 400 {
				t.Errorf("%s p=%.2f: crop %v escapes 1000x400 source", mode, p, r)
			}
			// Crop keeps the destination aspect within a pixel of rounding.
			aspect := float64(r.Dx()) / float64(r.Dy())
			want := 1280.0 / 720.0
			if aspect < want*0.98 || aspect > want*1.02 {
				t.Errorf("%s p=%.2f: crop aspect %.3f, want ~%.3f", mode, p, aspect, want)
			}
		}
	}
}

func TestZoomGrowsWithProgress(t *testing.T) {
	prev := 0.0
	for p := 0.0; p <= 1.0; p += 0.1 {
		cam := kenBurnsCamera("center", 0, p, 1.12)
		if cam.Zoom < prev {
			t.Fatalf("zoom decreased at p=%.1f", p)
		}
		prev = cam.Zoom
	}
	if z := kenBurnsCamera("center", 0, 1.0, 1.12).Zoom; z != 1.12 {
		t.Errorf("zoom at p=1 is %f, want cap 1.12", z)
	}
}

func TestDrawFrameDeterministic(t *testing.T) {
	tl, cache := testSetup(t)

	// Two independent compositors, same inputs: byte-exact frames. This is
	// what lets the export re-run the preview's frames exactly.
	c1 := newTestCompositor(t, tl, cache)
	c2 := newTestCompositor(t, tl, cache)

	for _, ts := range []int64{0, 1200, 29500, 30000, 45000, 59999} {
		a := image.NewRGBA(image.Rect(0, 0, 256, 144))
		b := image.NewRGBA(image.Rect(0, 0, 256, 144))
		c1.DrawFrame(a, ts)
		c2.DrawFrame(b, ts)
		if !bytes.Equal(a.Pix, b.Pix) {
			t.Fatalf("frames differ at t=%d", ts)
		}
	}
}

func TestDrawFrameRepeatedCallIdentical(t *testing.T) {
	tl, cache := testSetup(t)
	c := newTestCompositor(t, tl, cache)

	a := image.NewRGBA(image.Rect(0, 0, 256, 144))
	b := image.NewRGBA(image.Rect(0, 0, 256, 144))
	c.DrawFrame(a, 29500) // mid-crossfade exercises the pooled temp layer
	c.DrawFrame(b, 29500)
	if !bytes.Equal(a.Pix, b.Pix) {
		t.Fatal("same compositor produced different pixels for the same time")
	}
}

// Scenario D: background not decoded yet, lyric layer still renders.
func TestDrawFrameWithUndecodedImage(t *testing.T) {
	tl, _ := testSetup(t)
	empty := source.NewImageCache()
	c := newTestCompositor(t, tl, empty)

	dst := image.NewRGBA(image.Rect(0, 0, 256, 144))
	c.DrawFrame(dst, 1200) // must not panic

	// The backing panel lives in the lower third; some pixel there must be
	// non-black even though the background was skipped.
	found := false
	for y := 100; y < 144 && !found; y++ {
		for x := 0; x < 256; x++ {
			r, g, b, _ := dst.At(x, y).RGBA()
			if r|g|b != 0 {
				found = true
				break
			}
		}
	}
	if !found {
		t.Error("expected lyric layer pixels despite missing background")
	}
}

func TestDrawFrameNegativeTimeClamps(t *testing.T) {
	tl, cache := testSetup(t)
	c := newTestCompositor(t, tl, cache)

	a := image.NewRGBA(image.Rect(0, 0, 128, 72))
	b := image.NewRGBA(image.Rect(0, 0, 128, 72))
	c.DrawFrame(a, -500)
	c.DrawFrame(b, 0)
	if !bytes.Equal(a.Pix, b.Pix) {
		t.Error("negative time should render as t=0")
	}
}

func TestWordHighlightChangesPixels(t *testing.T) {
	tl, cache := testSetup(t)

	style := config.DefaultStyle()
	c, err := New(tl, cache, style)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	during := image.NewRGBA(image.Rect(0, 0, 256, 144))
	after := image.NewRGBA(image.Rect(0, 0, 256, 144))
	c.DrawFrame(during, 1000) // "Hello" highlighted
	c.DrawFrame(after, 1450)  // "world" highlighted

	if bytes.Equal(during.Pix, after.Pix) {
		t.Error("highlight moved between words but pixels did not change")
	}

	// With highlighting off, both instants differ only by Ken Burns motion;
	// the lyric block itself must render without the highlight color.
	style2 := config.DefaultStyle()
	style2.WordHighlight = false
	c2, err := New(tl, cache, style2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	plain := image.NewRGBA(image.Rect(0, 0, 256, 144))
	c2.DrawFrame(plain, 1000)
	if bytes.Equal(plain.Pix, during.Pix) {
		t.Error("disabling word highlight had no effect")
	}
}

func TestWrapCacheReuse(t *testing.T) {
	w := newWrapCache()
	lines := []wrappedLine{{width: 10}}

	if _, ok := w.get(0, 200); ok {
		t.Fatal("unexpected hit on empty cache")
	}
	w.put(0, lines)
	if got, ok := w.get(0, 200); !ok || len(got) != 1 {
		t.Fatal("expected cache hit at same width")
	}
	// Width change invalidates everything.
	if _, ok := w.get(0, 300); ok {
		t.Fatal("expected miss after width change")
	}
}

func TestEndCardTail(t *testing.T) {
	tl, cache := testSetup(t)
	c := newTestCompositor(t, tl, cache)

	card, err := endcard.New("Test Track", "https://example.com/t/1", 4000)
	if err != nil {
		t.Fatalf("endcard: %v", err)
	}
	c.SetEndCard(card)

	if got := c.TotalMs(); got != 64000 {
		t.Errorf("TotalMs = %d, want 64000", got)
	}

	dst := image.NewRGBA(image.Rect(0, 0, 256, 144))
	c.DrawFrame(dst, 62000) // inside the tail: must draw the card, not a scene

	r, g, b, _ := dst.At(5, 5).RGBA()
	if r>>8 != 12 || g>>8 != 12 || b>>8 != 16 {
		t.Errorf("expected end-card background at (5,5), got %d %d %d", r>>8, g>>8, b>>8)
	}
}
