package source

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writeTestPNG(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "scene.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return path
}

func TestPreloadFile(t *testing.T) {
	path := writeTestPNG(t, 32, 16)

	c := NewImageCache()
	if got := c.Get(path); got != nil {
		t.Fatal("expected nil before preload")
	}

	c.Preload(context.Background(), []string{path}, 2)

	img := c.Get(path)
	if img == nil {
		t.Fatalf("expected decoded image, err=%v", c.Err(path))
	}
	if img.Bounds().Dx() != 32 || img.Bounds().Dy() != 16 {
		t.Errorf("unexpected bounds: %v", img.Bounds())
	}
	if img.Rect.Min != (image.Point{}) {
		t.Errorf("expected zero-origin bitmap, got %v", img.Rect.Min)
	}
}

func TestPreloadDataURI(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())

	c := NewImageCache()
	c.Preload(context.Background(), []string{uri}, 1)

	if c.Get(uri) == nil {
		t.Fatalf("data URI not decoded: %v", c.Err(uri))
	}
}

func TestPreloadFailureDoesNotAbort(t *testing.T) {
	good := writeTestPNG(t, 8, 8)
	bad := filepath.Join(t.TempDir(), "missing.png")

	c := NewImageCache()
	c.Preload(context.Background(), []string{bad, good}, 2)

	if c.Get(good) == nil {
		t.Error("good image should decode despite a failing sibling")
	}
	if c.Err(bad) == nil {
		t.Error("expected recorded error for missing file")
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 decoded image, got %d", c.Len())
	}
}

func TestPreloadAsyncSignalsCompletion(t *testing.T) {
	path := writeTestPNG(t, 8, 8)
	c := NewImageCache()
	<-c.PreloadAsync(context.Background(), []string{path}, 1)
	if c.Get(path) == nil {
		t.Error("expected image after done signal")
	}
}
