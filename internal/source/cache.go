// Package source resolves scene image references into decoded RGBA bitmaps.
//
// Decoding runs in the background: Get returns nil until a reference has
// been decoded, and the compositor treats a nil handle as "skip this layer,
// retry next frame". After decode completes a handle is immutable, so both
// the preview and export clocks read the cache without locking concerns.
package source

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

type ImageCache struct {
	mu     sync.RWMutex
	images map[string]*image.RGBA
	errs   map[string]error
}

func NewImageCache() *ImageCache {
	return &ImageCache{
		images: make(map[string]*image.RGBA),
		errs:   make(map[string]error),
	}
}

// Get returns the decoded bitmap for uri, or nil while it is still loading
// or failed to decode. Callers must not mutate the returned image.
func (c *ImageCache) Get(uri string) *image.RGBA {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.images[uri]
}

// Err reports a decode failure for uri, if any.
func (c *ImageCache) Err(uri string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.errs[uri]
}

// Len returns the number of successfully decoded images.
func (c *ImageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}

// Put inserts an already-decoded bitmap. Used by tests and by callers that
// synthesize backgrounds instead of loading them.
func (c *ImageCache) Put(uri string, img *image.RGBA) {
	c.mu.Lock()
	c.images[uri] = img
	c.mu.Unlock()
}

// Preload decodes every uri with at most workers goroutines. Individual
// decode failures are recorded, not returned: a missing background degrades
// to a skipped layer, it does not abort the render.
func (c *ImageCache) Preload(ctx context.Context, uris []string, workers int) {
	if workers < 1 {
		workers = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, uri := range uris {
		uri := uri
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			img, err := decode(uri)
			c.mu.Lock()
			if err != nil {
				c.errs[uri] = err
			} else {
				c.images[uri] = img
			}
			c.mu.Unlock()
			return nil
		})
	}
	g.Wait()
}

// PreloadAsync starts Preload in the background and returns immediately.
// The returned channel closes when every decode has settled.
func (c *ImageCache) PreloadAsync(ctx context.Context, uris []string, workers int) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Preload(ctx, uris, workers)
	}()
	return done
}

// decode resolves a scene image reference. Supported forms are plain file
// paths and data URIs with base64 payloads (the raw-bytes-embeddable form
// the collaborator emits).
func decode(uri string) (*image.RGBA, error) {
	var raw []byte
	var err error

	if strings.HasPrefix(uri, "data:") {
		idx := strings.Index(uri, "base64,")
		if idx < 0 {
			return nil, fmt.Errorf("source: data URI без base64: %.40s", uri)
		}
		raw, err = base64.StdEncoding.DecodeString(uri[idx+len("base64,"):])
		if err != nil {
			return nil, fmt.Errorf("source: некорректный base64: %w", err)
		}
	} else {
		raw, err = os.ReadFile(uri)
		if err != nil {
			return nil, err
		}
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("source: не удалось декодировать %s: %w", uri, err)
	}
	return toRGBA(img), nil
}

// toRGBA normalizes any decoded image to a zero-origin RGBA so the
// compositor can assume a standard stride.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
