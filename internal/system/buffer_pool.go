package system

import (
	"image"
	"sync"
	"sync/atomic"

	"github.com/shirou/gopsutil/v3/mem"
)

// ImagePool reuses image.RGBA frame buffers to keep the per-frame compositing
// loops off the garbage collector. Retained bytes are bounded by a budget
// derived from available memory, so a burst of large export surfaces cannot
// pin half the machine.
type ImagePool struct {
	pools    map[string]*sync.Pool
	mu       sync.RWMutex
	retained atomic.Int64
	budget   int64
}

var globalPool = newImagePool()

func newImagePool() *ImagePool {
	p := &ImagePool{
		pools:  make(map[string]*sync.Pool),
		budget: 256 << 20, // fallback when memory stats are unavailable
	}
	if vm, err := mem.VirtualMemory(); err == nil && vm.Available > 0 {
		p.budget = int64(vm.Available / 4)
	}
	return p
}

// GetImage returns a frame buffer for rect, reusing a pooled one when the
// size matches. The contents are undefined; callers overwrite every pixel.
func GetImage(rect image.Rectangle) *image.RGBA {
	return globalPool.Get(rect)
}

// PutImage returns a buffer for reuse. Buffers over the retention budget are
// dropped for the collector instead.
func PutImage(img *image.RGBA) {
	globalPool.Put(img)
}

func (p *ImagePool) Get(rect image.Rectangle) *image.RGBA {
	key := rect.String()
	p.mu.RLock()
	pool, exists := p.pools[key]
	p.mu.RUnlock()

	if !exists {
		p.mu.Lock()
		pool, exists = p.pools[key]
		if !exists {
			pool = &sync.Pool{
				New: func() interface{} {
					return image.NewRGBA(rect)
				},
			}
			p.pools[key] = pool
		}
		p.mu.Unlock()
	}

	img := pool.Get().(*image.RGBA)
	p.retained.Add(-int64(len(img.Pix)))
	if p.retained.Load() < 0 {
		p.retained.Store(0)
	}
	return img
}

func (p *ImagePool) Put(img *image.RGBA) {
	if img == nil {
		return
	}
	size := int64(len(img.Pix))
	if p.retained.Load()+size > p.budget {
		return
	}

	key := img.Rect.String()
	p.mu.RLock()
	pool, exists := p.pools[key]
	p.mu.RUnlock()

	if exists {
		p.retained.Add(size)
		pool.Put(img)
	}
}
