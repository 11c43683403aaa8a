package assets

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/singleflight"

	"webditor/internal/maps"
	"webditor/internal/render"
)

const (
	bundleTTL = 30 * time.Minute
	// FetchTimeout bounds a shared bundle fetch once it no longer follows
	// any single caller's context.
	FetchTimeout = 30 * time.Second
)

// ImageCache decodes image bundles from a Store and keeps them in a
// cost-bounded cache. It implements render.ImageSource.
type ImageCache struct {
	store Store
	cache *ristretto.Cache[string, *render.Bundle]
	group singleflight.Group

	mu        sync.RWMutex
	manifests map[string]Manifest
}

// NewImageCache returns a cache holding at most maxBytes of decoded pixels.
func NewImageCache(store Store, maxBytes int64) (*ImageCache, error) {
	cache, err := ristretto.NewCache[string, *render.Bundle](&ristretto.Config[string, *render.Bundle]{
		NumCounters:        10000,
		MaxCost:            maxBytes,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create image cache: %w", err)
	}
	return &ImageCache{store: store, cache: cache, manifests: make(map[string]Manifest)}, nil
}

// UseManifest lets the cache skip indices the manifest lists without a
// diffuse layer instead of requesting them.
func (c *ImageCache) UseManifest(version string, m Manifest) {
	c.mu.Lock()
	c.manifests[version] = m
	c.mu.Unlock()
}

func (c *ImageCache) listed(key ImageKey) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.manifests[key.Version]
	if !ok {
		return true
	}
	return m[key.Index].Diffuse
}

// Bundle returns the decoded bundle for ref. A missing image yields a nil
// bundle and a nil error. Concurrent requests for the same key share one
// fetch; a caller whose ctx ends stops waiting without cancelling the fetch
// for the others.
func (c *ImageCache) Bundle(ctx context.Context, ref maps.ImageRef) (*render.Bundle, error) {
	key := KeyOf(ref)
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if !c.listed(key) {
		return nil, nil
	}
	k := key.String()
	if b, ok := c.cache.Get(k); ok {
		return b, nil
	}

	ch := c.group.DoChan(k, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), FetchTimeout)
		defer cancel()
		return c.fetch(fctx, key)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*render.Bundle), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *ImageCache) fetch(ctx context.Context, key ImageKey) (*render.Bundle, error) {
	raw, err := c.store.FetchImage(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	b, err := decodeBundle(raw)
	if err != nil {
		return nil, fmt.Errorf("image %s: %w", key, err)
	}
	k := key.String()
	c.cache.SetWithTTL(k, b, bundleCost(b), bundleTTL)
	c.cache.Wait()
	return b, nil
}

// Clear drops every cached bundle.
func (c *ImageCache) Clear() {
	c.cache.Clear()
}

// Close releases the cache's background goroutines.
func (c *ImageCache) Close() {
	c.cache.Close()
}

func decodeBundle(raw *RawBundle) (*render.Bundle, error) {
	diffuse, err := render.DecodeImage(raw.Diffuse)
	if err != nil {
		return nil, fmt.Errorf("diffuse: %w", err)
	}
	meta, err := render.ParseFrameMeta(raw.Meta)
	if err != nil {
		return nil, err
	}
	b := &render.Bundle{Diffuse: diffuse, Meta: meta}
	if raw.TeamColor != nil {
		mask, err := render.DecodeImage(raw.TeamColor)
		if err != nil {
			return nil, fmt.Errorf("team color: %w", err)
		}
		b.TeamColor = mask
	}
	return b, nil
}

func bundleCost(b *render.Bundle) int64 {
	cost := pixelBytes(b.Diffuse) + pixelBytes(b.TeamColor)
	if cost < 1 {
		cost = 1
	}
	return cost
}

func pixelBytes(img image.Image) int64 {
	if img == nil {
		return 0
	}
	r := img.Bounds()
	return int64(r.Dx()) * int64(r.Dy()) * 4
}
