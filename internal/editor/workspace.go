package editor

import (
	"context"
	"sync"

	"webditor/internal/assets"
	"webditor/internal/maps"
	"webditor/internal/render"
	"webditor/internal/tileset"
)

// Workspace bundles the asset sources the editor renders from.
type Workspace struct {
	Store   assets.Store
	Images  render.ImageSource
	Palette render.Palette

	mu       sync.Mutex
	tilesets map[string]*tileset.Tileset
}

// NewWorkspace creates a workspace over store. images may be nil, in which
// case unit and sprite layers stay empty.
func NewWorkspace(store assets.Store, images render.ImageSource, palette render.Palette) *Workspace {
	if palette == nil {
		palette = render.DefaultPalette()
	}
	return &Workspace{
		Store:    store,
		Images:   images,
		Palette:  palette,
		tilesets: make(map[string]*tileset.Tileset),
	}
}

// Tileset returns the named tileset, loading it on first use. Failed loads
// are not cached.
func (w *Workspace) Tileset(ctx context.Context, name string) (*tileset.Tileset, error) {
	w.mu.Lock()
	ts, ok := w.tilesets[name]
	w.mu.Unlock()
	if ok {
		return ts, nil
	}

	ts, err := tileset.Load(ctx, w.Store, name)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	w.tilesets[name] = ts
	w.mu.Unlock()
	return ts, nil
}

// ForgetTileset drops a cached tileset so the next use reloads it.
func (w *Workspace) ForgetTileset(name string) {
	w.mu.Lock()
	delete(w.tilesets, name)
	w.mu.Unlock()
}

// Document fetches a map document from the store.
func (w *Workspace) Document(ctx context.Context, name string) (*maps.Document, error) {
	return w.Store.FetchDocument(ctx, name)
}

// ClearImages drops cached image bundles when the image source caches.
func (w *Workspace) ClearImages() {
	if c, ok := w.Images.(interface{ Clear() }); ok {
		c.Clear()
	}
}

func (w *Workspace) compositor() *render.EntityCompositor {
	return &render.EntityCompositor{Images: w.Images, Palette: w.Palette}
}
