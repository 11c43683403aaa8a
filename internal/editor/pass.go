package editor

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"image"

	"golang.org/x/sync/errgroup"

	"webditor/internal/maps"
	"webditor/internal/render"
)

// layerKeys identify the inputs of each layer. A layer is recomposed when
// its key differs from the committed one.
type layerKeys [render.NumLayers]uint64

// keysFor derives layer keys from the document, the selection and the
// asset generations.
func keysFor(doc *maps.Document, selected int, tilesetGen, imageGen uint64) layerKeys {
	v := doc.LayerVersions()
	var k layerKeys
	k[render.LayerTerrain] = mix(v.Terrain, tilesetGen)
	k[render.LayerUnits] = mix(v.Units, imageGen)
	k[render.LayerSprites] = mix(v.Sprites, imageGen)
	k[render.LayerLocations] = v.Locations
	k[render.LayerSelection] = mix(v.Units, uint64(selected+1))
	return k
}

func mix(values ...uint64) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for _, v := range values {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	return h.Sum64()
}

// job is one compose pass over the layers in dirty.
type job struct {
	id       uint64
	doc      *maps.Document
	selected int
	keys     layerKeys
	dirty    []render.Layer
}

type layerResult struct {
	layer   render.Layer
	surface *image.RGBA
	err     error
}

type passResult struct {
	id     uint64
	keys   layerKeys
	layers []layerResult
}

// compose renders every dirty layer of j. Layers run concurrently and fail
// independently.
func (w *Workspace) compose(ctx context.Context, j job) passResult {
	res := passResult{id: j.id, keys: j.keys, layers: make([]layerResult, len(j.dirty))}
	width, height := j.doc.PixelSize(render.TileSize)

	var g errgroup.Group
	for i, l := range j.dirty {
		g.Go(func() error {
			surf, err := w.composeLayer(ctx, l, j, width, height)
			res.layers[i] = layerResult{layer: l, surface: surf, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return res
}

func (w *Workspace) composeLayer(ctx context.Context, l render.Layer, j job, width, height int) (*image.RGBA, error) {
	doc := j.doc
	switch l {
	case render.LayerTerrain:
		ts, err := w.Tileset(ctx, doc.Terrain.Tileset)
		if err != nil {
			return nil, err
		}
		return render.CompositeTerrain(ctx, doc.Terrain, ts.Groups, ts.Atlas)
	case render.LayerUnits:
		if w.Images == nil {
			return render.NewSurface(width, height), nil
		}
		return w.compositor().CompositeUnits(ctx, width, height, doc.Units)
	case render.LayerSprites:
		if w.Images == nil {
			return render.NewSurface(width, height), nil
		}
		return w.compositor().CompositeSprites(ctx, width, height, doc.Sprites)
	case render.LayerLocations:
		return render.CompositeLocations(width, height, doc.Locations), ctx.Err()
	case render.LayerSelection:
		var sel *maps.Placed
		if j.selected >= 0 && j.selected < len(doc.Units) {
			sel = &doc.Units[j.selected]
		}
		return render.CompositeSelection(width, height, sel), ctx.Err()
	}
	return nil, nil
}

// Compose renders every layer of doc once. Layers that fail are left nil
// and their errors joined.
func (w *Workspace) Compose(ctx context.Context, doc *maps.Document) (render.LayerSet, error) {
	res := w.compose(ctx, job{doc: doc, selected: -1, dirty: render.AllLayers})
	var set render.LayerSet
	var errs []error
	for _, lr := range res.layers {
		if lr.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", lr.layer, lr.err))
			continue
		}
		set[lr.layer] = lr.surface
	}
	return set, errors.Join(errs...)
}
