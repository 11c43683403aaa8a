package render

import (
	"context"
	"errors"
	"fmt"
	"image"

	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"webditor/internal/log"
	"webditor/internal/maps"
)

// Bundle is one fetched image: the diffuse sheet, an optional team-color
// mask with the same layout, and the frame table.
type Bundle struct {
	Diffuse   image.Image
	TeamColor image.Image
	Meta      FrameMeta
}

// ImageSource fetches image bundles. A nil bundle with a nil error means
// the image does not exist.
type ImageSource interface {
	Bundle(ctx context.Context, ref maps.ImageRef) (*Bundle, error)
}

var errNoDiffuse = errors.New("bundle has no diffuse image")

const defaultFetchLimit = 16

// EntityCompositor draws placed units and sprites. Bundles are fetched and
// cropped concurrently; drawing happens afterwards in list order so
// overlapping entities resolve the same way on every pass.
type EntityCompositor struct {
	Images  ImageSource
	Palette Palette
	// Frame is the animation frame drawn for every entity.
	Frame int
	// FetchLimit bounds concurrent bundle fetches; zero means 16.
	FetchLimit int
}

// CompositeUnits draws units onto a new w x h surface.
func (c *EntityCompositor) CompositeUnits(ctx context.Context, w, h int, units []maps.Placed) (*image.RGBA, error) {
	return c.composite(ctx, "unit", w, h, units)
}

// CompositeSprites draws sprites onto a new w x h surface.
func (c *EntityCompositor) CompositeSprites(ctx context.Context, w, h int, sprites []maps.Placed) (*image.RGBA, error) {
	return c.composite(ctx, "sprite", w, h, sprites)
}

func (c *EntityCompositor) composite(ctx context.Context, kind string, w, h int, list []maps.Placed) (*image.RGBA, error) {
	bitmaps := make([]*image.RGBA, len(list))

	g, gctx := errgroup.WithContext(ctx)
	limit := c.FetchLimit
	if limit <= 0 {
		limit = defaultFetchLimit
	}
	g.SetLimit(limit)
	for i := range list {
		g.Go(func() error {
			bm, err := c.prepare(gctx, list[i])
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				// A timed-out or cancelled fetch says nothing about the
				// entity, so the whole layer fails rather than drawing
				// without it.
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return fmt.Errorf("%s %d: %w", kind, i, err)
				}
				log.WithFields(map[string]any{
					"kind":  kind,
					"index": i,
					"image": fmt.Sprintf("%s/%d", list[i].Image.Version, list[i].Image.Index),
				}).Debugf("skipping entity: %v", err)
				return nil
			}
			bitmaps[i] = bm
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dst := NewSurface(w, h)
	for i, bm := range bitmaps {
		if bm == nil {
			continue
		}
		pos := list[i].Transform.Position
		size := bm.Bounds().Size()
		at := image.Pt(pos.X-size.X/2, pos.Y-size.Y/2)
		draw.Draw(dst, bm.Bounds().Add(at), bm, image.Point{}, draw.Over)
	}
	return dst, nil
}

// prepare fetches an entity's bundle and returns its cropped, team-colored
// frame.
func (c *EntityCompositor) prepare(ctx context.Context, p maps.Placed) (*image.RGBA, error) {
	b, err := c.Images.Bundle(ctx, p.Image)
	if err != nil {
		return nil, err
	}
	if b == nil || b.Diffuse == nil {
		return nil, errNoDiffuse
	}

	frame, err := CropFrame(b.Diffuse, c.Frame, b.Meta)
	if err != nil {
		return nil, err
	}
	if b.TeamColor == nil {
		return frame, nil
	}
	col, ok := c.Palette.Color(p.Owner)
	if !ok {
		return frame, nil
	}
	mask, err := CropFrame(b.TeamColor, c.Frame, b.Meta)
	if err != nil {
		return nil, err
	}
	return ApplyTeamColor(frame, mask, col), nil
}
