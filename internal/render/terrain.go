package render

import (
	"context"
	"fmt"
	"image"

	"webditor/internal/maps"
	"webditor/internal/tileset"
)

// CompositeTerrain renders the whole terrain grid into a new surface of
// width*32 x height*32 pixels, visiting cells in row-major order. Any
// resolve or blit failure aborts the pass and no surface is returned. The
// context is checked between rows so a superseded pass stops early.
func CompositeTerrain(ctx context.Context, t maps.Terrain, groups tileset.GroupTable, atlas tileset.Atlas) (*image.RGBA, error) {
	dst := NewSurface(t.Size.Width*TileSize, t.Size.Height*TileSize)

	for y := 0; y < t.Size.Height; y++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if y >= len(t.Tiles) {
			return nil, fmt.Errorf("terrain row %d missing", y)
		}
		row := t.Tiles[y]
		for x := 0; x < t.Size.Width; x++ {
			if x >= len(row) {
				return nil, fmt.Errorf("terrain row %d has %d tiles, want %d", y, len(row), t.Size.Width)
			}
			ref := row[x]
			index, err := groups.Resolve(ref.Group, ref.ID)
			if err != nil {
				return nil, fmt.Errorf("tile (%d,%d): %w", x, y, err)
			}
			rgb, err := atlas.Tile(index)
			if err != nil {
				return nil, fmt.Errorf("tile (%d,%d): %w", x, y, err)
			}
			if err := BlitMegatile(dst, x, y, rgb); err != nil {
				return nil, fmt.Errorf("tile (%d,%d): %w", x, y, err)
			}
		}
	}
	return dst, nil
}
