package render

import (
	"fmt"
	"image"

	"webditor/internal/tileset"
)

// BlitMegatile writes one 32x32 RGB megatile into dst at tile coordinates
// (tileX, tileY). Every written pixel is opaque. Pixels outside dst are
// dropped.
func BlitMegatile(dst *image.RGBA, tileX, tileY int, rgb []byte) error {
	if len(rgb) != tileset.TileStride {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrConsistency, len(rgb), tileset.TileStride)
	}

	ox := tileX * TileSize
	oy := tileY * TileSize
	b := dst.Bounds()
	for y := 0; y < TileSize; y++ {
		py := oy + y
		if py < b.Min.Y || py >= b.Max.Y {
			continue
		}
		src := rgb[y*TileSize*3:]
		for x := 0; x < TileSize; x++ {
			px := ox + x
			if px < b.Min.X || px >= b.Max.X {
				continue
			}
			i := dst.PixOffset(px, py)
			s := x * 3
			dst.Pix[i+0] = src[s+0]
			dst.Pix[i+1] = src[s+1]
			dst.Pix[i+2] = src[s+2]
			dst.Pix[i+3] = 255
		}
	}
	return nil
}
