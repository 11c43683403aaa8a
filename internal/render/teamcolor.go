package render

import (
	"fmt"
	"image"
	"image/color"
	"os"

	"golang.org/x/image/draw"
	"gopkg.in/yaml.v3"

	"webditor/internal/maps"
)

// ApplyTeamColor recolors diffuse through a team-color mask. A mask pixel
// is paintable when its R, G and B all exceed 127 and its alpha is
// non-zero. Paintable pixels become round(c * diffuse / 255) per channel
// and are opaque; every other pixel is a copy of diffuse. The result has
// diffuse's size; mask pixels outside it are ignored.
func ApplyTeamColor(diffuse, mask image.Image, c color.RGBA) *image.RGBA {
	db := diffuse.Bounds()
	out := NewSurface(db.Dx(), db.Dy())
	draw.Draw(out, out.Bounds(), diffuse, db.Min, draw.Src)
	if mask == nil {
		return out
	}

	mb := mask.Bounds()
	nm := toNRGBA(mask)
	nd := toNRGBA(diffuse)
	w := min(db.Dx(), mb.Dx())
	h := min(db.Dy(), mb.Dy())
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			mi := nm.PixOffset(mb.Min.X+x, mb.Min.Y+y)
			mr, mg, mbl, ma := nm.Pix[mi], nm.Pix[mi+1], nm.Pix[mi+2], nm.Pix[mi+3]
			if mr <= 127 || mg <= 127 || mbl <= 127 || ma == 0 {
				continue
			}
			di := nd.PixOffset(db.Min.X+x, db.Min.Y+y)
			oi := out.PixOffset(x, y)
			out.Pix[oi+0] = weight(c.R, nd.Pix[di+0])
			out.Pix[oi+1] = weight(c.G, nd.Pix[di+1])
			out.Pix[oi+2] = weight(c.B, nd.Pix[di+2])
			out.Pix[oi+3] = 255
		}
	}
	return out
}

// weight returns round(c * d / 255) with halves rounded up.
func weight(c, d uint8) uint8 {
	return uint8((int(c)*int(d)*2 + 255) / 510)
}

// toNRGBA returns non-premultiplied pixels so thresholds and weights see
// the stored channel values regardless of alpha.
func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok {
		return n
	}
	b := img.Bounds()
	n := image.NewNRGBA(b)
	draw.Draw(n, b, img, b.Min, draw.Src)
	return n
}

// Palette maps a player color slot to its RGB team color.
type Palette []color.RGBA

// DefaultPalette holds the map format's player colors in slot order.
func DefaultPalette() Palette {
	return Palette{
		{244, 4, 4, 255},
		{12, 72, 204, 255},
		{44, 180, 148, 255},
		{136, 4, 156, 255},
		{248, 140, 20, 255},
		{112, 48, 20, 255},
		{204, 224, 208, 255},
		{252, 252, 56, 255},
		{8, 128, 8, 255},
		{252, 252, 124, 255},
		{252, 252, 124, 255},
		{236, 196, 176, 255},
		{64, 104, 212, 255},
	}
}

// Color resolves an owner's team color. An explicit rgb_color on the owner
// wins; otherwise the owner's color slot indexes the palette.
func (p Palette) Color(o maps.Owner) (color.RGBA, bool) {
	if len(o.RGBColor) == 3 {
		return color.RGBA{
			R: clampByte(o.RGBColor[0]),
			G: clampByte(o.RGBColor[1]),
			B: clampByte(o.RGBColor[2]),
			A: 255,
		}, true
	}
	if o.Color < 0 || o.Color >= len(p) {
		return color.RGBA{}, false
	}
	return p[o.Color], true
}

func clampByte(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

type paletteFile struct {
	Colors [][3]int `yaml:"colors"`
}

// LoadPalette reads a YAML palette file of the form
//
//	colors:
//	  - [244, 4, 4]
//	  - [12, 72, 204]
//
// Slots the file leaves out keep their default color.
func LoadPalette(path string) (Palette, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read palette: %w", err)
	}
	var pf paletteFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse palette %s: %w", path, err)
	}

	p := DefaultPalette()
	for i, c := range pf.Colors {
		rgba := color.RGBA{clampByte(c[0]), clampByte(c[1]), clampByte(c[2]), 255}
		if i < len(p) {
			p[i] = rgba
		} else {
			p = append(p, rgba)
		}
	}
	return p, nil
}
