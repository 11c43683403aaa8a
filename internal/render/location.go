package render

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"webditor/internal/maps"
)

var (
	locationFill   = color.RGBA{0, 48, 96, 96}
	locationBorder = color.RGBA{0, 160, 255, 255}
	locationLabel  = color.RGBA{255, 255, 255, 255}
	selectionColor = color.RGBA{0, 255, 64, 255}
)

// CompositeLocations draws every location as a translucent box with a 1px
// border and its name in the top-left corner. NoLocationID is skipped.
func CompositeLocations(w, h int, locs []maps.Location) *image.RGBA {
	dst := NewSurface(w, h)
	face := basicfont.Face7x13
	for _, loc := range locs {
		if loc.ID == maps.NoLocationID {
			continue
		}
		r := loc.Transform.Bounds().Canon()
		if r.Empty() {
			continue
		}
		draw.Draw(dst, r, image.NewUniform(locationFill), image.Point{}, draw.Over)
		drawOutline(dst, r, 1, locationBorder)

		d := &font.Drawer{
			Dst:  dst,
			Src:  image.NewUniform(locationLabel),
			Face: face,
			Dot:  fixed.P(r.Min.X+3, r.Min.Y+2+face.Ascent),
		}
		d.DrawString(loc.Name)
	}
	return dst
}

// CompositeSelection outlines the selected entity's box on a new surface.
// A nil selection gives an empty surface.
func CompositeSelection(w, h int, sel *maps.Placed) *image.RGBA {
	dst := NewSurface(w, h)
	if sel == nil {
		return dst
	}
	r := sel.Transform.Bounds().Canon()
	if r.Empty() {
		return dst
	}
	drawOutline(dst, r, 1, selectionColor)
	return dst
}

// drawOutline draws a rectangle border of the given thickness inside r.
func drawOutline(dst draw.Image, r image.Rectangle, thick int, c color.Color) {
	src := image.NewUniform(c)
	draw.Draw(dst, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+thick), src, image.Point{}, draw.Over)
	draw.Draw(dst, image.Rect(r.Min.X, r.Max.Y-thick, r.Max.X, r.Max.Y), src, image.Point{}, draw.Over)
	draw.Draw(dst, image.Rect(r.Min.X, r.Min.Y+thick, r.Min.X+thick, r.Max.Y-thick), src, image.Point{}, draw.Over)
	draw.Draw(dst, image.Rect(r.Max.X-thick, r.Min.Y+thick, r.Max.X, r.Max.Y-thick), src, image.Point{}, draw.Over)
}
