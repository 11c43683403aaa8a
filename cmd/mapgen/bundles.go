package main

import (
	"encoding/json"
	"image"
	"image/color"
	"math"

	"webditor/internal/assets"
	"webditor/internal/render"
)

// imageSpec describes one synthetic image bundle.
type imageSpec struct {
	Index   int
	Name    string
	W, H    int
	Team    bool
	Shape   string // "disc", "diamond", "tree", "rock"
	Color   color.RGBA
	Frames  int
	XOffset int
}

var unitImages = []imageSpec{
	{Index: 0, Name: "Marine", W: 20, H: 20, Team: true, Shape: "disc", Color: color.RGBA{150, 150, 160, 255}, Frames: 4},
	{Index: 1, Name: "Zealot", W: 24, H: 24, Team: true, Shape: "diamond", Color: color.RGBA{200, 170, 90, 255}, Frames: 4},
	{Index: 2, Name: "Zergling", W: 16, H: 16, Team: true, Shape: "disc", Color: color.RGBA{120, 70, 90, 255}, Frames: 4, XOffset: 2},
	{Index: 3, Name: "Goliath", W: 32, H: 32, Team: true, Shape: "diamond", Color: color.RGBA{110, 115, 120, 255}, Frames: 4},
	{Index: 4, Name: "Dragoon", W: 32, H: 28, Team: true, Shape: "disc", Color: color.RGBA{180, 150, 80, 255}, Frames: 4},
	{Index: 5, Name: "Hydralisk", W: 22, H: 30, Team: true, Shape: "diamond", Color: color.RGBA{110, 60, 80, 255}, Frames: 4},
}

var spriteImages = []imageSpec{
	{Index: 100, Name: "Tree", W: 32, H: 48, Shape: "tree", Color: color.RGBA{30, 110, 40, 255}, Frames: 1},
	{Index: 101, Name: "Boulder", W: 28, H: 20, Shape: "rock", Color: color.RGBA{120, 115, 110, 255}, Frames: 1},
	{Index: 102, Name: "Crystal", W: 16, H: 24, Shape: "diamond", Color: color.RGBA{90, 200, 230, 255}, Frames: 1},
}

// inside reports whether frame-local (x, y) is covered by the shape, and
// whether it belongs to the team-color region.
func (s imageSpec) inside(x, y int) (covered, team bool) {
	fx := (float64(x)+0.5)/float64(s.W)*2 - 1
	fy := (float64(y)+0.5)/float64(s.H)*2 - 1
	switch s.Shape {
	case "disc":
		d := math.Hypot(fx, fy)
		return d <= 1, d > 0.55 && d <= 0.8
	case "diamond":
		d := math.Abs(fx) + math.Abs(fy)
		return d <= 1, d <= 0.35
	case "tree":
		if fy > 0.5 {
			return math.Abs(fx) < 0.15, false
		}
		return math.Abs(fx) <= (fy+1)/1.5*0.9, false
	case "rock":
		return math.Hypot(fx, fy*1.3) <= 1, false
	}
	return false, false
}

// drawBundle renders the sprite sheet, team mask and frame table for s.
// Frames sit side by side; each is lit from a slightly different angle.
func drawBundle(s imageSpec) (*assets.RawBundle, error) {
	sheet := image.NewNRGBA(image.Rect(0, 0, s.W*s.Frames, s.H))
	var mask *image.NRGBA
	if s.Team {
		mask = image.NewNRGBA(sheet.Bounds())
	}
	meta := make(render.FrameMeta, s.Frames)

	for f := 0; f < s.Frames; f++ {
		light := 2 * math.Pi * float64(f) / float64(max(s.Frames, 1))
		lx, ly := math.Cos(light), math.Sin(light)
		for y := 0; y < s.H; y++ {
			for x := 0; x < s.W; x++ {
				covered, team := s.inside(x, y)
				if !covered {
					continue
				}
				fx := (float64(x)+0.5)/float64(s.W)*2 - 1
				fy := (float64(y)+0.5)/float64(s.H)*2 - 1
				shade := 0.85 + 0.25*(fx*lx+fy*ly)
				c := s.Color
				if team && mask != nil {
					// Team regions are light gray so the team color
					// multiplies through.
					c = color.RGBA{230, 230, 230, 255}
					mask.SetNRGBA(f*s.W+x, y, color.NRGBA{255, 255, 255, 255})
				}
				sheet.SetNRGBA(f*s.W+x, y, color.NRGBA{
					R: clamp8(float64(c.R) * shade),
					G: clamp8(float64(c.G) * shade),
					B: clamp8(float64(c.B) * shade),
					A: 255,
				})
			}
		}
		xo := 0
		if f%2 == 1 {
			xo = s.XOffset
		}
		meta[f] = render.FrameRect{X: f * s.W, Y: 0, Width: s.W, Height: s.H, XOffset: xo}
	}

	raw := &assets.RawBundle{}
	var err error
	if raw.Diffuse, err = render.EncodePNG(sheet); err != nil {
		return nil, err
	}
	if mask != nil {
		if raw.TeamColor, err = render.EncodePNG(mask); err != nil {
			return nil, err
		}
	}
	if raw.Meta, err = json.Marshal(meta); err != nil {
		return nil, err
	}
	return raw, nil
}

// writeBundles stores every synthetic image and the version manifest.
func writeBundles(d assets.Dir, version string) (int, error) {
	manifest := make(assets.Manifest)
	specs := append(append([]imageSpec(nil), unitImages...), spriteImages...)
	for _, s := range specs {
		raw, err := drawBundle(s)
		if err != nil {
			return 0, err
		}
		if err := d.WriteImage(assets.ImageKey{Version: version, Index: s.Index}, raw); err != nil {
			return 0, err
		}
		manifest[s.Index] = assets.ManifestEntry{Diffuse: true, TeamColor: s.Team}
	}
	return len(specs), d.WriteManifest(version, manifest)
}
