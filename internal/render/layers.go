package render

import (
	"fmt"
	"image"
	"strings"

	"golang.org/x/image/draw"
)

// Layer identifies one world surface. Layers stack in declaration order.
type Layer int

const (
	LayerTerrain Layer = iota
	LayerUnits
	LayerSprites
	LayerLocations
	LayerSelection
	// NumLayers is the number of layers.
	NumLayers
)

// AllLayers lists every layer in stacking order.
var AllLayers = []Layer{LayerTerrain, LayerUnits, LayerSprites, LayerLocations, LayerSelection}

var layerNames = [...]string{"terrain", "units", "sprites", "locations", "selection"}

func (l Layer) String() string {
	if l < 0 || l >= NumLayers {
		return fmt.Sprintf("layer(%d)", int(l))
	}
	return layerNames[l]
}

// ParseLayer returns the layer with the given name.
func ParseLayer(name string) (Layer, error) {
	for i, n := range layerNames {
		if n == name {
			return Layer(i), nil
		}
	}
	return 0, fmt.Errorf("unknown layer %q", name)
}

// ParseLayers parses a comma separated layer list such as
// "terrain,units". An empty string selects every layer.
func ParseLayers(s string) ([]Layer, error) {
	if strings.TrimSpace(s) == "" {
		return AllLayers, nil
	}
	var out []Layer
	for _, part := range strings.Split(s, ",") {
		l, err := ParseLayer(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// LayerSet holds one surface per layer. Missing layers are nil.
type LayerSet [NumLayers]*image.RGBA

// Flatten draws the selected layers of set over each other in stacking
// order onto a new w x h surface, regardless of the order in layers.
func Flatten(w, h int, set LayerSet, layers ...Layer) *image.RGBA {
	if len(layers) == 0 {
		layers = AllLayers
	}
	var want [NumLayers]bool
	for _, l := range layers {
		if l >= 0 && l < NumLayers {
			want[l] = true
		}
	}

	dst := NewSurface(w, h)
	for l, surf := range set {
		if !want[l] || surf == nil {
			continue
		}
		draw.Draw(dst, surf.Bounds(), surf, surf.Bounds().Min, draw.Over)
	}
	return dst
}

// Thumbnail scales src to fit within maxW x maxH, keeping its aspect ratio.
func Thumbnail(src image.Image, maxW, maxH int) *image.RGBA {
	b := src.Bounds()
	if b.Empty() || maxW <= 0 || maxH <= 0 {
		return NewSurface(0, 0)
	}
	w, h := maxW, b.Dy()*maxW/b.Dx()
	if h > maxH {
		w, h = b.Dx()*maxH/b.Dy(), maxH
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := NewSurface(w, h)
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}
