// Package render composites map layers into world surfaces and presents
// viewport crops of them.
package render

import (
	"errors"
	"image"

	"webditor/internal/tileset"
)

const (
	// TileSize is the pixel edge of one terrain tile.
	TileSize = tileset.TileSize
	// MaxCanvas caps either side of a viewport canvas in pixels.
	MaxCanvas = 16000
)

var (
	// ErrConsistency reports a megatile slice of the wrong length.
	ErrConsistency = errors.New("render: megatile slice length mismatch")
	// ErrFrameNotFound reports a frame index missing from frame metadata.
	ErrFrameNotFound = errors.New("render: frame not found")
)

// NewSurface allocates a transparent w x h surface. Non-positive sizes give
// an empty surface.
func NewSurface(w, h int) *image.RGBA {
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return image.NewRGBA(image.Rect(0, 0, w, h))
}
