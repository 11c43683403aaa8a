package render

import (
	"encoding/json"
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// FrameRect locates one animation frame inside a sprite sheet. The offsets
// re-center the frame around the entity anchor.
type FrameRect struct {
	X       int `json:"x"`
	Y       int `json:"y"`
	Width   int `json:"width"`
	Height  int `json:"height"`
	XOffset int `json:"x_offset"`
	YOffset int `json:"y_offset"`
}

// FrameMeta maps frame index to its rectangle.
type FrameMeta map[int]FrameRect

// ParseFrameMeta decodes a meta.json frame table. Keys are frame indices
// written as JSON object keys.
func ParseFrameMeta(data []byte) (FrameMeta, error) {
	var m FrameMeta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse frame meta: %w", err)
	}
	return m, nil
}

// CropFrame cuts frame out of sheet and pads it so the bitmap is
// (width + 2|x_offset|) x (height + 2|y_offset|) with the crop drawn at
// (|x_offset|, |y_offset|). A frame missing from meta is ErrFrameNotFound.
func CropFrame(sheet image.Image, frame int, meta FrameMeta) (*image.RGBA, error) {
	r, ok := meta[frame]
	if !ok {
		return nil, fmt.Errorf("%w: frame %d", ErrFrameNotFound, frame)
	}
	xo, yo := abs(r.XOffset), abs(r.YOffset)

	dst := NewSurface(r.Width+2*xo, r.Height+2*yo)
	sb := sheet.Bounds()
	src := image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height).Add(sb.Min)
	target := image.Rect(xo, yo, xo+r.Width, yo+r.Height)
	draw.Draw(dst, target, sheet, src.Min, draw.Src)
	return dst, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
