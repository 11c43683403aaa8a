// Package maps holds the editable map document: terrain grid, placed units
// and sprites, and locations.
package maps

import (
	"image"
)

// NoLocationID is the reserved location id the map format uses for "unset"
// (the "Anywhere" location). It is never drawn.
const NoLocationID = 63

// Size is a terrain size in tiles.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// TileRef is a symbolic terrain tile reference resolved through a group table.
type TileRef struct {
	Group int `json:"group"`
	ID    int `json:"id"`
}

// Terrain is the tile grid of a map, indexed [y][x].
type Terrain struct {
	Tileset string      `json:"tileset"`
	Size    Size        `json:"size"`
	Tiles   [][]TileRef `json:"tile_id"`
}

// Position is a pixel position on the map.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Box is an extent measured outward from a position.
type Box struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// Transform places an entity on the map.
type Transform struct {
	Position Position `json:"position"`
	Size     Box      `json:"size"`
}

// Bounds returns the pixel rectangle covered by the transform's box.
func (t Transform) Bounds() image.Rectangle {
	return image.Rect(
		t.Position.X-t.Size.Left,
		t.Position.Y-t.Size.Top,
		t.Position.X+t.Size.Right,
		t.Position.Y+t.Size.Bottom,
	)
}

// Contains reports whether pixel (x, y) lies inside the transform's box.
// Left and top edges are inclusive, right and bottom exclusive.
func (t Transform) Contains(x, y int) bool {
	return image.Pt(x, y).In(t.Bounds())
}

// Owner is the player owning an entity.
type Owner struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Color    int    `json:"color"`
	RGBColor []int  `json:"rgb_color,omitempty"`
}

// ImageRef points at an image bundle on the asset server.
type ImageRef struct {
	Version string `json:"version"`
	Index   int    `json:"index"`
}

// Placed is a unit or sprite instance on the map.
type Placed struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	Transform Transform `json:"transform"`
	Owner     Owner     `json:"owner"`
	Image     ImageRef  `json:"image"`
}

// Location is a named rectangular trigger region.
type Location struct {
	ID             int       `json:"id"`
	Name           string    `json:"name"`
	Transform      Transform `json:"transform"`
	ElevationFlags int       `json:"elevation_flags"`
}

// Document is one map as served by the backend. A Document is treated as an
// immutable snapshot: edits go through Update, which returns a new value.
type Document struct {
	Name      string     `json:"name"`
	Terrain   Terrain    `json:"terrain"`
	Units     []Placed   `json:"placed_unit"`
	Sprites   []Placed   `json:"placed_sprite"`
	Locations []Location `json:"location"`
}

// PixelSize returns the world surface size in pixels for a tile size.
func (d *Document) PixelSize(tileSize int) (int, int) {
	return d.Terrain.Size.Width * tileSize, d.Terrain.Size.Height * tileSize
}

// UnitAt returns the index of the topmost unit whose box contains pixel
// (x, y), or -1. Later units in the list are drawn above earlier ones.
func (d *Document) UnitAt(x, y int) int {
	for i := len(d.Units) - 1; i >= 0; i-- {
		if d.Units[i].Transform.Contains(x, y) {
			return i
		}
	}
	return -1
}
