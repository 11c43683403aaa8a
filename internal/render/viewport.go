package render

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// Viewport is a window onto the world surface, in tile units.
type Viewport struct {
	StartX, StartY        int // top-left tile, never negative
	TileWidth, TileHeight int // visible size in tiles
}

// CanvasSize returns the canvas pixel size for v, capped at MaxCanvas on
// each side.
func (v Viewport) CanvasSize() (int, int) {
	w := min(max(v.TileWidth*TileSize, 0), MaxCanvas)
	h := min(max(v.TileHeight*TileSize, 0), MaxCanvas)
	return w, h
}

// Origin returns the world pixel shown at the canvas's top-left corner.
func (v Viewport) Origin() image.Point {
	return image.Pt(v.StartX*TileSize, v.StartY*TileSize)
}

// PaintViewport copies the visible part of world onto a new canvas. The
// canvas is capped at MaxCanvas per side; an oversized request is clamped,
// never rejected. Canvas areas past the world edge stay transparent.
func PaintViewport(world image.Image, v Viewport) *image.RGBA {
	w, h := v.CanvasSize()
	dst := NewSurface(w, h)
	if world == nil {
		return dst
	}
	sp := world.Bounds().Min.Add(v.Origin())
	draw.Draw(dst, dst.Bounds(), world, sp, draw.Src)
	return dst
}

// DragState is the pointer state of a Controller.
type DragState int

const (
	Idle DragState = iota
	Dragging
)

func (s DragState) String() string {
	if s == Dragging {
		return "dragging"
	}
	return "idle"
}

// Controller turns pointer drags and host resizes into viewport changes and
// repaints. It is not safe for concurrent use; each presenter drives its
// own controller from one goroutine.
type Controller struct {
	view    Viewport
	state   DragState
	anchor  image.Point
	moved   bool
	pending bool
	world   image.Image
	canvas  *image.RGBA

	// OnPaint receives every repainted canvas.
	OnPaint func(canvas *image.RGBA)
	// OnClick receives map pixel coordinates of a press and release that
	// did not scroll the viewport.
	OnClick func(mapX, mapY int)
}

// NewController returns an idle controller showing v.
func NewController(v Viewport) *Controller {
	v.StartX = max(v.StartX, 0)
	v.StartY = max(v.StartY, 0)
	return &Controller{view: v}
}

// View returns the current viewport.
func (c *Controller) View() Viewport { return c.view }

// State returns the current drag state.
func (c *Controller) State() DragState { return c.state }

// Canvas returns the last painted canvas, or nil before the first paint.
func (c *Controller) Canvas() *image.RGBA { return c.canvas }

// Pending reports whether a repaint is waiting for the next Frame.
func (c *Controller) Pending() bool { return c.pending }

// SetWorld replaces the world surface and repaints.
func (c *Controller) SetWorld(world image.Image) {
	c.world = world
	c.Repaint()
}

// PointerDown starts a drag anchored at (x, y).
func (c *Controller) PointerDown(x, y int) {
	c.state = Dragging
	c.anchor = image.Pt(x, y)
	c.moved = false
}

// PointerMove scrolls by whole tiles while dragging. Sub-tile motion is
// accumulated against the anchor until it rounds to a full tile.
func (c *Controller) PointerMove(x, y int) {
	if c.state != Dragging {
		return
	}
	dx := roundHalfUp(float64(x-c.anchor.X) / TileSize)
	dy := roundHalfUp(float64(y-c.anchor.Y) / TileSize)
	if dx == 0 && dy == 0 {
		return
	}
	c.view.StartX = max(0, c.view.StartX-dx)
	c.view.StartY = max(0, c.view.StartY-dy)
	c.anchor = image.Pt(x, y)
	c.moved = true
	c.pending = true
}

// PointerUp ends a drag. A press and release that never scrolled is
// reported through OnClick.
func (c *Controller) PointerUp(x, y int) {
	wasDragging := c.state == Dragging
	clicked := wasDragging && !c.moved
	c.endDrag()
	if clicked && c.OnClick != nil {
		mx, my := c.ScreenToMap(x, y)
		c.OnClick(mx, my)
	}
}

// PointerLeave ends a drag without a click.
func (c *Controller) PointerLeave() {
	c.endDrag()
}

func (c *Controller) endDrag() {
	c.state = Idle
	c.anchor = image.Point{}
	c.moved = false
}

// Scroll nudges the viewport by whole tiles, clamped at zero.
func (c *Controller) Scroll(dx, dy int) {
	nx := max(0, c.view.StartX+dx)
	ny := max(0, c.view.StartY+dy)
	if nx == c.view.StartX && ny == c.view.StartY {
		return
	}
	c.view.StartX, c.view.StartY = nx, ny
	c.pending = true
}

// Frame performs at most one coalesced repaint. It reports whether it
// painted.
func (c *Controller) Frame() bool {
	if !c.pending {
		return false
	}
	c.Repaint()
	return true
}

// Resize derives the tile window from the host's pixel box and repaints
// immediately, whatever the drag state.
func (c *Controller) Resize(pxW, pxH int) {
	c.view.TileWidth = max(pxW, 0) / TileSize
	c.view.TileHeight = max(pxH, 0) / TileSize
	c.Repaint()
}

// Repaint redraws the canvas from the world surface now.
func (c *Controller) Repaint() {
	c.pending = false
	c.canvas = PaintViewport(c.world, c.view)
	if c.OnPaint != nil {
		c.OnPaint(c.canvas)
	}
}

// ScreenToMap converts canvas pixel coordinates to map pixel coordinates.
func (c *Controller) ScreenToMap(x, y int) (int, int) {
	o := c.view.Origin()
	return x + o.X, y + o.Y
}

// roundHalfUp rounds to the nearest integer with halves toward +Inf.
func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}
