package render

import (
	"image"
	"image/color"
	"testing"
)

func TestPaintViewportCopiesWindow(t *testing.T) {
	world := NewSurface(8*TileSize, 8*TileSize)
	world.SetRGBA(2*TileSize, 1*TileSize, red)

	canvas := PaintViewport(world, Viewport{StartX: 2, StartY: 1, TileWidth: 3, TileHeight: 2})
	if canvas.Bounds() != image.Rect(0, 0, 3*TileSize, 2*TileSize) {
		t.Fatalf("bounds = %v", canvas.Bounds())
	}
	if canvas.RGBAAt(0, 0) != red {
		t.Errorf("origin = %v, want world pixel at (64,32)", canvas.RGBAAt(0, 0))
	}
}

func TestPaintViewportPastWorldEdge(t *testing.T) {
	world := solid(2*TileSize, 2*TileSize, red)
	canvas := PaintViewport(world, Viewport{StartX: 1, TileWidth: 4, TileHeight: 1})
	if canvas.RGBAAt(0, 0) != red {
		t.Error("visible world part not copied")
	}
	if canvas.RGBAAt(TileSize+1, 0).A != 0 {
		t.Error("area past the world edge should stay transparent")
	}
}

func TestPaintViewportClampsToMaxCanvas(t *testing.T) {
	if w, h := (Viewport{TileWidth: 1000, TileHeight: 600}).CanvasSize(); w != MaxCanvas || h != MaxCanvas {
		t.Fatalf("CanvasSize = %dx%d, want %dx%d", w, h, MaxCanvas, MaxCanvas)
	}

	world := NewSurface(64, 64)
	canvas := PaintViewport(world, Viewport{TileWidth: 1000, TileHeight: 1})
	if canvas.Bounds().Dx() != MaxCanvas || canvas.Bounds().Dy() != TileSize {
		t.Fatalf("canvas = %v, want %dx%d", canvas.Bounds().Size(), MaxCanvas, TileSize)
	}

	small := PaintViewport(nil, Viewport{TileWidth: 2, TileHeight: 3})
	if small.Bounds().Dx() != 64 || small.Bounds().Dy() != 96 {
		t.Errorf("nil world canvas = %v", small.Bounds().Size())
	}
}

func TestControllerUnderHalfTileDragIgnored(t *testing.T) {
	c := NewController(Viewport{StartX: 5, StartY: 5, TileWidth: 4, TileHeight: 4})
	c.PointerDown(100, 100)
	// Deltas under half a tile round to zero; -16 is exactly half and
	// rounds toward +Inf.
	for _, d := range []int{1, 8, 15, -15, -16} {
		c.PointerMove(100+d, 100+d)
		if v := c.View(); v.StartX != 5 || v.StartY != 5 {
			t.Fatalf("delta %d moved viewport to %d,%d", d, v.StartX, v.StartY)
		}
	}
	if c.Pending() {
		t.Error("motion under half a tile requested a repaint")
	}
}

func TestControllerDragByTiles(t *testing.T) {
	c := NewController(Viewport{StartX: 5, StartY: 5, TileWidth: 4, TileHeight: 4})
	c.PointerDown(100, 100)

	// Half a tile rounds up to one.
	c.PointerMove(116, 100)
	if v := c.View(); v.StartX != 4 || v.StartY != 5 {
		t.Fatalf("after +16px: %d,%d want 4,5", v.StartX, v.StartY)
	}
	// Anchor was reset to (116,100): another 10px is sub-tile.
	c.PointerMove(126, 100)
	if c.View().StartX != 4 {
		t.Fatalf("anchor not reset, StartX = %d", c.View().StartX)
	}
	// Dragging up and left reveals content down and right.
	c.PointerMove(116-64, 100-96)
	if v := c.View(); v.StartX != 6 || v.StartY != 8 {
		t.Fatalf("after -64,-96: %d,%d want 6,8", v.StartX, v.StartY)
	}
}

func TestControllerNeverNegative(t *testing.T) {
	c := NewController(Viewport{StartX: 2, StartY: 1, TileWidth: 4, TileHeight: 4})
	c.PointerDown(0, 0)
	c.PointerMove(100000, 50000)
	if v := c.View(); v.StartX != 0 || v.StartY != 0 {
		t.Fatalf("start = %d,%d, want 0,0", v.StartX, v.StartY)
	}
	c.Scroll(-3, -3)
	if v := c.View(); v.StartX != 0 || v.StartY != 0 {
		t.Fatalf("scroll went negative: %d,%d", v.StartX, v.StartY)
	}
	if NewController(Viewport{StartX: -4, StartY: -1}).View().StartX != 0 {
		t.Error("NewController kept a negative start")
	}
}

func TestControllerIgnoresMoveWhenIdle(t *testing.T) {
	c := NewController(Viewport{StartX: 3, TileWidth: 4, TileHeight: 4})
	c.PointerMove(500, 500)
	if c.View().StartX != 3 {
		t.Error("idle move scrolled the viewport")
	}
	c.PointerDown(0, 0)
	c.PointerLeave()
	if c.State() != Idle {
		t.Error("pointer leave did not end the drag")
	}
	c.PointerMove(500, 500)
	if c.View().StartX != 3 {
		t.Error("move after leave scrolled the viewport")
	}
}

func TestControllerCoalescesRepaints(t *testing.T) {
	c := NewController(Viewport{StartX: 10, StartY: 10, TileWidth: 2, TileHeight: 2})
	paints := 0
	c.OnPaint = func(*image.RGBA) { paints++ }
	c.SetWorld(NewSurface(32*TileSize, 32*TileSize))
	paints = 0

	c.PointerDown(0, 0)
	for i := 1; i <= 5; i++ {
		c.PointerMove(i*TileSize, 0)
	}
	if paints != 0 {
		t.Fatalf("moves painted %d times before the frame", paints)
	}
	if !c.Frame() {
		t.Fatal("Frame did not paint pending moves")
	}
	if paints != 1 {
		t.Errorf("paints = %d, want 1", paints)
	}
	if c.Frame() {
		t.Error("second Frame painted without new moves")
	}
}

func TestControllerResizeMidDrag(t *testing.T) {
	c := NewController(Viewport{TileWidth: 2, TileHeight: 2})
	paints := 0
	c.OnPaint = func(*image.RGBA) { paints++ }

	c.PointerDown(0, 0)
	c.Resize(100, 70)
	if v := c.View(); v.TileWidth != 3 || v.TileHeight != 2 {
		t.Fatalf("tile size = %dx%d, want 3x2", v.TileWidth, v.TileHeight)
	}
	if paints != 1 {
		t.Errorf("resize painted %d times, want 1", paints)
	}
	if c.State() != Dragging {
		t.Error("resize ended the drag")
	}
	if c.Canvas().Bounds().Dx() != 3*TileSize {
		t.Errorf("canvas width = %d", c.Canvas().Bounds().Dx())
	}
}

func TestControllerClick(t *testing.T) {
	c := NewController(Viewport{StartX: 2, StartY: 3, TileWidth: 4, TileHeight: 4})
	var clicks [][2]int
	c.OnClick = func(x, y int) { clicks = append(clicks, [2]int{x, y}) }

	c.PointerDown(10, 10)
	c.PointerMove(14, 12)
	c.PointerUp(14, 12)
	if len(clicks) != 1 || clicks[0] != [2]int{14 + 64, 12 + 96} {
		t.Fatalf("clicks = %v", clicks)
	}

	// A drag that scrolled is not a click.
	c.PointerDown(10, 10)
	c.PointerMove(10+TileSize, 10)
	c.PointerUp(10+TileSize, 10)
	if len(clicks) != 1 {
		t.Errorf("drag reported a click: %v", clicks)
	}

	// Release without press is not a click.
	c.PointerUp(5, 5)
	if len(clicks) != 1 {
		t.Errorf("stray release reported a click: %v", clicks)
	}
}

func TestControllerSetWorldRepaints(t *testing.T) {
	c := NewController(Viewport{TileWidth: 1, TileHeight: 1})
	c.SetWorld(solid(TileSize, TileSize, color.RGBA{7, 7, 7, 255}))
	if c.Canvas() == nil || c.Canvas().RGBAAt(0, 0) != (color.RGBA{7, 7, 7, 255}) {
		t.Error("SetWorld did not repaint from the new world")
	}
}
