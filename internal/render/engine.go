package render

import (
	"fmt"
	"image"
	"strings"
)

// StatusRows is the number of terminal rows below the map.
const StatusRows = 1

// Cell represents a single terminal cell with full RGB color.
type Cell struct {
	Ch            rune
	FgR, FgG, FgB uint8
	BgR, BgG, BgB uint8
	Bold          bool
}

var sentinel = Cell{Ch: '\x00', FgR: 255, BgB: 255, Bold: true}

// emptyPixel is drawn where the canvas is transparent or missing.
var emptyPixel = [3]uint8{10, 10, 15}

// Status is the text shown in the status row.
type Status struct {
	MapName   string
	View      Viewport
	Selection string
	Dragging  bool
	Message   string
}

// Engine is a per-session double-buffer diff renderer. Each cell shows two
// vertically stacked canvas samples as a half block.
type Engine struct {
	width, height int
	scale         int
	current       [][]Cell
	next          [][]Cell
	firstFrame    bool
}

// NewEngine creates a renderer for the given terminal dimensions. scale is
// the number of canvas pixels per cell column.
func NewEngine(width, height, scale int) *Engine {
	if scale < 1 {
		scale = 1
	}
	e := &Engine{
		width:      width,
		height:     height,
		scale:      scale,
		firstFrame: true,
	}
	e.current = e.makeBuffer(sentinel)
	e.next = e.makeBuffer(Cell{})
	return e
}

// Resize adjusts the renderer for a new terminal size.
func (e *Engine) Resize(width, height int) {
	e.width = width
	e.height = height
	e.current = e.makeBuffer(sentinel)
	e.next = e.makeBuffer(Cell{})
	e.firstFrame = true
}

// CanvasSize returns the canvas pixel box a terminal of the current size
// can show, which is what a viewport controller should be resized to.
func (e *Engine) CanvasSize() (int, int) {
	rows := max(e.height-StatusRows, 0)
	return e.width * e.scale, rows * 2 * e.scale
}

// CellToCanvas converts a 0-based terminal cell to the canvas pixel at the
// top-left of that cell.
func (e *Engine) CellToCanvas(col, row int) (int, int) {
	return col * e.scale, row * 2 * e.scale
}

func (e *Engine) makeBuffer(fill Cell) [][]Cell {
	buf := make([][]Cell, e.height)
	for y := 0; y < e.height; y++ {
		buf[y] = make([]Cell, e.width)
		for x := 0; x < e.width; x++ {
			buf[y][x] = fill
		}
	}
	return buf
}

// Render produces the ANSI byte output for the given canvas.
func (e *Engine) Render(canvas *image.RGBA, termW, termH int, st Status) string {
	if termW != e.width || termH != e.height {
		e.Resize(termW, termH)
	}

	mapRows := max(e.height-StatusRows, 0)
	for y := 0; y < mapRows; y++ {
		for x := 0; x < e.width; x++ {
			px, py := e.CellToCanvas(x, y)
			top := samplePixel(canvas, px, py)
			bot := samplePixel(canvas, px, py+e.scale)
			e.next[y][x] = Cell{
				Ch:  HalfBlock,
				FgR: top[0], FgG: top[1], FgB: top[2],
				BgR: bot[0], BgG: bot[1], BgB: bot[2],
			}
		}
	}
	e.drawStatus(mapRows, st)

	// Diff current vs next, emit only changed cells
	var sb strings.Builder
	sb.Grow(16384)

	lastRow, lastCol := -1, -1
	for y := 0; y < e.height; y++ {
		for x := 0; x < e.width; x++ {
			nc := e.next[y][x]
			if e.firstFrame || nc != e.current[y][x] {
				// Only emit cursor position if not consecutive
				if y != lastRow || x != lastCol {
					sb.WriteString(MoveTo(y+1, x+1))
				}
				WriteCellSGR(&sb, nc)
				lastRow = y
				lastCol = x + 1
			}
		}
	}

	if sb.Len() > 0 {
		sb.WriteString(Reset)
	}

	// Swap buffers
	e.current, e.next = e.next, e.current
	e.firstFrame = false

	return sb.String()
}

// samplePixel reads an opaque color from canvas, blending transparent
// pixels onto the empty background.
func samplePixel(canvas *image.RGBA, x, y int) [3]uint8 {
	if canvas == nil || !image.Pt(x, y).In(canvas.Bounds()) {
		return emptyPixel
	}
	i := canvas.PixOffset(x, y)
	r, g, b, a := canvas.Pix[i], canvas.Pix[i+1], canvas.Pix[i+2], canvas.Pix[i+3]
	if a == 255 {
		return [3]uint8{r, g, b}
	}
	// Pix is premultiplied, so only the background needs scaling.
	inv := 255 - int(a)
	return [3]uint8{
		uint8(int(r) + int(emptyPixel[0])*inv/255),
		uint8(int(g) + int(emptyPixel[1])*inv/255),
		uint8(int(b) + int(emptyPixel[2])*inv/255),
	}
}

func (e *Engine) drawStatus(row int, st Status) {
	if row < 0 || row >= e.height {
		return
	}
	bgR, bgG, bgB := uint8(15), uint8(18), uint8(30)
	for x := 0; x < e.width; x++ {
		e.next[row][x] = Cell{Ch: ' ', BgR: bgR, BgG: bgG, BgB: bgB}
	}

	col := e.writeText(row, 1, e.width, st.MapName, 120, 200, 255, bgR, bgG, bgB, true)
	col = e.writeText(row, col, e.width, "  │  ", 60, 65, 85, bgR, bgG, bgB, false)
	pos := fmt.Sprintf("%d,%d  %dx%d", st.View.StartX, st.View.StartY, st.View.TileWidth, st.View.TileHeight)
	col = e.writeText(row, col, e.width, pos, 180, 180, 195, bgR, bgG, bgB, false)
	if st.Dragging {
		col = e.writeText(row, col, e.width, "  [drag]", 240, 190, 60, bgR, bgG, bgB, false)
	}
	if st.Selection != "" {
		col = e.writeText(row, col, e.width, "  │  ", 60, 65, 85, bgR, bgG, bgB, false)
		col = e.writeText(row, col, e.width, st.Selection, 0, 255, 64, bgR, bgG, bgB, true)
	}
	msg := st.Message
	if msg == "" {
		msg = "drag/←↑↓→ scroll  click select  q quit"
	}
	col = e.writeText(row, col, e.width, "  │  ", 60, 65, 85, bgR, bgG, bgB, false)
	e.writeText(row, col, e.width, msg, 130, 130, 145, bgR, bgG, bgB, false)
}

// writeText writes colored text into a bounded region [col, maxCol). Returns the next column position.
func (e *Engine) writeText(row, col, maxCol int, text string, fgR, fgG, fgB, bgR, bgG, bgB uint8, bold bool) int {
	for _, r := range text {
		if col >= maxCol || col >= e.width {
			break
		}
		if row >= 0 && row < e.height && col >= 0 {
			e.next[row][col] = Cell{Ch: r, FgR: fgR, FgG: fgG, FgB: fgB, BgR: bgR, BgG: bgG, BgB: bgB, Bold: bold}
		}
		col++
	}
	return col
}
