package httpapi

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"webditor/internal/editor"
	"webditor/internal/log"
	"webditor/internal/maps"
	"webditor/internal/render"
)

// Summary is the reply to GET /map.
type Summary struct {
	Name      string             `json:"name"`
	Tileset   string             `json:"tileset"`
	Width     int                `json:"width"`
	Height    int                `json:"height"`
	Units     int                `json:"units"`
	Sprites   int                `json:"sprites"`
	Locations int                `json:"locations"`
	Versions  maps.LayerVersions `json:"versions"`
	Frame     uint64             `json:"frame"`
	Selected  int                `json:"selected"`
	Error     string             `json:"error,omitempty"`
}

// EditRequest is the body of POST /map/edit. Path is either a list of keys
// and indices or a dotted string.
type EditRequest struct {
	Path  any `json:"path" binding:"required"`
	Value any `json:"value"`
}

// SelectRequest is the body of POST /map/select: a map pixel, or an index
// when Index is set.
type SelectRequest struct {
	X     int  `json:"x"`
	Y     int  `json:"y"`
	Index *int `json:"index"`
}

// noDocument replies 503, carrying the load error when there is one.
func noDocument(c *gin.Context, snap editor.Snapshot) {
	msg := "no document loaded"
	if snap.Err != nil {
		msg += ": " + snap.Err.Error()
	}
	fail(c, http.StatusServiceUnavailable, CodeNotReady, msg)
}

func (h *Handler) Health(c *gin.Context) {
	ok(c, gin.H{"status": "ok"})
}

func (h *Handler) Summary(c *gin.Context) {
	snap := h.Editor.Snapshot()
	if snap.Doc == nil {
		noDocument(c, snap)
		return
	}
	d := snap.Doc
	s := Summary{
		Name:      d.Name,
		Tileset:   d.Terrain.Tileset,
		Width:     d.Terrain.Size.Width,
		Height:    d.Terrain.Size.Height,
		Units:     len(d.Units),
		Sprites:   len(d.Sprites),
		Locations: len(d.Locations),
		Versions:  snap.Versions,
		Frame:     snap.Frame,
		Selected:  snap.Selected,
	}
	if snap.Err != nil {
		s.Error = snap.Err.Error()
	}
	ok(c, s)
}

// World serves the flattened world surface, optionally limited to the
// layers named in ?layers=.
func (h *Handler) World(c *gin.Context) {
	layers, err := render.ParseLayers(c.Query("layers"))
	if err != nil {
		fail(c, http.StatusBadRequest, CodeInvalidParam, err.Error())
		return
	}
	snap, ready := h.ready(c)
	if !ready {
		return
	}
	b := snap.World.Bounds()
	img := render.Flatten(b.Dx(), b.Dy(), snap.Layers, layers...)
	writePNG(c, img)
}

// Viewport serves a window of the world. Coordinates and sizes are tiles.
func (h *Handler) Viewport(c *gin.Context) {
	var v render.Viewport
	fields := []struct {
		name string
		dst  *int
		min  int
	}{
		{"x", &v.StartX, 0},
		{"y", &v.StartY, 0},
		{"w", &v.TileWidth, 1},
		{"h", &v.TileHeight, 1},
	}
	for _, f := range fields {
		n, err := strconv.Atoi(c.Query(f.name))
		if err != nil || n < f.min {
			fail(c, http.StatusBadRequest, CodeInvalidParam, fmt.Sprintf("%s must be an integer >= %d", f.name, f.min))
			return
		}
		*f.dst = n
	}
	snap, ready := h.ready(c)
	if !ready {
		return
	}
	writePNG(c, render.PaintViewport(snap.World, v))
}

func (h *Handler) Edit(c *gin.Context) {
	var req EditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, CodeInvalidParam, err.Error())
		return
	}
	path, err := parsePath(req.Path)
	if err != nil {
		fail(c, http.StatusBadRequest, CodeInvalidParam, err.Error())
		return
	}
	if !h.apply(c, editor.Edit{Kind: editor.EditSet, Path: path, Value: req.Value}) {
		return
	}
	ok(c, gin.H{"path": path.String()})
}

func (h *Handler) Select(c *gin.Context) {
	var req SelectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, CodeInvalidParam, err.Error())
		return
	}
	e := editor.Edit{Kind: editor.EditSelectAt, X: req.X, Y: req.Y}
	if req.Index != nil {
		e = editor.Edit{Kind: editor.EditSelect, Index: *req.Index}
	}
	if !h.apply(c, e) {
		return
	}
	ok(c, nil)
}

// Export compiles the current document through the backend and streams
// the result.
func (h *Handler) Export(c *gin.Context) {
	if h.Compiler == nil {
		fail(c, http.StatusNotImplemented, CodeBackend, "no compiler configured")
		return
	}
	snap := h.Editor.Snapshot()
	if snap.Doc == nil {
		noDocument(c, snap)
		return
	}
	data, err := h.Compiler.Compile(c.Request.Context(), snap.Doc)
	if err != nil {
		log.WithField("map", snap.Doc.Name).Errorf("export failed: %v", err)
		fail(c, http.StatusBadGateway, CodeBackend, err.Error())
		return
	}
	c.Header("Content-Disposition", `attachment; filename="compiled_map.scx"`)
	c.Data(http.StatusOK, "application/octet-stream", data)
}

func (h *Handler) ready(c *gin.Context) (editor.Snapshot, bool) {
	snap := h.Editor.Snapshot()
	if snap.Doc == nil {
		noDocument(c, snap)
		return snap, false
	}
	if snap.World == nil {
		fail(c, http.StatusServiceUnavailable, CodeNotReady, "world not composed yet")
		return snap, false
	}
	return snap, true
}

func (h *Handler) apply(c *gin.Context, e editor.Edit) bool {
	timeout := h.EditTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	err := h.Editor.Apply(ctx, e)
	switch {
	case err == nil:
		return true
	case errors.Is(err, context.DeadlineExceeded):
		fail(c, http.StatusServiceUnavailable, CodeNotReady, "editor busy")
	case errors.Is(err, maps.ErrInvalidPath):
		fail(c, http.StatusBadRequest, CodeInvalidParam, err.Error())
	default:
		fail(c, http.StatusUnprocessableEntity, CodeInvalidParam, err.Error())
	}
	return false
}

func parsePath(raw any) (maps.Path, error) {
	switch p := raw.(type) {
	case string:
		return maps.ParsePath(p)
	case []any:
		return maps.Path(p).Normalize()
	}
	return nil, fmt.Errorf("%w: path must be a string or a list", maps.ErrInvalidPath)
}

func writePNG(c *gin.Context, img image.Image) {
	data, err := render.EncodePNG(img)
	if err != nil {
		fail(c, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	c.Data(http.StatusOK, "image/png", data)
}
