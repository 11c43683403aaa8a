// Command viewer is a desktop window over the editor loop. Dragging with
// the left button scrolls the map by whole tiles, a click selects the unit
// under the cursor, arrow keys nudge the view and R reloads assets, or the
// map itself when it failed to load.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"os"
	"os/signal"
	"syscall"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"webditor/internal/assets"
	"webditor/internal/config"
	"webditor/internal/editor"
	"webditor/internal/log"
	"webditor/internal/maps"
	"webditor/internal/render"
)

const (
	windowTilesW = 24
	windowTilesH = 16
)

// Viewer implements ebiten.Game over a viewport controller.
type Viewer struct {
	loop     *editor.Loop
	viewerID string
	snaps    editor.ViewerChan
	ctrl     *render.Controller
	snap     editor.Snapshot

	screen *ebiten.Image
	dirty  bool
	outW   int
	outH   int
}

func newViewer(loop *editor.Loop) *Viewer {
	v := &Viewer{loop: loop}
	v.viewerID, v.snaps = loop.AddViewer("window")
	v.ctrl = render.NewController(render.Viewport{})
	v.ctrl.OnPaint = func(*image.RGBA) { v.dirty = true }
	v.ctrl.OnClick = func(x, y int) {
		e := editor.Edit{Kind: editor.EditSelectAt, X: x, Y: y}
		select {
		case loop.Edits() <- e:
		default:
			log.Debugf("Edit queue full, dropping click at %d,%d", x, y)
		}
	}
	return v
}

func (v *Viewer) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) || inpututil.IsKeyJustPressed(ebiten.KeyQ) {
		return ebiten.Termination
	}

	for drained := false; !drained; {
		select {
		case s, ok := <-v.snaps:
			if !ok {
				return ebiten.Termination
			}
			v.snap = s
			if s.World != nil {
				v.ctrl.SetWorld(s.World)
			}
		default:
			drained = true
		}
	}

	v.keys()
	v.mouse()
	v.ctrl.Frame()
	return nil
}

func (v *Viewer) keys() {
	switch {
	case inpututil.IsKeyJustPressed(ebiten.KeyArrowLeft), inpututil.IsKeyJustPressed(ebiten.KeyA):
		v.ctrl.Scroll(-1, 0)
	case inpututil.IsKeyJustPressed(ebiten.KeyArrowRight), inpututil.IsKeyJustPressed(ebiten.KeyD):
		v.ctrl.Scroll(1, 0)
	case inpututil.IsKeyJustPressed(ebiten.KeyArrowUp), inpututil.IsKeyJustPressed(ebiten.KeyW):
		v.ctrl.Scroll(0, -1)
	case inpututil.IsKeyJustPressed(ebiten.KeyArrowDown), inpututil.IsKeyJustPressed(ebiten.KeyS):
		v.ctrl.Scroll(0, 1)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyR) {
		kinds := []editor.EditKind{editor.EditReloadTileset, editor.EditReloadImages}
		if v.snap.Doc == nil {
			kinds = []editor.EditKind{editor.EditReloadDocument}
		}
		for _, k := range kinds {
			select {
			case v.loop.Edits() <- editor.Edit{Kind: k}:
			default:
				log.WithField("kind", k).Debugf("Edit queue full, dropping reload")
			}
		}
	}
}

func (v *Viewer) mouse() {
	mx, my := ebiten.CursorPosition()
	inside := mx >= 0 && my >= 0 && mx < v.outW && my < v.outH
	switch {
	case inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft):
		if inside {
			v.ctrl.PointerDown(mx, my)
		}
	case inpututil.IsMouseButtonJustReleased(ebiten.MouseButtonLeft):
		v.ctrl.PointerUp(mx, my)
	case ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft):
		if inside {
			v.ctrl.PointerMove(mx, my)
		} else if v.ctrl.State() == render.Dragging {
			v.ctrl.PointerLeave()
		}
	}
	if _, wy := ebiten.Wheel(); wy != 0 {
		if wy > 0 {
			v.ctrl.Scroll(0, -1)
		} else {
			v.ctrl.Scroll(0, 1)
		}
	}
}

func (v *Viewer) Draw(screen *ebiten.Image) {
	canvas := v.ctrl.Canvas()
	if canvas != nil && canvas.Rect.Dx() > 0 && canvas.Rect.Dy() > 0 {
		if v.dirty || v.screen == nil {
			v.upload(canvas)
		}
		screen.DrawImage(v.screen, nil)
	}
	ebitenutil.DebugPrint(screen, v.status())
}

// upload copies the canvas into the window texture, reallocating it when
// the canvas size changed.
func (v *Viewer) upload(canvas *image.RGBA) {
	w, h := canvas.Rect.Dx(), canvas.Rect.Dy()
	if v.screen == nil || v.screen.Bounds().Dx() != w || v.screen.Bounds().Dy() != h {
		if v.screen != nil {
			v.screen.Deallocate()
		}
		v.screen = ebiten.NewImage(w, h)
	}
	pix := canvas.Pix
	if canvas.Stride != 4*w {
		pix = make([]byte, 0, 4*w*h)
		for y := 0; y < h; y++ {
			off := y * canvas.Stride
			pix = append(pix, canvas.Pix[off:off+4*w]...)
		}
	}
	v.screen.WritePixels(pix)
	v.dirty = false
}

func (v *Viewer) status() string {
	view := v.ctrl.View()
	s := fmt.Sprintf("(%d,%d) %dx%d", view.StartX, view.StartY, view.TileWidth, view.TileHeight)
	if v.snap.Doc != nil {
		s = v.snap.Doc.Name + " " + s
	}
	if u, ok := v.snap.SelectedUnit(); ok {
		pos := u.Transform.Position
		s += fmt.Sprintf("\nselected %s #%d (%s) at %d,%d", u.Name, u.ID, u.Owner.Name, pos.X, pos.Y)
	}
	if v.snap.Err != nil {
		s += "\n" + v.snap.Err.Error()
	}
	return s
}

func (v *Viewer) Layout(outsideWidth, outsideHeight int) (int, int) {
	if outsideWidth != v.outW || outsideHeight != v.outH {
		v.outW, v.outH = outsideWidth, outsideHeight
		v.ctrl.Resize(outsideWidth, outsideHeight)
	}
	return outsideWidth, outsideHeight
}

func main() {
	configPath := flag.String("config", "", "path to webditor.yaml")
	mapFile := flag.String("map", "", "map document to open (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	if *mapFile != "" {
		cfg.Map.File = *mapFile
	}
	if err := log.Setup(log.Options{Level: cfg.Log.Level, File: cfg.Log.File}); err != nil {
		log.Fatalf("Log setup error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ws, closeImages, err := openWorkspace(ctx, cfg)
	if err != nil {
		log.Fatalf("Workspace error: %v", err)
	}
	defer closeImages()

	loop, title := openLoop(ctx, cfg, ws)
	go loop.Run(ctx)
	defer loop.Stop()

	v := newViewer(loop)
	defer loop.RemoveViewer(v.viewerID)

	ebiten.SetWindowTitle("webditor - " + title)
	ebiten.SetWindowSize(windowTilesW*render.TileSize, windowTilesH*render.TileSize)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetTPS(cfg.Render.FrameRate)

	go func() {
		<-ctx.Done()
		loop.RemoveViewer(v.viewerID)
	}()
	if err := ebiten.RunGame(v); err != nil && !errors.Is(err, ebiten.Termination) {
		log.Fatalf("Viewer error: %v", err)
	}
}

// openLoop builds the editor loop over the configured map. Without a map
// it starts a new default one; a map that fails to load leaves the loop
// empty until R reloads it. The second result is the window title.
func openLoop(ctx context.Context, cfg *config.Config, ws *editor.Workspace) (*editor.Loop, string) {
	var load editor.DocumentLoader
	switch {
	case cfg.Map.File != "":
		path := cfg.Map.File
		load = func(context.Context) (*maps.Document, error) { return maps.LoadDocument(path) }
	case cfg.Map.Name != "":
		name := cfg.Map.Name
		load = func(ctx context.Context) (*maps.Document, error) { return ws.Document(ctx, name) }
	default:
		doc := maps.DefaultDocument(cfg.Tileset.Name)
		return editor.NewLoop(ws, doc, cfg.Render.FrameRate), doc.Name
	}

	doc, err := load(ctx)
	if err != nil {
		log.Errorf("Could not load map: %v", err)
		loop := editor.NewLoop(ws, nil, cfg.Render.FrameRate)
		loop.UseLoader(load)
		loop.FailDocument(fmt.Errorf("load document: %w", err))
		return loop, "no map"
	}
	loop := editor.NewLoop(ws, doc, cfg.Render.FrameRate)
	loop.UseLoader(load)
	return loop, doc.Name
}

// openWorkspace wires the configured asset store, image cache and palette.
// The returned func releases the image cache.
func openWorkspace(ctx context.Context, cfg *config.Config) (*editor.Workspace, func(), error) {
	var store assets.Store
	if cfg.Assets.Dir != "" {
		store = assets.Dir{Root: cfg.Assets.Dir}
	} else {
		store = assets.NewClient(cfg.Backend.URL, cfg.Backend.Timeout)
	}

	images, err := assets.NewImageCache(store, cfg.Cache.MaxBytes)
	if err != nil {
		return nil, nil, err
	}
	if m, err := store.FetchManifest(ctx, cfg.Render.ImageVersion); err == nil {
		images.UseManifest(cfg.Render.ImageVersion, m)
	}

	var palette render.Palette
	if cfg.Render.PaletteFile != "" {
		palette, err = render.LoadPalette(cfg.Render.PaletteFile)
		if err != nil {
			images.Close()
			return nil, nil, err
		}
	}
	return editor.NewWorkspace(store, images, palette), images.Close, nil
}
