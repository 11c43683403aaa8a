package editor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"webditor/internal/assets"
	"webditor/internal/log"
	"webditor/internal/maps"
	"webditor/internal/render"
	"webditor/internal/tileset"
)

func init() {
	log.SetOutput(io.Discard)
}

// memStore serves one tileset whose tile i is filled with byte i*40.
type memStore struct {
	payload      []byte
	fail         atomic.Bool
	tilesetCalls atomic.Int32
}

func newMemStore(t *testing.T) *memStore {
	t.Helper()
	atlas := make(tileset.Atlas, 2*tileset.TileStride)
	for i := range atlas {
		atlas[i] = byte(i / tileset.TileStride * 40)
	}
	payload, err := tileset.Encode(atlas)
	if err != nil {
		t.Fatal(err)
	}
	return &memStore{payload: payload}
}

func (m *memStore) FetchTileset(ctx context.Context, name string) ([]byte, error) {
	m.tilesetCalls.Add(1)
	if m.fail.Load() {
		return nil, errors.New("backend down")
	}
	return m.payload, nil
}

func (m *memStore) FetchGroupTable(ctx context.Context, name string) ([]byte, error) {
	return []byte(`[[0,1]]`), nil
}

func (m *memStore) FetchDocument(ctx context.Context, name string) (*maps.Document, error) {
	return nil, assets.ErrNotFound
}

func (m *memStore) FetchImage(ctx context.Context, key assets.ImageKey) (*assets.RawBundle, error) {
	return nil, assets.ErrNotFound
}

func (m *memStore) FetchManifest(ctx context.Context, version string) (assets.Manifest, error) {
	return nil, assets.ErrNotFound
}

// slowImages returns an 8x8 red square for every image, after delay.
type slowImages struct {
	mu    sync.Mutex
	delay time.Duration
	// timeouts is how many upcoming fetches fail with a deadline error.
	timeouts atomic.Int32
	calls    atomic.Int32
}

func (s *slowImages) setDelay(d time.Duration) {
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
}

func (s *slowImages) Bundle(ctx context.Context, ref maps.ImageRef) (*render.Bundle, error) {
	s.calls.Add(1)
	if s.timeouts.Add(-1) >= 0 {
		return nil, fmt.Errorf("fetch %s/%d: %w", ref.Version, ref.Index, context.DeadlineExceeded)
	}
	s.timeouts.Store(0)
	s.mu.Lock()
	d := s.delay
	s.mu.Unlock()
	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := 0; i < len(img.Pix); i += 4 {
		copy(img.Pix[i:], []byte{255, 0, 0, 255})
	}
	return &render.Bundle{Diffuse: img, Meta: render.FrameMeta{0: {Width: 8, Height: 8}}}, nil
}

func testDoc() *maps.Document {
	return &maps.Document{
		Name: "Test",
		Terrain: maps.Terrain{
			Tileset: "jungle",
			Size:    maps.Size{Width: 2, Height: 1},
			Tiles:   [][]maps.TileRef{{{Group: 0, ID: 0}, {Group: 0, ID: 1}}},
		},
		Units: []maps.Placed{{
			Name: "Marine",
			Transform: maps.Transform{
				Position: maps.Position{X: 16, Y: 16},
				Size:     maps.Box{Left: 4, Top: 4, Right: 4, Bottom: 4},
			},
			Image: maps.ImageRef{Version: "sd", Index: 1},
		}},
		Sprites: []maps.Placed{},
		Locations: []maps.Location{{
			ID:        1,
			Name:      "Start",
			Transform: maps.Transform{Size: maps.Box{Right: 32, Bottom: 32}},
		}},
	}
}

func newTestLoop(t *testing.T) (*Loop, *memStore, *slowImages) {
	t.Helper()
	store := newMemStore(t)
	images := &slowImages{}
	ws := NewWorkspace(store, images, nil)
	return NewLoop(ws, testDoc(), 60), store, images
}

// settle ticks the loop until no compose pass is in flight.
func settle(t *testing.T, l *Loop) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		l.tick(context.Background())
		if l.inflight == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("compose pass did not finish")
		}
		time.Sleep(time.Millisecond)
	}
}

func rgbaAt(img *image.RGBA, x, y int) color.RGBA {
	return img.RGBAAt(x, y)
}

func TestInitialComposePublishesAllLayers(t *testing.T) {
	l, _, _ := newTestLoop(t)
	settle(t, l)

	snap := l.Snapshot()
	if snap.Err != nil {
		t.Fatalf("snapshot error: %v", snap.Err)
	}
	for _, layer := range render.AllLayers {
		if snap.Layers[layer] == nil {
			t.Errorf("layer %s not composed", layer)
		}
	}
	if got := snap.World.Bounds().Size(); got != image.Pt(64, 32) {
		t.Fatalf("world size = %v, want 64x32", got)
	}
	// Second tile is megatile 1, filled with 40.
	if c := rgbaAt(snap.Layers[render.LayerTerrain], 50, 20); c != (color.RGBA{40, 40, 40, 255}) {
		t.Errorf("terrain pixel = %v, want {40 40 40 255}", c)
	}
	if c := rgbaAt(snap.Layers[render.LayerUnits], 16, 16); c != (color.RGBA{255, 0, 0, 255}) {
		t.Errorf("unit pixel = %v, want red", c)
	}
	if c := rgbaAt(snap.World, 50, 20); c != (color.RGBA{40, 40, 40, 255}) {
		t.Errorf("world pixel = %v, want terrain", c)
	}
}

func TestEditRecomposesOnlyAffectedLayers(t *testing.T) {
	l, _, _ := newTestLoop(t)
	settle(t, l)
	before := l.Snapshot()

	res := make(chan error, 1)
	l.Edits() <- Edit{Kind: EditSet, Path: maps.Path{"placed_unit", 0, "transform", "position", "x"}, Value: 48, Result: res}
	settle(t, l)
	if err := <-res; err != nil {
		t.Fatalf("edit: %v", err)
	}
	after := l.Snapshot()

	same := []render.Layer{render.LayerTerrain, render.LayerSprites, render.LayerLocations}
	for _, layer := range same {
		if after.Layers[layer] != before.Layers[layer] {
			t.Errorf("layer %s was recomposed", layer)
		}
	}
	for _, layer := range []render.Layer{render.LayerUnits, render.LayerSelection} {
		if after.Layers[layer] == before.Layers[layer] {
			t.Errorf("layer %s was not recomposed", layer)
		}
	}
	if c := rgbaAt(after.Layers[render.LayerUnits], 48, 16); c.A != 255 {
		t.Errorf("moved unit not drawn at new position")
	}
	if c := rgbaAt(after.Layers[render.LayerUnits], 16, 16); c.A != 0 {
		t.Errorf("unit still drawn at old position")
	}

	// The previously published document is untouched.
	if x := before.Doc.Units[0].Transform.Position.X; x != 16 {
		t.Errorf("old snapshot unit x = %d, want 16", x)
	}
	if after.Frame <= before.Frame {
		t.Errorf("frame did not advance: %d -> %d", before.Frame, after.Frame)
	}
}

func TestRejectedEdit(t *testing.T) {
	l, _, _ := newTestLoop(t)
	settle(t, l)
	before := l.Snapshot()

	tests := []struct {
		name string
		edit Edit
	}{
		{"missing field", Edit{Kind: EditSet, Path: maps.Path{"placed_unit", 0, "nope"}, Value: 1}},
		{"index out of range", Edit{Kind: EditSet, Path: maps.Path{"placed_unit", 9, "name"}, Value: "x"}},
		{"select out of range", Edit{Kind: EditSelect, Index: 5}},
		{"replace nil", Edit{Kind: EditReplace}},
		{"unknown kind", Edit{Kind: EditKind(99)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.edit.Result = make(chan error, 1)
			l.Edits() <- tt.edit
			l.tick(context.Background())
			if err := <-tt.edit.Result; err == nil {
				t.Fatal("expected error")
			}
		})
	}
	if l.Snapshot().Doc != before.Doc {
		t.Error("rejected edits replaced the document")
	}
}

func TestSelectAt(t *testing.T) {
	l, _, _ := newTestLoop(t)
	settle(t, l)

	l.Edits() <- Edit{Kind: EditSelectAt, X: 13, Y: 19}
	settle(t, l)
	snap := l.Snapshot()
	u, ok := snap.SelectedUnit()
	if !ok || u.Name != "Marine" {
		t.Fatalf("selected = %d (%+v), want Marine", snap.Selected, u)
	}
	// Outline drawn at the box's top-left corner.
	if c := rgbaAt(snap.Layers[render.LayerSelection], 12, 12); c.A == 0 {
		t.Error("selection outline missing")
	}

	l.Edits() <- Edit{Kind: EditSelectAt, X: 60, Y: 30}
	settle(t, l)
	if sel := l.Snapshot().Selected; sel != -1 {
		t.Errorf("selected = %d after clicking empty ground, want -1", sel)
	}
}

func TestFailedLayerKeepsPreviousSurface(t *testing.T) {
	l, store, _ := newTestLoop(t)
	settle(t, l)
	terrain := l.Snapshot().Layers[render.LayerTerrain]

	store.fail.Store(true)
	l.Edits() <- Edit{Kind: EditReloadTileset}
	settle(t, l)

	snap := l.Snapshot()
	if snap.Err == nil {
		t.Fatal("expected compose error in snapshot")
	}
	if snap.Layers[render.LayerTerrain] != terrain {
		t.Error("terrain surface replaced after failed compose")
	}

	// A failed layer is not retried until its inputs change.
	calls := store.tilesetCalls.Load()
	for i := 0; i < 5; i++ {
		l.tick(context.Background())
	}
	if got := store.tilesetCalls.Load(); got != calls {
		t.Errorf("tileset fetched %d more times without an edit", got-calls)
	}

	store.fail.Store(false)
	l.Edits() <- Edit{Kind: EditReloadTileset}
	settle(t, l)
	snap = l.Snapshot()
	if snap.Err != nil {
		t.Fatalf("error after recovery: %v", snap.Err)
	}
	if snap.Layers[render.LayerTerrain] == terrain {
		t.Error("terrain not recomposed after reload")
	}
}

func TestInterruptedFetchIsRetried(t *testing.T) {
	l, _, images := newTestLoop(t)
	settle(t, l)
	before := l.Snapshot().Layers[render.LayerUnits]

	images.timeouts.Store(1)
	calls := images.calls.Load()
	l.Edits() <- Edit{Kind: EditSet, Path: maps.Path{"placed_unit", 0, "transform", "position", "x"}, Value: 48}
	settle(t, l)

	if got := images.calls.Load() - calls; got < 2 {
		t.Fatalf("image fetched %d times, want a retry after the timeout", got)
	}
	snap := l.Snapshot()
	if snap.Err != nil {
		t.Errorf("snapshot error after retry: %v", snap.Err)
	}
	units := snap.Layers[render.LayerUnits]
	if units == before {
		t.Fatal("units layer not recomposed")
	}
	if c := rgbaAt(units, 48, 16); c.A != 255 {
		t.Error("unit missing after the interrupted fetch was retried")
	}
}

func TestSupersededPassNeverCommits(t *testing.T) {
	l, _, images := newTestLoop(t)
	settle(t, l)

	images.setDelay(200 * time.Millisecond)
	l.Edits() <- Edit{Kind: EditSet, Path: maps.Path{"placed_unit", 0, "transform", "position", "x"}, Value: 40}
	l.tick(context.Background())
	first := l.inflight
	if first == 0 {
		t.Fatal("no pass started")
	}

	images.setDelay(10 * time.Millisecond)
	l.Edits() <- Edit{Kind: EditSet, Path: maps.Path{"placed_unit", 0, "transform", "position", "x"}, Value: 56}
	l.tick(context.Background())
	if l.inflight == first {
		t.Fatal("second edit did not supersede the in-flight pass")
	}
	settle(t, l)

	units := l.Snapshot().Layers[render.LayerUnits]
	if c := rgbaAt(units, 56, 16); c.A != 255 {
		t.Error("latest edit not drawn")
	}
	if c := rgbaAt(units, 40, 16); c.A != 0 {
		t.Error("superseded edit was drawn")
	}

	if l.commit(passResult{id: first}) {
		t.Error("stale pass result was committed")
	}
}

func TestReplaceDocument(t *testing.T) {
	l, _, _ := newTestLoop(t)
	settle(t, l)

	doc := testDoc()
	doc.Name = "Other"
	doc.Units = nil
	if err := l.apply(context.Background(), Edit{Kind: EditReplace, Doc: doc}); err != nil {
		t.Fatal(err)
	}
	settle(t, l)
	snap := l.Snapshot()
	if snap.Doc.Name != "Other" {
		t.Errorf("doc name = %q", snap.Doc.Name)
	}
	if c := rgbaAt(snap.Layers[render.LayerUnits], 16, 16); c.A != 0 {
		t.Error("units layer still shows the old document")
	}

	bad := testDoc()
	bad.Terrain.Size.Width = 3
	if err := l.apply(context.Background(), Edit{Kind: EditReplace, Doc: bad}); err == nil {
		t.Error("expected validation error for inconsistent terrain")
	}
}

// tickUntil ticks the loop until cond holds.
func tickUntil(t *testing.T, l *Loop, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		l.tick(context.Background())
		time.Sleep(time.Millisecond)
	}
}

func TestMissingDocumentIsAnErrorState(t *testing.T) {
	store := newMemStore(t)
	l := NewLoop(NewWorkspace(store, &slowImages{}, nil), nil, 60)

	errDown := errors.New("GET /api/v1/map/test: 500")
	var down atomic.Bool
	down.Store(true)
	var loads atomic.Int32
	l.UseLoader(func(ctx context.Context) (*maps.Document, error) {
		loads.Add(1)
		if down.Load() {
			return nil, errDown
		}
		return testDoc(), nil
	})
	l.FailDocument(errors.New("startup fetch failed"))

	snap := l.Snapshot()
	if snap.Doc != nil || snap.Err == nil {
		t.Fatalf("initial snapshot doc=%v err=%v, want no document and an error", snap.Doc, snap.Err)
	}

	tests := []Edit{
		{Kind: EditSelect, Index: 0},
		{Kind: EditSelectAt, X: 1, Y: 1},
		{Kind: EditSet, Path: maps.Path{"name"}, Value: "x"},
		{Kind: EditReloadTileset},
	}
	for _, e := range tests {
		if err := l.apply(context.Background(), e); !errors.Is(err, ErrNoDocument) {
			t.Errorf("edit kind %d err = %v, want ErrNoDocument", e.Kind, err)
		}
	}

	l.Edits() <- Edit{Kind: EditReloadDocument}
	tickUntil(t, l, func() bool { return loads.Load() == 1 && !l.loading })
	snap = l.Snapshot()
	if snap.Doc != nil || snap.World != nil {
		t.Fatal("failed reload produced a document")
	}
	if !errors.Is(snap.Err, errDown) {
		t.Fatalf("err = %v, want the fetch error", snap.Err)
	}

	down.Store(false)
	l.Edits() <- Edit{Kind: EditReloadDocument}
	tickUntil(t, l, func() bool { return l.Snapshot().Doc != nil })
	settle(t, l)

	snap = l.Snapshot()
	if snap.Err != nil {
		t.Errorf("error after successful reload: %v", snap.Err)
	}
	if snap.Doc.Name != "Test" || snap.Layers[render.LayerTerrain] == nil {
		t.Errorf("reloaded snapshot = %q, terrain %v", snap.Doc.Name, snap.Layers[render.LayerTerrain] != nil)
	}
	if got := loads.Load(); got != 2 {
		t.Errorf("loader called %d times, want 2", got)
	}
}

func TestReloadDocumentFailureKeepsCurrent(t *testing.T) {
	l, _, _ := newTestLoop(t)
	l.UseLoader(func(ctx context.Context) (*maps.Document, error) {
		return nil, assets.ErrNotFound
	})
	settle(t, l)
	before := l.Snapshot()

	l.Edits() <- Edit{Kind: EditReloadDocument}
	tickUntil(t, l, func() bool { return l.Snapshot().Err != nil })
	snap := l.Snapshot()
	if snap.Doc != before.Doc {
		t.Error("failed reload replaced the document")
	}
	if !errors.Is(snap.Err, assets.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", snap.Err)
	}

	if err := l.apply(context.Background(), Edit{Kind: EditReplace, Doc: testDoc()}); err != nil {
		t.Fatal(err)
	}
	settle(t, l)
	if err := l.Snapshot().Err; err != nil {
		t.Errorf("error after replacing the document: %v", err)
	}
}

func TestReloadDocumentWithoutLoader(t *testing.T) {
	l, _, _ := newTestLoop(t)
	if err := l.apply(context.Background(), Edit{Kind: EditReloadDocument}); err == nil {
		t.Error("expected error without a document source")
	}
}

func TestViewerDropsFramesWhenSlow(t *testing.T) {
	l, _, _ := newTestLoop(t)
	id, ch := l.AddViewer("ssh")
	if len(ch) != 1 {
		t.Fatalf("new viewer has %d snapshots queued, want 1", len(ch))
	}
	if l.ViewerCount() != 1 {
		t.Fatalf("ViewerCount = %d", l.ViewerCount())
	}

	for i := 0; i < 5; i++ {
		l.publish()
	}
	if len(ch) != ViewerChanSize {
		t.Errorf("queued = %d, want %d", len(ch), ViewerChanSize)
	}

	l.RemoveViewer(id)
	for range ch {
	}
	if l.ViewerCount() != 0 {
		t.Errorf("ViewerCount = %d after remove", l.ViewerCount())
	}
}

func TestRunApply(t *testing.T) {
	l, _, _ := newTestLoop(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	if err := l.Apply(ctx, Edit{Kind: EditSelect, Index: 0}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := l.Apply(ctx, Edit{Kind: EditSelect, Index: 3}); err == nil {
		t.Error("Apply out-of-range select: expected error")
	}

	l.Stop()
	<-done
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	if err := l.Apply(ctx2, Edit{Kind: EditSelect}); err == nil {
		t.Error("Apply after Stop succeeded")
	}
}

func TestWorkspaceCompose(t *testing.T) {
	store := newMemStore(t)
	ws := NewWorkspace(store, &slowImages{}, nil)

	set, err := ws.Compose(context.Background(), testDoc())
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	for _, layer := range render.AllLayers {
		if set[layer] == nil {
			t.Errorf("layer %s missing", layer)
		}
	}

	store.fail.Store(true)
	ws.ForgetTileset("jungle")
	set, err = ws.Compose(context.Background(), testDoc())
	if err == nil {
		t.Fatal("expected terrain error")
	}
	if set[render.LayerTerrain] != nil || set[render.LayerUnits] == nil {
		t.Error("a failed layer should be nil while others still compose")
	}
}

func TestFrameTiming(t *testing.T) {
	if got := FrameInterval(50); got != 20*time.Millisecond {
		t.Errorf("FrameInterval(50) = %v", got)
	}
	if got := FrameInterval(0); got != time.Second/DefaultFrameRate {
		t.Errorf("FrameInterval(0) = %v", got)
	}
	if got := SecsToFrames(0.001, 60); got != 1 {
		t.Errorf("SecsToFrames rounds down to %d, want 1", got)
	}
	if got := SecsToFrames(2, 30); got != 60 {
		t.Errorf("SecsToFrames(2, 30) = %d", got)
	}
}
