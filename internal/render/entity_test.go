package render

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"sync"
	"testing"
	"time"

	"webditor/internal/maps"
)

type fakeEntry struct {
	bundle *Bundle
	err    error
	delay  time.Duration
}

type fakeImages struct {
	mu      sync.Mutex
	entries map[int]fakeEntry
	calls   int
}

func (f *fakeImages) Bundle(ctx context.Context, ref maps.ImageRef) (*Bundle, error) {
	f.mu.Lock()
	f.calls++
	e, ok := f.entries[ref.Index]
	f.mu.Unlock()
	if !ok {
		return nil, nil
	}
	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return e.bundle, e.err
}

func solidBundle(size int, c color.RGBA) *Bundle {
	return &Bundle{
		Diffuse: solid(size, size, c),
		Meta:    FrameMeta{0: {Width: size, Height: size}},
	}
}

func unitAt(index, x, y int) maps.Placed {
	return maps.Placed{
		Image:     maps.ImageRef{Version: "sd", Index: index},
		Transform: maps.Transform{Position: maps.Position{X: x, Y: y}},
	}
}

var (
	red   = color.RGBA{255, 0, 0, 255}
	blue  = color.RGBA{0, 0, 255, 255}
	green = color.RGBA{0, 255, 0, 255}
)

func TestCompositeUnitsCentersFrame(t *testing.T) {
	src := &fakeImages{entries: map[int]fakeEntry{1: {bundle: solidBundle(8, red)}}}
	c := &EntityCompositor{Images: src, Palette: DefaultPalette()}

	img, err := c.CompositeUnits(context.Background(), 64, 64, []maps.Placed{unitAt(1, 16, 16)})
	if err != nil {
		t.Fatalf("CompositeUnits: %v", err)
	}
	if img.Bounds().Dx() != 64 || img.Bounds().Dy() != 64 {
		t.Fatalf("bounds = %v", img.Bounds())
	}
	// 8x8 frame anchored at (16-4, 16-4).
	if img.RGBAAt(12, 12) != red || img.RGBAAt(19, 19) != red {
		t.Error("frame not drawn at position - size/2")
	}
	if img.RGBAAt(11, 12).A != 0 || img.RGBAAt(20, 19).A != 0 {
		t.Error("frame drawn outside its centered box")
	}
}

func TestCompositeDrawsInListOrder(t *testing.T) {
	// The first entity's fetch finishes last; it must still be drawn first.
	src := &fakeImages{entries: map[int]fakeEntry{
		1: {bundle: solidBundle(8, red), delay: 30 * time.Millisecond},
		2: {bundle: solidBundle(8, blue)},
	}}
	c := &EntityCompositor{Images: src}

	img, err := c.CompositeSprites(context.Background(), 64, 64, []maps.Placed{unitAt(1, 16, 16), unitAt(2, 18, 18)})
	if err != nil {
		t.Fatal(err)
	}
	if got := img.RGBAAt(17, 17); got != blue {
		t.Errorf("overlap pixel = %v, want later entity (blue)", got)
	}
	if got := img.RGBAAt(12, 12); got != red {
		t.Errorf("first entity pixel = %v, want red", got)
	}
}

func TestCompositeSkipsBrokenEntities(t *testing.T) {
	noFrame := solidBundle(8, green)
	noFrame.Meta = FrameMeta{5: {Width: 8, Height: 8}}
	src := &fakeImages{entries: map[int]fakeEntry{
		1: {bundle: solidBundle(8, red)},
		2: {err: errors.New("connection reset")},
		3: {bundle: noFrame},
		4: {bundle: &Bundle{Meta: FrameMeta{0: {Width: 8, Height: 8}}}},
	}}
	c := &EntityCompositor{Images: src}

	list := []maps.Placed{
		unitAt(2, 40, 40), // fetch error
		unitAt(3, 40, 40), // frame missing
		unitAt(4, 40, 40), // no diffuse
		unitAt(9, 40, 40), // unknown image
		unitAt(1, 16, 16),
	}
	img, err := c.CompositeUnits(context.Background(), 64, 64, list)
	if err != nil {
		t.Fatalf("per-entity failures should not fail the layer: %v", err)
	}
	if img.RGBAAt(40, 40).A != 0 {
		t.Error("broken entity drew something")
	}
	if img.RGBAAt(16, 16) != red {
		t.Error("healthy entity missing")
	}
	if src.calls != len(list) {
		t.Errorf("fetched %d bundles, want %d", src.calls, len(list))
	}
}

func TestCompositeAppliesTeamColor(t *testing.T) {
	b := solidBundle(4, color.RGBA{128, 64, 0, 255})
	mask := NewSurface(4, 4)
	fill(mask, mask.Bounds(), color.RGBA{255, 255, 255, 255})
	b.TeamColor = mask
	src := &fakeImages{entries: map[int]fakeEntry{1: {bundle: b}}}
	c := &EntityCompositor{Images: src, Palette: DefaultPalette()}

	u := unitAt(1, 8, 8)
	u.Owner = maps.Owner{RGBColor: []int{255, 0, 0}}
	img, err := c.CompositeUnits(context.Background(), 16, 16, []maps.Placed{u})
	if err != nil {
		t.Fatal(err)
	}
	if got := img.RGBAAt(8, 8); got != (color.RGBA{128, 0, 0, 255}) {
		t.Errorf("team colored pixel = %v, want {128 0 0 255}", got)
	}

	// Unknown color slot draws the plain diffuse frame.
	u.Owner = maps.Owner{Color: 99}
	img, err = c.CompositeUnits(context.Background(), 16, 16, []maps.Placed{u})
	if err != nil {
		t.Fatal(err)
	}
	if got := img.RGBAAt(8, 8); got != (color.RGBA{128, 64, 0, 255}) {
		t.Errorf("pixel = %v, want diffuse", got)
	}
}

func TestCompositeCancelled(t *testing.T) {
	src := &fakeImages{entries: map[int]fakeEntry{1: {bundle: solidBundle(8, red)}}}
	c := &EntityCompositor{Images: src}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	img, err := c.CompositeUnits(ctx, 64, 64, []maps.Placed{unitAt(1, 16, 16)})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if img != nil {
		t.Error("cancelled pass returned a surface")
	}
}

func TestCompositeFailsOnFetchContextError(t *testing.T) {
	for _, fetchErr := range []error{context.Canceled, context.DeadlineExceeded} {
		t.Run(fetchErr.Error(), func(t *testing.T) {
			src := &fakeImages{entries: map[int]fakeEntry{
				1: {bundle: solidBundle(8, red)},
				2: {err: fmt.Errorf("fetch: %w", fetchErr)},
			}}
			c := &EntityCompositor{Images: src}

			img, err := c.CompositeUnits(context.Background(), 64, 64, []maps.Placed{unitAt(1, 16, 16), unitAt(2, 40, 40)})
			if !errors.Is(err, fetchErr) {
				t.Fatalf("err = %v, want %v", err, fetchErr)
			}
			if img != nil {
				t.Error("layer with an interrupted fetch returned a surface")
			}
		})
	}
}
