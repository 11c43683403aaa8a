package main

import (
	"context"
	"testing"

	"webditor/internal/assets"
	"webditor/internal/editor"
	"webditor/internal/maps"
	"webditor/internal/render"
)

func TestGenerateDocument(t *testing.T) {
	o := options{seed: 42, w: 32, h: 24, name: "Test", tileset: "synthetic", players: 3, units: 2, sprites: 0.1, version: "sd"}
	doc, err := generateDocument(o)
	if err != nil {
		t.Fatalf("generateDocument: %v", err)
	}
	if len(doc.Units) != 6 {
		t.Errorf("units = %d, want 6", len(doc.Units))
	}
	// One start per player plus the reserved whole-map location.
	if len(doc.Locations) != 4 || doc.Locations[3].ID != maps.NoLocationID {
		t.Errorf("locations = %+v", doc.Locations)
	}
	for _, u := range doc.Units {
		if u.Owner.Color < 0 || u.Owner.Color >= 3 {
			t.Errorf("unit owner color %d", u.Owner.Color)
		}
	}

	again, err := generateDocument(o)
	if err != nil {
		t.Fatal(err)
	}
	if again.LayerVersions() != doc.LayerVersions() {
		t.Error("same seed produced a different document")
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		w, h    int
		wantErr bool
	}{
		{"64x48", 64, 48, false},
		{"8x8", 8, 8, false},
		{"7x8", 0, 0, true},
		{"64", 0, 0, true},
		{"axb", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			w, h, err := parseSize(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if w != tt.w || h != tt.h {
				t.Errorf("size = %dx%d", w, h)
			}
		})
	}
}

// TestGeneratedTreeRenders writes a full asset tree and composites it
// through the same workspace the server uses.
func TestGeneratedTreeRenders(t *testing.T) {
	d := assets.Dir{Root: t.TempDir()}
	o := options{seed: 7, w: 16, h: 16, name: "Tree", tileset: "synthetic", players: 2, units: 3, sprites: 0.2, version: "sd"}
	if err := run(d, o); err != nil {
		t.Fatalf("run: %v", err)
	}

	ctx := context.Background()
	doc, err := d.FetchDocument(ctx, "Tree")
	if err != nil {
		t.Fatal(err)
	}
	images, err := assets.NewImageCache(d, 1<<24)
	if err != nil {
		t.Fatal(err)
	}
	defer images.Close()
	ws := editor.NewWorkspace(d, images, nil)

	set, err := ws.Compose(ctx, doc)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	terrain := set[render.LayerTerrain]
	if terrain == nil || terrain.Bounds().Dx() != 16*render.TileSize {
		t.Fatal("terrain layer missing or wrong size")
	}
	if terrain.RGBAAt(5, 5).A != 255 {
		t.Error("terrain not opaque")
	}

	u := doc.Units[0]
	if set[render.LayerUnits].RGBAAt(u.Transform.Position.X, u.Transform.Position.Y).A == 0 {
		t.Error("first unit not drawn at its position")
	}

	m, err := d.FetchManifest(ctx, "sd")
	if err != nil {
		t.Fatal(err)
	}
	if !m[0].TeamColor || m[100].TeamColor {
		t.Errorf("manifest team color flags wrong: %+v", m)
	}
}
