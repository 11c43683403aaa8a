package main

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"webditor/internal/assets"
	"webditor/internal/config"
	"webditor/internal/editor"
	"webditor/internal/log"
	"webditor/internal/maps"
	"webditor/internal/watch"
)

func init() {
	log.SetOutput(io.Discard)
}

func testConfig(dir string) *config.Config {
	cfg := &config.Config{}
	cfg.Assets.Dir = dir
	cfg.Tileset.Name = "jungle"
	cfg.Render.FrameRate = 100
	return cfg
}

func TestOpenLoopFetchFailureIsNotADefaultMap(t *testing.T) {
	dir := t.TempDir()
	store := assets.Dir{Root: dir}
	cfg := testConfig(dir)
	cfg.Map.Name = "m"
	ws := editor.NewWorkspace(store, nil, nil)

	loop, doc := openLoop(context.Background(), cfg, ws)
	if doc != nil {
		t.Fatalf("doc = %q, want none after a failed fetch", doc.Name)
	}
	snap := loop.Snapshot()
	if snap.Doc != nil {
		t.Fatalf("loop is editing %q", snap.Doc.Name)
	}
	if !errors.Is(snap.Err, assets.ErrNotFound) {
		t.Fatalf("snapshot err = %v, want ErrNotFound", snap.Err)
	}

	// The document appears; a reload picks it up.
	want := maps.DefaultDocument("jungle")
	want.Name = "m"
	if err := store.WriteDocument(want); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go loop.Run(ctx)
	defer loop.Stop()
	if err := loop.Submit(ctx, editor.Edit{Kind: editor.EditReloadDocument}); err != nil {
		t.Fatal(err)
	}
	for loop.Snapshot().Doc == nil {
		if ctx.Err() != nil {
			t.Fatal("document never loaded after reload")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := loop.Snapshot().Doc.Name; got != "m" {
		t.Errorf("loaded doc = %q, want m", got)
	}
}

func TestOpenLoopWithoutMapStartsNewMap(t *testing.T) {
	cfg := testConfig(t.TempDir())
	loop, doc := openLoop(context.Background(), cfg, editor.NewWorkspace(assets.Dir{Root: cfg.Assets.Dir}, nil, nil))
	if doc == nil || doc.Terrain.Tileset != "jungle" {
		t.Fatalf("doc = %+v, want a new jungle map", doc)
	}
	if snap := loop.Snapshot(); snap.Doc != doc || snap.Err != nil {
		t.Errorf("snapshot doc=%v err=%v", snap.Doc, snap.Err)
	}
}

func TestReloadEdit(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "maps", "m.json")
	current := maps.DefaultDocument("jungle")

	tests := []struct {
		name     string
		mapName  string
		mapFile  string
		change   watch.Change
		wantKind editor.EditKind
		wantOK   bool
	}{
		{"tileset in use", "m", "", watch.Change{Kind: watch.KindTileset, Name: "jungle"}, editor.EditReloadTileset, true},
		{"other tileset", "m", "", watch.Change{Kind: watch.KindTileset, Name: "ice"}, 0, false},
		{"image", "m", "", watch.Change{Kind: watch.KindImage, Name: "sd"}, editor.EditReloadImages, true},
		{"named document", "m", "", watch.Change{Kind: watch.KindDocument, Name: "m", Path: file}, editor.EditReloadDocument, true},
		{"other document", "m", "", watch.Change{Kind: watch.KindDocument, Name: "x"}, 0, false},
		{"map file in tree", "", file, watch.Change{Kind: watch.KindDocument, Name: "m", Path: file}, editor.EditReloadDocument, true},
		{"map file elsewhere", "", file, watch.Change{Kind: watch.KindOther, Path: file}, editor.EditReloadDocument, true},
		{"unrelated file", "", file, watch.Change{Kind: watch.KindOther, Path: filepath.Join(root, "x.json")}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(root)
			cfg.Map.Name, cfg.Map.File = tt.mapName, tt.mapFile
			e, ok := reloadEdit(tt.change, current, cfg)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && e.Kind != tt.wantKind {
				t.Errorf("kind = %d, want %d", e.Kind, tt.wantKind)
			}
		})
	}
}
