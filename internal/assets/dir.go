package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"webditor/internal/maps"
)

// Dir serves assets from a local directory laid out like the backend's
// output:
//
//	terrain/<tileset>/megatile_color.gz
//	terrain/<tileset>/cv5_group.json
//	maps/<name>.json
//	anim/<version>/manifest.json
//	anim/<version>/<index>/{diffuse.png,team_color.png,meta.json}
type Dir struct {
	Root string
}

// TilesetPath returns the atlas file path for a tileset.
func (d Dir) TilesetPath(name string) string {
	return filepath.Join(d.Root, "terrain", name, "megatile_color.gz")
}

// GroupTablePath returns the group table file path for a tileset.
func (d Dir) GroupTablePath(name string) string {
	return filepath.Join(d.Root, "terrain", name, "cv5_group.json")
}

// MapsDir returns the directory holding map documents.
func (d Dir) MapsDir() string {
	return filepath.Join(d.Root, "maps")
}

// DocumentPath returns the file path of a named map document.
func (d Dir) DocumentPath(name string) string {
	return filepath.Join(d.MapsDir(), name+".json")
}

// ImageDir returns the directory of one image bundle.
func (d Dir) ImageDir(key ImageKey) string {
	return filepath.Join(d.Root, "anim", key.Version, strconv.Itoa(key.Index))
}

// ManifestPath returns the manifest file path for a version.
func (d Dir) ManifestPath(version string) string {
	return filepath.Join(d.Root, "anim", version, "manifest.json")
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return data, err
}

func (d Dir) FetchTileset(_ context.Context, name string) ([]byte, error) {
	return readFile(d.TilesetPath(name))
}

func (d Dir) FetchGroupTable(_ context.Context, name string) ([]byte, error) {
	return readFile(d.GroupTablePath(name))
}

func (d Dir) FetchDocument(_ context.Context, name string) (*maps.Document, error) {
	path := d.DocumentPath(name)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return maps.LoadDocument(path)
}

func (d Dir) FetchImage(_ context.Context, key ImageKey) (*RawBundle, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	dir := d.ImageDir(key)
	diffuse, err := readFile(filepath.Join(dir, "diffuse.png"))
	if err != nil {
		return nil, err
	}
	meta, err := readFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return nil, err
	}
	team, err := readFile(filepath.Join(dir, "team_color.png"))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return &RawBundle{Diffuse: diffuse, TeamColor: team, Meta: meta}, nil
}

func (d Dir) FetchManifest(_ context.Context, version string) (Manifest, error) {
	if !ValidVersion(version) {
		return nil, fmt.Errorf("%w: version %q", ErrInvalidKey, version)
	}
	data, err := readFile(d.ManifestPath(version))
	if err != nil {
		return nil, err
	}
	return ParseManifest(data)
}

// WriteImage stores a bundle under the directory layout, creating
// directories as needed. A nil TeamColor writes no mask file.
func (d Dir) WriteImage(key ImageKey, raw *RawBundle) error {
	if err := key.Validate(); err != nil {
		return err
	}
	dir := d.ImageDir(key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	files := map[string][]byte{
		"diffuse.png": raw.Diffuse,
		"meta.json":   raw.Meta,
	}
	if raw.TeamColor != nil {
		files["team_color.png"] = raw.TeamColor
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// WriteTileset stores a compressed atlas and its group table JSON.
func (d Dir) WriteTileset(name string, compressed, groupJSON []byte) error {
	if err := os.MkdirAll(filepath.Dir(d.TilesetPath(name)), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(d.TilesetPath(name), compressed, 0o644); err != nil {
		return err
	}
	return os.WriteFile(d.GroupTablePath(name), groupJSON, 0o644)
}

// WriteManifest stores the image manifest for a version.
func (d Dir) WriteManifest(version string, m Manifest) error {
	if !ValidVersion(version) {
		return fmt.Errorf("%w: version %q", ErrInvalidKey, version)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(d.ManifestPath(version)), 0o755); err != nil {
		return err
	}
	return os.WriteFile(d.ManifestPath(version), data, 0o644)
}

// WriteDocument stores a map document under maps/<name>.json.
func (d Dir) WriteDocument(doc *maps.Document) error {
	if err := os.MkdirAll(d.MapsDir(), 0o755); err != nil {
		return err
	}
	return maps.SaveDocument(d.DocumentPath(doc.Name), doc)
}
