package maps

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Parse decodes and validates a JSON map document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse map JSON: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks the terrain grid against its declared size.
func (d *Document) Validate() error {
	t := d.Terrain
	if t.Size.Width < 0 || t.Size.Height < 0 {
		return fmt.Errorf("negative terrain size %dx%d", t.Size.Width, t.Size.Height)
	}
	if len(t.Tiles) != t.Size.Height {
		return fmt.Errorf("tile rows %d != declared height %d", len(t.Tiles), t.Size.Height)
	}
	for y, row := range t.Tiles {
		if len(row) != t.Size.Width {
			return fmt.Errorf("row %d has %d tiles, expected %d", y, len(row), t.Size.Width)
		}
	}
	return nil
}

// LoadDocument reads a JSON map document from disk.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read map file: %w", err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if doc.Name == "" {
		doc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return doc, nil
}

// SaveDocument writes a document as indented JSON.
func SaveDocument(path string, doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode map %q: %w", doc.Name, err)
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadDocuments scans a directory for *.json files, loads each as a
// Document, and returns them indexed by Name.
func LoadDocuments(dir string) (map[string]*Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read maps directory: %w", err)
	}

	docs := make(map[string]*Document)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		doc, err := LoadDocument(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", entry.Name(), err)
		}
		if _, exists := docs[doc.Name]; exists {
			return nil, fmt.Errorf("duplicate map name %q in %s", doc.Name, entry.Name())
		}
		docs[doc.Name] = doc
	}
	return docs, nil
}

// DefaultDocument returns a small all-zero terrain map with no entities,
// used when no document is available.
func DefaultDocument(tileset string) *Document {
	w, h := 64, 64
	tiles := make([][]TileRef, h)
	for y := range tiles {
		tiles[y] = make([]TileRef, w)
	}
	return &Document{
		Name: "Default",
		Terrain: Terrain{
			Tileset: tileset,
			Size:    Size{Width: w, Height: h},
			Tiles:   tiles,
		},
		Units:     []Placed{},
		Sprites:   []Placed{},
		Locations: []Location{},
	}
}
