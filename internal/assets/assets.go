// Package assets fetches tilesets, map documents and image bundles from the
// editor backend or from a local directory with the same layout, and caches
// decoded image bundles.
package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"webditor/internal/maps"
)

var (
	// ErrNotFound reports a resource the store does not have.
	ErrNotFound = errors.New("assets: not found")
	// ErrInvalidKey reports an image key outside the served domain.
	ErrInvalidKey = errors.New("assets: invalid image key")
)

const (
	// MaxImageIndex is the largest valid image index.
	MaxImageIndex = 998
)

// Versions lists the served image versions.
var Versions = []string{"sd", "hd"}

// ImageKey identifies one image bundle.
type ImageKey struct {
	Version string
	Index   int
}

// KeyOf converts a document image reference to a key.
func KeyOf(ref maps.ImageRef) ImageKey {
	return ImageKey{Version: ref.Version, Index: ref.Index}
}

// Validate checks the version and index domain.
func (k ImageKey) Validate() error {
	if !ValidVersion(k.Version) {
		return fmt.Errorf("%w: version %q", ErrInvalidKey, k.Version)
	}
	if k.Index < 0 || k.Index > MaxImageIndex {
		return fmt.Errorf("%w: index %d outside 0..%d", ErrInvalidKey, k.Index, MaxImageIndex)
	}
	return nil
}

func (k ImageKey) String() string {
	return k.Version + "/" + strconv.Itoa(k.Index)
}

// ValidVersion reports whether v is a served image version.
func ValidVersion(v string) bool {
	for _, s := range Versions {
		if v == s {
			return true
		}
	}
	return false
}

// RawBundle holds the undecoded files of one image bundle. TeamColor is nil
// when the image has no team-color layer.
type RawBundle struct {
	Diffuse   []byte
	TeamColor []byte
	Meta      []byte
}

// ManifestEntry records which layers an image index provides.
type ManifestEntry struct {
	Diffuse   bool `json:"diffuse"`
	TeamColor bool `json:"team_color"`
}

// Manifest maps image index to its available layers.
type Manifest map[int]ManifestEntry

// ParseManifest decodes manifest.json.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return m, nil
}

// Store is a source of raw assets. Client and Dir implement it.
type Store interface {
	FetchTileset(ctx context.Context, name string) ([]byte, error)
	FetchGroupTable(ctx context.Context, name string) ([]byte, error)
	FetchDocument(ctx context.Context, name string) (*maps.Document, error)
	FetchImage(ctx context.Context, key ImageKey) (*RawBundle, error)
	FetchManifest(ctx context.Context, version string) (Manifest, error)
}
