// Package tileset decodes megatile atlases and resolves terrain tile
// references to megatile indices.
package tileset

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

const (
	// TileSize is the edge length of a megatile in pixels.
	TileSize = 32
	// TileStride is the byte length of one RGB megatile in the atlas.
	TileStride = TileSize * TileSize * 3
)

var (
	// ErrDecode reports a tileset payload that could not be decompressed.
	ErrDecode = errors.New("tileset: decode failed")
	// ErrIndex reports a group, id or megatile index outside the loaded data.
	// It means the tileset and the group table do not belong together.
	ErrIndex = errors.New("tileset: index out of range")
)

// Atlas is the decompressed megatile data: consecutive RGB tiles of
// TileStride bytes each.
type Atlas []byte

// Decode decompresses a gzip tileset payload into an Atlas.
func Decode(compressed []byte) (Atlas, error) {
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return Atlas(data), nil
}

// Encode gzips an atlas into the payload format Decode reads.
func Encode(a Atlas) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(a); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// TileCount returns the number of whole megatiles in the atlas.
func (a Atlas) TileCount() int {
	return len(a) / TileStride
}

// Tile returns the RGB bytes of megatile index. The slice aliases the atlas.
func (a Atlas) Tile(index int) ([]byte, error) {
	if index < 0 || index >= a.TileCount() {
		return nil, fmt.Errorf("%w: megatile %d, atlas holds %d", ErrIndex, index, a.TileCount())
	}
	off := index * TileStride
	return a[off : off+TileStride : off+TileStride], nil
}

// GroupTable maps a terrain tile's (group, id) pair to a megatile index.
type GroupTable [][]int

// ParseGroupTable decodes the JSON number[][] form of a group table.
func ParseGroupTable(data []byte) (GroupTable, error) {
	var t GroupTable
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse group table: %w", err)
	}
	return t, nil
}

// Resolve returns the megatile index for (group, id). Out-of-range input is
// an error and is never clamped.
func (t GroupTable) Resolve(group, id int) (int, error) {
	if group < 0 || group >= len(t) {
		return 0, fmt.Errorf("%w: group %d, table has %d groups", ErrIndex, group, len(t))
	}
	ids := t[group]
	if id < 0 || id >= len(ids) {
		return 0, fmt.Errorf("%w: id %d in group %d (%d ids)", ErrIndex, id, group, len(ids))
	}
	return ids[id], nil
}

// Tileset is a decoded atlas with its group table.
type Tileset struct {
	Name   string
	Atlas  Atlas
	Groups GroupTable
}

// Source fetches the raw tileset payload and group table JSON by name.
type Source interface {
	FetchTileset(ctx context.Context, name string) ([]byte, error)
	FetchGroupTable(ctx context.Context, name string) ([]byte, error)
}

// Load fetches, decompresses and parses the named tileset.
func Load(ctx context.Context, src Source, name string) (*Tileset, error) {
	raw, err := src.FetchTileset(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("fetch tileset %s: %w", name, err)
	}
	atlas, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("tileset %s: %w", name, err)
	}
	groupJSON, err := src.FetchGroupTable(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("fetch group table %s: %w", name, err)
	}
	groups, err := ParseGroupTable(groupJSON)
	if err != nil {
		return nil, fmt.Errorf("tileset %s: %w", name, err)
	}
	return &Tileset{Name: name, Atlas: atlas, Groups: groups}, nil
}

// Megatile resolves (group, id) and returns that megatile's RGB bytes.
func (ts *Tileset) Megatile(group, id int) ([]byte, error) {
	index, err := ts.Groups.Resolve(group, id)
	if err != nil {
		return nil, err
	}
	return ts.Atlas.Tile(index)
}
