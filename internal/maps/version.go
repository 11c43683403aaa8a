package maps

import (
	"encoding/json"
	"hash/fnv"
)

// LayerVersions are content hashes of the inputs of each render layer. A
// layer needs recompositing exactly when its version changes.
type LayerVersions struct {
	Terrain   uint64
	Units     uint64
	Sprites   uint64
	Locations uint64
}

// LayerVersions hashes each layer's source data. Entity layers fold in the
// terrain size because their surfaces are sized from it.
func (d *Document) LayerVersions() LayerVersions {
	return LayerVersions{
		Terrain:   hashJSON(d.Terrain),
		Units:     hashJSON(d.Terrain.Size, d.Units),
		Sprites:   hashJSON(d.Terrain.Size, d.Sprites),
		Locations: hashJSON(d.Terrain.Size, d.Locations),
	}
}

func hashJSON(values ...any) uint64 {
	h := fnv.New64a()
	enc := json.NewEncoder(h)
	for _, v := range values {
		// Encoding plain structs and slices cannot fail.
		_ = enc.Encode(v)
	}
	return h.Sum64()
}
