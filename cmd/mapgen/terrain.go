package main

import (
	"encoding/json"
	"math"
	"math/rand"

	"webditor/internal/maps"
	"webditor/internal/tileset"
)

// Terrain groups of the synthetic tileset. Each has variantsPerGroup
// megatiles.
const (
	gDeepWater = iota
	gWater
	gSand
	gDirt
	gGrass
	gJungle
	gRock
	gHighDirt
	numGroups
)

const variantsPerGroup = 4

var groupNames = [numGroups]string{"deep_water", "water", "sand", "dirt", "grass", "jungle", "rock", "high_dirt"}

var groupColors = [numGroups][3]float64{
	{20, 40, 110},
	{40, 90, 160},
	{194, 178, 128},
	{120, 90, 60},
	{60, 120, 50},
	{30, 90, 40},
	{100, 100, 105},
	{150, 110, 75},
}

func isLand(g int) bool {
	return g != gDeepWater && g != gWater && g != gRock
}

// buildTileset synthesizes the atlas and group table: megatile
// g*variantsPerGroup+v is variant v of group g.
func buildTileset(seed int64) (tileset.Atlas, []byte, error) {
	grain := newSimplex(seed + 7)
	atlas := make(tileset.Atlas, numGroups*variantsPerGroup*tileset.TileStride)
	groups := make([][]int, numGroups)

	for g := 0; g < numGroups; g++ {
		groups[g] = make([]int, variantsPerGroup)
		base := groupColors[g]
		for v := 0; v < variantsPerGroup; v++ {
			idx := g*variantsPerGroup + v
			groups[g][v] = idx
			tile := atlas[idx*tileset.TileStride : (idx+1)*tileset.TileStride]
			ox := float64(idx * 64)
			for py := 0; py < tileset.TileSize; py++ {
				for px := 0; px < tileset.TileSize; px++ {
					shade := 0.8 + 0.4*grain.fbm(ox+float64(px), float64(py), 0.12, 3)
					o := (py*tileset.TileSize + px) * 3
					tile[o] = clamp8(base[0] * shade)
					tile[o+1] = clamp8(base[1] * shade)
					tile[o+2] = clamp8(base[2] * shade)
				}
			}
		}
	}

	groupJSON, err := json.Marshal(groups)
	if err != nil {
		return nil, nil, err
	}
	return atlas, groupJSON, nil
}

func clamp8(v float64) uint8 {
	return uint8(math.Max(0, math.Min(255, math.Round(v))))
}

func classifyTile(elev, moist float64) int {
	switch {
	case elev < 0.20:
		return gDeepWater
	case elev < 0.28:
		return gWater
	case elev < 0.32:
		return gSand
	case elev < 0.62:
		if moist > 0.55 {
			return gJungle
		}
		if moist < 0.3 {
			return gDirt
		}
		return gGrass
	case elev < 0.72:
		return gRock
	default:
		return gHighDirt
	}
}

// generateTerrain returns the group grid, indexed [y][x].
func generateTerrain(w, h int, seed int64) [][]int {
	elevation := newSimplex(seed)
	moisture := newSimplex(seed + 1)

	grid := make([][]int, h)
	for y := range grid {
		grid[y] = make([]int, w)
		for x := range grid[y] {
			fx, fy := float64(x), float64(y)
			grid[y][x] = classifyTile(elevation.fbm(fx, fy, 0.04, 4), moisture.fbm(fx, fy, 0.05, 3))
		}
	}
	return grid
}

type point struct{ x, y int }

// findLand searches rings outward from (cx, cy) for a land tile whose 3x3
// neighborhood is all land.
func findLand(grid [][]int, cx, cy int) (point, bool) {
	h, w := len(grid), len(grid[0])
	for r := 0; r <= max(w, h); r++ {
		for dy := -r; dy <= r; dy++ {
			for dx := -r; dx <= r; dx++ {
				if abs(dx) != r && abs(dy) != r {
					continue // only check the ring perimeter
				}
				x, y := cx+dx, cy+dy
				if x < 1 || x >= w-1 || y < 1 || y >= h-1 {
					continue
				}
				ok := true
				for ny := y - 1; ny <= y+1 && ok; ny++ {
					for nx := x - 1; nx <= x+1; nx++ {
						if !isLand(grid[ny][nx]) {
							ok = false
							break
						}
					}
				}
				if ok {
					return point{x, y}, true
				}
			}
		}
	}
	return point{}, false
}

// carveTrail lays a wandering dirt road from s to t. Water it crosses
// becomes sand.
func carveTrail(grid [][]int, s, t point, rng *rand.Rand) {
	h, w := len(grid), len(grid[0])
	x, y := s.x, s.y
	for steps := 0; steps < w*h && (x != t.x || y != t.y); steps++ {
		dx, dy := 0, 0
		distX, distY := t.x-x, t.y-y
		if abs(distX) > abs(distY) {
			dx = sign(distX)
			if rng.Float64() < 0.3 && distY != 0 {
				dx, dy = 0, sign(distY)
			}
		} else {
			dy = sign(distY)
			if rng.Float64() < 0.3 && distX != 0 {
				dx, dy = sign(distX), 0
			}
		}
		x, y = x+dx, y+dy
		switch grid[y][x] {
		case gDeepWater, gWater:
			grid[y][x] = gSand
		case gHighDirt:
		default:
			grid[y][x] = gDirt
		}
	}
}

// tileRefs turns the group grid into tile references, picking variants
// from detail noise.
func tileRefs(grid [][]int, seed int64) [][]maps.TileRef {
	detail := newSimplex(seed + 2)
	tiles := make([][]maps.TileRef, len(grid))
	for y, row := range grid {
		tiles[y] = make([]maps.TileRef, len(row))
		for x, g := range row {
			v := int(detail.fbm(float64(x), float64(y), 0.3, 2) * variantsPerGroup)
			tiles[y][x] = maps.TileRef{Group: g, ID: min(max(v, 0), variantsPerGroup-1)}
		}
	}
	return tiles
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func sign(x int) int {
	if x > 0 {
		return 1
	}
	if x < 0 {
		return -1
	}
	return 0
}
