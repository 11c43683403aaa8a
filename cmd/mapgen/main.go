package main

import (
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"webditor/internal/assets"
	"webditor/internal/maps"
	"webditor/internal/tileset"
)

const neutralColor = 11

type options struct {
	seed     int64
	w, h     int
	name     string
	tileset  string
	players  int
	units    int
	sprites  float64
	version  string
	noImages bool
}

func main() {
	seed := flag.Int64("seed", 0, "random seed (0 = random)")
	size := flag.String("size", "64x64", "map size in tiles as WxH")
	name := flag.String("name", "Generated", "map name")
	tilesetName := flag.String("tileset", "synthetic", "tileset name")
	players := flag.Int("players", 4, "number of players (1-8)")
	units := flag.Int("units", 6, "units per player")
	sprites := flag.Float64("sprites", 0.04, "chance of a doodad sprite on jungle and high ground")
	version := flag.String("version", "sd", "image version to write (sd or hd)")
	noImages := flag.Bool("no-images", false, "skip writing image bundles")
	out := flag.String("out", "", "asset directory to write")
	flag.Parse()

	if *out == "" {
		fmt.Fprintln(os.Stderr, "Error: -out is required")
		fmt.Fprintln(os.Stderr, "Usage: mapgen -out <assets-dir> [-seed N] [-size WxH] [-name Name] [-players N] [-units N]")
		os.Exit(1)
	}
	w, h, err := parseSize(*size)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *players < 1 || *players > 8 {
		fmt.Fprintf(os.Stderr, "Error: players must be 1-8, got %d\n", *players)
		os.Exit(1)
	}
	if !assets.ValidVersion(*version) {
		fmt.Fprintf(os.Stderr, "Error: unknown image version %q\n", *version)
		os.Exit(1)
	}
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	opts := options{
		seed: *seed, w: w, h: h, name: *name, tileset: *tilesetName,
		players: *players, units: *units, sprites: *sprites,
		version: *version, noImages: *noImages,
	}
	if err := run(assets.Dir{Root: *out}, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(d assets.Dir, o options) error {
	fmt.Fprintf(os.Stderr, "Generating %dx%d map %q on tileset %q (seed %d)...\n", o.w, o.h, o.name, o.tileset, o.seed)

	atlas, groupJSON, err := buildTileset(o.seed)
	if err != nil {
		return err
	}
	compressed, err := tileset.Encode(atlas)
	if err != nil {
		return err
	}
	if err := d.WriteTileset(o.tileset, compressed, groupJSON); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Tileset: %d megatiles, %d bytes compressed\n", atlas.TileCount(), len(compressed))

	if !o.noImages {
		n, err := writeBundles(d, o.version)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Images: %d bundles (%s)\n", n, o.version)
	}

	doc, err := generateDocument(o)
	if err != nil {
		return err
	}
	if err := d.WriteDocument(doc); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Wrote %s: %d units, %d sprites, %d locations\n",
		d.DocumentPath(doc.Name), len(doc.Units), len(doc.Sprites), len(doc.Locations))

	printDistribution(doc)
	return nil
}

func parseSize(s string) (int, int, error) {
	parts := strings.SplitN(s, "x", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid size %q (expected WxH)", s)
	}
	w, err := strconv.Atoi(parts[0])
	if err != nil || w < 8 {
		return 0, 0, fmt.Errorf("invalid width %q (minimum 8)", parts[0])
	}
	h, err := strconv.Atoi(parts[1])
	if err != nil || h < 8 {
		return 0, 0, fmt.Errorf("invalid height %q (minimum 8)", parts[1])
	}
	return w, h, nil
}

// generateDocument builds terrain, player starts joined by roads, units
// around each start and neutral doodads.
func generateDocument(o options) (*maps.Document, error) {
	grid := generateTerrain(o.w, o.h, o.seed)
	rng := rand.New(rand.NewSource(o.seed + 100))

	center, ok := findLand(grid, o.w/2, o.h/2)
	if !ok {
		// All water: raise an island in the middle.
		center = point{o.w / 2, o.h / 2}
		for y := center.y - 1; y <= center.y+1; y++ {
			for x := center.x - 1; x <= center.x+1; x++ {
				grid[y][x] = gGrass
			}
		}
	}

	starts := make([]point, 0, o.players)
	radius := 0.35 * float64(min(o.w, o.h))
	for p := 0; p < o.players; p++ {
		angle := 2*math.Pi*float64(p)/float64(o.players) + rng.Float64()*0.3
		tx := o.w/2 + int(radius*math.Cos(angle))
		ty := o.h/2 + int(radius*math.Sin(angle))
		s, ok := findLand(grid, tx, ty)
		if !ok {
			s = center
		}
		starts = append(starts, s)
		carveTrail(grid, center, s, rng)
	}

	doc := &maps.Document{
		Name: o.name,
		Terrain: maps.Terrain{
			Tileset: o.tileset,
			Size:    maps.Size{Width: o.w, Height: o.h},
			Tiles:   tileRefs(grid, o.seed),
		},
		Units:     []maps.Placed{},
		Sprites:   []maps.Placed{},
		Locations: []maps.Location{},
	}

	id := 0
	for p, s := range starts {
		owner := maps.Owner{ID: p, Name: fmt.Sprintf("Player %d", p+1), Color: p}
		for u := 0; u < o.units; u++ {
			spec := unitImages[rng.Intn(len(unitImages))]
			x := (s.x*tilePx + tilePx/2) + rng.Intn(4*tilePx) - 2*tilePx
			y := (s.y*tilePx + tilePx/2) + rng.Intn(4*tilePx) - 2*tilePx
			x = min(max(x, 0), o.w*tilePx-1)
			y = min(max(y, 0), o.h*tilePx-1)
			doc.Units = append(doc.Units, placed(id, spec, o.version, owner, x, y))
			id++
		}
		doc.Locations = append(doc.Locations, maps.Location{
			ID:   p,
			Name: fmt.Sprintf("Player %d Start", p+1),
			Transform: maps.Transform{
				Position: maps.Position{X: s.x*tilePx + tilePx/2, Y: s.y*tilePx + tilePx/2},
				Size:     maps.Box{Left: 2 * tilePx, Top: 2 * tilePx, Right: 2 * tilePx, Bottom: 2 * tilePx},
			},
		})
	}
	doc.Locations = append(doc.Locations, maps.Location{
		ID:        maps.NoLocationID,
		Name:      "Anywhere",
		Transform: maps.Transform{Size: maps.Box{Right: o.w * tilePx, Bottom: o.h * tilePx}},
	})

	neutral := maps.Owner{ID: neutralColor, Name: "Neutral", Color: neutralColor}
	sid := 0
	for y, row := range grid {
		for x, g := range row {
			if (g != gJungle && g != gHighDirt) || rng.Float64() >= o.sprites {
				continue
			}
			spec := spriteImages[rng.Intn(len(spriteImages))]
			doc.Sprites = append(doc.Sprites, placed(sid, spec, o.version, neutral, x*tilePx+tilePx/2, y*tilePx+tilePx/2))
			sid++
		}
	}

	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

const tilePx = tileset.TileSize

func placed(id int, spec imageSpec, version string, owner maps.Owner, x, y int) maps.Placed {
	return maps.Placed{
		ID:    id,
		Name:  spec.Name,
		Kind:  strings.ToLower(spec.Name),
		Owner: owner,
		Image: maps.ImageRef{Version: version, Index: spec.Index},
		Transform: maps.Transform{
			Position: maps.Position{X: x, Y: y},
			Size: maps.Box{
				Left:   spec.W / 2,
				Top:    spec.H / 2,
				Right:  spec.W - spec.W/2,
				Bottom: spec.H - spec.H/2,
			},
		},
	}
}

func printDistribution(doc *maps.Document) {
	counts := make([]int, numGroups)
	for _, row := range doc.Terrain.Tiles {
		for _, ref := range row {
			counts[ref.Group]++
		}
	}
	total := doc.Terrain.Size.Width * doc.Terrain.Size.Height
	fmt.Fprintf(os.Stderr, "\nTile distribution:\n")
	for g, c := range counts {
		if c > 0 {
			fmt.Fprintf(os.Stderr, "  %-12s %5d (%5.1f%%)\n", groupNames[g], c, float64(c)/float64(total)*100)
		}
	}
}
