package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"webditor/internal/assets"
	"webditor/internal/editor"
	"webditor/internal/log"
	"webditor/internal/maps"
	"webditor/internal/render"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	log.SetOutput(io.Discard)

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "validate":
		if len(args) != 1 {
			fmt.Fprintln(os.Stderr, "Usage: maptools validate <assets-dir>")
			os.Exit(1)
		}
		os.Exit(runValidate(args[0]))
	case "render":
		os.Exit(runRender(args))
	case "viz":
		os.Exit(runViz(args))
	case "stats":
		if len(args) != 1 {
			fmt.Fprintln(os.Stderr, "Usage: maptools stats <map-file>")
			os.Exit(1)
		}
		os.Exit(runStats(args[0]))
	case "frame":
		os.Exit(runFrame(args))
	case "all":
		if len(args) != 1 {
			fmt.Fprintln(os.Stderr, "Usage: maptools all <assets-dir>")
			os.Exit(1)
		}
		os.Exit(runAll(args[0]))
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: maptools <command> [flags] <args>

Commands:
  validate <assets-dir>                        Check every map's tiles and image references
  render [-layers L] [-thumb N] <assets-dir> <map> <out.png>
                                               Composite a map to PNG
  viz [-cols N] <assets-dir> <map>             Preview a map in the terminal
  stats <map-file>                             Show tile, owner and entity counts
  frame [-color N] <bundle-dir> <frame> <out.png>
                                               Crop one frame of an image bundle
  all <assets-dir>                             Run validate + stats for all maps`)
}

// openWorkspace builds a workspace over a local asset tree.
func openWorkspace(dir string) (*editor.Workspace, func(), error) {
	store := assets.Dir{Root: dir}
	images, err := assets.NewImageCache(store, 256<<20)
	if err != nil {
		return nil, nil, err
	}
	return editor.NewWorkspace(store, images, nil), images.Close, nil
}

func loadNamed(dir, name string) (*maps.Document, error) {
	return maps.LoadDocument(assets.Dir{Root: dir}.DocumentPath(name))
}

// --- validate ---

const maxReported = 10

func runValidate(dir string) int {
	store := assets.Dir{Root: dir}
	docs, err := maps.LoadDocuments(store.MapsDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		return 1
	}
	ws, done, err := openWorkspace(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		return 1
	}
	defer done()

	names := make([]string, 0, len(docs))
	for name := range docs {
		names = append(names, name)
	}
	slices.Sort(names)

	ctx := context.Background()
	palette := render.DefaultPalette()
	errCount := 0
	for _, name := range names {
		doc := docs[name]
		fmt.Printf("Validating %q...\n", name)
		var problems []string
		report := func(format string, args ...any) {
			problems = append(problems, fmt.Sprintf(format, args...))
		}

		ts, err := ws.Tileset(ctx, doc.Terrain.Tileset)
		if err != nil {
			report("tileset %q: %v", doc.Terrain.Tileset, err)
		} else {
			tiles := ts.Atlas.TileCount()
			for y, row := range doc.Terrain.Tiles {
				for x, ref := range row {
					idx, err := ts.Groups.Resolve(ref.Group, ref.ID)
					if err != nil {
						report("tile (%d,%d): %v", x, y, err)
					} else if idx >= tiles {
						report("tile (%d,%d): megatile %d past atlas end %d", x, y, idx, tiles)
					}
				}
			}
		}

		checkPlaced := func(kind string, list []maps.Placed) {
			for i, p := range list {
				key := assets.KeyOf(p.Image)
				if err := key.Validate(); err != nil {
					report("%s %d (%s): %v", kind, i, p.Name, err)
					continue
				}
				if _, err := os.Stat(filepath.Join(store.ImageDir(key), "diffuse.png")); err != nil {
					fmt.Printf("  warn: %s %d (%s): no image %s\n", kind, i, p.Name, key)
				}
				if _, ok := palette.Color(p.Owner); !ok {
					fmt.Printf("  warn: %s %d (%s): owner color %d has no palette entry\n", kind, i, p.Name, p.Owner.Color)
				}
			}
		}
		checkPlaced("unit", doc.Units)
		checkPlaced("sprite", doc.Sprites)

		for _, loc := range doc.Locations {
			if loc.Transform.Bounds().Canon().Empty() && loc.ID != maps.NoLocationID {
				fmt.Printf("  warn: location %d (%s) is empty\n", loc.ID, loc.Name)
			}
		}

		for i, p := range problems {
			if i == maxReported {
				fmt.Printf("  ... and %d more\n", len(problems)-maxReported)
				break
			}
			fmt.Printf("  ERROR: %s\n", p)
		}
		errCount += len(problems)
		if len(problems) == 0 {
			fmt.Printf("  OK (%dx%d, %d units, %d sprites, %d locations)\n",
				doc.Terrain.Size.Width, doc.Terrain.Size.Height, len(doc.Units), len(doc.Sprites), len(doc.Locations))
		}
	}

	if errCount > 0 {
		fmt.Printf("\n%d error(s) found\n", errCount)
		return 1
	}
	fmt.Printf("\nAll %d maps valid\n", len(docs))
	return 0
}

// --- render ---

func runRender(args []string) int {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	layerList := fs.String("layers", "", "comma-separated layers (default all)")
	thumb := fs.Int("thumb", 0, "scale to fit a square of this many pixels")
	fs.Parse(args)
	if fs.NArg() != 3 {
		fmt.Fprintln(os.Stderr, "Usage: maptools render [-layers L] [-thumb N] <assets-dir> <map> <out.png>")
		return 1
	}
	dir, name, out := fs.Arg(0), fs.Arg(1), fs.Arg(2)

	layers, err := render.ParseLayers(*layerList)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	img, doc, err := composeMap(dir, name, layers)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if *thumb > 0 {
		img = render.Thumbnail(img, *thumb, *thumb)
	}
	if err := render.SavePNG(out, img); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	b := img.Bounds()
	fmt.Printf("Wrote %s: %s %dx%d px\n", out, doc.Name, b.Dx(), b.Dy())
	return 0
}

// composeMap renders the named map. Layer failures are reported but do not
// stop the render.
func composeMap(dir, name string, layers []render.Layer) (*image.RGBA, *maps.Document, error) {
	doc, err := loadNamed(dir, name)
	if err != nil {
		return nil, nil, err
	}
	ws, done, err := openWorkspace(dir)
	if err != nil {
		return nil, nil, err
	}
	defer done()

	set, err := ws.Compose(context.Background(), doc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warn: %v\n", err)
	}
	w, h := doc.PixelSize(render.TileSize)
	return render.Flatten(w, h, set, layers...), doc, nil
}

// --- viz ---

func runViz(args []string) int {
	fs := flag.NewFlagSet("viz", flag.ExitOnError)
	cols := fs.Int("cols", 80, "terminal columns to use")
	fs.Parse(args)
	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "Usage: maptools viz [-cols N] <assets-dir> <map>")
		return 1
	}
	world, doc, err := composeMap(fs.Arg(0), fs.Arg(1), nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	b := world.Bounds()
	scale := max(1, (b.Dx()+*cols-1) / *cols)
	rows := (b.Dy()+2*scale-1)/(2*scale) + render.StatusRows
	engine := render.NewEngine(*cols, rows, scale)
	out := engine.Render(world, *cols, rows, render.Status{
		MapName: doc.Name,
		View:    render.Viewport{TileWidth: doc.Terrain.Size.Width, TileHeight: doc.Terrain.Size.Height},
		Message: fmt.Sprintf("%d px per column", scale),
	})
	fmt.Print(render.ClearScreen(), out, render.MoveTo(rows+1, 1))
	return 0
}

// --- stats ---

type entry struct {
	name  string
	count int
}

func sortedEntries(counts map[string]int) []entry {
	var sorted []entry
	for name, count := range counts {
		sorted = append(sorted, entry{name, count})
	}
	slices.SortFunc(sorted, func(a, b entry) int {
		if a.count != b.count {
			return b.count - a.count
		}
		return strings.Compare(a.name, b.name)
	})
	return sorted
}

func printEntries(entries []entry, total int) {
	for _, e := range entries {
		pct := float64(e.count) / float64(max(total, 1)) * 100
		bar := strings.Repeat("█", int(pct/2))
		fmt.Printf("  %-16s %5d (%5.1f%%) %s\n", e.name, e.count, pct, bar)
	}
}

func runStats(path string) int {
	doc, err := maps.LoadDocument(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	w, h := doc.Terrain.Size.Width, doc.Terrain.Size.Height
	fmt.Printf("%s (%s, %dx%d = %d tiles)\n\n", doc.Name, doc.Terrain.Tileset, w, h, w*h)

	groups := make(map[string]int)
	for _, row := range doc.Terrain.Tiles {
		for _, ref := range row {
			groups["group "+strconv.Itoa(ref.Group)]++
		}
	}
	fmt.Println("Tile groups:")
	entries := sortedEntries(groups)
	if len(entries) > 12 {
		entries = entries[:12]
	}
	printEntries(entries, w*h)

	owners := make(map[string]int)
	for _, u := range doc.Units {
		owner := u.Owner.Name
		if owner == "" {
			owner = "player " + strconv.Itoa(u.Owner.ID)
		}
		owners[owner]++
	}
	fmt.Println("\nUnits by owner:")
	printEntries(sortedEntries(owners), len(doc.Units))

	fmt.Printf("\nUnits:     %d\n", len(doc.Units))
	fmt.Printf("Sprites:   %d\n", len(doc.Sprites))
	fmt.Printf("Locations: %d\n", len(doc.Locations))
	v := doc.LayerVersions()
	fmt.Printf("Versions:  terrain=%016x units=%016x sprites=%016x locations=%016x\n", v.Terrain, v.Units, v.Sprites, v.Locations)
	return 0
}

// --- frame ---

func runFrame(args []string) int {
	fs := flag.NewFlagSet("frame", flag.ExitOnError)
	colorSlot := fs.Int("color", -1, "player color slot for the team color mask")
	fs.Parse(args)
	if fs.NArg() != 3 {
		fmt.Fprintln(os.Stderr, "Usage: maptools frame [-color N] <bundle-dir> <frame> <out.png>")
		return 1
	}
	dir, out := fs.Arg(0), fs.Arg(2)
	frame, err := strconv.Atoi(fs.Arg(1))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: bad frame %q\n", fs.Arg(1))
		return 1
	}

	img, err := cropBundleFrame(dir, frame, *colorSlot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if err := render.SavePNG(out, img); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	b := img.Bounds()
	fmt.Printf("Wrote %s: frame %d, %dx%d px\n", out, frame, b.Dx(), b.Dy())
	return 0
}

func cropBundleFrame(dir string, frame, colorSlot int) (*image.RGBA, error) {
	metaJSON, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return nil, err
	}
	meta, err := render.ParseFrameMeta(metaJSON)
	if err != nil {
		return nil, err
	}
	diffuse, err := render.LoadImage(filepath.Join(dir, "diffuse.png"))
	if err != nil {
		return nil, err
	}
	img, err := render.CropFrame(diffuse, frame, meta)
	if err != nil {
		return nil, err
	}
	if colorSlot < 0 {
		return img, nil
	}

	c, ok := render.DefaultPalette().Color(maps.Owner{Color: colorSlot})
	if !ok {
		return nil, fmt.Errorf("no palette entry for color %d", colorSlot)
	}
	maskImg, err := render.LoadImage(filepath.Join(dir, "team_color.png"))
	if errors.Is(err, os.ErrNotExist) {
		return img, nil
	}
	if err != nil {
		return nil, err
	}
	mask, err := render.CropFrame(maskImg, frame, meta)
	if err != nil {
		return nil, err
	}
	return render.ApplyTeamColor(img, mask, c), nil
}

// --- all ---

func runAll(dir string) int {
	// Run validate first
	fmt.Println("=== VALIDATE ===")
	code := runValidate(dir)
	if code != 0 {
		return code
	}

	entries, err := os.ReadDir(assets.Dir{Root: dir}.MapsDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading directory: %v\n", err)
		return 1
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		fmt.Printf("\n=== STATS: %s ===\n", entry.Name())
		if code := runStats(filepath.Join(assets.Dir{Root: dir}.MapsDir(), entry.Name())); code != 0 {
			return code
		}
	}
	return 0
}
