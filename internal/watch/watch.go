// Package watch reports changes to a local asset directory so the editor can
// reload tilesets, image bundles, documents and palettes without a restart.
package watch

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Debounce is the minimum gap between two events for the same path.
const Debounce = 100 * time.Millisecond

// Kind classifies a changed file by what it feeds.
type Kind int

const (
	KindOther Kind = iota
	KindTileset
	KindImage
	KindDocument
	KindPalette
)

func (k Kind) String() string {
	switch k {
	case KindTileset:
		return "tileset"
	case KindImage:
		return "image"
	case KindDocument:
		return "document"
	case KindPalette:
		return "palette"
	}
	return "other"
}

// Change is one debounced file change.
type Change struct {
	Path string
	Kind Kind
	// Name is the tileset name, image version or document name.
	Name string
}

// Classify maps path, relative to the asset root, to a Change.
func Classify(root, path string) Change {
	c := Change{Path: path}
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		c.Kind = KindPalette
		return c
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return c
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 {
		return c
	}
	switch parts[0] {
	case "terrain":
		if len(parts) == 3 {
			c.Kind, c.Name = KindTileset, parts[1]
		}
	case "anim":
		if len(parts) >= 3 {
			c.Kind, c.Name = KindImage, parts[1]
		}
	case "maps":
		if len(parts) == 2 && ext == ".json" {
			c.Kind, c.Name = KindDocument, strings.TrimSuffix(parts[1], ext)
		}
	}
	return c
}

func relevant(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".gz", ".png", ".yaml", ".yml":
		return true
	}
	return false
}

// Watcher watches an asset tree. Directories created under the root are
// picked up automatically.
type Watcher struct {
	root    string
	watcher *fsnotify.Watcher
	Events  chan Change
	Errors  chan error
	closeCh chan struct{}
	once    sync.Once
}

// New watches root recursively plus any extra files (such as a palette kept
// outside the tree).
func New(root string, extra ...string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	watcher := &Watcher{
		root:    root,
		watcher: w,
		Events:  make(chan Change, 16),
		Errors:  make(chan error, 1),
		closeCh: make(chan struct{}),
	}
	if err := watcher.addTree(root); err != nil {
		_ = w.Close()
		return nil, err
	}
	for _, f := range extra {
		if f == "" {
			continue
		}
		if err := w.Add(filepath.Dir(f)); err != nil {
			_ = w.Close()
			return nil, err
		}
	}
	go watcher.run()
	return watcher, nil
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}

// Close stops the watcher. Events and Errors are closed once the watch
// goroutine exits.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.closeCh)
		err = w.watcher.Close()
	})
	return err
}

func (w *Watcher) run() {
	defer close(w.Events)
	defer close(w.Errors)

	last := make(map[string]time.Time)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						w.sendErr(err)
					}
					continue
				}
			}
			if !relevant(event.Name) {
				continue
			}
			now := time.Now()
			if t, ok := last[event.Name]; ok && now.Sub(t) < Debounce {
				continue
			}
			last[event.Name] = now
			select {
			case w.Events <- Classify(w.root, event.Name):
			case <-w.closeCh:
				return
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.sendErr(err)
		case <-w.closeCh:
			return
		}
	}
}

func (w *Watcher) sendErr(err error) {
	select {
	case w.Errors <- err:
	default:
	}
}
