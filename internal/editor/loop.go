// Package editor owns the current map document, applies edits to it, and
// keeps composited layer surfaces in step with it for any number of
// viewers.
package editor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"webditor/internal/log"
	"webditor/internal/maps"
	"webditor/internal/render"
)

// EditKind selects what an Edit does.
type EditKind int

const (
	// EditSet replaces the value at Path with Value.
	EditSet EditKind = iota
	// EditReplace swaps in Doc as the whole document.
	EditReplace
	// EditSelect selects the unit at Index; -1 clears the selection.
	EditSelect
	// EditSelectAt selects the topmost unit under map pixel (X, Y).
	EditSelectAt
	// EditReloadTileset drops the cached tileset and recomposes terrain.
	EditReloadTileset
	// EditReloadImages drops cached image bundles and recomposes entities.
	EditReloadImages
	// EditReloadDocument fetches the document again from the loop's
	// DocumentLoader and replaces the current one.
	EditReloadDocument
)

// DocumentLoader fetches the document being edited from its source.
type DocumentLoader func(ctx context.Context) (*maps.Document, error)

type loadResult struct {
	doc *maps.Document
	err error
}

// ErrNoDocument is returned for edits that need a document while none is
// loaded.
var ErrNoDocument = errors.New("editor: no document loaded")

// Edit is a request to change editor state. Result, when non-nil, receives
// the outcome once the edit is applied; it should be buffered.
type Edit struct {
	Kind   EditKind
	Path   maps.Path
	Value  any
	Doc    *maps.Document
	Index  int
	X, Y   int
	Result chan error
}

// Snapshot is an immutable view of editor state sent to viewers. Doc is nil
// until a document has loaded; Err then says why.
type Snapshot struct {
	Doc      *maps.Document
	Versions maps.LayerVersions
	Layers   render.LayerSet
	World    *image.RGBA
	Selected int
	Frame    uint64
	Err      error
}

// SelectedUnit returns the selected unit, if any.
func (s Snapshot) SelectedUnit() (maps.Placed, bool) {
	if s.Doc == nil || s.Selected < 0 || s.Selected >= len(s.Doc.Units) {
		return maps.Placed{}, false
	}
	return s.Doc.Units[s.Selected], true
}

// ViewerChan is the per-viewer channel that receives snapshots.
type ViewerChan chan Snapshot

// Loop is the editor's central loop. It is the only writer of the document
// and the layer surfaces.
type Loop struct {
	ws        *Workspace
	editCh    chan Edit
	results   chan passResult
	loads     chan loadResult
	frameRate int
	loader    DocumentLoader

	// Owned by the loop goroutine.
	doc        *maps.Document
	selected   int
	layers     render.LayerSet
	committed  layerKeys
	attempted  layerKeys
	tilesetGen uint64
	imageGen   uint64
	nextPass   uint64
	inflight   uint64
	cancel     context.CancelFunc
	lastErr    error
	docErr     error
	loading    bool
	frame      uint64

	mu      sync.RWMutex
	viewers map[string]ViewerChan
	latest  Snapshot
	seq     int

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewLoop creates a loop editing doc. doc may be nil when the document
// could not be loaded; the loop then publishes only errors until an
// EditReplace or EditReloadDocument supplies one.
func NewLoop(ws *Workspace, doc *maps.Document, frameRate int) *Loop {
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}
	l := &Loop{
		ws:         ws,
		editCh:     make(chan Edit, EditChanSize),
		results:    make(chan passResult, 8),
		loads:      make(chan loadResult, 1),
		frameRate:  frameRate,
		doc:        doc,
		selected:   -1,
		tilesetGen: 1,
		imageGen:   1,
		viewers:    make(map[string]ViewerChan),
		stopCh:     make(chan struct{}),
	}
	l.latest = Snapshot{Doc: doc, Selected: -1}
	if doc != nil {
		l.latest.Versions = doc.LayerVersions()
	}
	return l
}

// UseLoader sets where EditReloadDocument fetches from. Call it before Run.
func (l *Loop) UseLoader(fn DocumentLoader) {
	l.loader = fn
}

// FailDocument records why no document is loaded so viewers can show it.
// Call it before Run.
func (l *Loop) FailDocument(err error) {
	l.docErr = err
	l.latest.Err = err
}

// Edits returns the shared edit channel.
func (l *Loop) Edits() chan<- Edit {
	return l.editCh
}

// Submit queues an edit, waiting for queue space until ctx is done.
func (l *Loop) Submit(ctx context.Context, e Edit) error {
	select {
	case l.editCh <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopCh:
		return errStopped
	}
}

var errStopped = errors.New("editor: loop stopped")

// Apply queues an edit and waits until the loop has applied it.
func (l *Loop) Apply(ctx context.Context, e Edit) error {
	e.Result = make(chan error, 1)
	if err := l.Submit(ctx, e); err != nil {
		return err
	}
	select {
	case err := <-e.Result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopCh:
		return errStopped
	}
}

// Snapshot returns the latest published snapshot.
func (l *Loop) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.latest
}

// AddViewer registers a viewer and returns its id and channel. The latest
// snapshot is delivered immediately.
func (l *Loop) AddViewer(name string) (string, ViewerChan) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	id := fmt.Sprintf("%s#%d", name, l.seq)
	ch := make(ViewerChan, ViewerChanSize)
	ch <- l.latest
	l.viewers[id] = ch
	return id, ch
}

// RemoveViewer unregisters a viewer and closes its channel.
func (l *Loop) RemoveViewer(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ch, ok := l.viewers[id]; ok {
		close(ch)
		delete(l.viewers, id)
	}
}

// ViewerCount returns the number of registered viewers.
func (l *Loop) ViewerCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.viewers)
}

// Run drives the loop at its frame rate until ctx is done or Stop is
// called.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(FrameInterval(l.frameRate))
	defer ticker.Stop()
	defer l.cancelInflight()

	l.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

// Stop shuts down the loop.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

func (l *Loop) tick(ctx context.Context) {
	changed := false

	// Drain all pending edits
	for {
		select {
		case e := <-l.editCh:
			err := l.apply(ctx, e)
			if err != nil {
				log.WithField("kind", e.Kind).Warnf("edit rejected: %v", err)
			} else {
				changed = true
			}
			if e.Result != nil {
				e.Result <- err
			}
		default:
			goto drained
		}
	}
drained:

	// Collect finished passes
	for {
		select {
		case r := <-l.results:
			if l.commit(r) {
				changed = true
			}
		default:
			goto collected
		}
	}
collected:

	select {
	case r := <-l.loads:
		l.loaded(r)
		changed = true
	default:
	}

	l.schedule(ctx)

	if changed {
		l.publish()
	}
}

func (l *Loop) apply(ctx context.Context, e Edit) error {
	switch e.Kind {
	case EditReplace:
		return l.replace(e.Doc)
	case EditReloadDocument:
		return l.reload(ctx)
	case EditReloadImages:
		l.ws.ClearImages()
		l.imageGen++
		return nil
	}
	if l.doc == nil {
		return ErrNoDocument
	}
	switch e.Kind {
	case EditSet:
		path, err := e.Path.Normalize()
		if err != nil {
			return err
		}
		next, err := l.doc.Update(path, e.Value)
		if err != nil {
			return err
		}
		l.doc = next
		if l.selected >= len(next.Units) {
			l.selected = -1
		}
	case EditSelect:
		if e.Index < -1 || e.Index >= len(l.doc.Units) {
			return fmt.Errorf("unit index %d out of range", e.Index)
		}
		l.selected = e.Index
	case EditSelectAt:
		l.selected = l.doc.UnitAt(e.X, e.Y)
	case EditReloadTileset:
		l.ws.ForgetTileset(l.doc.Terrain.Tileset)
		l.tilesetGen++
	default:
		return fmt.Errorf("unknown edit kind %d", e.Kind)
	}
	return nil
}

func (l *Loop) replace(doc *maps.Document) error {
	if doc == nil {
		return errors.New("replace with nil document")
	}
	if err := doc.Validate(); err != nil {
		return err
	}
	if l.doc == nil || doc.Terrain.Tileset != l.doc.Terrain.Tileset {
		l.tilesetGen++
	}
	l.doc = doc
	l.docErr = nil
	l.selected = -1
	return nil
}

// reload starts fetching the document in the background. The result is
// picked up by a later tick.
func (l *Loop) reload(ctx context.Context) error {
	if l.loader == nil {
		return errors.New("editor: no document source")
	}
	if l.loading {
		return nil
	}
	l.loading = true
	load := l.loader
	go func() {
		doc, err := load(ctx)
		select {
		case l.loads <- loadResult{doc, err}:
		case <-ctx.Done():
		}
	}()
	return nil
}

// loaded installs a fetched document. A failed fetch keeps whatever
// document is current and reports the error.
func (l *Loop) loaded(r loadResult) {
	l.loading = false
	err := r.err
	if err == nil {
		err = l.replace(r.doc)
	}
	if err != nil {
		log.Errorf("Document reload failed: %v", err)
		l.docErr = fmt.Errorf("load document: %w", err)
		return
	}
	log.Infof("Document reloaded: %s", l.doc.Name)
}

// schedule starts a compose pass when the current inputs differ from what
// has been committed or last attempted. Any in-flight pass is cancelled
// first so its output can never be committed.
func (l *Loop) schedule(ctx context.Context) {
	if l.doc == nil {
		return
	}
	keys := keysFor(l.doc, l.selected, l.tilesetGen, l.imageGen)
	if l.inflight != 0 && keys == l.attempted {
		return
	}
	var dirty []render.Layer
	for _, layer := range render.AllLayers {
		if keys[layer] != l.committed[layer] && keys[layer] != l.attempted[layer] {
			dirty = append(dirty, layer)
		}
	}
	if len(dirty) == 0 {
		return
	}
	if l.inflight != 0 {
		// The superseded pass may have been working on layers that are
		// still dirty; redo them too.
		for _, layer := range render.AllLayers {
			if keys[layer] != l.committed[layer] && !containsLayer(dirty, layer) {
				dirty = append(dirty, layer)
			}
		}
	}
	l.cancelInflight()

	l.nextPass++
	pctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.inflight = l.nextPass
	l.attempted = keys
	j := job{id: l.nextPass, doc: l.doc, selected: l.selected, keys: keys, dirty: dirty}

	go func() {
		r := l.ws.compose(pctx, j)
		select {
		case l.results <- r:
		case <-pctx.Done():
		}
	}()
}

func containsLayer(ls []render.Layer, l render.Layer) bool {
	for _, x := range ls {
		if x == l {
			return true
		}
	}
	return false
}

func (l *Loop) cancelInflight() {
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.inflight = 0
}

// commit installs the successful layers of a pass. Results of superseded
// passes are discarded.
func (l *Loop) commit(r passResult) bool {
	if r.id != l.inflight {
		return false
	}
	l.cancel()
	l.cancel = nil
	l.inflight = 0

	committed := false
	l.lastErr = nil
	for _, lr := range r.layers {
		if lr.err != nil {
			if errors.Is(lr.err, context.Canceled) || errors.Is(lr.err, context.DeadlineExceeded) {
				// Interrupted, not failed: the next schedule retries it.
				l.attempted[lr.layer] = 0
				if errors.Is(lr.err, context.DeadlineExceeded) {
					l.lastErr = fmt.Errorf("%s: %w", lr.layer, lr.err)
				}
				continue
			}
			log.WithField("layer", lr.layer).Errorf("compose failed, keeping previous surface: %v", lr.err)
			l.lastErr = fmt.Errorf("%s: %w", lr.layer, lr.err)
			continue
		}
		l.layers[lr.layer] = lr.surface
		l.committed[lr.layer] = r.keys[lr.layer]
		committed = true
	}
	if l.lastErr != nil {
		// Report the failure even if nothing else changed.
		committed = true
	}
	return committed
}

func (l *Loop) publish() {
	l.frame++
	snap := Snapshot{
		Selected: l.selected,
		Frame:    l.frame,
		Err:      errors.Join(l.docErr, l.lastErr),
	}
	if l.doc != nil {
		w, h := l.doc.PixelSize(render.TileSize)
		snap.Doc = l.doc
		snap.Versions = l.doc.LayerVersions()
		snap.Layers = l.layers
		snap.World = render.Flatten(w, h, l.layers)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.latest = snap

	// Non-blocking send to each viewer channel
	for _, ch := range l.viewers {
		select {
		case ch <- snap:
		default:
			// Drop frame for slow viewer
		}
	}
}
