package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"webditor/internal/assets"
	"webditor/internal/config"
	"webditor/internal/editor"
	"webditor/internal/httpapi"
	"webditor/internal/log"
	"webditor/internal/maps"
	"webditor/internal/render"
	"webditor/internal/server"
	"webditor/internal/watch"
)

func main() {
	configPath := flag.String("config", "", "path to webditor.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	if err := log.Setup(log.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	}); err != nil {
		log.Fatalf("Log setup error: %v", err)
	}

	// Generate host key if it doesn't exist
	if err := ensureHostKey(cfg.SSH.HostKey); err != nil {
		log.Fatalf("Host key error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store assets.Store
	var compiler httpapi.Compiler
	if cfg.Assets.Dir != "" {
		store = assets.Dir{Root: cfg.Assets.Dir}
		log.Infof("Serving assets from %s", cfg.Assets.Dir)
	} else {
		client := assets.NewClient(cfg.Backend.URL, cfg.Backend.Timeout)
		store, compiler = client, client
		log.Infof("Fetching assets from %s", cfg.Backend.URL)
	}

	images, err := assets.NewImageCache(store, cfg.Cache.MaxBytes)
	if err != nil {
		log.Fatalf("Image cache error: %v", err)
	}
	defer images.Close()
	if m, err := store.FetchManifest(ctx, cfg.Render.ImageVersion); err == nil {
		images.UseManifest(cfg.Render.ImageVersion, m)
		log.Infof("Image manifest loaded: %d %s entries", len(m), cfg.Render.ImageVersion)
	} else {
		log.Debugf("No image manifest for %s: %v", cfg.Render.ImageVersion, err)
	}

	var palette render.Palette
	if cfg.Render.PaletteFile != "" {
		palette, err = render.LoadPalette(cfg.Render.PaletteFile)
		if err != nil {
			log.Fatalf("Palette error: %v", err)
		}
	}

	ws := editor.NewWorkspace(store, images, palette)
	loop, doc := openLoop(ctx, cfg, ws)
	go loop.Run(ctx)
	defer loop.Stop()

	if cfg.Assets.Dir != "" && cfg.Assets.Watch {
		w, err := watch.New(cfg.Assets.Dir, cfg.Map.File)
		if err != nil {
			log.Warnf("Asset watcher disabled: %v", err)
		} else {
			defer w.Close()
			go forwardChanges(ctx, w, loop, cfg)
		}
	}

	httpSrv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: httpapi.NewRouter(&httpapi.Handler{Editor: loop, Compiler: compiler}, cfg.HTTP.CORSOrigins),
	}
	go func() {
		log.Infof("HTTP preview listening on %s", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("HTTP server error: %v", err)
			stop()
		}
	}()

	sshSrv := server.NewSSHServer(cfg.SSH.Addr, cfg.SSH.HostKey, loop, cfg.Render.CellScale, cfg.Render.FrameRate)
	go func() {
		if err := sshSrv.Start(); err != nil {
			log.Errorf("SSH server error: %v", err)
			stop()
		}
	}()
	if doc != nil {
		log.Infof("Editing %q: connect with ssh -p %s localhost", doc.Name, portOf(cfg.SSH.Addr))
	} else {
		log.Infof("No map loaded: connect with ssh -p %s localhost and press r to retry", portOf(cfg.SSH.Addr))
	}

	<-ctx.Done()
	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	_ = sshSrv.Shutdown(shutdownCtx)
}

// documentLoader returns the configured document source: a local file,
// else a named document from the store. It is nil when neither is set.
func documentLoader(cfg *config.Config, ws *editor.Workspace) editor.DocumentLoader {
	switch {
	case cfg.Map.File != "":
		path := cfg.Map.File
		return func(context.Context) (*maps.Document, error) {
			return maps.LoadDocument(path)
		}
	case cfg.Map.Name != "":
		name := cfg.Map.Name
		timeout := cfg.Backend.Timeout
		return func(ctx context.Context) (*maps.Document, error) {
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			return ws.Document(ctx, name)
		}
	}
	return nil
}

// openLoop loads the configured document and builds the editor loop. When
// no map is configured it starts a new default map. A failed load leaves
// the loop without a document, reporting the error until a reload
// succeeds.
func openLoop(ctx context.Context, cfg *config.Config, ws *editor.Workspace) (*editor.Loop, *maps.Document) {
	load := documentLoader(cfg, ws)
	if load == nil {
		doc := maps.DefaultDocument(cfg.Tileset.Name)
		log.Infof("No map configured, starting new map %q", doc.Name)
		return editor.NewLoop(ws, doc, cfg.Render.FrameRate), doc
	}

	doc, err := load(ctx)
	if err != nil {
		log.Errorf("Could not load map: %v", err)
		loop := editor.NewLoop(ws, nil, cfg.Render.FrameRate)
		loop.UseLoader(load)
		loop.FailDocument(fmt.Errorf("load document: %w", err))
		return loop, nil
	}
	log.Infof("Map loaded: %s (%dx%d, %d units, %d sprites, %d locations)",
		doc.Name, doc.Terrain.Size.Width, doc.Terrain.Size.Height,
		len(doc.Units), len(doc.Sprites), len(doc.Locations))
	loop := editor.NewLoop(ws, doc, cfg.Render.FrameRate)
	loop.UseLoader(load)
	return loop, doc
}

// forwardChanges turns asset tree changes into editor reloads.
func forwardChanges(ctx context.Context, w *watch.Watcher, loop *editor.Loop, cfg *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Warnf("Asset watcher: %v", err)
		case c, ok := <-w.Events:
			if !ok {
				return
			}
			log.WithFields(map[string]any{"kind": c.Kind, "path": c.Path}).Info("asset changed")
			if e, ok := reloadEdit(c, loop.Snapshot().Doc, cfg); ok {
				if err := loop.Submit(ctx, e); err != nil {
					return
				}
			}
		}
	}
}

func reloadEdit(c watch.Change, current *maps.Document, cfg *config.Config) (editor.Edit, bool) {
	switch c.Kind {
	case watch.KindTileset:
		if current != nil && c.Name == current.Terrain.Tileset {
			return editor.Edit{Kind: editor.EditReloadTileset}, true
		}
	case watch.KindImage:
		return editor.Edit{Kind: editor.EditReloadImages}, true
	case watch.KindDocument, watch.KindOther:
		if cfg.Map.File != "" {
			if samePath(c.Path, cfg.Map.File) {
				return editor.Edit{Kind: editor.EditReloadDocument}, true
			}
		} else if c.Kind == watch.KindDocument && c.Name == cfg.Map.Name {
			return editor.Edit{Kind: editor.EditReloadDocument}, true
		}
	}
	return editor.Edit{}, false
}

func samePath(a, b string) bool {
	aa, errA := filepath.Abs(a)
	bb, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return aa == bb
}

func portOf(addr string) string {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return port
}

func ensureHostKey(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil // key already exists
	}

	log.Info("Generating new host key...")
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return err
	}

	keyBytes, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return err
	}

	pemBlock := &pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: keyBytes,
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	return pem.Encode(f, pemBlock)
}
