package assets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"webditor/internal/maps"
)

// maxErrorBody bounds how much of an error response is kept for messages.
const maxErrorBody = 512

// Client talks to the editor backend over HTTP.
type Client struct {
	base string
	http *http.Client
}

// NewClient returns a client for the backend at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

func (c *Client) url(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.base + "/" + strings.Join(escaped, "/")
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", req.URL.Path, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.URL.Path, err)
	}
	return data, nil
}

func (c *Client) get(ctx context.Context, parts ...string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(parts...), nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// FetchTileset downloads the compressed megatile atlas.
func (c *Client) FetchTileset(ctx context.Context, name string) ([]byte, error) {
	return c.get(ctx, "static", "terrain", name, "megatile_color.gz")
}

// FetchGroupTable downloads the tile group table JSON.
func (c *Client) FetchGroupTable(ctx context.Context, name string) ([]byte, error) {
	return c.get(ctx, "api", "v1", "tileset", "cv5", name)
}

// FetchDocument downloads and parses a map document.
func (c *Client) FetchDocument(ctx context.Context, name string) (*maps.Document, error) {
	data, err := c.get(ctx, "api", "v1", "map", name)
	if err != nil {
		return nil, err
	}
	doc, err := maps.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("map %s: %w", name, err)
	}
	return doc, nil
}

// FetchImage downloads an image bundle's files concurrently. A missing
// team_color.png is not an error.
func (c *Client) FetchImage(ctx context.Context, key ImageKey) (*RawBundle, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	version, index := key.Version, fmt.Sprint(key.Index)

	var raw RawBundle
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		raw.Diffuse, err = c.get(gctx, "static", "anim", version, index, "diffuse.png")
		return err
	})
	g.Go(func() error {
		data, err := c.get(gctx, "static", "anim", version, index, "team_color.png")
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		raw.TeamColor = data
		return err
	})
	g.Go(func() error {
		var err error
		raw.Meta, err = c.get(gctx, "static", "anim", version, index, "meta.json")
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("image %s: %w", key, err)
	}
	return &raw, nil
}

// FetchManifest downloads the image manifest for a version.
func (c *Client) FetchManifest(ctx context.Context, version string) (Manifest, error) {
	if !ValidVersion(version) {
		return nil, fmt.Errorf("%w: version %q", ErrInvalidKey, version)
	}
	data, err := c.get(ctx, "static", "anim", version, "manifest.json")
	if err != nil {
		return nil, err
	}
	return ParseManifest(data)
}

// Compile posts the document to the backend compiler and returns the
// compiled map bytes.
func (c *Client) Compile(ctx context.Context, doc *maps.Document) ([]byte, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode map %q: %w", doc.Name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("api", "v1", "map", "compile"), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/octet-stream")
	return c.do(req)
}
