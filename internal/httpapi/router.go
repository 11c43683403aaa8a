// Package httpapi serves map previews and edits over HTTP.
package httpapi

import (
	"context"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"webditor/internal/editor"
	"webditor/internal/log"
	"webditor/internal/maps"
)

// Editor is the editor loop as seen by the API.
type Editor interface {
	Snapshot() editor.Snapshot
	Apply(ctx context.Context, e editor.Edit) error
}

// Compiler turns a document into a game map file.
type Compiler interface {
	Compile(ctx context.Context, doc *maps.Document) ([]byte, error)
}

// Handler holds the API's dependencies.
type Handler struct {
	Editor   Editor
	Compiler Compiler
	// EditTimeout bounds how long an edit waits for the loop; zero means 5s.
	EditTimeout time.Duration
}

// NewRouter builds the gin engine. An empty origins list, or one holding
// "*", allows any origin.
func NewRouter(h *Handler, origins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	cfg := cors.DefaultConfig()
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	r.Use(cors.New(cfg))

	r.GET("/healthz", h.Health)

	m := r.Group("/map")
	m.GET("", h.Summary)
	m.GET("/world.png", h.World)
	m.GET("/viewport.png", h.Viewport)
	m.POST("/edit", h.Edit)
	m.POST("/select", h.Select)
	m.POST("/export", h.Export)
	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(map[string]any{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
			"took":   time.Since(start).String(),
		}).Debug("http request")
	}
}
