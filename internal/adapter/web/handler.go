// Package web serves the server-rendered search page.
package web

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/city-search/internal/adapter/httpadapter"
	"github.com/couchcryptid/city-search/internal/app"
	"github.com/couchcryptid/city-search/internal/domain"
	"github.com/couchcryptid/city-search/internal/location"
	"github.com/couchcryptid/city-search/internal/render"
	"github.com/couchcryptid/city-search/internal/searchbar"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/gin-gonic/gin"
)

const (
	partialHeader      = "X-Partial"
	partialSuggestions = "suggestions"
	contentTypeHTML    = "text/html; charset=utf-8"
)

// Handler serves the search page for each browser session.
type Handler struct {
	sessions *Sessions
	fallback domain.LocationSource
	settle   time.Duration
	logger   *slog.Logger
}

// NewHandler creates the page handler. fallback is the position used when
// the browser sends no hints.
func NewHandler(sessions *Sessions, fallback domain.LocationSource, settle time.Duration, logger *slog.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		fallback: fallback,
		settle:   settle,
		logger:   logger,
	}
}

// NewEngine builds the web front-end: ops routes plus the page routes.
func NewEngine(h *Handler, ready sharedobs.ReadinessChecker, logger *slog.Logger) *gin.Engine {
	engine := httpadapter.NewEngine(ready, logger)
	h.Register(engine)
	return engine
}

// Register adds the page routes to r.
func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/", h.index)
	r.POST("/query", h.query)
	r.POST("/pick", h.pick)
	r.POST("/search", h.search)
	r.GET(render.CityImagePath, h.cityImage)
}

func (h *Handler) index(c *gin.Context) {
	page, ok := h.page(c)
	if !ok {
		return
	}
	h.wait(c, page)
	h.render(c, page.Render)
}

func (h *Handler) query(c *gin.Context) {
	page, ok := h.page(c)
	if !ok {
		return
	}
	page.Bar().SetQuery(c.PostForm("q"))
	h.wait(c, page)

	if c.GetHeader(partialHeader) == partialSuggestions {
		h.render(c, page.RenderSuggestions)
		return
	}
	h.render(c, page.Render)
}

func (h *Handler) pick(c *gin.Context) {
	page, ok := h.page(c)
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.PostForm("index"))
	if err != nil {
		c.String(http.StatusBadRequest, "invalid suggestion index")
		return
	}
	if err := page.Bar().Activate(index); err != nil {
		if errors.Is(err, searchbar.ErrNoSuggestion) {
			c.String(http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("activate suggestion", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	h.wait(c, page)
	h.render(c, page.Render)
}

func (h *Handler) search(c *gin.Context) {
	page, ok := h.page(c)
	if !ok {
		return
	}
	if key := c.PostForm("key"); key == "Enter" {
		page.Bar().KeyDown(key)
	} else {
		page.Bar().Submit()
	}
	h.render(c, page.Render)
}

func (h *Handler) cityImage(c *gin.Context) {
	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, "image/svg+xml", render.CityImage())
}

// page resolves the session's page and mounts its bar. Only the first Mount
// of a page takes effect, so the request that creates the session decides the
// position.
func (h *Handler) page(c *gin.Context) (*app.Page, bool) {
	page, created, err := h.sessions.Page(c.Writer, c.Request)
	if err != nil {
		h.logger.Error("resolve session", "error", err)
		c.Status(http.StatusInternalServerError)
		return nil, false
	}
	if created {
		src := location.FromRequest(c.Request.URL.Query(), h.fallback)
		page.Bar().Mount(context.WithoutCancel(c.Request.Context()), src)
	}
	return page, true
}

// wait lets in-flight fetches land before rendering. An unsettled view is
// rendered when the timeout passes.
func (h *Handler) wait(c *gin.Context, page *app.Page) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.settle)
	defer cancel()
	if err := page.Bar().Wait(ctx); err != nil {
		h.logger.Debug("rendering before search bar settled", "session", page.ID(), "error", err)
	}
}

func (h *Handler) render(c *gin.Context, fn func(io.Writer) error) {
	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		h.logger.Error("render page", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, contentTypeHTML, buf.Bytes())
}
