package httpadapter

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/couchcryptid/city-search/internal/catalog"
	"github.com/couchcryptid/city-search/internal/config"
	"github.com/couchcryptid/city-search/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"
)

type suggestionsRequest struct {
	Q         string   `form:"q" binding:"required"`
	Latitude  *float64 `form:"latitude"`
	Longitude *float64 `form:"longitude"`
	Page      *int     `form:"page" binding:"omitempty,min=0"`
}

// SuggestionsHandler serves GET /suggestions.
type SuggestionsHandler struct {
	catalog    *catalog.Catalog
	defaultLat float64
	defaultLon float64
	metrics    *observability.Metrics
	logger     *slog.Logger
}

func NewSuggestionsHandler(cat *catalog.Catalog, defaultLat, defaultLon float64, metrics *observability.Metrics, logger *slog.Logger) *SuggestionsHandler {
	metrics.CatalogCities.Set(float64(cat.Len()))
	return &SuggestionsHandler{
		catalog:    cat,
		defaultLat: defaultLat,
		defaultLon: defaultLon,
		metrics:    metrics,
		logger:     logger,
	}
}

// NewAPIEngine builds the suggestions API: ops routes, CORS, the optional
// per-IP rate limit and GET /suggestions.
func NewAPIEngine(cfg *config.Config, cat *catalog.Catalog, metrics *observability.Metrics, logger *slog.Logger) *gin.Engine {
	registerFormTagNames()

	engine := NewEngine(cat, logger)
	engine.Use(cors.New(corsConfig(cfg.CORSOrigins)))

	h := NewSuggestionsHandler(cat, cfg.CatalogDefaultLatitude, cfg.CatalogDefaultLongitude, metrics, logger)
	group := engine.Group("/")
	if cfg.APIRateLimit > 0 {
		group.Use(NewIPRateLimiter(rate.Limit(cfg.APIRateLimit), cfg.APIRateBurst, logger).RateLimit())
	}
	group.GET("/suggestions", h.Handle)
	return engine
}

// Handle binds the query string, fills in the default position and returns
// the matching page.
func (h *SuggestionsHandler) Handle(c *gin.Context) {
	var req suggestionsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.metrics.APIQueries.WithLabelValues("invalid").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": formatBindError(err)})
		return
	}

	lat, lon := h.defaultLat, h.defaultLon
	if req.Latitude != nil {
		lat = *req.Latitude
	}
	if req.Longitude != nil {
		lon = *req.Longitude
	}
	h.logger.Info("suggestions query", "q", req.Q, "latitude", lat, "longitude", lon)

	page := h.catalog.Suggest(catalog.Query{
		Text:      req.Q,
		Latitude:  &lat,
		Longitude: &lon,
		Page:      req.Page,
	})

	outcome := "match"
	if len(page.Cities) == 0 {
		outcome = "empty"
	}
	h.metrics.APIQueries.WithLabelValues(outcome).Inc()
	h.metrics.APIQueryResult.Observe(float64(len(page.Cities)))

	c.JSON(http.StatusOK, page)
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Accept", "Content-Type"},
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}

var tagNameOnce sync.Once

// registerFormTagNames makes validation errors report query parameter names
// instead of struct field names.
func registerFormTagNames() {
	tagNameOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("form"), ",")
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
	})
}

func formatBindError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Sprintf("invalid query: %v", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
