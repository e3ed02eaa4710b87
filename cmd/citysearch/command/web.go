package command

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/city-search/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/city-search/internal/adapter/kafka"
	"github.com/couchcryptid/city-search/internal/adapter/rediscache"
	"github.com/couchcryptid/city-search/internal/adapter/suggestapi"
	"github.com/couchcryptid/city-search/internal/adapter/web"
	"github.com/couchcryptid/city-search/internal/app"
	"github.com/couchcryptid/city-search/internal/config"
	"github.com/couchcryptid/city-search/internal/domain"
	"github.com/couchcryptid/city-search/internal/location"
	"github.com/couchcryptid/city-search/internal/observability"
	"github.com/couchcryptid/city-search/internal/pipeline"
	"github.com/couchcryptid/city-search/internal/searchbar"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var webCmd = &cobra.Command{
	Use:   "web",
	Short: "Serve the city search page",
	Args:  cobra.NoArgs,
	RunE:  runWeb,
}

func runWeb(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	metrics := observability.NewMetrics()

	client := suggestapi.NewClient(cfg.SuggestAPIURL, cfg.SuggestTimeout, metrics, logger)
	breaker := suggestapi.NewBreakerSource("suggestions-api", client, cfg.BreakerFailures, cfg.BreakerTimeout, logger)
	ready := readiness{breaker}
	source, cacheReady, closeCache := withCache(cfg, breaker, metrics, logger)
	defer closeCache()
	if cacheReady != nil {
		ready = append(ready, cacheReady)
	}

	var publisher app.EventPublisher
	if cfg.KafkaEnabled {
		writer := kafkaadapter.NewWriter(cfg, logger)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()

		events := pipeline.New(writer, pipeline.Options{
			BatchSize:     cfg.KafkaBatchSize,
			FlushInterval: cfg.KafkaFlushInterval,
			QueueSize:     cfg.KafkaQueueSize,
		}, logger, metrics)
		eventsCtx, stopEvents := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = events.Run(eventsCtx)
		}()
		// Stops before the writer closes so the last batch is flushed.
		defer func() {
			stopEvents()
			<-done
		}()

		publisher = events
		logger.Info("search event publishing enabled", "topic", cfg.KafkaSearchTopic)
	}

	newPage := func(id string) *app.Page {
		return app.NewPage(id, source, publisher, metrics, logger, searchbar.WithDebounce(cfg.SearchDebounce))
	}
	sessions := web.NewSessions([]byte(cfg.SessionSecret), cfg.SessionTTL, newPage, metrics, logger)
	defer sessions.Close()
	if cfg.SessionSecret == "" {
		logger.Warn("SESSION_SECRET is unset; sessions will not survive a restart")
	}

	gin.SetMode(gin.ReleaseMode)
	handler := web.NewHandler(sessions, location.Configured(cfg.DefaultLocation), cfg.SearchSettleTimeout, logger)
	engine := web.NewEngine(handler, ready, logger)
	srv := httpadapter.NewServer(cfg.WebAddr, engine, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg.ShutdownTimeout, logger, srv)
}

// withCache wraps source with the configured response cache. It also returns
// the cache's readiness check, if it has one, and a func releasing its
// resources.
func withCache(cfg *config.Config, source domain.SuggestionSource, metrics *observability.Metrics, logger *slog.Logger) (domain.SuggestionSource, sharedobs.ReadinessChecker, func()) {
	switch cfg.SuggestCache {
	case config.CacheMemory:
		logger.Info("suggestion cache enabled", "backend", cfg.SuggestCache, "size", cfg.SuggestCacheSize)
		return suggestapi.NewCachedSource(source, suggestapi.NewLRUCache(cfg.SuggestCacheSize), metrics, logger), nil, func() {}
	case config.CacheRedis:
		logger.Info("suggestion cache enabled", "backend", cfg.SuggestCache, "addr", cfg.RedisAddr, "ttl", cfg.RedisTTL)
		cache := rediscache.New(rediscache.NewClient(cfg.RedisAddr), cfg.RedisTTL)
		return suggestapi.NewCachedSource(source, cache, metrics, logger), cache, func() {
			if err := cache.Close(); err != nil {
				logger.Error("redis close error", "error", err)
			}
		}
	default:
		return source, nil, func() {}
	}
}

// readiness is ready when every check passes.
type readiness []sharedobs.ReadinessChecker

func (r readiness) CheckReadiness(ctx context.Context) error {
	for _, check := range r {
		if err := check.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}
