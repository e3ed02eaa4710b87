package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/city-search/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Suggestion cache backends accepted by SUGGEST_CACHE.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	APIAddr         string
	WebAddr         string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// City catalog and suggestions API.
	CatalogPath             string
	CatalogDefaultLatitude  float64
	CatalogDefaultLongitude float64
	CatalogPageSize         int
	CORSOrigins             []string
	APIRateLimit            float64
	APIRateBurst            int

	// Suggestion client used by the front-end.
	SuggestAPIURL    string
	SuggestTimeout   time.Duration
	SuggestCache     string
	SuggestCacheSize int
	RedisAddr        string
	RedisTTL         time.Duration
	BreakerFailures  uint32
	BreakerTimeout   time.Duration

	// Search bar behaviour.
	SearchDebounce      time.Duration
	SearchSettleTimeout time.Duration
	DefaultLocation     *domain.Coordinate

	// Browser sessions.
	SessionSecret string
	SessionTTL    time.Duration

	// Search event publishing.
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaSearchTopic   string
	KafkaBatchSize     int
	KafkaFlushInterval time.Duration
	KafkaQueueSize     int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		APIAddr:          sharedcfg.EnvOrDefault("API_ADDR", ":8080"),
		WebAddr:          sharedcfg.EnvOrDefault("WEB_ADDR", ":3000"),
		LogLevel:         sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:        sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:  shutdownTimeout,
		CatalogPath:      sharedcfg.EnvOrDefault("CATALOG_PATH", "data/cities_canada-usa.tsv"),
		CORSOrigins:      splitCSV(sharedcfg.EnvOrDefault("CORS_ORIGINS", "*")),
		SuggestAPIURL:    strings.TrimRight(sharedcfg.EnvOrDefault("SUGGEST_API_URL", "http://localhost:8080"), "/"),
		SuggestCache:     strings.ToLower(sharedcfg.EnvOrDefault("SUGGEST_CACHE", CacheNone)),
		RedisAddr:        sharedcfg.EnvOrDefault("REDIS_ADDR", "localhost:6379"),
		SessionSecret:    os.Getenv("SESSION_SECRET"),
		KafkaEnabled:     os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:     sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSearchTopic: sharedcfg.EnvOrDefault("KAFKA_SEARCH_TOPIC", "city-searches"),
	}

	if cfg.CatalogDefaultLatitude, err = parseFloat("CATALOG_DEFAULT_LATITUDE", "45.9778182"); err != nil {
		return nil, err
	}
	if cfg.CatalogDefaultLongitude, err = parseFloat("CATALOG_DEFAULT_LONGITUDE", "-77.8968753"); err != nil {
		return nil, err
	}
	if cfg.CatalogPageSize, err = parsePositiveInt("CATALOG_PAGE_SIZE", "5"); err != nil {
		return nil, err
	}
	if cfg.APIRateLimit, err = parseFloat("API_RATE_LIMIT", "0"); err != nil || cfg.APIRateLimit < 0 {
		return nil, errors.New("invalid API_RATE_LIMIT")
	}
	if cfg.APIRateBurst, err = parsePositiveInt("API_RATE_BURST", "10"); err != nil {
		return nil, err
	}
	if cfg.SuggestTimeout, err = parseDuration("SUGGEST_TIMEOUT", "5s", false); err != nil {
		return nil, err
	}
	if cfg.SuggestCacheSize, err = parsePositiveInt("SUGGEST_CACHE_SIZE", "1000"); err != nil {
		return nil, err
	}
	if cfg.RedisTTL, err = parseDuration("REDIS_TTL", "1h", false); err != nil {
		return nil, err
	}
	failures, err := parsePositiveInt("BREAKER_FAILURES", "5")
	if err != nil {
		return nil, err
	}
	cfg.BreakerFailures = uint32(failures) //nolint:gosec // bounded by parsePositiveInt
	if cfg.BreakerTimeout, err = parseDuration("BREAKER_TIMEOUT", "30s", false); err != nil {
		return nil, err
	}
	if cfg.SearchDebounce, err = parseDuration("SEARCH_DEBOUNCE", "0s", true); err != nil {
		return nil, err
	}
	if cfg.SearchSettleTimeout, err = parseDuration("SEARCH_SETTLE_TIMEOUT", "2s", false); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = parseDuration("SESSION_TTL", "30m", false); err != nil {
		return nil, err
	}
	if cfg.KafkaBatchSize, err = parsePositiveInt("KAFKA_BATCH_SIZE", "100"); err != nil {
		return nil, err
	}
	if cfg.KafkaFlushInterval, err = parseDuration("KAFKA_FLUSH_INTERVAL", "1s", false); err != nil {
		return nil, err
	}
	if cfg.KafkaQueueSize, err = parsePositiveInt("KAFKA_QUEUE_SIZE", "1000"); err != nil {
		return nil, err
	}
	if cfg.DefaultLocation, err = parseDefaultLocation(); err != nil {
		return nil, err
	}

	switch cfg.SuggestCache {
	case CacheNone, CacheMemory, CacheRedis:
	default:
		return nil, fmt.Errorf("invalid SUGGEST_CACHE %q: want none, memory or redis", cfg.SuggestCache)
	}
	if cfg.SuggestAPIURL == "" {
		return nil, errors.New("SUGGEST_API_URL is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
	}
	if cfg.KafkaEnabled && cfg.KafkaSearchTopic == "" {
		return nil, errors.New("KAFKA_SEARCH_TOPIC is required")
	}

	return cfg, nil
}

func parseDuration(key, def string, allowZero bool) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseFloat(key, def string) (float64, error) {
	f, err := strconv.ParseFloat(sharedcfg.EnvOrDefault(key, def), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return f, nil
}

func parsePositiveInt(key, def string) (int, error) {
	n, err := strconv.Atoi(sharedcfg.EnvOrDefault(key, def))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

// parseDefaultLocation reads DEFAULT_LATITUDE and DEFAULT_LONGITUDE. Both or
// neither must be set.
func parseDefaultLocation() (*domain.Coordinate, error) {
	lat, lon := os.Getenv("DEFAULT_LATITUDE"), os.Getenv("DEFAULT_LONGITUDE")
	if lat == "" && lon == "" {
		return nil, nil
	}
	if lat == "" || lon == "" {
		return nil, errors.New("DEFAULT_LATITUDE and DEFAULT_LONGITUDE must be set together")
	}
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return nil, errors.New("invalid DEFAULT_LATITUDE")
	}
	lo, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return nil, errors.New("invalid DEFAULT_LONGITUDE")
	}
	coord := domain.Coordinate{Latitude: la, Longitude: lo}
	if !coord.Valid() {
		return nil, errors.New("DEFAULT_LATITUDE/DEFAULT_LONGITUDE out of range")
	}
	return &coord, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
