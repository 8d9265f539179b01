package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/paulmach/orb"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// BuildConcurrency bounds the queries of one batch built in parallel.
	BuildConcurrency int

	// FIRMS API configuration.
	FIRMSBaseURL string
	FIRMSMapKey  string
	FIRMSTimeout time.Duration

	// Result cache configuration. A zero CacheSize disables the cache; a zero
	// CacheTTL keeps entries until evicted.
	CacheSize int
	CacheTTL  time.Duration

	// FallbackCentroid, when set, is returned for queries with no
	// high-confidence detections instead of an empty-dataset error.
	FallbackCentroid *orb.Point
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	firmsTimeout, err := parsePositiveDuration("FIRMS_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	cacheSize, err := parseInt("CACHE_SIZE", 256, 0)
	if err != nil {
		return nil, err
	}

	buildConcurrency, err := parseInt("BUILD_CONCURRENCY", 4, 1)
	if err != nil {
		return nil, err
	}

	cacheTTL, err := time.ParseDuration(sharedcfg.EnvOrDefault("CACHE_TTL", "0s"))
	if err != nil || cacheTTL < 0 {
		return nil, errors.New("invalid CACHE_TTL")
	}

	fallback, err := parseFallbackCentroid(os.Getenv("FALLBACK_CENTROID"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "firms-queries"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "firms-detections"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "firms-detection-etl"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,
		BuildConcurrency:   buildConcurrency,

		FIRMSBaseURL: strings.TrimRight(sharedcfg.EnvOrDefault("FIRMS_BASE_URL", "https://firms.modaps.eosdis.nasa.gov"), "/"),
		FIRMSMapKey:  os.Getenv("FIRMS_MAP_KEY"),
		FIRMSTimeout: firmsTimeout,

		CacheSize:        cacheSize,
		CacheTTL:         cacheTTL,
		FallbackCentroid: fallback,
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}
	if cfg.FIRMSBaseURL == "" {
		return nil, errors.New("FIRMS_BASE_URL is required")
	}

	return cfg, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

// parseInt reads an integer variable no smaller than minimum, using def when
// it is unset.
func parseInt(key string, def, minimum int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < minimum {
		return 0, fmt.Errorf("invalid %s: must be an integer >= %d", key, minimum)
	}
	return n, nil
}

// parseFallbackCentroid parses "lat,lon". An empty value disables the fallback.
func parseFallbackCentroid(s string) (*orb.Point, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	latStr, lonStr, ok := strings.Cut(s, ",")
	if !ok {
		return nil, errors.New("invalid FALLBACK_CENTROID: expected \"lat,lon\"")
	}
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	lon, errLon := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if errLat != nil || errLon != nil || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, errors.New("invalid FALLBACK_CENTROID: coordinates out of range")
	}
	return &orb.Point{lon, lat}, nil
}
