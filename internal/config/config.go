package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/spc-outlook-etl/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// DefaultIEMBaseURL is the IEM SPC outlook archive endpoint.
const DefaultIEMBaseURL = "https://mesonet.agron.iastate.edu/cgi-bin/request/gis/spc_outlooks.py"

// Archive store backends.
const (
	StoreFS    = "fs"
	StoreRedis = "redis"
)

// Product is one outlook the poller tracks.
type Product struct {
	Day  domain.Day
	Type domain.OutlookType
}

func (p Product) String() string { return fmt.Sprintf("%d:%s", p.Day, p.Type) }

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Upstream archive source.
	IEMBaseURL        string
	IEMTimeout        time.Duration
	IEMMaxAttempts    int
	IEMInitialBackoff time.Duration
	IEMRateLimit      float64 // requests per second

	// Archive persistence.
	ArchiveStore         string
	ArchiveDir           string
	ArchiveMemoryEntries int
	RedisAddr            string
	RedisTTL             time.Duration

	KafkaBrokers      []string
	KafkaOutlookTopic string

	PollInterval   time.Duration
	PollProducts   []Product
	ExtractWorkers int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		IEMBaseURL: sharedcfg.EnvOrDefault("IEM_BASE_URL", DefaultIEMBaseURL),

		ArchiveStore: strings.ToLower(sharedcfg.EnvOrDefault("ARCHIVE_STORE", StoreFS)),
		ArchiveDir:   sharedcfg.EnvOrDefault("ARCHIVE_DIR", "outlooks"),
		RedisAddr:    sharedcfg.EnvOrDefault("REDIS_ADDR", "localhost:6379"),

		KafkaBrokers:      sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaOutlookTopic: sharedcfg.EnvOrDefault("KAFKA_OUTLOOK_TOPIC", "spc-outlooks"),
	}

	if cfg.IEMTimeout, err = parsePositiveDuration("IEM_TIMEOUT", "60s"); err != nil {
		return nil, err
	}
	if cfg.IEMInitialBackoff, err = parsePositiveDuration("IEM_INITIAL_BACKOFF", "2s"); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = parsePositiveDuration("POLL_INTERVAL", "10m"); err != nil {
		return nil, err
	}
	if cfg.RedisTTL, err = parseDuration("REDIS_TTL", "0s"); err != nil {
		return nil, err
	}
	if cfg.IEMMaxAttempts, err = parsePositiveInt("IEM_MAX_ATTEMPTS", 4); err != nil {
		return nil, err
	}
	if cfg.ArchiveMemoryEntries, err = parseNonNegativeInt("ARCHIVE_MEMORY_ENTRIES", 32); err != nil {
		return nil, err
	}
	if cfg.ExtractWorkers, err = parsePositiveInt("EXTRACT_WORKERS", 4); err != nil {
		return nil, err
	}

	rate, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("IEM_RATE_LIMIT", "1"), 64)
	if err != nil || rate <= 0 {
		return nil, errors.New("invalid IEM_RATE_LIMIT: must be a positive number of requests per second")
	}
	cfg.IEMRateLimit = rate

	cfg.PollProducts, err = ParseProducts(sharedcfg.EnvOrDefault("POLL_PRODUCTS", "1:convective,2:convective,3:convective,1:fire,2:fire"))
	if err != nil {
		return nil, err
	}

	if cfg.ArchiveStore != StoreFS && cfg.ArchiveStore != StoreRedis {
		return nil, fmt.Errorf("invalid ARCHIVE_STORE %q: must be %q or %q", cfg.ArchiveStore, StoreFS, StoreRedis)
	}
	if cfg.ArchiveStore == StoreFS && cfg.ArchiveDir == "" {
		return nil, errors.New("ARCHIVE_DIR is required when ARCHIVE_STORE is fs")
	}
	if cfg.ArchiveStore == StoreRedis && cfg.RedisAddr == "" {
		return nil, errors.New("REDIS_ADDR is required when ARCHIVE_STORE is redis")
	}
	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaOutlookTopic == "" {
		return nil, errors.New("KAFKA_OUTLOOK_TOPIC is required")
	}

	return cfg, nil
}

// ParseProducts parses "1:convective,2:fire" into poller products.
func ParseProducts(s string) ([]Product, error) {
	var out []Product
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		dayStr, typStr, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("invalid POLL_PRODUCTS entry %q: want <day>:<type>", part)
		}
		day, err := strconv.Atoi(strings.TrimSpace(dayStr))
		if err != nil || !domain.Day(day).Valid() {
			return nil, fmt.Errorf("invalid POLL_PRODUCTS entry %q: day must be 1, 2 or 3", part)
		}
		typ, err := domain.ParseOutlookType(typStr)
		if err != nil {
			return nil, fmt.Errorf("invalid POLL_PRODUCTS entry %q: %w", part, err)
		}
		p := Product{Day: domain.Day(day), Type: typ}
		if !containsProduct(out, p) {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("POLL_PRODUCTS is required")
	}
	return out, nil
}

func containsProduct(ps []Product, p Product) bool {
	for _, q := range ps {
		if q == p {
			return true
		}
	}
	return false
}

func parseDuration(name, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(name, def))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s: must be a non-negative duration", name)
	}
	return d, nil
}

func parsePositiveDuration(name, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(name, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", name)
	}
	return d, nil
}

func parsePositiveInt(name string, def int) (int, error) {
	n, err := strconv.Atoi(sharedcfg.EnvOrDefault(name, strconv.Itoa(def)))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", name)
	}
	return n, nil
}

func parseNonNegativeInt(name string, def int) (int, error) {
	n, err := strconv.Atoi(sharedcfg.EnvOrDefault(name, strconv.Itoa(def)))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: must be zero or a positive integer", name)
	}
	return n, nil
}
