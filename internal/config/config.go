// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.quarry/config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - Embedding: provider model and vector dimensionality (see validation.go)
//   - Storage: PostgreSQL + pgvector connection (see storage.go)
//   - Redis: semantic cache and distributed rate limiter backing store
//   - Cache: similarity threshold, TTL, max entries
//   - RateLimit: backend selection (local/redis), window, max requests
//
// Security: Sensitive data (passwords) are never logged; config directory uses 0750 permissions.
// Validation: Comprehensive range checks in validation.go with clear error messages.
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidRedisAddr indicates the Redis address is invalid.
	ErrInvalidRedisAddr = errors.New("invalid Redis address")

	// ErrInvalidCacheThreshold indicates the cache similarity threshold is out of range.
	ErrInvalidCacheThreshold = errors.New("invalid cache similarity threshold")

	// ErrInvalidCacheTTL indicates the cache TTL is out of range.
	ErrInvalidCacheTTL = errors.New("invalid cache TTL")

	// ErrInvalidCacheMaxEntries indicates the cache entry bound is out of range.
	ErrInvalidCacheMaxEntries = errors.New("invalid cache max entries")

	// ErrInvalidRateLimitBackend indicates the rate limiter backend is not supported.
	ErrInvalidRateLimitBackend = errors.New("invalid rate limit backend")

	// ErrInvalidRateLimitWindow indicates the rate limit window is out of range.
	ErrInvalidRateLimitWindow = errors.New("invalid rate limit window")

	// ErrInvalidRateLimitMax indicates the max-requests-per-window value is out of range.
	ErrInvalidRateLimitMax = errors.New("invalid rate limit max requests")

	// ErrInvalidRetrieval indicates retrieval parameters are out of range.
	ErrInvalidRetrieval = errors.New("invalid retrieval configuration")

	// ErrInvalidIngestEmbedRate indicates the ingestion embed rate is out of range.
	ErrInvalidIngestEmbedRate = errors.New("invalid ingest embed rate")
)

const (
	// DefaultEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 supports truncation via OutputDimensionality
	// (Matryoshka Representation Learning); we pin output to EmbeddingDimension
	// so the vector store schema and every produced vector agree by construction.
	DefaultEmbedderModel = "gemini-embedding-001"

	// EmbeddingDimension is the fixed dimensionality of every embedding in the
	// system. It must match the vector(N) column in db/migrations. Changing it
	// requires a migration and a full re-index.
	EmbeddingDimension = 1536

	// DefaultCacheThreshold is the default cosine similarity for a semantic
	// cache hit on the query path.
	DefaultCacheThreshold = 0.88

	// DefaultCacheTTLSeconds is the default sliding TTL for the semantic cache.
	DefaultCacheTTLSeconds = 3600

	// DefaultCacheMaxEntries bounds the semantic cache entry count.
	DefaultCacheMaxEntries = 500

	// DefaultIngestEmbedRate is the default embedding batch rate during
	// ingestion (batches per second). Large ingests otherwise burst straight
	// into provider quota limits.
	DefaultIngestEmbedRate = 2.0
)

// Rate limiter backend identifiers used in Config.RateLimitBackend.
const (
	RateLimitBackendLocal = "local"
	RateLimitBackendRedis = "redis"
)

// Config stores application configuration.
// SECURITY: Sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, API keys, tokens), update MarshalJSON.
type Config struct {
	// Embedding provider configuration
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`

	// Storage configuration (see storage.go for documentation)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Redis configuration (semantic cache bucket + distributed rate limiter)
	RedisAddr     string `mapstructure:"redis_addr" json:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" json:"redis_password"` // SENSITIVE: masked in MarshalJSON
	RedisDB       int    `mapstructure:"redis_db" json:"redis_db"`

	// Semantic cache configuration
	CacheThreshold  float64 `mapstructure:"cache_threshold" json:"cache_threshold"`
	CacheTTLSeconds int     `mapstructure:"cache_ttl_seconds" json:"cache_ttl_seconds"`
	CacheMaxEntries int     `mapstructure:"cache_max_entries" json:"cache_max_entries"`

	// Rate limiting configuration
	RateLimitBackend       string `mapstructure:"rate_limit_backend" json:"rate_limit_backend"`
	RateLimitWindowSeconds int    `mapstructure:"rate_limit_window_seconds" json:"rate_limit_window_seconds"`
	RateLimitMaxRequests   int    `mapstructure:"rate_limit_max_requests" json:"rate_limit_max_requests"`

	// Retrieval configuration
	RetrievalTopK      int     `mapstructure:"retrieval_top_k" json:"retrieval_top_k"`
	RetrievalThreshold float64 `mapstructure:"retrieval_threshold" json:"retrieval_threshold"`

	// Ingestion configuration (embedding batches per second; 0 disables throttling)
	IngestEmbedRate float64 `mapstructure:"ingest_embed_rate" json:"ingest_embed_rate"`

	// HTTP server configuration (serve mode only)
	ServeAddr  string `mapstructure:"serve_addr" json:"serve_addr"`
	TrustProxy bool   `mapstructure:"trust_proxy" json:"trust_proxy"` // Trust X-Real-IP/X-Forwarded-For headers (set true behind reverse proxy)

	// Observability configuration (OTLP trace export; empty endpoint disables tracing)
	OTLPEndpoint string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name" json:"service_name"`
	Environment  string `mapstructure:"environment" json:"environment"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	// Configuration directory: ~/.quarry/
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".quarry")

	// Ensure directory exists (use 0750 permission for better security)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	// Configure Viper
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	// Set default values
	setDefaults()

	// Bind environment variables
	bindEnvVariables()

	// Read configuration file (if exists)
	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	// Use Unmarshal to automatically map to struct (type-safe)
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// Parse DATABASE_URL if set (highest priority for PostgreSQL config)
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	// CRITICAL: Validate immediately (fail-fast)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// Embedding defaults
	viper.SetDefault("embedder_model", DefaultEmbedderModel)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "quarry")
	viper.SetDefault("postgres_password", "quarry_dev_password")
	viper.SetDefault("postgres_db_name", "quarry")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Redis defaults
	viper.SetDefault("redis_addr", "localhost:6379")
	viper.SetDefault("redis_db", 0)

	// Semantic cache defaults
	viper.SetDefault("cache_threshold", DefaultCacheThreshold)
	viper.SetDefault("cache_ttl_seconds", DefaultCacheTTLSeconds)
	viper.SetDefault("cache_max_entries", DefaultCacheMaxEntries)

	// Rate limiting defaults (interactive query tier)
	viper.SetDefault("rate_limit_backend", RateLimitBackendLocal)
	viper.SetDefault("rate_limit_window_seconds", 60)
	viper.SetDefault("rate_limit_max_requests", 30)

	// Retrieval defaults
	viper.SetDefault("retrieval_top_k", 5)
	viper.SetDefault("retrieval_threshold", 0.7)

	// Ingestion defaults
	viper.SetDefault("ingest_embed_rate", DefaultIngestEmbedRate)

	// HTTP server defaults
	viper.SetDefault("serve_addr", "localhost:8080")
	// Proxy trust (default: false — safe for direct exposure; set true behind reverse proxy)
	viper.SetDefault("trust_proxy", false)

	// Observability defaults (empty endpoint = tracing disabled)
	viper.SetDefault("otlp_endpoint", "")
	viper.SetDefault("service_name", "quarry")
	viper.SetDefault("environment", "dev")
}

// bindEnvVariables binds environment variables explicitly.
//
// Secrets:
//  1. GEMINI_API_KEY - Read directly by Genkit (not via Viper), validated in cfg.Validate()
//  2. QUARRY_REDIS_PASSWORD - Redis AUTH password
//  3. DATABASE_URL - Parsed separately in parseDatabaseURL()
func bindEnvVariables() {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail)
	// If this panics, it's a BUG in our code, not a runtime error
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("redis_addr", "QUARRY_REDIS_ADDR")
	mustBind("redis_password", "QUARRY_REDIS_PASSWORD")

	mustBind("rate_limit_backend", "QUARRY_RATE_LIMIT_BACKEND")
	mustBind("serve_addr", "QUARRY_SERVE_ADDR")
	mustBind("trust_proxy", "QUARRY_TRUST_PROXY")

	mustBind("otlp_endpoint", "QUARRY_OTLP_ENDPOINT")
	mustBind("environment", "QUARRY_ENVIRONMENT")

	// NOTE: GEMINI_API_KEY is read directly by Genkit, not via Viper.
	// Validation checks its presence in cfg.Validate().
}

// CacheTTL returns the semantic cache TTL as a time.Duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// RateLimitWindow returns the rate limit window as a time.Duration.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

// maskedValue is the placeholder for masked sensitive data.
// Using ████████ (full-width blocks U+2588) to avoid substring matching
// Previous attempts:
// - "****" failed: passwords with "*" leaked
// - "[REDACTED]" failed: passwords with "A", "D", "E", etc. leaked
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Shows first 2 and last 2 characters, masks the rest.
// SECURITY: For secrets <=8 chars, fully masks to prevent substring attacks.
// For longer secrets, shows partial chars with unique separator.
//
// THREAT MODEL: This defends against accidental logging of real secrets.
// It is NOT cryptographically secure - if logs are compromised, rotate secrets.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	// Fully mask short secrets to prevent substring matching attacks
	// Example attack: input "00***" → output "00******" contains "00***"
	if len(s) <= 8 {
		return maskedValue
	}
	// For longer secrets, show first/last 2 chars for debug utility
	// Example: "my_long_secret_key_123" → "my<████████>23"
	prefix := make([]byte, 2)
	suffix := make([]byte, 2)
	copy(prefix, s[:2])
	copy(suffix, s[len(s)-2:])
	return string(prefix) + "<" + maskedValue + ">" + string(suffix)
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
//
// Sensitive fields masked:
//   - PostgresPassword
//   - RedisPassword
//
// When adding new sensitive fields, update this method.
// The compiler will remind you when tests fail.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.RedisPassword = maskSecret(a.RedisPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
