package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"slices"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	// 0. Check for nil config (defensive programming)
	if c == nil {
		return ErrConfigNil
	}

	// 1. API Key validation (required for embedding generation)
	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
			"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
			ErrMissingAPIKey)
	}

	// 2. Embedding configuration validation
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	// 3. PostgreSQL configuration validation
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}

	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}

	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres_password must be set in config.yaml",
			ErrInvalidPostgresPassword)
	}

	// CRITICAL: Warn if using default dev password (but don't block - user might be in dev)
	if c.PostgresPassword == "quarry_dev_password" {
		slog.Warn("Using default development password for PostgreSQL",
			"warning", "Change postgres_password in config.yaml for production deployments")
	}

	// Validate password strength (minimum 8 characters)
	if len(c.PostgresPassword) < 8 {
		return fmt.Errorf("%w: postgres_password must be at least 8 characters (got %d)",
			ErrInvalidPostgresPassword, len(c.PostgresPassword))
	}

	// 4. PostgreSQL SSL mode validation
	// DO NOT mutate config in Validate() - just validate
	// Note: Even with setDefaults(), user can override with empty value in YAML
	// Modern SSL modes only - exclude deprecated allow/prefer (MITM vulnerable)
	// Reference: https://www.postgresql.org/docs/current/libpq-ssl.html
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if c.PostgresSSLMode == "" {
		return fmt.Errorf("%w: postgres_ssl_mode is empty (should have default from setDefaults)",
			ErrInvalidPostgresSSLMode)
	}

	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v\n"+
			"Note: 'allow' and 'prefer' modes are deprecated (vulnerable to MITM attacks)",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	// 5. Redis validation (required when any Redis-backed component is enabled;
	// the address must always parse since the semantic cache uses it)
	if c.RedisAddr == "" {
		return fmt.Errorf("%w: redis_addr cannot be empty", ErrInvalidRedisAddr)
	}
	if _, _, err := net.SplitHostPort(c.RedisAddr); err != nil {
		return fmt.Errorf("%w: %q must be host:port: %v", ErrInvalidRedisAddr, c.RedisAddr, err)
	}

	// 6. Semantic cache validation
	// Cosine similarity ranges [-1, 1]; a hit threshold below 0 would match
	// opposite-direction vectors, which is never what callers want.
	if c.CacheThreshold < 0 || c.CacheThreshold > 1 {
		return fmt.Errorf("%w: must be between 0.0 and 1.0, got %.2f", ErrInvalidCacheThreshold, c.CacheThreshold)
	}

	if c.CacheTTLSeconds < 1 {
		return fmt.Errorf("%w: must be at least 1 second, got %d", ErrInvalidCacheTTL, c.CacheTTLSeconds)
	}

	if c.CacheMaxEntries < 1 || c.CacheMaxEntries > 100000 {
		return fmt.Errorf("%w: must be between 1 and 100,000, got %d", ErrInvalidCacheMaxEntries, c.CacheMaxEntries)
	}

	// 7. Rate limiting validation
	validBackends := []string{RateLimitBackendLocal, RateLimitBackendRedis}
	if !slices.Contains(validBackends, c.RateLimitBackend) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidRateLimitBackend, c.RateLimitBackend, validBackends)
	}

	if c.RateLimitWindowSeconds < 1 {
		return fmt.Errorf("%w: must be at least 1 second, got %d",
			ErrInvalidRateLimitWindow, c.RateLimitWindowSeconds)
	}

	if c.RateLimitMaxRequests < 1 {
		return fmt.Errorf("%w: must be at least 1, got %d",
			ErrInvalidRateLimitMax, c.RateLimitMaxRequests)
	}

	// 8. Retrieval validation
	if c.RetrievalTopK < 1 || c.RetrievalTopK > 100 {
		return fmt.Errorf("%w: retrieval_top_k must be between 1 and 100, got %d",
			ErrInvalidRetrieval, c.RetrievalTopK)
	}
	if c.RetrievalThreshold < 0 || c.RetrievalThreshold > 1 {
		return fmt.Errorf("%w: retrieval_threshold must be between 0.0 and 1.0, got %.2f",
			ErrInvalidRetrieval, c.RetrievalThreshold)
	}

	// 9. Ingestion validation (0 disables the embedding throttle)
	if c.IngestEmbedRate < 0 || c.IngestEmbedRate > 1000 {
		return fmt.Errorf("%w: ingest_embed_rate must be between 0 and 1000 batches/sec, got %.2f",
			ErrInvalidIngestEmbedRate, c.IngestEmbedRate)
	}

	return nil
}
