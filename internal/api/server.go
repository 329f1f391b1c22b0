package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/quarrylabs/quarry/internal/ratelimit"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger     *slog.Logger
	Retriever  Retriever         // Required
	Ingestor   Ingestor          // Required
	Limiter    ratelimit.Limiter // Required
	TopK       int               // Default result count for queries
	Threshold  float64           // Default similarity threshold for queries
	TrustProxy bool              // Trust X-Real-IP/X-Forwarded-For headers (behind reverse proxy)
}

// Server is the JSON API HTTP server.
type Server struct {
	handler http.Handler
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Retriever == nil {
		return nil, errors.New("retriever is required")
	}
	if cfg.Ingestor == nil {
		return nil, errors.New("ingestor is required")
	}
	if cfg.Limiter == nil {
		return nil, errors.New("rate limiter is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	qh := &queryHandler{
		retriever: cfg.Retriever,
		topK:      cfg.TopK,
		threshold: cfg.Threshold,
		logger:    logger,
	}
	dh := &documentHandler{
		ingestor: cfg.Ingestor,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/query", qh.query)
	mux.HandleFunc("POST /api/v1/documents", dh.upload)

	// Build middleware stack (outermost first):
	//   Recovery → Logging → RateLimit → Routes
	// Health probes register on the outer mux only, ahead of the rate
	// limiter, so orchestrators are never 429'd.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(cfg.Limiter, cfg.TrustProxy, logger)(handler)

	outer := http.NewServeMux()
	outer.HandleFunc("GET /healthz", health)
	outer.Handle("/", handler)

	var root http.Handler = outer
	root = loggingMiddleware(logger)(root)
	root = recoveryMiddleware(logger)(root)

	return &Server{handler: root}, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// health is a simple health check endpoint for Docker/Kubernetes probes.
// Returns 200 OK with {"status":"ok"}.
func health(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
