// Package log provides the logging infrastructure for quarry.
//
// Loggers are dependency-injected: every component receives one through its
// constructor and narrows it with With(), e.g.
//
//	cache := semcache.New(kv, cacheCfg, logger.With("component", "semcache"))
//
// There is no package-level logger; tests pass NewNop() or capture output
// with NewWithWriter.
package log

import (
	"io"
	"log/slog"
	"os"
)

// Logger is a type alias for *slog.Logger, keeping full compatibility with
// the slog ecosystem without a wrapper interface. Components should accept
// log.Logger as a dependency.
type Logger = *slog.Logger

// Config defines logger construction options. The zero value gives text
// output at Info level without source locations.
type Config struct {
	// Level sets the minimum level to emit.
	Level slog.Level

	// JSON switches from human-readable text to JSON lines.
	JSON bool

	// AddSource annotates each record with its file and line.
	AddSource bool
}

// New creates a logger writing to os.Stderr.
func New(cfg Config) Logger {
	return NewWithWriter(os.Stderr, cfg)
}

// NewWithWriter creates a logger writing to w. Tests use this with a
// bytes.Buffer to assert on emitted records.
func NewWithWriter(w io.Writer, cfg Config) Logger {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// NewNop creates a logger that discards everything. Test-only: production
// code silently losing its logs is never acceptable.
func NewNop() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
