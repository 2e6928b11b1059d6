package memhist

import (
	"log/slog"

	"github.com/brinedb/memhist/internal/config"
)

// Option configures a Writer at construction time. New and FromMemory
// apply options in order, after the specification's default capacity
// limits so a caller can override a subset of them.
type Option func(*writerOptions)

type writerOptions struct {
	limits config.WriterConfig
	logger *slog.Logger
}

// WithLimits overrides the default capacity limits (chunk_size_overlap_limit,
// chunk_size_touch_limit, access_count_limit, transition_limit) a Writer's
// builders enforce.
func WithLimits(limits config.WriterConfig) Option {
	return func(o *writerOptions) { o.limits = limits }
}

// WithLogger sets the *slog.Logger a Writer emits to. Defaults to
// slog.Default() when not supplied.
func WithLogger(logger *slog.Logger) Option {
	return func(o *writerOptions) { o.logger = logger }
}
