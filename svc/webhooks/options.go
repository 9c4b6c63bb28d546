package webhooks

import (
	"log/slog"
)

// Option configures Handler.
type Option func(*Handler)

// WithLogger sets the handler logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithMetrics records deliveries on m.
func WithMetrics(m *Metrics) Option {
	return func(h *Handler) {
		if m != nil {
			h.metrics = m
		}
	}
}

// WithBodyLimit overrides the maximum accepted payload size in bytes.
func WithBodyLimit(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.bodyLimit = n
		}
	}
}
