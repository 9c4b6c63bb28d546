package notifications

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dmitrymomot/paykit/pkg/logger"
)

// Deliverer pushes a stored notification to the user through some channel.
type Deliverer interface {
	Deliver(ctx context.Context, n Notification) error
}

// MultiDeliverer fans out to several channels. Every channel is tried;
// failures are logged and joined.
type MultiDeliverer struct {
	deliverers []Deliverer
	logger     *slog.Logger
}

func NewMultiDeliverer(logger *slog.Logger, deliverers ...Deliverer) *MultiDeliverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &MultiDeliverer{deliverers: deliverers, logger: logger}
}

func (m *MultiDeliverer) Deliver(ctx context.Context, n Notification) error {
	var errs []error
	for i, d := range m.deliverers {
		if err := d.Deliver(ctx, n); err != nil {
			m.logger.LogAttrs(ctx, slog.LevelError, "failed to deliver notification",
				slog.String("notification_id", n.ID.String()),
				logger.UserID(n.UserID),
				slog.Int("deliverer_index", i),
				logger.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NoOpDeliverer drops every notification.
type NoOpDeliverer struct{}

func (NoOpDeliverer) Deliver(context.Context, Notification) error { return nil }
