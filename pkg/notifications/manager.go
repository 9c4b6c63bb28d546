package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/paykit/pkg/logger"
	"github.com/dmitrymomot/paykit/pkg/subscription"
)

// Manager stores notifications and delivers them best-effort.
// It implements subscription.Notifier.
type Manager struct {
	storage   Storage
	deliverer Deliverer
	logger    *slog.Logger
	now       func() time.Time
}

var _ subscription.Notifier = (*Manager)(nil)

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func NewManager(storage Storage, deliverer Deliverer, opts ...ManagerOption) *Manager {
	if deliverer == nil {
		deliverer = NoOpDeliverer{}
	}
	m := &Manager{
		storage:   storage,
		deliverer: deliverer,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Send persists n, then hands it to the deliverer. A delivery failure is
// logged and does not fail Send.
func (m *Manager) Send(ctx context.Context, n Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = m.now().UTC()
	}

	if err := m.storage.Create(ctx, n); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}

	if err := m.deliverer.Deliver(ctx, n); err != nil {
		m.logger.LogAttrs(ctx, slog.LevelWarn, "notification stored but not delivered",
			slog.String("notification_id", n.ID.String()),
			logger.UserID(n.UserID),
			logger.Error(err),
		)
	}
	return nil
}

// Notify turns a subscription lifecycle notice into a notification.
func (m *Manager) Notify(ctx context.Context, notice subscription.Notice) error {
	title, message := describe(notice)
	return m.Send(ctx, Notification{
		UserID:         notice.UserID,
		TenantID:       notice.TenantID,
		SubscriptionID: notice.SubscriptionID,
		Kind:           string(notice.Kind),
		Title:          title,
		Message:        message,
		Data:           notice.Data,
	})
}

func (m *Manager) List(ctx context.Context, userID uuid.UUID, opts ListOptions) ([]Notification, error) {
	return m.storage.List(ctx, userID, opts)
}

func (m *Manager) MarkRead(ctx context.Context, userID uuid.UUID, ids ...uuid.UUID) error {
	return m.storage.MarkRead(ctx, userID, ids...)
}

func (m *Manager) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	return m.storage.CountUnread(ctx, userID)
}
