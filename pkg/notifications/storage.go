package notifications

import (
	"context"

	"github.com/google/uuid"
)

// Storage persists notifications per user.
type Storage interface {
	Create(ctx context.Context, n Notification) error
	// List returns a user's notifications, newest first.
	List(ctx context.Context, userID uuid.UUID, opts ListOptions) ([]Notification, error)
	MarkRead(ctx context.Context, userID uuid.UUID, ids ...uuid.UUID) error
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
}

// ListOptions filters List results.
type ListOptions struct {
	Limit      int // 0 = no limit
	OnlyUnread bool
}
