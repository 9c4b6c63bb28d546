package notifications

import (
	"time"

	"github.com/google/uuid"
)

// Notification is an in-app message about a user's subscription.
type Notification struct {
	ID             uuid.UUID      `json:"id"`
	UserID         uuid.UUID      `json:"user_id"`
	TenantID       uuid.UUID      `json:"tenant_id"`
	SubscriptionID uuid.UUID      `json:"subscription_id"`
	Kind           string         `json:"kind"`
	Title          string         `json:"title"`
	Message        string         `json:"message"`
	Data           map[string]any `json:"data,omitempty"`
	Read           bool           `json:"read"`
	ReadAt         *time.Time     `json:"read_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// MarkAsRead sets Read and ReadAt.
func (n *Notification) MarkAsRead(at time.Time) {
	n.Read = true
	n.ReadAt = &at
}
