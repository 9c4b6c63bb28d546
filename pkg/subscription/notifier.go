package subscription

import (
	"context"

	"github.com/google/uuid"
)

// NoticeKind identifies a lifecycle outcome worth telling the user about.
type NoticeKind string

const (
	NoticeCancelled           NoticeKind = "subscription_cancelled"
	NoticeCancellationUndone  NoticeKind = "subscription_cancellation_discarded"
	NoticePlanChanged         NoticeKind = "subscription_plan_changed"
	NoticeDiscountApplied     NoticeKind = "subscription_discount_applied"
	NoticeEnded               NoticeKind = "subscription_ended"
	NoticeActivated           NoticeKind = "subscription_activated"
	NoticePaymentFailed       NoticeKind = "subscription_payment_failed"
	NoticeSeatQuantityChanged NoticeKind = "subscription_seats_changed"
)

// Notice is a user-facing lifecycle notification.
type Notice struct {
	Kind           NoticeKind
	UserID         uuid.UUID
	TenantID       uuid.UUID
	SubscriptionID uuid.UUID
	PlanSlug       string
	Data           map[string]any
}

// Notifier delivers lifecycle notices. Delivery failures never fail the
// operation that produced the notice.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notice) error

func (f NotifierFunc) Notify(ctx context.Context, n Notice) error {
	return f(ctx, n)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Notice) error { return nil }
