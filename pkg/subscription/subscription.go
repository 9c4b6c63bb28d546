package subscription

import (
	"time"

	"github.com/google/uuid"
)

// Subscription is the local record of a customer's subscription to a plan.
// The UUID is the external identity; provider ids are stored alongside it.
type Subscription struct {
	ID                     uuid.UUID
	UserID                 uuid.UUID
	TenantID               uuid.UUID
	PlanSlug               string
	ProductSlug            string
	Status                 Status
	ProviderSlug           string
	ProviderSubscriptionID string
	ProviderCustomerID     string
	Quantity               int
	TrialEndsAt            *time.Time
	CurrentPeriodEnd       *time.Time
	CancelledAt            *time.Time // set when cancellation was requested
	EndedAt                *time.Time
	CancellationReason     string
	CancellationDetails    string
	Discount               *AppliedDiscount
	Version                int64 // optimistic concurrency token, bumped on every update
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

func (s *Subscription) IsActive() bool {
	return s.Status == StatusActive
}

func (s *Subscription) IsPendingCancellation() bool {
	return s.Status == StatusPendingCancellation
}

func (s *Subscription) IsEnded() bool {
	return s.Status == StatusEnded
}

// PeriodElapsed reports whether the paid period is over at now.
// A subscription without a known period end is never considered elapsed.
func (s *Subscription) PeriodElapsed(now time.Time) bool {
	if s.CurrentPeriodEnd == nil {
		return false
	}
	return !now.Before(*s.CurrentPeriodEnd)
}

// HasActiveDiscount reports whether a discount is applied and not yet expired at now.
func (s *Subscription) HasActiveDiscount(now time.Time) bool {
	return s.Discount != nil && s.Discount.ActiveAt(now)
}

// Clone returns a deep copy, so callers can mutate it without touching stored state.
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	c := *s
	c.TrialEndsAt = cloneTime(s.TrialEndsAt)
	c.CurrentPeriodEnd = cloneTime(s.CurrentPeriodEnd)
	c.CancelledAt = cloneTime(s.CancelledAt)
	c.EndedAt = cloneTime(s.EndedAt)
	if s.Discount != nil {
		d := *s.Discount
		d.ExpiresAt = cloneTime(s.Discount.ExpiresAt)
		c.Discount = &d
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func timePtr(t time.Time) *time.Time {
	return &t
}
