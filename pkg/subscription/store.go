package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SubscriptionStore defines the interface for subscription persistence.
type SubscriptionStore interface {
	// Get retrieves a subscription by id.
	// Returns ErrSubscriptionNotFound if no subscription exists.
	Get(ctx context.Context, id uuid.UUID) (*Subscription, error)

	// GetByProviderSubscriptionID finds a subscription by the provider's id.
	GetByProviderSubscriptionID(ctx context.Context, providerSlug, providerSubscriptionID string) (*Subscription, error)

	// Create inserts a new subscription with Version 1.
	Create(ctx context.Context, sub *Subscription) error

	// Update persists sub if the stored version equals sub.Version and bumps it.
	// Returns ErrConcurrentUpdate on a version mismatch.
	Update(ctx context.Context, sub *Subscription) error

	// FindLive returns non-ended subscriptions of a tenant for a product.
	FindLive(ctx context.Context, tenantID uuid.UUID, productSlug string) ([]*Subscription, error)

	// FindExpired returns subscriptions in one of statuses whose current period ended before now.
	FindExpired(ctx context.Context, now time.Time, statuses ...Status) ([]*Subscription, error)

	// FindByUserAndStatus returns a user's subscriptions in the given status.
	FindByUserAndStatus(ctx context.Context, userID uuid.UUID, status Status) ([]*Subscription, error)

	// FindByStatus returns all subscriptions in the given status.
	FindByStatus(ctx context.Context, status Status) ([]*Subscription, error)
}

// ProviderStore reads persisted provider configuration rows.
type ProviderStore interface {
	ListProviders(ctx context.Context) ([]PaymentProvider, error)
}

// DiscountStore reads and redeems discount codes.
type DiscountStore interface {
	// GetDiscount returns a discount by normalized code.
	// Returns ErrInvalidDiscountCode if the code does not exist.
	GetDiscount(ctx context.Context, code string) (*Discount, error)

	// ReserveRedemption atomically records one redemption of code unless
	// MaxRedemptions is reached. Returns ErrInvalidDiscountCode if the code
	// does not exist or is fully redeemed.
	ReserveRedemption(ctx context.Context, code string) error

	// ReleaseRedemption gives back a reservation whose provider call failed.
	ReleaseRedemption(ctx context.Context, code string) error
}
