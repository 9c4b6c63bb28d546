package subscription

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Provider slugs of the built-in adapters.
const (
	ProviderStripe       = "stripe"
	ProviderPaddle       = "paddle"
	ProviderLemonSqueezy = "lemon-squeezy"
)

// Provider is the capability contract every payment provider adapter satisfies.
// Adapters use the official SDK where one exists and translate provider
// quirks (metadata fields, proration modes, cancellation semantics) internally.
//
// Expected business outcomes are reported with sentinel errors such as
// ErrDiscountRejected or ErrCancellationWindowElapsed. Any other error is an
// unexpected provider or network failure.
type Provider interface {
	Slug() string
	Name() string

	SupportedPlanTypes() []PlanType
	SupportsSkippingTrial() bool
	IsRedirectProvider() bool
	IsOverlayProvider() bool

	// CreateCheckout creates a hosted or overlay checkout for a pending subscription.
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error)

	// CancelSubscription schedules cancellation at the end of the current period.
	CancelSubscription(ctx context.Context, sub *Subscription, reason, details string) error

	// DiscardSubscriptionCancellation undoes a scheduled cancellation.
	// Fails with ErrCancellationWindowElapsed once the period has ended.
	DiscardSubscriptionCancellation(ctx context.Context, sub *Subscription) error

	// ChangePlan switches the subscription to newPlan. Proration is computed
	// by the provider; the reported amount is authoritative.
	ChangePlan(ctx context.Context, sub *Subscription, newPlan Plan, isProrated bool) (*ChangePlanResult, error)

	// ApplyDiscount attaches the provider-side coupon of discount.
	// Returns ErrDiscountRejected when the provider refuses it.
	ApplyDiscount(ctx context.Context, sub *Subscription, discount *Discount) error

	// EndSubscriptionImmediately terminates billing now.
	EndSubscriptionImmediately(ctx context.Context, sub *Subscription) error

	// UpdateQuantity changes the seat count of a seat-based subscription.
	UpdateQuantity(ctx context.Context, sub *Subscription, quantity int) error

	// ParseWebhook verifies the signature and normalizes the event.
	// Must fail with ErrWebhookVerificationFailed on a bad signature.
	ParseWebhook(ctx context.Context, payload []byte, header http.Header) (*WebhookEvent, error)
}

// SupportsPlanType reports whether p can bill plans of type t.
func SupportsPlanType(p Provider, t PlanType) bool {
	return slices.Contains(p.SupportedPlanTypes(), t)
}

// PaymentProvider is the persisted configuration row of a provider.
// Deactivating a provider never deletes subscriptions bound to it.
type PaymentProvider struct {
	Slug                    string
	Name                    string
	IsActive                bool
	IsEnabledForNewPayments bool
	SortOrder               int
}

// CheckoutRequest contains data needed to create a checkout session.
type CheckoutRequest struct {
	Subscription *Subscription // pending local subscription, its ID travels as provider metadata
	Plan         Plan
	PriceID      string // provider's price/variant identifier
	Quantity     int
	Email        string // optional billing email
	SkipTrial    bool
	SuccessURL   string
	CancelURL    string
}

// CheckoutLink represents a hosted checkout session.
type CheckoutLink struct {
	URL       string    // hosted checkout URL (empty for pure overlay checkouts)
	SessionID string    // provider's session identifier
	ExpiresAt time.Time // link expiration
	Overlay   bool      // open in the provider overlay instead of redirecting
}

// ChangePlanResult carries the provider-reported outcome of a plan change.
type ChangePlanResult struct {
	Amount            decimal.Decimal // amount charged or credited now, in major units
	Currency          string
	ProviderReference string // invoice or transaction id, if any
	CurrentPeriodEnd  *time.Time
}

// EventType is the normalized webhook event type.
// Each adapter maps its provider-specific events to these types.
type EventType string

const (
	EventSubscriptionCreated   EventType = "subscription_created"
	EventSubscriptionUpdated   EventType = "subscription_updated"
	EventSubscriptionCancelled EventType = "subscription_cancelled"
	EventSubscriptionEnded     EventType = "subscription_ended"
	EventPaymentSucceeded      EventType = "payment_succeeded"
	EventPaymentFailed         EventType = "payment_failed"
	EventIgnored               EventType = "ignored"
)

// WebhookEvent is a provider webhook normalized to the local model.
type WebhookEvent struct {
	ID                     string // provider event id, used for deduplication
	Type                   EventType
	ProviderEvent          string // original provider event name
	ProviderSlug           string
	SubscriptionID         uuid.UUID // local id from provider metadata, uuid.Nil if absent
	ProviderSubscriptionID string
	ProviderCustomerID     string
	ProviderPriceID        string
	Status                 string // raw provider status
	MappedStatus           Status // local status matching the provider state, empty if unknown
	Quantity               int
	CurrentPeriodEnd       *time.Time
	CancelAtPeriodEnd      bool
	OccurredAt             time.Time
}

// metadataSubscriptionKey is the metadata key carrying the local subscription id.
const metadataSubscriptionKey = "subscription_id"

func parseSubscriptionID(v string) uuid.UUID {
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil
	}
	return id
}
