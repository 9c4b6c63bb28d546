package subscription

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	stripesession "github.com/stripe/stripe-go/v82/checkout/session"
	stripesub "github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"
)

// stripeAPI is the slice of the Stripe SDK the provider uses.
// Fields are swappable so tests can run without network access.
type stripeAPI struct {
	createCheckoutSession func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	getSubscription       func(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	updateSubscription    func(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	cancelSubscription    func(id string, params *stripe.SubscriptionCancelParams) (*stripe.Subscription, error)
}

func newStripeAPI(secretKey string) stripeAPI {
	backend := stripe.GetBackend(stripe.APIBackend)
	sessions := stripesession.Client{B: backend, Key: secretKey}
	subs := stripesub.Client{B: backend, Key: secretKey}
	return stripeAPI{
		createCheckoutSession: sessions.New,
		getSubscription:       subs.Get,
		updateSubscription:    subs.Update,
		cancelSubscription:    subs.Cancel,
	}
}

// StripeProvider implements Provider for Stripe. Checkout is a hosted redirect;
// the local subscription id travels in subscription metadata.
type StripeProvider struct {
	api           stripeAPI
	webhookSecret string
	now           func() time.Time
}

// NewStripeProvider creates a Stripe provider. Each provider instance uses its
// own API key, so several Stripe accounts can coexist in one process.
func NewStripeProvider(cfg StripeConfig) (*StripeProvider, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return &StripeProvider{
		api:           newStripeAPI(cfg.SecretKey),
		webhookSecret: cfg.WebhookSecret,
		now:           time.Now,
	}, nil
}

func (p *StripeProvider) Slug() string { return ProviderStripe }
func (p *StripeProvider) Name() string { return "Stripe" }

func (p *StripeProvider) SupportedPlanTypes() []PlanType {
	return []PlanType{PlanTypeFlatRate, PlanTypeSeatBased, PlanTypeUsageBased}
}

func (p *StripeProvider) SupportsSkippingTrial() bool { return true }
func (p *StripeProvider) IsRedirectProvider() bool    { return true }
func (p *StripeProvider) IsOverlayProvider() bool     { return false }

func (p *StripeProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error) {
	if req.PriceID == "" {
		return nil, ErrMissingPriceID
	}

	item := &stripe.CheckoutSessionLineItemParams{Price: stripe.String(req.PriceID)}
	if req.Plan.Type != PlanTypeUsageBased {
		// Metered prices reject a quantity.
		item.Quantity = stripe.Int64(int64(max(req.Quantity, 1)))
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.Subscription.ID.String()),
		LineItems:         []*stripe.CheckoutSessionLineItemParams{item},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{metadataSubscriptionKey: req.Subscription.ID.String()},
		},
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	if req.Plan.HasTrial() && !req.SkipTrial {
		params.SubscriptionData.TrialPeriodDays = stripe.Int64(int64(req.Plan.TrialDays))
	}
	params.Context = ctx

	session, err := p.api.createCheckoutSession(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create stripe checkout session: %w", err)
	}
	if session.URL == "" {
		return nil, ErrNoCheckoutURL
	}

	return &CheckoutLink{
		URL:       session.URL,
		SessionID: session.ID,
		ExpiresAt: time.Unix(session.ExpiresAt, 0).UTC(),
	}, nil
}

func (p *StripeProvider) CancelSubscription(ctx context.Context, sub *Subscription, reason, details string) error {
	if sub.ProviderSubscriptionID == "" {
		return ErrMissingProviderReference
	}

	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
	if reason != "" {
		params.AddMetadata("cancellation_reason", reason)
	}
	if details != "" {
		params.AddMetadata("cancellation_details", details)
	}
	params.Context = ctx

	if _, err := p.api.updateSubscription(sub.ProviderSubscriptionID, params); err != nil {
		return fmt.Errorf("failed to cancel stripe subscription: %w", err)
	}
	return nil
}

func (p *StripeProvider) DiscardSubscriptionCancellation(ctx context.Context, sub *Subscription) error {
	current, err := p.fetch(ctx, sub)
	if err != nil {
		return err
	}
	if current.Status == stripe.SubscriptionStatusCanceled {
		return ErrCancellationWindowElapsed
	}
	if end := stripePeriodEnd(current); end != nil && !p.now().Before(*end) {
		return ErrCancellationWindowElapsed
	}

	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(false)}
	params.Context = ctx
	if _, err := p.api.updateSubscription(sub.ProviderSubscriptionID, params); err != nil {
		return fmt.Errorf("failed to resume stripe subscription: %w", err)
	}
	return nil
}

func (p *StripeProvider) ChangePlan(ctx context.Context, sub *Subscription, newPlan Plan, isProrated bool) (*ChangePlanResult, error) {
	priceID, ok := newPlan.ProviderPriceID(ProviderStripe)
	if !ok {
		return nil, ErrMissingPriceID
	}
	itemID, err := p.firstItemID(ctx, sub)
	if err != nil {
		return nil, err
	}

	proration := "none"
	if isProrated {
		proration = "always_invoice"
	}
	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{ID: stripe.String(itemID), Price: stripe.String(priceID)},
		},
		ProrationBehavior: stripe.String(proration),
	}
	params.AddExpand("latest_invoice")
	params.Context = ctx

	updated, err := p.api.updateSubscription(sub.ProviderSubscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to change stripe subscription plan: %w", err)
	}

	result := &ChangePlanResult{CurrentPeriodEnd: stripePeriodEnd(updated)}
	if inv := updated.LatestInvoice; inv != nil && isProrated {
		due := Money{Amount: inv.AmountDue, Currency: strings.ToUpper(string(inv.Currency))}
		result.Amount = due.Decimal()
		result.Currency = due.Currency
		result.ProviderReference = inv.ID
	}
	return result, nil
}

func (p *StripeProvider) ApplyDiscount(ctx context.Context, sub *Subscription, discount *Discount) error {
	couponID, ok := discount.ProviderID(ProviderStripe)
	if !ok {
		return ErrDiscountRejected
	}
	if sub.ProviderSubscriptionID == "" {
		return ErrMissingProviderReference
	}

	params := &stripe.SubscriptionParams{
		Discounts: []*stripe.SubscriptionDiscountParams{{Coupon: stripe.String(couponID)}},
	}
	params.Context = ctx

	if _, err := p.api.updateSubscription(sub.ProviderSubscriptionID, params); err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.Type == stripe.ErrorTypeInvalidRequest {
			return errors.Join(ErrDiscountRejected, err)
		}
		return fmt.Errorf("failed to apply stripe discount: %w", err)
	}
	return nil
}

func (p *StripeProvider) EndSubscriptionImmediately(ctx context.Context, sub *Subscription) error {
	if sub.ProviderSubscriptionID == "" {
		return ErrMissingProviderReference
	}
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	if _, err := p.api.cancelSubscription(sub.ProviderSubscriptionID, params); err != nil {
		return fmt.Errorf("failed to end stripe subscription: %w", err)
	}
	return nil
}

func (p *StripeProvider) UpdateQuantity(ctx context.Context, sub *Subscription, quantity int) error {
	itemID, err := p.firstItemID(ctx, sub)
	if err != nil {
		return err
	}
	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{ID: stripe.String(itemID), Quantity: stripe.Int64(int64(quantity))},
		},
		ProrationBehavior: stripe.String("create_prorations"),
	}
	params.Context = ctx
	if _, err := p.api.updateSubscription(sub.ProviderSubscriptionID, params); err != nil {
		return fmt.Errorf("failed to update stripe subscription quantity: %w", err)
	}
	return nil
}

func (p *StripeProvider) fetch(ctx context.Context, sub *Subscription) (*stripe.Subscription, error) {
	if sub.ProviderSubscriptionID == "" {
		return nil, ErrMissingProviderReference
	}
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	current, err := p.api.getSubscription(sub.ProviderSubscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to get stripe subscription: %w", err)
	}
	return current, nil
}

func (p *StripeProvider) firstItemID(ctx context.Context, sub *Subscription) (string, error) {
	current, err := p.fetch(ctx, sub)
	if err != nil {
		return "", err
	}
	if current.Items == nil || len(current.Items.Data) == 0 {
		return "", fmt.Errorf("stripe subscription %s has no items", sub.ProviderSubscriptionID)
	}
	return current.Items.Data[0].ID, nil
}

func stripePeriodEnd(s *stripe.Subscription) *time.Time {
	if s == nil || s.Items == nil {
		return nil
	}
	for _, item := range s.Items.Data {
		if item.CurrentPeriodEnd > 0 {
			return timePtr(time.Unix(item.CurrentPeriodEnd, 0).UTC())
		}
	}
	return nil
}

// stripeSubscriptionPayload is the subset of a subscription object read from webhooks.
type stripeSubscriptionPayload struct {
	ID                string            `json:"id"`
	Customer          string            `json:"customer"`
	Status            string            `json:"status"`
	CancelAtPeriodEnd bool              `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64             `json:"current_period_end"`
	Metadata          map[string]string `json:"metadata"`
	Items             struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
			Quantity         int   `json:"quantity"`
			CurrentPeriodEnd int64 `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
}

// stripeInvoicePayload covers both the legacy top-level subscription field and
// the parent.subscription_details shape of newer API versions.
type stripeInvoicePayload struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	PeriodEnd    int64  `json:"period_end"`
	Parent       struct {
		SubscriptionDetails struct {
			Subscription string            `json:"subscription"`
			Metadata     map[string]string `json:"metadata"`
		} `json:"subscription_details"`
	} `json:"parent"`
	Lines struct {
		Data []struct {
			Period struct {
				End int64 `json:"end"`
			} `json:"period"`
		} `json:"data"`
	} `json:"lines"`
}

func (p *StripeProvider) ParseWebhook(_ context.Context, payload []byte, header http.Header) (*WebhookEvent, error) {
	sig := header.Get("Stripe-Signature")
	if strings.TrimSpace(sig) == "" {
		return nil, errors.Join(ErrWebhookVerificationFailed, errors.New("missing Stripe-Signature header"))
	}

	event, err := webhook.ConstructEventWithOptions(payload, sig, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, errors.Join(ErrWebhookVerificationFailed, err)
	}

	ev := &WebhookEvent{
		ID:            event.ID,
		ProviderEvent: string(event.Type),
		OccurredAt:    time.Unix(event.Created, 0).UTC(),
	}
	if event.Data == nil {
		return nil, errors.Join(ErrInvalidWebhookPayload, errors.New("missing event data"))
	}

	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated",
		"customer.subscription.deleted", "customer.subscription.resumed":
		var sub stripeSubscriptionPayload
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, errors.Join(ErrInvalidWebhookPayload, fmt.Errorf("decode subscription: %w", err))
		}
		fillStripeSubscriptionEvent(ev, sub)
		switch event.Type {
		case "customer.subscription.created":
			ev.Type = EventSubscriptionCreated
		case "customer.subscription.deleted":
			ev.Type = EventSubscriptionEnded
		default:
			ev.Type = EventSubscriptionUpdated
		}

	case "invoice.paid", "invoice.payment_succeeded", "invoice.payment_failed":
		var inv stripeInvoicePayload
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, errors.Join(ErrInvalidWebhookPayload, fmt.Errorf("decode invoice: %w", err))
		}
		ev.ProviderCustomerID = inv.Customer
		ev.ProviderSubscriptionID = cmp.Or(inv.Subscription, inv.Parent.SubscriptionDetails.Subscription)
		ev.SubscriptionID = parseSubscriptionID(inv.Parent.SubscriptionDetails.Metadata[metadataSubscriptionKey])
		if ev.ProviderSubscriptionID == "" {
			// One-off invoice, not ours to track.
			ev.Type = EventIgnored
			break
		}
		if event.Type == "invoice.payment_failed" {
			ev.Type = EventPaymentFailed
			break
		}
		ev.Type = EventPaymentSucceeded
		if len(inv.Lines.Data) > 0 && inv.Lines.Data[0].Period.End > 0 {
			ev.CurrentPeriodEnd = timePtr(time.Unix(inv.Lines.Data[0].Period.End, 0).UTC())
		}

	default:
		ev.Type = EventIgnored
	}

	return ev, nil
}

func fillStripeSubscriptionEvent(ev *WebhookEvent, sub stripeSubscriptionPayload) {
	ev.ProviderSubscriptionID = sub.ID
	ev.ProviderCustomerID = sub.Customer
	ev.Status = sub.Status
	ev.MappedStatus = mapStripeStatus(sub.Status)
	ev.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	ev.SubscriptionID = parseSubscriptionID(sub.Metadata[metadataSubscriptionKey])

	periodEnd := sub.CurrentPeriodEnd
	if len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		ev.ProviderPriceID = item.Price.ID
		ev.Quantity = item.Quantity
		if item.CurrentPeriodEnd > 0 {
			periodEnd = item.CurrentPeriodEnd
		}
	}
	if periodEnd > 0 {
		ev.CurrentPeriodEnd = timePtr(time.Unix(periodEnd, 0).UTC())
	}
}

func mapStripeStatus(status string) Status {
	switch status {
	case "active", "trialing":
		return StatusActive
	case "past_due", "unpaid":
		return StatusPastDue
	case "canceled", "incomplete_expired":
		return StatusEnded
	case "incomplete":
		return StatusPending
	}
	return ""
}
