package subscription

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/PaddleHQ/paddle-go-sdk/v4/pkg/paddleerr"
)

// paddleSubscriptionState is the subset of a Paddle subscription the provider reads.
type paddleSubscriptionState struct {
	ID               string
	Status           string
	CurrentPeriodEnd *time.Time
	ScheduledCancel  bool
	ItemPriceID      string
	ItemQuantity     int
}

// paddleAPI wraps the Paddle SDK calls used by the provider.
type paddleAPI interface {
	createTransaction(ctx context.Context, priceID string, quantity int, customData map[string]any, successURL string) (id, url string, err error)
	getSubscription(ctx context.Context, id string) (*paddleSubscriptionState, error)
	scheduleCancel(ctx context.Context, id string, immediately bool) error
	removeScheduledChange(ctx context.Context, id string) error
	updateItem(ctx context.Context, id, priceID string, quantity int, prorated bool) (*paddleSubscriptionState, error)
	applyDiscount(ctx context.Context, id, discountID string) error
}

type paddleSDK struct {
	client *paddle.SDK
}

func (s paddleSDK) createTransaction(ctx context.Context, priceID string, quantity int, customData map[string]any, successURL string) (string, string, error) {
	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  priceID,
		Quantity: quantity,
	})
	req := &paddle.CreateTransactionRequest{
		Items:      []paddle.CreateTransactionItems{*item},
		CustomData: paddle.CustomData(customData),
	}
	if successURL != "" {
		req.Checkout = &paddle.TransactionCheckout{URL: paddle.PtrTo(successURL)}
	}

	tx, err := s.client.TransactionsClient.CreateTransaction(ctx, req)
	if err != nil {
		return "", "", err
	}
	if tx.Checkout == nil || tx.Checkout.URL == nil {
		return tx.ID, "", nil
	}
	return tx.ID, *tx.Checkout.URL, nil
}

func (s paddleSDK) getSubscription(ctx context.Context, id string) (*paddleSubscriptionState, error) {
	sub, err := s.client.SubscriptionsClient.GetSubscription(ctx, &paddle.GetSubscriptionRequest{SubscriptionID: id})
	if err != nil {
		return nil, err
	}
	return paddleState(sub), nil
}

func (s paddleSDK) scheduleCancel(ctx context.Context, id string, immediately bool) error {
	effective := paddle.EffectiveFromNextBillingPeriod
	if immediately {
		effective = paddle.EffectiveFromImmediately
	}
	_, err := s.client.SubscriptionsClient.CancelSubscription(ctx, &paddle.CancelSubscriptionRequest{
		SubscriptionID: id,
		EffectiveFrom:  paddle.PtrTo(effective),
	})
	return err
}

func (s paddleSDK) removeScheduledChange(ctx context.Context, id string) error {
	_, err := s.client.SubscriptionsClient.UpdateSubscription(ctx, &paddle.UpdateSubscriptionRequest{
		SubscriptionID:  id,
		ScheduledChange: paddle.NewNullPatchField[*paddle.SubscriptionScheduledChange](),
	})
	return err
}

func (s paddleSDK) updateItem(ctx context.Context, id, priceID string, quantity int, prorated bool) (*paddleSubscriptionState, error) {
	mode := paddle.ProrationBillingModeDoNotBill
	if prorated {
		mode = paddle.ProrationBillingModeProratedImmediately
	}
	item := paddle.NewUpdateSubscriptionItemsSubscriptionUpdateItemFromCatalog(&paddle.SubscriptionUpdateItemFromCatalog{
		PriceID:  priceID,
		Quantity: quantity,
	})
	sub, err := s.client.SubscriptionsClient.UpdateSubscription(ctx, &paddle.UpdateSubscriptionRequest{
		SubscriptionID:       id,
		Items:                paddle.NewPatchField([]paddle.UpdateSubscriptionItems{*item}),
		ProrationBillingMode: paddle.NewPatchField(mode),
	})
	if err != nil {
		return nil, err
	}
	return paddleState(sub), nil
}

func (s paddleSDK) applyDiscount(ctx context.Context, id, discountID string) error {
	_, err := s.client.SubscriptionsClient.UpdateSubscription(ctx, &paddle.UpdateSubscriptionRequest{
		SubscriptionID: id,
		Discount: paddle.NewPatchField(&paddle.SubscriptionDiscountEffectiveFrom{
			ID:            discountID,
			EffectiveFrom: paddle.EffectiveFromNextBillingPeriod,
		}),
	})
	return err
}

func paddleState(sub *paddle.Subscription) *paddleSubscriptionState {
	state := &paddleSubscriptionState{
		ID:     sub.ID,
		Status: string(sub.Status),
	}
	if sub.CurrentBillingPeriod != nil {
		state.CurrentPeriodEnd = parsePaddleTime(sub.CurrentBillingPeriod.EndsAt)
	}
	if sub.ScheduledChange != nil && sub.ScheduledChange.Action == paddle.ScheduledChangeActionCancel {
		state.ScheduledCancel = true
	}
	if len(sub.Items) > 0 {
		state.ItemPriceID = sub.Items[0].Price.ID
		state.ItemQuantity = sub.Items[0].Quantity
	}
	return state
}

// PaddleProvider implements Provider for Paddle Billing. Checkout opens in
// the Paddle overlay for a transaction created server side.
type PaddleProvider struct {
	api      paddleAPI
	verifier *paddle.WebhookVerifier
	now      func() time.Time
}

// NewPaddleProvider creates a Paddle provider for the configured environment.
func NewPaddleProvider(cfg PaddleConfig) (*PaddleProvider, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	var (
		client *paddle.SDK
		err    error
	)
	switch strings.ToLower(cfg.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(cfg.APIKey)
	case "production", "":
		client, err = paddle.New(cfg.APIKey)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidProviderEnvironment, cfg.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}

	return &PaddleProvider{
		api:      paddleSDK{client: client},
		verifier: paddle.NewWebhookVerifier(cfg.WebhookSecret),
		now:      time.Now,
	}, nil
}

func (p *PaddleProvider) Slug() string { return ProviderPaddle }
func (p *PaddleProvider) Name() string { return "Paddle" }

func (p *PaddleProvider) SupportedPlanTypes() []PlanType {
	return []PlanType{PlanTypeFlatRate, PlanTypeSeatBased}
}

func (p *PaddleProvider) SupportsSkippingTrial() bool { return false }
func (p *PaddleProvider) IsRedirectProvider() bool    { return false }
func (p *PaddleProvider) IsOverlayProvider() bool     { return true }

func (p *PaddleProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error) {
	if req.PriceID == "" {
		return nil, ErrMissingPriceID
	}

	customData := map[string]any{metadataSubscriptionKey: req.Subscription.ID.String()}
	if req.Email != "" {
		customData["email"] = req.Email
	}

	id, url, err := p.api.createTransaction(ctx, req.PriceID, max(req.Quantity, 1), customData, req.SuccessURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle transaction: %w", err)
	}
	if id == "" {
		return nil, ErrNoCheckoutURL
	}

	return &CheckoutLink{
		URL:       url,
		SessionID: id,
		ExpiresAt: p.now().Add(24 * time.Hour),
		Overlay:   true,
	}, nil
}

func (p *PaddleProvider) CancelSubscription(ctx context.Context, sub *Subscription, _, _ string) error {
	if sub.ProviderSubscriptionID == "" {
		return ErrMissingProviderReference
	}
	if err := p.api.scheduleCancel(ctx, sub.ProviderSubscriptionID, false); err != nil {
		return fmt.Errorf("failed to cancel paddle subscription: %w", err)
	}
	return nil
}

func (p *PaddleProvider) DiscardSubscriptionCancellation(ctx context.Context, sub *Subscription) error {
	if sub.ProviderSubscriptionID == "" {
		return ErrMissingProviderReference
	}
	state, err := p.api.getSubscription(ctx, sub.ProviderSubscriptionID)
	if err != nil {
		return fmt.Errorf("failed to get paddle subscription: %w", err)
	}
	if state.Status == string(paddle.SubscriptionStatusCanceled) {
		return ErrCancellationWindowElapsed
	}
	if state.CurrentPeriodEnd != nil && !p.now().Before(*state.CurrentPeriodEnd) {
		return ErrCancellationWindowElapsed
	}
	if !state.ScheduledCancel {
		return nil
	}
	if err := p.api.removeScheduledChange(ctx, sub.ProviderSubscriptionID); err != nil {
		return fmt.Errorf("failed to remove paddle scheduled cancellation: %w", err)
	}
	return nil
}

// ChangePlan replaces the subscription item. Paddle bills the proration in a
// separate transaction reported by webhook, so the result carries no amount.
func (p *PaddleProvider) ChangePlan(ctx context.Context, sub *Subscription, newPlan Plan, isProrated bool) (*ChangePlanResult, error) {
	priceID, ok := newPlan.ProviderPriceID(ProviderPaddle)
	if !ok {
		return nil, ErrMissingPriceID
	}
	if sub.ProviderSubscriptionID == "" {
		return nil, ErrMissingProviderReference
	}

	state, err := p.api.updateItem(ctx, sub.ProviderSubscriptionID, priceID, max(sub.Quantity, 1), isProrated)
	if err != nil {
		return nil, fmt.Errorf("failed to change paddle subscription plan: %w", err)
	}
	return &ChangePlanResult{CurrentPeriodEnd: state.CurrentPeriodEnd}, nil
}

func (p *PaddleProvider) ApplyDiscount(ctx context.Context, sub *Subscription, discount *Discount) error {
	discountID, ok := discount.ProviderID(ProviderPaddle)
	if !ok {
		return ErrDiscountRejected
	}
	if sub.ProviderSubscriptionID == "" {
		return ErrMissingProviderReference
	}
	if err := p.api.applyDiscount(ctx, sub.ProviderSubscriptionID, discountID); err != nil {
		if isPaddleRequestError(err) {
			return errors.Join(ErrDiscountRejected, err)
		}
		return fmt.Errorf("failed to apply paddle discount: %w", err)
	}
	return nil
}

func (p *PaddleProvider) EndSubscriptionImmediately(ctx context.Context, sub *Subscription) error {
	if sub.ProviderSubscriptionID == "" {
		return ErrMissingProviderReference
	}
	if err := p.api.scheduleCancel(ctx, sub.ProviderSubscriptionID, true); err != nil {
		return fmt.Errorf("failed to end paddle subscription: %w", err)
	}
	return nil
}

func (p *PaddleProvider) UpdateQuantity(ctx context.Context, sub *Subscription, quantity int) error {
	if sub.ProviderSubscriptionID == "" {
		return ErrMissingProviderReference
	}
	state, err := p.api.getSubscription(ctx, sub.ProviderSubscriptionID)
	if err != nil {
		return fmt.Errorf("failed to get paddle subscription: %w", err)
	}
	if _, err := p.api.updateItem(ctx, sub.ProviderSubscriptionID, state.ItemPriceID, quantity, true); err != nil {
		return fmt.Errorf("failed to update paddle subscription quantity: %w", err)
	}
	return nil
}

type paddleWebhookPayload struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt string          `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

type paddleSubscriptionData struct {
	ID                   string         `json:"id"`
	SubscriptionID       string         `json:"subscription_id"` // transactions only
	Status               string         `json:"status"`
	CustomerID           string         `json:"customer_id"`
	CustomData           map[string]any `json:"custom_data"`
	CurrentBillingPeriod *struct {
		EndsAt string `json:"ends_at"`
	} `json:"current_billing_period"`
	BillingPeriod *struct {
		EndsAt string `json:"ends_at"`
	} `json:"billing_period"`
	ScheduledChange *struct {
		Action string `json:"action"`
	} `json:"scheduled_change"`
	Items []struct {
		PriceID  string `json:"price_id"`
		Quantity int    `json:"quantity"`
		Price    struct {
			ID string `json:"id"`
		} `json:"price"`
	} `json:"items"`
}

func (p *PaddleProvider) ParseWebhook(ctx context.Context, payload []byte, header http.Header) (*WebhookEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhooks/paddle", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request for verification: %w", err)
	}
	req.Header.Set("Paddle-Signature", header.Get("Paddle-Signature"))

	valid, err := p.verifier.Verify(req)
	if err != nil {
		return nil, errors.Join(ErrWebhookVerificationFailed, err)
	}
	if !valid {
		return nil, ErrWebhookVerificationFailed
	}

	var envelope paddleWebhookPayload
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, errors.Join(ErrInvalidWebhookPayload, err)
	}
	var data paddleSubscriptionData
	if len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			return nil, errors.Join(ErrInvalidWebhookPayload, err)
		}
	}

	ev := &WebhookEvent{
		ID:                 envelope.EventID,
		Type:               mapPaddleEventType(envelope.EventType),
		ProviderEvent:      envelope.EventType,
		ProviderCustomerID: data.CustomerID,
		Status:             data.Status,
	}
	if t := parsePaddleTime(envelope.OccurredAt); t != nil {
		ev.OccurredAt = *t
	}
	if id, ok := data.CustomData[metadataSubscriptionKey].(string); ok {
		ev.SubscriptionID = parseSubscriptionID(id)
	}
	if len(data.Items) > 0 {
		ev.ProviderPriceID = cmp.Or(data.Items[0].Price.ID, data.Items[0].PriceID)
		ev.Quantity = data.Items[0].Quantity
	}

	if strings.HasPrefix(envelope.EventType, "subscription.") {
		ev.ProviderSubscriptionID = data.ID
		ev.MappedStatus = mapPaddleStatus(data.Status)
		ev.CancelAtPeriodEnd = data.ScheduledChange != nil && data.ScheduledChange.Action == "cancel"
		if data.CurrentBillingPeriod != nil {
			ev.CurrentPeriodEnd = parsePaddleTime(data.CurrentBillingPeriod.EndsAt)
		}
	} else {
		ev.ProviderSubscriptionID = data.SubscriptionID
		if data.BillingPeriod != nil {
			ev.CurrentPeriodEnd = parsePaddleTime(data.BillingPeriod.EndsAt)
		}
		if ev.ProviderSubscriptionID == "" {
			ev.Type = EventIgnored
		}
	}
	return ev, nil
}

func mapPaddleEventType(eventType string) EventType {
	switch eventType {
	case "subscription.created":
		return EventSubscriptionCreated
	case "subscription.updated", "subscription.activated", "subscription.past_due",
		"subscription.resumed", "subscription.trialing":
		return EventSubscriptionUpdated
	case "subscription.canceled":
		return EventSubscriptionEnded
	case "transaction.completed", "transaction.paid":
		return EventPaymentSucceeded
	case "transaction.payment_failed":
		return EventPaymentFailed
	}
	return EventIgnored
}

func mapPaddleStatus(status string) Status {
	switch status {
	case "active", "trialing":
		return StatusActive
	case "past_due":
		return StatusPastDue
	case "canceled":
		return StatusEnded
	}
	return ""
}

func parsePaddleTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return timePtr(t.UTC())
}

// isPaddleRequestError reports whether err is an error response from the API
// rather than a transport failure.
func isPaddleRequestError(err error) bool {
	var perr *paddleerr.Error
	return errors.As(err, &perr)
}
