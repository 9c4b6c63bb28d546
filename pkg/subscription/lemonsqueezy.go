package subscription

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/paykit/pkg/webhook"
)

const lemonSqueezyContentType = "application/vnd.api+json"

// LemonSqueezyProvider implements Provider for Lemon Squeezy over its JSON:API
// REST interface. Plan prices map to variant ids.
type LemonSqueezyProvider struct {
	client        *http.Client
	baseURL       string
	apiKey        string
	storeID       string
	webhookSecret string
	now           func() time.Time
}

// LemonSqueezyOption configures a LemonSqueezyProvider.
type LemonSqueezyOption func(*LemonSqueezyProvider)

// WithLemonSqueezyHTTPClient sets the HTTP client used for API calls.
func WithLemonSqueezyHTTPClient(c *http.Client) LemonSqueezyOption {
	return func(p *LemonSqueezyProvider) {
		if c != nil {
			p.client = c
		}
	}
}

// NewLemonSqueezyProvider creates a Lemon Squeezy provider.
func NewLemonSqueezyProvider(cfg LemonSqueezyConfig, opts ...LemonSqueezyOption) (*LemonSqueezyProvider, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	p := &LemonSqueezyProvider{
		client:        &http.Client{Timeout: 30 * time.Second},
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:        cfg.APIKey,
		storeID:       cfg.StoreID,
		webhookSecret: cfg.WebhookSecret,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *LemonSqueezyProvider) Slug() string { return ProviderLemonSqueezy }
func (p *LemonSqueezyProvider) Name() string { return "Lemon Squeezy" }

func (p *LemonSqueezyProvider) SupportedPlanTypes() []PlanType {
	return []PlanType{PlanTypeFlatRate, PlanTypeSeatBased, PlanTypeUsageBased}
}

func (p *LemonSqueezyProvider) SupportsSkippingTrial() bool { return false }
func (p *LemonSqueezyProvider) IsRedirectProvider() bool    { return false }
func (p *LemonSqueezyProvider) IsOverlayProvider() bool     { return true }

// JSON:API document shapes.
type (
	lsRelation struct {
		Data lsIdentifier `json:"data"`
	}

	lsIdentifier struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	}

	lsResource[A any] struct {
		Type          string                `json:"type"`
		ID            string                `json:"id,omitempty"`
		Attributes    A                     `json:"attributes"`
		Relationships map[string]lsRelation `json:"relationships,omitempty"`
	}

	lsDocument[A any] struct {
		Data lsResource[A] `json:"data"`
	}
)

type lsCheckoutAttributes struct {
	URL             string             `json:"url,omitempty"`
	ExpiresAt       time.Time          `json:"expires_at,omitzero"`
	CheckoutOptions *lsCheckoutOptions `json:"checkout_options,omitempty"`
	CheckoutData    *lsCheckoutData    `json:"checkout_data,omitempty"`
	ProductOptions  *lsProductOptions  `json:"product_options,omitempty"`
}

type lsCheckoutOptions struct {
	Embed bool `json:"embed"`
}

type lsProductOptions struct {
	RedirectURL string `json:"redirect_url,omitempty"`
}

type lsVariantQuantity struct {
	VariantID int `json:"variant_id"`
	Quantity  int `json:"quantity"`
}

type lsCheckoutData struct {
	Email             string              `json:"email,omitempty"`
	Custom            map[string]string   `json:"custom,omitempty"`
	VariantQuantities []lsVariantQuantity `json:"variant_quantities,omitempty"`
}

type lsSubscriptionAttributes struct {
	Status                string     `json:"status,omitempty"`
	CustomerID            int64      `json:"customer_id,omitempty"`
	VariantID             int64      `json:"variant_id,omitempty"`
	Cancelled             *bool      `json:"cancelled,omitempty"`
	RenewsAt              *time.Time `json:"renews_at,omitempty"`
	EndsAt                *time.Time `json:"ends_at,omitempty"`
	InvoiceImmediately    *bool      `json:"invoice_immediately,omitempty"`
	DisableProrations     *bool      `json:"disable_prorations,omitempty"`
	SubscriptionID        int64      `json:"subscription_id,omitempty"` // invoices only
	FirstSubscriptionItem *struct {
		ID       int64 `json:"id"`
		Quantity int   `json:"quantity"`
	} `json:"first_subscription_item,omitempty"`
}

type lsSubscriptionItemAttributes struct {
	Quantity           int   `json:"quantity"`
	InvoiceImmediately *bool `json:"invoice_immediately,omitempty"`
}

func (p *LemonSqueezyProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error) {
	if req.PriceID == "" {
		return nil, ErrMissingPriceID
	}
	variantID, err := strconv.Atoi(req.PriceID)
	if err != nil {
		return nil, fmt.Errorf("%w: lemon squeezy variant id %q is not numeric", ErrMissingPriceID, req.PriceID)
	}

	attrs := lsCheckoutAttributes{
		CheckoutOptions: &lsCheckoutOptions{Embed: true},
		CheckoutData: &lsCheckoutData{
			Email:             req.Email,
			Custom:            map[string]string{metadataSubscriptionKey: req.Subscription.ID.String()},
			VariantQuantities: []lsVariantQuantity{{VariantID: variantID, Quantity: max(req.Quantity, 1)}},
		},
	}
	if req.SuccessURL != "" {
		attrs.ProductOptions = &lsProductOptions{RedirectURL: req.SuccessURL}
	}

	body := lsDocument[lsCheckoutAttributes]{Data: lsResource[lsCheckoutAttributes]{
		Type:       "checkouts",
		Attributes: attrs,
		Relationships: map[string]lsRelation{
			"store":   {Data: lsIdentifier{Type: "stores", ID: p.storeID}},
			"variant": {Data: lsIdentifier{Type: "variants", ID: req.PriceID}},
		},
	}}

	var resp lsDocument[lsCheckoutAttributes]
	if err := p.do(ctx, http.MethodPost, "/checkouts", body, &resp); err != nil {
		return nil, fmt.Errorf("failed to create lemon squeezy checkout: %w", err)
	}
	if resp.Data.Attributes.URL == "" {
		return nil, ErrNoCheckoutURL
	}

	expires := resp.Data.Attributes.ExpiresAt
	if expires.IsZero() {
		expires = p.now().Add(24 * time.Hour)
	}
	return &CheckoutLink{
		URL:       resp.Data.Attributes.URL,
		SessionID: resp.Data.ID,
		ExpiresAt: expires,
		Overlay:   true,
	}, nil
}

func (p *LemonSqueezyProvider) CancelSubscription(ctx context.Context, sub *Subscription, _, _ string) error {
	if err := p.patchSubscription(ctx, sub, lsSubscriptionAttributes{Cancelled: boolPtr(true)}, nil); err != nil {
		return fmt.Errorf("failed to cancel lemon squeezy subscription: %w", err)
	}
	return nil
}

func (p *LemonSqueezyProvider) DiscardSubscriptionCancellation(ctx context.Context, sub *Subscription) error {
	current, err := p.getSubscription(ctx, sub)
	if err != nil {
		return err
	}
	attrs := current.Data.Attributes
	if attrs.Status == "expired" {
		return ErrCancellationWindowElapsed
	}
	if attrs.EndsAt != nil && !p.now().Before(*attrs.EndsAt) {
		return ErrCancellationWindowElapsed
	}
	if err := p.patchSubscription(ctx, sub, lsSubscriptionAttributes{Cancelled: boolPtr(false)}, nil); err != nil {
		return fmt.Errorf("failed to resume lemon squeezy subscription: %w", err)
	}
	return nil
}

// ChangePlan swaps the variant. Lemon Squeezy invoices prorations on its own
// schedule, so the result carries no amount.
func (p *LemonSqueezyProvider) ChangePlan(ctx context.Context, sub *Subscription, newPlan Plan, isProrated bool) (*ChangePlanResult, error) {
	priceID, ok := newPlan.ProviderPriceID(ProviderLemonSqueezy)
	if !ok {
		return nil, ErrMissingPriceID
	}
	variantID, err := strconv.ParseInt(priceID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: lemon squeezy variant id %q is not numeric", ErrMissingPriceID, priceID)
	}

	attrs := lsSubscriptionAttributes{
		VariantID:          variantID,
		InvoiceImmediately: boolPtr(isProrated),
		DisableProrations:  boolPtr(!isProrated),
	}
	var resp lsDocument[lsSubscriptionAttributes]
	if err := p.patchSubscription(ctx, sub, attrs, &resp); err != nil {
		return nil, fmt.Errorf("failed to change lemon squeezy subscription plan: %w", err)
	}
	return &ChangePlanResult{CurrentPeriodEnd: cloneTime(resp.Data.Attributes.RenewsAt)}, nil
}

// ApplyDiscount is not supported: Lemon Squeezy discounts apply at checkout only.
func (p *LemonSqueezyProvider) ApplyDiscount(context.Context, *Subscription, *Discount) error {
	return ErrOperationNotSupported
}

// EndSubscriptionImmediately cancels the subscription through the delete
// endpoint. Lemon Squeezy has no immediate termination: renewal stops, but
// the subscription stays "cancelled" on its side until the paid period ends
// and then expires. The local record is ended right away; the later
// subscription_cancelled and subscription_expired webhooks hit a terminal
// status and are ignored. No refund is issued.
func (p *LemonSqueezyProvider) EndSubscriptionImmediately(ctx context.Context, sub *Subscription) error {
	if sub.ProviderSubscriptionID == "" {
		return ErrMissingProviderReference
	}
	if err := p.do(ctx, http.MethodDelete, "/subscriptions/"+sub.ProviderSubscriptionID, nil, nil); err != nil {
		return fmt.Errorf("failed to end lemon squeezy subscription: %w", err)
	}
	return nil
}

func (p *LemonSqueezyProvider) UpdateQuantity(ctx context.Context, sub *Subscription, quantity int) error {
	current, err := p.getSubscription(ctx, sub)
	if err != nil {
		return err
	}
	item := current.Data.Attributes.FirstSubscriptionItem
	if item == nil {
		return fmt.Errorf("lemon squeezy subscription %s has no items", sub.ProviderSubscriptionID)
	}

	itemID := strconv.FormatInt(item.ID, 10)
	body := lsDocument[lsSubscriptionItemAttributes]{Data: lsResource[lsSubscriptionItemAttributes]{
		Type:       "subscription-items",
		ID:         itemID,
		Attributes: lsSubscriptionItemAttributes{Quantity: quantity, InvoiceImmediately: boolPtr(true)},
	}}
	if err := p.do(ctx, http.MethodPatch, "/subscription-items/"+itemID, body, nil); err != nil {
		return fmt.Errorf("failed to update lemon squeezy subscription quantity: %w", err)
	}
	return nil
}

func (p *LemonSqueezyProvider) getSubscription(ctx context.Context, sub *Subscription) (*lsDocument[lsSubscriptionAttributes], error) {
	if sub.ProviderSubscriptionID == "" {
		return nil, ErrMissingProviderReference
	}
	var resp lsDocument[lsSubscriptionAttributes]
	if err := p.do(ctx, http.MethodGet, "/subscriptions/"+sub.ProviderSubscriptionID, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get lemon squeezy subscription: %w", err)
	}
	return &resp, nil
}

func (p *LemonSqueezyProvider) patchSubscription(ctx context.Context, sub *Subscription, attrs lsSubscriptionAttributes, out any) error {
	if sub.ProviderSubscriptionID == "" {
		return ErrMissingProviderReference
	}
	body := lsDocument[lsSubscriptionAttributes]{Data: lsResource[lsSubscriptionAttributes]{
		Type:       "subscriptions",
		ID:         sub.ProviderSubscriptionID,
		Attributes: attrs,
	}}
	return p.do(ctx, http.MethodPatch, "/subscriptions/"+sub.ProviderSubscriptionID, body, out)
}

// lsAPIError is a JSON:API error response.
type lsAPIError struct {
	StatusCode int
	Errors     []struct {
		Status string `json:"status"`
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

func (e *lsAPIError) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("lemon squeezy api error %d: %s: %s", e.StatusCode, e.Errors[0].Title, e.Errors[0].Detail)
	}
	return fmt.Sprintf("lemon squeezy api error %d", e.StatusCode)
}

func (p *LemonSqueezyProvider) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", lemonSqueezyContentType)
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", lemonSqueezyContentType)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &lsAPIError{StatusCode: resp.StatusCode}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(apiErr)
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

type lsWebhookPayload struct {
	Meta struct {
		EventName  string            `json:"event_name"`
		WebhookID  string            `json:"webhook_id"`
		CustomData map[string]string `json:"custom_data"`
	} `json:"meta"`
	Data lsResource[lsSubscriptionAttributes] `json:"data"`
}

// ParseWebhook verifies the X-Signature HMAC and normalizes the event.
// Lemon Squeezy sends no event id, so the body digest is used instead.
func (p *LemonSqueezyProvider) ParseWebhook(_ context.Context, payload []byte, header http.Header) (*WebhookEvent, error) {
	if err := webhook.VerifyHex(p.webhookSecret, payload, header.Get("X-Signature")); err != nil {
		return nil, errors.Join(ErrWebhookVerificationFailed, err)
	}

	var msg lsWebhookPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, errors.Join(ErrInvalidWebhookPayload, err)
	}

	digest := sha256.Sum256(payload)
	attrs := msg.Data.Attributes
	ev := &WebhookEvent{
		ID:             hex.EncodeToString(digest[:]),
		Type:           mapLemonSqueezyEventType(msg.Meta.EventName),
		ProviderEvent:  msg.Meta.EventName,
		SubscriptionID: parseSubscriptionID(msg.Meta.CustomData[metadataSubscriptionKey]),
		Status:         attrs.Status,
		OccurredAt:     p.now().UTC(),
	}
	if attrs.CustomerID > 0 {
		ev.ProviderCustomerID = strconv.FormatInt(attrs.CustomerID, 10)
	}

	switch msg.Data.Type {
	case "subscriptions":
		ev.ProviderSubscriptionID = msg.Data.ID
		ev.MappedStatus = mapLemonSqueezyStatus(attrs.Status)
		ev.CancelAtPeriodEnd = attrs.Cancelled != nil && *attrs.Cancelled && attrs.Status != "expired"
		if attrs.VariantID > 0 {
			ev.ProviderPriceID = strconv.FormatInt(attrs.VariantID, 10)
		}
		if attrs.FirstSubscriptionItem != nil {
			ev.Quantity = attrs.FirstSubscriptionItem.Quantity
		}
		if ev.CancelAtPeriodEnd && attrs.EndsAt != nil {
			ev.CurrentPeriodEnd = timePtr(attrs.EndsAt.UTC())
		} else if attrs.RenewsAt != nil {
			ev.CurrentPeriodEnd = timePtr(attrs.RenewsAt.UTC())
		}
	case "subscription-invoices":
		if attrs.SubscriptionID > 0 {
			ev.ProviderSubscriptionID = strconv.FormatInt(attrs.SubscriptionID, 10)
		}
	}
	if ev.ProviderSubscriptionID == "" && ev.SubscriptionID == uuid.Nil {
		ev.Type = EventIgnored
	}
	return ev, nil
}

func mapLemonSqueezyEventType(name string) EventType {
	switch name {
	case "subscription_created":
		return EventSubscriptionCreated
	case "subscription_updated", "subscription_resumed", "subscription_unpaused", "subscription_paused":
		return EventSubscriptionUpdated
	case "subscription_cancelled":
		return EventSubscriptionCancelled
	case "subscription_expired":
		return EventSubscriptionEnded
	case "subscription_payment_success", "subscription_payment_recovered":
		return EventPaymentSucceeded
	case "subscription_payment_failed":
		return EventPaymentFailed
	}
	return EventIgnored
}

func mapLemonSqueezyStatus(status string) Status {
	switch status {
	case "active", "on_trial":
		return StatusActive
	case "past_due", "unpaid":
		return StatusPastDue
	case "cancelled":
		return StatusPendingCancellation
	case "expired":
		return StatusEnded
	}
	return ""
}

func boolPtr(b bool) *bool { return &b }
