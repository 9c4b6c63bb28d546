package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/dmitrymomot/paykit/pkg/logger"
)

// WebhookProcessor applies verified provider webhooks to local subscriptions.
// Processing is idempotent: duplicate deliveries are dropped by event id and
// every transition first checks the current local status.
type WebhookProcessor struct {
	*core
}

// WebhookResult describes what a webhook changed.
type WebhookResult struct {
	Event       *WebhookEvent
	Duplicate   bool
	Unmatched   bool // no local subscription matched the event
	Transitions []LifecycleEvent
	Updated     bool
}

// NewWebhookProcessor creates a webhook processor.
func NewWebhookProcessor(ctx context.Context, src PlansListSource, registry *PaymentService, store SubscriptionStore, opts ...Option) (*WebhookProcessor, error) {
	c, err := newCore(ctx, src, registry, store, opts)
	if err != nil {
		return nil, err
	}
	return &WebhookProcessor{core: c}, nil
}

// Handle verifies payload with the adapter registered under providerSlug and
// applies the event. Verification failures are returned as
// ErrWebhookVerificationFailed; unknown subscriptions are acknowledged.
func (w *WebhookProcessor) Handle(ctx context.Context, providerSlug string, payload []byte, header http.Header) (*WebhookResult, error) {
	provider, err := w.registry.ProviderBySlug(providerSlug)
	if err != nil {
		return nil, err
	}

	ev, err := provider.ParseWebhook(ctx, payload, header)
	if err != nil {
		return nil, err
	}
	ev.ProviderSlug = providerSlug

	log := w.opts.logger.With(
		logger.Provider(providerSlug),
		logger.EventType(string(ev.Type)),
		slog.String("provider_event", ev.ProviderEvent),
		slog.String("event_id", ev.ID),
	)
	result := &WebhookResult{Event: ev}

	if ev.Type == EventIgnored {
		log.DebugContext(ctx, "ignoring webhook event")
		return result, nil
	}

	dedupKey := providerSlug + ":" + ev.ID
	if ev.ID != "" && w.opts.dedup != nil {
		if !w.opts.dedup.Add(dedupKey, struct{}{}) {
			log.InfoContext(ctx, "duplicate webhook event skipped")
			result.Duplicate = true
			return result, nil
		}
	}

	if err := w.apply(ctx, ev, result); err != nil {
		if ev.ID != "" && w.opts.dedup != nil {
			// Let the provider's retry be processed.
			w.opts.dedup.Remove(dedupKey)
		}
		log.ErrorContext(ctx, "failed to apply webhook event", logger.Error(err))
		return result, err
	}

	if result.Unmatched {
		log.WarnContext(ctx, "webhook event does not match any subscription",
			slog.String("provider_subscription_id", ev.ProviderSubscriptionID),
		)
	}
	return result, nil
}

func (w *WebhookProcessor) findSubscription(ctx context.Context, ev *WebhookEvent) (*Subscription, error) {
	if ev.SubscriptionID != uuid.Nil {
		sub, err := w.store.Get(ctx, ev.SubscriptionID)
		if err == nil {
			return sub, nil
		}
		if !errors.Is(err, ErrSubscriptionNotFound) {
			return nil, err
		}
	}
	if ev.ProviderSubscriptionID == "" {
		return nil, ErrSubscriptionNotFound
	}
	return w.store.GetByProviderSubscriptionID(ctx, ev.ProviderSlug, ev.ProviderSubscriptionID)
}

func (w *WebhookProcessor) apply(ctx context.Context, ev *WebhookEvent, result *WebhookResult) error {
	found, err := w.findSubscription(ctx, ev)
	if errors.Is(err, ErrSubscriptionNotFound) {
		result.Unmatched = true
		return nil
	}
	if err != nil {
		return err
	}

	release, err := w.lock(ctx, found.ID)
	if err != nil {
		return err
	}
	defer release()

	sub, err := w.store.Get(ctx, found.ID)
	if err != nil {
		return err
	}
	if sub.ProviderSlug != ev.ProviderSlug {
		return fmt.Errorf("%w: event from %q for subscription bound to %q", ErrInvalidWebhookPayload, ev.ProviderSlug, sub.ProviderSlug)
	}
	if sub.IsEnded() {
		// Terminal. Late events for ended subscriptions are acknowledged and dropped.
		return nil
	}

	synced, changed := w.syncFields(sub, ev)
	for _, event := range transitionsFor(synced, ev) {
		in, err := w.newTransition(synced)
		if err != nil {
			return err
		}
		in.commit = func(s *Subscription) {
			switch event {
			case OnCancel:
				if s.CancelledAt == nil {
					s.CancelledAt = timePtr(in.now)
				}
			case OnDiscardCancellation:
				s.CancelledAt = nil
				s.CancellationReason = ""
				s.CancellationDetails = ""
			}
		}
		if !w.table.CanFire(ctx, synced.Status, event, in) {
			continue
		}
		next, err := w.fire(ctx, synced, event, in)
		if err != nil {
			return err
		}
		synced = next
		changed = false
		result.Transitions = append(result.Transitions, event)
		result.Updated = true
		w.notifyTransition(ctx, event, synced)
	}

	if changed {
		synced.UpdatedAt = w.opts.now()
		if err := w.store.Update(ctx, synced); err != nil {
			return fmt.Errorf("failed to persist subscription %s: %w", synced.ID, err)
		}
		result.Updated = true
	}
	return nil
}

// syncFields copies provider-owned fields from the event onto a copy of sub.
// The version is kept so the next write is checked against the stored row.
func (w *WebhookProcessor) syncFields(sub *Subscription, ev *WebhookEvent) (*Subscription, bool) {
	out := sub.Clone()
	changed := false

	if ev.ProviderSubscriptionID != "" && out.ProviderSubscriptionID != ev.ProviderSubscriptionID {
		out.ProviderSubscriptionID = ev.ProviderSubscriptionID
		changed = true
	}
	if ev.ProviderCustomerID != "" && out.ProviderCustomerID != ev.ProviderCustomerID {
		out.ProviderCustomerID = ev.ProviderCustomerID
		changed = true
	}
	if ev.Quantity > 0 && out.Quantity != ev.Quantity {
		out.Quantity = ev.Quantity
		changed = true
	}
	if ev.CurrentPeriodEnd != nil && (out.CurrentPeriodEnd == nil || !out.CurrentPeriodEnd.Equal(*ev.CurrentPeriodEnd)) {
		out.CurrentPeriodEnd = cloneTime(ev.CurrentPeriodEnd)
		changed = true
	}
	if plan, ok := w.plans.byProviderPrice(ev.ProviderSlug, ev.ProviderPriceID); ok && plan.Slug != out.PlanSlug {
		out.PlanSlug = plan.Slug
		out.ProductSlug = plan.ProductSlug
		changed = true
	}
	return out, changed
}

// transitionsFor maps a normalized event to lifecycle events. Events not
// allowed from the current status are skipped by the caller, which makes
// replays no-ops.
func transitionsFor(sub *Subscription, ev *WebhookEvent) []LifecycleEvent {
	switch ev.Type {
	case EventSubscriptionCreated:
		// Verification holds stay until the user is verified.
		if sub.Status == StatusPending {
			return []LifecycleEvent{OnActivate}
		}
	case EventSubscriptionUpdated:
		var events []LifecycleEvent
		switch ev.MappedStatus {
		case StatusEnded:
			return []LifecycleEvent{OnEndNow}
		case StatusPastDue:
			events = append(events, OnPaymentFailed)
		case StatusActive, StatusPendingCancellation:
			if sub.Status == StatusPending || sub.Status == StatusPastDue {
				events = append(events, OnActivate)
			}
		}
		if ev.CancelAtPeriodEnd {
			events = append(events, OnCancel)
		} else if sub.Status == StatusPendingCancellation && ev.MappedStatus == StatusActive {
			events = append(events, OnDiscardCancellation)
		}
		return events
	case EventSubscriptionCancelled:
		return []LifecycleEvent{OnCancel}
	case EventSubscriptionEnded:
		return []LifecycleEvent{OnEndNow}
	case EventPaymentFailed:
		return []LifecycleEvent{OnPaymentFailed}
	case EventPaymentSucceeded:
		return []LifecycleEvent{OnActivate}
	}
	return nil
}

func (w *WebhookProcessor) notifyTransition(ctx context.Context, event LifecycleEvent, sub *Subscription) {
	switch event {
	case OnActivate:
		w.notify(ctx, NoticeActivated, sub, nil)
	case OnPaymentFailed:
		w.notify(ctx, NoticePaymentFailed, sub, nil)
	case OnEndNow:
		w.notify(ctx, NoticeEnded, sub, nil)
	case OnCancel:
		w.notify(ctx, NoticeCancelled, sub, map[string]any{"ends_at": sub.CurrentPeriodEnd})
	}
}
