// Package subscription implements a multi-provider subscription billing core.
//
// A subscription is a local record bound to exactly one payment provider
// (Stripe, Paddle or Lemon Squeezy). Providers are adapters behind the
// Provider interface; the local record is the source of truth for status,
// and provider webhooks keep it in sync with what was actually billed.
//
// # Architecture
//
//   - Provider: capability contract implemented by StripeProvider,
//     PaddleProvider and LemonSqueezyProvider
//   - PaymentService: registry of adapters filtered by the persisted
//     PaymentProvider rows and by plan capabilities
//   - SubscriptionService: user-initiated lifecycle operations
//     (checkout, cancel, discard cancellation, change plan, apply discount, end now)
//   - SubscriptionManager: periodic reconciliation (expiry cleanup, user
//     verification activation, seat quantity sync)
//   - WebhookProcessor: verified provider events applied idempotently
//   - SubscriptionStore, ProviderStore, DiscountStore: persistence
//   - PlansListSource: plan catalog loaded once at construction
//
// # Lifecycle
//
// Status changes go through a single transition table built on
// pkg/statemachine:
//
//	pending ──activate──▶ active ──cancel──▶ pending_cancellation ──expire──▶ ended
//	   │                    ▲  │                     │
//	   │ verify             │  └─payment failed─▶ past_due
//	   ▼                    │
//	pending_user_verification
//
// ended is terminal. Every operation locks the subscription, re-reads it,
// fires the transition (guards first, then the provider call) and persists
// with an optimistic version check. A failed provider call leaves the local
// record untouched.
//
// # Usage
//
//	registry := subscription.NewPaymentService(store, stripeProvider, paddleProvider)
//	svc, err := subscription.NewSubscriptionService(ctx, plans, registry, store, store,
//		subscription.WithLocker(locker),
//		subscription.WithLogger(log),
//	)
//	if err != nil {
//		return err
//	}
//
//	res, err := svc.StartCheckout(ctx, subscription.CheckoutParams{
//		UserID:   userID,
//		TenantID: tenantID,
//		PlanSlug: "pro-monthly",
//	})
//
// # Errors
//
// Expected business outcomes are sentinel errors (ErrTransitionNotAllowed,
// ErrCancellationWindowElapsed, ErrPlanChangeNotAllowed, ErrDiscountRejected
// and others). Use IsBusinessRejection to tell them apart from provider or
// storage failures, which wrap ErrProviderError or the store error.
package subscription
