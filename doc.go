// Package paykit is a subscription billing core that keeps local
// subscription state in step with external payment providers.
//
// The module is organised as a set of packages:
//
//   - pkg/subscription: plans, the subscription state machine, the
//     Stripe, Paddle and Lemon Squeezy adapters, the provider registry
//     (PaymentService), SubscriptionService, SubscriptionManager and the
//     webhook processor
//   - pkg/subscription/pgstore: PostgreSQL storage with embedded migrations
//   - pkg/redis: distributed subscription locks and webhook deduplication
//   - pkg/notifications: subscription notices delivered by email or signed webhook
//   - svc/webhooks: HTTP endpoints receiving provider webhooks
//   - svc/jobs: scheduled expiry cleanup and seat quantity sync
//   - cmd/paykit: the service binary
//
// Basic usage:
//
//	store := subscription.NewMemoryStore()
//	payments := subscription.NewPaymentService(store, stripeProvider)
//	svc, err := subscription.NewSubscriptionService(ctx, plans, payments, store, store)
//	if err != nil {
//		return err
//	}
//	res, err := svc.StartCheckout(ctx, subscription.CheckoutParams{
//		UserID:   userID,
//		TenantID: tenantID,
//		PlanSlug: "pro-monthly",
//	})
//
// Provider webhooks are applied through WebhookProcessor, which verifies,
// deduplicates and maps each event onto a lifecycle transition under a
// per-subscription lock.
package paykit
