// Package webhooks exposes the HTTP surface of the billing service.
//
// Each provider posts to /webhooks/{provider}, where provider is the adapter
// slug (stripe, paddle, lemon-squeezy). The body is capped at 1 MiB and handed
// to a subscription.WebhookProcessor. Responses are JSON:
//
//   - 200 for applied, duplicate, ignored and unmatched deliveries
//   - 400 for bad signatures and malformed payloads
//   - 404 for unknown provider slugs
//   - 500 for anything else, so the provider retries
//
// Every delivery increments paykit_webhooks_requests_total{provider,outcome}
// and observes paykit_webhooks_duration_seconds{provider}.
package webhooks
