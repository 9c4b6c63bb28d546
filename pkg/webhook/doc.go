// Package webhook signs and delivers outbound JSON webhooks and verifies
// HMAC-SHA256 signatures on inbound ones.
//
// Sender posts a payload with retries, exponential backoff and an optional
// per-endpoint CircuitBreaker. With a secret configured each request carries
//
//	X-Paykit-Timestamp: <unix seconds>
//	X-Paykit-Signature: hex(HMAC-SHA256(secret, "<timestamp>.<body>"))
//	X-Paykit-Delivery:  <delivery id, stable across retries>
//
// Receivers check them with Verify. SignHex and VerifyHex cover providers
// that sign the raw body without a timestamp.
//
//	sender := webhook.NewSender(
//		webhook.WithSecret(secret),
//		webhook.WithCircuitBreaker(webhook.NewCircuitBreaker(5, time.Minute)),
//	)
//	err := sender.Send(ctx, "https://app.example.com/hooks/billing", id.String(), payload)
package webhook
