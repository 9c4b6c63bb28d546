package webhook

import "errors"

var (
	ErrDeliveryFailed       = errors.New("webhook delivery failed")
	ErrPermanentFailure     = errors.New("permanent webhook failure")
	ErrCircuitOpen          = errors.New("webhook circuit breaker is open")
	ErrInvalidURL           = errors.New("invalid webhook URL")
	ErrInvalidConfiguration = errors.New("invalid webhook configuration")

	ErrMissingSignature = errors.New("webhook signature is missing")
	ErrSignatureExpired = errors.New("webhook signature timestamp outside tolerance")
	ErrSignatureInvalid = errors.New("webhook signature mismatch")
)
