package subscription

import "errors"

var (
	ErrPlanNotFound             = errors.New("subscription plan not found")
	ErrInvalidPlanConfiguration = errors.New("invalid subscription plan configuration")
	ErrFailedToLoadPlans        = errors.New("failed to load subscription plans")

	ErrSubscriptionNotFound      = errors.New("subscription not found")
	ErrSubscriptionAlreadyExists = errors.New("live subscription already exists for product")
	ErrConcurrentUpdate          = errors.New("subscription was modified concurrently")
	ErrLockNotAcquired           = errors.New("subscription is locked by another operation")

	// Business rejections: expected outcomes surfaced to the user.
	ErrTransitionNotAllowed      = errors.New("subscription transition not allowed")
	ErrCancellationWindowElapsed = errors.New("subscription period has already elapsed")
	ErrPlanChangeNotAllowed      = errors.New("plan change not allowed")
	ErrInvalidDiscountCode       = errors.New("invalid discount code")
	ErrDiscountRejected          = errors.New("discount rejected by payment provider")
	ErrDiscountAlreadyApplied    = errors.New("subscription already has an active discount")
	ErrOperationNotSupported     = errors.New("operation not supported by payment provider")
	ErrNoProviderAvailable       = errors.New("no payment provider available for plan")

	ErrProviderError    = errors.New("payment provider error")
	ErrProviderNotFound = errors.New("payment provider not found")

	// Provider configuration and webhook errors
	ErrInvalidProviderConfig      = errors.New("invalid payment provider configuration")
	ErrInvalidProviderEnvironment = errors.New("invalid payment provider environment")
	ErrWebhookVerificationFailed  = errors.New("webhook signature verification failed")
	ErrInvalidWebhookPayload      = errors.New("invalid webhook payload")
	ErrNoCheckoutURL              = errors.New("no checkout URL returned from provider")
	ErrMissingPriceID             = errors.New("plan has no price configured for provider")
	ErrMissingProviderReference   = errors.New("subscription has no provider subscription id")
)

var businessRejections = []error{
	ErrTransitionNotAllowed,
	ErrCancellationWindowElapsed,
	ErrPlanChangeNotAllowed,
	ErrInvalidDiscountCode,
	ErrDiscountRejected,
	ErrDiscountAlreadyApplied,
	ErrOperationNotSupported,
	ErrNoProviderAvailable,
	ErrSubscriptionAlreadyExists,
}

// IsBusinessRejection reports whether err is an expected rejection that
// should be shown to the user rather than logged as a failure.
func IsBusinessRejection(err error) bool {
	for _, target := range businessRejections {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
