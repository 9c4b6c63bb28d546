package notifications

import (
	"fmt"
	"slices"
	"time"

	"github.com/dmitrymomot/paykit/pkg/subscription"
)

func describe(n subscription.Notice) (title, message string) {
	switch n.Kind {
	case subscription.NoticeCancelled:
		return "Subscription cancelled", "Your subscription will end at the end of the current billing period."
	case subscription.NoticeCancellationUndone:
		return "Cancellation withdrawn", "Your subscription will continue to renew."
	case subscription.NoticePlanChanged:
		return "Plan changed", "Your subscription plan was changed."
	case subscription.NoticeDiscountApplied:
		return "Discount applied", "A discount was applied to your subscription."
	case subscription.NoticeEnded:
		return "Subscription ended", "Your subscription has ended."
	case subscription.NoticeActivated:
		return "Subscription active", "Your subscription is now active."
	case subscription.NoticePaymentFailed:
		return "Payment failed", "We could not charge your payment method. Please update your billing details."
	case subscription.NoticeSeatQuantityChanged:
		return "Seats updated", "The number of billed seats was adjusted to your team size."
	}
	return "Subscription updated", fmt.Sprintf("Your subscription changed (%s).", n.Kind)
}

// details renders notice data as sorted "key: value" lines.
func details(data map[string]any) []string {
	if len(data) == 0 {
		return nil
	}
	out := make([]string, 0, len(data))
	for k, v := range data {
		switch val := v.(type) {
		case nil:
			continue
		case *time.Time:
			if val == nil {
				continue
			}
			v = val.Format("2006-01-02")
		case time.Time:
			v = val.Format("2006-01-02")
		}
		out = append(out, fmt.Sprintf("%s: %v", k, v))
	}
	slices.Sort(out)
	return out
}
