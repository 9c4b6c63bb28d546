package subscription

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Discount is a redeemable code mapped to provider-side coupons.
type Discount struct {
	Code                string
	ProviderDiscountIDs map[string]string // provider slug -> coupon/discount id
	IsActive            bool
	ValidUntil          *time.Time
	MaxRedemptions      int // 0 = unlimited
	Redemptions         int
	PlanSlugs           []string // empty = all plans
	DurationInMonths    int      // 0 = forever
}

// AppliedDiscount records a discount applied to a subscription.
type AppliedDiscount struct {
	Code      string
	AppliedAt time.Time
	ExpiresAt *time.Time // nil = never expires
}

// ActiveAt reports whether the applied discount still affects billing at now.
func (d *AppliedDiscount) ActiveAt(now time.Time) bool {
	return d.ExpiresAt == nil || now.Before(*d.ExpiresAt)
}

// NormalizeDiscountCode uppercases and trims a user-entered code.
func NormalizeDiscountCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Check verifies the discount can be redeemed for plan at now on the given provider.
func (d *Discount) Check(plan Plan, providerSlug string, now time.Time) error {
	switch {
	case !d.IsActive:
		return errors.Join(ErrInvalidDiscountCode, fmt.Errorf("discount %q is inactive", d.Code))
	case d.ValidUntil != nil && !now.Before(*d.ValidUntil):
		return errors.Join(ErrInvalidDiscountCode, fmt.Errorf("discount %q expired", d.Code))
	case d.MaxRedemptions > 0 && d.Redemptions >= d.MaxRedemptions:
		return errors.Join(ErrInvalidDiscountCode, fmt.Errorf("discount %q fully redeemed", d.Code))
	case len(d.PlanSlugs) > 0 && !slices.Contains(d.PlanSlugs, plan.Slug):
		return errors.Join(ErrInvalidDiscountCode, fmt.Errorf("discount %q not valid for plan %q", d.Code, plan.Slug))
	}
	if _, ok := d.ProviderID(providerSlug); !ok {
		return errors.Join(ErrInvalidDiscountCode, fmt.Errorf("discount %q not configured for provider %q", d.Code, providerSlug))
	}
	return nil
}

// ProviderID returns the provider-side id of the discount.
func (d *Discount) ProviderID(providerSlug string) (string, bool) {
	id, ok := d.ProviderDiscountIDs[providerSlug]
	return id, ok && id != ""
}

// Apply builds the record stored on the subscription.
func (d *Discount) Apply(now time.Time) *AppliedDiscount {
	applied := &AppliedDiscount{Code: d.Code, AppliedAt: now}
	if d.DurationInMonths > 0 {
		applied.ExpiresAt = timePtr(now.AddDate(0, d.DurationInMonths, 0))
	}
	return applied
}
