package pgstore

import (
	"context"
	"fmt"

	"github.com/dmitrymomot/paykit/pkg/pg"
	"github.com/dmitrymomot/paykit/pkg/subscription"
)

func (s *Store) GetDiscount(ctx context.Context, code string) (*subscription.Discount, error) {
	var d subscription.Discount
	err := s.db.QueryRow(ctx, `SELECT code, provider_discount_ids, is_active, valid_until,
			max_redemptions, redemptions, plan_slugs, duration_in_months
		FROM discounts WHERE code = $1`, subscription.NormalizeDiscountCode(code)).Scan(
		&d.Code, &d.ProviderDiscountIDs, &d.IsActive, &d.ValidUntil,
		&d.MaxRedemptions, &d.Redemptions, &d.PlanSlugs, &d.DurationInMonths,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, subscription.ErrInvalidDiscountCode
		}
		return nil, fmt.Errorf("get discount: %w", err)
	}
	return &d, nil
}

func (s *Store) ReserveRedemption(ctx context.Context, code string) error {
	tag, err := s.db.Exec(ctx, `UPDATE discounts SET redemptions = redemptions + 1
		WHERE code = $1 AND (max_redemptions = 0 OR redemptions < max_redemptions)`,
		subscription.NormalizeDiscountCode(code))
	if err != nil {
		return fmt.Errorf("reserve discount redemption: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Missing and exhausted codes are indistinguishable to the caller.
		return subscription.ErrInvalidDiscountCode
	}
	return nil
}

func (s *Store) ReleaseRedemption(ctx context.Context, code string) error {
	tag, err := s.db.Exec(ctx, `UPDATE discounts SET redemptions = GREATEST(redemptions - 1, 0) WHERE code = $1`,
		subscription.NormalizeDiscountCode(code))
	if err != nil {
		return fmt.Errorf("release discount redemption: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return subscription.ErrInvalidDiscountCode
	}
	return nil
}

// PutDiscount inserts or replaces a discount definition.
func (s *Store) PutDiscount(ctx context.Context, d subscription.Discount) error {
	ids := d.ProviderDiscountIDs
	if ids == nil {
		ids = map[string]string{}
	}
	plans := d.PlanSlugs
	if plans == nil {
		plans = []string{}
	}
	_, err := s.db.Exec(ctx, `INSERT INTO discounts (code, provider_discount_ids, is_active, valid_until,
			max_redemptions, redemptions, plan_slugs, duration_in_months)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (code) DO UPDATE SET
			provider_discount_ids = EXCLUDED.provider_discount_ids,
			is_active = EXCLUDED.is_active,
			valid_until = EXCLUDED.valid_until,
			max_redemptions = EXCLUDED.max_redemptions,
			plan_slugs = EXCLUDED.plan_slugs,
			duration_in_months = EXCLUDED.duration_in_months`,
		subscription.NormalizeDiscountCode(d.Code), ids, d.IsActive, d.ValidUntil,
		d.MaxRedemptions, d.Redemptions, plans, d.DurationInMonths)
	if err != nil {
		return fmt.Errorf("put discount %q: %w", d.Code, err)
	}
	return nil
}
