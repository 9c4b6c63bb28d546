package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/paykit/pkg/subscription"
)

// ListProviders returns provider rows ordered by sort order.
func (s *Store) ListProviders(ctx context.Context) ([]subscription.PaymentProvider, error) {
	rows, err := s.db.Query(ctx, `SELECT slug, name, is_active, is_enabled_for_new_payments, sort_order
		FROM payment_providers ORDER BY sort_order, slug`)
	if err != nil {
		return nil, fmt.Errorf("query payment providers: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (subscription.PaymentProvider, error) {
		var p subscription.PaymentProvider
		err := row.Scan(&p.Slug, &p.Name, &p.IsActive, &p.IsEnabledForNewPayments, &p.SortOrder)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan payment providers: %w", err)
	}
	return out, nil
}

// UpsertProvider inserts or replaces a provider row.
func (s *Store) UpsertProvider(ctx context.Context, p subscription.PaymentProvider) error {
	_, err := s.db.Exec(ctx, `INSERT INTO payment_providers (slug, name, is_active, is_enabled_for_new_payments, sort_order)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (slug) DO UPDATE SET
			name = EXCLUDED.name,
			is_active = EXCLUDED.is_active,
			is_enabled_for_new_payments = EXCLUDED.is_enabled_for_new_payments,
			sort_order = EXCLUDED.sort_order`,
		p.Slug, p.Name, p.IsActive, p.IsEnabledForNewPayments, p.SortOrder)
	if err != nil {
		return fmt.Errorf("upsert payment provider %q: %w", p.Slug, err)
	}
	return nil
}
