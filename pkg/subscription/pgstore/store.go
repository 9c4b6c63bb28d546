package pgstore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/paykit/pkg/pg"
	"github.com/dmitrymomot/paykit/pkg/subscription"
)

// Migrations holds the billing schema, applied with pg.Migrate.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations.
const MigrationsDir = "migrations"

// DB is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists subscriptions, provider rows and discounts in Postgres.
type Store struct {
	db DB
}

var (
	_ subscription.SubscriptionStore = (*Store)(nil)
	_ subscription.ProviderStore     = (*Store)(nil)
	_ subscription.DiscountStore     = (*Store)(nil)
)

// New creates a Store on top of db.
func New(db DB) *Store {
	return &Store{db: db}
}

const subscriptionColumns = `id, user_id, tenant_id, plan_slug, product_slug, status,
	provider_slug, provider_subscription_id, provider_customer_id, quantity,
	trial_ends_at, current_period_end, cancelled_at, ended_at,
	cancellation_reason, cancellation_details,
	discount_code, discount_applied_at, discount_expires_at,
	version, created_at, updated_at`

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*subscription.Subscription, error) {
	row := s.db.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id)
	return scanOne(row)
}

func (s *Store) GetByProviderSubscriptionID(ctx context.Context, providerSlug, providerSubscriptionID string) (*subscription.Subscription, error) {
	if providerSubscriptionID == "" {
		return nil, subscription.ErrSubscriptionNotFound
	}
	row := s.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE provider_slug = $1 AND provider_subscription_id = $2`,
		providerSlug, providerSubscriptionID)
	return scanOne(row)
}

func (s *Store) Create(ctx context.Context, sub *subscription.Subscription) error {
	code, appliedAt, expiresAt := discountColumns(sub.Discount)
	_, err := s.db.Exec(ctx, `INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, 1, $20, $21)`,
		sub.ID, sub.UserID, sub.TenantID, sub.PlanSlug, sub.ProductSlug, string(sub.Status),
		sub.ProviderSlug, sub.ProviderSubscriptionID, sub.ProviderCustomerID, max(sub.Quantity, 1),
		sub.TrialEndsAt, sub.CurrentPeriodEnd, sub.CancelledAt, sub.EndedAt,
		sub.CancellationReason, sub.CancellationDetails,
		code, appliedAt, expiresAt,
		sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) && pg.ConstraintName(err) == "subscriptions_live_unique" {
			return errors.Join(subscription.ErrSubscriptionAlreadyExists, err)
		}
		return fmt.Errorf("insert subscription %s: %w", sub.ID, err)
	}
	sub.Version = 1
	return nil
}

func (s *Store) Update(ctx context.Context, sub *subscription.Subscription) error {
	code, appliedAt, expiresAt := discountColumns(sub.Discount)
	tag, err := s.db.Exec(ctx, `UPDATE subscriptions SET
			plan_slug = $3, status = $4, provider_subscription_id = $5, provider_customer_id = $6,
			quantity = $7, trial_ends_at = $8, current_period_end = $9, cancelled_at = $10, ended_at = $11,
			cancellation_reason = $12, cancellation_details = $13,
			discount_code = $14, discount_applied_at = $15, discount_expires_at = $16,
			updated_at = $17, product_slug = $18, version = version + 1
		WHERE id = $1 AND version = $2`,
		sub.ID, sub.Version,
		sub.PlanSlug, string(sub.Status), sub.ProviderSubscriptionID, sub.ProviderCustomerID,
		max(sub.Quantity, 1), sub.TrialEndsAt, sub.CurrentPeriodEnd, sub.CancelledAt, sub.EndedAt,
		sub.CancellationReason, sub.CancellationDetails,
		code, appliedAt, expiresAt,
		sub.UpdatedAt, sub.ProductSlug,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) && pg.ConstraintName(err) == "subscriptions_live_unique" {
			return errors.Join(subscription.ErrSubscriptionAlreadyExists, err)
		}
		return fmt.Errorf("update subscription %s: %w", sub.ID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM subscriptions WHERE id = $1)`, sub.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check subscription %s: %w", sub.ID, err)
		}
		if !exists {
			return subscription.ErrSubscriptionNotFound
		}
		return errors.Join(subscription.ErrConcurrentUpdate, fmt.Errorf("subscription %s: version %d is stale", sub.ID, sub.Version))
	}
	sub.Version++
	return nil
}

func (s *Store) FindLive(ctx context.Context, tenantID uuid.UUID, productSlug string) ([]*subscription.Subscription, error) {
	return s.query(ctx, `WHERE tenant_id = $1 AND product_slug = $2 AND status <> $3`,
		tenantID, productSlug, string(subscription.StatusEnded))
}

func (s *Store) FindExpired(ctx context.Context, now time.Time, statuses ...subscription.Status) ([]*subscription.Subscription, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	return s.query(ctx, `WHERE status = ANY($1) AND current_period_end IS NOT NULL AND current_period_end < $2`, names, now)
}

func (s *Store) FindByUserAndStatus(ctx context.Context, userID uuid.UUID, status subscription.Status) ([]*subscription.Subscription, error) {
	return s.query(ctx, `WHERE user_id = $1 AND status = $2`, userID, string(status))
}

func (s *Store) FindByStatus(ctx context.Context, status subscription.Status) ([]*subscription.Subscription, error) {
	return s.query(ctx, `WHERE status = $1`, string(status))
}

func (s *Store) query(ctx context.Context, where string, args ...any) ([]*subscription.Subscription, error) {
	rows, err := s.db.Query(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions `+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	subs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*subscription.Subscription, error) {
		return scanSubscription(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan subscriptions: %w", err)
	}
	return subs, nil
}

func scanOne(row pgx.Row) (*subscription.Subscription, error) {
	sub, err := scanSubscription(row)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, subscription.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("scan subscription: %w", err)
	}
	return sub, nil
}

func scanSubscription(row pgx.Row) (*subscription.Subscription, error) {
	var (
		sub       subscription.Subscription
		status    string
		code      *string
		appliedAt *time.Time
		expiresAt *time.Time
	)
	err := row.Scan(
		&sub.ID, &sub.UserID, &sub.TenantID, &sub.PlanSlug, &sub.ProductSlug, &status,
		&sub.ProviderSlug, &sub.ProviderSubscriptionID, &sub.ProviderCustomerID, &sub.Quantity,
		&sub.TrialEndsAt, &sub.CurrentPeriodEnd, &sub.CancelledAt, &sub.EndedAt,
		&sub.CancellationReason, &sub.CancellationDetails,
		&code, &appliedAt, &expiresAt,
		&sub.Version, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.Status = subscription.Status(status)
	if code != nil {
		sub.Discount = &subscription.AppliedDiscount{Code: *code, ExpiresAt: expiresAt}
		if appliedAt != nil {
			sub.Discount.AppliedAt = *appliedAt
		}
	}
	return &sub, nil
}

func discountColumns(d *subscription.AppliedDiscount) (code *string, appliedAt, expiresAt *time.Time) {
	if d == nil {
		return nil, nil, nil
	}
	return &d.Code, &d.AppliedAt, d.ExpiresAt
}
