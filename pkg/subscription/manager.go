package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/paykit/pkg/logger"
)

// ErrNoSeatCounter is returned by SyncSeatQuantities when no SeatCounter was configured.
var ErrNoSeatCounter = errors.New("subscription: seat counter is not configured")

// SubscriptionManager reconciles local subscription state without user input:
// it ends subscriptions whose period elapsed, releases verification holds and
// keeps seat quantities in line with tenant membership.
type SubscriptionManager struct {
	*core
}

// NewSubscriptionManager creates the reconciliation manager.
func NewSubscriptionManager(ctx context.Context, src PlansListSource, registry *PaymentService, store SubscriptionStore, opts ...Option) (*SubscriptionManager, error) {
	c, err := newCore(ctx, src, registry, store, opts)
	if err != nil {
		return nil, err
	}
	return &SubscriptionManager{core: c}, nil
}

// CleanupLocalSubscriptionStatuses ends subscriptions whose current period ended
// before now while they were still active, past due or pending cancellation.
// The provider is not called: this only corrects local drift.
// Returns the number of subscriptions ended. A failure on one subscription
// does not stop the sweep; failures are joined into the returned error.
func (m *SubscriptionManager) CleanupLocalSubscriptionStatuses(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-m.opts.expiryGrace)
	expired, err := m.store.FindExpired(ctx, cutoff, StatusActive, StatusPastDue, StatusPendingCancellation)
	if err != nil {
		return 0, fmt.Errorf("failed to find expired subscriptions: %w", err)
	}

	var (
		count int
		errs  []error
	)
	for _, candidate := range expired {
		if err := ctx.Err(); err != nil {
			return count, errors.Join(append(errs, err)...)
		}

		sub, err := m.apply(ctx, candidate.ID, OnExpire, func(in *transition) error {
			in.now = cutoff
			in.commit = func(sub *Subscription) {
				sub.EndedAt = cloneTime(sub.CurrentPeriodEnd)
				sub.UpdatedAt = now
			}
			return nil
		})
		if err != nil {
			if errors.Is(err, ErrTransitionNotAllowed) {
				// Changed since the query ran, e.g. renewed by a webhook.
				continue
			}
			m.opts.logger.ErrorContext(ctx, "failed to end expired subscription",
				logger.SubscriptionID(candidate.ID),
				logger.Error(err),
			)
			errs = append(errs, err)
			continue
		}
		count++
		m.notify(ctx, NoticeEnded, sub, nil)
	}

	if count > 0 {
		m.opts.logger.InfoContext(ctx, "ended expired subscriptions", "count", count)
	}
	return count, errors.Join(errs...)
}

// ActivateSubscriptionsPendingUserVerification activates every subscription
// of userID held in pending_user_verification. Returns the number activated.
func (m *SubscriptionManager) ActivateSubscriptionsPendingUserVerification(ctx context.Context, userID uuid.UUID) (int, error) {
	held, err := m.store.FindByUserAndStatus(ctx, userID, StatusPendingUserVerification)
	if err != nil {
		return 0, fmt.Errorf("failed to find subscriptions pending verification: %w", err)
	}

	var (
		count int
		errs  []error
	)
	for _, candidate := range held {
		sub, err := m.apply(ctx, candidate.ID, OnVerify, nil)
		if err != nil {
			if errors.Is(err, ErrTransitionNotAllowed) {
				continue
			}
			m.opts.logger.ErrorContext(ctx, "failed to activate verified subscription",
				logger.SubscriptionID(candidate.ID),
				logger.UserID(userID),
				logger.Error(err),
			)
			errs = append(errs, err)
			continue
		}
		count++
		m.notify(ctx, NoticeActivated, sub, nil)
	}
	return count, errors.Join(errs...)
}

// SyncSeatQuantities pushes the current seat count of each tenant to the
// provider for active seat-based subscriptions whose quantity drifted.
// Returns the number of subscriptions updated.
func (m *SubscriptionManager) SyncSeatQuantities(ctx context.Context) (int, error) {
	if m.opts.seatCounter == nil {
		return 0, ErrNoSeatCounter
	}

	active, err := m.store.FindByStatus(ctx, StatusActive)
	if err != nil {
		return 0, fmt.Errorf("failed to find active subscriptions: %w", err)
	}

	var (
		count int
		errs  []error
	)
	for _, candidate := range active {
		if err := ctx.Err(); err != nil {
			return count, errors.Join(append(errs, err)...)
		}

		plan, err := m.plans.get(candidate.PlanSlug)
		if err != nil || plan.Type != PlanTypeSeatBased {
			continue
		}

		seats, err := m.seatCount(ctx, candidate.TenantID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if seats == candidate.Quantity {
			continue
		}

		sub, err := m.apply(ctx, candidate.ID, OnUpdateQuantity, func(in *transition) error {
			if in.sub.Quantity == seats {
				in.quantity = 0 // already in sync after re-read
				return nil
			}
			in.quantity = seats
			in.effect = func(ctx context.Context) error {
				return in.provider.UpdateQuantity(ctx, in.sub, seats)
			}
			in.commit = func(sub *Subscription) {
				sub.Quantity = seats
			}
			return nil
		})
		if err != nil {
			if errors.Is(err, ErrTransitionNotAllowed) {
				continue
			}
			m.opts.logger.ErrorContext(ctx, "failed to sync seat quantity",
				logger.SubscriptionID(candidate.ID),
				logger.TenantID(candidate.TenantID),
				logger.Error(err),
			)
			errs = append(errs, err)
			continue
		}
		count++
		m.notify(ctx, NoticeSeatQuantityChanged, sub, map[string]any{
			"from": candidate.Quantity,
			"to":   seats,
		})
	}
	return count, errors.Join(errs...)
}

func (m *SubscriptionManager) seatCount(ctx context.Context, tenantID uuid.UUID) (int, error) {
	seats, err := m.opts.seatCounter(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to count seats for tenant %s: %w", tenantID, err)
	}
	return max(seats, 1), nil
}
