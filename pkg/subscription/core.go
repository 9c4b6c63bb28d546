package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/paykit/pkg/logger"
	"github.com/dmitrymomot/paykit/pkg/statemachine"
)

// core holds what every orchestration component shares: the plan catalog,
// provider registry, store, lifecycle table and ambient options.
type core struct {
	opts     options
	plans    planIndex
	registry *PaymentService
	store    SubscriptionStore
	table    *lifecycleTable
}

func newCore(ctx context.Context, src PlansListSource, registry *PaymentService, store SubscriptionStore, opts []Option) (*core, error) {
	if src == nil {
		panic("subscription: PlansListSource is required")
	}
	if registry == nil {
		panic("subscription: PaymentService is required")
	}
	if store == nil {
		panic("subscription: SubscriptionStore is required")
	}

	plans, err := loadPlans(ctx, src)
	if err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &core{
		opts:     o,
		plans:    plans,
		registry: registry,
		store:    store,
		table:    newLifecycleTable(),
	}, nil
}

func (c *core) lock(ctx context.Context, id uuid.UUID) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, c.opts.lockTimeout)
	defer cancel()

	release, err := c.opts.locker.Lock(lockCtx, subscriptionLockKey(id.String()))
	if err != nil {
		return nil, errors.Join(ErrLockNotAcquired, fmt.Errorf("subscription %s: %w", id, err))
	}
	return release, nil
}

// newTransition prepares transition data for sub. Provider resolution errors
// are fatal configuration errors.
func (c *core) newTransition(sub *Subscription) (*transition, error) {
	plan, err := c.plans.get(sub.PlanSlug)
	if err != nil {
		return nil, err
	}
	in := &transition{sub: sub, plan: plan, now: c.opts.now()}
	if sub.ProviderSlug != "" {
		p, err := c.registry.ProviderBySlug(sub.ProviderSlug)
		if err != nil {
			return nil, err
		}
		in.provider = p
	}
	return in, nil
}

// apply runs one lifecycle operation: lock, re-read, guard, provider effect,
// persist, notify. Any failure before persisting leaves local state untouched.
func (c *core) apply(ctx context.Context, id uuid.UUID, event LifecycleEvent, prepare func(in *transition) error) (*Subscription, error) {
	release, err := c.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	sub, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	in, err := c.newTransition(sub)
	if err != nil {
		return nil, err
	}
	if prepare != nil {
		if err := prepare(in); err != nil {
			return nil, err
		}
	}
	if in.effect != nil && in.provider == nil {
		return nil, errors.Join(ErrProviderNotFound, fmt.Errorf("subscription %s has no provider", sub.ID))
	}

	return c.fire(ctx, sub, event, in)
}

// fire evaluates event for sub and persists the result. Callers must hold the lock.
func (c *core) fire(ctx context.Context, sub *Subscription, event LifecycleEvent, in *transition) (*Subscription, error) {
	log := c.opts.logger.With(
		logger.SubscriptionID(sub.ID),
		logger.Provider(sub.ProviderSlug),
		logger.Operation(string(event)),
	)

	next, err := c.table.Fire(ctx, sub.Status, event, in)
	if err != nil {
		return nil, c.classify(ctx, log, sub, event, in, err)
	}

	updated := sub.Clone()
	updated.Status = next
	if next == StatusEnded && updated.EndedAt == nil {
		updated.EndedAt = timePtr(in.now)
	}
	updated.UpdatedAt = in.now
	if in.commit != nil {
		in.commit(updated)
	}

	if err := c.store.Update(ctx, updated); err != nil {
		if in.effect != nil {
			// The provider already applied the change; webhooks or the sweep reconcile it.
			log.ErrorContext(ctx, "provider change applied but local update failed", logger.Error(err))
		}
		return nil, fmt.Errorf("failed to persist subscription %s: %w", sub.ID, err)
	}

	log.InfoContext(ctx, "subscription transitioned",
		slog.String("from", string(sub.Status)),
		slog.String("to", string(next)),
	)
	return updated, nil
}

func (c *core) classify(ctx context.Context, log *slog.Logger, sub *Subscription, event LifecycleEvent, in *transition, err error) error {
	if statemachine.IsNoTransitionAvailableError(err) || statemachine.IsTransitionRejectedError(err) {
		return errors.Join(ErrTransitionNotAllowed, fmt.Errorf("%s from %s: %w", event, sub.Status, err))
	}
	if in.providerErr != nil {
		if IsBusinessRejection(in.providerErr) {
			log.InfoContext(ctx, "provider rejected operation", logger.Error(in.providerErr))
			return in.providerErr
		}
		log.ErrorContext(ctx, "provider call failed", logger.Error(in.providerErr))
		return errors.Join(ErrProviderError, in.providerErr)
	}
	return err
}

func (c *core) notify(ctx context.Context, kind NoticeKind, sub *Subscription, data map[string]any) {
	n := Notice{
		Kind:           kind,
		UserID:         sub.UserID,
		TenantID:       sub.TenantID,
		SubscriptionID: sub.ID,
		PlanSlug:       sub.PlanSlug,
		Data:           data,
	}
	if err := c.opts.notifier.Notify(ctx, n); err != nil {
		c.opts.logger.WarnContext(ctx, "failed to deliver subscription notice",
			logger.SubscriptionID(sub.ID),
			slog.String("notice", string(kind)),
			logger.Error(err),
		)
	}
}

func (c *core) canFire(ctx context.Context, sub *Subscription, event LifecycleEvent, prepare func(in *transition)) bool {
	if sub == nil {
		return false
	}
	in, err := c.newTransition(sub)
	if err != nil {
		return false
	}
	if prepare != nil {
		prepare(in)
	}
	return c.table.CanFire(ctx, sub.Status, event, in)
}
