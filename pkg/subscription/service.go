package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrymomot/paykit/pkg/logger"
)

// SubscriptionService orchestrates user-initiated subscription lifecycle operations.
//
// Every mutating operation locks the subscription, re-reads it, evaluates the
// transition guards without I/O, calls the provider bound to the subscription
// and persists the new state only after the provider succeeded.
type SubscriptionService interface {
	Get(ctx context.Context, id uuid.UUID) (*Subscription, error)
	StartCheckout(ctx context.Context, params CheckoutParams) (*CheckoutResult, error)

	Cancel(ctx context.Context, id uuid.UUID, reason, details string) (*Subscription, error)
	DiscardCancellation(ctx context.Context, id uuid.UUID) (*Subscription, error)
	ChangePlan(ctx context.Context, id uuid.UUID, newPlanSlug string, isProrated bool) (*Subscription, *ChangePlanResult, error)
	ApplyDiscount(ctx context.Context, id uuid.UUID, code string) (*Subscription, error)
	EndNow(ctx context.Context, id uuid.UUID) (*Subscription, error)

	// Guard predicates. They never perform I/O and are safe for rendering decisions.
	CanCancel(ctx context.Context, sub *Subscription) bool
	CanDiscardCancellation(ctx context.Context, sub *Subscription) bool
	CanChangePlan(ctx context.Context, sub *Subscription, newPlanSlug string) bool
	CanApplyDiscount(ctx context.Context, sub *Subscription) bool
	CanEnd(ctx context.Context, sub *Subscription) bool
}

// CheckoutParams describes a new subscription purchase.
type CheckoutParams struct {
	UserID       uuid.UUID
	TenantID     uuid.UUID
	PlanSlug     string
	ProviderSlug string // optional, the first eligible provider is used when empty
	Quantity     int
	Email        string
	SkipTrial    bool
	// RequireUserVerification holds the subscription in pending_user_verification
	// until ActivateSubscriptionsPendingUserVerification runs for the user.
	RequireUserVerification bool
	SuccessURL              string
	CancelURL               string
}

// CheckoutResult is the pending subscription and its provider checkout.
type CheckoutResult struct {
	Subscription *Subscription
	Link         *CheckoutLink
	ProviderSlug string
	Redirect     bool
	Overlay      bool
}

type subscriptionService struct {
	*core
	discounts DiscountStore
}

// NewSubscriptionService creates the lifecycle orchestration service.
// Panics if a required dependency is nil; returns an error if plans fail to load.
func NewSubscriptionService(ctx context.Context, src PlansListSource, registry *PaymentService, store SubscriptionStore, discounts DiscountStore, opts ...Option) (SubscriptionService, error) {
	if discounts == nil {
		panic("subscription: DiscountStore is required")
	}
	c, err := newCore(ctx, src, registry, store, opts)
	if err != nil {
		return nil, err
	}
	return &subscriptionService{core: c, discounts: discounts}, nil
}

func (s *subscriptionService) Get(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	return s.store.Get(ctx, id)
}

// StartCheckout creates a pending subscription and the provider checkout for it.
// A tenant can hold only one live subscription per product.
func (s *subscriptionService) StartCheckout(ctx context.Context, params CheckoutParams) (*CheckoutResult, error) {
	plan, err := s.plans.get(params.PlanSlug)
	if err != nil {
		return nil, err
	}

	release, err := s.opts.locker.Lock(ctx, "checkout:"+params.TenantID.String()+":"+plan.ProductSlug)
	if err != nil {
		return nil, errors.Join(ErrLockNotAcquired, err)
	}
	defer release()

	live, err := s.store.FindLive(ctx, params.TenantID, plan.ProductSlug)
	if err != nil {
		return nil, fmt.Errorf("failed to look up live subscriptions: %w", err)
	}
	if len(live) > 0 {
		return nil, errors.Join(ErrSubscriptionAlreadyExists, fmt.Errorf("tenant %s product %q", params.TenantID, plan.ProductSlug))
	}

	provider, err := s.pickProvider(ctx, plan, params)
	if err != nil {
		return nil, err
	}
	priceID, ok := plan.ProviderPriceID(provider.Slug())
	if !ok {
		return nil, errors.Join(ErrMissingPriceID, fmt.Errorf("plan %q provider %q", plan.Slug, provider.Slug()))
	}

	now := s.opts.now()
	sub := &Subscription{
		ID:           uuid.New(),
		UserID:       params.UserID,
		TenantID:     params.TenantID,
		PlanSlug:     plan.Slug,
		ProductSlug:  plan.ProductSlug,
		Status:       StatusPending,
		ProviderSlug: provider.Slug(),
		Quantity:     max(params.Quantity, 1),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if params.RequireUserVerification {
		sub.Status = StatusPendingUserVerification
	}
	if plan.HasTrial() && !params.SkipTrial {
		sub.TrialEndsAt = timePtr(plan.TrialEndsAt(now))
	}

	link, err := provider.CreateCheckout(ctx, CheckoutRequest{
		Subscription: sub,
		Plan:         plan,
		PriceID:      priceID,
		Quantity:     sub.Quantity,
		Email:        params.Email,
		SkipTrial:    params.SkipTrial,
		SuccessURL:   params.SuccessURL,
		CancelURL:    params.CancelURL,
	})
	if err != nil {
		s.opts.logger.ErrorContext(ctx, "failed to create checkout",
			logger.TenantID(params.TenantID),
			logger.Provider(provider.Slug()),
			logger.Plan(plan.Slug),
			logger.Error(err),
		)
		return nil, errors.Join(ErrProviderError, err)
	}

	if err := s.store.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to store pending subscription: %w", err)
	}

	return &CheckoutResult{
		Subscription: sub,
		Link:         link,
		ProviderSlug: provider.Slug(),
		Redirect:     provider.IsRedirectProvider(),
		Overlay:      provider.IsOverlayProvider(),
	}, nil
}

func (s *subscriptionService) pickProvider(ctx context.Context, plan Plan, params CheckoutParams) (Provider, error) {
	candidates, err := s.registry.ActiveProvidersForNewPayments(ctx)
	if err != nil {
		return nil, err
	}
	candidates = filterForPlan(candidates, plan, params.SkipTrial)

	for _, p := range candidates {
		if params.ProviderSlug == "" || p.Slug() == params.ProviderSlug {
			return p, nil
		}
	}
	return nil, errors.Join(ErrNoProviderAvailable, fmt.Errorf("plan %q provider %q", plan.Slug, params.ProviderSlug))
}

// Cancel schedules cancellation at the end of the current period.
func (s *subscriptionService) Cancel(ctx context.Context, id uuid.UUID, reason, details string) (*Subscription, error) {
	sub, err := s.apply(ctx, id, OnCancel, func(in *transition) error {
		in.effect = func(ctx context.Context) error {
			return in.provider.CancelSubscription(ctx, in.sub, reason, details)
		}
		in.commit = func(sub *Subscription) {
			sub.CancelledAt = timePtr(in.now)
			sub.CancellationReason = reason
			sub.CancellationDetails = details
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, NoticeCancelled, sub, map[string]any{"ends_at": sub.CurrentPeriodEnd})
	return sub, nil
}

// DiscardCancellation resumes a subscription whose cancellation is still pending.
func (s *subscriptionService) DiscardCancellation(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	sub, err := s.apply(ctx, id, OnDiscardCancellation, func(in *transition) error {
		if in.sub.Status == StatusPendingCancellation && in.sub.PeriodElapsed(in.now) {
			return ErrCancellationWindowElapsed
		}
		in.effect = func(ctx context.Context) error {
			return in.provider.DiscardSubscriptionCancellation(ctx, in.sub)
		}
		in.commit = func(sub *Subscription) {
			sub.CancelledAt = nil
			sub.CancellationReason = ""
			sub.CancellationDetails = ""
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, NoticeCancellationUndone, sub, nil)
	return sub, nil
}

// ChangePlan moves an active subscription to another plan of a supported type.
// The provider-reported proration amount is returned as-is.
func (s *subscriptionService) ChangePlan(ctx context.Context, id uuid.UUID, newPlanSlug string, isProrated bool) (*Subscription, *ChangePlanResult, error) {
	target, err := s.plans.get(newPlanSlug)
	if err != nil {
		return nil, nil, err
	}

	var result *ChangePlanResult
	sub, err := s.apply(ctx, id, OnChangePlan, func(in *transition) error {
		in.target = target
		if in.sub.Status == StatusActive {
			if reason := planChangeRejection(in); reason != "" {
				return errors.Join(ErrPlanChangeNotAllowed, errors.New(reason))
			}
		}
		in.effect = func(ctx context.Context) error {
			res, err := in.provider.ChangePlan(ctx, in.sub, target, isProrated)
			if err != nil {
				return err
			}
			result = res
			return nil
		}
		in.commit = func(sub *Subscription) {
			sub.PlanSlug = target.Slug
			sub.ProductSlug = target.ProductSlug
			if result != nil && result.CurrentPeriodEnd != nil {
				sub.CurrentPeriodEnd = cloneTime(result.CurrentPeriodEnd)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	data := map[string]any{"plan": target.Name}
	if result != nil {
		data["amount"] = result.Amount.String()
		data["currency"] = result.Currency
		if price, ok := target.PriceFor(result.Currency); ok {
			data["price"] = price.Decimal().String()
		}
	}
	s.notify(ctx, NoticePlanChanged, sub, data)
	return sub, result, nil
}

// ApplyDiscount redeems code for an active subscription without an active discount.
func (s *subscriptionService) ApplyDiscount(ctx context.Context, id uuid.UUID, code string) (*Subscription, error) {
	code = NormalizeDiscountCode(code)
	if code == "" {
		return nil, ErrInvalidDiscountCode
	}

	var discount *Discount
	sub, err := s.apply(ctx, id, OnApplyDiscount, func(in *transition) error {
		if in.sub.Status != StatusActive {
			return nil // rejected by the transition table
		}
		if in.sub.HasActiveDiscount(in.now) {
			return ErrDiscountAlreadyApplied
		}

		d, err := s.discounts.GetDiscount(ctx, code)
		if err != nil {
			if errors.Is(err, ErrInvalidDiscountCode) {
				return err
			}
			return fmt.Errorf("failed to load discount: %w", err)
		}
		if err := d.Check(in.plan, in.sub.ProviderSlug, in.now); err != nil {
			return err
		}
		discount = d
		in.discount = d

		in.effect = func(ctx context.Context) error {
			if err := s.discounts.ReserveRedemption(ctx, d.Code); err != nil {
				return err
			}
			if err := in.provider.ApplyDiscount(ctx, in.sub, d); err != nil {
				if rerr := s.discounts.ReleaseRedemption(ctx, d.Code); rerr != nil {
					s.opts.logger.WarnContext(ctx, "failed to release discount redemption",
						logger.SubscriptionID(in.sub.ID),
						logger.Error(rerr),
					)
				}
				return err
			}
			return nil
		}
		in.commit = func(sub *Subscription) {
			sub.Discount = d.Apply(in.now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, NoticeDiscountApplied, sub, map[string]any{"code": discount.Code})
	return sub, nil
}

// EndNow terminates a subscription immediately, from any non-terminal status.
func (s *subscriptionService) EndNow(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	sub, err := s.apply(ctx, id, OnEndNow, func(in *transition) error {
		in.effect = func(ctx context.Context) error {
			if in.sub.ProviderSubscriptionID == "" {
				// Checkout never completed, nothing to end on the provider side.
				return nil
			}
			return in.provider.EndSubscriptionImmediately(ctx, in.sub)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, NoticeEnded, sub, nil)
	return sub, nil
}

func (s *subscriptionService) CanCancel(ctx context.Context, sub *Subscription) bool {
	return s.canFire(ctx, sub, OnCancel, nil)
}

func (s *subscriptionService) CanDiscardCancellation(ctx context.Context, sub *Subscription) bool {
	return s.canFire(ctx, sub, OnDiscardCancellation, nil)
}

func (s *subscriptionService) CanChangePlan(ctx context.Context, sub *Subscription, newPlanSlug string) bool {
	target, err := s.plans.get(newPlanSlug)
	if err != nil {
		return false
	}
	return s.canFire(ctx, sub, OnChangePlan, func(in *transition) { in.target = target })
}

func (s *subscriptionService) CanApplyDiscount(ctx context.Context, sub *Subscription) bool {
	return s.canFire(ctx, sub, OnApplyDiscount, nil)
}

func (s *subscriptionService) CanEnd(ctx context.Context, sub *Subscription) bool {
	return s.canFire(ctx, sub, OnEndNow, nil)
}
