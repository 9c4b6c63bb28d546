package subscription

import (
	"context"
	"time"

	"github.com/dmitrymomot/paykit/pkg/statemachine"
)

// LifecycleEvent triggers a subscription status transition.
type LifecycleEvent string

const (
	OnCancel              LifecycleEvent = "cancel"
	OnDiscardCancellation LifecycleEvent = "discard_cancellation"
	OnChangePlan          LifecycleEvent = "change_plan"
	OnApplyDiscount       LifecycleEvent = "apply_discount"
	OnEndNow              LifecycleEvent = "end_now"
	OnExpire              LifecycleEvent = "expire"
	OnVerify              LifecycleEvent = "verify"
	OnActivate            LifecycleEvent = "activate"
	OnPaymentFailed       LifecycleEvent = "payment_failed"
	OnUpdateQuantity      LifecycleEvent = "update_quantity"
)

// transition is the data a lifecycle transition is evaluated against.
// Guards only read it; the effect performs the provider call.
type transition struct {
	sub      *Subscription
	plan     Plan
	target   Plan
	provider Provider
	discount *Discount
	quantity int
	now      time.Time

	effect      func(ctx context.Context) error
	commit      func(sub *Subscription)
	providerErr error
}

type lifecycleTable = statemachine.Table[Status, LifecycleEvent, *transition]

func periodNotElapsed(_ context.Context, _ Status, _ LifecycleEvent, in *transition) bool {
	return !in.sub.PeriodElapsed(in.now)
}

func periodElapsed(_ context.Context, _ Status, _ LifecycleEvent, in *transition) bool {
	return in.sub.PeriodElapsed(in.now)
}

func planChangeAllowed(_ context.Context, _ Status, _ LifecycleEvent, in *transition) bool {
	return planChangeRejection(in) == ""
}

// planChangeRejection explains why a plan change is not allowed, or returns "".
func planChangeRejection(in *transition) string {
	switch {
	case in.target.Slug == "":
		return "target plan is unknown"
	case !in.plan.SupportsPlanChange():
		return "current plan is usage-based"
	case !in.target.SupportsPlanChange():
		return "target plan is usage-based"
	case in.target.Slug == in.plan.Slug:
		return "target plan equals current plan"
	case in.target.ProductSlug != in.plan.ProductSlug:
		// One live subscription per tenant and product.
		return "target plan belongs to another product"
	case in.provider == nil || !SupportsPlanType(in.provider, in.target.Type):
		return "provider does not support target plan type"
	}
	return ""
}

func noActiveDiscount(_ context.Context, _ Status, _ LifecycleEvent, in *transition) bool {
	return !in.sub.HasActiveDiscount(in.now)
}

func seatBased(_ context.Context, _ Status, _ LifecycleEvent, in *transition) bool {
	return in.plan.Type == PlanTypeSeatBased && in.quantity > 0
}

// runEffect performs the provider call of a transition. Its error aborts the
// transition, so local state only changes after the provider agreed.
func runEffect(ctx context.Context, _, _ Status, _ LifecycleEvent, in *transition) error {
	if in.effect == nil {
		return nil
	}
	if err := in.effect(ctx); err != nil {
		in.providerErr = err
		return err
	}
	return nil
}

func newLifecycleTable() *lifecycleTable {
	with := func(guards ...statemachine.Guard[Status, LifecycleEvent, *transition]) statemachine.TransitionOption[Status, LifecycleEvent, *transition] {
		return statemachine.WithGuard(guards...)
	}
	effect := statemachine.WithAction[Status, LifecycleEvent, *transition](runEffect)
	on := statemachine.WithTransition[Status, LifecycleEvent, *transition]

	return statemachine.MustNewTable(
		on([]Status{StatusActive}, OnCancel, StatusPendingCancellation, effect),
		on([]Status{StatusPendingCancellation}, OnDiscardCancellation, StatusActive,
			with(periodNotElapsed), effect),
		on([]Status{StatusActive}, OnChangePlan, StatusActive,
			with(planChangeAllowed), effect),
		on([]Status{StatusActive}, OnApplyDiscount, StatusActive,
			with(noActiveDiscount), effect),
		on(
			[]Status{StatusPending, StatusPendingUserVerification, StatusActive, StatusPastDue, StatusPendingCancellation},
			OnEndNow, StatusEnded, effect),
		on([]Status{StatusActive, StatusPastDue, StatusPendingCancellation}, OnExpire, StatusEnded,
			with(periodElapsed)),
		on([]Status{StatusPendingUserVerification}, OnVerify, StatusActive),
		on([]Status{StatusPending, StatusPastDue}, OnActivate, StatusActive),
		on([]Status{StatusActive}, OnPaymentFailed, StatusPastDue),
		on([]Status{StatusActive}, OnUpdateQuantity, StatusActive,
			with(seatBased), effect),
		statemachine.WithTerminal[Status, LifecycleEvent, *transition](StatusEnded),
	)
}
