package subscription

import "slices"

// PlanType describes how a plan is billed. The set is closed.
type PlanType string

const (
	PlanTypeFlatRate   PlanType = "flat_rate"
	PlanTypeSeatBased  PlanType = "seat_based"
	PlanTypeUsageBased PlanType = "usage_based"
)

// Valid reports whether t is one of the known plan types.
func (t PlanType) Valid() bool {
	switch t {
	case PlanTypeFlatRate, PlanTypeSeatBased, PlanTypeUsageBased:
		return true
	}
	return false
}

// Status represents the local lifecycle state of a subscription.
type Status string

const (
	StatusPending                 Status = "pending" // checkout started, awaiting provider confirmation
	StatusPendingUserVerification Status = "pending_user_verification"
	StatusActive                  Status = "active"
	StatusPastDue                 Status = "past_due"
	StatusPendingCancellation     Status = "pending_cancellation"
	StatusEnded                   Status = "ended"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusPending,
	StatusPendingUserVerification,
	StatusActive,
	StatusPastDue,
	StatusPendingCancellation,
	StatusEnded,
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return slices.Contains(AllStatuses, s)
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusEnded
}

// IsLive reports whether the subscription still occupies its (tenant, product) slot.
func (s Status) IsLive() bool {
	return s != StatusEnded
}

// BillingInterval represents the billing frequency unit of a plan.
type BillingInterval string

const (
	IntervalDay   BillingInterval = "day"
	IntervalWeek  BillingInterval = "week"
	IntervalMonth BillingInterval = "month"
	IntervalYear  BillingInterval = "year"
)

func (i BillingInterval) Valid() bool {
	switch i {
	case IntervalDay, IntervalWeek, IntervalMonth, IntervalYear:
		return true
	}
	return false
}
