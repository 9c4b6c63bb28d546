package subscription

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Price is a plan price in one currency.
type Price struct {
	Currency string `yaml:"currency"`
	Amount   int64  `yaml:"amount"` // smallest currency unit
}

// Plan describes a sellable subscription plan and how each provider refers to it.
type Plan struct {
	Slug             string            `yaml:"slug"`
	Name             string            `yaml:"name"`
	ProductSlug      string            `yaml:"product"`
	Type             PlanType          `yaml:"type"`
	TrialDays        int               `yaml:"trial_days"`
	Interval         BillingInterval   `yaml:"interval"`
	IntervalCount    int               `yaml:"interval_count"`
	Prices           []Price           `yaml:"prices"`
	ProviderPriceIDs map[string]string `yaml:"provider_prices"` // provider slug -> provider price/variant id
}

// HasTrial reports whether new subscriptions start with a trial period.
func (p Plan) HasTrial() bool {
	return p.TrialDays > 0
}

// TrialEndsAt calculates when the trial period ends.
// Returns startedAt unchanged if no trial is available.
func (p Plan) TrialEndsAt(startedAt time.Time) time.Time {
	if p.TrialDays <= 0 {
		return startedAt
	}
	return startedAt.AddDate(0, 0, p.TrialDays).UTC()
}

// SupportsPlanChange reports whether subscriptions on this plan can switch plans.
// Usage-based billing cannot be reconciled mid-period.
func (p Plan) SupportsPlanChange() bool {
	return p.Type != PlanTypeUsageBased
}

// ProviderPriceID returns the provider-side identifier of this plan.
func (p Plan) ProviderPriceID(providerSlug string) (string, bool) {
	id, ok := p.ProviderPriceIDs[providerSlug]
	return id, ok && id != ""
}

// PriceFor returns the plan price in the given currency.
func (p Plan) PriceFor(currency string) (Money, bool) {
	for _, pr := range p.Prices {
		if strings.EqualFold(pr.Currency, currency) {
			return Money{Amount: pr.Amount, Currency: strings.ToUpper(pr.Currency)}, true
		}
	}
	return Money{}, false
}

// Validate checks plan consistency.
func (p Plan) Validate() error {
	var errs []error
	if p.Slug == "" {
		errs = append(errs, errors.New("slug is required"))
	}
	if p.ProductSlug == "" {
		errs = append(errs, errors.New("product is required"))
	}
	if !p.Type.Valid() {
		errs = append(errs, fmt.Errorf("unknown plan type %q", p.Type))
	}
	if p.Interval != "" && !p.Interval.Valid() {
		errs = append(errs, fmt.Errorf("unknown interval %q", p.Interval))
	}
	if p.TrialDays < 0 {
		errs = append(errs, errors.New("trial days cannot be negative"))
	}
	if p.IntervalCount < 0 {
		errs = append(errs, errors.New("interval count cannot be negative"))
	}
	if len(errs) > 0 {
		return errors.Join(ErrInvalidPlanConfiguration, fmt.Errorf("plan %q: %w", p.Slug, errors.Join(errs...)))
	}
	return nil
}

// planIndex maps plan slug to plan.
type planIndex map[string]Plan

func newPlanIndex(plans []Plan) (planIndex, error) {
	idx := make(planIndex, len(plans))
	for _, p := range plans {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := idx[p.Slug]; dup {
			return nil, errors.Join(ErrInvalidPlanConfiguration, fmt.Errorf("duplicate plan slug %q", p.Slug))
		}
		if p.IntervalCount == 0 {
			p.IntervalCount = 1
		}
		idx[p.Slug] = p
	}
	return idx, nil
}

func (idx planIndex) get(slug string) (Plan, error) {
	p, ok := idx[slug]
	if !ok {
		return Plan{}, errors.Join(ErrPlanNotFound, fmt.Errorf("plan %q", slug))
	}
	return p, nil
}

// byProviderPrice finds the plan a provider price id belongs to.
func (idx planIndex) byProviderPrice(providerSlug, priceID string) (Plan, bool) {
	if priceID == "" {
		return Plan{}, false
	}
	for _, p := range idx {
		if id, ok := p.ProviderPriceID(providerSlug); ok && id == priceID {
			return p, true
		}
	}
	return Plan{}, false
}
