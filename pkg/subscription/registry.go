package subscription

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
)

// PaymentService is the registry of provider adapters. Adapters are fixed at
// construction; which of them are usable is decided by the persisted
// PaymentProvider rows.
type PaymentService struct {
	store     ProviderStore
	providers map[string]Provider
	order     []string
}

// NewPaymentService registers the given adapters.
// Panics on a nil store, a nil adapter or a duplicate slug.
func NewPaymentService(store ProviderStore, providers ...Provider) *PaymentService {
	if store == nil {
		panic("subscription: ProviderStore is required")
	}

	s := &PaymentService{
		store:     store,
		providers: make(map[string]Provider, len(providers)),
		order:     make([]string, 0, len(providers)),
	}
	for _, p := range providers {
		if p == nil {
			panic("subscription: nil payment provider")
		}
		if _, dup := s.providers[p.Slug()]; dup {
			panic("subscription: payment provider " + p.Slug() + " registered twice")
		}
		s.providers[p.Slug()] = p
		s.order = append(s.order, p.Slug())
	}
	return s
}

// ProviderBySlug returns the adapter registered under slug, regardless of
// whether the provider is currently active. Existing subscriptions keep
// being managed through deactivated providers.
func (s *PaymentService) ProviderBySlug(slug string) (Provider, error) {
	p, ok := s.providers[slug]
	if !ok {
		return nil, errors.Join(ErrProviderNotFound, fmt.Errorf("provider %q", slug))
	}
	return p, nil
}

// Slugs returns the registered adapter slugs in registration order.
func (s *PaymentService) Slugs() []string {
	return slices.Clone(s.order)
}

// ActiveProviders returns adapters whose row is active, ordered by the row's
// SortOrder and then by slug.
func (s *PaymentService) ActiveProviders(ctx context.Context) ([]Provider, error) {
	return s.activeWhere(ctx, func(row PaymentProvider) bool { return row.IsActive })
}

// ActiveProvidersForNewPayments additionally requires the row to accept new payments.
func (s *PaymentService) ActiveProvidersForNewPayments(ctx context.Context) ([]Provider, error) {
	return s.activeWhere(ctx, func(row PaymentProvider) bool {
		return row.IsActive && row.IsEnabledForNewPayments
	})
}

// ActiveProvidersForPlan returns active providers able to bill plan.
// When shouldSupportSkippingTrial is set and the plan has a trial, only
// providers that can start a subscription without the trial qualify.
// An empty result means there is no way to pay for the plan; it is not an error.
func (s *PaymentService) ActiveProvidersForPlan(ctx context.Context, plan Plan, shouldSupportSkippingTrial bool) ([]Provider, error) {
	active, err := s.ActiveProviders(ctx)
	if err != nil {
		return nil, err
	}
	return filterForPlan(active, plan, shouldSupportSkippingTrial), nil
}

func filterForPlan(providers []Provider, plan Plan, skipTrial bool) []Provider {
	out := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if !SupportsPlanType(p, plan.Type) {
			continue
		}
		if plan.HasTrial() && skipTrial && !p.SupportsSkippingTrial() {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (s *PaymentService) activeWhere(ctx context.Context, keep func(PaymentProvider) bool) ([]Provider, error) {
	rows, err := s.store.ListProviders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment providers: %w", err)
	}

	rows = slices.DeleteFunc(rows, func(row PaymentProvider) bool {
		_, registered := s.providers[row.Slug]
		return !registered || !keep(row)
	})
	slices.SortStableFunc(rows, func(a, b PaymentProvider) int {
		return cmp.Or(cmp.Compare(a.SortOrder, b.SortOrder), cmp.Compare(a.Slug, b.Slug))
	})

	out := make([]Provider, 0, len(rows))
	for _, row := range rows {
		out = append(out, s.providers[row.Slug])
	}
	return out, nil
}
