package subscription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// PlansListSource defines how plans are loaded into the billing services.
type PlansListSource interface {
	Load(ctx context.Context) (map[string]Plan, error)
}

type inMemSource struct {
	mu    sync.RWMutex
	plans map[string]Plan
}

// NewInMemSource returns an in-memory source with a deep copy of the given plans.
// Panics if no plans are provided.
func NewInMemSource(plans ...Plan) PlansListSource {
	if len(plans) < 1 {
		panic("subscription: at least one plan is required")
	}
	plansCopy := make(map[string]Plan, len(plans))
	for _, plan := range plans {
		plansCopy[plan.Slug] = clonePlan(plan)
	}
	return &inMemSource{plans: plansCopy}
}

// Load returns a copy of all available plans.
func (s *inMemSource) Load(context.Context) (map[string]Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plansCopy := make(map[string]Plan, len(s.plans))
	for slug, plan := range s.plans {
		plansCopy[slug] = clonePlan(plan)
	}
	return plansCopy, nil
}

func clonePlan(p Plan) Plan {
	p.Prices = slices.Clone(p.Prices)
	p.ProviderPriceIDs = maps.Clone(p.ProviderPriceIDs)
	return p
}

type yamlCatalog struct {
	Plans []Plan `yaml:"plans"`
}

type yamlSource struct {
	path string
}

// NewYAMLSource returns a source that reads the plan catalog from a YAML file
// on every Load:
//
//	plans:
//	  - slug: pro-monthly
//	    product: pro
//	    type: seat_based
//	    interval: month
//	    prices: [{currency: USD, amount: 1900}]
//	    provider_prices: {stripe: price_123, paddle: pri_456}
func NewYAMLSource(path string) PlansListSource {
	return &yamlSource{path: path}
}

func (s *yamlSource) Load(context.Context) (map[string]Plan, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	defer func() { _ = f.Close() }()

	return DecodePlans(f)
}

// DecodePlans parses a YAML plan catalog.
func DecodePlans(r io.Reader) (map[string]Plan, error) {
	var catalog yamlCatalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&catalog); err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	if len(catalog.Plans) == 0 {
		return nil, errors.Join(ErrFailedToLoadPlans, errors.New("catalog has no plans"))
	}

	plans := make(map[string]Plan, len(catalog.Plans))
	for _, p := range catalog.Plans {
		if _, dup := plans[p.Slug]; dup {
			return nil, errors.Join(ErrInvalidPlanConfiguration, fmt.Errorf("duplicate plan slug %q", p.Slug))
		}
		plans[p.Slug] = p
	}
	return plans, nil
}

// loadPlans loads and validates plans from src.
func loadPlans(ctx context.Context, src PlansListSource) (planIndex, error) {
	plans, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	list := make([]Plan, 0, len(plans))
	for slug, p := range plans {
		if slug != p.Slug {
			return nil, errors.Join(ErrInvalidPlanConfiguration, fmt.Errorf("plan key %q does not match slug %q", slug, p.Slug))
		}
		list = append(list, p)
	}
	return newPlanIndex(list)
}
