package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/paykit/pkg/config"
	"github.com/dmitrymomot/paykit/pkg/logger"
	"github.com/dmitrymomot/paykit/pkg/subscription"
)

// buildProviders creates the adapters whose *_ENABLED flag is set.
func buildProviders() ([]subscription.Provider, error) {
	var providers []subscription.Provider

	var stripeCfg subscription.StripeConfig
	if err := config.Load(&stripeCfg); err != nil {
		return nil, fmt.Errorf("stripe config: %w", err)
	}
	if stripeCfg.Enabled {
		p, err := subscription.NewStripeProvider(stripeCfg)
		if err != nil {
			return nil, fmt.Errorf("stripe: %w", err)
		}
		providers = append(providers, p)
	}

	var paddleCfg subscription.PaddleConfig
	if err := config.Load(&paddleCfg); err != nil {
		return nil, fmt.Errorf("paddle config: %w", err)
	}
	if paddleCfg.Enabled {
		p, err := subscription.NewPaddleProvider(paddleCfg)
		if err != nil {
			return nil, fmt.Errorf("paddle: %w", err)
		}
		providers = append(providers, p)
	}

	var lsCfg subscription.LemonSqueezyConfig
	if err := config.Load(&lsCfg); err != nil {
		return nil, fmt.Errorf("lemon squeezy config: %w", err)
	}
	if lsCfg.Enabled {
		p, err := subscription.NewLemonSqueezyProvider(lsCfg)
		if err != nil {
			return nil, fmt.Errorf("lemon squeezy: %w", err)
		}
		providers = append(providers, p)
	}

	if len(providers) == 0 {
		return nil, subscription.ErrNoProviderAvailable
	}
	return providers, nil
}

type providerRows interface {
	ListProviders(ctx context.Context) ([]subscription.PaymentProvider, error)
	UpsertProvider(ctx context.Context, p subscription.PaymentProvider) error
}

// ensureProviderRows inserts a default configuration row for every adapter
// that has none. Existing rows are left untouched, so an operator's
// deactivation survives restarts.
func ensureProviderRows(ctx context.Context, store providerRows, providers []subscription.Provider, log *slog.Logger) error {
	rows, err := store.ListProviders(ctx)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(rows))
	for _, r := range rows {
		known[r.Slug] = true
	}

	for i, p := range providers {
		if known[p.Slug()] {
			continue
		}
		row := subscription.PaymentProvider{
			Slug:                    p.Slug(),
			Name:                    p.Name(),
			IsActive:                true,
			IsEnabledForNewPayments: true,
			SortOrder:               (i + 1) * 10,
		}
		if err := store.UpsertProvider(ctx, row); err != nil {
			return fmt.Errorf("provider %s: %w", p.Slug(), err)
		}
		log.InfoContext(ctx, "registered payment provider", logger.Provider(p.Slug()))
	}
	return nil
}
