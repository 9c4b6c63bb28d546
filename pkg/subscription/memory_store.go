package subscription

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory implementation of SubscriptionStore,
// ProviderStore and DiscountStore. Suitable for tests and single-process
// development setups.
type MemoryStore struct {
	mu            sync.RWMutex
	subscriptions map[uuid.UUID]*Subscription
	providers     []PaymentProvider
	discounts     map[string]*Discount
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subscriptions: make(map[uuid.UUID]*Subscription),
		discounts:     make(map[string]*Discount),
	}
}

func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sub, ok := m.subscriptions[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return sub.Clone(), nil
}

func (m *MemoryStore) GetByProviderSubscriptionID(_ context.Context, providerSlug, providerSubscriptionID string) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sub := range m.subscriptions {
		if sub.ProviderSlug == providerSlug && sub.ProviderSubscriptionID == providerSubscriptionID && providerSubscriptionID != "" {
			return sub.Clone(), nil
		}
	}
	return nil, ErrSubscriptionNotFound
}

func (m *MemoryStore) Create(_ context.Context, sub *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.subscriptions[sub.ID]; exists {
		return fmt.Errorf("subscription %s already stored", sub.ID)
	}
	sub.Version = 1
	m.subscriptions[sub.ID] = sub.Clone()
	return nil
}

func (m *MemoryStore) Update(_ context.Context, sub *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.subscriptions[sub.ID]
	if !ok {
		return ErrSubscriptionNotFound
	}
	if stored.Version != sub.Version {
		return errors.Join(ErrConcurrentUpdate, fmt.Errorf("subscription %s: stored version %d, got %d", sub.ID, stored.Version, sub.Version))
	}
	sub.Version++
	m.subscriptions[sub.ID] = sub.Clone()
	return nil
}

func (m *MemoryStore) FindLive(_ context.Context, tenantID uuid.UUID, productSlug string) ([]*Subscription, error) {
	return m.filter(func(s *Subscription) bool {
		return s.TenantID == tenantID && s.ProductSlug == productSlug && s.Status.IsLive()
	}), nil
}

func (m *MemoryStore) FindExpired(_ context.Context, now time.Time, statuses ...Status) ([]*Subscription, error) {
	return m.filter(func(s *Subscription) bool {
		return slices.Contains(statuses, s.Status) && s.CurrentPeriodEnd != nil && s.CurrentPeriodEnd.Before(now)
	}), nil
}

func (m *MemoryStore) FindByUserAndStatus(_ context.Context, userID uuid.UUID, status Status) ([]*Subscription, error) {
	return m.filter(func(s *Subscription) bool {
		return s.UserID == userID && s.Status == status
	}), nil
}

func (m *MemoryStore) FindByStatus(_ context.Context, status Status) ([]*Subscription, error) {
	return m.filter(func(s *Subscription) bool {
		return s.Status == status
	}), nil
}

func (m *MemoryStore) filter(match func(*Subscription) bool) []*Subscription {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Subscription
	for _, sub := range m.subscriptions {
		if match(sub) {
			out = append(out, sub.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *Subscription) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return out
}

// SetProviders replaces the provider configuration rows.
func (m *MemoryStore) SetProviders(rows ...PaymentProvider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers = slices.Clone(rows)
}

func (m *MemoryStore) ListProviders(context.Context) ([]PaymentProvider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.providers), nil
}

// PutDiscount stores or replaces a discount.
func (m *MemoryStore) PutDiscount(d Discount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.Code = NormalizeDiscountCode(d.Code)
	m.discounts[d.Code] = &d
}

func (m *MemoryStore) GetDiscount(_ context.Context, code string) (*Discount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.discounts[NormalizeDiscountCode(code)]
	if !ok {
		return nil, ErrInvalidDiscountCode
	}
	c := *d
	return &c, nil
}

func (m *MemoryStore) ReserveRedemption(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.discounts[NormalizeDiscountCode(code)]
	if !ok {
		return ErrInvalidDiscountCode
	}
	if d.MaxRedemptions > 0 && d.Redemptions >= d.MaxRedemptions {
		return errors.Join(ErrInvalidDiscountCode, fmt.Errorf("discount %q fully redeemed", d.Code))
	}
	d.Redemptions++
	return nil
}

func (m *MemoryStore) ReleaseRedemption(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.discounts[NormalizeDiscountCode(code)]
	if !ok {
		return ErrInvalidDiscountCode
	}
	if d.Redemptions > 0 {
		d.Redemptions--
	}
	return nil
}
