package subscription_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/paykit/pkg/subscription"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type mockProvider struct {
	mock.Mock
	slug      string
	types     []subscription.PlanType
	skipTrial bool
	overlay   bool
}

func newMockProvider(slug string, skipTrial bool, types ...subscription.PlanType) *mockProvider {
	return &mockProvider{slug: slug, types: types, skipTrial: skipTrial}
}

func (m *mockProvider) Slug() string                                { return m.slug }
func (m *mockProvider) Name() string                                { return m.slug }
func (m *mockProvider) SupportedPlanTypes() []subscription.PlanType { return m.types }
func (m *mockProvider) SupportsSkippingTrial() bool                 { return m.skipTrial }
func (m *mockProvider) IsRedirectProvider() bool                    { return !m.overlay }
func (m *mockProvider) IsOverlayProvider() bool                     { return m.overlay }

func (m *mockProvider) CreateCheckout(ctx context.Context, req subscription.CheckoutRequest) (*subscription.CheckoutLink, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.CheckoutLink), args.Error(1)
}

func (m *mockProvider) CancelSubscription(ctx context.Context, sub *subscription.Subscription, reason, details string) error {
	return m.Called(ctx, sub, reason, details).Error(0)
}

func (m *mockProvider) DiscardSubscriptionCancellation(ctx context.Context, sub *subscription.Subscription) error {
	return m.Called(ctx, sub).Error(0)
}

func (m *mockProvider) ChangePlan(ctx context.Context, sub *subscription.Subscription, newPlan subscription.Plan, isProrated bool) (*subscription.ChangePlanResult, error) {
	args := m.Called(ctx, sub, newPlan, isProrated)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.ChangePlanResult), args.Error(1)
}

func (m *mockProvider) ApplyDiscount(ctx context.Context, sub *subscription.Subscription, discount *subscription.Discount) error {
	return m.Called(ctx, sub, discount).Error(0)
}

func (m *mockProvider) EndSubscriptionImmediately(ctx context.Context, sub *subscription.Subscription) error {
	return m.Called(ctx, sub).Error(0)
}

func (m *mockProvider) UpdateQuantity(ctx context.Context, sub *subscription.Subscription, quantity int) error {
	return m.Called(ctx, sub, quantity).Error(0)
}

func (m *mockProvider) ParseWebhook(ctx context.Context, payload []byte, header http.Header) (*subscription.WebhookEvent, error) {
	args := m.Called(ctx, payload, header)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.WebhookEvent), args.Error(1)
}

func testPlans() []subscription.Plan {
	return []subscription.Plan{
		{
			Slug:        "basic-monthly",
			Name:        "Basic",
			ProductSlug: "app",
			Type:        subscription.PlanTypeFlatRate,
			Interval:    subscription.IntervalMonth,
			ProviderPriceIDs: map[string]string{
				"stripe": "price_basic",
				"paddle": "pri_basic",
			},
		},
		{
			Slug:        "pro-monthly",
			Name:        "Pro",
			ProductSlug: "app",
			Type:        subscription.PlanTypeFlatRate,
			Interval:    subscription.IntervalMonth,
			TrialDays:   14,
			Prices:      []subscription.Price{{Currency: "usd", Amount: 2900}},
			ProviderPriceIDs: map[string]string{
				"stripe": "price_pro",
				"paddle": "pri_pro",
			},
		},
		{
			Slug:        "pro-seat",
			Name:        "Pro Seats",
			ProductSlug: "app",
			Type:        subscription.PlanTypeSeatBased,
			Interval:    subscription.IntervalMonth,
			TrialDays:   7,
			ProviderPriceIDs: map[string]string{
				"stripe": "price_seat",
				"paddle": "pri_seat",
			},
		},
		{
			Slug:        "metered",
			Name:        "Metered",
			ProductSlug: "app",
			Type:        subscription.PlanTypeUsageBased,
			Interval:    subscription.IntervalMonth,
			ProviderPriceIDs: map[string]string{
				"stripe": "price_metered",
			},
		},
		{
			Slug:        "addon-basic",
			Name:        "Add-on",
			ProductSlug: "addon",
			Type:        subscription.PlanTypeFlatRate,
			Interval:    subscription.IntervalMonth,
			ProviderPriceIDs: map[string]string{
				"stripe": "price_addon",
				"paddle": "pri_addon",
			},
		},
	}
}

type testEnv struct {
	store    *subscription.MemoryStore
	registry *subscription.PaymentService
	stripe   *mockProvider
	paddle   *mockProvider
	notices  []subscription.Notice
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		store: subscription.NewMemoryStore(),
		stripe: newMockProvider("stripe", true,
			subscription.PlanTypeFlatRate, subscription.PlanTypeSeatBased, subscription.PlanTypeUsageBased),
		paddle: newMockProvider("paddle", false,
			subscription.PlanTypeFlatRate, subscription.PlanTypeSeatBased),
	}
	env.paddle.overlay = true
	env.store.SetProviders(
		subscription.PaymentProvider{Slug: "stripe", Name: "Stripe", IsActive: true, IsEnabledForNewPayments: true, SortOrder: 1},
		subscription.PaymentProvider{Slug: "paddle", Name: "Paddle", IsActive: true, IsEnabledForNewPayments: true, SortOrder: 2},
	)
	env.registry = subscription.NewPaymentService(env.store, env.stripe, env.paddle)
	return env
}

func (e *testEnv) options(extra ...subscription.Option) []subscription.Option {
	opts := []subscription.Option{
		subscription.WithClock(func() time.Time { return testNow }),
		subscription.WithNotifier(subscription.NotifierFunc(func(_ context.Context, n subscription.Notice) error {
			e.notices = append(e.notices, n)
			return nil
		})),
	}
	return append(opts, extra...)
}

func (e *testEnv) service(t *testing.T, extra ...subscription.Option) subscription.SubscriptionService {
	t.Helper()
	svc, err := subscription.NewSubscriptionService(context.Background(),
		subscription.NewInMemSource(testPlans()...), e.registry, e.store, e.store, e.options(extra...)...)
	require.NoError(t, err)
	return svc
}

func (e *testEnv) manager(t *testing.T, extra ...subscription.Option) *subscription.SubscriptionManager {
	t.Helper()
	m, err := subscription.NewSubscriptionManager(context.Background(),
		subscription.NewInMemSource(testPlans()...), e.registry, e.store, e.options(extra...)...)
	require.NoError(t, err)
	return m
}

func (e *testEnv) webhooks(t *testing.T, extra ...subscription.Option) *subscription.WebhookProcessor {
	t.Helper()
	w, err := subscription.NewWebhookProcessor(context.Background(),
		subscription.NewInMemSource(testPlans()...), e.registry, e.store, e.options(extra...)...)
	require.NoError(t, err)
	return w
}

// seed stores a subscription bound to providerSlug with a period ending in 20 days.
func (e *testEnv) seed(t *testing.T, providerSlug, planSlug string, status subscription.Status) *subscription.Subscription {
	t.Helper()
	periodEnd := testNow.AddDate(0, 0, 20)
	sub := &subscription.Subscription{
		ID:                     uuid.New(),
		UserID:                 uuid.New(),
		TenantID:               uuid.New(),
		PlanSlug:               planSlug,
		ProductSlug:            "app",
		Status:                 status,
		ProviderSlug:           providerSlug,
		ProviderSubscriptionID: "sub_" + uuid.NewString()[:8],
		Quantity:               1,
		CurrentPeriodEnd:       &periodEnd,
		CreatedAt:              testNow.Add(-time.Hour),
		UpdatedAt:              testNow.Add(-time.Hour),
	}
	require.NoError(t, e.store.Create(context.Background(), sub))
	return sub
}

func (e *testEnv) reload(t *testing.T, id uuid.UUID) *subscription.Subscription {
	t.Helper()
	sub, err := e.store.Get(context.Background(), id)
	require.NoError(t, err)
	return sub
}
