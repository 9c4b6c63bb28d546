package subscription_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/paykit/pkg/subscription"
)

func TestMemoryStore_OptimisticUpdate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := subscription.NewMemoryStore()

	sub := &subscription.Subscription{ID: uuid.New(), Status: subscription.StatusActive}
	require.NoError(t, store.Create(ctx, sub))
	assert.Equal(t, int64(1), sub.Version)
	assert.Error(t, store.Create(ctx, sub))

	a, err := store.Get(ctx, sub.ID)
	require.NoError(t, err)
	b, err := store.Get(ctx, sub.ID)
	require.NoError(t, err)

	a.Status = subscription.StatusPastDue
	require.NoError(t, store.Update(ctx, a))
	assert.Equal(t, int64(2), a.Version)

	b.Status = subscription.StatusEnded
	assert.ErrorIs(t, store.Update(ctx, b), subscription.ErrConcurrentUpdate)

	got, err := store.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusPastDue, got.Status)

	got.Status = subscription.StatusEnded
	assert.Equal(t, subscription.StatusPastDue, must(store.Get(ctx, sub.ID)).Status, "returned values are copies")
}

func TestMemoryStore_Queries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := subscription.NewMemoryStore()
	tenant := uuid.New()
	past := testNow.Add(-time.Hour)

	live := &subscription.Subscription{ID: uuid.New(), TenantID: tenant, ProductSlug: "app", Status: subscription.StatusActive,
		ProviderSlug: "stripe", ProviderSubscriptionID: "sub_1", CurrentPeriodEnd: &past, CreatedAt: testNow}
	ended := &subscription.Subscription{ID: uuid.New(), TenantID: tenant, ProductSlug: "app", Status: subscription.StatusEnded,
		CurrentPeriodEnd: &past, CreatedAt: testNow.Add(time.Second)}
	require.NoError(t, store.Create(ctx, live))
	require.NoError(t, store.Create(ctx, ended))

	found, err := store.FindLive(ctx, tenant, "app")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, live.ID, found[0].ID)

	expired, err := store.FindExpired(ctx, testNow, subscription.StatusActive)
	require.NoError(t, err)
	assert.Len(t, expired, 1)

	byRef, err := store.GetByProviderSubscriptionID(ctx, "stripe", "sub_1")
	require.NoError(t, err)
	assert.Equal(t, live.ID, byRef.ID)

	_, err = store.GetByProviderSubscriptionID(ctx, "paddle", "sub_1")
	assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
	_, err = store.GetByProviderSubscriptionID(ctx, "stripe", "")
	assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
}

func TestMemoryLocker(t *testing.T) {
	t.Parallel()

	t.Run("serializes holders of one key", func(t *testing.T) {
		t.Parallel()
		locker := subscription.NewMemoryLocker()
		ctx := context.Background()

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			inside  int
			maxSeen int
		)
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				release, err := locker.Lock(ctx, "k")
				if !assert.NoError(t, err) {
					return
				}
				defer release()

				mu.Lock()
				inside++
				maxSeen = max(maxSeen, inside)
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				inside--
				mu.Unlock()
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, maxSeen)
	})

	t.Run("honors context while waiting", func(t *testing.T) {
		t.Parallel()
		locker := subscription.NewMemoryLocker()

		release, err := locker.Lock(context.Background(), "k")
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err = locker.Lock(ctx, "k")
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		release()
		release() // second call is a no-op

		other, err := locker.Lock(context.Background(), "k")
		require.NoError(t, err)
		other()
	})

	t.Run("different keys do not block", func(t *testing.T) {
		t.Parallel()
		locker := subscription.NewMemoryLocker()
		a, err := locker.Lock(context.Background(), "a")
		require.NoError(t, err)
		defer a()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		b, err := locker.Lock(ctx, "b")
		require.NoError(t, err)
		b()
	})
}

func TestMemoryStore_Redemptions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := subscription.NewMemoryStore()
	store.PutDiscount(subscription.Discount{Code: "twice", IsActive: true, MaxRedemptions: 2})
	store.PutDiscount(subscription.Discount{Code: "open", IsActive: true})

	require.NoError(t, store.ReserveRedemption(ctx, "TWICE"))
	require.NoError(t, store.ReserveRedemption(ctx, "twice"))
	assert.ErrorIs(t, store.ReserveRedemption(ctx, "twice"), subscription.ErrInvalidDiscountCode)

	require.NoError(t, store.ReleaseRedemption(ctx, "twice"))
	require.NoError(t, store.ReserveRedemption(ctx, "twice"))

	for range 5 {
		require.NoError(t, store.ReserveRedemption(ctx, "open"))
	}
	d, err := store.GetDiscount(ctx, "open")
	require.NoError(t, err)
	assert.Equal(t, 5, d.Redemptions)

	assert.ErrorIs(t, store.ReserveRedemption(ctx, "nope"), subscription.ErrInvalidDiscountCode)
	assert.ErrorIs(t, store.ReleaseRedemption(ctx, "nope"), subscription.ErrInvalidDiscountCode)
}

func TestDiscount_Check(t *testing.T) {
	t.Parallel()
	plan := testPlans()[0]
	until := testNow.Add(time.Hour)

	base := subscription.Discount{
		Code:                "SAVE",
		ProviderDiscountIDs: map[string]string{"stripe": "co_1"},
		IsActive:            true,
		ValidUntil:          &until,
	}

	tests := []struct {
		name   string
		modify func(d *subscription.Discount)
		slug   string
		ok     bool
	}{
		{name: "valid", modify: func(*subscription.Discount) {}, slug: "stripe", ok: true},
		{name: "inactive", modify: func(d *subscription.Discount) { d.IsActive = false }, slug: "stripe"},
		{name: "expired", modify: func(d *subscription.Discount) { d.ValidUntil = &testNow }, slug: "stripe"},
		{name: "fully redeemed", modify: func(d *subscription.Discount) { d.MaxRedemptions, d.Redemptions = 2, 2 }, slug: "stripe"},
		{name: "other plan", modify: func(d *subscription.Discount) { d.PlanSlugs = []string{"pro-monthly"} }, slug: "stripe"},
		{name: "provider not mapped", modify: func(*subscription.Discount) {}, slug: "paddle"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := base
			tt.modify(&d)
			err := d.Check(plan, tt.slug, testNow)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, subscription.ErrInvalidDiscountCode)
			assert.True(t, subscription.IsBusinessRejection(err))
		})
	}
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
