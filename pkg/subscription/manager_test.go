package subscription_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/paykit/pkg/subscription"
)

func TestSubscriptionManager_CleanupLocalSubscriptionStatuses(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	expire := func(t *testing.T, env *testEnv, status subscription.Status, periodEnd time.Time) *subscription.Subscription {
		sub := env.seed(t, "stripe", "basic-monthly", status)
		sub.CurrentPeriodEnd = &periodEnd
		require.NoError(t, env.store.Update(ctx, sub))
		return sub
	}

	t.Run("ends subscriptions past their period", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		m := env.manager(t)

		activePast := expire(t, env, subscription.StatusActive, testNow.Add(-time.Hour))
		cancelledPast := expire(t, env, subscription.StatusPendingCancellation, testNow.Add(-24*time.Hour))
		pastDue := expire(t, env, subscription.StatusPastDue, testNow.Add(-time.Minute))
		activeFuture := expire(t, env, subscription.StatusActive, testNow.Add(time.Hour))
		pending := expire(t, env, subscription.StatusPending, testNow.Add(-time.Hour))

		n, err := m.CleanupLocalSubscriptionStatuses(ctx, testNow)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		for _, sub := range []*subscription.Subscription{activePast, cancelledPast, pastDue} {
			got := env.reload(t, sub.ID)
			assert.Equal(t, subscription.StatusEnded, got.Status)
			require.NotNil(t, got.EndedAt)
			assert.Equal(t, *sub.CurrentPeriodEnd, *got.EndedAt)
			assert.Equal(t, testNow, got.UpdatedAt)
		}
		assert.Equal(t, subscription.StatusActive, env.reload(t, activeFuture.ID).Status)
		assert.Equal(t, subscription.StatusPending, env.reload(t, pending.ID).Status)

		// No provider is contacted by the sweep.
		env.stripe.AssertNotCalled(t, "EndSubscriptionImmediately", mock.Anything, mock.Anything)
		assert.Len(t, env.notices, 3)
	})

	t.Run("grace period delays expiry", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		m := env.manager(t, subscription.WithExpiryGracePeriod(2*time.Hour))

		recent := expire(t, env, subscription.StatusActive, testNow.Add(-time.Hour))
		old := expire(t, env, subscription.StatusActive, testNow.Add(-3*time.Hour))

		n, err := m.CleanupLocalSubscriptionStatuses(ctx, testNow)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, subscription.StatusActive, env.reload(t, recent.ID).Status)
		assert.Equal(t, subscription.StatusEnded, env.reload(t, old.ID).Status)
	})

	t.Run("second run is a no-op", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		m := env.manager(t)
		expire(t, env, subscription.StatusActive, testNow.Add(-time.Hour))

		n, err := m.CleanupLocalSubscriptionStatuses(ctx, testNow)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = m.CleanupLocalSubscriptionStatuses(ctx, testNow)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestSubscriptionManager_ActivateSubscriptionsPendingUserVerification(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	m := env.manager(t)
	userID := uuid.New()

	held := make([]*subscription.Subscription, 0, 2)
	for range 2 {
		sub := env.seed(t, "paddle", "basic-monthly", subscription.StatusPendingUserVerification)
		sub.UserID = userID
		require.NoError(t, env.store.Update(ctx, sub))
		held = append(held, sub)
	}
	other := env.seed(t, "paddle", "basic-monthly", subscription.StatusPendingUserVerification)

	n, err := m.ActivateSubscriptionsPendingUserVerification(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, sub := range held {
		assert.Equal(t, subscription.StatusActive, env.reload(t, sub.ID).Status)
	}
	assert.Equal(t, subscription.StatusPendingUserVerification, env.reload(t, other.ID).Status)

	n, err = m.ActivateSubscriptionsPendingUserVerification(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSubscriptionManager_SyncSeatQuantities(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("requires a seat counter", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		_, err := env.manager(t).SyncSeatQuantities(ctx)
		assert.ErrorIs(t, err, subscription.ErrNoSeatCounter)
	})

	t.Run("pushes drifted seat counts", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		seats := map[uuid.UUID]int{}
		m := env.manager(t, subscription.WithSeatCounter(func(_ context.Context, tenantID uuid.UUID) (int, error) {
			return seats[tenantID], nil
		}))

		drifted := env.seed(t, "stripe", "pro-seat", subscription.StatusActive)
		seats[drifted.TenantID] = 5
		inSync := env.seed(t, "stripe", "pro-seat", subscription.StatusActive)
		seats[inSync.TenantID] = 1
		empty := env.seed(t, "paddle", "pro-seat", subscription.StatusActive)
		empty.Quantity = 3
		require.NoError(t, env.store.Update(ctx, empty))
		seats[empty.TenantID] = 0
		flat := env.seed(t, "stripe", "basic-monthly", subscription.StatusActive)
		seats[flat.TenantID] = 9

		env.stripe.On("UpdateQuantity", mock.Anything, mock.MatchedBy(func(s *subscription.Subscription) bool {
			return s.ID == drifted.ID
		}), 5).Return(nil).Once()
		env.paddle.On("UpdateQuantity", mock.Anything, mock.Anything, 1).Return(nil).Once()

		n, err := m.SyncSeatQuantities(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		assert.Equal(t, 5, env.reload(t, drifted.ID).Quantity)
		assert.Equal(t, 1, env.reload(t, empty.ID).Quantity, "seat count is floored at one")
		assert.Equal(t, 1, env.reload(t, flat.ID).Quantity)
		env.stripe.AssertExpectations(t)
		env.paddle.AssertExpectations(t)
	})

	t.Run("provider failure keeps quantity and continues", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		m := env.manager(t, subscription.WithSeatCounter(func(context.Context, uuid.UUID) (int, error) {
			return 4, nil
		}))

		failing := env.seed(t, "paddle", "pro-seat", subscription.StatusActive)
		ok := env.seed(t, "stripe", "pro-seat", subscription.StatusActive)

		env.paddle.On("UpdateQuantity", mock.Anything, mock.Anything, 4).Return(errors.New("paddle down")).Once()
		env.stripe.On("UpdateQuantity", mock.Anything, mock.Anything, 4).Return(nil).Once()

		n, err := m.SyncSeatQuantities(ctx)
		assert.ErrorIs(t, err, subscription.ErrProviderError)
		assert.Equal(t, 1, n)
		assert.Equal(t, 1, env.reload(t, failing.ID).Quantity)
		assert.Equal(t, 4, env.reload(t, ok.ID).Quantity)
	})
}
