package subscription

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"
)

const stripeTestSecret = "whsec_test_secret"

var adapterNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestStripeProvider(api stripeAPI) *StripeProvider {
	return &StripeProvider{
		api:           api,
		webhookSecret: stripeTestSecret,
		now:           func() time.Time { return adapterNow },
	}
}

func stripeSubscriptionWithItem(periodEnd time.Time) *stripe.Subscription {
	return &stripe.Subscription{
		ID:     "sub_123",
		Status: stripe.SubscriptionStatusActive,
		Items: &stripe.SubscriptionItemList{Data: []*stripe.SubscriptionItem{
			{ID: "si_1", CurrentPeriodEnd: periodEnd.Unix()},
		}},
	}
}

func signedStripeEvent(t *testing.T, eventType, object string) ([]byte, http.Header) {
	t.Helper()
	payload := fmt.Sprintf(`{
		"id": "evt_%s",
		"object": "event",
		"api_version": "2025-07-30.basil",
		"created": %d,
		"type": %q,
		"data": {"object": %s}
	}`, uuid.NewString()[:8], adapterNow.Unix(), eventType, object)

	signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    stripeTestSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	header := http.Header{}
	header.Set("Stripe-Signature", signed.Header)
	return signed.Payload, header
}

func TestNewStripeProvider(t *testing.T) {
	t.Parallel()

	_, err := NewStripeProvider(StripeConfig{SecretKey: "sk_test"})
	assert.ErrorIs(t, err, ErrInvalidProviderConfig)

	p, err := NewStripeProvider(StripeConfig{SecretKey: "sk_test", WebhookSecret: "whsec"})
	require.NoError(t, err)
	assert.Equal(t, ProviderStripe, p.Slug())
	assert.True(t, p.SupportsSkippingTrial())
	assert.True(t, p.IsRedirectProvider())
	assert.True(t, SupportsPlanType(p, PlanTypeUsageBased))
}

func TestStripeProvider_CreateCheckout(t *testing.T) {
	t.Parallel()

	var captured *stripe.CheckoutSessionParams
	p := newTestStripeProvider(stripeAPI{
		createCheckoutSession: func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
			captured = params
			return &stripe.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.com/c/cs_1", ExpiresAt: adapterNow.Add(time.Hour).Unix()}, nil
		},
	})

	sub := &Subscription{ID: uuid.New()}
	link, err := p.CreateCheckout(context.Background(), CheckoutRequest{
		Subscription: sub,
		Plan:         Plan{Slug: "pro", Type: PlanTypeSeatBased, TrialDays: 14},
		PriceID:      "price_pro",
		Quantity:     3,
		Email:        "owner@example.com",
		SuccessURL:   "https://app.test/ok",
		CancelURL:    "https://app.test/cancel",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_1", link.SessionID)
	assert.Equal(t, adapterNow.Add(time.Hour), link.ExpiresAt)

	require.NotNil(t, captured)
	assert.Equal(t, "price_pro", *captured.LineItems[0].Price)
	assert.Equal(t, int64(3), *captured.LineItems[0].Quantity)
	assert.Equal(t, int64(14), *captured.SubscriptionData.TrialPeriodDays)
	assert.Equal(t, sub.ID.String(), captured.SubscriptionData.Metadata[metadataSubscriptionKey])
	assert.Equal(t, "owner@example.com", *captured.CustomerEmail)

	t.Run("skipping trial and metered price", func(t *testing.T) {
		_, err := p.CreateCheckout(context.Background(), CheckoutRequest{
			Subscription: sub,
			Plan:         Plan{Slug: "metered", Type: PlanTypeUsageBased, TrialDays: 14},
			PriceID:      "price_metered",
			SkipTrial:    true,
		})
		require.NoError(t, err)
		assert.Nil(t, captured.SubscriptionData.TrialPeriodDays)
		assert.Nil(t, captured.LineItems[0].Quantity)
	})

	t.Run("missing price", func(t *testing.T) {
		_, err := p.CreateCheckout(context.Background(), CheckoutRequest{Subscription: sub})
		assert.ErrorIs(t, err, ErrMissingPriceID)
	})
}

func TestStripeProvider_Cancellation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sub := &Subscription{ProviderSubscriptionID: "sub_123"}

	t.Run("cancel at period end", func(t *testing.T) {
		t.Parallel()
		var captured *stripe.SubscriptionParams
		p := newTestStripeProvider(stripeAPI{
			updateSubscription: func(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
				assert.Equal(t, "sub_123", id)
				captured = params
				return &stripe.Subscription{ID: id}, nil
			},
		})

		require.NoError(t, p.CancelSubscription(ctx, sub, "too_expensive", "switching"))
		assert.True(t, *captured.CancelAtPeriodEnd)
		assert.Equal(t, "too_expensive", captured.Metadata["cancellation_reason"])
	})

	t.Run("discard within period", func(t *testing.T) {
		t.Parallel()
		var captured *stripe.SubscriptionParams
		p := newTestStripeProvider(stripeAPI{
			getSubscription: func(string, *stripe.SubscriptionParams) (*stripe.Subscription, error) {
				return stripeSubscriptionWithItem(adapterNow.Add(24 * time.Hour)), nil
			},
			updateSubscription: func(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
				captured = params
				return &stripe.Subscription{ID: id}, nil
			},
		})

		require.NoError(t, p.DiscardSubscriptionCancellation(ctx, sub))
		assert.False(t, *captured.CancelAtPeriodEnd)
	})

	t.Run("discard after period end", func(t *testing.T) {
		t.Parallel()
		p := newTestStripeProvider(stripeAPI{
			getSubscription: func(string, *stripe.SubscriptionParams) (*stripe.Subscription, error) {
				return stripeSubscriptionWithItem(adapterNow.Add(-time.Minute)), nil
			},
			updateSubscription: func(string, *stripe.SubscriptionParams) (*stripe.Subscription, error) {
				t.Fatal("must not update after the window elapsed")
				return nil, nil
			},
		})

		assert.ErrorIs(t, p.DiscardSubscriptionCancellation(ctx, sub), ErrCancellationWindowElapsed)
	})

	t.Run("end immediately", func(t *testing.T) {
		t.Parallel()
		called := false
		p := newTestStripeProvider(stripeAPI{
			cancelSubscription: func(id string, _ *stripe.SubscriptionCancelParams) (*stripe.Subscription, error) {
				called = true
				return &stripe.Subscription{ID: id, Status: stripe.SubscriptionStatusCanceled}, nil
			},
		})
		require.NoError(t, p.EndSubscriptionImmediately(ctx, sub))
		assert.True(t, called)

		assert.ErrorIs(t, p.EndSubscriptionImmediately(ctx, &Subscription{}), ErrMissingProviderReference)
	})
}

func TestStripeProvider_ChangePlanAmountUsesCurrencyExponent(t *testing.T) {
	t.Parallel()
	sub := &Subscription{ProviderSubscriptionID: "sub_123", Quantity: 1}
	target := Plan{Slug: "pro", Type: PlanTypeFlatRate, ProviderPriceIDs: map[string]string{ProviderStripe: "price_pro"}}
	periodEnd := adapterNow.AddDate(0, 1, 0)

	tests := []struct {
		currency string
		due      int64
		want     string
	}{
		{currency: "usd", due: 1250, want: "12.5"},
		{currency: "jpy", due: 1500, want: "1500"},
		{currency: "krw", due: 33000, want: "33000"},
		{currency: "kwd", due: 12345, want: "12.345"},
	}
	for _, tt := range tests {
		t.Run(tt.currency, func(t *testing.T) {
			t.Parallel()
			p := newTestStripeProvider(stripeAPI{
				getSubscription: func(string, *stripe.SubscriptionParams) (*stripe.Subscription, error) {
					return stripeSubscriptionWithItem(periodEnd), nil
				},
				updateSubscription: func(string, *stripe.SubscriptionParams) (*stripe.Subscription, error) {
					updated := stripeSubscriptionWithItem(periodEnd)
					updated.LatestInvoice = &stripe.Invoice{ID: "in_1", AmountDue: tt.due, Currency: stripe.Currency(tt.currency)}
					return updated, nil
				},
			})

			res, err := p.ChangePlan(context.Background(), sub, target, true)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Amount.String())
			assert.Equal(t, strings.ToUpper(tt.currency), res.Currency)
		})
	}
}

func TestStripeProvider_ChangePlan(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sub := &Subscription{ProviderSubscriptionID: "sub_123", Quantity: 1}
	target := Plan{Slug: "pro", Type: PlanTypeFlatRate, ProviderPriceIDs: map[string]string{ProviderStripe: "price_pro"}}
	periodEnd := adapterNow.AddDate(0, 1, 0)

	var captured *stripe.SubscriptionParams
	p := newTestStripeProvider(stripeAPI{
		getSubscription: func(string, *stripe.SubscriptionParams) (*stripe.Subscription, error) {
			return stripeSubscriptionWithItem(periodEnd), nil
		},
		updateSubscription: func(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
			captured = params
			updated := stripeSubscriptionWithItem(periodEnd)
			updated.LatestInvoice = &stripe.Invoice{ID: "in_1", AmountDue: 1250, Currency: stripe.CurrencyUSD}
			return updated, nil
		},
	})

	res, err := p.ChangePlan(ctx, sub, target, true)
	require.NoError(t, err)
	assert.Equal(t, "12.5", res.Amount.String())
	assert.Equal(t, "USD", res.Currency)
	assert.Equal(t, "in_1", res.ProviderReference)
	assert.Equal(t, periodEnd.Unix(), res.CurrentPeriodEnd.Unix())

	assert.Equal(t, "si_1", *captured.Items[0].ID)
	assert.Equal(t, "price_pro", *captured.Items[0].Price)
	assert.Equal(t, "always_invoice", *captured.ProrationBehavior)

	res, err = p.ChangePlan(ctx, sub, target, false)
	require.NoError(t, err)
	assert.True(t, res.Amount.IsZero())
	assert.Equal(t, "none", *captured.ProrationBehavior)

	_, err = p.ChangePlan(ctx, sub, Plan{Slug: "x"}, true)
	assert.ErrorIs(t, err, ErrMissingPriceID)
}

func TestStripeProvider_ApplyDiscount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sub := &Subscription{ProviderSubscriptionID: "sub_123"}
	discount := &Discount{Code: "SAVE", ProviderDiscountIDs: map[string]string{ProviderStripe: "co_save"}}

	t.Run("applies coupon", func(t *testing.T) {
		t.Parallel()
		var captured *stripe.SubscriptionParams
		p := newTestStripeProvider(stripeAPI{
			updateSubscription: func(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
				captured = params
				return &stripe.Subscription{ID: id}, nil
			},
		})
		require.NoError(t, p.ApplyDiscount(ctx, sub, discount))
		assert.Equal(t, "co_save", *captured.Discounts[0].Coupon)
	})

	t.Run("invalid request is a rejection", func(t *testing.T) {
		t.Parallel()
		p := newTestStripeProvider(stripeAPI{
			updateSubscription: func(string, *stripe.SubscriptionParams) (*stripe.Subscription, error) {
				return nil, &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, Msg: "No such coupon"}
			},
		})
		err := p.ApplyDiscount(ctx, sub, discount)
		assert.ErrorIs(t, err, ErrDiscountRejected)
	})

	t.Run("transport failure is not a rejection", func(t *testing.T) {
		t.Parallel()
		p := newTestStripeProvider(stripeAPI{
			updateSubscription: func(string, *stripe.SubscriptionParams) (*stripe.Subscription, error) {
				return nil, errors.New("connection reset")
			},
		})
		err := p.ApplyDiscount(ctx, sub, discount)
		require.Error(t, err)
		assert.False(t, IsBusinessRejection(err))
	})
}

func TestStripeProvider_UpdateQuantity(t *testing.T) {
	t.Parallel()
	var captured *stripe.SubscriptionParams
	p := newTestStripeProvider(stripeAPI{
		getSubscription: func(string, *stripe.SubscriptionParams) (*stripe.Subscription, error) {
			return stripeSubscriptionWithItem(adapterNow), nil
		},
		updateSubscription: func(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
			captured = params
			return &stripe.Subscription{ID: id}, nil
		},
	})

	require.NoError(t, p.UpdateQuantity(context.Background(), &Subscription{ProviderSubscriptionID: "sub_123"}, 7))
	assert.Equal(t, int64(7), *captured.Items[0].Quantity)
	assert.Equal(t, "si_1", *captured.Items[0].ID)
}

func TestStripeProvider_ParseWebhook(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := newTestStripeProvider(stripeAPI{})
	localID := uuid.New()
	periodEnd := adapterNow.AddDate(0, 1, 0).Unix()

	subscriptionObject := func(status string, cancelAtPeriodEnd bool) string {
		return fmt.Sprintf(`{
			"id": "sub_123",
			"object": "subscription",
			"customer": "cus_1",
			"status": %q,
			"cancel_at_period_end": %t,
			"metadata": {"subscription_id": %q},
			"items": {"object": "list", "data": [
				{"id": "si_1", "quantity": 4, "current_period_end": %d, "price": {"id": "price_pro"}}
			]}
		}`, status, cancelAtPeriodEnd, localID, periodEnd)
	}

	t.Run("subscription updated", func(t *testing.T) {
		t.Parallel()
		payload, header := signedStripeEvent(t, "customer.subscription.updated", subscriptionObject("active", true))

		ev, err := p.ParseWebhook(ctx, payload, header)
		require.NoError(t, err)
		assert.Equal(t, EventSubscriptionUpdated, ev.Type)
		assert.Equal(t, localID, ev.SubscriptionID)
		assert.Equal(t, "sub_123", ev.ProviderSubscriptionID)
		assert.Equal(t, "cus_1", ev.ProviderCustomerID)
		assert.Equal(t, "price_pro", ev.ProviderPriceID)
		assert.Equal(t, 4, ev.Quantity)
		assert.Equal(t, StatusActive, ev.MappedStatus)
		assert.True(t, ev.CancelAtPeriodEnd)
		assert.Equal(t, periodEnd, ev.CurrentPeriodEnd.Unix())
		assert.NotEmpty(t, ev.ID)
	})

	t.Run("subscription deleted", func(t *testing.T) {
		t.Parallel()
		payload, header := signedStripeEvent(t, "customer.subscription.deleted", subscriptionObject("canceled", false))

		ev, err := p.ParseWebhook(ctx, payload, header)
		require.NoError(t, err)
		assert.Equal(t, EventSubscriptionEnded, ev.Type)
		assert.Equal(t, StatusEnded, ev.MappedStatus)
	})

	t.Run("invoice payment failed", func(t *testing.T) {
		t.Parallel()
		payload, header := signedStripeEvent(t, "invoice.payment_failed", fmt.Sprintf(`{
			"id": "in_1",
			"object": "invoice",
			"customer": "cus_1",
			"parent": {"subscription_details": {"subscription": "sub_123", "metadata": {"subscription_id": %q}}}
		}`, localID))

		ev, err := p.ParseWebhook(ctx, payload, header)
		require.NoError(t, err)
		assert.Equal(t, EventPaymentFailed, ev.Type)
		assert.Equal(t, "sub_123", ev.ProviderSubscriptionID)
		assert.Equal(t, localID, ev.SubscriptionID)
	})

	t.Run("one-off invoice is ignored", func(t *testing.T) {
		t.Parallel()
		payload, header := signedStripeEvent(t, "invoice.paid", `{"id": "in_2", "object": "invoice", "customer": "cus_1"}`)

		ev, err := p.ParseWebhook(ctx, payload, header)
		require.NoError(t, err)
		assert.Equal(t, EventIgnored, ev.Type)
	})

	t.Run("unrelated event is ignored", func(t *testing.T) {
		t.Parallel()
		payload, header := signedStripeEvent(t, "charge.refunded", `{"id": "ch_1", "object": "charge"}`)

		ev, err := p.ParseWebhook(ctx, payload, header)
		require.NoError(t, err)
		assert.Equal(t, EventIgnored, ev.Type)
	})

	t.Run("bad signature", func(t *testing.T) {
		t.Parallel()
		payload, header := signedStripeEvent(t, "customer.subscription.updated", subscriptionObject("active", false))
		tampered := append([]byte{}, payload...)
		tampered[len(tampered)-2] = ' '

		_, err := p.ParseWebhook(ctx, tampered, header)
		assert.ErrorIs(t, err, ErrWebhookVerificationFailed)

		_, err = p.ParseWebhook(ctx, payload, http.Header{})
		assert.ErrorIs(t, err, ErrWebhookVerificationFailed)
	})
}

func TestMapStripeStatus(t *testing.T) {
	t.Parallel()
	cases := map[string]Status{
		"active":             StatusActive,
		"trialing":           StatusActive,
		"past_due":           StatusPastDue,
		"unpaid":             StatusPastDue,
		"canceled":           StatusEnded,
		"incomplete_expired": StatusEnded,
		"incomplete":         StatusPending,
		"paused":             "",
	}
	for in, want := range cases {
		assert.Equal(t, want, mapStripeStatus(in), in)
	}
}
