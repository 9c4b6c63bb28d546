package subscription

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/paykit/pkg/webhook"
)

const lemonTestSecret = "ls_webhook_secret"

type lemonRequest struct {
	Method string
	Path   string
	Body   map[string]any
}

type lemonServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []lemonRequest
	replies  map[string]string // "METHOD path" -> JSON body
	status   int
}

func newLemonServer(t *testing.T) *lemonServer {
	t.Helper()
	s := &lemonServer{replies: map[string]string{}, status: http.StatusOK}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer ls_key", r.Header.Get("Authorization"))
		assert.Equal(t, lemonSqueezyContentType, r.Header.Get("Accept"))

		req := lemonRequest{Method: r.Method, Path: r.URL.Path}
		if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
			require.NoError(t, json.Unmarshal(raw, &req.Body))
		}
		s.mu.Lock()
		s.requests = append(s.requests, req)
		reply, status := s.replies[r.Method+" "+r.URL.Path], s.status
		s.mu.Unlock()

		w.Header().Set("Content-Type", lemonSqueezyContentType)
		w.WriteHeader(status)
		if reply != "" {
			_, _ = io.WriteString(w, reply)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *lemonServer) provider(t *testing.T) *LemonSqueezyProvider {
	t.Helper()
	p, err := NewLemonSqueezyProvider(LemonSqueezyConfig{
		APIKey:        "ls_key",
		StoreID:       "42",
		WebhookSecret: lemonTestSecret,
		BaseURL:       s.URL,
	}, WithLemonSqueezyHTTPClient(s.Client()))
	require.NoError(t, err)
	p.now = func() time.Time { return adapterNow }
	return p
}

func attributes(req lemonRequest) map[string]any {
	data, _ := req.Body["data"].(map[string]any)
	attrs, _ := data["attributes"].(map[string]any)
	return attrs
}

func TestNewLemonSqueezyProvider(t *testing.T) {
	t.Parallel()

	_, err := NewLemonSqueezyProvider(LemonSqueezyConfig{APIKey: "k", WebhookSecret: "s", StoreID: "abc", BaseURL: "https://api.lemonsqueezy.com/v1"})
	assert.ErrorIs(t, err, ErrInvalidProviderConfig)

	p, err := NewLemonSqueezyProvider(LemonSqueezyConfig{APIKey: "k", WebhookSecret: "s", StoreID: "1", BaseURL: "https://api.lemonsqueezy.com/v1/"})
	require.NoError(t, err)
	assert.Equal(t, "https://api.lemonsqueezy.com/v1", p.baseURL)
	assert.Equal(t, ProviderLemonSqueezy, p.Slug())
	assert.True(t, p.IsOverlayProvider())
}

func TestLemonSqueezyProvider_CreateCheckout(t *testing.T) {
	t.Parallel()
	srv := newLemonServer(t)
	srv.status = http.StatusCreated
	srv.replies["POST /checkouts"] = `{"data":{"type":"checkouts","id":"chk_1","attributes":{"url":"https://store.lemonsqueezy.com/checkout/custom/chk_1"}}}`
	p := srv.provider(t)
	sub := &Subscription{ID: uuid.New()}

	link, err := p.CreateCheckout(context.Background(), CheckoutRequest{
		Subscription: sub,
		PriceID:      "101",
		Quantity:     2,
		Email:        "a@example.com",
		SuccessURL:   "https://app.test/ok",
	})
	require.NoError(t, err)
	assert.Equal(t, "chk_1", link.SessionID)
	assert.True(t, link.Overlay)
	assert.Equal(t, adapterNow.Add(24*time.Hour), link.ExpiresAt)

	require.Len(t, srv.requests, 1)
	attrs := attributes(srv.requests[0])
	checkoutData := attrs["checkout_data"].(map[string]any)
	assert.Equal(t, "a@example.com", checkoutData["email"])
	assert.Equal(t, sub.ID.String(), checkoutData["custom"].(map[string]any)[metadataSubscriptionKey])

	data := srv.requests[0].Body["data"].(map[string]any)
	rel := data["relationships"].(map[string]any)
	assert.Equal(t, "42", rel["store"].(map[string]any)["data"].(map[string]any)["id"])
	assert.Equal(t, "101", rel["variant"].(map[string]any)["data"].(map[string]any)["id"])

	_, err = p.CreateCheckout(context.Background(), CheckoutRequest{Subscription: sub, PriceID: "abc"})
	assert.ErrorIs(t, err, ErrMissingPriceID)
}

func TestLemonSqueezyProvider_Lifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sub := &Subscription{ProviderSubscriptionID: "77"}

	t.Run("cancel sets cancelled flag", func(t *testing.T) {
		t.Parallel()
		srv := newLemonServer(t)
		require.NoError(t, srv.provider(t).CancelSubscription(ctx, sub, "", ""))
		require.Len(t, srv.requests, 1)
		assert.Equal(t, http.MethodPatch, srv.requests[0].Method)
		assert.Equal(t, "/subscriptions/77", srv.requests[0].Path)
		assert.Equal(t, true, attributes(srv.requests[0])["cancelled"])
	})

	t.Run("discard within grace period", func(t *testing.T) {
		t.Parallel()
		srv := newLemonServer(t)
		srv.replies["GET /subscriptions/77"] = fmt.Sprintf(`{"data":{"type":"subscriptions","id":"77","attributes":{"status":"cancelled","ends_at":%q}}}`,
			adapterNow.Add(48*time.Hour).Format(time.RFC3339))

		require.NoError(t, srv.provider(t).DiscardSubscriptionCancellation(ctx, sub))
		require.Len(t, srv.requests, 2)
		assert.Equal(t, false, attributes(srv.requests[1])["cancelled"])
	})

	t.Run("discard after expiry", func(t *testing.T) {
		t.Parallel()
		srv := newLemonServer(t)
		srv.replies["GET /subscriptions/77"] = `{"data":{"type":"subscriptions","id":"77","attributes":{"status":"expired"}}}`

		err := srv.provider(t).DiscardSubscriptionCancellation(ctx, sub)
		assert.ErrorIs(t, err, ErrCancellationWindowElapsed)
		assert.Len(t, srv.requests, 1)
	})

	t.Run("change plan swaps variant", func(t *testing.T) {
		t.Parallel()
		srv := newLemonServer(t)
		srv.replies["PATCH /subscriptions/77"] = `{"data":{"type":"subscriptions","id":"77","attributes":{"status":"active","renews_at":"2026-04-10T12:00:00Z"}}}`
		target := Plan{Slug: "pro", ProviderPriceIDs: map[string]string{ProviderLemonSqueezy: "202"}}

		res, err := srv.provider(t).ChangePlan(ctx, sub, target, false)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC), res.CurrentPeriodEnd.UTC())

		attrs := attributes(srv.requests[0])
		assert.EqualValues(t, 202, attrs["variant_id"])
		assert.Equal(t, true, attrs["disable_prorations"])
	})

	t.Run("update quantity patches subscription item", func(t *testing.T) {
		t.Parallel()
		srv := newLemonServer(t)
		srv.replies["GET /subscriptions/77"] = `{"data":{"type":"subscriptions","id":"77","attributes":{"status":"active","first_subscription_item":{"id":9,"quantity":1}}}}`

		require.NoError(t, srv.provider(t).UpdateQuantity(ctx, sub, 5))
		require.Len(t, srv.requests, 2)
		assert.Equal(t, "/subscription-items/9", srv.requests[1].Path)
		assert.EqualValues(t, 5, attributes(srv.requests[1])["quantity"])
	})

	t.Run("end now deletes", func(t *testing.T) {
		t.Parallel()
		srv := newLemonServer(t)
		require.NoError(t, srv.provider(t).EndSubscriptionImmediately(ctx, sub))
		assert.Equal(t, http.MethodDelete, srv.requests[0].Method)
	})

	t.Run("discounts are not supported", func(t *testing.T) {
		t.Parallel()
		srv := newLemonServer(t)
		err := srv.provider(t).ApplyDiscount(ctx, sub, &Discount{Code: "X"})
		assert.ErrorIs(t, err, ErrOperationNotSupported)
		assert.Empty(t, srv.requests)
	})

	t.Run("api error", func(t *testing.T) {
		t.Parallel()
		srv := newLemonServer(t)
		srv.status = http.StatusUnprocessableEntity
		srv.replies["PATCH /subscriptions/77"] = `{"errors":[{"status":"422","title":"Unprocessable Entity","detail":"invalid variant"}]}`

		err := srv.provider(t).CancelSubscription(ctx, sub, "", "")
		require.Error(t, err)
		var apiErr *lsAPIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
		assert.Contains(t, err.Error(), "invalid variant")
	})
}

func TestLemonSqueezyProvider_ParseWebhook(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := newLemonServer(t).provider(t)
	localID := uuid.New()

	sign := func(body []byte) http.Header {
		h := http.Header{}
		h.Set("X-Signature", webhook.SignHex(lemonTestSecret, body))
		return h
	}

	t.Run("subscription cancelled", func(t *testing.T) {
		t.Parallel()
		body := []byte(fmt.Sprintf(`{
			"meta": {"event_name": "subscription_cancelled", "custom_data": {"subscription_id": %q}},
			"data": {"type": "subscriptions", "id": "77", "attributes": {
				"status": "cancelled", "customer_id": 5, "variant_id": 101, "cancelled": true,
				"ends_at": "2026-04-01T00:00:00Z", "first_subscription_item": {"id": 9, "quantity": 2}
			}}
		}`, localID))

		ev, err := p.ParseWebhook(ctx, body, sign(body))
		require.NoError(t, err)
		assert.Equal(t, EventSubscriptionCancelled, ev.Type)
		assert.Equal(t, localID, ev.SubscriptionID)
		assert.Equal(t, "77", ev.ProviderSubscriptionID)
		assert.Equal(t, "5", ev.ProviderCustomerID)
		assert.Equal(t, "101", ev.ProviderPriceID)
		assert.Equal(t, 2, ev.Quantity)
		assert.True(t, ev.CancelAtPeriodEnd)
		assert.Equal(t, StatusPendingCancellation, ev.MappedStatus)
		assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), *ev.CurrentPeriodEnd)

		digest := sha256.Sum256(body)
		assert.Equal(t, hex.EncodeToString(digest[:]), ev.ID)
	})

	t.Run("invoice payment failed", func(t *testing.T) {
		t.Parallel()
		body := []byte(`{"meta":{"event_name":"subscription_payment_failed"},"data":{"type":"subscription-invoices","id":"inv_1","attributes":{"subscription_id":77,"customer_id":5}}}`)
		ev, err := p.ParseWebhook(ctx, body, sign(body))
		require.NoError(t, err)
		assert.Equal(t, EventPaymentFailed, ev.Type)
		assert.Equal(t, "77", ev.ProviderSubscriptionID)
	})

	t.Run("order events are ignored", func(t *testing.T) {
		t.Parallel()
		body := []byte(`{"meta":{"event_name":"order_created"},"data":{"type":"orders","id":"1","attributes":{}}}`)
		ev, err := p.ParseWebhook(ctx, body, sign(body))
		require.NoError(t, err)
		assert.Equal(t, EventIgnored, ev.Type)
	})

	t.Run("bad signature", func(t *testing.T) {
		t.Parallel()
		body := []byte(`{"meta":{"event_name":"subscription_created"}}`)
		h := http.Header{}
		h.Set("X-Signature", "deadbeef")
		_, err := p.ParseWebhook(ctx, body, h)
		assert.ErrorIs(t, err, ErrWebhookVerificationFailed)

		h.Set("X-Signature", "not-hex")
		_, err = p.ParseWebhook(ctx, body, h)
		assert.ErrorIs(t, err, ErrWebhookVerificationFailed)

		_, err = p.ParseWebhook(ctx, body, http.Header{})
		assert.ErrorIs(t, err, ErrWebhookVerificationFailed)
	})
}

func TestLemonSqueezyProvider_EndNowIgnoresLateLifecycleWebhooks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv := newLemonServer(t)
	p := srv.provider(t)

	store := NewMemoryStore()
	store.SetProviders(PaymentProvider{Slug: ProviderLemonSqueezy, Name: "Lemon Squeezy", IsActive: true, SortOrder: 1})
	registry := NewPaymentService(store, p)
	plans := NewInMemSource(Plan{
		Slug:             "basic-monthly",
		ProductSlug:      "app",
		Type:             PlanTypeFlatRate,
		ProviderPriceIDs: map[string]string{ProviderLemonSqueezy: "101"},
	})
	clock := WithClock(func() time.Time { return adapterNow })

	svc, err := NewSubscriptionService(ctx, plans, registry, store, store, clock)
	require.NoError(t, err)
	processor, err := NewWebhookProcessor(ctx, plans, registry, store, clock)
	require.NoError(t, err)

	periodEnd := adapterNow.AddDate(0, 0, 20)
	sub := &Subscription{
		ID:                     uuid.New(),
		UserID:                 uuid.New(),
		TenantID:               uuid.New(),
		PlanSlug:               "basic-monthly",
		ProductSlug:            "app",
		Status:                 StatusActive,
		ProviderSlug:           ProviderLemonSqueezy,
		ProviderSubscriptionID: "77",
		Quantity:               1,
		CurrentPeriodEnd:       &periodEnd,
		CreatedAt:              adapterNow,
		UpdatedAt:              adapterNow,
	}
	require.NoError(t, store.Create(ctx, sub))

	ended, err := svc.EndNow(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusEnded, ended.Status)
	require.Len(t, srv.requests, 1)
	assert.Equal(t, http.MethodDelete, srv.requests[0].Method)
	assert.Equal(t, "/subscriptions/77", srv.requests[0].Path)

	// Lemon Squeezy keeps the subscription until the paid period runs out.
	for _, event := range []struct{ name, status string }{
		{name: "subscription_cancelled", status: "cancelled"},
		{name: "subscription_expired", status: "expired"},
	} {
		body := []byte(fmt.Sprintf(`{
			"meta": {"event_name": %q, "custom_data": {"subscription_id": %q}},
			"data": {"type": "subscriptions", "id": "77", "attributes": {
				"status": %q, "customer_id": 5, "variant_id": 101, "cancelled": true,
				"ends_at": "2026-03-30T12:00:00Z", "first_subscription_item": {"id": 9, "quantity": 1}
			}}
		}`, event.name, sub.ID, event.status))
		h := http.Header{}
		h.Set("X-Signature", webhook.SignHex(lemonTestSecret, body))

		res, err := processor.Handle(ctx, ProviderLemonSqueezy, body, h)
		require.NoError(t, err, event.name)
		assert.False(t, res.Updated, event.name)
	}

	stored, err := store.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusEnded, stored.Status)
	assert.Equal(t, ended.Version, stored.Version)
}
