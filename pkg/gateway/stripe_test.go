package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/dmitrymomot/billingkit/pkg/gateway"
)

const testWebhookSecret = "whsec_test"

type recordedRequest struct {
	Method         string
	Path           string
	IdempotencyKey string
	Form           map[string][]string
}

type fakeStripe struct {
	mu       sync.Mutex
	requests []recordedRequest
	routes   map[string]func(w http.ResponseWriter, r *http.Request)
}

func newFakeStripe(t *testing.T) (*fakeStripe, *gateway.Stripe) {
	t.Helper()
	fake := &fakeStripe{routes: map[string]func(http.ResponseWriter, *http.Request){}}
	srv := httptest.NewServer(http.HandlerFunc(fake.serve))
	t.Cleanup(srv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	gw := gateway.NewStripe("sk_test_123", testWebhookSecret, gateway.WithBackend(backend))
	return fake, gw
}

func (f *fakeStripe) handle(route string, status int, body string) {
	f.routes[route] = func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func (f *fakeStripe) serve(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		Method:         r.Method,
		Path:           r.URL.Path,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		Form:           r.Form,
	})
	f.mu.Unlock()

	if h, ok := f.routes[r.Method+" "+r.URL.Path]; ok {
		h(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such resource"}}`))
}

func (f *fakeStripe) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func TestStripe_GetCustomer(t *testing.T) {
	t.Parallel()

	t.Run("found", func(t *testing.T) {
		t.Parallel()
		fake, gw := newFakeStripe(t)
		fake.handle("GET /v1/customers/cus_1", http.StatusOK,
			`{"id":"cus_1","object":"customer","email":"a@acme.test","invoice_settings":{"default_payment_method":"pm_1"}}`)

		c, err := gw.GetCustomer(context.Background(), "cus_1")
		require.NoError(t, err)
		assert.Equal(t, "a@acme.test", c.Email)
		assert.Equal(t, "pm_1", c.DefaultPaymentMethodID)
		assert.False(t, c.Deleted)
	})

	t.Run("missing maps to not found", func(t *testing.T) {
		t.Parallel()
		_, gw := newFakeStripe(t)
		_, err := gw.GetCustomer(context.Background(), "cus_gone")
		assert.ErrorIs(t, err, gateway.ErrNotFound)
	})

	t.Run("provider failure", func(t *testing.T) {
		t.Parallel()
		fake, gw := newFakeStripe(t)
		fake.handle("GET /v1/customers/cus_1", http.StatusBadRequest,
			`{"error":{"type":"invalid_request_error","message":"bad"}}`)
		_, err := gw.GetCustomer(context.Background(), "cus_1")
		assert.ErrorIs(t, err, gateway.ErrProvider)
		assert.NotErrorIs(t, err, gateway.ErrNotFound)
	})
}

func TestStripe_CreateCustomerTagsTenant(t *testing.T) {
	t.Parallel()

	fake, gw := newFakeStripe(t)
	fake.handle("POST /v1/customers", http.StatusOK, `{"id":"cus_new","object":"customer","email":"a@acme.test"}`)

	c, err := gw.CreateCustomer(context.Background(), gateway.CustomerParams{Email: "a@acme.test", TenantID: "t-1"})
	require.NoError(t, err)
	assert.Equal(t, "cus_new", c.ID)

	req := fake.last()
	assert.Equal(t, []string{"t-1"}, req.Form["metadata[tenantId]"])
	assert.Equal(t, gateway.IdempotencyKey("customer", "t-1", "a@acme.test"), req.IdempotencyKey)
}

func TestStripe_CreateRefund(t *testing.T) {
	t.Parallel()

	fake, gw := newFakeStripe(t)
	fake.handle("POST /v1/refunds", http.StatusOK,
		`{"id":"re_1","object":"refund","amount":8904,"payment_intent":"pi_1","status":"succeeded"}`)

	r, err := gw.CreateRefund(context.Background(), gateway.RefundParams{
		PaymentIntentID: "pi_1",
		Amount:          8904,
		IdempotencyKey:  "refund:t-1:pi_1",
	})
	require.NoError(t, err)
	assert.Equal(t, "re_1", r.ID)
	assert.Equal(t, int64(8904), r.Amount)

	req := fake.last()
	assert.Equal(t, "refund:t-1:pi_1", req.IdempotencyKey)
	assert.Equal(t, []string{"pi_1"}, req.Form["payment_intent"])
	assert.Equal(t, []string{"8904"}, req.Form["amount"])
}

func TestStripe_CreateRefundRequiresTarget(t *testing.T) {
	t.Parallel()

	_, gw := newFakeStripe(t)
	_, err := gw.CreateRefund(context.Background(), gateway.RefundParams{Amount: 1})
	assert.ErrorIs(t, err, gateway.ErrMissingParam)
}

func TestStripe_LatestCharge(t *testing.T) {
	t.Parallel()

	t.Run("returns newest", func(t *testing.T) {
		t.Parallel()
		fake, gw := newFakeStripe(t)
		fake.handle("GET /v1/charges", http.StatusOK,
			`{"object":"list","url":"/v1/charges","has_more":false,"data":[{"id":"ch_2","object":"charge","amount":8000,"customer":"cus_1"}]}`)

		ch, err := gw.LatestCharge(context.Background(), "cus_1")
		require.NoError(t, err)
		assert.Equal(t, "ch_2", ch.ID)
		assert.Equal(t, int64(8000), ch.Amount)
		assert.Equal(t, []string{"1"}, fake.last().Form["limit"])
	})

	t.Run("no charges", func(t *testing.T) {
		t.Parallel()
		fake, gw := newFakeStripe(t)
		fake.handle("GET /v1/charges", http.StatusOK, `{"object":"list","url":"/v1/charges","has_more":false,"data":[]}`)

		_, err := gw.LatestCharge(context.Background(), "cus_1")
		assert.ErrorIs(t, err, gateway.ErrNotFound)
	})
}

func TestStripe_ListRefunds(t *testing.T) {
	t.Parallel()

	fake, gw := newFakeStripe(t)
	fake.handle("GET /v1/refunds", http.StatusOK,
		`{"object":"list","url":"/v1/refunds","has_more":false,"data":[{"id":"re_9","object":"refund","amount":500,"payment_intent":"pi_1"}]}`)

	refunds, err := gw.ListRefunds(context.Background(), "pi_1")
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	assert.Equal(t, "re_9", refunds[0].ID)
	assert.Equal(t, []string{"pi_1"}, fake.last().Form["payment_intent"])
}

func TestStripe_CreateCheckoutSession(t *testing.T) {
	t.Parallel()

	fake, gw := newFakeStripe(t)
	fake.handle("POST /v1/checkout/sessions", http.StatusOK,
		`{"id":"cs_1","object":"checkout.session","mode":"payment","url":"https://checkout.test/cs_1","customer":"cus_1"}`)

	sess, err := gw.CreateCheckoutSession(context.Background(), gateway.CheckoutSessionParams{
		Mode:       gateway.CheckoutModePayment,
		CustomerID: "cus_1",
		PriceID:    "price_ent",
		SuccessURL: "https://app.test/ok",
		CancelURL:  "https://app.test/cancel",
		Metadata:   map[string]string{gateway.MetadataPlan: "enterprise"},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.test/cs_1", sess.URL)
	assert.Equal(t, gateway.CheckoutModePayment, sess.Mode)

	req := fake.last()
	assert.Equal(t, []string{"price_ent"}, req.Form["line_items[0][price]"])
	assert.Equal(t, []string{"enterprise"}, req.Form["metadata[plan]"])

	_, err = gw.CreateCheckoutSession(context.Background(), gateway.CheckoutSessionParams{
		Mode:       gateway.CheckoutModePayment,
		CustomerID: "cus_1",
	})
	assert.ErrorIs(t, err, gateway.ErrMissingParam)
}

func TestStripe_GetSubscription(t *testing.T) {
	t.Parallel()

	fake, gw := newFakeStripe(t)
	fake.handle("GET /v1/subscriptions/sub_1", http.StatusOK,
		`{"id":"sub_1","object":"subscription","status":"active","customer":"cus_1","current_period_start":1700000000,"current_period_end":1702592000,"metadata":{"plan":"pro","tenantId":"t-1"}}`)

	sub, err := gw.GetSubscription(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "active", sub.Status)
	assert.Equal(t, "pro", sub.Metadata[gateway.MetadataPlan])
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), sub.CurrentPeriodStart)
}

func signedPayload(t *testing.T, secret string, v any) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(v)
	require.NoError(t, err)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	return signed.Payload, signed.Header
}

func TestStripe_VerifyEvent(t *testing.T) {
	t.Parallel()

	event := map[string]any{
		"id":          "evt_1",
		"object":      "event",
		"type":        gateway.EventChargeRefunded,
		"created":     1700000000,
		"api_version": "2020-08-27",
		"data":        map[string]any{"object": map[string]any{"id": "ch_1", "object": "charge"}},
	}

	t.Run("valid signature", func(t *testing.T) {
		t.Parallel()
		_, gw := newFakeStripe(t)
		payload, header := signedPayload(t, testWebhookSecret, event)

		ev, err := gw.VerifyEvent(payload, header)
		require.NoError(t, err)
		assert.Equal(t, "evt_1", ev.ID)
		assert.Equal(t, gateway.EventChargeRefunded, ev.Type)
		assert.JSONEq(t, `{"id":"ch_1","object":"charge"}`, string(ev.Object))
	})

	t.Run("wrong secret", func(t *testing.T) {
		t.Parallel()
		_, gw := newFakeStripe(t)
		payload, header := signedPayload(t, "whsec_other", event)

		_, err := gw.VerifyEvent(payload, header)
		assert.ErrorIs(t, err, gateway.ErrInvalidSignature)
	})

	t.Run("tampered payload", func(t *testing.T) {
		t.Parallel()
		_, gw := newFakeStripe(t)
		payload, header := signedPayload(t, testWebhookSecret, event)
		payload = append(payload, ' ')

		_, err := gw.VerifyEvent(payload, header)
		assert.ErrorIs(t, err, gateway.ErrInvalidSignature)
	})

	t.Run("missing header", func(t *testing.T) {
		t.Parallel()
		_, gw := newFakeStripe(t)
		_, err := gw.VerifyEvent([]byte(`{}`), "")
		assert.ErrorIs(t, err, gateway.ErrInvalidSignature)
	})
}

func TestNewStripe_PanicsWithoutSecrets(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { gateway.NewStripe("", "whsec") })
	assert.Panics(t, func() { gateway.NewStripe("sk", "") })
}
