package billing_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/refund"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
	"github.com/dmitrymomot/billingkit/svc/billing"
)

type recorder struct {
	mu    sync.Mutex
	items []billing.Notification
}

func (r *recorder) Notify(_ context.Context, n billing.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
	return nil
}

func (r *recorder) All() []billing.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]billing.Notification(nil), r.items...)
}

func (r *recorder) Count(ev billing.NotificationEvent) int {
	n := 0
	for _, item := range r.All() {
		if item.Event == ev {
			n++
		}
	}
	return n
}

type stubRefunder struct {
	mu     sync.Mutex
	result refund.Result
	err    error
	calls  int
}

func (s *stubRefunder) Calculate(context.Context, *subscription.Tenant) (refund.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.result, s.err
}

type testEnv struct {
	t     *testing.T
	now   time.Time
	store *subscription.Store
	gw    *fakeGateway
	notes *recorder
	reg   *prometheus.Registry
	svc   *billing.Service
}

func newTestEnv(t *testing.T, opts ...billing.ServiceOption) *testEnv {
	t.Helper()

	now := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	store := subscription.NewStore(subscription.NewMemoryRepository(), subscription.WithClock(clock))
	gw := newFakeGateway(now)
	catalog, err := subscription.DefaultCatalog()
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	notes := &recorder{}
	base := []billing.ServiceOption{
		billing.WithClock(clock),
		billing.WithNotifier(notes),
		billing.WithMetrics(billing.NewMetrics(reg)),
		billing.WithBaseURL("https://app.test/"),
	}

	return &testEnv{
		t:     t,
		now:   now,
		store: store,
		gw:    gw,
		notes: notes,
		reg:   reg,
		svc:   billing.NewService(store, gw, catalog, append(base, opts...)...),
	}
}

func (e *testEnv) seed(mutate func(*subscription.Subscription)) *subscription.Tenant {
	e.t.Helper()
	tenant := subscription.NewTenant("Acme", "billing@acme.test")
	if mutate != nil {
		mutate(&tenant.Subscription)
	}
	require.NoError(e.t, e.store.Insert(context.Background(), tenant))
	return tenant
}

func (e *testEnv) tenant(id uuid.UUID) *subscription.Tenant {
	e.t.Helper()
	got, err := e.store.Get(context.Background(), id)
	require.NoError(e.t, err)
	return got
}

func (e *testEnv) daysAgo(n int) *time.Time {
	v := e.now.AddDate(0, 0, -n)
	return &v
}

// seedActivePro creates a Pro tenant paid days ago, with matching provider
// subscription and charge.
func (e *testEnv) seedActivePro(days int) *subscription.Tenant {
	e.t.Helper()
	end := e.now.AddDate(0, 0, 30-days)
	tenant := e.seed(func(sub *subscription.Subscription) {
		sub.Plan = subscription.PlanPro
		sub.Status = subscription.StatusActive
		sub.CustomerID = "cus_pro"
		sub.SubscriptionID = "sub_pro"
		sub.AmountPaid = 8000
		sub.CurrentPeriodStart = e.daysAgo(days)
		sub.CurrentPeriodEnd = &end
	})
	e.gw.AddCustomer(gatewayCustomer("cus_pro"))
	e.gw.AddSubscription(gatewaySubscription("sub_pro", "cus_pro", "active", *e.daysAgo(days), end))
	e.gw.AddCharge(gatewayCharge("ch_pro", "cus_pro", 8000))
	return tenant
}

// seedActiveEnterprise creates an Enterprise tenant paid 10000 days ago.
func (e *testEnv) seedActiveEnterprise(days int) *subscription.Tenant {
	e.t.Helper()
	end := e.daysAgo(days).AddDate(1, 0, 0)
	tenant := e.seed(func(sub *subscription.Subscription) {
		sub.Plan = subscription.PlanEnterprise
		sub.Status = subscription.StatusActive
		sub.CustomerID = "cus_ent"
		sub.PaymentIntentID = "pi_ent"
		sub.LastPaymentIntentIDSent = "pi_ent"
		sub.AmountPaid = 10000
		sub.CurrentPeriodStart = e.daysAgo(days)
		sub.CurrentPeriodEnd = &end
	})
	e.gw.AddCustomer(gatewayCustomer("cus_ent"))
	e.gw.AddPaymentIntent(gatewayPaymentIntent("pi_ent", "cus_ent", 10000))
	return tenant
}

func eventPayload(id, eventType, object string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"type":%q,"data":{"object":%s}}`, id, eventType, object))
}
