package billing_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrymomot/billingkit/pkg/gateway"
)

const validSignature = "t=1,v1=valid"

// fakeGateway is an in-memory provider. It honours idempotency keys for
// subscriptions and refunds the way the real API does.
type fakeGateway struct {
	mu  sync.Mutex
	now time.Time
	seq int

	calls    map[string]int
	failures map[string]error

	customers      map[string]*gateway.Customer
	paymentMethods map[string]*gateway.PaymentMethod
	sessions       map[string]*gateway.CheckoutSession
	subscriptions  map[string]*gateway.Subscription
	paymentIntents map[string]*gateway.PaymentIntent
	latestCharges  map[string]*gateway.Charge
	refunds        map[string][]gateway.Refund
	keyed          map[string]string
}

func newFakeGateway(now time.Time) *fakeGateway {
	return &fakeGateway{
		now:            now,
		calls:          make(map[string]int),
		failures:       make(map[string]error),
		customers:      make(map[string]*gateway.Customer),
		paymentMethods: make(map[string]*gateway.PaymentMethod),
		sessions:       make(map[string]*gateway.CheckoutSession),
		subscriptions:  make(map[string]*gateway.Subscription),
		paymentIntents: make(map[string]*gateway.PaymentIntent),
		latestCharges:  make(map[string]*gateway.Charge),
		refunds:        make(map[string][]gateway.Refund),
		keyed:          make(map[string]string),
	}
}

func (f *fakeGateway) call(name string) error {
	f.calls[name]++
	return f.failures[name]
}

func (f *fakeGateway) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s_%d", prefix, f.seq)
}

func (f *fakeGateway) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeGateway) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeGateway) Fail(name string, err error) {
	f.mu.Lock()
	f.failures[name] = err
	f.mu.Unlock()
}

func (f *fakeGateway) AddPaymentMethod(pm gateway.PaymentMethod) {
	f.mu.Lock()
	f.paymentMethods[pm.ID] = &pm
	f.mu.Unlock()
}

func (f *fakeGateway) AddCustomer(c gateway.Customer) {
	f.mu.Lock()
	f.customers[c.ID] = &c
	f.mu.Unlock()
}

func (f *fakeGateway) AddPaymentIntent(pi gateway.PaymentIntent) {
	f.mu.Lock()
	f.paymentIntents[pi.ID] = &pi
	f.mu.Unlock()
}

func (f *fakeGateway) AddCharge(c gateway.Charge) {
	f.mu.Lock()
	f.latestCharges[c.CustomerID] = &c
	f.mu.Unlock()
}

func (f *fakeGateway) AddSubscription(s gateway.Subscription) {
	f.mu.Lock()
	f.subscriptions[s.ID] = &s
	f.mu.Unlock()
}

func (f *fakeGateway) AddSession(s gateway.CheckoutSession) {
	f.mu.Lock()
	f.sessions[s.ID] = &s
	f.mu.Unlock()
}

func (f *fakeGateway) Refunds(ref string) []gateway.Refund {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gateway.Refund(nil), f.refunds[ref]...)
}

func (f *fakeGateway) Subscription(id string) *gateway.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.subscriptions[id]; ok {
		c := *s
		return &c
	}
	return nil
}

func (f *fakeGateway) GetCustomer(_ context.Context, id string) (*gateway.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("GetCustomer"); err != nil {
		return nil, err
	}
	c, ok := f.customers[id]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	out := *c
	return &out, nil
}

func (f *fakeGateway) CreateCustomer(_ context.Context, p gateway.CustomerParams) (*gateway.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("CreateCustomer"); err != nil {
		return nil, err
	}
	c := &gateway.Customer{
		ID:       f.nextID("cus"),
		Email:    p.Email,
		Name:     p.Name,
		Metadata: map[string]string{gateway.MetadataTenantID: p.TenantID},
	}
	f.customers[c.ID] = c
	out := *c
	return &out, nil
}

func (f *fakeGateway) SetDefaultPaymentMethod(_ context.Context, customerID, pmID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("SetDefaultPaymentMethod"); err != nil {
		return err
	}
	c, ok := f.customers[customerID]
	if !ok {
		return gateway.ErrNotFound
	}
	c.DefaultPaymentMethodID = pmID
	return nil
}

func (f *fakeGateway) GetPaymentMethod(_ context.Context, id string) (*gateway.PaymentMethod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("GetPaymentMethod"); err != nil {
		return nil, err
	}
	pm, ok := f.paymentMethods[id]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	out := *pm
	return &out, nil
}

func (f *fakeGateway) AttachPaymentMethod(_ context.Context, pmID, customerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("AttachPaymentMethod"); err != nil {
		return err
	}
	pm, ok := f.paymentMethods[pmID]
	if !ok {
		return gateway.ErrNotFound
	}
	pm.CustomerID = customerID
	return nil
}

func (f *fakeGateway) CreateCheckoutSession(_ context.Context, p gateway.CheckoutSessionParams) (*gateway.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("CreateCheckoutSession"); err != nil {
		return nil, err
	}
	id := f.nextID("cs")
	s := &gateway.CheckoutSession{
		ID:         id,
		URL:        "https://checkout.test/" + id,
		Mode:       p.Mode,
		CustomerID: p.CustomerID,
		Metadata:   p.Metadata,
	}
	f.sessions[id] = s
	out := *s
	return &out, nil
}

func (f *fakeGateway) GetCheckoutSession(_ context.Context, id string) (*gateway.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("GetCheckoutSession"); err != nil {
		return nil, err
	}
	s, ok := f.sessions[id]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	out := *s
	return &out, nil
}

func (f *fakeGateway) CreateSubscription(_ context.Context, p gateway.SubscriptionParams) (*gateway.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("CreateSubscription"); err != nil {
		return nil, err
	}
	if id, ok := f.keyed[p.IdempotencyKey]; ok && p.IdempotencyKey != "" {
		out := *f.subscriptions[id]
		return &out, nil
	}
	s := &gateway.Subscription{
		ID:                 f.nextID("sub"),
		CustomerID:         p.CustomerID,
		Status:             "incomplete",
		Metadata:           p.Metadata,
		CurrentPeriodStart: f.now,
		CurrentPeriodEnd:   f.now.AddDate(0, 1, 0),
	}
	f.subscriptions[s.ID] = s
	if p.IdempotencyKey != "" {
		f.keyed[p.IdempotencyKey] = s.ID
	}
	out := *s
	return &out, nil
}

func (f *fakeGateway) GetSubscription(_ context.Context, id string) (*gateway.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("GetSubscription"); err != nil {
		return nil, err
	}
	s, ok := f.subscriptions[id]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	out := *s
	return &out, nil
}

func (f *fakeGateway) CancelSubscription(_ context.Context, id string) (*gateway.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("CancelSubscription"); err != nil {
		return nil, err
	}
	s, ok := f.subscriptions[id]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	s.Status = gateway.SubscriptionStatusCanceled
	out := *s
	return &out, nil
}

func (f *fakeGateway) LatestCharge(_ context.Context, customerID string) (*gateway.Charge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("LatestCharge"); err != nil {
		return nil, err
	}
	c, ok := f.latestCharges[customerID]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	out := *c
	return &out, nil
}

func (f *fakeGateway) GetPaymentIntent(_ context.Context, id string) (*gateway.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("GetPaymentIntent"); err != nil {
		return nil, err
	}
	pi, ok := f.paymentIntents[id]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	out := *pi
	return &out, nil
}

func (f *fakeGateway) ListRefunds(_ context.Context, piID string) ([]gateway.Refund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("ListRefunds"); err != nil {
		return nil, err
	}
	return append([]gateway.Refund(nil), f.refunds[piID]...), nil
}

func (f *fakeGateway) CreateRefund(_ context.Context, p gateway.RefundParams) (*gateway.Refund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("CreateRefund"); err != nil {
		return nil, err
	}
	ref := p.PaymentIntentID
	if ref == "" {
		ref = p.ChargeID
	}
	if id, ok := f.keyed[p.IdempotencyKey]; ok && p.IdempotencyKey != "" {
		for _, r := range f.refunds[ref] {
			if r.ID == id {
				out := r
				return &out, nil
			}
		}
	}
	r := gateway.Refund{
		ID:              f.nextID("re"),
		Amount:          p.Amount,
		ChargeID:        p.ChargeID,
		PaymentIntentID: p.PaymentIntentID,
		Status:          "succeeded",
		Created:         f.now,
	}
	f.refunds[ref] = append(f.refunds[ref], r)
	if p.IdempotencyKey != "" {
		f.keyed[p.IdempotencyKey] = r.ID
	}
	return &r, nil
}

// VerifyEvent accepts validSignature only. The payload is the provider's
// event envelope.
func (f *fakeGateway) VerifyEvent(payload []byte, sig string) (*gateway.Event, error) {
	f.mu.Lock()
	f.calls["VerifyEvent"]++
	f.mu.Unlock()

	if sig != validSignature {
		return nil, gateway.ErrInvalidSignature
	}
	var env struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object json.RawMessage `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, gateway.ErrInvalidSignature
	}
	return &gateway.Event{ID: env.ID, Type: env.Type, Object: env.Data.Object}, nil
}

var _ gateway.Gateway = (*fakeGateway)(nil)
