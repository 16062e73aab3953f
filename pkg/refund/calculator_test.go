package refund_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/gateway"
	"github.com/dmitrymomot/billingkit/pkg/refund"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) ListRefunds(ctx context.Context, piID string) ([]gateway.Refund, error) {
	args := m.Called(ctx, piID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]gateway.Refund), args.Error(1)
}

func (m *mockProvider) GetPaymentIntent(ctx context.Context, piID string) (*gateway.PaymentIntent, error) {
	args := m.Called(ctx, piID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.PaymentIntent), args.Error(1)
}

func (m *mockProvider) LatestCharge(ctx context.Context, customerID string) (*gateway.Charge, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Charge), args.Error(1)
}

func (m *mockProvider) CreateRefund(ctx context.Context, p gateway.RefundParams) (*gateway.Refund, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Refund), args.Error(1)
}

var now = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func tenantOn(plan subscription.Plan, daysAgo int) *subscription.Tenant {
	start := now.Add(-time.Duration(daysAgo) * 24 * time.Hour)
	t := &subscription.Tenant{ID: uuid.New()}
	t.Subscription = subscription.Subscription{
		Plan:               plan,
		Status:             subscription.StatusActive,
		CustomerID:         "cus_1",
		CurrentPeriodStart: &start,
	}
	switch plan {
	case subscription.PlanEnterprise:
		t.Subscription.PaymentIntentID = "pi_1"
		t.Subscription.AmountPaid = 10000
	case subscription.PlanPro:
		t.Subscription.SubscriptionID = "sub_1"
		t.Subscription.AmountPaid = 8000
	}
	return t
}

func newCalculator(p refund.Provider) *refund.Calculator {
	return refund.NewCalculator(p, refund.WithClock(func() time.Time { return now }))
}

func TestCalculator_AlreadyRecorded(t *testing.T) {
	t.Parallel()

	p := new(mockProvider)
	tenant := tenantOn(subscription.PlanEnterprise, 5)
	tenant.Subscription.LastRefund = &subscription.Refund{ID: "re_done", Amount: 10000}

	res, err := newCalculator(p).Calculate(context.Background(), tenant)
	require.NoError(t, err)
	assert.True(t, res.AlreadyRefunded)
	assert.Equal(t, "re_done", res.RefundID)
	p.AssertNotCalled(t, "ListRefunds", mock.Anything, mock.Anything)
	p.AssertNotCalled(t, "CreateRefund", mock.Anything, mock.Anything)
}

func TestCalculator_Enterprise(t *testing.T) {
	t.Parallel()

	t.Run("prorated after 40 days", func(t *testing.T) {
		t.Parallel()
		p := new(mockProvider)
		tenant := tenantOn(subscription.PlanEnterprise, 40)
		p.On("ListRefunds", mock.Anything, "pi_1").Return([]gateway.Refund{}, nil)
		p.On("GetPaymentIntent", mock.Anything, "pi_1").Return(&gateway.PaymentIntent{ID: "pi_1", Amount: 10000}, nil)
		p.On("CreateRefund", mock.Anything, mock.MatchedBy(func(rp gateway.RefundParams) bool {
			return rp.PaymentIntentID == "pi_1" && rp.Amount == 8904 &&
				rp.IdempotencyKey == "refund:"+tenant.ID.String()+":pi_1"
		})).Return(&gateway.Refund{ID: "re_1", Amount: 8904}, nil)

		res, err := newCalculator(p).Calculate(context.Background(), tenant)
		require.NoError(t, err)
		assert.Equal(t, int64(8904), res.Amount)
		assert.Equal(t, "re_1", res.RefundID)
		assert.False(t, res.AlreadyRefunded)
		assert.Equal(t, int64(10000), res.Charged)
		p.AssertExpectations(t)
	})

	t.Run("full refund within 30 days", func(t *testing.T) {
		t.Parallel()
		p := new(mockProvider)
		tenant := tenantOn(subscription.PlanEnterprise, 10)
		p.On("ListRefunds", mock.Anything, "pi_1").Return(nil, nil)
		p.On("GetPaymentIntent", mock.Anything, "pi_1").Return(&gateway.PaymentIntent{ID: "pi_1", Amount: 10000}, nil)
		p.On("CreateRefund", mock.Anything, mock.Anything).Return(&gateway.Refund{ID: "re_1", Amount: 10000}, nil)

		res, err := newCalculator(p).Calculate(context.Background(), tenant)
		require.NoError(t, err)
		assert.Equal(t, int64(10000), res.Amount)
	})

	t.Run("adopts refund from a crashed attempt", func(t *testing.T) {
		t.Parallel()
		p := new(mockProvider)
		tenant := tenantOn(subscription.PlanEnterprise, 10)
		p.On("ListRefunds", mock.Anything, "pi_1").Return([]gateway.Refund{{ID: "re_old", Amount: 10000}}, nil)

		res, err := newCalculator(p).Calculate(context.Background(), tenant)
		require.NoError(t, err)
		assert.True(t, res.AlreadyRefunded)
		assert.Equal(t, "re_old", res.RefundID)
		p.AssertNotCalled(t, "CreateRefund", mock.Anything, mock.Anything)
	})

	t.Run("nothing left after a year", func(t *testing.T) {
		t.Parallel()
		p := new(mockProvider)
		tenant := tenantOn(subscription.PlanEnterprise, 366)
		p.On("ListRefunds", mock.Anything, "pi_1").Return(nil, nil)
		p.On("GetPaymentIntent", mock.Anything, "pi_1").Return(&gateway.PaymentIntent{ID: "pi_1", Amount: 10000}, nil)

		res, err := newCalculator(p).Calculate(context.Background(), tenant)
		require.NoError(t, err)
		assert.Zero(t, res.Amount)
		assert.False(t, res.Required())
		p.AssertNotCalled(t, "CreateRefund", mock.Anything, mock.Anything)
	})

	t.Run("create failure propagates", func(t *testing.T) {
		t.Parallel()
		p := new(mockProvider)
		tenant := tenantOn(subscription.PlanEnterprise, 10)
		p.On("ListRefunds", mock.Anything, "pi_1").Return(nil, nil)
		p.On("GetPaymentIntent", mock.Anything, "pi_1").Return(&gateway.PaymentIntent{ID: "pi_1", Amount: 10000}, nil)
		p.On("CreateRefund", mock.Anything, mock.Anything).Return(nil, errors.New("card_declined"))

		_, err := newCalculator(p).Calculate(context.Background(), tenant)
		assert.ErrorIs(t, err, refund.ErrRefundFailed)
	})

	t.Run("list failure propagates", func(t *testing.T) {
		t.Parallel()
		p := new(mockProvider)
		tenant := tenantOn(subscription.PlanEnterprise, 10)
		p.On("ListRefunds", mock.Anything, "pi_1").Return(nil, gateway.ErrProvider)

		_, err := newCalculator(p).Calculate(context.Background(), tenant)
		assert.ErrorIs(t, err, refund.ErrRefundFailed)
		assert.ErrorIs(t, err, gateway.ErrProvider)
	})
}

func TestCalculator_Pro(t *testing.T) {
	t.Parallel()

	t.Run("full refund at day 30", func(t *testing.T) {
		t.Parallel()
		p := new(mockProvider)
		tenant := tenantOn(subscription.PlanPro, 30)
		p.On("LatestCharge", mock.Anything, "cus_1").Return(&gateway.Charge{ID: "ch_1", Amount: 8000}, nil)
		p.On("CreateRefund", mock.Anything, mock.MatchedBy(func(rp gateway.RefundParams) bool {
			return rp.ChargeID == "ch_1" && rp.Amount == 8000
		})).Return(&gateway.Refund{ID: "re_1", Amount: 8000}, nil)

		res, err := newCalculator(p).Calculate(context.Background(), tenant)
		require.NoError(t, err)
		assert.Equal(t, int64(8000), res.Amount)
		assert.Equal(t, "re_1", res.RefundID)
	})

	t.Run("nothing at day 31", func(t *testing.T) {
		t.Parallel()
		p := new(mockProvider)
		tenant := tenantOn(subscription.PlanPro, 31)
		p.On("LatestCharge", mock.Anything, "cus_1").Return(&gateway.Charge{ID: "ch_1", Amount: 8000}, nil)

		res, err := newCalculator(p).Calculate(context.Background(), tenant)
		require.NoError(t, err)
		assert.Zero(t, res.Amount)
		p.AssertNotCalled(t, "CreateRefund", mock.Anything, mock.Anything)
	})

	t.Run("no charges", func(t *testing.T) {
		t.Parallel()
		p := new(mockProvider)
		tenant := tenantOn(subscription.PlanPro, 3)
		p.On("LatestCharge", mock.Anything, "cus_1").Return(nil, gateway.ErrNotFound)

		res, err := newCalculator(p).Calculate(context.Background(), tenant)
		require.NoError(t, err)
		assert.Equal(t, refund.Result{}, res)
	})
}

func TestCalculator_FreePlan(t *testing.T) {
	t.Parallel()

	p := new(mockProvider)
	res, err := newCalculator(p).Calculate(context.Background(), tenantOn(subscription.PlanFree, 3))
	require.NoError(t, err)
	assert.Zero(t, res.Amount)
	p.AssertExpectations(t)
}

func TestResult_Required(t *testing.T) {
	t.Parallel()

	assert.True(t, refund.Result{Amount: 1}.Required())
	assert.False(t, refund.Result{Amount: 1, RefundID: "re"}.Required())
	assert.False(t, refund.Result{}.Required())
}
