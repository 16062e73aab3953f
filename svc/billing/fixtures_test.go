package billing_test

import (
	"time"

	"github.com/dmitrymomot/billingkit/pkg/gateway"
)

func gatewayCustomer(id string) gateway.Customer {
	return gateway.Customer{ID: id, Email: "billing@acme.test"}
}

func gatewaySubscription(id, customerID, status string, start, end time.Time) gateway.Subscription {
	return gateway.Subscription{
		ID:                 id,
		CustomerID:         customerID,
		Status:             status,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   end,
	}
}

func gatewayCharge(id, customerID string, amount int64) gateway.Charge {
	return gateway.Charge{ID: id, CustomerID: customerID, Amount: amount}
}

func gatewayPaymentIntent(id, customerID string, amount int64) gateway.PaymentIntent {
	return gateway.PaymentIntent{
		ID:             id,
		CustomerID:     customerID,
		Status:         "succeeded",
		Amount:         amount,
		AmountReceived: amount,
	}
}
