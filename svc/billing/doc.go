// Package billing reconciles a tenant's paid subscription with the payment
// provider.
//
// Three entry points mutate subscription state:
//
//   - Service.Subscribe and Service.CompleteCheckout drive the checkout flow
//     (Free activation, Pro subscription creation, Enterprise one-time payment).
//   - Processor.Process consumes provider webhooks. Delivery is at-least-once
//     and unordered, so every handler is idempotent through the markers kept
//     on the subscription record.
//   - Service.Cancel refunds and cancels synchronously. A refund that was due
//     but not produced blocks the cancellation.
//
// All writes go through subscription.Store, which applies compare-and-set on
// the tenant version. The package holds no locks of its own.
//
// Notifications are handed to a Notifier after the state change commits.
// Notifier failures are logged and never roll back state.
package billing
