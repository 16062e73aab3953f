// Package gateway is a thin typed client for the payment provider.
//
// Gateway exposes the customer, payment method, checkout, subscription,
// charge and refund operations the billing service needs, and verifies
// webhook signatures. Stripe implements it over stripe-go's client.API, so
// the provider client is an explicit dependency rather than a global.
//
// Every mutating call carries an idempotency key. Callers may pass their own;
// otherwise one is derived from the call's inputs.
//
// Webhook payloads are decoded with the Decode* helpers, which accept both
// the legacy and the current invoice shapes.
package gateway
