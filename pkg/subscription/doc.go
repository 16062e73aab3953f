// Package subscription owns the tenant record and its embedded billing
// subscription.
//
// Store is the only writer of Subscription fields. Every change goes through
// Store.Update or Store.ApplyIfNewEvent, which read the tenant, apply a pure
// mutation and persist it with a compare-and-set on Tenant.Version. Event
// handlers pass an EventKey so a redelivered provider event is detected by
// its idempotency marker and skipped without calling the mutation.
//
// Repository implementations are provided for memory (tests, local runs),
// MongoDB and PostgreSQL.
package subscription
