// Package refund decides how much of a paid plan to give back on
// cancellation and issues the refund through the provider.
//
// Enterprise plans are one-time yearly charges: a full refund within the
// first 30 days, then linear daily proration over a 365-day year. Pro plans
// are monthly: the latest charge is refunded in full within 30 days, nothing
// after. A refund already recorded on the subscription, or already present at
// the provider, is adopted instead of issuing a new one.
package refund
