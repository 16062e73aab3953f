// Package billing mounts the billing HTTP surface: checkout, the provider
// redirects, cancellation, the reconciliation report and the webhook
// endpoint.
//
//	r.Mount("/billing", billing.Router(billing.RouterOptions{
//		Service:  svc,
//		Webhooks: billingsvc.NewProcessor(svc, billingsvc.WithDeduper(dedup)),
//		Tenants:  billing.StoreTenants(store),
//		Logger:   log,
//	}))
//
// Every route except the webhook and the two provider redirects requires the
// X-Tenant-ID header.
package billing
