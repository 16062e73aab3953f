// Package tenant identifies the tenant an HTTP request acts for.
//
// The package is built around three pieces:
//
//  1. A Resolver extracts the tenant ID from the request. HeaderResolver reads
//     the X-Tenant-ID header.
//  2. A Provider confirms the tenant exists and loads what request handling
//     needs to know about it.
//  3. Middleware ties the two together, caches lookups for a short TTL and
//     stores the result in the request context.
//
// # Usage
//
//	r.Use(tenant.Middleware(
//		tenant.NewHeaderResolver(tenant.DefaultHeader),
//		tenant.ProviderFunc(lookup),
//		tenant.WithErrorHandler(renderError),
//	))
//
//	func handle(w http.ResponseWriter, r *http.Request) {
//		id, _ := tenant.IDFromContext(r.Context())
//		...
//	}
//
// Add LoggerExtractor to the logger so records carry tenant_id.
package tenant
