// Package httpserver runs an http.Server under a context with graceful
// shutdown, configurable timeouts and health check handlers.
//
// Run blocks until the context is cancelled, which makes it a natural
// errgroup member:
//
//	g.Go(func() error { return srv.Run(ctx, router) })
//
// Liveness and Readiness build the /health handlers. Readiness runs named
// dependency checks under a timeout and reports each result.
package httpserver
