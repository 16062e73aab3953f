// Package handler adapts typed request handlers to net/http.
//
// A HandlerFunc receives a Context and a request value populated by binders,
// and returns a Response. Wrap turns it into an http.HandlerFunc:
//
//	func subscribe(ctx handler.Context, req SubscribeRequest) handler.Response {
//		res, err := svc.Subscribe(ctx, tenantID, req)
//		if err != nil {
//			return handler.JSONError(err)
//		}
//		return handler.JSON(res)
//	}
//
//	r.Post("/subscribe", handler.Wrap(subscribe,
//		handler.WithBinders[handler.Context, SubscribeRequest](binder.BindJSON()),
//	))
//
// Errors map to status codes through HTTPError values and
// validator.ValidationErrors, which render as 422 with per-field details.
package handler
