package billing

import (
	"errors"
	"io"
	"net/http"

	billingsvc "github.com/dmitrymomot/billingkit/svc/billing"

	"github.com/dmitrymomot/billingkit/handler"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/tenant"
)

// MaxWebhookBody caps the webhook payload read into memory.
const MaxWebhookBody = 1 << 20

// SignatureHeader carries the provider's webhook signature.
const SignatureHeader = "Stripe-Signature"

type successRequest struct {
	SessionID string `query:"session_id"`
}

type webhookAck struct {
	Received bool `json:"received"`
}

type webhookError struct {
	Error string `json:"error"`
}

// webhook reads the body byte for byte, since the signature covers the exact
// payload, and acknowledges everything except a signature failure.
func (rt *routes) webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxWebhookBody))
	if err != nil {
		rt.log.WarnContext(r.Context(), "webhook body rejected", logger.Error(err))
		_ = handler.RawJSON(http.StatusBadRequest, webhookError{Error: "webhook_error"}).Render(w, r)
		return
	}

	if err := rt.webhooks.Process(r.Context(), payload, r.Header.Get(SignatureHeader)); err != nil {
		_ = handler.RawJSON(http.StatusBadRequest, webhookError{Error: "webhook_error"}).Render(w, r)
		return
	}
	_ = handler.RawJSON(http.StatusOK, webhookAck{Received: true}).Render(w, r)
}

func (rt *routes) checkoutSuccess(ctx handler.Context, req successRequest) handler.Response {
	out, err := rt.svc.CompleteCheckout(ctx, req.SessionID)
	if err != nil {
		return rt.fail(ctx, err)
	}
	if rt.opts.SuccessRedirect != "" {
		return handler.Redirect(rt.opts.SuccessRedirect)
	}
	return handler.JSON(out)
}

// checkoutCanceled is where the provider sends a browser that backed out of
// checkout. Nothing was charged, so there is no state to change.
func (rt *routes) checkoutCanceled(ctx handler.Context, _ struct{}) handler.Response {
	rt.log.InfoContext(ctx, "checkout abandoned")
	if rt.opts.CancelRedirect != "" {
		return handler.Redirect(rt.opts.CancelRedirect)
	}
	return handler.JSON(map[string]bool{"canceled": true})
}

func (rt *routes) subscribe(ctx handler.Context, req billingsvc.SubscribeRequest) handler.Response {
	id, _ := tenant.IDFromContext(ctx)
	res, err := rt.svc.Subscribe(ctx, id, req)
	if err != nil {
		return rt.fail(ctx, err)
	}
	return handler.JSON(res)
}

func (rt *routes) cancel(ctx handler.Context, _ struct{}) handler.Response {
	id, _ := tenant.IDFromContext(ctx)
	res, err := rt.svc.Cancel(ctx, id)
	if err != nil {
		return rt.fail(ctx, err)
	}
	return handler.JSON(res)
}

func (rt *routes) check(ctx handler.Context, _ struct{}) handler.Response {
	id, _ := tenant.IDFromContext(ctx)
	report, err := rt.svc.CheckSubscription(ctx, id)
	if err != nil {
		return rt.fail(ctx, err)
	}
	return handler.JSON(report)
}

func (rt *routes) fail(ctx handler.Context, err error) handler.Response {
	err = httpError(err)
	handler.LogError(rt.log, ctx.Request(), err)
	return handler.JSONError(err)
}

func (rt *routes) tenantError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tenant.ErrMissingTenant):
		err = handler.ErrUnauthorized.Wrap(err)
	case errors.Is(err, tenant.ErrInvalidIdentifier):
		err = handler.ErrBadRequest.Wrap(err)
	case errors.Is(err, tenant.ErrTenantNotFound):
		err = handler.ErrNotFound.Wrap(err)
	}
	handler.LogError(rt.log, r, err)
	_ = handler.JSONError(err).Render(w, r)
}
