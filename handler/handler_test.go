package handler_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/binder"
	"github.com/dmitrymomot/billingkit/handler"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/validator"
)

type planRequest struct {
	Plan string `json:"plan"`
}

var errPlanTaken = errors.New("billing: tenant already has an active paid subscription")

func decode(t *testing.T, rec *httptest.ResponseRecorder) handler.JSONResponse {
	t.Helper()
	var got handler.JSONResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	return got
}

func TestJSON(t *testing.T) {
	t.Parallel()

	t.Run("envelope", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		err := handler.JSON(map[string]string{"plan": "pro"}, handler.WithJSONMeta(map[string]any{"v": "1"})).
			Render(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Equal(t, handler.JSONResponse{
			Data: map[string]any{"plan": "pro"},
			Meta: map[string]any{"v": "1"},
		}, decode(t, rec))
	})

	t.Run("raw body", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		require.NoError(t, handler.RawJSON(http.StatusBadRequest, map[string]string{"error": "webhook_error"}).
			Render(rec, httptest.NewRequest(http.MethodPost, "/", nil)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error":"webhook_error"}`, rec.Body.String())
	})
}

func TestClassifyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{
			name:    "wrapped domain conflict keeps the domain message",
			err:     handler.ErrConflict.Wrap(errPlanTaken),
			status:  http.StatusConflict,
			code:    "conflict",
			message: errPlanTaken.Error(),
		},
		{
			name:    "bare http error",
			err:     handler.ErrNotFound,
			status:  http.StatusNotFound,
			code:    "not_found",
			message: "not_found",
		},
		{
			name:    "server errors hide the cause",
			err:     handler.ErrBadGateway.Wrap(errors.New("stripe: connection reset")),
			status:  http.StatusBadGateway,
			code:    "bad_gateway",
			message: "Bad Gateway",
		},
		{
			name:    "unknown error",
			err:     errors.New("pg: connection refused"),
			status:  http.StatusInternalServerError,
			code:    "internal_server_error",
			message: "Internal Server Error",
		},
		{
			name:   "invalid json",
			err:    fmt.Errorf("%w: empty body", binder.ErrInvalidJSON),
			status: http.StatusBadRequest,
			code:   "bad_request",
		},
		{
			name:   "body too large",
			err:    binder.ErrBodyTooLarge,
			status: http.StatusRequestEntityTooLarge,
			code:   "request_entity_too_large",
		},
		{
			name:   "missing content type",
			err:    binder.ErrMissingContentType,
			status: http.StatusUnsupportedMediaType,
			code:   "unsupported_media_type",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			status, detail := handler.ClassifyError(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, detail.Code)
			if tt.message != "" {
				assert.Equal(t, tt.message, detail.Message)
			}
		})
	}

	t.Run("validation errors render as 422", func(t *testing.T) {
		t.Parallel()
		status, detail := handler.ClassifyError(validator.Apply(validator.Required("plan", "")))
		assert.Equal(t, http.StatusUnprocessableEntity, status)
		assert.Equal(t, "validation_error", detail.Code)
		assert.Equal(t, map[string][]string{"plan": {"field is required"}}, detail.Details)
	})

	t.Run("wrapped validation errors keep details and take the wrapper status", func(t *testing.T) {
		t.Parallel()
		err := errors.Join(errors.New("billing: invalid plan"), validator.Apply(validator.Required("plan", "")))
		status, detail := handler.ClassifyError(handler.ErrBadRequest.Wrap(err))
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "validation_error", detail.Code)
		assert.Equal(t, map[string][]string{"plan": {"field is required"}}, detail.Details)
	})

	t.Run("wrapped error matches both", func(t *testing.T) {
		t.Parallel()
		err := handler.ErrConflict.Wrap(errPlanTaken)
		assert.ErrorIs(t, err, handler.ErrConflict)
		assert.ErrorIs(t, err, errPlanTaken)
		assert.Equal(t, handler.ErrConflict, handler.ErrConflict.Wrap(nil))
	})
}

func TestWrap(t *testing.T) {
	t.Parallel()

	echo := func(ctx handler.Context, req planRequest) handler.Response {
		if req.Plan == "taken" {
			return handler.JSONError(handler.ErrConflict.Wrap(errPlanTaken))
		}
		return handler.JSON(req)
	}
	h := handler.Wrap(echo, handler.WithBinders[handler.Context, planRequest](binder.BindJSON()))

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/billing/subscribe", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	t.Run("binds and renders", func(t *testing.T) {
		t.Parallel()
		rec := post(`{"plan":"pro"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, map[string]any{"plan": "pro"}, decode(t, rec).Data)
	})

	t.Run("bind failure goes to the error handler", func(t *testing.T) {
		t.Parallel()
		rec := post(`{"plan":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "bad_request", decode(t, rec).Error.Code)
	})

	t.Run("handler error", func(t *testing.T) {
		t.Parallel()
		rec := post(`{"plan":"taken"}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, errPlanTaken.Error(), decode(t, rec).Error.Message)
	})

	t.Run("skips inapplicable binders", func(t *testing.T) {
		t.Parallel()
		skip := func(*http.Request, any) error { return binder.ErrBinderNotApplicable }
		h := handler.Wrap(echo, handler.WithBinders[handler.Context, planRequest](skip))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("nil response", func(t *testing.T) {
		t.Parallel()
		var got error
		h := handler.Wrap(
			func(handler.Context, planRequest) handler.Response { return nil },
			handler.WithErrorHandler[handler.Context, planRequest](func(ctx handler.Context, err error) {
				got = err
				ctx.ResponseWriter().WriteHeader(http.StatusTeapot)
			}),
		)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusTeapot, rec.Code)
		assert.ErrorIs(t, got, handler.ErrNilResponse)
	})

	t.Run("decorators run outermost first", func(t *testing.T) {
		t.Parallel()
		var order []string
		mark := func(name string) handler.Decorator[handler.Context, planRequest] {
			return func(next handler.HandlerFunc[handler.Context, planRequest]) handler.HandlerFunc[handler.Context, planRequest] {
				return func(ctx handler.Context, req planRequest) handler.Response {
					order = append(order, name)
					return next(ctx, req)
				}
			}
		}
		h := handler.Wrap(echo, handler.WithDecorators(mark("outer"), mark("inner")))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, []string{"outer", "inner"}, order)
	})
}

func TestNewErrorHandler(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.New(logger.WithOutput(&buf), logger.WithFormat(logger.FormatJSON))
	eh := handler.NewErrorHandler(log)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/billing/cancel-subscription", nil)
	eh(handler.NewContext(rec, req), errors.New("pg: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, buf.String(), `"level":"ERROR"`)
	assert.Contains(t, buf.String(), `"path":"/billing/cancel-subscription"`)
	assert.NotContains(t, rec.Body.String(), "pg: connection refused")
}

func TestRedirect(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	require.NoError(t, handler.Redirect("https://app.example.com/billing?checkout=success").
		Render(rec, httptest.NewRequest(http.MethodGet, "/billing/stripe-success", nil)))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "https://app.example.com/billing?checkout=success", rec.Header().Get("Location"))
}
