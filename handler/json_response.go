package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrymomot/billingkit/binder"
	"github.com/dmitrymomot/billingkit/pkg/validator"
)

// JSONResponse is the standard JSON response structure
type JSONResponse struct {
	Data  any            `json:"data,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
	Error *ErrorDetail   `json:"error,omitempty"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string              `json:"code,omitempty"`
	Message string              `json:"message,omitempty"`
	Details map[string][]string `json:"details,omitempty"`
}

type jsonResponse struct {
	status int
	body   any
}

func (j jsonResponse) Render(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(j.status)
	return json.NewEncoder(w).Encode(j.body)
}

// JSONOption configures JSON response
type JSONOption func(*jsonResponse)

// WithJSONStatus sets custom HTTP status code
func WithJSONStatus(status int) JSONOption {
	return func(r *jsonResponse) {
		r.status = status
	}
}

// WithJSONMeta adds metadata to an enveloped response.
func WithJSONMeta(meta map[string]any) JSONOption {
	return func(r *jsonResponse) {
		if env, ok := r.body.(JSONResponse); ok {
			env.Meta = meta
			r.body = env
		}
	}
}

// JSON wraps v in the {"data": ...} envelope with status 200.
func JSON(v any, opts ...JSONOption) Response {
	r := &jsonResponse{status: http.StatusOK, body: JSONResponse{Data: v}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RawJSON writes v as the whole body, without the envelope. Webhook
// acknowledgements use it because the provider expects a fixed shape.
func RawJSON(status int, v any) Response {
	return &jsonResponse{status: status, body: v}
}

// JSONError renders err in the {"error": ...} envelope with the status
// ClassifyError picks.
func JSONError(err error, opts ...JSONOption) Response {
	status, detail := ClassifyError(err)
	r := &jsonResponse{status: status, body: JSONResponse{Error: detail}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ClassifyError maps err to a status and the detail shown to the client.
// Validation errors render with their field details and status 422, unless
// an HTTPError in the chain picks another status. Server errors never expose
// the underlying message.
func ClassifyError(err error) (int, *ErrorDetail) {
	httpErr := ErrInternalServerError
	explicit := errors.As(err, &httpErr)

	if verrs := validator.ExtractValidationErrors(err); verrs != nil {
		status := http.StatusUnprocessableEntity
		if explicit {
			status = httpErr.Code
		}
		return status, &ErrorDetail{
			Code:    "validation_error",
			Message: verrs.Error(),
			Details: verrs.Map(),
		}
	}

	if !explicit {
		switch {
		case errors.Is(err, binder.ErrBodyTooLarge):
			httpErr = ErrRequestEntityTooLarge
		case errors.Is(err, binder.ErrUnsupportedMediaType), errors.Is(err, binder.ErrMissingContentType):
			httpErr = ErrUnsupportedMediaType
		case errors.Is(err, binder.ErrInvalidJSON), errors.Is(err, binder.ErrInvalidQuery):
			httpErr = ErrBadRequest
		}
	}

	detail := &ErrorDetail{Code: httpErr.Key, Message: http.StatusText(httpErr.Code)}
	if httpErr.Code < http.StatusInternalServerError && err != nil {
		detail.Message = err.Error()
	}
	return httpErr.Code, detail
}
