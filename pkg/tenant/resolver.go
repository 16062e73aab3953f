package tenant

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// DefaultHeader carries the tenant ID on authenticated billing routes.
const DefaultHeader = "X-Tenant-ID"

// Resolver extracts the tenant ID from a request. It returns ErrMissingTenant
// when the request carries none and ErrInvalidIdentifier when it is malformed.
type Resolver interface {
	Resolve(r *http.Request) (uuid.UUID, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(r *http.Request) (uuid.UUID, error)

func (f ResolverFunc) Resolve(r *http.Request) (uuid.UUID, error) {
	return f(r)
}

// HeaderResolver reads the tenant ID from a request header.
type HeaderResolver struct {
	Header string
}

func NewHeaderResolver(header string) *HeaderResolver {
	if header == "" {
		header = DefaultHeader
	}
	return &HeaderResolver{Header: header}
}

func (h *HeaderResolver) Resolve(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(r.Header.Get(h.Header))
	if raw == "" {
		return uuid.Nil, ErrMissingTenant
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, ErrInvalidIdentifier
	}
	return id, nil
}
