package tenant

import "errors"

var (
	ErrMissingTenant     = errors.New("tenant: missing tenant identifier")
	ErrInvalidIdentifier = errors.New("tenant: invalid tenant identifier")
	ErrTenantNotFound    = errors.New("tenant: tenant not found")
	ErrNoTenantInContext = errors.New("tenant: no tenant in context")
)
