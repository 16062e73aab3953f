package gateway

import "errors"

var (
	ErrInvalidSignature = errors.New("gateway: invalid webhook signature")
	ErrNotFound         = errors.New("gateway: resource not found")
	ErrProvider         = errors.New("gateway: provider request failed")
	ErrDecodeEvent      = errors.New("gateway: cannot decode event payload")
	ErrUnexpectedObject = errors.New("gateway: event carries a different object type")
	ErrMissingParam     = errors.New("gateway: required parameter missing")
)
