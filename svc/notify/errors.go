package notify

import "errors"

var (
	ErrUnknownEvent     = errors.New("notify: unknown notification event")
	ErrMissingRecipient = errors.New("notify: notification has no recipient")
)
