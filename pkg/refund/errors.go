package refund

import "errors"

// ErrRefundFailed wraps any provider failure while deciding or issuing a refund.
// Callers must not cancel or persist anything when they see it.
var ErrRefundFailed = errors.New("refund: provider call failed")
