package gateway

import (
	"strings"

	"github.com/google/uuid"
)

var idempotencyNamespace = uuid.MustParse("8b3c1f0e-5a61-4c2f-9a57-2f1e0f9d6b41")

// IdempotencyKey derives a stable key for op from its inputs. Retrying the
// same call yields the same key, so the provider collapses duplicates.
func IdempotencyKey(op string, parts ...string) string {
	name := op + "\x00" + strings.Join(parts, "\x00")
	return op + "-" + uuid.NewSHA1(idempotencyNamespace, []byte(name)).String()
}

func keyOr(explicit, op string, parts ...string) string {
	if explicit != "" {
		return explicit
	}
	return IdempotencyKey(op, parts...)
}
