package requestid_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/requestid"
)

func serve(t *testing.T, header string) (seen string, echoed string) {
	t.Helper()
	h := requestid.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestid.FromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/billing/check-subscription", nil)
	if header != "" {
		req.Header.Set(requestid.Header, header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return seen, rec.Header().Get(requestid.Header)
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("reuses a valid client id", func(t *testing.T) {
		t.Parallel()
		seen, echoed := serve(t, "req_abc-123")
		assert.Equal(t, "req_abc-123", seen)
		assert.Equal(t, seen, echoed)
	})

	for name, header := range map[string]string{
		"missing":   "",
		"malformed": "bad id;drop table",
		"too long":  strings.Repeat("a", 129),
	} {
		t.Run("generates when "+name, func(t *testing.T) {
			t.Parallel()
			seen, echoed := serve(t, header)
			_, err := uuid.Parse(seen)
			require.NoError(t, err)
			assert.Equal(t, seen, echoed)
		})
	}
}

func TestFromContext(t *testing.T) {
	t.Parallel()

	assert.Empty(t, requestid.FromContext(context.Background()))
	//nolint:staticcheck // nil context is tolerated
	assert.Empty(t, requestid.FromContext(nil))
	assert.Equal(t, "r1", requestid.FromContext(requestid.WithContext(context.Background(), "r1")))
}

func TestLoggerExtractor(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.New(
		logger.WithOutput(&buf),
		logger.WithFormat(logger.FormatJSON),
		logger.WithContextExtractors(requestid.LoggerExtractor()),
	)

	log.InfoContext(requestid.WithContext(context.Background(), "req_42"), "handled")
	log.InfoContext(context.Background(), "background")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"request_id":"req_42"`)
	assert.NotContains(t, lines[1], "request_id")
}
