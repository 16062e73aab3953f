package queue_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/queue"
)

func TestNewTaskHandler(t *testing.T) {
	t.Parallel()

	var got invoiceEmail
	h := queue.NewTaskHandler(func(_ context.Context, p invoiceEmail) error {
		got = p
		return nil
	})
	assert.Equal(t, "queue_test.invoiceEmail", h.Name())

	require.NoError(t, h.Handle(context.Background(), json.RawMessage(`{"tenant_id":"t1","amount":10}`)))
	assert.Equal(t, invoiceEmail{TenantID: "t1", Amount: 10}, got)

	assert.Error(t, h.Handle(context.Background(), json.RawMessage(`{"amount":"ten"}`)))
}

func TestNewNamedTaskHandler(t *testing.T) {
	t.Parallel()

	h := queue.NewNamedTaskHandler("invoice", func(context.Context, invoiceEmail) error { return nil })
	assert.Equal(t, "invoice", h.Name())
}
