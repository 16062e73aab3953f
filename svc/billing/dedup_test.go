package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/gateway"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
	"github.com/dmitrymomot/billingkit/svc/billing"
)

func TestMemoryDeduper(t *testing.T) {
	t.Parallel()

	d := billing.NewMemoryDeduper(time.Hour)
	ctx := context.Background()

	first, err := d.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := d.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, again)

	other, err := d.Claim(ctx, "evt_2")
	require.NoError(t, err)
	assert.True(t, other)

	require.NoError(t, d.Release(ctx, "evt_1"))
	reclaimed, err := d.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, reclaimed)
}

func TestRedisDeduper(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	d := billing.NewRedisDeduper(client, time.Minute)
	ctx := context.Background()

	first, err := d.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, first)
	assert.True(t, mr.Exists("billing:webhook:evt_1"))

	again, err := d.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, again)

	mr.FastForward(2 * time.Minute)
	expired, err := d.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, expired)

	require.NoError(t, d.Release(ctx, "evt_1"))
	assert.False(t, mr.Exists("billing:webhook:evt_1"))
}

func TestProcessor_RedisUnavailableFailsOpen(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	e := newTestEnv(t)
	e.seed(func(sub *subscription.Subscription) { sub.CustomerID = "cus_1" })
	p := billing.NewProcessor(e.svc, billing.WithDeduper(billing.NewRedisDeduper(client, time.Minute)))

	require.NoError(t, p.Process(context.Background(), checkoutCompletedEvent("evt_1", "cus_1", "pi_1"), validSignature))
	assert.Equal(t, 1, e.notes.Count(billing.NotifySubscriptionInvoice))
}

func TestRedisDeduper_LeaseUntilCommit(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	d := billing.NewRedisDeduper(client, time.Hour, billing.WithClaimLease(time.Minute))
	ctx := context.Background()

	first, err := d.Claim(ctx, "evt_1")
	require.NoError(t, err)
	require.True(t, first)
	assert.Equal(t, time.Minute, mr.TTL("billing:webhook:evt_1"))

	require.NoError(t, d.Commit(ctx, "evt_1"))
	assert.Equal(t, time.Hour, mr.TTL("billing:webhook:evt_1"))
}

func TestProcessor_AbandonedClaimExpires(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	dedup := billing.NewRedisDeduper(client, time.Hour, billing.WithClaimLease(time.Minute))
	e := newTestEnv(t)
	var handled []string
	p := billing.NewProcessor(e.svc,
		billing.WithDeduper(dedup),
		billing.WithHandler("customer.created", billing.EventHandlerFunc(func(_ context.Context, ev *gateway.Event) error {
			handled = append(handled, ev.ID)
			return nil
		})),
	)
	ctx := context.Background()
	payload := eventPayload("evt_crash", "customer.created", `{}`)

	// A replica claimed the event and died before its handler finished.
	claimed, err := dedup.Claim(ctx, "evt_crash")
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, p.Process(ctx, payload, validSignature))
	assert.Empty(t, handled, "in-flight claim still blocks redelivery")

	mr.FastForward(2 * time.Minute)
	require.NoError(t, p.Process(ctx, payload, validSignature))
	assert.Equal(t, []string{"evt_crash"}, handled)

	// Processed events stay deduplicated past the lease.
	mr.FastForward(2 * time.Minute)
	require.NoError(t, p.Process(ctx, payload, validSignature))
	assert.Equal(t, []string{"evt_crash"}, handled)
	assert.True(t, mr.Exists("billing:webhook:evt_crash"))
}
