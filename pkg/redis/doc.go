// Package redis wraps go-redis with the helpers the billing service needs:
//
//   - Connect retries the initial ping using Config.
//   - Claims implements first-come key claims (SETNX with a TTL), used to
//     drop duplicate webhook deliveries.
//   - Healthcheck plugs Redis into readiness probes.
//
// Config is populated from REDIS_* environment variables via caarlos0/env.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	claims := redis.NewClaims(client, "billing:webhook:", 72*time.Hour)
//	first, err := claims.Claim(ctx, eventID)
package redis
