// Package mongo connects to MongoDB for the tenant store.
//
// Connect retries until the server answers a ping, the way pkg/pg and
// pkg/redis do, and Database opens the configured database:
//
//	client, err := mongo.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Disconnect(context.Background())
//	repo := subscription.NewMongoRepository(mongo.Database(client, cfg))
//
// Healthcheck returns a ping func for the readiness endpoint.
package mongo
