package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/billingkit/migrations"
	"github.com/dmitrymomot/billingkit/pkg/config"
	"github.com/dmitrymomot/billingkit/pkg/httpserver"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/mongo"
	"github.com/dmitrymomot/billingkit/pkg/pg"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

// backend is the persistence chosen by STORE_DRIVER. pool is set only for
// postgres, which also hosts the notification queue.
type backend struct {
	repo   subscription.Repository
	pool   *pgxpool.Pool
	checks []httpserver.Check
	close  func()
}

func openBackend(ctx context.Context, driver string, log *slog.Logger) (*backend, error) {
	switch driver {
	case driverMemory, "":
		log.WarnContext(ctx, "using in-memory store, state is lost on restart")
		return &backend{repo: subscription.NewMemoryRepository(), close: func() {}}, nil

	case driverPostgres:
		var cfg pg.Config
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		pool, err := pg.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := pg.Migrate(ctx, pool, migrations.FS, cfg, log.With(logger.Component("migrate"))); err != nil {
				pool.Close()
				return nil, err
			}
		}
		return &backend{
			repo:   subscription.NewPostgresRepository(pool),
			pool:   pool,
			checks: []httpserver.Check{{Name: "postgres", Fn: pg.Healthcheck(pool)}},
			close:  pool.Close,
		}, nil

	case driverMongo:
		var cfg mongo.Config
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		client, err := mongo.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		repo := subscription.NewMongoRepository(mongo.Database(client, cfg))
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.WithoutCancel(ctx))
			return nil, err
		}
		return &backend{
			repo:   repo,
			checks: []httpserver.Check{{Name: "mongo", Fn: mongo.Healthcheck(client)}},
			close: func() {
				if err := client.Disconnect(context.Background()); err != nil {
					log.Error("mongo disconnect", logger.Error(err))
				}
			},
		}, nil
	}
	return nil, fmt.Errorf("unknown STORE_DRIVER %q", driver)
}
