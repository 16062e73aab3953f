// Package pg opens pgx connection pools and applies embedded goose
// migrations.
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//	pool, err := pg.Connect(ctx, cfg)
//	...
//	err = pg.Migrate(ctx, pool, migrations.FS, cfg, log)
package pg
