// Command billingd serves the billing API and webhook endpoint and runs the
// notification worker.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/billingkit/modules/billing"
	"github.com/dmitrymomot/billingkit/pkg/email"
	"github.com/dmitrymomot/billingkit/pkg/gateway"
	"github.com/dmitrymomot/billingkit/pkg/httpserver"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/queue"
	"github.com/dmitrymomot/billingkit/pkg/redis"
	"github.com/dmitrymomot/billingkit/pkg/requestid"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
	"github.com/dmitrymomot/billingkit/pkg/tenant"
	billingsvc "github.com/dmitrymomot/billingkit/svc/billing"
	"github.com/dmitrymomot/billingkit/svc/notify"
)

func main() {
	cfg, err := loadConfigs()
	if err != nil {
		slog.Error("load config", logger.Error(err))
		os.Exit(1)
	}

	opts := []logger.Option{
		logger.WithEnvironment(cfg.app.Env, cfg.app.Name),
		logger.WithContextExtractors(requestid.LoggerExtractor(), tenant.LoggerExtractor()),
	}
	if cfg.app.LogLevel != "" {
		opts = append(opts, logger.WithLevelName(cfg.app.LogLevel))
	}
	log := logger.New(opts...)
	logger.SetAsDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("billingd stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg configs, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	catalog, err := loadCatalog(cfg.billing.PlansFile)
	if err != nil {
		return err
	}

	be, err := openBackend(ctx, cfg.app.StoreDriver, log)
	if err != nil {
		return err
	}
	defer be.close()

	metrics := billingsvc.NewMetrics(reg)
	store := subscription.NewStore(be.repo,
		subscription.WithConflictHook(metrics.StoreConflict),
		subscription.WithStoreLogger(log),
	)

	gw := gateway.NewStripeFromConfig(cfg.stripe)

	var tasks interface {
		queue.EnqueuerRepository
		queue.WorkerRepository
	} = queue.NewMemoryStorage()
	if be.pool != nil {
		tasks = queue.NewPostgresStorage(be.pool)
	}
	enq, err := queue.NewEnqueuer(tasks,
		queue.WithDefaultQueue(cfg.queue.Name),
		queue.WithDefaultMaxRetries(cfg.queue.MaxRetries),
	)
	if err != nil {
		return err
	}

	svc := billingsvc.NewService(store, gw, catalog,
		billingsvc.WithConfig(cfg.billing),
		billingsvc.WithLogger(log),
		billingsvc.WithMetrics(metrics),
		billingsvc.WithNotifier(notify.NewQueueNotifier(enq)),
	)

	checks := be.checks
	dedup := billingsvc.Deduper(billingsvc.NewMemoryDeduper(cfg.billing.DedupTTL, billingsvc.WithClaimLease(cfg.billing.DedupLease)))
	if cfg.redis.Enabled {
		client, err := redis.Connect(ctx, cfg.redis)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		dedup = billingsvc.NewRedisDeduper(client, cfg.billing.DedupTTL, billingsvc.WithClaimLease(cfg.billing.DedupLease))
		checks = append(checks, httpserver.Check{Name: "redis", Fn: redis.Healthcheck(client)})
	}

	sender, err := email.NewSender(cfg.email)
	if err != nil {
		return err
	}
	mailer := notify.NewMailer(sender, catalog,
		notify.WithConfig(cfg.notify),
		notify.WithMailerLogger(log),
	)
	worker, err := queue.NewWorker(tasks,
		queue.WithConfig(cfg.queue),
		queue.WithWorkerLogger(log),
		queue.WithResultHook(notify.NewMetrics(reg).TaskResult),
	)
	if err != nil {
		return err
	}
	worker.RegisterHandlers(mailer.Handler())

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Get("/health/live", httpserver.Liveness())
	r.Get("/health/ready", httpserver.Readiness(log, cfg.http.HealthTimeout, checks...))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Mount("/billing", billing.Router(billing.RouterOptions{
		Service:         svc,
		Webhooks:        billingsvc.NewProcessor(svc, billingsvc.WithDeduper(dedup)),
		Tenants:         billing.StoreTenants(store),
		Logger:          log,
		SuccessRedirect: cfg.app.SuccessRedirect,
		CancelRedirect:  cfg.app.CancelRedirect,
	}))

	server := httpserver.NewFromConfig(cfg.http, httpserver.WithLogger(log))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(ctx, r) })
	g.Go(worker.Run(ctx))

	log.InfoContext(ctx, "billingd started",
		slog.String("addr", cfg.http.Addr),
		slog.String("store", cfg.app.StoreDriver),
		slog.Bool("redis_dedup", cfg.redis.Enabled),
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func loadCatalog(path string) (*subscription.Catalog, error) {
	if path == "" {
		return subscription.DefaultCatalog()
	}
	return subscription.LoadCatalog(path)
}
