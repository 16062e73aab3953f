package main

import (
	"github.com/dmitrymomot/billingkit/pkg/config"
	"github.com/dmitrymomot/billingkit/pkg/email"
	"github.com/dmitrymomot/billingkit/pkg/gateway"
	"github.com/dmitrymomot/billingkit/pkg/httpserver"
	"github.com/dmitrymomot/billingkit/pkg/queue"
	"github.com/dmitrymomot/billingkit/pkg/redis"
	billingsvc "github.com/dmitrymomot/billingkit/svc/billing"
	"github.com/dmitrymomot/billingkit/svc/notify"
)

// Store drivers accepted by STORE_DRIVER.
const (
	driverMemory   = "memory"
	driverMongo    = "mongo"
	driverPostgres = "postgres"
)

type appConfig struct {
	Env         string `env:"APP_ENV" envDefault:"development"`
	Name        string `env:"APP_NAME" envDefault:"billingd"`
	LogLevel    string `env:"LOG_LEVEL"`
	StoreDriver string `env:"STORE_DRIVER" envDefault:"memory"`

	// SuccessRedirect and CancelRedirect are where the browser lands after
	// checkout. Empty keeps the JSON responses.
	SuccessRedirect string `env:"BILLING_SUCCESS_REDIRECT"`
	CancelRedirect  string `env:"BILLING_CANCEL_REDIRECT"`
}

type configs struct {
	app     appConfig
	http    httpserver.Config
	stripe  gateway.Config
	billing billingsvc.Config
	redis   redis.Config
	queue   queue.Config
	email   email.Config
	notify  notify.Config
}

func loadConfigs() (configs, error) {
	var c configs
	for _, load := range []func() error{
		func() error { return config.Load(&c.app) },
		func() error { return config.Load(&c.http) },
		func() error { return config.Load(&c.stripe) },
		func() error { return config.Load(&c.billing) },
		func() error { return config.Load(&c.redis) },
		func() error { return config.Load(&c.queue) },
		func() error { return config.Load(&c.email) },
		func() error { return config.Load(&c.notify) },
	} {
		if err := load(); err != nil {
			return c, err
		}
	}
	return c, nil
}
