package gateway

import "time"

// Config is loaded from STRIPE_* environment variables.
type Config struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY,required"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET,required"`

	// APIURL points the client at stripe-mock or a recording proxy.
	APIURL            string        `env:"STRIPE_API_URL"`
	MaxNetworkRetries int64         `env:"STRIPE_MAX_NETWORK_RETRIES" envDefault:"2"`
	WebhookTolerance  time.Duration `env:"STRIPE_WEBHOOK_TOLERANCE" envDefault:"5m"`
}
