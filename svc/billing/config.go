package billing

import "time"

// Config holds billing settings loaded from the environment.
type Config struct {
	BaseURL         string        `env:"BILLING_BASE_URL" envDefault:"http://localhost:8080"`
	PlansFile       string        `env:"BILLING_PLANS_FILE"`
	DedupTTL        time.Duration `env:"BILLING_DEDUP_TTL" envDefault:"72h"`
	DedupLease      time.Duration `env:"BILLING_DEDUP_LEASE" envDefault:"5m"`
	ProviderTimeout time.Duration `env:"BILLING_PROVIDER_TIMEOUT" envDefault:"15s"`
}
