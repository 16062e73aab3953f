package notify

type Config struct {
	ProductName  string `env:"NOTIFY_PRODUCT_NAME" envDefault:"Billingkit"`
	DashboardURL string `env:"NOTIFY_DASHBOARD_URL" envDefault:"http://localhost:8080/billing"`
}
