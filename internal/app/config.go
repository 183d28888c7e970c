package app

import (
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/fbccsz/yshpics/internal/domain/order"
	"github.com/fbccsz/yshpics/internal/handler"
)

// Config holds the complete application configuration, loadable from
// environment variables (YSHPICS_ prefix), flags, or YAML config files.
type Config struct {
	Addr          string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL   string `usage:"PostgreSQL connection URL (YSHPICS_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	SessionSecret string `usage:"HMAC secret for seller session tokens" flag:"session-secret"`
	OwnerEmail    string `usage:"Email of the seller account that administers the platform" flag:"owner-email"`
	PublicBaseURL string `default:"http://localhost:8080" usage:"Externally reachable base URL, used for links and webhooks" flag:"public-base-url"`
	Assets        AssetsConfig
	Payments      PaymentsConfig
	Downloads     DownloadsConfig
	RateLimit     RateLimitConfig
	CORS          CORSConfig
	Graceful      GracefulConfig
}

// AssetsConfig locates photo renditions on disk.
type AssetsConfig struct {
	PublicDir  string `default:"./static" usage:"Directory of public previews" flag:"public-dir"`
	PrivateDir string `default:"./private" usage:"Directory of original photos" flag:"private-dir"`
}

// PaymentsConfig controls charge generation at Mercado Pago.
type PaymentsConfig struct {
	BaseURL           string        `default:"https://api.mercadopago.com" usage:"Mercado Pago API base URL" flag:"mp-base-url"`
	Timeout           time.Duration `default:"20s" usage:"Timeout of one charge generation" flag:"mp-timeout"`
	ChargeTTL         time.Duration `default:"30m" usage:"How long a PIX charge stays payable" flag:"charge-ttl"`
	CommissionRate    string        `default:"0.10" usage:"Platform commission rate for starter sellers" flag:"commission-rate"`
	CommissionMinimum string        `default:"0.50" usage:"Minimum commission in BRL" flag:"commission-minimum"`
	Description       string        `default:"Compra de Fotos" usage:"Charge description prefix" flag:"charge-description"`
}

// DownloadsConfig controls the download gate.
type DownloadsConfig struct {
	Window      time.Duration `default:"168h" usage:"How long after purchase downloads stay available" flag:"download-window"`
	Concurrency int           `default:"4" usage:"Files read in parallel while building an archive" flag:"download-concurrency"`
}

// RateLimitConfig controls the per-client token bucket rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "YSHPICS",
		Files:     []string{"config.yaml", "/etc/yshpics/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's YSHPICS_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
	c.PublicBaseURL = strings.TrimRight(c.PublicBaseURL, "/")
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set YSHPICS_DATABASE_URL or DATABASE_URL")
	}
	if len(c.SessionSecret) < 32 {
		return errors.New("session secret must be at least 32 bytes: set YSHPICS_SESSION_SECRET")
	}
	if _, err := c.Payments.CommissionPolicy(); err != nil {
		return err
	}
	return nil
}

// CommissionPolicy parses the configured commission rate and minimum.
func (p PaymentsConfig) CommissionPolicy() (order.CommissionPolicy, error) {
	rate, err := decimal.NewFromString(p.CommissionRate)
	if err != nil {
		return order.CommissionPolicy{}, errors.Wrap(err, "commission rate")
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return order.CommissionPolicy{}, errors.Errorf("commission rate %s out of range [0, 1)", rate)
	}
	minimum, err := decimal.NewFromString(p.CommissionMinimum)
	if err != nil {
		return order.CommissionPolicy{}, errors.Wrap(err, "commission minimum")
	}
	if minimum.IsNegative() {
		return order.CommissionPolicy{}, errors.Errorf("commission minimum %s is negative", minimum)
	}
	return order.CommissionPolicy{Rate: rate, Minimum: minimum}, nil
}

// NotificationURL is the webhook endpoint given to the processor.
func (c *Config) NotificationURL() string {
	return c.PublicBaseURL + handler.WebhookPath
}
