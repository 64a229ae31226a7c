package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (URBANCART_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (URBANCART_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	TokenPepper string `usage:"HMAC pepper for bearer token hashing (URBANCART_TOKEN_PEPPER)" flag:"token-pepper"`
	ShippingFee string `default:"60" usage:"Flat shipping fee added to every order total" flag:"shipping-fee"`
	Payments    PaymentsConfig
	SMTP        SMTPConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// PaymentsConfig controls the payment confirmation flow.
type PaymentsConfig struct {
	GatewayURL     string        `default:"https://sandbox.sslcommerz.com/gwprocess/v4" usage:"Hosted gateway page URL" flag:"gateway-url"`
	CodeTTL        time.Duration `default:"3m"  usage:"One-time confirmation code lifetime" flag:"code-ttl"`
	ResendCooldown time.Duration `default:"60s" usage:"Minimum interval between code sends per order" flag:"resend-cooldown"`
}

// SMTPConfig controls outbound notification email. An empty Host disables
// email delivery entirely.
type SMTPConfig struct {
	Host     string `usage:"SMTP server host; empty disables email" flag:"smtp-host"`
	Port     int    `default:"587" usage:"SMTP server port" flag:"smtp-port"`
	Username string `usage:"SMTP username" flag:"smtp-username"`
	Password string `usage:"SMTP password" flag:"smtp-password"`
	From     string `default:"no-reply@urbancart.example" usage:"Sender address" flag:"smtp-from"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
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
		EnvPrefix: "URBANCART",
		Files:     []string{"config.yaml", "/etc/urbancart/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set URBANCART_DATABASE_URL or DATABASE_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's URBANCART_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
