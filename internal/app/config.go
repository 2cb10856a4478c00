package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (KART_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (KART_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL string `default:"" usage:"Base URL for product images (e.g. https://cdn.example.com/images)" flag:"image-base-url"`
	Migrate      bool   `default:"true" usage:"Apply the embedded schema on startup"`
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
	Kafka        KafkaConfig
	Prefilter    PrefilterConfig
}

// RateLimitConfig controls the per-client token bucket on discount
// validation.
type RateLimitConfig struct {
	Rate  float64 `default:"2"  usage:"Sustained discount validations per second per client"`
	Burst int     `default:"10" usage:"Discount validation burst per client"`
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

// KafkaConfig enables order events. No brokers disables publishing.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka brokers for order events"`
	Topic   string   `default:"order.placed" usage:"Topic for placed orders"`
}

// PrefilterConfig sizes the known-code bloom filter consulted before
// discount lookups.
type PrefilterConfig struct {
	Enabled       bool          `default:"true"   usage:"Reject unknown discount codes without a database lookup"`
	ExpectedCodes uint          `default:"100000" usage:"Expected number of discount codes"`
	FalsePositive float64       `default:"0.001"  usage:"Bloom filter false positive rate"`
	Refresh       time.Duration `default:"1m"     usage:"How often the filter is rebuilt from the database"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "KART",
		Files:     []string{"config.yaml", "/etc/kart/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set KART_DATABASE_URL or DATABASE_URL")
	case c.RateLimit.Rate <= 0 || c.RateLimit.Burst <= 0:
		return errors.New("rate limit rate and burst must be positive")
	case c.Prefilter.Enabled && (c.Prefilter.FalsePositive <= 0 || c.Prefilter.FalsePositive >= 1):
		return errors.New("prefilter false positive rate must be in (0, 1)")
	case c.Prefilter.Enabled && c.Prefilter.Refresh <= 0:
		return errors.New("prefilter refresh must be positive")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's KART_-prefixed configuration.
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
