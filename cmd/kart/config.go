package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/checkout"
	"github.com/xenking/kart-checkout/internal/domain/pricing"
)

// Config is the shopper CLI configuration, loaded from KART_CLI_ environment
// variables and an optional YAML file. Money values are decimal strings.
type Config struct {
	APIURL    string         `default:"http://localhost:8080" env:"API_URL" yaml:"api_url" usage:"Storefront API base URL"`
	StateDir  string         `env:"STATE_DIR" yaml:"state_dir" usage:"Directory holding basket snapshots, session and receipt"`
	Quota     int64          `default:"5242880" env:"QUOTA" yaml:"quota" usage:"Local storage quota in bytes"`
	Timeout   time.Duration  `default:"15s" env:"TIMEOUT" yaml:"timeout" usage:"Per-request timeout"`
	Migration string         `default:"merge" env:"MIGRATION" yaml:"migration" usage:"Guest basket handling on login: merge or replace"`
	Currency  string         `default:"INR" env:"CURRENCY" yaml:"currency" usage:"Payment currency"`
	Tax       TaxConfig      `env:"TAX" yaml:"tax"`
	Shipping  ShippingConfig `env:"SHIPPING" yaml:"shipping"`
	COD       CODConfig      `env:"COD" yaml:"cod"`
}

// TaxConfig is the inclusive two-band tax.
type TaxConfig struct {
	Threshold string `default:"999" env:"THRESHOLD" yaml:"threshold"`
	LowRate   string `default:"0.05" env:"LOW_RATE" yaml:"low_rate"`
	HighRate  string `default:"0.12" env:"HIGH_RATE" yaml:"high_rate"`
}

// ShippingConfig is the storefront shipping policy. Disabled means the
// policy is absent and shipping is free.
type ShippingConfig struct {
	Enabled       bool   `default:"false" env:"ENABLED" yaml:"enabled"`
	FreeThreshold string `default:"0" env:"FREE_THRESHOLD" yaml:"free_threshold"`
	ForcePaid     bool   `default:"false" env:"FORCE_PAID" yaml:"force_paid"`
	Cost          string `default:"0" env:"COST" yaml:"cost"`
}

// CODConfig controls cash on delivery.
type CODConfig struct {
	Minimum   string `default:"500" env:"MINIMUM" yaml:"minimum"`
	Surcharge string `default:"50" env:"SURCHARGE" yaml:"surcharge"`
}

// LoadConfig reads the configuration. Flags are parsed by main.
func LoadConfig() (*Config, error) {
	var cfg Config
	files := []string{"kart.yaml"}
	if dir, err := os.UserConfigDir(); err == nil {
		files = append(files, filepath.Join(dir, "kart", "config.yaml"))
	}
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "KART_CLI",
		SkipFlags: true,
		Files:     files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	if cfg.StateDir == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, errors.Wrap(err, "resolve state dir")
		}
		cfg.StateDir = filepath.Join(dir, "kart")
	}
	return &cfg, nil
}

// MigrationPolicy maps the configured name.
func (c *Config) MigrationPolicy() (cart.Policy, error) {
	switch c.Migration {
	case "", "merge":
		return cart.PolicyMerge, nil
	case "replace":
		return cart.PolicyReplace, nil
	default:
		return 0, errors.Errorf("unknown migration policy %q", c.Migration)
	}
}

// Policy builds the checkout policy.
func (c *Config) Policy() (checkout.Policy, error) {
	p := checkout.Policy{Currency: c.Currency}

	var err error
	parse := func(name, v string) decimal.Decimal {
		if err != nil {
			return decimal.Zero
		}
		d, perr := decimal.NewFromString(v)
		switch {
		case perr != nil:
			err = errors.Wrapf(perr, "parse %s", name)
		case d.IsNegative():
			err = errors.Errorf("%s must be non-negative", name)
		}
		return d
	}

	p.Tax = pricing.TaxPolicy{
		Threshold: parse("tax threshold", c.Tax.Threshold),
		LowRate:   parse("tax low rate", c.Tax.LowRate),
		HighRate:  parse("tax high rate", c.Tax.HighRate),
	}
	p.CODMinimum = parse("cod minimum", c.COD.Minimum)
	p.CODSurcharge = parse("cod surcharge", c.COD.Surcharge)
	if c.Shipping.Enabled {
		p.Shipping = &pricing.ShippingPolicy{
			FreeShippingThreshold: parse("free shipping threshold", c.Shipping.FreeThreshold),
			ForcePaidShipping:     c.Shipping.ForcePaid,
			DefaultShippingCost:   parse("shipping cost", c.Shipping.Cost),
		}
	}
	if err != nil {
		return checkout.Policy{}, err
	}
	if p.Currency == "" {
		p.Currency = "INR"
	}
	return p, nil
}
