// Package config loads engine settings from a config file with
// environment overrides.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/veloxio/creditmeter/pricing"
)

// Config holds everything needed to wire an engine.
type Config struct {
	Store struct {
		// Driver selects the backend: memory, postgres, or mongo.
		Driver   string `mapstructure:"driver"`
		DSN      string `mapstructure:"dsn"`
		Database string `mapstructure:"database"` // mongo only
	} `mapstructure:"store"`

	Redis struct {
		// Addr enables the shared Redis tier cache when non-empty.
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	Engine struct {
		TierTTL         time.Duration `mapstructure:"tier_ttl"`
		RecordTTL       time.Duration `mapstructure:"record_ttl"`
		MidAllowance    float64       `mapstructure:"mid_allowance"`
		TopDefaultLimit float64       `mapstructure:"top_default_limit"`
		MinCustomLimit  float64       `mapstructure:"min_custom_limit"`
		RevisionRetries int           `mapstructure:"revision_retries"`
	} `mapstructure:"engine"`

	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"metrics"`

	// Pricing overrides the built-in price table when non-empty.
	Pricing map[string]pricing.Provider `mapstructure:"pricing"`
}

// Load reads the config file at path. Environment variables prefixed
// with CREDITMETER override file values.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("CREDITMETER")
	v.AutomaticEnv()

	setDefaults(v)

	var c Config
	if err := v.ReadInConfig(); err != nil {
		return c, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("config: unmarshal: %w", err)
	}
	return c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "memory")
	v.SetDefault("engine.tier_ttl", 5*time.Minute)
	v.SetDefault("engine.record_ttl", 30*time.Second)
	v.SetDefault("engine.mid_allowance", 5.0)
	v.SetDefault("engine.top_default_limit", 10.0)
	v.SetDefault("engine.min_custom_limit", 5.0)
	v.SetDefault("engine.revision_retries", 3)
}

// PriceTable builds the pricing table from the config, falling back to
// the built-in defaults when no pricing section is present.
func (c Config) PriceTable() *pricing.Table {
	if len(c.Pricing) == 0 {
		return pricing.DefaultTable()
	}
	return pricing.NewTable(c.Pricing)
}
