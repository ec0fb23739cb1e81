package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	Log        LogConfig      `mapstructure:"log"`
	Ops        OpsConfig      `mapstructure:"ops"`
	MySQL      DatabaseConfig `mapstructure:"mysql"`
	ClickHouse DatabaseConfig `mapstructure:"clickhouse"`
	Redis      RedisConfig    `mapstructure:"redis"`
	Kafka      KafkaConfig    `mapstructure:"kafka"`
	Provider   ProviderConfig `mapstructure:"provider"`
	Pricing    PricingConfig  `mapstructure:"pricing"`
	Billing    BillingConfig  `mapstructure:"billing"`
}

// ---- Leaf structs ----

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// OpsConfig is the health/metrics/admin listener.
type OpsConfig struct {
	Addr       string `mapstructure:"addr"`
	AdminToken string `mapstructure:"admin_token"`
	AdminRPS   int    `mapstructure:"admin_rps"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type KafkaConfig struct {
	Brokers        []string      `mapstructure:"brokers"`
	GroupID        string        `mapstructure:"group_id"`
	UsageTopic     string        `mapstructure:"usage_topic"`
	MinBytes       int           `mapstructure:"min_bytes"`
	MaxBytes       int           `mapstructure:"max_bytes"`
	CommitInterval int           `mapstructure:"commit_interval_ms"`
	BatchSize      int           `mapstructure:"batch_size"`
	BatchWait      time.Duration `mapstructure:"batch_wait"`
}

type BreakerConfig struct {
	FailThreshold int `mapstructure:"fail_threshold" yaml:"fail_threshold"`
	OpenForMs     int `mapstructure:"open_for_ms"    yaml:"open_for_ms"`
}

// ProviderConfig points at the cloud provider API used to deprovision resources.
type ProviderConfig struct {
	Name        string        `mapstructure:"name"`
	BaseURL     string        `mapstructure:"base_url"`
	Token       string        `mapstructure:"token"`
	TimeoutMs   int           `mapstructure:"timeout_ms"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Breaker     BreakerConfig `mapstructure:"breaker"`
}

type SizeConfig struct {
	Slug        string `mapstructure:"slug"`
	HourlyCents int64  `mapstructure:"hourly_cents"`
	BandwidthGB int64  `mapstructure:"bandwidth_gb"`
}

// PricingConfig is the rate table. Rates are decimal strings so that
// fractional cents survive config parsing untouched.
type PricingConfig struct {
	DefaultSize         string       `mapstructure:"default_size"`
	Sizes               []SizeConfig `mapstructure:"sizes"`
	VolumeRatePerGBHour string       `mapstructure:"volume_rate_per_gb_hour"` // cents
	OverageRate         string       `mapstructure:"overage_rate"`
}

type PoliciesConfig struct {
	Compute   string `mapstructure:"compute"`
	Volume    string `mapstructure:"volume"`
	Bandwidth string `mapstructure:"bandwidth"`
}

type BillingConfig struct {
	ComputeInterval   time.Duration  `mapstructure:"compute_interval"`
	VolumeInterval    time.Duration  `mapstructure:"volume_interval"`
	BandwidthInterval time.Duration  `mapstructure:"bandwidth_interval"`
	LockTTL           time.Duration  `mapstructure:"lock_ttl"`
	Policies          PoliciesConfig `mapstructure:"policies"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (VPSBILL_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (VPSBILL_MYSQL_DSN, ...)
	v.SetEnvPrefix("VPSBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validPolicies = map[string]bool{"deprovision": true, "skip": true, "overdraft": true}

// Validate checks the knobs the billing loop cannot run without.
func (c Config) Validate() error {
	if c.Billing.ComputeInterval <= 0 || c.Billing.VolumeInterval <= 0 || c.Billing.BandwidthInterval <= 0 {
		return fmt.Errorf("billing intervals must be positive")
	}
	for name, p := range map[string]string{
		"compute":   c.Billing.Policies.Compute,
		"volume":    c.Billing.Policies.Volume,
		"bandwidth": c.Billing.Policies.Bandwidth,
	} {
		if !validPolicies[p] {
			return fmt.Errorf("billing.policies.%s: unknown policy %q", name, p)
		}
	}

	found := false
	for _, s := range c.Pricing.Sizes {
		if s.Slug == c.Pricing.DefaultSize {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("pricing.default_size %q is not in pricing.sizes", c.Pricing.DefaultSize)
	}
	return nil
}
