package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces every environment override, e.g. LNMOMO_DATABASE_URL
const EnvPrefix = "LNMOMO"

// Config aggregates application configuration values
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Provider   ProviderConfig   `mapstructure:"provider"`
	Invoice    InvoiceConfig    `mapstructure:"invoice"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Sweep      SweepConfig      `mapstructure:"sweep"`
	Demo       DemoConfig       `mapstructure:"demo"`
	Catalog    CatalogConfig    `mapstructure:"catalog"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig governs the HTTP and gRPC listeners
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	GRPCPort        int           `mapstructure:"grpc_port"` // 0 disables the admin gRPC listener
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"` // default per-request deadline
	CheckTimeout    time.Duration `mapstructure:"check_timeout"`   // GET /api/check-payment/:id
	SweepTimeout    time.Duration `mapstructure:"sweep_timeout"`   // POST /api/sweep
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	APIToken        string        `mapstructure:"api_token"`
}

// DatabaseConfig describes the transaction store
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // postgres|memory
	URL          string `mapstructure:"url"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

// RedisConfig is optional; an empty Addr disables the lease and the event relay
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Channel  string        `mapstructure:"channel"`
	LeaseTTL time.Duration `mapstructure:"lease_ttl"`
}

// Enabled reports whether a Redis address was configured
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

// ProviderConfig holds the credentials and tuning of the upstream payment API
type ProviderConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	ClientKey    string        `mapstructure:"client_key"`
	ClientSecret string        `mapstructure:"client_secret"`
	Email        string        `mapstructure:"email"`
	Password     string        `mapstructure:"password"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
	SimulateOnly bool          `mapstructure:"simulate_only"`
	CountryCode  string        `mapstructure:"country_code"`
	DialCode     string        `mapstructure:"dial_code"`
	PaymentMode  string        `mapstructure:"payment_mode"`
	FeatureCode  string        `mapstructure:"feature_code"`
	PayerName    string        `mapstructure:"payer_name"`
	PayerEmail   string        `mapstructure:"payer_email"`
	FallbackRate float64       `mapstructure:"fallback_rate"` // BTC per fiat unit when the invoice omits amountBtc
}

// Configured reports whether live credentials are present
func (c ProviderConfig) Configured() bool {
	return c.BaseURL != "" && c.ClientKey != "" && c.ClientSecret != "" && c.Email != "" && c.Password != ""
}

// InvoiceConfig controls invoice issuance
type InvoiceConfig struct {
	Currency    string        `mapstructure:"currency"`
	Description string        `mapstructure:"description"`
	Expiry      time.Duration `mapstructure:"expiry"`
	MaxAmount   int64         `mapstructure:"max_amount"` // 0 means unbounded
}

// SimulationConfig tunes the locally generated invoices
type SimulationConfig struct {
	Rate              float64       `mapstructure:"rate"`
	MinExpiry         time.Duration `mapstructure:"min_expiry"`
	MaxExpiry         time.Duration `mapstructure:"max_expiry"`
	RampUp            time.Duration `mapstructure:"ramp_up"`
	PayoutSuccessRate float64       `mapstructure:"payout_success_rate"`
}

// SweepConfig controls the batch sweep and its schedule
type SweepConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Schedule    string        `mapstructure:"schedule"`
	Concurrency int           `mapstructure:"concurrency"`
	ItemTimeout time.Duration `mapstructure:"item_timeout"`
}

// DemoConfig drives simulated transactions forward without a real payer
type DemoConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	MinDelay   time.Duration `mapstructure:"min_delay"`
	MaxDelay   time.Duration `mapstructure:"max_delay"`
	PaidChance float64       `mapstructure:"paid_chance"`
}

// CatalogConfig points at an optional mobile network catalog file
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig controls structured logging settings
type LogConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"` // text|json
	AddSource bool   `mapstructure:"add_source"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.grpc_port", 0)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.request_timeout", 15*time.Second)
	v.SetDefault("server.check_timeout", 2*time.Minute)
	v.SetDefault("server.sweep_timeout", 10*time.Minute)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.api_token", "")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "lnmomo:transitions")
	v.SetDefault("redis.lease_ttl", 30*time.Second)

	v.SetDefault("provider.base_url", "")
	v.SetDefault("provider.client_key", "")
	v.SetDefault("provider.client_secret", "")
	v.SetDefault("provider.email", "")
	v.SetDefault("provider.password", "")
	v.SetDefault("provider.timeout", 15*time.Second)
	v.SetDefault("provider.max_retries", 3)
	v.SetDefault("provider.token_ttl", time.Hour)
	v.SetDefault("provider.simulate_only", false)
	v.SetDefault("provider.country_code", "CM")
	v.SetDefault("provider.dial_code", "237")
	v.SetDefault("provider.payment_mode", "MOMO")
	v.SetDefault("provider.feature_code", "PRO")
	v.SetDefault("provider.payer_name", "Lightning Payer")
	v.SetDefault("provider.payer_email", "payer@example.com")
	v.SetDefault("provider.fallback_rate", 0.0000000021)

	v.SetDefault("invoice.currency", "XAF")
	v.SetDefault("invoice.description", "Lightning to Mobile Money")
	v.SetDefault("invoice.expiry", 10*time.Minute)
	v.SetDefault("invoice.max_amount", 0)

	v.SetDefault("simulation.rate", 0.0000000021)
	v.SetDefault("simulation.min_expiry", 8*time.Minute)
	v.SetDefault("simulation.max_expiry", 12*time.Minute)
	v.SetDefault("simulation.ramp_up", time.Minute)
	v.SetDefault("simulation.payout_success_rate", 0.8)

	v.SetDefault("sweep.enabled", false)
	v.SetDefault("sweep.schedule", "@every 30s")
	v.SetDefault("sweep.concurrency", 1)
	v.SetDefault("sweep.item_timeout", time.Minute)

	v.SetDefault("demo.enabled", false)
	v.SetDefault("demo.min_delay", 5*time.Second)
	v.SetDefault("demo.max_delay", 15*time.Second)
	v.SetDefault("demo.paid_chance", 0.5)

	v.SetDefault("catalog.path", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.add_source", false)
}

// Load reads configuration from defaults, an optional YAML file and
// LNMOMO_* environment variables, in increasing precedence
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values no component can work with
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		errs = append(errs, fmt.Errorf("server.grpc_port %d is out of range", c.Server.GRPCPort))
	}
	if c.Server.RequestTimeout < 0 || c.Server.CheckTimeout < 0 || c.Server.SweepTimeout < 0 {
		errs = append(errs, errors.New("server request timeouts cannot be negative"))
	}

	switch c.Database.Driver {
	case "memory":
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver %q must be postgres or memory", c.Database.Driver))
	}

	if c.Provider.Timeout <= 0 {
		errs = append(errs, errors.New("provider.timeout must be positive"))
	}
	if c.Provider.MaxRetries < 0 {
		errs = append(errs, errors.New("provider.max_retries cannot be negative"))
	}
	if !c.Provider.SimulateOnly && !c.Provider.Configured() {
		errs = append(errs, errors.New("provider credentials are incomplete; set them or enable provider.simulate_only"))
	}

	if c.Invoice.Currency == "" {
		errs = append(errs, errors.New("invoice.currency cannot be empty"))
	}
	if c.Invoice.Expiry <= 0 {
		errs = append(errs, errors.New("invoice.expiry must be positive"))
	}
	if c.Invoice.MaxAmount < 0 {
		errs = append(errs, errors.New("invoice.max_amount cannot be negative"))
	}

	if c.Simulation.Rate <= 0 {
		errs = append(errs, errors.New("simulation.rate must be positive"))
	}
	if c.Simulation.MinExpiry <= 0 || c.Simulation.MaxExpiry < c.Simulation.MinExpiry {
		errs = append(errs, errors.New("simulation expiry window is invalid"))
	}
	if !isProbability(c.Simulation.PayoutSuccessRate) {
		errs = append(errs, errors.New("simulation.payout_success_rate must be within [0,1]"))
	}

	if c.Sweep.Concurrency < 1 {
		errs = append(errs, errors.New("sweep.concurrency must be at least 1"))
	}
	if c.Sweep.Enabled && strings.TrimSpace(c.Sweep.Schedule) == "" {
		errs = append(errs, errors.New("sweep.schedule is required when the sweep is enabled"))
	}

	if c.Demo.MinDelay < 0 || c.Demo.MaxDelay < c.Demo.MinDelay {
		errs = append(errs, errors.New("demo delay window is invalid"))
	}
	if !isProbability(c.Demo.PaidChance) {
		errs = append(errs, errors.New("demo.paid_chance must be within [0,1]"))
	}

	if c.Redis.Enabled() && c.Redis.LeaseTTL <= 0 {
		errs = append(errs, errors.New("redis.lease_ttl must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// Address returns the HTTP listen address
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GRPCAddress returns the gRPC listen address
func (c ServerConfig) GRPCAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.GRPCPort)
}

func isProbability(p float64) bool {
	return p >= 0 && p <= 1
}
