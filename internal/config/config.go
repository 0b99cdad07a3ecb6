// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	BasePath        string        `yaml:"base_path"` // routes are mounted under this prefix
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	PublicRateLimit float64       `yaml:"public_rate_limit"` // requests per second per IP
	PublicBurst     int           `yaml:"public_burst"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL           string `yaml:"url"`
	MigrateOnBoot bool   `yaml:"migrate_on_boot"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// PiConfig configures the Pi Platform API and the price oracle.
type PiConfig struct {
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	Sandbox      bool          `yaml:"sandbox"`
	PriceURL     string        `yaml:"price_url"`
	PriceTTL     time.Duration `yaml:"price_ttl"`
	HTTPTimeout  time.Duration `yaml:"http_timeout"`
}

// PayflowConfig is read by the client binary.
type PayflowConfig struct {
	APIURL        string        `yaml:"api_url"`
	DeviceID      string        `yaml:"device_id"`
	Sandbox       bool          `yaml:"sandbox"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	LinkBaseURL   string        `yaml:"link_base_url"`
	PaymentQRURL  string        `yaml:"payment_qr_url"`
	QRSize        int           `yaml:"qr_size"`
	UsePush       bool          `yaml:"use_push"`
	HTTPTimeout   time.Duration `yaml:"http_timeout"`
	StateRedisKey string        `yaml:"state_redis_key"`
	StateKey      string        `yaml:"state_key"` // seals the stored session when set
}

type SchedulerConfig struct {
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	LinkMaxAge      time.Duration `yaml:"link_max_age"`
	PaymentMaxAge   time.Duration `yaml:"payment_max_age"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Pi        PiConfig        `yaml:"pi"`
	Payflow   PayflowConfig   `yaml:"payflow"`
	Scheduler SchedulerConfig `yaml:"scheduler"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig parses -config/-dev from the given flag set, reads the YAML
// file (optional when env supplies everything), then applies .env and
// environment overrides and defaults.
func LoadConfig(fs *flag.FlagSet, args []string) (*Config, error) {
	var configPath string
	var dev bool
	fs.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	fs.BoolVar(&dev, "dev", false, "development mode")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// a missing .env is normal outside development
	_ = godotenv.Load()

	var cfg Config
	b, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

// Parse decodes YAML bytes and applies env overrides and defaults.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	override := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	override(&cfg.Database.URL, "DATABASE_URL")
	override(&cfg.Redis.URL, "REDIS_URL")
	override(&cfg.Auth.JWTSecret, "JWT_SECRET")
	override(&cfg.Pi.APIKey, "PI_API_KEY")
	override(&cfg.Payflow.APIURL, "PAYFLOW_API_URL")
	override(&cfg.Payflow.DeviceID, "PAYFLOW_DEVICE_ID")
	override(&cfg.Payflow.StateKey, "PAYFLOW_STATE_KEY")
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.BasePath == "" {
		cfg.Server.BasePath = "/api"
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = 30 * time.Second
	}
	if cfg.Server.PublicRateLimit <= 0 {
		cfg.Server.PublicRateLimit = 5
	}
	if cfg.Server.PublicBurst <= 0 {
		cfg.Server.PublicBurst = 20
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.Auth.TokenTTL <= 0 {
		cfg.Auth.TokenTTL = 24 * time.Hour
	}
	if cfg.Pi.BaseURL == "" {
		cfg.Pi.BaseURL = "https://api.minepi.com"
	}
	if cfg.Pi.PriceURL == "" {
		cfg.Pi.PriceURL = "https://www.okx.com/api/v5/market/ticker?instId=PI-USD"
	}
	if cfg.Pi.PriceTTL <= 0 {
		cfg.Pi.PriceTTL = time.Minute
	}
	if cfg.Pi.HTTPTimeout <= 0 {
		cfg.Pi.HTTPTimeout = 15 * time.Second
	}
	if cfg.Payflow.PollInterval <= 0 {
		cfg.Payflow.PollInterval = 3 * time.Second
	}
	if cfg.Payflow.LinkBaseURL == "" {
		cfg.Payflow.LinkBaseURL = "https://pi.app/rollingpi"
	}
	if cfg.Payflow.PaymentQRURL == "" {
		cfg.Payflow.PaymentQRURL = "https://pi.app/rollingpi/payment-qr"
	}
	if cfg.Payflow.QRSize <= 0 {
		cfg.Payflow.QRSize = 256
	}
	if cfg.Payflow.HTTPTimeout <= 0 {
		cfg.Payflow.HTTPTimeout = 15 * time.Second
	}
	if cfg.Payflow.DeviceID == "" {
		cfg.Payflow.DeviceID = "default"
	}
	if cfg.Payflow.StateRedisKey == "" {
		cfg.Payflow.StateRedisKey = "payflow:state"
	}
	if cfg.Scheduler.CleanupInterval <= 0 {
		cfg.Scheduler.CleanupInterval = 5 * time.Minute
	}
	if cfg.Scheduler.LinkMaxAge <= 0 {
		cfg.Scheduler.LinkMaxAge = 10 * time.Minute
	}
	if cfg.Scheduler.PaymentMaxAge <= 0 {
		cfg.Scheduler.PaymentMaxAge = 10 * time.Minute
	}
}

// ValidateServer checks what the backend binary cannot start without.
func (c *Config) ValidateServer() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if !c.Pi.Sandbox && c.Pi.APIKey == "" {
		return errors.New("pi.api_key is required outside sandbox")
	}
	return nil
}

// ValidateClient checks what the payflow client cannot start without.
func (c *Config) ValidateClient() error {
	if c.Payflow.APIURL == "" {
		return errors.New("payflow.api_url is required")
	}
	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
