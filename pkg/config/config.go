package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const devSecret = "dev_secret"

// Config is decoded from environment variables. Nested keys map to upper
// snake case, so loans.due_hour is read from LOANS_DUE_HOUR.
type Config struct {
	Env       string `mapstructure:"env"`
	Port      int    `mapstructure:"port"`
	APIPrefix string `mapstructure:"api_prefix"`

	Database      DatabaseConfig      `mapstructure:"db"`
	Redis         RedisConfig         `mapstructure:"redis"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	CORS          CORSConfig          `mapstructure:"cors"`
	Log           LogConfig           `mapstructure:"log"`
	Loans         LoansConfig         `mapstructure:"loans"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Realtime      RealtimeConfig      `mapstructure:"realtime"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig holds the verification secret for access tokens issued by the identity service.
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoansConfig tunes the request-to-loan lifecycle.
type LoansConfig struct {
	TrimesterCutoffs []string      `mapstructure:"trimester_cutoffs"`
	PersonalQuota    int           `mapstructure:"personal_quota"`
	SoftCancel       bool          `mapstructure:"soft_cancel"`
	DueHour          int           `mapstructure:"due_hour"`
	TxTimeout        time.Duration `mapstructure:"tx_timeout"`
	Timezone         string        `mapstructure:"timezone"`
}

// NotificationsConfig controls the notification dispatcher.
type NotificationsConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Workers        int    `mapstructure:"workers"`
	Retries        int    `mapstructure:"retries"`
	DefaultLocale  string `mapstructure:"default_locale"`
	FromAddress    string `mapstructure:"from"`
	AttachLoanSlip bool   `mapstructure:"attach_loan_slip"`
}

// CacheConfig governs the redis-backed quota cache.
type CacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	QuotaTTL time.Duration `mapstructure:"quota_ttl"`
}

// RealtimeConfig toggles the staff websocket feed.
type RealtimeConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

var defaults = map[string]interface{}{
	"env":        EnvDevelopment,
	"port":       8080,
	"api_prefix": "/api/v1",

	"db.host":           "localhost",
	"db.port":           5432,
	"db.user":           "postgres",
	"db.password":       "postgres",
	"db.name":           "loan_desk",
	"db.ssl_mode":       "disable",
	"db.max_open_conns": 10,
	"db.max_idle_conns": 5,

	"redis.host":     "localhost",
	"redis.port":     6379,
	"redis.password": "",
	"redis.db":       0,

	"jwt.secret": devSecret,
	"jwt.issuer": "",

	"cors.allowed_origins": "",
	"log.level":            "info",
	"log.format":           "json",

	"loans.trimester_cutoffs": "15-12,15-03,15-06",
	"loans.personal_quota":    5,
	"loans.soft_cancel":       false,
	"loans.due_hour":          9,
	"loans.tx_timeout":        "10s",
	"loans.timezone":          "Europe/Madrid",

	"notifications.enabled":          true,
	"notifications.workers":          2,
	"notifications.retries":          3,
	"notifications.default_locale":   "es",
	"notifications.from":             "biblioteca@localhost",
	"notifications.attach_loan_slip": true,

	"cache.enabled":   false,
	"cache.quota_ttl": "2m",

	"realtime.enabled": true,
}

// Load reads an optional .env file, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.CORS.AllowedOrigins = trimAll(c.CORS.AllowedOrigins)
	c.Loans.TrimesterCutoffs = trimAll(c.Loans.TrimesterCutoffs)
	if c.Loans.PersonalQuota <= 0 {
		c.Loans.PersonalQuota = 5
	}
	if c.Loans.DueHour < 0 || c.Loans.DueHour > 23 {
		c.Loans.DueHour = 9
	}
	if c.Loans.TxTimeout <= 0 {
		c.Loans.TxTimeout = 10 * time.Second
	}
	if c.Cache.QuotaTTL <= 0 {
		c.Cache.QuotaTTL = 2 * time.Minute
	}
}

// Validate rejects settings that are unsafe to serve traffic with.
func (c *Config) Validate() error {
	if c.Env == EnvProduction && (c.JWT.Secret == "" || c.JWT.Secret == devSecret) {
		return errors.New("JWT_SECRET must be set in production")
	}
	if c.Port <= 0 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	return nil
}

// Location resolves the configured loan timezone, falling back to UTC.
func (c LoansConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// trimAll drops blanks left by comma-separated env values.
func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			out = append(out, value)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
