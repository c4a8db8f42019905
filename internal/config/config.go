package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string   `mapstructure:"PORT"`
	Env            string   `mapstructure:"ENV"`
	DatabaseURL    string   `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32    `mapstructure:"DB_MIN_CONNS"`
	DBSchema       string   `mapstructure:"DB_SCHEMA"`
	MigrationsDir  string   `mapstructure:"MIGRATIONS_DIR"`
	RedisURL       string   `mapstructure:"REDIS_URL"`
	AuthIssuer     string   `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL    string   `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience   string   `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey string   `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`
	PublicRPS      float64  `mapstructure:"PUBLIC_RATE_LIMIT_RPS"`
	PublicBurst    int      `mapstructure:"PUBLIC_RATE_LIMIT_BURST"`

	LogLevel      string `mapstructure:"LOG_LEVEL"`
	LogFile       string `mapstructure:"LOG_FILE"`
	LogMaxSizeMB  int    `mapstructure:"LOG_MAX_SIZE_MB"`
	LogMaxBackups int    `mapstructure:"LOG_MAX_BACKUPS"`
	LogMaxAgeDays int    `mapstructure:"LOG_MAX_AGE_DAYS"`

	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`
	SMTPUseTLS   bool   `mapstructure:"SMTP_USE_TLS"`

	PhoneRegion string `mapstructure:"PHONE_REGION"`

	ReplacementAlertDays    int           `mapstructure:"PUMPS_REPLACEMENT_ALERT_DAYS"`
	DefaultAllocatedQty     int           `mapstructure:"PUMPS_DEFAULT_ALLOCATED_QTY"`
	DefaultThreshold        int           `mapstructure:"PUMPS_DEFAULT_THRESHOLD"`
	ReturnLocationID        string        `mapstructure:"PUMPS_RETURN_LOCATION_ID"`
	ScrapLocationID         string        `mapstructure:"PUMPS_SCRAP_LOCATION_ID"`
	HelpdeskEmail           string        `mapstructure:"PUMPS_HELPDESK_EMAIL"`
	ReminderAssignee        string        `mapstructure:"PUMPS_REMINDER_ASSIGNEE"`
	EnableThresholdWarnings bool          `mapstructure:"PUMPS_ENABLE_THRESHOLD_WARNINGS"`
	SweepInterval           time.Duration `mapstructure:"PUMPS_SWEEP_INTERVAL"`
}

// Pumps is the typed slice of configuration consumed by the lifecycle
// engine, the consumables tracker and the holiday pump intake.
type Pumps struct {
	AlertWindowDays         int
	DefaultAllocatedQty     int
	DefaultThreshold        int
	ReturnLocationID        string
	ScrapLocationID         string
	HelpdeskEmail           string
	ReminderAssignee        string
	EnableThresholdWarnings bool
}

// DefaultPumps mirrors the defaults applied by Load.
func DefaultPumps() Pumps {
	return Pumps{
		AlertWindowDays:         30,
		DefaultAllocatedQty:     10,
		DefaultThreshold:        13,
		HelpdeskEmail:           "tandemsupport@evercaremedical.eu",
		ReminderAssignee:        "patient_administrators",
		EnableThresholdWarnings: true,
	}
}

var envKeys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "DB_SCHEMA",
	"MIGRATIONS_DIR", "REDIS_URL", "AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE",
	"AUTH_SIGNING_KEY", "CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"PUBLIC_RATE_LIMIT_RPS", "PUBLIC_RATE_LIMIT_BURST",
	"LOG_LEVEL", "LOG_FILE", "LOG_MAX_SIZE_MB", "LOG_MAX_BACKUPS", "LOG_MAX_AGE_DAYS",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "SMTP_FROM", "SMTP_USE_TLS", "PHONE_REGION",
	"PUMPS_REPLACEMENT_ALERT_DAYS", "PUMPS_DEFAULT_ALLOCATED_QTY", "PUMPS_DEFAULT_THRESHOLD",
	"PUMPS_RETURN_LOCATION_ID", "PUMPS_SCRAP_LOCATION_ID", "PUMPS_HELPDESK_EMAIL",
	"PUMPS_REMINDER_ASSIGNEE", "PUMPS_ENABLE_THRESHOLD_WARNINGS", "PUMPS_SWEEP_INTERVAL",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	def := DefaultPumps()
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DB_SCHEMA", "public")
	v.SetDefault("MIGRATIONS_DIR", "./migrations")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("PUBLIC_RATE_LIMIT_RPS", 1)
	v.SetDefault("PUBLIC_RATE_LIMIT_BURST", 5)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_MAX_SIZE_MB", 50)
	v.SetDefault("LOG_MAX_BACKUPS", 5)
	v.SetDefault("LOG_MAX_AGE_DAYS", 30)
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("PHONE_REGION", "MT")
	v.SetDefault("PUMPS_REPLACEMENT_ALERT_DAYS", def.AlertWindowDays)
	v.SetDefault("PUMPS_DEFAULT_ALLOCATED_QTY", def.DefaultAllocatedQty)
	v.SetDefault("PUMPS_DEFAULT_THRESHOLD", def.DefaultThreshold)
	v.SetDefault("PUMPS_HELPDESK_EMAIL", def.HelpdeskEmail)
	v.SetDefault("PUMPS_REMINDER_ASSIGNEE", def.ReminderAssignee)
	v.SetDefault("PUMPS_ENABLE_THRESHOLD_WARNINGS", def.EnableThresholdWarnings)
	v.SetDefault("PUMPS_SWEEP_INTERVAL", "24h")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Pumps returns the typed domain configuration.
func (c *Config) Pumps() Pumps {
	return Pumps{
		AlertWindowDays:         c.ReplacementAlertDays,
		DefaultAllocatedQty:     c.DefaultAllocatedQty,
		DefaultThreshold:        c.DefaultThreshold,
		ReturnLocationID:        c.ReturnLocationID,
		ScrapLocationID:         c.ScrapLocationID,
		HelpdeskEmail:           c.HelpdeskEmail,
		ReminderAssignee:        c.ReminderAssignee,
		EnableThresholdWarnings: c.EnableThresholdWarnings,
	}
}

// Validate checks that the configuration is safe to run. Outside development
// either AUTH_ISSUER or AUTH_SIGNING_KEY must be set so staff routes are
// authenticated.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthIssuer == "" && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_ISSUER or AUTH_SIGNING_KEY must be set when ENV=%q", c.Env)
	}
	if c.ReplacementAlertDays < 0 {
		return fmt.Errorf("PUMPS_REPLACEMENT_ALERT_DAYS must not be negative, got %d", c.ReplacementAlertDays)
	}
	if c.DefaultThreshold <= 0 {
		return fmt.Errorf("PUMPS_DEFAULT_THRESHOLD must be positive, got %d", c.DefaultThreshold)
	}
	if c.DefaultThreshold <= c.DefaultAllocatedQty {
		return fmt.Errorf("PUMPS_DEFAULT_THRESHOLD (%d) must exceed PUMPS_DEFAULT_ALLOCATED_QTY (%d)",
			c.DefaultThreshold, c.DefaultAllocatedQty)
	}
	if c.SweepInterval <= 0 || c.SweepInterval > 24*time.Hour {
		return fmt.Errorf("PUMPS_SWEEP_INTERVAL must be between 0 and 24h, got %s", c.SweepInterval)
	}
	return nil
}
