package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort  string `mapstructure:"APP_PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// Storage backend: memory, file, sqlite or mongo.
	Storage    string `mapstructure:"STORAGE"`
	FilePath   string `mapstructure:"FILE_PATH"`
	SQLitePath string `mapstructure:"SQLITE_PATH"`
	MongoURI   string `mapstructure:"MONGO_URI"`
	MongoDB    string `mapstructure:"MONGO_DB"`

	// Reminder engine.
	ScanInterval        time.Duration `mapstructure:"SCAN_INTERVAL"`
	DispatchTimeout     time.Duration `mapstructure:"DISPATCH_TIMEOUT"`
	DispatchConcurrency int           `mapstructure:"DISPATCH_CONCURRENCY"`
	DispatchRatePerSec  float64       `mapstructure:"DISPATCH_RATE_PER_SEC"`

	// Notifier: log or smtp.
	Notifier string `mapstructure:"NOTIFIER"`
	SMTPHost string `mapstructure:"SMTP_HOST"`
	SMTPPort int    `mapstructure:"SMTP_PORT"`
	SMTPUser string `mapstructure:"SMTP_USER"`
	SMTPPass string `mapstructure:"SMTP_PASS"`
	SMTPFrom string `mapstructure:"SMTP_FROM"`

	// Redis configuration. An empty address disables the cycle lease.
	RedisAddr     string        `mapstructure:"REDIS_ADDR"`
	RedisPassword string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int           `mapstructure:"REDIS_DB"`
	LockKey       string        `mapstructure:"LOCK_KEY"`
	LockTTL       time.Duration `mapstructure:"LOCK_TTL"`
}

var defaults = map[string]any{
	"APP_PORT":              "8080",
	"ENV":                   "development",
	"LOG_LEVEL":             "info",
	"STORAGE":               "file",
	"FILE_PATH":             "meetings.json",
	"SQLITE_PATH":           "meetings.db",
	"MONGO_URI":             "mongodb://localhost:27017",
	"MONGO_DB":              "meetings",
	"SCAN_INTERVAL":         "60s",
	"DISPATCH_TIMEOUT":      "30s",
	"DISPATCH_CONCURRENCY":  4,
	"DISPATCH_RATE_PER_SEC": 0,
	"NOTIFIER":              "log",
	"SMTP_HOST":             "",
	"SMTP_PORT":             587,
	"SMTP_USER":             "",
	"SMTP_PASS":             "",
	"SMTP_FROM":             "",
	"REDIS_ADDR":            "",
	"REDIS_PASSWORD":        "",
	"REDIS_DB":              0,
	"LOCK_KEY":              "meeting-reminders:cycle",
	"LOCK_TTL":              "5m",
}

// Load reads configuration from an optional YAML file, the environment and
// defaults, in increasing order of precedence: defaults, file, environment.
// An empty path looks for config.yaml in "." and "./config".
func Load(path string) (Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	// Automatically use environment variables where available.
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Storage {
	case "memory", "file", "sqlite", "mongo":
	default:
		return fmt.Errorf("invalid STORAGE %q: valid options are memory, file, sqlite, mongo", c.Storage)
	}
	switch c.Notifier {
	case "log":
	case "smtp":
		if c.SMTPHost == "" || c.SMTPFrom == "" {
			return errors.New("NOTIFIER=smtp requires SMTP_HOST and SMTP_FROM")
		}
	default:
		return fmt.Errorf("invalid NOTIFIER %q: valid options are log, smtp", c.Notifier)
	}
	if c.ScanInterval < time.Second {
		return fmt.Errorf("SCAN_INTERVAL must be at least 1s, got %s", c.ScanInterval)
	}
	if c.DispatchConcurrency < 1 {
		return fmt.Errorf("DISPATCH_CONCURRENCY must be at least 1, got %d", c.DispatchConcurrency)
	}
	if c.DispatchRatePerSec < 0 {
		return fmt.Errorf("DISPATCH_RATE_PER_SEC must not be negative, got %v", c.DispatchRatePerSec)
	}
	if c.RedisAddr != "" && c.LockTTL <= 0 {
		return fmt.Errorf("LOCK_TTL must be positive when REDIS_ADDR is set, got %s", c.LockTTL)
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}
