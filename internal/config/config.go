package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTP struct {
		Port string `mapstructure:"port"`
	} `mapstructure:"http"`
	CORS struct {
		AllowedOrigins string `mapstructure:"allowed_origins"`
	} `mapstructure:"cors"`
	Database struct {
		Driver string `mapstructure:"driver"` // postgres | sqlite
		DSN    string `mapstructure:"dsn"`
	} `mapstructure:"database"`
	JWT struct {
		Secret string        `mapstructure:"secret"`
		TTL    time.Duration `mapstructure:"ttl"`
	} `mapstructure:"jwt"`
	Timezone   string `mapstructure:"timezone"`
	Categories struct {
		DefaultName string `mapstructure:"default_name"`
	} `mapstructure:"categories"`
	Sweep struct {
		Enabled     bool          `mapstructure:"enabled"`
		Interval    time.Duration `mapstructure:"interval"`
		Workers     int           `mapstructure:"workers"`
		JournalPath string        `mapstructure:"journal_path"`
	} `mapstructure:"sweep"`
	SMTP struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		From     string `mapstructure:"from"`
	} `mapstructure:"smtp"`
	Log struct {
		Level       string `mapstructure:"level"`
		Development bool   `mapstructure:"development"`
	} `mapstructure:"log"`

	// Non-fatal remarks about defaults still in use, logged by the caller
	// once the logger is up.
	Warnings []string `mapstructure:"-"`
}

const defaultDSN = "host=localhost user=postgres password=postgres dbname=debts port=5432 sslmode=disable"

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", "8080")
	v.SetDefault("cors.allowed_origins", "http://localhost:5173")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", defaultDSN)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.ttl", 24*time.Hour)
	v.SetDefault("timezone", "America/Sao_Paulo")
	v.SetDefault("categories.default_name", "Others")
	v.SetDefault("sweep.enabled", true)
	v.SetDefault("sweep.interval", time.Minute)
	v.SetDefault("sweep.workers", 4)
	v.SetDefault("sweep.journal_path", "sweep.db")
	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads config.yaml from . or ./configs when present; every key can be
// overridden from the environment (jwt.secret -> JWT_SECRET).
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.JWT.Secret == "" {
		return errors.New("JWT_SECRET is not set")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 characters")
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Sweep.Interval <= 0 {
		return errors.New("sweep.interval must be positive")
	}
	if c.Sweep.Workers < 1 {
		return errors.New("sweep.workers must be at least 1")
	}
	if strings.TrimSpace(c.Categories.DefaultName) == "" {
		return errors.New("categories.default_name must not be empty")
	}

	if c.Database.Driver == "postgres" && c.Database.DSN == defaultDSN {
		c.Warnings = append(c.Warnings, "DATABASE_DSN uses the built-in default, set your own Postgres connection for production")
	}
	if c.CORS.AllowedOrigins == "http://localhost:5173" {
		c.Warnings = append(c.Warnings, "CORS_ALLOWED_ORIGINS uses the built-in default, set your own domain for production")
	}
	if c.SMTP.Host == "" {
		c.Warnings = append(c.Warnings, "SMTP_HOST is empty, emails will only be logged")
	}
	return nil
}
