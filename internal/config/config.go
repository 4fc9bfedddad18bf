// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Store drivers accepted by STORE_DRIVER.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreBolt     = "bolt"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	JWTSecret      string `mapstructure:"JWT_SECRET"`
	Port           string `mapstructure:"PORT"`
	Env            string `mapstructure:"APP_ENV"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	RedisURL       string `mapstructure:"REDIS_URL"`

	StoreDriver string `mapstructure:"STORE_DRIVER"`
	DBHost      string `mapstructure:"DB_HOST"`
	DBPort      string `mapstructure:"DB_PORT"`
	DBUser      string `mapstructure:"DB_USER"`
	DBPassword  string `mapstructure:"DB_PASSWORD"`
	DBName      string `mapstructure:"DB_NAME"`
	DBSSLMode   string `mapstructure:"DB_SSLMODE"`
	SQLitePath  string `mapstructure:"SQLITE_PATH"`
	BoltPath    string `mapstructure:"BOLT_PATH"`

	CodeTTLMinutes          int `mapstructure:"CODE_TTL_MINUTES"`
	BoundCodeTTLMinutes     int `mapstructure:"BOUND_CODE_TTL_MINUTES"`
	CodeRetentionHours      int `mapstructure:"CODE_RETENTION_HOURS"`
	EvictionIntervalSeconds int `mapstructure:"EVICTION_INTERVAL_SECONDS"`
	VerifyRateLimit         int `mapstructure:"VERIFY_RATE_LIMIT"`
	IdempotencyTTLMinutes   int `mapstructure:"IDEMPOTENCY_TTL_MINUTES"`

	TracingEnabled      bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter     string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint        string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSamplerRatio float64 `mapstructure:"TRACING_SAMPLER_RATIO"`

	SeedDemoData bool `mapstructure:"SEED_DEMO_DATA"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base file is optional.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.StoreDriver = strings.ToLower(strings.TrimSpace(config.StoreDriver))
	config.DBSSLMode = strings.ToLower(strings.TrimSpace(config.DBSSLMode))
	config.TracingExporter = strings.ToLower(strings.TrimSpace(config.TracingExporter))

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("PORT", "5000")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("JWT_SECRET", defaultJWTSecret)
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173")
	viper.SetDefault("REDIS_URL", "")

	viper.SetDefault("STORE_DRIVER", StoreMemory)
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "creditflow")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("SQLITE_PATH", "creditflow.sqlite")
	viper.SetDefault("BOLT_PATH", "creditflow.db")

	viper.SetDefault("CODE_TTL_MINUTES", 30)
	viper.SetDefault("BOUND_CODE_TTL_MINUTES", 0)
	viper.SetDefault("CODE_RETENTION_HOURS", 24)
	viper.SetDefault("EVICTION_INTERVAL_SECONDS", 60)
	viper.SetDefault("VERIFY_RATE_LIMIT", 10)
	viper.SetDefault("IDEMPOTENCY_TTL_MINUTES", 60)

	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	viper.SetDefault("TRACING_SAMPLER_RATIO", 1.0)

	viper.SetDefault("SEED_DEMO_DATA", false)
}

// IsProduction reports whether the production safety checks apply.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	switch c.StoreDriver {
	case StoreMemory, StorePostgres, StoreSQLite, StoreBolt:
	default:
		return fmt.Errorf("STORE_DRIVER %q is not one of memory, postgres, sqlite, bolt", c.StoreDriver)
	}
	if c.CodeTTLMinutes <= 0 {
		return errors.New("CODE_TTL_MINUTES must be positive")
	}
	if c.BoundCodeTTLMinutes < 0 {
		return errors.New("BOUND_CODE_TTL_MINUTES must not be negative")
	}
	if c.CodeRetentionHours <= 0 {
		return errors.New("CODE_RETENTION_HOURS must be positive")
	}
	if c.EvictionIntervalSeconds < 0 {
		return errors.New("EVICTION_INTERVAL_SECONDS must not be negative")
	}
	if c.VerifyRateLimit <= 0 {
		return errors.New("VERIFY_RATE_LIMIT must be positive")
	}
	switch c.TracingExporter {
	case "", "stdout", "otlp", "none":
	default:
		return fmt.Errorf("TRACING_EXPORTER %q is not one of stdout, otlp, none", c.TracingExporter)
	}
	if c.TracingSamplerRatio < 0 || c.TracingSamplerRatio > 1 {
		return errors.New("TRACING_SAMPLER_RATIO must be between 0 and 1")
	}

	if c.IsProduction() {
		if c.JWTSecret == defaultJWTSecret {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.StoreDriver == StoreMemory {
			return errors.New("STORE_DRIVER memory loses every request on restart and is not allowed in production")
		}
		if c.StoreDriver == StorePostgres {
			if c.DBPassword == "password" || c.DBPassword == "" {
				return errors.New("a strong DB_PASSWORD is required in production")
			}
			if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
				log.Println("WARNING: DB_SSLMODE is 'disable' in production. It is highly recommended to use SSL for database connections.")
			}
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	} else if len(c.JWTSecret) < 32 {
		log.Println("WARNING: JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
	}

	return nil
}

// CodeTTL is the default lifetime of admin-issued codes.
func (c *Config) CodeTTL() time.Duration {
	return time.Duration(c.CodeTTLMinutes) * time.Minute
}

// BoundCodeTTL is the lifetime of approval codes; zero means they never expire.
func (c *Config) BoundCodeTTL() time.Duration {
	return time.Duration(c.BoundCodeTTLMinutes) * time.Minute
}

// CodeRetention is how long expired codes are kept before eviction.
func (c *Config) CodeRetention() time.Duration {
	return time.Duration(c.CodeRetentionHours) * time.Hour
}

// EvictionInterval is the sweep period; zero disables the sweeper.
func (c *Config) EvictionInterval() time.Duration {
	return time.Duration(c.EvictionIntervalSeconds) * time.Second
}

// IdempotencyTTL is how long a completed POST is replayable.
func (c *Config) IdempotencyTTL() time.Duration {
	return time.Duration(c.IdempotencyTTLMinutes) * time.Minute
}

// Origins returns ALLOWED_ORIGINS as a trimmed list.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
