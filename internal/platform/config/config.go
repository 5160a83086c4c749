// Package config loads process configuration the way the rest of the
// stack does: a YAML file read by viper, then environment overrides
// applied by envconfig.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// Config holds all configuration for the engine process.
type Config struct {
	Service   ServiceConfig   `mapstructure:"service"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Version   string          `mapstructure:"version"`
}

// ServiceConfig holds service-identification configuration.
type ServiceConfig struct {
	Name        string `mapstructure:"name" envconfig:"SERVICE_NAME"`
	Environment string `mapstructure:"environment" envconfig:"ENVIRONMENT" default:"development"`
}

// HTTPConfig holds HTTP timeouts. cmd/engine uses ReadTimeout as its
// server's read and write timeout; the action handlers do not read it.
type HTTPConfig struct {
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" envconfig:"HTTP_CONNECT_TIMEOUT" default:"10s"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" envconfig:"HTTP_READ_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds Postgres connection configuration for the store adapters.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host" envconfig:"DB_HOST" default:"localhost"`
	Port            int           `mapstructure:"port" envconfig:"DB_PORT" default:"5432"`
	User            string        `mapstructure:"user" envconfig:"DB_USER" default:"postgres"`
	Password        string        `mapstructure:"password" envconfig:"DB_PASSWORD" default:"postgres"`
	Database        string        `mapstructure:"database" envconfig:"DB_NAME" default:"workflow_engine"`
	SSLMode         string        `mapstructure:"ssl_mode" envconfig:"DB_SSL_MODE" default:"disable"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
}

// RedisConfig holds Redis configuration backing the settings read-through
// cache.
type RedisConfig struct {
	Host        string        `mapstructure:"host" envconfig:"REDIS_HOST" default:"localhost"`
	Port        int           `mapstructure:"port" envconfig:"REDIS_PORT" default:"6379"`
	Password    string        `mapstructure:"password" envconfig:"REDIS_PASSWORD"`
	DB          int           `mapstructure:"db" envconfig:"REDIS_DB" default:"0"`
	PoolSize    int           `mapstructure:"pool_size" envconfig:"REDIS_POOL_SIZE" default:"10"`
	DialTimeout time.Duration `mapstructure:"dial_timeout" envconfig:"REDIS_DIAL_TIMEOUT" default:"5s"`
}

// LoggerConfig holds logger configuration.
type LoggerConfig struct {
	Level      string `mapstructure:"level" envconfig:"LOG_LEVEL" default:"info"`
	Format     string `mapstructure:"format" envconfig:"LOG_FORMAT" default:"json"`
	OutputPath string `mapstructure:"output_path" envconfig:"LOG_OUTPUT_PATH" default:"stdout"`
}

// TelemetryConfig holds telemetry configuration.
type TelemetryConfig struct {
	MetricsEnabled bool   `mapstructure:"metrics_enabled" envconfig:"METRICS_ENABLED" default:"true"`
	TracingEnabled bool   `mapstructure:"tracing_enabled" envconfig:"TRACING_ENABLED" default:"false"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint" envconfig:"JAEGER_ENDPOINT" default:"http://localhost:14268/api/traces"`
	ServiceName    string `mapstructure:"service_name" envconfig:"TELEMETRY_SERVICE_NAME"`
}

// ExecutionConfig holds the settings-store defaults named in the engine's
// external-interfaces contract: timeouts, parallelism, retry defaults,
// and per-provider AI defaults.
type ExecutionConfig struct {
	DefaultTimeoutSeconds int    `mapstructure:"default_timeout_seconds" envconfig:"EXECUTION_DEFAULT_TIMEOUT_SECONDS" default:"300"`
	MaxParallel           int    `mapstructure:"max_parallel" envconfig:"EXECUTION_MAX_PARALLEL" default:"10"`
	RetryAttempts         int    `mapstructure:"retry_attempts" envconfig:"EXECUTION_RETRY_ATTEMPTS" default:"3"`
	RetryDelayMs          int    `mapstructure:"retry_delay_ms" envconfig:"EXECUTION_RETRY_DELAY_MS" default:"1000"`
	LogLevel              string `mapstructure:"log_level" envconfig:"EXECUTION_LOG_LEVEL" default:"INFO"`

	AIDefaultProvider string `mapstructure:"ai_default_provider" envconfig:"AI_DEFAULT_PROVIDER" default:"openai"`
	AIDefaultModel    string `mapstructure:"ai_default_model" envconfig:"AI_DEFAULT_MODEL" default:"gpt-4o-mini"`
	AIBaseURL         string `mapstructure:"ai_base_url" envconfig:"AI_BASE_URL"`
	AIAPIKey          string `mapstructure:"ai_api_key" envconfig:"AI_API_KEY"`
}

// Load reads ./configs/config.yaml (if present) and layers environment
// overrides on top, the same two-pass shape used across the stack.
func Load(serviceName string) (*Config, error) {
	var cfg Config

	cfg.Service.Name = serviceName
	cfg.Telemetry.ServiceName = serviceName

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env vars: %w", err)
	}

	if version := os.Getenv("VERSION"); version != "" {
		cfg.Version = version
	} else {
		cfg.Version = "dev"
	}

	return &cfg, nil
}

// DSN returns the Postgres connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// Addr returns the Redis address.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
