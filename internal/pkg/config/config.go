package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Log       LogConfig       `mapstructure:"log"`
	Tracks    TracksConfig    `mapstructure:"tracks"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout  int `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout int `mapstructure:"write_timeout" validate:"gt=0"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"min=1,max=65535"`
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname" validate:"required"`
	SSLMode  string `mapstructure:"sslmode" validate:"oneof=disable allow prefer require verify-ca verify-full"`
	MaxConns int    `mapstructure:"max_conns" validate:"gte=0"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url" validate:"required"`
	// Consumer is the durable consumer name of this node. Leave empty for an
	// ephemeral consumer.
	Consumer string `mapstructure:"consumer"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port" validate:"required"`
	Namespace string `mapstructure:"namespace" validate:"required"`
	TaskQueue string `mapstructure:"task_queue" validate:"required"`
	Enabled   bool   `mapstructure:"enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

// TracksConfig configures upload storage, the track cache and viewer output.
type TracksConfig struct {
	UploadDir         string  `mapstructure:"upload_dir" validate:"required"`
	CacheDir          string  `mapstructure:"cache_dir" validate:"required_if=CacheBackend file"`
	CacheBackend      string  `mapstructure:"cache_backend" validate:"oneof=file valkey none"`
	CacheTTLSeconds   int     `mapstructure:"cache_ttl_seconds" validate:"gte=0"`
	SimplifyTolerance float64 `mapstructure:"simplify_tolerance" validate:"gte=0"`
	MaxUploadBytes    int     `mapstructure:"max_upload_bytes" validate:"gt=0"`
	UnitSystem        string  `mapstructure:"unit_system" validate:"oneof=metric imperial"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "tripsummary")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "tripsummary")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.consumer", "")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "track-cache")
	v.SetDefault("temporal.enabled", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("tracks.upload_dir", "./data/tracks")
	v.SetDefault("tracks.cache_dir", "./data/cache")
	v.SetDefault("tracks.cache_backend", "file")
	v.SetDefault("tracks.cache_ttl_seconds", 0)
	v.SetDefault("tracks.simplify_tolerance", 0.01)
	v.SetDefault("tracks.max_upload_bytes", 10<<20)
	v.SetDefault("tracks.unit_system", "metric")

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: TRIPSUMMARY_TRACKS_CACHE_DIR → tracks.cache_dir
	v.SetEnvPrefix("TRIPSUMMARY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

var validate = newValidator()

// newValidator reports fields by their mapstructure key.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("mapstructure")
	})
	return v
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("config validation failed: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, describe(fe))
		}
	}

	if c.Telemetry.Enabled && c.Telemetry.TempoAddr == "" {
		errs = append(errs, "telemetry.tempo_addr is required when telemetry is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// describe renders a validation error with the config key instead of the Go
// field path, e.g. "tracks.unit_system must be one of [metric imperial]".
func describe(fe validator.FieldError) string {
	key := configKey(fe.Namespace())
	switch fe.Tag() {
	case "required", "required_if":
		return key + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %v", key, fe.Param(), fe.Value())
	case "min", "max":
		return fmt.Sprintf("%s must be 1-65535, got %v", key, fe.Value())
	case "gt":
		return fmt.Sprintf("%s must be positive", key)
	case "gte":
		return fmt.Sprintf("%s must not be negative", key)
	}
	return fmt.Sprintf("%s failed %s validation", key, fe.Tag())
}

func configKey(namespace string) string {
	return strings.TrimPrefix(namespace, "Config.")
}
