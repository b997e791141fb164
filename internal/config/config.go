package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

var ErrMissingConnectionString = errors.New("storage connection string is not set (PIXELFN_STORAGE_CONNECTION_STRING or AZURE_STORAGE_CONNECTION_STRING)")

type Config struct {
	API       APIConfig
	Storage   StorageConfig
	Log       LogConfig
	Tracing   TracingConfig
	RateLimit RateLimitConfig
}

type APIConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type StorageConfig struct {
	ConnectionString string
	SourceContainer  string
	DestContainer    string
	LogTable         string
	EnsureContainers bool
}

type LogConfig struct {
	Level  string
	Format string
}

type TracingConfig struct {
	ServiceName  string
	Exporter     string
	OTLPEndpoint string
	OTLPInsecure bool
}

type RateLimitConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Capacity      int
	Window        time.Duration
	UserIDHeader  string
}

func (r RateLimitConfig) Enabled() bool {
	return strings.TrimSpace(r.RedisAddr) != ""
}

func (r RateLimitConfig) RedisOptions() *redis.Options {
	return &redis.Options{
		Addr:     r.RedisAddr,
		Password: r.RedisPassword,
		DB:       r.RedisDB,
	}
}

// Load reads configuration from the environment, after merging an optional
// .env file. A missing connection string is a startup error.
func Load() (Config, error) {
	envFile := os.Getenv("PIXELFN_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := loadDotEnv(envFile); err != nil {
		return Config{}, err
	}

	v := viper.New()
	bind(v, "api.addr", ":8080", "PIXELFN_API_ADDR")
	bind(v, "api.read_timeout", 15*time.Second, "PIXELFN_API_READ_TIMEOUT")
	bind(v, "api.write_timeout", 60*time.Second, "PIXELFN_API_WRITE_TIMEOUT")
	bind(v, "api.idle_timeout", 60*time.Second, "PIXELFN_API_IDLE_TIMEOUT")
	bind(v, "api.shutdown_timeout", 10*time.Second, "PIXELFN_SHUTDOWN_TIMEOUT")

	bind(v, "storage.connection_string", "", "PIXELFN_STORAGE_CONNECTION_STRING", "AZURE_STORAGE_CONNECTION_STRING")
	bind(v, "storage.source_container", "src", "PIXELFN_SOURCE_CONTAINER")
	bind(v, "storage.dest_container", "dest", "PIXELFN_DEST_CONTAINER")
	bind(v, "storage.log_table", "image-logs", "PIXELFN_LOG_TABLE")
	bind(v, "storage.ensure_containers", true, "PIXELFN_ENSURE_CONTAINERS")

	bind(v, "log.level", "info", "PIXELFN_LOG_LEVEL")
	bind(v, "log.format", "json", "PIXELFN_LOG_FORMAT")

	bind(v, "tracing.service_name", "pixelfn-api", "PIXELFN_SERVICE_NAME")
	bind(v, "tracing.exporter", "none", "PIXELFN_TRACE_EXPORTER")
	bind(v, "tracing.otlp_endpoint", "", "PIXELFN_OTLP_ENDPOINT")
	bind(v, "tracing.otlp_insecure", false, "PIXELFN_OTLP_INSECURE")

	bind(v, "rate_limit.redis_addr", "", "PIXELFN_RATE_LIMIT_REDIS_ADDR")
	bind(v, "rate_limit.redis_password", "", "PIXELFN_RATE_LIMIT_REDIS_PASSWORD")
	bind(v, "rate_limit.redis_db", 0, "PIXELFN_RATE_LIMIT_REDIS_DB")
	bind(v, "rate_limit.capacity", 60, "PIXELFN_RATE_LIMIT_CAPACITY")
	bind(v, "rate_limit.window", time.Minute, "PIXELFN_RATE_LIMIT_WINDOW")
	bind(v, "rate_limit.user_header", "X-User-ID", "PIXELFN_RATE_LIMIT_USER_HEADER")

	cfg := Config{
		API: APIConfig{
			Addr:            v.GetString("api.addr"),
			ReadTimeout:     v.GetDuration("api.read_timeout"),
			WriteTimeout:    v.GetDuration("api.write_timeout"),
			IdleTimeout:     v.GetDuration("api.idle_timeout"),
			ShutdownTimeout: v.GetDuration("api.shutdown_timeout"),
		},
		Storage: StorageConfig{
			ConnectionString: strings.TrimSpace(v.GetString("storage.connection_string")),
			SourceContainer:  v.GetString("storage.source_container"),
			DestContainer:    v.GetString("storage.dest_container"),
			LogTable:         v.GetString("storage.log_table"),
			EnsureContainers: v.GetBool("storage.ensure_containers"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Tracing: TracingConfig{
			ServiceName:  v.GetString("tracing.service_name"),
			Exporter:     v.GetString("tracing.exporter"),
			OTLPEndpoint: v.GetString("tracing.otlp_endpoint"),
			OTLPInsecure: v.GetBool("tracing.otlp_insecure"),
		},
		RateLimit: RateLimitConfig{
			RedisAddr:     v.GetString("rate_limit.redis_addr"),
			RedisPassword: v.GetString("rate_limit.redis_password"),
			RedisDB:       v.GetInt("rate_limit.redis_db"),
			Capacity:      v.GetInt("rate_limit.capacity"),
			Window:        v.GetDuration("rate_limit.window"),
			UserIDHeader:  v.GetString("rate_limit.user_header"),
		},
	}

	if cfg.Storage.ConnectionString == "" {
		return Config{}, ErrMissingConnectionString
	}
	return cfg, nil
}

func bind(v *viper.Viper, key string, fallback any, envs ...string) {
	v.SetDefault(key, fallback)
	// BindEnv only fails without a key.
	_ = v.BindEnv(append([]string{key}, envs...)...)
}

// loadDotEnv merges the file into the environment without overriding
// variables that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat env file %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}
