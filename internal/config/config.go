package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/viper"
)

const EnvPrefix = "TILEFLOW"

type Config struct {
	Render    RenderConfig    `mapstructure:"render"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
}

type RenderConfig struct {
	JPEGQuality int `mapstructure:"jpeg_quality"`
}

type QueueConfig struct {
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	Name          string `mapstructure:"name"`
}

func (q QueueConfig) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	}
}

type WorkerConfig struct {
	Concurrency     int    `mapstructure:"concurrency"`
	MaxActiveJobs   int    `mapstructure:"max_active_jobs"`
	LocalSourceRoot string `mapstructure:"local_source_root"`
	LocalOutputDir  string `mapstructure:"local_output_dir"`
	MetricsAddr     string `mapstructure:"metrics_addr"`
}

type StorageConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Endpoint       string `mapstructure:"endpoint"`
	AccessKey      string `mapstructure:"access_key"`
	SecretKey      string `mapstructure:"secret_key"`
	Bucket         string `mapstructure:"bucket"`
	UseSSL         bool   `mapstructure:"use_ssl"`
	OutputPrefix   string `mapstructure:"output_prefix"`
	MaxObjectBytes int64  `mapstructure:"max_object_bytes"`
}

// DatabaseConfig selects the render log. An empty DSN keeps it in memory.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type TelemetryConfig struct {
	ServiceName  string  `mapstructure:"service_name"`
	Exporter     string  `mapstructure:"exporter"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Capacity int           `mapstructure:"capacity"`
	Window   time.Duration `mapstructure:"window"`
}

type WebhookConfig struct {
	SigningSecret  string        `mapstructure:"signing_secret"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("render.jpeg_quality", 90)

	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.redis_password", "")
	v.SetDefault("queue.redis_db", 0)
	v.SetDefault("queue.name", "renders")

	v.SetDefault("worker.concurrency", max(2, runtime.NumCPU()))
	v.SetDefault("worker.max_active_jobs", max(1, runtime.NumCPU()/2))
	v.SetDefault("worker.local_source_root", "./masters")
	v.SetDefault("worker.local_output_dir", "./.tileflow-output")
	v.SetDefault("worker.metrics_addr", ":9090")

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.access_key", "minioadmin")
	v.SetDefault("storage.secret_key", "minioadmin")
	v.SetDefault("storage.bucket", "tileflow")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.output_prefix", "derivatives")
	v.SetDefault("storage.max_object_bytes", 512<<20)

	v.SetDefault("database.dsn", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)

	v.SetDefault("telemetry.service_name", "tileflow")
	v.SetDefault("telemetry.exporter", "none")
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", false)
	v.SetDefault("telemetry.sample_ratio", 1.0)

	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.capacity", 60)
	v.SetDefault("ratelimit.window", time.Minute)

	v.SetDefault("webhook.signing_secret", "")
	v.SetDefault("webhook.timeout", 10*time.Second)
	v.SetDefault("webhook.max_attempts", 3)
	v.SetDefault("webhook.initial_backoff", time.Second)
	v.SetDefault("webhook.max_backoff", 30*time.Second)
}

// Load reads defaults, then the optional file named by TILEFLOW_CONFIG, then
// TILEFLOW_* environment variables (render.jpeg_quality is
// TILEFLOW_RENDER_JPEG_QUALITY).
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path := strings.TrimSpace(os.Getenv(EnvPrefix + "_CONFIG")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Render.JPEGQuality < 1 || c.Render.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("render.jpeg_quality must be within 1..100, got %d", c.Render.JPEGQuality))
	}
	if c.Worker.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("worker.concurrency must be positive"))
	}
	if strings.TrimSpace(c.Queue.Name) == "" {
		errs = append(errs, fmt.Errorf("queue.name is required"))
	}
	if c.Storage.Enabled && strings.TrimSpace(c.Storage.Bucket) == "" {
		errs = append(errs, fmt.Errorf("storage.bucket is required when storage is enabled"))
	}
	if c.RateLimit.Enabled && (c.RateLimit.Capacity < 1 || c.RateLimit.Window <= 0) {
		errs = append(errs, fmt.Errorf("ratelimit.capacity and ratelimit.window must be positive"))
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sample_ratio must be within 0..1, got %g", c.Telemetry.SampleRatio))
	}
	return errors.Join(errs...)
}
