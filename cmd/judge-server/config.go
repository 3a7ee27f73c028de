package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"judgebox/internal/common/cache"
	commonmw "judgebox/internal/common/http/middleware"
	"judgebox/internal/common/mq"
	"judgebox/internal/judge/model"
	"judgebox/internal/judge/sandbox"
	"judgebox/pkg/utils/logger"

	"github.com/segmentio/kafka-go"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:2358"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 30 * time.Second
	defaultStoreTTL        = 24 * time.Hour
	defaultVerdictTopic    = "judge.verdict.final"
	defaultMetricsPath     = "/metrics"

	storeMemory = "memory"
	storeRedis  = "redis"
)

// AppSection names the deployment environment.
type AppSection struct {
	Env string `yaml:"env"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	Gzip            bool          `yaml:"gzip"`
}

// SandboxConfig holds sandbox strategy settings.
type SandboxConfig struct {
	Mode              string        `yaml:"mode"`
	AllowDegraded     bool          `yaml:"allowDegraded"`
	IsolatePath       string        `yaml:"isolatePath"`
	BoxFirst          int           `yaml:"boxFirst"`
	BoxCount          int           `yaml:"boxCount"`
	UseSudo           bool          `yaml:"useSudo"`
	DegradedTimeout   time.Duration `yaml:"degradedTimeout"`
	DegradedMaxOutput int           `yaml:"degradedMaxOutput"`
	TempRoot          string        `yaml:"tempRoot"`
}

// LimitsConfig holds request defaults and ceilings.
type LimitsConfig struct {
	Defaults       model.Limits `yaml:"defaults"`
	Ceiling        model.Limits `yaml:"ceiling"`
	MaxSourceBytes int          `yaml:"maxSourceBytes"`
}

// WorkerConfig holds worker pool settings.
type WorkerConfig struct {
	PoolSize  int           `yaml:"poolSize"`
	QueueSize int           `yaml:"queueSize"`
	Timeout   time.Duration `yaml:"timeout"`
}

// StoreConfig selects the submission store.
type StoreConfig struct {
	Driver string            `yaml:"driver"`
	Prefix string            `yaml:"prefix"`
	TTL    time.Duration     `yaml:"ttl"`
	Redis  cache.RedisConfig `yaml:"redis"`
}

// KafkaConfig holds verdict publishing settings. No brokers disables publishing.
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	ClientID     string        `yaml:"clientID"`
	Topic        string        `yaml:"topic"`
	RequiredAcks int           `yaml:"requiredAcks"`
	BatchSize    int           `yaml:"batchSize"`
	BatchTimeout time.Duration `yaml:"batchTimeout"`
	Async        bool          `yaml:"async"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

// RateLimitConfig guards submission creation.
type RateLimitConfig struct {
	Enabled                  bool `yaml:"enabled"`
	commonmw.RateLimitConfig `yaml:",inline"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// StreamConfig tunes websocket status streams.
type StreamConfig struct {
	PollInterval time.Duration `yaml:"pollInterval"`
	MaxDuration  time.Duration `yaml:"maxDuration"`
}

// AppConfig holds judge-server config.
type AppConfig struct {
	App       AppSection          `yaml:"app"`
	Server    ServerConfig        `yaml:"server"`
	Logger    logger.Config       `yaml:"logger"`
	Sandbox   SandboxConfig       `yaml:"sandbox"`
	Limits    LimitsConfig        `yaml:"limits"`
	Worker    WorkerConfig        `yaml:"worker"`
	Store     StoreConfig         `yaml:"store"`
	Kafka     KafkaConfig         `yaml:"kafka"`
	RateLimit RateLimitConfig     `yaml:"rateLimit"`
	CORS      commonmw.CORSConfig `yaml:"cors"`
	Metrics   MetricsConfig       `yaml:"metrics"`
	Stream    StreamConfig        `yaml:"stream"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if err := applyDefaults(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) error {
	cfg.App.Env = strings.ToLower(strings.TrimSpace(cfg.App.Env))
	if cfg.App.Env == "" {
		cfg.App.Env = sandbox.EnvProduction
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = defaultShutdownTimeout
	}

	if cfg.Sandbox.Mode == "" {
		cfg.Sandbox.Mode = sandbox.ModeIsolate
	}
	if cfg.Sandbox.Mode == sandbox.ModeDegraded && cfg.App.Env == sandbox.EnvProduction {
		return fmt.Errorf("sandbox mode %q is not allowed when app.env is %q", sandbox.ModeDegraded, sandbox.EnvProduction)
	}

	cfg.Limits.Defaults = cfg.Limits.Defaults.FillZero(model.DefaultRunLimits())
	cfg.Limits.Ceiling = cfg.Limits.Ceiling.FillZero(model.DefaultCompileLimits())
	if field := cfg.Limits.Defaults.Exceeds(cfg.Limits.Ceiling); field != "" {
		return fmt.Errorf("default %s exceeds its ceiling", field)
	}

	if cfg.Worker.PoolSize <= 0 {
		cfg.Worker.PoolSize = 4
	}
	if cfg.Worker.QueueSize <= 0 {
		cfg.Worker.QueueSize = cfg.Worker.PoolSize * 16
	}
	if cfg.Sandbox.BoxCount <= 0 {
		cfg.Sandbox.BoxCount = cfg.Worker.PoolSize
	}
	if cfg.Sandbox.BoxCount < cfg.Worker.PoolSize {
		return fmt.Errorf("sandbox.boxCount (%d) must be at least worker.poolSize (%d)", cfg.Sandbox.BoxCount, cfg.Worker.PoolSize)
	}

	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	switch cfg.Store.Driver {
	case "":
		cfg.Store.Driver = storeMemory
	case storeMemory:
	case storeRedis:
		if cfg.Store.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr is required for the redis driver")
		}
		applyRedisDefaults(&cfg.Store.Redis)
	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if cfg.Store.TTL == 0 {
		cfg.Store.TTL = defaultStoreTTL
	}

	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = defaultVerdictTopic
	}
	if cfg.Kafka.ClientID == "" {
		cfg.Kafka.ClientID = "judgebox"
	}

	if cfg.Metrics.Enabled == nil {
		enabled := true
		cfg.Metrics.Enabled = &enabled
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = defaultMetricsPath
	}
	return nil
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	defaults := cache.DefaultRedisConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = defaults.MinIdleConns
	}
}

func (c SandboxConfig) toSandboxConfig(env string, compile model.Limits) sandbox.Config {
	return sandbox.Config{
		Mode:              c.Mode,
		AllowDegraded:     c.AllowDegraded,
		Environment:       env,
		IsolatePath:       c.IsolatePath,
		BoxFirst:          c.BoxFirst,
		BoxCount:          c.BoxCount,
		Sudo:              c.UseSudo,
		CompileLimits:     compile,
		DegradedTimeout:   c.DegradedTimeout,
		DegradedMaxOutput: c.DegradedMaxOutput,
		TempRoot:          c.TempRoot,
	}
}

func (c KafkaConfig) toProducerConfig() mq.KafkaConfig {
	acks := kafka.RequireAll
	if c.RequiredAcks == 1 {
		acks = kafka.RequireOne
	}
	return mq.KafkaConfig{
		Brokers:      c.Brokers,
		ClientID:     c.ClientID,
		RequiredAcks: acks,
		BatchSize:    c.BatchSize,
		BatchTimeout: c.BatchTimeout,
		Async:        c.Async,
		DialTimeout:  c.DialTimeout,
		WriteTimeout: c.WriteTimeout,
	}
}
