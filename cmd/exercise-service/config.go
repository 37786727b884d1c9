package main

import (
	"fmt"
	"os"
	"time"

	"exforge/internal/common/cache"
	"exforge/internal/common/db"
	commonmw "exforge/internal/common/http/middleware"
	"exforge/internal/common/mq"
	"exforge/internal/common/storage"
	"exforge/internal/exercise/ci"
	"exforge/internal/exercise/schedule"
	"exforge/internal/exercise/vcs"
	"exforge/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8085"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 60 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second

	driverMySQL    = "mysql"
	driverPostgres = "postgres"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string                   `yaml:"addr"`
	ReadTimeout    time.Duration            `yaml:"readTimeout"`
	WriteTimeout   time.Duration            `yaml:"writeTimeout"`
	IdleTimeout    time.Duration            `yaml:"idleTimeout"`
	CORS           commonmw.CORSConfig      `yaml:"cors"`
	ProvisionLimit commonmw.RateLimitPolicy `yaml:"provisionLimit"`
}

// DatabaseConfig selects the SQL driver for the exercise store.
type DatabaseConfig struct {
	Driver        string `yaml:"driver"`
	db.PoolConfig `yaml:",inline"`
}

// QueueConfig selects the message queue. Without brokers an in-process queue is used.
type QueueConfig struct {
	Kafka mq.KafkaConfig `yaml:"kafka"`
}

// InMemory reports whether no brokers are configured.
func (c QueueConfig) InMemory() bool {
	return len(c.Kafka.Brokers) == 0
}

// AccessConfig configures lock/unlock command delivery.
type AccessConfig struct {
	Topic         string        `yaml:"topic"`
	ConsumerGroup string        `yaml:"consumerGroup"`
	Parallel      int           `yaml:"parallel"`
	Timeout       time.Duration `yaml:"timeout"`
	Concurrency   int           `yaml:"concurrency"`
	MaxRetries    int           `yaml:"maxRetries"`
	// DeadLetterTopic receives lock/unlock events whose retries ran out.
	DeadLetterTopic string `yaml:"deadLetterTopic"`
}

func (c AccessConfig) toSubscribeOptions() *mq.SubscribeOptions {
	return &mq.SubscribeOptions{
		ConsumerGroup:   c.ConsumerGroup,
		Concurrency:     c.Concurrency,
		MaxRetries:      c.MaxRetries,
		DeadLetterTopic: c.DeadLetterTopic,
	}
}

// CleanupConfig configures archive cleanup after exercise deletion.
type CleanupConfig struct {
	Topic         string        `yaml:"topic"`
	ConsumerGroup string        `yaml:"consumerGroup"`
	BatchSize     int           `yaml:"batchSize"`
	ListTimeout   time.Duration `yaml:"listTimeout"`
	DeleteTimeout time.Duration `yaml:"deleteTimeout"`
}

func (c CleanupConfig) toSubscribeOptions() *mq.SubscribeOptions {
	return &mq.SubscribeOptions{ConsumerGroup: c.ConsumerGroup}
}

// ArchiveConfig locates uploaded exercise archives.
type ArchiveConfig struct {
	KeyPrefix string `yaml:"keyPrefix"`
}

// ImportConfig tunes the import guard.
type ImportConfig struct {
	LockTTL   time.Duration `yaml:"lockTTL"`
	BranchTTL time.Duration `yaml:"branchTTL"`
}

// AppConfig holds the exercise-service configuration.
type AppConfig struct {
	Server ServerConfig  `yaml:"server"`
	Logger logger.Config `yaml:"logger"`

	Database DatabaseConfig         `yaml:"database"`
	Redis    cache.RedisConfig      `yaml:"redis"`
	Queue    QueueConfig            `yaml:"queue"`
	MinIO    storage.MinIOConfig    `yaml:"minio"`
	Git      vcs.GitConfig          `yaml:"git"`
	VCS      vcs.LocalBareVCSConfig `yaml:"vcs"`
	CI       ci.RegistryConfig      `yaml:"ci"`
	Schedule schedule.Config        `yaml:"schedule"`
	Access   AccessConfig           `yaml:"access"`
	Cleanup  CleanupConfig          `yaml:"cleanup"`
	Archive  ArchiveConfig          `yaml:"archive"`
	Import   ImportConfig           `yaml:"import"`
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
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	switch cfg.Database.Driver {
	case "":
		cfg.Database.Driver = driverMySQL
	case driverMySQL, driverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if cfg.VCS.Root == "" {
		return nil, fmt.Errorf("vcs root is required")
	}
	applyRedisDefaults(&cfg.Redis)

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

	if cfg.Access.ConsumerGroup == "" {
		cfg.Access.ConsumerGroup = "exercise-access"
	}
	if cfg.Cleanup.Topic == "" {
		cfg.Cleanup.Topic = "exercise.cleanup"
	}
	if cfg.Cleanup.ConsumerGroup == "" {
		cfg.Cleanup.ConsumerGroup = "exercise-cleanup"
	}
	if cfg.Archive.KeyPrefix == "" {
		cfg.Archive.KeyPrefix = "exercises"
	}
	return &cfg, nil
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	if cfg == nil {
		return
	}
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
	if cfg.PoolTimeout == 0 {
		cfg.PoolTimeout = defaults.PoolTimeout
	}
}
