// Package config loads and validates archiver configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage modes and remote providers.
const (
	StorageModeLocal  = "local"
	StorageModeRemote = "remote"

	ProviderGCS = "gcs"
	ProviderS3  = "s3"

	MissingExtensionStore = "store"
	MissingExtensionSkip  = "skip"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Archiver ArchiverConfig `mapstructure:"archiver"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ArchiverConfig governs the archive pipeline and the run workers.
type ArchiverConfig struct {
	// Workers bounds concurrent asset downloads within one run.
	Workers          int    `mapstructure:"workers"`
	MissingExtension string `mapstructure:"missing_extension"`
	MaxStoreFailures int    `mapstructure:"max_store_failures"`
	// Concurrency is the number of runs executed at once in serve mode.
	Concurrency int    `mapstructure:"concurrency"`
	QueueDepth  int    `mapstructure:"queue_depth"`
	UserAgent   string `mapstructure:"user_agent"`
}

// HTTPConfig configures the shared HTTP client.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	// RatePerHost caps requests per second to one host; 0 disables it.
	RatePerHost  float64 `mapstructure:"rate_per_host"`
	BurstPerHost int     `mapstructure:"burst_per_host"`
	// MaxBodyBytes caps page and asset bodies. A larger body fails the
	// download instead of being stored cut short; negative removes the cap.
	MaxBodyBytes int `mapstructure:"max_body_bytes"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxParallel     int  `mapstructure:"max_parallel"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds"`
	PromotionThresh int  `mapstructure:"promotion_threshold"`
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	Mode   string              `mapstructure:"mode"`
	Local  LocalStorageConfig  `mapstructure:"local"`
	Remote RemoteStorageConfig `mapstructure:"remote"`
}

// LocalStorageConfig configures the filesystem backend.
type LocalStorageConfig struct {
	RootPath     string `mapstructure:"root_path"`
	PublicPrefix string `mapstructure:"public_prefix"`
}

// RemoteStorageConfig configures the object storage backend.
type RemoteStorageConfig struct {
	Provider        string `mapstructure:"provider"`
	Container       string `mapstructure:"container"`
	CDNBaseURL      string `mapstructure:"cdn_base_url"`
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	AccessKey       string `mapstructure:"access_key"`
	SecretKey       string `mapstructure:"secret_key"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// DBConfig controls access to the run record database.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	Table                  string `mapstructure:"table"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
}

// PubSubConfig holds metadata for completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ARCHIVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("archiver.workers", 4)
	v.SetDefault("archiver.missing_extension", MissingExtensionStore)
	v.SetDefault("archiver.max_store_failures", 3)
	v.SetDefault("archiver.concurrency", 2)
	v.SetDefault("archiver.queue_depth", 64)
	v.SetDefault("archiver.user_agent", "page-archiver/0.1")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.rate_per_host", 0)
	v.SetDefault("http.burst_per_host", 4)
	v.SetDefault("http.max_body_bytes", 32<<20)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.promotion_threshold", 60)
	v.SetDefault("storage.mode", StorageModeLocal)
	v.SetDefault("storage.local.root_path", "./archive")
	v.SetDefault("storage.local.public_prefix", "")
	v.SetDefault("storage.remote.provider", ProviderGCS)
	v.SetDefault("storage.remote.container", "")
	v.SetDefault("storage.remote.cdn_base_url", "")
	v.SetDefault("storage.remote.endpoint", "")
	v.SetDefault("storage.remote.region", "us-east-1")
	v.SetDefault("storage.remote.use_ssl", true)
	v.SetDefault("storage.remote.access_key", "")
	v.SetDefault("storage.remote.secret_key", "")
	v.SetDefault("storage.remote.credentials_file", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "archive_runs")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime_minutes", 30)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Archiver.Workers <= 0 {
		return fmt.Errorf("archiver.workers must be > 0")
	}
	if c.Archiver.Concurrency <= 0 {
		return fmt.Errorf("archiver.concurrency must be > 0")
	}
	if c.Archiver.QueueDepth <= 0 {
		return fmt.Errorf("archiver.queue_depth must be > 0")
	}
	if c.Archiver.MaxStoreFailures <= 0 {
		return fmt.Errorf("archiver.max_store_failures must be > 0")
	}
	switch c.Archiver.MissingExtension {
	case MissingExtensionStore, MissingExtensionSkip:
	default:
		return fmt.Errorf("archiver.missing_extension must be %q or %q", MissingExtensionStore, MissingExtensionSkip)
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.RatePerHost < 0 {
		return fmt.Errorf("http.rate_per_host must be >= 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return c.Storage.Validate()
}

// Validate checks the backend selection is complete.
func (s StorageConfig) Validate() error {
	switch s.Mode {
	case StorageModeLocal:
		if strings.TrimSpace(s.Local.RootPath) == "" {
			return fmt.Errorf("storage.local.root_path is required for local storage")
		}
	case StorageModeRemote:
		if strings.TrimSpace(s.Remote.Container) == "" {
			return fmt.Errorf("storage.remote.container is required for remote storage")
		}
		switch s.Remote.Provider {
		case ProviderGCS:
		case ProviderS3:
			if s.Remote.Endpoint == "" {
				return fmt.Errorf("storage.remote.endpoint is required for the s3 provider")
			}
		default:
			return fmt.Errorf("storage.remote.provider must be %q or %q", ProviderGCS, ProviderS3)
		}
	default:
		return fmt.Errorf("storage.mode must be %q or %q", StorageModeLocal, StorageModeRemote)
	}
	return nil
}

// FetchTimeout converts the HTTP timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// NavTimeout converts the headless navigation timeout into a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSec) * time.Second
}
