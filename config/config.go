package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Upstream     UpstreamConfig     `yaml:"upstream"`
	Cache        CacheConfig        `yaml:"cache"`
	Queue        QueueConfig        `yaml:"queue"`
	Sync         SyncConfig         `yaml:"sync"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
	Database     DatabaseConfig     `yaml:"database"`
	Push         PushConfig         `yaml:"push"`
	WorkerPool   WorkerPoolConfig   `yaml:"worker_pool"`
	Log          LogConfig          `yaml:"log"`
}

// ServerConfig holds the local HTTP surface configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	GinMode         string  `yaml:"gin_mode"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
}

// UpstreamConfig points at the remote order/menu API.
type UpstreamConfig struct {
	BaseURL        string        `yaml:"base_url"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	Timeout        time.Duration `yaml:"-"`
	HTTPProxy      string        `yaml:"http_proxy"`
}

// CacheConfig describes the two response cache partitions.
type CacheConfig struct {
	Prefix       string   `yaml:"prefix"`
	Version      string   `yaml:"version"`
	Backend      string   `yaml:"backend"` // sqlite (database) or memory
	APIPrefix    string   `yaml:"api_prefix"`
	StaticURLs   []string `yaml:"static_urls"`
	APIURLs      []string `yaml:"api_urls"`
	WriteWorkers int      `yaml:"write_workers"`
}

// StaticPartition returns the versioned name of the static-asset partition.
func (c CacheConfig) StaticPartition() string {
	return fmt.Sprintf("%s-%s", c.Prefix, c.Version)
}

// APIPartition returns the versioned name of the API-response partition.
func (c CacheConfig) APIPartition() string {
	return fmt.Sprintf("%s-api-%s", c.Prefix, c.Version)
}

// QueueConfig holds the pending-order queue settings.
type QueueConfig struct {
	StorageKey string `yaml:"storage_key"`
	MaxBytes   int    `yaml:"max_bytes"`
}

// SyncConfig holds the background sync settings.
type SyncConfig struct {
	Tag                  string        `yaml:"tag"`
	RetryIntervalSeconds int           `yaml:"retry_interval_seconds"`
	RetryInterval        time.Duration `yaml:"-"`
}

// ConnectivityConfig controls the upstream reachability probe.
type ConnectivityConfig struct {
	ProbePath       string        `yaml:"probe_path"`
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // sqlite or postgres
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogQueries             bool   `yaml:"log_queries"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are present.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// LogConfig selects the zap encoder.
type LogConfig struct {
	Production bool `yaml:"production"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	// Defaults never fail validation.
	_ = cfg.applyDefaults()
	return &cfg
}

func (cfg *Config) applyDefaults() error {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}

	if cfg.Upstream.BaseURL == "" {
		cfg.Upstream.BaseURL = "http://localhost:8001"
	}
	if _, err := url.Parse(cfg.Upstream.BaseURL); err != nil {
		return fmt.Errorf("invalid upstream.base_url %q: %w", cfg.Upstream.BaseURL, err)
	}
	if cfg.Upstream.TimeoutSeconds <= 0 {
		cfg.Upstream.TimeoutSeconds = 15
	}
	cfg.Upstream.Timeout = time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second

	if cfg.Cache.Prefix == "" {
		cfg.Cache.Prefix = "artisan-bakery"
	}
	if cfg.Cache.Version == "" {
		cfg.Cache.Version = "v1"
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "sqlite"
	}
	if cfg.Cache.APIPrefix == "" {
		cfg.Cache.APIPrefix = "/api/"
	}
	if cfg.Cache.StaticURLs == nil {
		cfg.Cache.StaticURLs = []string{
			"/",
			"/cafe",
			"/bakery",
			"/static/js/bundle.js",
			"/static/css/main.css",
			"/manifest.json",
		}
	}
	if cfg.Cache.APIURLs == nil {
		cfg.Cache.APIURLs = []string{"/api/menu", "/api/menu/cafe", "/api/menu/bakery"}
	}
	if cfg.Cache.WriteWorkers <= 0 {
		cfg.Cache.WriteWorkers = 2
	}

	if cfg.Queue.StorageKey == "" {
		cfg.Queue.StorageKey = "pendingOrders"
	}
	if cfg.Queue.MaxBytes <= 0 {
		cfg.Queue.MaxBytes = 5 << 20
	}

	if cfg.Sync.Tag == "" {
		cfg.Sync.Tag = "order-sync"
	}
	if cfg.Sync.RetryIntervalSeconds <= 0 {
		cfg.Sync.RetryIntervalSeconds = 30
	}
	cfg.Sync.RetryInterval = time.Duration(cfg.Sync.RetryIntervalSeconds) * time.Second

	if cfg.Connectivity.ProbePath == "" {
		cfg.Connectivity.ProbePath = "/api/"
	}
	if cfg.Connectivity.IntervalSeconds <= 0 {
		cfg.Connectivity.IntervalSeconds = 10
	}
	cfg.Connectivity.Interval = time.Duration(cfg.Connectivity.IntervalSeconds) * time.Second

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "./bakery-edge.db"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
	return nil
}
