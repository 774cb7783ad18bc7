package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type (
	// Config holds configuration settings for the runtime
	Config struct {
		// API Server
		APIHost    string `yaml:"api_host"`
		APIPort    int    `yaml:"api_port"`
		LogLevel   string `yaml:"log_level"`
		AdminToken string `yaml:"admin_token"`

		// Storage
		Storage       StoreConfig `yaml:"storage"`
		FileBucketURL string      `yaml:"file_bucket_url"`

		// Runtime
		MaxKeptMsgs     int           `yaml:"max_kept_msgs"`
		LinkCallTimeout time.Duration `yaml:"link_call_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	}

	// StoreConfig selects and configures the flow document store
	StoreConfig struct {
		Kind      string `yaml:"kind"`
		Addr      string `yaml:"addr"`
		Password  string `yaml:"password"`
		DB        int    `yaml:"db"`
		Prefix    string `yaml:"prefix"`
		BucketURL string `yaml:"bucket_url"`
	}
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreBlob   = "blob"

	// StoreTimebox keeps the document as an event-sourced aggregate on
	// redis
	StoreTimebox = "timebox"
)

const (
	DefaultAPIPort = 1880
	DefaultAPIHost = "0.0.0.0"
	MaxTCPPort     = 65535

	DefaultRedisEndpoint = "localhost:6379"
	DefaultRedisDB       = 0
	DefaultStorePrefix   = "wireflow"
	MaxRedisDB           = 15

	DefaultMaxKeptMsgs     = 10_000
	MaxMaxKeptMsgs         = 100_000_000
	DefaultLinkCallTimeout = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	MaxTimeoutSeconds      = 24 * 60 * 60
)

var (
	ErrInvalidAPIPort         = errors.New("invalid API port")
	ErrInvalidMaxKeptMsgs     = errors.New("max kept messages must be positive")
	ErrInvalidLinkCallTimeout = errors.New(
		"link call timeout must be positive",
	)
	ErrInvalidShutdownTimeout = errors.New(
		"shutdown timeout must be positive",
	)
	ErrInvalidStoreKind   = errors.New("invalid storage kind")
	ErrStoreAddrRequired  = errors.New("redis storage requires an address")
	ErrBucketURLRequired  = errors.New("blob storage requires a bucket URL")
	ErrSettingsFileFailed = errors.New("failed to load settings file")
)

// NewDefaultConfig creates a configuration with sensible defaults for the
// admin API, storage and runtime bounds
func NewDefaultConfig() *Config {
	return &Config{
		APIPort:  DefaultAPIPort,
		APIHost:  DefaultAPIHost,
		LogLevel: "info",
		Storage: StoreConfig{
			Kind:   StoreMemory,
			Addr:   DefaultRedisEndpoint,
			DB:     DefaultRedisDB,
			Prefix: DefaultStorePrefix,
		},
		MaxKeptMsgs:     DefaultMaxKeptMsgs,
		LinkCallTimeout: DefaultLinkCallTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// LoadFromFile overlays settings from a YAML document. Keys absent from the
// file keep their current values
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSettingsFileFailed, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("%w: %w", ErrSettingsFileFailed, err)
	}
	return nil
}

// LoadFromEnv populates configuration values from environment variables.
// Returns an error if any env var cannot be parsed.
func (c *Config) LoadFromEnv() error {
	if path := os.Getenv("SETTINGS_FILE"); path != "" {
		if err := c.LoadFromFile(path); err != nil {
			return err
		}
	}

	loadEnvString("API_HOST", &c.APIHost)
	loadEnvString("LOG_LEVEL", &c.LogLevel)
	loadEnvString("ADMIN_TOKEN", &c.AdminToken)
	loadEnvString("FILE_BUCKET_URL", &c.FileBucketURL)
	LoadStoreConfigFromEnv(&c.Storage, "STORAGE")

	if err := loadEnvInt("API_PORT", &c.APIPort, 0, MaxTCPPort); err != nil {
		return err
	}
	if err := loadEnvInt(
		"MAX_KEPT_MSGS", &c.MaxKeptMsgs, 0, MaxMaxKeptMsgs,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"STORAGE_REDIS_DB", &c.Storage.DB, -1, MaxRedisDB,
	); err != nil {
		return err
	}
	if err := loadEnvSeconds(
		"LINK_CALL_TIMEOUT", &c.LinkCallTimeout,
	); err != nil {
		return err
	}
	return loadEnvSeconds("SHUTDOWN_TIMEOUT", &c.ShutdownTimeout)
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort > MaxTCPPort {
		return fmt.Errorf("%w: %d", ErrInvalidAPIPort, c.APIPort)
	}

	if c.MaxKeptMsgs <= 0 {
		return ErrInvalidMaxKeptMsgs
	}

	if c.LinkCallTimeout <= 0 {
		return ErrInvalidLinkCallTimeout
	}

	if c.ShutdownTimeout <= 0 {
		return ErrInvalidShutdownTimeout
	}

	return c.Storage.Validate()
}

// Validate checks the storage settings for the selected kind
func (s *StoreConfig) Validate() error {
	switch s.Kind {
	case StoreMemory:
		return nil
	case StoreRedis, StoreTimebox:
		if s.Addr == "" {
			return ErrStoreAddrRequired
		}
		return nil
	case StoreBlob:
		if s.BucketURL == "" {
			return ErrBucketURLRequired
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStoreKind, s.Kind)
	}
}

// LoadStoreConfigFromEnv loads store configuration from environment
// variables with the given prefix (e.g., "STORAGE")
func LoadStoreConfigFromEnv(s *StoreConfig, prefix string) {
	loadEnvString(prefix+"_KIND", &s.Kind)
	loadEnvString(prefix+"_REDIS_ADDR", &s.Addr)
	loadEnvString(prefix+"_REDIS_PASSWORD", &s.Password)
	loadEnvString(prefix+"_REDIS_PREFIX", &s.Prefix)
	loadEnvString(prefix+"_BUCKET_URL", &s.BucketURL)
}

func loadEnvString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// loadEnvSeconds reads a positive whole number of seconds into a duration
func loadEnvSeconds(key string, dst *time.Duration) error {
	secs := int(*dst / time.Second)
	if err := loadEnvInt(key, &secs, 0, MaxTimeoutSeconds); err != nil {
		return err
	}
	*dst = time.Duration(secs) * time.Second
	return nil
}

// loadEnvInt reads key from the environment, parses it as an integer, and
// sets *dst if the value is in the range (min, max]. Returns an error if
// the value cannot be parsed or falls outside the valid range.
func loadEnvInt[T ~int | ~int64](key string, dst *T, min, max T) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	tv := T(v)
	if tv <= min || tv > max {
		return fmt.Errorf("invalid %s: %d out of range [%d, %d]",
			key, tv, min+1, max)
	}
	*dst = tv
	return nil
}
