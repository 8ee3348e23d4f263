package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g.
// NOTIFCAL_STORE_DSN or NOTIFCAL_SYNC_MAX_PARALLEL.
const EnvPrefix = "NOTIFCAL"

type StoreConfig struct {
	// DSN selects the database: sqlite3://path, a bare file path or a
	// postgres:// URL.
	DSN string `yaml:"dsn" json:"dsn" envconfig:"dsn"`
}

type ReasoningConfig struct {
	// Endpoint is the base URL of an OpenAI compatible API.
	Endpoint string        `yaml:"endpoint" json:"endpoint" envconfig:"endpoint"`
	APIKey   string        `yaml:"api_key" json:"-" envconfig:"api_key"`
	Model    string        `yaml:"model" json:"model" envconfig:"model"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout" envconfig:"timeout"`
}

type SyncConfig struct {
	MaxParallel int           `yaml:"max_parallel" json:"max_parallel" envconfig:"max_parallel"`
	CallTimeout time.Duration `yaml:"call_timeout" json:"call_timeout" envconfig:"call_timeout"`
	// RetrySchedule is a cron spec for retrying events that are out of
	// sync, e.g. "@every 5m" or "*/10 * * * *".
	RetrySchedule string `yaml:"retry_schedule" json:"retry_schedule" envconfig:"retry_schedule"`
}

type GoogleConfig struct {
	// CredentialsFile is the OAuth client JSON used to refresh tokens.
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file" envconfig:"credentials_file"`
}

type AMQPConfig struct {
	// URL enables the RabbitMQ notification source when set.
	URL      string `yaml:"url" json:"-" envconfig:"url"`
	Queue    string `yaml:"queue" json:"queue" envconfig:"queue"`
	Prefetch int    `yaml:"prefetch" json:"prefetch" envconfig:"prefetch"`
}

type AuthConfig struct {
	// JWTSecret enables bearer authentication of the HTTP API when set.
	JWTSecret string `yaml:"jwt_secret" json:"-" envconfig:"jwt_secret"`
}

type TracingConfig struct {
	// OTLPEndpoint is a host:port of an OTLP gRPC collector. Tracing is
	// disabled when empty.
	OTLPEndpoint string `yaml:"otlp_endpoint" json:"otlp_endpoint" envconfig:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name" json:"service_name" envconfig:"service_name"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address of the API.
	Listen string `yaml:"listen" json:"listen" envconfig:"listen"`
	// LogLevel is one of debug, info, warn or error.
	LogLevel string `yaml:"log_level" json:"log_level" envconfig:"log_level"`
	// Timezone is the IANA zone timed events are written in.
	Timezone string `yaml:"timezone" json:"timezone" envconfig:"timezone"`

	Store     StoreConfig     `yaml:"store" json:"store" envconfig:"store"`
	Reasoning ReasoningConfig `yaml:"reasoning" json:"reasoning" envconfig:"reasoning"`
	Sync      SyncConfig      `yaml:"sync" json:"sync" envconfig:"sync"`
	Google    GoogleConfig    `yaml:"google" json:"google" envconfig:"google"`
	AMQP      AMQPConfig      `yaml:"amqp" json:"amqp" envconfig:"amqp"`
	Auth      AuthConfig      `yaml:"auth" json:"auth" envconfig:"auth"`
	Tracing   TracingConfig   `yaml:"tracing" json:"tracing" envconfig:"tracing"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:   "127.0.0.1:8080",
		LogLevel: "info",
		Timezone: "UTC",
		Store: StoreConfig{
			DSN: "sqlite3://notifcal.db",
		},
		Reasoning: ReasoningConfig{
			Endpoint: "https://api.openai.com/v1",
			Model:    "gpt-4o-mini",
			Timeout:  30 * time.Second,
		},
		Sync: SyncConfig{
			MaxParallel:   4,
			CallTimeout:   15 * time.Second,
			RetrySchedule: "@every 5m",
		},
		AMQP: AMQPConfig{
			Queue:    "notifications",
			Prefetch: 8,
		},
		Tracing: TracingConfig{
			ServiceName: "notifcal",
		},
	}
}

// Normalize fills in missing/zero values with defaults so partially
// filled files still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	switch c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel)); c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		c.LogLevel = def.LogLevel
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.Store.DSN == "" {
		c.Store.DSN = def.Store.DSN
	}
	if c.Reasoning.Endpoint == "" {
		c.Reasoning.Endpoint = def.Reasoning.Endpoint
	}
	if c.Reasoning.Model == "" {
		c.Reasoning.Model = def.Reasoning.Model
	}
	if c.Reasoning.Timeout <= 0 {
		c.Reasoning.Timeout = def.Reasoning.Timeout
	}
	if c.Sync.MaxParallel <= 0 {
		c.Sync.MaxParallel = def.Sync.MaxParallel
	}
	if c.Sync.CallTimeout <= 0 {
		c.Sync.CallTimeout = def.Sync.CallTimeout
	}
	if c.Sync.RetrySchedule == "" {
		c.Sync.RetrySchedule = def.Sync.RetrySchedule
	}
	if c.AMQP.Queue == "" {
		c.AMQP.Queue = def.AMQP.Queue
	}
	if c.AMQP.Prefetch <= 0 {
		c.AMQP.Prefetch = def.AMQP.Prefetch
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = def.Tracing.ServiceName
	}
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Load reads the YAML file at path and applies environment overrides.
//
// An empty path skips the file. A missing file is created with the
// defaults and 0600 permissions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			if err := Save(path, cfg); err != nil {
				return nil, err
			}
		case err != nil:
			return nil, err
		default:
			cfg = &Config{}
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parsing %s: %w", path, err)
			}
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("config: reading environment: %w", err)
	}
	cfg.Normalize()
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path atomically via a temp file and rename.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".notifcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
