// Package config loads application configuration from YAML.
//
// Configuration is resolved in two layers: DefaultConfig supplies
// production-ready values, and an optional YAML file overrides them.
// Only the store section matching the selected provider is consulted.
package config

import (
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/gillohner/pubky-tools/internal/cache"
	"github.com/gillohner/pubky-tools/internal/capability"
	"github.com/gillohner/pubky-tools/internal/drive"
	"github.com/gillohner/pubky-tools/internal/errs"
	"github.com/gillohner/pubky-tools/internal/logger"
	"github.com/gillohner/pubky-tools/internal/store"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return errs.Wrap(errs.ErrKindValidation, "duration must be a string", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return errs.Wrap(errs.ErrKindValidation, "invalid duration "+raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the full application configuration.
type Config struct {
	// Log controls log level and output format.
	Log LogConfig `yaml:"log"`

	// Store selects the storage backend and its connection settings.
	Store StoreConfig `yaml:"store"`

	// Cache tunes the content and listing caches.
	Cache CacheConfig `yaml:"cache"`

	// Drive tunes the file facade.
	Drive DriveConfig `yaml:"drive"`

	// HTTP configures the gateway server.
	HTTP HTTPConfig `yaml:"http"`
}

// LogConfig controls logging behavior.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is json or console.
	Format string `yaml:"format"`
}

// StoreConfig selects and configures the storage backend.
type StoreConfig struct {
	// Provider is one of memory, homeserver, minio, postgres.
	Provider string `yaml:"provider"`

	// Endpoint is the homeserver base URL or the MinIO host:port.
	Endpoint string `yaml:"endpoint"`

	// AccessKey / SecretKey are MinIO credentials.
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`

	// UseSSL enables TLS for the MinIO connection.
	UseSSL bool `yaml:"use_ssl"`

	// Region is for region-aware MinIO deployments.
	Region string `yaml:"region"`

	// Bucket holds all objects on the MinIO backend.
	Bucket string `yaml:"bucket"`

	// DSN is the Postgres connection string.
	DSN string `yaml:"dsn"`

	// RequestTimeout bounds every single store call.
	RequestTimeout Duration `yaml:"request_timeout"`
}

// CacheConfig tunes the TTL caches.
type CacheConfig struct {
	// TTL is how long entries stay retrievable.
	TTL Duration `yaml:"ttl"`

	// MaxEntries caps each cache; oldest entries are evicted past it.
	// 0 means unbounded.
	MaxEntries int `yaml:"max_entries"`

	// JanitorInterval is how often expired entries are swept in the
	// background. 0 disables the janitor; lookups still self-evict.
	JanitorInterval Duration `yaml:"janitor_interval"`
}

// DriveConfig tunes the file facade.
type DriveConfig struct {
	// ListLimit caps a single store listing page. 0 uses the backend default.
	ListLimit int `yaml:"list_limit"`
}

// HTTPConfig configures the gateway server.
type HTTPConfig struct {
	// Listen is the address the gateway binds, e.g. ":8080".
	Listen string `yaml:"listen"`

	// Owner is the public key the session's grants were issued for. Keys
	// under any other owner are denied.
	Owner string `yaml:"owner"`

	// Grants are capability strings like "/pub/pubky-tools/:rw" scoping
	// what the gateway may touch inside the owner's /pub/ subtree. Empty
	// means deny everything except health and cache endpoints.
	Grants []string `yaml:"grants"`
}

// DefaultConfig returns production-ready defaults: JSON logging at info,
// the in-memory store, and a 30s cache capped at 1000 entries.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Store: StoreConfig{
			Provider:       string(store.ProviderMemory),
			RequestTimeout: Duration(10 * time.Second),
		},
		Cache: CacheConfig{
			TTL:             Duration(30 * time.Second),
			MaxEntries:      1000,
			JanitorInterval: Duration(time.Minute),
		},
		HTTP: HTTPConfig{
			Listen: ":8080",
		},
	}
}

// Load reads the YAML file at path over DefaultConfig and validates the
// result. An empty path returns validated defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindValidation, "read config file "+path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, errs.Wrap(errs.ErrKindValidation, "parse config file "+path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field consistency: the provider is known, its
// required connection settings are present, and the grants parse.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return errs.Newf(errs.ErrKindValidation, "unknown log level %q", c.Log.Level)
	}

	switch store.Provider(c.Store.Provider) {
	case store.ProviderMemory:
	case store.ProviderHomeserver:
		if c.Store.Endpoint == "" {
			return errs.New(errs.ErrKindValidation, "homeserver store requires an endpoint")
		}
	case store.ProviderMinIO:
		if c.Store.Endpoint == "" || c.Store.Bucket == "" {
			return errs.New(errs.ErrKindValidation, "minio store requires an endpoint and a bucket")
		}
	case store.ProviderPostgres:
		if c.Store.DSN == "" {
			return errs.New(errs.ErrKindValidation, "postgres store requires a dsn")
		}
	default:
		return errs.Newf(errs.ErrKindValidation, "unknown store provider %q", c.Store.Provider)
	}

	if _, err := capability.ParseGrants(c.HTTP.Grants); err != nil {
		return err
	}
	return nil
}

// LoggerConfig materializes the logger settings.
func (c *Config) LoggerConfig() *logger.Config {
	lc := logger.DefaultConfig()
	lc.Level = c.Log.Level
	lc.Format = c.Log.Format
	return lc
}

// StoreConfig materializes the driver settings for the selected provider.
func (c *Config) StoreConfig() *store.Config {
	sc := store.DefaultConfig(store.Provider(c.Store.Provider))
	sc.Endpoint = c.Store.Endpoint
	sc.AccessKey = c.Store.AccessKey
	sc.SecretKey = c.Store.SecretKey
	sc.UseSSL = c.Store.UseSSL
	sc.Region = c.Store.Region
	sc.Bucket = c.Store.Bucket
	sc.DSN = c.Store.DSN
	if c.Store.RequestTimeout > 0 {
		sc.RequestTimeout = time.Duration(c.Store.RequestTimeout)
	}
	return sc
}

// DriveConfig materializes the facade settings.
func (c *Config) DriveConfig() drive.Config {
	return drive.Config{
		Cache: cache.Config{
			DefaultTTL:      time.Duration(c.Cache.TTL),
			MaxEntries:      c.Cache.MaxEntries,
			JanitorInterval: time.Duration(c.Cache.JanitorInterval),
		},
		ListLimit: c.Drive.ListLimit,
	}
}

// Grants parses the configured capability strings.
func (c *Config) Grants() ([]capability.Grant, error) {
	return capability.ParseGrants(c.HTTP.Grants)
}
