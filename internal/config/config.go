// Package config loads host configuration for stores and their drivers.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	State     StateConfig
	Storage   StorageConfig
	Blob      BlobConfig
	Transport TransportConfig
	Metrics   MetricsConfig
	Guards    []string
}

// StateConfig mirrors the store construction options.
type StateConfig struct {
	Persistent    bool
	StoragePrefix string `mapstructure:"storage_prefix"`
	CrossInstance bool   `mapstructure:"cross_instance"`
	Devtools      bool
	ChannelName   string `mapstructure:"channel_name"`
}

// StorageConfig selects the durable backend.
type StorageConfig struct {
	Driver      string
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	QuotaBytes  int    `mapstructure:"quota_bytes"`
	BlobRoot    string `mapstructure:"blob_root"`
}

// BlobConfig configures the object store behind the blob storage driver.
type BlobConfig struct {
	Driver string
	FSRoot string `mapstructure:"fs_root"`
	S3     S3Config
}

// S3Config holds S3 or MinIO connection settings.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	PathStyle       bool   `mapstructure:"path_style"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// TransportConfig selects the broadcast transport.
type TransportConfig struct {
	Driver       string
	WebsocketURL string `mapstructure:"websocket_url"`
	PostgresDSN  string `mapstructure:"postgres_dsn"`
}

// MetricsConfig selects the metrics recorder.
type MetricsConfig struct {
	Driver    string
	Namespace string
}

const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageBlob     = "blob"

	TransportNone      = "none"
	TransportMemory    = "memory"
	TransportWebsocket = "websocket"
	TransportPostgres  = "postgres"

	MetricsNone       = "none"
	MetricsExpvar     = "expvar"
	MetricsPrometheus = "prometheus"
)

// Load reads configuration from defaults, an optional file named by
// MFESTATE_CONFIG, and env. Env var overrides use prefix MFESTATE_, so
// storage.sqlite_path is MFESTATE_STORAGE_SQLITE_PATH.
func Load() (Config, error) {
	return LoadFile(os.Getenv("MFESTATE_CONFIG"))
}

// LoadFile is Load with an explicit config file. An empty path skips the
// file; a path that cannot be read is an error.
func LoadFile(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MFESTATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("state.persistent", true)
	v.SetDefault("state.storage_prefix", "mfe-state")
	v.SetDefault("state.cross_instance", true)
	v.SetDefault("state.devtools", false)
	v.SetDefault("state.channel_name", "mfe-state-sync")
	v.SetDefault("storage.driver", StorageMemory)
	v.SetDefault("storage.sqlite_path", "mfestate.db")
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.quota_bytes", 0)
	v.SetDefault("storage.blob_root", "state/")
	v.SetDefault("blob.driver", "fs")
	v.SetDefault("blob.fs_root", "./data/blobs")
	v.SetDefault("blob.s3.bucket", "")
	v.SetDefault("blob.s3.region", "us-east-1")
	v.SetDefault("blob.s3.endpoint", "")
	v.SetDefault("blob.s3.path_style", false)
	v.SetDefault("blob.s3.access_key_id", "")
	v.SetDefault("blob.s3.secret_access_key", "")
	v.SetDefault("transport.driver", TransportMemory)
	v.SetDefault("transport.websocket_url", "")
	v.SetDefault("transport.postgres_dsn", "")
	v.SetDefault("metrics.driver", MetricsNone)
	v.SetDefault("metrics.namespace", "mfestate")
	v.SetDefault("guards", []string{})
}

// Validate checks driver names and the settings each driver requires.
func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case StorageMemory, StorageSQLite, StorageBlob:
	case StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	switch c.Transport.Driver {
	case TransportNone, TransportMemory:
	case TransportWebsocket:
		if c.Transport.WebsocketURL == "" {
			errs = append(errs, errors.New("transport.websocket_url required for websocket transport"))
		}
	case TransportPostgres:
		if c.Transport.PostgresDSN == "" {
			errs = append(errs, errors.New("transport.postgres_dsn required for postgres transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown transport driver %q", c.Transport.Driver))
	}
	switch c.Metrics.Driver {
	case MetricsNone, MetricsExpvar, MetricsPrometheus:
	default:
		errs = append(errs, fmt.Errorf("unknown metrics driver %q", c.Metrics.Driver))
	}
	if strings.Contains(c.State.StoragePrefix, ":") {
		errs = append(errs, fmt.Errorf("state.storage_prefix %q must not contain ':'", c.State.StoragePrefix))
	}
	return errors.Join(errs...)
}
