package core

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"mfestate/internal/blob"
	"mfestate/internal/config"
	broadcastmemory "mfestate/internal/infra/broadcast/memory"
	broadcastpostgres "mfestate/internal/infra/broadcast/postgres"
	"mfestate/internal/infra/broadcast/websocket"
	"mfestate/internal/infra/persistence/blobkv"
	"mfestate/internal/infra/persistence/memory"
	"mfestate/internal/infra/persistence/postgres"
	"mfestate/internal/infra/persistence/sqlite"
	"mfestate/pkg/domain"
)

// ConfigFromSettings converts host configuration into a store Config,
// compiling settings.Guards into an ExprGuard middleware.
func ConfigFromSettings(settings config.Config, logger Logger) (Config, error) {
	cfg := Config{
		Persistent:    settings.State.Persistent,
		StoragePrefix: settings.State.StoragePrefix,
		CrossInstance: settings.State.CrossInstance,
		Devtools:      settings.State.Devtools,
		ChannelName:   settings.State.ChannelName,
	}
	if len(settings.Guards) > 0 {
		guard, err := ExprGuard(logger, settings.Guards...)
		if err != nil {
			return Config{}, err
		}
		cfg.Middleware = append(cfg.Middleware, guard)
	}
	return cfg.withDefaults(), nil
}

// OpenPersister selects a durable backend from settings.Storage.
//
//	memory:   process-local map, optional quota_bytes
//	sqlite:   embedded sqlite file at sqlite_path
//	postgres: JSONB table reached through postgres_dsn
//	blob:     objects under blob_root in the store selected by settings.Blob
func OpenPersister(ctx context.Context, settings config.Config) (domain.Persister, error) {
	switch settings.Storage.Driver {
	case "", config.StorageMemory:
		var opts []memory.Option
		if settings.Storage.QuotaBytes > 0 {
			opts = append(opts, memory.WithQuota(settings.Storage.QuotaBytes))
		}
		return memory.NewStore(opts...), nil
	case config.StorageSQLite:
		return sqlite.NewStore(settings.Storage.SQLitePath)
	case config.StoragePostgres:
		return postgres.NewStore(ctx, settings.Storage.PostgresDSN)
	case config.StorageBlob:
		objects, err := blob.Open(ctx, blob.Config{
			Driver: blob.Driver(settings.Blob.Driver),
			FSRoot: settings.Blob.FSRoot,
			S3: blob.S3Config{
				Region:          settings.Blob.S3.Region,
				Bucket:          settings.Blob.S3.Bucket,
				Endpoint:        settings.Blob.S3.Endpoint,
				AccessKeyID:     settings.Blob.S3.AccessKeyID,
				SecretAccessKey: settings.Blob.S3.SecretAccessKey,
				PathStyle:       settings.Blob.S3.PathStyle,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("open blob storage: %w", err)
		}
		return blobkv.New(objects, settings.Storage.BlobRoot), nil
	default:
		return nil, domain.ErrUnknownDriver{Kind: "storage", Name: settings.Storage.Driver}
	}
}

// OpenChannel joins the broadcast channel settings.State.ChannelName on the
// transport selected by settings.Transport. The none driver returns a nil
// channel and no error.
func OpenChannel(ctx context.Context, settings config.Config) (domain.Channel, error) {
	name := settings.State.ChannelName
	if name == "" {
		name = DefaultChannelName
	}
	switch settings.Transport.Driver {
	case config.TransportNone:
		return nil, nil
	case "", config.TransportMemory:
		return broadcastmemory.DefaultHub().Join(name), nil
	case config.TransportWebsocket:
		return websocket.Dial(ctx, settings.Transport.WebsocketURL, name, websocket.DefaultSettings())
	case config.TransportPostgres:
		return broadcastpostgres.Open(ctx, settings.Transport.PostgresDSN, name)
	default:
		return nil, domain.ErrUnknownDriver{Kind: "transport", Name: settings.Transport.Driver}
	}
}

// OpenMetrics builds the recorder selected by settings.Metrics. reg is only
// used by the prometheus driver; nil means the default registerer.
func OpenMetrics(settings config.Config, reg prometheus.Registerer) (MetricsRecorder, error) {
	switch settings.Metrics.Driver {
	case "", config.MetricsNone:
		return nopMetrics{}, nil
	case config.MetricsExpvar:
		return NewExpvarMetricsRecorder(""), nil
	case config.MetricsPrometheus:
		return NewPrometheusMetricsRecorder(reg, settings.Metrics.Namespace)
	default:
		return nil, domain.ErrUnknownDriver{Kind: "metrics", Name: settings.Metrics.Driver}
	}
}

// Open builds a store entirely from host configuration. The persister and
// channel it opens are owned by the store and closed by Store.Close. opts
// are applied after the configured drivers, so they may override them.
func Open(ctx context.Context, settings config.Config, opts ...Option) (*Store, error) {
	logger := Logger(GlogLogger{})
	cfg, err := ConfigFromSettings(settings, logger)
	if err != nil {
		return nil, err
	}
	metrics, err := OpenMetrics(settings, nil)
	if err != nil {
		return nil, err
	}
	var owned []io.Closer
	base := []Option{WithMetrics(metrics)}
	if cfg.Persistent {
		persister, err := OpenPersister(ctx, settings)
		if err != nil {
			return nil, err
		}
		owned = append(owned, persister)
		base = append(base, WithPersister(persister))
	}
	if cfg.CrossInstance {
		channel, err := OpenChannel(ctx, settings)
		if err != nil {
			return nil, errors.Join(err, closeAll(owned))
		}
		if channel != nil {
			owned = append(owned, channel)
			base = append(base, WithChannel(channel))
		}
	}
	base = append(base, withOwned(owned...))
	return NewStore(cfg, append(base, opts...)...), nil
}

func closeAll(closers []io.Closer) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
