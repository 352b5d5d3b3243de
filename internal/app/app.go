package app

import (
	"context"
	"io"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/xenking/grocery-kart/internal/apiclient"
	"github.com/xenking/grocery-kart/internal/storage"
	"github.com/xenking/grocery-kart/internal/storage/memory"
	"github.com/xenking/grocery-kart/internal/storage/postgres"
	"github.com/xenking/grocery-kart/internal/storage/redis"
	"github.com/xenking/grocery-kart/internal/storage/sqlite"
	"github.com/xenking/grocery-kart/internal/storefront"
	"github.com/xenking/grocery-kart/pkg/roundtrip"
)

// Run opens the state store, restores the saved session and executes one
// command. It is the single wiring point for the client.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config, args []string, out io.Writer) error {
	lg.Debug("Initializing",
		zap.String("api_url", cfg.APIURL),
		zap.String("storage", cfg.Storage.Driver),
	)

	kv, err := OpenStore(ctx, cfg.Storage)
	if err != nil {
		return errors.Wrap(err, "open state store")
	}
	defer func() { _ = kv.Close() }()

	client, err := apiclient.New(cfg.APIURL, apiclient.Options{
		Timeout: cfg.Timeout,
		Token:   storefront.TokenSource(kv),
		Throttle: roundtrip.ThrottleConfig{
			Max:    cfg.Throttle.Max,
			Window: cfg.Throttle.Window,
		},
		Logger:         lg.Named("api"),
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create api client")
	}

	sf, err := storefront.New(kv, storefront.RemoteGateways(client), storefront.Options{
		Logger:         lg,
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create storefront")
	}
	defer func() { _ = sf.Close() }()

	if err := sf.Load(ctx); err != nil {
		return errors.Wrap(err, "load state")
	}
	return NewCLI(sf, out).Exec(ctx, args)
}

// OpenStore opens the configured state store.
func OpenStore(ctx context.Context, cfg StorageConfig) (storage.KV, error) {
	switch cfg.Driver {
	case DriverSQLite:
		return sqlite.Open(ctx, cfg.Path)
	case DriverRedis:
		return redis.Connect(ctx, cfg.RedisAddr, cfg.RedisPrefix)
	case DriverPostgres:
		return postgres.Open(ctx, cfg.DatabaseURL)
	case DriverMemory:
		return memory.New(), nil
	default:
		return nil, errors.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
