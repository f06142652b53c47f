// Command svgifyd serves inline SVG icons over HTTP from a versioned cache.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/illmade-knight/go-svgify/pkg/cache"
	"github.com/illmade-knight/go-svgify/pkg/config"
	"github.com/illmade-knight/go-svgify/pkg/fetch"
	"github.com/illmade-knight/go-svgify/pkg/invalidation"
	"github.com/illmade-knight/go-svgify/pkg/microservice"
	"github.com/illmade-knight/go-svgify/pkg/svgify"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "svgify.yaml", "path to the optional YAML configuration file")
	flag.Parse()

	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "svgifyd").Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration.")
	}
	level, err := zerolog.ParseLevel(cfg.Service.LogLevel)
	if err != nil {
		logger.Fatal().Err(err).Str("log_level", cfg.Service.LogLevel).Msg("Invalid log level.")
	}
	logger = logger.Level(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("svgifyd exited with error.")
	}
}

// run wires the daemon and blocks until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn().Err(err).Msg("Error while releasing a resource.")
			}
		}
	}()

	store, closeStore, err := newStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	closers = append(closers, closeStore)

	fetcher, closeFetcher, err := newFetcher(ctx, cfg, logger)
	if err != nil {
		return err
	}
	closers = append(closers, closeFetcher)

	provider, err := svgify.NewProvider(svgify.Config{
		Version:            cfg.Provider.Version,
		ClearForOldVersion: cfg.Provider.ClearForOldVersion,
		BasePath:           cfg.Provider.BasePath,
		Origin:             cfg.Provider.Origin,
		StaggerDelay:       cfg.Provider.StaggerDelay,
	}, store, fetcher, logger)
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}
	closers = append(closers, provider.Close)

	if err := provider.ApplyVersion(ctx, cfg.Provider.Version, cfg.Provider.ClearForOldVersion); err != nil {
		return fmt.Errorf("failed to reconcile cache: %w", err)
	}
	if len(cfg.Service.WarmIcons) > 0 {
		if err := provider.Warm(ctx, cfg.Service.WarmIcons, svgify.DefaultWarmConcurrency); err != nil {
			logger.Warn().Err(err).Msg("Some icons could not be warmed.")
		}
	}

	if cfg.Invalidation.SubscriptionID != "" {
		listener, closeListener, err := newListener(ctx, cfg.Invalidation, provider, logger)
		if err != nil {
			return err
		}
		closers = append(closers, closeListener)
		if err := listener.Start(ctx); err != nil {
			return fmt.Errorf("failed to start version listener: %w", err)
		}
		closers = append(closers, listener.Stop)
	}

	server, err := microservice.NewIconServer(microservice.IconServerConfig{
		HTTPPort:        cfg.Service.HTTPPort,
		RenderTimeout:   cfg.Service.RenderTimeout,
		NotFoundElement: cfg.Service.NotFoundElement,
	}, provider, logger)
	if err != nil {
		return fmt.Errorf("failed to create icon server: %w", err)
	}
	if err := server.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received.")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newStore(ctx context.Context, cfg config.StoreConfig, logger zerolog.Logger) (cache.Store, func() error, error) {
	switch cfg.Backend {
	case config.StoreRedis:
		store, err := cache.NewRedisStore(ctx, &cache.RedisConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			Namespace: cfg.RedisNamespace,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create redis store: %w", err)
		}
		return store, store.Close, nil
	case config.StoreFirestore:
		client, err := firestore.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		store, err := cache.NewFirestoreStore(&cache.FirestoreConfig{
			ProjectID:      cfg.ProjectID,
			CollectionName: cfg.Collection,
		}, client, logger)
		if err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to create firestore store: %w", err)
		}
		return store, client.Close, nil
	case config.StoreMemory:
		store := cache.NewInMemoryStore(cfg.QuotaBytes)
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// newFetcher returns nil for the http source so the provider builds its own
// HTTP fetcher from Origin and BasePath.
func newFetcher(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (fetch.Fetcher, func() error, error) {
	switch cfg.Source.Kind {
	case config.SourceHTTP:
		return nil, func() error { return nil }, nil
	case config.SourceGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		fetcher, err := fetch.NewGCSFetcher(fetch.NewGCSClientAdapter(client), fetch.GCSFetcherConfig{
			BucketName:   cfg.Source.Bucket,
			ObjectPrefix: cfg.Source.Prefix,
		}, logger)
		if err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to create gcs fetcher: %w", err)
		}
		return fetcher.Fetch, client.Close, nil
	default:
		return nil, nil, errors.New("unknown icon source " + cfg.Source.Kind)
	}
}

func newListener(ctx context.Context, cfg config.InvalidationConfig, sink invalidation.VersionSink, logger zerolog.Logger) (*invalidation.VersionListener, func() error, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}
	listenerCfg := invalidation.DefaultListenerConfig(cfg.SubscriptionID)
	listenerCfg.ProjectID = cfg.ProjectID
	listener, err := invalidation.NewVersionListener(ctx, listenerCfg, client, sink, logger)
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to create version listener: %w", err)
	}
	return listener, client.Close, nil
}
