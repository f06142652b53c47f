// Package svgify holds the configuration scope shared by icon widgets. A
// Provider owns the icon cache and the request coordinator for its scope and is
// carried in a context.Context.
package svgify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/illmade-knight/go-svgify/pkg/cache"
	"github.com/illmade-knight/go-svgify/pkg/fetch"
	"github.com/illmade-knight/go-svgify/pkg/svgrewrite"
	"github.com/rs/zerolog"
	"resty.dev/v3"
)

const (
	// DefaultVersion is the icon set version used when none is configured.
	DefaultVersion = 1
	// DefaultBasePath is the directory icons are served from.
	DefaultBasePath = "/assets/icons"
)

// Config holds the settings of a provider scope.
type Config struct {
	// Version tags cached icons; changing it invalidates every older entry.
	Version int
	// ClearForOldVersion also evicts the requested icon when the version changes.
	ClearForOldVersion bool
	// BasePath is normalized to a leading slash and no trailing slash.
	BasePath string
	// Origin is the scheme and host the default HTTP fetcher talks to.
	Origin string
	// StaggerDelay is passed to the request coordinator.
	StaggerDelay time.Duration
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Version:      DefaultVersion,
		BasePath:     DefaultBasePath,
		StaggerDelay: fetch.DefaultStaggerDelay,
	}
}

// Settings is a snapshot of the parts of the configuration that can change at
// runtime.
type Settings struct {
	Version            int
	ClearForOldVersion bool
	BasePath           string
}

// Loaded is the result of Provider.Load.
type Loaded struct {
	// Markup is the fetched SVG with paint attributes stripped, not yet scaled.
	Markup    string
	Version   int
	FromCache bool
}

// Provider is the configuration scope consumed by icon widgets.
type Provider struct {
	mu       sync.RWMutex
	settings Settings
	// reconcileMu orders settings snapshots with cache reconciliation.
	reconcileMu sync.Mutex

	cache       *cache.IconCache
	coordinator *fetch.Coordinator
	logger      zerolog.Logger
	httpClient  *resty.Client
}

// NewProvider creates a Provider. The store's lifecycle is managed by the
// caller. A nil fetcher selects an HTTP fetcher for Origin + BasePath.
func NewProvider(cfg Config, store cache.Store, fetcher fetch.Fetcher, logger zerolog.Logger) (*Provider, error) {
	iconCache, err := cache.NewIconCache(store, logger)
	if err != nil {
		return nil, fmt.Errorf("creating icon cache: %w", err)
	}

	basePath := NormalizeBasePath(cfg.BasePath)
	p := &Provider{
		settings: Settings{
			Version:            cfg.Version,
			ClearForOldVersion: cfg.ClearForOldVersion,
			BasePath:           basePath,
		},
		cache:  iconCache,
		logger: logger.With().Str("component", "Provider").Logger(),
	}

	if fetcher == nil {
		p.httpClient = resty.New()
		fetcher = fetch.NewHTTPFetcher(p.httpClient, fetch.HTTPFetcherConfig{
			Origin:   cfg.Origin,
			BasePath: basePath,
		}, logger).Fetch
	}

	p.coordinator, err = fetch.NewCoordinator(&fetch.CoordinatorConfig{StaggerDelay: cfg.StaggerDelay}, fetcher, logger)
	if err != nil {
		return nil, fmt.Errorf("creating coordinator: %w", err)
	}

	p.logger.Info().
		Int("version", cfg.Version).
		Bool("clear_for_old_version", cfg.ClearForOldVersion).
		Str("base_path", basePath).
		Msg("Provider initialized.")
	return p, nil
}

// NormalizeBasePath returns path with a single leading slash and no trailing
// slash. The root path normalizes to the empty string.
func NormalizeBasePath(path string) string {
	path = strings.Trim(strings.TrimSpace(path), "/")
	if path == "" {
		return ""
	}
	return "/" + path
}

// Settings returns the current settings.
func (p *Provider) Settings() Settings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.settings
}

// Cache returns the icon cache of the scope.
func (p *Provider) Cache() *cache.IconCache {
	return p.cache
}

// Coordinator returns the request coordinator of the scope.
func (p *Provider) Coordinator() *fetch.Coordinator {
	return p.coordinator
}

// ApplyVersion switches the active version and reconciles the cache right away
// instead of waiting for the next widget mount.
func (p *Provider) ApplyVersion(ctx context.Context, version int, clearForOldVersion bool) error {
	p.reconcileMu.Lock()
	defer p.reconcileMu.Unlock()

	p.mu.Lock()
	previous := p.settings.Version
	p.settings.Version = version
	p.settings.ClearForOldVersion = clearForOldVersion
	p.mu.Unlock()

	if _, err := p.cache.Reconcile(ctx, version, clearForOldVersion, ""); err != nil {
		return fmt.Errorf("reconciling cache for version %d: %w", version, err)
	}
	p.logger.Info().Int("previous_version", previous).Int("version", version).Msg("Applied icon set version.")
	return nil
}

// Load runs the shared part of the icon pipeline for iconName: version
// reconciliation, cache lookup, and on a miss a coordinated fetch whose body
// is checked, stripped of paint attributes and written back to the cache.
func (p *Provider) Load(ctx context.Context, iconName string) (*Loaded, error) {
	if iconName == "" {
		return nil, errors.New("icon name is required")
	}
	s, err := p.reconcile(ctx, iconName)
	if err != nil {
		return nil, err
	}

	svg, ok, err := p.cache.Get(ctx, s.Version, iconName)
	if err != nil {
		return nil, err
	}
	if ok {
		return &Loaded{Markup: svg, Version: s.Version, FromCache: true}, nil
	}

	resp, err := p.coordinator.FetchIcon(ctx, iconName)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", iconName, err)
	}
	if err := svgrewrite.CheckContent(resp.Data); err != nil {
		return nil, fmt.Errorf("fetching %s: %w", iconName, err)
	}

	svg = svgrewrite.StripPaint(resp.Data)
	if err := p.cache.Put(ctx, s.Version, iconName, svg); err != nil {
		return nil, err
	}
	// A version applied after the snapshot has already swept its namespace.
	if current := p.Settings().Version; current != s.Version {
		if err := p.cache.Evict(ctx, s.Version, iconName); err != nil {
			p.logger.Warn().Err(err).Str("icon", iconName).Msg("Failed to evict icon of a superseded version.")
		}
	}
	return &Loaded{Markup: svg, Version: s.Version}, nil
}

// reconcile snapshots the settings and reconciles the cache with them, so a
// concurrent ApplyVersion cannot be undone by an older snapshot.
func (p *Provider) reconcile(ctx context.Context, iconName string) (Settings, error) {
	p.reconcileMu.Lock()
	defer p.reconcileMu.Unlock()

	s := p.Settings()
	if _, err := p.cache.Reconcile(ctx, s.Version, s.ClearForOldVersion, iconName); err != nil {
		return s, err
	}
	return s, nil
}

// Ready reports whether the cache store answers.
func (p *Provider) Ready(ctx context.Context) error {
	if _, _, err := p.cache.Version(ctx); err != nil {
		return fmt.Errorf("icon cache unavailable: %w", err)
	}
	return nil
}

// Close releases the HTTP client created for the default fetcher.
func (p *Provider) Close() error {
	if p.httpClient != nil {
		return p.httpClient.Close()
	}
	return nil
}
