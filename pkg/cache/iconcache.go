package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

const (
	// KeyPrefix namespaces every key written by the IconCache.
	KeyPrefix = "svgify_"
	// VersionMarkerKey records the last version the cache was reconciled with.
	VersionMarkerKey = KeyPrefix + "cached_version"
)

// IconKey returns the storage key of an icon at a version.
func IconKey(version int, iconName string) string {
	return versionPrefix(version) + iconName
}

func versionPrefix(version int) string {
	return KeyPrefix + strconv.Itoa(version) + "_"
}

// IconCache stores stripped SVG markup per (version, icon name) and keeps the
// store consistent with the active version.
type IconCache struct {
	store  Store
	logger zerolog.Logger
}

// NewIconCache creates an IconCache over store.
func NewIconCache(store Store, logger zerolog.Logger) (*IconCache, error) {
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}
	return &IconCache{
		store:  store,
		logger: logger.With().Str("component", "IconCache").Logger(),
	}, nil
}

// Get returns the cached markup of an icon. A miss is reported with ok set to
// false and a nil error.
func (c *IconCache) Get(ctx context.Context, version int, iconName string) (svg string, ok bool, err error) {
	key := IconKey(version, iconName)
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading %s: %w", key, err)
	}

	if err := json.Unmarshal([]byte(raw), &svg); err != nil {
		// An undecodable entry is treated as a miss and replaced on the next put.
		c.logger.Warn().Err(err).Str("key", key).Msg("Discarding undecodable cache entry.")
		return "", false, nil
	}
	c.logger.Debug().Str("key", key).Msg("Icon cache hit.")
	return svg, true, nil
}

// Put stores the markup of an icon. When the store is out of room the whole
// store is cleared and the write retried once; a second failure is returned.
func (c *IconCache) Put(ctx context.Context, version int, iconName, svg string) error {
	key := IconKey(version, iconName)
	encoded, err := encodeMarkup(svg)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}

	err = c.store.Set(ctx, key, encoded)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrQuotaExceeded) {
		return fmt.Errorf("writing %s: %w", key, err)
	}

	c.logger.Warn().Err(err).Str("key", key).Msg("Storage quota exceeded, clearing storage...")
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("clearing store after quota failure: %w", err)
	}
	if err := c.store.Set(ctx, key, encoded); err != nil {
		return fmt.Errorf("writing %s after clearing store: %w", key, err)
	}
	return nil
}

// Evict deletes the entry of an icon at a version.
func (c *IconCache) Evict(ctx context.Context, version int, iconName string) error {
	key := IconKey(version, iconName)
	if err := c.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("evicting %s: %w", key, err)
	}
	return nil
}

// Reconcile compares the stored version marker with activeVersion. On a
// mismatch (or a missing marker) it records activeVersion, deletes every icon
// entry outside the activeVersion namespace and, when clearOnOldVersion is set,
// also deletes the active entry of iconName. It reports whether anything was
// done; a second call with the same version is a no-op.
func (c *IconCache) Reconcile(ctx context.Context, activeVersion int, clearOnOldVersion bool, iconName string) (bool, error) {
	marker, found, err := c.marker(ctx)
	if err != nil {
		return false, err
	}
	if found && marker == activeVersion {
		return false, nil
	}

	if err := c.store.Set(ctx, VersionMarkerKey, strconv.Itoa(activeVersion)); err != nil {
		return false, fmt.Errorf("writing version marker: %w", err)
	}

	keys, err := c.store.Keys(ctx)
	if err != nil {
		return false, fmt.Errorf("listing keys: %w", err)
	}
	active := versionPrefix(activeVersion)
	evicted := 0
	for _, key := range keys {
		if !strings.HasPrefix(key, KeyPrefix) || key == VersionMarkerKey || strings.HasPrefix(key, active) {
			continue
		}
		if err := c.store.Delete(ctx, key); err != nil {
			return false, fmt.Errorf("evicting %s: %w", key, err)
		}
		evicted++
	}

	// Evicts the requested icon even when its entry is already in the active
	// namespace.
	if clearOnOldVersion && iconName != "" {
		if err := c.store.Delete(ctx, IconKey(activeVersion, iconName)); err != nil {
			return false, fmt.Errorf("evicting %s: %w", iconName, err)
		}
	}

	c.logger.Info().
		Int("previous_version", marker).
		Bool("marker_found", found).
		Int("active_version", activeVersion).
		Int("evicted", evicted).
		Msg("Icon cache reconciled with active version.")
	return true, nil
}

// Version returns the stored version marker.
func (c *IconCache) Version(ctx context.Context) (int, bool, error) {
	return c.marker(ctx)
}

// Purge removes everything from the underlying store.
func (c *IconCache) Purge(ctx context.Context) error {
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("purging icon cache: %w", err)
	}
	return nil
}

// encodeMarkup returns svg as a JSON string literal with markup characters
// left unescaped.
func encodeMarkup(svg string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(svg); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func (c *IconCache) marker(ctx context.Context) (int, bool, error) {
	raw, err := c.store.Get(ctx, VersionMarkerKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("reading version marker: %w", err)
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		c.logger.Warn().Str("marker", raw).Msg("Ignoring unparsable version marker.")
		return 0, false, nil
	}
	return v, true, nil
}
