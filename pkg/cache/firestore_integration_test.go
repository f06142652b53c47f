//go:build integration

package cache_test

import (
	"context"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/illmade-knight/go-svgify/pkg/cache"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFirestoreStore_Integration runs against the emulator named by
// FIRESTORE_EMULATOR_HOST, which the Firestore client picks up by itself.
func TestFirestoreStore_Integration(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	const projectID = "test-project"
	client, err := firestore.NewClient(ctx, projectID)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	cfg := &cache.FirestoreConfig{ProjectID: projectID, CollectionName: "svgify-icons"}
	s, err := cache.NewFirestoreStore(cfg, client, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Clear(ctx))

	t.Run("Keys with slashes round trip", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "svgify_1_arrows/left", `"<svg/>"`))

		value, err := s.Get(ctx, "svgify_1_arrows/left")
		require.NoError(t, err)
		assert.Equal(t, `"<svg/>"`, value)

		keys, err := s.Keys(ctx)
		require.NoError(t, err)
		assert.Contains(t, keys, "svgify_1_arrows/left")
	})

	t.Run("Get Miss", func(t *testing.T) {
		_, err := s.Get(ctx, "non-existent-doc")
		require.Error(t, err)
		assert.ErrorIs(t, err, cache.ErrNotFound)
	})

	t.Run("Clear", func(t *testing.T) {
		require.NoError(t, s.Clear(ctx))
		keys, err := s.Keys(ctx)
		require.NoError(t, err)
		assert.Empty(t, keys)
	})
}
