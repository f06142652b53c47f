package invalidation_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/illmade-knight/go-svgify/pkg/invalidation"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	projectID = "test-project"
	topicID   = "icon-versions"
	subID     = "icon-versions-sub"
)

func setupPubsub(t *testing.T) *pubsub.Client {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, projectID, option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, topicID)
	require.NoError(t, err)
	_, err = client.CreateSubscription(ctx, subID, pubsub.SubscriptionConfig{
		Topic:       topic,
		AckDeadline: 10 * time.Second,
	})
	require.NoError(t, err)
	return client
}

type applied struct {
	version int
	clear   bool
}

// mockSink records applied versions. The first failFirst calls fail.
type mockSink struct {
	failFirst int32
	calls     atomic.Int32
	applied   chan applied
}

func (m *mockSink) ApplyVersion(_ context.Context, version int, clearForOldVersion bool) error {
	if m.calls.Add(1) <= m.failFirst {
		return errors.New("store unavailable")
	}
	m.applied <- applied{version: version, clear: clearForOldVersion}
	return nil
}

func TestDecodeVersionMessage(t *testing.T) {
	msg, err := invalidation.DecodeVersionMessage([]byte(`{"version":4,"clearForOldVersion":true}`))
	require.NoError(t, err)
	assert.Equal(t, invalidation.VersionMessage{Version: 4, ClearForOldVersion: true}, msg)

	_, err = invalidation.DecodeVersionMessage([]byte(`not json`))
	assert.ErrorIs(t, err, invalidation.ErrInvalidMessage)

	_, err = invalidation.DecodeVersionMessage([]byte(`{"version":-1}`))
	assert.ErrorIs(t, err, invalidation.ErrInvalidMessage)
}

func TestVersionListener_AppliesPublishedVersions(t *testing.T) {
	// Arrange
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	t.Cleanup(cancel)
	client := setupPubsub(t)
	sink := &mockSink{failFirst: 1, applied: make(chan applied, 4)}

	listener, err := invalidation.NewVersionListener(ctx, invalidation.DefaultListenerConfig(subID), client, sink, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, listener.Start(ctx))
	t.Cleanup(func() { _ = listener.Stop() })

	publisher, err := invalidation.NewVersionPublisher(ctx, client, topicID, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(publisher.Stop)

	// Act: a malformed message is dropped, the valid one is retried after a nack.
	client.Topic(topicID).Publish(ctx, &pubsub.Message{Data: []byte("garbage")})
	_, err = publisher.Publish(ctx, invalidation.VersionMessage{Version: 5, ClearForOldVersion: true})
	require.NoError(t, err)

	// Assert
	select {
	case got := <-sink.applied:
		assert.Equal(t, applied{version: 5, clear: true}, got)
	case <-ctx.Done():
		t.Fatal("Timed out waiting for the version to be applied")
	}
	assert.GreaterOrEqual(t, sink.calls.Load(), int32(2), "The failed apply should be redelivered")

	require.NoError(t, listener.Stop())
	select {
	case <-listener.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Listener did not stop")
	}
}

func TestNewVersionListener_MissingSubscription(t *testing.T) {
	client := setupPubsub(t)
	sink := &mockSink{applied: make(chan applied, 1)}

	_, err := invalidation.NewVersionListener(context.Background(), invalidation.DefaultListenerConfig("nope"), client, sink, zerolog.Nop())

	require.Error(t, err)
}

func TestVersionListener_StopWithoutStart(t *testing.T) {
	client := setupPubsub(t)
	listener, err := invalidation.NewVersionListener(context.Background(), invalidation.DefaultListenerConfig(subID), client, &mockSink{}, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, listener.Stop())
	<-listener.Done()
}
