// Package invalidation carries icon-set version bumps over Google Cloud
// Pub/Sub, so every running process switches versions without a restart.
package invalidation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
)

// ErrInvalidMessage is returned for payloads that are not a version bump.
var ErrInvalidMessage = errors.New("invalid version message")

// VersionMessage is the JSON payload announcing a new icon-set version.
type VersionMessage struct {
	Version            int  `json:"version"`
	ClearForOldVersion bool `json:"clearForOldVersion"`
}

// DecodeVersionMessage parses and validates a payload.
func DecodeVersionMessage(data []byte) (VersionMessage, error) {
	var msg VersionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if msg.Version < 0 {
		return msg, fmt.Errorf("%w: negative version %d", ErrInvalidMessage, msg.Version)
	}
	return msg, nil
}

// VersionSink applies a version bump. *svgify.Provider satisfies it.
type VersionSink interface {
	ApplyVersion(ctx context.Context, version int, clearForOldVersion bool) error
}

// ListenerConfig holds configuration for the VersionListener.
type ListenerConfig struct {
	ProjectID      string
	SubscriptionID string
	// ApplyTimeout bounds a single ApplyVersion call.
	ApplyTimeout time.Duration
}

// DefaultListenerConfig returns a config for the given subscription.
func DefaultListenerConfig(subID string) *ListenerConfig {
	return &ListenerConfig{
		SubscriptionID: subID,
		ApplyTimeout:   10 * time.Second,
	}
}

// VersionListener receives version bumps from a subscription and hands them
// to a sink. Malformed messages are acked and dropped; sink failures are
// nacked so they are redelivered.
type VersionListener struct {
	subscription       *pubsub.Subscription
	sink               VersionSink
	applyTimeout       time.Duration
	logger             zerolog.Logger
	stopOnce           sync.Once
	cancelSubscription context.CancelFunc
	doneChan           chan struct{}
}

// NewVersionListener checks the subscription exists and returns a listener.
func NewVersionListener(ctx context.Context, cfg *ListenerConfig, client *pubsub.Client, sink VersionSink, logger zerolog.Logger) (*VersionListener, error) {
	if sink == nil {
		return nil, errors.New("version sink cannot be nil")
	}
	sub := client.Subscription(cfg.SubscriptionID)

	existsCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	exists, err := sub.Exists(existsCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to check subscription %s: %w", cfg.SubscriptionID, err)
	}
	if !exists {
		return nil, fmt.Errorf("subscription %s does not exist", cfg.SubscriptionID)
	}
	// Version bumps are rare and must be applied in order.
	sub.ReceiveSettings.MaxOutstandingMessages = 1
	sub.ReceiveSettings.NumGoroutines = 1

	applyTimeout := cfg.ApplyTimeout
	if applyTimeout <= 0 {
		applyTimeout = 10 * time.Second
	}

	return &VersionListener{
		subscription: sub,
		sink:         sink,
		applyTimeout: applyTimeout,
		logger:       logger.With().Str("component", "VersionListener").Str("subscription_id", cfg.SubscriptionID).Logger(),
		doneChan:     make(chan struct{}),
	}, nil
}

// Start begins receiving in a background goroutine.
func (l *VersionListener) Start(ctx context.Context) error {
	receiveCtx, cancel := context.WithCancel(ctx)
	l.cancelSubscription = cancel

	go func() {
		defer close(l.doneChan)
		l.logger.Info().Msg("Listening for icon version updates.")
		err := l.subscription.Receive(receiveCtx, func(ctx context.Context, msg *pubsub.Message) {
			l.handle(ctx, msg)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			l.logger.Error().Err(err).Msg("Pub/Sub Receive call exited with error.")
		}
		l.logger.Info().Msg("Version listener stopped.")
	}()
	return nil
}

func (l *VersionListener) handle(ctx context.Context, msg *pubsub.Message) {
	update, err := DecodeVersionMessage(msg.Data)
	if err != nil {
		l.logger.Warn().Err(err).Str("msg_id", msg.ID).Msg("Dropping malformed version message.")
		msg.Ack()
		return
	}

	applyCtx, cancel := context.WithTimeout(ctx, l.applyTimeout)
	defer cancel()
	if err := l.sink.ApplyVersion(applyCtx, update.Version, update.ClearForOldVersion); err != nil {
		l.logger.Error().Err(err).Str("msg_id", msg.ID).Int("version", update.Version).Msg("Failed to apply version, nacking.")
		msg.Nack()
		return
	}
	l.logger.Info().Int("version", update.Version).Bool("clear_for_old_version", update.ClearForOldVersion).Msg("Applied icon version.")
	msg.Ack()
}

// Stop cancels the receive loop and waits for it to exit.
func (l *VersionListener) Stop() error {
	l.stopOnce.Do(func() {
		if l.cancelSubscription == nil {
			close(l.doneChan)
			return
		}
		l.cancelSubscription()
		select {
		case <-l.doneChan:
		case <-time.After(30 * time.Second):
			l.logger.Error().Msg("Timeout waiting for the version listener to stop.")
		}
	})
	return nil
}

// Done is closed once the receive loop has exited.
func (l *VersionListener) Done() <-chan struct{} { return l.doneChan }
