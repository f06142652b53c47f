package invalidation

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
)

// VersionPublisher announces version bumps on a topic.
type VersionPublisher struct {
	topic   *pubsub.Topic
	timeout time.Duration
	logger  zerolog.Logger
}

// NewVersionPublisher checks the topic exists and returns a publisher.
func NewVersionPublisher(ctx context.Context, client *pubsub.Client, topicID string, logger zerolog.Logger) (*VersionPublisher, error) {
	topic := client.Topic(topicID)
	existsCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	exists, err := topic.Exists(existsCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to check topic %s: %w", topicID, err)
	}
	if !exists {
		return nil, fmt.Errorf("topic %s does not exist", topicID)
	}
	return &VersionPublisher{
		topic:   topic,
		timeout: 20 * time.Second,
		logger:  logger.With().Str("component", "VersionPublisher").Str("topic_id", topicID).Logger(),
	}, nil
}

// Publish sends a version bump and waits for the server to confirm it.
func (p *VersionPublisher) Publish(ctx context.Context, msg VersionMessage) (string, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal version message: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       payload,
		Attributes: map[string]string{"version": strconv.Itoa(msg.Version)},
	})

	confirmCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	id, err := result.Get(confirmCtx)
	if err != nil {
		return "", fmt.Errorf("failed to publish version %d: %w", msg.Version, err)
	}
	p.logger.Info().Str("msg_id", id).Int("version", msg.Version).Msg("Published icon version.")
	return id, nil
}

// Stop flushes pending publishes.
func (p *VersionPublisher) Stop() {
	p.topic.Stop()
}
