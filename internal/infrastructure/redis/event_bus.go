package redis

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"go-onboard/internal/core/ports"
	"go-onboard/internal/domain"
)

var _ ports.EventBus = (*RedisEventBus)(nil)

type RedisEventBus struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

func NewRedisEventBus(client *redis.Client, logger *slog.Logger) *RedisEventBus {
	return &RedisEventBus{
		client:  client,
		channel: stepChangedChannel,
		logger:  logger,
	}
}

// PublishStepChanged broadcasts the event to the network
func (b *RedisEventBus) PublishStepChanged(ctx context.Context, event domain.StepChangedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return b.client.Publish(ctx, b.channel, payload).Err()
}

// SubscribeStepChanged opens a continuous stream for the coordinator. The
// channel is closed when ctx is cancelled.
func (b *RedisEventBus) SubscribeStepChanged(ctx context.Context) (<-chan domain.StepChangedEvent, error) {
	pubsub := b.client.Subscribe(ctx, b.channel)

	// Wait for the subscription confirmation so no event published after
	// this call returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	msgChan := make(chan domain.StepChangedEvent)

	go func() {
		defer close(msgChan)
		defer pubsub.Close()

		redisMessages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-redisMessages:
				if !ok {
					return
				}
				var event domain.StepChangedEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.logger.Warn("dropping malformed step event", "error", err)
					continue
				}
				select {
				case msgChan <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return msgChan, nil
}
