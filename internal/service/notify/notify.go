package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/nkiryanov/blogaccount/internal/models"
)

const DefaultChannel = "account.user-registered"

// Side channel to tell other services about account events
type Notifier interface {
	UserRegistered(ctx context.Context, user models.User) error
}

// Payload of "user registered" message
type UserRegisteredMessage struct {
	ID     uuid.UUID `json:"id"`
	Email  string    `json:"email"`
	Name   string    `json:"name"`
	Avatar string    `json:"avatar"`
}

// Publish events into redis pub/sub channel
// Delivery is at most once: message is lost if nobody listens
type RedisPublisher struct {
	client  goredis.UniversalClient
	channel string
}

func NewRedisPublisher(client goredis.UniversalClient, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) UserRegistered(ctx context.Context, user models.User) error {
	payload, err := json.Marshal(UserRegisteredMessage{
		ID:     user.ID,
		Email:  user.Email,
		Name:   user.Name,
		Avatar: user.AvatarRef,
	})
	if err != nil {
		return fmt.Errorf("notify error: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("notify error: %w", err)
	}

	return nil
}

// Notifier that tells nobody
type Noop struct{}

func (Noop) UserRegistered(context.Context, models.User) error { return nil }
