package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"presence_chat_service/pkg/logger"

	"github.com/go-redis/redis/v8"
)

// UserChannel redis channel carrying targeted events for one user
func UserChannel(userID string) string {
	return "chat:user:" + userID
}

// PresenceChannel redis channel carrying presence deltas for every node
const PresenceChannel = "presence:events"

// PubSub cross-node fan-out contract; payloads are marshaled wire envelopes
type PubSub interface {
	Publish(channel string, payload interface{}) error
	Subscribe(ctx context.Context, channel string, handler func(payload []byte)) error
}

// RedisPubSub definition redis pub/sub
type RedisPubSub struct {
	client *redis.Client
	ctx    context.Context
}

// NewRedisPubSub create RedisPubSub
func NewRedisPubSub(client *redis.Client) *RedisPubSub {
	return &RedisPubSub{
		client: client,
		ctx:    context.Background(),
	}
}

// Publish marshal payload and publish to channel
func (r *RedisPubSub) Publish(channel string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return r.client.Publish(r.ctx, channel, data).Err()
}

// Subscribe subscribe channel, handler runs per delivery until ctx is done
func (r *RedisPubSub) Subscribe(ctx context.Context, channel string, handler func(payload []byte)) error {
	sub := r.client.Subscribe(r.ctx, channel)
	go func() {
		ch := sub.Channel()

		for {
			select {
			case m, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(m.Payload))
			case <-ctx.Done():
				logger.Log.Info(fmt.Sprintf("%s , sub close", channel))
				sub.Close()
				return
			}
		}
	}()
	return nil
}
