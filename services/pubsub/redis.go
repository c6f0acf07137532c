package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/susahesumudu/mit-erp/core"
	"github.com/susahesumudu/mit-erp/core/notify"
)

// RedisBroker fans events out across API processes. Every process forwards the events it
// receives to its local Hub, so Publish reaches subscribers connected anywhere.
type RedisBroker struct {
	client *redis.Client
	prefix string
	hub    *Hub
	logger core.Logger
}

var _ notify.Publisher = (*RedisBroker)(nil)

func NewRedisClient(conf core.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     conf.Address,
		Password: conf.Password,
		DB:       conf.DB,
	})
}

func NewRedisBroker(client *redis.Client, prefix string, hub *Hub, logger core.Logger) *RedisBroker {
	return &RedisBroker{client: client, prefix: prefix, hub: hub, logger: logger}
}

func (b *RedisBroker) channel(group string) string {
	return b.prefix + group
}

func (b *RedisBroker) Publish(ctx context.Context, group string, ev notify.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "encoding event")
	}
	if err := b.client.Publish(ctx, b.channel(group), data).Err(); err != nil {
		return errors.Wrapf(err, "publishing to %s", b.channel(group))
	}
	return nil
}

// Run forwards every event published under the broker prefix to the local Hub until ctx is done.
func (b *RedisBroker) Run(ctx context.Context) error {
	sub := b.client.PSubscribe(ctx, b.channel("*"))
	defer sub.Close()

	// wait for the subscription to be confirmed
	if _, err := sub.Receive(ctx); err != nil {
		return errors.Wrap(err, "subscribing to redis")
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			group := strings.TrimPrefix(msg.Channel, b.prefix)
			if err := b.hub.Deliver(ctx, group, []byte(msg.Payload)); err != nil {
				b.logger.Error(fmt.Sprintf("pubsub.RedisBroker(%s): %v", group, err), err)
			}
		}
	}
}
