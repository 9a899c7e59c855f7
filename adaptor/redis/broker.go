package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Broker is the pub/sub the adapter talks through.
type Broker interface {
	Publish(ctx context.Context, channel string, msg []byte) error
	// NumSub is the number of subscribers of channel.
	NumSub(ctx context.Context, channel string) (int64, error)
	// Subscribe calls fn for every message on channels until the returned
	// function is called.
	Subscribe(ctx context.Context, fn func(channel string, msg []byte), channels ...string) (func() error, error)
}

type redisBroker struct {
	rdb redis.UniversalClient
}

// NewBroker returns a Broker backed by a single, cluster or sentinel client.
func NewBroker(rdb redis.UniversalClient) Broker { return redisBroker{rdb: rdb} }

func (b redisBroker) Publish(ctx context.Context, channel string, msg []byte) error {
	if err := b.rdb.Publish(ctx, channel, msg).Err(); err != nil {
		return ErrPublish.F(channel, err)
	}
	return nil
}

func (b redisBroker) NumSub(ctx context.Context, channel string) (int64, error) {
	counts, err := b.rdb.PubSubNumSub(ctx, channel).Result()
	if err != nil {
		return 0, ErrServerCount.F(err)
	}
	return counts[channel], nil
}

func (b redisBroker) Subscribe(ctx context.Context, fn func(string, []byte), channels ...string) (func() error, error) {
	ps := b.rdb.Subscribe(ctx, channels...)

	// wait for the confirmation so nothing published after Init is missed
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, ErrSubscribe.F(err)
	}

	go func() {
		for msg := range ps.Channel() {
			fn(msg.Channel, []byte(msg.Payload))
		}
	}()
	return ps.Close, nil
}
