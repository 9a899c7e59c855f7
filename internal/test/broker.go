package itst

import (
	"context"
	"sync"
)

// Broker is an in-memory pub/sub that delivers in order on one goroutine per
// subscription, the way a redis subscription does.
type Broker struct {
	ʘ    sync.Mutex
	subs map[string][]chan delivery
}

type delivery struct {
	channel string
	msg     []byte
}

func NewBroker() *Broker { return &Broker{subs: make(map[string][]chan delivery)} }

func (b *Broker) Publish(_ context.Context, channel string, msg []byte) error {
	b.ʘ.Lock()
	defer b.ʘ.Unlock()
	for _, ch := range b.subs[channel] {
		ch <- delivery{channel: channel, msg: msg}
	}
	return nil
}

func (b *Broker) NumSub(_ context.Context, channel string) (int64, error) {
	b.ʘ.Lock()
	defer b.ʘ.Unlock()
	return int64(len(b.subs[channel])), nil
}

func (b *Broker) Subscribe(_ context.Context, fn func(string, []byte), channels ...string) (func() error, error) {
	ch := make(chan delivery, 64)
	b.ʘ.Lock()
	for _, channel := range channels {
		b.subs[channel] = append(b.subs[channel], ch)
	}
	b.ʘ.Unlock()

	go func() {
		for d := range ch {
			fn(d.channel, d.msg)
		}
	}()

	var once sync.Once
	return func() error {
		once.Do(func() {
			b.ʘ.Lock()
			for _, channel := range channels {
				list := b.subs[channel][:0:0]
				for _, c := range b.subs[channel] {
					if c != ch {
						list = append(list, c)
					}
				}
				b.subs[channel] = list
			}
			b.ʘ.Unlock()
			close(ch)
		})
		return nil
	}, nil
}
