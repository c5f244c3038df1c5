package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/go-redis/redis/v8"

	"github.com/thereayou/aicc-chat/internal/models"
)

const chatChannel = "chat.topic"

// RedisBroker публикует события в pub/sub канал Redis; каждый инстанс
// держит подписку и ретранслирует принятое в свой hub. Так событие,
// опубликованное на одном инстансе, доходит до клиентов всех остальных.
type RedisBroker struct {
	rdb    *redis.Client
	sink   Sink
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRedisBroker(rdb *redis.Client, sink Sink) *RedisBroker {
	ctx, cancel := context.WithCancel(context.Background())
	b := &RedisBroker{
		rdb:    rdb,
		sink:   sink,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go b.listen(ctx)
	return b
}

func (b *RedisBroker) Publish(ctx context.Context, event *models.ChatEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("broker: marshal event: %w", err)
	}
	if err := b.rdb.Publish(ctx, chatChannel, data).Err(); err != nil {
		return fmt.Errorf("broker: redis publish: %w", err)
	}
	return nil
}

func (b *RedisBroker) listen(ctx context.Context) {
	defer close(b.done)

	sub := b.rdb.Subscribe(ctx, chatChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event models.ChatEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Printf("Redis subscribe: bad payload: %v", err)
				continue
			}
			b.sink.Deliver(&event)
		}
	}
}

func (b *RedisBroker) Close() error {
	b.cancel()
	<-b.done
	return nil
}
