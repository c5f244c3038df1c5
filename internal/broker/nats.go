package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/thereayou/aicc-chat/internal/models"
)

const (
	subjectPrefix  = "room."
	subjectPattern = "room.*"
)

// NATSBroker — внешняя очередь с маршрутизацией по топику room.<roomId>.
// Подписка с wildcard ретранслирует все комнаты в локальный hub;
// переподключение отдано клиенту NATS, поэтому бэкенд переживает
// перезапуск брокера без участия вызывающих.
type NATSBroker struct {
	conn *nats.Conn
	sub  *nats.Subscription
	sink Sink
}

func NewNATSBroker(url string, sink Sink) (*NATSBroker, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("broker: connecting to NATS at %s: %w", url, err)
	}

	b := &NATSBroker{conn: nc, sink: sink}

	sub, err := nc.Subscribe(subjectPattern, func(msg *nats.Msg) {
		var event models.ChatEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			log.Printf("NATS subscribe: bad payload on %s: %v", msg.Subject, err)
			return
		}
		b.sink.Deliver(&event)
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("broker: subscribing to %s: %w", subjectPattern, err)
	}
	// Flush гарантирует регистрацию подписки на сервере до возврата,
	// иначе публикации других инстансов могут потеряться на старте
	if err := nc.Flush(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("broker: flushing subscription: %w", err)
	}
	b.sub = sub
	return b, nil
}

func (b *NATSBroker) Publish(ctx context.Context, event *models.ChatEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("broker: marshal event: %w", err)
	}
	if err := b.conn.Publish(subjectPrefix+event.RoomID, data); err != nil {
		return fmt.Errorf("broker: nats publish: %w", err)
	}
	return nil
}

func (b *NATSBroker) Close() error {
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	b.conn.Close()
	return nil
}
