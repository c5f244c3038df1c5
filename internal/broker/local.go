package broker

import (
	"context"

	"github.com/thereayou/aicc-chat/internal/models"
)

// LocalBroker доставляет события напрямую в hub, минуя внешний транспорт.
// Корректен только для одного инстанса сервера.
type LocalBroker struct {
	sink Sink
}

func NewLocalBroker(sink Sink) *LocalBroker {
	return &LocalBroker{sink: sink}
}

func (b *LocalBroker) Publish(ctx context.Context, event *models.ChatEvent) error {
	b.sink.Deliver(event)
	return nil
}

func (b *LocalBroker) Close() error { return nil }
