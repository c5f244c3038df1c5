package broker

import (
	"context"

	"github.com/thereayou/aicc-chat/internal/models"
)

// Broker доставляет событие всем подписчикам топика комнаты.
// Доставка best-effort: ошибку публикации вызывающий логирует и
// продолжает работу, она никогда не прерывает исходный запрос.
type Broker interface {
	Publish(ctx context.Context, event *models.ChatEvent) error
	Close() error
}

// Sink — локальная точка доставки (websocket hub). Внешние бэкенды
// брокера ретранслируют в него принятые сообщения.
type Sink interface {
	Deliver(event *models.ChatEvent)
}
