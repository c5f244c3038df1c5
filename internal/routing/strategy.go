package routing

import (
	"context"
	"time"

	"github.com/thereayou/aicc-chat/internal/models"
)

// Strategy определяет, что происходит с входящим событием комнаты.
// Выбирается один раз при старте из конфигурации.
type Strategy interface {
	HandleMessage(ctx context.Context, event *models.ChatEvent) error
	OnRoomCreated(ctx context.Context, room *models.Room) error
}

// Notifier толкает операторским консолям полный список комнат
type Notifier interface {
	BroadcastRoomList(ctx context.Context)
}

// Archive — журнал переписки; сбои записи не блокируют доставку
type Archive interface {
	SaveMessage(ctx context.Context, event *models.ChatEvent) error
	SetSessionStatus(ctx context.Context, roomID, status string) error
}

const (
	noticeWaiting    = "Please wait a moment, an operator will join you shortly."
	noticeBotResumed = "Bot support has been resumed."
	noticeClosed     = "The conversation has been closed."
	noticeGreeting   = "Hello! How can I help you today?"
)

func systemNotice(roomID, body string) *models.ChatEvent {
	return &models.ChatEvent{
		RoomID:    roomID,
		Sender:    "system",
		Role:      models.RoleSystem,
		Body:      body,
		Type:      models.TypeTalk,
		Timestamp: time.Now(),
	}
}
