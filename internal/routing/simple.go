package routing

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/thereayou/aicc-chat/internal/broker"
	"github.com/thereayou/aicc-chat/internal/models"
)

// SimpleStrategy отвечает заготовленными репликами без внешнего AI.
// Используется в деморежиме и как запасной вариант, когда движок
// недоступен.
type SimpleStrategy struct {
	broker  broker.Broker
	archive Archive
}

func NewSimpleStrategy(br broker.Broker, archive Archive) *SimpleStrategy {
	return &SimpleStrategy{broker: br, archive: archive}
}

var cannedReplies = []struct {
	keyword string
	reply   string
}{
	{"hello", "Hello! What can I do for you?"},
	{"hi", "Hello! What can I do for you?"},
	{"price", "You can find our pricing on the plans page."},
	{"refund", "Refund requests are handled within 3 business days."},
	{"bye", "Goodbye! Feel free to come back anytime."},
}

const cannedFallback = "I am not sure I understand. Could you rephrase that?"

func (s *SimpleStrategy) HandleMessage(ctx context.Context, event *models.ChatEvent) error {
	s.publish(ctx, event)
	s.record(ctx, event)

	if event.Type != models.TypeTalk || event.Role != models.RoleCustomer {
		return nil
	}

	reply := botEvent(event.RoomID, "bot", s.pickReply(event.Body))
	reply.Timestamp = time.Now()
	s.publish(ctx, reply)
	s.record(ctx, reply)
	return nil
}

func (s *SimpleStrategy) OnRoomCreated(ctx context.Context, room *models.Room) error {
	greeting := botEvent(room.ID, "bot", noticeGreeting)
	s.publish(ctx, greeting)
	s.record(ctx, greeting)
	return nil
}

func (s *SimpleStrategy) pickReply(text string) string {
	lowered := strings.ToLower(text)
	for _, c := range cannedReplies {
		if strings.Contains(lowered, c.keyword) {
			return c.reply
		}
	}
	return cannedFallback
}

func (s *SimpleStrategy) publish(ctx context.Context, event *models.ChatEvent) {
	if err := s.broker.Publish(ctx, event); err != nil {
		log.Printf("routing: publish failed for room %s: %v", event.RoomID, err)
	}
}

func (s *SimpleStrategy) record(ctx context.Context, event *models.ChatEvent) {
	if s.archive == nil {
		return
	}
	if err := s.archive.SaveMessage(ctx, event); err != nil {
		log.Printf("routing: archive failed for room %s: %v", event.RoomID, err)
	}
}
