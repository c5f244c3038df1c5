package routing

import (
	"context"
	"log"

	"github.com/thereayou/aicc-chat/internal/broker"
	"github.com/thereayou/aicc-chat/internal/models"
)

// AgentStrategy — чистый fan-out без участия бота: комнату ведёт
// оператор, все события просто раздаются подписчикам.
type AgentStrategy struct {
	broker  broker.Broker
	archive Archive
}

func NewAgentStrategy(br broker.Broker, archive Archive) *AgentStrategy {
	return &AgentStrategy{broker: br, archive: archive}
}

func (s *AgentStrategy) HandleMessage(ctx context.Context, event *models.ChatEvent) error {
	if err := s.broker.Publish(ctx, event); err != nil {
		log.Printf("routing: publish failed for room %s: %v", event.RoomID, err)
	}
	if s.archive != nil {
		if err := s.archive.SaveMessage(ctx, event); err != nil {
			log.Printf("routing: archive failed for room %s: %v", event.RoomID, err)
		}
	}
	return nil
}

// OnRoomCreated ничего не делает: приветствий от бота в этом режиме нет
func (s *AgentStrategy) OnRoomCreated(ctx context.Context, room *models.Room) error {
	return nil
}
