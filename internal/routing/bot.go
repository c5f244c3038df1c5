package routing

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/thereayou/aicc-chat/internal/bot"
	"github.com/thereayou/aicc-chat/internal/broker"
	"github.com/thereayou/aicc-chat/internal/models"
	"github.com/thereayou/aicc-chat/internal/store"
)

// BotStrategy маршрутизирует через AI-мост: реплики клиента уходят в
// fan-out и боту, запрос оператора переводит комнату в WAITING.
type BotStrategy struct {
	store    store.Store
	broker   broker.Broker
	bridge   bot.Bridge
	archive  Archive
	notifier Notifier
	botName  string
}

func NewBotStrategy(st store.Store, br broker.Broker, bridge bot.Bridge, archive Archive, notifier Notifier) *BotStrategy {
	return &BotStrategy{
		store:    st,
		broker:   br,
		bridge:   bridge,
		archive:  archive,
		notifier: notifier,
		botName:  "bot",
	}
}

func (s *BotStrategy) HandleMessage(ctx context.Context, event *models.ChatEvent) error {
	switch event.Type {
	case models.TypeHandoff:
		return s.handleHandoff(ctx, event)
	case models.TypeCancelHandoff:
		return s.handleCancelHandoff(ctx, event)
	}

	s.publish(ctx, event)
	s.record(ctx, event)

	if event.Type == models.TypeTalk && event.Role == models.RoleCustomer {
		go s.askBot(event)
	}
	return nil
}

// OnRoomCreated публикует приветствие от имени бота
func (s *BotStrategy) OnRoomCreated(ctx context.Context, room *models.Room) error {
	greeting := botEvent(room.ID, s.botName, noticeGreeting)
	s.publish(ctx, greeting)
	s.record(ctx, greeting)
	return nil
}

// handleHandoff переводит комнату в WAITING. Повторный запрос в WAITING
// не меняет режим, но уведомление публикуется каждый раз: клиент видит
// подтверждение, что запрос принят.
func (s *BotStrategy) handleHandoff(ctx context.Context, event *models.ChatEvent) error {
	if err := s.store.SetMode(ctx, event.RoomID, models.ModeWaiting); err != nil {
		return err
	}
	s.publish(ctx, event)
	s.publish(ctx, systemNotice(event.RoomID, noticeWaiting))
	if s.archive != nil {
		if err := s.archive.SetSessionStatus(ctx, event.RoomID, string(models.ModeWaiting)); err != nil {
			log.Printf("routing: session status update failed for room %s: %v", event.RoomID, err)
		}
	}
	if s.notifier != nil {
		s.notifier.BroadcastRoomList(ctx)
	}
	return nil
}

func (s *BotStrategy) handleCancelHandoff(ctx context.Context, event *models.ChatEvent) error {
	if err := s.store.SetMode(ctx, event.RoomID, models.ModeBot); err != nil {
		return err
	}
	s.publish(ctx, event)
	s.publish(ctx, systemNotice(event.RoomID, noticeBotResumed))
	if s.archive != nil {
		if err := s.archive.SetSessionStatus(ctx, event.RoomID, string(models.ModeBot)); err != nil {
			log.Printf("routing: session status update failed for room %s: %v", event.RoomID, err)
		}
	}
	if s.notifier != nil {
		s.notifier.BroadcastRoomList(ctx)
	}
	return nil
}

// askBot собирает поток целиком и публикует один ответ после закрытия
// канала. Ошибки моста приходят обычными кусками текста, поэтому ветка
// ошибок здесь не нужна.
func (s *BotStrategy) askBot(event *models.ChatEvent) {
	ctx := context.Background()
	chunks := s.bridge.Ask(ctx, bot.Request{
		SessionID: event.RoomID,
		Message:   event.Body,
		CompanyID: event.CompanyID,
		UserID:    event.SenderID,
	})

	var sb strings.Builder
	for chunk := range chunks {
		sb.WriteString(chunk)
	}
	reply := sb.String()
	if reply == "" {
		return
	}

	// режим мог смениться, пока бот отвечал: в AGENT ответ не публикуем
	mode, err := s.store.GetMode(ctx, event.RoomID)
	if err == nil && mode == models.ModeAgent {
		log.Printf("routing: dropping bot reply for room %s, operator took over", event.RoomID)
		return
	}

	replyEvent := botEvent(event.RoomID, s.botName, reply)
	s.publish(ctx, replyEvent)
	s.record(ctx, replyEvent)
	if err := s.store.TouchActivity(ctx, event.RoomID); err != nil {
		log.Printf("routing: touch activity failed for room %s: %v", event.RoomID, err)
	}
}

// publish логирует сбой шины, но никогда не возвращает его вызвавшему
// запросу: доставка и обработка независимы
func (s *BotStrategy) publish(ctx context.Context, event *models.ChatEvent) {
	if err := s.broker.Publish(ctx, event); err != nil {
		log.Printf("routing: publish failed for room %s: %v", event.RoomID, err)
	}
}

func (s *BotStrategy) record(ctx context.Context, event *models.ChatEvent) {
	if s.archive == nil {
		return
	}
	if err := s.archive.SaveMessage(ctx, event); err != nil {
		log.Printf("routing: archive failed for room %s: %v", event.RoomID, err)
	}
}

func botEvent(roomID, sender, body string) *models.ChatEvent {
	return &models.ChatEvent{
		RoomID:    roomID,
		Sender:    sender,
		Role:      models.RoleBot,
		Body:      body,
		Type:      models.TypeTalk,
		Timestamp: time.Now(),
	}
}
