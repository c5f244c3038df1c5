package routing

import (
	"context"
	"log"

	"github.com/thereayou/aicc-chat/internal/models"
	"github.com/thereayou/aicc-chat/internal/store"
)

// DynamicStrategy — композит: по текущему режиму комнаты делегирует
// событию либо ботовую, либо операторскую ветку. Уход участника
// закрывает комнату независимо от режима.
type DynamicStrategy struct {
	store    store.Store
	bot      Strategy
	agent    Strategy
	archive  Archive
	notifier Notifier
}

func NewDynamicStrategy(st store.Store, botStrategy, agentStrategy Strategy, archive Archive, notifier Notifier) *DynamicStrategy {
	return &DynamicStrategy{
		store:    st,
		bot:      botStrategy,
		agent:    agentStrategy,
		archive:  archive,
		notifier: notifier,
	}
}

func (s *DynamicStrategy) HandleMessage(ctx context.Context, event *models.ChatEvent) error {
	if event.Type == models.TypeLeave {
		return s.handleLeave(ctx, event)
	}

	// события оператора всегда идут напрямую в fan-out
	if event.Role == models.RoleAgent {
		return s.agent.HandleMessage(ctx, event)
	}

	mode := s.currentMode(ctx, event.RoomID)

	switch event.Type {
	case models.TypeHandoff, models.TypeCancelHandoff:
		// переключения режима обрабатывает ботовая ветка, но в AGENT
		// комната уже у оператора и запрос просто раздаётся
		if mode == models.ModeAgent {
			return s.agent.HandleMessage(ctx, event)
		}
		return s.bot.HandleMessage(ctx, event)
	}

	switch mode {
	case models.ModeAgent, models.ModeWaiting, models.ModeClosed:
		// в WAITING бот молчит, но операторские консоли видят трафик
		return s.agent.HandleMessage(ctx, event)
	default:
		return s.bot.HandleMessage(ctx, event)
	}
}

func (s *DynamicStrategy) OnRoomCreated(ctx context.Context, room *models.Room) error {
	return s.bot.OnRoomCreated(ctx, room)
}

// handleLeave закрывает комнату; повторное закрытие уже закрытой
// комнаты выполняет жёсткое удаление
func (s *DynamicStrategy) handleLeave(ctx context.Context, event *models.ChatEvent) error {
	mode := s.currentMode(ctx, event.RoomID)
	if mode == models.ModeClosed {
		if err := s.store.Delete(ctx, event.RoomID); err != nil {
			return err
		}
		if s.notifier != nil {
			s.notifier.BroadcastRoomList(ctx)
		}
		return nil
	}

	if err := s.store.SetAssignedAgent(ctx, event.RoomID, ""); err != nil {
		return err
	}
	if err := s.store.SetMode(ctx, event.RoomID, models.ModeClosed); err != nil {
		return err
	}
	if err := s.agent.HandleMessage(ctx, event); err != nil {
		return err
	}
	if err := s.agent.HandleMessage(ctx, systemNotice(event.RoomID, noticeClosed)); err != nil {
		return err
	}
	if s.archive != nil {
		if err := s.archive.SetSessionStatus(ctx, event.RoomID, string(models.ModeClosed)); err != nil {
			log.Printf("routing: session status update failed for room %s: %v", event.RoomID, err)
		}
	}
	if s.notifier != nil {
		s.notifier.BroadcastRoomList(ctx)
	}
	return nil
}

// currentMode по умолчанию сводит неизвестный или нечитаемый режим к
// BOT: безопасная деградация вместо потери события
func (s *DynamicStrategy) currentMode(ctx context.Context, roomID string) models.Mode {
	mode, err := s.store.GetMode(ctx, roomID)
	if err != nil {
		log.Printf("routing: mode lookup failed for room %s, falling back to BOT: %v", roomID, err)
		return models.ModeBot
	}
	switch mode {
	case models.ModeBot, models.ModeWaiting, models.ModeAgent, models.ModeClosed:
		return mode
	}
	return models.ModeBot
}
