package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/thereayou/aicc-chat/internal/models"
)

// Схема ключей: под-ключи по комнате + общий индекс roomId.
// Чтение комнаты собирает под-ключи по отдельности: мульти-ключевой
// транзакции нет, это осознанный компромисс разделяемого состояния.
const (
	roomKeyPrefix = "chat:room:" // chat:room:{roomId}:mems|name|mode|assignedAgent|createdAt|lastActivity
	chatRoomsKey  = "chat:rooms" // set из roomId
)

const opTimeout = 3 * time.Second

// RedisStore — разделяемая между инстансами реализация Store
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func roomKey(roomID, field string) string {
	return roomKeyPrefix + roomID + ":" + field
}

func (s *RedisStore) Create(ctx context.Context, roomID, name string) (*models.Room, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UnixMilli()
	if err := s.rdb.SAdd(ctx, chatRoomsKey, roomID).Err(); err != nil {
		return nil, fmt.Errorf("store: create room %s: %w", roomID, err)
	}
	if name != "" {
		if err := s.rdb.Set(ctx, roomKey(roomID, "name"), name, 0).Err(); err != nil {
			return nil, fmt.Errorf("store: create room %s: %w", roomID, err)
		}
	}
	if err := s.rdb.Set(ctx, roomKey(roomID, "createdAt"), strconv.FormatInt(now, 10), 0).Err(); err != nil {
		return nil, fmt.Errorf("store: create room %s: %w", roomID, err)
	}
	if err := s.rdb.Set(ctx, roomKey(roomID, "lastActivity"), strconv.FormatInt(now, 10), 0).Err(); err != nil {
		return nil, fmt.Errorf("store: create room %s: %w", roomID, err)
	}

	return &models.Room{
		ID:             roomID,
		Name:           name,
		Members:        []string{},
		Mode:           models.ModeBot,
		CreatedAt:      now,
		LastActivityAt: now,
	}, nil
}

// Get восстанавливает Room из рассыпанных под-ключей. Отсутствующие
// под-ключи получают значения по умолчанию (mode -> BOT, времена -> 0).
func (s *RedisStore) Get(ctx context.Context, roomID string) (*models.Room, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	exists, err := s.rdb.SIsMember(ctx, chatRoomsKey, roomID).Result()
	if err != nil {
		return nil, fmt.Errorf("store: get room %s: %w", roomID, err)
	}
	if !exists {
		return nil, ErrRoomNotFound
	}

	members, err := s.rdb.SMembers(ctx, roomKey(roomID, "mems")).Result()
	if err != nil {
		return nil, fmt.Errorf("store: get room %s: %w", roomID, err)
	}

	name := s.getString(ctx, roomKey(roomID, "name"))
	mode := s.getString(ctx, roomKey(roomID, "mode"))
	agent := s.getString(ctx, roomKey(roomID, "assignedAgent"))
	createdAt := s.getInt64(ctx, roomKey(roomID, "createdAt"))
	lastActivity := s.getInt64(ctx, roomKey(roomID, "lastActivity"))

	if name == "" {
		name = roomID
	}
	if mode == "" {
		mode = string(models.ModeBot)
	}

	return &models.Room{
		ID:             roomID,
		Name:           name,
		Members:        members,
		Mode:           models.Mode(mode),
		AssignedAgent:  agent,
		CreatedAt:      createdAt,
		LastActivityAt: lastActivity,
	}, nil
}

func (s *RedisStore) List(ctx context.Context) ([]*models.Room, error) {
	lctx, cancel := context.WithTimeout(ctx, opTimeout)
	roomIDs, err := s.rdb.SMembers(lctx, chatRoomsKey).Result()
	cancel()
	if err != nil {
		return nil, fmt.Errorf("store: list rooms: %w", err)
	}

	rooms := make([]*models.Room, 0, len(roomIDs))
	for _, id := range roomIDs {
		room, err := s.Get(ctx, id)
		if err != nil {
			// комната могла исчезнуть между чтением индекса и сборкой
			if err == ErrRoomNotFound {
				continue
			}
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

func (s *RedisStore) AddMember(ctx context.Context, roomID, memberID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.rdb.SAdd(ctx, roomKey(roomID, "mems"), memberID).Err(); err != nil {
		return fmt.Errorf("store: add member: %w", err)
	}
	if err := s.rdb.SAdd(ctx, chatRoomsKey, roomID).Err(); err != nil {
		return fmt.Errorf("store: add member: %w", err)
	}
	return nil
}

func (s *RedisStore) RemoveMember(ctx context.Context, roomID, memberID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.rdb.SRem(ctx, roomKey(roomID, "mems"), memberID).Err(); err != nil {
		return fmt.Errorf("store: remove member: %w", err)
	}
	return nil
}

func (s *RedisStore) RemoveMemberEverywhere(ctx context.Context, memberID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	roomIDs, err := s.rdb.SMembers(ctx, chatRoomsKey).Result()
	if err != nil {
		return fmt.Errorf("store: remove member everywhere: %w", err)
	}
	for _, id := range roomIDs {
		if err := s.rdb.SRem(ctx, roomKey(id, "mems"), memberID).Err(); err != nil {
			return fmt.Errorf("store: remove member everywhere: %w", err)
		}
	}
	return nil
}

func (s *RedisStore) SetMode(ctx context.Context, roomID string, mode models.Mode) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.rdb.Set(ctx, roomKey(roomID, "mode"), string(mode), 0).Err(); err != nil {
		return fmt.Errorf("store: set mode: %w", err)
	}
	return nil
}

func (s *RedisStore) GetMode(ctx context.Context, roomID string) (models.Mode, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	mode, err := s.rdb.Get(ctx, roomKey(roomID, "mode")).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: get mode: %w", err)
	}
	return models.Mode(mode), nil
}

func (s *RedisStore) SetAssignedAgent(ctx context.Context, roomID, agentName string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	key := roomKey(roomID, "assignedAgent")
	if agentName == "" {
		// пустое имя снимает назначение
		if err := s.rdb.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("store: clear assigned agent: %w", err)
		}
		return nil
	}
	if err := s.rdb.Set(ctx, key, agentName, 0).Err(); err != nil {
		return fmt.Errorf("store: set assigned agent: %w", err)
	}
	return nil
}

func (s *RedisStore) GetAssignedAgent(ctx context.Context, roomID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	agent, err := s.rdb.Get(ctx, roomKey(roomID, "assignedAgent")).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: get assigned agent: %w", err)
	}
	return agent, nil
}

// ClaimIfFree использует SETNX: выигрывает ровно один конкурирующий
// оператор, независимо от числа инстансов
func (s *RedisStore) ClaimIfFree(ctx context.Context, roomID, agentName string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	ok, err := s.rdb.SetNX(ctx, roomKey(roomID, "assignedAgent"), agentName, 0).Result()
	if err != nil {
		return false, fmt.Errorf("store: claim room %s: %w", roomID, err)
	}
	if !ok {
		return false, nil
	}
	if err := s.rdb.Set(ctx, roomKey(roomID, "mode"), string(models.ModeAgent), 0).Err(); err != nil {
		return true, fmt.Errorf("store: claim room %s: %w", roomID, err)
	}
	if err := s.touch(ctx, roomID); err != nil {
		return true, err
	}
	return true, nil
}

// ForceClaim перехватывает назначение через GETSET: смена владельца
// атомарна, прежний возвращается вызывающему
func (s *RedisStore) ForceClaim(ctx context.Context, roomID, agentName string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	previous, err := s.rdb.GetSet(ctx, roomKey(roomID, "assignedAgent"), agentName).Result()
	if err != nil && err != redis.Nil {
		return "", fmt.Errorf("store: force claim room %s: %w", roomID, err)
	}
	if err := s.rdb.Set(ctx, roomKey(roomID, "mode"), string(models.ModeAgent), 0).Err(); err != nil {
		return previous, fmt.Errorf("store: force claim room %s: %w", roomID, err)
	}
	if err := s.touch(ctx, roomID); err != nil {
		return previous, err
	}
	return previous, nil
}

func (s *RedisStore) TouchActivity(ctx context.Context, roomID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return s.touch(ctx, roomID)
}

func (s *RedisStore) touch(ctx context.Context, roomID string) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	if err := s.rdb.Set(ctx, roomKey(roomID, "lastActivity"), now, 0).Err(); err != nil {
		return fmt.Errorf("store: touch activity: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, roomID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.rdb.SRem(ctx, chatRoomsKey, roomID).Err(); err != nil {
		return fmt.Errorf("store: delete room %s: %w", roomID, err)
	}
	keys := []string{
		roomKey(roomID, "mems"),
		roomKey(roomID, "name"),
		roomKey(roomID, "mode"),
		roomKey(roomID, "assignedAgent"),
		roomKey(roomID, "createdAt"),
		roomKey(roomID, "lastActivity"),
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("store: delete room %s: %w", roomID, err)
	}
	return nil
}

func (s *RedisStore) getString(ctx context.Context, key string) string {
	v, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		return ""
	}
	return v
}

func (s *RedisStore) getInt64(ctx context.Context, key string) int64 {
	v, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
