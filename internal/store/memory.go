package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/thereayou/aicc-chat/internal/models"
)

// записи держим в отдельных полях, как под-ключи в Redis,
// чтобы обе реализации собирали Room одинаково
type memoryRoom struct {
	name           string
	members        []string
	createdAt      int64
	lastActivityAt int64
}

// MemoryStore — процесс-локальная реализация Store. Годится только для
// одного инстанса и для тестов: состояние не видно другим процессам.
type MemoryStore struct {
	mu     sync.RWMutex
	rooms  map[string]*memoryRoom
	modes  map[string]models.Mode
	agents map[string]string
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:  make(map[string]*memoryRoom),
		modes:  make(map[string]models.Mode),
		agents: make(map[string]string),
		now:    time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context, roomID, name string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UnixMilli()
	s.rooms[roomID] = &memoryRoom{
		name:           name,
		createdAt:      now,
		lastActivityAt: now,
	}
	s.modes[roomID] = models.ModeBot

	return &models.Room{
		ID:             roomID,
		Name:           name,
		Members:        []string{},
		Mode:           models.ModeBot,
		CreatedAt:      now,
		LastActivityAt: now,
	}, nil
}

func (s *MemoryStore) Get(ctx context.Context, roomID string) (*models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buildRoom(roomID)
}

// buildRoom собирает Room из отдельных полей; отсутствующим даются
// значения по умолчанию (mode -> BOT), как при чтении под-ключей из Redis
func (s *MemoryStore) buildRoom(roomID string) (*models.Room, error) {
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}

	mode, ok := s.modes[roomID]
	if !ok {
		mode = models.ModeBot
	}

	members := make([]string, len(r.members))
	copy(members, r.members)

	return &models.Room{
		ID:             roomID,
		Name:           r.name,
		Members:        members,
		Mode:           mode,
		AssignedAgent:  s.agents[roomID],
		CreatedAt:      r.createdAt,
		LastActivityAt: r.lastActivityAt,
	}, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rooms := make([]*models.Room, 0, len(ids))
	for _, id := range ids {
		room, err := s.buildRoom(id)
		if err != nil {
			continue
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

func (s *MemoryStore) AddMember(ctx context.Context, roomID, memberID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	for _, m := range r.members {
		if m == memberID {
			return nil
		}
	}
	r.members = append(r.members, memberID)
	return nil
}

func (s *MemoryStore) RemoveMember(ctx context.Context, roomID, memberID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	r.members = removeString(r.members, memberID)
	return nil
}

func (s *MemoryStore) RemoveMemberEverywhere(ctx context.Context, memberID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rooms {
		r.members = removeString(r.members, memberID)
	}
	return nil
}

func (s *MemoryStore) SetMode(ctx context.Context, roomID string, mode models.Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modes[roomID] = mode
	return nil
}

func (s *MemoryStore) GetMode(ctx context.Context, roomID string) (models.Mode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mode, ok := s.modes[roomID]
	if !ok {
		return "", nil
	}
	return mode, nil
}

func (s *MemoryStore) SetAssignedAgent(ctx context.Context, roomID, agentName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if agentName == "" {
		delete(s.agents, roomID)
		return nil
	}
	s.agents[roomID] = agentName
	return nil
}

func (s *MemoryStore) GetAssignedAgent(ctx context.Context, roomID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.agents[roomID], nil
}

func (s *MemoryStore) ClaimIfFree(ctx context.Context, roomID, agentName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.agents[roomID]; taken {
		return false, nil
	}
	s.agents[roomID] = agentName
	s.modes[roomID] = models.ModeAgent
	if r, ok := s.rooms[roomID]; ok {
		r.lastActivityAt = s.now().UnixMilli()
	}
	return true, nil
}

func (s *MemoryStore) ForceClaim(ctx context.Context, roomID, agentName string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.agents[roomID]
	s.agents[roomID] = agentName
	s.modes[roomID] = models.ModeAgent
	if r, ok := s.rooms[roomID]; ok {
		r.lastActivityAt = s.now().UnixMilli()
	}
	return previous, nil
}

func (s *MemoryStore) TouchActivity(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.rooms[roomID]; ok {
		r.lastActivityAt = s.now().UnixMilli()
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.rooms, roomID)
	delete(s.modes, roomID)
	delete(s.agents, roomID)
	return nil
}

func removeString(ss []string, v string) []string {
	out := ss[:0]
	for _, s := range ss {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}
