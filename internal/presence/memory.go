package presence

import (
	"context"
	"sync"
	"time"
)

// Presence — учёт живых соединений и доступности операторов
type Presence interface {
	Register(ctx context.Context, sessionID, userID, role string) error
	Unregister(ctx context.Context, sessionID string) error
	Refresh(ctx context.Context, sessionID string) error
	UserBySession(ctx context.Context, sessionID string) (string, error)
	RoleBySession(ctx context.Context, sessionID string) (string, error)
	SessionsOf(ctx context.Context, userID string) ([]string, error)
	IsOnline(ctx context.Context, userID string) (bool, error)
	AllSessions(ctx context.Context) ([]string, error)
	SessionCount(ctx context.Context) (int64, error)
	MarkAgentOnline(ctx context.Context, userID, userName string) error
	AgentHeartbeat(ctx context.Context, userID string) error
	OnlineAgents(ctx context.Context) ([]string, error)
}

type memorySession struct {
	userID    string
	role      string
	expiresAt time.Time
}

type memoryAd struct {
	userName  string
	expiresAt time.Time
}

// MemoryRegistry — присутствие в памяти процесса для single-режима и
// тестов; TTL проверяется лениво при чтении
type MemoryRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
	agents   map[string]*memoryAd

	now func() time.Time
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		sessions: make(map[string]*memorySession),
		agents:   make(map[string]*memoryAd),
		now:      time.Now,
	}
}

func (r *MemoryRegistry) Register(ctx context.Context, sessionID, userID, role string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionID] = &memorySession{
		userID:    userID,
		role:      role,
		expiresAt: r.now().Add(SessionTTL),
	}
	return nil
}

func (r *MemoryRegistry) Unregister(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
	return nil
}

func (r *MemoryRegistry) Refresh(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok {
		s.expiresAt = r.now().Add(SessionTTL)
	}
	return nil
}

func (r *MemoryRegistry) UserBySession(ctx context.Context, sessionID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s := r.liveSession(sessionID); s != nil {
		return s.userID, nil
	}
	return "", nil
}

func (r *MemoryRegistry) RoleBySession(ctx context.Context, sessionID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s := r.liveSession(sessionID); s != nil {
		return s.role, nil
	}
	return "", nil
}

func (r *MemoryRegistry) SessionsOf(ctx context.Context, userID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sessions []string
	for id, s := range r.sessions {
		if s.userID == userID && s.expiresAt.After(r.now()) {
			sessions = append(sessions, id)
		}
	}
	return sessions, nil
}

func (r *MemoryRegistry) IsOnline(ctx context.Context, userID string) (bool, error) {
	sessions, _ := r.SessionsOf(ctx, userID)
	return len(sessions) > 0, nil
}

func (r *MemoryRegistry) AllSessions(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessions := make([]string, 0, len(r.sessions))
	for id, s := range r.sessions {
		if s.expiresAt.After(r.now()) {
			sessions = append(sessions, id)
		}
	}
	return sessions, nil
}

func (r *MemoryRegistry) SessionCount(ctx context.Context) (int64, error) {
	sessions, err := r.AllSessions(ctx)
	return int64(len(sessions)), err
}

func (r *MemoryRegistry) MarkAgentOnline(ctx context.Context, userID, userName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[userID] = &memoryAd{
		userName:  userName,
		expiresAt: r.now().Add(AgentOnlineTTL),
	}
	return nil
}

func (r *MemoryRegistry) AgentHeartbeat(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ad, ok := r.agents[userID]; ok {
		ad.expiresAt = r.now().Add(AgentOnlineTTL)
	}
	return nil
}

func (r *MemoryRegistry) OnlineAgents(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var agents []string
	for userID, ad := range r.agents {
		if ad.expiresAt.After(r.now()) {
			agents = append(agents, userID)
		}
	}
	return agents, nil
}

func (r *MemoryRegistry) liveSession(sessionID string) *memorySession {
	s, ok := r.sessions[sessionID]
	if !ok || !s.expiresAt.After(r.now()) {
		return nil
	}
	return s
}
