package presence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// Ключи: sessionId -> userId, userId -> set сессий, общий индекс сессий.
// Отдельно — короткоживущая "реклама" онлайна оператора: она обновляется
// хартбитом и истекает независимо от учёта сессий.
const (
	sessionToUserPrefix  = "ws:session:"
	userToSessionsPrefix = "ws:user:"
	allSessionsKey       = "ws:sessions:all"
	onlineAgentsPrefix   = "chat:online:agents:"
)

const (
	// SessionTTL — время жизни привязки сессия-пользователь
	SessionTTL = 24 * time.Hour
	// AgentOnlineTTL — время жизни рекламы онлайна оператора;
	// без хартбита оператор молча выпадает из доступных
	AgentOnlineTTL = 10 * time.Minute
)

const opTimeout = 3 * time.Second

// Registry хранит в Redis привязку живых соединений к пользователям,
// чтобы несколько инстансов видели общую картину присутствия
type Registry struct {
	rdb *redis.Client
}

func NewRegistry(rdb *redis.Client) *Registry {
	return &Registry{rdb: rdb}
}

func (r *Registry) Register(ctx context.Context, sessionID, userID, role string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	sessionKey := sessionToUserPrefix + sessionID
	if err := r.rdb.Set(ctx, sessionKey, userID, SessionTTL).Err(); err != nil {
		return fmt.Errorf("presence: register session: %w", err)
	}

	userKey := userToSessionsPrefix + userID
	if err := r.rdb.SAdd(ctx, userKey, sessionID).Err(); err != nil {
		return fmt.Errorf("presence: register session: %w", err)
	}
	r.rdb.Expire(ctx, userKey, SessionTTL)

	if err := r.rdb.SAdd(ctx, allSessionsKey, sessionID).Err(); err != nil {
		return fmt.Errorf("presence: register session: %w", err)
	}

	if role != "" {
		r.rdb.Set(ctx, sessionKey+":role", role, SessionTTL)
	}
	return nil
}

func (r *Registry) Unregister(ctx context.Context, sessionID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	sessionKey := sessionToUserPrefix + sessionID
	userID, err := r.rdb.Get(ctx, sessionKey).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("presence: unregister session: %w", err)
	}

	if userID != "" {
		userKey := userToSessionsPrefix + userID
		r.rdb.SRem(ctx, userKey, sessionID)
		if n, _ := r.rdb.SCard(ctx, userKey).Result(); n == 0 {
			r.rdb.Del(ctx, userKey)
		}
	}

	r.rdb.Del(ctx, sessionKey, sessionKey+":role")
	r.rdb.SRem(ctx, allSessionsKey, sessionID)
	return nil
}

// Refresh продлевает TTL привязки (хартбит клиента)
func (r *Registry) Refresh(ctx context.Context, sessionID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	sessionKey := sessionToUserPrefix + sessionID
	userID, err := r.rdb.Get(ctx, sessionKey).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("presence: refresh session: %w", err)
	}

	r.rdb.Expire(ctx, sessionKey, SessionTTL)
	r.rdb.Expire(ctx, sessionKey+":role", SessionTTL)
	r.rdb.Expire(ctx, userToSessionsPrefix+userID, SessionTTL)
	return nil
}

func (r *Registry) UserBySession(ctx context.Context, sessionID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	userID, err := r.rdb.Get(ctx, sessionToUserPrefix+sessionID).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("presence: user by session: %w", err)
	}
	return userID, nil
}

func (r *Registry) RoleBySession(ctx context.Context, sessionID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	role, err := r.rdb.Get(ctx, sessionToUserPrefix+sessionID+":role").Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("presence: role by session: %w", err)
	}
	return role, nil
}

func (r *Registry) SessionsOf(ctx context.Context, userID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	sessions, err := r.rdb.SMembers(ctx, userToSessionsPrefix+userID).Result()
	if err != nil {
		return nil, fmt.Errorf("presence: sessions of %s: %w", userID, err)
	}
	return sessions, nil
}

func (r *Registry) IsOnline(ctx context.Context, userID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	n, err := r.rdb.SCard(ctx, userToSessionsPrefix+userID).Result()
	if err != nil {
		return false, fmt.Errorf("presence: is online %s: %w", userID, err)
	}
	return n > 0, nil
}

func (r *Registry) AllSessions(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	sessions, err := r.rdb.SMembers(ctx, allSessionsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("presence: all sessions: %w", err)
	}
	return sessions, nil
}

func (r *Registry) SessionCount(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	n, err := r.rdb.SCard(ctx, allSessionsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("presence: session count: %w", err)
	}
	return n, nil
}

// MarkAgentOnline рекламирует оператора как доступного на AgentOnlineTTL
func (r *Registry) MarkAgentOnline(ctx context.Context, userID, userName string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	key := onlineAgentsPrefix + userID
	if err := r.rdb.Set(ctx, key, userName, AgentOnlineTTL).Err(); err != nil {
		return fmt.Errorf("presence: mark agent online: %w", err)
	}
	return nil
}

// AgentHeartbeat продлевает рекламу онлайна; истёкшая реклама — не ошибка
func (r *Registry) AgentHeartbeat(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := r.rdb.Expire(ctx, onlineAgentsPrefix+userID, AgentOnlineTTL).Err(); err != nil {
		return fmt.Errorf("presence: agent heartbeat: %w", err)
	}
	return nil
}

// OnlineAgents возвращает userId всех операторов с живой рекламой
func (r *Registry) OnlineAgents(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var agents []string
	iter := r.rdb.Scan(ctx, 0, onlineAgentsPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		agents = append(agents, strings.TrimPrefix(iter.Val(), onlineAgentsPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("presence: online agents: %w", err)
	}
	return agents, nil
}
