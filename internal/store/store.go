package store

import (
	"context"
	"errors"

	"github.com/thereayou/aicc-chat/internal/models"
)

var (
	// ErrRoomNotFound — комнаты нет; это не ошибка инфраструктуры
	ErrRoomNotFound = errors.New("room not found")
)

// Store — единственный владелец состояния комнат. Состояние разделяется
// между процессами, поэтому компоненты не кэшируют его дольше одной операции.
type Store interface {
	Create(ctx context.Context, roomID, name string) (*models.Room, error)
	Get(ctx context.Context, roomID string) (*models.Room, error)
	List(ctx context.Context) ([]*models.Room, error)

	AddMember(ctx context.Context, roomID, memberID string) error
	RemoveMember(ctx context.Context, roomID, memberID string) error
	RemoveMemberEverywhere(ctx context.Context, memberID string) error

	SetMode(ctx context.Context, roomID string, mode models.Mode) error
	GetMode(ctx context.Context, roomID string) (models.Mode, error)

	SetAssignedAgent(ctx context.Context, roomID, agentName string) error
	GetAssignedAgent(ctx context.Context, roomID string) (string, error)
	// ClaimIfFree атомарно назначает оператора, если комната свободна.
	// Возвращает false без ошибки, если оператор уже назначен.
	ClaimIfFree(ctx context.Context, roomID, agentName string) (bool, error)
	// ForceClaim перехватывает комнату независимо от текущего владельца
	// и возвращает имя предыдущего (пустая строка, если не было).
	ForceClaim(ctx context.Context, roomID, agentName string) (string, error)

	TouchActivity(ctx context.Context, roomID string) error
	Delete(ctx context.Context, roomID string) error
}
