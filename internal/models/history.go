package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatHistory — архивная запись каждого события (append-only)
type ChatHistory struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	RoomID      string    `gorm:"index;not null"`
	SenderID    string    `gorm:"not null"`
	SenderName  string
	SenderRole  string `gorm:"not null"`
	Message     string
	MessageType string `gorm:"not null"`
	CompanyID   string
	CreatedAt   time.Time
}

// ChatSession — строка консультации в Postgres, дублирует жизненный цикл
// комнаты для отчетности. Живой статус комнаты хранит только Store.
type ChatSession struct {
	ID             uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	RoomID         string    `gorm:"uniqueIndex;not null"`
	RoomName       string
	CustomerID     string `gorm:"not null"`
	CustomerName   string
	AgentID        string
	Status         string `gorm:"not null"`
	CompanyID      string
	StartedAt      time.Time
	EndedAt        *time.Time
	LastActivityAt time.Time
}

// UserAccount — учетная запись оператора
type UserAccount struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID       string    `gorm:"uniqueIndex;not null"`
	UserName     string    `gorm:"not null"`
	PasswordHash string    `gorm:"not null"`
	Role         string    `gorm:"default:'AGENT'"`
	Email        string
	CompanyID    string
	CreatedAt    time.Time
}
