package history

import (
	"context"
	"errors"
	"time"

	"github.com/thereayou/aicc-chat/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// ErrNotFound возвращается, когда запись отсутствует
var ErrNotFound = errors.New("history: record not found")

// Database — журнал переписки и сессий в Postgres. Не участвует в живой
// доставке: сбои записи логируются вызывающим кодом и не блокируют чат.
type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func Connect(dsn string) (*Database, error) {
	if dsn == "" {
		return nil, errors.New("history: database dsn is not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&models.ChatHistory{}, &models.ChatSession{}, &models.UserAccount{}); err != nil {
		return nil, err
	}
	return &Database{db: db}, nil
}

// SaveMessage добавляет событие в append-only журнал
func (d *Database) SaveMessage(ctx context.Context, event *models.ChatEvent) error {
	record := &models.ChatHistory{
		RoomID:      event.RoomID,
		SenderID:    event.SenderID,
		SenderName:  event.Sender,
		SenderRole:  string(event.Role),
		Message:     event.Body,
		MessageType: string(event.Type),
		CompanyID:   event.CompanyID,
		CreatedAt:   event.Timestamp,
	}
	if record.SenderID == "" {
		record.SenderID = event.Sender
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	return d.db.WithContext(ctx).Create(record).Error
}

// RoomHistory возвращает сообщения комнаты от старых к новым
func (d *Database) RoomHistory(ctx context.Context, roomID string, limit int) ([]models.ChatHistory, error) {
	var records []models.ChatHistory
	query := d.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}

	// разворачиваем, чтобы старые сообщения были первыми
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

func (d *Database) CreateSession(ctx context.Context, session *models.ChatSession) error {
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now()
	}
	session.LastActivityAt = session.StartedAt
	return d.db.WithContext(ctx).Create(session).Error
}

func (d *Database) GetSession(ctx context.Context, roomID string) (*models.ChatSession, error) {
	var session models.ChatSession
	err := d.db.WithContext(ctx).First(&session, "room_id = ?", roomID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// SetSessionStatus обновляет статус; закрытие фиксирует время окончания
func (d *Database) SetSessionStatus(ctx context.Context, roomID, status string) error {
	updates := map[string]interface{}{
		"status":           status,
		"last_activity_at": time.Now(),
	}
	if status == string(models.ModeClosed) {
		now := time.Now()
		updates["ended_at"] = &now
	}
	return d.db.WithContext(ctx).
		Model(&models.ChatSession{}).
		Where("room_id = ?", roomID).
		Updates(updates).Error
}

func (d *Database) SetSessionAgent(ctx context.Context, roomID, agentID string) error {
	return d.db.WithContext(ctx).
		Model(&models.ChatSession{}).
		Where("room_id = ?", roomID).
		Update("agent_id", agentID).Error
}

func (d *Database) TouchSession(ctx context.Context, roomID string) error {
	return d.db.WithContext(ctx).
		Model(&models.ChatSession{}).
		Where("room_id = ?", roomID).
		Update("last_activity_at", time.Now()).Error
}

// ListSessions возвращает сессии компании, новые первыми
func (d *Database) ListSessions(ctx context.Context, companyID string, limit int) ([]models.ChatSession, error) {
	var sessions []models.ChatSession
	query := d.db.WithContext(ctx).Order("started_at DESC")
	if companyID != "" {
		query = query.Where("company_id = ?", companyID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	return sessions, query.Find(&sessions).Error
}

func (d *Database) GetAccount(ctx context.Context, userID string) (*models.UserAccount, error) {
	var account models.UserAccount
	err := d.db.WithContext(ctx).First(&account, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (d *Database) CreateAccount(ctx context.Context, account *models.UserAccount) error {
	return d.db.WithContext(ctx).Create(account).Error
}
