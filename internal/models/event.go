package models

import "time"

// EventType определяет типы событий чата
type EventType string

const (
	TypeEnter         EventType = "ENTER"
	TypeTalk          EventType = "TALK"
	TypeLeave         EventType = "LEAVE"
	TypeJoin          EventType = "JOIN"
	TypeHandoff       EventType = "HANDOFF"
	TypeCancelHandoff EventType = "CANCEL_HANDOFF"
	TypeIntervene     EventType = "INTERVENE"
	TypeCustomerLeft  EventType = "CUSTOMER_LEFT"
)

type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleAgent    Role = "AGENT"
	RoleBot      Role = "BOT"
	RoleSystem   Role = "SYSTEM"
)

// ChatEvent — единица трафика чата: проходит через брокер, опционально
// архивируется историей. Timestamp всегда ставится сервером.
type ChatEvent struct {
	RoomID    string    `json:"roomId"`
	Sender    string    `json:"sender"`
	SenderID  string    `json:"senderId,omitempty"`
	Role      Role      `json:"senderRole"`
	Body      string    `json:"message"`
	Type      EventType `json:"type"`
	CompanyID string    `json:"companyId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
