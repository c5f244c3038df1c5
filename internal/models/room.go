package models

// Mode — режим маршрутизации комнаты
type Mode string

const (
	ModeBot     Mode = "BOT"
	ModeWaiting Mode = "WAITING"
	ModeAgent   Mode = "AGENT"
	ModeClosed  Mode = "CLOSED"
)

// Room — одна консультация клиента. Состояние хранится в Store и
// собирается из отдельных под-ключей, поэтому структура только читается.
type Room struct {
	ID             string   `json:"roomId"`
	Name           string   `json:"roomName"`
	Members        []string `json:"members"`
	Mode           Mode     `json:"status"`
	AssignedAgent  string   `json:"assignedAgent,omitempty"`
	CreatedAt      int64    `json:"createdAt"`
	LastActivityAt int64    `json:"lastActivityAt"`
}

// CustID возвращает первого участника (клиент всегда входит первым)
func (r *Room) CustID() string {
	if len(r.Members) == 0 {
		return ""
	}
	return r.Members[0]
}
