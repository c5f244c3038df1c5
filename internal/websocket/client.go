package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/thereayou/aicc-chat/internal/models"
)

const (
	// Время ожидания записи
	writeWait = 10 * time.Second

	// Время ожидания pong от клиента
	pongWait = 60 * time.Second

	// Интервал отправки ping
	pingPeriod = (pongWait * 9) / 10

	// Максимальный размер сообщения
	maxMessageSize = 64 * 1024 // 64KB
)

// InboundHandler получает разобранные события от соединения
type InboundHandler interface {
	HandleInbound(client *Client, event *models.ChatEvent) error
}

type Client struct {
	SessionID string
	UserID    string
	Name      string
	Role      models.Role
	CompanyID string
	Conn      *websocket.Conn
	Send      chan []byte
	Rooms     map[string]bool
	Hub       *Hub
	mu        sync.RWMutex
}

func NewClient(hub *Hub, conn *websocket.Conn, user *models.UserInfo) *Client {
	return &Client{
		SessionID: uuid.NewString(),
		UserID:    user.UserID,
		Name:      user.UserName,
		Role:      user.Role,
		CompanyID: user.CompanyID,
		Conn:      conn,
		Send:      make(chan []byte, 256),
		Rooms:     make(map[string]bool),
		Hub:       hub,
	}
}

// ReadPump читает кадры соединения и передает события обработчику.
// Отправитель в кадре всегда перекрывается аутентифицированной
// личностью соединения.
func (c *Client) ReadPump(handler InboundHandler) {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := c.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("hub: read error for session %s: %v", c.SessionID, err)
			}
			break
		}

		switch msg.Type {
		case TypePong:
			// pong подтверждает живость — продлеваем запись присутствия
			c.Hub.refreshPresence(c.SessionID)
			continue

		case TypeRoomJoin:
			if msg.RoomID != "" {
				c.Hub.JoinRoom(c, msg.RoomID)
			}
			continue

		case TypeRoomLeave:
			if msg.RoomID != "" {
				c.Hub.LeaveRoom(c, msg.RoomID)
			}
			continue

		case TypeEvent:
			event, err := c.parseEvent(&msg)
			if err != nil {
				c.SendError(ErrInvalidMessage.Error())
				continue
			}
			if handler != nil {
				if err := handler.HandleInbound(c, event); err != nil {
					log.Printf("hub: inbound event for session %s: %v", c.SessionID, err)
					c.SendError(err.Error())
				}
			}
		}
	}
}

func (c *Client) parseEvent(msg *Message) (*models.ChatEvent, error) {
	var event models.ChatEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return nil, ErrInvalidMessage
	}
	if event.RoomID == "" {
		event.RoomID = msg.RoomID
	}
	if event.RoomID == "" {
		return nil, ErrInvalidMessage
	}

	event.Sender = c.Name
	event.SenderID = c.UserID
	event.Role = c.Role
	if event.CompanyID == "" {
		event.CompanyID = c.CompanyID
	}
	event.Timestamp = time.Now()
	return &event, nil
}

// WritePump отправляет кадры клиенту
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub закрыл канал
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) SendMessage(msgType MessageType, data interface{}) error {
	msg := Message{
		Type:      msgType,
		Timestamp: time.Now(),
	}

	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return err
		}
		msg.Data = jsonData
	}

	frame, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case c.Send <- frame:
		return nil
	default:
		return ErrClientQueueFull
	}
}

func (c *Client) SendError(errorMsg string) {
	c.SendMessage(TypeError, map[string]string{
		"error": errorMsg,
	})
}

func (c *Client) IsInRoom(roomID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Rooms[roomID]
}

func (c *Client) JoinedRooms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rooms := make([]string, 0, len(c.Rooms))
	for roomID := range c.Rooms {
		rooms = append(rooms, roomID)
	}
	return rooms
}
