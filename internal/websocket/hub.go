package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/thereayou/aicc-chat/internal/models"
	"github.com/thereayou/aicc-chat/internal/presence"
	"github.com/thereayou/aicc-chat/internal/store"
)

// MessageType определяет типы кадров, которыми обмениваемся с клиентом
type MessageType string

const (
	// Системные типы
	TypePing  MessageType = "ping"
	TypePong  MessageType = "pong"
	TypeError MessageType = "error"

	// Трафик чата
	TypeEvent MessageType = "event"

	// Консоль оператора
	TypeRoomList  MessageType = "room_list"
	TypeRoomJoin  MessageType = "room_join"
	TypeRoomLeave MessageType = "room_leave"
)

type Message struct {
	Type      MessageType     `json:"type"`
	RoomID    string          `json:"roomId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type Hub struct {
	clients map[string]*Client

	// соединения по UserID: у пользователя их может быть несколько
	userClients map[string]map[string]*Client

	// подписчики комнат по sessionID
	rooms map[string]map[string]*Client

	register   chan *Client
	unregister chan *Client

	store    store.Store
	presence presence.Presence

	// вызывается, когда последнее соединение клиента покидает комнату
	onCustomerGone func(roomID, userID, userName string)

	mu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(st store.Store, reg presence.Presence) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[string]*Client),
		userClients: make(map[string]map[string]*Client),
		rooms:       make(map[string]map[string]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		store:       st,
		presence:    reg,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// SetCustomerGoneHandler задает обработчик ухода клиента из назначенной
// комнаты; вызывается до запуска Run
func (h *Hub) SetCustomerGoneHandler(fn func(roomID, userID, userName string)) {
	h.onCustomerGone = fn
}

func (h *Hub) Run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-ticker.C:
			h.ping()
		}
	}
}

func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		close(client.Send)
		client.Conn.Close()
	}
	h.clients = make(map[string]*Client)
}

func (h *Hub) Register(client *Client)   { h.register <- client }
func (h *Hub) Unregister(client *Client) { h.unregister <- client }

// Deliver раздает событие всем подписчикам его комнаты. Реализует
// приемник брокера: сюда приходят и локальные публикации, и события с
// других инстансов.
func (h *Hub) Deliver(event *models.ChatEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("hub: marshal event for room %s: %v", event.RoomID, err)
		return
	}
	frame, err := json.Marshal(Message{
		Type:      TypeEvent,
		RoomID:    event.RoomID,
		Data:      data,
		Timestamp: time.Now(),
	})
	if err != nil {
		log.Printf("hub: marshal frame for room %s: %v", event.RoomID, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	h.sendToRoomUnsafe(event.RoomID, frame)
}

// BroadcastRoomList толкает полный список комнат всем операторским
// консолям
func (h *Hub) BroadcastRoomList(ctx context.Context) {
	rooms, err := h.store.List(ctx)
	if err != nil {
		log.Printf("hub: room list fetch failed: %v", err)
		return
	}
	data, err := json.Marshal(rooms)
	if err != nil {
		log.Printf("hub: marshal room list: %v", err)
		return
	}
	frame, err := json.Marshal(Message{
		Type:      TypeRoomList,
		Data:      data,
		Timestamp: time.Now(),
	})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if client.Role != models.RoleAgent {
			continue
		}
		select {
		case client.Send <- frame:
		default:
			log.Printf("hub: send queue full for session %s", client.SessionID)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client.SessionID] = client
	if _, ok := h.userClients[client.UserID]; !ok {
		h.userClients[client.UserID] = make(map[string]*Client)
	}
	h.userClients[client.UserID][client.SessionID] = client
	h.mu.Unlock()

	if h.presence != nil {
		if err := h.presence.Register(h.ctx, client.SessionID, client.UserID, string(client.Role)); err != nil {
			log.Printf("hub: presence register for session %s: %v", client.SessionID, err)
		}
	}

	log.Printf("hub: session %s connected (user %s, role %s)", client.SessionID, client.UserID, client.Role)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	_, known := h.clients[client.SessionID]
	var goneRooms []string
	if known {
		for roomID := range client.Rooms {
			goneRooms = append(goneRooms, roomID)
		}
		for _, roomID := range goneRooms {
			h.removeFromRoomUnsafe(client, roomID)
		}

		if userClients, ok := h.userClients[client.UserID]; ok {
			delete(userClients, client.SessionID)
			if len(userClients) == 0 {
				delete(h.userClients, client.UserID)
			}
		}

		delete(h.clients, client.SessionID)
		close(client.Send)
	}
	_, stillConnected := h.userClients[client.UserID]
	h.mu.Unlock()

	if !known {
		return
	}

	if h.presence != nil {
		if err := h.presence.Unregister(h.ctx, client.SessionID); err != nil {
			log.Printf("hub: presence unregister for session %s: %v", client.SessionID, err)
		}
	}

	// оператору важно видеть, что клиент пропал из его комнаты
	if !stillConnected && client.Role == models.RoleCustomer && h.onCustomerGone != nil {
		for _, roomID := range goneRooms {
			h.onCustomerGone(roomID, client.UserID, client.Name)
		}
	}

	log.Printf("hub: session %s disconnected (user %s)", client.SessionID, client.UserID)
}

func (h *Hub) JoinRoom(client *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[string]*Client)
	}
	h.rooms[roomID][client.SessionID] = client
	client.mu.Lock()
	client.Rooms[roomID] = true
	client.mu.Unlock()
}

func (h *Hub) LeaveRoom(client *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeFromRoomUnsafe(client, roomID)
}

func (h *Hub) removeFromRoomUnsafe(client *Client, roomID string) {
	room, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(room, client.SessionID)
	client.mu.Lock()
	delete(client.Rooms, roomID)
	client.mu.Unlock()
	if len(room) == 0 {
		delete(h.rooms, roomID)
	}
}

func (h *Hub) sendToRoomUnsafe(roomID string, frame []byte) {
	for _, client := range h.rooms[roomID] {
		select {
		case client.Send <- frame:
		default:
			log.Printf("hub: send queue full for session %s", client.SessionID)
		}
	}
}

func (h *Hub) refreshPresence(sessionID string) {
	if h.presence == nil {
		return
	}
	if err := h.presence.Refresh(h.ctx, sessionID); err != nil {
		log.Printf("hub: presence refresh for session %s: %v", sessionID, err)
	}
}

func (h *Hub) ping() {
	frame, err := json.Marshal(Message{Type: TypePing, Timestamp: time.Now()})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.Send <- frame:
		default:
		}
	}
}

// RoomSubscribers возвращает userID подписчиков комнаты
func (h *Hub) RoomSubscribers(roomID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]bool)
	for _, client := range h.rooms[roomID] {
		seen[client.UserID] = true
	}
	users := make([]string, 0, len(seen))
	for userID := range seen {
		users = append(users, userID)
	}
	return users
}

// ConnectedUsers возвращает userID всех подключенных пользователей
func (h *Hub) ConnectedUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := make([]string, 0, len(h.userClients))
	for userID := range h.userClients {
		users = append(users, userID)
	}
	return users
}
