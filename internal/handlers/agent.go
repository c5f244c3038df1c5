package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/aicc-chat/internal/broker"
	"github.com/thereayou/aicc-chat/internal/history"
	"github.com/thereayou/aicc-chat/internal/middleware"
	"github.com/thereayou/aicc-chat/internal/models"
	"github.com/thereayou/aicc-chat/internal/presence"
	"github.com/thereayou/aicc-chat/internal/routing"
	"github.com/thereayou/aicc-chat/internal/store"
	"github.com/thereayou/aicc-chat/pkg/auth"
	"golang.org/x/crypto/bcrypt"
)

// оператор со столькими активными комнатами больше не считается
// свободным
const maxAgentRooms = 3

const (
	noticeAgentJoined = "An operator has joined the conversation."
	noticeIntervened  = "Another operator has taken over the conversation."
	noticeAgentEnded  = "The operator has ended the consultation. Bot support has been resumed."
)

// AgentHandler — операторский API: логин, список комнат, назначение и
// завершение консультаций
type AgentHandler struct {
	store    store.Store
	broker   broker.Broker
	presence presence.Presence
	history  *history.Database
	notifier routing.Notifier
	jwt      *auth.JWTManager
}

func NewAgentHandler(st store.Store, br broker.Broker, reg presence.Presence, hist *history.Database, notifier routing.Notifier, jwt *auth.JWTManager) *AgentHandler {
	return &AgentHandler{
		store:    st,
		broker:   br,
		presence: reg,
		history:  hist,
		notifier: notifier,
		jwt:      jwt,
	}
}

type agentLoginRequest struct {
	UserID   string `json:"userId" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AgentHandler) Login(c *gin.Context) {
	var req agentLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId and password are required"})
		return
	}

	account, err := h.history.GetAccount(c.Request.Context(), req.UserID)
	if err == history.ErrNotFound {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	user := &models.UserInfo{
		UserID:    account.UserID,
		UserName:  account.UserName,
		Role:      models.RoleAgent,
		Email:     account.Email,
		CompanyID: account.CompanyID,
	}
	token, err := h.jwt.Generate(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	if err := h.presence.MarkAgentOnline(c.Request.Context(), user.UserID, user.UserName); err != nil {
		log.Printf("handlers: mark agent %s online: %v", user.UserID, err)
	}

	user.Token = token
	c.JSON(http.StatusOK, user)
}

// Heartbeat продлевает объявление о доступности оператора; без него
// запись молча истекает
func (h *AgentHandler) Heartbeat(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if err := h.presence.AgentHeartbeat(c.Request.Context(), user.UserID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "heartbeat failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *AgentHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, middleware.CurrentUser(c))
}

func (h *AgentHandler) Rooms(c *gin.Context) {
	rooms, err := h.store.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rooms)
}

func (h *AgentHandler) Room(c *gin.Context) {
	room, err := h.store.Get(c.Request.Context(), c.Param("roomId"))
	if err == store.ErrRoomNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, room)
}

// Assign атомарно закрепляет комнату за оператором. Повторная попытка
// того же оператора — no-op, чужая комната — конфликт с именем
// владельца.
func (h *AgentHandler) Assign(c *gin.Context) {
	ctx := c.Request.Context()
	roomID := c.Param("roomId")
	user := middleware.CurrentUser(c)

	if _, err := h.store.Get(ctx, roomID); err == store.ErrRoomNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	} else if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	claimed, err := h.store.ClaimIfFree(ctx, roomID, user.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if !claimed {
		holder, err := h.store.GetAssignedAgent(ctx, roomID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if holder == user.UserID {
			// уже моя комната
			c.JSON(http.StatusOK, gin.H{"status": "assigned", "assignedAgent": holder})
			return
		}
		c.JSON(http.StatusConflict, gin.H{
			"error":         "room is already assigned",
			"assignedAgent": holder,
		})
		return
	}

	h.afterClaim(ctx, roomID, user, noticeAgentJoined, models.TypeJoin)
	c.JSON(http.StatusOK, gin.H{"status": "assigned", "assignedAgent": user.UserID})
}

// ForceAssign перехватывает комнату независимо от текущего владельца
func (h *AgentHandler) ForceAssign(c *gin.Context) {
	ctx := c.Request.Context()
	roomID := c.Param("roomId")
	user := middleware.CurrentUser(c)

	if _, err := h.store.Get(ctx, roomID); err == store.ErrRoomNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	} else if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	previous, err := h.store.ForceClaim(ctx, roomID, user.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	notice := noticeAgentJoined
	if previous != "" && previous != user.UserID {
		notice = noticeIntervened
	}
	h.afterClaim(ctx, roomID, user, notice, models.TypeIntervene)
	c.JSON(http.StatusOK, gin.H{
		"status":        "assigned",
		"assignedAgent": user.UserID,
		"previousAgent": previous,
	})
}

func (h *AgentHandler) afterClaim(ctx context.Context, roomID string, user *models.UserInfo, notice string, eventType models.EventType) {
	event := &models.ChatEvent{
		RoomID:    roomID,
		Sender:    user.UserName,
		SenderID:  user.UserID,
		Role:      models.RoleSystem,
		Body:      notice,
		Type:      eventType,
		Timestamp: time.Now(),
	}
	if err := h.broker.Publish(ctx, event); err != nil {
		log.Printf("handlers: publish claim notice for room %s: %v", roomID, err)
	}
	if h.history != nil {
		if err := h.history.SetSessionAgent(ctx, roomID, user.UserID); err != nil {
			log.Printf("handlers: session agent for room %s: %v", roomID, err)
		}
		if err := h.history.SetSessionStatus(ctx, roomID, string(models.ModeAgent)); err != nil {
			log.Printf("handlers: session status for room %s: %v", roomID, err)
		}
	}
	if h.notifier != nil {
		h.notifier.BroadcastRoomList(ctx)
	}
}

// EndConsultation возвращает комнату боту: режим BOT, оператор снят
func (h *AgentHandler) EndConsultation(c *gin.Context) {
	ctx := c.Request.Context()
	roomID := c.Param("roomId")

	if _, err := h.store.Get(ctx, roomID); err == store.ErrRoomNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	} else if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.SetAssignedAgent(ctx, roomID, ""); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := h.store.SetMode(ctx, roomID, models.ModeBot); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := h.broker.Publish(ctx, systemEvent(roomID, noticeAgentEnded)); err != nil {
		log.Printf("handlers: publish end notice for room %s: %v", roomID, err)
	}
	if h.history != nil {
		if err := h.history.SetSessionStatus(ctx, roomID, string(models.ModeBot)); err != nil {
			log.Printf("handlers: session status for room %s: %v", roomID, err)
		}
	}
	if h.notifier != nil {
		h.notifier.BroadcastRoomList(ctx)
	}
	c.JSON(http.StatusOK, gin.H{"status": "ended"})
}

// DeleteRoom закрывает комнату; для уже закрытой выполняет жесткое
// удаление
func (h *AgentHandler) DeleteRoom(c *gin.Context) {
	ctx := c.Request.Context()
	roomID := c.Param("roomId")

	if _, err := h.store.Get(ctx, roomID); err == store.ErrRoomNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	} else if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	mode, err := h.store.GetMode(ctx, roomID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if mode == models.ModeClosed {
		if err := h.store.Delete(ctx, roomID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if h.notifier != nil {
			h.notifier.BroadcastRoomList(ctx)
		}
		c.JSON(http.StatusOK, gin.H{"status": "deleted"})
		return
	}

	if err := h.store.SetAssignedAgent(ctx, roomID, ""); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := h.store.SetMode(ctx, roomID, models.ModeClosed); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := h.broker.Publish(ctx, systemEvent(roomID, "The conversation has been closed.")); err != nil {
		log.Printf("handlers: publish close notice for room %s: %v", roomID, err)
	}
	if h.history != nil {
		if err := h.history.SetSessionStatus(ctx, roomID, string(models.ModeClosed)); err != nil {
			log.Printf("handlers: session status for room %s: %v", roomID, err)
		}
	}
	if h.notifier != nil {
		h.notifier.BroadcastRoomList(ctx)
	}
	c.JSON(http.StatusOK, gin.H{"status": "closed"})
}

// Availability возвращает операторов, которые онлайн и держат меньше
// maxAgentRooms комнат одновременно
func (h *AgentHandler) Availability(c *gin.Context) {
	ctx := c.Request.Context()

	online, err := h.presence.OnlineAgents(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	rooms, err := h.store.List(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	load := make(map[string]int)
	for _, room := range rooms {
		if room.AssignedAgent != "" {
			load[room.AssignedAgent]++
		}
	}

	available := make([]string, 0, len(online))
	for _, agentID := range online {
		if load[agentID] < maxAgentRooms {
			available = append(available, agentID)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"available": len(available) > 0,
		"agents":    available,
	})
}

func systemEvent(roomID, body string) *models.ChatEvent {
	return &models.ChatEvent{
		RoomID:    roomID,
		Sender:    "system",
		Role:      models.RoleSystem,
		Body:      body,
		Type:      models.TypeTalk,
		Timestamp: time.Now(),
	}
}
