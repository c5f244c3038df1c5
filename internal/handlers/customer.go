package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/thereayou/aicc-chat/internal/history"
	"github.com/thereayou/aicc-chat/internal/middleware"
	"github.com/thereayou/aicc-chat/internal/models"
	"github.com/thereayou/aicc-chat/internal/routing"
	"github.com/thereayou/aicc-chat/internal/store"
	"github.com/thereayou/aicc-chat/pkg/auth"
)

// CustomerHandler выдает клиентам токены и комнаты. Регистрация не
// требуется: клиент получает сгенерированную личность и сразу комнату
// с ботом.
type CustomerHandler struct {
	store    store.Store
	strategy routing.Strategy
	notifier routing.Notifier
	history  *history.Database
	jwt      *auth.JWTManager
}

func NewCustomerHandler(st store.Store, strategy routing.Strategy, notifier routing.Notifier, hist *history.Database, jwt *auth.JWTManager) *CustomerHandler {
	return &CustomerHandler{
		store:    st,
		strategy: strategy,
		notifier: notifier,
		history:  hist,
		jwt:      jwt,
	}
}

type customerLoginRequest struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// Login создает (или принимает) личность клиента, заводит комнату и
// возвращает профиль с токеном и roomId
func (h *CustomerHandler) Login(c *gin.Context) {
	// тело опционально: анонимному клиенту личность генерируется
	var req customerLoginRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	if req.UserID == "" {
		req.UserID = "cust-" + shortID()
	}
	if req.UserName == "" {
		req.UserName = req.UserID
	}

	user := &models.UserInfo{
		UserID:    req.UserID,
		UserName:  req.UserName,
		Role:      models.RoleCustomer,
		CompanyID: c.Param("companyId"),
	}

	room, err := h.createRoom(c, user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create room"})
		return
	}

	token, err := h.jwt.Generate(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	user.Token = token
	user.RoomID = room.ID
	c.JSON(http.StatusOK, user)
}

// CreateRoom заводит дополнительную комнату для уже авторизованного
// клиента: токен остается прежним, меняется только roomId
func (h *CustomerHandler) CreateRoom(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil || user.Role != models.RoleCustomer {
		c.JSON(http.StatusForbidden, gin.H{"error": "customer token required"})
		return
	}

	room, err := h.createRoom(c, user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create room"})
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *CustomerHandler) createRoom(c *gin.Context, user *models.UserInfo) (*models.Room, error) {
	ctx := c.Request.Context()
	roomID := "room-" + shortID()

	room, err := h.store.Create(ctx, roomID, user.UserName+"'s chat")
	if err != nil {
		return nil, err
	}
	if err := h.store.AddMember(ctx, roomID, user.UserID); err != nil {
		return nil, err
	}

	if h.history != nil {
		session := &models.ChatSession{
			RoomID:       roomID,
			RoomName:     room.Name,
			CustomerID:   user.UserID,
			CustomerName: user.UserName,
			Status:       string(models.ModeBot),
			CompanyID:    user.CompanyID,
			StartedAt:    time.Now(),
		}
		if err := h.history.CreateSession(ctx, session); err != nil {
			log.Printf("handlers: session record for room %s: %v", roomID, err)
		}
	}

	if err := h.strategy.OnRoomCreated(ctx, room); err != nil {
		log.Printf("handlers: room-created hook for %s: %v", roomID, err)
	}
	if h.notifier != nil {
		h.notifier.BroadcastRoomList(ctx)
	}
	return room, nil
}

// Room возвращает комнату клиента
func (h *CustomerHandler) Room(c *gin.Context) {
	roomID := c.Param("roomId")
	room, err := h.store.Get(c.Request.Context(), roomID)
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

func shortID() string {
	return uuid.NewString()[:8]
}
