package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/aicc-chat/internal/middleware"
	"github.com/thereayou/aicc-chat/internal/models"
	"github.com/thereayou/aicc-chat/internal/routing"
	"github.com/thereayou/aicc-chat/internal/store"
	ws "github.com/thereayou/aicc-chat/internal/websocket"
)

// MessageHandler принимает события из WebSocket и HTTP и отдает их
// диспетчеру. Личность отправителя всегда берется из аутентификации,
// а не из тела запроса.
type MessageHandler struct {
	dispatcher *routing.Dispatcher
	store      store.Store
}

func NewMessageHandler(dispatcher *routing.Dispatcher, st store.Store) *MessageHandler {
	return &MessageHandler{
		dispatcher: dispatcher,
		store:      st,
	}
}

// HandleInbound вызывается соединением для каждого разобранного события
func (h *MessageHandler) HandleInbound(client *ws.Client, event *models.ChatEvent) error {
	return h.accept(event)
}

// SubmitHTTP — асинхронный прием событий без WebSocket: внешние каналы
// (мобильные приложения, интеграции) постят ChatEvent сюда
func (h *MessageHandler) SubmitHTTP(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var event models.ChatEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event payload"})
		return
	}
	if event.RoomID == "" || event.Type == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "roomId and type are required"})
		return
	}

	event.Sender = user.UserName
	event.SenderID = user.UserID
	event.Role = user.Role
	if event.CompanyID == "" {
		event.CompanyID = user.CompanyID
	}
	event.Timestamp = time.Now()

	if err := h.accept(&event); err != nil {
		if err == routing.ErrQueueFull {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server is overloaded, try again later"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (h *MessageHandler) accept(event *models.ChatEvent) error {
	if err := h.store.TouchActivity(context.Background(), event.RoomID); err != nil {
		log.Printf("handlers: touch activity for room %s: %v", event.RoomID, err)
	}
	return h.dispatcher.Submit(event)
}
