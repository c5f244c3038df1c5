package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/aicc-chat/internal/history"
)

// SessionHandler — отчетность по прошедшим консультациям
type SessionHandler struct {
	history *history.Database
}

func NewSessionHandler(hist *history.Database) *SessionHandler {
	return &SessionHandler{history: hist}
}

// List возвращает сессии, опционально по компании
func (h *SessionHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	sessions, err := h.history.ListSessions(c.Request.Context(), c.Query("companyId"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sessions)
}

func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.history.GetSession(c.Request.Context(), c.Param("roomId"))
	if err == history.ErrNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, session)
}

// History возвращает переписку комнаты от старых сообщений к новым
func (h *SessionHandler) History(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))
	records, err := h.history.RoomHistory(c.Request.Context(), c.Param("roomId"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, records)
}
