package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/aicc-chat/internal/presence"
)

// PresenceHandler отдает состояние живых WebSocket-сессий: кто онлайн,
// сколько соединений и какие сессии висят за пользователем. В отличие
// от SessionHandler работает не с архивом, а с реестром присутствия.
type PresenceHandler struct {
	presence presence.Presence
}

func NewPresenceHandler(p presence.Presence) *PresenceHandler {
	return &PresenceHandler{presence: p}
}

// All перечисляет идентификаторы всех живых сессий
func (h *PresenceHandler) All(c *gin.Context) {
	sessions, err := h.presence.AllSessions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// Stats возвращает счетчики по сессиям и операторам
func (h *PresenceHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()
	count, err := h.presence.SessionCount(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	agents, err := h.presence.OnlineAgents(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sessionCount": count,
		"onlineAgents": len(agents),
	})
}

// Info описывает одну сессию: владелец и роль
func (h *PresenceHandler) Info(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("sessionId")

	userID, err := h.presence.UserBySession(ctx, sessionID)
	if err != nil || userID == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	role, err := h.presence.RoleBySession(ctx, sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sessionId": sessionID,
		"userId":    userID,
		"role":      role,
	})
}

// User перечисляет сессии конкретного пользователя
func (h *PresenceHandler) User(c *gin.Context) {
	sessions, err := h.presence.SessionsOf(c.Request.Context(), c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"userId":   c.Param("userId"),
		"sessions": sessions,
	})
}

// Online отвечает, есть ли у пользователя хотя бы одна живая сессия
func (h *PresenceHandler) Online(c *gin.Context) {
	online, err := h.presence.IsOnline(c.Request.Context(), c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"userId": c.Param("userId"),
		"online": online,
	})
}

// Refresh продлевает TTL сессии вручную, без pong-кадра
func (h *PresenceHandler) Refresh(c *gin.Context) {
	if err := h.presence.Refresh(c.Request.Context(), c.Param("sessionId")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"refreshed": true})
}
