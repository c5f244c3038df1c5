package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/aicc-chat/internal/handlers"
	"github.com/thereayou/aicc-chat/internal/middleware"
	"github.com/thereayou/aicc-chat/internal/models"
	"github.com/thereayou/aicc-chat/pkg/auth"
)

func APIEndpoints(
	r *gin.Engine,
	jwtMgr *auth.JWTManager,
	customerH *handlers.CustomerHandler,
	agentH *handlers.AgentHandler,
	sessionH *handlers.SessionHandler,
	presenceH *handlers.PresenceHandler,
	analysisH *handlers.AnalysisHandler,
	messageH *handlers.MessageHandler,
	wsH *handlers.WebSocketHandler,
) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Клиент: логин выдает личность, токен и комнату
	customer := r.Group("/api/customer")
	{
		customer.POST("/login", customerH.Login)
		customer.POST("/login/:companyId", customerH.Login)
	}

	customerAuthed := r.Group("/api/customer", middleware.AuthMiddleware(jwtMgr))
	{
		customerAuthed.POST("/chatbot", customerH.CreateRoom)
		customerAuthed.GET("/rooms/:roomId", customerH.Room)
	}

	// Оператор
	agent := r.Group("/api/agent")
	{
		agent.POST("/login", agentH.Login)
	}

	agentAuthed := r.Group("/api/agent",
		middleware.AuthMiddleware(jwtMgr),
		middleware.RequireRole(models.RoleAgent),
	)
	{
		agentAuthed.POST("/heartbeat", agentH.Heartbeat)
		agentAuthed.GET("/me", agentH.Me)
		agentAuthed.GET("/availability", agentH.Availability)
		agentAuthed.GET("/rooms", agentH.Rooms)
		agentAuthed.GET("/rooms/:roomId", agentH.Room)
		agentAuthed.POST("/rooms/:roomId/assign", agentH.Assign)
		agentAuthed.POST("/rooms/:roomId/force-assign", agentH.ForceAssign)
		agentAuthed.POST("/rooms/:roomId/end", agentH.EndConsultation)
		agentAuthed.DELETE("/rooms/:roomId", agentH.DeleteRoom)
	}

	// Асинхронный прием событий без WebSocket
	api := r.Group("/api", middleware.AuthMiddleware(jwtMgr))
	{
		api.POST("/messages", messageH.SubmitHTTP)
	}

	// Живые WebSocket-сессии из реестра присутствия
	session := r.Group("/api/session",
		middleware.AuthMiddleware(jwtMgr),
		middleware.RequireRole(models.RoleAgent),
	)
	{
		session.GET("", presenceH.All)
		session.GET("/stats", presenceH.Stats)
		session.GET("/info/:sessionId", presenceH.Info)
		session.GET("/user/:userId", presenceH.User)
		session.GET("/online/:userId", presenceH.Online)
		session.POST("/refresh/:sessionId", presenceH.Refresh)
	}

	// Архив и аналитика доступны только при настроенной истории
	if sessionH != nil {
		sessions := r.Group("/api/sessions",
			middleware.AuthMiddleware(jwtMgr),
			middleware.RequireRole(models.RoleAgent),
		)
		{
			sessions.GET("", sessionH.List)
			sessions.GET("/:roomId", sessionH.Get)
			sessions.GET("/:roomId/history", sessionH.History)
		}
	}
	if analysisH != nil {
		analysis := r.Group("/api/analysis",
			middleware.AuthMiddleware(jwtMgr),
			middleware.RequireRole(models.RoleAgent),
		)
		{
			analysis.POST("/summary", analysisH.Summary)
			analysis.POST("/keywords", analysisH.Keywords)
			analysis.POST("/category", analysisH.Category)
		}
	}

	// WebSocket: токен принимается и из query
	r.GET("/ws/chat", middleware.WSAuthMiddleware(jwtMgr), wsH.HandleWebSocket)
}
