package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/aicc-chat/internal/bot"
	"github.com/thereayou/aicc-chat/internal/history"
	"github.com/thereayou/aicc-chat/internal/models"
)

// AnalysisHandler гоняет переписку комнаты через аналитические вызовы
// движка: резюме, ключевые слова, категория
type AnalysisHandler struct {
	analysis *bot.Analysis
	history  *history.Database
}

func NewAnalysisHandler(analysis *bot.Analysis, hist *history.Database) *AnalysisHandler {
	return &AnalysisHandler{analysis: analysis, history: hist}
}

type analysisRequest struct {
	RoomID     string   `json:"roomId" binding:"required"`
	CompanyID  string   `json:"companyId"`
	Categories []string `json:"categories"`
}

func (h *AnalysisHandler) Summary(c *gin.Context) {
	req, messages, ok := h.prepare(c)
	if !ok {
		return
	}
	result, err := h.analysis.Summarize(c.Request.Context(), req.RoomID, req.CompanyID, messages)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"roomId": req.RoomID, "summary": result})
}

func (h *AnalysisHandler) Keywords(c *gin.Context) {
	req, messages, ok := h.prepare(c)
	if !ok {
		return
	}
	result, err := h.analysis.Keywords(c.Request.Context(), req.RoomID, req.CompanyID, messages)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"roomId": req.RoomID, "keywords": result})
}

func (h *AnalysisHandler) Category(c *gin.Context) {
	req, messages, ok := h.prepare(c)
	if !ok {
		return
	}
	if len(req.Categories) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "categories are required"})
		return
	}
	result, err := h.analysis.Category(c.Request.Context(), req.RoomID, req.CompanyID, messages, req.Categories)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"roomId": req.RoomID, "category": result})
}

// prepare разбирает запрос и достает переписку комнаты
func (h *AnalysisHandler) prepare(c *gin.Context) (*analysisRequest, []bot.AnalysisMessage, bool) {
	var req analysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "roomId is required"})
		return nil, nil, false
	}

	records, err := h.history.RoomHistory(c.Request.Context(), req.RoomID, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, nil, false
	}
	if len(records) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no messages for room"})
		return nil, nil, false
	}

	messages := make([]bot.AnalysisMessage, 0, len(records))
	for _, r := range records {
		// системные уведомления не несут смысла для анализа
		if r.SenderRole == string(models.RoleSystem) {
			continue
		}
		messages = append(messages, bot.AnalysisMessage{
			Role: r.SenderRole,
			Text: r.Message,
		})
	}
	return &req, messages, true
}
