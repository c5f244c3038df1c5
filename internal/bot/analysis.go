package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const analysisTimeout = 30 * time.Second

// Analysis — одноразовые вызовы движка: резюме, ключевые слова,
// категория диалога. Пул соединений общий с потоковым мостом.
type Analysis struct {
	client     *http.Client
	endpoint   string
	summaryURI string
	keywordURI string
	categryURI string
	companyID  string
	userID     string
}

type AnalysisOptions struct {
	Endpoint         string
	SummaryURI       string
	KeywordURI       string
	CategoryURI      string
	DefaultCompanyID string
	DefaultUserID    string
}

func NewAnalysis(m *MiChat, opts AnalysisOptions) *Analysis {
	return &Analysis{
		client:     m.client,
		endpoint:   opts.Endpoint,
		summaryURI: opts.SummaryURI,
		keywordURI: opts.KeywordURI,
		categryURI: opts.CategoryURI,
		companyID:  opts.DefaultCompanyID,
		userID:     opts.DefaultUserID,
	}
}

// AnalysisMessage — одна реплика диалога в запросе анализа
type AnalysisMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

func (a *Analysis) Summarize(ctx context.Context, sessionID, companyID string, messages []AnalysisMessage) (string, error) {
	req := a.baseRequest(sessionID, companyID, messages)
	req["config"] = map[string]any{
		"maxLength":   300,
		"stream":      false,
		"summaryType": "general",
	}
	return a.call(ctx, a.endpoint+a.summaryURI, "summary", req)
}

func (a *Analysis) Keywords(ctx context.Context, sessionID, companyID string, messages []AnalysisMessage) (string, error) {
	req := a.baseRequest(sessionID, companyID, messages)
	req["config"] = map[string]any{
		"includeFrequency": false,
		"keywordType":      "general",
		"maxKeywords":      8,
	}
	return a.call(ctx, a.endpoint+a.keywordURI, "keywords", req)
}

func (a *Analysis) Category(ctx context.Context, sessionID, companyID string, messages []AnalysisMessage, categories []string) (string, error) {
	req := a.baseRequest(sessionID, companyID, messages)
	if len(categories) > 0 {
		req["categories"] = categories
	}
	req["maxCategories"] = 1
	return a.call(ctx, a.endpoint+a.categryURI, "category", req)
}

func (a *Analysis) baseRequest(sessionID, companyID string, messages []AnalysisMessage) map[string]any {
	if companyID == "" {
		companyID = a.companyID
	}
	if sessionID == "" {
		sessionID = fmt.Sprintf("chat-%d", time.Now().UnixMilli())
	}
	return map[string]any{
		"meta": map[string]any{
			"companyId":    companyID,
			"consultantId": a.userID,
			"sessionId":    sessionID,
			"userId":       a.userID,
		},
		"messages": messages,
	}
}

func (a *Analysis) call(ctx context.Context, url, task string, request map[string]any) (string, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("bot: %s request: %w", task, err)
	}

	ctx, cancel := context.WithTimeout(ctx, analysisTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("bot: %s request: %w", task, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("bot: %s call: %w", task, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return "", fmt.Errorf("bot: %s read response: %w", task, err)
	}
	if resp.StatusCode >= 400 {
		log.Printf("Analysis %s: status %d body %s", task, resp.StatusCode, data)
		return "", fmt.Errorf("bot: %s call: status %d", task, resp.StatusCode)
	}
	return string(data), nil
}
