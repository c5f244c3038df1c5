package bot

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

const (
	askEndpoint   = "/v1/chatbot/ask"
	sseDataPrefix = "data:"
	sseDoneToken  = "[DONE]"

	askTimeout = 65 * time.Second
	// без единой строки за это время поток считается зависшим и обрывается
	streamInactivityTimeout = 30 * time.Second

	maxConns        = 100
	maxIdleConns    = 50
	idleConnTimeout = 20 * time.Second
)

// порядок важен: берём первое присутствующее поле
var replyFields = []string{"delta", "content", "message", "text", "answer"}

const (
	msgBadRequest   = "Your request could not be processed."
	msgEngineError  = "The AI service failed to process your request."
	msgConnectError = "Failed to connect to the chat service."
)

// MiChat — мост к потоковому AI-движку. Общий ограниченный пул
// соединений защищает от роста ресурсов под нагрузкой.
type MiChat struct {
	client    *http.Client
	endpoint  string
	companyID string
	userID    string
	ragInfo   string
}

type MiChatOptions struct {
	Endpoint         string
	DefaultCompanyID string
	DefaultUserID    string
	RagSysInfo       string
}

func NewMiChat(opts MiChatOptions) *MiChat {
	transport := &http.Transport{
		MaxConnsPerHost:     maxConns,
		MaxIdleConns:        maxConns,
		MaxIdleConnsPerHost: maxIdleConns,
		IdleConnTimeout:     idleConnTimeout,
	}
	return &MiChat{
		client:    &http.Client{Transport: transport},
		endpoint:  opts.Endpoint,
		companyID: opts.DefaultCompanyID,
		userID:    opts.DefaultUserID,
		ragInfo:   opts.RagSysInfo,
	}
}

type askRequest struct {
	Chat askChat `json:"chat"`
	Meta askMeta `json:"meta"`
}

type askChat struct {
	Message    string `json:"message"`
	Stream     bool   `json:"stream"`
	UseHistory bool   `json:"useHistory"`
}

type askMeta struct {
	Category1  string `json:"category1"`
	Category2  string `json:"category2"`
	CompanyID  string `json:"companyId"`
	SessionID  string `json:"sessionId"`
	UserID     string `json:"userId"`
	RagSysInfo string `json:"ragSysInfo"`
}

func (m *MiChat) buildAskRequest(req Request) askRequest {
	companyID := req.CompanyID
	if companyID == "" {
		companyID = m.companyID
	}
	userID := req.UserID
	if userID == "" {
		userID = m.userID
	}
	return askRequest{
		Chat: askChat{Message: req.Message, Stream: true, UseHistory: true},
		Meta: askMeta{
			Category1:  req.Category1,
			Category2:  req.Category2,
			CompanyID:  companyID,
			SessionID:  req.SessionID,
			UserID:     userID,
			RagSysInfo: m.ragInfo,
		},
	}
}

// Ask стримит ответ движка. Канал закрывается ровно один раз;
// потребитель накапливает куски до закрытия и только потом публикует.
func (m *MiChat) Ask(ctx context.Context, req Request) <-chan string {
	out := make(chan string, 16)

	if req.Message == "" {
		log.Printf("MiChat: empty request for session %s", req.SessionID)
		out <- msgBadRequest
		close(out)
		return out
	}

	go m.stream(ctx, req, out)
	return out
}

func (m *MiChat) stream(ctx context.Context, req Request, out chan<- string) {
	defer close(out)

	body, err := json.Marshal(m.buildAskRequest(req))
	if err != nil {
		log.Printf("MiChat: marshal request: %v", err)
		out <- msgEngineError
		return
	}

	ctx, cancel := context.WithTimeout(ctx, askTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint+askEndpoint, bytes.NewReader(body))
	if err != nil {
		log.Printf("MiChat: build request: %v", err)
		out <- msgEngineError
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := m.client.Do(httpReq)
	if err != nil {
		log.Printf("MiChat: request failed for session %s: %v", req.SessionID, err)
		out <- msgConnectError
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		out <- m.mapErrorResponse(resp)
		return
	}

	// сторожевой таймер: нет данных в течение окна — поток обрывается
	watchdog := time.AfterFunc(streamInactivityTimeout, cancel)
	defer watchdog.Stop()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		watchdog.Reset(streamInactivityTimeout)
		if chunk, ok := parseStreamLine(scanner.Text()); ok {
			out <- chunk
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			log.Printf("MiChat: stream timed out for session %s", req.SessionID)
		} else {
			log.Printf("MiChat: stream aborted for session %s: %v", req.SessionID, err)
		}
		out <- msgConnectError
		return
	}
	log.Printf("MiChat: stream complete for session %s", req.SessionID)
}

// parseStreamLine разбирает одну строку потока: снимает префикс кадра,
// фильтрует сентинел завершения и достаёт текст из первого подходящего
// поля. Нераспознанная строка отбрасывается с предупреждением.
func parseStreamLine(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false
	}
	if strings.Contains(line, sseDoneToken) {
		return "", false
	}
	raw := line
	if strings.HasPrefix(line, sseDataPrefix) {
		raw = strings.TrimSpace(line[len(sseDataPrefix):])
	}

	var node map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &node); err != nil {
		log.Printf("MiChat: unparsable stream line: %s", raw)
		return "", false
	}
	for _, field := range replyFields {
		rawVal, ok := node[field]
		if !ok {
			continue
		}
		var text string
		if err := json.Unmarshal(rawVal, &text); err != nil {
			continue
		}
		if text == "" {
			return "", false
		}
		return text, true
	}
	log.Printf("MiChat: no recognized reply field in stream line: %s", raw)
	return "", false
}

type errorEnvelope struct {
	Error struct {
		Code      string `json:"error_code"`
		Message   string `json:"error_message"`
		RequestID string `json:"requestId"`
	} `json:"error"`
}

// mapErrorResponse переводит структурированный конверт ошибки движка в
// текст для пользователя; нечитаемое тело сводится к общему сообщению
func (m *MiChat) mapErrorResponse(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error.Code == "" {
		log.Printf("MiChat: unparsable error body (status %d): %s", resp.StatusCode, body)
		return msgConnectError
	}

	log.Printf("MiChat: engine error code=%s message=%s requestId=%s",
		envelope.Error.Code, envelope.Error.Message, envelope.Error.RequestID)

	// MAI-4xx — ошибки клиента
	if strings.HasPrefix(envelope.Error.Code, "MAI-4") {
		return msgBadRequest + " (" + envelope.Error.Message + ")"
	}
	return msgEngineError
}
