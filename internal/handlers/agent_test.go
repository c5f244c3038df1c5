package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/aicc-chat/internal/middleware"
	"github.com/thereayou/aicc-chat/internal/models"
	"github.com/thereayou/aicc-chat/internal/presence"
	"github.com/thereayou/aicc-chat/internal/store"
	"github.com/thereayou/aicc-chat/pkg/auth"
)

type recordingBroker struct {
	mu     sync.Mutex
	events []*models.ChatEvent
}

func (b *recordingBroker) Publish(ctx context.Context, event *models.ChatEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *recordingBroker) Close() error { return nil }

func (b *recordingBroker) lastType() models.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == 0 {
		return ""
	}
	return b.events[len(b.events)-1].Type
}

func agentUser(id string) *models.UserInfo {
	return &models.UserInfo{UserID: id, UserName: id, Role: models.RoleAgent}
}

func agentRouter(h *AgentHandler, user *models.UserInfo) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(middleware.UserKey, user) })
	r.GET("/availability", h.Availability)
	r.POST("/rooms/:roomId/assign", h.Assign)
	r.POST("/rooms/:roomId/force-assign", h.ForceAssign)
	r.POST("/rooms/:roomId/end", h.EndConsultation)
	r.DELETE("/rooms/:roomId", h.DeleteRoom)
	return r
}

func doRequest(t *testing.T, r *gin.Engine, method, path string) (int, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	r.ServeHTTP(w, req)

	var body map[string]interface{}
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("bad response body %q: %v", w.Body.String(), err)
		}
	}
	return w.Code, body
}

func newAgentFixture(t *testing.T) (*store.MemoryStore, *recordingBroker, *presence.MemoryRegistry, func(user *models.UserInfo) *gin.Engine) {
	t.Helper()
	st := store.NewMemoryStore()
	br := &recordingBroker{}
	reg := presence.NewMemoryRegistry()
	jwtMgr := auth.NewJWTManager("test-secret", time.Hour)
	build := func(user *models.UserInfo) *gin.Engine {
		return agentRouter(NewAgentHandler(st, br, reg, nil, nil, jwtMgr), user)
	}
	return st, br, reg, build
}

// второй оператор получает конфликт с именем текущего владельца;
// повторная попытка владельца — no-op успех
func TestAssignConflictNamesHolder(t *testing.T) {
	st, _, _, build := newAgentFixture(t)
	st.Create(context.Background(), "r1", "room")

	routerA := build(agentUser("agent-a"))
	routerB := build(agentUser("agent-b"))

	code, body := doRequest(t, routerA, http.MethodPost, "/rooms/r1/assign")
	if code != http.StatusOK {
		t.Fatalf("first claim status = %d, body %v", code, body)
	}

	code, body = doRequest(t, routerB, http.MethodPost, "/rooms/r1/assign")
	if code != http.StatusConflict {
		t.Fatalf("competing claim status = %d, want 409", code)
	}
	if body["assignedAgent"] != "agent-a" {
		t.Errorf("conflict should name the holder, got %v", body["assignedAgent"])
	}

	code, _ = doRequest(t, routerA, http.MethodPost, "/rooms/r1/assign")
	if code != http.StatusOK {
		t.Errorf("re-claim by the holder should be a no-op success, got %d", code)
	}

	mode, _ := st.GetMode(context.Background(), "r1")
	if mode != models.ModeAgent {
		t.Errorf("mode = %s, want AGENT", mode)
	}
}

func TestAssignMissingRoom(t *testing.T) {
	_, _, _, build := newAgentFixture(t)
	code, _ := doRequest(t, build(agentUser("agent-a")), http.MethodPost, "/rooms/nope/assign")
	if code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", code)
	}
}

func TestForceAssignTakesOver(t *testing.T) {
	st, br, _, build := newAgentFixture(t)
	ctx := context.Background()
	st.Create(ctx, "r1", "room")
	st.ClaimIfFree(ctx, "r1", "agent-a")

	code, body := doRequest(t, build(agentUser("agent-b")), http.MethodPost, "/rooms/r1/force-assign")
	if code != http.StatusOK {
		t.Fatalf("force claim status = %d", code)
	}
	if body["previousAgent"] != "agent-a" {
		t.Errorf("previousAgent = %v, want agent-a", body["previousAgent"])
	}
	if br.lastType() != models.TypeIntervene {
		t.Errorf("expected an intervene event, got %s", br.lastType())
	}

	holder, _ := st.GetAssignedAgent(ctx, "r1")
	if holder != "agent-b" {
		t.Errorf("holder = %s, want agent-b", holder)
	}
}

// завершение консультации возвращает комнату боту, а не закрывает ее
func TestEndConsultationResumesBot(t *testing.T) {
	st, _, _, build := newAgentFixture(t)
	ctx := context.Background()
	st.Create(ctx, "r1", "room")
	st.ClaimIfFree(ctx, "r1", "agent-a")

	code, _ := doRequest(t, build(agentUser("agent-a")), http.MethodPost, "/rooms/r1/end")
	if code != http.StatusOK {
		t.Fatalf("end status = %d", code)
	}

	mode, _ := st.GetMode(ctx, "r1")
	if mode != models.ModeBot {
		t.Errorf("mode = %s, want BOT", mode)
	}
	holder, _ := st.GetAssignedAgent(ctx, "r1")
	if holder != "" {
		t.Errorf("assigned agent should be cleared, got %q", holder)
	}
}

func TestDeleteRoomTwiceHardDeletes(t *testing.T) {
	st, _, _, build := newAgentFixture(t)
	ctx := context.Background()
	st.Create(ctx, "r1", "room")
	router := build(agentUser("agent-a"))

	code, body := doRequest(t, router, http.MethodDelete, "/rooms/r1")
	if code != http.StatusOK || body["status"] != "closed" {
		t.Fatalf("first delete: code=%d body=%v", code, body)
	}
	mode, _ := st.GetMode(ctx, "r1")
	if mode != models.ModeClosed {
		t.Fatalf("mode = %s, want CLOSED", mode)
	}

	code, body = doRequest(t, router, http.MethodDelete, "/rooms/r1")
	if code != http.StatusOK || body["status"] != "deleted" {
		t.Fatalf("second delete: code=%d body=%v", code, body)
	}
	if _, err := st.Get(ctx, "r1"); err != store.ErrRoomNotFound {
		t.Errorf("room should be gone, err=%v", err)
	}
}

// свободен тот, кто онлайн и держит меньше трех комнат
func TestAvailability(t *testing.T) {
	st, _, reg, build := newAgentFixture(t)
	ctx := context.Background()
	router := build(agentUser("agent-a"))

	code, body := doRequest(t, router, http.MethodGet, "/availability")
	if code != http.StatusOK || body["available"] != false {
		t.Fatalf("no agents online: code=%d body=%v", code, body)
	}

	reg.MarkAgentOnline(ctx, "agent-a", "agent-a")
	_, body = doRequest(t, router, http.MethodGet, "/availability")
	if body["available"] != true {
		t.Errorf("online agent with no rooms must be available, body=%v", body)
	}

	for _, roomID := range []string{"r1", "r2", "r3"} {
		st.Create(ctx, roomID, "room")
		st.ClaimIfFree(ctx, roomID, "agent-a")
	}
	_, body = doRequest(t, router, http.MethodGet, "/availability")
	if body["available"] != false {
		t.Errorf("agent with three rooms must not be available, body=%v", body)
	}
}
