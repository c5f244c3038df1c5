package store

import (
	"context"
	"sync"
	"testing"

	"github.com/thereayou/aicc-chat/internal/models"
)

// assertAgentInvariant: mode == AGENT тогда и только тогда, когда назначен оператор
func assertAgentInvariant(t *testing.T, s Store, roomID string) {
	t.Helper()
	ctx := context.Background()

	mode, err := s.GetMode(ctx, roomID)
	if err != nil {
		t.Fatalf("GetMode: %v", err)
	}
	agent, err := s.GetAssignedAgent(ctx, roomID)
	if err != nil {
		t.Fatalf("GetAssignedAgent: %v", err)
	}

	if (mode == models.ModeAgent) != (agent != "") {
		t.Fatalf("invariant violated: mode=%q agent=%q", mode, agent)
	}
}

func TestCreateDefaultsToBotMode(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	room, err := s.Create(ctx, "room-1", "cust01")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if room.Mode != models.ModeBot {
		t.Errorf("expected BOT mode, got %s", room.Mode)
	}
	if room.CreatedAt == 0 || room.LastActivityAt == 0 {
		t.Error("expected timestamps to be set on creation")
	}
	assertAgentInvariant(t, s, "room-1")
}

func TestGetMissingRoom(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.Get(context.Background(), "nope")
	if err != ErrRoomNotFound {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestReconstructionDefaults(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Create(ctx, "room-1", "cust01")
	// снимаем под-ключ mode: сборка должна вернуть BOT по умолчанию
	delete(s.modes, "room-1")

	room, err := s.Get(ctx, "room-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if room.Mode != models.ModeBot {
		t.Errorf("missing mode should default to BOT, got %s", room.Mode)
	}
}

func TestMembers(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Create(ctx, "room-1", "cust01")
	s.Create(ctx, "room-2", "cust02")
	s.AddMember(ctx, "room-1", "cust01")
	s.AddMember(ctx, "room-1", "cust01") // повторное добавление не дублирует
	s.AddMember(ctx, "room-2", "cust01")
	s.AddMember(ctx, "room-2", "agent-a")

	room, _ := s.Get(ctx, "room-1")
	if len(room.Members) != 1 {
		t.Fatalf("expected 1 member, got %v", room.Members)
	}
	if room.CustID() != "cust01" {
		t.Errorf("expected custId cust01, got %s", room.CustID())
	}

	if err := s.RemoveMemberEverywhere(ctx, "cust01"); err != nil {
		t.Fatalf("RemoveMemberEverywhere: %v", err)
	}
	room1, _ := s.Get(ctx, "room-1")
	room2, _ := s.Get(ctx, "room-2")
	if len(room1.Members) != 0 || len(room2.Members) != 1 {
		t.Errorf("member not removed everywhere: %v / %v", room1.Members, room2.Members)
	}
}

func TestClaimIfFree(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.Create(ctx, "room-1", "cust01")

	ok, err := s.ClaimIfFree(ctx, "room-1", "agent-a")
	if err != nil || !ok {
		t.Fatalf("first claim should succeed: ok=%v err=%v", ok, err)
	}
	assertAgentInvariant(t, s, "room-1")

	ok, err = s.ClaimIfFree(ctx, "room-1", "agent-b")
	if err != nil {
		t.Fatalf("ClaimIfFree: %v", err)
	}
	if ok {
		t.Fatal("second claim should be rejected")
	}

	agent, _ := s.GetAssignedAgent(ctx, "room-1")
	if agent != "agent-a" {
		t.Errorf("holder should remain agent-a, got %s", agent)
	}
	mode, _ := s.GetMode(ctx, "room-1")
	if mode != models.ModeAgent {
		t.Errorf("expected AGENT mode after claim, got %s", mode)
	}
}

// N конкурирующих попыток: ровно один победитель
func TestConcurrentClaims(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.Create(ctx, "room-1", "cust01")

	const n = 32
	var wg sync.WaitGroup
	results := make([]bool, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := s.ClaimIfFree(ctx, "room-1", "agent-"+string(rune('a'+i%26)))
			if err != nil {
				t.Errorf("claim %d: %v", i, err)
				return
			}
			results[i] = ok
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, ok := range results {
		if ok {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
	assertAgentInvariant(t, s, "room-1")
}

func TestForceClaim(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.Create(ctx, "room-1", "cust01")

	prev, err := s.ForceClaim(ctx, "room-1", "agent-a")
	if err != nil {
		t.Fatalf("ForceClaim: %v", err)
	}
	if prev != "" {
		t.Errorf("expected no previous holder, got %q", prev)
	}

	prev, err = s.ForceClaim(ctx, "room-1", "agent-b")
	if err != nil {
		t.Fatalf("ForceClaim: %v", err)
	}
	if prev != "agent-a" {
		t.Errorf("expected previous holder agent-a, got %q", prev)
	}

	agent, _ := s.GetAssignedAgent(ctx, "room-1")
	if agent != "agent-b" {
		t.Errorf("expected holder agent-b, got %s", agent)
	}
	assertAgentInvariant(t, s, "room-1")
}

func TestClearAssignedAgent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.Create(ctx, "room-1", "cust01")
	s.ClaimIfFree(ctx, "room-1", "agent-a")

	// завершение консультации: оператор снят, комната возвращается боту
	s.SetAssignedAgent(ctx, "room-1", "")
	s.SetMode(ctx, "room-1", models.ModeBot)

	assertAgentInvariant(t, s, "room-1")

	ok, _ := s.ClaimIfFree(ctx, "room-1", "agent-b")
	if !ok {
		t.Fatal("room should be claimable again after clearing")
	}
}

func TestDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.Create(ctx, "room-1", "cust01")
	s.ClaimIfFree(ctx, "room-1", "agent-a")

	if err := s.Delete(ctx, "room-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "room-1"); err != ErrRoomNotFound {
		t.Fatalf("expected ErrRoomNotFound after delete, got %v", err)
	}

	rooms, _ := s.List(ctx)
	if len(rooms) != 0 {
		t.Errorf("expected empty list, got %d rooms", len(rooms))
	}
}
