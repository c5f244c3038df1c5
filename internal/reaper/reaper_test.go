package reaper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/thereayou/aicc-chat/internal/models"
	"github.com/thereayou/aicc-chat/internal/store"
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

func (b *recordingBroker) noticesFor(roomID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.RoomID == roomID && e.Body == noticeAutoClosed {
			n++
		}
	}
	return n
}

type countingNotifier struct {
	mu    sync.Mutex
	count int
}

func (n *countingNotifier) BroadcastRoomList(ctx context.Context) {
	n.mu.Lock()
	n.count++
	n.mu.Unlock()
}

func (n *countingNotifier) broadcasts() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.count
}

// failingStore ломает удаление одной комнаты, остальное делегирует
type failingStore struct {
	store.Store
	failRoomID string
}

func (s *failingStore) Delete(ctx context.Context, roomID string) error {
	if roomID == s.failRoomID {
		return errors.New("store down")
	}
	return s.Store.Delete(ctx, roomID)
}

func fixture(t *testing.T) (*Reaper, *store.MemoryStore, *recordingBroker, *countingNotifier) {
	t.Helper()
	st := store.NewMemoryStore()
	br := &recordingBroker{}
	notifier := &countingNotifier{}
	r := New(st, br, nil, notifier, DefaultInterval, DefaultThreshold)
	return r, st, br, notifier
}

// Сценарий C: простоявшая комната закрывается с одним уведомлением,
// удаляется, и на весь обход приходится один refresh списка
func TestSweepClosesIdleRoom(t *testing.T) {
	r, st, br, notifier := fixture(t)
	ctx := context.Background()

	st.Create(ctx, "r1", "idle room")
	room, _ := st.Get(ctx, "r1")
	r.now = func() time.Time {
		return time.UnixMilli(room.LastActivityAt).Add(DefaultThreshold + time.Minute)
	}

	if removed := r.Sweep(ctx); removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if got := br.noticesFor("r1"); got != 1 {
		t.Errorf("auto-close notices = %d, want exactly 1", got)
	}
	if _, err := st.Get(ctx, "r1"); err != store.ErrRoomNotFound {
		t.Errorf("room should be deleted, got err=%v", err)
	}
	if notifier.broadcasts() != 1 {
		t.Errorf("room-list broadcasts = %d, want 1", notifier.broadcasts())
	}
}

func TestSweepBoundary(t *testing.T) {
	r, st, _, _ := fixture(t)
	ctx := context.Background()

	st.Create(ctx, "r1", "room")
	room, _ := st.Get(ctx, "r1")
	base := time.UnixMilli(room.LastActivityAt)

	// простой ровно в порог — ещё не истёк
	r.now = func() time.Time { return base.Add(DefaultThreshold) }
	if removed := r.Sweep(ctx); removed != 0 {
		t.Fatalf("idle == threshold must not expire, removed = %d", removed)
	}

	// порог + 1мс — истёк
	r.now = func() time.Time { return base.Add(DefaultThreshold + time.Millisecond) }
	if removed := r.Sweep(ctx); removed != 1 {
		t.Fatalf("idle == threshold+1ms must expire, removed = %d", removed)
	}
}

func TestSweepKeepsActiveRooms(t *testing.T) {
	r, st, br, notifier := fixture(t)
	ctx := context.Background()

	st.Create(ctx, "r1", "active room")

	if removed := r.Sweep(ctx); removed != 0 {
		t.Fatalf("removed = %d, want 0", removed)
	}
	if len(br.events) != 0 {
		t.Errorf("no notices expected, got %d", len(br.events))
	}
	if notifier.broadcasts() != 0 {
		t.Errorf("no broadcasts expected for a clean sweep, got %d", notifier.broadcasts())
	}
}

// одна комната на весь обход может сломаться, остальные всё равно
// закрываются; refresh списка при этом один
func TestSweepIsolatesFailures(t *testing.T) {
	st := store.NewMemoryStore()
	br := &recordingBroker{}
	notifier := &countingNotifier{}
	ctx := context.Background()

	st.Create(ctx, "good", "room")
	st.Create(ctx, "bad", "room")
	room, _ := st.Get(ctx, "good")

	r := New(&failingStore{Store: st, failRoomID: "bad"}, br, nil, notifier, DefaultInterval, DefaultThreshold)
	r.now = func() time.Time {
		return time.UnixMilli(room.LastActivityAt).Add(DefaultThreshold + time.Minute)
	}

	if removed := r.Sweep(ctx); removed != 1 {
		t.Fatalf("removed = %d, want 1 despite the failing room", removed)
	}
	if _, err := st.Get(ctx, "good"); err != store.ErrRoomNotFound {
		t.Errorf("healthy room should be deleted, got err=%v", err)
	}
	if _, err := st.Get(ctx, "bad"); err != nil {
		t.Errorf("failing room should survive the sweep, got err=%v", err)
	}
	if notifier.broadcasts() != 1 {
		t.Errorf("room-list broadcasts = %d, want 1 per sweep", notifier.broadcasts())
	}
}
