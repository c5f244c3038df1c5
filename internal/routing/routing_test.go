package routing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/thereayou/aicc-chat/internal/bot"
	"github.com/thereayou/aicc-chat/internal/models"
	"github.com/thereayou/aicc-chat/internal/store"
)

// recordingBroker копит опубликованные события для проверок
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

func (b *recordingBroker) all() []*models.ChatEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*models.ChatEvent, len(b.events))
	copy(out, b.events)
	return out
}

func (b *recordingBroker) bodies() []string {
	var out []string
	for _, e := range b.all() {
		out = append(out, e.Body)
	}
	return out
}

// scriptedBridge отдаёт заранее заданные куски и закрывает канал
type scriptedBridge struct {
	chunks []string
	calls  int
	mu     sync.Mutex
	done   chan struct{}
}

func newScriptedBridge(chunks ...string) *scriptedBridge {
	return &scriptedBridge{chunks: chunks, done: make(chan struct{}, 16)}
}

func (f *scriptedBridge) Ask(ctx context.Context, req bot.Request) <-chan string {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	out := make(chan string, len(f.chunks)+1)
	for _, c := range f.chunks {
		out <- c
	}
	close(out)
	f.done <- struct{}{}
	return out
}

func (f *scriptedBridge) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
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

func customerTalk(roomID, body string) *models.ChatEvent {
	return &models.ChatEvent{
		RoomID:    roomID,
		Sender:    "cust1",
		SenderID:  "cust1",
		Role:      models.RoleCustomer,
		Body:      body,
		Type:      models.TypeTalk,
		Timestamp: time.Now(),
	}
}

func newDynamicFixture(bridge bot.Bridge) (*DynamicStrategy, *store.MemoryStore, *recordingBroker, *countingNotifier) {
	st := store.NewMemoryStore()
	br := &recordingBroker{}
	notifier := &countingNotifier{}
	botStrat := NewBotStrategy(st, br, bridge, nil, notifier)
	agentStrat := NewAgentStrategy(br, nil)
	return NewDynamicStrategy(st, botStrat, agentStrat, nil, notifier), st, br, notifier
}

// Сценарий A: новая комната в BOT, реплика клиента уходит боту; в
// fan-out сперва сообщение клиента, затем ответ бота
func TestCustomerTalkInvokesBot(t *testing.T) {
	bridge := newScriptedBridge("Hel", "lo, ", "world")
	dyn, st, br, _ := newDynamicFixture(bridge)
	ctx := context.Background()

	room, err := st.Create(ctx, "r1", "cust1's room")
	if err != nil {
		t.Fatal(err)
	}
	st.AddMember(ctx, "r1", "cust1")
	if room.Mode != models.ModeBot {
		t.Fatalf("new room mode = %s, want BOT", room.Mode)
	}

	if err := dyn.HandleMessage(ctx, customerTalk("r1", "hi")); err != nil {
		t.Fatal(err)
	}
	<-bridge.done
	waitFor(t, func() bool { return len(br.all()) == 2 })

	events := br.all()
	if events[0].Body != "hi" || events[0].Role != models.RoleCustomer {
		t.Errorf("first event should be the customer message, got %+v", events[0])
	}
	if events[1].Body != "Hello, world" || events[1].Role != models.RoleBot {
		t.Errorf("second event should be the aggregated bot reply, got %+v", events[1])
	}
	if bridge.callCount() != 1 {
		t.Errorf("bridge called %d times, want 1", bridge.callCount())
	}
}

// Сценарий B: handoff переводит комнату в WAITING ровно с одним
// уведомлением; повторный handoff оставляет WAITING и уведомляет снова
func TestHandoffIdempotent(t *testing.T) {
	bridge := newScriptedBridge()
	dyn, st, br, notifier := newDynamicFixture(bridge)
	ctx := context.Background()

	st.Create(ctx, "r1", "room")
	st.AddMember(ctx, "r1", "cust1")

	handoff := &models.ChatEvent{RoomID: "r1", Sender: "cust1", Role: models.RoleCustomer, Type: models.TypeHandoff}
	if err := dyn.HandleMessage(ctx, handoff); err != nil {
		t.Fatal(err)
	}

	mode, _ := st.GetMode(ctx, "r1")
	if mode != models.ModeWaiting {
		t.Fatalf("mode after handoff = %s, want WAITING", mode)
	}
	if got := countBodies(br, noticeWaiting); got != 1 {
		t.Errorf("waiting notices = %d, want exactly 1", got)
	}
	if notifier.broadcasts() != 1 {
		t.Errorf("room-list broadcasts = %d, want 1", notifier.broadcasts())
	}

	// повторный запрос: режим не меняется, клиент получает подтверждение
	if err := dyn.HandleMessage(ctx, handoff); err != nil {
		t.Fatal(err)
	}
	mode, _ = st.GetMode(ctx, "r1")
	if mode != models.ModeWaiting {
		t.Fatalf("mode after repeated handoff = %s, want WAITING", mode)
	}
	if got := countBodies(br, noticeWaiting); got != 2 {
		t.Errorf("waiting notices after repeat = %d, want 2", got)
	}
	if bridge.callCount() != 0 {
		t.Errorf("bot must stay silent during handoff, called %d times", bridge.callCount())
	}
}

func TestCancelHandoffResumesBot(t *testing.T) {
	bridge := newScriptedBridge("ok")
	dyn, st, br, _ := newDynamicFixture(bridge)
	ctx := context.Background()

	st.Create(ctx, "r1", "room")
	st.SetMode(ctx, "r1", models.ModeWaiting)

	cancel := &models.ChatEvent{RoomID: "r1", Sender: "cust1", Role: models.RoleCustomer, Type: models.TypeCancelHandoff}
	if err := dyn.HandleMessage(ctx, cancel); err != nil {
		t.Fatal(err)
	}

	mode, _ := st.GetMode(ctx, "r1")
	if mode != models.ModeBot {
		t.Fatalf("mode after cancel = %s, want BOT", mode)
	}
	if got := countBodies(br, noticeBotResumed); got != 1 {
		t.Errorf("resume notices = %d, want 1", got)
	}

	// бот снова отвечает
	dyn.HandleMessage(ctx, customerTalk("r1", "still there?"))
	<-bridge.done
	if bridge.callCount() != 1 {
		t.Errorf("bridge calls after cancel = %d, want 1", bridge.callCount())
	}
}

// в WAITING трафик клиента зеркалится консолям, но бот не вызывается
func TestWaitingMirrorsWithoutBot(t *testing.T) {
	bridge := newScriptedBridge("should not appear")
	dyn, st, br, _ := newDynamicFixture(bridge)
	ctx := context.Background()

	st.Create(ctx, "r1", "room")
	st.SetMode(ctx, "r1", models.ModeWaiting)

	dyn.HandleMessage(ctx, customerTalk("r1", "anyone?"))

	if bridge.callCount() != 0 {
		t.Errorf("bot invoked in WAITING, calls = %d", bridge.callCount())
	}
	if got := countBodies(br, "anyone?"); got != 1 {
		t.Errorf("customer message fan-out = %d, want 1", got)
	}
}

func TestAgentModePassthrough(t *testing.T) {
	bridge := newScriptedBridge("should not appear")
	dyn, st, br, _ := newDynamicFixture(bridge)
	ctx := context.Background()

	st.Create(ctx, "r1", "room")
	ok, err := st.ClaimIfFree(ctx, "r1", "agent-a")
	if err != nil || !ok {
		t.Fatalf("claim failed: ok=%v err=%v", ok, err)
	}

	dyn.HandleMessage(ctx, customerTalk("r1", "hello agent"))
	agentMsg := &models.ChatEvent{RoomID: "r1", Sender: "agent-a", Role: models.RoleAgent, Body: "hello customer", Type: models.TypeTalk}
	dyn.HandleMessage(ctx, agentMsg)

	if bridge.callCount() != 0 {
		t.Errorf("bot invoked in AGENT mode, calls = %d", bridge.callCount())
	}
	if len(br.all()) != 2 {
		t.Errorf("fan-out events = %d, want 2", len(br.all()))
	}
}

func TestLeaveClosesRoom(t *testing.T) {
	bridge := newScriptedBridge()
	dyn, st, br, notifier := newDynamicFixture(bridge)
	ctx := context.Background()

	st.Create(ctx, "r1", "room")
	st.AddMember(ctx, "r1", "cust1")

	leave := &models.ChatEvent{RoomID: "r1", Sender: "cust1", Role: models.RoleCustomer, Type: models.TypeLeave}
	if err := dyn.HandleMessage(ctx, leave); err != nil {
		t.Fatal(err)
	}

	mode, _ := st.GetMode(ctx, "r1")
	if mode != models.ModeClosed {
		t.Fatalf("mode after leave = %s, want CLOSED", mode)
	}
	if got := countBodies(br, noticeClosed); got != 1 {
		t.Errorf("close notices = %d, want 1", got)
	}
	if notifier.broadcasts() != 1 {
		t.Errorf("room-list broadcasts = %d, want 1", notifier.broadcasts())
	}

	// повторное закрытие — жёсткое удаление
	if err := dyn.HandleMessage(ctx, leave); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Get(ctx, "r1"); err != store.ErrRoomNotFound {
		t.Errorf("room should be deleted after second leave, got err=%v", err)
	}
	if notifier.broadcasts() != 2 {
		t.Errorf("room-list broadcasts after delete = %d, want 2", notifier.broadcasts())
	}
}

// пропавший режим читается как BOT, маршрутизация не теряет событие
func TestUnknownModeRoutesAsBot(t *testing.T) {
	bridge := newScriptedBridge("fallback reply")
	dyn, st, _, _ := newDynamicFixture(bridge)
	ctx := context.Background()

	st.Create(ctx, "r1", "room")
	st.SetMode(ctx, "r1", models.Mode("GARBAGE"))

	dyn.HandleMessage(ctx, customerTalk("r1", "hi"))
	<-bridge.done

	if bridge.callCount() != 1 {
		t.Errorf("unknown mode should route to bot, calls = %d", bridge.callCount())
	}
}

func TestGreetingOnRoomCreated(t *testing.T) {
	bridge := newScriptedBridge()
	dyn, st, br, _ := newDynamicFixture(bridge)
	ctx := context.Background()

	room, _ := st.Create(ctx, "r1", "room")
	if err := dyn.OnRoomCreated(ctx, room); err != nil {
		t.Fatal(err)
	}

	events := br.all()
	if len(events) != 1 || events[0].Role != models.RoleBot || events[0].Body != noticeGreeting {
		t.Errorf("expected a single bot greeting, got %v", br.bodies())
	}
}

func TestSimpleStrategyCannedReply(t *testing.T) {
	br := &recordingBroker{}
	simple := NewSimpleStrategy(br, nil)
	ctx := context.Background()

	simple.HandleMessage(ctx, customerTalk("r1", "what is the price?"))

	events := br.all()
	if len(events) != 2 {
		t.Fatalf("events = %d, want customer message + canned reply", len(events))
	}
	if events[1].Role != models.RoleBot || events[1].Body == cannedFallback {
		t.Errorf("expected keyword reply, got %+v", events[1])
	}

	simple.HandleMessage(ctx, customerTalk("r1", "qqqq"))
	events = br.all()
	if events[len(events)-1].Body != cannedFallback {
		t.Errorf("expected fallback reply, got %q", events[len(events)-1].Body)
	}
}

func TestDispatcherProcessesQueue(t *testing.T) {
	bridge := newScriptedBridge()
	dyn, st, br, _ := newDynamicFixture(bridge)
	ctx := context.Background()

	st.Create(ctx, "r1", "room")
	st.SetMode(ctx, "r1", models.ModeWaiting)

	d := NewDispatcher(dyn, 4, 16)
	d.Start()
	for i := 0; i < 10; i++ {
		if err := d.Submit(customerTalk("r1", "msg")); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, func() bool { return len(br.all()) == 10 })
	d.Stop()
}

func TestDispatcherQueueFull(t *testing.T) {
	d := NewDispatcher(NewAgentStrategy(&recordingBroker{}, nil), 1, 1)
	// воркеры не запущены: очередь заполняется сразу
	if err := d.Submit(customerTalk("r1", "a")); err != nil {
		t.Fatal(err)
	}
	if err := d.Submit(customerTalk("r1", "b")); err != ErrQueueFull {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
}

func countBodies(br *recordingBroker, body string) int {
	n := 0
	for _, b := range br.bodies() {
		if b == body {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}
