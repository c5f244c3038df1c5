package reaper

import (
	"context"
	"log"
	"time"

	"github.com/thereayou/aicc-chat/internal/broker"
	"github.com/thereayou/aicc-chat/internal/models"
	"github.com/thereayou/aicc-chat/internal/routing"
	"github.com/thereayou/aicc-chat/internal/store"
)

const (
	DefaultInterval  = 60 * time.Second
	DefaultThreshold = 10 * time.Minute

	noticeAutoClosed = "The conversation was closed due to inactivity."
)

// Reaper периодически закрывает комнаты, простоявшие без активности
// дольше порога. Ошибка одной комнаты не прерывает обход остальных.
type Reaper struct {
	store     store.Store
	broker    broker.Broker
	archive   routing.Archive
	notifier  routing.Notifier
	interval  time.Duration
	threshold time.Duration

	now    func() time.Time
	cancel context.CancelFunc
	done   chan struct{}
}

func New(st store.Store, br broker.Broker, archive routing.Archive, notifier routing.Notifier, interval, threshold time.Duration) *Reaper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Reaper{
		store:     st,
		broker:    br,
		archive:   archive,
		notifier:  notifier,
		interval:  interval,
		threshold: threshold,
		now:       time.Now,
		done:      make(chan struct{}),
	}
}

func (r *Reaper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	go r.loop(ctx)
}

func (r *Reaper) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}

func (r *Reaper) loop(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep обходит все комнаты один раз и возвращает число удалённых.
// Простой ровно в порог ещё не считается истёкшим.
func (r *Reaper) Sweep(ctx context.Context) int {
	rooms, err := r.store.List(ctx)
	if err != nil {
		log.Printf("reaper: room list failed: %v", err)
		return 0
	}

	removed := 0
	nowMillis := r.now().UnixMilli()
	for _, room := range rooms {
		idle := time.Duration(nowMillis-room.LastActivityAt) * time.Millisecond
		if idle <= r.threshold {
			continue
		}
		if err := r.close(ctx, room); err != nil {
			log.Printf("reaper: closing room %s: %v", room.ID, err)
			continue
		}
		removed++
	}

	// один общий refresh списка на весь обход, а не на каждую комнату
	if removed > 0 && r.notifier != nil {
		r.notifier.BroadcastRoomList(ctx)
	}
	return removed
}

func (r *Reaper) close(ctx context.Context, room *models.Room) error {
	notice := &models.ChatEvent{
		RoomID:    room.ID,
		Sender:    "system",
		Role:      models.RoleSystem,
		Body:      noticeAutoClosed,
		Type:      models.TypeLeave,
		Timestamp: r.now(),
	}
	if err := r.broker.Publish(ctx, notice); err != nil {
		log.Printf("reaper: publish auto-close notice for room %s: %v", room.ID, err)
	}
	if r.archive != nil {
		if err := r.archive.SetSessionStatus(ctx, room.ID, string(models.ModeClosed)); err != nil {
			log.Printf("reaper: session status update for room %s: %v", room.ID, err)
		}
	}
	return r.store.Delete(ctx, room.ID)
}
