package routing

import (
	"context"
	"errors"
	"hash/fnv"
	"log"
	"sync"

	"github.com/thereayou/aicc-chat/internal/models"
)

// ErrQueueFull возвращается, когда очередь диспетчера переполнена
var ErrQueueFull = errors.New("routing: dispatch queue is full")

const (
	defaultWorkers   = 8
	defaultQueueSize = 256
)

// Dispatcher обслуживает входящие события пулом воркеров поверх
// ограниченных очередей: всплеск трафика упирается в ErrQueueFull,
// а не в неограниченный рост горутин. События шардируются по комнате,
// поэтому внутри одной комнаты порядок обработки совпадает с порядком
// поступления; между комнатами порядок не гарантируется.
type Dispatcher struct {
	strategy Strategy
	queues   []chan *models.ChatEvent

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func NewDispatcher(strategy Strategy, workers, queueSize int) *Dispatcher {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	queues := make([]chan *models.ChatEvent, workers)
	for i := range queues {
		queues[i] = make(chan *models.ChatEvent, queueSize)
	}
	return &Dispatcher{
		strategy: strategy,
		queues:   queues,
	}
}

func (d *Dispatcher) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	for _, queue := range d.queues {
		d.wg.Add(1)
		go d.worker(ctx, queue)
	}
}

// Submit ставит событие в очередь своего шарда, не блокируя вызвавшего
func (d *Dispatcher) Submit(event *models.ChatEvent) error {
	queue := d.queues[d.shard(event.RoomID)]
	select {
	case queue <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

func (d *Dispatcher) Stop() {
	d.once.Do(func() {
		if d.cancel != nil {
			d.cancel()
		}
		for _, queue := range d.queues {
			close(queue)
		}
	})
	d.wg.Wait()
}

func (d *Dispatcher) shard(roomID string) int {
	h := fnv.New32a()
	h.Write([]byte(roomID))
	return int(h.Sum32() % uint32(len(d.queues)))
}

func (d *Dispatcher) worker(ctx context.Context, queue <-chan *models.ChatEvent) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-queue:
			if !ok {
				return
			}
			if err := d.strategy.HandleMessage(ctx, event); err != nil {
				log.Printf("routing: handle %s event for room %s: %v", event.Type, event.RoomID, err)
			}
		}
	}
}
