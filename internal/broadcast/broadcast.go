package broadcast

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// VehiclePosition is a geo-interpolated vehicle location at snapshot
// time.
type VehiclePosition struct {
	VehicleID string  `json:"vehicle_id"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	State     string  `json:"state"`
}

type Stats struct {
	Delivered      int `json:"delivered"`
	Pending        int `json:"pending"`
	Misses         int `json:"misses"`
	ActiveVehicles int `json:"active_vehicles"`
}

// Snapshot is an immutable point-in-time summary of a running
// simulation.
type Snapshot struct {
	Timestamp    time.Time         `json:"timestamp"`
	NetworkID    uuid.UUID         `json:"network_id"`
	Tick         uint64            `json:"tick"`
	Vehicles     []VehiclePosition `json:"vehicles"`
	Stats        Stats             `json:"stats"`
	ActiveRoutes []string          `json:"active_routes"`
}

// Pusher is a transport-side subscriber handle. Push returns false when
// the consumer is dead and should be pruned.
type Pusher interface {
	Push(Snapshot) bool
}

type Subscriber struct {
	id string
	ch chan Snapshot
}

func (s *Subscriber) ID() string         { return s.id }
func (s *Subscriber) C() <-chan Snapshot { return s.ch }

// Hub fans snapshots out to subscribers over bounded queues. Publish
// never blocks: a full queue drops its oldest snapshot in favor of the
// new one.
type Hub struct {
	mu        sync.Mutex
	queueSize int
	subs      map[string]*Subscriber
	closed    bool
	dropped   uint64
}

func NewHub(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = 16
	}
	return &Hub{
		queueSize: queueSize,
		subs:      make(map[string]*Subscriber),
	}
}

func (h *Hub) Subscribe() *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub := &Subscriber{
		id: uuid.NewString(),
		ch: make(chan Snapshot, h.queueSize),
	}
	if h.closed {
		close(sub.ch)
		return sub
	}
	h.subs[sub.id] = sub
	return sub
}

func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(sub.ch)
	}
}

// Publish enqueues snap for every subscriber, dropping the oldest
// queued snapshot when a queue is full. Returns how many snapshots were
// dropped by this call.
func (h *Hub) Publish(snap Snapshot) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0
	}
	dropped := 0
	for _, sub := range h.subs {
		for {
			select {
			case sub.ch <- snap:
			default:
				select {
				case <-sub.ch:
					dropped++
				default:
				}
				continue
			}
			break
		}
	}
	h.dropped += uint64(dropped)
	return dropped
}

func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// Close closes every subscriber channel so consumers observe
// end-of-stream. Further Publish calls are no-ops.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
	}
}

// Attach bridges a Pusher to its own bounded queue: a goroutine drains
// the queue and pushes; the first false push prunes the subscriber.
// Returns the subscriber id for detach.
func (h *Hub) Attach(p Pusher) string {
	sub := h.Subscribe()
	go func() {
		for snap := range sub.ch {
			if !p.Push(snap) {
				h.Unsubscribe(sub.id)
				return
			}
		}
	}()
	return sub.id
}
