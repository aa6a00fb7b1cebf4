// Package realtime is the room-based live fan-out of new messages.
// Delivery is best-effort and at-most-once; durability belongs to storage.
package realtime

import (
	"sync"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/pairchat/internal/model"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 64

// Bus is a registry of rooms keyed by conversation id.
type Bus struct {
	mu     sync.RWMutex
	rooms  map[uuid.UUID]map[*Subscription]struct{}
	buf    int
	closed bool
	log    *zap.Logger
	metric *Metrics
}

// Subscription is one joined viewer. Messages arrive on C until Leave.
type Subscription struct {
	C <-chan model.Message

	ch   chan model.Message
	room uuid.UUID
	bus  *Bus
	once sync.Once
}

// NewBus builds a bus. buf <= 0 selects DefaultBuffer; m may be nil.
func NewBus(buf int, log *zap.Logger, m *Metrics) *Bus {
	if buf <= 0 {
		buf = DefaultBuffer
	}
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = NewMetrics(nil)
	}
	return &Bus{rooms: make(map[uuid.UUID]map[*Subscription]struct{}), buf: buf, log: log, metric: m}
}

// Join subscribes a new viewer to room. After Close it returns a
// subscription whose C is already closed.
func (b *Bus) Join(room uuid.UUID) *Subscription {
	ch := make(chan model.Message, b.buf)
	s := &Subscription{C: ch, ch: ch, room: room, bus: b}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		s.once.Do(func() { close(ch) })
		return s
	}
	subs, ok := b.rooms[room]
	if !ok {
		subs = make(map[*Subscription]struct{})
		b.rooms[room] = subs
		b.metric.Rooms.Inc()
	}
	subs[s] = struct{}{}
	b.mu.Unlock()

	b.metric.Subscribers.Inc()
	return s
}

// Leave unsubscribes and closes C. It is safe to call more than once.
func (s *Subscription) Leave() {
	s.once.Do(func() {
		b := s.bus
		b.mu.Lock()
		if subs, ok := b.rooms[s.room]; ok {
			delete(subs, s)
			if len(subs) == 0 {
				delete(b.rooms, s.room)
				b.metric.Rooms.Dec()
			}
		}
		// closing under the write lock: Publish holds the read lock while sending
		close(s.ch)
		b.mu.Unlock()
		b.metric.Subscribers.Dec()
	})
}

// Room returns the subscribed room id.
func (s *Subscription) Room() uuid.UUID { return s.room }

// Publish hands m to every subscriber of room without blocking. A full queue
// drops the message for that subscriber only. It returns the number of queues
// that accepted the message.
func (b *Bus) Publish(room uuid.UUID, m model.Message) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for s := range b.rooms[room] {
		select {
		case s.ch <- m:
			delivered++
		default:
			b.metric.Dropped.Inc()
			b.log.Warn("subscriber queue full, message dropped",
				zap.String("room", room.String()),
				zap.String("message_id", m.ID.String()))
		}
	}
	b.metric.Delivered.Add(float64(delivered))
	return delivered
}

// Subscribers reports the number of viewers joined to room.
func (b *Bus) Subscribers(room uuid.UUID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rooms[room])
}

// Close leaves every subscriber of every room and refuses later joins.
// It returns how many subscriptions were ended.
func (b *Bus) Close() int {
	b.mu.Lock()
	b.closed = true
	var subs []*Subscription
	for _, room := range b.rooms {
		for s := range room {
			subs = append(subs, s)
		}
	}
	b.mu.Unlock()
	for _, s := range subs {
		s.Leave()
	}
	return len(subs)
}

// CloseRoom leaves every subscriber of room and returns how many there were.
func (b *Bus) CloseRoom(room uuid.UUID) int {
	b.mu.RLock()
	subs := make([]*Subscription, 0, len(b.rooms[room]))
	for s := range b.rooms[room] {
		subs = append(subs, s)
	}
	b.mu.RUnlock()
	for _, s := range subs {
		s.Leave()
	}
	return len(subs)
}
