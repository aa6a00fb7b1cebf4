package realtime

import (
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/pairchat/internal/model"
)

func recv(t *testing.T, s *Subscription) (model.Message, bool) {
	t.Helper()
	select {
	case m, ok := <-s.C:
		return m, ok
	case <-time.After(time.Second):
		return model.Message{}, false
	}
}

func TestPublish_ReachesJoinedOnly(t *testing.T) {
	t.Parallel()
	b := NewBus(4, zaptest.NewLogger(t), nil)
	room := uuid.Must(uuid.NewV4())

	s1, s2 := b.Join(room), b.Join(room)
	other := b.Join(uuid.Must(uuid.NewV4()))
	defer s1.Leave()
	defer s2.Leave()
	defer other.Leave()

	msg := model.Message{ID: uuid.Must(uuid.NewV4()), Content: "hi"}
	if n := b.Publish(room, msg); n != 2 {
		t.Fatalf("delivered to %d", n)
	}
	for _, s := range []*Subscription{s1, s2} {
		got, ok := recv(t, s)
		if !ok || got.ID != msg.ID {
			t.Fatalf("subscriber missed message")
		}
	}
	select {
	case m := <-other.C:
		t.Fatalf("non-member received %+v", m)
	default:
	}
}

func TestPublish_NoSubscribers(t *testing.T) {
	t.Parallel()
	b := NewBus(0, nil, nil)
	if n := b.Publish(uuid.Must(uuid.NewV4()), model.Message{}); n != 0 {
		t.Fatalf("delivered=%d", n)
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	b := NewBus(1, zaptest.NewLogger(t), m)
	room := uuid.Must(uuid.NewV4())

	slow := b.Join(room)
	fast := b.Join(room)
	defer slow.Leave()
	defer fast.Leave()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 3; i++ {
			b.Publish(room, model.Message{Content: "m"})
			<-fast.C
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked on a full subscriber")
	}

	if got := testutil.ToFloat64(m.Dropped); got != 2 {
		t.Fatalf("dropped=%v", got)
	}
	if got := testutil.ToFloat64(m.Delivered); got != 4 {
		t.Fatalf("delivered=%v", got)
	}
}

func TestLeave(t *testing.T) {
	t.Parallel()
	m := NewMetrics(prometheus.NewRegistry())
	b := NewBus(1, nil, m)
	room := uuid.Must(uuid.NewV4())

	s := b.Join(room)
	if b.Subscribers(room) != 1 || testutil.ToFloat64(m.Rooms) != 1 {
		t.Fatalf("join not registered")
	}
	s.Leave()
	s.Leave()
	if _, ok := <-s.C; ok {
		t.Fatalf("channel must be closed after leave")
	}
	if b.Subscribers(room) != 0 || testutil.ToFloat64(m.Rooms) != 0 || testutil.ToFloat64(m.Subscribers) != 0 {
		t.Fatalf("leave not released")
	}
	if n := b.Publish(room, model.Message{}); n != 0 {
		t.Fatalf("left subscriber still receives")
	}
}

func TestConcurrentJoinPublishLeave(t *testing.T) {
	t.Parallel()
	b := NewBus(2, nil, nil)
	room := uuid.Must(uuid.NewV4())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s := b.Join(room)
			time.Sleep(time.Millisecond)
			s.Leave()
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				b.Publish(room, model.Message{})
			}
		}()
	}
	wg.Wait()
	if b.Subscribers(room) != 0 {
		t.Fatalf("leaked subscribers")
	}
}

func TestCloseRoom(t *testing.T) {
	t.Parallel()
	b := NewBus(1, nil, nil)
	room := uuid.Must(uuid.NewV4())
	s1, s2 := b.Join(room), b.Join(room)

	if n := b.CloseRoom(room); n != 2 {
		t.Fatalf("closed %d", n)
	}
	for _, s := range []*Subscription{s1, s2} {
		if _, ok := <-s.C; ok {
			t.Fatalf("subscriber not closed")
		}
	}
	s1.Leave()
	if b.Subscribers(room) != 0 {
		t.Fatalf("room not empty")
	}
}

func TestClose_EndsAllRoomsAndRefusesJoins(t *testing.T) {
	t.Parallel()
	b := NewBus(1, nil, nil)
	r1, r2 := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	s1, s2 := b.Join(r1), b.Join(r2)

	if n := b.Close(); n != 2 {
		t.Fatalf("closed %d", n)
	}
	for _, s := range []*Subscription{s1, s2} {
		if _, ok := <-s.C; ok {
			t.Fatalf("subscriber not closed")
		}
	}

	late := b.Join(r1)
	if _, ok := <-late.C; ok {
		t.Fatalf("join after close must be closed")
	}
	late.Leave()
	if b.Subscribers(r1) != 0 || b.Publish(r1, model.Message{}) != 0 {
		t.Fatalf("closed bus still routes")
	}
}
