// Package sweeper periodically reaps expired messages and conversations.
package sweeper

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// Reaper is the storage side of the sweep.
type Reaper interface {
	DeleteExpiredMessages(ctx context.Context, now time.Time) (int64, error)
	DeleteExpiredConversations(ctx context.Context, now time.Time) ([]uuid.UUID, error)
}

// Rooms ends the live subscriptions of a conversation. realtime.Bus satisfies it.
type Rooms interface {
	CloseRoom(room uuid.UUID) int
}

// Sweeper runs Reaper on a fixed interval.
type Sweeper struct {
	r        Reaper
	rooms    Rooms
	interval time.Duration
	log      *zap.Logger
	now      func() time.Time
}

// New constructs a Sweeper. rooms may be nil when nothing is watching.
func New(r Reaper, rooms Rooms, interval time.Duration, log *zap.Logger) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{r: r, rooms: rooms, interval: interval, log: log, now: time.Now}
}

// Sweep runs one pass and reports what was removed.
func (s *Sweeper) Sweep(ctx context.Context) (msgs, convs int64, err error) {
	now := s.now()
	msgs, err = s.r.DeleteExpiredMessages(ctx, now)
	if err != nil {
		return 0, 0, err
	}
	reaped, err := s.r.DeleteExpiredConversations(ctx, now)
	if err != nil {
		return msgs, 0, err
	}
	if s.rooms != nil {
		for _, id := range reaped {
			s.rooms.CloseRoom(id)
		}
	}
	return msgs, int64(len(reaped)), nil
}

// Run sweeps until ctx is done. Errors are logged and do not stop the loop.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.interval <= 0 {
		s.log.Info("sweeper disabled")
		<-ctx.Done()
		return nil
	}
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			msgs, convs, err := s.Sweep(ctx)
			if err != nil {
				s.log.Error("sweep failed", zap.Error(err))
				continue
			}
			if msgs > 0 || convs > 0 {
				s.log.Info("sweep", zap.Int64("messages", msgs), zap.Int64("conversations", convs))
			}
		}
	}
}
