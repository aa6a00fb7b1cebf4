package service

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/pairchat/internal/attachment"
	"github.com/and161185/pairchat/internal/message"
	"github.com/and161185/pairchat/internal/model"
	"github.com/and161185/pairchat/internal/realtime"
	"github.com/and161185/pairchat/internal/repository/memory"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

// env wires every service over one in-memory store.
type env struct {
	users *memory.UserRepo
	graph *GraphServiceImpl
	chat  *ConversationServiceImpl
	bus   *realtime.Bus
	clk   *clock
	ids   map[string]uuid.UUID
}

func newEnv(t *testing.T, names ...string) *env {
	t.Helper()
	s := memory.NewStore()
	users := memory.NewUserRepo(s)
	graphRepo := memory.NewGraphRepo(s)
	chatRepo := memory.NewChatRepo(s)
	clk := &clock{t: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
	bus := realtime.NewBus(8, zaptest.NewLogger(t), nil)

	chat := NewConversationService(users, graphRepo, chatRepo,
		message.NewLifecycle(chatRepo, message.WithClock(clk.now)),
		attachment.NewInspector(0, nil), bus, zaptest.NewLogger(t))
	e := &env{
		users: users,
		graph: NewGraphService(users, graphRepo, chat.EvictPair),
		chat:  chat,
		bus:   bus,
		clk:   clk,
		ids:   map[string]uuid.UUID{},
	}
	for _, n := range names {
		id := uuid.Must(uuid.NewV4())
		if err := users.Create(context.Background(), &model.User{ID: id, Username: n}); err != nil {
			t.Fatalf("seed %s: %v", n, err)
		}
		e.ids[n] = id
	}
	return e
}

// start opens the conversation between two seeded users.
func (e *env) start(t *testing.T, a, b string) model.Conversation {
	t.Helper()
	c, err := e.chat.Start(context.Background(), e.ids[a], b)
	if err != nil {
		t.Fatalf("start %s-%s: %v", a, b, err)
	}
	return c
}

func (e *env) userService() *UserServiceImpl {
	return NewUserService(e.users, e.graph.graph, e.users, attachment.NewInspector(0, PictureTypes))
}
