package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/and161185/pairchat/internal/errs"
	"github.com/and161185/pairchat/internal/model"
	"github.com/gofrs/uuid/v5"
)

func seedUsers(t *testing.T, s *Store, names ...string) []uuid.UUID {
	t.Helper()
	users := NewUserRepo(s)
	ids := make([]uuid.UUID, len(names))
	for i, n := range names {
		ids[i] = uuid.Must(uuid.NewV4())
		if err := users.Create(context.Background(), &model.User{ID: ids[i], Username: n}); err != nil {
			t.Fatalf("create %s: %v", n, err)
		}
	}
	return ids
}

func TestUserRepo(t *testing.T) {
	s := NewStore()
	ids := seedUsers(t, s, "carol", "alice", "Alicia")
	r := NewUserRepo(s)
	ctx := context.Background()

	if err := r.Create(ctx, &model.User{ID: uuid.Must(uuid.NewV4()), Username: "alice"}); !errors.Is(err, errs.ErrAlreadyExists) {
		t.Fatalf("duplicate username: %v", err)
	}
	u, err := r.GetByUsername(ctx, "alice")
	if err != nil || u.ID != ids[1] {
		t.Fatalf("GetByUsername: %v %v", u, err)
	}
	if _, err := r.GetByID(ctx, uuid.Must(uuid.NewV4())); !errors.Is(err, errs.ErrUserNotFound) {
		t.Fatalf("unknown id: %v", err)
	}

	found, _ := r.Search(ctx, "ALI", 10)
	if len(found) != 2 || found[0].Username != "Alicia" || found[1].Username != "alice" {
		t.Fatalf("search: %+v", found)
	}
	refs, _ := r.GetByIDs(ctx, []uuid.UUID{ids[0], uuid.Must(uuid.NewV4())})
	if len(refs) != 1 || refs[0].Username != "carol" {
		t.Fatalf("GetByIDs must skip unknown ids: %+v", refs)
	}
	all, _ := r.List(ctx)
	if len(all) != 3 || all[0].Username != "carol" {
		t.Fatalf("list order: %+v", all)
	}
}

func TestGraph_BlockSeversRelationships(t *testing.T) {
	s := NewStore()
	ids := seedUsers(t, s, "x", "y")
	x, y := ids[0], ids[1]
	g := NewGraphRepo(s)
	ctx := context.Background()

	if err := g.AddRequest(ctx, x, y); err != nil {
		t.Fatal(err)
	}
	if err := g.AddRequest(ctx, x, y); !errors.Is(err, errs.ErrRequestPending) {
		t.Fatalf("duplicate request: %v", err)
	}
	if err := g.AcceptRequest(ctx, y, x); err != nil {
		t.Fatal(err)
	}
	if err := g.AddRequest(ctx, y, x); !errors.Is(err, errs.ErrAlreadyConnected) {
		t.Fatalf("already connected: %v", err)
	}
	if err := g.Block(ctx, y, x); err != nil {
		t.Fatal(err)
	}
	if err := g.Block(ctx, y, x); !errors.Is(err, errs.ErrAlreadyBlocked) {
		t.Fatalf("redundant block: %v", err)
	}
	for _, id := range ids {
		c, _ := g.Connections(ctx, id)
		r, _ := g.Requests(ctx, id)
		if len(c) != 0 || len(r) != 0 {
			t.Fatalf("relationships survived block: %v %v", c, r)
		}
	}
	if b, _ := g.IsBlocked(ctx, x, y); !b {
		t.Fatalf("block must be visible both ways")
	}
	if err := g.AddRequest(ctx, x, y); !errors.Is(err, errs.ErrAccessDenied) {
		t.Fatalf("request across block: %v", err)
	}
	if err := g.Unblock(ctx, x, y); !errors.Is(err, errs.ErrNotBlocked) {
		t.Fatalf("unblock by non-blocker: %v", err)
	}
	if err := g.Unblock(ctx, y, x); err != nil {
		t.Fatal(err)
	}
}

func TestGraph_ConcurrentAccept(t *testing.T) {
	s := NewStore()
	ids := seedUsers(t, s, "a", "b")
	g := NewGraphRepo(s)
	ctx := context.Background()
	if err := g.AddRequest(ctx, ids[0], ids[1]); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = g.AcceptRequest(ctx, ids[1], ids[0])
		}(i)
	}
	wg.Wait()

	var ok, pending int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, errs.ErrNoPendingRequest):
			pending++
		}
	}
	if ok != 1 || pending != 1 {
		t.Fatalf("want one winner, got %v", results)
	}
	ca, _ := g.Connections(ctx, ids[0])
	cb, _ := g.Connections(ctx, ids[1])
	if len(ca) != 1 || len(cb) != 1 {
		t.Fatalf("want one mutual entry, got %v / %v", ca, cb)
	}
}

func TestChat_ConcurrentCreateIsUnique(t *testing.T) {
	s := NewStore()
	ids := seedUsers(t, s, "a", "b")
	c := NewChatRepo(s)
	pair := model.NewPairKey(ids[0], ids[1])

	const n = 16
	var wg sync.WaitGroup
	errsCh := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.CreateConversation(context.Background(), pair)
			errsCh <- err
		}()
	}
	wg.Wait()
	close(errsCh)

	var created, conflicts int
	for err := range errsCh {
		switch {
		case err == nil:
			created++
		case errors.Is(err, errs.ErrConversationExists):
			conflicts++
		default:
			t.Fatalf("unexpected: %v", err)
		}
	}
	if created != 1 || conflicts != n-1 {
		t.Fatalf("created=%d conflicts=%d", created, conflicts)
	}
}

func TestChat_MessageLog(t *testing.T) {
	s := NewStore()
	ids := seedUsers(t, s, "a", "b")
	c := NewChatRepo(s)
	ctx := context.Background()
	pair := model.NewPairKey(ids[0], ids[1])
	if _, err := c.CreateConversation(ctx, pair); err != nil {
		t.Fatal(err)
	}

	var msgIDs []uuid.UUID
	for _, text := range []string{"one", "two", "three"} {
		m, err := c.AppendMessage(ctx, pair, model.Message{ID: uuid.Must(uuid.NewV4()), SenderID: ids[0], Content: text})
		if err != nil {
			t.Fatal(err)
		}
		msgIDs = append(msgIDs, m.ID)
	}
	if err := c.DeleteMessage(ctx, pair, msgIDs[1]); err != nil {
		t.Fatal(err)
	}
	if err := c.DeleteMessage(ctx, pair, msgIDs[1]); !errors.Is(err, errs.ErrMessageNotFound) {
		t.Fatalf("second delete: %v", err)
	}
	edited := "THREE"
	if _, err := c.UpdateMessage(ctx, pair, msgIDs[2], model.MessageEdit{Content: &edited}); err != nil {
		t.Fatal(err)
	}
	if n, _ := c.MarkSeen(ctx, pair, msgIDs); n != 2 {
		t.Fatalf("marked %d", n)
	}
	_, msgs, _ := c.LoadConversation(ctx, pair)
	if len(msgs) != 2 || msgs[0].Content != "one" || msgs[1].Content != "THREE" || !msgs[1].Seen {
		t.Fatalf("log: %+v", msgs)
	}

	if err := c.ClearMessages(ctx, pair); err != nil {
		t.Fatal(err)
	}
	if _, msgs, _ = c.LoadConversation(ctx, pair); len(msgs) != 0 {
		t.Fatalf("clear left %d", len(msgs))
	}
}

func TestChat_Reapers(t *testing.T) {
	s := NewStore()
	ids := seedUsers(t, s, "a", "b")
	c := NewChatRepo(s)
	ctx := context.Background()
	pair := model.NewPairKey(ids[0], ids[1])
	c.CreateConversation(ctx, pair)

	now := time.Now()
	past, future := now.Add(-time.Minute), now.Add(time.Hour)
	c.AppendMessage(ctx, pair, model.Message{ID: uuid.Must(uuid.NewV4()), Content: "gone", Private: true, ExpiresAt: &past})
	c.AppendMessage(ctx, pair, model.Message{ID: uuid.Must(uuid.NewV4()), Content: "stays", Private: true, ExpiresAt: &future})
	c.AppendMessage(ctx, pair, model.Message{ID: uuid.Must(uuid.NewV4()), Content: "public"})

	if n, _ := c.DeleteExpiredMessages(ctx, now); n != 1 {
		t.Fatalf("reaped %d", n)
	}
	_, msgs, _ := c.LoadConversation(ctx, pair)
	if len(msgs) != 2 || msgs[0].Content != "stays" {
		t.Fatalf("after reap: %+v", msgs)
	}

	if err := c.SetConversationExpiry(ctx, pair, &past); err != nil {
		t.Fatal(err)
	}
	conv, _ := c.GetConversation(ctx, pair)
	if reaped, _ := c.DeleteExpiredConversations(ctx, now); len(reaped) != 1 || reaped[0] != conv.ID {
		t.Fatalf("conversation not reaped: %v", reaped)
	}
	if _, err := c.GetConversation(ctx, pair); !errors.Is(err, errs.ErrConversationNotFound) {
		t.Fatalf("want not found, got %v", err)
	}
}

func TestUserRepo_Pictures(t *testing.T) {
	s := NewStore()
	ids := seedUsers(t, s, "alice")
	r := NewUserRepo(s)
	ctx := context.Background()

	if _, err := r.GetPicture(ctx, ids[0]); !errors.Is(err, errs.ErrPictureNotFound) {
		t.Fatalf("want not found, got %v", err)
	}
	data := []byte{1, 2, 3}
	if err := r.SetPicture(ctx, ids[0], model.Attachment{Data: data, MimeType: "image/png"}); err != nil {
		t.Fatal(err)
	}
	data[0] = 9
	got, err := r.GetPicture(ctx, ids[0])
	if err != nil || got.MimeType != "image/png" || got.Data[0] != 1 {
		t.Fatalf("stored picture must be a copy: %+v %v", got, err)
	}
	if err := r.SetPicture(ctx, uuid.Must(uuid.NewV4()), got); !errors.Is(err, errs.ErrUserNotFound) {
		t.Fatalf("unknown user: %v", err)
	}
	if err := r.DeletePicture(ctx, ids[0]); err != nil {
		t.Fatal(err)
	}
	if err := r.DeletePicture(ctx, ids[0]); !errors.Is(err, errs.ErrPictureNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}
