package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/and161185/pairchat/internal/config"
	"github.com/and161185/pairchat/internal/limiter"
	"github.com/and161185/pairchat/internal/migrate"
	"github.com/and161185/pairchat/internal/repository"
	"github.com/and161185/pairchat/internal/repository/memory"
	"github.com/and161185/pairchat/internal/repository/postgres"
)

// store is the selected persistence backend.
type store struct {
	users   repository.UserRepository
	pics    repository.PictureRepository
	graph   repository.GraphRepository
	chat    repository.ChatRepository
	limiter limiter.Limiter
	close   func()
}

func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (*store, error) {
	pol := limiter.Policy{
		Window:   cfg.Limits.LoginWindow,
		MaxFails: cfg.Limits.LoginMaxFails,
		BlockFor: cfg.Limits.LoginBlockFor,
	}
	if cfg.Store == config.StoreMemory {
		log.Warn("in-memory store: data is lost on exit")
		s := memory.NewStore()
		users := memory.NewUserRepo(s)
		return &store{
			users:   users,
			pics:    users,
			graph:   memory.NewGraphRepo(s),
			chat:    memory.NewChatRepo(s),
			limiter: limiter.NewMemory(pol),
			close:   func() {},
		}, nil
	}

	if err := migrate.Up(ctx, cfg.DSN, log); err != nil {
		return nil, err
	}
	db, err := postgres.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	users := postgres.NewUserRepo(db)
	return &store{
		users:   users,
		pics:    users,
		graph:   postgres.NewGraphRepo(db),
		chat:    postgres.NewChatRepo(db),
		limiter: limiter.NewPG(db.Pool, pol),
		close:   db.Close,
	}, nil
}
