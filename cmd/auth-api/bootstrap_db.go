package main

import (
	"context"
	"fmt"
	"time"

	config "github.com/NordCoder/doggy-auth/internal/config/auth-api"
	domainauth "github.com/NordCoder/doggy-auth/internal/domain/auth"
	"github.com/NordCoder/doggy-auth/internal/domain/outbox"
	domainrl "github.com/NordCoder/doggy-auth/internal/domain/ratelimit"
	"github.com/NordCoder/doggy-auth/internal/domain/user"
	pg "github.com/NordCoder/doggy-auth/internal/repository/postgres"
	"github.com/NordCoder/doggy-auth/internal/repository/sqlite"
	"go.uber.org/zap"
)

type counterStore interface {
	domainrl.CounterStore
	Prune(ctx context.Context, now time.Time) (int64, error)
}

// storage is what the selected driver provides to the rest of the service.
type storage struct {
	users    user.Repo
	tokens   domainauth.RefreshTokenRepo
	tx       domainauth.Transactor
	counters counterStore
	// outbox is nil for drivers without an outbox table.
	outbox outbox.Repository
	ping   func(context.Context) error
	close  func()
}

func initStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*storage, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		db, err := pg.New(ctx, cfg.DB)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		tx := pg.NewTransactor(db, logger)
		logger.Info("storage ready", zap.String("driver", cfg.Storage.Driver))
		return &storage{
			users:    pg.NewUserRepo(db),
			tokens:   pg.NewRefreshTokenRepo(db, tx),
			tx:       tx,
			counters: pg.NewRateLimitRepo(db),
			outbox:   pg.NewOutboxRepo(db),
			ping:     db.Ping,
			close:    db.Close,
		}, nil

	case config.DriverSQLite:
		st, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		if cfg.SQLite.QueryTimeout > 0 {
			st.QueryTimeout = cfg.SQLite.QueryTimeout
		}
		logger.Info("storage ready", zap.String("driver", cfg.Storage.Driver), zap.String("path", cfg.SQLite.Path))
		return &storage{
			users:    st,
			tokens:   st,
			tx:       st,
			counters: st,
			ping:     st.Ping,
			close:    func() { _ = st.Close() },
		}, nil

	default:
		return nil, config.ErrConfig("unknown storage driver " + cfg.Storage.Driver)
	}
}
