package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"dataroom/internal/access"
	"dataroom/internal/audit"
	"dataroom/internal/auth"
	"dataroom/internal/clock"
	"dataroom/internal/config"
	"dataroom/internal/document"
	"dataroom/internal/grant"
	"dataroom/internal/httpapi"
	"dataroom/internal/migrate"
	"dataroom/internal/obs"
	"dataroom/internal/reporting"
	"dataroom/internal/room"
	"dataroom/internal/viewer"
	"dataroom/pkg/utils"

	"github.com/redis/go-redis/v9"
)

type deps struct {
	handlers httpapi.Handlers
	viewer   *viewer.Manager
	db       *sql.DB
	rdb      *redis.Client
}

type stores struct {
	rooms  room.Repository
	docs   document.Repository
	grants grant.Store
	events audit.Repository
}

// buildDeps wires the selected storage backend into the engine, viewer and
// HTTP handlers. cleanup closes whatever connections were opened.
func buildDeps(ctx context.Context, cfg config.Config, log *slog.Logger, metrics *obs.Metrics, am *auth.Manager) (*deps, func(), error) {
	d := &deps{}
	cleanup := func() {
		if d.rdb != nil {
			_ = d.rdb.Close()
		}
		if d.db != nil {
			_ = d.db.Close()
		}
	}

	var st stores
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			return nil, cleanup, fmt.Errorf("postgres init: %w", err)
		}
		d.db = db
		applied, err := migrate.Up(ctx, db)
		if err != nil {
			return nil, cleanup, fmt.Errorf("migrate: %w", err)
		}
		if len(applied) > 0 {
			log.Info("schema migrations applied", "migrations", applied)
		}
		st = stores{
			rooms:  room.NewPostgresRepo(db),
			docs:   document.NewPostgresRepo(db),
			grants: grant.NewPostgresRepo(db),
			events: audit.NewRetryingRepository(audit.NewPostgresRepo(db), audit.RetryPolicy{Attempts: cfg.Audit.RetryAttempts}),
		}
	default:
		st = stores{
			rooms:  room.NewMemoryRepo(),
			docs:   document.NewMemoryRepo(),
			grants: grant.NewMemoryRepo(),
			events: audit.NewMemoryRepo(),
		}
	}

	var limiter viewer.SlotLimiter = viewer.NewMemoryLimiter(cfg.Viewer.MaxSessionsPerSubject)
	if cfg.RedisEnabled() {
		rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			return nil, cleanup, fmt.Errorf("redis init: %w", err)
		}
		d.rdb = rdb
		// slots outlive a session by at most one timeout window after a crash
		limiter = viewer.NewRedisLimiter(rdb, cfg.Viewer.MaxSessionsPerSubject, 2*cfg.Viewer.SessionTimeout)
	}

	clk := clock.Real()
	auditLog := audit.NewLog(st.events, clk, log)

	engine := access.NewEngine(st.rooms, st.grants, st.docs, auditLog)
	engine.Clock = clk
	engine.Log = log
	engine.Metrics = metrics

	d.viewer = viewer.NewManager(engine, st.docs, st.rooms, auditLog, viewer.Options{
		Timeout: cfg.Viewer.SessionTimeout,
		Limiter: limiter,
		Clock:   clk,
		Log:     log,
		Metrics: metrics,
	})

	d.handlers = httpapi.Handlers{
		Auth:      am,
		Engine:    engine,
		Viewer:    d.viewer,
		Rooms:     st.rooms,
		Documents: st.docs,
		Grants:    st.grants,
		Audit:     auditLog,
		Reports:   reporting.NewService(reporting.NewAuditRepo(st.events)),
		Clock:     clk,
	}
	return d, cleanup, nil
}
