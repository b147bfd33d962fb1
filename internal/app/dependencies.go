package app

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordertracker/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/ordertracker/internal/health"
	"github.com/vladislavdragonenkov/ordertracker/internal/storage/memory"
	"github.com/vladislavdragonenkov/ordertracker/internal/storage/postgres"
)

// runtimeDependencies - хранилище timeline и его проверка здоровья.
type runtimeDependencies struct {
	timelineRepo   domain.TimelineRepository
	storageChecker healthcheck.Checker
	closeFn        func() error
}

func (d *runtimeDependencies) close(logger *log.Entry) {
	if d == nil || d.closeFn == nil {
		return
	}
	if err := d.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
	}
}

// initRuntimeDependencies выбирает хранилище timeline по StorageDriver.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	switch driver {
	case "", StorageDriverMemory:
		return &runtimeDependencies{timelineRepo: memory.NewTimelineRepository()}, nil
	case StorageDriverPostgres:
		return initPostgres(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q (use %s|%s)", cfg.StorageDriver, StorageDriverMemory, StorageDriverPostgres)
	}
}

func initPostgres(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	dsn := strings.TrimSpace(cfg.PostgresDSN)
	if dsn == "" {
		return nil, fmt.Errorf("postgres storage requires TRACKER_POSTGRES_DSN")
	}

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if cfg.PostgresAutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply timeline migrations: %w", err)
		}
		logger.Info("postgres timeline schema is up to date")
	}

	return &runtimeDependencies{
		timelineRepo:   postgres.NewTimelineRepository(store),
		storageChecker: healthcheck.NewPingChecker("postgres", 0, store.Ping),
		closeFn:        store.Close,
	}, nil
}
