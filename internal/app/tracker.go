package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordertracker/internal/ingest"
	"github.com/vladislavdragonenkov/ordertracker/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ordertracker/internal/metrics"
	"github.com/vladislavdragonenkov/ordertracker/internal/registry"
	"github.com/vladislavdragonenkov/ordertracker/internal/service/timeline"
	"github.com/vladislavdragonenkov/ordertracker/internal/snapshot"
	"github.com/vladislavdragonenkov/ordertracker/internal/watcher"
)

// tracker собирает конвейер импорта: снапшоты, реестр, подписчики,
// EventLoop, разбор файлов и watcher.
type tracker struct {
	cfg    Config
	logger *log.Entry

	store     *snapshot.Store
	registry  *registry.Registry
	recorder  *timeline.Recorder
	forwarder *kafka.Forwarder
	loop      *ingest.EventLoop
	pipeline  *ingest.Pipeline
	watcher   *watcher.Watcher

	loopCancel    context.CancelFunc
	forwarderDone chan struct{}
}

// newTracker восстанавливает заказы из снапшотов и подключает подписчиков.
// Ошибка создания каталогов фатальна.
func newTracker(
	ctx context.Context,
	cfg Config,
	deps *runtimeDependencies,
	producer *kafka.Producer,
	m *metrics.TrackerMetrics,
	logger *log.Entry,
) (*tracker, error) {
	if err := os.MkdirAll(cfg.ImportDir, 0o755); err != nil {
		return nil, fmt.Errorf("create import directory %s: %w", cfg.ImportDir, err)
	}
	store, err := snapshot.NewStore(cfg.SnapshotDir,
		snapshot.WithLogger(logger.WithField("layer", "snapshot")),
		snapshot.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}

	t := &tracker{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		registry: registry.New(registry.WithLogger(logger.WithField("layer", "registry")), registry.WithMetrics(m)),
		recorder: timeline.NewRecorder(deps.timelineRepo, timeline.WithMetrics(m)),
	}

	t.registry.Subscribe(snapshot.NewSubscriber(store, nil))
	t.registry.Subscribe(t.recorder)
	t.registry.Subscribe(ingest.NewLogPresenter(nil))

	if err := t.restore(ctx); err != nil {
		return nil, err
	}

	// Восстановленные заказы уже публиковались при первом импорте.
	if producer != nil {
		t.forwarder = kafka.NewForwarder(producer, 0, nil, m)
		t.forwarder.Seed(t.registry.Orders())
		t.registry.Subscribe(t.forwarder)
	}

	t.loop = ingest.NewEventLoop(cfg.QueueSize, nil, m)
	t.pipeline = ingest.NewPipeline(t.registry, t.loop, ingest.WithMetrics(m))
	t.watcher = watcher.New(cfg.ImportDir, t.pipeline, t.loop,
		watcher.WithMetrics(m),
		watcher.WithGracePeriod(cfg.GracePeriod),
		watcher.WithProbeDelays(cfg.ScanProbeDelay, cfg.EventProbeDelay),
	)
	return t, nil
}

func (t *tracker) restore(ctx context.Context) error {
	result, err := t.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load snapshots: %w", err)
	}
	for _, failure := range result.Failures {
		t.logger.WithError(failure.Err).WithField("file", failure.File).Warn("snapshot skipped")
	}

	for _, order := range result.Orders {
		if _, err := t.registry.AddOrder(order); err != nil {
			t.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to restore order")
		}
	}
	t.registry.ResumeFrom(result.MaxID)
	t.logger.WithFields(log.Fields{
		"restored": t.registry.OrderCount(),
		"next_id":  t.registry.NextID(),
	}).Info("orders restored from snapshots")
	return nil
}

// start запускает EventLoop, Forwarder и watcher. Ошибка watcher фатальна.
func (t *tracker) start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t.loopCancel = cancel
	go t.loop.Run(loopCtx)

	if t.forwarder != nil {
		t.forwarderDone = make(chan struct{})
		go func() {
			defer close(t.forwarderDone)
			t.forwarder.Run(context.WithoutCancel(ctx))
		}()
	}

	if err := t.watcher.Start(ctx); err != nil {
		return err
	}
	t.logger.WithField("dir", t.cfg.ImportDir).Info("watching import directory")
	return nil
}

// shutdown останавливает watcher, дожидается разбора и очереди, сбрасывает
// снапшоты и удаляет импортированные файлы.
func (t *tracker) shutdown(timeout time.Duration) {
	if t.watcher != nil {
		if err := t.watcher.Stop(); err != nil {
			t.logger.WithError(err).Warn("watcher did not stop cleanly")
		}
	}
	if t.pipeline != nil {
		if err := t.pipeline.Wait(timeout); err != nil {
			t.logger.WithError(err).Warn("parse workers still running at shutdown")
		}
	}
	t.stopLoop(timeout)

	if t.forwarder != nil {
		t.forwarder.Close()
		if t.forwarderDone != nil {
			select {
			case <-t.forwarderDone:
			case <-time.After(timeout):
				t.logger.Warn("kafka forwarder did not drain in time")
			}
		}
	}

	if err := t.store.WriteAll(t.registry.Orders()); err != nil {
		t.logger.WithError(err).Error("failed to flush snapshots")
	}
	if t.cfg.PurgeImports {
		t.purgeImports()
	}
	if err := t.store.FlushPendingDeletes(); err != nil {
		t.logger.WithError(err).Warn("stale snapshots left on disk")
	}
	t.logger.WithField("orders", t.registry.OrderCount()).Info("tracker stopped")
}

func (t *tracker) stopLoop(timeout time.Duration) {
	if t.loop == nil {
		return
	}
	t.loop.Stop()
	if t.loopCancel == nil {
		return
	}
	select {
	case <-t.loop.Done():
	case <-time.After(timeout):
		t.logger.Warn("event loop did not drain in time, dropping queued tasks")
		t.loopCancel()
		<-t.loop.Done()
	}
	t.loopCancel()
}

// purgeImports удаляет файлы, заказы из которых попали в реестр: теперь
// заказ принадлежит снапшоту. Файлы с ошибкой разбора остаются.
func (t *tracker) purgeImports() {
	var errs []error
	purged := 0
	for _, name := range t.pipeline.Imported() {
		err := os.Remove(filepath.Join(t.cfg.ImportDir, name))
		switch {
		case err == nil:
			purged++
		case !errors.Is(err, os.ErrNotExist):
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		t.logger.WithError(err).Warn("failed to purge some import files")
	}
	t.logger.WithField("purged", purged).Info("import directory purged")
}
