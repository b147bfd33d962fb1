// Package ingest связывает watcher, парсер и реестр: все мутации реестра
// выполняются в одном потоке потребителя (EventLoop).
package ingest

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordertracker/internal/domain"
	"github.com/vladislavdragonenkov/ordertracker/internal/metrics"
)

// DefaultQueueSize - ёмкость очереди EventLoop по умолчанию.
const DefaultQueueSize = 256

// EventLoop - ограниченная очередь задач, которую разбирает одна горутина.
type EventLoop struct {
	tasks   chan func()
	logger  *log.Entry
	metrics *metrics.TrackerMetrics

	mu       sync.RWMutex
	stopped  bool
	stopping chan struct{}
	done     chan struct{}
}

// NewEventLoop создаёт очередь ёмкостью size.
func NewEventLoop(size int, logger *log.Entry, m *metrics.TrackerMetrics) *EventLoop {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = log.WithField("component", "event-loop")
	}
	return &EventLoop{
		tasks:    make(chan func(), size),
		logger:   logger,
		metrics:  m,
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run выполняет задачи до Stop или отмены ctx. После Stop задачи, уже
// принятые в очередь, выполняются; после отмены ctx они отбрасываются.
func (l *EventLoop) Run(ctx context.Context) {
	defer close(l.done)

	for {
		select {
		case <-ctx.Done():
			if dropped := len(l.tasks); dropped > 0 {
				l.logger.WithField("dropped", dropped).Warn("event loop cancelled with queued tasks")
			}
			return
		case <-l.stopping:
			l.drain()
			return
		case fn := <-l.tasks:
			l.execute(fn)
		}
	}
}

func (l *EventLoop) drain() {
	for {
		select {
		case fn := <-l.tasks:
			l.execute(fn)
		default:
			return
		}
	}
}

func (l *EventLoop) execute(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			l.logger.WithField("panic", rec).Error("event loop task panicked")
		}
	}()
	l.metrics.SetLoopQueueSize(len(l.tasks))
	fn()
}

// Post ставит задачу в очередь. Блокируется, пока в очереди нет места.
func (l *EventLoop) Post(ctx context.Context, fn func()) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.stopped {
		return domain.ErrLoopStopped
	}
	select {
	case <-l.done:
		return domain.ErrLoopStopped
	default:
	}

	select {
	case l.tasks <- fn:
		l.metrics.SetLoopQueueSize(len(l.tasks))
		return nil
	case <-l.done:
		return domain.ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatch реализует watcher.Dispatcher.
func (l *EventLoop) Dispatch(fn func()) error {
	return l.Post(context.Background(), fn)
}

// Call выполняет fn в потоке очереди и возвращает её результат.
func (l *EventLoop) Call(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	if err := l.Post(ctx, func() { result <- fn() }); err != nil {
		return err
	}

	select {
	case err := <-result:
		return err
	case <-l.done:
		select {
		case err := <-result:
			return err
		default:
			return fmt.Errorf("%w: task was not executed", domain.ErrLoopStopped)
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop запрещает новые задачи; Run выполнит уже принятые и завершится.
func (l *EventLoop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.stopped = true
	close(l.stopping)
}

// Done закрывается, когда Run завершился.
func (l *EventLoop) Done() <-chan struct{} {
	return l.done
}
