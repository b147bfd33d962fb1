// Package watcher следит за каталогом импорта и сообщает о новых файлах
// заказов ровно один раз, после того как файл дописан.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordertracker/internal/domain"
	"github.com/vladislavdragonenkov/ordertracker/internal/metrics"
)

const (
	// DefaultGracePeriod - пауза после события перед probe.
	DefaultGracePeriod = 100 * time.Millisecond
	// DefaultStopTimeout - сколько Stop ждёт фоновый цикл.
	DefaultStopTimeout = 2 * time.Second
)

// DefaultExtensions - расширения файлов заказов.
var DefaultExtensions = []string{".json", ".xml"}

// State - состояние watcher.
type State int32

const (
	StateStopped State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// FileHandler получает новые готовые файлы заказов.
type FileHandler interface {
	OnNewOrderFile(path string)
}

// FileHandlerFunc адаптирует функцию к FileHandler.
type FileHandlerFunc func(path string)

// OnNewOrderFile вызывает f.
func (f FileHandlerFunc) OnNewOrderFile(path string) {
	f(path)
}

// Dispatcher переносит вызов обработчика в поток потребителя.
type Dispatcher interface {
	Dispatch(fn func()) error
}

// Options задаёт параметры Watcher.
type Options struct {
	Logger      *log.Entry
	Metrics     *metrics.TrackerMetrics
	Probe       *Probe
	Sleeper     Sleeper
	Extensions  []string
	GracePeriod time.Duration
	ScanDelay   time.Duration
	EventDelay  time.Duration
	StopTimeout time.Duration
}

// Option настраивает Watcher.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт метрики.
func WithMetrics(m *metrics.TrackerMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithProbe подменяет probe готовности файла.
func WithProbe(probe *Probe) Option {
	return func(opts *Options) {
		opts.Probe = probe
	}
}

// WithSleeper подменяет ожидание grace period.
func WithSleeper(sleeper Sleeper) Option {
	return func(opts *Options) {
		opts.Sleeper = sleeper
	}
}

// WithExtensions задаёт допустимые расширения (без учёта регистра).
func WithExtensions(exts ...string) Option {
	return func(opts *Options) {
		opts.Extensions = exts
	}
}

// WithGracePeriod задаёт паузу перед probe для событий.
func WithGracePeriod(d time.Duration) Option {
	return func(opts *Options) {
		opts.GracePeriod = d
	}
}

// WithProbeDelays задаёт базовые задержки probe для сканирования и событий.
func WithProbeDelays(scan, event time.Duration) Option {
	return func(opts *Options) {
		opts.ScanDelay = scan
		opts.EventDelay = event
	}
}

// WithStopTimeout задаёт время ожидания фонового цикла в Stop.
func WithStopTimeout(d time.Duration) Option {
	return func(opts *Options) {
		opts.StopTimeout = d
	}
}

// run - один запуск фонового цикла.
type run struct {
	cancel  context.CancelFunc
	fsw     *fsnotify.Watcher
	done    chan struct{}
	stopped atomic.Bool
}

// Watcher следит за одним каталогом (без рекурсии).
type Watcher struct {
	dir        string
	handler    FileHandler
	dispatcher Dispatcher

	logger      *log.Entry
	metrics     *metrics.TrackerMetrics
	probe       *Probe
	sleeper     Sleeper
	extensions  []string
	gracePeriod time.Duration
	scanDelay   time.Duration
	eventDelay  time.Duration
	stopTimeout time.Duration

	mu      sync.Mutex
	state   State
	current *run

	processedMu sync.Mutex
	processed   map[string]struct{}
}

// New создаёт watcher каталога dir. Обработчик вызывается только через dispatcher.
func New(dir string, handler FileHandler, dispatcher Dispatcher, options ...Option) *Watcher {
	opts := Options{
		Extensions:  DefaultExtensions,
		GracePeriod: DefaultGracePeriod,
		ScanDelay:   ScanProbeDelay,
		EventDelay:  EventProbeDelay,
		StopTimeout: DefaultStopTimeout,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "directory-watcher")
	}
	if opts.Sleeper == nil {
		opts.Sleeper = timerSleeper{}
	}
	if opts.Probe == nil {
		opts.Probe = NewProbe(WithProbeLogger(logger), WithProbeMetrics(opts.Metrics), WithProbeSleeper(opts.Sleeper))
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}

	exts := make([]string, 0, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		exts = append(exts, strings.ToLower(ext))
	}

	return &Watcher{
		dir:         dir,
		handler:     handler,
		dispatcher:  dispatcher,
		logger:      logger.WithField("dir", dir),
		metrics:     opts.Metrics,
		probe:       opts.Probe,
		sleeper:     opts.Sleeper,
		extensions:  exts,
		gracePeriod: opts.GracePeriod,
		scanDelay:   opts.ScanDelay,
		eventDelay:  opts.EventDelay,
		stopTimeout: opts.StopTimeout,
		processed:   make(map[string]struct{}),
	}
}

// Start ставит наблюдение за каталогом и запускает фоновый цикл:
// сначала разовое сканирование существующих файлов, затем события.
// Ошибка постановки наблюдения возвращается вызывающему.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateStopped {
		return domain.ErrWatcherRunning
	}
	if w.handler == nil || w.dispatcher == nil {
		return fmt.Errorf("%w: handler and dispatcher are required", domain.ErrWatchSetup)
	}

	info, err := os.Stat(w.dir)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrWatchSetup, w.dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", domain.ErrWatchSetup, w.dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrWatchSetup, err)
	}
	if err := fsw.Add(w.dir); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("%w: %s: %w", domain.ErrWatchSetup, w.dir, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &run{cancel: cancel, fsw: fsw, done: make(chan struct{})}
	w.current = r
	w.state = StateRunning

	go w.loop(runCtx, r)

	w.logger.Info("directory watcher started")
	return nil
}

// Stop останавливает цикл и ждёт его завершения не дольше stopTimeout.
// После возврата обработчик больше не вызывается.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.state != StateRunning {
		w.mu.Unlock()
		return nil
	}
	w.state = StateStopping
	r := w.current
	w.mu.Unlock()

	r.stopped.Store(true)
	r.cancel()
	if err := r.fsw.Close(); err != nil {
		w.logger.WithError(err).Warn("failed to close fsnotify watcher")
	}

	var err error
	timer := time.NewTimer(w.stopTimeout)
	defer timer.Stop()
	select {
	case <-r.done:
	case <-timer.C:
		err = domain.ErrStopTimeout
		w.logger.WithField("timeout", w.stopTimeout.String()).Warn("watcher loop did not exit in time, abandoning it")
	}

	w.mu.Lock()
	w.state = StateStopped
	w.current = nil
	w.mu.Unlock()

	if err == nil {
		w.logger.Info("directory watcher stopped")
	}
	return err
}

// State возвращает текущее состояние.
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Dir возвращает наблюдаемый каталог.
func (w *Watcher) Dir() string {
	return w.dir
}

// Processed возвращает имена файлов, о которых watcher уже сообщил.
func (w *Watcher) Processed() []string {
	w.processedMu.Lock()
	defer w.processedMu.Unlock()

	names := make([]string, 0, len(w.processed))
	for name := range w.processed {
		names = append(names, name)
	}
	return names
}

func (w *Watcher) loop(ctx context.Context, r *run) {
	defer close(r.done)

	w.scan(ctx, r)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-r.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, r, event)
		case err, ok := <-r.fsw.Errors:
			if !ok {
				return
			}
			w.handleError(err)
		}
	}
}

// scan сообщает о файлах, лежавших в каталоге до старта.
// Порядок определяется листингом каталога.
func (w *Watcher) scan(ctx context.Context, r *run) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.WithError(err).Error("startup scan failed")
		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		name := entry.Name()
		if entry.IsDir() || !w.matches(name) || w.isProcessed(name) {
			continue
		}

		path := filepath.Join(w.dir, name)
		if !w.probe.IsReadable(ctx, path, w.scanDelay) {
			if ctx.Err() == nil {
				w.metrics.RecordFileDropped("not_ready")
			}
			continue
		}
		if w.markProcessed(name) {
			w.emit(r, path, "scan")
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, r *run, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	name := filepath.Base(event.Name)
	if !w.matches(name) {
		w.metrics.RecordFileDropped("extension")
		return
	}
	if w.isProcessed(name) {
		w.metrics.RecordFileDropped("duplicate")
		return
	}

	if err := w.sleeper.Sleep(ctx, w.gracePeriod); err != nil {
		return
	}
	if !w.probe.IsReadable(ctx, event.Name, w.eventDelay) {
		if ctx.Err() == nil {
			w.metrics.RecordFileDropped("not_ready")
		}
		return
	}
	if !w.markProcessed(name) {
		w.metrics.RecordFileDropped("duplicate")
		return
	}
	w.emit(r, event.Name, "event")
}

// handleError логирует ошибки fsnotify. Переполнение очереди не сверяется
// повторным сканированием: пропущенные файлы не будут обнаружены.
func (w *Watcher) handleError(err error) {
	if errors.Is(err, fsnotify.ErrEventOverflow) {
		w.metrics.RecordWatcherOverflow()
		w.logger.WithError(err).Warn("notification queue overflow, events may be lost")
		return
	}
	w.logger.WithError(err).Error("watch error")
}

func (w *Watcher) emit(r *run, path string, source string) {
	w.metrics.RecordFileDetected(source)
	w.logger.WithFields(log.Fields{"file": filepath.Base(path), "source": source}).Debug("order file detected")

	err := w.dispatcher.Dispatch(func() {
		if r.stopped.Load() {
			return
		}
		w.handler.OnNewOrderFile(path)
	})
	if err != nil {
		w.logger.WithError(err).WithField("file", filepath.Base(path)).Warn("failed to dispatch order file")
	}
}

func (w *Watcher) matches(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range w.extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func (w *Watcher) isProcessed(name string) bool {
	w.processedMu.Lock()
	defer w.processedMu.Unlock()
	_, ok := w.processed[name]
	return ok
}

// markProcessed отмечает имя и возвращает false, если оно уже было.
func (w *Watcher) markProcessed(name string) bool {
	w.processedMu.Lock()
	defer w.processedMu.Unlock()
	if _, ok := w.processed[name]; ok {
		return false
	}
	w.processed[name] = struct{}{}
	return true
}
