package watcher

import (
	"context"
	"io/fs"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordertracker/internal/domain"
	"github.com/vladislavdragonenkov/ordertracker/internal/metrics"
)

const (
	// MaxProbeAttempts - число попыток открыть файл до отказа.
	MaxProbeAttempts = 5
	// ScanProbeDelay - базовая задержка probe при стартовом сканировании.
	ScanProbeDelay = 100 * time.Millisecond
	// EventProbeDelay - базовая задержка probe для событий каталога.
	EventProbeDelay = 200 * time.Millisecond
)

// Sleeper абстрагирует ожидание между попытками, чтобы тесты не ждали реальное время.
type Sleeper interface {
	// Sleep ждёт d или отмены ctx; при отмене возвращает ctx.Err().
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc адаптирует функцию к Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Sleep вызывает f.
func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Opener открывает файл на чтение и возвращает его описание.
type Opener func(path string) (fs.FileInfo, error)

func openForRead(path string) (fs.FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.Stat()
}

// probeState - состояние опроса одного файла: номер попытки и суммарное ожидание.
type probeState struct {
	attempt     int
	waited      time.Duration
	maxAttempts int
	baseDelay   time.Duration
}

// next переводит probe к следующей попытке после неудачной и возвращает
// задержку перед ней. ok=false, если попытки исчерпаны: после последней
// неудачной попытки probe не спит.
func (s *probeState) next() (delay time.Duration, ok bool) {
	if s.attempt >= s.maxAttempts {
		return 0, false
	}
	delay = s.baseDelay * time.Duration(s.attempt)
	s.waited += delay
	return delay, true
}

// ProbeOptions задаёт параметры Probe.
type ProbeOptions struct {
	Logger      *log.Entry
	Metrics     *metrics.TrackerMetrics
	Opener      Opener
	Sleeper     Sleeper
	MaxAttempts int
}

// ProbeOption настраивает Probe.
type ProbeOption func(*ProbeOptions)

// WithProbeLogger задаёт logger для probe.
func WithProbeLogger(logger *log.Entry) ProbeOption {
	return func(opts *ProbeOptions) {
		opts.Logger = logger
	}
}

// WithProbeMetrics задаёт метрики probe.
func WithProbeMetrics(m *metrics.TrackerMetrics) ProbeOption {
	return func(opts *ProbeOptions) {
		opts.Metrics = m
	}
}

// WithOpener подменяет способ открытия файла.
func WithOpener(opener Opener) ProbeOption {
	return func(opts *ProbeOptions) {
		opts.Opener = opener
	}
}

// WithProbeSleeper подменяет ожидание между попытками.
func WithProbeSleeper(sleeper Sleeper) ProbeOption {
	return func(opts *ProbeOptions) {
		opts.Sleeper = sleeper
	}
}

// WithMaxAttempts задаёт число попыток.
func WithMaxAttempts(n int) ProbeOption {
	return func(opts *ProbeOptions) {
		opts.MaxAttempts = n
	}
}

// Probe проверяет, что файл дописан и его можно читать.
type Probe struct {
	logger      *log.Entry
	metrics     *metrics.TrackerMetrics
	opener      Opener
	sleeper     Sleeper
	maxAttempts int
}

// NewProbe создаёт probe с линейным backoff.
func NewProbe(options ...ProbeOption) *Probe {
	opts := ProbeOptions{MaxAttempts: MaxProbeAttempts}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "readiness-probe")
	}
	if opts.Opener == nil {
		opts.Opener = openForRead
	}
	if opts.Sleeper == nil {
		opts.Sleeper = timerSleeper{}
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = MaxProbeAttempts
	}

	return &Probe{
		logger:      logger,
		metrics:     opts.Metrics,
		opener:      opts.Opener,
		sleeper:     opts.Sleeper,
		maxAttempts: opts.MaxAttempts,
	}
}

// IsReadable пытается открыть файл до maxAttempts раз, между попытками ждёт
// baseDelay*attempt. Файл готов, если открылся и это непустой обычный файл.
// Файл, оставшийся пустым после последней попытки, тоже считается готовым:
// его разбор завершится ошибкой и заказ получит заглушку.
// Отмена ctx во время ожидания прерывает probe с результатом false.
func (p *Probe) IsReadable(ctx context.Context, path string, baseDelay time.Duration) bool {
	state := probeState{maxAttempts: p.maxAttempts, baseDelay: baseDelay}

	var (
		lastErr error
		empty   bool
	)
	for {
		state.attempt++
		info, err := p.opener(path)
		regular := err == nil && info.Mode().IsRegular()
		if regular && info.Size() > 0 {
			return true
		}
		empty = regular
		lastErr = err

		delay, ok := state.next()
		if !ok {
			break
		}
		if err := p.sleeper.Sleep(ctx, delay); err != nil {
			p.logger.WithFields(log.Fields{
				"path":    path,
				"attempt": state.attempt,
			}).Debug("readiness probe cancelled")
			return false
		}
	}

	entry := p.logger.WithFields(log.Fields{
		"path":     path,
		"attempts": state.attempt,
		"waited":   state.waited.String(),
	})
	if empty {
		entry.Debug("file stayed empty, handing it over as is")
		return true
	}
	if lastErr != nil {
		entry = entry.WithField("last_error", lastErr.Error())
	}
	entry.WithError(domain.ErrProbeTimeout).Debug("file is not ready, dropping")
	p.metrics.RecordProbeTimeout()
	return false
}
