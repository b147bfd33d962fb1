package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordertracker/internal/domain"
	"github.com/vladislavdragonenkov/ordertracker/internal/metrics"
	"github.com/vladislavdragonenkov/ordertracker/internal/parser"
)

// ErrWaitTimeout - воркеры разбора не завершились за отведённое время.
var ErrWaitTimeout = errors.New("parse workers did not finish in time")

// OrderAdder - часть реестра, нужная конвейеру.
type OrderAdder interface {
	AddOrder(order domain.Order) (domain.Order, error)
}

// Poster ставит задачи в поток потребителя.
type Poster interface {
	Post(ctx context.Context, fn func()) error
}

// ParseFailure - файл, который не превратился в заказ. Показывается
// как заглушка вместо карточки заказа.
type ParseFailure struct {
	FileName string
	Err      error
	At       time.Time
}

// Placeholder возвращает текст заглушки.
func (f ParseFailure) Placeholder() string {
	return fmt.Sprintf("Parse error: %s", f.FileName)
}

// PipelineOptions задаёт параметры Pipeline.
type PipelineOptions struct {
	Logger  *log.Entry
	Metrics *metrics.TrackerMetrics
	Parse   func(path string) (domain.Order, error)
}

// PipelineOption настраивает Pipeline.
type PipelineOption func(*PipelineOptions)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) PipelineOption {
	return func(opts *PipelineOptions) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт метрики.
func WithMetrics(m *metrics.TrackerMetrics) PipelineOption {
	return func(opts *PipelineOptions) {
		opts.Metrics = m
	}
}

// WithParseFunc подменяет разбор файла.
func WithParseFunc(parse func(path string) (domain.Order, error)) PipelineOption {
	return func(opts *PipelineOptions) {
		opts.Parse = parse
	}
}

// Pipeline получает новые файлы от watcher, разбирает каждый в отдельной
// горутине и передаёт заказ в реестр через поток потребителя.
type Pipeline struct {
	registry OrderAdder
	poster   Poster
	parse    func(path string) (domain.Order, error)
	logger   *log.Entry
	metrics  *metrics.TrackerMetrics

	wg sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	failures []ParseFailure
	imported []string
}

// NewPipeline создаёт конвейер импорта.
func NewPipeline(registry OrderAdder, poster Poster, options ...PipelineOption) *Pipeline {
	opts := PipelineOptions{}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "ingest-pipeline")
	}
	if opts.Parse == nil {
		opts.Parse = parser.ParseFile
	}

	return &Pipeline{
		registry: registry,
		poster:   poster,
		parse:    opts.Parse,
		logger:   logger,
		metrics:  opts.Metrics,
	}
}

// OnNewOrderFile запускает разбор файла в отдельной горутине. После Wait
// новые файлы не принимаются.
func (p *Pipeline) OnNewOrderFile(path string) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.logger.WithField("file", filepath.Base(path)).Warn("pipeline is closed, order file skipped")
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		p.process(path)
	}()
}

func (p *Pipeline) process(path string) {
	name := filepath.Base(path)
	entry := p.logger.WithField("file", name)

	order, err := p.parse(path)
	p.metrics.RecordParse(err == nil)
	if err != nil {
		entry.WithError(err).Warn("failed to parse order file")
		p.recordFailure(name, err)
		return
	}

	err = p.poster.Post(context.Background(), func() {
		added, err := p.registry.AddOrder(order)
		if err != nil {
			entry.WithError(err).Error("failed to register order")
			p.recordFailure(name, err)
			return
		}
		p.mu.Lock()
		p.imported = append(p.imported, name)
		p.mu.Unlock()
		entry.WithField("order_id", added.ID).Debug("order imported")
	})
	if err != nil {
		entry.WithError(err).Warn("parsed order dropped, consumer is not accepting tasks")
	}
}

func (p *Pipeline) recordFailure(name string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = append(p.failures, ParseFailure{FileName: name, Err: err, At: time.Now().UTC()})
}

// Failures возвращает файлы, которые не удалось импортировать, в порядке появления.
func (p *Pipeline) Failures() []ParseFailure {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ParseFailure, len(p.failures))
	copy(out, p.failures)
	return out
}

// Imported возвращает имена файлов, заказы из которых попали в реестр.
func (p *Pipeline) Imported() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.imported...)
}

// Wait закрывает конвейер для новых файлов и ждёт завершения запущенных
// воркеров не дольше timeout.
func (p *Pipeline) Wait(timeout time.Duration) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrWaitTimeout
	}
}
