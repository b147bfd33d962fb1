// Package timeline записывает историю заказов: подписчик реестра превращает
// уведомления об изменениях в события TimelineRepository.
package timeline

import (
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordertracker/internal/domain"
	"github.com/vladislavdragonenkov/ordertracker/internal/metrics"
)

// Options задаёт параметры Recorder.
type Options struct {
	Logger  *log.Entry
	Metrics *metrics.TrackerMetrics
	Now     func() time.Time
}

// Option настраивает Recorder.
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

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(opts *Options) {
		opts.Now = now
	}
}

// Recorder - подписчик реестра, пишущий события в timeline.
type Recorder struct {
	repo    domain.TimelineRepository
	logger  *log.Entry
	metrics *metrics.TrackerMetrics
	now     func() time.Time
}

// NewRecorder создаёт Recorder поверх репозитория.
func NewRecorder(repo domain.TimelineRepository, options ...Option) *Recorder {
	opts := Options{}
	for _, option := range options {
		option(&opts)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "timeline-recorder")
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Recorder{repo: repo, logger: logger, metrics: opts.Metrics, now: now}
}

func (r *Recorder) OrderAdded(order domain.Order) {
	reason := "imported"
	if order.SourceFile != "" {
		reason = "imported from " + order.SourceFile
	}
	r.append(domain.TimelineOrderAdded, order, reason)
}

func (r *Recorder) OrderChanged(order domain.Order) {
	reason := string(order.Status)
	if order.PreviousStatus != "" {
		reason = string(order.PreviousStatus) + " -> " + string(order.Status)
	}
	r.append(domain.TimelineOrderChanged, order, reason)
}

func (r *Recorder) append(eventType string, order domain.Order, reason string) {
	event := domain.TimelineEvent{
		ID:       uuid.NewString(),
		OrderID:  order.ID,
		Type:     eventType,
		Status:   order.Status,
		Reason:   reason,
		Occurred: r.now(),
	}
	if err := r.repo.Append(event); err != nil {
		r.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Warn("append timeline event failed")
		r.metrics.RecordTimelineEvent(false)
		return
	}
	r.metrics.RecordTimelineEvent(true)
}

// History возвращает события заказа в хронологическом порядке.
func (r *Recorder) History(orderID int) ([]domain.TimelineEvent, error) {
	return r.repo.List(orderID)
}
