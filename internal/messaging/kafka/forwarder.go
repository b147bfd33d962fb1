package kafka

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordertracker/internal/domain"
	"github.com/vladislavdragonenkov/ordertracker/internal/metrics"
)

// DefaultForwarderBuffer - ёмкость очереди событий Forwarder по умолчанию.
const DefaultForwarderBuffer = 128

type pendingEvent struct {
	eventType EventType
	order     domain.Order
}

// Forwarder - подписчик реестра, который передаёт изменения заказов
// в EventPublisher из отдельной горутины. Уведомления реестра не ждут брокер:
// при переполнении очереди событие отбрасывается с предупреждением.
type Forwarder struct {
	publisher domain.EventPublisher
	logger    *log.Entry
	metrics   *metrics.TrackerMetrics
	events    chan pendingEvent

	mu       sync.Mutex
	statuses map[int]domain.OrderStatus
	closed   bool
}

// NewForwarder создаёт Forwarder с очередью размера buffer. m может быть nil.
func NewForwarder(publisher domain.EventPublisher, buffer int, logger *log.Entry, m *metrics.TrackerMetrics) *Forwarder {
	if buffer <= 0 {
		buffer = DefaultForwarderBuffer
	}
	if logger == nil {
		logger = log.WithField("component", "kafka-forwarder")
	}
	return &Forwarder{
		publisher: publisher,
		logger:    logger,
		metrics:   m,
		events:    make(chan pendingEvent, buffer),
		statuses:  make(map[int]domain.OrderStatus),
	}
}

// Seed запоминает статусы заказов, уже лежащих в реестре до подписки,
// чтобы первое изменение такого заказа получило верный тип события.
func (f *Forwarder) Seed(orders []domain.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, order := range orders {
		f.statuses[order.ID] = order.Status
	}
}

// OrderAdded ставит в очередь событие order.added.
func (f *Forwarder) OrderAdded(order domain.Order) {
	f.mu.Lock()
	f.statuses[order.ID] = order.Status
	f.mu.Unlock()
	f.enqueue(EventTypeOrderAdded, order)
}

// OrderChanged выбирает тип события по прошлому статусу заказа и ставит его в очередь.
func (f *Forwarder) OrderChanged(order domain.Order) {
	f.mu.Lock()
	previous := f.statuses[order.ID]
	f.statuses[order.ID] = order.Status
	f.mu.Unlock()
	f.enqueue(ChangeEventType(previous, order), order)
}

// OrdersCleared забывает статусы всех заказов; событие в Kafka не отправляется.
func (f *Forwarder) OrdersCleared() {
	f.mu.Lock()
	f.statuses = make(map[int]domain.OrderStatus)
	f.mu.Unlock()
}

func (f *Forwarder) enqueue(eventType EventType, order domain.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}

	select {
	case f.events <- pendingEvent{eventType: eventType, order: order}:
	default:
		f.metrics.RecordOrderEvent("dropped")
		f.logger.WithFields(log.Fields{
			"order_id":   order.ID,
			"event_type": eventType,
		}).Warn("event queue is full, dropping order event")
	}
}

// Run публикует события до Close или отмены ctx. После Close публикуются
// события, уже стоящие в очереди.
func (f *Forwarder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-f.events:
			if !ok {
				return
			}
			f.publish(ev)
		}
	}
}

func (f *Forwarder) publish(ev pendingEvent) {
	if err := f.publisher.PublishOrderEvent(string(ev.eventType), ev.order); err != nil {
		f.metrics.RecordOrderEvent("failed")
		f.logger.WithError(err).WithFields(log.Fields{
			"order_id":   ev.order.ID,
			"event_type": ev.eventType,
		}).Warn("failed to publish order event")
		return
	}
	f.metrics.RecordOrderEvent("published")
}

// Close закрывает очередь; Run завершится, опубликовав оставшиеся события.
func (f *Forwarder) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	close(f.events)
}
