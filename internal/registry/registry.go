// Package registry хранит заказы в памяти, выполняет переходы статусов и
// уведомляет подписчиков об изменениях.
package registry

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordertracker/internal/domain"
	"github.com/vladislavdragonenkov/ordertracker/internal/metrics"
)

// Subscriber получает уведомления об изменениях заказов. Вызовы приходят
// в порядке регистрации подписчиков; заказ передаётся копией.
type Subscriber interface {
	OrderAdded(order domain.Order)
	OrderChanged(order domain.Order)
}

// ClearSubscriber дополнительно получает уведомление об очистке реестра.
type ClearSubscriber interface {
	OrdersCleared()
}

// Options задаёт параметры Registry.
type Options struct {
	Logger  *log.Entry
	Metrics *metrics.TrackerMetrics
	Now     func() time.Time
}

// Option настраивает Registry.
type Option func(*Options)

// WithLogger задаёт logger реестра.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт метрики реестра.
func WithMetrics(m *metrics.TrackerMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithClock подменяет источник времени для CreatedAt/UpdatedAt новых заказов.
func WithClock(now func() time.Time) Option {
	return func(opts *Options) {
		opts.Now = now
	}
}

type subscription struct {
	id  uint64
	sub Subscriber
}

// Registry - единственный владелец заказов и счётчика идентификаторов.
type Registry struct {
	mu     sync.Mutex
	orders map[int]*domain.Order
	order  []int
	nextID int

	// notifyMu захватывается до освобождения mu, поэтому события доставляются
	// в порядке применения мутаций.
	notifyMu sync.Mutex
	subsMu   sync.RWMutex
	subs     []subscription
	subSeq   uint64

	logger  *log.Entry
	metrics *metrics.TrackerMetrics
	now     func() time.Time
}

// New создаёт пустой реестр; первый назначенный идентификатор - 1.
func New(options ...Option) *Registry {
	opts := Options{}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "order-registry")
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	return &Registry{
		orders:  make(map[int]*domain.Order),
		nextID:  1,
		logger:  logger,
		metrics: opts.Metrics,
		now:     opts.Now,
	}
}

// Subscribe регистрирует подписчика и возвращает функцию отписки.
func (r *Registry) Subscribe(sub Subscriber) (unsubscribe func()) {
	r.subsMu.Lock()
	r.subSeq++
	id := r.subSeq
	r.subs = append(r.subs, subscription{id: id, sub: sub})
	r.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.subsMu.Lock()
			defer r.subsMu.Unlock()
			for i, s := range r.subs {
				if s.id == id {
					r.subs = append(r.subs[:i:i], r.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// AddOrder регистрирует заказ. Нулевой ID заменяется следующим значением
// счётчика; явный ID продвигает счётчик за себя. Повторный ID отклоняется.
func (r *Registry) AddOrder(order domain.Order) (domain.Order, error) {
	r.mu.Lock()

	if order.ID < 0 {
		r.mu.Unlock()
		return domain.Order{}, fmt.Errorf("order id must be positive, got %d", order.ID)
	}
	if order.ID == 0 {
		order.ID = r.nextID
	}
	if _, exists := r.orders[order.ID]; exists {
		r.mu.Unlock()
		return domain.Order{}, fmt.Errorf("%w: %d", domain.ErrDuplicateOrderID, order.ID)
	}
	if order.ID >= r.nextID {
		r.nextID = order.ID + 1
	}
	if order.Status == "" {
		order.Status = domain.OrderStatusWaiting
	}
	now := r.now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = now
	}

	stored := order.Clone()
	r.orders[stored.ID] = &stored
	r.order = append(r.order, stored.ID)
	snapshot := stored.Clone()

	r.notifyMu.Lock()
	r.mu.Unlock()
	defer r.notifyMu.Unlock()

	r.metrics.RecordOrderAdded()
	r.logger.WithFields(log.Fields{
		"order_id": snapshot.ID,
		"company":  snapshot.Company,
		"type":     snapshot.Type,
	}).Info("order added")

	r.notify(func(s Subscriber) { s.OrderAdded(snapshot.Clone()) })
	return snapshot, nil
}

// StartOrder переводит заказ из WAITING в IN_PROGRESS.
func (r *Registry) StartOrder(id int) bool {
	return r.transition(id, domain.TransitionStart)
}

// CompleteOrder переводит заказ из IN_PROGRESS в COMPLETED.
func (r *Registry) CompleteOrder(id int) bool {
	return r.transition(id, domain.TransitionComplete)
}

// CancelOrder отменяет заказ в WAITING или IN_PROGRESS, запоминая статус для отката.
func (r *Registry) CancelOrder(id int) bool {
	return r.transition(id, domain.TransitionCancel)
}

// UncancelOrder возвращает отменённый заказ в статус до отмены.
func (r *Registry) UncancelOrder(id int) bool {
	return r.transition(id, domain.TransitionUncancel)
}

// Apply выполняет переход по его названию. Возвращает ErrOrderNotFound или
// ErrInvalidTransition, если переход не выполнен.
func (r *Registry) Apply(id int, t domain.Transition) (domain.Order, error) {
	r.mu.Lock()
	stored, ok := r.orders[id]
	if !ok {
		r.mu.Unlock()
		r.metrics.RecordTransition(string(t), false)
		return domain.Order{}, fmt.Errorf("%w: %d", domain.ErrOrderNotFound, id)
	}

	candidate := stored.Clone()
	if err := candidate.Apply(t); err != nil {
		status := stored.Status
		r.mu.Unlock()
		r.metrics.RecordTransition(string(t), false)
		r.logger.WithFields(log.Fields{
			"order_id":   id,
			"transition": t,
			"status":     status,
		}).Debug("transition rejected")
		return domain.Order{}, fmt.Errorf("%w: %s from %s", err, t, status)
	}
	*stored = candidate
	snapshot := candidate.Clone()

	r.notifyMu.Lock()
	r.mu.Unlock()
	defer r.notifyMu.Unlock()

	r.metrics.RecordTransition(string(t), true)
	r.logger.WithFields(log.Fields{
		"order_id":   id,
		"transition": t,
		"status":     snapshot.Status,
	}).Info("order status changed")

	r.notify(func(s Subscriber) { s.OrderChanged(snapshot.Clone()) })
	return snapshot, nil
}

func (r *Registry) transition(id int, t domain.Transition) bool {
	_, err := r.Apply(id, t)
	return err == nil
}

// AdjustTip меняет чаевые кухне у заказа в зале и уведомляет подписчиков.
func (r *Registry) AdjustTip(id int, amount float64) (domain.Order, error) {
	r.mu.Lock()
	stored, ok := r.orders[id]
	if !ok {
		r.mu.Unlock()
		return domain.Order{}, fmt.Errorf("%w: %d", domain.ErrOrderNotFound, id)
	}

	candidate := stored.Clone()
	if err := candidate.AdjustKitchenTip(amount); err != nil {
		r.mu.Unlock()
		return domain.Order{}, err
	}
	*stored = candidate
	snapshot := candidate.Clone()

	r.notifyMu.Lock()
	r.mu.Unlock()
	defer r.notifyMu.Unlock()

	r.logger.WithFields(log.Fields{
		"order_id": id,
		"tip":      amount,
	}).Info("kitchen tip adjusted")

	r.notify(func(s Subscriber) { s.OrderChanged(snapshot.Clone()) })
	return snapshot, nil
}

// ClearAllOrders удаляет все заказы. Событий по отдельным заказам нет:
// подписчики с ClearSubscriber получают OrdersCleared и перечитывают состояние.
// Счётчик идентификаторов не сбрасывается.
func (r *Registry) ClearAllOrders() {
	r.mu.Lock()
	removed := len(r.order)
	r.orders = make(map[int]*domain.Order)
	r.order = nil

	r.notifyMu.Lock()
	r.mu.Unlock()
	defer r.notifyMu.Unlock()

	r.metrics.SetActiveOrders(0)
	r.logger.WithField("removed", removed).Info("all orders cleared")

	r.notify(func(s Subscriber) {
		if cs, ok := s.(ClearSubscriber); ok {
			cs.OrdersCleared()
		}
	})
}

// ResumeFrom продвигает счётчик так, чтобы следующий ID был больше maxID.
func (r *Registry) ResumeFrom(maxID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if maxID+1 > r.nextID {
		r.nextID = maxID + 1
	}
}

// NextID возвращает идентификатор, который получит следующий заказ без ID.
func (r *Registry) NextID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextID
}

// Orders возвращает копии заказов в порядке добавления.
func (r *Registry) Orders() []domain.Order {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Order, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.orders[id].Clone())
	}
	return out
}

// OrderCount возвращает число заказов.
func (r *Registry) OrderCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Order возвращает копию заказа по ID.
func (r *Registry) Order(id int) (domain.Order, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.orders[id]
	if !ok {
		return domain.Order{}, false
	}
	return stored.Clone(), true
}

// notify вызывается под notifyMu.
func (r *Registry) notify(deliver func(Subscriber)) {
	r.subsMu.RLock()
	subs := make([]subscription, len(r.subs))
	copy(subs, r.subs)
	r.subsMu.RUnlock()

	for _, s := range subs {
		r.safeDeliver(s.sub, deliver)
	}
}

func (r *Registry) safeDeliver(sub Subscriber, deliver func(Subscriber)) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.WithField("panic", rec).Error("order subscriber panicked")
		}
	}()
	deliver(sub)
}
