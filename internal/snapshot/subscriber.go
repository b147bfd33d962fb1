package snapshot

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordertracker/internal/domain"
)

// Subscriber пишет снапшот на каждое изменение заказа в реестре.
// Ошибка записи не фатальна: состояние в памяти остаётся главным
// до следующего успешного сохранения.
type Subscriber struct {
	store  *Store
	logger *log.Entry
}

// NewSubscriber создаёт подписчика реестра поверх store.
func NewSubscriber(store *Store, logger *log.Entry) *Subscriber {
	if logger == nil {
		logger = log.WithField("component", "snapshot-writer")
	}
	return &Subscriber{store: store, logger: logger}
}

// OrderAdded сохраняет новый заказ.
func (s *Subscriber) OrderAdded(order domain.Order) {
	s.persist(order)
}

// OrderChanged перезаписывает снапшот заказа.
func (s *Subscriber) OrderChanged(order domain.Order) {
	s.persist(order)
}

// OrdersCleared удаляет все снапшоты вслед за очисткой реестра.
func (s *Subscriber) OrdersCleared() {
	if err := s.store.RemoveAll(); err != nil {
		s.logger.WithError(err).Error("failed to remove snapshots after clear")
	}
}

func (s *Subscriber) persist(order domain.Order) {
	if err := s.store.WriteOne(order); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("snapshot write failed")
	}
}
