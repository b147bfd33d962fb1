package ingest

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordertracker/internal/domain"
)

// LogPresenter выводит карточки заказов в лог вместо экранных плиток.
type LogPresenter struct {
	logger *log.Entry
}

// NewLogPresenter создаёт presenter.
func NewLogPresenter(logger *log.Entry) *LogPresenter {
	if logger == nil {
		logger = log.WithField("component", "order-board")
	}
	return &LogPresenter{logger: logger}
}

func (p *LogPresenter) OrderAdded(order domain.Order) {
	p.tile(order).Info("new order on the board")
}

func (p *LogPresenter) OrderChanged(order domain.Order) {
	p.tile(order).Info("order tile updated")
}

func (p *LogPresenter) OrdersCleared() {
	p.logger.Info("board cleared")
}

func (p *LogPresenter) tile(order domain.Order) *log.Entry {
	return p.logger.WithFields(log.Fields{
		"order":   order.ID,
		"status":  order.Status.DisplayName(),
		"type":    order.Type.DisplayName(),
		"company": order.Company,
		"total":   order.GrandTotal(),
	})
}
