package kafka

import (
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/ordertracker/internal/domain"
)

// EventType определяет тип события
type EventType string

const (
	EventTypeOrderAdded       EventType = "order.added"
	EventTypeOrderStarted     EventType = "order.started"
	EventTypeOrderCompleted   EventType = "order.completed"
	EventTypeOrderCancelled   EventType = "order.cancelled"
	EventTypeOrderUncancelled EventType = "order.uncancelled"
	EventTypeOrderChanged     EventType = "order.changed"
)

// TopicOrderEvents - topic событий заказов.
const TopicOrderEvents = "ordertracker.order.events"

// OrderEvent представляет событие заказа
type OrderEvent struct {
	EventID        string    `json:"event_id"`
	EventType      EventType `json:"event_type"`
	OrderID        int       `json:"order_id"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	OrderType      string    `json:"order_type"`
	Company        string    `json:"company"`
	Total          float64   `json:"total"`
	SourceFile     string    `json:"source_file,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewOrderEvent создает новое событие заказа
func NewOrderEvent(eventType EventType, order domain.Order) *OrderEvent {
	return &OrderEvent{
		EventID:        uuid.NewString(),
		EventType:      eventType,
		OrderID:        order.ID,
		Status:         string(order.Status),
		PreviousStatus: string(order.PreviousStatus),
		OrderType:      string(order.Type),
		Company:        order.Company,
		Total:          order.GrandTotal(),
		SourceFile:     order.SourceFile,
		Timestamp:      time.Now().UTC(),
	}
}

// ChangeEventType выбирает тип события по предыдущему и новому статусу заказа.
func ChangeEventType(previous domain.OrderStatus, order domain.Order) EventType {
	if previous == order.Status {
		return EventTypeOrderChanged
	}
	if previous == domain.OrderStatusCancelled {
		return EventTypeOrderUncancelled
	}
	switch order.Status {
	case domain.OrderStatusInProgress:
		return EventTypeOrderStarted
	case domain.OrderStatusCompleted:
		return EventTypeOrderCompleted
	case domain.OrderStatusCancelled:
		return EventTypeOrderCancelled
	}
	return EventTypeOrderChanged
}
