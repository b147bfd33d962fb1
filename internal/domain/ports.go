package domain

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(orderID int) ([]TimelineEvent, error)
}

// EventPublisher публикует изменения заказов во внешнюю систему.
type EventPublisher interface {
	// PublishOrderEvent передаёт событие наружу; key - идентификатор заказа.
	PublishOrderEvent(eventType string, order Order) error
}
