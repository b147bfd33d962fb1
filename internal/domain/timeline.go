package domain

import (
	"time"

	"github.com/google/uuid"
)

// Типы событий истории заказа.
const (
	TimelineOrderAdded   = "order_added"
	TimelineOrderChanged = "order_changed"
)

// TimelineEvent - одна запись в истории заказа: появление на доске
// или смена статуса. Reason для смены статуса имеет вид "WAITING -> IN_PROGRESS".
type TimelineEvent struct {
	ID       string
	OrderID  int
	Type     string
	Status   OrderStatus
	Reason   string
	Occurred time.Time
}

// Normalized возвращает копию события с заполненными ID и Occurred (UTC).
func (e TimelineEvent) Normalized() TimelineEvent {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Occurred.IsZero() {
		e.Occurred = time.Now()
	}
	e.Occurred = e.Occurred.UTC()
	return e
}
