package domain

// Transition - действие над заказом, меняющее его статус.
type Transition string

const (
	TransitionStart    Transition = "start"
	TransitionComplete Transition = "complete"
	TransitionCancel   Transition = "cancel"
	TransitionUncancel Transition = "uncancel"
)

// CanTransition проверяет допустимость перехода из статуса from.
// Для uncancel дополнительно нужен записанный PreviousStatus, см. Order.Apply.
func CanTransition(from OrderStatus, t Transition) bool {
	switch t {
	case TransitionStart:
		return from == OrderStatusWaiting
	case TransitionComplete:
		return from == OrderStatusInProgress
	case TransitionCancel:
		return from == OrderStatusWaiting || from == OrderStatusInProgress
	case TransitionUncancel:
		return from == OrderStatusCancelled
	}
	return false
}

// Apply выполняет переход над заказом. При недопустимом переходе заказ не
// меняется и возвращается ErrInvalidTransition.
func (o *Order) Apply(t Transition) error {
	if !CanTransition(o.Status, t) {
		return ErrInvalidTransition
	}

	switch t {
	case TransitionStart:
		o.Status = OrderStatusInProgress
	case TransitionComplete:
		o.Status = OrderStatusCompleted
	case TransitionCancel:
		o.PreviousStatus = o.Status
		o.Status = OrderStatusCancelled
	case TransitionUncancel:
		if !o.PreviousStatus.Valid() || o.PreviousStatus == OrderStatusCancelled {
			return ErrInvalidTransition
		}
		o.Status = o.PreviousStatus
		o.PreviousStatus = ""
	}
	return nil
}
