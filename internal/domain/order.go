package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// OrderStatus описывает жизненный цикл заказа на кухне.
type OrderStatus string

const (
	// OrderStatusWaiting - заказ принят и ждёт начала приготовления.
	OrderStatusWaiting OrderStatus = "WAITING"
	// OrderStatusInProgress - заказ готовится.
	OrderStatusInProgress OrderStatus = "IN_PROGRESS"
	// OrderStatusCompleted - заказ выдан, статус терминальный.
	OrderStatusCompleted OrderStatus = "COMPLETED"
	// OrderStatusCancelled - заказ отменён, отмену можно откатить.
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Valid сообщает, известен ли статус.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusWaiting, OrderStatusInProgress, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// DisplayName возвращает человекочитаемое название статуса.
func (s OrderStatus) DisplayName() string {
	switch s {
	case OrderStatusWaiting:
		return "Waiting"
	case OrderStatusInProgress:
		return "In progress"
	case OrderStatusCompleted:
		return "Completed"
	case OrderStatusCancelled:
		return "Cancelled"
	}
	return string(s)
}

// OrderType - канал, через который пришёл заказ.
type OrderType string

const (
	OrderTypeToGo     OrderType = "TOGO"
	OrderTypePickup   OrderType = "PICKUP"
	OrderTypeDelivery OrderType = "DELIVERY"
	OrderTypeDineIn   OrderType = "DINE_IN"
)

// ParseOrderType разбирает тип заказа без учёта регистра ("togo", "Dine_In" ...).
func ParseOrderType(raw string) (OrderType, error) {
	t := OrderType(strings.ToUpper(strings.TrimSpace(raw)))
	switch t {
	case OrderTypeToGo, OrderTypePickup, OrderTypeDelivery, OrderTypeDineIn:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOrderType, raw)
}

// DisplayName возвращает название типа для отображения.
func (t OrderType) DisplayName() string {
	switch t {
	case OrderTypeToGo:
		return "To-go"
	case OrderTypePickup:
		return "Pickup"
	case OrderTypeDelivery:
		return "Delivery"
	case OrderTypeDineIn:
		return "Dine-In"
	}
	return string(t)
}

// FoodItem представляет одну позицию заказа.
type FoodItem struct {
	Name     string
	Quantity int
	// Price - цена за единицу.
	Price float64
}

// String форматирует позицию так, как она показывается в деталях заказа.
func (f FoodItem) String() string {
	return fmt.Sprintf("%dx %s - $%.2f each", f.Quantity, f.Name, f.Price)
}

// Order хранит идентичность и изменяемое состояние отслеживаемого заказа.
type Order struct {
	// ID назначается реестром; 0 означает "ещё не назначен".
	ID     int
	Status OrderStatus
	// PreviousStatus фиксируется при отмене и используется для undo.
	PreviousStatus OrderStatus
	Type           OrderType
	Company        string
	// Date - время заказа из исходного файла.
	Date       time.Time
	Items      []FoodItem
	TotalPrice float64
	KitchenTip float64
	ServerTip  float64
	DriverTip  float64
	// SourceFile - имя файла, из которого заказ был импортирован.
	SourceFile string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Clone возвращает независимую копию заказа (позиции копируются).
func (o Order) Clone() Order {
	if o.Items != nil {
		items := make([]FoodItem, len(o.Items))
		copy(items, o.Items)
		o.Items = items
	}
	return o
}

// SumPrice пересчитывает стоимость позиций: quantity * price.
func (o *Order) SumPrice() float64 {
	var sum float64
	for _, item := range o.Items {
		sum += item.Price * float64(item.Quantity)
	}
	return sum
}

// AddItem добавляет позицию и обновляет TotalPrice.
func (o *Order) AddItem(item FoodItem) {
	o.Items = append(o.Items, item)
	o.TotalPrice = o.SumPrice()
}

// TotalTips возвращает сумму чаевых, применимых к типу заказа.
func (o *Order) TotalTips() float64 {
	switch o.Type {
	case OrderTypeDelivery:
		return o.KitchenTip + o.DriverTip
	case OrderTypeDineIn:
		return o.KitchenTip + o.ServerTip
	default:
		return o.KitchenTip
	}
}

// GrandTotal возвращает итог с чаевыми. Для to-go чаевые в итог не входят.
func (o *Order) GrandTotal() float64 {
	if o.Type == OrderTypeToGo {
		return o.TotalPrice
	}
	return o.TotalPrice + o.TotalTips()
}

// AdjustKitchenTip меняет чаевые кухне у заказа в зале.
func (o *Order) AdjustKitchenTip(amount float64) error {
	if o.Type != OrderTypeDineIn {
		return ErrTipNotAdjustable
	}
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidTip, amount)
	}
	o.KitchenTip = amount
	return nil
}

var displayLocation = loadDisplayLocation()

func loadDisplayLocation() *time.Location {
	loc, err := time.LoadLocation("America/Chicago")
	if err != nil {
		return time.UTC
	}
	return loc
}

// String возвращает карточку заказа для отображения.
func (o Order) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Order #%d\n", o.ID)
	fmt.Fprintf(&b, "%s\n\n", o.Date.In(displayLocation).Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(&b, "Status: %s\n", o.Status.DisplayName())
	fmt.Fprintf(&b, "Type: %s\n", o.Type.DisplayName())
	b.WriteString("Items:")
	for _, item := range o.Items {
		b.WriteString("\n  ")
		b.WriteString(item.String())
	}
	fmt.Fprintf(&b, "\n\nTotal Price: $%.2f", o.TotalPrice)
	fmt.Fprintf(&b, "\nKitchen Tip: $%.2f", o.KitchenTip)
	switch o.Type {
	case OrderTypeDelivery:
		fmt.Fprintf(&b, "\nDriver Tip: $%.2f", o.DriverTip)
	case OrderTypeDineIn:
		fmt.Fprintf(&b, "\nServer Tip: $%.2f", o.ServerTip)
	}
	fmt.Fprintf(&b, "\n\nGrand Total: $%.2f", o.GrandTotal())
	return b.String()
}
