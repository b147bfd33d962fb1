package httpapi

import (
	"time"

	"github.com/vladislavdragonenkov/ordertracker/internal/domain"
	"github.com/vladislavdragonenkov/ordertracker/internal/ingest"
)

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// orderTile - карточка заказа в списке.
type orderTile struct {
	ID          int    `json:"id"`
	Status      string `json:"status"`
	StatusLabel string `json:"statusLabel"`
	Type        string `json:"type"`
	TypeLabel   string `json:"typeLabel"`
	Company     string `json:"company"`
}

func newOrderTile(order domain.Order) orderTile {
	return orderTile{
		ID:          order.ID,
		Status:      string(order.Status),
		StatusLabel: order.Status.DisplayName(),
		Type:        string(order.Type),
		TypeLabel:   order.Type.DisplayName(),
		Company:     order.Company,
	}
}

type itemResponse struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

type orderDetails struct {
	orderTile
	PreviousStatus string         `json:"previousStatus,omitempty"`
	Date           time.Time      `json:"date"`
	Items          []itemResponse `json:"items"`
	TotalPrice     float64        `json:"totalPrice"`
	KitchenTip     float64        `json:"kitchenTip"`
	DriverTip      float64        `json:"driverTip,omitempty"`
	ServerTip      float64        `json:"serverTip,omitempty"`
	GrandTotal     float64        `json:"grandTotal"`
	SourceFile     string         `json:"sourceFile,omitempty"`
	Card           string         `json:"card"`
}

func newOrderDetails(order domain.Order) orderDetails {
	items := make([]itemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, itemResponse{Name: item.Name, Quantity: item.Quantity, Price: item.Price})
	}
	details := orderDetails{
		orderTile:      newOrderTile(order),
		PreviousStatus: string(order.PreviousStatus),
		Date:           order.Date,
		Items:          items,
		TotalPrice:     order.TotalPrice,
		KitchenTip:     order.KitchenTip,
		GrandTotal:     order.GrandTotal(),
		SourceFile:     order.SourceFile,
		Card:           order.String(),
	}
	switch order.Type {
	case domain.OrderTypeDelivery:
		details.DriverTip = order.DriverTip
	case domain.OrderTypeDineIn:
		details.ServerTip = order.ServerTip
	}
	return details
}

type timelineEntry struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Status   string    `json:"status"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}

func newTimelineEntry(event domain.TimelineEvent) timelineEntry {
	return timelineEntry{
		ID:       event.ID,
		Type:     event.Type,
		Status:   string(event.Status),
		Reason:   event.Reason,
		Occurred: event.Occurred,
	}
}

// failureEntry - заглушка вместо карточки для файла, который не разобрался.
type failureEntry struct {
	FileName    string    `json:"fileName"`
	Placeholder string    `json:"placeholder"`
	Error       string    `json:"error"`
	At          time.Time `json:"at"`
}

func newFailureEntry(failure ingest.ParseFailure) failureEntry {
	entry := failureEntry{
		FileName:    failure.FileName,
		Placeholder: failure.Placeholder(),
		At:          failure.At,
	}
	if failure.Err != nil {
		entry.Error = failure.Err.Error()
	}
	return entry
}
