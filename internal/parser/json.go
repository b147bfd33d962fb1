package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/vladislavdragonenkov/ordertracker/internal/domain"
)

type jsonEnvelope struct {
	Order *jsonOrder `json:"order"`
}

type jsonOrder struct {
	ID        int         `json:"id"`
	OrderID   int         `json:"order_id"`
	OrderDate json.Number `json:"order_date"`
	Type      string      `json:"type"`
	Items     []jsonItem  `json:"items"`
	Tip       *jsonTip    `json:"tip"`
}

type jsonItem struct {
	Name     string   `json:"name"`
	Quantity *int     `json:"quantity"`
	Price    *float64 `json:"price"`
}

type jsonTip struct {
	Kitchen float64 `json:"kitchen"`
	Server  float64 `json:"server"`
	Driver  float64 `json:"driver"`
}

func parseJSON(data []byte) (domain.Order, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var env jsonEnvelope
	if err := dec.Decode(&env); err != nil {
		return domain.Order{}, fmt.Errorf("decode json: %w", err)
	}
	if env.Order == nil {
		return domain.Order{}, errors.New(`missing "order" object`)
	}
	raw := env.Order

	date, err := parseEpochMillis(raw.OrderDate.String())
	if err != nil {
		return domain.Order{}, fmt.Errorf("order_date: %w", err)
	}
	orderType, err := domain.ParseOrderType(raw.Type)
	if err != nil {
		return domain.Order{}, err
	}

	order := domain.Order{
		ID:      raw.ID,
		Type:    orderType,
		Company: CompanyJSON,
		Date:    date,
	}
	if order.ID == 0 {
		order.ID = raw.OrderID
	}
	if order.ID < 0 {
		return domain.Order{}, fmt.Errorf("negative order id %d", order.ID)
	}

	for i, item := range raw.Items {
		if item.Name == "" || item.Quantity == nil || item.Price == nil {
			return domain.Order{}, fmt.Errorf("item %d: name, quantity and price are required", i)
		}
		order.AddItem(domain.FoodItem{Name: item.Name, Quantity: *item.Quantity, Price: *item.Price})
	}
	if raw.Tip != nil {
		order.KitchenTip = raw.Tip.Kitchen
		order.ServerTip = raw.Tip.Server
		order.DriverTip = raw.Tip.Driver
	}

	return order, nil
}

// parseEpochMillis принимает миллисекунды Unix числом или строкой.
func parseEpochMillis(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("value is required")
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch millis %q", raw)
	}
	return time.UnixMilli(ms).UTC(), nil
}
