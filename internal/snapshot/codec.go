package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/ordertracker/internal/domain"
)

const (
	// FilePrefix - префикс имени файла снапшота: Saved_Order<ID>.json.
	FilePrefix = "Saved_Order"
	// RestoredPrefix добавляется к компании восстановленного заказа.
	RestoredPrefix = "Restored - "
	// RestoredUnknown - компания восстановленного заказа без компании.
	RestoredUnknown = RestoredPrefix + "Unknown"
)

// FileName возвращает имя файла снапшота для заказа.
func FileName(id int) string {
	return fmt.Sprintf("%s%d.json", FilePrefix, id)
}

// IDFromFileName извлекает ID заказа из имени Saved_Order<ID>.json.
func IDFromFileName(name string) (int, bool) {
	digits, ok := strings.CutPrefix(name, FilePrefix)
	if !ok {
		return 0, false
	}
	digits, ok = strings.CutSuffix(strings.ToLower(digits), ".json")
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(digits)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

type record struct {
	OrderID        int          `json:"orderID"`
	Date           int64        `json:"date"`
	TotalPrice     float64      `json:"totalPrice"`
	Type           string       `json:"type"`
	Status         string       `json:"status"`
	PreviousStatus string       `json:"previousStatus,omitempty"`
	Company        string       `json:"company,omitempty"`
	Tip            tipRecord    `json:"tip"`
	FoodList       []foodRecord `json:"foodList"`
	SourceFile     string       `json:"sourceFile,omitempty"`
	CreatedAt      int64        `json:"createdAt,omitempty"`
}

type tipRecord struct {
	KitchenTip *amount `json:"kitchenTip,omitempty"`
	DriverTip  *amount `json:"driverTip,omitempty"`
	ServerTip  *amount `json:"serverTip,omitempty"`
}

type amount struct {
	Amount float64 `json:"amount"`
}

type foodRecord struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// encode сериализует заказ в формат снапшота. Чаевые пишутся только
// применимые к типу заказа.
func encode(order domain.Order) ([]byte, error) {
	rec := record{
		OrderID:        order.ID,
		Date:           order.Date.UnixMilli(),
		TotalPrice:     order.TotalPrice,
		Type:           string(order.Type),
		Status:         string(order.Status),
		PreviousStatus: string(order.PreviousStatus),
		Company:        order.Company,
		Tip:            tipRecord{KitchenTip: &amount{Amount: order.KitchenTip}},
		FoodList:       make([]foodRecord, 0, len(order.Items)),
		SourceFile:     order.SourceFile,
	}
	if !order.CreatedAt.IsZero() {
		rec.CreatedAt = order.CreatedAt.UnixMilli()
	}
	switch order.Type {
	case domain.OrderTypeDelivery:
		rec.Tip.DriverTip = &amount{Amount: order.DriverTip}
	case domain.OrderTypeDineIn:
		rec.Tip.ServerTip = &amount{Amount: order.ServerTip}
	}
	for _, item := range order.Items {
		rec.FoodList = append(rec.FoodList, foodRecord(item))
	}

	return json.MarshalIndent(rec, "", "    ")
}

// decode восстанавливает заказ из снапшота и помечает компанию как восстановленную.
func decode(data []byte) (domain.Order, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.Order{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if rec.OrderID <= 0 {
		return domain.Order{}, fmt.Errorf("snapshot has invalid orderID %d", rec.OrderID)
	}
	if rec.FoodList == nil {
		return domain.Order{}, errors.New(`snapshot has no "foodList"`)
	}

	orderType, err := domain.ParseOrderType(rec.Type)
	if err != nil {
		return domain.Order{}, err
	}
	status := domain.OrderStatus(rec.Status)
	if !status.Valid() {
		return domain.Order{}, fmt.Errorf("%w: %q", domain.ErrUnknownStatus, rec.Status)
	}
	previous := domain.OrderStatus(rec.PreviousStatus)
	if previous != "" && !previous.Valid() {
		return domain.Order{}, fmt.Errorf("%w: previous %q", domain.ErrUnknownStatus, rec.PreviousStatus)
	}

	order := domain.Order{
		ID:             rec.OrderID,
		Status:         status,
		PreviousStatus: previous,
		Type:           orderType,
		Company:        restoredCompany(rec.Company),
		Date:           time.UnixMilli(rec.Date).UTC(),
		TotalPrice:     rec.TotalPrice,
		SourceFile:     rec.SourceFile,
	}
	if rec.CreatedAt > 0 {
		order.CreatedAt = time.UnixMilli(rec.CreatedAt).UTC()
	}
	for _, food := range rec.FoodList {
		order.Items = append(order.Items, domain.FoodItem(food))
	}
	if rec.Tip.KitchenTip != nil {
		order.KitchenTip = rec.Tip.KitchenTip.Amount
	}
	if rec.Tip.DriverTip != nil {
		order.DriverTip = rec.Tip.DriverTip.Amount
	}
	if rec.Tip.ServerTip != nil {
		order.ServerTip = rec.Tip.ServerTip.Amount
	}
	return order, nil
}

func restoredCompany(company string) string {
	switch {
	case company == "":
		return RestoredUnknown
	case strings.HasPrefix(company, RestoredPrefix):
		return company
	default:
		return RestoredPrefix + company
	}
}
