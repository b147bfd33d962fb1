package parser

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/vladislavdragonenkov/ordertracker/internal/domain"
)

type xmlOrder struct {
	ID        string    `xml:"id,attr"`
	OrderType string    `xml:"OrderType"`
	Items     []xmlItem `xml:"Item"`
}

type xmlItem struct {
	Name     string `xml:"type,attr"`
	Price    string `xml:"Price"`
	Quantity string `xml:"Quantity"`
}

// parseXML ищет первый элемент <Order> на любом уровне вложенности.
// Атрибут id у GrubStop содержит время заказа в миллисекундах.
func parseXML(data []byte) (domain.Order, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	var raw *xmlOrder
	for raw == nil {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return domain.Order{}, errors.New("no <Order> element")
		}
		if err != nil {
			return domain.Order{}, fmt.Errorf("decode xml: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "Order" {
			continue
		}
		var o xmlOrder
		if err := dec.DecodeElement(&o, &start); err != nil {
			return domain.Order{}, fmt.Errorf("decode <Order>: %w", err)
		}
		raw = &o
	}

	date, err := parseEpochMillis(strings.TrimSpace(raw.ID))
	if err != nil {
		return domain.Order{}, fmt.Errorf("order id attribute: %w", err)
	}
	orderType, err := domain.ParseOrderType(raw.OrderType)
	if err != nil {
		return domain.Order{}, err
	}

	order := domain.Order{
		Type:    orderType,
		Company: CompanyXML,
		Date:    date,
	}
	for i, item := range raw.Items {
		qty, err := strconv.Atoi(strings.TrimSpace(item.Quantity))
		if err != nil {
			return domain.Order{}, fmt.Errorf("item %d quantity: %w", i, err)
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(item.Price), 64)
		if err != nil {
			return domain.Order{}, fmt.Errorf("item %d price: %w", i, err)
		}
		order.AddItem(domain.FoodItem{Name: item.Name, Quantity: qty, Price: price})
	}

	return order, nil
}
