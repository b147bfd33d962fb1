// Package parser разбирает файлы заказов, которые кладут в каталог импорта
// внешние площадки: FoodHub присылает JSON, GrubStop - XML.
package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/ordertracker/internal/domain"
)

const (
	// CompanyJSON - площадка, присылающая заказы в JSON.
	CompanyJSON = "FoodHub (JSON)"
	// CompanyXML - площадка, присылающая заказы в XML.
	CompanyXML = "GrubStop (XML)"
)

// Func - сигнатура парсера, которую использует конвейер импорта.
type Func func(name string, data []byte) (domain.Order, error)

// Supported сообщает, умеет ли парсер обрабатывать файл с таким именем.
func Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".xml":
		return true
	}
	return false
}

// Parse выбирает формат по расширению и возвращает заказ без назначенного ID
// (если файл его не содержит). Все ошибки оборачивают domain.ErrParse.
func Parse(name string, data []byte) (domain.Order, error) {
	var (
		order domain.Order
		err   error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		order, err = parseJSON(data)
	case ".xml":
		order, err = parseXML(data)
	default:
		return domain.Order{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedFile, name)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("%w: %s: %w", domain.ErrParse, filepath.Base(name), err)
	}

	order.SourceFile = filepath.Base(name)
	order.Status = domain.OrderStatusWaiting
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now
	return order, nil
}

// ParseFile читает файл целиком и разбирает его через Parse.
func ParseFile(path string) (domain.Order, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Order{}, fmt.Errorf("%w: read %s: %w", domain.ErrParse, filepath.Base(path), err)
	}
	return Parse(path, data)
}
