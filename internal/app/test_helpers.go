package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ordertracker/internal/domain"
)

const importedOrderJSON = `{"order": {"order_date": 1758034800000, "type": "dine_in",
	"items": [{"name": "Soup", "quantity": 2, "price": 6.25}]}}`

// newTestOrder создаёт тестовый заказ для использования в тестах.
func newTestOrder(id int) domain.Order {
	order := domain.Order{
		ID:      id,
		Status:  domain.OrderStatusWaiting,
		Type:    domain.OrderTypeDelivery,
		Company: "FoodHub (JSON)",
		Date:    time.Date(2025, 9, 16, 12, 0, 0, 0, time.UTC),
	}
	order.AddItem(domain.FoodItem{Name: "Pizza", Quantity: 1, Price: 12})
	return order
}

// testConfig возвращает конфигурацию на временных каталогах и случайных портах.
func testConfig(t *testing.T) Config {
	t.Helper()

	cfg := DefaultConfig()
	cfg.ImportDir = filepath.Join(t.TempDir(), "import")
	cfg.SnapshotDir = filepath.Join(t.TempDir(), "saved")
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.QueueSize = 16
	cfg.GracePeriod = 10 * time.Millisecond
	cfg.ScanProbeDelay = 10 * time.Millisecond
	cfg.EventProbeDelay = 10 * time.Millisecond
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

