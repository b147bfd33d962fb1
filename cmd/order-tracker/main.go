package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordertracker/internal/app"
	"github.com/vladislavdragonenkov/ordertracker/internal/version"
)

const (
	envImportDir           = "TRACKER_IMPORT_DIR"
	envSnapshotDir         = "TRACKER_SNAPSHOT_DIR"
	envHTTPAddr            = "TRACKER_HTTP_ADDR"
	envMetricsAddr         = "TRACKER_METRICS_ADDR"
	envGRPCAddr            = "TRACKER_GRPC_ADDR"
	envKafkaBrokers        = "TRACKER_KAFKA_BROKERS"
	envKafkaTopic          = "TRACKER_KAFKA_TOPIC"
	envStorageDriver       = "TRACKER_STORAGE_DRIVER"
	envPostgresDSN         = "TRACKER_POSTGRES_DSN"
	envPostgresAutoMigrate = "TRACKER_POSTGRES_AUTO_MIGRATE"
	envPurgeImports        = "TRACKER_PURGE_IMPORTS"
	envQueueSize           = "TRACKER_QUEUE_SIZE"
	envGracePeriod         = "TRACKER_GRACE_PERIOD"
	envScanProbeDelay      = "TRACKER_SCAN_PROBE_DELAY"
	envEventProbeDelay     = "TRACKER_EVENT_PROBE_DELAY"
	envShutdownTimeout     = "TRACKER_SHUTDOWN_TIMEOUT"
	envLogLevel            = "TRACKER_LOG_LEVEL"
)

type envLookup func(key string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(lookup envLookup) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)
	if raw, ok := lookup(envLogLevel); ok {
		if level, err := log.ParseLevel(strings.TrimSpace(raw)); err == nil {
			log.SetLevel(level)
		}
	}
}

// readConfigFromEnv накладывает переменные окружения на DefaultConfig.
// Некорректное значение оставляет значение по умолчанию и даёт предупреждение.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string

	setString := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	setBool := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseBool(v)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", key, err))
			return
		}
		*dst = parsed
	}
	setDuration := func(key string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseDuration(v, valid, rule)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", key, err))
			return
		}
		*dst = parsed
	}

	setString(envImportDir, &cfg.ImportDir)
	setString(envSnapshotDir, &cfg.SnapshotDir)
	setString(envHTTPAddr, &cfg.HTTPAddr)
	setString(envMetricsAddr, &cfg.MetricsAddr)
	setString(envGRPCAddr, &cfg.GRPCAddr)
	setString(envKafkaBrokers, &cfg.KafkaBrokers)
	setString(envKafkaTopic, &cfg.KafkaTopic)
	setString(envPostgresDSN, &cfg.PostgresDSN)
	if v, ok := lookup(envStorageDriver); ok && strings.TrimSpace(v) != "" {
		cfg.StorageDriver = strings.ToLower(strings.TrimSpace(v))
	}

	setBool(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	setBool(envPurgeImports, &cfg.PurgeImports)

	if v, ok := lookup(envQueueSize); ok && strings.TrimSpace(v) != "" {
		parsed, err := parseInt(v, func(n int) bool { return n > 0 }, "must be > 0")
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", envQueueSize, err))
		} else {
			cfg.QueueSize = parsed
		}
	}

	nonNegative := func(d time.Duration) bool { return d >= 0 }
	positive := func(d time.Duration) bool { return d > 0 }
	setDuration(envGracePeriod, &cfg.GracePeriod, nonNegative, "must be >= 0")
	setDuration(envScanProbeDelay, &cfg.ScanProbeDelay, nonNegative, "must be >= 0")
	setDuration(envEventProbeDelay, &cfg.EventProbeDelay, nonNegative, "must be >= 0")
	setDuration(envShutdownTimeout, &cfg.ShutdownTimeout, positive, "must be > 0")

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid bool value %q", raw)
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q: %w", raw, err)
	}
	if !valid(value) {
		return 0, fmt.Errorf("value %d %s", value, rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if !valid(value) {
		return 0, fmt.Errorf("value %s %s", value, rule)
	}
	return value, nil
}

func main() {
	// .env необязателен: в контейнере переменные приходят из окружения.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("не удалось прочитать .env")
	}

	setupLogger(os.LookupEnv)
	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, warning := range warnings {
		log.Warnf("некорректная переменная окружения, используем значение по умолчанию: %s", warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(version.Fields()).WithFields(log.Fields{
		"import_dir":     cfg.ImportDir,
		"snapshot_dir":   cfg.SnapshotDir,
		"http_addr":      cfg.HTTPAddr,
		"grpc_addr":      cfg.GRPCAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
	}).Info("запускаем OrderTracker")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("OrderTracker остановлен")
}
