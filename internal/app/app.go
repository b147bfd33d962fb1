package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/vladislavdragonenkov/ordertracker/internal/health"
	"github.com/vladislavdragonenkov/ordertracker/internal/metrics"
	"github.com/vladislavdragonenkov/ordertracker/internal/service/httpapi"
	"github.com/vladislavdragonenkov/ordertracker/internal/version"
	"github.com/vladislavdragonenkov/ordertracker/internal/watcher"
)

const (
	// StorageDriverMemory хранит timeline в памяти процесса.
	StorageDriverMemory = "memory"
	// StorageDriverPostgres хранит timeline в PostgreSQL.
	StorageDriverPostgres = "postgres"

	// GRPCWatcherService - имя сервиса в grpc.health.v1, отражающее состояние watcher.
	GRPCWatcherService = "ordertracker.watcher"

	healthSyncInterval = 5 * time.Second
	grpcStopTimeout    = 5 * time.Second
)

// Config описывает настройки запуска трекера.
type Config struct {
	ImportDir   string
	SnapshotDir string

	HTTPAddr    string
	MetricsAddr string
	GRPCAddr    string

	KafkaBrokers string
	KafkaTopic   string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	PurgeImports    bool
	QueueSize       int
	GracePeriod     time.Duration
	ScanProbeDelay  time.Duration
	EventProbeDelay time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig возвращает настройки по умолчанию.
func DefaultConfig() Config {
	return Config{
		ImportDir:           "orderFiles/importOrders",
		SnapshotDir:         "orderFiles/savedOrders",
		HTTPAddr:            ":8080",
		MetricsAddr:         ":9090",
		GRPCAddr:            ":50051",
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		PurgeImports:        true,
		QueueSize:           256,
		GracePeriod:         watcher.DefaultGracePeriod,
		ScanProbeDelay:      watcher.ScanProbeDelay,
		EventProbeDelay:     watcher.EventProbeDelay,
		ShutdownTimeout:     5 * time.Second,
	}
}

// Run поднимает трекер и блокируется до отмены ctx или отказа сервера.
// Ошибка постановки наблюдения за каталогом возвращается сразу.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	trackerMetrics := metrics.NewTrackerMetrics()

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	// Без Kafka трекер работает дальше, ошибка уже залогирована.
	producer, _ := initKafkaProducer(cfg, logger)
	defer closeKafka(producer, logger)

	tr, err := newTracker(ctx, cfg, deps, producer, trackerMetrics, logger)
	if err != nil {
		return err
	}
	if err := tr.start(ctx); err != nil {
		tr.shutdown(cfg.ShutdownTimeout)
		return err
	}

	healthHandler := newHealthHandler(cfg, deps, tr)
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	api := httpapi.NewServer(tr.registry, tr.loop,
		httpapi.WithHistory(tr.recorder),
		httpapi.WithFailures(tr.pipeline),
		httpapi.WithLogger(logger.WithField("layer", "http")),
	)
	apiSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: api.Handler(), ReadHeaderTimeout: 5 * time.Second}

	grpcServer, healthServer := newGRPCServer(logger)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		shutdownHTTP(metricsSrv, logger)
		tr.shutdown(cfg.ShutdownTimeout)
		return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("gRPC сервер слушает %s", cfg.GRPCAddr)
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http api: %w", err)
		}
	}()

	syncCtx, stopSync := context.WithCancel(ctx)
	defer stopSync()
	go syncGRPCHealth(syncCtx, healthServer, healthHandler, healthSyncInterval)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем трекер")
		runErr = ctx.Err()
	case err := <-errCh:
		if !errors.Is(err, grpc.ErrServerStopped) {
			runErr = err
		}
	}

	stopSync()
	healthServer.Shutdown()
	stopGRPC(grpcServer, logger)
	shutdownHTTP(apiSrv, logger)
	tr.shutdown(cfg.ShutdownTimeout)
	shutdownHTTP(metricsSrv, logger)
	return runErr
}

func newHealthHandler(cfg Config, deps *runtimeDependencies, tr *tracker) *healthcheck.Handler {
	handler := healthcheck.NewHandler(version.GetVersion())
	handler.RegisterChecker("import_dir", healthcheck.NewDirectoryChecker("import_dir", cfg.ImportDir))
	handler.RegisterChecker("snapshot_dir", healthcheck.NewDirectoryChecker("snapshot_dir", cfg.SnapshotDir))
	handler.RegisterChecker("watcher", healthcheck.NewDegradedChecker("watcher", func() error {
		if state := tr.watcher.State(); state != watcher.StateRunning {
			return fmt.Errorf("watcher is %s", state)
		}
		return nil
	}))
	if deps.storageChecker != nil {
		handler.RegisterChecker("storage", deps.storageChecker)
	}
	return handler
}

func newGRPCServer(logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)
	if err := prometheus.Register(grpcMetrics); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok2 := are.ExistingCollector.(*promgrpc.ServerMetrics); ok2 {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)
	grpcMetrics.InitializeMetrics(grpcServer)
	return grpcServer, healthServer
}

// syncGRPCHealth переносит итог HTTP health-проверок в grpc.health.v1.
func syncGRPCHealth(ctx context.Context, server *health.Server, handler *healthcheck.Handler, interval time.Duration) {
	apply := func() {
		overall, checks := handler.Evaluate()
		server.SetServingStatus("", servingStatus(overall != healthcheck.StatusUnhealthy))
		server.SetServingStatus(GRPCWatcherService, servingStatus(checks["watcher"].Status == healthcheck.StatusHealthy))
	}
	apply()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			apply()
		}
	}
}

func servingStatus(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	if ok {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

func stopGRPC(server *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(grpcStopTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		server.Stop()
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics и health-проверки.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/readyz, %s/livez", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
