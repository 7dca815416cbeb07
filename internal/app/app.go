package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/ordering/internal/health"
	"github.com/vladislavdragonenkov/ordering/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ordering/internal/metrics"
	"github.com/vladislavdragonenkov/ordering/internal/service/outbox"
	"github.com/vladislavdragonenkov/ordering/internal/tracing"
	"github.com/vladislavdragonenkov/ordering/internal/version"
)

// ServiceName задаёт имя сервиса в ресурсах трейсов.
const ServiceName = "order-service"

// Run поднимает хранилища, ретранслятор outbox в Kafka и HTTP-сервер метрик и health checks.
// Завершается при отмене ctx.
func Run(ctx context.Context, cfg Config) error {
	return run(ctx, cfg, CatalogSeed{})
}

// RunWithSeed аналогичен Run, но перед стартом загружает справочники.
func RunWithSeed(ctx context.Context, cfg Config, seed CatalogSeed) error {
	return run(ctx, cfg, seed)
}

func run(ctx context.Context, cfg Config, seed CatalogSeed) error {
	logger := log.WithFields(version.Fields()).WithField("component", "app")

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing(ServiceName))
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.WithError(err).Warn("failed to flush traces")
		}
	}()

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	if err := applyCatalogSeed(ctx, deps.seeder, seed); err != nil {
		return err
	}

	kafkaProducer, err := initKafkaProducer(cfg.Brokers(), logger)
	if err != nil {
		return err
	}
	defer closeKafka(kafkaProducer, logger)

	workerDone := make(chan struct{})
	if kafkaProducer != nil {
		worker := newOutboxWorker(cfg, deps, kafkaProducer, logger)
		go func() {
			defer close(workerDone)
			worker.Run(ctx)
		}()
	} else {
		logger.Warn("kafka brokers are not configured, outbox relay is disabled")
		close(workerDone)
	}

	healthHandler := newHealthHandler(deps)
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	<-ctx.Done()
	logger.Info("получен сигнал остановки, останавливаем сервис")

	select {
	case <-workerDone:
	case <-time.After(5 * time.Second):
		logger.Warn("outbox worker не остановился за отведённое время")
	}
	shutdownHTTP(metricsSrv, logger)

	return ctx.Err()
}

func newOutboxWorker(cfg Config, deps *runtimeDependencies, producer *kafka.Producer, logger *log.Entry) *outbox.Worker {
	return outbox.NewWorker(
		deps.outbox,
		kafka.NewOutboxPublisher(producer, cfg.OutboxTopic),
		outbox.WithLogger(logger.WithField("component", "outbox-relay")),
		outbox.WithMetrics(metrics.NewRelayMetrics()),
		outbox.WithDLQPublisher(kafka.NewDLQPublisher(producer)),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)
}

func newHealthHandler(deps *runtimeDependencies) *healthcheck.Handler {
	handler := healthcheck.NewHandler(version.GetVersion())
	if deps.store != nil {
		handler.RegisterChecker("postgres", healthcheck.NewFuncChecker("postgres", true, deps.pingPostgres))
	}
	if deps.redis != nil {
		// без redis заказы всё ещё защищены проверкой остатка при записи
		handler.RegisterChecker("redis", healthcheck.NewFuncChecker("redis", false, deps.pingRedis))
	}
	return handler
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus и health checks.
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
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
