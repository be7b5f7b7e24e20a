package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/GustavoSabel/fullcycle-desafios-03-ddd-order-repository/internal/domain"
	healthcheck "github.com/GustavoSabel/fullcycle-desafios-03-ddd-order-repository/internal/health"
	"github.com/GustavoSabel/fullcycle-desafios-03-ddd-order-repository/internal/messaging/kafka"
	"github.com/GustavoSabel/fullcycle-desafios-03-ddd-order-repository/internal/service/outbox"
	"github.com/GustavoSabel/fullcycle-desafios-03-ddd-order-repository/internal/storage/memory"
	"github.com/GustavoSabel/fullcycle-desafios-03-ddd-order-repository/internal/storage/postgres"
	"github.com/GustavoSabel/fullcycle-desafios-03-ddd-order-repository/internal/version"
)

// Config описывает настройки запуска приложения.
type Config struct {
	// PostgresDSN — DSN хранилища заказов. Пустое значение переключает
	// приложение на in-memory хранилище (локальная разработка).
	PostgresDSN string
	// KafkaBrokers — список брокеров для публикации outbox-событий.
	// Пустой список отключает публикацию: события копятся в outbox.
	KafkaBrokers []string
	// MetricsAddr — адрес HTTP-сервера метрик и health check-ов.
	MetricsAddr string
	// OutboxTopic — topic для событий заказов; пустое значение
	// означает topic по умолчанию.
	OutboxTopic string
}

// DefaultConfig возвращает базовую конфигурацию: in-memory хранилище,
// без Kafka, метрики на :9090.
func DefaultConfig() Config {
	return Config{
		MetricsAddr: ":9090",
	}
}

// Run собирает зависимости приложения и блокируется до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	var (
		orderRepo  domain.OrderRepository
		outboxRepo domain.OutboxRepository
	)

	healthHandler := healthcheck.NewHandler(version.String())

	if cfg.PostgresDSN != "" {
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := store.Close(); closeErr != nil {
				logger.WithError(closeErr).Warn("failed to close postgres store")
			}
		}()

		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}

		orderRepo = postgres.NewOrderRepository(store)
		outboxRepo = postgres.NewOutboxRepository(store)

		healthHandler.RegisterChecker("postgres", healthcheck.NewCheckFunc("postgres", func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return store.Ping(pingCtx)
		}))

		logger.Info("используется postgres хранилище заказов")
	} else {
		orderRepo = memory.NewOrderRepository()
		outboxRepo = memory.NewOutboxRepository()
		logger.Info("используется in-memory хранилище заказов")
	}

	orders, err := orderRepo.FindAll()
	if err != nil {
		return err
	}
	logger.WithField("orders", len(orders)).Info("хранилище заказов готово")

	// Инициализация Kafka producer (опционально)
	var kafkaProducer *kafka.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers)
		if err != nil {
			logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		} else {
			kafkaProducer = producer
			logger.WithField("brokers", cfg.KafkaBrokers).Info("kafka producer initialized")
		}
	}

	if kafkaProducer != nil {
		publisher := kafka.NewOutboxPublisher(kafkaProducer, cfg.OutboxTopic)
		worker := outbox.NewWorker(outboxRepo, publisher,
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		)
		go worker.Run(ctx)
	} else {
		logger.Info("kafka не настроен: события остаются в outbox")
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	<-ctx.Done()
	logger.Info("получен сигнал остановки, завершаем работу")

	shutdownHTTP(metricsSrv, logger)

	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			logger.WithError(err).Warn("failed to close kafka producer")
		} else {
			logger.Info("kafka producer closed")
		}
	}

	return ctx.Err()
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
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
