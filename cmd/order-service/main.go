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

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordering/internal/app"
)

const (
	envMetricsAddr         = "ORDERING_METRICS_ADDR"
	envStorageDriver       = "ORDERING_STORAGE_DRIVER"
	envPostgresDSN         = "ORDERING_POSTGRES_DSN"
	envPostgresAutoMigrate = "ORDERING_POSTGRES_AUTO_MIGRATE"
	envKafkaBrokers        = "ORDERING_KAFKA_BROKERS"
	envOutboxTopic         = "ORDERING_OUTBOX_TOPIC"
	envOutboxPollInterval  = "ORDERING_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize     = "ORDERING_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts   = "ORDERING_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay    = "ORDERING_OUTBOX_RETRY_DELAY"
	envRedisAddr           = "ORDERING_REDIS_ADDR"
	envLockTTL             = "ORDERING_LOCK_TTL"
	envLockMaxWait         = "ORDERING_LOCK_MAX_WAIT"
	envCatalogSeed         = "ORDERING_CATALOG_SEED"
	envOTLPEndpoint        = "ORDERING_OTLP_ENDPOINT"
	envOTLPInsecure        = "ORDERING_OTLP_INSECURE"
)

type envLookup func(key string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)
}

// readConfigFromEnv накладывает переменные окружения на DefaultConfig.
// Некорректные значения не прерывают запуск: остаётся значение по умолчанию и возвращается предупреждение.
func readConfigFromEnv(lookup envLookup) (app.Config, []error) {
	cfg := app.DefaultConfig()
	var warnings []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	warn := func(key, value string, err error) {
		warnings = append(warnings, fmt.Errorf("%s=%q: %w", key, value, err))
	}

	str(envMetricsAddr, &cfg.MetricsAddr)
	str(envPostgresDSN, &cfg.PostgresDSN)
	str(envKafkaBrokers, &cfg.KafkaBrokers)
	str(envOutboxTopic, &cfg.OutboxTopic)
	str(envRedisAddr, &cfg.RedisAddr)
	str(envOTLPEndpoint, &cfg.OTLPEndpoint)

	if v, ok := lookup(envStorageDriver); ok && strings.TrimSpace(v) != "" {
		cfg.StorageDriver = app.StorageDriver(strings.ToLower(strings.TrimSpace(v)))
	}

	if v, ok := lookup(envPostgresAutoMigrate); ok {
		if parsed, err := parseBool(v); err != nil {
			warn(envPostgresAutoMigrate, v, err)
		} else {
			cfg.PostgresAutoMigrate = parsed
		}
	}
	if v, ok := lookup(envOTLPInsecure); ok {
		if parsed, err := parseBool(v); err != nil {
			warn(envOTLPInsecure, v, err)
		} else {
			cfg.OTLPInsecure = parsed
		}
	}

	positive := func(v int) bool { return v > 0 }
	for key, dst := range map[string]*int{
		envOutboxBatchSize:   &cfg.OutboxBatchSize,
		envOutboxMaxAttempts: &cfg.OutboxMaxAttempts,
	} {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		if parsed, err := parseInt(v, positive, "must be > 0"); err != nil {
			warn(key, v, err)
		} else {
			*dst = parsed
		}
	}

	durations := []struct {
		key   string
		dst   *time.Duration
		valid func(time.Duration) bool
		rule  string
	}{
		{envOutboxPollInterval, &cfg.OutboxPollInterval, func(d time.Duration) bool { return d > 0 }, "must be > 0"},
		{envOutboxRetryDelay, &cfg.OutboxRetryDelay, func(d time.Duration) bool { return d >= 0 }, "must be >= 0"},
		{envLockTTL, &cfg.LockTTL, func(d time.Duration) bool { return d > 0 }, "must be > 0"},
		{envLockMaxWait, &cfg.LockMaxWait, func(d time.Duration) bool { return d > 0 }, "must be > 0"},
	}
	for _, d := range durations {
		v, ok := lookup(d.key)
		if !ok {
			continue
		}
		if parsed, err := parseDuration(v, d.valid, d.rule); err != nil {
			warn(d.key, v, err)
		} else {
			*d.dst = parsed
		}
	}

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value")
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if !valid(value) {
		return 0, errors.New(rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if !valid(value) {
		return 0, errors.New(rule)
	}
	return value, nil
}

func main() {
	setupLogger()
	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, w := range warnings {
		log.WithError(w).Warn("некорректное значение переменной окружения, используем значение по умолчанию")
	}

	var seed app.CatalogSeed
	if path := strings.TrimSpace(os.Getenv(envCatalogSeed)); path != "" {
		loaded, err := app.LoadCatalogSeed(path)
		if err != nil {
			log.WithError(err).Fatal("не удалось загрузить справочники")
		}
		seed = loaded
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"kafka_brokers":  cfg.KafkaBrokers,
		"redis_addr":     cfg.RedisAddr,
	}).Info("запускаем ordering service")

	if err := app.RunWithSeed(ctx, cfg, seed); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("ordering service остановлен")
}
