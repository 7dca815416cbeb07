package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/ordering/internal/tracing"
	"github.com/vladislavdragonenkov/ordering/internal/version"
)

// StorageDriver выбирает реализацию хранилища.
type StorageDriver string

const (
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverPostgres StorageDriver = "postgres"
)

// Config описывает настройки запуска сервиса заказов.
type Config struct {
	MetricsAddr string

	StorageDriver       StorageDriver
	PostgresDSN         string
	PostgresAutoMigrate bool

	KafkaBrokers string
	OutboxTopic  string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	// RedisAddr включает распределённую блокировку товаров; пусто: блокировка в памяти процесса.
	RedisAddr   string
	LockTTL     time.Duration
	LockMaxWait time.Duration

	// OTLPEndpoint задаёт host:port коллектора трейсов; при пустом значении трейсы не экспортируются.
	OTLPEndpoint string
	OTLPInsecure bool
}

// DefaultConfig возвращает конфигурацию для локального запуска.
func DefaultConfig() Config {
	return Config{
		MetricsAddr:         ":9090",
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		OutboxPollInterval:  time.Second,
		OutboxBatchSize:     100,
		OutboxMaxAttempts:   3,
		OutboxRetryDelay:    50 * time.Millisecond,
		LockTTL:             30 * time.Second,
		LockMaxWait:         5 * time.Second,
	}
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return fmt.Errorf("postgres storage driver requires PostgresDSN")
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.StorageDriver)
	}

	if c.OutboxBatchSize < 0 {
		return fmt.Errorf("outbox batch size must be >= 0, got %d", c.OutboxBatchSize)
	}
	if c.OutboxMaxAttempts < 0 {
		return fmt.Errorf("outbox max attempts must be >= 0, got %d", c.OutboxMaxAttempts)
	}
	if c.RedisAddr != "" && c.LockTTL <= 0 {
		return fmt.Errorf("redis lock requires positive LockTTL")
	}
	return nil
}

// Tracing возвращает параметры экспорта трейсов для сервиса serviceName.
func (c Config) Tracing(serviceName string) tracing.Config {
	return tracing.Config{
		Endpoint:       strings.TrimSpace(c.OTLPEndpoint),
		Insecure:       c.OTLPInsecure,
		ServiceName:    serviceName,
		ServiceVersion: version.GetVersion(),
	}
}

// Brokers возвращает список Kafka brokers без пустых элементов.
func (c Config) Brokers() []string {
	if strings.TrimSpace(c.KafkaBrokers) == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
