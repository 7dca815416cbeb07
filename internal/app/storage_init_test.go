package app

import (
	"context"
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordering/internal/storage/memory"
)

func TestInitRuntimeDependencies_Memory(t *testing.T) {
	t.Parallel()

	deps, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverMemory,
	}, log.WithField("test", "memory-storage"))
	if err != nil {
		t.Fatalf("initRuntimeDependencies(memory) failed: %v", err)
	}
	defer func() { _ = deps.Close() }()

	if deps.customers == nil || deps.catalog == nil || deps.orders == nil {
		t.Fatal("memory repositories must be initialized")
	}
	if deps.outbox == nil {
		t.Fatal("outbox should not be nil for memory storage")
	}
	if _, ok := deps.locker.(*memory.StockLocker); !ok {
		t.Fatalf("expected in-process locker without redis, got %T", deps.locker)
	}
	if deps.store != nil || deps.redis != nil {
		t.Fatal("memory storage must not open external connections")
	}
}

func TestInitRuntimeDependencies_PostgresRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverPostgres,
	}, log.WithField("test", "postgres-missing-dsn"))
	if err == nil {
		t.Fatal("expected error when postgres driver is selected without DSN")
	}
}

func TestInitRuntimeDependencies_UnsupportedDriver(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: "sqlite",
	}, log.WithField("test", "unsupported-driver"))
	if err == nil {
		t.Fatal("expected error for unsupported storage driver")
	}
}

func TestInitRuntimeDependencies_UnreachableRedis(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.RedisAddr = "127.0.0.1:1"

	_, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "redis-down"))
	if err == nil {
		t.Fatal("expected error when redis is unreachable")
	}
}

func TestRuntimeDependencies_CloseNil(t *testing.T) {
	t.Parallel()

	var deps *runtimeDependencies
	if err := deps.Close(); err != nil {
		t.Fatalf("closing nil dependencies must be a no-op, got %v", err)
	}
}
