package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
	"github.com/vladislavdragonenkov/ordering/internal/storage/memory"
	"github.com/vladislavdragonenkov/ordering/internal/storage/postgres"
	"github.com/vladislavdragonenkov/ordering/internal/storage/redislock"
)

// runtimeDependencies собирает хранилища и блокировки, выбранные конфигурацией.
type runtimeDependencies struct {
	customers domain.CustomerLookup
	catalog   domain.ProductCatalog
	orders    domain.OrderStore
	outbox    domain.OutboxRepository
	locker    domain.StockLocker
	seeder    catalogSeeder

	store *postgres.Store
	redis *redis.Client
}

// catalogSeeder загружает справочники клиентов и товаров.
type catalogSeeder interface {
	UpsertCustomer(ctx context.Context, customer domain.Customer) error
	UpsertProduct(ctx context.Context, product domain.Product) error
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	deps := &runtimeDependencies{}
	switch cfg.StorageDriver {
	case StorageDriverMemory:
		customers := memory.NewCustomerRepository()
		products := memory.NewProductRepository()
		deps.customers = customers
		deps.catalog = products
		deps.orders = memory.NewOrderRepository()
		deps.outbox = memory.NewOutboxRepository()
		deps.seeder = memorySeeder{customers: customers, products: products}
		logger.Info("using in-memory storage")
	case StorageDriverPostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
		}
		customers := postgres.NewCustomerRepository(store)
		products := postgres.NewProductRepository(store)
		deps.store = store
		deps.customers = customers
		deps.catalog = products
		deps.orders = postgres.NewOrderRepository(store)
		deps.outbox = postgres.NewOutboxRepository(store)
		deps.seeder = postgresSeeder{customers: customers, products: products}
		logger.WithField("auto_migrate", cfg.PostgresAutoMigrate).Info("using postgres storage")
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			deps.Close()
			return nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
		}
		deps.redis = client
		deps.locker = redislock.NewStockLocker(client, cfg.LockTTL,
			redislock.WithMaxWait(cfg.LockMaxWait),
			redislock.WithLogger(logger.WithField("component", "redis-stock-locker")),
		)
		logger.WithField("redis_addr", cfg.RedisAddr).Info("using redis stock locks")
	} else {
		deps.locker = memory.NewStockLocker()
	}

	return deps, nil
}

// pingPostgres и pingRedis используются health-проверками.
func (d *runtimeDependencies) pingPostgres(ctx context.Context) error {
	return d.store.Ping(ctx)
}

func (d *runtimeDependencies) pingRedis(ctx context.Context) error {
	return d.redis.Ping(ctx).Err()
}

// Close освобождает подключения.
func (d *runtimeDependencies) Close() error {
	if d == nil {
		return nil
	}
	var errs []error
	if d.redis != nil {
		errs = append(errs, d.redis.Close())
	}
	if d.store != nil {
		errs = append(errs, d.store.Close())
	}
	return errors.Join(errs...)
}

type memorySeeder struct {
	customers *memory.CustomerRepository
	products  *memory.ProductRepository
}

func (s memorySeeder) UpsertCustomer(_ context.Context, customer domain.Customer) error {
	s.customers.Put(customer)
	return nil
}

func (s memorySeeder) UpsertProduct(_ context.Context, product domain.Product) error {
	s.products.Put(product)
	return nil
}

type postgresSeeder struct {
	customers *postgres.CustomerRepository
	products  *postgres.ProductRepository
}

func (s postgresSeeder) UpsertCustomer(ctx context.Context, customer domain.Customer) error {
	return s.customers.Upsert(ctx, customer)
}

func (s postgresSeeder) UpsertProduct(ctx context.Context, product domain.Product) error {
	return s.products.Upsert(ctx, product)
}
