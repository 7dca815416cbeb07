package app

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
	"github.com/vladislavdragonenkov/ordering/internal/metrics"
	"github.com/vladislavdragonenkov/ordering/internal/service/ordering"
)

// Ordering держит собранный сценарий создания заказа с его хранилищами.
type Ordering struct {
	Workflow *ordering.Workflow
	Orders   domain.OrderStore
	Catalog  domain.ProductCatalog

	deps   *runtimeDependencies
	logger *log.Entry
}

// OpenOrdering поднимает хранилища по конфигурации, загружает справочники из seed
// (если он не пуст) и собирает Workflow.
func OpenOrdering(ctx context.Context, cfg Config, seed CatalogSeed, logger *log.Entry) (*Ordering, error) {
	if logger == nil {
		logger = log.WithField("component", "ordering-app")
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := applyCatalogSeed(ctx, deps.seeder, seed); err != nil {
		_ = deps.Close()
		return nil, err
	}

	return &Ordering{
		Workflow: newWorkflow(deps, logger, deps.locker),
		Orders:   deps.orders,
		Catalog:  deps.catalog,
		deps:     deps,
		logger:   logger,
	}, nil
}

// Close освобождает подключения к хранилищам.
func (o *Ordering) Close() error {
	return o.deps.Close()
}

// NewUnlockedWorkflow собирает Workflow на тех же хранилищах, но без блокировки товаров.
// Гонки за остаток тогда отсекает только проверка ExpectedQuantity при записи.
func NewUnlockedWorkflow(o *Ordering) *ordering.Workflow {
	return newWorkflow(o.deps, o.logger, nil)
}

func newWorkflow(deps *runtimeDependencies, logger *log.Entry, locker domain.StockLocker) *ordering.Workflow {
	options := []ordering.Option{
		ordering.WithLogger(logger.WithField("component", "ordering")),
		ordering.WithMetrics(metrics.NewOrderMetrics()),
		ordering.WithOutbox(deps.outbox),
	}
	if locker != nil {
		options = append(options, ordering.WithLocker(locker))
	}
	return ordering.NewWorkflow(deps.customers, deps.catalog, deps.orders, options...)
}
