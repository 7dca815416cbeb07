package domain

import (
	"context"
	"time"
)

// CustomerLookup ищет клиентов.
type CustomerLookup interface {
	// FindByID возвращает клиента или ErrCustomerNotFound.
	FindByID(ctx context.Context, id string) (Customer, error)
}

// ProductCatalog — каталог товаров с остатками.
type ProductCatalog interface {
	// FindAllByID возвращает только найденные товары; отсутствие ID ошибкой не считается.
	FindAllByID(ctx context.Context, ids []string) ([]Product, error)
	// UpdateQuantity атомарно применяет пакет обновлений остатков.
	// Возвращает ErrStockConflict, если остаток хотя бы одного товара отличается от ExpectedQuantity.
	UpdateQuantity(ctx context.Context, updates []StockUpdate) error
}

// OrderStore хранит заказы.
type OrderStore interface {
	// Create атомарно сохраняет заказ со всеми позициями и назначает идентификаторы.
	Create(ctx context.Context, draft OrderDraft) (Order, error)
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// ListByCustomer возвращает заказы клиента, новые первыми; limit<=0 — без ограничения.
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]Order, error)
}

// StockLocker сериализует создание заказов по товарам.
type StockLocker interface {
	// Lock захватывает блокировки всех productIDs и возвращает функцию освобождения.
	Lock(ctx context.Context, productIDs []string) (func(), error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// OrderStep задаёт константы шагов создания заказа для метрик/логов.
type OrderStep string

const (
	OrderStepCustomer  OrderStep = "customer"
	OrderStepProducts  OrderStep = "products"
	OrderStepStock     OrderStep = "stock"
	OrderStepPersist   OrderStep = "persist"
	OrderStepDecrement OrderStep = "decrement"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
