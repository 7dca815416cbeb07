package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
)

// orderRepositoryInMemory — простая in-memory реализация OrderStore.
type orderRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Order
}

// NewOrderRepository возвращает in-memory хранилище для локальной разработки и тестов.
func NewOrderRepository() domain.OrderStore {
	return &orderRepositoryInMemory{
		items: make(map[string]domain.Order),
	}
}

// Create назначает идентификаторы и сохраняет заказ целиком под одной блокировкой.
func (r *orderRepositoryInMemory) Create(ctx context.Context, draft domain.OrderDraft) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}

	now := time.Now().UTC()
	lines := make([]domain.OrderLine, 0, len(draft.Lines))
	for _, line := range draft.Lines {
		line.ID = uuid.NewString()
		if line.CreatedAt.IsZero() {
			line.CreatedAt = now
		}
		lines = append(lines, line)
	}

	order := domain.Order{
		ID:          uuid.NewString(),
		CustomerID:  draft.Customer.ID,
		Lines:       lines,
		AmountMinor: draft.AmountMinor(),
		CreatedAt:   now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[order.ID]; exists {
		return domain.Order{}, domain.ErrOrderConflict
	}
	r.items[order.ID] = cloneOrder(order)
	return order, nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(ctx context.Context, id string) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// ListByCustomer возвращает заказы клиента, ограничивая выборку limit (если >0).
func (r *orderRepositoryInMemory) ListByCustomer(ctx context.Context, customerID string, limit int) ([]domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0, len(r.items))
	for _, order := range r.items {
		if order.CustomerID != customerID {
			continue
		}
		result = append(result, cloneOrder(order))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// cloneOrder копирует позиции, чтобы вызывающий код не мутировал хранилище.
func cloneOrder(order domain.Order) domain.Order {
	order.Lines = append([]domain.OrderLine(nil), order.Lines...)
	return order
}

var _ domain.OrderStore = (*orderRepositoryInMemory)(nil)
