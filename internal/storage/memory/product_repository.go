package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
)

// ProductRepository — in-memory каталог товаров.
type ProductRepository struct {
	mu    sync.RWMutex
	items map[string]domain.Product
}

// NewProductRepository возвращает пустой каталог.
func NewProductRepository() *ProductRepository {
	return &ProductRepository{items: make(map[string]domain.Product)}
}

// Put добавляет или заменяет товар.
func (r *ProductRepository) Put(product domain.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[product.ID] = product
}

// Get возвращает товар по ID.
func (r *ProductRepository) Get(id string) (domain.Product, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	product, ok := r.items[id]
	return product, ok
}

// FindAllByID возвращает найденные товары в порядке ids, каждый не более одного раза.
func (r *ProductRepository) FindAllByID(ctx context.Context, ids []string) ([]domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Product, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if product, ok := r.items[id]; ok {
			result = append(result, product)
		}
	}
	return result, nil
}

// UpdateQuantity применяет пакет целиком или не применяет ничего.
func (r *ProductRepository) UpdateQuantity(ctx context.Context, updates []domain.StockUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Сначала проверяем весь пакет, затем применяем.
	for _, u := range updates {
		current, ok := r.items[u.ProductID]
		if !ok {
			return fmt.Errorf("update product %s: %w", u.ProductID, domain.ErrStockConflict)
		}
		if current.Quantity != u.ExpectedQuantity {
			return fmt.Errorf("update product %s: expected %d, got %d: %w",
				u.ProductID, u.ExpectedQuantity, current.Quantity, domain.ErrStockConflict)
		}
	}

	now := time.Now().UTC()
	for _, u := range updates {
		product := r.items[u.ProductID]
		product.Quantity = u.Quantity
		product.UpdatedAt = now
		r.items[u.ProductID] = product
	}
	return nil
}

var _ domain.ProductCatalog = (*ProductRepository)(nil)
