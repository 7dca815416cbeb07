package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
)

// CustomerRepository — in-memory справочник клиентов.
type CustomerRepository struct {
	mu    sync.RWMutex
	items map[string]domain.Customer
}

// NewCustomerRepository возвращает пустой справочник клиентов.
func NewCustomerRepository() *CustomerRepository {
	return &CustomerRepository{items: make(map[string]domain.Customer)}
}

// Put добавляет или заменяет клиента.
func (r *CustomerRepository) Put(customer domain.Customer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[customer.ID] = customer
}

// FindByID возвращает клиента или ErrCustomerNotFound.
func (r *CustomerRepository) FindByID(ctx context.Context, id string) (domain.Customer, error) {
	if err := ctx.Err(); err != nil {
		return domain.Customer{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	customer, ok := r.items[id]
	if !ok {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}
	return customer, nil
}

var _ domain.CustomerLookup = (*CustomerRepository)(nil)
