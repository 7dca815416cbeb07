package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Бизнес-ошибки создания заказа. Все они возникают до любых изменений состояния.
var (
	// ErrCustomerNotFound — клиент с указанным идентификатором не найден.
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrNoProductsFound — ни один из запрошенных товаров не найден в каталоге.
	ErrNoProductsFound = errors.New("no products found")
	// ErrProductsPartiallyMissing — часть запрошенных товаров отсутствует в каталоге.
	ErrProductsPartiallyMissing = errors.New("some products were not found")
	// ErrInsufficientStock — запрошенное количество превышает остаток на складе.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrDuplicateProduct — один и тот же товар указан в запросе несколько раз.
	ErrDuplicateProduct = errors.New("duplicate product in request")
)

// Ошибки формы запроса и инвариантов заказа.
var (
	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = errors.New("customer_id is required")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отсутствующего идентификатора товара в позиции.
	ErrProductIDRequired = errors.New("product_id is required")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order amount does not match items sum")
)

// Инфраструктурные ошибки.
var (
	// ErrOrderNotFound возвращается, если заказ не найден в хранилище.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderConflict — заказ с таким ID уже существует.
	ErrOrderConflict = errors.New("order already exists")
	// ErrStockConflict — остаток товара изменился между чтением и списанием.
	ErrStockConflict = errors.New("stock changed concurrently")
	// ErrStockUpdateAfterOrder — заказ создан, но списать остатки не удалось.
	ErrStockUpdateAfterOrder = errors.New("order created but stock update failed")
	// ErrLockUnavailable — не удалось захватить блокировку товара.
	ErrLockUnavailable = errors.New("stock lock unavailable")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsBusinessError сообщает, относится ли ошибка к отказам бизнес-валидации
// (повтор запроса без изменения данных не поможет).
func IsBusinessError(err error) bool {
	switch {
	case errors.Is(err, ErrCustomerNotFound),
		errors.Is(err, ErrNoProductsFound),
		errors.Is(err, ErrProductsPartiallyMissing),
		errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrDuplicateProduct),
		errors.Is(err, ErrCustomerRequired),
		errors.Is(err, ErrItemsRequired),
		errors.Is(err, ErrProductIDRequired),
		errors.Is(err, ErrItemQtyInvalid),
		errors.Is(err, ErrItemPriceInvalid),
		errors.Is(err, ErrAmountMismatch):
		return true
	default:
		return false
	}
}

// IsStockConflict проверяет, является ли ошибка конфликтом остатков.
func IsStockConflict(err error) bool {
	return errors.Is(err, ErrStockConflict)
}

// ProductsMissingError перечисляет товары, которых нет в каталоге.
type ProductsMissingError struct {
	Missing []string
}

func (e *ProductsMissingError) Error() string {
	return fmt.Sprintf("%s: %s", ErrProductsPartiallyMissing, strings.Join(e.Missing, ", "))
}

func (e *ProductsMissingError) Unwrap() error {
	return ErrProductsPartiallyMissing
}

// InsufficientStockError описывает позицию, для которой не хватает остатка.
type InsufficientStockError struct {
	ProductID string
	Requested int32
	Available int32
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("%s: product %s requested %d, available %d",
		ErrInsufficientStock, e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// StockUpdateError возвращается, когда заказ уже сохранён, а списание остатков
// завершилось ошибкой. Order содержит созданный заказ для компенсации.
type StockUpdateError struct {
	Order Order
	Err   error
}

func (e *StockUpdateError) Error() string {
	return fmt.Sprintf("%s (order %s): %v", ErrStockUpdateAfterOrder, e.Order.ID, e.Err)
}

func (e *StockUpdateError) Unwrap() []error {
	return []error{ErrStockUpdateAfterOrder, e.Err}
}
