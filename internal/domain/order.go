package domain

import "time"

// RequestedLine — позиция из запроса клиента.
type RequestedLine struct {
	ProductID string
	Quantity  int32
}

// OrderLine представляет одну позицию заказа.
type OrderLine struct {
	// ID позиции назначается хранилищем.
	ID        string
	ProductID string
	Quantity  int32
	// PriceMinor — цена единицы, зафиксированная в момент создания заказа.
	PriceMinor int64
	CreatedAt  time.Time
}

// OrderDraft — нормализованный заказ до сохранения.
type OrderDraft struct {
	Customer Customer
	Lines    []OrderLine
}

// AmountMinor считает сумму позиций черновика.
func (d OrderDraft) AmountMinor() int64 {
	return sumLines(d.Lines)
}

// Order агрегирует заказ клиента и его позиции.
type Order struct {
	ID          string
	CustomerID  string
	Lines       []OrderLine
	AmountMinor int64
	CreatedAt   time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if len(o.Lines) == 0 {
		errs = append(errs, ErrItemsRequired)
	}

	seen := make(map[string]struct{}, len(o.Lines))
	for _, line := range o.Lines {
		if line.ProductID == "" {
			errs = append(errs, ErrProductIDRequired)
		}
		if _, ok := seen[line.ProductID]; ok {
			errs = append(errs, ErrDuplicateProduct)
		}
		seen[line.ProductID] = struct{}{}
		if line.Quantity <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if line.PriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
	}

	// Сверяем сумму заказа с суммой позиций: qty * price.
	if sumLines(o.Lines) != o.AmountMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}

// ProductIDs возвращает идентификаторы товаров в порядке позиций.
func (o *Order) ProductIDs() []string {
	ids := make([]string, 0, len(o.Lines))
	for _, line := range o.Lines {
		ids = append(ids, line.ProductID)
	}
	return ids
}

func sumLines(lines []OrderLine) int64 {
	var total int64
	for _, line := range lines {
		total += int64(line.Quantity) * line.PriceMinor
	}
	return total
}
