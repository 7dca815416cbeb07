package ordering

import (
	"errors"
	"time"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
)

// distinctProductIDs возвращает ID товаров в порядке запроса. Повтор товара
// считается ошибкой запроса: позиции одного товара не суммируются.
func distinctProductIDs(lines []domain.RequestedLine) ([]string, error) {
	ids := make([]string, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		if line.ProductID == "" {
			return nil, domain.ErrProductIDRequired
		}
		if _, ok := seen[line.ProductID]; ok {
			return nil, domain.ErrDuplicateProduct
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}
	return ids, nil
}

// checkStock проверяет все позиции до любых изменений.
func checkStock(lines []domain.RequestedLine, products map[string]domain.Product) error {
	for _, line := range lines {
		product := products[line.ProductID]
		if line.Quantity > product.Quantity {
			return &domain.InsufficientStockError{
				ProductID: line.ProductID,
				Requested: line.Quantity,
				Available: product.Quantity,
			}
		}
	}
	return nil
}

// normalize строит позиции заказа в порядке запроса с ценой из каталога.
func normalize(customer domain.Customer, lines []domain.RequestedLine, products map[string]domain.Product, now time.Time) domain.OrderDraft {
	orderLines := make([]domain.OrderLine, 0, len(lines))
	for _, line := range lines {
		orderLines = append(orderLines, domain.OrderLine{
			ProductID:  line.ProductID,
			Quantity:   line.Quantity,
			PriceMinor: products[line.ProductID].PriceMinor,
			CreatedAt:  now,
		})
	}
	return domain.OrderDraft{Customer: customer, Lines: orderLines}
}

func validateDraft(draft domain.OrderDraft) error {
	candidate := domain.Order{
		CustomerID:  draft.Customer.ID,
		Lines:       draft.Lines,
		AmountMinor: draft.AmountMinor(),
	}
	if errs := candidate.ValidateInvariants(); len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// rejectionReason возвращает метку причины отказа для метрик и логов.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrCustomerNotFound):
		return "customer_not_found"
	case errors.Is(err, domain.ErrNoProductsFound):
		return "no_products_found"
	case errors.Is(err, domain.ErrProductsPartiallyMissing):
		return "products_partially_missing"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrDuplicateProduct):
		return "duplicate_product"
	default:
		return "invalid_request"
	}
}
