package domain

import "time"

// Product — позиция каталога с текущей ценой и остатком на складе.
type Product struct {
	ID   string
	Name string
	// PriceMinor — цена за единицу в минимальных денежных единицах (например, центы).
	PriceMinor int64
	// Quantity — доступный остаток.
	Quantity  int32
	UpdatedAt time.Time
}

// StockUpdate задаёт новый остаток товара.
type StockUpdate struct {
	ProductID string
	Quantity  int32
	// ExpectedQuantity — остаток, прочитанный перед проверкой. Хранилище применяет
	// обновление только если текущий остаток совпадает с ним.
	ExpectedQuantity int32
}
