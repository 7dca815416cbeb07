package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
)

// ProductRepository реализует ProductCatalog.
type ProductRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт репозиторий каталога.
func NewProductRepository(store *Store) *ProductRepository {
	return &ProductRepository{db: store.DB()}
}

// FindAllByID выбирает найденные товары одним запросом в порядке ids.
func (r *ProductRepository) FindAllByID(ctx context.Context, ids []string) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.price_minor, p.quantity, p.updated_at
		FROM products p
		JOIN unnest($1::text[]) WITH ORDINALITY AS req(id, ord) ON req.id = p.id
		ORDER BY req.ord
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.PriceMinor, &p.Quantity, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}

	return products, nil
}

// UpdateQuantity применяет пакет в одной транзакции. Строка обновляется только
// если текущий остаток равен ExpectedQuantity, иначе весь пакет откатывается
// с domain.ErrStockConflict.
func (r *ProductRepository) UpdateQuantity(ctx context.Context, updates []domain.StockUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, u := range updates {
			res, err := tx.ExecContext(ctx, `
				UPDATE products
				SET quantity = $2,
				    updated_at = $4
				WHERE id = $1
				  AND quantity = $3
			`, u.ProductID, u.Quantity, u.ExpectedQuantity, now)
			if err != nil {
				return fmt.Errorf("update product %s quantity: %w", u.ProductID, err)
			}

			affected, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			if affected == 0 {
				return fmt.Errorf("update product %s: %w", u.ProductID, domain.ErrStockConflict)
			}
		}
		return nil
	})
}

// Upsert создаёт или обновляет товар вместе с остатком.
func (r *ProductRepository) Upsert(ctx context.Context, product domain.Product) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO products (id, name, price_minor, quantity, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    price_minor = EXCLUDED.price_minor,
		    quantity = EXCLUDED.quantity,
		    updated_at = EXCLUDED.updated_at
	`, product.ID, product.Name, product.PriceMinor, product.Quantity, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

var _ domain.ProductCatalog = (*ProductRepository)(nil)
