package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderStore.
func NewOrderRepository(store *Store) domain.OrderStore {
	return &orderRepository{db: store.DB()}
}

// Create сохраняет заголовок и позиции заказа в одной транзакции.
func (r *orderRepository) Create(ctx context.Context, draft domain.OrderDraft) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	order := domain.Order{
		ID:          uuid.NewString(),
		CustomerID:  draft.Customer.ID,
		Lines:       make([]domain.OrderLine, 0, len(draft.Lines)),
		AmountMinor: draft.AmountMinor(),
		CreatedAt:   now,
	}
	for _, line := range draft.Lines {
		line.ID = uuid.NewString()
		if line.CreatedAt.IsZero() {
			line.CreatedAt = now
		}
		order.Lines = append(order.Lines, line)
	}

	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO orders (id, customer_id, amount_minor, created_at)
			VALUES ($1,$2,$3,$4)
		`, order.ID, order.CustomerID, order.AmountMinor, order.CreatedAt); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrOrderConflict
			}
			if isForeignKeyViolation(err) {
				return fmt.Errorf("insert order: %w", domain.ErrCustomerNotFound)
			}
			return fmt.Errorf("insert order: %w", err)
		}

		for i, line := range order.Lines {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO order_lines (
					id, order_id, position, product_id, quantity, price_minor, created_at
				) VALUES ($1,$2,$3,$4,$5,$6,$7)
			`,
				line.ID, order.ID, i, line.ProductID, line.Quantity, line.PriceMinor, line.CreatedAt,
			); err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("insert order line %s: %w", line.ProductID, domain.ErrDuplicateProduct)
				}
				return fmt.Errorf("insert order line: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	return order, nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var order domain.Order
	err := r.db.QueryRowContext(ctx, `
		SELECT id, customer_id, amount_minor, created_at
		FROM orders
		WHERE id = $1
	`, id).Scan(&order.ID, &order.CustomerID, &order.AmountMinor, &order.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	lines, err := r.loadLines(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Lines = lines

	return order, nil
}

func (r *orderRepository) ListByCustomer(ctx context.Context, customerID string, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `
		SELECT id, customer_id, amount_minor, created_at
		FROM orders
		WHERE customer_id = $1
		ORDER BY created_at DESC, id DESC
	`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $2", customerID, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query, customerID)
	}
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(&order.ID, &order.CustomerID, &order.AmountMinor, &order.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	rows.Close()

	for i := range orders {
		lines, err := r.loadLines(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Lines = lines
	}

	return orders, nil
}

func (r *orderRepository) loadLines(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, quantity, price_minor, created_at
		FROM order_lines
		WHERE order_id = $1
		ORDER BY position ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order lines: %w", err)
	}
	defer rows.Close()

	lines := make([]domain.OrderLine, 0)
	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.ID, &line.ProductID, &line.Quantity, &line.PriceMinor, &line.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order lines: %w", err)
	}

	return lines, nil
}

var _ domain.OrderStore = (*orderRepository)(nil)
