package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
)

func TestCustomerRepository_PostgresFindByID(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedCatalogForIntegrationTest(t, store)
	repo := NewCustomerRepository(store)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	customer, err := repo.FindByID(ctx, "C1")
	if err != nil {
		t.Fatalf("find customer: %v", err)
	}
	if customer.Name != "Customer One" || customer.Email != "c1@example.com" {
		t.Fatalf("unexpected customer: %+v", customer)
	}

	if _, err := repo.FindByID(ctx, "C404"); !errors.Is(err, domain.ErrCustomerNotFound) {
		t.Fatalf("expected ErrCustomerNotFound, got %v", err)
	}
}

func TestProductRepository_PostgresFindAllByID(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedCatalogForIntegrationTest(t, store)
	repo := NewProductRepository(store)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	products, err := repo.FindAllByID(ctx, []string{"P2", "X1", "P1"})
	if err != nil {
		t.Fatalf("find products: %v", err)
	}
	if len(products) != 2 || products[0].ID != "P2" || products[1].ID != "P1" {
		t.Fatalf("unexpected products: %+v", products)
	}
	if products[1].PriceMinor != 1000 || products[1].Quantity != 5 {
		t.Fatalf("unexpected product P1: %+v", products[1])
	}

	none, err := repo.FindAllByID(ctx, []string{"X1", "X2"})
	if err != nil {
		t.Fatalf("find missing products: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no products, got %+v", none)
	}
}

func TestProductRepository_PostgresUpdateQuantityCompareAndSet(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedCatalogForIntegrationTest(t, store)
	repo := NewProductRepository(store)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := repo.UpdateQuantity(ctx, []domain.StockUpdate{
		{ProductID: "P1", Quantity: 2, ExpectedQuantity: 5},
		{ProductID: "P2", Quantity: 0, ExpectedQuantity: 2},
	}); err != nil {
		t.Fatalf("update quantity: %v", err)
	}

	err := repo.UpdateQuantity(ctx, []domain.StockUpdate{
		{ProductID: "P1", Quantity: 1, ExpectedQuantity: 2},
		{ProductID: "P2", Quantity: 5, ExpectedQuantity: 2},
	})
	if !errors.Is(err, domain.ErrStockConflict) {
		t.Fatalf("expected ErrStockConflict, got %v", err)
	}

	products, err := repo.FindAllByID(ctx, []string{"P1", "P2"})
	if err != nil {
		t.Fatalf("find products: %v", err)
	}
	if products[0].Quantity != 2 || products[1].Quantity != 0 {
		t.Fatalf("conflicting batch must be rolled back entirely: %+v", products)
	}
}
