package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
	"github.com/vladislavdragonenkov/ordering/internal/storage/memory"
)

func seedCatalog() *memory.ProductRepository {
	repo := memory.NewProductRepository()
	repo.Put(domain.Product{ID: "P1", PriceMinor: 1000, Quantity: 5})
	repo.Put(domain.Product{ID: "P2", PriceMinor: 2000, Quantity: 2})
	return repo
}

func TestProductRepository_FindAllByID(t *testing.T) {
	repo := seedCatalog()

	found, err := repo.FindAllByID(context.Background(), []string{"P2", "missing", "P1", "P2"})
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 distinct products, got %d", len(found))
	}
	if found[0].ID != "P2" || found[1].ID != "P1" {
		t.Fatalf("unexpected order: %+v", found)
	}
}

func TestProductRepository_UpdateQuantity(t *testing.T) {
	repo := seedCatalog()

	err := repo.UpdateQuantity(context.Background(), []domain.StockUpdate{
		{ProductID: "P1", Quantity: 2, ExpectedQuantity: 5},
		{ProductID: "P2", Quantity: 0, ExpectedQuantity: 2},
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	p1, _ := repo.Get("P1")
	p2, _ := repo.Get("P2")
	if p1.Quantity != 2 || p2.Quantity != 0 {
		t.Fatalf("unexpected stock: P1=%d P2=%d", p1.Quantity, p2.Quantity)
	}
}

func TestProductRepository_UpdateQuantityConflictAppliesNothing(t *testing.T) {
	repo := seedCatalog()

	err := repo.UpdateQuantity(context.Background(), []domain.StockUpdate{
		{ProductID: "P1", Quantity: 2, ExpectedQuantity: 5},
		{ProductID: "P2", Quantity: 0, ExpectedQuantity: 7},
	})
	if !errors.Is(err, domain.ErrStockConflict) {
		t.Fatalf("expected ErrStockConflict, got %v", err)
	}

	p1, _ := repo.Get("P1")
	if p1.Quantity != 5 {
		t.Fatalf("batch must not be partially applied, P1=%d", p1.Quantity)
	}
}

func TestCustomerRepository_FindByID(t *testing.T) {
	repo := memory.NewCustomerRepository()
	repo.Put(domain.Customer{ID: "C1", Name: "Alice"})

	got, err := repo.FindByID(context.Background(), "C1")
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if got.Name != "Alice" {
		t.Fatalf("unexpected customer: %+v", got)
	}

	if _, err := repo.FindByID(context.Background(), "C2"); !errors.Is(err, domain.ErrCustomerNotFound) {
		t.Fatalf("expected ErrCustomerNotFound, got %v", err)
	}
}
