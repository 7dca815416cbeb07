package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
	"github.com/vladislavdragonenkov/ordering/internal/storage/memory"
)

func newDraft(customerID string) domain.OrderDraft {
	return domain.OrderDraft{
		Customer: domain.Customer{ID: customerID},
		Lines: []domain.OrderLine{
			{ProductID: "P1", Quantity: 3, PriceMinor: 1000},
			{ProductID: "P2", Quantity: 2, PriceMinor: 2000},
		},
	}
}

func TestOrderRepository_CreateGet(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()

	order, err := repo.Create(ctx, newDraft("customer-1"))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if order.ID == "" {
		t.Fatal("expected store-assigned id")
	}
	if order.AmountMinor != 7000 {
		t.Fatalf("expected amount 7000, got %d", order.AmountMinor)
	}
	for i, line := range order.Lines {
		if line.ID == "" {
			t.Fatalf("line %d has no id", i)
		}
	}

	stored, err := repo.Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.ID != order.ID || len(stored.Lines) != 2 {
		t.Fatalf("unexpected stored order: %+v", stored)
	}
	if stored.Lines[0].ProductID != "P1" || stored.Lines[1].ProductID != "P2" {
		t.Fatalf("line order not preserved: %+v", stored.Lines)
	}
}

func TestOrderRepository_GetMissing(t *testing.T) {
	repo := memory.NewOrderRepository()
	if _, err := repo.Get(context.Background(), "missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderRepository_ListByCustomer(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	for i := 0; i < 3; i++ {
		if _, err := repo.Create(ctx, newDraft("customer-1")); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}
	if _, err := repo.Create(ctx, newDraft("customer-2")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	orders, err := repo.ListByCustomer(ctx, "customer-1", 0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(orders) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(orders))
	}

	limited, err := repo.ListByCustomer(ctx, "customer-1", 2)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(limited))
	}
}

func TestOrderRepository_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	repo := memory.NewOrderRepository()
	if _, err := repo.Create(ctx, newDraft("customer-1")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
