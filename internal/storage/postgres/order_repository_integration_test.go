package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
)

func TestOrderRepository_PostgresCreateGetAndList(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedCatalogForIntegrationTest(t, store)
	repo := NewOrderRepository(store)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	first, err := repo.Create(ctx, sampleDraft("C1",
		domain.OrderLine{ProductID: "P2", Quantity: 1, PriceMinor: 2000},
		domain.OrderLine{ProductID: "P1", Quantity: 3, PriceMinor: 1000},
	))
	if err != nil {
		t.Fatalf("create first order: %v", err)
	}
	if first.ID == "" || first.AmountMinor != 5000 {
		t.Fatalf("unexpected created order: %+v", first)
	}

	time.Sleep(5 * time.Millisecond)

	second, err := repo.Create(ctx, sampleDraft("C1", domain.OrderLine{ProductID: "P1", Quantity: 1, PriceMinor: 1000}))
	if err != nil {
		t.Fatalf("create second order: %v", err)
	}

	got, err := repo.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("get first order: %v", err)
	}
	if got.CustomerID != "C1" || got.AmountMinor != 5000 {
		t.Fatalf("unexpected order payload: %+v", got)
	}
	if len(got.Lines) != 2 || got.Lines[0].ProductID != "P2" || got.Lines[1].ProductID != "P1" {
		t.Fatalf("lines must keep request order: %+v", got.Lines)
	}
	if got.Lines[1].PriceMinor != 1000 || got.Lines[1].Quantity != 3 {
		t.Fatalf("unexpected line snapshot: %+v", got.Lines[1])
	}

	limited, err := repo.ListByCustomer(ctx, "C1", 1)
	if err != nil {
		t.Fatalf("list with limit: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != second.ID {
		t.Fatalf("unexpected list result with limit: %+v", limited)
	}

	all, err := repo.ListByCustomer(ctx, "C1", 0)
	if err != nil {
		t.Fatalf("list without limit: %v", err)
	}
	if len(all) != 2 || len(all[1].Lines) != 2 {
		t.Fatalf("unexpected list result: %+v", all)
	}
}

func TestOrderRepository_PostgresErrors(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedCatalogForIntegrationTest(t, store)
	repo := NewOrderRepository(store)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := repo.Get(ctx, "missing-order"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}

	_, err := repo.Create(ctx, sampleDraft("C404", domain.OrderLine{ProductID: "P1", Quantity: 1, PriceMinor: 1000}))
	if !errors.Is(err, domain.ErrCustomerNotFound) {
		t.Fatalf("expected ErrCustomerNotFound for unknown customer, got %v", err)
	}

	_, err = repo.Create(ctx, sampleDraft("C1",
		domain.OrderLine{ProductID: "P1", Quantity: 1, PriceMinor: 1000},
		domain.OrderLine{ProductID: "P1", Quantity: 2, PriceMinor: 1000},
	))
	if !errors.Is(err, domain.ErrDuplicateProduct) {
		t.Fatalf("expected ErrDuplicateProduct, got %v", err)
	}

	orders, err := repo.ListByCustomer(ctx, "C1", 0)
	if err != nil {
		t.Fatalf("list after failed creates: %v", err)
	}
	if len(orders) != 0 {
		t.Fatalf("failed creates must not leave partial orders, got %d", len(orders))
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatal("expected unique violation for code 23505")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "22001"}) {
		t.Fatal("unexpected unique violation for non-unique code")
	}
	if isUniqueViolation(errors.New("plain error")) {
		t.Fatal("plain error must not be unique violation")
	}
	if !isForeignKeyViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatal("expected foreign key violation for code 23503")
	}
}

func sampleDraft(customerID string, lines ...domain.OrderLine) domain.OrderDraft {
	return domain.OrderDraft{
		Customer: domain.Customer{ID: customerID},
		Lines:    lines,
	}
}
