package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
	"github.com/vladislavdragonenkov/ordering/internal/storage/memory"
)

func testSeed() CatalogSeed {
	return CatalogSeed{
		Customers: []SeedCustomer{{ID: "C1", Name: "Alice", Email: "alice@example.com"}},
		Products: []SeedProduct{
			{ID: "P1", Name: "Widget", PriceMinor: 1000, Quantity: 5},
			{ID: "P2", Name: "Gadget", PriceMinor: 2000, Quantity: 2},
		},
	}
}

func TestOpenOrdering_MemoryPlacesOrder(t *testing.T) {
	ctx := context.Background()
	o, err := OpenOrdering(ctx, DefaultConfig(), testSeed(), log.WithField("test", "open-ordering"))
	require.NoError(t, err)
	defer func() { require.NoError(t, o.Close()) }()

	order, err := o.Workflow.Execute(ctx, "C1", []domain.RequestedLine{
		{ProductID: "P1", Quantity: 3},
		{ProductID: "P2", Quantity: 2},
	})
	require.NoError(t, err)
	require.Len(t, order.Lines, 2)
	require.Equal(t, int64(7000), order.AmountMinor)

	stored, err := o.Orders.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, order.ID, stored.ID)

	products, err := o.Catalog.FindAllByID(ctx, []string{"P1", "P2"})
	require.NoError(t, err)
	stock := map[string]int32{}
	for _, p := range products {
		stock[p.ID] = p.Quantity
	}
	require.Equal(t, map[string]int32{"P1": 2, "P2": 0}, stock)

	outbox, ok := o.deps.outbox.(*memory.OutboxRepository)
	require.True(t, ok)
	require.Len(t, outbox.AllPending(), 1)
}

func TestOpenOrdering_UnknownCustomer(t *testing.T) {
	ctx := context.Background()
	o, err := OpenOrdering(ctx, DefaultConfig(), testSeed(), nil)
	require.NoError(t, err)
	defer func() { _ = o.Close() }()

	_, err = o.Workflow.Execute(ctx, "C404", []domain.RequestedLine{{ProductID: "P1", Quantity: 1}})
	require.True(t, errors.Is(err, domain.ErrCustomerNotFound))
}

func TestOpenOrdering_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres

	_, err := OpenOrdering(context.Background(), cfg, CatalogSeed{}, nil)
	require.Error(t, err)
}

func TestApplyCatalogSeed_Validation(t *testing.T) {
	deps, err := initRuntimeDependencies(context.Background(), DefaultConfig(), log.WithField("test", "seed"))
	require.NoError(t, err)

	err = applyCatalogSeed(context.Background(), deps.seeder, CatalogSeed{Customers: []SeedCustomer{{Name: "no id"}}})
	require.ErrorIs(t, err, domain.ErrCustomerRequired)

	err = applyCatalogSeed(context.Background(), deps.seeder, CatalogSeed{Products: []SeedProduct{{Name: "no id"}}})
	require.ErrorIs(t, err, domain.ErrProductIDRequired)

	err = applyCatalogSeed(context.Background(), deps.seeder, CatalogSeed{Products: []SeedProduct{{ID: "P9", Quantity: -1}}})
	require.ErrorContains(t, err, "seed product P9")
}

func TestLoadCatalogSeed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")
	raw := `{
  "customers": [{"id": "C1", "name": "Alice", "email": "alice@example.com"}],
  "products": [{"id": "P1", "name": "Widget", "price_minor": 1000, "quantity": 5}]
}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	seed, err := LoadCatalogSeed(path)
	require.NoError(t, err)
	require.Equal(t, []SeedCustomer{{ID: "C1", Name: "Alice", Email: "alice@example.com"}}, seed.Customers)
	require.Equal(t, []SeedProduct{{ID: "P1", Name: "Widget", PriceMinor: 1000, Quantity: 5}}, seed.Products)

	_, err = LoadCatalogSeed(filepath.Join(dir, "missing.json"))
	require.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o600))
	_, err = LoadCatalogSeed(bad)
	require.ErrorContains(t, err, "decode catalog seed")
}

func TestNewUnlockedWorkflow_KeepsStockConsistent(t *testing.T) {
	ctx := context.Background()
	o, err := OpenOrdering(ctx, DefaultConfig(), testSeed(), nil)
	require.NoError(t, err)
	defer func() { _ = o.Close() }()

	wf := NewUnlockedWorkflow(o)
	require.NotSame(t, o.Workflow, wf)

	var created int32
	for i := 0; i < 4; i++ {
		_, err := wf.Execute(ctx, "C1", []domain.RequestedLine{{ProductID: "P2", Quantity: 1}})
		if err == nil {
			created++
			continue
		}
		require.ErrorIs(t, err, domain.ErrInsufficientStock)
	}
	require.Equal(t, int32(2), created)

	products, err := o.Catalog.FindAllByID(ctx, []string{"P2"})
	require.NoError(t, err)
	require.Equal(t, int32(0), products[0].Quantity)
}
