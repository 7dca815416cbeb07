package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
)

// CatalogSeed содержит справочники клиентов и товаров для начальной загрузки.
type CatalogSeed struct {
	Customers []SeedCustomer `json:"customers"`
	Products  []SeedProduct  `json:"products"`
}

// SeedCustomer описывает клиента в файле справочников.
type SeedCustomer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// SeedProduct описывает товар в файле справочников. Цена в минимальных единицах.
type SeedProduct struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceMinor int64  `json:"price_minor"`
	Quantity   int32  `json:"quantity"`
}

// LoadCatalogSeed читает JSON-файл со справочниками.
func LoadCatalogSeed(path string) (CatalogSeed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return CatalogSeed{}, fmt.Errorf("read catalog seed: %w", err)
	}
	var seed CatalogSeed
	if err := json.Unmarshal(raw, &seed); err != nil {
		return CatalogSeed{}, fmt.Errorf("decode catalog seed %s: %w", path, err)
	}
	return seed, nil
}

func applyCatalogSeed(ctx context.Context, seeder catalogSeeder, seed CatalogSeed) error {
	for _, customer := range seed.Customers {
		if customer.ID == "" {
			return fmt.Errorf("seed customer: %w", domain.ErrCustomerRequired)
		}
		c := domain.Customer{ID: customer.ID, Name: customer.Name, Email: customer.Email}
		if err := seeder.UpsertCustomer(ctx, c); err != nil {
			return fmt.Errorf("seed customer %s: %w", customer.ID, err)
		}
	}
	for _, product := range seed.Products {
		if product.ID == "" {
			return fmt.Errorf("seed product: %w", domain.ErrProductIDRequired)
		}
		if product.PriceMinor < 0 || product.Quantity < 0 {
			return fmt.Errorf("seed product %s: negative price or quantity", product.ID)
		}
		p := domain.Product{ID: product.ID, Name: product.Name, PriceMinor: product.PriceMinor, Quantity: product.Quantity}
		if err := seeder.UpsertProduct(ctx, p); err != nil {
			return fmt.Errorf("seed product %s: %w", product.ID, err)
		}
	}
	return nil
}
