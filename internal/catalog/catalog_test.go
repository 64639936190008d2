package catalog

import (
	"context"
	"testing"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/money"
	"restopos/backend/internal/store/memory"
)

func TestExplodeManufacturedIntoComponents(t *testing.T) {
	c := New(memory.NewSeeded())

	lines, err := c.ExplodeComponents(context.Background(), "prod-burger", 2)
	if err != nil {
		t.Fatalf("explode failed: %v", err)
	}

	got := map[string]money.Quantity{}
	for _, line := range lines {
		got[line.ProductID] = line.Quantity
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 consumed products, got %d", len(got))
	}
	if got["prod-patty"] != money.QuantityFromUnits(2) {
		t.Fatalf("patty consumption = %s, want 2", got["prod-patty"])
	}
	if got["prod-bun"] != money.QuantityFromUnits(2) {
		t.Fatalf("bun consumption = %s, want 2", got["prod-bun"])
	}
}

func TestExplodeStockedConsumesItself(t *testing.T) {
	c := New(memory.NewSeeded())

	lines, err := c.ExplodeComponents(context.Background(), "prod-fries", 3)
	if err != nil {
		t.Fatalf("explode failed: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if lines[0].ProductID != "prod-fries" || lines[0].Quantity != money.QuantityFromUnits(3) {
		t.Fatalf("unexpected line %+v", lines[0])
	}
}

func TestExplodeServiceConsumesNothing(t *testing.T) {
	c := New(memory.NewSeeded())

	lines, err := c.ExplodeComponents(context.Background(), "prod-delivery", 5)
	if err != nil {
		t.Fatalf("explode failed: %v", err)
	}
	if len(lines) != 0 {
		t.Fatalf("expected no consumption, got %d lines", len(lines))
	}
}

func TestExplodeRejectsRecipeCycle(t *testing.T) {
	repo := memory.NewSeeded()
	ctx := context.Background()

	_, err := repo.CreateProduct(ctx, domain.Product{
		ID: "prod-a", SKU: "CYC-A", Name: "Cycle A", Category: "test",
		Type: domain.ProductManufactured,
		Components: []domain.RecipeComponent{
			{ProductID: "prod-a", ComponentID: "prod-b", QtyPerUnit: money.QuantityFromUnits(1)},
		},
	})
	if err != nil {
		t.Fatalf("create prod-a: %v", err)
	}
	_, err = repo.CreateProduct(ctx, domain.Product{
		ID: "prod-b", SKU: "CYC-B", Name: "Cycle B", Category: "test",
		Type: domain.ProductManufactured,
		Components: []domain.RecipeComponent{
			{ProductID: "prod-b", ComponentID: "prod-a", QtyPerUnit: money.QuantityFromUnits(1)},
		},
	})
	if err != nil {
		t.Fatalf("create prod-b: %v", err)
	}

	if _, err := New(repo).ExplodeComponents(ctx, "prod-a", 1); err == nil {
		t.Fatalf("expected cycle error")
	}
}

func TestExplodeRejectsManufacturedWithoutRecipe(t *testing.T) {
	repo := memory.NewSeeded()
	ctx := context.Background()

	_, err := repo.CreateProduct(ctx, domain.Product{
		ID: "prod-empty", SKU: "EMPTY-01", Name: "No Recipe", Category: "test",
		Type: domain.ProductManufactured,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	if _, err := New(repo).ExplodeComponents(ctx, "prod-empty", 1); err == nil {
		t.Fatalf("expected missing recipe error")
	}
}
