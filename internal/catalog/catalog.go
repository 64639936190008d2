// Package catalog resolves what stock a sold product actually consumes.
// Stocked products consume themselves; manufactured products are exploded
// into their recipe components, recursively, so completing an order emits
// movements against the raw ingredients.
package catalog

import (
	"context"
	"fmt"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/money"
	"restopos/backend/internal/store"
)

// Line is one tracked product and the quantity consumed.
type Line struct {
	ProductID string
	Quantity  money.Quantity
}

type Catalog struct {
	repo store.Repository
}

func New(repo store.Repository) *Catalog {
	return &Catalog{repo: repo}
}

// ExplodeComponents returns the stock consumption of selling the given
// number of units of a product. Service products consume nothing.
func (c *Catalog) ExplodeComponents(ctx context.Context, productID string, units int64) ([]Line, error) {
	totals := map[string]money.Quantity{}
	visited := map[string]bool{}
	if err := c.explode(ctx, productID, money.QuantityFromUnits(units), totals, visited); err != nil {
		return nil, err
	}

	lines := make([]Line, 0, len(totals))
	for id, qty := range totals {
		if qty > 0 {
			lines = append(lines, Line{ProductID: id, Quantity: qty})
		}
	}
	return lines, nil
}

func (c *Catalog) explode(ctx context.Context, productID string, qty money.Quantity, totals map[string]money.Quantity, visited map[string]bool) error {
	if visited[productID] {
		return fmt.Errorf("recipe cycle through product %s", productID)
	}

	product, err := c.repo.GetProduct(ctx, productID)
	if err != nil {
		return err
	}

	switch product.Type {
	case domain.ProductService:
		return nil
	case domain.ProductStocked:
		totals[productID] += qty
		return nil
	case domain.ProductManufactured:
		recipes, err := c.repo.GetRecipeComponents(ctx, []string{productID})
		if err != nil {
			return err
		}
		components := recipes[productID]
		if len(components) == 0 {
			return fmt.Errorf("manufactured product %s has no recipe", productID)
		}
		visited[productID] = true
		for _, component := range components {
			if err := c.explode(ctx, component.ComponentID, qty.Mul(component.QtyPerUnit), totals, visited); err != nil {
				return err
			}
		}
		delete(visited, productID)
		return nil
	default:
		return fmt.Errorf("product %s has unknown type %q", productID, product.Type)
	}
}
