package service

import (
	"context"
	"testing"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/money"
	"restopos/backend/internal/store/memory"
)

func newTestService() (*Service, *memory.Store) {
	repo := memory.NewSeeded()
	svc := New(repo, nil, Options{
		ServiceChargeRate: 0.12,
		ReceiptFooter:     "Thank you!",
	})
	return svc, repo
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "cashier", Role: "cashier"})
}

func openShift(t *testing.T, svc *Service, ctx context.Context, startCash money.Cents) domain.Shift {
	t.Helper()
	shift, err := svc.OpenShift(ctx, domain.ShiftOpenRequest{StartCashCents: startCash})
	if err != nil {
		t.Fatalf("open shift failed: %v", err)
	}
	return shift
}

func createOrderWithItems(t *testing.T, svc *Service, ctx context.Context, shiftID string, orderType domain.OrderType, table string, items []domain.OrderItemInput) domain.Order {
	t.Helper()
	order, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		Type:        orderType,
		ShiftID:     shiftID,
		TableNumber: table,
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	updated, err := svc.UpdateItems(ctx, order.ID, domain.OrderItemsUpdateRequest{Items: items})
	if err != nil {
		t.Fatalf("update items failed: %v", err)
	}
	return updated
}

func TestCreateProductRequiresAdmin(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateProduct(cashierCtx(), domain.ProductCreateRequest{
		SKU: "SODA-01", Name: "Soda", Category: "drinks",
		Type: domain.ProductStocked, PriceCents: 1200, CostCents: 400,
	})
	if err == nil {
		t.Fatalf("expected cashier product creation to be rejected")
	}
}

func TestCreateProductValidatesComponents(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	// Stocked products carry no recipe.
	_, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		SKU: "BAD-01", Name: "Bad Stocked", Category: "test",
		Type: domain.ProductStocked, PriceCents: 1000,
		Components: []domain.RecipeComponent{{ComponentID: "prod-bun", QtyPerUnit: money.QuantityFromUnits(1)}},
	})
	if err == nil {
		t.Fatalf("expected stocked product with components to be rejected")
	}

	// Manufactured products require one.
	_, err = svc.CreateProduct(ctx, domain.ProductCreateRequest{
		SKU: "BAD-02", Name: "Bad Manufactured", Category: "test",
		Type: domain.ProductManufactured, PriceCents: 1000,
	})
	if err == nil {
		t.Fatalf("expected manufactured product without components to be rejected")
	}
}

func TestUpdateProductRecordsPriceHistory(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	newPrice := money.Cents(5500)
	updated, err := svc.UpdateProduct(ctx, "prod-burger", domain.ProductUpdateRequest{PriceCents: &newPrice})
	if err != nil {
		t.Fatalf("update product failed: %v", err)
	}
	if updated.PriceCents != 5500 {
		t.Fatalf("price = %d, want 5500", updated.PriceCents)
	}

	history, err := svc.ListPriceHistory(ctx, "prod-burger", 10)
	if err != nil {
		t.Fatalf("list price history failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(history))
	}
	if history[0].OldPriceCents != 5000 || history[0].NewPriceCents != 5500 {
		t.Fatalf("unexpected history entry %+v", history[0])
	}
	if history[0].ChangedBy != "admin" {
		t.Fatalf("changed_by = %q, want admin", history[0].ChangedBy)
	}
}

func TestListAuditLogsRequiresAdmin(t *testing.T) {
	svc, _ := newTestService()

	if _, err := svc.ListAuditLogs(cashierCtx(), 10); err == nil {
		t.Fatalf("expected cashier audit log access to be rejected")
	}
	if _, err := svc.ListAuditLogs(adminCtx(), 10); err != nil {
		t.Fatalf("admin audit log access failed: %v", err)
	}
}
