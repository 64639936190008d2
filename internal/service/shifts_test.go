package service

import (
	"errors"
	"testing"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/money"
	"restopos/backend/internal/store"
)

func TestOpenShiftRejectsSecondOpen(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierCtx()
	openShift(t, svc, ctx, 10000)

	_, err := svc.OpenShift(ctx, domain.ShiftOpenRequest{StartCashCents: 5000})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	// A different user still opens fine.
	if _, err := svc.OpenShift(adminCtx(), domain.ShiftOpenRequest{StartCashCents: 0}); err != nil {
		t.Fatalf("second user open failed: %v", err)
	}
}

func TestCloseShiftBlockedByProcessingOrders(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierCtx()
	shift := openShift(t, svc, ctx, 0)

	order, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		Type:    domain.OrderTakeaway,
		ShiftID: shift.ID,
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	_, err = svc.CloseShift(ctx, domain.ShiftCloseRequest{ShiftID: shift.ID, RealCashCents: 0})
	if !errors.Is(err, domain.ErrShiftHasOpenOrders) {
		t.Fatalf("expected ErrShiftHasOpenOrders, got %v", err)
	}

	if _, err := svc.CancelOrder(ctx, order.ID, domain.OrderCancelRequest{Reason: "test"}); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if _, err := svc.CloseShift(ctx, domain.ShiftCloseRequest{ShiftID: shift.ID, RealCashCents: 0}); err != nil {
		t.Fatalf("close after cancel failed: %v", err)
	}
}

func TestCloseShiftReconcilesDrawer(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierCtx()
	shift := openShift(t, svc, ctx, 10000)

	// Cash sale of 5000.
	burger := createOrderWithItems(t, svc, ctx, shift.ID, domain.OrderTakeaway, "", []domain.OrderItemInput{
		{ProductID: "prod-burger", Quantity: 1},
	})
	if _, err := svc.CompleteOrder(ctx, burger.ID, domain.OrderCompleteRequest{
		Payments: map[domain.PaymentMethod]money.Cents{domain.MethodCash: 5000},
	}); err != nil {
		t.Fatalf("complete burger failed: %v", err)
	}

	// Cash sale of 3000, fully refunded in cash.
	fries := createOrderWithItems(t, svc, ctx, shift.ID, domain.OrderTakeaway, "", []domain.OrderItemInput{
		{ProductID: "prod-fries", Quantity: 1},
	})
	if _, err := svc.CompleteOrder(ctx, fries.ID, domain.OrderCompleteRequest{
		Payments: map[domain.PaymentMethod]money.Cents{domain.MethodCash: 3000},
	}); err != nil {
		t.Fatalf("complete fries failed: %v", err)
	}
	friesOrder, err := svc.GetOrder(ctx, fries.ID)
	if err != nil {
		t.Fatalf("get order failed: %v", err)
	}
	if _, err := svc.CreateReturn(ctx, fries.ID, domain.OrderReturnRequest{
		Items:   []domain.ReturnItemInput{{OrderItemID: friesOrder.Items[0].ID, Quantity: 1}},
		Refunds: map[domain.PaymentMethod]money.Cents{domain.MethodCash: 3000},
	}); err != nil {
		t.Fatalf("return failed: %v", err)
	}

	// 2000 of petty cash out of the drawer.
	if _, err := svc.CreateExpense(ctx, domain.ExpenseCreateRequest{
		ShiftID:     shift.ID,
		Description: "cleaning supplies",
		AmountCents: 2000,
	}); err != nil {
		t.Fatalf("expense failed: %v", err)
	}

	// Expected: 10000 + 5000 + 3000 - 3000 - 2000 = 13000.
	closed, err := svc.CloseShift(ctx, domain.ShiftCloseRequest{ShiftID: shift.ID, RealCashCents: 12500})
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if closed.EndCash != 13000 {
		t.Fatalf("end cash = %d, want 13000", closed.EndCash)
	}
	if closed.Deficit != 500 || !closed.HasDeficit {
		t.Fatalf("deficit = %d (has=%t), want 500", closed.Deficit, closed.HasDeficit)
	}
	if !closed.Closed || closed.ClosedAt == nil {
		t.Fatalf("shift not marked closed")
	}

	_, err = svc.CloseShift(ctx, domain.ShiftCloseRequest{ShiftID: shift.ID, RealCashCents: 12500})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict on second close, got %v", err)
	}
}

func TestCloseShiftOwnerOrAdminOnly(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierCtx()
	shift := openShift(t, svc, ctx, 0)

	otherCtx := WithActor(cashierCtx(), domain.Actor{Username: "someone", Role: "cashier"})
	if _, err := svc.CloseShift(otherCtx, domain.ShiftCloseRequest{ShiftID: shift.ID, RealCashCents: 0}); err == nil {
		t.Fatalf("expected foreign close to be rejected")
	}

	if _, err := svc.CloseShift(adminCtx(), domain.ShiftCloseRequest{ShiftID: shift.ID, RealCashCents: 0}); err != nil {
		t.Fatalf("admin close failed: %v", err)
	}
}

func TestGetOpenShift(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierCtx()

	if _, err := svc.GetOpenShift(ctx); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound with no shift, got %v", err)
	}

	shift := openShift(t, svc, ctx, 2500)
	got, err := svc.GetOpenShift(ctx)
	if err != nil {
		t.Fatalf("get open shift failed: %v", err)
	}
	if got.ID != shift.ID || got.StartCash != 2500 {
		t.Fatalf("unexpected shift %+v", got)
	}
}

func TestShiftReport(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierCtx()
	shift := openShift(t, svc, ctx, 0)

	burger := createOrderWithItems(t, svc, ctx, shift.ID, domain.OrderTakeaway, "", []domain.OrderItemInput{
		{ProductID: "prod-burger", Quantity: 1},
	})
	if _, err := svc.CompleteOrder(ctx, burger.ID, domain.OrderCompleteRequest{
		Payments: map[domain.PaymentMethod]money.Cents{domain.MethodCard: 5000},
	}); err != nil {
		t.Fatalf("complete burger failed: %v", err)
	}

	fries := createOrderWithItems(t, svc, ctx, shift.ID, domain.OrderTakeaway, "", []domain.OrderItemInput{
		{ProductID: "prod-fries", Quantity: 1},
	})
	if _, err := svc.CompleteOrder(ctx, fries.ID, domain.OrderCompleteRequest{
		Payments: map[domain.PaymentMethod]money.Cents{domain.MethodCash: 3000},
	}); err != nil {
		t.Fatalf("complete fries failed: %v", err)
	}

	// A cancelled order never counts as sales.
	abandoned, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{Type: domain.OrderTakeaway, ShiftID: shift.ID})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	if _, err := svc.CancelOrder(ctx, abandoned.ID, domain.OrderCancelRequest{}); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	if _, err := svc.CreateExpense(ctx, domain.ExpenseCreateRequest{
		ShiftID: shift.ID, Description: "napkins", AmountCents: 500,
	}); err != nil {
		t.Fatalf("expense failed: %v", err)
	}

	report, err := svc.GetShiftReport(ctx, shift.ID)
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if report.OrderCount != 2 {
		t.Fatalf("order count = %d, want 2", report.OrderCount)
	}
	if report.SalesCents != 8000 {
		t.Fatalf("sales = %d, want 8000", report.SalesCents)
	}
	if report.PaidByMethod[domain.MethodCard] != 5000 || report.PaidByMethod[domain.MethodCash] != 3000 {
		t.Fatalf("unexpected payment mix %v", report.PaidByMethod)
	}
	if report.ExpensesCents != 500 {
		t.Fatalf("expenses = %d, want 500", report.ExpensesCents)
	}
}

func TestExpenseRequiresOpenShift(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierCtx()
	shift := openShift(t, svc, ctx, 0)
	if _, err := svc.CloseShift(ctx, domain.ShiftCloseRequest{ShiftID: shift.ID, RealCashCents: 0}); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	_, err := svc.CreateExpense(ctx, domain.ExpenseCreateRequest{
		ShiftID: shift.ID, Description: "late entry", AmountCents: 100,
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}
