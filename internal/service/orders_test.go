package service

import (
	"context"
	"errors"
	"testing"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/money"
)

func TestCreateOrderRequiresOpenShift(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateOrder(cashierCtx(), domain.OrderCreateRequest{
		Type:    domain.OrderTakeaway,
		ShiftID: "shift-missing",
	})
	if !errors.Is(err, domain.ErrNoOpenShift) {
		t.Fatalf("expected ErrNoOpenShift, got %v", err)
	}
}

func TestCreateOrderRejectsClosedShift(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierCtx()
	shift := openShift(t, svc, ctx, 0)

	if _, err := svc.CloseShift(ctx, domain.ShiftCloseRequest{ShiftID: shift.ID, RealCashCents: 0}); err != nil {
		t.Fatalf("close shift failed: %v", err)
	}

	_, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		Type:    domain.OrderTakeaway,
		ShiftID: shift.ID,
	})
	if !errors.Is(err, domain.ErrNoOpenShift) {
		t.Fatalf("expected ErrNoOpenShift, got %v", err)
	}
}

func TestDineInRequiresTableNumber(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierCtx()
	shift := openShift(t, svc, ctx, 0)

	_, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		Type:    domain.OrderDineIn,
		ShiftID: shift.ID,
	})
	if err == nil {
		t.Fatalf("expected dine-in order without table to be rejected")
	}
}

func TestDineInTotalsIncludeServiceCharge(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierCtx()
	shift := openShift(t, svc, ctx, 0)

	order := createOrderWithItems(t, svc, ctx, shift.ID, domain.OrderDineIn, "T1", []domain.OrderItemInput{
		{ProductID: "prod-burger", Quantity: 2},
		{ProductID: "prod-fries", Quantity: 1},
	})

	if order.SubtotalCents != 13000 {
		t.Fatalf("subtotal = %d, want 13000", order.SubtotalCents)
	}
	if order.ServiceChargeCents != 1560 {
		t.Fatalf("service charge = %d, want 1560", order.ServiceChargeCents)
	}
	if order.TaxCents != 0 {
		t.Fatalf("tax = %d, want 0", order.TaxCents)
	}
	if order.TotalCents != 14560 {
		t.Fatalf("total = %d, want 14560", order.TotalCents)
	}
	if order.CostCents != 5100 {
		t.Fatalf("cost = %d, want 5100", order.CostCents)
	}
}

func TestTakeawaySkipsServiceCharge(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierCtx()
	shift := openShift(t, svc, ctx, 0)

	order := createOrderWithItems(t, svc, ctx, shift.ID, domain.OrderTakeaway, "", []domain.OrderItemInput{
		{ProductID: "prod-burger", Quantity: 2},
		{ProductID: "prod-fries", Quantity: 1},
	})
	if order.ServiceChargeCents != 0 {
		t.Fatalf("service charge = %d, want 0", order.ServiceChargeCents)
	}
	if order.TotalCents != 13000 {
		t.Fatalf("total = %d, want 13000", order.TotalCents)
	}
}

func TestPercentDiscountAppliesBeforeServiceCharge(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierCtx()
	shift := openShift(t, svc, ctx, 0)

	order := createOrderWithItems(t, svc, ctx, shift.ID, domain.OrderDineIn, "T2", []domain.OrderItemInput{
		{ProductID: "prod-burger", Quantity: 2},
		{ProductID: "prod-fries", Quantity: 1},
	})

	discounted, err := svc.ApplyDiscount(adminCtx(), order.ID, domain.DiscountRequest{
		Type:  domain.DiscountPercent,
		Value: 10,
	})
	if err != nil {
		t.Fatalf("apply discount failed: %v", err)
	}
	if discounted.DiscountCents != 1300 {
		t.Fatalf("discount = %d, want 1300", discounted.DiscountCents)
	}
	// Service charge on (13000 - 1300).
	if discounted.ServiceChargeCents != 1404 {
		t.Fatalf("service charge = %d, want 1404", discounted.ServiceChargeCents)
	}
	if discounted.TotalCents != 13104 {
		t.Fatalf("total = %d, want 13104", discounted.TotalCents)
	}
}

func TestDiscountRequiresAdmin(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierCtx()
	shift := openShift(t, svc, ctx, 0)

	order := createOrderWithItems(t, svc, ctx, shift.ID, domain.OrderTakeaway, "", []domain.OrderItemInput{
		{ProductID: "prod-fries", Quantity: 1},
	})

	_, err := svc.ApplyDiscount(ctx, order.ID, domain.DiscountRequest{Type: domain.DiscountValue, Value: 500})
	if err == nil {
		t.Fatalf("expected cashier discount to be rejected")
	}
}

func TestValueDiscountClampsToSubtotal(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierCtx()
	shift := openShift(t, svc, ctx, 0)

	order := createOrderWithItems(t, svc, ctx, shift.ID, domain.OrderTakeaway, "", []domain.OrderItemInput{
		{ProductID: "prod-fries", Quantity: 1},
	})

	discounted, err := svc.ApplyDiscount(adminCtx(), order.ID, domain.DiscountRequest{
		Type:  domain.DiscountValue,
		Value: 99999,
	})
	if err != nil {
		t.Fatalf("apply discount failed: %v", err)
	}
	if discounted.DiscountCents != 3000 {
		t.Fatalf("discount = %d, want 3000", discounted.DiscountCents)
	}
	if discounted.TotalCents != 0 {
		t.Fatalf("total = %d, want 0", discounted.TotalCents)
	}
}

func TestItemReductionRequiresAdmin(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierCtx()
	shift := openShift(t, svc, ctx, 0)

	order := createOrderWithItems(t, svc, ctx, shift.ID, domain.OrderTakeaway, "", []domain.OrderItemInput{
		{ProductID: "prod-burger", Quantity: 2},
	})

	// Raising a quantity stays a cashier action.
	if _, err := svc.UpdateItems(ctx, order.ID, domain.OrderItemsUpdateRequest{
		Items: []domain.OrderItemInput{{ProductID: "prod-burger", Quantity: 3}},
	}); err != nil {
		t.Fatalf("raising quantity failed: %v", err)
	}

	_, err := svc.UpdateItems(ctx, order.ID, domain.OrderItemsUpdateRequest{
		Items: []domain.OrderItemInput{{ProductID: "prod-burger", Quantity: 1}},
	})
	if err == nil {
		t.Fatalf("expected cashier quantity reduction to be rejected")
	}

	reduced, err := svc.UpdateItems(adminCtx(), order.ID, domain.OrderItemsUpdateRequest{
		Items: []domain.OrderItemInput{{ProductID: "prod-burger", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("admin quantity reduction failed: %v", err)
	}
	if reduced.SubtotalCents != 5000 {
		t.Fatalf("subtotal = %d, want 5000", reduced.SubtotalCents)
	}
}

func TestCompleteOrderRecordsPaymentsAndMovements(t *testing.T) {
	svc, repo := newTestService()
	ctx := cashierCtx()
	shift := openShift(t, svc, ctx, 0)

	order := createOrderWithItems(t, svc, ctx, shift.ID, domain.OrderDineIn, "T1", []domain.OrderItemInput{
		{ProductID: "prod-burger", Quantity: 2},
		{ProductID: "prod-fries", Quantity: 1},
	})

	completed, err := svc.CompleteOrder(ctx, order.ID, domain.OrderCompleteRequest{
		Payments: map[domain.PaymentMethod]money.Cents{domain.MethodCash: 14560},
	})
	if err != nil {
		t.Fatalf("complete order failed: %v", err)
	}
	if completed.Status != domain.OrderCompleted {
		t.Fatalf("status = %s, want completed", completed.Status)
	}
	if completed.PaymentStatus != domain.PaymentFull {
		t.Fatalf("payment status = %s, want full", completed.PaymentStatus)
	}
	if completed.CompletedAt == nil {
		t.Fatalf("completed_at not set")
	}

	// One outbound movement per consumed product, manufactured items
	// exploded into their components.
	movements, err := repo.ListMovementsByOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("list movements failed: %v", err)
	}
	consumed := map[string]money.Quantity{}
	for _, m := range movements {
		if m.Operation != domain.MovementOut || m.Reason != domain.ReasonOrder {
			t.Fatalf("unexpected movement %s/%s", m.Operation, m.Reason)
		}
		consumed[m.ProductID] += m.Quantity
	}
	if len(movements) != 3 {
		t.Fatalf("expected 3 movements, got %d", len(movements))
	}
	if consumed["prod-patty"] != money.QuantityFromUnits(2) ||
		consumed["prod-bun"] != money.QuantityFromUnits(2) ||
		consumed["prod-fries"] != money.QuantityFromUnits(1) {
		t.Fatalf("unexpected consumption %v", consumed)
	}

	stock, err := repo.GetStockLevels(context.Background(), []string{"prod-patty", "prod-bun", "prod-fries"})
	if err != nil {
		t.Fatalf("get stock failed: %v", err)
	}
	if stock["prod-patty"] != money.QuantityFromUnits(98) {
		t.Fatalf("patty stock = %s, want 98", stock["prod-patty"])
	}
	if stock["prod-bun"] != money.QuantityFromUnits(98) {
		t.Fatalf("bun stock = %s, want 98", stock["prod-bun"])
	}
	if stock["prod-fries"] != money.QuantityFromUnits(199) {
		t.Fatalf("fries stock = %s, want 199", stock["prod-fries"])
	}

	payments, err := repo.ListPaymentsByOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("list payments failed: %v", err)
	}
	if len(payments) != 1 {
		t.Fatalf("expected 1 payment row, got %d", len(payments))
	}
	if payments[0].Method != domain.MethodCash || payments[0].AmountCents != 14560 {
		t.Fatalf("unexpected payment %+v", payments[0])
	}
}

func TestCompleteOrderRejectsShortfall(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierCtx()
	shift := openShift(t, svc, ctx, 0)

	order := createOrderWithItems(t, svc, ctx, shift.ID, domain.OrderDineIn, "T1", []domain.OrderItemInput{
		{ProductID: "prod-burger", Quantity: 2},
		{ProductID: "prod-fries", Quantity: 1},
	})
	if _, err := svc.ApplyDiscount(adminCtx(), order.ID, domain.DiscountRequest{
		Type: domain.DiscountPercent, Value: 10,
	}); err != nil {
		t.Fatalf("apply discount failed: %v", err)
	}

	_, err := svc.CompleteOrder(ctx, order.ID, domain.OrderCompleteRequest{
		Payments: map[domain.PaymentMethod]money.Cents{domain.MethodCash: 13100},
	})
	var shortfall *domain.PaymentShortfallError
	if !errors.As(err, &shortfall) {
		t.Fatalf("expected PaymentShortfallError, got %v", err)
	}
	if shortfall.Shortfall() != 4 {
		t.Fatalf("shortfall = %d, want 4", shortfall.Shortfall())
	}
}

func TestCompaniesOrderAllowsDeferredPayment(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierCtx()
	shift := openShift(t, svc, ctx, 0)

	order := createOrderWithItems(t, svc, ctx, shift.ID, domain.OrderCompanies, "", []domain.OrderItemInput{
		{ProductID: "prod-fries", Quantity: 2},
	})

	completed, err := svc.CompleteOrder(ctx, order.ID, domain.OrderCompleteRequest{})
	if err != nil {
		t.Fatalf("deferred completion failed: %v", err)
	}
	if completed.Status != domain.OrderCompleted {
		t.Fatalf("status = %s, want completed", completed.Status)
	}
	if completed.PaymentStatus != domain.PaymentPending {
		t.Fatalf("payment status = %s, want pending", completed.PaymentStatus)
	}
}

func TestDoubleCompleteRejected(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierCtx()
	shift := openShift(t, svc, ctx, 0)

	order := createOrderWithItems(t, svc, ctx, shift.ID, domain.OrderTakeaway, "", []domain.OrderItemInput{
		{ProductID: "prod-fries", Quantity: 1},
	})
	pay := domain.OrderCompleteRequest{
		Payments: map[domain.PaymentMethod]money.Cents{domain.MethodCash: 3000},
	}
	if _, err := svc.CompleteOrder(ctx, order.ID, pay); err != nil {
		t.Fatalf("first completion failed: %v", err)
	}

	_, err := svc.CompleteOrder(ctx, order.ID, pay)
	var state *domain.InvalidOrderStateError
	if !errors.As(err, &state) {
		t.Fatalf("expected InvalidOrderStateError, got %v", err)
	}
	if state.Current != domain.OrderCompleted {
		t.Fatalf("current = %s, want completed", state.Current)
	}
}

func TestCancelProcessingOrder(t *testing.T) {
	svc, repo := newTestService()
	ctx := cashierCtx()
	shift := openShift(t, svc, ctx, 0)

	order := createOrderWithItems(t, svc, ctx, shift.ID, domain.OrderTakeaway, "", []domain.OrderItemInput{
		{ProductID: "prod-fries", Quantity: 1},
	})

	cancelled, err := svc.CancelOrder(ctx, order.ID, domain.OrderCancelRequest{Reason: "customer left"})
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if cancelled.Status != domain.OrderCancelled {
		t.Fatalf("status = %s, want cancelled", cancelled.Status)
	}
	if cancelled.CancelReason != "customer left" {
		t.Fatalf("cancel reason = %q", cancelled.CancelReason)
	}

	// No stock ever moved for a processing order.
	movements, err := repo.ListMovementsByOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("list movements failed: %v", err)
	}
	if len(movements) != 0 {
		t.Fatalf("expected no movements, got %d", len(movements))
	}
}

func TestCancelCompletedOrderIsAdminOnlyAndCompensates(t *testing.T) {
	svc, repo := newTestService()
	ctx := cashierCtx()
	shift := openShift(t, svc, ctx, 0)

	order := createOrderWithItems(t, svc, ctx, shift.ID, domain.OrderDineIn, "T1", []domain.OrderItemInput{
		{ProductID: "prod-burger", Quantity: 2},
		{ProductID: "prod-fries", Quantity: 1},
	})
	if _, err := svc.CompleteOrder(ctx, order.ID, domain.OrderCompleteRequest{
		Payments: map[domain.PaymentMethod]money.Cents{domain.MethodCash: 14560},
	}); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	if _, err := svc.CancelOrder(ctx, order.ID, domain.OrderCancelRequest{Reason: "mistake"}); err == nil {
		t.Fatalf("expected cashier cancellation of completed order to be rejected")
	}

	cancelled, err := svc.CancelOrder(adminCtx(), order.ID, domain.OrderCancelRequest{Reason: "mistake"})
	if err != nil {
		t.Fatalf("admin cancel failed: %v", err)
	}
	if cancelled.Status != domain.OrderCancelled {
		t.Fatalf("status = %s, want cancelled", cancelled.Status)
	}

	// Stock is back where it started, through compensating rows rather
	// than deleted history.
	stock, err := repo.GetStockLevels(context.Background(), []string{"prod-patty", "prod-bun", "prod-fries"})
	if err != nil {
		t.Fatalf("get stock failed: %v", err)
	}
	if stock["prod-patty"] != money.QuantityFromUnits(100) ||
		stock["prod-bun"] != money.QuantityFromUnits(100) ||
		stock["prod-fries"] != money.QuantityFromUnits(200) {
		t.Fatalf("stock not restored: %v", stock)
	}

	movements, err := repo.ListMovementsByOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("list movements failed: %v", err)
	}
	ins, outs := 0, 0
	for _, m := range movements {
		switch {
		case m.Operation == domain.MovementOut && m.Reason == domain.ReasonOrder:
			outs++
		case m.Operation == domain.MovementIn && m.Reason == domain.ReasonOrderReturn:
			ins++
		default:
			t.Fatalf("unexpected movement %s/%s", m.Operation, m.Reason)
		}
	}
	if outs != 3 || ins != 3 {
		t.Fatalf("expected 3 out and 3 in movements, got %d/%d", outs, ins)
	}

	payments, err := repo.ListPaymentsByOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("list payments failed: %v", err)
	}
	if len(payments) != 2 {
		t.Fatalf("expected original plus reversal payment rows, got %d", len(payments))
	}
	var net money.Cents
	for _, p := range payments {
		net += p.AmountCents
	}
	if net != 0 {
		t.Fatalf("net payments = %d, want 0", net)
	}
}

func TestReturnBoundsAndRefundDistribution(t *testing.T) {
	svc, repo := newTestService()
	ctx := cashierCtx()
	shift := openShift(t, svc, ctx, 0)

	order := createOrderWithItems(t, svc, ctx, shift.ID, domain.OrderTakeaway, "", []domain.OrderItemInput{
		{ProductID: "prod-burger", Quantity: 2},
	})
	if _, err := svc.CompleteOrder(ctx, order.ID, domain.OrderCompleteRequest{
		Payments: map[domain.PaymentMethod]money.Cents{domain.MethodCash: 10000},
	}); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	completed, err := svc.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("get order failed: %v", err)
	}
	itemID := completed.Items[0].ID

	// More than was sold.
	_, err = svc.CreateReturn(ctx, order.ID, domain.OrderReturnRequest{
		Items:   []domain.ReturnItemInput{{OrderItemID: itemID, Quantity: 3}},
		Refunds: map[domain.PaymentMethod]money.Cents{domain.MethodCash: 15000},
	})
	var exceeded *domain.ReturnQuantityExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected ReturnQuantityExceededError, got %v", err)
	}
	if exceeded.Available != 2 {
		t.Fatalf("available = %d, want 2", exceeded.Available)
	}

	// Refund rows that do not add up to the item refunds.
	_, err = svc.CreateReturn(ctx, order.ID, domain.OrderReturnRequest{
		Items:   []domain.ReturnItemInput{{OrderItemID: itemID, Quantity: 1}},
		Refunds: map[domain.PaymentMethod]money.Cents{domain.MethodCash: 4000},
	})
	var mismatch *domain.RefundDistributionMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected RefundDistributionMismatchError, got %v", err)
	}

	ret, err := svc.CreateReturn(ctx, order.ID, domain.OrderReturnRequest{
		Items:        []domain.ReturnItemInput{{OrderItemID: itemID, Quantity: 1}},
		Refunds:      map[domain.PaymentMethod]money.Cents{domain.MethodCash: 5000},
		Reason:       "cold food",
		ReverseStock: true,
	})
	if err != nil {
		t.Fatalf("return failed: %v", err)
	}
	if ret.TotalRefundCents != 5000 {
		t.Fatalf("refund total = %d, want 5000", ret.TotalRefundCents)
	}

	after, err := svc.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("get order failed: %v", err)
	}
	if after.ReturnStatus != domain.ReturnPartial {
		t.Fatalf("return status = %s, want partial", after.ReturnStatus)
	}

	// Reversed stock comes back as the exploded components.
	stock, err := repo.GetStockLevels(context.Background(), []string{"prod-patty", "prod-bun"})
	if err != nil {
		t.Fatalf("get stock failed: %v", err)
	}
	if stock["prod-patty"] != money.QuantityFromUnits(99) || stock["prod-bun"] != money.QuantityFromUnits(99) {
		t.Fatalf("stock after reversal = %v", stock)
	}

	// Returning the remaining unit makes the return full; a third return
	// has nothing left to claim.
	if _, err := svc.CreateReturn(ctx, order.ID, domain.OrderReturnRequest{
		Items:   []domain.ReturnItemInput{{OrderItemID: itemID, Quantity: 1}},
		Refunds: map[domain.PaymentMethod]money.Cents{domain.MethodCash: 5000},
	}); err != nil {
		t.Fatalf("second return failed: %v", err)
	}
	final, err := svc.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("get order failed: %v", err)
	}
	if final.ReturnStatus != domain.ReturnFull {
		t.Fatalf("return status = %s, want full", final.ReturnStatus)
	}

	_, err = svc.CreateReturn(ctx, order.ID, domain.OrderReturnRequest{
		Items:   []domain.ReturnItemInput{{OrderItemID: itemID, Quantity: 1}},
		Refunds: map[domain.PaymentMethod]money.Cents{domain.MethodCash: 5000},
	})
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected ReturnQuantityExceededError, got %v", err)
	}
}

func TestReturnRequiresCompletedOrder(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierCtx()
	shift := openShift(t, svc, ctx, 0)

	order := createOrderWithItems(t, svc, ctx, shift.ID, domain.OrderTakeaway, "", []domain.OrderItemInput{
		{ProductID: "prod-fries", Quantity: 1},
	})

	_, err := svc.CreateReturn(ctx, order.ID, domain.OrderReturnRequest{
		Items:   []domain.ReturnItemInput{{OrderItemID: order.Items[0].ID, Quantity: 1}},
		Refunds: map[domain.PaymentMethod]money.Cents{domain.MethodCash: 3000},
	})
	var state *domain.InvalidOrderStateError
	if !errors.As(err, &state) {
		t.Fatalf("expected InvalidOrderStateError, got %v", err)
	}
}

func TestOrderSnapshotFromCompletedOrder(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierCtx()
	shift := openShift(t, svc, ctx, 0)

	order := createOrderWithItems(t, svc, ctx, shift.ID, domain.OrderDineIn, "T7", []domain.OrderItemInput{
		{ProductID: "prod-burger", Quantity: 2},
		{ProductID: "prod-fries", Quantity: 1},
	})
	if _, err := svc.CompleteOrder(ctx, order.ID, domain.OrderCompleteRequest{
		Payments: map[domain.PaymentMethod]money.Cents{domain.MethodCash: 14560},
		Print:    true,
	}); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	snapshot, err := svc.GetOrderSnapshot(ctx, order.ID)
	if err != nil {
		t.Fatalf("get snapshot failed: %v", err)
	}
	if snapshot.Total != "145.60" {
		t.Fatalf("total = %q, want 145.60", snapshot.Total)
	}
	if snapshot.TableNumber != "T7" {
		t.Fatalf("table = %q, want T7", snapshot.TableNumber)
	}
	if len(snapshot.Items) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(snapshot.Items))
	}
	if snapshot.Items[0].Name != "Beef Burger" || snapshot.Items[0].Quantity != 2 {
		t.Fatalf("unexpected first line %+v", snapshot.Items[0])
	}
	if snapshot.FooterText != "Thank you!" {
		t.Fatalf("footer = %q", snapshot.FooterText)
	}
}
