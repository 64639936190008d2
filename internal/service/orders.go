package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/money"
	"restopos/backend/internal/store"
	"restopos/backend/internal/xid"
)

// CreateOrder opens a new order in processing state against an open shift.
// Dine-in orders additionally require a table number.
func (s *Service) CreateOrder(ctx context.Context, req domain.OrderCreateRequest) (domain.Order, error) {
	if !domain.ValidOrderType(req.Type) {
		return domain.Order{}, store.ErrInvalidInput
	}
	if req.Type == domain.OrderDineIn && strings.TrimSpace(req.TableNumber) == "" {
		return domain.Order{}, fmt.Errorf("dine-in order requires a table number: %w", store.ErrInvalidInput)
	}

	shift, err := s.repo.GetShift(ctx, req.ShiftID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Order{}, domain.ErrNoOpenShift
		}
		return domain.Order{}, err
	}
	if shift.Closed {
		return domain.Order{}, domain.ErrNoOpenShift
	}

	actor, _ := ActorFromContext(ctx)
	order := domain.Order{
		ID:            xid.New("ord"),
		Type:          req.Type,
		Status:        domain.OrderProcessing,
		PaymentStatus: domain.PaymentPending,
		ReturnStatus:  domain.ReturnNone,
		ShiftID:       shift.ID,
		UserID:        actor.Username,
		TableNumber:   strings.TrimSpace(req.TableNumber),
		CustomerID:    req.CustomerID,
		DriverID:      req.DriverID,
		CreatedAt:     time.Now().UTC(),
		Items:         []domain.OrderItem{},
	}

	created, err := s.repo.CreateOrder(ctx, order)
	if err != nil {
		return domain.Order{}, err
	}

	s.logAudit(ctx, "order_create", "order", created.ID, fmt.Sprintf("type=%s,shift=%s", created.Type, created.ShiftID))
	return *created, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return *order, nil
}

// UpdateItems replaces the item set of a processing order, snapshotting
// product price and cost per line. Cashiers may add items and raise
// quantities, but reducing a persisted quantity is an admin action: it is
// how already-fired kitchen items would silently disappear.
func (s *Service) UpdateItems(ctx context.Context, orderID string, req domain.OrderItemsUpdateRequest) (domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status != domain.OrderProcessing {
		return domain.Order{}, &domain.InvalidOrderStateError{OrderID: orderID, Current: order.Status, Attempted: domain.OrderProcessing}
	}

	requested := map[string]int64{}
	productIDs := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		if item.ProductID == "" || item.Quantity <= 0 {
			return domain.Order{}, store.ErrInvalidInput
		}
		if _, dup := requested[item.ProductID]; !dup {
			productIDs = append(productIDs, item.ProductID)
		}
		requested[item.ProductID] += item.Quantity
	}

	if err := checkItemReduction(ctx, order.Items, requested); err != nil {
		return domain.Order{}, err
	}

	products, err := s.repo.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return domain.Order{}, err
	}

	items := make([]domain.OrderItem, 0, len(req.Items))
	for _, input := range req.Items {
		product, ok := products[input.ProductID]
		if !ok {
			return domain.Order{}, fmt.Errorf("product %s: %w", input.ProductID, store.ErrNotFound)
		}
		items = append(items, domain.OrderItem{
			ID:             xid.New("itm"),
			OrderID:        orderID,
			ProductID:      product.ID,
			Quantity:       input.Quantity,
			UnitPriceCents: product.PriceCents,
			UnitCostCents:  product.CostCents,
			LineTotalCents: product.PriceCents * money.Cents(input.Quantity),
			Notes:          strings.TrimSpace(input.Notes),
		})
	}

	totals := s.computeTotals(order.Type, items, order.DiscountType, order.DiscountValue)
	updated, err := s.repo.ReplaceOrderItems(ctx, orderID, items, totals)
	if err != nil {
		return domain.Order{}, err
	}

	s.logAudit(ctx, "order_items_update", "order", orderID, fmt.Sprintf("items=%d,total=%d", len(items), totals.Total))
	return *updated, nil
}

// checkItemReduction rejects quantity reductions against the persisted
// item set for non-admin actors.
func checkItemReduction(ctx context.Context, persisted []domain.OrderItem, requested map[string]int64) error {
	actor, _ := ActorFromContext(ctx)
	if actor.Role == "admin" {
		return nil
	}
	existing := map[string]int64{}
	for _, item := range persisted {
		existing[item.ProductID] += item.Quantity
	}
	for productID, qty := range existing {
		if requested[productID] < qty {
			return fmt.Errorf("admin role required to reduce item quantity for product %s", productID)
		}
	}
	return nil
}

// ApplyDiscount sets the order discount before completion. Percent
// discounts apply to the subtotal.
func (s *Service) ApplyDiscount(ctx context.Context, orderID string, req domain.DiscountRequest) (domain.Order, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Order{}, err
	}
	if req.Value < 0 {
		return domain.Order{}, store.ErrInvalidInput
	}
	switch req.Type {
	case domain.DiscountPercent:
		if req.Value > 100 {
			return domain.Order{}, store.ErrInvalidInput
		}
	case domain.DiscountValue:
	default:
		return domain.Order{}, store.ErrInvalidInput
	}

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status != domain.OrderProcessing {
		return domain.Order{}, &domain.InvalidOrderStateError{OrderID: orderID, Current: order.Status, Attempted: domain.OrderProcessing}
	}

	discountValue := money.Cents(req.Value)
	totals := s.computeTotals(order.Type, order.Items, req.Type, discountValue)
	updated, err := s.repo.SetOrderDiscount(ctx, orderID, req.Type, discountValue, totals)
	if err != nil {
		return domain.Order{}, err
	}

	s.logAudit(ctx, "order_discount", "order", orderID, fmt.Sprintf("type=%s,value=%d,total=%d", req.Type, req.Value, totals.Total))
	return *updated, nil
}

// CompleteOrder freezes the order, records its payments and emits one
// outbound stock movement per consumed product (manufactured items are
// exploded into their recipe components). The repository re-checks the
// processing state inside the transaction, so a double submit is rejected
// rather than applied twice.
func (s *Service) CompleteOrder(ctx context.Context, orderID string, req domain.OrderCompleteRequest) (domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status != domain.OrderProcessing {
		return domain.Order{}, &domain.InvalidOrderStateError{OrderID: orderID, Current: order.Status, Attempted: domain.OrderCompleted}
	}
	if len(order.Items) == 0 {
		return domain.Order{}, fmt.Errorf("order has no items: %w", store.ErrInvalidInput)
	}

	paid := money.Cents(0)
	for method, amount := range req.Payments {
		if !domain.ValidPaymentMethod(method) || amount < 0 {
			return domain.Order{}, store.ErrInvalidInput
		}
		paid += amount
	}
	if paid < order.TotalCents && !domain.AllowsDeferredPayment(order.Type) {
		return domain.Order{}, &domain.PaymentShortfallError{OrderID: orderID, Required: order.TotalCents, Paid: paid}
	}

	now := time.Now().UTC()
	movements, err := s.consumptionMovements(ctx, order, now)
	if err != nil {
		return domain.Order{}, err
	}

	payments := make([]domain.Payment, 0, len(req.Payments))
	for _, method := range sortedMethods(req.Payments) {
		amount := req.Payments[method]
		if amount == 0 {
			continue
		}
		payments = append(payments, domain.Payment{
			ID:          xid.New("pay"),
			OrderID:     orderID,
			ShiftID:     order.ShiftID,
			Method:      method,
			AmountCents: amount,
			CreatedAt:   now,
		})
	}

	paymentStatus := domain.DerivePaymentStatus(paid, order.TotalCents)
	completed, err := s.repo.CompleteOrder(ctx, orderID, now, paymentStatus, payments, movements)
	if err != nil {
		return domain.Order{}, err
	}

	s.logAudit(ctx, "order_complete", "order", orderID, fmt.Sprintf("total=%d,paid=%d,status=%s", completed.TotalCents, paid, paymentStatus))

	if req.Print {
		snapshot := s.buildSnapshot(ctx, *completed)
		if err := s.snapshots.Set(ctx, orderID, &snapshot, s.opts.SnapshotTTL); err != nil {
			log.Warn().Err(err).Str("order_id", orderID).Msg("failed to cache receipt snapshot")
		}
	}
	return *completed, nil
}

// CancelOrder cancels a processing order outright. Cancelling a completed
// order is admin-only and reverses its effects: compensating inbound
// movements for every consumed unit and negative payment reversal rows.
// Financial history is never deleted.
func (s *Service) CancelOrder(ctx context.Context, orderID string, req domain.OrderCancelRequest) (domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !domain.CanTransitionOrder(order.Status, domain.OrderCancelled) {
		return domain.Order{}, &domain.InvalidOrderStateError{OrderID: orderID, Current: order.Status, Attempted: domain.OrderCancelled}
	}

	now := time.Now().UTC()
	var reversals []domain.Payment
	var compensations []domain.InventoryMovement

	if order.Status == domain.OrderCompleted {
		if err := requireAdmin(ctx); err != nil {
			return domain.Order{}, err
		}

		existing, err := s.repo.ListMovementsByOrder(ctx, orderID)
		if err != nil {
			return domain.Order{}, err
		}
		for _, m := range existing {
			if m.Operation == domain.MovementOut && m.Reason == domain.ReasonOrder {
				compensations = append(compensations, domain.InventoryMovement{
					ID:        xid.New("mov"),
					ProductID: m.ProductID,
					Operation: domain.MovementIn,
					Reason:    domain.ReasonOrderReturn,
					Quantity:  m.Quantity,
					OrderID:   orderID,
					CreatedAt: now,
				})
			}
		}

		payments, err := s.repo.ListPaymentsByOrder(ctx, orderID)
		if err != nil {
			return domain.Order{}, err
		}
		for _, p := range payments {
			reversals = append(reversals, domain.Payment{
				ID:          xid.New("pay"),
				OrderID:     orderID,
				ShiftID:     p.ShiftID,
				Method:      p.Method,
				AmountCents: -p.AmountCents,
				CreatedAt:   now,
			})
		}
	}

	cancelled, err := s.repo.CancelOrder(ctx, orderID, strings.TrimSpace(req.Reason), now, reversals, compensations)
	if err != nil {
		return domain.Order{}, err
	}

	s.logAudit(ctx, "order_cancel", "order", orderID, fmt.Sprintf("from=%s,reason=%s", order.Status, req.Reason))
	return *cancelled, nil
}

// CreateReturn records a (possibly partial) return against a completed
// order. Per-item quantities are bounded by original minus previously
// returned; the refund distribution must equal the item refunds exactly.
func (s *Service) CreateReturn(ctx context.Context, orderID string, req domain.OrderReturnRequest) (domain.OrderReturn, error) {
	if len(req.Items) == 0 {
		return domain.OrderReturn{}, store.ErrInvalidInput
	}

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.OrderReturn{}, err
	}
	if order.Status != domain.OrderCompleted {
		return domain.OrderReturn{}, &domain.InvalidOrderStateError{OrderID: orderID, Current: order.Status, Attempted: domain.OrderCompleted}
	}

	alreadyReturned, err := s.repo.GetReturnedQuantities(ctx, orderID)
	if err != nil {
		return domain.OrderReturn{}, err
	}

	itemsByID := map[string]domain.OrderItem{}
	for _, item := range order.Items {
		itemsByID[item.ID] = item
	}

	now := time.Now().UTC()
	returnID := xid.New("ret")
	totalRefund := money.Cents(0)
	returnItems := make([]domain.OrderReturnItem, 0, len(req.Items))
	returnedNow := map[string]int64{}

	for _, input := range req.Items {
		item, ok := itemsByID[input.OrderItemID]
		if !ok {
			return domain.OrderReturn{}, fmt.Errorf("order item %s: %w", input.OrderItemID, store.ErrNotFound)
		}
		if input.Quantity <= 0 {
			return domain.OrderReturn{}, store.ErrInvalidInput
		}
		available := item.Quantity - alreadyReturned[item.ID] - returnedNow[item.ID]
		if input.Quantity > available {
			return domain.OrderReturn{}, &domain.ReturnQuantityExceededError{
				OrderItemID: item.ID,
				Requested:   input.Quantity,
				Available:   available,
			}
		}
		returnedNow[item.ID] += input.Quantity

		refund := item.UnitPriceCents * money.Cents(input.Quantity)
		totalRefund += refund
		returnItems = append(returnItems, domain.OrderReturnItem{
			ID:            xid.New("rti"),
			OrderReturnID: returnID,
			OrderItemID:   item.ID,
			ProductID:     item.ProductID,
			Quantity:      input.Quantity,
			RefundCents:   refund,
		})
	}

	refundTotal := money.Cents(0)
	refunds := make([]domain.Refund, 0, len(req.Refunds))
	for _, method := range sortedMethods(req.Refunds) {
		amount := req.Refunds[method]
		if !domain.ValidPaymentMethod(method) || amount <= 0 {
			return domain.OrderReturn{}, store.ErrInvalidInput
		}
		refundTotal += amount
		refunds = append(refunds, domain.Refund{
			ID:            xid.New("rfn"),
			OrderReturnID: returnID,
			Method:        method,
			AmountCents:   amount,
		})
	}
	// Reject on mismatch, never silently adjust.
	if refundTotal != totalRefund {
		return domain.OrderReturn{}, &domain.RefundDistributionMismatchError{ReturnTotal: totalRefund, RefundTotal: refundTotal}
	}

	var movements []domain.InventoryMovement
	if req.ReverseStock {
		for _, item := range returnItems {
			lines, err := s.catalog.ExplodeComponents(ctx, item.ProductID, item.Quantity)
			if err != nil {
				return domain.OrderReturn{}, err
			}
			for _, line := range lines {
				movements = append(movements, domain.InventoryMovement{
					ID:        xid.New("mov"),
					ProductID: line.ProductID,
					Operation: domain.MovementIn,
					Reason:    domain.ReasonOrderReturn,
					Quantity:  line.Quantity,
					OrderID:   orderID,
					CreatedAt: now,
				})
			}
		}
	}

	actor, _ := ActorFromContext(ctx)
	ret := domain.OrderReturn{
		ID:               returnID,
		OrderID:          orderID,
		UserID:           actor.Username,
		ShiftID:          order.ShiftID,
		TotalRefundCents: totalRefund,
		Reason:           strings.TrimSpace(req.Reason),
		ReverseStock:     req.ReverseStock,
		CreatedAt:        now,
		Items:            returnItems,
		Refunds:          refunds,
	}

	returnStatus := deriveReturnStatus(order.Items, alreadyReturned, returnedNow)
	created, err := s.repo.CreateOrderReturn(ctx, ret, returnStatus, movements)
	if err != nil {
		return domain.OrderReturn{}, err
	}

	s.logAudit(ctx, "order_return", "order", orderID, fmt.Sprintf("refund=%d,reverse_stock=%t", totalRefund, req.ReverseStock))
	return *created, nil
}

// GetOrderSnapshot exposes the read-only receipt view consumed by the
// printing subsystem, served from the cache when the order was completed
// with print requested.
func (s *Service) GetOrderSnapshot(ctx context.Context, orderID string) (domain.OrderSnapshot, error) {
	if snapshot, ok, err := s.snapshots.Get(ctx, orderID); err == nil && ok {
		return *snapshot, nil
	} else if err != nil {
		log.Warn().Err(err).Str("order_id", orderID).Msg("snapshot cache read failed")
	}

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.OrderSnapshot{}, err
	}
	return s.buildSnapshot(ctx, *order), nil
}

func (s *Service) buildSnapshot(ctx context.Context, order domain.Order) domain.OrderSnapshot {
	productIDs := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		productIDs = append(productIDs, item.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		log.Warn().Err(err).Str("order_id", order.ID).Msg("snapshot product lookup failed")
	}

	lines := make([]domain.OrderSnapshotLine, 0, len(order.Items))
	for _, item := range order.Items {
		name := item.ProductID
		if product, ok := products[item.ProductID]; ok {
			name = product.Name
		}
		lines = append(lines, domain.OrderSnapshotLine{
			Name:      name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPriceCents.String(),
			LineTotal: item.LineTotalCents.String(),
		})
	}

	return domain.OrderSnapshot{
		OrderID:       order.ID,
		Type:          order.Type,
		TypeLabel:     domain.OrderTypeLabel(order.Type),
		TableNumber:   order.TableNumber,
		Items:         lines,
		Subtotal:      order.SubtotalCents.String(),
		Tax:           order.TaxCents.String(),
		ServiceCharge: order.ServiceChargeCents.String(),
		Discount:      order.DiscountCents.String(),
		Total:         order.TotalCents.String(),
		FooterText:    s.opts.ReceiptFooter,
		CreatedAt:     order.CreatedAt.Format(time.RFC3339),
	}
}

// consumptionMovements builds the outbound ledger rows of an order: one
// per consumed tracked product, with manufactured items exploded into
// components. Quantities for the same product are merged across lines.
func (s *Service) consumptionMovements(ctx context.Context, order *domain.Order, at time.Time) ([]domain.InventoryMovement, error) {
	consumed := map[string]money.Quantity{}
	for _, item := range order.Items {
		lines, err := s.catalog.ExplodeComponents(ctx, item.ProductID, item.Quantity)
		if err != nil {
			return nil, err
		}
		for _, line := range lines {
			consumed[line.ProductID] += line.Quantity
		}
	}

	productIDs := make([]string, 0, len(consumed))
	for id := range consumed {
		productIDs = append(productIDs, id)
	}
	sort.Strings(productIDs)

	movements := make([]domain.InventoryMovement, 0, len(productIDs))
	for _, id := range productIDs {
		movements = append(movements, domain.InventoryMovement{
			ID:        xid.New("mov"),
			ProductID: id,
			Operation: domain.MovementOut,
			Reason:    domain.ReasonOrder,
			Quantity:  consumed[id],
			OrderID:   order.ID,
			CreatedAt: at,
		})
	}
	return movements, nil
}

func (s *Service) computeTotals(orderType domain.OrderType, items []domain.OrderItem, discountType domain.DiscountType, discountValue money.Cents) domain.OrderTotals {
	totals := domain.OrderTotals{}
	for _, item := range items {
		totals.Subtotal += item.LineTotalCents
		totals.Cost += item.UnitCostCents * money.Cents(item.Quantity)
	}

	switch discountType {
	case domain.DiscountPercent:
		totals.Discount = money.PercentOf(totals.Subtotal, float64(discountValue)/100)
	case domain.DiscountValue:
		totals.Discount = discountValue
	}
	if totals.Discount > totals.Subtotal {
		totals.Discount = totals.Subtotal
	}

	base := totals.Subtotal - totals.Discount
	totals.Tax = money.PercentOf(base, s.opts.TaxRate)
	if orderType == domain.OrderDineIn {
		totals.ServiceCharge = money.PercentOf(base, s.opts.ServiceChargeRate)
	}
	totals.Total = base + totals.Tax + totals.ServiceCharge
	return totals
}

func deriveReturnStatus(items []domain.OrderItem, already, returnedNow map[string]int64) domain.ReturnStatus {
	full := true
	any := false
	for _, item := range items {
		returned := already[item.ID] + returnedNow[item.ID]
		if returned > 0 {
			any = true
		}
		if returned < item.Quantity {
			full = false
		}
	}
	switch {
	case full && any:
		return domain.ReturnFull
	case any:
		return domain.ReturnPartial
	default:
		return domain.ReturnNone
	}
}

func sortedMethods(amounts map[domain.PaymentMethod]money.Cents) []domain.PaymentMethod {
	methods := make([]domain.PaymentMethod, 0, len(amounts))
	for method := range amounts {
		methods = append(methods, method)
	}
	sort.Slice(methods, func(i, j int) bool { return methods[i] < methods[j] })
	return methods
}
