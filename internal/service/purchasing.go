package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/money"
	"restopos/backend/internal/store"
	"restopos/backend/internal/xid"
)

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Supplier{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Supplier{}, store.ErrInvalidInput
	}

	supplier := domain.Supplier{
		ID:        xid.New("sup"),
		Name:      req.Name,
		Phone:     strings.TrimSpace(req.Phone),
		CreatedAt: time.Now().UTC(),
	}
	created, err := s.repo.CreateSupplier(ctx, supplier)
	if err != nil {
		return domain.Supplier{}, err
	}
	return *created, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

// CreatePurchaseOrder records a draft order against a supplier. Stock is
// untouched until the goods are received.
func (s *Service) CreatePurchaseOrder(ctx context.Context, req domain.PurchaseOrderCreateRequest) (domain.PurchaseOrder, error) {
	if len(req.Items) == 0 {
		return domain.PurchaseOrder{}, store.ErrInvalidInput
	}
	for _, item := range req.Items {
		if item.ProductID == "" || item.Quantity <= 0 || item.CostCents < 0 {
			return domain.PurchaseOrder{}, store.ErrInvalidInput
		}
		product, err := s.repo.GetProduct(ctx, item.ProductID)
		if err != nil {
			return domain.PurchaseOrder{}, err
		}
		if product.Type == domain.ProductService {
			return domain.PurchaseOrder{}, fmt.Errorf("service product %s cannot be purchased: %w", item.ProductID, store.ErrInvalidInput)
		}
	}

	po := domain.PurchaseOrder{
		ID:         xid.New("po"),
		SupplierID: req.SupplierID,
		Status:     domain.PurchaseOrderDraft,
		CreatedAt:  time.Now().UTC(),
		Items:      req.Items,
	}
	created, err := s.repo.CreatePurchaseOrder(ctx, po)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}

	s.logAudit(ctx, "purchase_order_create", "purchase_order", created.ID, fmt.Sprintf("supplier=%s,items=%d", created.SupplierID, len(created.Items)))
	return *created, nil
}

func (s *Service) GetPurchaseOrder(ctx context.Context, id string) (domain.PurchaseOrder, error) {
	po, err := s.repo.GetPurchaseOrder(ctx, id)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	return *po, nil
}

func (s *Service) ListPurchaseOrders(ctx context.Context, status string, limit int) ([]domain.PurchaseOrder, error) {
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListPurchaseOrders(ctx, status, limit)
}

// ReceivePurchaseOrder books the goods in: one inbound purchase movement
// per line and an updated unit cost on each purchased product. The
// repository re-checks the draft status inside the transaction.
func (s *Service) ReceivePurchaseOrder(ctx context.Context, id string) (domain.PurchaseOrder, error) {
	po, err := s.repo.GetPurchaseOrder(ctx, id)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	if po.Status != domain.PurchaseOrderDraft {
		return domain.PurchaseOrder{}, store.ErrConflict
	}

	now := time.Now().UTC()
	movements := make([]domain.InventoryMovement, 0, len(po.Items))
	costs := make(map[string]money.Cents, len(po.Items))
	for _, item := range po.Items {
		movements = append(movements, domain.InventoryMovement{
			ID:        xid.New("mov"),
			ProductID: item.ProductID,
			Operation: domain.MovementIn,
			Reason:    domain.ReasonPurchase,
			Quantity:  item.Quantity,
			CreatedAt: now,
		})
		if item.CostCents > 0 {
			costs[item.ProductID] = item.CostCents
		}
	}

	actor, _ := ActorFromContext(ctx)
	received, err := s.repo.ReceivePurchaseOrder(ctx, id, actor.Username, now, movements, costs)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}

	s.logAudit(ctx, "purchase_order_receive", "purchase_order", id, fmt.Sprintf("items=%d", len(received.Items)))
	return *received, nil
}

// RecordPurchaseReturn sends goods back to a supplier as outbound
// purchase_return movements against a received order.
func (s *Service) RecordPurchaseReturn(ctx context.Context, req domain.PurchaseReturnRequest) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	if len(req.Items) == 0 {
		return store.ErrInvalidInput
	}

	po, err := s.repo.GetPurchaseOrder(ctx, req.PurchaseOrderID)
	if err != nil {
		return err
	}
	if po.Status != domain.PurchaseOrderReceived {
		return store.ErrConflict
	}

	received := map[string]money.Quantity{}
	for _, item := range po.Items {
		received[item.ProductID] += item.Quantity
	}

	now := time.Now().UTC()
	movements := make([]domain.InventoryMovement, 0, len(req.Items))
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return store.ErrInvalidInput
		}
		if item.Quantity > received[item.ProductID] {
			return fmt.Errorf("return of %s exceeds received quantity: %w", item.ProductID, store.ErrInvalidInput)
		}
		movements = append(movements, domain.InventoryMovement{
			ID:        xid.New("mov"),
			ProductID: item.ProductID,
			Operation: domain.MovementOut,
			Reason:    domain.ReasonPurchaseReturn,
			Quantity:  item.Quantity,
			CreatedAt: now,
		})
	}

	if err := s.repo.AppendMovements(ctx, movements); err != nil {
		return err
	}

	s.logAudit(ctx, "purchase_return", "purchase_order", req.PurchaseOrderID, fmt.Sprintf("items=%d,reason=%s", len(req.Items), req.Reason))
	return nil
}

// RecordWaste writes a waste entry and its outbound movement in one
// transaction.
func (s *Service) RecordWaste(ctx context.Context, req domain.WasteCreateRequest) (domain.WasteEntry, error) {
	req.Reason = strings.TrimSpace(req.Reason)
	if req.ProductID == "" || req.Quantity <= 0 || req.Reason == "" {
		return domain.WasteEntry{}, store.ErrInvalidInput
	}

	product, err := s.repo.GetProduct(ctx, req.ProductID)
	if err != nil {
		return domain.WasteEntry{}, err
	}
	if product.Type == domain.ProductService {
		return domain.WasteEntry{}, fmt.Errorf("service product %s has no stock to waste: %w", req.ProductID, store.ErrInvalidInput)
	}

	now := time.Now().UTC()
	actor, _ := ActorFromContext(ctx)
	entry := domain.WasteEntry{
		ID:        xid.New("waste"),
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		Reason:    req.Reason,
		UserID:    actor.Username,
		CreatedAt: now,
	}
	movement := domain.InventoryMovement{
		ID:        xid.New("mov"),
		ProductID: req.ProductID,
		Operation: domain.MovementOut,
		Reason:    domain.ReasonWaste,
		Quantity:  req.Quantity,
		CreatedAt: now,
	}

	created, err := s.repo.CreateWasteEntry(ctx, entry, movement)
	if err != nil {
		return domain.WasteEntry{}, err
	}

	s.logAudit(ctx, "waste_create", "waste", created.ID, fmt.Sprintf("product=%s,qty=%s", created.ProductID, created.Quantity))
	return *created, nil
}
