// Package memory implements store.Repository with in-process maps. It is
// the repository used by the test suite and by dev mode when DATABASE_URL
// is unset.
package memory

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/money"
	"restopos/backend/internal/store"
	"restopos/backend/internal/xid"
)

type Store struct {
	mu               sync.RWMutex
	products         map[string]domain.Product
	recipes          map[string][]domain.RecipeComponent
	priceHistory     map[string][]domain.ProductPriceHistory
	stockLevels      map[string]money.Quantity
	movements        []domain.InventoryMovement
	ordersByID       map[string]*domain.Order
	paymentsByOrder  map[string][]domain.Payment
	returnsByID      map[string]domain.OrderReturn
	returnsByOrder   map[string][]string
	dailyRecords     map[string]domain.DailyInventoryRecord // key productID|date
	shiftsByID       map[string]domain.Shift
	openShiftByUser  map[string]string
	expensesByShift  map[string][]domain.Expense
	suppliersByID    map[string]domain.Supplier
	purchaseOrders   map[string]domain.PurchaseOrder
	wasteEntries     []domain.WasteEntry
	auditLogs        []domain.AuditLog
	usersByUsername  map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		products:        map[string]domain.Product{},
		recipes:         map[string][]domain.RecipeComponent{},
		priceHistory:    map[string][]domain.ProductPriceHistory{},
		stockLevels:     map[string]money.Quantity{},
		ordersByID:      map[string]*domain.Order{},
		paymentsByOrder: map[string][]domain.Payment{},
		returnsByID:     map[string]domain.OrderReturn{},
		returnsByOrder:  map[string][]string{},
		dailyRecords:    map[string]domain.DailyInventoryRecord{},
		shiftsByID:      map[string]domain.Shift{},
		openShiftByUser: map[string]string{},
		expensesByShift: map[string][]domain.Expense{},
		suppliersByID:   map[string]domain.Supplier{},
		purchaseOrders:  map[string]domain.PurchaseOrder{},
		usersByUsername: map[string]domain.UserAccount{},
	}
}

// NewSeeded returns a store preloaded with a small restaurant catalog and
// the dev user accounts. Used by tests and dev mode.
func NewSeeded() *Store {
	s := New()

	products := []domain.Product{
		{ID: "prod-burger", SKU: "BURGER-01", Name: "Beef Burger", Category: "mains", Type: domain.ProductManufactured, PriceCents: 5000, CostCents: 2100, Active: true},
		{ID: "prod-fries", SKU: "FRIES-01", Name: "French Fries", Category: "sides", Type: domain.ProductStocked, PriceCents: 3000, CostCents: 900, Active: true},
		{ID: "prod-cola", SKU: "COLA-01", Name: "Cola Can", Category: "drinks", Type: domain.ProductStocked, PriceCents: 1500, CostCents: 500, Active: true},
		{ID: "prod-patty", SKU: "PATTY-01", Name: "Beef Patty", Category: "ingredients", Type: domain.ProductStocked, PriceCents: 0, CostCents: 1200, Active: true},
		{ID: "prod-bun", SKU: "BUN-01", Name: "Burger Bun", Category: "ingredients", Type: domain.ProductStocked, PriceCents: 0, CostCents: 300, Active: true},
		{ID: "prod-delivery", SKU: "DLV-01", Name: "Delivery Fee", Category: "fees", Type: domain.ProductService, PriceCents: 1000, CostCents: 0, Active: true},
	}
	for _, p := range products {
		s.products[p.ID] = p
	}

	s.recipes["prod-burger"] = []domain.RecipeComponent{
		{ProductID: "prod-burger", ComponentID: "prod-patty", QtyPerUnit: money.QuantityFromUnits(1)},
		{ProductID: "prod-burger", ComponentID: "prod-bun", QtyPerUnit: money.QuantityFromUnits(1)},
	}

	for id, qty := range map[string]int64{
		"prod-fries": 200, "prod-cola": 300, "prod-patty": 100, "prod-bun": 100,
	} {
		s.stockLevels[id] = money.QuantityFromUnits(qty)
	}

	s.usersByUsername = seedUsers()
	return s
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD;
// hardcoded dev defaults are used when unset.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Warn().Msg("memory store: using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal().Err(err).Str("username", u.username).Msg("memory store: failed to hash seed password")
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// ---- products ----

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if p.Active {
			products = append(products, p)
		}
	}
	sort.Slice(products, func(i, j int) bool {
		if products[i].Category != products[j].Category {
			return products[i].Category < products[j].Category
		}
		return products[i].Name < products[j].Name
	})
	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrConflict
	}
	for _, p := range s.products {
		if p.SKU != "" && p.SKU == product.SKU {
			return nil, store.ErrConflict
		}
	}

	product.Active = true
	s.products[product.ID] = product
	if len(product.Components) > 0 {
		components := make([]domain.RecipeComponent, len(product.Components))
		copy(components, product.Components)
		s.recipes[product.ID] = components
	}
	created := product
	return &created, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := product
	return &found, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[product.ID]; !ok {
		return nil, store.ErrNotFound
	}
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok && p.Active {
			result[id] = p
		}
	}
	return result, nil
}

func (s *Store) CreatePriceHistory(_ context.Context, entry domain.ProductPriceHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("ph")
	}
	s.priceHistory[entry.ProductID] = append(s.priceHistory[entry.ProductID], entry)
	return nil
}

func (s *Store) ListPriceHistory(_ context.Context, productID string, limit int) ([]domain.ProductPriceHistory, error) {
	if limit < 1 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.priceHistory[productID]
	out := make([]domain.ProductPriceHistory, 0, limit)
	for i := len(history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, history[i])
	}
	return out, nil
}

func (s *Store) GetRecipeComponents(_ context.Context, productIDs []string) (map[string][]domain.RecipeComponent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string][]domain.RecipeComponent, len(productIDs))
	for _, id := range productIDs {
		if components, ok := s.recipes[id]; ok {
			copied := make([]domain.RecipeComponent, len(components))
			copy(copied, components)
			result[id] = copied
		}
	}
	return result, nil
}

// ---- movement ledger and stock ----

func (s *Store) AppendMovements(_ context.Context, movements []domain.InventoryMovement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendMovementsLocked(movements)
}

func (s *Store) appendMovementsLocked(movements []domain.InventoryMovement) error {
	for i := range movements {
		if err := validateMovement(movements[i]); err != nil {
			return err
		}
	}
	for _, m := range movements {
		if m.ID == "" {
			m.ID = xid.New("mov")
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now().UTC()
		}
		s.movements = append(s.movements, m)
		s.stockLevels[m.ProductID] += m.SignedQuantity()
	}
	return nil
}

func validateMovement(m domain.InventoryMovement) error {
	if m.ProductID == "" || m.Quantity <= 0 {
		return store.ErrInvalidInput
	}
	if !domain.ValidMovementReason(m.Operation, m.Reason) {
		return store.ErrInvalidInput
	}
	return nil
}

func (s *Store) ListMovementsByOrder(_ context.Context, orderID string) ([]domain.InventoryMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.InventoryMovement, 0, 8)
	for _, m := range s.movements {
		if m.OrderID == orderID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) AggregateMovements(_ context.Context, from, to time.Time) (map[string]domain.MovementTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := map[string]domain.MovementTotals{}
	for _, m := range s.movements {
		if m.CreatedAt.Before(from) || !m.CreatedAt.Before(to) {
			continue
		}
		t := totals[m.ProductID]
		if bucket := t.Bucket(m.Operation, m.Reason); bucket != nil {
			*bucket += m.Quantity
		}
		totals[m.ProductID] = t
	}
	return totals, nil
}

func (s *Store) NetMovementsBefore(_ context.Context, before time.Time) (map[string]money.Quantity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	net := map[string]money.Quantity{}
	for _, m := range s.movements {
		if m.CreatedAt.Before(before) {
			net[m.ProductID] += m.SignedQuantity()
		}
	}
	return net, nil
}

func (s *Store) GetStockLevels(_ context.Context, productIDs []string) (map[string]money.Quantity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	levels := map[string]money.Quantity{}
	if productIDs == nil {
		for id, qty := range s.stockLevels {
			levels[id] = qty
		}
		return levels, nil
	}
	for _, id := range productIDs {
		levels[id] = s.stockLevels[id]
	}
	return levels, nil
}

// ---- orders ----

func (s *Store) CreateOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ordersByID[order.ID]; exists {
		return nil, store.ErrConflict
	}
	stored := cloneOrder(order)
	s.ordersByID[order.ID] = &stored
	created := cloneOrder(stored)
	return &created, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.ordersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := cloneOrder(*order)
	return &found, nil
}

func (s *Store) ListOrdersByShift(_ context.Context, shiftID string) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.Order, 0, 32)
	for _, order := range s.ordersByID {
		if order.ShiftID == shiftID {
			orders = append(orders, cloneOrder(*order))
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.Before(orders[j].CreatedAt) })
	return orders, nil
}

func (s *Store) CountProcessingOrdersByShift(_ context.Context, shiftID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, order := range s.ordersByID {
		if order.ShiftID == shiftID && order.Status == domain.OrderProcessing {
			count++
		}
	}
	return count, nil
}

func (s *Store) ReplaceOrderItems(_ context.Context, orderID string, items []domain.OrderItem, totals domain.OrderTotals) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.ordersByID[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if order.Status != domain.OrderProcessing {
		return nil, &domain.InvalidOrderStateError{OrderID: orderID, Current: order.Status, Attempted: domain.OrderProcessing}
	}

	order.Items = make([]domain.OrderItem, len(items))
	copy(order.Items, items)
	applyTotals(order, totals)
	updated := cloneOrder(*order)
	return &updated, nil
}

func (s *Store) SetOrderDiscount(_ context.Context, orderID string, discountType domain.DiscountType, discountValue money.Cents, totals domain.OrderTotals) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.ordersByID[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if order.Status != domain.OrderProcessing {
		return nil, &domain.InvalidOrderStateError{OrderID: orderID, Current: order.Status, Attempted: domain.OrderProcessing}
	}

	order.DiscountType = discountType
	order.DiscountValue = discountValue
	applyTotals(order, totals)
	updated := cloneOrder(*order)
	return &updated, nil
}

func (s *Store) CompleteOrder(_ context.Context, orderID string, at time.Time, paymentStatus domain.PaymentStatus, payments []domain.Payment, movements []domain.InventoryMovement) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.ordersByID[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	// Re-check inside the lock so a double-submit is rejected, not replayed.
	if order.Status != domain.OrderProcessing {
		return nil, &domain.InvalidOrderStateError{OrderID: orderID, Current: order.Status, Attempted: domain.OrderCompleted}
	}

	if err := s.appendMovementsLocked(movements); err != nil {
		return nil, err
	}
	for _, p := range payments {
		s.paymentsByOrder[orderID] = append(s.paymentsByOrder[orderID], p)
	}

	order.Status = domain.OrderCompleted
	order.PaymentStatus = paymentStatus
	completedAt := at
	order.CompletedAt = &completedAt
	updated := cloneOrder(*order)
	return &updated, nil
}

func (s *Store) CancelOrder(_ context.Context, orderID string, reason string, at time.Time, reversals []domain.Payment, movements []domain.InventoryMovement) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.ordersByID[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !domain.CanTransitionOrder(order.Status, domain.OrderCancelled) {
		return nil, &domain.InvalidOrderStateError{OrderID: orderID, Current: order.Status, Attempted: domain.OrderCancelled}
	}

	if err := s.appendMovementsLocked(movements); err != nil {
		return nil, err
	}
	for _, p := range reversals {
		s.paymentsByOrder[orderID] = append(s.paymentsByOrder[orderID], p)
	}

	order.Status = domain.OrderCancelled
	order.CancelReason = reason
	cancelledAt := at
	order.CancelledAt = &cancelledAt
	updated := cloneOrder(*order)
	return &updated, nil
}

func applyTotals(order *domain.Order, totals domain.OrderTotals) {
	order.SubtotalCents = totals.Subtotal
	order.TaxCents = totals.Tax
	order.ServiceChargeCents = totals.ServiceCharge
	order.DiscountCents = totals.Discount
	order.TotalCents = totals.Total
	order.CostCents = totals.Cost
}

func cloneOrder(order domain.Order) domain.Order {
	cloned := order
	cloned.Items = make([]domain.OrderItem, len(order.Items))
	copy(cloned.Items, order.Items)
	return cloned
}

// ---- payments ----

func (s *Store) ListPaymentsByOrder(_ context.Context, orderID string) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payments := s.paymentsByOrder[orderID]
	out := make([]domain.Payment, len(payments))
	copy(out, payments)
	return out, nil
}

func (s *Store) SumPaymentsByShift(_ context.Context, shiftID string) (map[domain.PaymentMethod]money.Cents, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sums := map[domain.PaymentMethod]money.Cents{}
	for _, payments := range s.paymentsByOrder {
		for _, p := range payments {
			if p.ShiftID == shiftID {
				sums[p.Method] += p.AmountCents
			}
		}
	}
	return sums, nil
}

// ---- returns ----

func (s *Store) CreateOrderReturn(_ context.Context, ret domain.OrderReturn, returnStatus domain.ReturnStatus, movements []domain.InventoryMovement) (*domain.OrderReturn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.ordersByID[ret.OrderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if order.Status != domain.OrderCompleted {
		return nil, &domain.InvalidOrderStateError{OrderID: ret.OrderID, Current: order.Status, Attempted: domain.OrderCompleted}
	}

	if err := s.appendMovementsLocked(movements); err != nil {
		return nil, err
	}

	s.returnsByID[ret.ID] = cloneReturn(ret)
	s.returnsByOrder[ret.OrderID] = append(s.returnsByOrder[ret.OrderID], ret.ID)
	order.ReturnStatus = returnStatus
	created := cloneReturn(ret)
	return &created, nil
}

func (s *Store) GetReturnedQuantities(_ context.Context, orderID string) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	returned := map[string]int64{}
	for _, retID := range s.returnsByOrder[orderID] {
		for _, item := range s.returnsByID[retID].Items {
			returned[item.OrderItemID] += item.Quantity
		}
	}
	return returned, nil
}

func (s *Store) SumRefundsByShift(_ context.Context, shiftID string) (map[domain.PaymentMethod]money.Cents, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sums := map[domain.PaymentMethod]money.Cents{}
	for _, ret := range s.returnsByID {
		if ret.ShiftID != shiftID {
			continue
		}
		for _, refund := range ret.Refunds {
			sums[refund.Method] += refund.AmountCents
		}
	}
	return sums, nil
}

func cloneReturn(ret domain.OrderReturn) domain.OrderReturn {
	cloned := ret
	cloned.Items = make([]domain.OrderReturnItem, len(ret.Items))
	copy(cloned.Items, ret.Items)
	cloned.Refunds = make([]domain.Refund, len(ret.Refunds))
	copy(cloned.Refunds, ret.Refunds)
	return cloned
}

// ---- daily inventory records ----

func dailyKey(productID, date string) string {
	return productID + "|" + date
}

func (s *Store) ListDailyRecords(_ context.Context, date string) ([]domain.DailyInventoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]domain.DailyInventoryRecord, 0, 32)
	for _, record := range s.dailyRecords {
		if record.Date == date {
			records = append(records, record)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ProductID < records[j].ProductID })
	return records, nil
}

func (s *Store) GetDailyRecord(_ context.Context, productID, date string) (*domain.DailyInventoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.dailyRecords[dailyKey(productID, date)]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := record
	return &found, nil
}

func (s *Store) ListDailyDates(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectDates(func(domain.DailyInventoryRecord) bool { return true }), nil
}

func (s *Store) ListOpenDailyDates(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectDates(func(r domain.DailyInventoryRecord) bool { return r.ClosedAt == nil }), nil
}

func (s *Store) collectDates(keep func(domain.DailyInventoryRecord) bool) []string {
	seen := map[string]struct{}{}
	for _, record := range s.dailyRecords {
		if keep(record) {
			seen[record.Date] = struct{}{}
		}
	}
	dates := make([]string, 0, len(seen))
	for date := range seen {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	return dates
}

func (s *Store) ApplyDailyChanges(_ context.Context, date string, records []domain.DailyInventoryRecord, dryRun bool) error {
	for _, record := range records {
		if record.ProductID == "" || record.Date != date {
			return store.ErrInvalidInput
		}
	}
	if dryRun {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, record := range records {
		if record.ID == "" {
			record.ID = xid.New("day")
		}
		record.UpdatedAt = now
		s.dailyRecords[dailyKey(record.ProductID, date)] = record
	}
	return nil
}

func (s *Store) CloseDailyRecords(_ context.Context, date string, at time.Time, next []domain.DailyInventoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	closedAt := at
	for key, record := range s.dailyRecords {
		if record.Date == date && record.ClosedAt == nil {
			record.ClosedAt = &closedAt
			record.UpdatedAt = at
			s.dailyRecords[key] = record
		}
	}
	for _, record := range next {
		if record.ID == "" {
			record.ID = xid.New("day")
		}
		record.UpdatedAt = at
		s.dailyRecords[dailyKey(record.ProductID, record.Date)] = record
	}
	return nil
}

// ---- shifts and expenses ----

func (s *Store) CreateShift(_ context.Context, shift domain.Shift) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, open := s.openShiftByUser[shift.UserID]; open {
		return nil, store.ErrConflict
	}
	s.shiftsByID[shift.ID] = shift
	s.openShiftByUser[shift.UserID] = shift.ID
	created := shift
	return &created, nil
}

func (s *Store) GetShift(_ context.Context, id string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shift, ok := s.shiftsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := shift
	return &found, nil
}

func (s *Store) GetOpenShiftByUser(_ context.Context, userID string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shiftID, ok := s.openShiftByUser[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	shift := s.shiftsByID[shiftID]
	return &shift, nil
}

func (s *Store) CloseShift(_ context.Context, shift domain.Shift) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.shiftsByID[shift.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if existing.Closed {
		return nil, store.ErrConflict
	}

	s.shiftsByID[shift.ID] = shift
	delete(s.openShiftByUser, shift.UserID)
	closed := shift
	return &closed, nil
}

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expensesByShift[expense.ShiftID] = append(s.expensesByShift[expense.ShiftID], expense)
	created := expense
	return &created, nil
}

func (s *Store) ListExpensesByShift(_ context.Context, shiftID string) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expenses := s.expensesByShift[shiftID]
	out := make([]domain.Expense, len(expenses))
	copy(out, expenses)
	return out, nil
}

// ---- purchasing and waste ----

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if strings.TrimSpace(supplier.Name) == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.suppliersByID[supplier.ID] = supplier
	created := supplier
	return &created, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliersByID))
	for _, supplier := range s.suppliersByID {
		suppliers = append(suppliers, supplier)
	}
	sort.Slice(suppliers, func(i, j int) bool { return suppliers[i].Name < suppliers[j].Name })
	return suppliers, nil
}

func (s *Store) CreatePurchaseOrder(_ context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.suppliersByID[po.SupplierID]; !ok {
		return nil, store.ErrNotFound
	}
	s.purchaseOrders[po.ID] = clonePurchaseOrder(po)
	created := clonePurchaseOrder(po)
	return &created, nil
}

func (s *Store) GetPurchaseOrder(_ context.Context, id string) (*domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	po, ok := s.purchaseOrders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := clonePurchaseOrder(po)
	return &found, nil
}

func (s *Store) ListPurchaseOrders(_ context.Context, status string, limit int) ([]domain.PurchaseOrder, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.PurchaseOrder, 0, limit)
	for _, po := range s.purchaseOrders {
		if status != "" && po.Status != status {
			continue
		}
		orders = append(orders, clonePurchaseOrder(po))
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	if len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func (s *Store) ReceivePurchaseOrder(_ context.Context, id string, receivedBy string, at time.Time, movements []domain.InventoryMovement, costs map[string]money.Cents) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	po, ok := s.purchaseOrders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if po.Status != domain.PurchaseOrderDraft {
		return nil, store.ErrConflict
	}

	if err := s.appendMovementsLocked(movements); err != nil {
		return nil, err
	}
	for productID, cost := range costs {
		if product, ok := s.products[productID]; ok {
			product.CostCents = cost
			s.products[productID] = product
		}
	}

	po.Status = domain.PurchaseOrderReceived
	receivedAt := at
	po.ReceivedAt = &receivedAt
	po.ReceivedBy = receivedBy
	s.purchaseOrders[id] = po
	received := clonePurchaseOrder(po)
	return &received, nil
}

func (s *Store) CreateWasteEntry(_ context.Context, entry domain.WasteEntry, movement domain.InventoryMovement) (*domain.WasteEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.appendMovementsLocked([]domain.InventoryMovement{movement}); err != nil {
		return nil, err
	}
	s.wasteEntries = append(s.wasteEntries, entry)
	created := entry
	return &created, nil
}

func clonePurchaseOrder(po domain.PurchaseOrder) domain.PurchaseOrder {
	cloned := po
	cloned.Items = make([]domain.PurchaseOrderItem, len(po.Items))
	copy(cloned.Items, po.Items)
	return cloned
}

// ---- audit and users ----

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.auditLogs[i])
	}
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[user.Username]; exists {
		return fmt.Errorf("user %s: %w", user.Username, store.ErrConflict)
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}
