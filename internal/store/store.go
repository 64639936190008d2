package store

import (
	"context"
	"errors"
	"time"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/money"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
)

// Repository is the persistence boundary of the core. The two ledgers
// (payments, inventory movements) are append-only: implementations must
// never update or delete their rows. Multi-row operations named on an
// aggregate (CompleteOrder, CancelOrder, CreateOrderReturn,
// ReceivePurchaseOrder, ApplyDailyChanges) are transactional: the state
// check and every write happen inside one transaction.
type Repository interface {
	// Products and recipes.
	ListProducts(ctx context.Context) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	CreatePriceHistory(ctx context.Context, entry domain.ProductPriceHistory) error
	ListPriceHistory(ctx context.Context, productID string, limit int) ([]domain.ProductPriceHistory, error)
	GetRecipeComponents(ctx context.Context, productIDs []string) (map[string][]domain.RecipeComponent, error)

	// Inventory movement ledger and live stock levels. AppendMovements
	// adjusts the live stock level of each product in the same transaction.
	AppendMovements(ctx context.Context, movements []domain.InventoryMovement) error
	ListMovementsByOrder(ctx context.Context, orderID string) ([]domain.InventoryMovement, error)
	AggregateMovements(ctx context.Context, from, to time.Time) (map[string]domain.MovementTotals, error)
	NetMovementsBefore(ctx context.Context, before time.Time) (map[string]money.Quantity, error)
	GetStockLevels(ctx context.Context, productIDs []string) (map[string]money.Quantity, error)

	// Orders.
	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	ListOrdersByShift(ctx context.Context, shiftID string) ([]domain.Order, error)
	CountProcessingOrdersByShift(ctx context.Context, shiftID string) (int, error)
	ReplaceOrderItems(ctx context.Context, orderID string, items []domain.OrderItem, totals domain.OrderTotals) (*domain.Order, error)
	SetOrderDiscount(ctx context.Context, orderID string, discountType domain.DiscountType, discountValue money.Cents, totals domain.OrderTotals) (*domain.Order, error)
	CompleteOrder(ctx context.Context, orderID string, at time.Time, paymentStatus domain.PaymentStatus, payments []domain.Payment, movements []domain.InventoryMovement) (*domain.Order, error)
	CancelOrder(ctx context.Context, orderID string, reason string, at time.Time, reversals []domain.Payment, movements []domain.InventoryMovement) (*domain.Order, error)

	// Payment ledger.
	ListPaymentsByOrder(ctx context.Context, orderID string) ([]domain.Payment, error)
	SumPaymentsByShift(ctx context.Context, shiftID string) (map[domain.PaymentMethod]money.Cents, error)

	// Returns and refunds.
	CreateOrderReturn(ctx context.Context, ret domain.OrderReturn, returnStatus domain.ReturnStatus, movements []domain.InventoryMovement) (*domain.OrderReturn, error)
	GetReturnedQuantities(ctx context.Context, orderID string) (map[string]int64, error)
	SumRefundsByShift(ctx context.Context, shiftID string) (map[domain.PaymentMethod]money.Cents, error)

	// Daily inventory records.
	ListDailyRecords(ctx context.Context, date string) ([]domain.DailyInventoryRecord, error)
	GetDailyRecord(ctx context.Context, productID, date string) (*domain.DailyInventoryRecord, error)
	ListDailyDates(ctx context.Context) ([]string, error)
	ListOpenDailyDates(ctx context.Context) ([]string, error)
	// ApplyDailyChanges upserts the given records for one date in a single
	// transaction. With dryRun the transaction is rolled back and nothing
	// is persisted.
	ApplyDailyChanges(ctx context.Context, date string, records []domain.DailyInventoryRecord, dryRun bool) error
	CloseDailyRecords(ctx context.Context, date string, at time.Time, next []domain.DailyInventoryRecord) error

	// Shifts and expenses.
	CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error)
	GetShift(ctx context.Context, id string) (*domain.Shift, error)
	GetOpenShiftByUser(ctx context.Context, userID string) (*domain.Shift, error)
	CloseShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error)
	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	ListExpensesByShift(ctx context.Context, shiftID string) ([]domain.Expense, error)

	// Purchasing and waste.
	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error)
	GetPurchaseOrder(ctx context.Context, id string) (*domain.PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, status string, limit int) ([]domain.PurchaseOrder, error)
	ReceivePurchaseOrder(ctx context.Context, id string, receivedBy string, at time.Time, movements []domain.InventoryMovement, costs map[string]money.Cents) (*domain.PurchaseOrder, error)
	CreateWasteEntry(ctx context.Context, entry domain.WasteEntry, movement domain.InventoryMovement) (*domain.WasteEntry, error)

	// Audit log and users.
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
