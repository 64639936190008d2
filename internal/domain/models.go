package domain

import (
	"time"

	"restopos/backend/internal/money"
)

type Product struct {
	ID         string            `json:"id"`
	SKU        string            `json:"sku"`
	Name       string            `json:"name"`
	Category   string            `json:"category"`
	Type       ProductType       `json:"type"`
	PriceCents money.Cents       `json:"price_cents"`
	CostCents  money.Cents       `json:"cost_cents"`
	Active     bool              `json:"active"`
	Components []RecipeComponent `json:"components,omitempty"`
}

// RecipeComponent is one ingredient line of a manufactured product.
// QtyPerUnit is the quantity consumed per sold unit.
type RecipeComponent struct {
	ProductID   string         `json:"product_id"`
	ComponentID string         `json:"component_id"`
	QtyPerUnit  money.Quantity `json:"qty_per_unit"`
}

type ProductCreateRequest struct {
	SKU        string            `json:"sku"`
	Name       string            `json:"name"`
	Category   string            `json:"category"`
	Type       ProductType       `json:"type"`
	PriceCents money.Cents       `json:"price_cents"`
	CostCents  money.Cents       `json:"cost_cents"`
	Components []RecipeComponent `json:"components,omitempty"`
}

type ProductUpdateRequest struct {
	Name       *string      `json:"name,omitempty"`
	Category   *string      `json:"category,omitempty"`
	PriceCents *money.Cents `json:"price_cents,omitempty"`
	CostCents  *money.Cents `json:"cost_cents,omitempty"`
	Active     *bool        `json:"active,omitempty"`
}

type ProductPriceHistory struct {
	ID            string      `json:"id"`
	ProductID     string      `json:"product_id"`
	OldPriceCents money.Cents `json:"old_price_cents"`
	NewPriceCents money.Cents `json:"new_price_cents"`
	ChangedBy     string      `json:"changed_by"`
	ChangedAt     time.Time   `json:"changed_at"`
}

type Order struct {
	ID                 string        `json:"id"`
	Type               OrderType     `json:"type"`
	Status             OrderStatus   `json:"status"`
	PaymentStatus      PaymentStatus `json:"payment_status"`
	ReturnStatus       ReturnStatus  `json:"return_status"`
	ShiftID            string        `json:"shift_id"`
	UserID             string        `json:"user_id"`
	TableNumber        string        `json:"table_number,omitempty"`
	CustomerID         string        `json:"customer_id,omitempty"`
	DriverID           string        `json:"driver_id,omitempty"`
	SubtotalCents      money.Cents   `json:"subtotal_cents"`
	TaxCents           money.Cents   `json:"tax_cents"`
	ServiceChargeCents money.Cents   `json:"service_charge_cents"`
	DiscountCents      money.Cents   `json:"discount_cents"`
	DiscountType       DiscountType  `json:"discount_type,omitempty"`
	DiscountValue      money.Cents   `json:"discount_value,omitempty"`
	TotalCents         money.Cents   `json:"total_cents"`
	CostCents          money.Cents   `json:"cost_cents"`
	CancelReason       string        `json:"cancel_reason,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	CompletedAt        *time.Time    `json:"completed_at,omitempty"`
	CancelledAt        *time.Time    `json:"cancelled_at,omitempty"`
	Items              []OrderItem   `json:"items"`
}

// Profit is the cost-derived margin of a completed order.
func (o Order) Profit() money.Cents {
	return o.TotalCents - o.CostCents
}

// OrderItem snapshots price and cost at the time the item is added so
// later catalog changes never rewrite order history.
type OrderItem struct {
	ID             string      `json:"id"`
	OrderID        string      `json:"order_id"`
	ProductID      string      `json:"product_id"`
	Quantity       int64       `json:"quantity"`
	UnitPriceCents money.Cents `json:"unit_price_cents"`
	UnitCostCents  money.Cents `json:"unit_cost_cents"`
	LineTotalCents money.Cents `json:"line_total_cents"`
	Notes          string      `json:"notes,omitempty"`
}

type Payment struct {
	ID          string        `json:"id"`
	OrderID     string        `json:"order_id"`
	ShiftID     string        `json:"shift_id"`
	Method      PaymentMethod `json:"method"`
	AmountCents money.Cents   `json:"amount_cents"`
	CreatedAt   time.Time     `json:"created_at"`
}

type OrderReturn struct {
	ID               string            `json:"id"`
	OrderID          string            `json:"order_id"`
	UserID           string            `json:"user_id"`
	ShiftID          string            `json:"shift_id"`
	TotalRefundCents money.Cents       `json:"total_refund_cents"`
	Reason           string            `json:"reason"`
	ReverseStock     bool              `json:"reverse_stock"`
	CreatedAt        time.Time         `json:"created_at"`
	Items            []OrderReturnItem `json:"items"`
	Refunds          []Refund          `json:"refunds"`
}

type OrderReturnItem struct {
	ID            string      `json:"id"`
	OrderReturnID string      `json:"order_return_id"`
	OrderItemID   string      `json:"order_item_id"`
	ProductID     string      `json:"product_id"`
	Quantity      int64       `json:"quantity"`
	RefundCents   money.Cents `json:"refund_cents"`
}

// Refund is one disbursement row of an order return; the rows of a return
// must sum to its total refund exactly.
type Refund struct {
	ID            string        `json:"id"`
	OrderReturnID string        `json:"order_return_id"`
	Method        PaymentMethod `json:"method"`
	AmountCents   money.Cents   `json:"amount_cents"`
}

// InventoryMovement is one row of the append-only stock ledger, the sole
// source of truth for stock derivation. Corrections are offsetting rows,
// never updates.
type InventoryMovement struct {
	ID        string            `json:"id"`
	ProductID string            `json:"product_id"`
	Operation MovementOperation `json:"operation"`
	Reason    MovementReason    `json:"reason"`
	Quantity  money.Quantity    `json:"quantity"`
	OrderID   string            `json:"order_id,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// SignedQuantity is the movement's effect on stock: positive for in,
// negative for out.
func (m InventoryMovement) SignedQuantity() money.Quantity {
	if m.Operation == MovementOut {
		return -m.Quantity
	}
	return m.Quantity
}

// DailyInventoryRecord is the materialized per-product per-day view over
// the movement ledger. EndQuantity is derived but persisted so closed days
// keep their figures after live stock has moved on.
type DailyInventoryRecord struct {
	ID            string         `json:"id"`
	ProductID     string         `json:"product_id"`
	Date          string         `json:"date"` // YYYY-MM-DD, UTC business day
	StartQuantity money.Quantity `json:"start_quantity"`
	Incoming      money.Quantity `json:"incoming_quantity"`
	ReturnSales   money.Quantity `json:"return_sales_quantity"`
	Sales         money.Quantity `json:"sales_quantity"`
	ReturnWaste   money.Quantity `json:"return_waste_quantity"`
	EndQuantity   money.Quantity `json:"end_quantity"`
	ClosedAt      *time.Time     `json:"closed_at,omitempty"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// DerivedEnd recomputes the end quantity from the record's own buckets.
// Sales returns are tracked separately for reporting and do not feed the
// end figure.
func (r DailyInventoryRecord) DerivedEnd() money.Quantity {
	return r.StartQuantity + r.Incoming - r.Sales - r.ReturnWaste
}

type Shift struct {
	ID         string      `json:"id"`
	UserID     string      `json:"user_id"`
	StartCash  money.Cents `json:"start_cash_cents"`
	EndCash    money.Cents `json:"end_cash_cents"`
	RealCash   money.Cents `json:"real_cash_cents"`
	Deficit    money.Cents `json:"deficit_cents"`
	HasDeficit bool        `json:"has_deficit"`
	Closed     bool        `json:"closed"`
	OpenedAt   time.Time   `json:"opened_at"`
	ClosedAt   *time.Time  `json:"closed_at,omitempty"`
}

type Expense struct {
	ID          string        `json:"id"`
	ShiftID     string        `json:"shift_id"`
	UserID      string        `json:"user_id"`
	Description string        `json:"description"`
	Method      PaymentMethod `json:"method"`
	AmountCents money.Cents   `json:"amount_cents"`
	CreatedAt   time.Time     `json:"created_at"`
}

type Supplier struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

type PurchaseOrderItem struct {
	ProductID string         `json:"product_id"`
	Quantity  money.Quantity `json:"quantity"`
	CostCents money.Cents    `json:"cost_cents"`
}

type PurchaseOrder struct {
	ID         string              `json:"id"`
	SupplierID string              `json:"supplier_id"`
	Status     string              `json:"status"` // draft | received
	CreatedAt  time.Time           `json:"created_at"`
	ReceivedAt *time.Time          `json:"received_at,omitempty"`
	ReceivedBy string              `json:"received_by,omitempty"`
	Items      []PurchaseOrderItem `json:"items"`
}

const (
	PurchaseOrderDraft    = "draft"
	PurchaseOrderReceived = "received"
)

type WasteEntry struct {
	ID        string         `json:"id"`
	ProductID string         `json:"product_id"`
	Quantity  money.Quantity `json:"quantity"`
	Reason    string         `json:"reason"`
	UserID    string         `json:"user_id"`
	CreatedAt time.Time      `json:"created_at"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// CashierInfo is the outward view of a user account, without credentials.
type CashierInfo struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// ---- operation requests / responses ----

type OrderCreateRequest struct {
	Type        OrderType `json:"type"`
	ShiftID     string    `json:"shift_id"`
	TableNumber string    `json:"table_number,omitempty"`
	CustomerID  string    `json:"customer_id,omitempty"`
	DriverID    string    `json:"driver_id,omitempty"`
}

type OrderItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	Notes     string `json:"notes,omitempty"`
}

type OrderItemsUpdateRequest struct {
	Items []OrderItemInput `json:"items"`
}

// DiscountRequest applies a discount before completion. Value is whole
// percent (e.g. 10) for percent discounts, cents for value discounts.
type DiscountRequest struct {
	Type  DiscountType `json:"type"`
	Value int64        `json:"value"`
}

type OrderCompleteRequest struct {
	Payments map[PaymentMethod]money.Cents `json:"payments"`
	Print    bool                          `json:"print"`
}

type OrderCancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

type ReturnItemInput struct {
	OrderItemID string `json:"order_item_id"`
	Quantity    int64  `json:"quantity"`
}

type OrderReturnRequest struct {
	Items        []ReturnItemInput             `json:"items"`
	Refunds      map[PaymentMethod]money.Cents `json:"refunds"`
	Reason       string                        `json:"reason"`
	ReverseStock bool                          `json:"reverse_stock"`
}

// OrderSnapshot is the read-only view handed to the printing subsystem.
type OrderSnapshot struct {
	OrderID       string              `json:"order_id"`
	Type          OrderType           `json:"type"`
	TypeLabel     string              `json:"type_label"`
	TableNumber   string              `json:"table_number,omitempty"`
	Items         []OrderSnapshotLine `json:"items"`
	Subtotal      string              `json:"subtotal"`
	Tax           string              `json:"tax"`
	ServiceCharge string              `json:"service_charge"`
	Discount      string              `json:"discount"`
	Total         string              `json:"total"`
	FooterText    string              `json:"footer_text,omitempty"`
	CreatedAt     string              `json:"created_at"`
}

type OrderSnapshotLine struct {
	Name      string `json:"name"`
	Quantity  int64  `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	LineTotal string `json:"line_total"`
}

type ShiftOpenRequest struct {
	StartCashCents money.Cents `json:"start_cash_cents"`
}

type ShiftCloseRequest struct {
	ShiftID       string      `json:"shift_id"`
	RealCashCents money.Cents `json:"real_cash_cents"`
}

type ShiftReport struct {
	Shift         Shift                         `json:"shift"`
	OrderCount    int                           `json:"order_count"`
	SalesCents    money.Cents                   `json:"sales_cents"`
	PaidByMethod  map[PaymentMethod]money.Cents `json:"paid_by_method"`
	ExpensesCents money.Cents                   `json:"expenses_cents"`
	RefundsCents  money.Cents                   `json:"refunds_cents"`
}

type ExpenseCreateRequest struct {
	ShiftID     string      `json:"shift_id"`
	Description string      `json:"description"`
	AmountCents money.Cents `json:"amount_cents"`
}

type SupplierCreateRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type PurchaseOrderCreateRequest struct {
	SupplierID string              `json:"supplier_id"`
	Items      []PurchaseOrderItem `json:"items"`
}

type PurchaseReturnRequest struct {
	PurchaseOrderID string              `json:"purchase_order_id"`
	Items           []PurchaseOrderItem `json:"items"`
	Reason          string              `json:"reason"`
}

type WasteCreateRequest struct {
	ProductID string         `json:"product_id"`
	Quantity  money.Quantity `json:"quantity"`
	Reason    string         `json:"reason"`
}

// OrderTotals carries the recomputed financial figures of an order when a
// mutation is persisted. Invariant: Total = Subtotal + Tax + ServiceCharge
// - Discount, with Tax and ServiceCharge computed on (Subtotal - Discount).
type OrderTotals struct {
	Subtotal      money.Cents
	Tax           money.Cents
	ServiceCharge money.Cents
	Discount      money.Cents
	Total         money.Cents
	Cost          money.Cents
}

// MovementTotals are the four aggregation buckets of one product inside a
// daily window.
type MovementTotals struct {
	Incoming    money.Quantity
	ReturnSales money.Quantity
	Sales       money.Quantity
	ReturnWaste money.Quantity
}

// Bucket returns the bucket a (operation, reason) pair belongs to, or nil
// for pairs outside the daily view.
func (t *MovementTotals) Bucket(op MovementOperation, reason MovementReason) *money.Quantity {
	switch {
	case op == MovementIn && reason == ReasonPurchase:
		return &t.Incoming
	case op == MovementIn && reason == ReasonOrderReturn:
		return &t.ReturnSales
	case op == MovementOut && reason == ReasonOrder:
		return &t.Sales
	case op == MovementOut && (reason == ReasonWaste || reason == ReasonPurchaseReturn):
		return &t.ReturnWaste
	}
	return nil
}

// DerivePaymentStatus is the pure payment-status function of (paid, total).
// Zero-total orders count as fully paid.
func DerivePaymentStatus(paid, total money.Cents) PaymentStatus {
	switch {
	case paid >= total:
		return PaymentFull
	case paid > 0:
		return PaymentPartial
	default:
		return PaymentPending
	}
}
