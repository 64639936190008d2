package domain

// Status enums are plain string constants with pure helper functions.
// Display labels and validation live here, never as methods on the
// persisted entities.

type OrderStatus string

const (
	OrderProcessing OrderStatus = "processing"
	OrderCompleted  OrderStatus = "completed"
	OrderCancelled  OrderStatus = "cancelled"
)

type OrderType string

const (
	OrderDineIn     OrderType = "dine_in"
	OrderTakeaway   OrderType = "takeaway"
	OrderDelivery   OrderType = "delivery"
	OrderCompanies  OrderType = "companies"
	OrderAggregator OrderType = "aggregator"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPartial PaymentStatus = "partial"
	PaymentFull    PaymentStatus = "full"
)

type ReturnStatus string

const (
	ReturnNone    ReturnStatus = "none"
	ReturnPartial ReturnStatus = "partial"
	ReturnFull    ReturnStatus = "full"
)

type PaymentMethod string

const (
	MethodCash           PaymentMethod = "cash"
	MethodCard           PaymentMethod = "card"
	MethodAggregatorCard PaymentMethod = "aggregator_card"
)

type MovementOperation string

const (
	MovementIn  MovementOperation = "in"
	MovementOut MovementOperation = "out"
)

type MovementReason string

const (
	ReasonPurchase       MovementReason = "purchase"
	ReasonOrder          MovementReason = "order"
	ReasonOrderReturn    MovementReason = "order_return"
	ReasonWaste          MovementReason = "waste"
	ReasonPurchaseReturn MovementReason = "purchase_return"
)

type ProductType string

const (
	ProductStocked      ProductType = "stocked"
	ProductManufactured ProductType = "manufactured"
	ProductService      ProductType = "service"
)

type DiscountType string

const (
	DiscountPercent DiscountType = "percent"
	DiscountValue   DiscountType = "value"
)

func ValidOrderType(t OrderType) bool {
	switch t {
	case OrderDineIn, OrderTakeaway, OrderDelivery, OrderCompanies, OrderAggregator:
		return true
	}
	return false
}

func ValidPaymentMethod(m PaymentMethod) bool {
	switch m {
	case MethodCash, MethodCard, MethodAggregatorCard:
		return true
	}
	return false
}

func ValidMovementReason(op MovementOperation, reason MovementReason) bool {
	switch op {
	case MovementIn:
		return reason == ReasonPurchase || reason == ReasonOrderReturn
	case MovementOut:
		return reason == ReasonOrder || reason == ReasonWaste || reason == ReasonPurchaseReturn
	}
	return false
}

// CanTransitionOrder reports whether an order may move from one status to
// another. completed -> cancelled is listed here but additionally requires
// an admin actor, which the service layer enforces.
func CanTransitionOrder(from, to OrderStatus) bool {
	switch from {
	case OrderProcessing:
		return to == OrderCompleted || to == OrderCancelled
	case OrderCompleted:
		return to == OrderCancelled
	}
	return false
}

// AllowsDeferredPayment reports whether the order type may be completed
// without full payment (settled later against the company account).
func AllowsDeferredPayment(t OrderType) bool {
	return t == OrderCompanies
}

// OrderTypeLabel is the operator-facing label for an order type.
func OrderTypeLabel(t OrderType) string {
	switch t {
	case OrderDineIn:
		return "Dine-in"
	case OrderTakeaway:
		return "Takeaway"
	case OrderDelivery:
		return "Delivery"
	case OrderCompanies:
		return "Companies"
	case OrderAggregator:
		return "Aggregator"
	}
	return string(t)
}
