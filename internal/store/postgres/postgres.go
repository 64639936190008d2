package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/money"
	"restopos/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ---- products and recipes ----

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, name, category, type, price_cents, cost_cents, active
		FROM products
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &p.Type, &p.PriceCents, &p.CostCents, &p.Active); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (id, sku, name, category, type, price_cents, cost_cents, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now(),now())
	`, product.ID, product.SKU, product.Name, product.Category, product.Type, product.PriceCents, product.CostCents, product.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	for _, component := range product.Components {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO recipe_components (product_id, component_id, qty_per_unit)
			VALUES ($1,$2,$3)
		`, product.ID, component.ComponentID, component.QtyPerUnit)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := product
	return &created, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, sku, name, category, type, price_cents, cost_cents, active
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &p.Type, &p.PriceCents, &p.CostCents, &p.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	recipes, err := s.GetRecipeComponents(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	p.Components = recipes[id]
	return &p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, price_cents = $4, cost_cents = $5, active = $6, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, product.Category, product.PriceCents, product.CostCents, product.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := product
	return &updated, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, name, category, type, price_cents, cost_cents, active
		FROM products
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &p.Type, &p.PriceCents, &p.CostCents, &p.Active); err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreatePriceHistory(ctx context.Context, entry domain.ProductPriceHistory) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO product_price_history (id, product_id, old_price_cents, new_price_cents, changed_by, changed_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, entry.ID, entry.ProductID, entry.OldPriceCents, entry.NewPriceCents, entry.ChangedBy, entry.ChangedAt)
	return err
}

func (s *Store) ListPriceHistory(ctx context.Context, productID string, limit int) ([]domain.ProductPriceHistory, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, old_price_cents, new_price_cents, changed_by, changed_at
		FROM product_price_history
		WHERE product_id = $1
		ORDER BY changed_at DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := make([]domain.ProductPriceHistory, 0, limit)
	for rows.Next() {
		var entry domain.ProductPriceHistory
		if err := rows.Scan(&entry.ID, &entry.ProductID, &entry.OldPriceCents, &entry.NewPriceCents, &entry.ChangedBy, &entry.ChangedAt); err != nil {
			return nil, err
		}
		entry.ChangedAt = entry.ChangedAt.UTC()
		history = append(history, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return history, nil
}

func (s *Store) GetRecipeComponents(ctx context.Context, productIDs []string) (map[string][]domain.RecipeComponent, error) {
	result := make(map[string][]domain.RecipeComponent, len(productIDs))
	if len(productIDs) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, component_id, qty_per_unit
		FROM recipe_components
		WHERE product_id = ANY($1)
		ORDER BY product_id, component_id
	`, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var c domain.RecipeComponent
		if err := rows.Scan(&c.ProductID, &c.ComponentID, &c.QtyPerUnit); err != nil {
			return nil, err
		}
		result[c.ProductID] = append(result[c.ProductID], c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ---- inventory movement ledger ----

// appendMovementsTx inserts ledger rows and adjusts live stock levels in
// the caller's transaction. Ledger rows are insert-only.
func appendMovementsTx(ctx context.Context, tx *sql.Tx, movements []domain.InventoryMovement) error {
	for _, m := range movements {
		if m.Quantity <= 0 || !domain.ValidMovementReason(m.Operation, m.Reason) {
			return store.ErrInvalidInput
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO inventory_movements (id, product_id, operation, reason, quantity, order_id, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, m.ID, m.ProductID, m.Operation, m.Reason, m.Quantity, nullIfEmpty(m.OrderID), m.CreatedAt)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO stock_levels (product_id, quantity, updated_at)
			VALUES ($1,$2,now())
			ON CONFLICT (product_id)
			DO UPDATE SET quantity = stock_levels.quantity + EXCLUDED.quantity, updated_at = now()
		`, m.ProductID, m.SignedQuantity())
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) AppendMovements(ctx context.Context, movements []domain.InventoryMovement) error {
	if len(movements) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := appendMovementsTx(ctx, tx, movements); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ListMovementsByOrder(ctx context.Context, orderID string) ([]domain.InventoryMovement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, operation, reason, quantity, COALESCE(order_id,''), created_at
		FROM inventory_movements
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.InventoryMovement, 0, 8)
	for rows.Next() {
		var m domain.InventoryMovement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Operation, &m.Reason, &m.Quantity, &m.OrderID, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func (s *Store) AggregateMovements(ctx context.Context, from, to time.Time) (map[string]domain.MovementTotals, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, operation, reason, COALESCE(SUM(quantity),0)::bigint
		FROM inventory_movements
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY product_id, operation, reason
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := map[string]domain.MovementTotals{}
	for rows.Next() {
		var productID string
		var op domain.MovementOperation
		var reason domain.MovementReason
		var qty money.Quantity
		if err := rows.Scan(&productID, &op, &reason, &qty); err != nil {
			return nil, err
		}
		t := totals[productID]
		if bucket := t.Bucket(op, reason); bucket != nil {
			*bucket += qty
		}
		totals[productID] = t
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return totals, nil
}

func (s *Store) NetMovementsBefore(ctx context.Context, before time.Time) (map[string]money.Quantity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id,
			COALESCE(SUM(CASE WHEN operation = 'in' THEN quantity ELSE -quantity END),0)::bigint
		FROM inventory_movements
		WHERE created_at < $1
		GROUP BY product_id
	`, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	net := map[string]money.Quantity{}
	for rows.Next() {
		var productID string
		var qty money.Quantity
		if err := rows.Scan(&productID, &qty); err != nil {
			return nil, err
		}
		net[productID] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return net, nil
}

func (s *Store) GetStockLevels(ctx context.Context, productIDs []string) (map[string]money.Quantity, error) {
	query := `
		SELECT product_id, quantity
		FROM stock_levels
	`
	args := []any{}
	if len(productIDs) > 0 {
		query += ` WHERE product_id = ANY($1)`
		args = append(args, productIDs)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	levels := make(map[string]money.Quantity, len(productIDs))
	for rows.Next() {
		var productID string
		var qty money.Quantity
		if err := rows.Scan(&productID, &qty); err != nil {
			return nil, err
		}
		levels[productID] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range productIDs {
		if _, ok := levels[id]; !ok {
			levels[id] = 0
		}
	}
	return levels, nil
}

// ---- orders ----

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (
			id, type, status, payment_status, return_status, shift_id, user_id,
			table_number, customer_id, driver_id, subtotal_cents, tax_cents,
			service_charge_cents, discount_cents, discount_type, discount_value,
			total_cents, cost_cents, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`, order.ID, order.Type, order.Status, order.PaymentStatus, order.ReturnStatus,
		order.ShiftID, order.UserID, nullIfEmpty(order.TableNumber), nullIfEmpty(order.CustomerID),
		nullIfEmpty(order.DriverID), order.SubtotalCents, order.TaxCents, order.ServiceChargeCents,
		order.DiscountCents, nullIfEmpty(string(order.DiscountType)), order.DiscountValue,
		order.TotalCents, order.CostCents, order.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := order
	return &created, nil
}

const orderColumns = `
	id, type, status, payment_status, return_status, shift_id, user_id,
	COALESCE(table_number,''), COALESCE(customer_id,''), COALESCE(driver_id,''),
	subtotal_cents, tax_cents, service_charge_cents, discount_cents,
	COALESCE(discount_type,''), discount_value, total_cents, cost_cents,
	COALESCE(cancel_reason,''), created_at, completed_at, cancelled_at
`

func scanOrder(scan func(dest ...any) error) (*domain.Order, error) {
	var o domain.Order
	var completedAt, cancelledAt sql.NullTime
	err := scan(
		&o.ID, &o.Type, &o.Status, &o.PaymentStatus, &o.ReturnStatus, &o.ShiftID, &o.UserID,
		&o.TableNumber, &o.CustomerID, &o.DriverID,
		&o.SubtotalCents, &o.TaxCents, &o.ServiceChargeCents, &o.DiscountCents,
		&o.DiscountType, &o.DiscountValue, &o.TotalCents, &o.CostCents,
		&o.CancelReason, &o.CreatedAt, &completedAt, &cancelledAt,
	)
	if err != nil {
		return nil, err
	}
	o.CreatedAt = o.CreatedAt.UTC()
	if completedAt.Valid {
		at := completedAt.Time.UTC()
		o.CompletedAt = &at
	}
	if cancelledAt.Valid {
		at := cancelledAt.Time.UTC()
		o.CancelledAt = &at
	}
	return &o, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	order, err := scanOrder(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	items, err := s.listOrderItems(ctx, id)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

func (s *Store) listOrderItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, quantity, unit_price_cents, unit_cost_cents, line_total_cents, COALESCE(notes,'')
		FROM order_items
		WHERE order_id = $1
		ORDER BY id ASC
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0, 8)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.UnitPriceCents, &item.UnitCostCents, &item.LineTotalCents, &item.Notes); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListOrdersByShift(ctx context.Context, shiftID string) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE shift_id = $1 ORDER BY created_at ASC`, shiftID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, 32)
	for rows.Next() {
		order, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		items, err := s.listOrderItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

func (s *Store) CountProcessingOrdersByShift(ctx context.Context, shiftID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::int
		FROM orders
		WHERE shift_id = $1 AND status = $2
	`, shiftID, domain.OrderProcessing).Scan(&count)
	return count, err
}

// lockOrderStatus reads an order's status FOR UPDATE so state checks and
// the writes they guard happen atomically.
func lockOrderStatus(ctx context.Context, tx *sql.Tx, orderID string) (domain.OrderStatus, error) {
	var status domain.OrderStatus
	err := tx.QueryRowContext(ctx, `
		SELECT status FROM orders WHERE id = $1 FOR UPDATE
	`, orderID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", store.ErrNotFound
		}
		return "", err
	}
	return status, nil
}

func (s *Store) ReplaceOrderItems(ctx context.Context, orderID string, items []domain.OrderItem, totals domain.OrderTotals) (*domain.Order, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	status, err := lockOrderStatus(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if status != domain.OrderProcessing {
		return nil, &domain.InvalidOrderStateError{OrderID: orderID, Current: status, Attempted: domain.OrderProcessing}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, orderID); err != nil {
		return nil, err
	}
	for _, item := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, quantity, unit_price_cents, unit_cost_cents, line_total_cents, notes)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, item.ID, orderID, item.ProductID, item.Quantity, item.UnitPriceCents, item.UnitCostCents, item.LineTotalCents, nullIfEmpty(item.Notes))
		if err != nil {
			return nil, err
		}
	}

	if err := updateOrderTotalsTx(ctx, tx, orderID, totals); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, orderID)
}

func updateOrderTotalsTx(ctx context.Context, tx *sql.Tx, orderID string, totals domain.OrderTotals) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET subtotal_cents = $2, tax_cents = $3, service_charge_cents = $4,
			discount_cents = $5, total_cents = $6, cost_cents = $7
		WHERE id = $1
	`, orderID, totals.Subtotal, totals.Tax, totals.ServiceCharge, totals.Discount, totals.Total, totals.Cost)
	return err
}

func (s *Store) SetOrderDiscount(ctx context.Context, orderID string, discountType domain.DiscountType, discountValue money.Cents, totals domain.OrderTotals) (*domain.Order, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	status, err := lockOrderStatus(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if status != domain.OrderProcessing {
		return nil, &domain.InvalidOrderStateError{OrderID: orderID, Current: status, Attempted: domain.OrderProcessing}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders
		SET discount_type = $2, discount_value = $3, subtotal_cents = $4, tax_cents = $5,
			service_charge_cents = $6, discount_cents = $7, total_cents = $8, cost_cents = $9
		WHERE id = $1
	`, orderID, discountType, discountValue, totals.Subtotal, totals.Tax, totals.ServiceCharge, totals.Discount, totals.Total, totals.Cost)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, orderID)
}

func (s *Store) CompleteOrder(ctx context.Context, orderID string, at time.Time, paymentStatus domain.PaymentStatus, payments []domain.Payment, movements []domain.InventoryMovement) (*domain.Order, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	status, err := lockOrderStatus(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if status != domain.OrderProcessing {
		return nil, &domain.InvalidOrderStateError{OrderID: orderID, Current: status, Attempted: domain.OrderCompleted}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, payment_status = $3, completed_at = $4
		WHERE id = $1
	`, orderID, domain.OrderCompleted, paymentStatus, at)
	if err != nil {
		return nil, err
	}

	for _, p := range payments {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO payments (id, order_id, shift_id, method, amount_cents, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, p.ID, p.OrderID, p.ShiftID, p.Method, p.AmountCents, p.CreatedAt)
		if err != nil {
			return nil, err
		}
	}

	if err := appendMovementsTx(ctx, tx, movements); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, orderID)
}

func (s *Store) CancelOrder(ctx context.Context, orderID string, reason string, at time.Time, reversals []domain.Payment, movements []domain.InventoryMovement) (*domain.Order, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	status, err := lockOrderStatus(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransitionOrder(status, domain.OrderCancelled) {
		return nil, &domain.InvalidOrderStateError{OrderID: orderID, Current: status, Attempted: domain.OrderCancelled}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, cancel_reason = $3, cancelled_at = $4
		WHERE id = $1
	`, orderID, domain.OrderCancelled, nullIfEmpty(reason), at)
	if err != nil {
		return nil, err
	}

	// Reversal rows carry negative amounts; the original payment rows stay.
	for _, p := range reversals {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO payments (id, order_id, shift_id, method, amount_cents, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, p.ID, p.OrderID, p.ShiftID, p.Method, p.AmountCents, p.CreatedAt)
		if err != nil {
			return nil, err
		}
	}

	for _, m := range movements {
		if m.Quantity <= 0 || !domain.ValidMovementReason(m.Operation, m.Reason) {
			return nil, store.ErrInvalidInput
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO inventory_movements (id, product_id, operation, reason, quantity, order_id, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, m.ID, m.ProductID, m.Operation, m.Reason, m.Quantity, nullIfEmpty(m.OrderID), m.CreatedAt)
		if err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO stock_levels (product_id, quantity, updated_at)
			VALUES ($1,$2,now())
			ON CONFLICT (product_id)
			DO UPDATE SET quantity = stock_levels.quantity + EXCLUDED.quantity, updated_at = now()
		`, m.ProductID, m.SignedQuantity())
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, orderID)
}

// ---- payment ledger ----

func (s *Store) ListPaymentsByOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, shift_id, method, amount_cents, created_at
		FROM payments
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0, 4)
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(&p.ID, &p.OrderID, &p.ShiftID, &p.Method, &p.AmountCents, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func (s *Store) SumPaymentsByShift(ctx context.Context, shiftID string) (map[domain.PaymentMethod]money.Cents, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT method, COALESCE(SUM(amount_cents),0)::bigint
		FROM payments
		WHERE shift_id = $1
		GROUP BY method
	`, shiftID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sums := map[domain.PaymentMethod]money.Cents{}
	for rows.Next() {
		var method domain.PaymentMethod
		var amount money.Cents
		if err := rows.Scan(&method, &amount); err != nil {
			return nil, err
		}
		sums[method] = amount
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sums, nil
}

// ---- returns and refunds ----

func (s *Store) CreateOrderReturn(ctx context.Context, ret domain.OrderReturn, returnStatus domain.ReturnStatus, movements []domain.InventoryMovement) (*domain.OrderReturn, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	status, err := lockOrderStatus(ctx, tx, ret.OrderID)
	if err != nil {
		return nil, err
	}
	if status != domain.OrderCompleted {
		return nil, &domain.InvalidOrderStateError{OrderID: ret.OrderID, Current: status, Attempted: domain.OrderCompleted}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO order_returns (id, order_id, user_id, shift_id, total_refund_cents, reason, reverse_stock, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, ret.ID, ret.OrderID, ret.UserID, ret.ShiftID, ret.TotalRefundCents, ret.Reason, ret.ReverseStock, ret.CreatedAt)
	if err != nil {
		return nil, err
	}

	for _, item := range ret.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_return_items (id, order_return_id, order_item_id, product_id, quantity, refund_cents)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, item.ID, ret.ID, item.OrderItemID, item.ProductID, item.Quantity, item.RefundCents)
		if err != nil {
			return nil, err
		}
	}

	for _, refund := range ret.Refunds {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO refunds (id, order_return_id, method, amount_cents)
			VALUES ($1,$2,$3,$4)
		`, refund.ID, ret.ID, refund.Method, refund.AmountCents)
		if err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders SET return_status = $2 WHERE id = $1
	`, ret.OrderID, returnStatus)
	if err != nil {
		return nil, err
	}

	if err := appendMovementsTx(ctx, tx, movements); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := ret
	return &created, nil
}

func (s *Store) GetReturnedQuantities(ctx context.Context, orderID string) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ri.order_item_id, COALESCE(SUM(ri.quantity),0)::bigint
		FROM order_returns r
		JOIN order_return_items ri ON ri.order_return_id = r.id
		WHERE r.order_id = $1
		GROUP BY ri.order_item_id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := map[string]int64{}
	for rows.Next() {
		var itemID string
		var qty int64
		if err := rows.Scan(&itemID, &qty); err != nil {
			return nil, err
		}
		result[itemID] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) SumRefundsByShift(ctx context.Context, shiftID string) (map[domain.PaymentMethod]money.Cents, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rf.method, COALESCE(SUM(rf.amount_cents),0)::bigint
		FROM order_returns r
		JOIN refunds rf ON rf.order_return_id = r.id
		WHERE r.shift_id = $1
		GROUP BY rf.method
	`, shiftID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sums := map[domain.PaymentMethod]money.Cents{}
	for rows.Next() {
		var method domain.PaymentMethod
		var amount money.Cents
		if err := rows.Scan(&method, &amount); err != nil {
			return nil, err
		}
		sums[method] = amount
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sums, nil
}

// ---- daily inventory records ----

const dailyColumns = `
	id, product_id, date, start_quantity, incoming_quantity, return_sales_quantity,
	sales_quantity, return_waste_quantity, end_quantity, closed_at, updated_at
`

func scanDailyRecord(scan func(dest ...any) error) (*domain.DailyInventoryRecord, error) {
	var r domain.DailyInventoryRecord
	var closedAt sql.NullTime
	err := scan(&r.ID, &r.ProductID, &r.Date, &r.StartQuantity, &r.Incoming, &r.ReturnSales,
		&r.Sales, &r.ReturnWaste, &r.EndQuantity, &closedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.UpdatedAt = r.UpdatedAt.UTC()
	if closedAt.Valid {
		at := closedAt.Time.UTC()
		r.ClosedAt = &at
	}
	return &r, nil
}

func (s *Store) ListDailyRecords(ctx context.Context, date string) ([]domain.DailyInventoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+dailyColumns+`
		FROM daily_inventory_records
		WHERE date = $1
		ORDER BY product_id
	`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.DailyInventoryRecord, 0, 64)
	for rows.Next() {
		record, err := scanDailyRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) GetDailyRecord(ctx context.Context, productID, date string) (*domain.DailyInventoryRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+dailyColumns+`
		FROM daily_inventory_records
		WHERE product_id = $1 AND date = $2
	`, productID, date)
	record, err := scanDailyRecord(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return record, nil
}

func (s *Store) ListDailyDates(ctx context.Context) ([]string, error) {
	return s.listDates(ctx, `SELECT DISTINCT date FROM daily_inventory_records ORDER BY date`)
}

func (s *Store) ListOpenDailyDates(ctx context.Context) ([]string, error) {
	return s.listDates(ctx, `SELECT DISTINCT date FROM daily_inventory_records WHERE closed_at IS NULL ORDER BY date`)
}

func (s *Store) listDates(ctx context.Context, query string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	dates := make([]string, 0, 32)
	for rows.Next() {
		var date string
		if err := rows.Scan(&date); err != nil {
			return nil, err
		}
		dates = append(dates, date)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return dates, nil
}

func (s *Store) ApplyDailyChanges(ctx context.Context, date string, records []domain.DailyInventoryRecord, dryRun bool) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, r := range records {
		if r.Date != date {
			return store.ErrInvalidInput
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO daily_inventory_records (
				id, product_id, date, start_quantity, incoming_quantity, return_sales_quantity,
				sales_quantity, return_waste_quantity, end_quantity, closed_at, updated_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			ON CONFLICT (product_id, date)
			DO UPDATE SET
				start_quantity = EXCLUDED.start_quantity,
				incoming_quantity = EXCLUDED.incoming_quantity,
				return_sales_quantity = EXCLUDED.return_sales_quantity,
				sales_quantity = EXCLUDED.sales_quantity,
				return_waste_quantity = EXCLUDED.return_waste_quantity,
				end_quantity = EXCLUDED.end_quantity,
				updated_at = EXCLUDED.updated_at
		`, r.ID, r.ProductID, r.Date, r.StartQuantity, r.Incoming, r.ReturnSales,
			r.Sales, r.ReturnWaste, r.EndQuantity, nullTime(r.ClosedAt), r.UpdatedAt)
		if err != nil {
			return err
		}
	}

	// Dry runs execute every statement and then roll back, so the report
	// reflects exactly what a real run would write.
	if dryRun {
		return tx.Rollback()
	}
	return tx.Commit()
}

func (s *Store) CloseDailyRecords(ctx context.Context, date string, at time.Time, next []domain.DailyInventoryRecord) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE daily_inventory_records
		SET closed_at = $2, updated_at = $2
		WHERE date = $1 AND closed_at IS NULL
	`, date, at)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrConflict
	}

	for _, r := range next {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO daily_inventory_records (
				id, product_id, date, start_quantity, incoming_quantity, return_sales_quantity,
				sales_quantity, return_waste_quantity, end_quantity, closed_at, updated_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NULL,$10)
			ON CONFLICT (product_id, date) DO NOTHING
		`, r.ID, r.ProductID, r.Date, r.StartQuantity, r.Incoming, r.ReturnSales,
			r.Sales, r.ReturnWaste, r.EndQuantity, r.UpdatedAt)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ---- shifts and expenses ----

func (s *Store) CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var open int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*)::int FROM shifts WHERE user_id = $1 AND closed = false
	`, shift.UserID).Scan(&open)
	if err != nil {
		return nil, err
	}
	if open > 0 {
		return nil, store.ErrConflict
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO shifts (id, user_id, start_cash_cents, end_cash_cents, real_cash_cents, deficit_cents, has_deficit, closed, opened_at)
		VALUES ($1,$2,$3,0,0,0,false,false,$4)
	`, shift.ID, shift.UserID, shift.StartCash, shift.OpenedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := shift
	return &created, nil
}

const shiftColumns = `
	id, user_id, start_cash_cents, end_cash_cents, real_cash_cents,
	deficit_cents, has_deficit, closed, opened_at, closed_at
`

func scanShift(scan func(dest ...any) error) (*domain.Shift, error) {
	var shift domain.Shift
	var closedAt sql.NullTime
	err := scan(&shift.ID, &shift.UserID, &shift.StartCash, &shift.EndCash, &shift.RealCash,
		&shift.Deficit, &shift.HasDeficit, &shift.Closed, &shift.OpenedAt, &closedAt)
	if err != nil {
		return nil, err
	}
	shift.OpenedAt = shift.OpenedAt.UTC()
	if closedAt.Valid {
		at := closedAt.Time.UTC()
		shift.ClosedAt = &at
	}
	return &shift, nil
}

func (s *Store) GetShift(ctx context.Context, id string) (*domain.Shift, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE id = $1`, id)
	shift, err := scanShift(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return shift, nil
}

func (s *Store) GetOpenShiftByUser(ctx context.Context, userID string) (*domain.Shift, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts
		WHERE user_id = $1 AND closed = false
		ORDER BY opened_at DESC
		LIMIT 1
	`, userID)
	shift, err := scanShift(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return shift, nil
}

func (s *Store) CloseShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE shifts
		SET end_cash_cents = $2, real_cash_cents = $3, deficit_cents = $4,
			has_deficit = $5, closed = true, closed_at = $6
		WHERE id = $1 AND closed = false
	`, shift.ID, shift.EndCash, shift.RealCash, shift.Deficit, shift.HasDeficit, nullTime(shift.ClosedAt))
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrConflict
	}

	saved := shift
	return &saved, nil
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, shift_id, user_id, description, method, amount_cents, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, expense.ID, expense.ShiftID, expense.UserID, expense.Description, expense.Method, expense.AmountCents, expense.CreatedAt)
	if err != nil {
		return nil, err
	}
	created := expense
	return &created, nil
}

func (s *Store) ListExpensesByShift(ctx context.Context, shiftID string) ([]domain.Expense, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shift_id, user_id, description, method, amount_cents, created_at
		FROM expenses
		WHERE shift_id = $1
		ORDER BY created_at ASC
	`, shiftID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0, 8)
	for rows.Next() {
		var e domain.Expense
		if err := rows.Scan(&e.ID, &e.ShiftID, &e.UserID, &e.Description, &e.Method, &e.AmountCents, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.CreatedAt = e.CreatedAt.UTC()
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return expenses, nil
}

// ---- purchasing and waste ----

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, phone, created_at)
		VALUES ($1,$2,$3,$4)
	`, supplier.ID, supplier.Name, nullIfEmpty(supplier.Phone), supplier.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := supplier
	return &created, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(phone,''), created_at
		FROM suppliers
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 16)
	for rows.Next() {
		var sup domain.Supplier
		if err := rows.Scan(&sup.ID, &sup.Name, &sup.Phone, &sup.CreatedAt); err != nil {
			return nil, err
		}
		sup.CreatedAt = sup.CreatedAt.UTC()
		suppliers = append(suppliers, sup)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return suppliers, nil
}

func (s *Store) CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO purchase_orders (id, supplier_id, status, created_at)
		VALUES ($1,$2,$3,$4)
	`, po.ID, po.SupplierID, po.Status, po.CreatedAt)
	if err != nil {
		return nil, err
	}

	for _, item := range po.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO purchase_order_items (purchase_order_id, product_id, quantity, cost_cents)
			VALUES ($1,$2,$3,$4)
		`, po.ID, item.ProductID, item.Quantity, item.CostCents)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := po
	return &created, nil
}

func (s *Store) GetPurchaseOrder(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	var po domain.PurchaseOrder
	var receivedAt sql.NullTime
	var receivedBy sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, supplier_id, status, created_at, received_at, received_by
		FROM purchase_orders
		WHERE id = $1
	`, id).Scan(&po.ID, &po.SupplierID, &po.Status, &po.CreatedAt, &receivedAt, &receivedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	po.CreatedAt = po.CreatedAt.UTC()
	if receivedAt.Valid {
		at := receivedAt.Time.UTC()
		po.ReceivedAt = &at
	}
	if receivedBy.Valid {
		po.ReceivedBy = receivedBy.String
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, quantity, cost_cents
		FROM purchase_order_items
		WHERE purchase_order_id = $1
		ORDER BY product_id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.PurchaseOrderItem
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.CostCents); err != nil {
			return nil, err
		}
		po.Items = append(po.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &po, nil
}

func (s *Store) ListPurchaseOrders(ctx context.Context, status string, limit int) ([]domain.PurchaseOrder, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id
		FROM purchase_orders
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	orders := make([]domain.PurchaseOrder, 0, len(ids))
	for _, id := range ids {
		po, err := s.GetPurchaseOrder(ctx, id)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *po)
	}
	return orders, nil
}

func (s *Store) ReceivePurchaseOrder(ctx context.Context, id string, receivedBy string, at time.Time, movements []domain.InventoryMovement, costs map[string]money.Cents) (*domain.PurchaseOrder, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM purchase_orders WHERE id = $1 FOR UPDATE
	`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if status != domain.PurchaseOrderDraft {
		return nil, store.ErrConflict
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE purchase_orders
		SET status = $2, received_at = $3, received_by = $4
		WHERE id = $1
	`, id, domain.PurchaseOrderReceived, at, receivedBy)
	if err != nil {
		return nil, err
	}

	if err := appendMovementsTx(ctx, tx, movements); err != nil {
		return nil, err
	}

	for productID, cost := range costs {
		_, err := tx.ExecContext(ctx, `
			UPDATE products SET cost_cents = $2, updated_at = now() WHERE id = $1
		`, productID, cost)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetPurchaseOrder(ctx, id)
}

func (s *Store) CreateWasteEntry(ctx context.Context, entry domain.WasteEntry, movement domain.InventoryMovement) (*domain.WasteEntry, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO waste_entries (id, product_id, quantity, reason, user_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, entry.ID, entry.ProductID, entry.Quantity, entry.Reason, entry.UserID, entry.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := appendMovementsTx(ctx, tx, []domain.InventoryMovement{movement}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := entry
	return &created, nil
}

// ---- audit log and users ----

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ---- helpers ----

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
