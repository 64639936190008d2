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

// OpenShift starts a cash session for the acting user. A user has at most
// one open shift; the repository rejects a second open with ErrConflict.
func (s *Service) OpenShift(ctx context.Context, req domain.ShiftOpenRequest) (domain.Shift, error) {
	if req.StartCashCents < 0 {
		return domain.Shift{}, store.ErrInvalidInput
	}

	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Shift{}, fmt.Errorf("no acting user")
	}

	shift := domain.Shift{
		ID:        xid.New("shift"),
		UserID:    actor.Username,
		StartCash: req.StartCashCents,
		OpenedAt:  time.Now().UTC(),
	}

	created, err := s.repo.CreateShift(ctx, shift)
	if err != nil {
		return domain.Shift{}, err
	}

	s.logAudit(ctx, "shift_open", "shift", created.ID, fmt.Sprintf("start_cash=%d", created.StartCash))
	return *created, nil
}

// CloseShift reconciles the drawer. Expected cash is start cash plus cash
// payments, minus cash refunds and cash expenses; the deficit is expected
// minus counted. A shift cannot close while it still has processing orders.
func (s *Service) CloseShift(ctx context.Context, req domain.ShiftCloseRequest) (domain.Shift, error) {
	if req.RealCashCents < 0 {
		return domain.Shift{}, store.ErrInvalidInput
	}

	shift, err := s.repo.GetShift(ctx, req.ShiftID)
	if err != nil {
		return domain.Shift{}, err
	}
	if shift.Closed {
		return domain.Shift{}, store.ErrConflict
	}

	actor, _ := ActorFromContext(ctx)
	if actor.Username != shift.UserID && actor.Role != "admin" {
		return domain.Shift{}, fmt.Errorf("shift belongs to another user")
	}

	open, err := s.repo.CountProcessingOrdersByShift(ctx, shift.ID)
	if err != nil {
		return domain.Shift{}, err
	}
	if open > 0 {
		return domain.Shift{}, domain.ErrShiftHasOpenOrders
	}

	expected, err := s.expectedCash(ctx, *shift)
	if err != nil {
		return domain.Shift{}, err
	}

	now := time.Now().UTC()
	deficit := expected - req.RealCashCents

	updated := *shift
	updated.EndCash = expected
	updated.RealCash = req.RealCashCents
	updated.Deficit = deficit
	updated.HasDeficit = deficit != 0
	updated.Closed = true
	updated.ClosedAt = &now

	closed, err := s.repo.CloseShift(ctx, updated)
	if err != nil {
		return domain.Shift{}, err
	}

	s.logAudit(ctx, "shift_close", "shift", shift.ID, fmt.Sprintf("expected=%d,real=%d,deficit=%d", expected, req.RealCashCents, deficit))
	return *closed, nil
}

// GetOpenShift returns the acting user's open shift, if any.
func (s *Service) GetOpenShift(ctx context.Context) (domain.Shift, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Shift{}, fmt.Errorf("no acting user")
	}
	shift, err := s.repo.GetOpenShiftByUser(ctx, actor.Username)
	if err != nil {
		return domain.Shift{}, err
	}
	return *shift, nil
}

// GetShiftReport summarizes a shift's sales, payment mix, refunds and
// expenses without mutating anything.
func (s *Service) GetShiftReport(ctx context.Context, shiftID string) (domain.ShiftReport, error) {
	shift, err := s.repo.GetShift(ctx, shiftID)
	if err != nil {
		return domain.ShiftReport{}, err
	}

	orders, err := s.repo.ListOrdersByShift(ctx, shiftID)
	if err != nil {
		return domain.ShiftReport{}, err
	}

	report := domain.ShiftReport{Shift: *shift}
	for _, order := range orders {
		if order.Status != domain.OrderCompleted {
			continue
		}
		report.OrderCount++
		report.SalesCents += order.TotalCents
	}

	paid, err := s.repo.SumPaymentsByShift(ctx, shiftID)
	if err != nil {
		return domain.ShiftReport{}, err
	}
	report.PaidByMethod = paid

	refunds, err := s.repo.SumRefundsByShift(ctx, shiftID)
	if err != nil {
		return domain.ShiftReport{}, err
	}
	for _, amount := range refunds {
		report.RefundsCents += amount
	}

	expenses, err := s.repo.ListExpensesByShift(ctx, shiftID)
	if err != nil {
		return domain.ShiftReport{}, err
	}
	for _, expense := range expenses {
		report.ExpensesCents += expense.AmountCents
	}

	return report, nil
}

// CreateExpense records a cash outflow (supplies, petty cash) against an
// open shift so drawer reconciliation accounts for it.
func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	req.Description = strings.TrimSpace(req.Description)
	if req.Description == "" || req.AmountCents <= 0 {
		return domain.Expense{}, store.ErrInvalidInput
	}

	shift, err := s.repo.GetShift(ctx, req.ShiftID)
	if err != nil {
		return domain.Expense{}, err
	}
	if shift.Closed {
		return domain.Expense{}, store.ErrConflict
	}

	actor, _ := ActorFromContext(ctx)
	expense := domain.Expense{
		ID:          xid.New("exp"),
		ShiftID:     shift.ID,
		UserID:      actor.Username,
		Description: req.Description,
		Method:      domain.MethodCash,
		AmountCents: req.AmountCents,
		CreatedAt:   time.Now().UTC(),
	}

	created, err := s.repo.CreateExpense(ctx, expense)
	if err != nil {
		return domain.Expense{}, err
	}

	s.logAudit(ctx, "expense_create", "expense", created.ID, fmt.Sprintf("amount=%d,desc=%s", created.AmountCents, created.Description))
	return *created, nil
}

// expectedCash derives the drawer figure from the ledgers: payment rows
// (reversals included, they are negative) minus refunds minus expenses,
// cash method only, on top of the opening float.
func (s *Service) expectedCash(ctx context.Context, shift domain.Shift) (money.Cents, error) {
	expected := shift.StartCash

	paid, err := s.repo.SumPaymentsByShift(ctx, shift.ID)
	if err != nil {
		return 0, err
	}
	expected += paid[domain.MethodCash]

	refunds, err := s.repo.SumRefundsByShift(ctx, shift.ID)
	if err != nil {
		return 0, err
	}
	expected -= refunds[domain.MethodCash]

	expenses, err := s.repo.ListExpensesByShift(ctx, shift.ID)
	if err != nil {
		return 0, err
	}
	for _, expense := range expenses {
		if expense.Method == domain.MethodCash {
			expected -= expense.AmountCents
		}
	}
	return expected, nil
}
