package aggregation

import (
	"context"
	"errors"
	"testing"
	"time"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/money"
	"restopos/backend/internal/store"
	"restopos/backend/internal/store/memory"
	"restopos/backend/internal/xid"
)

func appendMovement(t *testing.T, repo *memory.Store, productID string, op domain.MovementOperation, reason domain.MovementReason, units int64, at time.Time) {
	t.Helper()
	err := repo.AppendMovements(context.Background(), []domain.InventoryMovement{{
		ID:        xid.New("mov"),
		ProductID: productID,
		Operation: op,
		Reason:    reason,
		Quantity:  money.QuantityFromUnits(units),
		CreatedAt: at,
	}})
	if err != nil {
		t.Fatalf("append movement failed: %v", err)
	}
}

func at(t *testing.T, date string, hour int) time.Time {
	t.Helper()
	day, err := time.Parse(DateLayout, date)
	if err != nil {
		t.Fatalf("bad date %q: %v", date, err)
	}
	return day.Add(time.Duration(hour) * time.Hour)
}

func TestBackfillDerivesEndFromLedger(t *testing.T) {
	repo := memory.NewSeeded()
	ctx := context.Background()
	date := "2026-03-01"

	appendMovement(t, repo, "prod-fries", domain.MovementIn, domain.ReasonPurchase, 10, at(t, date, 8))
	appendMovement(t, repo, "prod-fries", domain.MovementOut, domain.ReasonOrder, 4, at(t, date, 12))
	appendMovement(t, repo, "prod-fries", domain.MovementOut, domain.ReasonWaste, 1, at(t, date, 14))
	appendMovement(t, repo, "prod-fries", domain.MovementIn, domain.ReasonOrderReturn, 2, at(t, date, 16))

	report, err := NewEngine(repo).Run(ctx, Options{Dates: []string{date}, Backfill: true})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !report.Applied {
		t.Fatalf("expected report to be applied")
	}
	if len(report.Dates) != 1 || report.Dates[0].Examined != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(report.Dates[0].Changed) != 1 || !report.Dates[0].Changed[0].Created {
		t.Fatalf("expected one created record, got %+v", report.Dates[0].Changed)
	}

	rec, err := repo.GetDailyRecord(ctx, "prod-fries", date)
	if err != nil {
		t.Fatalf("get record failed: %v", err)
	}
	if rec.Incoming != money.QuantityFromUnits(10) {
		t.Fatalf("incoming = %s, want 10", rec.Incoming)
	}
	if rec.Sales != money.QuantityFromUnits(4) {
		t.Fatalf("sales = %s, want 4", rec.Sales)
	}
	if rec.ReturnWaste != money.QuantityFromUnits(1) {
		t.Fatalf("return_waste = %s, want 1", rec.ReturnWaste)
	}
	if rec.ReturnSales != money.QuantityFromUnits(2) {
		t.Fatalf("return_sales = %s, want 2", rec.ReturnSales)
	}
	// Sales returns are reported but never feed the end figure.
	if rec.EndQuantity != money.QuantityFromUnits(5) {
		t.Fatalf("end = %s, want 5", rec.EndQuantity)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	repo := memory.NewSeeded()
	ctx := context.Background()
	date := "2026-03-01"

	appendMovement(t, repo, "prod-fries", domain.MovementIn, domain.ReasonPurchase, 10, at(t, date, 8))
	appendMovement(t, repo, "prod-fries", domain.MovementOut, domain.ReasonOrder, 4, at(t, date, 12))

	engine := NewEngine(repo)
	opts := Options{Dates: []string{date}, Backfill: true}

	first, err := engine.Run(ctx, opts)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if !first.Changed() {
		t.Fatalf("expected first run to change records")
	}

	second, err := engine.Run(ctx, opts)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if second.Changed() {
		t.Fatalf("expected second run to be a no-op, got %+v", second.Dates)
	}
}

func TestDryRunPersistsNothing(t *testing.T) {
	repo := memory.NewSeeded()
	ctx := context.Background()
	date := "2026-03-01"

	appendMovement(t, repo, "prod-fries", domain.MovementIn, domain.ReasonPurchase, 10, at(t, date, 8))

	report, err := NewEngine(repo).Run(ctx, Options{Dates: []string{date}, Backfill: true, DryRun: true})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if report.Applied {
		t.Fatalf("dry run must not be applied")
	}
	if !report.Changed() {
		t.Fatalf("dry run should still report the differences")
	}

	if _, err := repo.GetDailyRecord(ctx, "prod-fries", date); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected no persisted record, got %v", err)
	}
}

func TestDefaultRunTargetsOpenDays(t *testing.T) {
	repo := memory.NewSeeded()
	ctx := context.Background()
	day1, day2 := "2026-03-01", "2026-03-02"
	engine := NewEngine(repo)

	appendMovement(t, repo, "prod-fries", domain.MovementIn, domain.ReasonPurchase, 10, at(t, day1, 8))
	if _, err := engine.Run(ctx, Options{Dates: []string{day1}, Backfill: true}); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	// A late booking drifts the open day; a run with no date selection
	// must pick it up.
	appendMovement(t, repo, "prod-fries", domain.MovementIn, domain.ReasonPurchase, 5, at(t, day1, 21))

	report, err := engine.Run(ctx, Options{})
	if err != nil {
		t.Fatalf("default run failed: %v", err)
	}
	if len(report.Dates) != 1 || report.Dates[0].Date != day1 {
		t.Fatalf("default run covered %+v, want just %s", report.Dates, day1)
	}
	rec, err := repo.GetDailyRecord(ctx, "prod-fries", day1)
	if err != nil {
		t.Fatalf("get record failed: %v", err)
	}
	if rec.Incoming != money.QuantityFromUnits(15) {
		t.Fatalf("incoming = %s, want 15", rec.Incoming)
	}

	// Closed days drop out of the default selection.
	if err := engine.CloseBusinessDay(ctx, day1); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	report, err = engine.Run(ctx, Options{})
	if err != nil {
		t.Fatalf("default run failed: %v", err)
	}
	if len(report.Dates) != 1 || report.Dates[0].Date != day2 {
		t.Fatalf("default run covered %+v, want just %s", report.Dates, day2)
	}
}

func TestBackfillDerivesStartFromLedgerHistory(t *testing.T) {
	repo := memory.NewSeeded()
	ctx := context.Background()
	day1, day2 := "2026-03-01", "2026-03-02"

	appendMovement(t, repo, "prod-fries", domain.MovementIn, domain.ReasonPurchase, 10, at(t, day1, 9))
	appendMovement(t, repo, "prod-fries", domain.MovementOut, domain.ReasonOrder, 3, at(t, day2, 11))

	// Backfilling day2 alone must pick up the 10 units already in the
	// ledger, not synthesize a zero start.
	report, err := NewEngine(repo).Run(ctx, Options{Dates: []string{day2}, Backfill: true})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(report.Dates[0].Integrity) != 0 {
		t.Fatalf("unexpected integrity errors: %v", report.Dates[0].Integrity)
	}

	rec, err := repo.GetDailyRecord(ctx, "prod-fries", day2)
	if err != nil {
		t.Fatalf("get record failed: %v", err)
	}
	if rec.StartQuantity != money.QuantityFromUnits(10) {
		t.Fatalf("start = %s, want 10", rec.StartQuantity)
	}
	if rec.EndQuantity != money.QuantityFromUnits(7) {
		t.Fatalf("end = %s, want 7", rec.EndQuantity)
	}
}

func TestFixStartChainsFromPreviousDay(t *testing.T) {
	repo := memory.NewSeeded()
	ctx := context.Background()
	day1, day2 := "2026-03-01", "2026-03-02"

	appendMovement(t, repo, "prod-fries", domain.MovementIn, domain.ReasonPurchase, 10, at(t, day1, 9))
	appendMovement(t, repo, "prod-fries", domain.MovementOut, domain.ReasonOrder, 3, at(t, day2, 11))

	// Oldest first: day1's corrected end feeds day2's start.
	_, err := NewEngine(repo).Run(ctx, Options{
		Dates:    []string{day2, day1},
		Backfill: true,
		FixStart: true,
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	rec1, err := repo.GetDailyRecord(ctx, "prod-fries", day1)
	if err != nil {
		t.Fatalf("get day1 record failed: %v", err)
	}
	if rec1.EndQuantity != money.QuantityFromUnits(10) {
		t.Fatalf("day1 end = %s, want 10", rec1.EndQuantity)
	}

	rec2, err := repo.GetDailyRecord(ctx, "prod-fries", day2)
	if err != nil {
		t.Fatalf("get day2 record failed: %v", err)
	}
	if rec2.StartQuantity != money.QuantityFromUnits(10) {
		t.Fatalf("day2 start = %s, want 10", rec2.StartQuantity)
	}
	if rec2.EndQuantity != money.QuantityFromUnits(7) {
		t.Fatalf("day2 end = %s, want 7", rec2.EndQuantity)
	}
}

func TestFixEndUsesLiveStockForOpenDays(t *testing.T) {
	repo := memory.NewSeeded()
	ctx := context.Background()
	date := "2026-03-01"

	// Seeded live stock is 200; the day's ledger only shows +10.
	appendMovement(t, repo, "prod-fries", domain.MovementIn, domain.ReasonPurchase, 10, at(t, date, 8))

	_, err := NewEngine(repo).Run(ctx, Options{Dates: []string{date}, Backfill: true, FixEnd: true})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	rec, err := repo.GetDailyRecord(ctx, "prod-fries", date)
	if err != nil {
		t.Fatalf("get record failed: %v", err)
	}
	if rec.EndQuantity != money.QuantityFromUnits(210) {
		t.Fatalf("end = %s, want live stock 210", rec.EndQuantity)
	}
}

func TestNegativeDerivedEndIsFlaggedNotClamped(t *testing.T) {
	repo := memory.NewSeeded()
	ctx := context.Background()
	date := "2026-03-01"

	appendMovement(t, repo, "prod-fries", domain.MovementOut, domain.ReasonOrder, 5, at(t, date, 12))

	report, err := NewEngine(repo).Run(ctx, Options{Dates: []string{date}, Backfill: true})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(report.Dates[0].Integrity) != 1 {
		t.Fatalf("expected 1 integrity error, got %d", len(report.Dates[0].Integrity))
	}
	var integrity *domain.AggregationIntegrityError
	if !errors.As(report.Dates[0].Integrity[0], &integrity) {
		t.Fatalf("expected AggregationIntegrityError, got %v", report.Dates[0].Integrity[0])
	}
	if integrity.ProductID != "prod-fries" || integrity.Date != date {
		t.Fatalf("unexpected integrity error %+v", integrity)
	}

	rec, err := repo.GetDailyRecord(ctx, "prod-fries", date)
	if err != nil {
		t.Fatalf("get record failed: %v", err)
	}
	if rec.EndQuantity != -money.QuantityFromUnits(5) {
		t.Fatalf("end = %s, want -5", rec.EndQuantity)
	}
}

func TestCloseBusinessDaySeedsNextDay(t *testing.T) {
	repo := memory.NewSeeded()
	ctx := context.Background()
	day1, day2 := "2026-03-01", "2026-03-02"
	engine := NewEngine(repo)

	if err := engine.CloseBusinessDay(ctx, day1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound with no records, got %v", err)
	}

	appendMovement(t, repo, "prod-fries", domain.MovementIn, domain.ReasonPurchase, 10, at(t, day1, 9))
	if _, err := engine.Run(ctx, Options{Dates: []string{day1}, Backfill: true}); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if err := engine.CloseBusinessDay(ctx, day1); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	closed, err := repo.GetDailyRecord(ctx, "prod-fries", day1)
	if err != nil {
		t.Fatalf("get day1 record failed: %v", err)
	}
	if closed.ClosedAt == nil {
		t.Fatalf("day1 record not closed")
	}

	seeded, err := repo.GetDailyRecord(ctx, "prod-fries", day2)
	if err != nil {
		t.Fatalf("get day2 record failed: %v", err)
	}
	if seeded.ClosedAt != nil {
		t.Fatalf("day2 record should be open")
	}
	if seeded.StartQuantity != money.QuantityFromUnits(10) || seeded.EndQuantity != money.QuantityFromUnits(10) {
		t.Fatalf("day2 seeded with start=%s end=%s, want 10/10", seeded.StartQuantity, seeded.EndQuantity)
	}

	if err := engine.CloseBusinessDay(ctx, day1); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict on second close, got %v", err)
	}
}

func TestRunRejectsBadDate(t *testing.T) {
	repo := memory.NewSeeded()
	if _, err := NewEngine(repo).Run(context.Background(), Options{Dates: []string{"03/01/2026"}}); err == nil {
		t.Fatalf("expected bad date to be rejected")
	}
}
