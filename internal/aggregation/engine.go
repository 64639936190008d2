// Package aggregation maintains the per-day per-product inventory records
// derived from the movement ledger, and reconciles drifted records back to
// what the ledger says.
package aggregation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/money"
	"restopos/backend/internal/store"
	"restopos/backend/internal/xid"
)

// DateLayout is the business-day key format. Days run on UTC.
const DateLayout = "2006-01-02"

// Options select which dates to reconcile and which fixes to apply.
// With none of the Fix/Backfill flags set, a run only recomputes the
// movement buckets and derived end figures.
type Options struct {
	Dates    []string // explicit YYYY-MM-DD dates; empty means the open days
	AllDates bool     // every date that has records, open or closed
	FixStart bool     // realign start quantities with the previous day's end
	FixEnd   bool     // realign an open day's end with the live stock level
	Backfill bool     // create missing records for products with movements
	DryRun   bool     // compute and report, persist nothing
}

// FieldChange is one field of one record moving from Old to New.
type FieldChange struct {
	Field string         `json:"field"`
	Old   money.Quantity `json:"old"`
	New   money.Quantity `json:"new"`
}

// RecordChange collects the field changes of one product on one date.
type RecordChange struct {
	ProductID string        `json:"product_id"`
	Date      string        `json:"date"`
	Created   bool          `json:"created,omitempty"`
	Fields    []FieldChange `json:"fields"`
}

// DateResult is the outcome of reconciling a single date.
type DateResult struct {
	Date      string         `json:"date"`
	Examined  int            `json:"examined"`
	Changed   []RecordChange `json:"changed,omitempty"`
	Integrity []error        `json:"-"`
}

// Report is the full outcome of a reconciliation run. Applied is false
// when the run was a dry run.
type Report struct {
	Dates   []DateResult `json:"dates"`
	Applied bool         `json:"applied"`
}

// Changed reports whether any record differed from the ledger.
func (r Report) Changed() bool {
	for _, d := range r.Dates {
		if len(d.Changed) > 0 {
			return true
		}
	}
	return false
}

type Engine struct {
	repo store.Repository
}

func NewEngine(repo store.Repository) *Engine {
	return &Engine{repo: repo}
}

// Run reconciles the selected dates, oldest first so start-quantity fixes
// can chain from one day's corrected end into the next day's start. With
// no explicit dates the currently open days are reconciled. Reconciling an
// already-consistent date is a no-op, so running twice in a row changes
// nothing the second time.
func (e *Engine) Run(ctx context.Context, opts Options) (Report, error) {
	dates := opts.Dates
	switch {
	case opts.AllDates:
		all, err := e.repo.ListDailyDates(ctx)
		if err != nil {
			return Report{}, err
		}
		dates = all
	case len(dates) == 0:
		open, err := e.repo.ListOpenDailyDates(ctx)
		if err != nil {
			return Report{}, err
		}
		dates = open
	}
	for _, date := range dates {
		if _, err := time.Parse(DateLayout, date); err != nil {
			return Report{}, fmt.Errorf("bad date %q: %w", date, err)
		}
	}
	sort.Strings(dates)

	report := Report{Applied: !opts.DryRun}
	for _, date := range dates {
		result, err := e.reconcileDate(ctx, date, opts)
		if err != nil {
			return report, fmt.Errorf("date %s: %w", date, err)
		}
		report.Dates = append(report.Dates, result)
	}
	return report, nil
}

// reconcileDate recomputes one date's records from the ledger and applies
// the differences in a single per-date transaction.
func (e *Engine) reconcileDate(ctx context.Context, date string, opts Options) (DateResult, error) {
	result := DateResult{Date: date}

	existing, err := e.repo.ListDailyRecords(ctx, date)
	if err != nil {
		return result, err
	}

	dayStart, _ := time.Parse(DateLayout, date)
	dayEnd := dayStart.Add(24 * time.Hour)

	// A closed day's window ends at its close timestamp so movements booked
	// after closing never rewrite its figures.
	windowEnd := dayEnd
	closed := false
	if len(existing) > 0 && existing[0].ClosedAt != nil {
		closed = true
		if existing[0].ClosedAt.Before(windowEnd) {
			windowEnd = *existing[0].ClosedAt
		}
	}

	totals, err := e.repo.AggregateMovements(ctx, dayStart, windowEnd)
	if err != nil {
		return result, err
	}

	byProduct := map[string]domain.DailyInventoryRecord{}
	for _, rec := range existing {
		byProduct[rec.ProductID] = rec
	}

	if opts.Backfill {
		for productID := range totals {
			if _, ok := byProduct[productID]; !ok {
				byProduct[productID] = domain.DailyInventoryRecord{
					ID:        xid.New("day"),
					ProductID: productID,
					Date:      date,
				}
			}
		}
	}

	// Backfilled records need a start figure too, not just FixStart runs:
	// a record synthesized with start 0 misstates the end of any product
	// that already had inventory.
	var startBaseline map[string]money.Quantity
	var prevEnd map[string]money.Quantity
	var liveStock map[string]money.Quantity
	if opts.FixStart || opts.Backfill {
		prevEnd, err = e.previousDayEnds(ctx, date)
		if err != nil {
			return result, err
		}
		startBaseline, err = e.repo.NetMovementsBefore(ctx, dayStart)
		if err != nil {
			return result, err
		}
	}
	if opts.FixEnd && !closed {
		liveStock, err = e.repo.GetStockLevels(ctx, nil)
		if err != nil {
			return result, err
		}
	}

	productIDs := make([]string, 0, len(byProduct))
	for id := range byProduct {
		productIDs = append(productIDs, id)
	}
	sort.Strings(productIDs)
	result.Examined = len(productIDs)

	var updates []domain.DailyInventoryRecord
	for _, productID := range productIDs {
		rec := byProduct[productID]
		_, isNew := totals[productID]
		created := rec.UpdatedAt.IsZero() && isNew

		next := rec
		bucket := totals[productID]
		next.Incoming = bucket.Incoming
		next.ReturnSales = bucket.ReturnSales
		next.Sales = bucket.Sales
		next.ReturnWaste = bucket.ReturnWaste

		if opts.FixStart || created {
			if end, ok := prevEnd[productID]; ok {
				next.StartQuantity = end
			} else {
				next.StartQuantity = startBaseline[productID]
			}
		}

		next.EndQuantity = next.DerivedEnd()
		if opts.FixEnd && !closed {
			if live, ok := liveStock[productID]; ok {
				next.EndQuantity = live
			}
		}

		if next.EndQuantity < 0 {
			err := &domain.AggregationIntegrityError{
				ProductID:   productID,
				Date:        date,
				EndQuantity: next.EndQuantity,
			}
			result.Integrity = append(result.Integrity, err)
			log.Error().Str("product_id", productID).Str("date", date).
				Str("end_quantity", next.EndQuantity.String()).
				Msg("daily record reconciles to negative stock")
		}

		change := diffRecord(rec, next)
		change.ProductID = productID
		change.Date = date
		change.Created = created
		if len(change.Fields) == 0 && !created {
			continue
		}

		next.UpdatedAt = time.Now().UTC()
		updates = append(updates, next)
		result.Changed = append(result.Changed, change)
	}

	if len(updates) > 0 {
		if err := e.repo.ApplyDailyChanges(ctx, date, updates, opts.DryRun); err != nil {
			return result, err
		}
	}
	return result, nil
}

// CloseBusinessDay stamps the date's records closed and seeds the next
// day's records with start = closing end.
func (e *Engine) CloseBusinessDay(ctx context.Context, date string) error {
	day, err := time.Parse(DateLayout, date)
	if err != nil {
		return fmt.Errorf("bad date %q: %w", date, err)
	}

	records, err := e.repo.ListDailyRecords(ctx, date)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("no records for %s: %w", date, store.ErrNotFound)
	}
	for _, rec := range records {
		if rec.ClosedAt != nil {
			return store.ErrConflict
		}
	}

	now := time.Now().UTC()
	nextDate := day.Add(24 * time.Hour).Format(DateLayout)
	next := make([]domain.DailyInventoryRecord, 0, len(records))
	for _, rec := range records {
		next = append(next, domain.DailyInventoryRecord{
			ID:            xid.New("day"),
			ProductID:     rec.ProductID,
			Date:          nextDate,
			StartQuantity: rec.EndQuantity,
			EndQuantity:   rec.EndQuantity,
			UpdatedAt:     now,
		})
	}

	if err := e.repo.CloseDailyRecords(ctx, date, now, next); err != nil {
		return err
	}

	log.Info().Str("date", date).Int("products", len(records)).Msg("business day closed")
	return nil
}

// previousDayEnds returns the persisted end quantities of the latest
// record date strictly before the given date.
func (e *Engine) previousDayEnds(ctx context.Context, date string) (map[string]money.Quantity, error) {
	dates, err := e.repo.ListDailyDates(ctx)
	if err != nil {
		return nil, err
	}

	prev := ""
	for _, d := range dates {
		if d < date && d > prev {
			prev = d
		}
	}
	if prev == "" {
		return map[string]money.Quantity{}, nil
	}

	records, err := e.repo.ListDailyRecords(ctx, prev)
	if err != nil {
		return nil, err
	}
	ends := make(map[string]money.Quantity, len(records))
	for _, rec := range records {
		ends[rec.ProductID] = rec.EndQuantity
	}
	return ends, nil
}

func diffRecord(old, next domain.DailyInventoryRecord) RecordChange {
	var change RecordChange
	add := func(field string, o, n money.Quantity) {
		if o != n {
			change.Fields = append(change.Fields, FieldChange{Field: field, Old: o, New: n})
		}
	}
	add("start", old.StartQuantity, next.StartQuantity)
	add("incoming", old.Incoming, next.Incoming)
	add("return_sales", old.ReturnSales, next.ReturnSales)
	add("sales", old.Sales, next.Sales)
	add("return_waste", old.ReturnWaste, next.ReturnWaste)
	add("end", old.EndQuantity, next.EndQuantity)
	return change
}
