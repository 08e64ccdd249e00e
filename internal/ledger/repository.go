package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/shiftledger/internal/platform/db"
	"github.com/odyssey-erp/shiftledger/internal/shared"
	"github.com/odyssey-erp/shiftledger/internal/shift"
)

// Store persists ledger rows and the stock-received log.
type Store interface {
	EntryReader
	ReceiptLog
	Upsert(ctx context.Context, entry Entry, withOverride bool) (Entry, error)
	SetApproved(ctx context.Context, c Commodity, date shift.Date, by string) (*Entry, error)
	ListRange(ctx context.Context, c Commodity, start, end shift.Date) ([]Entry, error)
}

// Repository is the PostgreSQL Store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const entryColumns = `
commodity, shift_date, start_qty, computed_purchased_qty, purchased_qty, used_qty,
estimated_end_qty, declared_actual_end_qty, actual_end_qty, waste_allowance, variance, status,
approved, approved_by, override_purchased_qty, override_actual_end_qty, override_note,
override_by, override_at, updated_at`

const selectEntry = `SELECT` + entryColumns + `
FROM ledger_entries
WHERE commodity = $1 AND shift_date = $2`

// Computed columns are rewritten on every recompute; the row is only touched
// when something actually changed so an unchanged recompute keeps updated_at.
const upsertComputed = `
INSERT INTO ledger_entries (
    commodity, shift_date, start_qty, computed_purchased_qty, purchased_qty, used_qty,
    estimated_end_qty, declared_actual_end_qty, actual_end_qty, waste_allowance, variance, status,
    updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (commodity, shift_date) DO UPDATE SET
    start_qty = EXCLUDED.start_qty,
    computed_purchased_qty = EXCLUDED.computed_purchased_qty,
    purchased_qty = EXCLUDED.purchased_qty,
    used_qty = EXCLUDED.used_qty,
    estimated_end_qty = EXCLUDED.estimated_end_qty,
    declared_actual_end_qty = EXCLUDED.declared_actual_end_qty,
    actual_end_qty = EXCLUDED.actual_end_qty,
    waste_allowance = EXCLUDED.waste_allowance,
    variance = EXCLUDED.variance,
    status = EXCLUDED.status,
    updated_at = EXCLUDED.updated_at
WHERE (ledger_entries.start_qty, ledger_entries.computed_purchased_qty, ledger_entries.purchased_qty,
       ledger_entries.used_qty, ledger_entries.estimated_end_qty, ledger_entries.declared_actual_end_qty,
       ledger_entries.actual_end_qty, ledger_entries.waste_allowance, ledger_entries.variance,
       ledger_entries.status)
  IS DISTINCT FROM
      (EXCLUDED.start_qty, EXCLUDED.computed_purchased_qty, EXCLUDED.purchased_qty,
       EXCLUDED.used_qty, EXCLUDED.estimated_end_qty, EXCLUDED.declared_actual_end_qty,
       EXCLUDED.actual_end_qty, EXCLUDED.waste_allowance, EXCLUDED.variance,
       EXCLUDED.status)`

const updateOverride = `
UPDATE ledger_entries SET
    override_purchased_qty = $3,
    override_actual_end_qty = $4,
    override_note = $5,
    override_by = $6,
    override_at = $7
WHERE commodity = $1 AND shift_date = $2`

// GetLedger returns the row for (c, date) or nil when none exists.
func (r *Repository) GetLedger(ctx context.Context, c Commodity, date shift.Date) (*Entry, error) {
	entry, err := scanEntry(r.pool.QueryRow(ctx, selectEntry, string(c), date.Time()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ledger: get %s %s: %w", c, date, err)
	}
	return &entry, nil
}

// Upsert writes the computed fields of entry. Override columns are only
// written when withOverride is set; approval is never touched. Concurrent
// writers for the same key are serialised on a transaction advisory lock.
func (r *Repository) Upsert(ctx context.Context, entry Entry, withOverride bool) (Entry, error) {
	var stored Entry
	err := db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, LockKey(entry.Commodity, entry.ShiftDate)); err != nil {
			return fmt.Errorf("advisory lock: %w", err)
		}
		_, err := tx.Exec(ctx, upsertComputed,
			string(entry.Commodity),
			entry.ShiftDate.Time(),
			entry.StartQty,
			entry.ComputedPurchasedQty,
			entry.PurchasedQty,
			entry.UsedQty,
			entry.EstimatedEndQty,
			entry.DeclaredActualEndQty,
			entry.ActualEndQty,
			entry.WasteAllowance,
			entry.Variance,
			string(entry.Status),
			entry.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert: %w", err)
		}
		if withOverride {
			o := entry.Override
			if _, err := tx.Exec(ctx, updateOverride,
				string(entry.Commodity), entry.ShiftDate.Time(),
				o.PurchasedQty, o.ActualEndQty, o.Note, o.By, o.At,
			); err != nil {
				return fmt.Errorf("override: %w", err)
			}
		}
		stored, err = scanEntry(tx.QueryRow(ctx, selectEntry, string(entry.Commodity), entry.ShiftDate.Time()))
		return err
	})
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: upsert %s %s: %w", entry.Commodity, entry.ShiftDate, err)
	}
	return stored, nil
}

// SetApproved marks the row approved. It returns nil when the row is missing.
func (r *Repository) SetApproved(ctx context.Context, c Commodity, date shift.Date, by string) (*Entry, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE ledger_entries SET approved = TRUE, approved_by = $3 WHERE commodity = $1 AND shift_date = $2`,
		string(c), date.Time(), by)
	if err != nil {
		return nil, fmt.Errorf("ledger: approve %s %s: %w", c, date, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, nil
	}
	return r.GetLedger(ctx, c, date)
}

// ListRange returns rows between start and end inclusive, newest first.
func (r *Repository) ListRange(ctx context.Context, c Commodity, start, end shift.Date) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT`+entryColumns+`
FROM ledger_entries
WHERE commodity = $1 AND shift_date BETWEEN $2 AND $3
ORDER BY shift_date DESC`, string(c), start.Time(), end.Time())
	if err != nil {
		return nil, fmt.Errorf("ledger: range %s: %w", c, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// RecordReceipts appends rows to the stock-received log.
func (r *Repository) RecordReceipts(ctx context.Context, receipts []StockReceipt) error {
	if len(receipts) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, rc := range receipts {
		batch.Queue(`
INSERT INTO stock_receipts (id, commodity, shift_date, sku, quantity, staff_name, received_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			rc.ID, string(rc.Commodity), rc.ShiftDate.Time(), rc.SKU, rc.Quantity, rc.StaffName, rc.ReceivedAt)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("ledger: record receipts: %w", err)
		}
		return nil
	})
}

// SumReceived totals the log for one commodity and business date.
func (r *Repository) SumReceived(ctx context.Context, c Commodity, date shift.Date) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(quantity), 0)::bigint FROM stock_receipts WHERE commodity = $1 AND shift_date = $2`,
		string(c), date.Time()).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("ledger: sum received %s %s: %w", c, date, err)
	}
	return total, nil
}

func scanEntry(row pgx.Row) (Entry, error) {
	var (
		e          Entry
		commodity  string
		status     string
		date       time.Time
		approvedBy *string
		note, by   *string
	)
	err := row.Scan(
		&commodity,
		&date,
		&e.StartQty,
		&e.ComputedPurchasedQty,
		&e.PurchasedQty,
		&e.UsedQty,
		&e.EstimatedEndQty,
		&e.DeclaredActualEndQty,
		&e.ActualEndQty,
		&e.WasteAllowance,
		&e.Variance,
		&status,
		&e.Approved,
		&approvedBy,
		&e.Override.PurchasedQty,
		&e.Override.ActualEndQty,
		&note,
		&by,
		&e.Override.At,
		&e.UpdatedAt,
	)
	if err != nil {
		return Entry{}, err
	}
	e.Commodity = Commodity(commodity)
	e.ShiftDate = shift.DateOf(date)
	e.Status = Status(status)
	if approvedBy != nil {
		e.ApprovedBy = *approvedBy
	}
	if note != nil {
		e.Override.Note = *note
	}
	if by != nil {
		e.Override.By = *by
	}
	return e, nil
}

// LockKey names the mutual-exclusion key for one ledger row.
func LockKey(c Commodity, date shift.Date) string {
	return shared.RecomputeLockKey(string(c), date.String())
}
